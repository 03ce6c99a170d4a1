package pins

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/errcode"
)

func assertInts(t testing.TB, got, want int) {
	t.Helper()

	if got != want {
		t.Errorf("got: %d, want: %d", got, want)
	}
}

func assertCode(t testing.TB, err error, want errcode.Code) {
	t.Helper()

	if !errors.Is(err, want) {
		t.Errorf("got error %v want %s", err, want)
	}
}

func TestLogicalPinFromID(t *testing.T) {
	tests := []struct {
		id     int
		bank   Bank
		offset uint
		name   string
	}{
		{0, BankLED, 0, "LED0"},
		{7, BankLED, 7, "LED7"},
		{8, BankPositive, 0, "DIO0_P"},
		{15, BankPositive, 7, "DIO7_P"},
		{16, BankNegative, 0, "DIO0_N"},
		{23, BankNegative, 7, "DIO7_N"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := LogicalPinFromID(test.id)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Bank() != test.bank || p.Offset() != test.offset {
				t.Errorf("got %s/%d want %s/%d", p.Bank(), p.Offset(), test.bank, test.offset)
			}
			if p.String() != test.name {
				t.Errorf("got name %s want %s", p, test.name)
			}
			assertInts(t, p.ID(), test.id)
		})
	}
}

func TestLogicalPinRejectsOutOfBank(t *testing.T) {
	for _, id := range []int{-1, 24, 25, 100} {
		_, err := LogicalPinFromID(id)
		assertCode(t, err, errcode.InvalidPin)
	}

	constructors := map[string]func(int) (LogicalPin, error){
		"led":      Led,
		"positive": DigitalPositive,
		"negative": DigitalNegative,
	}
	for name, construct := range constructors {
		for _, i := range []int{-1, 8, 9} {
			if _, err := construct(i); !errors.Is(err, errcode.InvalidPin) {
				t.Errorf("%s(%d): got %v want invalid pin", name, i, err)
			}
		}
	}
}

func TestParseLogicalPin(t *testing.T) {
	tests := map[string]int{
		"3":      3,
		"LED5":   5,
		"led5":   5,
		"DIO2_P": 10,
		"dio7_n": 23,
	}
	for in, want := range tests {
		p, err := ParseLogicalPin(in)
		if err != nil {
			t.Errorf("%s: unexpected error %v", in, err)
			continue
		}
		assertInts(t, p.ID(), want)
	}

	for _, in := range []string{"DIO8_P", "LEDx", "GPIO1", "24", "DIO1"} {
		_, err := ParseLogicalPin(in)
		assertCode(t, err, errcode.InvalidPin)
	}
}

func TestMask(t *testing.T) {
	p, _ := DigitalNegative(5)
	if p.Mask() != 0x20 {
		t.Errorf("got mask %x", p.Mask())
	}
}

func TestAllLogicalPins(t *testing.T) {
	all := AllLogicalPins()
	assertInts(t, len(all), 24)
	for i, p := range all {
		assertInts(t, p.ID(), i)
	}
}

func TestAnalogPins(t *testing.T) {
	for id := 0; id < 8; id++ {
		p, err := AnalogPinFromID(id)
		if err != nil {
			t.Fatalf("id %d: %v", id, err)
		}
		assertInts(t, p.ID(), id)
		if p.IsInput() != (id >= 4) {
			t.Errorf("id %d: wrong bank %s", id, p.Bank())
		}
	}

	for _, id := range []int{-1, 8} {
		_, err := AnalogPinFromID(id)
		assertCode(t, err, errcode.InvalidPin)
	}

	p, err := ParseAnalogPin("ain2")
	if err != nil || p.ID() != 6 || p.String() != "AIN2" {
		t.Errorf("got %v, %v", p, err)
	}
	_, err = ParseAnalogPin("AOUT4")
	assertCode(t, err, errcode.InvalidPin)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("OUT")
	if err != nil || d != Output {
		t.Errorf("got %v, %v", d, err)
	}
	d, err = ParseDirection("input")
	if err != nil || d != Input {
		t.Errorf("got %v, %v", d, err)
	}
	_, err = ParseDirection("sideways")
	assertCode(t, err, errcode.InvalidDirection)
}
