package digital

import (
	"context"
	"errors"
	"testing"

	"github.com/hubertat/lockbox/drivers"
	"github.com/hubertat/lockbox/errcode"
	"github.com/hubertat/lockbox/pins"
)

func newTestController(t testing.TB) (*Controller, *drivers.MockRegion) {
	t.Helper()

	mr := &drivers.MockRegisters{}
	if err := mr.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	hk, err := mr.Mock(drivers.Housekeeping)
	if err != nil {
		t.Fatal(err)
	}
	return New(hk), hk
}

func assertCode(t testing.TB, err error, want errcode.Code) {
	t.Helper()

	if !errors.Is(err, want) {
		t.Errorf("got error %v want %s", err, want)
	}
}

func assertRegister(t testing.TB, hk *drivers.MockRegion, offset, want uint32) {
	t.Helper()

	if got := hk.Read32(offset); got != want {
		t.Errorf("register 0x%02x: got 0x%08x want 0x%08x", offset, got, want)
	}
}

func TestLedDirection(t *testing.T) {
	c, hk := newTestController(t)

	for i := 0; i < pins.BankWidth; i++ {
		led, _ := pins.Led(i)

		dir, err := c.GetDirection(led)
		if err != nil || dir != pins.Output {
			t.Errorf("%s: got %s, %v want out", led, dir, err)
		}

		assertCode(t, c.SetDirection(led, pins.Input), errcode.InvalidDirection)
		if err := c.SetDirection(led, pins.Output); err != nil {
			t.Errorf("%s: SetDirection(out) returned %v", led, err)
		}
	}

	if hk.Writes() != 0 {
		t.Errorf("led direction calls wrote %d registers", hk.Writes())
	}
}

func TestBankDirectionRoundTrip(t *testing.T) {
	c, _ := newTestController(t)

	for _, pin := range pins.AllLogicalPins() {
		if pin.IsLed() {
			continue
		}
		for _, want := range []pins.Direction{pins.Output, pins.Input, pins.Output} {
			if err := c.SetDirection(pin, want); err != nil {
				t.Fatalf("SetDirection(%s, %s): %v", pin, want, err)
			}
			got, err := c.GetDirection(pin)
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Errorf("%s: got %s want %s", pin, got, want)
			}
		}
	}
}

func TestSetDirectionPreservesOtherBits(t *testing.T) {
	c, hk := newTestController(t)

	hk.Write32(regDirN, 0xA5)
	pin, _ := pins.DigitalNegative(1)

	c.SetDirection(pin, pins.Output)
	assertRegister(t, hk, regDirN, 0xA7)

	c.SetDirection(pin, pins.Input)
	assertRegister(t, hk, regDirN, 0xA5)
	assertRegister(t, hk, regDirP, 0)
}

func TestSetDirectionRejectsUnknownValue(t *testing.T) {
	c, hk := newTestController(t)

	hk.Write32(regDirP, 0x10)
	before := hk.Writes()

	pin, _ := pins.DigitalPositive(4)
	assertCode(t, c.SetDirection(pin, pins.Direction(2)), errcode.InvalidDirection)
	led, _ := pins.Led(0)
	assertCode(t, c.SetDirection(led, pins.Direction(7)), errcode.InvalidDirection)

	assertRegister(t, hk, regDirP, 0x10)
	if hk.Writes() != before {
		t.Error("rejected SetDirection wrote a register")
	}
}

func TestSetStateOnInputPin(t *testing.T) {
	c, hk := newTestController(t)

	pin, _ := pins.DigitalPositive(3)
	hk.Write32(regOutP, 0x40)
	before := hk.Writes()

	assertCode(t, c.SetState(pin, pins.High), errcode.WriteToInputPin)
	assertRegister(t, hk, regOutP, 0x40)
	if hk.Writes() != before {
		t.Error("failed SetState wrote a register")
	}
}

func TestSetGetState(t *testing.T) {
	c, hk := newTestController(t)

	pin, _ := pins.DigitalPositive(5)
	c.SetDirection(pin, pins.Output)

	if err := c.SetState(pin, pins.High); err != nil {
		t.Fatal(err)
	}
	assertRegister(t, hk, regOutP, 1<<5)
	assertRegister(t, hk, regOutN, 0)

	state, _ := c.GetState(pin)
	if state != pins.High {
		t.Errorf("got %v want High", state)
	}

	c.SetState(pin, pins.Low)
	assertRegister(t, hk, regOutP, 0)
}

func TestLedState(t *testing.T) {
	c, hk := newTestController(t)

	led, _ := pins.Led(7)
	if err := c.SetState(led, pins.High); err != nil {
		t.Fatal(err)
	}
	assertRegister(t, hk, regLED, 0x80)
	assertRegister(t, hk, regOutP, 0)

	state, _ := c.GetState(led)
	if state != pins.High {
		t.Errorf("got %v want High", state)
	}
}

func TestGetStateReadsInputCapture(t *testing.T) {
	c, hk := newTestController(t)

	pin, _ := pins.DigitalNegative(2)
	hk.Write32(regInN, 1<<2)
	hk.Write32(regOutN, 0)

	state, err := c.GetState(pin)
	if err != nil {
		t.Fatal(err)
	}
	if state != pins.High {
		t.Errorf("input pin: got %v want High", state)
	}

	c.SetDirection(pin, pins.Output)
	state, _ = c.GetState(pin)
	if state != pins.Low {
		t.Errorf("output pin: got %v want Low", state)
	}
}

func TestReset(t *testing.T) {
	c, hk := newTestController(t)

	for _, offset := range []uint32{regDirP, regDirN, regOutP, regOutN, regLED} {
		hk.Write32(offset, 0xFF)
	}
	c.SetLoopback(true)

	c.Reset()
	c.Reset()

	if c.Loopback() {
		t.Error("loopback still enabled after Reset")
	}
	for _, pin := range pins.AllLogicalPins() {
		dir, _ := c.GetDirection(pin)
		state, _ := c.GetState(pin)
		if state != pins.Low {
			t.Errorf("%s: state %v after Reset", pin, state)
		}
		if !pin.IsLed() && dir != pins.Input {
			t.Errorf("%s: direction %s after Reset", pin, dir)
		}
	}
}

func TestWholeRegisterAccess(t *testing.T) {
	c, hk := newTestController(t)

	c.SetLEDs(0x1A5)
	assertRegister(t, hk, regLED, 0xA5)
	if c.LEDs() != 0xA5 {
		t.Errorf("got LEDs 0x%02x", c.LEDs())
	}

	if err := c.SetBankDirection(pins.BankNegative, 0x0F); err != nil {
		t.Fatal(err)
	}
	dir, _ := c.BankDirection(pins.BankNegative)
	if dir != 0x0F {
		t.Errorf("got direction 0x%02x want 0x0f", dir)
	}

	c.SetBankState(pins.BankPositive, 0x3C)
	out, _ := c.BankOutput(pins.BankPositive)
	if out != 0x3C {
		t.Errorf("got output 0x%02x want 0x3c", out)
	}

	hk.Write32(regInP, 0x11)
	in, _ := c.BankState(pins.BankPositive)
	if in != 0x11 {
		t.Errorf("got input 0x%02x want 0x11", in)
	}

	_, err := c.BankDirection(pins.BankLED)
	assertCode(t, err, errcode.InvalidPin)
}

func TestIdentity(t *testing.T) {
	c, hk := newTestController(t)

	hk.Write32(regID, 0x00000001)
	hk.Write32(regDNALow, 0x89abcdef)
	hk.Write32(regDNAHigh, 0xff234567)

	if c.ID() != 1 {
		t.Errorf("got id %d", c.ID())
	}
	if want := uint64(0x01234567_89abcdef); c.DNA() != want {
		t.Errorf("got dna 0x%x want 0x%x", c.DNA(), want)
	}
}
