// Package pins maps the board's flat pin numbering onto banks and bit
// offsets. A LogicalPin or AnalogPin can only be obtained through the
// constructors in this package, so every value held by a caller refers to
// an existing bit of an existing bank.
package pins

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/errcode"
)

// BankWidth is the number of lines in each digital bank and in the LED bank.
const BankWidth = 8

// Bank identifies a group of same-purpose digital registers.
type Bank int

const (
	BankLED Bank = iota
	BankPositive
	BankNegative
)

func (b Bank) String() string {
	switch b {
	case BankLED:
		return "LED"
	case BankPositive:
		return "DIO_P"
	case BankNegative:
		return "DIO_N"
	}
	return fmt.Sprintf("Bank(%d)", int(b))
}

// Direction is the register bit value of a line direction.
type Direction uint32

const (
	Input  Direction = 0
	Output Direction = 1
)

func (d Direction) String() string {
	if d == Output {
		return "out"
	}
	return "in"
}

// ParseDirection accepts "in"/"input" and "out"/"output".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "in", "input", "0":
		return Input, nil
	case "out", "output", "1":
		return Output, nil
	}
	return Input, errors.Wrapf(errcode.InvalidDirection, "unknown direction %q", s)
}

// State is a logic level.
type State bool

const (
	Low  State = false
	High State = true
)

func (s State) Bit() uint32 {
	if s {
		return 1
	}
	return 0
}

// LogicalPin is one of Led(i), DigitalPositive(i) or DigitalNegative(i).
// The zero value is LED0.
type LogicalPin struct {
	bank  Bank
	index uint8
}

// Led returns LED pin i.
func Led(i int) (LogicalPin, error) {
	return newLogical(BankLED, i)
}

// DigitalPositive returns line i of the positive expansion bank.
func DigitalPositive(i int) (LogicalPin, error) {
	return newLogical(BankPositive, i)
}

// DigitalNegative returns line i of the negative expansion bank.
func DigitalNegative(i int) (LogicalPin, error) {
	return newLogical(BankNegative, i)
}

func newLogical(bank Bank, i int) (LogicalPin, error) {
	if i < 0 || i >= BankWidth {
		return LogicalPin{}, errors.Wrapf(errcode.InvalidPin, "%s index %d outside 0..%d", bank, i, BankWidth-1)
	}
	return LogicalPin{bank: bank, index: uint8(i)}, nil
}

// LogicalPinFromID resolves a flat id: LED0..7 = 0..7, DIO0_P..DIO7_P =
// 8..15, DIO0_N..DIO7_N = 16..23.
func LogicalPinFromID(id int) (LogicalPin, error) {
	if id < 0 || id >= 3*BankWidth {
		return LogicalPin{}, errors.Wrapf(errcode.InvalidPin, "digital pin id %d", id)
	}
	return LogicalPin{bank: Bank(id / BankWidth), index: uint8(id % BankWidth)}, nil
}

// MustLogical panics on an invalid id. For tables and tests.
func MustLogical(id int) LogicalPin {
	p, err := LogicalPinFromID(id)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseLogicalPin accepts a flat id ("11") or a name ("LED2", "DIO3_P",
// "dio0_n").
func ParseLogicalPin(s string) (LogicalPin, error) {
	if id, err := strconv.Atoi(s); err == nil {
		return LogicalPinFromID(id)
	}

	name := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(name, "LED"):
		i, err := strconv.Atoi(strings.TrimPrefix(name, "LED"))
		if err != nil {
			return LogicalPin{}, errors.Wrapf(errcode.InvalidPin, "bad pin name %q", s)
		}
		return Led(i)
	case strings.HasPrefix(name, "DIO") && strings.HasSuffix(name, "_P"):
		i, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "DIO"), "_P"))
		if err != nil {
			return LogicalPin{}, errors.Wrapf(errcode.InvalidPin, "bad pin name %q", s)
		}
		return DigitalPositive(i)
	case strings.HasPrefix(name, "DIO") && strings.HasSuffix(name, "_N"):
		i, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "DIO"), "_N"))
		if err != nil {
			return LogicalPin{}, errors.Wrapf(errcode.InvalidPin, "bad pin name %q", s)
		}
		return DigitalNegative(i)
	}

	return LogicalPin{}, errors.Wrapf(errcode.InvalidPin, "bad pin name %q", s)
}

func (p LogicalPin) Bank() Bank   { return p.bank }
func (p LogicalPin) Offset() uint { return uint(p.index) }
func (p LogicalPin) IsLed() bool  { return p.bank == BankLED }

// Mask is the single-bit mask of the pin inside its bank registers.
func (p LogicalPin) Mask() uint32 { return 1 << p.index }

// ID is the flat id of the pin.
func (p LogicalPin) ID() int { return int(p.bank)*BankWidth + int(p.index) }

func (p LogicalPin) String() string {
	switch p.bank {
	case BankPositive:
		return fmt.Sprintf("DIO%d_P", p.index)
	case BankNegative:
		return fmt.Sprintf("DIO%d_N", p.index)
	}
	return fmt.Sprintf("LED%d", p.index)
}

// AllLogicalPins lists every pin in flat id order.
func AllLogicalPins() []LogicalPin {
	all := make([]LogicalPin, 0, 3*BankWidth)
	for id := 0; id < 3*BankWidth; id++ {
		all = append(all, MustLogical(id))
	}
	return all
}

// AnalogChannels is the number of channels in each analog bank.
const AnalogChannels = 4

// AnalogBank selects the slow analog output or input bank.
type AnalogBank int

const (
	AnalogOutput AnalogBank = iota
	AnalogInput
)

func (b AnalogBank) String() string {
	if b == AnalogInput {
		return "AIN"
	}
	return "AOUT"
}

// AnalogPin is Output(0..3) or Input(0..3).
type AnalogPin struct {
	bank  AnalogBank
	index uint8
}

func AnalogOut(i int) (AnalogPin, error) { return newAnalog(AnalogOutput, i) }
func AnalogIn(i int) (AnalogPin, error)  { return newAnalog(AnalogInput, i) }

func newAnalog(bank AnalogBank, i int) (AnalogPin, error) {
	if i < 0 || i >= AnalogChannels {
		return AnalogPin{}, errors.Wrapf(errcode.InvalidPin, "%s index %d outside 0..%d", bank, i, AnalogChannels-1)
	}
	return AnalogPin{bank: bank, index: uint8(i)}, nil
}

// AnalogPinFromID resolves AOUT0..3 = 0..3, AIN0..3 = 4..7.
func AnalogPinFromID(id int) (AnalogPin, error) {
	if id < 0 || id >= 2*AnalogChannels {
		return AnalogPin{}, errors.Wrapf(errcode.InvalidPin, "analog pin id %d", id)
	}
	return AnalogPin{bank: AnalogBank(id / AnalogChannels), index: uint8(id % AnalogChannels)}, nil
}

// MustAnalog panics on an invalid id.
func MustAnalog(id int) AnalogPin {
	p, err := AnalogPinFromID(id)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseAnalogPin accepts a flat id or a name ("AOUT1", "ain3").
func ParseAnalogPin(s string) (AnalogPin, error) {
	if id, err := strconv.Atoi(s); err == nil {
		return AnalogPinFromID(id)
	}

	name := strings.ToUpper(strings.TrimSpace(s))
	var (
		i   int
		err error
	)
	switch {
	case strings.HasPrefix(name, "AOUT"):
		if i, err = strconv.Atoi(strings.TrimPrefix(name, "AOUT")); err == nil {
			return AnalogOut(i)
		}
	case strings.HasPrefix(name, "AIN"):
		if i, err = strconv.Atoi(strings.TrimPrefix(name, "AIN")); err == nil {
			return AnalogIn(i)
		}
	}
	return AnalogPin{}, errors.Wrapf(errcode.InvalidPin, "bad analog pin name %q", s)
}

func (p AnalogPin) Bank() AnalogBank { return p.bank }
func (p AnalogPin) Index() int       { return int(p.index) }
func (p AnalogPin) IsInput() bool    { return p.bank == AnalogInput }
func (p AnalogPin) ID() int          { return int(p.bank)*AnalogChannels + int(p.index) }

func (p AnalogPin) String() string {
	return fmt.Sprintf("%s%d", p.bank, p.index)
}
