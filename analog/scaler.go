// Package analog converts between raw codes and voltages for the slow analog
// outputs and inputs of the analog-mixed-signals block.
package analog

import (
	"math"

	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/drivers"
	"github.com/hubertat/lockbox/errcode"
	"github.com/hubertat/lockbox/pins"
)

// Range is the voltage span of a bank.
type Range struct {
	Min float64
	Max float64
}

type bankSpec struct {
	rng    Range
	maxRaw uint32

	base  uint32 // offset of channel 0 word
	shift uint32
	mask  uint32
}

// truncation tolerance so that raw -> V -> raw is exact
const epsilon = 1e-9

var banks = map[pins.AnalogBank]bankSpec{
	pins.AnalogOutput: {rng: Range{0.0, 1.8}, maxRaw: 156, base: 0x20, shift: 16, mask: 0xFF},
	pins.AnalogInput:  {rng: Range{0.0, 7.0}, maxRaw: 0xFFF, base: 0x00, shift: 0, mask: 0xFFF},
}

func (b bankSpec) register(pin pins.AnalogPin) uint32 {
	return b.base + uint32(pin.Index())*4
}

// MaxRaw is the largest code accepted by the bank.
func MaxRaw(bank pins.AnalogBank) uint32 {
	return banks[bank].maxRaw
}

func RawToVoltage(raw uint32, bank pins.AnalogBank) float64 {
	b := banks[bank]
	return float64(raw)/float64(b.maxRaw)*(b.rng.Max-b.rng.Min) + b.rng.Min
}

// VoltageToRaw truncates to the code at or below v.
func VoltageToRaw(v float64, bank pins.AnalogBank) (uint32, error) {
	b := banks[bank]
	x := math.Floor((v-b.rng.Min)/(b.rng.Max-b.rng.Min)*float64(b.maxRaw) + epsilon)
	if math.IsNaN(x) || x < 0 || x > float64(b.maxRaw) {
		return 0, errors.Wrapf(errcode.OutOfRange, "%.4f V outside %s range %.1f..%.1f V", v, bank, b.rng.Min, b.rng.Max)
	}
	return uint32(x), nil
}

// Scaler reads and writes analog channels. It holds no lock.
type Scaler struct {
	ams drivers.Region
}

func New(ams drivers.Region) *Scaler {
	return &Scaler{ams: ams}
}

func (s *Scaler) GetRange(pin pins.AnalogPin) Range {
	return banks[pin.Bank()].rng
}

func (s *Scaler) GetValueRaw(pin pins.AnalogPin) (uint32, error) {
	b, found := banks[pin.Bank()]
	if !found {
		return 0, errors.Wrapf(errcode.InvalidPin, "unknown analog bank of %s", pin)
	}
	return (s.ams.Read32(b.register(pin)) >> b.shift) & b.mask, nil
}

func (s *Scaler) GetValue(pin pins.AnalogPin) (float64, error) {
	raw, err := s.GetValueRaw(pin)
	if err != nil {
		return 0, err
	}
	return RawToVoltage(raw, pin.Bank()), nil
}

func (s *Scaler) SetValueRaw(pin pins.AnalogPin, raw uint32) error {
	if pin.IsInput() {
		return errors.Wrapf(errcode.InvalidPin, "%s is read only", pin)
	}
	b := banks[pin.Bank()]
	if raw > b.maxRaw {
		return errors.Wrapf(errcode.OutOfRange, "%s raw %d above %d", pin, raw, b.maxRaw)
	}
	s.ams.Write32(b.register(pin), (raw&b.mask)<<b.shift)
	return nil
}

func (s *Scaler) SetValue(pin pins.AnalogPin, v float64) error {
	if pin.IsInput() {
		return errors.Wrapf(errcode.InvalidPin, "%s is read only", pin)
	}
	raw, err := VoltageToRaw(v, pin.Bank())
	if err != nil {
		return errors.Wrapf(err, "set %s", pin)
	}
	return s.SetValueRaw(pin, raw)
}

// Reset drives every output to 0 V.
func (s *Scaler) Reset() {
	b := banks[pins.AnalogOutput]
	for i := 0; i < pins.AnalogChannels; i++ {
		pin, _ := pins.AnalogOut(i)
		s.ams.Write32(b.register(pin), 0)
	}
}
