// Package digital drives the LED register and the two expansion banks of
// bidirectional lines in the housekeeping block.
//
// Every bit operation is a read-modify-write of a shared 32-bit register.
// Controller holds no lock; callers touching the same bank from several
// goroutines must serialize the calls themselves.
package digital

import (
	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/drivers"
	"github.com/hubertat/lockbox/errcode"
	"github.com/hubertat/lockbox/pins"
)

type Controller struct {
	hk drivers.Region
}

// New returns a controller over the housekeeping register region.
func New(hk drivers.Region) *Controller {
	return &Controller{hk: hk}
}

func (c *Controller) writeBit(offset uint32, mask uint32, on bool) {
	value := c.hk.Read32(offset) &^ mask
	if on {
		value |= mask
	}
	c.hk.Write32(offset, value)
}

func (c *Controller) readBit(offset uint32, mask uint32) bool {
	return c.hk.Read32(offset)&mask != 0
}

func (c *Controller) SetDirection(pin pins.LogicalPin, dir pins.Direction) error {
	if dir != pins.Input && dir != pins.Output {
		return errors.Wrapf(errcode.InvalidDirection, "%s direction %d", pin, int(dir))
	}
	if pin.IsLed() {
		if dir == pins.Output {
			return nil
		}
		return errors.Wrapf(errcode.InvalidDirection, "%s is output only", pin)
	}

	regs, found := expansionBanks[pin.Bank()]
	if !found {
		return errors.Wrapf(errcode.InvalidPin, "%s has no direction register", pin)
	}
	c.writeBit(regs.direction, pin.Mask(), dir == pins.Output)
	return nil
}

func (c *Controller) GetDirection(pin pins.LogicalPin) (pins.Direction, error) {
	if pin.IsLed() {
		return pins.Output, nil
	}

	regs, found := expansionBanks[pin.Bank()]
	if !found {
		return pins.Input, errors.Wrapf(errcode.InvalidPin, "%s has no direction register", pin)
	}
	if c.readBit(regs.direction, pin.Mask()) {
		return pins.Output, nil
	}
	return pins.Input, nil
}

func (c *Controller) SetState(pin pins.LogicalPin, state pins.State) error {
	dir, err := c.GetDirection(pin)
	if err != nil {
		return err
	}
	if dir == pins.Input {
		return errors.Wrapf(errcode.WriteToInputPin, "%s is configured as input", pin)
	}

	if pin.IsLed() {
		c.writeBit(regLED, pin.Mask(), bool(state))
		return nil
	}
	c.writeBit(expansionBanks[pin.Bank()].output, pin.Mask(), bool(state))
	return nil
}

// GetState reads the output register for LEDs and output lines and the
// input capture register for input lines. With loopback enabled the input
// capture mirrors the outputs; that is done by the FPGA, not here.
func (c *Controller) GetState(pin pins.LogicalPin) (pins.State, error) {
	if pin.IsLed() {
		return pins.State(c.readBit(regLED, pin.Mask())), nil
	}

	dir, err := c.GetDirection(pin)
	if err != nil {
		return pins.Low, err
	}
	regs := expansionBanks[pin.Bank()]
	if dir == pins.Output {
		return pins.State(c.readBit(regs.output, pin.Mask())), nil
	}
	return pins.State(c.readBit(regs.input, pin.Mask())), nil
}

// Reset zeroes directions, outputs and LEDs and disables loopback.
func (c *Controller) Reset() {
	c.hk.Write32(regDirP, 0)
	c.hk.Write32(regDirN, 0)
	c.hk.Write32(regOutP, 0)
	c.hk.Write32(regOutN, 0)
	c.hk.Write32(regLED, 0)
	c.hk.Write32(regDigitalLoop, 0)
}

func (c *Controller) SetLoopback(enable bool) {
	var v uint32
	if enable {
		v = 1
	}
	c.hk.Write32(regDigitalLoop, v)
}

func (c *Controller) Loopback() bool {
	return c.hk.Read32(regDigitalLoop)&0x1 != 0
}

// LEDs returns the whole LED register, bit i = LEDi.
func (c *Controller) LEDs() uint32 {
	return c.hk.Read32(regLED) & bankMask
}

func (c *Controller) SetLEDs(state uint32) {
	c.hk.Write32(regLED, state&bankMask)
}

func (c *Controller) expansion(bank pins.Bank) (bankRegisters, error) {
	regs, found := expansionBanks[bank]
	if !found {
		return regs, errors.Wrapf(errcode.InvalidPin, "%s is not an expansion bank", bank)
	}
	return regs, nil
}

// BankDirection returns the direction word of an expansion bank, bit set =
// output.
func (c *Controller) BankDirection(bank pins.Bank) (uint32, error) {
	regs, err := c.expansion(bank)
	if err != nil {
		return 0, err
	}
	return c.hk.Read32(regs.direction) & bankMask, nil
}

func (c *Controller) SetBankDirection(bank pins.Bank, direction uint32) error {
	regs, err := c.expansion(bank)
	if err != nil {
		return err
	}
	c.hk.Write32(regs.direction, direction&bankMask)
	return nil
}

// BankState returns the input capture word of an expansion bank.
func (c *Controller) BankState(bank pins.Bank) (uint32, error) {
	regs, err := c.expansion(bank)
	if err != nil {
		return 0, err
	}
	return c.hk.Read32(regs.input) & bankMask, nil
}

// BankOutput returns the output word of an expansion bank.
func (c *Controller) BankOutput(bank pins.Bank) (uint32, error) {
	regs, err := c.expansion(bank)
	if err != nil {
		return 0, err
	}
	return c.hk.Read32(regs.output) & bankMask, nil
}

// SetBankState writes the whole output word. Bits of lines configured as
// inputs are written too; the FPGA ignores them.
func (c *Controller) SetBankState(bank pins.Bank, state uint32) error {
	regs, err := c.expansion(bank)
	if err != nil {
		return err
	}
	c.hk.Write32(regs.output, state&bankMask)
	return nil
}

// ID returns the FPGA design identifier.
func (c *Controller) ID() uint32 {
	return c.hk.Read32(regID)
}

// DNA returns the 57-bit device DNA of the FPGA.
func (c *Controller) DNA() uint64 {
	return (uint64(c.hk.Read32(regDNAHigh))<<32 | uint64(c.hk.Read32(regDNALow))) & dnaMask
}
