package modules

import (
	"math"

	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/analog"
	"github.com/hubertat/lockbox/drivers"
	"github.com/hubertat/lockbox/errcode"
	"github.com/hubertat/lockbox/pins"
)

// PID block register offsets. Every parameter is an array of four words,
// one per instance in PIDName order.
const (
	regPIDConf        = uint32(0x00)
	regPIDSetpoint    = uint32(0x10)
	regPIDKp          = uint32(0x20)
	regPIDKi          = uint32(0x30)
	regPIDKd          = uint32(0x40)
	regRelockMin      = uint32(0x50)
	regRelockMax      = uint32(0x60)
	regRelockStepsize = uint32(0x70)
	regRelockInput    = uint32(0x80)

	confMask        = uint32(0xFFFFF)
	setpointMask    = uint32(0x3FFF)
	gainMask        = uint32(0xFFFFFF)
	kdMask          = uint32(0x3FFF)
	relockMask      = uint32(0xFFF)
	relockInputMask = uint32(0x3)

	setpointBits      = 14
	setpointFullScale = 1.0 // V
	setpointMaxCount  = 1<<(setpointBits-1) - 1

	kpShift       = 12
	kiShift       = 28
	stepsizeShift = 18
	pidTimestep   = 8e-9     // s per FPGA clock
	dacCount      = 1.221e-4 // V per DAC count
)

// Flag f of instance i is bit 4*f+i of the conf word.
var confFlags = map[PIDFlag]uint32{
	IntReset:        0,
	Inverted:        1,
	ResetWhenRailed: 2,
	Hold:            3,
	Relock:          4,
}

type registerCodec struct {
	offset uint32
	mask   uint32
	encode func(v float64) uint32
	decode func(raw uint32) float64
}

// scaled stores round(v*scale), saturated at the field mask.
func scaled(offset, mask uint32, scale float64) registerCodec {
	return registerCodec{
		offset: offset,
		mask:   mask,
		encode: func(v float64) uint32 {
			n := math.Round(v * scale)
			if n > float64(mask) {
				return mask
			}
			return uint32(n)
		},
		decode: func(raw uint32) float64 { return float64(raw) / scale },
	}
}

// relockLevel stores a voltage as an analog input code.
func relockLevel(offset uint32) registerCodec {
	return registerCodec{
		offset: offset,
		mask:   relockMask,
		encode: func(v float64) uint32 {
			raw, _ := analog.VoltageToRaw(v, pins.AnalogInput)
			return raw
		},
		decode: func(raw uint32) float64 { return analog.RawToVoltage(raw, pins.AnalogInput) },
	}
}

var pidCodecs = map[PIDParam]registerCodec{
	Setpoint: {
		offset: regPIDSetpoint,
		mask:   setpointMask,
		encode: func(v float64) uint32 {
			return uint32(int32(math.Round(v/setpointFullScale*setpointMaxCount))) & setpointMask
		},
		decode: func(raw uint32) float64 {
			counts := int32(raw<<(32-setpointBits)) >> (32 - setpointBits)
			return float64(counts) / setpointMaxCount * setpointFullScale
		},
	},
	Kp:             scaled(regPIDKp, gainMask, 1<<kpShift),
	Ki:             scaled(regPIDKi, gainMask, (1<<kiShift)*pidTimestep),
	Kd:             scaled(regPIDKd, kdMask, 1),
	RelockStepsize: scaled(regRelockStepsize, gainMask, (1<<stepsizeShift)*pidTimestep/dacCount),
	RelockMin:      relockLevel(regRelockMin),
	RelockMax:      relockLevel(regRelockMax),
}

// PIDRegisters drives the PID block of the FPGA. Setpoint, gains, relock
// window, stepsize, relock input and the conf flags live in registers and
// read back quantized to the register resolution. Parameters the block has
// no register for are kept in memory.
type PIDRegisters struct {
	regs drivers.Region
	soft *PIDBank
}

func NewPIDRegisters(regs drivers.Region) *PIDRegisters {
	return &PIDRegisters{regs: regs, soft: NewPIDBank()}
}

func word(offset uint32, pid int) uint32 {
	return offset + 4*uint32(pid)
}

func (p *PIDRegisters) writeField(offset, mask, value uint32) {
	p.regs.Write32(offset, p.regs.Read32(offset)&^mask|value&mask)
}

// Reset zeroes every register except the relock maximum, which goes to the
// top of the input range.
func (p *PIDRegisters) Reset() {
	p.regs.Write32(regPIDConf, 0)
	for pid := 0; pid < PIDCount; pid++ {
		for _, codec := range pidCodecs {
			p.regs.Write32(word(codec.offset, pid), 0)
		}
		p.regs.Write32(word(regRelockMax, pid), relockMask)
		p.regs.Write32(word(regRelockInput, pid), 0)
	}
	p.soft.Reset()
}

func (p *PIDRegisters) Value(pid int, param PIDParam) (float32, error) {
	codec, found := pidCodecs[param]
	if !found {
		return p.soft.Value(pid, param)
	}
	if err := checkIndex("pid", pid, PIDCount); err != nil {
		return 0, err
	}
	return float32(codec.decode(p.regs.Read32(word(codec.offset, pid)) & codec.mask)), nil
}

// SetValue validates against the parameter limits. The setpoint is also
// bounded by the register's full scale of ±1 V.
func (p *PIDRegisters) SetValue(pid int, param PIDParam, value float32) error {
	codec, found := pidCodecs[param]
	if !found {
		return p.soft.SetValue(pid, param, value)
	}
	if err := checkPIDValue(pid, param, value); err != nil {
		return err
	}
	if param == Setpoint {
		if err := checkRange(PIDName(pid)+" setpoint", value, -setpointFullScale, setpointFullScale); err != nil {
			return err
		}
	}
	p.writeField(word(codec.offset, pid), codec.mask, codec.encode(float64(value)))
	return nil
}

func (p *PIDRegisters) Flag(pid int, flag PIDFlag) (bool, error) {
	group, found := confFlags[flag]
	if !found {
		return p.soft.Flag(pid, flag)
	}
	if err := checkPIDFlag(pid, flag); err != nil {
		return false, err
	}
	return p.regs.Read32(regPIDConf)&(1<<(4*group+uint32(pid))) != 0, nil
}

func (p *PIDRegisters) SetFlag(pid int, flag PIDFlag, enable bool) error {
	group, found := confFlags[flag]
	if !found {
		return p.soft.SetFlag(pid, flag, enable)
	}
	if err := checkPIDFlag(pid, flag); err != nil {
		return err
	}

	bit := uint32(1) << (4*group + uint32(pid))
	conf := p.regs.Read32(regPIDConf) &^ bit
	if enable {
		conf |= bit
	}
	p.regs.Write32(regPIDConf, conf&confMask)
	return nil
}

func (p *PIDRegisters) RelockInput(pid int) (pins.AnalogPin, error) {
	if err := checkIndex("pid", pid, PIDCount); err != nil {
		return pins.AnalogPin{}, err
	}
	return pins.AnalogIn(int(p.regs.Read32(word(regRelockInput, pid)) & relockInputMask))
}

func (p *PIDRegisters) SetRelockInput(pid int, pin pins.AnalogPin) error {
	if err := checkIndex("pid", pid, PIDCount); err != nil {
		return err
	}
	if !pin.IsInput() {
		return errors.Wrapf(errcode.InvalidPin, "%s relock input %s is not an analog input", PIDName(pid), pin)
	}
	p.writeField(word(regRelockInput, pid), relockInputMask, uint32(pin.Index()))
	return nil
}

func (p *PIDRegisters) ExtResetInput(pid int) (pins.LogicalPin, error) {
	return p.soft.ExtResetInput(pid)
}

func (p *PIDRegisters) SetExtResetInput(pid int, pin pins.LogicalPin) error {
	return p.soft.SetExtResetInput(pid, pin)
}
