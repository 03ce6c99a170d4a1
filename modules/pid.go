package modules

import (
	"math"

	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/errcode"
	"github.com/hubertat/lockbox/pins"
)

type paramLimit struct {
	min, max float32
}

var pidLimits = [pidParamCount]paramLimit{
	Setpoint:       {-20, 20},
	Kp:             {0, 4096},
	Ki:             {0, 7812499},
	Kd:             {0, 8191},
	Kii:            {0, math.MaxFloat32},
	Kg:             {0, math.MaxFloat32},
	RelockStepsize: {0, 1e6},
	RelockMin:      {0, 7},
	RelockMax:      {0, 7},
}

type pidState struct {
	values        [pidParamCount]float32
	flags         [pidFlagCount]bool
	relockInput   pins.AnalogPin
	extResetInput pins.LogicalPin
}

func defaultPIDState() pidState {
	s := pidState{
		relockInput:   pins.MustAnalog(pins.AnalogChannels),
		extResetInput: pins.MustLogical(pins.BankWidth),
	}
	s.values[RelockMax] = pidLimits[RelockMax].max
	return s
}

// PIDBank stores the parameters of all PID instances in memory.
type PIDBank struct {
	pids [PIDCount]pidState
}

func NewPIDBank() *PIDBank {
	b := &PIDBank{}
	b.Reset()
	return b
}

// Reset disables every controller and zeroes its parameters. Relock input
// goes back to AIN0 and the external reset input to DIO0_P.
func (b *PIDBank) Reset() {
	for i := range b.pids {
		b.pids[i] = defaultPIDState()
	}
}

func (b *PIDBank) Value(pid int, param PIDParam) (float32, error) {
	if err := checkIndex("pid", pid, PIDCount); err != nil {
		return 0, err
	}
	if param < 0 || param >= pidParamCount {
		return 0, errors.Wrapf(errcode.InvalidParam, "pid parameter %d", int(param))
	}
	return b.pids[pid].values[param], nil
}

func checkPIDValue(pid int, param PIDParam, value float32) error {
	if err := checkIndex("pid", pid, PIDCount); err != nil {
		return err
	}
	if param < 0 || param >= pidParamCount {
		return errors.Wrapf(errcode.InvalidParam, "pid parameter %d", int(param))
	}
	limit := pidLimits[param]
	return checkRange(PIDName(pid)+" "+param.String(), value, limit.min, limit.max)
}

func checkPIDFlag(pid int, flag PIDFlag) error {
	if err := checkIndex("pid", pid, PIDCount); err != nil {
		return err
	}
	if flag < 0 || flag >= pidFlagCount {
		return errors.Wrapf(errcode.InvalidParam, "pid flag %d", int(flag))
	}
	return nil
}

func (b *PIDBank) SetValue(pid int, param PIDParam, value float32) error {
	if err := checkPIDValue(pid, param, value); err != nil {
		return err
	}
	b.pids[pid].values[param] = value
	return nil
}

func (b *PIDBank) Flag(pid int, flag PIDFlag) (bool, error) {
	if err := checkPIDFlag(pid, flag); err != nil {
		return false, err
	}
	return b.pids[pid].flags[flag], nil
}

func (b *PIDBank) SetFlag(pid int, flag PIDFlag, enable bool) error {
	if err := checkPIDFlag(pid, flag); err != nil {
		return err
	}
	b.pids[pid].flags[flag] = enable
	return nil
}

func (b *PIDBank) RelockInput(pid int) (pins.AnalogPin, error) {
	if err := checkIndex("pid", pid, PIDCount); err != nil {
		return pins.AnalogPin{}, err
	}
	return b.pids[pid].relockInput, nil
}

// SetRelockInput accepts analog inputs only.
func (b *PIDBank) SetRelockInput(pid int, pin pins.AnalogPin) error {
	if err := checkIndex("pid", pid, PIDCount); err != nil {
		return err
	}
	if !pin.IsInput() {
		return errors.Wrapf(errcode.InvalidPin, "%s relock input %s is not an analog input", PIDName(pid), pin)
	}
	b.pids[pid].relockInput = pin
	return nil
}

func (b *PIDBank) ExtResetInput(pid int) (pins.LogicalPin, error) {
	if err := checkIndex("pid", pid, PIDCount); err != nil {
		return pins.LogicalPin{}, err
	}
	return b.pids[pid].extResetInput, nil
}

// SetExtResetInput accepts expansion lines only, LEDs cannot drive a reset.
func (b *PIDBank) SetExtResetInput(pid int, pin pins.LogicalPin) error {
	if err := checkIndex("pid", pid, PIDCount); err != nil {
		return err
	}
	if pin.IsLed() {
		return errors.Wrapf(errcode.InvalidPin, "%s external reset input %s is a LED", PIDName(pid), pin)
	}
	b.pids[pid].extResetInput = pin
	return nil
}
