// Package modules holds the parameter contracts of the PID, limiter and
// generator blocks, and in-memory banks implementing them.
//
// Setters validate first and fail with errcode.InvalidParam or
// errcode.InvalidChannel without touching stored state. Getters only fail
// on an out of range instance index.
package modules

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/errcode"
	"github.com/hubertat/lockbox/pins"
)

const (
	PIDCount = 4
	Channels = 2
)

type PIDParam int

const (
	Setpoint PIDParam = iota
	Kp
	Ki
	Kd
	Kii
	Kg
	RelockStepsize
	RelockMin
	RelockMax

	pidParamCount
)

var pidParamNames = [pidParamCount]string{"setpoint", "kp", "ki", "kd", "kii", "kg", "stepsize", "min", "max"}

func (p PIDParam) String() string {
	if p < 0 || p >= pidParamCount {
		return fmt.Sprintf("PIDParam(%d)", int(p))
	}
	return pidParamNames[p]
}

func ParsePIDParam(s string) (PIDParam, error) {
	for i, name := range pidParamNames {
		if strings.EqualFold(s, name) {
			return PIDParam(i), nil
		}
	}
	return 0, errors.Wrapf(errcode.InvalidParam, "unknown pid parameter %q", s)
}

type PIDFlag int

const (
	IntReset PIDFlag = iota
	Inverted
	ResetWhenRailed
	Hold
	Relock
	Enable
	LockStatusOutput
	ExtReset

	pidFlagCount
)

var pidFlagNames = [pidFlagCount]string{"int_reset", "inverted", "reset_when_railed", "hold", "relock", "enable", "lso", "ext_reset"}

func (f PIDFlag) String() string {
	if f < 0 || f >= pidFlagCount {
		return fmt.Sprintf("PIDFlag(%d)", int(f))
	}
	return pidFlagNames[f]
}

func ParsePIDFlag(s string) (PIDFlag, error) {
	for i, name := range pidFlagNames {
		if strings.EqualFold(s, name) {
			return PIDFlag(i), nil
		}
	}
	return 0, errors.Wrapf(errcode.InvalidParam, "unknown pid flag %q", s)
}

// PIDName gives the hardware name of a PID instance: PID_11, PID_12,
// PID_21, PID_22 (input, output).
func PIDName(pid int) string {
	return fmt.Sprintf("PID_%d%d", pid/2+1, pid%2+1)
}

type Waveform int32

const (
	Sine Waveform = iota
	Square
	Triangle
	RampUp
	RampDown
	DC
	PWM
	Arbitrary

	waveformCount
)

var waveformNames = [waveformCount]string{"SINE", "SQUARE", "TRIANGLE", "SAWU", "SAWD", "DC", "PWM", "ARBITRARY"}

func (w Waveform) Valid() bool {
	return w >= 0 && w < waveformCount
}

func (w Waveform) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Waveform(%d)", int32(w))
	}
	return waveformNames[w]
}

func ParseWaveform(s string) (Waveform, error) {
	for i, name := range waveformNames {
		if strings.EqualFold(s, name) {
			return Waveform(i), nil
		}
	}
	return 0, errors.Wrapf(errcode.InvalidParam, "unknown waveform %q", s)
}

// PID is the contract of the four PID controllers.
type PID interface {
	Value(pid int, param PIDParam) (float32, error)
	SetValue(pid int, param PIDParam, value float32) error
	Flag(pid int, flag PIDFlag) (bool, error)
	SetFlag(pid int, flag PIDFlag, enable bool) error
	RelockInput(pid int) (pins.AnalogPin, error)
	SetRelockInput(pid int, pin pins.AnalogPin) error
	ExtResetInput(pid int) (pins.LogicalPin, error)
	SetExtResetInput(pid int, pin pins.LogicalPin) error
}

// Limiter clamps each output channel.
type Limiter interface {
	Min(channel int) (float32, error)
	SetMin(channel int, value float32) error
	Max(channel int) (float32, error)
	SetMax(channel int, value float32) error
}

type Generator interface {
	IsEnabled(channel int) (bool, error)
	Enable(channel int) error
	Disable(channel int) error
	PhaseOffsetEnabled(channel int) (bool, error)
	EnablePhaseOffset(channel int) error
	DisablePhaseOffset(channel int) error
	Amplitude(channel int) (float32, error)
	SetAmplitude(channel int, value float32) error
	Offset(channel int) (float32, error)
	SetOffset(channel int, value float32) error
	Frequency(channel int) (float32, error)
	SetFrequency(channel int, value float32) error
	Waveform(channel int) (Waveform, error)
	SetWaveform(channel int, waveform Waveform) error
}

func checkIndex(kind string, i, count int) error {
	if i < 0 || i >= count {
		return errors.Wrapf(errcode.InvalidChannel, "%s %d outside 0..%d", kind, i, count-1)
	}
	return nil
}

func checkRange(name string, v, min, max float32) error {
	if v != v || v < min || v > max {
		return errors.Wrapf(errcode.InvalidParam, "%s %g outside %g..%g", name, v, min, max)
	}
	return nil
}
