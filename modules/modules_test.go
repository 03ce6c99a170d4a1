package modules

import (
	"errors"
	"math"
	"testing"

	"github.com/hubertat/lockbox/errcode"
	"github.com/hubertat/lockbox/pins"
)

func assertCode(t testing.TB, err error, want errcode.Code) {
	t.Helper()

	if !errors.Is(err, want) {
		t.Errorf("got error %v want %s", err, want)
	}
}

func assertFloats(t testing.TB, got, want float32) {
	t.Helper()

	if got != want {
		t.Errorf("got %g want %g", got, want)
	}
}

var (
	_ PID       = &PIDBank{}
	_ Limiter   = &LimiterBank{}
	_ Generator = &GeneratorBank{}
)

func TestPIDValues(t *testing.T) {
	b := NewPIDBank()

	if err := b.SetValue(0, Setpoint, 25); err == nil {
		t.Error("setpoint above 20 V accepted")
	}
	assertCode(t, b.SetValue(0, Kp, -1), errcode.InvalidParam)
	assertCode(t, b.SetValue(0, Ki, float32(math.NaN())), errcode.InvalidParam)
	assertCode(t, b.SetValue(4, Kp, 1), errcode.InvalidChannel)
	assertCode(t, b.SetValue(-1, Kp, 1), errcode.InvalidChannel)

	got, _ := b.Value(0, Kp)
	assertFloats(t, got, 0)

	if err := b.SetValue(3, Kp, 2.0); err != nil {
		t.Fatal(err)
	}
	got, _ = b.Value(3, Kp)
	assertFloats(t, got, 2.0)

	got, _ = b.Value(2, Kp)
	assertFloats(t, got, 0)
}

func TestPIDFlags(t *testing.T) {
	b := NewPIDBank()

	for f := IntReset; f < pidFlagCount; f++ {
		if err := b.SetFlag(1, f, true); err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		on, _ := b.Flag(1, f)
		if !on {
			t.Errorf("%s not set", f)
		}
	}

	on, _ := b.Flag(0, Enable)
	if on {
		t.Error("pid 0 enabled by a write to pid 1")
	}

	b.Reset()
	on, _ = b.Flag(1, Enable)
	if on {
		t.Error("Reset left pid 1 enabled")
	}
}

func TestPIDInputs(t *testing.T) {
	b := NewPIDBank()

	in, _ := b.RelockInput(0)
	if in.String() != "AIN0" {
		t.Errorf("default relock input %s", in)
	}
	ext, _ := b.ExtResetInput(0)
	if ext.String() != "DIO0_P" {
		t.Errorf("default ext reset input %s", ext)
	}

	assertCode(t, b.SetRelockInput(0, pins.MustAnalog(1)), errcode.InvalidPin)
	assertCode(t, b.SetExtResetInput(0, pins.MustLogical(3)), errcode.InvalidPin)

	if err := b.SetRelockInput(2, pins.MustAnalog(7)); err != nil {
		t.Fatal(err)
	}
	if err := b.SetExtResetInput(2, pins.MustLogical(20)); err != nil {
		t.Fatal(err)
	}
	in, _ = b.RelockInput(2)
	ext, _ = b.ExtResetInput(2)
	if in.ID() != 7 || ext.ID() != 20 {
		t.Errorf("got %s %s", in, ext)
	}
}

func TestLimiter(t *testing.T) {
	b := NewLimiterBank()

	lo, _ := b.Min(1)
	hi, _ := b.Max(1)
	assertFloats(t, lo, -1)
	assertFloats(t, hi, 1)

	assertCode(t, b.SetMin(0, -1.5), errcode.InvalidParam)
	assertCode(t, b.SetMax(2, 0), errcode.InvalidChannel)

	b.SetMin(0, -0.25)
	b.SetMax(0, 0.5)
	lo, _ = b.Min(0)
	hi, _ = b.Max(0)
	assertFloats(t, lo, -0.25)
	assertFloats(t, hi, 0.5)
}

func TestGenerator(t *testing.T) {
	b := NewGeneratorBank()

	freq, _ := b.Frequency(0)
	assertFloats(t, freq, defaultFrequency)

	assertCode(t, b.SetAmplitude(0, 1.5), errcode.InvalidParam)
	assertCode(t, b.SetOffset(1, -2), errcode.InvalidParam)
	assertCode(t, b.SetFrequency(1, 70e6), errcode.InvalidParam)
	assertCode(t, b.SetWaveform(1, Waveform(12)), errcode.InvalidParam)
	assertCode(t, b.Enable(5), errcode.InvalidChannel)

	b.Enable(1)
	b.EnablePhaseOffset(1)
	b.SetFrequency(1, 1000.5)
	b.SetWaveform(1, Triangle)

	on, _ := b.IsEnabled(1)
	poff, _ := b.PhaseOffsetEnabled(1)
	wf, _ := b.Waveform(1)
	freq, _ = b.Frequency(1)
	if !on || !poff || wf != Triangle || freq != 1000.5 {
		t.Errorf("got enabled=%v poffset=%v waveform=%s freq=%g", on, poff, wf, freq)
	}

	b.Disable(1)
	b.DisablePhaseOffset(1)
	on, _ = b.IsEnabled(1)
	poff, _ = b.PhaseOffsetEnabled(1)
	if on || poff {
		t.Error("Disable calls had no effect")
	}
}

func TestParseNames(t *testing.T) {
	wf, err := ParseWaveform("sawd")
	if err != nil || wf != RampDown {
		t.Errorf("got %s, %v", wf, err)
	}
	p, err := ParsePIDParam("KII")
	if err != nil || p != Kii {
		t.Errorf("got %s, %v", p, err)
	}
	f, err := ParsePIDFlag("lso")
	if err != nil || f != LockStatusOutput {
		t.Errorf("got %s, %v", f, err)
	}

	_, err = ParseWaveform("noise")
	assertCode(t, err, errcode.InvalidParam)

	if PIDName(2) != "PID_21" {
		t.Errorf("got %s", PIDName(2))
	}
}
