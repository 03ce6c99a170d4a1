// Package snapshot saves the whole PID, limiter and generator parameter set
// to one binary file and restores it.
//
// Save and Load share one file and are not safe to run concurrently; the
// caller serializes them.
package snapshot

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/errcode"
	"github.com/hubertat/lockbox/modules"
	"github.com/hubertat/lockbox/pins"
)

const DefaultPath = "/opt/redpitaya/lockbox.conf"

// CreateTemp makes 0600 files; the saved config is world readable.
const configFileMode = 0644

type Snapshot struct {
	Path string

	PID       modules.PID
	Limiter   modules.Limiter
	Generator modules.Generator

	logger *log.Logger
}

func New(path string, pid modules.PID, limiter modules.Limiter, generator modules.Generator) *Snapshot {
	if len(path) == 0 {
		path = DefaultPath
	}
	return &Snapshot{
		Path:      path,
		PID:       pid,
		Limiter:   limiter,
		Generator: generator,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "Snapshot 💾: ",
			Level:  log.GetLevel(),
		}),
	}
}

func (s *Snapshot) log() *log.Logger {
	if s.logger == nil {
		return log.Default()
	}
	return s.logger
}

// firstErr keeps the first error of a sequence of calls.
type firstErr struct {
	err error
}

func (f *firstErr) check(err error) {
	if f.err == nil && err != nil {
		f.err = err
	}
}

func (f *firstErr) float(v float32, err error) float32 {
	f.check(err)
	return v
}

func (f *firstErr) bool(v bool, err error) bool {
	f.check(err)
	return v
}

func (s *Snapshot) capturePID(i int) (b PIDBlock, err error) {
	f := &firstErr{}
	value := func(p modules.PIDParam) float32 { return f.float(s.PID.Value(i, p)) }
	flag := func(fl modules.PIDFlag) bool { return f.bool(s.PID.Flag(i, fl)) }

	b.Setpoint = value(modules.Setpoint)
	b.Kp = value(modules.Kp)
	b.Ki = value(modules.Ki)
	b.Kd = value(modules.Kd)
	b.Kii = value(modules.Kii)
	b.Kg = value(modules.Kg)
	b.IntReset = flag(modules.IntReset)
	b.Inverted = flag(modules.Inverted)
	b.ResetWhenRailed = flag(modules.ResetWhenRailed)
	b.Hold = flag(modules.Hold)
	b.Relock = flag(modules.Relock)
	b.Enable = flag(modules.Enable)
	b.RelockStepsize = value(modules.RelockStepsize)
	b.RelockMin = value(modules.RelockMin)
	b.RelockMax = value(modules.RelockMax)

	relockInput, err := s.PID.RelockInput(i)
	f.check(err)
	b.RelockInput = int32(relockInput.ID())

	b.LockStatusOut = flag(modules.LockStatusOutput)
	b.ExtResetEnable = flag(modules.ExtReset)

	extResetInput, err := s.PID.ExtResetInput(i)
	f.check(err)
	b.ExtResetInput = int32(extResetInput.ID())

	return b, errors.Wrapf(f.err, "capture %s", modules.PIDName(i))
}

func (s *Snapshot) captureChannel(ch int) (b ChannelBlock, err error) {
	f := &firstErr{}

	b.LimitMin = f.float(s.Limiter.Min(ch))
	b.LimitMax = f.float(s.Limiter.Max(ch))
	b.GenEnabled = f.bool(s.Generator.IsEnabled(ch))
	b.GenPhaseOffsetEnabled = f.bool(s.Generator.PhaseOffsetEnabled(ch))
	b.GenAmplitude = f.float(s.Generator.Amplitude(ch))
	b.GenOffset = f.float(s.Generator.Offset(ch))
	b.GenFrequency = f.float(s.Generator.Frequency(ch))

	waveform, err := s.Generator.Waveform(ch)
	f.check(err)
	b.GenWaveform = int32(waveform)

	return b, errors.Wrapf(f.err, "capture channel %d", ch)
}

// Capture reads every parameter through the module getters, PIDs first.
func (s *Snapshot) Capture() (rec ConfigRecord, err error) {
	rec.Version = ConfigVersion
	for i := range rec.PID {
		if rec.PID[i], err = s.capturePID(i); err != nil {
			return
		}
	}
	for ch := range rec.Channel {
		if rec.Channel[ch], err = s.captureChannel(ch); err != nil {
			return
		}
	}
	return
}

func (s *Snapshot) applyPID(i int, b PIDBlock) error {
	f := &firstErr{}
	value := func(p modules.PIDParam, v float32) {
		if f.err == nil {
			f.check(s.PID.SetValue(i, p, v))
		}
	}
	flag := func(fl modules.PIDFlag, on bool) {
		if f.err == nil {
			f.check(s.PID.SetFlag(i, fl, on))
		}
	}

	value(modules.Setpoint, b.Setpoint)
	value(modules.Kp, b.Kp)
	value(modules.Ki, b.Ki)
	value(modules.Kd, b.Kd)
	value(modules.Kii, b.Kii)
	value(modules.Kg, b.Kg)
	flag(modules.IntReset, b.IntReset)
	flag(modules.Inverted, b.Inverted)
	flag(modules.ResetWhenRailed, b.ResetWhenRailed)
	flag(modules.Hold, b.Hold)
	flag(modules.Relock, b.Relock)
	flag(modules.Enable, b.Enable)
	value(modules.RelockStepsize, b.RelockStepsize)
	value(modules.RelockMin, b.RelockMin)
	value(modules.RelockMax, b.RelockMax)
	if f.err == nil {
		relockInput, err := pins.AnalogPinFromID(int(b.RelockInput))
		f.check(err)
		if err == nil {
			f.check(s.PID.SetRelockInput(i, relockInput))
		}
	}
	flag(modules.LockStatusOutput, b.LockStatusOut)
	flag(modules.ExtReset, b.ExtResetEnable)
	if f.err == nil {
		extResetInput, err := pins.LogicalPinFromID(int(b.ExtResetInput))
		f.check(err)
		if err == nil {
			f.check(s.PID.SetExtResetInput(i, extResetInput))
		}
	}

	return errors.Wrapf(f.err, "apply %s", modules.PIDName(i))
}

func (s *Snapshot) applyChannel(ch int, b ChannelBlock) error {
	steps := []func() error{
		func() error { return s.Limiter.SetMin(ch, b.LimitMin) },
		func() error { return s.Limiter.SetMax(ch, b.LimitMax) },
		func() error {
			if b.GenEnabled {
				return s.Generator.Enable(ch)
			}
			return s.Generator.Disable(ch)
		},
		func() error {
			if b.GenPhaseOffsetEnabled {
				return s.Generator.EnablePhaseOffset(ch)
			}
			return s.Generator.DisablePhaseOffset(ch)
		},
		func() error { return s.Generator.SetAmplitude(ch, b.GenAmplitude) },
		func() error { return s.Generator.SetOffset(ch, b.GenOffset) },
		func() error { return s.Generator.SetFrequency(ch, b.GenFrequency) },
		func() error { return s.Generator.SetWaveform(ch, modules.Waveform(b.GenWaveform)) },
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return errors.Wrapf(err, "apply channel %d", ch)
		}
	}
	return nil
}

// Apply writes every field of rec through the module setters in Capture
// order and stops at the first failure.
func (s *Snapshot) Apply(rec ConfigRecord) error {
	for i, b := range rec.PID {
		if err := s.applyPID(i, b); err != nil {
			return err
		}
	}
	for ch, b := range rec.Channel {
		if err := s.applyChannel(ch, b); err != nil {
			return err
		}
	}
	return nil
}

// Save captures the current parameters and replaces the file at Path. The
// record goes to a temporary file in the same directory first, so a crash
// leaves either the old or the new file, never a torn one.
func (s *Snapshot) Save() error {
	rec, err := s.Capture()
	if err != nil {
		return err
	}
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(errcode.WriteConfigFileFailed, "create temp file next to %s: %v", s.Path, err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(configFileMode)
	}
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, s.Path)
	}
	if err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(errcode.WriteConfigFileFailed, "write %s: %v", s.Path, err)
	}

	s.log().Info("config saved", "path", s.Path, "version", rec.Version)
	return nil
}

// ReadRecord reads and decodes the record stored at path without applying
// it.
func ReadRecord(path string) (rec ConfigRecord, err error) {
	file, err := os.Open(path)
	if err != nil {
		err = errors.Wrapf(errcode.OpenConfigFileFailed, "%v", err)
		return
	}
	defer file.Close()

	data := make([]byte, RecordSize)
	n, err := io.ReadFull(file, data)
	switch {
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		err = errors.Wrapf(errcode.CorruptConfig, "%s holds %d bytes, want %d", path, n, RecordSize)
		return
	case err != nil:
		err = errors.Wrapf(errcode.OpenConfigFileFailed, "read %s: %v", path, err)
		return
	}

	err = rec.UnmarshalBinary(data)
	return
}

// Validate checks that rec carries this build's version and that every pin
// id and waveform in it decodes.
func Validate(rec ConfigRecord) error {
	if rec.Version != ConfigVersion {
		return errors.Wrapf(errcode.IncompatibleConfigVersion, "stored version %d, running %d", rec.Version, ConfigVersion)
	}
	for i, b := range rec.PID {
		if _, err := pins.AnalogPinFromID(int(b.RelockInput)); err != nil {
			return errors.Wrapf(errcode.CorruptConfig, "%s relock input %d", modules.PIDName(i), b.RelockInput)
		}
		if _, err := pins.LogicalPinFromID(int(b.ExtResetInput)); err != nil {
			return errors.Wrapf(errcode.CorruptConfig, "%s external reset input %d", modules.PIDName(i), b.ExtResetInput)
		}
	}
	for ch, b := range rec.Channel {
		if !modules.Waveform(b.GenWaveform).Valid() {
			return errors.Wrapf(errcode.CorruptConfig, "channel %d waveform %d", ch, b.GenWaveform)
		}
	}
	return nil
}

// Load restores the parameters stored at Path. Nothing is applied unless
// the record reads fully and validates. If a setter rejects a stored value
// the parameters captured before Load are put back.
func (s *Snapshot) Load() error {
	rec, err := ReadRecord(s.Path)
	if err != nil {
		return err
	}
	if err = Validate(rec); err != nil {
		return err
	}

	previous, err := s.Capture()
	if err != nil {
		return err
	}

	if err = s.Apply(rec); err != nil {
		if rollbackErr := s.Apply(previous); rollbackErr != nil {
			s.log().Error("rollback after failed load", "err", rollbackErr)
		}
		return err
	}

	s.log().Info("config loaded", "path", s.Path, "version", rec.Version)
	return nil
}
