package modules

import (
	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/errcode"
)

const (
	MaxFrequency = 62.5e6

	defaultFrequency = 1000
)

// LimiterBank keeps the output clamp of each channel, in volts of full
// scale (-1..1).
type LimiterBank struct {
	min [Channels]float32
	max [Channels]float32
}

func NewLimiterBank() *LimiterBank {
	b := &LimiterBank{}
	b.Reset()
	return b
}

// Reset opens every clamp to the full -1..1 span.
func (b *LimiterBank) Reset() {
	for ch := 0; ch < Channels; ch++ {
		b.min[ch] = -1
		b.max[ch] = 1
	}
}

func (b *LimiterBank) Min(channel int) (float32, error) {
	if err := checkIndex("channel", channel, Channels); err != nil {
		return 0, err
	}
	return b.min[channel], nil
}

func (b *LimiterBank) SetMin(channel int, value float32) error {
	if err := checkIndex("channel", channel, Channels); err != nil {
		return err
	}
	if err := checkRange("limit min", value, -1, 1); err != nil {
		return err
	}
	b.min[channel] = value
	return nil
}

func (b *LimiterBank) Max(channel int) (float32, error) {
	if err := checkIndex("channel", channel, Channels); err != nil {
		return 0, err
	}
	return b.max[channel], nil
}

func (b *LimiterBank) SetMax(channel int, value float32) error {
	if err := checkIndex("channel", channel, Channels); err != nil {
		return err
	}
	if err := checkRange("limit max", value, -1, 1); err != nil {
		return err
	}
	b.max[channel] = value
	return nil
}

type generatorState struct {
	enabled     bool
	phaseOffset bool
	amplitude   float32
	offset      float32
	frequency   float32
	waveform    Waveform
}

// GeneratorBank keeps the settings of both signal generator channels.
type GeneratorBank struct {
	channels [Channels]generatorState
}

func NewGeneratorBank() *GeneratorBank {
	b := &GeneratorBank{}
	b.Reset()
	return b
}

// Reset disables both outputs: sine at 1 kHz, zero amplitude and offset.
func (b *GeneratorBank) Reset() {
	for ch := range b.channels {
		b.channels[ch] = generatorState{frequency: defaultFrequency, waveform: Sine}
	}
}

func (b *GeneratorBank) channel(ch int) (*generatorState, error) {
	if err := checkIndex("channel", ch, Channels); err != nil {
		return nil, err
	}
	return &b.channels[ch], nil
}

func (b *GeneratorBank) IsEnabled(channel int) (bool, error) {
	g, err := b.channel(channel)
	if err != nil {
		return false, err
	}
	return g.enabled, nil
}

func (b *GeneratorBank) Enable(channel int) error {
	g, err := b.channel(channel)
	if err != nil {
		return err
	}
	g.enabled = true
	return nil
}

func (b *GeneratorBank) Disable(channel int) error {
	g, err := b.channel(channel)
	if err != nil {
		return err
	}
	g.enabled = false
	return nil
}

func (b *GeneratorBank) PhaseOffsetEnabled(channel int) (bool, error) {
	g, err := b.channel(channel)
	if err != nil {
		return false, err
	}
	return g.phaseOffset, nil
}

func (b *GeneratorBank) EnablePhaseOffset(channel int) error {
	g, err := b.channel(channel)
	if err != nil {
		return err
	}
	g.phaseOffset = true
	return nil
}

func (b *GeneratorBank) DisablePhaseOffset(channel int) error {
	g, err := b.channel(channel)
	if err != nil {
		return err
	}
	g.phaseOffset = false
	return nil
}

func (b *GeneratorBank) Amplitude(channel int) (float32, error) {
	g, err := b.channel(channel)
	if err != nil {
		return 0, err
	}
	return g.amplitude, nil
}

func (b *GeneratorBank) SetAmplitude(channel int, value float32) error {
	g, err := b.channel(channel)
	if err != nil {
		return err
	}
	if err = checkRange("amplitude", value, 0, 1); err != nil {
		return err
	}
	g.amplitude = value
	return nil
}

func (b *GeneratorBank) Offset(channel int) (float32, error) {
	g, err := b.channel(channel)
	if err != nil {
		return 0, err
	}
	return g.offset, nil
}

func (b *GeneratorBank) SetOffset(channel int, value float32) error {
	g, err := b.channel(channel)
	if err != nil {
		return err
	}
	if err = checkRange("offset", value, -1, 1); err != nil {
		return err
	}
	g.offset = value
	return nil
}

func (b *GeneratorBank) Frequency(channel int) (float32, error) {
	g, err := b.channel(channel)
	if err != nil {
		return 0, err
	}
	return g.frequency, nil
}

func (b *GeneratorBank) SetFrequency(channel int, value float32) error {
	g, err := b.channel(channel)
	if err != nil {
		return err
	}
	if err = checkRange("frequency", value, 0, MaxFrequency); err != nil {
		return err
	}
	g.frequency = value
	return nil
}

func (b *GeneratorBank) Waveform(channel int) (Waveform, error) {
	g, err := b.channel(channel)
	if err != nil {
		return Sine, err
	}
	return g.waveform, nil
}

func (b *GeneratorBank) SetWaveform(channel int, waveform Waveform) error {
	g, err := b.channel(channel)
	if err != nil {
		return err
	}
	if !waveform.Valid() {
		return errors.Wrapf(errcode.InvalidParam, "waveform %d", int32(waveform))
	}
	g.waveform = waveform
	return nil
}
