package snapshot

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/errcode"
	"github.com/hubertat/lockbox/modules"
)

// ConfigVersion tags the record layout below. Bump it on any change to
// ConfigRecord.
const ConfigVersion uint32 = 2

// PIDBlock is the stored state of one PID instance, in save order.
type PIDBlock struct {
	Setpoint        float32
	Kp              float32
	Ki              float32
	Kd              float32
	Kii             float32
	Kg              float32
	IntReset        bool
	Inverted        bool
	ResetWhenRailed bool
	Hold            bool
	Relock          bool
	Enable          bool
	RelockStepsize  float32
	RelockMin       float32
	RelockMax       float32
	RelockInput     int32 // analog pin id
	LockStatusOut   bool
	ExtResetEnable  bool
	ExtResetInput   int32 // logical pin id
}

// ChannelBlock is the stored limiter and generator state of one output.
type ChannelBlock struct {
	LimitMin              float32
	LimitMax              float32
	GenEnabled            bool
	GenPhaseOffsetEnabled bool
	GenAmplitude          float32
	GenOffset             float32
	GenFrequency          float32
	GenWaveform           int32
}

// ConfigRecord is written packed in the host byte order, so a file is only
// readable on a machine of the same endianness.
type ConfigRecord struct {
	Version uint32
	PID     [modules.PIDCount]PIDBlock
	Channel [modules.Channels]ChannelBlock
}

// RecordSize is the encoded length of a ConfigRecord.
var RecordSize = binary.Size(ConfigRecord{})

func (r *ConfigRecord) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(RecordSize)
	if err := binary.Write(&buf, binary.NativeEndian, r); err != nil {
		return nil, errors.Wrap(err, "encode config record")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes exactly RecordSize bytes; anything shorter is
// CorruptConfig. Trailing bytes are ignored.
func (r *ConfigRecord) UnmarshalBinary(data []byte) error {
	if len(data) < RecordSize {
		return errors.Wrapf(errcode.CorruptConfig, "record is %d bytes, want %d", len(data), RecordSize)
	}
	if err := binary.Read(bytes.NewReader(data[:RecordSize]), binary.NativeEndian, r); err != nil {
		return errors.Wrap(errcode.CorruptConfig, err.Error())
	}
	return nil
}
