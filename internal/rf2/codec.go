package rf2

import (
	"encoding/binary"

	"github.com/tphakala/rf2bridge/internal/conf"
	"github.com/tphakala/rf2bridge/internal/mapped"
	"github.com/tphakala/rf2bridge/internal/shm"
)

// Channel labels used in logs and metrics
const (
	ChannelTelemetry = "telemetry"
	ChannelScoring   = "scoring"
)

var (
	telemetryCodec = mapped.BinaryCodec[Telemetry]()
	scoringCodec   = mapped.BinaryCodec[Scoring]()
)

// Mapped record sizes in bytes.
var (
	TelemetrySize = telemetryCodec.Size
	ScoringSize   = scoringCodec.Size
)

// TelemetryReader reads the telemetry channel.
type TelemetryReader = mapped.DoubleBuffer[Telemetry]

// ScoringReader reads the scoring channel.
type ScoringReader = mapped.DoubleBuffer[Scoring]

// TelemetryChannel returns the telemetry channel names from settings.
func TelemetryChannel(s conf.ChannelSettings) mapped.ChannelConfig {
	return channelConfig(ChannelTelemetry, s)
}

// ScoringChannel returns the scoring channel names from settings.
func ScoringChannel(s conf.ChannelSettings) mapped.ChannelConfig {
	return channelConfig(ChannelScoring, s)
}

func channelConfig(name string, s conf.ChannelSettings) mapped.ChannelConfig {
	return mapped.ChannelConfig{Name: name, Buffer1: s.Buffer1, Buffer2: s.Buffer2, Mutex: s.Mutex}
}

// NewTelemetryReader returns a disconnected telemetry reader.
func NewTelemetryReader(opener shm.Opener, s conf.ChannelSettings, opts ...mapped.Option) *TelemetryReader {
	return mapped.NewDoubleBuffer(opener, TelemetryChannel(s), telemetryCodec, opts...)
}

// NewScoringReader returns a disconnected scoring reader.
func NewScoringReader(opener shm.Opener, s conf.ChannelSettings, opts ...mapped.Option) *ScoringReader {
	return mapped.NewDoubleBuffer(opener, ScoringChannel(s), scoringCodec, opts...)
}

// Encode returns the mapped image of a Telemetry or Scoring record.
func Encode[T Telemetry | Scoring](record *T) ([]byte, error) {
	return binary.Append(make([]byte, 0, binary.Size(record)), binary.LittleEndian, record)
}
