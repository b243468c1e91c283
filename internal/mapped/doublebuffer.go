package mapped

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/logger"
	"github.com/tphakala/rf2bridge/internal/observability/metrics"
	"github.com/tphakala/rf2bridge/internal/shm"
)

// DefaultLockTimeout bounds each lock wait unless WithLockTimeout says otherwise.
const DefaultLockTimeout = 5 * time.Second

// Policy selects how much of the current buffer a read copies.
type Policy int

const (
	// PolicyFull copies the whole record on every read.
	PolicyFull Policy = iota
	// PolicyPartial copies only the prefix the writer reported as updated
	// and keeps the remainder from earlier reads.
	PolicyPartial
)

func (p Policy) String() string {
	switch p {
	case PolicyFull:
		return "full"
	case PolicyPartial:
		return "partial"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts "full" or "partial", case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return PolicyFull, nil
	case "partial":
		return PolicyPartial, nil
	}
	return PolicyFull, errors.Newf("unknown read policy %q", s).
		Component(componentMapped).
		Category(errors.CategoryValidation).
		Build()
}

// Codec turns the raw record image into T.
type Codec[T any] struct {
	Size   int
	Decode func(b []byte, out *T) error
}

// BinaryCodec decodes T as a fixed-size little-endian structure. T must be
// valid for encoding/binary; blank fields act as padding.
func BinaryCodec[T any]() Codec[T] {
	var zero T
	size := binary.Size(&zero)
	if size <= 0 {
		panic(fmt.Sprintf("mapped: %T has no fixed binary size", zero))
	}
	return Codec[T]{
		Size: size,
		Decode: func(b []byte, out *T) error {
			if _, err := binary.Decode(b, byteOrder, out); err != nil {
				return err
			}
			return nil
		},
	}
}

// ReadStats describes a completed read.
type ReadStats struct {
	Policy   Policy
	Buffer   int // 1 or 2
	Bytes    int // bytes copied out of shared memory
	LockWait time.Duration
}

type options struct {
	lockTimeout time.Duration
	metrics     *metrics.SharedMemoryMetrics
}

// Option configures a DoubleBuffer.
type Option func(*options)

// WithLockTimeout bounds how long a read waits for the lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithMetrics records reads and failures into m.
func WithMetrics(m *metrics.SharedMemoryMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// DoubleBuffer reads records of type T from one channel. It keeps a retained
// image of the record that partial reads merge into, so bytes the writer did
// not touch keep their last observed value.
//
// A DoubleBuffer is not safe for concurrent use.
type DoubleBuffer[T any] struct {
	channel *SharedChannel
	codec   Codec[T]
	opts    options

	retained []byte
	header   [HeaderWithSizeSize]byte
}

// NewDoubleBuffer returns a disconnected reader for the channel described by config.
func NewDoubleBuffer[T any](opener shm.Opener, config ChannelConfig, codec Codec[T], opts ...Option) *DoubleBuffer[T] {
	o := options{lockTimeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &DoubleBuffer[T]{
		channel: NewSharedChannel(opener, config, codec.Size),
		codec:   codec,
		opts:    o,
	}
}

// Name returns the channel label.
func (d *DoubleBuffer[T]) Name() string { return d.channel.config.Name }

// Connected reports whether the channel is open.
func (d *DoubleBuffer[T]) Connected() bool { return d.channel.Connected() }

// Connect opens the channel and allocates a zeroed retained image.
func (d *DoubleBuffer[T]) Connect() error {
	if d.channel.Connected() {
		return nil
	}
	if err := d.channel.Connect(); err != nil {
		return err
	}
	d.retained = make([]byte, d.codec.Size)
	d.opts.metrics.SetConnected(d.Name(), true)
	return nil
}

// Disconnect closes the channel and drops the retained image.
func (d *DoubleBuffer[T]) Disconnect() error {
	err := d.channel.Disconnect()
	d.retained = nil
	d.opts.metrics.SetConnected(d.Name(), false)
	return err
}

// ReadFull is Read with PolicyFull.
func (d *DoubleBuffer[T]) ReadFull(out *T) (ReadStats, error) {
	return d.Read(PolicyFull, out)
}

// ReadPartial is Read with PolicyPartial.
func (d *DoubleBuffer[T]) ReadPartial(out *T) (ReadStats, error) {
	return d.Read(PolicyPartial, out)
}

// Read copies the current buffer into the retained image under the lock,
// then decodes the retained image into out.
//
// ErrLockTimeout leaves both the retained image and out untouched and the
// channel connected. Any other error means the session should end.
func (d *DoubleBuffer[T]) Read(policy Policy, out *T) (ReadStats, error) {
	stats := ReadStats{Policy: policy}
	name := d.Name()

	if !d.channel.Connected() {
		d.opts.metrics.RecordReadError(name, metrics.ReasonNotConnected)
		return stats, channelError(name, ErrNotConnected)
	}

	mutex := d.channel.mutex
	start := time.Now()
	err := mutex.Lock(d.opts.lockTimeout)
	stats.LockWait = time.Since(start)
	if err != nil {
		return stats, d.lockFailed(err, stats.LockWait)
	}

	buffer, n, copyErr := d.copyCurrent(policy)
	unlockErr := mutex.Unlock()

	if copyErr != nil {
		d.opts.metrics.RecordReadError(name, metrics.ReasonRead)
		return stats, readError(name, "copy", copyErr)
	}
	if unlockErr != nil {
		d.opts.metrics.RecordReadError(name, metrics.ReasonRead)
		return stats, readError(name, "unlock", unlockErr)
	}
	// after unlocking so the producer never waits on a stat
	if err := d.channel.Check(); err != nil {
		d.opts.metrics.RecordReadError(name, metrics.ReasonRead)
		return stats, readError(name, "check", err)
	}
	stats.Buffer, stats.Bytes = buffer+1, n

	if err := d.codec.Decode(d.retained, out); err != nil {
		d.opts.metrics.RecordReadError(name, metrics.ReasonDecode)
		return stats, readError(name, "decode", fmt.Errorf("%w: %w", ErrDecode, err))
	}

	d.opts.metrics.RecordRead(name, policy.String(), stats.Buffer, n, stats.LockWait)
	return stats, nil
}

// lockFailed maps a Lock error after waiting wait. An abandoned lock is owned
// by us and is released before returning.
func (d *DoubleBuffer[T]) lockFailed(err error, wait time.Duration) error {
	name := d.Name()
	switch {
	case errors.Is(err, shm.ErrTimeout):
		d.opts.metrics.RecordReadError(name, metrics.ReasonLockTimeout)
		return lockTimeoutError(name, wait)
	case errors.Is(err, shm.ErrAbandoned):
		if unlockErr := d.channel.mutex.Unlock(); unlockErr != nil {
			getLogger().Warn("failed to release abandoned lock",
				logger.String("channel", name),
				logger.Error(unlockErr))
		}
		d.opts.metrics.RecordReadError(name, metrics.ReasonAbandoned)
		return channelError(name, ErrLockAbandoned)
	default:
		d.opts.metrics.RecordReadError(name, metrics.ReasonRead)
		return readError(name, "lock", err)
	}
}

// copyCurrent must run with the lock held. It returns the index of the
// buffer it copied from and the number of bytes copied.
func (d *DoubleBuffer[T]) copyCurrent(policy Policy) (buffer, n int, err error) {
	headerLen := HeaderSize
	if policy == PolicyPartial {
		headerLen = HeaderWithSizeSize
	}
	header := d.header[:headerLen]

	buffers := d.channel.buffers
	if _, err := buffers[0].ReadAt(header, 0); err != nil {
		return 0, 0, err
	}
	h, err := DecodeHeader(header)
	if err != nil {
		return 0, 0, err
	}

	buffer = 0
	if !h.Current {
		buffer = 1
		if policy == PolicyPartial {
			// the hint belongs to the buffer being copied
			if _, err := buffers[1].ReadAt(header, 0); err != nil {
				return 0, 0, err
			}
			if h, err = DecodeHeader(header); err != nil {
				return 0, 0, err
			}
		}
	}

	n = len(d.retained)
	if policy == PolicyPartial {
		n = CopyLength(h.UpdatedHint, n)
	}
	if _, err := buffers[buffer].ReadAt(d.retained[:n], 0); err != nil {
		return buffer, 0, err
	}
	return buffer, n, nil
}

// CopyLength returns how many bytes a partial read copies for hint on a
// record of size bytes. Hints outside (0, size] mean the whole record.
func CopyLength(hint int32, size int) int {
	if hint <= 0 || int(hint) > size {
		return size
	}
	return int(hint)
}
