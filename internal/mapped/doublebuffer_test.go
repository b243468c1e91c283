package mapped

import (
	"bytes"
	"encoding/binary"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/observability/metrics"
	"github.com/tphakala/rf2bridge/internal/shm"
)

type testRecord struct {
	CurrentRead uint8
	_           [3]byte
	UpdatedHint int32
	Counter     int32
	Payload     [12]byte
	Tail        [16]byte
}

// tailOffset is where Tail starts in the encoded record
const tailOffset = 24

var testChannel = ChannelConfig{
	Name:    "test",
	Buffer1: "$test_buffer1$",
	Buffer2: "$test_buffer2$",
	Mutex:   "Global\\$test_mutex",
}

func encode(t *testing.T, rec testRecord) []byte {
	t.Helper()
	buf := make([]byte, binary.Size(&rec))
	_, err := binary.Encode(buf, binary.LittleEndian, &rec)
	require.NoError(t, err)
	return buf
}

func record(counter int32, tail byte) testRecord {
	rec := testRecord{Counter: counter}
	copy(rec.Payload[:], "payload")
	for i := range rec.Tail {
		rec.Tail[i] = tail
	}
	return rec
}

func setup(t *testing.T, opts ...Option) (*shm.Memory, *Writer, *DoubleBuffer[testRecord]) {
	t.Helper()
	backend := shm.NewMemory()
	codec := BinaryCodec[testRecord]()
	require.Equal(t, 40, codec.Size)

	w, err := NewWriter(backend, testChannel, codec.Size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Remove() })

	db := NewDoubleBuffer(backend, testChannel, codec, opts...)
	require.NoError(t, db.Connect())
	t.Cleanup(func() { _ = db.Disconnect() })
	return backend, w, db
}

func TestReadReturnsCurrentBuffer(t *testing.T) {
	t.Parallel()
	_, w, db := setup(t)

	require.NoError(t, w.Write(encode(t, record(1, 0xAA)), 0, time.Second))
	require.NoError(t, w.Write(encode(t, record(2, 0xBB)), 0, time.Second))

	var out testRecord
	stats, err := db.ReadFull(&out)
	require.NoError(t, err)
	assert.Equal(t, int32(2), out.Counter)
	assert.Equal(t, uint8(1), out.CurrentRead)
	assert.Equal(t, byte(0xBB), out.Tail[15])
	assert.Equal(t, 2, stats.Buffer)
	assert.Equal(t, 40, stats.Bytes)
	assert.Equal(t, PolicyFull, stats.Policy)

	require.NoError(t, w.Write(encode(t, record(3, 0xCC)), 0, time.Second))
	stats, err = db.ReadFull(&out)
	require.NoError(t, err)
	assert.Equal(t, int32(3), out.Counter)
	assert.Equal(t, 1, stats.Buffer)
}

func TestPartialWithWholeHintMatchesFull(t *testing.T) {
	t.Parallel()
	backend, w, full := setup(t)

	partial := NewDoubleBuffer(backend, testChannel, BinaryCodec[testRecord]())
	require.NoError(t, partial.Connect())
	defer func() { _ = partial.Disconnect() }()

	for i, hint := range []int32{0, 40} {
		require.NoError(t, w.Write(encode(t, record(int32(i+1), byte(0x10+i))), hint, time.Second))

		var a, b testRecord
		_, err := full.ReadFull(&a)
		require.NoError(t, err)
		_, err = partial.ReadPartial(&b)
		require.NoError(t, err)
		assert.Equal(t, a.Counter, b.Counter)
		assert.Equal(t, a.Payload, b.Payload)
		assert.Equal(t, a.Tail, b.Tail)
	}
}

func TestPartialKeepsBytesBeyondHint(t *testing.T) {
	t.Parallel()
	_, w, db := setup(t)

	require.NoError(t, w.Write(encode(t, record(1, 0xAA)), 0, time.Second))
	var out testRecord
	_, err := db.ReadPartial(&out)
	require.NoError(t, err)
	require.Equal(t, byte(0xAA), out.Tail[0])

	// the writer changed the tail too but only reports the prefix
	require.NoError(t, w.Write(encode(t, record(2, 0xBB)), tailOffset, time.Second))
	stats, err := db.ReadPartial(&out)
	require.NoError(t, err)
	assert.Equal(t, tailOffset, stats.Bytes)
	assert.Equal(t, 2, stats.Buffer)
	assert.Equal(t, int32(2), out.Counter)
	assert.Equal(t, int32(tailOffset), out.UpdatedHint)
	assert.Equal(t, bytes.Repeat([]byte{0xAA}, 16), out.Tail[:])
}

func TestPartialUsesHintOfCopiedBuffer(t *testing.T) {
	t.Parallel()
	_, w, db := setup(t)

	// buffer 1 gets a small hint, buffer 2 the whole record
	require.NoError(t, w.Write(encode(t, record(1, 0xAA)), 12, time.Second))
	require.NoError(t, w.Write(encode(t, record(2, 0xBB)), 0, time.Second))

	var out testRecord
	stats, err := db.ReadPartial(&out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Buffer)
	assert.Equal(t, 40, stats.Bytes)
	assert.Equal(t, byte(0xBB), out.Tail[0])
}

func TestPartialClampsInvalidHint(t *testing.T) {
	t.Parallel()
	_, w, db := setup(t)

	for _, hint := range []int32{-5, 1000} {
		require.NoError(t, w.Write(encode(t, record(7, 0xEE)), hint, time.Second))
		var out testRecord
		stats, err := db.ReadPartial(&out)
		require.NoError(t, err)
		assert.Equal(t, 40, stats.Bytes, "hint %d", hint)
		assert.Equal(t, byte(0xEE), out.Tail[15])
	}
}

func TestCopyLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hint int32
		want int
	}{
		{-1, 40},
		{0, 40},
		{1, 1},
		{24, 24},
		{40, 40},
		{41, 40},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CopyLength(tt.hint, 40), "hint %d", tt.hint)
	}
}

func TestLockTimeoutLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	_, w, db := setup(t, WithLockTimeout(20*time.Millisecond))

	require.NoError(t, w.Write(encode(t, record(1, 0xAA)), 0, time.Second))
	var out testRecord
	_, err := db.ReadFull(&out)
	require.NoError(t, err)
	before := out
	retained := append([]byte(nil), db.retained...)

	require.NoError(t, w.Write(encode(t, record(2, 0xBB)), 0, time.Second))
	require.NoError(t, w.Mutex().Lock(time.Second))

	stats, err := db.ReadFull(&out)
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.True(t, errors.IsCategory(err, errors.CategoryLockTimeout))
	assert.GreaterOrEqual(t, stats.LockWait, 20*time.Millisecond)
	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	lockCtx := ee.GetContext()
	assert.Equal(t, "lock-wait", lockCtx["operation"])
	assert.Equal(t, testChannel.Name, lockCtx["channel"])
	assert.GreaterOrEqual(t, lockCtx["duration_ms"], int64(20))
	assert.Equal(t, before, out)
	assert.Equal(t, retained, db.retained)
	assert.True(t, db.Connected())

	require.NoError(t, w.Mutex().Unlock())
	_, err = db.ReadFull(&out)
	require.NoError(t, err)
	assert.Equal(t, int32(2), out.Counter)
}

func TestAbandonedLockIsReleased(t *testing.T) {
	t.Parallel()
	_, w, db := setup(t)

	require.NoError(t, w.Write(encode(t, record(1, 0xAA)), 0, time.Second))
	mutex, ok := w.Mutex().(*shm.MemoryMutex)
	require.True(t, ok)
	require.NoError(t, mutex.Lock(time.Second))
	mutex.Abandon()

	out := record(9, 0x99)
	_, err := db.ReadFull(&out)
	require.ErrorIs(t, err, ErrLockAbandoned)
	assert.False(t, errors.Is(err, ErrLockTimeout))
	assert.Equal(t, int32(9), out.Counter)

	// the reader released the lock, so the producer can take it again
	require.NoError(t, w.Mutex().Lock(100*time.Millisecond))
	require.NoError(t, w.Mutex().Unlock())
}

func TestReadNotConnected(t *testing.T) {
	t.Parallel()

	db := NewDoubleBuffer(shm.NewMemory(), testChannel, BinaryCodec[testRecord]())
	var out testRecord
	_, err := db.ReadFull(&out)
	require.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, errors.IsCategory(err, errors.CategoryReadFailure))
}

func TestConnectMissingResources(t *testing.T) {
	t.Parallel()

	backend := shm.NewMemory()
	db := NewDoubleBuffer(backend, testChannel, BinaryCodec[testRecord]())
	err := db.Connect()
	require.ErrorIs(t, err, ErrResourceNotFound)
	assert.True(t, errors.IsCategory(err, errors.CategorySharedMemory))
	assert.False(t, db.Connected())

	// regions without the lock are still not a channel
	_, err = backend.CreateRegion(testChannel.Buffer1, 40)
	require.NoError(t, err)
	_, err = backend.CreateRegion(testChannel.Buffer2, 40)
	require.NoError(t, err)
	require.ErrorIs(t, db.Connect(), ErrResourceNotFound)
	assert.False(t, db.Connected())

	_, err = backend.CreateMutex(testChannel.Mutex)
	require.NoError(t, err)
	require.NoError(t, db.Connect())
	assert.True(t, db.Connected())
	require.NoError(t, db.Connect())
	require.NoError(t, db.Disconnect())
	require.NoError(t, db.Disconnect())
}

func TestReconnectStartsFromZeroedImage(t *testing.T) {
	t.Parallel()
	_, w, db := setup(t)

	require.NoError(t, w.Write(encode(t, record(1, 0xAA)), 0, time.Second))
	var out testRecord
	_, err := db.ReadPartial(&out)
	require.NoError(t, err)

	require.NoError(t, db.Disconnect())
	require.NoError(t, db.Connect())

	require.NoError(t, w.Write(encode(t, record(2, 0xBB)), tailOffset, time.Second))
	_, err = db.ReadPartial(&out)
	require.NoError(t, err)
	assert.Equal(t, int32(2), out.Counter)
	assert.Equal(t, [16]byte{}, out.Tail)
}

func TestVanishedRegionEndsSession(t *testing.T) {
	t.Parallel()
	backend, w, db := setup(t)

	require.NoError(t, w.Write(encode(t, record(1, 0xAA)), 0, time.Second))
	require.NoError(t, backend.Remove(testChannel.Buffer1))

	var out testRecord
	_, err := db.ReadFull(&out)
	require.Error(t, err)
	assert.ErrorIs(t, err, shm.ErrVanished)
	assert.False(t, errors.Is(err, ErrLockTimeout))
	assert.True(t, errors.IsCategory(err, errors.CategoryReadFailure))

	// the lock was released after the failed copy
	require.NoError(t, w.Mutex().Lock(100*time.Millisecond))
	require.NoError(t, w.Mutex().Unlock())
}

func TestReadMetrics(t *testing.T) {
	t.Parallel()

	m, err := metrics.NewSharedMemoryMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	_, w, db := setup(t, WithMetrics(m), WithLockTimeout(10*time.Millisecond))

	require.NoError(t, w.Write(encode(t, record(1, 0xAA)), 0, time.Second))
	var out testRecord
	_, err = db.ReadPartial(&out)
	require.NoError(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Reads.WithLabelValues("test", "partial", "1")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Connected.WithLabelValues("test")), 0)

	require.NoError(t, w.Mutex().Lock(time.Second))
	_, err = db.ReadPartial(&out)
	require.ErrorIs(t, err, ErrLockTimeout)
	require.NoError(t, w.Mutex().Unlock())
	assert.InDelta(t, 1, testutil.ToFloat64(m.ReadErrors.WithLabelValues("test", metrics.ReasonLockTimeout)), 0)
}

func TestBinaryCodecRejectsShortInput(t *testing.T) {
	t.Parallel()

	codec := BinaryCodec[testRecord]()
	var out testRecord
	require.Error(t, codec.Decode(make([]byte, 10), &out))
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy("Partial")
	require.NoError(t, err)
	assert.Equal(t, PolicyPartial, p)
	p, err = ParsePolicy("full")
	require.NoError(t, err)
	assert.Equal(t, PolicyFull, p)
	_, err = ParsePolicy("sometimes")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Equal(t, "policy(7)", Policy(7).String())
}

func TestHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	b := make([]byte, HeaderWithSizeSize)
	require.NoError(t, EncodeHeader(b, Header{Current: true, UpdatedHint: 1234}))
	h, err := DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, Header{Current: true, UpdatedHint: 1234}, h)

	h, err = DecodeHeader(b[:HeaderSize])
	require.NoError(t, err)
	assert.Equal(t, Header{Current: true}, h)

	_, err = DecodeHeader(b[:2])
	require.Error(t, err)
}

func TestDecodeHeaderFlagByte(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  []byte
		want Header
	}{
		{"clear", []byte{0, 0, 0, 0, 0, 0, 0, 0}, Header{}},
		{"set", []byte{1, 0, 0, 0, 0x10, 0, 0, 0}, Header{Current: true, UpdatedHint: 16}},
		{"nonzero flag byte", []byte{0xff, 0, 0, 0}, Header{Current: true}},
		{"padding ignored when clear", []byte{0, 1, 1, 1, 8, 0, 0, 0}, Header{UpdatedHint: 8}},
		{"padding ignored when set", []byte{1, 0xaa, 0xbb, 0xcc}, Header{Current: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, err := DecodeHeader(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, h)
		})
	}
}

func TestEncodeHeaderClearsPadding(t *testing.T) {
	t.Parallel()

	b := []byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0}
	require.NoError(t, EncodeHeader(b, Header{Current: true, UpdatedHint: 40}))
	assert.Equal(t, []byte{1, 0, 0, 0, 40, 0, 0, 0}, b)

	require.NoError(t, EncodeHeader(b, Header{}))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, b)
}

// countingOpener counts Check calls on the regions it opens
type countingOpener struct {
	shm.Opener
	checks atomic.Int32
}

func (o *countingOpener) OpenRegion(name string, size int) (shm.Region, error) {
	r, err := o.Opener.OpenRegion(name, size)
	if err != nil {
		return nil, err
	}
	return &countingRegion{Region: r, checks: &o.checks}, nil
}

type countingRegion struct {
	shm.Region
	checks *atomic.Int32
}

func (r *countingRegion) Check() error {
	r.checks.Add(1)
	return r.Region.Check()
}

func TestReadChecksRegionsOncePerRead(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		policy Policy
		writes int // 2 leaves buffer2 current, forcing a second header read
	}{
		{"full buffer1", PolicyFull, 1},
		{"full buffer2", PolicyFull, 2},
		{"partial buffer1", PolicyPartial, 1},
		{"partial buffer2", PolicyPartial, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := shm.NewMemory()
			w, err := NewWriter(backend, testChannel, 40)
			require.NoError(t, err)
			t.Cleanup(func() { _ = w.Remove() })
			for i := range tt.writes {
				require.NoError(t, w.Write(encode(t, record(int32(i+1), 0xAA)), 0, time.Second))
			}

			opener := &countingOpener{Opener: backend}
			db := NewDoubleBuffer(opener, testChannel, BinaryCodec[testRecord]())
			require.NoError(t, db.Connect())
			t.Cleanup(func() { _ = db.Disconnect() })

			var out testRecord
			stats, err := db.Read(tt.policy, &out)
			require.NoError(t, err)
			assert.Equal(t, tt.writes, stats.Buffer)
			assert.Equal(t, int32(tt.writes), out.Counter)
			assert.Equal(t, int32(2), opener.checks.Load(), "one check per region")
		})
	}
}

func TestReadChecksAfterUnlock(t *testing.T) {
	t.Parallel()
	backend, w, _ := setup(t)
	require.NoError(t, w.Write(encode(t, record(1, 0xAA)), 0, time.Second))

	db := NewDoubleBuffer(&lockCheckingOpener{Opener: backend, t: t, mutex: w.Mutex()}, testChannel, BinaryCodec[testRecord]())
	require.NoError(t, db.Connect())
	t.Cleanup(func() { _ = db.Disconnect() })

	var out testRecord
	_, err := db.ReadFull(&out)
	require.NoError(t, err)
}

// lockCheckingOpener fails the test when Check runs while the lock is held
type lockCheckingOpener struct {
	shm.Opener
	t     *testing.T
	mutex shm.Mutex
}

func (o *lockCheckingOpener) OpenRegion(name string, size int) (shm.Region, error) {
	r, err := o.Opener.OpenRegion(name, size)
	if err != nil {
		return nil, err
	}
	return &lockCheckingRegion{Region: r, opener: o}, nil
}

type lockCheckingRegion struct {
	shm.Region
	opener *lockCheckingOpener
}

func (r *lockCheckingRegion) Check() error {
	// succeeds only while nobody else holds the lock
	if err := r.opener.mutex.Lock(50 * time.Millisecond); err != nil {
		r.opener.t.Errorf("check ran with the lock held: %v", err)
	} else {
		_ = r.opener.mutex.Unlock()
	}
	return r.Region.Check()
}
