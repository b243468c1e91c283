package mapped

import (
	"fmt"
	"time"

	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/shm"
)

// Writer is the producer side of a channel. It creates both regions and the
// lock and publishes records with the same protocol the game plugin uses:
// fill the non-current buffer under the lock, then flip both flags.
type Writer struct {
	creator shm.Creator
	config  ChannelConfig
	size    int

	buffers [2]shm.WritableRegion
	mutex   shm.Mutex
	current int // index of the buffer flagged current; -1 before the first write
	scratch []byte
}

// NewWriter creates the channel's objects for records of size bytes.
func NewWriter(creator shm.Creator, config ChannelConfig, size int) (*Writer, error) {
	if size < HeaderWithSizeSize {
		return nil, errors.Newf("record size %d is smaller than the header", size).
			Component(componentMapped).
			Category(errors.CategoryValidation).
			Build()
	}

	w := &Writer{creator: creator, config: config, size: size, current: -1, scratch: make([]byte, size)}
	for i, name := range []string{config.Buffer1, config.Buffer2} {
		region, err := creator.CreateRegion(name, size)
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		w.buffers[i] = region
	}
	mutex, err := creator.CreateMutex(config.Mutex)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("create %s: %w", config.Mutex, err)
	}
	w.mutex = mutex
	return w, nil
}

// Mutex returns the writer's lock handle, for holding it from tests.
func (w *Writer) Mutex() shm.Mutex { return w.mutex }

// Write publishes record, which must be exactly the record size. hint is the
// updated-bytes count stored in the header; 0 marks the whole record.
// The record's own header bytes are overwritten.
func (w *Writer) Write(record []byte, hint int32, lockTimeout time.Duration) error {
	if len(record) != w.size {
		return errors.Newf("record is %d bytes, channel expects %d", len(record), w.size).
			Component(componentMapped).
			Category(errors.CategoryValidation).
			Build()
	}

	copy(w.scratch, record)
	if err := EncodeHeader(w.scratch, Header{Current: true, UpdatedHint: hint}); err != nil {
		return err
	}

	if err := w.mutex.Lock(lockTimeout); err != nil && !errors.Is(err, shm.ErrAbandoned) {
		return err
	}
	defer func() { _ = w.mutex.Unlock() }()

	target := 0
	if w.current == 0 {
		target = 1
	}
	if _, err := w.buffers[target].WriteAt(w.scratch, 0); err != nil {
		return err
	}

	var cleared [HeaderSize]byte
	if _, err := w.buffers[1-target].WriteAt(cleared[:], 0); err != nil {
		return err
	}
	w.current = target
	return nil
}

// Close releases the writer's handles without removing the objects.
func (w *Writer) Close() error {
	var errs []error
	if w.mutex != nil {
		errs = append(errs, w.mutex.Close())
		w.mutex = nil
	}
	for i, region := range w.buffers {
		if region != nil {
			errs = append(errs, region.Close())
			w.buffers[i] = nil
		}
	}
	return errors.Join(errs...)
}

// Remove closes the writer and deletes the channel's objects.
func (w *Writer) Remove() error {
	errs := []error{w.Close()}
	for _, name := range []string{w.config.Buffer1, w.config.Buffer2, w.config.Mutex} {
		errs = append(errs, w.creator.Remove(name))
	}
	return errors.Join(errs...)
}
