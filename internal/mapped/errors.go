package mapped

import (
	"fmt"
	"time"

	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/shm"
)

const componentMapped = "mapped"

var (
	// ErrResourceNotFound is returned by Connect while the producer has not
	// created a region or the lock yet.
	ErrResourceNotFound = shm.ErrNotExist

	// ErrLockTimeout means the bounded lock wait expired; nothing was read
	// and neither the retained image nor the caller's record changed.
	ErrLockTimeout = errors.New(errors.NewStd("lock timeout, read skipped")).
		Component(componentMapped).
		Category(errors.CategoryLockTimeout).
		Build()

	// ErrLockAbandoned means the producer died holding the lock. The lock
	// has been released and nothing was read.
	ErrLockAbandoned = errors.New(errors.NewStd("lock abandoned by producer")).
		Component(componentMapped).
		Category(errors.CategoryLockAbandoned).
		Build()

	ErrNotConnected = errors.New(errors.NewStd("channel is not connected")).
		Component(componentMapped).
		Category(errors.CategoryReadFailure).
		Build()

	ErrDecode = errors.New(errors.NewStd("record decode failed")).
		Component(componentMapped).
		Category(errors.CategoryDecode).
		Build()
)

// readError wraps err as a session-ending read failure on channel
func readError(channel, op string, err error) error {
	category := errors.CategoryReadFailure
	if errors.Is(err, ErrDecode) {
		category = errors.CategoryDecode
	}
	return errors.New(fmt.Errorf("%s: %s: %w", channel, op, err)).
		Component(componentMapped).
		Category(category).
		Context("channel", channel).
		Context("operation", op).
		Build()
}

// channelError annotates a sentinel with the channel it happened on, keeping its category
func channelError(channel string, sentinel *errors.EnhancedError) error {
	return errors.New(fmt.Errorf("%s: %w", channel, sentinel)).
		Component(componentMapped).
		Category(sentinel.Category).
		Context("channel", channel).
		Build()
}

// lockTimeoutError is ErrLockTimeout on channel with the time spent waiting
func lockTimeoutError(channel string, wait time.Duration) error {
	return errors.New(fmt.Errorf("%s: %w", channel, ErrLockTimeout)).
		Component(componentMapped).
		Category(errors.CategoryLockTimeout).
		Context("channel", channel).
		Timing("lock-wait", wait).
		Build()
}
