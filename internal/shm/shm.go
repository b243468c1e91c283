// Package shm provides named shared-memory regions and named cross-process
// locks. The Windows backend attaches to objects created by the simulator's
// plugin; the POSIX backend maps files under a directory such as /dev/shm;
// the memory backend keeps everything in-process for tests and the simulator.
package shm

import (
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/logger"
)

const componentSHM = "shm"

// Sentinel errors, match with errors.Is.
var (
	ErrNotExist = errors.New(errors.NewStd("shared memory resource does not exist")).
		Component(componentSHM).
		Category(errors.CategorySharedMemory).
		Build()

	ErrTimeout = errors.New(errors.NewStd("timed out waiting for named lock")).
		Component(componentSHM).
		Category(errors.CategoryLockTimeout).
		Build()

	// ErrAbandoned is returned by Lock when the previous owner exited while
	// holding the lock. The caller owns the lock and must Unlock it.
	ErrAbandoned = errors.New(errors.NewStd("named lock was abandoned by its owner")).
		Component(componentSHM).
		Category(errors.CategoryLockAbandoned).
		Build()

	ErrClosed = errors.New(errors.NewStd("shared memory handle is closed")).
		Component(componentSHM).
		Category(errors.CategoryReadFailure).
		Build()

	// ErrVanished means the region was removed by its creator after it was opened.
	ErrVanished = errors.New(errors.NewStd("shared memory region vanished")).
		Component(componentSHM).
		Category(errors.CategoryReadFailure).
		Build()

	ErrOutOfRange = errors.New(errors.NewStd("access outside shared memory region")).
		Component(componentSHM).
		Category(errors.CategoryReadFailure).
		Build()

	ErrNotHeld = errors.New(errors.NewStd("named lock is not held")).
		Component(componentSHM).
		Category(errors.CategoryState).
		Build()
)

// Region is a read-only view of a named shared-memory region.
type Region interface {
	// ReadAt copies len(p) bytes starting at off. Reading past Size is an error.
	ReadAt(p []byte, off int64) (int, error)
	// Check returns ErrVanished once the creator removed the region and
	// ErrClosed after Close. It may cost a syscall, so readers call it once
	// per record rather than per ReadAt.
	Check() error
	Size() int
	Name() string
	Close() error
}

// WritableRegion is a region owned by the producer side.
type WritableRegion interface {
	Region
	WriteAt(p []byte, off int64) (int, error)
}

// Mutex is a named lock shared with another process.
type Mutex interface {
	// Lock waits at most timeout. It returns ErrTimeout when the wait expires
	// and ErrAbandoned, with the lock held, when the previous owner died.
	Lock(timeout time.Duration) error
	Unlock() error
	Close() error
}

// Opener attaches to resources created by someone else.
type Opener interface {
	// OpenRegion maps an existing region of at least size bytes.
	OpenRegion(name string, size int) (Region, error)
	OpenMutex(name string) (Mutex, error)
}

// Creator creates resources, used by the simulator and tests.
type Creator interface {
	CreateRegion(name string, size int) (WritableRegion, error)
	CreateMutex(name string) (Mutex, error)
	// Remove deletes a region or lock name where the OS allows it.
	Remove(name string) error
}

// Backend is both sides of a shared-memory implementation.
type Backend interface {
	Opener
	Creator
	Kind() string
}

// Backend kinds
const (
	KindWindows = "windows"
	KindPOSIX   = "posix"
	KindMemory  = "memory"
)

// New returns the backend of the given kind. dir is used by the POSIX backend.
func New(kind, dir string) (Backend, error) {
	switch kind {
	case KindWindows:
		return newWindowsBackend()
	case KindPOSIX:
		return newPOSIXBackend(dir)
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, errors.Newf("unknown shared memory backend %q", kind).
		Component(componentSHM).
		Category(errors.CategoryConfiguration).
		Build()
	}
}

// notExist wraps ErrNotExist with the missing resource name
func notExist(kind, name string) error {
	return errors.New(fmt.Errorf("%s %q: %w", kind, name, ErrNotExist)).
		Component(componentSHM).
		Category(errors.CategorySharedMemory).
		Context("resource", name).
		Build()
}

// checkRange validates an access of n bytes at off within size
func checkRange(name string, off int64, n, size int) error {
	if off < 0 || off+int64(n) > int64(size) {
		return errors.New(fmt.Errorf("region %q: %d bytes at offset %d exceeds size %d: %w", name, n, off, size, ErrOutOfRange)).
			Component(componentSHM).
			Category(errors.CategoryReadFailure).
			Build()
	}
	return nil
}

// fileName maps a Windows-style object name ("Global\$name$") to a flat file name.
func fileName(name string) string {
	for _, prefix := range []string{`Global\`, `Local\`} {
		name = strings.TrimPrefix(name, prefix)
	}
	return strings.NewReplacer(`\`, "_", "/", "_").Replace(name)
}

func getLogger() logger.Logger {
	return logger.Global().Module("shm")
}
