//go:build !windows

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"

	"github.com/tphakala/rf2bridge/internal/errors"
)

const (
	lockSuffix   = ".lock"
	lockPollWait = time.Millisecond
)

// POSIX maps region files in a directory (normally /dev/shm) and uses
// flock(2) on a lock file as the named lock. flock is released by the kernel
// when its owner exits, so abandonment is never reported.
type POSIX struct {
	dir string
}

// NewPOSIX returns a backend rooted at dir
func NewPOSIX(dir string) *POSIX {
	return &POSIX{dir: dir}
}

func newPOSIXBackend(dir string) (Backend, error) {
	if dir == "" {
		return nil, errors.Newf("posix shared memory backend needs a directory").
			Component(componentSHM).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return NewPOSIX(dir), nil
}

// Kind implements Backend
func (p *POSIX) Kind() string { return KindPOSIX }

func (p *POSIX) path(name string) string {
	return filepath.Join(p.dir, fileName(name))
}

// OpenRegion implements Opener
func (p *POSIX) OpenRegion(name string, size int) (Region, error) {
	return p.mapRegion(name, size, os.O_RDONLY, mmap.RDONLY)
}

// CreateRegion implements Creator
func (p *POSIX) CreateRegion(name string, size int) (WritableRegion, error) {
	path := p.path(name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fileError("create region", name, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		return nil, fileError("size region", name, err)
	}
	_ = f.Close()

	return p.mapRegion(name, size, os.O_RDWR, mmap.RDWR)
}

func (p *POSIX) mapRegion(name string, size, flag, prot int) (*posixRegion, error) {
	path := p.path(name)
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notExist("region", name)
		}
		return nil, fileError("open region", name, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fileError("stat region", name, err)
	}
	if info.Size() < int64(size) {
		return nil, checkRange(name, 0, size, int(info.Size()))
	}

	m, err := mmap.MapRegion(f, size, prot, 0, 0)
	if err != nil {
		return nil, fileError("map region", name, err)
	}
	return &posixRegion{name: name, path: path, info: info, data: m}, nil
}

// CreateMutex implements Creator
func (p *POSIX) CreateMutex(name string) (Mutex, error) {
	return p.openLock(name, os.O_RDWR|os.O_CREATE)
}

// OpenMutex implements Opener
func (p *POSIX) OpenMutex(name string) (Mutex, error) {
	return p.openLock(name, os.O_RDWR)
}

func (p *POSIX) openLock(name string, flag int) (Mutex, error) {
	f, err := os.OpenFile(p.path(name)+lockSuffix, flag, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notExist("mutex", name)
		}
		return nil, fileError("open mutex", name, err)
	}
	return &posixMutex{name: name, f: f}, nil
}

// Remove implements Creator; it deletes the region file or lock file of name.
func (p *POSIX) Remove(name string) error {
	path := p.path(name)
	var errs []error
	for _, candidate := range []string{path, path + lockSuffix} {
		if err := os.Remove(candidate); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func fileError(op, name string, err error) error {
	return errors.New(fmt.Errorf("%s %q: %w", op, name, err)).
		Component(componentSHM).
		Category(errors.CategorySharedMemory).
		Context("operation", op).
		Context("resource", name).
		Build()
}

type posixRegion struct {
	name string
	path string
	info os.FileInfo

	mu   sync.RWMutex
	data mmap.MMap
}

func (r *posixRegion) Name() string { return r.name }

func (r *posixRegion) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Check stats the backing path and fails once it no longer names the file
// that was mapped.
func (r *posixRegion) Check() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data == nil {
		return ErrClosed
	}
	info, err := os.Stat(r.path)
	if err != nil || !os.SameFile(info, r.info) {
		return ErrVanished
	}
	return nil
}

func (r *posixRegion) ReadAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data == nil {
		return 0, ErrClosed
	}
	if err := checkRange(r.name, off, len(p), len(r.data)); err != nil {
		return 0, err
	}
	return copy(p, r.data[off:]), nil
}

func (r *posixRegion) WriteAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data == nil {
		return 0, ErrClosed
	}
	if err := checkRange(r.name, off, len(p), len(r.data)); err != nil {
		return 0, err
	}
	return copy(r.data[off:], p), nil
}

func (r *posixRegion) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.data == nil {
		return nil
	}
	err := r.data.Unmap()
	r.data = nil
	return err
}

type posixMutex struct {
	name string

	mu   sync.Mutex
	f    *os.File
	held bool
}

func (m *posixMutex) Lock(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return ErrClosed
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(m.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			m.held = true
			return nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EINTR {
			return errors.New(fmt.Errorf("flock %q: %w", m.name, err)).
				Component(componentSHM).
				Category(errors.CategoryReadFailure).
				Build()
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(lockPollWait)
	}
}

func (m *posixMutex) Unlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil || !m.held {
		return ErrNotHeld
	}
	m.held = false
	return unix.Flock(int(m.f.Fd()), unix.LOCK_UN)
}

func (m *posixMutex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	m.held = false
	return err
}
