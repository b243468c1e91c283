//go:build windows

package shm

import (
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/tphakala/rf2bridge/internal/errors"
)

const (
	waitObject0   = 0x00000000
	waitAbandoned = 0x00000080
	waitTimeout   = 0x00000102

	accessSynchronize      = 0x00100000
	accessMutexModifyState = 0x0001
)

var (
	modkernel32          = windows.NewLazySystemDLL("kernel32.dll")
	procOpenFileMappingW = modkernel32.NewProc("OpenFileMappingW")
)

func openFileMapping(access uint32, name *uint16) (windows.Handle, error) {
	r, _, e := procOpenFileMappingW.Call(uintptr(access), 0, uintptr(unsafe.Pointer(name)))
	if r == 0 {
		return 0, e
	}
	return windows.Handle(r), nil
}

// Windows attaches to named file mappings and mutexes in the session or
// Global namespace.
type Windows struct{}

func newWindowsBackend() (Backend, error) {
	return Windows{}, nil
}

// Kind implements Backend
func (Windows) Kind() string { return KindWindows }

// OpenRegion implements Opener
func (Windows) OpenRegion(name string, size int) (Region, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	h, err := openFileMapping(windows.FILE_MAP_READ, namePtr)
	if err != nil {
		if err == windows.ERROR_FILE_NOT_FOUND {
			return nil, notExist("region", name)
		}
		return nil, winError("OpenFileMapping", name, err)
	}
	return mapView(h, name, size, windows.FILE_MAP_READ)
}

// CreateRegion implements Creator
func (Windows) CreateRegion(name string, size int) (WritableRegion, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(size), namePtr)
	if err != nil && err != windows.ERROR_ALREADY_EXISTS {
		return nil, winError("CreateFileMapping", name, err)
	}
	return mapView(h, name, size, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE)
}

func mapView(h windows.Handle, name string, size int, access uint32) (*windowsRegion, error) {
	addr, err := windows.MapViewOfFile(h, access, 0, 0, uintptr(size))
	if err != nil {
		_ = windows.CloseHandle(h)
		return nil, winError("MapViewOfFile", name, err)
	}
	return &windowsRegion{
		name:   name,
		handle: h,
		addr:   addr,
		data:   unsafe.Slice((*byte)(unsafe.Pointer(addr)), size),
	}, nil
}

// OpenMutex implements Opener
func (Windows) OpenMutex(name string) (Mutex, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	h, err := windows.OpenMutex(accessSynchronize|accessMutexModifyState, false, namePtr)
	if err != nil {
		if err == windows.ERROR_FILE_NOT_FOUND {
			return nil, notExist("mutex", name)
		}
		return nil, winError("OpenMutex", name, err)
	}
	return &windowsMutex{name: name, handle: h}, nil
}

// CreateMutex implements Creator
func (Windows) CreateMutex(name string) (Mutex, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateMutex(nil, false, namePtr)
	if err != nil && err != windows.ERROR_ALREADY_EXISTS {
		return nil, winError("CreateMutex", name, err)
	}
	return &windowsMutex{name: name, handle: h}, nil
}

// Remove is a no-op; named objects disappear when their last handle closes.
func (Windows) Remove(string) error { return nil }

func winError(op, name string, err error) error {
	return errors.New(fmt.Errorf("%s %q: %w", op, name, err)).
		Component(componentSHM).
		Category(errors.CategorySharedMemory).
		Context("operation", op).
		Context("resource", name).
		Build()
}

type windowsRegion struct {
	name string

	mu     sync.RWMutex
	handle windows.Handle
	addr   uintptr
	data   []byte
}

func (r *windowsRegion) Name() string { return r.name }

func (r *windowsRegion) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Check only reports ErrClosed; a named mapping stays valid while any handle
// to it is open.
func (r *windowsRegion) Check() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data == nil {
		return ErrClosed
	}
	return nil
}

func (r *windowsRegion) ReadAt(p []byte, off int64) (int, error) {
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

func (r *windowsRegion) WriteAt(p []byte, off int64) (int, error) {
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

func (r *windowsRegion) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.data == nil {
		return nil
	}
	r.data = nil
	return errors.Join(windows.UnmapViewOfFile(r.addr), windows.CloseHandle(r.handle))
}

// windowsMutex pins the goroutine to its OS thread while held because
// Windows mutex ownership belongs to the acquiring thread.
type windowsMutex struct {
	name   string
	handle windows.Handle
	held   bool
	closed bool
}

func (m *windowsMutex) Lock(timeout time.Duration) error {
	if m.closed {
		return ErrClosed
	}

	runtime.LockOSThread()
	event, err := windows.WaitForSingleObject(m.handle, uint32(timeout.Milliseconds()))
	switch {
	case err != nil:
		runtime.UnlockOSThread()
		return winError("WaitForSingleObject", m.name, err)
	case event == waitObject0:
		m.held = true
		return nil
	case event == waitAbandoned:
		m.held = true
		return ErrAbandoned
	case event == waitTimeout:
		runtime.UnlockOSThread()
		return ErrTimeout
	default:
		runtime.UnlockOSThread()
		return winError("WaitForSingleObject", m.name, fmt.Errorf("unexpected wait result 0x%x", event))
	}
}

func (m *windowsMutex) Unlock() error {
	if !m.held {
		return ErrNotHeld
	}
	m.held = false
	err := windows.ReleaseMutex(m.handle)
	runtime.UnlockOSThread()
	return err
}

func (m *windowsMutex) Close() error {
	if m.closed {
		return nil
	}
	var err error
	if m.held {
		err = m.Unlock()
	}
	m.closed = true
	return errors.Join(err, windows.CloseHandle(m.handle))
}
