package shm

import (
	"sync"
	"sync/atomic"
	"time"
)

// Memory is an in-process Backend. Regions and locks are shared by name
// between every handle opened from the same Memory.
type Memory struct {
	mu      sync.Mutex
	regions map[string]*memRegionState
	mutexes map[string]*memMutexState
}

type memRegionState struct {
	mu      sync.RWMutex
	data    []byte
	removed atomic.Bool
}

type memMutexState struct {
	sem       chan struct{}
	abandoned atomic.Bool
}

// NewMemory returns an empty in-process backend
func NewMemory() *Memory {
	return &Memory{
		regions: make(map[string]*memRegionState),
		mutexes: make(map[string]*memMutexState),
	}
}

// Kind implements Backend
func (m *Memory) Kind() string { return KindMemory }

// CreateRegion creates name or returns the existing region when sizes match.
func (m *Memory) CreateRegion(name string, size int) (WritableRegion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.regions[name]
	if !ok || state.removed.Load() || len(state.data) != size {
		state = &memRegionState{data: make([]byte, size)}
		m.regions[name] = state
	}
	return &memRegion{name: name, state: state}, nil
}

// CreateMutex creates name or returns a handle to the existing lock.
func (m *Memory) CreateMutex(name string) (Mutex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.mutexes[name]
	if !ok {
		state = &memMutexState{sem: make(chan struct{}, 1)}
		m.mutexes[name] = state
	}
	return &MemoryMutex{state: state}, nil
}

// Remove deletes name. Open handles to a removed region fail with ErrVanished.
func (m *Memory) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.regions[name]; ok {
		state.removed.Store(true)
		delete(m.regions, name)
	}
	delete(m.mutexes, name)
	return nil
}

// OpenRegion implements Opener
func (m *Memory) OpenRegion(name string, size int) (Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.regions[name]
	if !ok {
		return nil, notExist("region", name)
	}
	if len(state.data) < size {
		return nil, checkRange(name, 0, size, len(state.data))
	}
	return &memRegion{name: name, state: state}, nil
}

// OpenMutex implements Opener
func (m *Memory) OpenMutex(name string) (Mutex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.mutexes[name]
	if !ok {
		return nil, notExist("mutex", name)
	}
	return &MemoryMutex{state: state}, nil
}

type memRegion struct {
	name   string
	state  *memRegionState
	closed atomic.Bool
}

func (r *memRegion) Name() string { return r.name }
func (r *memRegion) Size() int    { return len(r.state.data) }

func (r *memRegion) usable() error {
	if r.closed.Load() {
		return ErrClosed
	}
	if r.state.removed.Load() {
		return ErrVanished
	}
	return nil
}

func (r *memRegion) Check() error { return r.usable() }

func (r *memRegion) ReadAt(p []byte, off int64) (int, error) {
	if err := r.usable(); err != nil {
		return 0, err
	}
	if err := checkRange(r.name, off, len(p), len(r.state.data)); err != nil {
		return 0, err
	}
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	return copy(p, r.state.data[off:]), nil
}

func (r *memRegion) WriteAt(p []byte, off int64) (int, error) {
	if err := r.usable(); err != nil {
		return 0, err
	}
	if err := checkRange(r.name, off, len(p), len(r.state.data)); err != nil {
		return 0, err
	}
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return copy(r.state.data[off:], p), nil
}

func (r *memRegion) Close() error {
	r.closed.Store(true)
	return nil
}

// MemoryMutex is a handle to an in-process named lock
type MemoryMutex struct {
	state  *memMutexState
	held   atomic.Bool
	closed atomic.Bool
}

// Lock implements Mutex
func (mu *MemoryMutex) Lock(timeout time.Duration) error {
	if mu.closed.Load() {
		return ErrClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case mu.state.sem <- struct{}{}:
		mu.held.Store(true)
		if mu.state.abandoned.CompareAndSwap(true, false) {
			return ErrAbandoned
		}
		return nil
	case <-timer.C:
		return ErrTimeout
	}
}

// Unlock implements Mutex
func (mu *MemoryMutex) Unlock() error {
	if !mu.held.CompareAndSwap(true, false) {
		return ErrNotHeld
	}
	<-mu.state.sem
	return nil
}

// Abandon releases a held lock the way the OS does when its owner dies:
// the next Lock succeeds with ErrAbandoned.
func (mu *MemoryMutex) Abandon() {
	if !mu.held.CompareAndSwap(true, false) {
		return
	}
	mu.state.abandoned.Store(true)
	<-mu.state.sem
}

// Close releases the lock if held
func (mu *MemoryMutex) Close() error {
	if mu.closed.Swap(true) {
		return nil
	}
	if mu.held.Load() {
		return mu.Unlock()
	}
	return nil
}
