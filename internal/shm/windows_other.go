//go:build !windows

package shm

import "github.com/tphakala/rf2bridge/internal/errors"

func newWindowsBackend() (Backend, error) {
	return nil, errors.Newf("windows shared memory backend is only available on windows").
		Component(componentSHM).
		Category(errors.CategoryConfiguration).
		Build()
}
