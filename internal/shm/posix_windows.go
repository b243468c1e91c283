//go:build windows

package shm

import "github.com/tphakala/rf2bridge/internal/errors"

func newPOSIXBackend(string) (Backend, error) {
	return nil, errors.Newf("posix shared memory backend is not available on windows").
		Component(componentSHM).
		Category(errors.CategoryConfiguration).
		Build()
}
