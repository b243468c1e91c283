package bridge

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessProbe reports whether a process with the given executable name runs.
type ProcessProbe func(ctx context.Context, name string) (bool, error)

// ProcessRunning scans the process table for name, case-insensitively.
func ProcessRunning(ctx context.Context, name string) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil {
			continue // exited or not accessible
		}
		if strings.EqualFold(n, name) {
			return true, nil
		}
	}
	return false, nil
}
