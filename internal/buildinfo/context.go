// Package buildinfo contains build-time metadata kept separate from user configuration
package buildinfo

import (
	"fmt"
	"runtime"
)

// Set at link time:
//
//	go build -ldflags "-X github.com/tphakala/rf2bridge/internal/buildinfo.version=v1.2.0"
var (
	version   = ""
	buildDate = ""
	commit    = ""
)

// BuildInfo provides an interface for accessing build-time metadata.
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
	GetCommit() string
}

// Context contains build-time metadata that is not user-configurable
type Context struct {
	Version   string
	BuildDate string
	Commit    string
}

// Current returns the metadata injected into this binary
func Current() *Context {
	return &Context{Version: version, BuildDate: buildDate, Commit: commit}
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return "unknown"
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return "unknown"
	}
	return c.BuildDate
}

// GetCommit implements BuildInfo.GetCommit
func (c *Context) GetCommit() string {
	if c == nil || c.Commit == "" {
		return "unknown"
	}
	return c.Commit
}

// String renders a one-line version banner
func (c *Context) String() string {
	return fmt.Sprintf("rf2bridge %s (built %s, commit %s, %s/%s)",
		c.GetVersion(), c.GetBuildDate(), c.GetCommit(), runtime.GOOS, runtime.GOARCH)
}
