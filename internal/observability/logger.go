// Package observability provides Prometheus metrics functionality for monitoring rf2bridge.
package observability

import "github.com/tphakala/rf2bridge/internal/logger"

func log() logger.Logger {
	return logger.Global().Module("metrics")
}
