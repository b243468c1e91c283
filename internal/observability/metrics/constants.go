// Package metrics provides constants used across metric definitions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tick outcome label values.
const (
	OutcomeEmitted     = "emitted"
	OutcomeGateClosed  = "gate_closed"  // empty arrays or phase not green
	OutcomeNoPlayer    = "no_player"    // no eligible flagged vehicle
	OutcomeNoTelemetry = "no_telemetry" // player id missing from telemetry
	OutcomeLockTimeout = "lock_timeout"
)

// Read failure reason label values.
const (
	ReasonLockTimeout  = "lock_timeout"
	ReasonAbandoned    = "lock_abandoned"
	ReasonRead         = "read"
	ReasonDecode       = "decode"
	ReasonNotConnected = "not_connected"
)

// ShutdownTimeout bounds graceful shutdown of metric HTTP listeners.
const ShutdownTimeout = 5 * time.Second

var (
	// lockWaitBuckets spans 10µs to ~2.6s.
	lockWaitBuckets = prometheus.ExponentialBuckets(0.00001, 4, 10)
	// bytesBuckets spans 64B to 128KiB; a full telemetry record is ~65KiB.
	bytesBuckets = prometheus.ExponentialBuckets(64, 2, 12)
	// tickBuckets spans 50µs to ~100ms.
	tickBuckets = prometheus.ExponentialBuckets(0.00005, 2, 12)
)
