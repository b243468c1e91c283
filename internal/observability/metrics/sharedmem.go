// Package metrics provides custom Prometheus metrics for the components of rf2bridge.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SharedMemoryMetrics covers double-buffer reads on every channel.
type SharedMemoryMetrics struct {
	Reads       *prometheus.CounterVec
	ReadErrors  *prometheus.CounterVec
	LockWait    *prometheus.HistogramVec
	BytesCopied *prometheus.HistogramVec
	Connected   *prometheus.GaugeVec
	registry    *prometheus.Registry
}

// NewSharedMemoryMetrics creates and registers shared-memory metrics.
func NewSharedMemoryMetrics(registry *prometheus.Registry) (*SharedMemoryMetrics, error) {
	m := &SharedMemoryMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register shared memory metrics: %w", err)
	}
	return m, nil
}

func (m *SharedMemoryMetrics) initMetrics() {
	m.Reads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shm_reads_total",
		Help: "Completed double-buffer reads by channel, policy and source buffer",
	}, []string{"channel", "policy", "buffer"})

	m.ReadErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shm_read_errors_total",
		Help: "Failed double-buffer reads by channel and reason",
	}, []string{"channel", "reason"})

	m.LockWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shm_lock_wait_seconds",
		Help:    "Time spent waiting for a channel lock",
		Buckets: lockWaitBuckets,
	}, []string{"channel"})

	m.BytesCopied = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shm_bytes_copied",
		Help:    "Bytes copied out of shared memory per read",
		Buckets: bytesBuckets,
	}, []string{"channel"})

	m.Connected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shm_channel_connected",
		Help: "Whether a channel is attached (1) or detached (0)",
	}, []string{"channel"})
}

// RecordRead records a completed read.
func (m *SharedMemoryMetrics) RecordRead(channel, policy string, buffer, bytes int, wait time.Duration) {
	if m == nil {
		return
	}
	m.Reads.WithLabelValues(channel, policy, strconv.Itoa(buffer)).Inc()
	m.LockWait.WithLabelValues(channel).Observe(wait.Seconds())
	m.BytesCopied.WithLabelValues(channel).Observe(float64(bytes))
}

// RecordReadError records a failed read with one of the Reason* values.
func (m *SharedMemoryMetrics) RecordReadError(channel, reason string) {
	if m == nil {
		return
	}
	m.ReadErrors.WithLabelValues(channel, reason).Inc()
}

// SetConnected updates the attach state of a channel.
func (m *SharedMemoryMetrics) SetConnected(channel string, connected bool) {
	if m == nil {
		return
	}
	m.Connected.WithLabelValues(channel).Set(boolToFloat(connected))
}

// Collect implements the prometheus.Collector interface.
func (m *SharedMemoryMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Reads.Collect(ch)
	m.ReadErrors.Collect(ch)
	m.LockWait.Collect(ch)
	m.BytesCopied.Collect(ch)
	m.Connected.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *SharedMemoryMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Reads.Describe(ch)
	m.ReadErrors.Describe(ch)
	m.LockWait.Describe(ch)
	m.BytesCopied.Describe(ch)
	m.Connected.Describe(ch)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
