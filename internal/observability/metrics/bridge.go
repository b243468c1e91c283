package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BridgeMetrics covers the polling driver and the reconnect supervisor.
type BridgeMetrics struct {
	Ticks           *prometheus.CounterVec
	TickDuration    prometheus.Histogram
	Sessions        prometheus.Counter
	ConnectAttempts prometheus.Counter
	State           prometheus.Gauge
	ProcessRunning  prometheus.Gauge
	registry        *prometheus.Registry
}

// NewBridgeMetrics creates and registers bridge metrics.
func NewBridgeMetrics(registry *prometheus.Registry) (*BridgeMetrics, error) {
	m := &BridgeMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register bridge metrics: %w", err)
	}
	return m, nil
}

func (m *BridgeMetrics) initMetrics() {
	m.Ticks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_ticks_total",
		Help: "Polling ticks by outcome",
	}, []string{"outcome"})

	m.TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridge_tick_duration_seconds",
		Help:    "Wall time of one polling tick including publishing",
		Buckets: tickBuckets,
	})

	m.Sessions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bridge_sessions_total",
		Help: "Sessions started after a successful connect",
	})

	m.ConnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bridge_connect_attempts_total",
		Help: "Attempts to attach both shared-memory channels",
	})

	m.State = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_supervisor_state",
		Help: "Supervisor state (0 disconnected, 1 connecting, 2 connected)",
	})

	m.ProcessRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_simulator_process_running",
		Help: "Whether the simulator process was seen at the last probe",
	})
}

// RecordTick records one tick outcome and its duration.
func (m *BridgeMetrics) RecordTick(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues(outcome).Inc()
	m.TickDuration.Observe(d.Seconds())
}

// IncrementSessions counts a new session.
func (m *BridgeMetrics) IncrementSessions() {
	if m == nil {
		return
	}
	m.Sessions.Inc()
}

// IncrementConnectAttempts counts a connect attempt.
func (m *BridgeMetrics) IncrementConnectAttempts() {
	if m == nil {
		return
	}
	m.ConnectAttempts.Inc()
}

// SetState exports the numeric supervisor state.
func (m *BridgeMetrics) SetState(state int) {
	if m == nil {
		return
	}
	m.State.Set(float64(state))
}

// SetProcessRunning exports the last process probe result.
func (m *BridgeMetrics) SetProcessRunning(running bool) {
	if m == nil {
		return
	}
	m.ProcessRunning.Set(boolToFloat(running))
}

// Collect implements the prometheus.Collector interface.
func (m *BridgeMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Ticks.Collect(ch)
	ch <- m.TickDuration
	ch <- m.Sessions
	ch <- m.ConnectAttempts
	ch <- m.State
	ch <- m.ProcessRunning
}

// Describe implements the prometheus.Collector interface.
func (m *BridgeMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Ticks.Describe(ch)
	ch <- m.TickDuration.Desc()
	ch <- m.Sessions.Desc()
	ch <- m.ConnectAttempts.Desc()
	ch <- m.State.Desc()
	ch <- m.ProcessRunning.Desc()
}
