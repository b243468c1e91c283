package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// TransportMetrics counts snapshot deliveries per transport and the
// websocket hub's subscriber activity.
type TransportMetrics struct {
	Published       *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
	HubClients      prometheus.Gauge
	HubDropped      prometheus.Counter
	registry        *prometheus.Registry
}

// NewTransportMetrics creates and registers transport metrics.
func NewTransportMetrics(registry *prometheus.Registry) (*TransportMetrics, error) {
	m := &TransportMetrics{registry: registry}
	m.Published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transport_messages_published_total",
		Help: "Snapshot messages handed to a transport successfully",
	}, []string{"transport"})
	m.PublishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transport_publish_failures_total",
		Help: "Snapshot messages a transport failed to deliver",
	}, []string{"transport"})
	m.HubClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_clients",
		Help: "Connected websocket subscribers",
	})
	m.HubDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_messages_total",
		Help: "Messages dropped because a subscriber was too slow",
	})

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register transport metrics: %w", err)
	}
	return m, nil
}

// RecordPublish records the result of one delivery attempt.
func (m *TransportMetrics) RecordPublish(transport string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PublishFailures.WithLabelValues(transport).Inc()
		return
	}
	m.Published.WithLabelValues(transport).Inc()
}

// SetHubClients exports the current subscriber count.
func (m *TransportMetrics) SetHubClients(n int) {
	if m == nil {
		return
	}
	m.HubClients.Set(float64(n))
}

// IncrementHubDropped counts a message dropped for a slow subscriber.
func (m *TransportMetrics) IncrementHubDropped() {
	if m == nil {
		return
	}
	m.HubDropped.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *TransportMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Published.Collect(ch)
	m.PublishFailures.Collect(ch)
	ch <- m.HubClients
	ch <- m.HubDropped
}

// Describe implements the prometheus.Collector interface.
func (m *TransportMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Published.Describe(ch)
	m.PublishFailures.Describe(ch)
	ch <- m.HubClients.Desc()
	ch <- m.HubDropped.Desc()
}
