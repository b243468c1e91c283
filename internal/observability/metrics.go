// Package observability provides metrics and monitoring capabilities for rf2bridge.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/rf2bridge/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry     *prometheus.Registry
	SharedMemory *metrics.SharedMemoryMetrics
	Bridge       *metrics.BridgeMetrics
	MQTT         *metrics.MQTTMetrics
	Transport    *metrics.TransportMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry,
// including Go runtime and process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	shmMetrics, err := metrics.NewSharedMemoryMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared memory metrics: %w", err)
	}

	bridgeMetrics, err := metrics.NewBridgeMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	transportMetrics, err := metrics.NewTransportMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport metrics: %w", err)
	}

	return &Metrics{
		registry:     registry,
		SharedMemory: shmMetrics,
		Bridge:       bridgeMetrics,
		MQTT:         mqttMetrics,
		Transport:    transportMetrics,
	}, nil
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving the registry in exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
