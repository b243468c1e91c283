package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)
	m := <-ch
	require.NotNil(t, m)
	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}

func TestSharedMemoryMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewSharedMemoryMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordRead("telemetry", "partial", 2, 512, time.Millisecond)
	m.RecordRead("telemetry", "partial", 2, 512, time.Millisecond)
	m.RecordReadError("scoring", ReasonLockTimeout)
	m.SetConnected("scoring", true)

	assert.InDelta(t, 2, counterValue(t, m.Reads.WithLabelValues("telemetry", "partial", "2")), 0)
	assert.InDelta(t, 1, counterValue(t, m.ReadErrors.WithLabelValues("scoring", ReasonLockTimeout)), 0)
	assert.InDelta(t, 1, counterValue(t, m.Connected.WithLabelValues("scoring")), 0)
}

func TestBridgeMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewBridgeMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordTick(OutcomeEmitted, time.Millisecond)
	m.RecordTick(OutcomeGateClosed, time.Millisecond)
	m.RecordTick(OutcomeEmitted, time.Millisecond)
	m.IncrementSessions()
	m.SetState(2)

	assert.InDelta(t, 2, counterValue(t, m.Ticks.WithLabelValues(OutcomeEmitted)), 0)
	assert.InDelta(t, 1, counterValue(t, m.Sessions), 0)
	assert.InDelta(t, 2, counterValue(t, m.State), 0)
}

func TestTransportMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewTransportMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordPublish("mqtt", nil)
	m.RecordPublish("mqtt", errors.New("broker down"))
	m.SetHubClients(3)

	assert.InDelta(t, 1, counterValue(t, m.Published.WithLabelValues("mqtt")), 0)
	assert.InDelta(t, 1, counterValue(t, m.PublishFailures.WithLabelValues("mqtt")), 0)
	assert.InDelta(t, 3, counterValue(t, m.HubClients), 0)
}

func TestNilMetricsAreNoops(t *testing.T) {
	t.Parallel()

	var shm *SharedMemoryMetrics
	var bridge *BridgeMetrics
	var mqtt *MQTTMetrics
	var transport *TransportMetrics

	assert.NotPanics(t, func() {
		shm.RecordRead("telemetry", "full", 1, 10, 0)
		shm.RecordReadError("telemetry", ReasonRead)
		bridge.RecordTick(OutcomeEmitted, 0)
		bridge.SetProcessRunning(true)
		mqtt.IncrementErrors()
		mqtt.StartPublishTimer().ObserveDuration()
		transport.RecordPublish("hub", nil)
	})
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewMQTTMetrics(reg)
	require.NoError(t, err)
	_, err = NewMQTTMetrics(reg)
	require.Error(t, err)
}
