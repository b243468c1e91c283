package dump

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rf2bridge/internal/conf"
	"github.com/tphakala/rf2bridge/internal/mapped"
	"github.com/tphakala/rf2bridge/internal/observability/metrics"
	"github.com/tphakala/rf2bridge/internal/rf2"
	"github.com/tphakala/rf2bridge/internal/shm"
	"github.com/tphakala/rf2bridge/internal/simulator"
	"github.com/tphakala/rf2bridge/internal/snapshot"
)

func testSettings() *conf.BridgeSettings {
	return &conf.BridgeSettings{
		Interval:          200 * time.Millisecond,
		LockTimeout:       100 * time.Millisecond,
		ReconnectInterval: time.Second,
		ReadPolicy:        conf.ReadPolicyPartial,
		Telemetry: conf.ChannelSettings{
			Buffer1: conf.DefaultTelemetryBuffer1,
			Buffer2: conf.DefaultTelemetryBuffer2,
			Mutex:   conf.DefaultTelemetryMutex,
		},
		Scoring: conf.ChannelSettings{
			Buffer1: conf.DefaultScoringBuffer1,
			Buffer2: conf.DefaultScoringBuffer2,
			Mutex:   conf.DefaultScoringMutex,
		},
	}
}

func TestDumpPrintsPlayerMessage(t *testing.T) {
	for _, policy := range []mapped.Policy{mapped.PolicyFull, mapped.PolicyPartial} {
		t.Run(policy.String(), func(t *testing.T) {
			backend := shm.NewMemory()
			s := testSettings()
			sim, err := simulator.New(backend, s, 3)
			require.NoError(t, err)
			t.Cleanup(func() { _ = sim.Close() })
			require.NoError(t, sim.Step(time.Second))

			var out bytes.Buffer
			require.NoError(t, Run(context.Background(), backend, s, policy, &out))

			var msg snapshot.Message
			require.NoError(t, json.Unmarshal(out.Bytes(), &msg))
			assert.Equal(t, int32(1), msg.VehicleID)
			assert.Equal(t, "Local Player", msg.DriverName)
			assert.NotEmpty(t, msg.SessionID)
		})
	}
}

func TestDumpReportsReason(t *testing.T) {
	backend := shm.NewMemory()
	s := testSettings()
	telW, err := mapped.NewWriter(backend, rf2.TelemetryChannel(s.Telemetry), rf2.TelemetrySize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = telW.Remove() })
	scW, err := mapped.NewWriter(backend, rf2.ScoringChannel(s.Scoring), rf2.ScoringSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = scW.Remove() })

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), backend, s, mapped.PolicyFull, &out))
	assert.Equal(t, "no message: "+reasons[metrics.OutcomeGateClosed]+"\n", out.String())
}

func TestDumpWithoutSimulator(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), shm.NewMemory(), testSettings(), mapped.PolicyFull, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, mapped.ErrResourceNotFound)
	assert.Empty(t, out.String())
}
