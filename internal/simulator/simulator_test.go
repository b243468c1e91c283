package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/rf2bridge/internal/conf"
	"github.com/tphakala/rf2bridge/internal/mapped"
	"github.com/tphakala/rf2bridge/internal/rf2"
	"github.com/tphakala/rf2bridge/internal/shm"
	"github.com/tphakala/rf2bridge/internal/snapshot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSettings() *conf.BridgeSettings {
	return &conf.BridgeSettings{
		LockTimeout: time.Second,
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

func connectReaders(t *testing.T, backend shm.Opener, s *conf.BridgeSettings) (*rf2.TelemetryReader, *rf2.ScoringReader) {
	t.Helper()
	tel := rf2.NewTelemetryReader(backend, s.Telemetry)
	sc := rf2.NewScoringReader(backend, s.Scoring)
	require.NoError(t, tel.Connect())
	require.NoError(t, sc.Connect())
	t.Cleanup(func() {
		_ = tel.Disconnect()
		_ = sc.Disconnect()
	})
	return tel, sc
}

func TestStepProducesCorrelatedSession(t *testing.T) {
	backend := shm.NewMemory()
	s := testSettings()
	sim, err := New(backend, s, 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sim.Close() })

	require.NoError(t, sim.Step(5*time.Second))

	tel, sc := connectReaders(t, backend, s)
	for _, policy := range []mapped.Policy{mapped.PolicyFull, mapped.PolicyPartial} {
		t.Run(policy.String(), func(t *testing.T) {
			var telemetry rf2.Telemetry
			var scoring rf2.Scoring
			_, err := sc.Read(policy, &scoring)
			require.NoError(t, err)
			_, err = tel.Read(policy, &telemetry)
			require.NoError(t, err)

			assert.Equal(t, rf2.PhaseGreenFlag, scoring.Phase())
			assert.Len(t, scoring.ActiveVehicles(), 3)
			assert.Len(t, telemetry.ActiveVehicles(), 3)

			snap, outcome := snapshot.Correlate(&telemetry, &scoring)
			require.Equal(t, snapshot.Selected, outcome)
			assert.Equal(t, int32(1), snap.Scoring.ID)
			assert.Equal(t, "Local Player", rf2.CString(snap.Scoring.DriverName[:]))
			assert.Equal(t, snap.Scoring.ID, snap.Telemetry.ID)

			for _, w := range snap.Telemetry.Wheels {
				assert.InDelta(t, baseInnerTemp, w.TireInnerLayerTemperature[0], tempSwing)
				assert.InDelta(t, baseCarcassTemp, w.TireCarcassTemperature, tempSwing)
			}
		})
	}
}

func TestPartialHintCoversActiveVehicles(t *testing.T) {
	backend := shm.NewMemory()
	s := testSettings()
	sim, err := New(backend, s, 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sim.Close() })
	require.NoError(t, sim.Step(0))

	_, sc := connectReaders(t, backend, s)
	var scoring rf2.Scoring
	stats, err := sc.ReadPartial(&scoring)
	require.NoError(t, err)
	assert.Equal(t, scoringPrefix+2*vehicleScoring, stats.Bytes)
	assert.Less(t, stats.Bytes, rf2.ScoringSize)
}

func TestVehicleCountIsClamped(t *testing.T) {
	backend := shm.NewMemory()
	sim, err := New(backend, testSettings(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sim.Close() })
	assert.Equal(t, 1, sim.vehicles)
}

func TestRunRemovesChannelsOnCancel(t *testing.T) {
	backend := shm.NewMemory()
	s := testSettings()
	sim, err := New(backend, s, DefaultVehicles)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx, 5*time.Millisecond) }()

	tel := rf2.NewTelemetryReader(backend, s.Telemetry)
	require.Eventually(t, func() bool {
		var telemetry rf2.Telemetry
		if err := tel.Connect(); err != nil {
			return false
		}
		_, err := tel.ReadFull(&telemetry)
		return err == nil && telemetry.NumVehicles == DefaultVehicles
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, tel.Disconnect())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("simulator did not stop")
	}

	err = tel.Connect()
	require.Error(t, err)
	assert.ErrorIs(t, err, mapped.ErrResourceNotFound)
}
