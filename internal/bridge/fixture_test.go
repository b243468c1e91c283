package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/rf2bridge/internal/conf"
	"github.com/tphakala/rf2bridge/internal/mapped"
	"github.com/tphakala/rf2bridge/internal/rf2"
	"github.com/tphakala/rf2bridge/internal/shm"
	"github.com/tphakala/rf2bridge/internal/snapshot"
)

var (
	telemetrySettings = conf.ChannelSettings{
		Buffer1: conf.DefaultTelemetryBuffer1,
		Buffer2: conf.DefaultTelemetryBuffer2,
		Mutex:   conf.DefaultTelemetryMutex,
	}
	scoringSettings = conf.ChannelSettings{
		Buffer1: conf.DefaultScoringBuffer1,
		Buffer2: conf.DefaultScoringBuffer2,
		Mutex:   conf.DefaultScoringMutex,
	}
	testConfig = Config{
		Interval:          5 * time.Millisecond,
		ReconnectInterval: 10 * time.Millisecond,
		Policy:            mapped.PolicyPartial,
		ProcessName:       "rFactor2.exe",
	}
)

const playerID = 2

// fixture is an in-memory simulator: both channels plus readers over them.
type fixture struct {
	backend *shm.Memory
	telW    *mapped.Writer
	scW     *mapped.Writer
	tel     *rf2.TelemetryReader
	sc      *rf2.ScoringReader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := shm.NewMemory()
	f := &fixture{
		backend: backend,
		tel:     rf2.NewTelemetryReader(backend, telemetrySettings, mapped.WithLockTimeout(20*time.Millisecond)),
		sc:      rf2.NewScoringReader(backend, scoringSettings, mapped.WithLockTimeout(20*time.Millisecond)),
	}
	t.Cleanup(func() {
		_ = f.tel.Disconnect()
		_ = f.sc.Disconnect()
		f.removeWriters()
	})
	return f
}

func (f *fixture) startWriters(t *testing.T) {
	t.Helper()
	var err error
	f.telW, err = mapped.NewWriter(f.backend, rf2.TelemetryChannel(telemetrySettings), rf2.TelemetrySize)
	require.NoError(t, err)
	f.scW, err = mapped.NewWriter(f.backend, rf2.ScoringChannel(scoringSettings), rf2.ScoringSize)
	require.NoError(t, err)
}

func (f *fixture) removeWriters() {
	for _, w := range []*mapped.Writer{f.telW, f.scW} {
		if w != nil {
			_ = w.Remove()
		}
	}
	f.telW, f.scW = nil, nil
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, f.tel.Connect())
	require.NoError(t, f.sc.Connect())
}

// writeSession publishes an AI car and the flagged player car in phase.
func (f *fixture) writeSession(t *testing.T, phase rf2.GamePhase) {
	t.Helper()

	var sc rf2.Scoring
	sc.ScoringInfo.GamePhase = uint8(phase)
	sc.ScoringInfo.NumVehicles = 2
	sc.Vehicles[0].ID = 1
	sc.Vehicles[0].Control = int8(rf2.ControlAI)
	sc.Vehicles[1].ID = playerID
	sc.Vehicles[1].Control = int8(rf2.ControlPlayer)
	sc.Vehicles[1].IsPlayer = 1
	rf2.SetCString(sc.Vehicles[1].DriverName[:], "Local Player")
	f.writeScoring(t, &sc)

	var tel rf2.Telemetry
	tel.NumVehicles = 2
	tel.Vehicles[0].ID = playerID
	tel.Vehicles[1].ID = 1
	for i := range tel.Vehicles[0].Wheels {
		w := &tel.Vehicles[0].Wheels[i]
		w.TireInnerLayerTemperature = [3]float64{350, 351, 352}
		w.TireCarcassTemperature = 340 + float64(i)
	}
	f.writeTelemetry(t, &tel)
}

func (f *fixture) writeScoring(t *testing.T, sc *rf2.Scoring) {
	t.Helper()
	img, err := rf2.Encode(sc)
	require.NoError(t, err)
	require.NoError(t, f.scW.Write(img, 0, time.Second))
}

func (f *fixture) writeTelemetry(t *testing.T, tel *rf2.Telemetry) {
	t.Helper()
	img, err := rf2.Encode(tel)
	require.NoError(t, err)
	require.NoError(t, f.telW.Write(img, 0, time.Second))
}

// capture is a Publisher that keeps every message.
type capture struct {
	mu   sync.Mutex
	msgs []*snapshot.Message
	err  error
}

func (c *capture) Publish(_ context.Context, msg *snapshot.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return c.err
}

func (c *capture) messages() []*snapshot.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*snapshot.Message(nil), c.msgs...)
}
