// Package simulator produces a synthetic rFactor 2 session on a shared-memory
// backend, following the same double-buffer protocol as the game plugin.
package simulator

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/tphakala/rf2bridge/internal/conf"
	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/logger"
	"github.com/tphakala/rf2bridge/internal/mapped"
	"github.com/tphakala/rf2bridge/internal/rf2"
	"github.com/tphakala/rf2bridge/internal/shm"
)

// DefaultVehicles is the field size of a simulated session.
const DefaultVehicles = 4

// Kelvin
const (
	baseInnerTemp   = 353.0
	baseCarcassTemp = 345.0
	tempSwing       = 6.0
)

var (
	scoringPrefix   = 8 + binary.Size(rf2.ScoringInfo{})
	vehicleScoring  = binary.Size(rf2.VehicleScoring{})
	telemetryPrefix = 12
	vehicleTel      = binary.Size(rf2.VehicleTelemetry{})
)

// Simulator owns both channels while it runs.
type Simulator struct {
	telemetry   *mapped.Writer
	scoring     *mapped.Writer
	lockTimeout time.Duration
	vehicles    int
	trackName   string
}

// New creates the telemetry and scoring channels named in s. vehicles is
// clamped to 1..rf2.MaxMappedVehicles; car 0 is the local player.
func New(creator shm.Creator, s *conf.BridgeSettings, vehicles int) (*Simulator, error) {
	vehicles = max(1, min(vehicles, rf2.MaxMappedVehicles))

	tel, err := mapped.NewWriter(creator, rf2.TelemetryChannel(s.Telemetry), rf2.TelemetrySize)
	if err != nil {
		return nil, err
	}
	sc, err := mapped.NewWriter(creator, rf2.ScoringChannel(s.Scoring), rf2.ScoringSize)
	if err != nil {
		_ = tel.Remove()
		return nil, err
	}
	return &Simulator{
		telemetry:   tel,
		scoring:     sc,
		lockTimeout: s.LockTimeout,
		vehicles:    vehicles,
		trackName:   "Simulated Raceway",
	}, nil
}

// Step writes one scoring and one telemetry update for elapsed session time.
func (s *Simulator) Step(elapsed time.Duration) error {
	sc := s.scoringAt(elapsed)
	img, err := rf2.Encode(sc)
	if err != nil {
		return err
	}
	if err := s.scoring.Write(img, int32(scoringPrefix+s.vehicles*vehicleScoring), s.lockTimeout); err != nil {
		return writeError(rf2.ChannelScoring, err)
	}

	tel := s.telemetryAt(elapsed)
	if img, err = rf2.Encode(tel); err != nil {
		return err
	}
	if err := s.telemetry.Write(img, int32(telemetryPrefix+s.vehicles*vehicleTel), s.lockTimeout); err != nil {
		return writeError(rf2.ChannelTelemetry, err)
	}
	return nil
}

// Run steps every interval until ctx is cancelled, then removes both channels.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) error {
	defer func() {
		if err := s.Close(); err != nil {
			getLogger().Warn("failed to remove simulated channels", logger.Error(err))
		}
	}()

	getLogger().Info("simulating green flag session",
		logger.Int("vehicles", s.vehicles),
		logger.Duration("interval", interval))

	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Step(time.Since(start)); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Close removes the channels so readers see the simulator go away.
func (s *Simulator) Close() error {
	return errors.Join(s.telemetry.Remove(), s.scoring.Remove())
}

func (s *Simulator) scoringAt(elapsed time.Duration) *rf2.Scoring {
	sc := &rf2.Scoring{}
	info := &sc.ScoringInfo
	rf2.SetCString(info.TrackName[:], s.trackName)
	info.Session = 10 // race 1
	info.CurrentET = elapsed.Seconds()
	info.EndET = time.Hour.Seconds()
	info.NumVehicles = int32(s.vehicles)
	info.GamePhase = uint8(rf2.PhaseGreenFlag)

	for i := range s.vehicles {
		v := &sc.Vehicles[i]
		v.ID = vehicleID(i)
		v.Place = uint8(i + 1)
		v.Control = int8(rf2.ControlAI)
		rf2.SetCString(v.DriverName[:], fmt.Sprintf("Driver %d", i+1))
		rf2.SetCString(v.VehicleName[:], fmt.Sprintf("Car #%d", v.ID))
	}
	player := &sc.Vehicles[0]
	player.IsPlayer = 1
	player.Control = int8(rf2.ControlPlayer)
	rf2.SetCString(player.DriverName[:], "Local Player")
	return sc
}

// telemetryAt lists vehicles in reverse order; correlation goes by id.
func (s *Simulator) telemetryAt(elapsed time.Duration) *rf2.Telemetry {
	tel := &rf2.Telemetry{NumVehicles: int32(s.vehicles)}
	secs := elapsed.Seconds()

	for i := range s.vehicles {
		car := s.vehicles - 1 - i
		v := &tel.Vehicles[i]
		v.ID = vehicleID(car)
		v.ElapsedTime = secs
		rf2.SetCString(v.VehicleName[:], fmt.Sprintf("Car #%d", v.ID))
		rf2.SetCString(v.TrackName[:], s.trackName)

		for w := range v.Wheels {
			wheel := &v.Wheels[w]
			phase := secs/10 + float64(car) + float64(w)*math.Pi/2
			swing := tempSwing * math.Sin(phase)
			for t := range wheel.TireInnerLayerTemperature {
				wheel.TireInnerLayerTemperature[t] = baseInnerTemp + swing + float64(t)
			}
			wheel.Temperature = wheel.TireInnerLayerTemperature
			wheel.TireCarcassTemperature = baseCarcassTemp + swing/2
			wheel.Pressure = 160
		}
	}
	return tel
}

func vehicleID(i int) int32 { return int32(i + 1) }

func writeError(channel string, err error) error {
	return errors.New(err).
		Component("simulator").
		Category(errors.CategorySharedMemory).
		Context("channel", channel).
		Build()
}

func getLogger() logger.Logger {
	return logger.Global().Module("simulator")
}
