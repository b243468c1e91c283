// Package rf2 describes the rFactor 2 shared memory map plugin records the
// bridge reads: the telemetry and scoring buffers, their enums and default
// names.
//
// The structs follow the plugin's rF2State.h field for field. The plugin
// packs to 4 bytes and every field already falls on a packed boundary, so
// decoding little-endian with encoding/binary reproduces the mapped layout.
// Fields the bridge never reads are blank padding of the same size. The
// header's 1-byte currency flag is followed by 3 padding bytes.
package rf2

import "bytes"

// MaxMappedVehicles is the capacity of the vehicle arrays in both records.
const MaxMappedVehicles = 128

// Wheel indices in VehicleTelemetry.Wheels
const (
	FrontLeft = iota
	FrontRight
	RearLeft
	RearRight
	NumWheels
)

// Positions across the tread for the per-wheel temperature triples
const (
	TreadLeft = iota
	TreadCenter
	TreadRight
)

// Vec3 is a vector in vehicle or world coordinates.
type Vec3 struct {
	X, Y, Z float64
}

// Wheel is rF2Wheel, 260 bytes. Temperatures are Kelvin.
type Wheel struct {
	SuspensionDeflection      float64 // meters
	RideHeight                float64 // meters
	SuspForce                 float64 // pushrod load, N
	BrakeTemp                 float64 // Celsius
	BrakePressure             float64 // 0.0-1.0
	Rotation                  float64 // radians/sec
	_                         [7 * 8]byte
	TireLoad                  float64 // N
	GripFract                 float64
	Pressure                  float64    // kPa
	Temperature               [3]float64 // surface: left, center, right
	Wear                      float64
	TerrainName               [16]byte
	SurfaceType               uint8
	Flat                      uint8
	Detached                  uint8
	StaticUndeflectedRadius   uint8 // centimeters
	VerticalTireDeflection    float64
	WheelYLocation            float64
	Toe                       float64
	TireCarcassTemperature    float64
	TireInnerLayerTemperature [3]float64 // innermost rubber layer, across the tread
	_                         [24]byte   // expansion
}

// VehicleTelemetry is rF2VehicleTelemetry, 1888 bytes.
type VehicleTelemetry struct {
	ID          int32 // slot id, may be reused in multiplayer
	DeltaTime   float64
	ElapsedTime float64
	LapNumber   int32
	LapStartET  float64
	VehicleName [64]byte
	TrackName   [64]byte

	Pos           Vec3
	LocalVel      Vec3
	LocalAccel    Vec3
	Ori           [3]Vec3
	LocalRot      Vec3
	LocalRotAccel Vec3

	Gear            int32
	EngineRPM       float64
	EngineWaterTemp float64
	EngineOilTemp   float64
	ClutchRPM       float64

	_ [8 * 8]byte // unfiltered and filtered driver inputs
	_ [3 * 8]byte // steering shaft torque, third spring deflections
	_ [6 * 8]byte // aerodynamics

	Fuel         float64
	EngineMaxRPM float64
	_            [4]byte     // scheduled stops, overheating, detached, headlights
	_            [8]byte     // dent severity
	_            [5 * 8]byte // last impact time, magnitude and position
	_            [104]byte   // engine torque through physical steering range
	_            [152]byte   // expansion

	Wheels [NumWheels]Wheel
}

// Telemetry is rF2Telemetry, the full telemetry buffer including the header.
type Telemetry struct {
	CurrentRead      uint8
	_                [3]byte
	BytesUpdatedHint int32
	NumVehicles      int32
	Vehicles         [MaxMappedVehicles]VehicleTelemetry
}

// ScoringInfo is rF2ScoringInfo, 548 bytes.
type ScoringInfo struct {
	TrackName       [64]byte
	Session         int32 // 0 testday, 1-4 practice, 5-8 qual, 9 warmup, 10-13 race
	CurrentET       float64
	EndET           float64
	MaxLaps         int32
	LapDist         float64
	_               [8]byte // results stream pointer
	NumVehicles     int32
	GamePhase       uint8
	YellowFlagState int8
	SectorFlag      [3]int8
	StartLight      uint8
	NumRedLights    uint8
	InRealtime      uint8
	PlayerName      [32]byte
	PlrFileName     [64]byte

	DarkCloud      float64
	Raining        float64
	AmbientTemp    float64 // Celsius
	TrackTemp      float64 // Celsius
	Wind           Vec3
	MinPathWetness float64
	MaxPathWetness float64

	_              [44]byte // multiplayer: game mode through server name
	StartET        float32
	AvgPathWetness float64
	_              [200]byte // expansion
	_              [8]byte   // vehicle array pointer
}

// VehicleScoring is rF2VehicleScoring, 584 bytes.
type VehicleScoring struct {
	ID           int32
	DriverName   [32]byte
	VehicleName  [64]byte
	TotalLaps    int16
	Sector       int8 // 0 is sector 3
	FinishStatus int8
	LapDist      float64
	PathLateral  float64
	TrackEdge    float64
	_            [8 * 8]byte // best, last and current sector and lap times
	NumPitstops  int16
	NumPenalties int16
	IsPlayer     uint8
	Control      int8
	InPits       uint8
	Place        uint8 // 1-based
	VehicleClass [32]byte

	TimeBehindNext   float64
	LapsBehindNext   int32
	TimeBehindLeader float64
	LapsBehindLeader int32
	LapStartET       float64

	_ [8 * 24]byte // position, velocities and orientation
	_ [128]byte    // pit state, qualification, lap estimates, pit group, flags, upgrades, expansion
}

// Scoring is rF2Scoring, the full scoring buffer including the header.
type Scoring struct {
	CurrentRead      uint8
	_                [3]byte
	BytesUpdatedHint int32
	ScoringInfo      ScoringInfo
	Vehicles         [MaxMappedVehicles]VehicleScoring
}

// ActiveVehicles returns the populated prefix of the vehicle array.
func (t *Telemetry) ActiveVehicles() []VehicleTelemetry {
	return t.Vehicles[:clampCount(t.NumVehicles)]
}

// ActiveVehicles returns the populated prefix of the vehicle array.
func (s *Scoring) ActiveVehicles() []VehicleScoring {
	return s.Vehicles[:clampCount(s.ScoringInfo.NumVehicles)]
}

// Phase returns the session's game phase.
func (s *Scoring) Phase() GamePhase { return GamePhase(s.ScoringInfo.GamePhase) }

func (v *VehicleScoring) Player() bool { return v.IsPlayer != 0 }

// ControlMode returns who is driving the vehicle.
func (v *VehicleScoring) ControlMode() Control { return Control(v.Control) }

func clampCount(n int32) int {
	switch {
	case n < 0:
		return 0
	case n > MaxMappedVehicles:
		return MaxMappedVehicles
	default:
		return int(n)
	}
}

// CString returns the NUL-terminated prefix of b.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// SetCString stores s into b, truncated, NUL-terminated when it fits.
func SetCString(b []byte, s string) {
	clear(b)
	copy(b[:max(len(b)-1, 0)], s)
}
