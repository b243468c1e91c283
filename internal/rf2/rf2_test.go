package rf2

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rf2bridge/internal/conf"
	"github.com/tphakala/rf2bridge/internal/mapped"
	"github.com/tphakala/rf2bridge/internal/shm"
)

func TestRecordSizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  int
		want int
	}{
		{"rF2Vec3", binary.Size(&Vec3{}), 24},
		{"rF2Wheel", binary.Size(&Wheel{}), 260},
		{"rF2VehicleTelemetry", binary.Size(&VehicleTelemetry{}), 1888},
		{"rF2ScoringInfo", binary.Size(&ScoringInfo{}), 548},
		{"rF2VehicleScoring", binary.Size(&VehicleScoring{}), 584},
		{"rF2Telemetry", TelemetrySize, 12 + MaxMappedVehicles*1888},
		{"rF2Scoring", ScoringSize, 8 + 548 + MaxMappedVehicles*584},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func float64At(b []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
}

func TestTelemetryFieldOffsets(t *testing.T) {
	t.Parallel()

	const (
		vehicles    = 12       // after header and mNumVehicles
		wheels      = 848      // mWheels within rF2VehicleTelemetry
		carcass     = 204      // mTireCarcassTemperature within rF2Wheel
		innerLayer  = 212      // mTireInnerLayerTemperature within rF2Wheel
		vehicleSize = 1888
		wheelSize   = 260
	)

	var tel Telemetry
	tel.CurrentRead = 1
	tel.BytesUpdatedHint = 4000
	tel.NumVehicles = 2
	tel.Vehicles[0].ID = 42
	tel.Vehicles[1].ID = 43
	tel.Vehicles[0].Wheels[FrontLeft].TireCarcassTemperature = 350
	tel.Vehicles[0].Wheels[RearLeft].TireInnerLayerTemperature = [3]float64{361, 362, 363}
	tel.Vehicles[1].Wheels[RearRight].TireCarcassTemperature = 377

	img, err := Encode(&tel)
	require.NoError(t, err)
	require.Len(t, img, TelemetrySize)

	assert.Equal(t, byte(1), img[0])
	assert.Equal(t, []byte{0, 0, 0}, img[1:4])
	assert.Equal(t, uint32(4000), binary.LittleEndian.Uint32(img[4:]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(img[8:]))
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(img[vehicles:]))
	assert.Equal(t, uint32(43), binary.LittleEndian.Uint32(img[vehicles+vehicleSize:]))

	assert.InDelta(t, 350, float64At(img, vehicles+wheels+carcass), 0)
	rl := vehicles + wheels + RearLeft*wheelSize + innerLayer
	assert.InDelta(t, 361, float64At(img, rl), 0)
	assert.InDelta(t, 362, float64At(img, rl+8), 0)
	assert.InDelta(t, 363, float64At(img, rl+16), 0)
	assert.InDelta(t, 377, float64At(img, vehicles+vehicleSize+wheels+RearRight*wheelSize+carcass), 0)
}

func TestScoringFieldOffsets(t *testing.T) {
	t.Parallel()

	const (
		info        = 8
		vehicles    = 8 + 548
		vehicleSize = 584
	)

	var sc Scoring
	sc.ScoringInfo.NumVehicles = 3
	sc.ScoringInfo.GamePhase = uint8(PhaseGreenFlag)
	SetCString(sc.ScoringInfo.PlayerName[:], "Local Player")
	sc.Vehicles[0].ID = 9
	sc.Vehicles[0].Control = int8(ControlRemote)
	sc.Vehicles[0].IsPlayer = 1
	sc.Vehicles[1].ID = 10
	sc.Vehicles[1].Place = 2
	SetCString(sc.Vehicles[1].DriverName[:], "Second")

	img, err := Encode(&sc)
	require.NoError(t, err)
	require.Len(t, img, ScoringSize)

	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(img[info+104:]))
	assert.Equal(t, byte(PhaseGreenFlag), img[info+108])
	assert.Equal(t, "Local Player", CString(img[info+116:info+148]))

	assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(img[vehicles:]))
	assert.Equal(t, byte(1), img[vehicles+196])
	assert.Equal(t, byte(ControlRemote), img[vehicles+197])

	second := vehicles + vehicleSize
	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(img[second:]))
	assert.Equal(t, "Second", CString(img[second+4:second+36]))
	assert.Equal(t, byte(2), img[second+199])
}

// A plugin image built byte by byte decodes into the documented fields.
func TestDecodePluginImage(t *testing.T) {
	t.Parallel()

	img := make([]byte, ScoringSize)
	img[0] = 1
	binary.LittleEndian.PutUint32(img[8+104:], 1)
	img[8+108] = byte(PhaseGreenFlag)
	binary.LittleEndian.PutUint32(img[556:], 77)
	img[556+196] = 1
	img[556+197] = byte(ControlPlayer)

	var sc Scoring
	require.NoError(t, scoringCodec.Decode(img, &sc))
	assert.Equal(t, PhaseGreenFlag, sc.Phase())
	require.Len(t, sc.ActiveVehicles(), 1)
	assert.Equal(t, int32(77), sc.Vehicles[0].ID)
	assert.True(t, sc.Vehicles[0].Player())
	assert.Equal(t, ControlPlayer, sc.Vehicles[0].ControlMode())
}

func TestActiveVehiclesClamped(t *testing.T) {
	t.Parallel()

	var tel Telemetry
	assert.Empty(t, tel.ActiveVehicles())
	tel.NumVehicles = 3
	assert.Len(t, tel.ActiveVehicles(), 3)
	tel.NumVehicles = -2
	assert.Empty(t, tel.ActiveVehicles())
	tel.NumVehicles = 500
	assert.Len(t, tel.ActiveVehicles(), MaxMappedVehicles)

	var sc Scoring
	sc.ScoringInfo.NumVehicles = 2
	assert.Len(t, sc.ActiveVehicles(), 2)
}

func TestCString(t *testing.T) {
	t.Parallel()

	var name [8]byte
	SetCString(name[:], "Ferrari 499P")
	assert.Equal(t, "Ferrari", CString(name[:]))
	SetCString(name[:], "BMW")
	assert.Equal(t, "BMW", CString(name[:]))
	assert.Equal(t, "abc", CString([]byte("abc")))
}

func TestEnumStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "player", ControlPlayer.String())
	assert.Equal(t, "nobody", ControlNobody.String())
	assert.Equal(t, "control(9)", Control(9).String())
	assert.Equal(t, "green-flag", PhaseGreenFlag.String())
	assert.Equal(t, "paused", PhasePausedOrHeartbeat.String())
	assert.Equal(t, "phase(42)", GamePhase(42).String())

	var sc Scoring
	sc.ScoringInfo.GamePhase = 5
	assert.Equal(t, PhaseGreenFlag, sc.Phase())
}

func TestReadersRoundTrip(t *testing.T) {
	t.Parallel()

	backend := shm.NewMemory()
	settings := conf.ChannelSettings{
		Buffer1: conf.DefaultScoringBuffer1,
		Buffer2: conf.DefaultScoringBuffer2,
		Mutex:   conf.DefaultScoringMutex,
	}
	w, err := mapped.NewWriter(backend, ScoringChannel(settings), ScoringSize)
	require.NoError(t, err)
	defer func() { _ = w.Remove() }()

	var sc Scoring
	sc.ScoringInfo.NumVehicles = 1
	sc.ScoringInfo.GamePhase = uint8(PhaseGreenFlag)
	sc.Vehicles[0].ID = 7
	SetCString(sc.Vehicles[0].DriverName[:], "Test Driver")
	img, err := Encode(&sc)
	require.NoError(t, err)
	require.NoError(t, w.Write(img, 0, time.Second))

	reader := NewScoringReader(backend, settings)
	require.NoError(t, reader.Connect())
	defer func() { _ = reader.Disconnect() }()
	assert.Equal(t, ChannelScoring, reader.Name())

	var out Scoring
	_, err = reader.ReadPartial(&out)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), out.CurrentRead)
	assert.Equal(t, PhaseGreenFlag, out.Phase())
	require.Len(t, out.ActiveVehicles(), 1)
	assert.Equal(t, "Test Driver", CString(out.Vehicles[0].DriverName[:]))
}
