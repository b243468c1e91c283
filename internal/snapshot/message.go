package snapshot

import (
	"time"

	"github.com/tphakala/rf2bridge/internal/rf2"
)

// TireTemperature is the inner-layer temperature across the tread, Kelvin.
// The field names follow the wire format subscribers already decode: Left is
// the plugin's left reading, Right its center reading and Middle its right
// reading.
type TireTemperature struct {
	Left   float64
	Middle float64
	Right  float64
}

// CarcassTemperature is the tire carcass temperature, Kelvin.
type CarcassTemperature struct {
	Value float64
}

// Telemetry holds one entry per wheel in FL, FR, RL, RR order.
type Telemetry struct {
	RubberTemperatures  [rf2.NumWheels]TireTemperature
	CarcassTemperatures [rf2.NumWheels]CarcassTemperature
}

// Message is the JSON document sent to subscribers for every emitted snapshot.
type Message struct {
	Telemetry   Telemetry
	VehicleID   int32
	DriverName  string
	VehicleName string
	SessionID   string
	ElapsedTime float64
	Timestamp   time.Time
}

// NewMessage renders snap for the given bridge session.
func NewMessage(snap *Snapshot, sessionID string, now time.Time) *Message {
	msg := &Message{
		VehicleID:   snap.Scoring.ID,
		DriverName:  rf2.CString(snap.Scoring.DriverName[:]),
		VehicleName: rf2.CString(snap.Scoring.VehicleName[:]),
		SessionID:   sessionID,
		ElapsedTime: snap.Telemetry.ElapsedTime,
		Timestamp:   now.UTC(),
	}
	for i := range snap.Telemetry.Wheels {
		wheel := &snap.Telemetry.Wheels[i]
		msg.Telemetry.RubberTemperatures[i] = TireTemperature{
			Left:   wheel.TireInnerLayerTemperature[rf2.TreadLeft],
			Right:  wheel.TireInnerLayerTemperature[rf2.TreadCenter],
			Middle: wheel.TireInnerLayerTemperature[rf2.TreadRight],
		}
		msg.Telemetry.CarcassTemperatures[i] = CarcassTemperature{Value: wheel.TireCarcassTemperature}
	}
	return msg
}
