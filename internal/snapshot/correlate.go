// Package snapshot pairs the locally driven vehicle's scoring and telemetry
// entries for one tick and renders the outbound tire message.
package snapshot

import "github.com/tphakala/rf2bridge/internal/rf2"

// Snapshot is one tick's scoring and telemetry for the selected vehicle.
type Snapshot struct {
	Scoring   rf2.VehicleScoring
	Telemetry rf2.VehicleTelemetry
}

// Outcome tells why Correlate did or did not produce a snapshot.
type Outcome int

const (
	Selected Outcome = iota
	// NoPlayer means no eligible vehicle carries the player flag.
	NoPlayer
	// NoTelemetry means the player's id is missing from the telemetry array.
	NoTelemetry
)

func (o Outcome) String() string {
	switch o {
	case Selected:
		return "selected"
	case NoPlayer:
		return "no player"
	case NoTelemetry:
		return "no telemetry"
	default:
		return "unknown"
	}
}

// MapTelemetryIDs maps vehicle id to its index in the active telemetry
// array. The first occurrence of a duplicated id wins.
func MapTelemetryIDs(t *rf2.Telemetry) map[int32]int {
	vehicles := t.ActiveVehicles()
	ids := make(map[int32]int, len(vehicles))
	for i := range vehicles {
		if _, seen := ids[vehicles[i].ID]; !seen {
			ids[vehicles[i].ID] = i
		}
	}
	return ids
}

// Eligible reports whether a vehicle in control mode c may be selected.
func Eligible(c rf2.Control) bool {
	switch c {
	case rf2.ControlAI, rf2.ControlPlayer, rf2.ControlRemote:
		return true
	default:
		return false
	}
}

// SelectPlayer returns the index of the first eligible vehicle with the
// player flag set, or -1.
func SelectPlayer(vehicles []rf2.VehicleScoring) int {
	for i := range vehicles {
		if Eligible(vehicles[i].ControlMode()) && vehicles[i].Player() {
			return i
		}
	}
	return -1
}

// Correlate joins the player's scoring entry with its telemetry entry.
// Both records are consulted fresh; nothing is carried over between ticks.
func Correlate(t *rf2.Telemetry, s *rf2.Scoring) (Snapshot, Outcome) {
	vehicles := s.ActiveVehicles()
	player := SelectPlayer(vehicles)
	if player < 0 {
		return Snapshot{}, NoPlayer
	}

	index, ok := MapTelemetryIDs(t)[vehicles[player].ID]
	if !ok {
		return Snapshot{}, NoTelemetry
	}
	return Snapshot{Scoring: vehicles[player], Telemetry: t.Vehicles[index]}, Selected
}
