package rf2

import "strconv"

// Control is the scoring control mode of a vehicle.
type Control int8

const (
	ControlNobody      Control = -1
	ControlPlayer      Control = 0
	ControlAI          Control = 1
	ControlRemote      Control = 2
	ControlRemoteAgent Control = 3
)

func (c Control) String() string {
	switch c {
	case ControlNobody:
		return "nobody"
	case ControlPlayer:
		return "player"
	case ControlAI:
		return "ai"
	case ControlRemote:
		return "remote"
	case ControlRemoteAgent:
		return "remote-agent"
	default:
		return "control(" + strconv.Itoa(int(c)) + ")"
	}
}

// GamePhase is the session phase reported in ScoringInfo.
type GamePhase uint8

const (
	PhaseGarage            GamePhase = 0
	PhaseWarmUp            GamePhase = 1
	PhaseGridWalk          GamePhase = 2
	PhaseFormation         GamePhase = 3
	PhaseCountdown         GamePhase = 4
	PhaseGreenFlag         GamePhase = 5
	PhaseFullCourseYellow  GamePhase = 6
	PhaseSessionStopped    GamePhase = 7
	PhaseSessionOver       GamePhase = 8
	PhasePausedOrHeartbeat GamePhase = 9
)

var phaseNames = [...]string{
	"garage", "warm-up", "grid-walk", "formation", "countdown",
	"green-flag", "full-course-yellow", "session-stopped", "session-over", "paused",
}

func (p GamePhase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "phase(" + strconv.Itoa(int(p)) + ")"
}
