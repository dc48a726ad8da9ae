package model

// InterceptResult is the output of an intercept solve.
//
// Time is never negative. When Valid is false the Point is the target's
// current position and callers must treat it as a degraded direct-aim
// fallback rather than a prediction.
type InterceptResult struct {
	Point    Vec2
	Time     float64
	Valid    bool
	Degraded bool
}

// GuidanceCommand is the per-tick control output for a vehicle.
type GuidanceCommand struct {
	// TurnRate is the commanded body rotation rate in rad/s.
	TurnRate float64
	// Thrust is the main-engine fraction in [0,1].
	Thrust float64
}

// FlightPhase is the flight mode of a guided vehicle. Values are ordered;
// a vehicle's phase never decreases.
type FlightPhase int

const (
	PhaseLaunch FlightPhase = iota
	PhaseAlign
	PhaseCruise
	PhaseTerminal
	PhaseDead
)

func (p FlightPhase) String() string {
	switch p {
	case PhaseLaunch:
		return "launch"
	case PhaseAlign:
		return "align"
	case PhaseCruise:
		return "cruise"
	case PhaseTerminal:
		return "terminal"
	case PhaseDead:
		return "dead"
	default:
		return "unknown"
	}
}
