package core

import (
	"github.com/signalsfoundry/intercept-sim/model"
)

// MissReason explains why a vehicle died without impacting its target.
type MissReason string

const (
	MissNone             MissReason = ""
	MissOutOfBounds      MissReason = "out_of_bounds"
	MissLifetimeExceeded MissReason = "lifetime_exceeded"
	MissTargetLost       MissReason = "target_lost"
	MissOvershoot        MissReason = "overshoot"
	MissDestroyed        MissReason = "destroyed"
)

// PhaseInputs are the fresh per-tick measurements that drive transitions.
type PhaseInputs struct {
	Elapsed          float64 // s since launch
	DistanceTraveled float64 // m moved relative to the launch frame
	Range            float64 // m to the aim point
	InitialRange     float64 // m at launch
	HeadingError     float64 // rad, body vs LOS
	SincePhase       float64 // s in the current phase

	// HasTarget is set when a fresh estimate backs Range and HeadingError.
	HasTarget bool
}

// Progress returns 1 - range/initial_range, clamped to [0,1].
func (in PhaseInputs) Progress() float64 {
	if in.InitialRange <= 0 {
		return 0
	}
	return clamp(1-in.Range/in.InitialRange, 0, 1)
}

// PhaseMachine owns a vehicle's FlightPhase. Phases only move forward.
type PhaseMachine struct {
	phase model.FlightPhase

	lateralClearance float64
	ignitionDelay    float64
	alignEnabled     bool
	alignTolerance   float64
	alignTimeout     float64
	terminalRange    float64
	terminalProgress float64
}

// NewPhaseMachine starts a machine in Launch.
func NewPhaseMachine(class VehicleClass) *PhaseMachine {
	return &PhaseMachine{
		phase:            model.PhaseLaunch,
		lateralClearance: class.LateralClearance,
		ignitionDelay:    seconds(class.IgnitionDelay),
		alignEnabled:     class.AlignEnabled,
		alignTolerance:   class.AlignTolerance,
		alignTimeout:     seconds(class.AlignTimeout),
		terminalRange:    class.TerminalRange,
		terminalProgress: class.TerminalProgress,
	}
}

// Phase returns the current phase.
func (m *PhaseMachine) Phase() model.FlightPhase {
	return m.phase
}

// Advance applies at most one transition for this tick and reports it.
// Dead is only entered through Kill.
func (m *PhaseMachine) Advance(in PhaseInputs) (from, to model.FlightPhase, changed bool) {
	from = m.phase
	next := m.phase

	switch m.phase {
	case model.PhaseLaunch:
		cleared := m.lateralClearance > 0 && in.DistanceTraveled >= m.lateralClearance
		ignited := m.ignitionDelay > 0 && in.Elapsed >= m.ignitionDelay
		if cleared || ignited {
			next = model.PhaseCruise
			if m.alignEnabled {
				next = model.PhaseAlign
			}
		}
	case model.PhaseAlign:
		// Without a fresh target only the timeout releases Align.
		aligned := in.HasTarget && absf(in.HeadingError) < m.alignTolerance
		timedOut := m.alignTimeout > 0 && in.SincePhase >= m.alignTimeout
		if aligned || timedOut {
			next = model.PhaseCruise
		}
	case model.PhaseCruise:
		if in.Range < m.terminalRange ||
			(m.terminalProgress > 0 && in.Progress() > m.terminalProgress) {
			next = model.PhaseTerminal
		}
	}

	to, changed = m.set(next)
	return from, to, changed
}

// Kill moves the machine to Dead from any phase.
func (m *PhaseMachine) Kill() (from model.FlightPhase, changed bool) {
	from = m.phase
	_, changed = m.set(model.PhaseDead)
	return from, changed
}

func (m *PhaseMachine) set(next model.FlightPhase) (model.FlightPhase, bool) {
	if next <= m.phase {
		return m.phase, false
	}
	m.phase = next
	return next, true
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
