package core

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/intercept-sim/model"
)

// PolicyKind selects a guidance variant.
type PolicyKind int

const (
	// PolicyBasic flies straight at the intercept point.
	PolicyBasic PolicyKind = iota
	// PolicyMultiAngle approaches along an arc so salvos arrive from
	// different bearings.
	PolicyMultiAngle
	// PolicySimultaneousImpact stretches the path and trims thrust to
	// arrive at a commanded impact time.
	PolicySimultaneousImpact
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyMultiAngle:
		return "multi_angle"
	case PolicySimultaneousImpact:
		return "simultaneous_impact"
	default:
		return "basic"
	}
}

// ParsePolicyKind maps a config string to a PolicyKind.
func ParsePolicyKind(s string) (PolicyKind, error) {
	switch s {
	case "", "basic":
		return PolicyBasic, nil
	case "multi_angle":
		return PolicyMultiAngle, nil
	case "simultaneous_impact":
		return PolicySimultaneousImpact, nil
	default:
		return PolicyBasic, fmt.Errorf("%w: unknown guidance policy %q", ErrInvalidConfig, s)
	}
}

// GuidancePolicy supplies the parts of guidance that differ between
// flight patterns. The zero value is PolicyBasic.
type GuidancePolicy struct {
	Kind PolicyKind
	// ArcOffset is the lateral aim offset as a fraction of current range.
	ArcOffset float64
	// ArcSide is +1 (left of LOS) or -1 (right). Zero means +1.
	ArcSide float64
	// ImpactTime is the commanded time from launch to impact.
	ImpactTime time.Duration
	// MinThrust floors the thrust trim used to wait for ImpactTime.
	MinThrust float64
}

// Validate checks policy parameters.
func (p GuidancePolicy) Validate() error {
	switch {
	case p.ArcOffset < 0 || p.ArcOffset > 1:
		return fieldErr("policy.arc_offset", p.ArcOffset, "must be in [0,1]")
	case p.MinThrust < 0 || p.MinThrust > 1:
		return fieldErr("policy.min_thrust", p.MinThrust, "must be in [0,1]")
	case p.Kind == PolicySimultaneousImpact && p.ImpactTime <= 0:
		return fieldErr("policy.impact_time", p.ImpactTime, "must be > 0 for simultaneous impact")
	}
	return nil
}

// AimPoint shifts aim perpendicular to the LOS from self. The shift fades
// with progress and is never applied in Terminal.
func (p GuidancePolicy) AimPoint(self, aim model.Vec2, phase model.FlightPhase, progress, tgo, elapsed float64) model.Vec2 {
	if p.Kind == PolicyBasic || p.ArcOffset == 0 || phase != model.PhaseCruise {
		return aim
	}
	rel := aim.Sub(self)
	rng := rel.Norm()
	if rng < solverEpsilon {
		return aim
	}
	side := p.ArcSide
	if side == 0 {
		side = 1
	}

	var fade float64
	switch p.Kind {
	case PolicyMultiAngle:
		fade = clamp(1-progress, 0, 1)
	case PolicySimultaneousImpact:
		fade = p.slack(tgo, elapsed)
	}
	offset := rel.Scale(1 / rng).Perp().Scale(side * p.ArcOffset * rng * fade)
	return aim.Add(offset)
}

// ThrustScale trims cruise thrust so a simultaneous-impact vehicle that is
// early slows its closure. Other policies return 1.
func (p GuidancePolicy) ThrustScale(phase model.FlightPhase, tgo, elapsed float64) float64 {
	if p.Kind != PolicySimultaneousImpact || phase != model.PhaseCruise {
		return 1
	}
	remaining := seconds(p.ImpactTime) - elapsed
	if remaining <= 0 || tgo >= remaining {
		return 1
	}
	return clamp(tgo/remaining, p.MinThrust, 1)
}

// slack is the fraction of the remaining schedule the vehicle is early by.
func (p GuidancePolicy) slack(tgo, elapsed float64) float64 {
	remaining := seconds(p.ImpactTime) - elapsed
	if remaining <= 0 || tgo >= remaining {
		return 0
	}
	return clamp((remaining-tgo)/remaining, 0, 1)
}
