package core

import (
	"math"

	"github.com/signalsfoundry/intercept-sim/model"
)

// BodyLimits bound what a command can do to a body.
type BodyLimits struct {
	MaxAccel    float64
	MaxTurnRate float64
	// MaxSpeed caps |velocity| when > 0.
	MaxSpeed float64
}

// Limits returns the body limits for a vehicle class.
func (c VehicleClass) Limits() BodyLimits {
	return BodyLimits{MaxAccel: c.MaxAccel, MaxTurnRate: c.MaxTurnRate, MaxSpeed: c.MaxSpeed}
}

// Integrate advances state by dt seconds under cmd. Thrust always acts along
// the body heading after the rotation for this tick is applied. Non-positive
// or non-finite dt returns state unchanged.
func Integrate(state model.KinematicState, cmd model.GuidanceCommand, limits BodyLimits, dt float64) model.KinematicState {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return state
	}
	rate := clampAbs(finiteOr(cmd.TurnRate, 0), limits.MaxTurnRate)
	thrust := clamp(finiteOr(cmd.Thrust, 0), 0, 1)

	next := state
	next.AngularRate = rate
	next.Orientation = WrapAngle(state.Orientation + rate*dt)

	accel := model.FromAngle(next.Orientation).Scale(thrust * limits.MaxAccel)
	next.Velocity = state.Velocity.Add(accel.Scale(dt))
	if limits.MaxSpeed > 0 {
		if speed := next.Velocity.Norm(); speed > limits.MaxSpeed {
			next.Velocity = next.Velocity.Scale(limits.MaxSpeed / speed)
		}
	}
	next.Position = state.Position.Add(next.Velocity.Scale(dt))
	return next
}

// closestApproach returns the minimum distance between two points moving
// linearly from a0→a1 and b0→b1 over the same interval, and the fraction of
// the interval at which it occurs.
func closestApproach(a0, a1, b0, b1 model.Vec2) (float64, float64) {
	p := a0.Sub(b0)
	v := a1.Sub(a0).Sub(b1.Sub(b0))
	vv := v.NormSq()
	s := 0.0
	if vv > solverEpsilon {
		s = clamp(-p.Dot(v)/vv, 0, 1)
	}
	return p.Add(v.Scale(s)).Norm(), s
}
