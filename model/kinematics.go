package model

import "time"

// KinematicState is the physical state an entity publishes each tick.
// Positions are metres, velocities metres/second, angles radians.
type KinematicState struct {
	Position    Vec2
	Velocity    Vec2
	Orientation float64
	AngularRate float64
}

// Speed returns the magnitude of the velocity.
func (s KinematicState) Speed() float64 {
	return s.Velocity.Norm()
}

// Heading returns the unit vector the body points along.
func (s KinematicState) Heading() Vec2 {
	return FromAngle(s.Orientation)
}

// Extrapolate returns the position after dt seconds of constant velocity.
func (s KinematicState) Extrapolate(dt float64) Vec2 {
	return s.Position.Add(s.Velocity.Scale(dt))
}

// TargetEstimate is a read-only observation of another entity.
//
// Reliability is in [0,1]; Age is the time since the state was observed.
type TargetEstimate struct {
	ID          EntityID
	State       KinematicState
	Reliability float64
	Age         time.Duration
}

// Fresh reports whether the estimate passes the given reliability and age
// thresholds. A non-positive maxAge disables the age check.
func (e TargetEstimate) Fresh(minReliability float64, maxAge time.Duration) bool {
	if e.Reliability < minReliability {
		return false
	}
	if maxAge > 0 && e.Age > maxAge {
		return false
	}
	return e.State.Position.IsFinite() && e.State.Velocity.IsFinite()
}
