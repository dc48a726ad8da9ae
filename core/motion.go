package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/signalsfoundry/intercept-sim/model"
)

// MotionModel advances a ship's state by dt seconds. elapsed is the time
// since the ship was added, before this step.
type MotionModel interface {
	Advance(state model.KinematicState, elapsed, dt float64) model.KinematicState
}

// StaticMotionModel holds the ship at rest.
type StaticMotionModel struct{}

// Advance zeroes velocity and keeps position.
func (StaticMotionModel) Advance(state model.KinematicState, _, _ float64) model.KinematicState {
	state.Velocity = model.Vec2{}
	state.AngularRate = 0
	return state
}

// ConstantVelocityModel drifts along the current velocity.
type ConstantVelocityModel struct{}

// Advance moves the ship in a straight line.
func (ConstantVelocityModel) Advance(state model.KinematicState, _, dt float64) model.KinematicState {
	state.Position = state.Position.Add(state.Velocity.Scale(dt))
	state.AngularRate = 0
	return state
}

// WeaveMotionModel is an evasive sinusoidal manoeuvre: a lateral
// acceleration of Amplitude m/s² with the given Period, at constant speed.
type WeaveMotionModel struct {
	Amplitude float64
	Period    float64
}

// Advance rotates the velocity by the lateral acceleration and moves the ship.
func (m WeaveMotionModel) Advance(state model.KinematicState, elapsed, dt float64) model.KinematicState {
	speed := state.Velocity.Norm()
	if speed < 1e-9 || m.Period <= 0 {
		return ConstantVelocityModel{}.Advance(state, elapsed, dt)
	}
	lateral := m.Amplitude * math.Sin(2*math.Pi*(elapsed+dt)/m.Period)
	rate := lateral / speed
	heading := WrapAngle(state.Velocity.Angle() + rate*dt)
	state.Velocity = model.FromAngle(heading).Scale(speed)
	state.Position = state.Position.Add(state.Velocity.Scale(dt))
	state.Orientation = heading
	state.AngularRate = rate
	return state
}

// NewMotionModel builds a model by name: "static", "constant" or "weave".
func NewMotionModel(kind string, amplitude, period float64) (MotionModel, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "static":
		return StaticMotionModel{}, nil
	case "", "constant":
		return ConstantVelocityModel{}, nil
	case "weave":
		if period <= 0 {
			return nil, fmt.Errorf("%w: weave period must be positive", ErrInvalidConfig)
		}
		return WeaveMotionModel{Amplitude: amplitude, Period: period}, nil
	default:
		return nil, fmt.Errorf("%w: unknown motion model %q", ErrInvalidConfig, kind)
	}
}
