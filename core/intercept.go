package core

import (
	"math"

	"github.com/signalsfoundry/intercept-sim/model"
)

const (
	// epsilon for treating quadratic coefficients and velocities as zero.
	solverEpsilon = 1e-9

	// DefaultSolverTolerance is the accelerating-solver convergence distance (m).
	DefaultSolverTolerance = 1.0
	// DefaultSolverIterations caps the accelerating-solver refinement loop.
	DefaultSolverIterations = 10
)

// PursuerModel selects how the intercept solver models the pursuer.
type PursuerModel int

const (
	// ConstantSpeed treats the pursuer as leaving at a fixed speed in a free
	// direction (ballistic rounds).
	ConstantSpeed PursuerModel = iota
	// Accelerating treats the pursuer as accelerating from its current speed
	// (self-propelled vehicles).
	Accelerating
)

// InterceptModel parameterises SolveIntercept.
type InterceptModel struct {
	Model PursuerModel

	// Speed is the pursuer speed for ConstantSpeed, relative to the pursuer's
	// own velocity.
	Speed float64

	// MaxAccel is the pursuer acceleration for Accelerating.
	MaxAccel float64
	// MaxSpeed optionally caps the Accelerating pursuer's speed; 0 means uncapped.
	MaxSpeed float64
	// Tolerance and MaxIterations bound the Accelerating refinement; zero
	// values fall back to the package defaults.
	Tolerance     float64
	MaxIterations int
}

// SolveIntercept dispatches to the solver selected by m.
func SolveIntercept(pursuer, target model.KinematicState, m InterceptModel) model.InterceptResult {
	switch m.Model {
	case Accelerating:
		return SolveAccelerating(pursuer, target, m)
	default:
		return SolveBallistic(pursuer.Position, pursuer.Velocity, m.Speed, target.Position, target.Velocity)
	}
}

// SolveBallistic finds where a round leaving pursuerPos at `speed` relative to
// pursuerVel meets a constant-velocity target. The smallest positive root of
//
//	(|Δv|² - s²)t² + 2(Δp·Δv)t + |Δp|² = 0
//
// is used. When no non-negative root exists the result is invalid and points
// at the target's current position.
func SolveBallistic(pursuerPos, pursuerVel model.Vec2, speed float64, targetPos, targetVel model.Vec2) model.InterceptResult {
	fallback := model.InterceptResult{Point: targetPos, Degraded: true}
	if !pursuerPos.IsFinite() || !targetPos.IsFinite() || !pursuerVel.IsFinite() || !targetVel.IsFinite() {
		fallback.Point = targetPos
		if !targetPos.IsFinite() {
			fallback.Point = pursuerPos
		}
		return fallback
	}
	if speed < 0 || math.IsNaN(speed) {
		return fallback
	}

	dp := targetPos.Sub(pursuerPos)
	dv := targetVel.Sub(pursuerVel)
	c := dp.NormSq()
	if c < solverEpsilon {
		return model.InterceptResult{Point: targetPos, Time: 0, Valid: true}
	}

	if dv.NormSq() < solverEpsilon {
		if speed < solverEpsilon {
			return fallback
		}
		return model.InterceptResult{
			Point: targetPos,
			Time:  math.Sqrt(c) / speed,
			Valid: true,
		}
	}

	a := dv.NormSq() - speed*speed
	b := 2 * dp.Dot(dv)

	t, ok := smallestNonNegativeRoot(a, b, c)
	if !ok {
		return fallback
	}

	// Net closing capability: own speed minus the target's recession rate.
	recession := dp.Unit().Dot(dv)
	return model.InterceptResult{
		Point:    targetPos.Add(targetVel.Scale(t)),
		Time:     t,
		Valid:    true,
		Degraded: speed-recession < solverEpsilon,
	}
}

// smallestNonNegativeRoot solves a·t² + b·t + c = 0 for the smallest t ≥ 0.
func smallestNonNegativeRoot(a, b, c float64) (float64, bool) {
	if math.Abs(a) < solverEpsilon {
		if math.Abs(b) < solverEpsilon {
			return 0, false
		}
		t := -c / b
		return t, t >= 0
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	t1 := (-b - sq) / (2 * a)
	t2 := (-b + sq) / (2 * a)
	if t1 > t2 {
		t1, t2 = t2, t1
	}
	switch {
	case t1 >= 0:
		return t1, true
	case t2 >= 0:
		return t2, true
	default:
		return 0, false
	}
}

// SolveAccelerating iteratively refines an intercept point for a pursuer
// that accelerates at m.MaxAccel from its current speed. Starting from the
// target's current position it estimates the time to cover the distance,
// re-predicts the target at that time, and stops once the point moves less
// than m.Tolerance or m.MaxIterations is reached. A result that did not
// converge, or whose pursuer is not closing, is flagged Degraded.
func SolveAccelerating(pursuer, target model.KinematicState, m InterceptModel) model.InterceptResult {
	fallback := model.InterceptResult{Point: target.Position, Degraded: true}
	if m.MaxAccel <= 0 || math.IsNaN(m.MaxAccel) ||
		!pursuer.Position.IsFinite() || !target.Position.IsFinite() ||
		!pursuer.Velocity.IsFinite() || !target.Velocity.IsFinite() {
		if !target.Position.IsFinite() {
			fallback.Point = pursuer.Position
		}
		return fallback
	}

	tol := m.Tolerance
	if tol <= 0 {
		tol = DefaultSolverTolerance
	}
	iters := m.MaxIterations
	if iters <= 0 {
		iters = DefaultSolverIterations
	}

	guess := target.Position
	var t float64
	converged := false
	for i := 0; i < iters; i++ {
		offset := guess.Sub(pursuer.Position)
		dist := offset.Norm()
		v0 := pursuer.Velocity.Dot(offset.Unit())
		t = timeToCover(dist, v0, m.MaxAccel, m.MaxSpeed)

		next := target.Extrapolate(t)
		moved := next.DistanceTo(guess)
		guess = next
		if moved < tol {
			converged = true
			break
		}
	}
	if !guess.IsFinite() || math.IsNaN(t) {
		return fallback
	}

	los := target.Position.Sub(pursuer.Position)
	closing := pursuer.Velocity.Sub(target.Velocity).Dot(los.Unit())
	return model.InterceptResult{
		Point:    guess,
		Time:     t,
		Valid:    true,
		Degraded: !converged || (closing < solverEpsilon && los.Norm() > tol),
	}
}

// timeToCover returns the smallest t ≥ 0 with d = v0·t + ½·a·t², switching to
// accelerate-then-coast when maxSpeed > 0 caps the speed.
func timeToCover(d, v0, accel, maxSpeed float64) float64 {
	if d <= 0 {
		return 0
	}
	if maxSpeed > 0 && v0 >= maxSpeed {
		return d / v0
	}
	// ½a t² + v0 t - d = 0; accel > 0 and d > 0 guarantee one positive root.
	t := (-v0 + math.Sqrt(v0*v0+2*accel*d)) / accel
	if maxSpeed <= 0 {
		return t
	}
	tAccel := (maxSpeed - v0) / accel
	if t <= tAccel {
		return t
	}
	dAccel := v0*tAccel + 0.5*accel*tAccel*tAccel
	return tAccel + (d-dAccel)/maxSpeed
}
