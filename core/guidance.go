package core

import (
	"math"

	"github.com/signalsfoundry/intercept-sim/model"
)

// GuidanceInput is the per-tick input to GuidanceLaw.Compute. All fields are
// fresh snapshots; nothing here may be retained across ticks.
type GuidanceInput struct {
	Self model.KinematicState
	// Target is nil when no usable estimate exists (missing, stale, or
	// unreliable). Compute then returns the no-target fallback.
	Target    *model.TargetEstimate
	Intercept model.InterceptResult
	// Aim is the point to steer to: the intercept point, possibly shifted by
	// the vehicle's GuidancePolicy.
	Aim   model.Vec2
	Phase model.FlightPhase
	// Dt is the time since the previous Compute (s), not the physics tick.
	Dt float64
}

// Steering is a GuidanceLaw output with its intermediate terms exposed for
// analytics and tests.
type Steering struct {
	Command model.GuidanceCommand

	LOSRate         float64
	ClosingVelocity float64
	LateralAccel    float64
	PNTurnRate      float64
	PursuitTurnRate float64
	DirectWeight    float64
	Damping         float64
	HeadingError    float64
	NoTarget        bool
}

// GuidanceLaw blends proportional navigation with PID direct pursuit.
// It is stateful (previous LOS angle, PID integral) and owned by exactly
// one vehicle.
type GuidanceLaw struct {
	cfg         GuidanceConfig
	maxAccel    float64
	maxTurnRate float64
	cruiseSpeed float64

	prevLOS    float64
	hasPrevLOS bool
	prevErr    float64
	hasPrevErr bool
	integral   model.Vec2
}

// NewGuidanceLaw validates the class and builds a law for one vehicle.
func NewGuidanceLaw(class VehicleClass) (*GuidanceLaw, error) {
	if err := class.Validate(); err != nil {
		return nil, err
	}
	return &GuidanceLaw{
		cfg:         class.Guidance,
		maxAccel:    class.MaxAccel,
		maxTurnRate: class.MaxTurnRate,
		cruiseSpeed: class.CruiseSpeed,
	}, nil
}

// NoTargetCommand is the fallback when no fresh target exists: no turn
// authority and no thrust.
func NoTargetCommand() model.GuidanceCommand {
	return model.GuidanceCommand{}
}

// Reset drops the LOS history and PID state.
func (g *GuidanceLaw) Reset() {
	g.hasPrevLOS = false
	g.hasPrevErr = false
	g.integral = model.Vec2{}
}

// PointAt returns a turn rate that swings the body toward aim without
// PN or pursuit blending. Used while the body aligns before ignition.
func (g *GuidanceLaw) PointAt(self model.KinematicState, aim model.Vec2) float64 {
	rel := aim.Sub(self.Position)
	if rel.NormSq() < solverEpsilon {
		return 0
	}
	rate := g.cfg.HeadingGain * AngleDiff(rel.Angle(), self.Orientation)
	return clampAbs(finiteOr(rate, 0), g.maxTurnRate)
}

// Compute produces the turn-rate part of a GuidanceCommand. Thrust is a
// per-phase policy and is left at zero here.
func (g *GuidanceLaw) Compute(in GuidanceInput) Steering {
	if in.Target == nil || in.Phase == model.PhaseDead || in.Phase == model.PhaseLaunch {
		g.Reset()
		return Steering{Command: NoTargetCommand(), NoTarget: in.Target == nil, Damping: 1}
	}

	aim := in.Aim
	if !aim.IsFinite() {
		aim = in.Intercept.Point
	}
	if !aim.IsFinite() {
		aim = in.Target.State.Position
	}
	rel := aim.Sub(in.Self.Position)
	rng := rel.Norm()
	if rng < solverEpsilon {
		return Steering{Damping: 1}
	}
	u := rel.Scale(1 / rng)
	n := u.Perp()
	los := u.Angle()

	var losRate float64
	if g.hasPrevLOS && in.Dt > 0 {
		losRate = AngleDiff(los, g.prevLOS) / in.Dt
	}
	g.prevLOS, g.hasPrevLOS = los, true

	speed := math.Max(in.Self.Speed(), g.cfg.MinSpeed)

	// PN: the aim point is a prediction and close to stationary, so the
	// closing velocity is the pursuer's own velocity along the LOS.
	vc := in.Self.Velocity.Dot(u)
	aLat := clampAbs(g.cfg.NavGain*vc*losRate, g.maxAccel)
	aFwd := math.Sqrt(math.Max(g.maxAccel*g.maxAccel-aLat*aLat, 0))
	pnThrustDir := u.Scale(aFwd).Add(n.Scale(aLat))
	pnRate := aLat/speed + g.cfg.HeadingGain*AngleDiff(pnThrustDir.Angle(), in.Self.Orientation)

	// Direct pursuit: PID on the aim-point error. The derivative acts on the
	// lateral velocity so it cancels drift without braking along the LOS.
	decay := math.Pow(g.cfg.IntegralDecay, in.Dt)
	g.integral = g.integral.Scale(decay).Add(rel.Scale(in.Dt))
	lateralVel := n.Scale(in.Self.Velocity.Dot(n))
	desired := rel.Scale(g.cfg.Kp).
		Add(g.integral.Scale(g.cfg.Ki)).
		Sub(lateralVel.Scale(g.cfg.Kd))
	pursuitRate := 0.0
	if desired.NormSq() > solverEpsilon {
		pursuitRate = g.cfg.HeadingGain * AngleDiff(desired.Angle(), in.Self.Orientation)
	}

	w := g.directWeight(in, rng)
	rate := w*pursuitRate + (1-w)*pnRate

	headingErr := AngleDiff(los, in.Self.Orientation)
	var errRate float64
	if g.hasPrevErr && in.Dt > 0 {
		errRate = AngleDiff(headingErr, g.prevErr) / in.Dt
	}
	g.prevErr, g.hasPrevErr = headingErr, true
	damping := g.damping(headingErr, errRate)
	rate *= damping

	if in.Phase == model.PhaseTerminal && g.cfg.TerminalGainTau > 0 {
		tgo := in.Intercept.Time
		if !in.Intercept.Valid || tgo <= 0 {
			tgo = rng / math.Max(vc, g.cfg.MinSpeed)
		}
		if tgo < g.cfg.TerminalGainTau {
			rate *= math.Max(g.cfg.TerminalGainFloor, tgo/g.cfg.TerminalGainTau)
		}
	}

	rate = clampAbs(finiteOr(rate, 0), g.maxTurnRate)
	return Steering{
		Command:         model.GuidanceCommand{TurnRate: rate},
		LOSRate:         losRate,
		ClosingVelocity: vc,
		LateralAccel:    aLat,
		PNTurnRate:      finiteOr(pnRate, 0),
		PursuitTurnRate: finiteOr(pursuitRate, 0),
		DirectWeight:    w,
		Damping:         damping,
		HeadingError:    headingErr,
	}
}

func (g *GuidanceLaw) directWeight(in GuidanceInput, rng float64) float64 {
	w := g.cfg.BaseDirectWeight
	if in.Self.Speed() < 0.5*g.cruiseSpeed {
		w += g.cfg.LowSpeedBoost
	}
	if rng < g.cfg.ShortRange {
		w += g.cfg.ShortRangeBoost
	}
	if in.Target.Reliability < g.cfg.LowConfidence || !in.Intercept.Valid || in.Intercept.Degraded {
		w += g.cfg.LowConfidenceBoost
	}
	return clamp(w, 0, 1)
}

// damping is a continuous multiplicative factor in (0,1]: 1 inside the
// thresholds, shrinking as error or error rate exceed them.
func (g *GuidanceLaw) damping(headingErr, errRate float64) float64 {
	if g.cfg.DampGain <= 0 {
		return 1
	}
	excess := math.Max(0, math.Abs(headingErr)/g.cfg.DampAngle-1) +
		math.Max(0, math.Abs(errRate)/g.cfg.DampRate-1)
	return 1 / (1 + g.cfg.DampGain*finiteOr(excess, 0))
}
