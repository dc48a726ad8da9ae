package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/intercept-sim/internal/logging"
	"github.com/signalsfoundry/intercept-sim/model"
)

// LaunchSpec describes how a vehicle leaves its launcher.
type LaunchSpec struct {
	// ID is generated when empty.
	ID      model.EntityID
	Faction string
	Target  model.EntityID
	At      time.Time

	// Launcher is the launching body's state at release.
	Launcher model.KinematicState
	// Side is the ejection direction: +1 to the launcher's left, -1 right.
	Side   float64
	Policy GuidancePolicy
}

// VehicleOption customises vehicle construction.
type VehicleOption func(*Vehicle)

// WithVehicleLogger attaches a logger for phase and outcome logs.
func WithVehicleLogger(l logging.Logger) VehicleOption {
	return func(v *Vehicle) {
		if l != nil {
			v.log = l
		}
	}
}

// Vehicle is a guided, forward-thrust projectile. It owns its state, phase
// machine and guidance law; everything it knows about its target is
// re-queried from a TargetProvider every tick.
type Vehicle struct {
	id      model.EntityID
	faction string
	target  model.EntityID
	class   VehicleClass
	policy  GuidancePolicy
	solver  InterceptModel

	state      model.KinematicState
	launchedAt time.Time
	frameVel   model.Vec2

	phases *PhaseMachine
	law    *GuidanceLaw

	elapsed      float64
	sincePhase   float64
	traveled     float64
	ignitedAt    float64
	initialRange float64
	termRange    float64
	closest      float64
	lostFor      float64

	held          model.GuidanceCommand
	hasHeld       bool
	sinceGuidance float64
	steering      Steering
	intercept     model.InterceptResult

	impacted bool
	reason   MissReason

	events []Event
	log    logging.Logger
}

// NewVehicle validates class and policy and places the vehicle at the
// launcher with the ejection velocity applied once.
func NewVehicle(spec LaunchSpec, class VehicleClass, opts ...VehicleOption) (*Vehicle, error) {
	law, err := NewGuidanceLaw(class)
	if err != nil {
		return nil, err
	}
	if err := spec.Policy.Validate(); err != nil {
		return nil, err
	}
	if spec.Target == "" {
		return nil, fmt.Errorf("%w: launch has no target", ErrInvalidConfig)
	}
	id := spec.ID
	if id == "" {
		id = model.EntityID("veh-" + uuid.NewString())
	}
	side := spec.Side
	if side == 0 {
		side = 1
	}

	ejection := spec.Launcher.Heading().Perp().Scale(math.Copysign(class.EjectionSpeed, side))
	v := &Vehicle{
		id:      id,
		faction: spec.Faction,
		target:  spec.Target,
		class:   class,
		policy:  spec.Policy,
		solver: InterceptModel{
			Model:         Accelerating,
			MaxAccel:      class.MaxAccel,
			MaxSpeed:      class.MaxSpeed,
			Tolerance:     class.SolverTolerance,
			MaxIterations: class.SolverIterations,
		},
		state: model.KinematicState{
			Position:    spec.Launcher.Position,
			Velocity:    spec.Launcher.Velocity.Add(ejection),
			Orientation: WrapAngle(spec.Launcher.Orientation),
		},
		launchedAt: spec.At,
		frameVel:   spec.Launcher.Velocity,
		phases:     NewPhaseMachine(class),
		law:        law,
		ignitedAt:  -1,
		closest:    math.Inf(1),
		log:        logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	v.log = v.log.With(logging.String("vehicle", string(id)), logging.String("target", string(spec.Target)))
	return v, nil
}

func (v *Vehicle) ID() model.EntityID                   { return v.id }
func (v *Vehicle) Faction() string                      { return v.faction }
func (v *Vehicle) Target() model.EntityID               { return v.target }
func (v *Vehicle) Class() VehicleClass                  { return v.class }
func (v *Vehicle) State() model.KinematicState          { return v.state }
func (v *Vehicle) Phase() model.FlightPhase             { return v.phases.Phase() }
func (v *Vehicle) Dead() bool                           { return v.phases.Phase() == model.PhaseDead }
func (v *Vehicle) Elapsed() time.Duration               { return time.Duration(v.elapsed * float64(time.Second)) }
func (v *Vehicle) ClosestApproach() float64             { return v.closest }
func (v *Vehicle) Command() model.GuidanceCommand       { return v.held }
func (v *Vehicle) LastSteering() Steering               { return v.steering }
func (v *Vehicle) LastIntercept() model.InterceptResult { return v.intercept }

// Outcome reports whether the vehicle hit, and the miss reason otherwise.
// Both are zero while it is alive.
func (v *Vehicle) Outcome() (impacted bool, reason MissReason) {
	return v.impacted, v.reason
}

// Entity returns the vehicle's public record for the knowledge base.
func (v *Vehicle) Entity(now time.Time) model.Entity {
	return model.Entity{
		ID:          v.id,
		Kind:        model.KindVehicle,
		Faction:     v.faction,
		State:       v.state,
		Reliability: 1,
		ObservedAt:  now,
	}
}

// DrainEvents returns and clears events emitted since the last drain.
func (v *Vehicle) DrainEvents() []Event {
	out := v.events
	v.events = nil
	return out
}

// Destroy kills the vehicle from outside (e.g. a point-defense hit).
func (v *Vehicle) Destroy(now time.Time, reason MissReason) error {
	if v.Dead() {
		return ErrVehicleDead
	}
	v.miss(now, reason)
	return nil
}

// Step advances the vehicle by dt seconds. targets and bounds are read-only
// snapshots valid for this tick only. A dead vehicle does nothing.
func (v *Vehicle) Step(ctx context.Context, now time.Time, dt float64, targets TargetProvider, bounds BoundsQuery) {
	if v.Dead() || !(dt > 0) {
		return
	}

	var tgt *model.TargetEstimate
	if targets != nil {
		if est, ok := targets.Estimate(v.target); ok && est.Fresh(v.class.MinReliability, v.class.MaxEstimateAge) {
			tgt = &est
		}
	}
	if tgt != nil {
		v.lostFor = 0
	} else {
		v.lostFor += dt
	}

	start := v.state
	in := PhaseInputs{
		Elapsed:          v.elapsed,
		DistanceTraveled: v.traveled,
		Range:            math.Inf(1),
		InitialRange:     v.initialRange,
		SincePhase:       v.sincePhase,
	}
	if tgt != nil {
		v.intercept = SolveIntercept(start, tgt.State, v.solver)
		rel := tgt.State.Position.Sub(start.Position)
		in.Range = rel.Norm()
		in.HeadingError = AngleDiff(v.intercept.Point.Sub(start.Position).Angle(), start.Orientation)
		in.HasTarget = true
		if v.initialRange == 0 {
			v.initialRange = in.Range
			in.InitialRange = in.Range
		}
	}
	changed := v.advancePhase(ctx, now, in)

	v.sinceGuidance += dt
	interval := seconds(v.class.GuidanceInterval)
	if !v.hasHeld || changed || tgt == nil || v.sinceGuidance >= interval {
		v.held = v.command(tgt, in, v.sinceGuidance)
		v.hasHeld = true
		v.sinceGuidance = 0
	}

	next := Integrate(start, v.held, v.class.Limits(), dt)
	v.traveled += next.Velocity.Sub(v.frameVel).Norm() * dt
	v.elapsed += dt
	v.sincePhase += dt
	v.state = next

	if tgt != nil {
		end := tgt.State.Extrapolate(dt)
		d, s := closestApproach(start.Position, next.Position, tgt.State.Position, end)
		if d < v.closest {
			v.closest = d
		}
		if d <= v.class.ProximityRadius {
			at := start.Position.Add(next.Position.Sub(start.Position).Scale(s))
			los := tgt.State.Position.Sub(start.Position).Angle()
			v.impact(now, at, math.Abs(AngleDiff(los, next.Orientation)))
			return
		}
		if v.Phase() == model.PhaseTerminal && v.class.OvershootRange > 0 &&
			end.DistanceTo(next.Position)-v.closest > v.class.OvershootRange {
			v.miss(now, MissOvershoot)
			return
		}
	}

	switch {
	case bounds != nil && !bounds.Contains(next.Position):
		v.miss(now, MissOutOfBounds)
	case v.elapsed >= seconds(v.class.Lifetime):
		v.miss(now, MissLifetimeExceeded)
	case tgt == nil && v.lostFor >= seconds(v.class.TargetLossTimeout):
		v.miss(now, MissTargetLost)
	}
}

// command computes a fresh GuidanceCommand for the current phase. dt is the
// time since the previous computation, which spans a whole guidance interval
// when commands are held between updates.
func (v *Vehicle) command(tgt *model.TargetEstimate, in PhaseInputs, dt float64) model.GuidanceCommand {
	phase := v.Phase()
	switch phase {
	case model.PhaseAlign:
		if tgt == nil {
			return NoTargetCommand()
		}
		return model.GuidanceCommand{TurnRate: v.law.PointAt(v.state, v.intercept.Point)}
	case model.PhaseCruise, model.PhaseTerminal:
	default:
		return NoTargetCommand()
	}

	if tgt == nil {
		v.steering = v.law.Compute(GuidanceInput{Phase: phase, Dt: dt})
		return v.steering.Command
	}

	tgo := v.intercept.Time
	aim := v.policy.AimPoint(v.state.Position, v.intercept.Point, phase, in.Progress(), tgo, v.elapsed)
	v.steering = v.law.Compute(GuidanceInput{
		Self:      v.state,
		Target:    tgt,
		Intercept: v.intercept,
		Aim:       aim,
		Phase:     phase,
		Dt:        dt,
	})

	cmd := v.steering.Command
	sinceIgnition := 0.0
	if v.ignitedAt >= 0 {
		sinceIgnition = v.elapsed - v.ignitedAt
	}
	if ramp := seconds(v.class.GuidanceRamp); ramp > 0 {
		cmd.TurnRate *= clamp(sinceIgnition/ramp, 0, 1)
	}

	termProgress := 0.0
	if phase == model.PhaseTerminal && v.termRange > 0 {
		termProgress = clamp(1-in.Range/v.termRange, 0, 1)
	}
	toTarget := tgt.State.Position.Sub(v.state.Position).Unit()
	closing := v.state.Velocity.Sub(tgt.State.Velocity).Dot(toTarget)
	cmd.Thrust = ThrustFraction(v.class.Thrust, phase, ThrustContext{
		SinceIgnition:    sinceIgnition,
		TerminalProgress: termProgress,
		TimeToGo:         tgo,
		ClosingSpeed:     closing,
	}) * v.policy.ThrustScale(phase, tgo, v.elapsed)
	cmd.Thrust = clamp(cmd.Thrust, 0, 1)
	return cmd
}

func (v *Vehicle) advancePhase(ctx context.Context, now time.Time, in PhaseInputs) bool {
	from, to, changed := v.phases.Advance(in)
	if !changed {
		return false
	}
	v.sincePhase = 0
	switch to {
	case model.PhaseCruise:
		v.ignitedAt = v.elapsed
		v.law.Reset()
	case model.PhaseTerminal:
		v.termRange = in.Range
	}
	v.log.Debug(ctx, "phase changed",
		logging.String("from", from.String()),
		logging.String("to", to.String()),
		logging.Float("elapsed_s", v.elapsed),
	)
	v.emit(Event{Kind: EventPhaseChanged, Time: now, Source: v.id, Target: v.target, From: from, To: to})
	return true
}

func (v *Vehicle) impact(now time.Time, at model.Vec2, angle float64) {
	from, changed := v.phases.Kill()
	if !changed {
		return
	}
	v.impacted = true
	v.held = NoTargetCommand()
	v.emit(Event{Kind: EventPhaseChanged, Time: now, Source: v.id, Target: v.target, From: from, To: model.PhaseDead})
	v.emit(Event{
		Kind:            EventImpact,
		Time:            now,
		Source:          v.id,
		Target:          v.target,
		Position:        at,
		Velocity:        v.state.Velocity,
		Angle:           angle,
		ClosestApproach: v.closest,
		FlightTime:      v.Elapsed(),
	})
}

func (v *Vehicle) miss(now time.Time, reason MissReason) {
	from, changed := v.phases.Kill()
	if !changed {
		return
	}
	v.reason = reason
	v.held = NoTargetCommand()
	closest := v.closest
	if math.IsInf(closest, 1) {
		closest = -1
	}
	v.emit(Event{Kind: EventPhaseChanged, Time: now, Source: v.id, Target: v.target, From: from, To: model.PhaseDead})
	v.emit(Event{
		Kind:            EventMiss,
		Time:            now,
		Source:          v.id,
		Target:          v.target,
		Position:        v.state.Position,
		Velocity:        v.state.Velocity,
		Reason:          reason,
		ClosestApproach: closest,
		FlightTime:      v.Elapsed(),
	})
}

func (v *Vehicle) emit(ev Event) {
	v.events = append(v.events, ev)
}

// Launcher releases vehicles of one class from a platform, alternating the
// ejection side on each launch.
type Launcher struct {
	Platform model.EntityID
	Faction  string
	Class    VehicleClass
	Policy   GuidancePolicy

	launches int
}

// Launch releases one vehicle from the platform state toward target.
// Multi-angle salvos also alternate their arc side.
func (l *Launcher) Launch(platform model.KinematicState, target model.EntityID, now time.Time, opts ...VehicleOption) (*Vehicle, error) {
	side := 1.0
	if l.launches%2 == 1 {
		side = -1
	}
	policy := l.Policy
	if policy.Kind != PolicyBasic && policy.ArcSide == 0 {
		policy.ArcSide = side
	}
	v, err := NewVehicle(LaunchSpec{
		Faction:  l.Faction,
		Target:   target,
		At:       now,
		Launcher: platform,
		Side:     side,
		Policy:   policy,
	}, l.Class, opts...)
	if err != nil {
		return nil, err
	}
	l.launches++
	return v, nil
}
