package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/intercept-sim/model"
)

// movingTarget is a constant-velocity target provider for a single entity.
type movingTarget struct {
	id          model.EntityID
	state       model.KinematicState
	reliability float64
	age         time.Duration
	gone        bool
}

func (m *movingTarget) Estimate(id model.EntityID) (model.TargetEstimate, bool) {
	if m.gone || id != m.id {
		return model.TargetEstimate{}, false
	}
	return model.TargetEstimate{ID: id, State: m.state, Reliability: m.reliability, Age: m.age}, true
}

func (m *movingTarget) advance(dt float64) {
	m.state.Position = m.state.Extrapolate(dt)
}

func launchTestVehicle(t *testing.T, class VehicleClass, launcher model.KinematicState, target model.EntityID) *Vehicle {
	t.Helper()
	v, err := NewVehicle(LaunchSpec{ID: "veh-1", Faction: "blue", Target: target, At: pdcEpoch, Launcher: launcher}, class)
	if err != nil {
		t.Fatalf("NewVehicle: %v", err)
	}
	return v
}

func TestVehicleStartsInLaunchWithEjection(t *testing.T) {
	class := DefaultVehicleClass()
	launcher := model.KinematicState{Position: model.Vec2{X: 100, Y: 200}, Velocity: model.Vec2{X: 10}}

	left := launchTestVehicle(t, class, launcher, "red-1")
	if left.Phase() != model.PhaseLaunch {
		t.Fatalf("phase = %v, want launch", left.Phase())
	}
	if left.State().Position != launcher.Position {
		t.Fatalf("position = %+v, want launcher position", left.State().Position)
	}
	if want := (model.Vec2{X: 10, Y: class.EjectionSpeed}); left.State().Velocity != want {
		t.Fatalf("velocity = %+v, want %+v", left.State().Velocity, want)
	}
	if left.Elapsed() != 0 || left.Dead() {
		t.Fatalf("fresh vehicle elapsed=%v dead=%v", left.Elapsed(), left.Dead())
	}

	right, err := NewVehicle(LaunchSpec{Target: "red-1", Launcher: launcher, Side: -1}, class)
	if err != nil {
		t.Fatalf("NewVehicle: %v", err)
	}
	if want := (model.Vec2{X: 10, Y: -class.EjectionSpeed}); right.State().Velocity != want {
		t.Fatalf("right ejection velocity = %+v, want %+v", right.State().Velocity, want)
	}
	if right.ID() == "" {
		t.Fatalf("expected a generated ID")
	}
}

func TestNewVehicleValidation(t *testing.T) {
	if _, err := NewVehicle(LaunchSpec{}, DefaultVehicleClass()); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("missing target: %v", err)
	}
	bad := DefaultVehicleClass()
	bad.Lifetime = 0
	if _, err := NewVehicle(LaunchSpec{Target: "x"}, bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("invalid class: %v", err)
	}
	policy := GuidancePolicy{Kind: PolicySimultaneousImpact}
	if _, err := NewVehicle(LaunchSpec{Target: "x", Policy: policy}, DefaultVehicleClass()); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("invalid policy: %v", err)
	}
}

func TestVehicleDirectInterceptStationaryTarget(t *testing.T) {
	ctx := context.Background()
	class := DefaultVehicleClass()
	target := &movingTarget{id: "red-1", state: model.KinematicState{Position: model.Vec2{X: 10000}}, reliability: 1}
	v := launchTestVehicle(t, class, model.KinematicState{}, "red-1")

	const dt = 0.01
	now := pdcEpoch
	cruising := false
	lastRange := math.Inf(1)
	var impact *Event
	for i := 0; i < 2000 && !v.Dead(); i++ {
		now = now.Add(10 * time.Millisecond)
		v.Step(ctx, now, dt, target, Unbounded{})
		for _, ev := range v.DrainEvents() {
			if ev.Kind == EventImpact {
				e := ev
				impact = &e
			}
		}
		if v.Dead() {
			break
		}
		if v.Phase() >= model.PhaseCruise {
			cruising = true
		}
		rng := v.State().Position.DistanceTo(target.state.Position)
		if cruising {
			if rng >= lastRange {
				t.Fatalf("range increased in flight at %v: %v -> %v", v.Elapsed(), lastRange, rng)
			}
			lastRange = rng
		}
	}

	if !cruising {
		t.Fatalf("vehicle never entered cruise")
	}
	impacted, reason := v.Outcome()
	if !impacted || impact == nil {
		t.Fatalf("expected impact, got miss %q after %v", reason, v.Elapsed())
	}
	if v.Elapsed() > 8*time.Second {
		t.Fatalf("flight time %v exceeds bound", v.Elapsed())
	}
	if deg := impact.Angle * 180 / math.Pi; deg >= 5 {
		t.Fatalf("heading error at impact = %.2f°, want < 5°", deg)
	}
	if impact.Target != "red-1" || impact.FlightTime != v.Elapsed() {
		t.Fatalf("impact event = %+v", impact)
	}
}

func TestVehicleCrossingTargetLeadsAndUsesPN(t *testing.T) {
	ctx := context.Background()
	class := DefaultVehicleClass()
	target := &movingTarget{
		id:          "red-1",
		state:       model.KinematicState{Position: model.Vec2{Y: 5000}, Velocity: model.Vec2{X: 500}},
		reliability: 1,
	}
	v := launchTestVehicle(t, class, model.KinematicState{Orientation: math.Pi / 2}, "red-1")

	const dt = 0.01
	now := pdcEpoch.Add(10 * time.Millisecond)
	v.Step(ctx, now, dt, target, Unbounded{})
	ir := v.LastIntercept()
	if !ir.Valid || ir.Point.X <= target.state.Position.X {
		t.Fatalf("intercept point %+v should lead the target along +x", ir.Point)
	}

	pnActive := false
	for i := 0; i < 1000 && !v.Dead(); i++ {
		target.advance(dt)
		now = now.Add(10 * time.Millisecond)
		v.Step(ctx, now, dt, target, Unbounded{})
		s := v.LastSteering()
		if v.Phase() >= model.PhaseCruise && s.LOSRate != 0 && s.LateralAccel != 0 {
			pnActive = true
		}
	}
	if !pnActive {
		t.Fatalf("PN lateral acceleration never engaged")
	}
	if impacted, reason := v.Outcome(); !impacted {
		t.Fatalf("expected impact on crossing target, got %q", reason)
	}
}

func TestVehicleStaleEstimateFallsBackToNoTarget(t *testing.T) {
	ctx := context.Background()
	class := DefaultVehicleClass()
	target := &movingTarget{id: "red-1", state: model.KinematicState{Position: model.Vec2{X: 20000}}, reliability: 1}
	v := launchTestVehicle(t, class, model.KinematicState{}, "red-1")

	now := pdcEpoch
	for v.Phase() < model.PhaseCruise {
		now = now.Add(10 * time.Millisecond)
		v.Step(ctx, now, 0.01, target, Unbounded{})
	}
	for i := 0; i < 10; i++ {
		now = now.Add(10 * time.Millisecond)
		v.Step(ctx, now, 0.01, target, Unbounded{})
	}
	if v.Command().Thrust == 0 {
		t.Fatalf("setup: expected thrust while tracking")
	}

	target.age = class.MaxEstimateAge + time.Second
	now = now.Add(10 * time.Millisecond)
	v.Step(ctx, now, 0.01, target, Unbounded{})
	if !v.LastSteering().NoTarget {
		t.Fatalf("stale estimate should produce no-target steering")
	}
	if v.Command() != NoTargetCommand() {
		t.Fatalf("command on stale estimate = %+v, want no-target command", v.Command())
	}
	if v.Dead() {
		t.Fatalf("a single stale tick must not kill the vehicle")
	}
}

func TestVehicleTargetLostTimeout(t *testing.T) {
	ctx := context.Background()
	class := DefaultVehicleClass()
	target := &movingTarget{id: "red-1", gone: true}
	v := launchTestVehicle(t, class, model.KinematicState{}, "red-1")

	now := pdcEpoch
	for i := 0; i < 1000 && !v.Dead(); i++ {
		now = now.Add(10 * time.Millisecond)
		v.Step(ctx, now, 0.01, target, Unbounded{})
	}
	if _, reason := v.Outcome(); reason != MissTargetLost {
		t.Fatalf("reason = %q, want %q", reason, MissTargetLost)
	}
	if got := v.Elapsed(); got < class.TargetLossTimeout-20*time.Millisecond || got > class.TargetLossTimeout+20*time.Millisecond {
		t.Fatalf("died after %v, want ~%v", got, class.TargetLossTimeout)
	}
}

func TestVehicleOutOfBoundsAndLifetime(t *testing.T) {
	ctx := context.Background()
	target := &movingTarget{id: "red-1", state: model.KinematicState{Position: model.Vec2{X: 100000}}, reliability: 1}

	v := launchTestVehicle(t, DefaultVehicleClass(), model.KinematicState{}, "red-1")
	bounds := RectBounds{Min: model.Vec2{X: -100, Y: -100}, Max: model.Vec2{X: 2000, Y: 100}}
	for i := 0; i < 1000 && !v.Dead(); i++ {
		v.Step(ctx, pdcEpoch, 0.01, target, bounds)
	}
	if _, reason := v.Outcome(); reason != MissOutOfBounds {
		t.Fatalf("reason = %q, want %q", reason, MissOutOfBounds)
	}

	short := DefaultVehicleClass()
	short.Lifetime = time.Second
	v = launchTestVehicle(t, short, model.KinematicState{}, "red-1")
	for i := 0; i < 1000 && !v.Dead(); i++ {
		v.Step(ctx, pdcEpoch, 0.1, target, Unbounded{})
	}
	if _, reason := v.Outcome(); reason != MissLifetimeExceeded {
		t.Fatalf("reason = %q, want %q", reason, MissLifetimeExceeded)
	}
}

func TestVehicleDestroy(t *testing.T) {
	v := launchTestVehicle(t, DefaultVehicleClass(), model.KinematicState{}, "red-1")
	if err := v.Destroy(pdcEpoch, MissDestroyed); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if !v.Dead() {
		t.Fatalf("vehicle should be dead")
	}
	if impacted, reason := v.Outcome(); impacted || reason != MissDestroyed {
		t.Fatalf("outcome = %v, %q", impacted, reason)
	}
	events := v.DrainEvents()
	if len(events) != 2 || events[0].Kind != EventPhaseChanged || events[0].To != model.PhaseDead || events[1].Kind != EventMiss {
		t.Fatalf("events = %+v, want phase change then miss", events)
	}
	if events[1].ClosestApproach != -1 {
		t.Fatalf("closest approach without any track = %v, want -1", events[1].ClosestApproach)
	}
	if err := v.Destroy(pdcEpoch, MissDestroyed); !errors.Is(err, ErrVehicleDead) {
		t.Fatalf("second Destroy = %v, want ErrVehicleDead", err)
	}

	state := v.State()
	v.Step(context.Background(), pdcEpoch, 0.1, &movingTarget{id: "red-1", reliability: 1}, Unbounded{})
	if v.State() != state || len(v.DrainEvents()) != 0 {
		t.Fatalf("dead vehicle must not move or emit")
	}
}

func TestLauncherAlternatesSides(t *testing.T) {
	class := DefaultVehicleClass()
	l := &Launcher{Platform: "blue-1", Faction: "blue", Class: class}
	platform := model.KinematicState{Position: model.Vec2{X: 5}}

	var sides []float64
	for i := 0; i < 3; i++ {
		v, err := l.Launch(platform, "red-1", pdcEpoch)
		if err != nil {
			t.Fatalf("Launch: %v", err)
		}
		if v.Faction() != "blue" || v.Target() != "red-1" {
			t.Fatalf("vehicle faction/target = %q/%q", v.Faction(), v.Target())
		}
		sides = append(sides, math.Copysign(1, v.State().Velocity.Y))
	}
	if sides[0] != 1 || sides[1] != -1 || sides[2] != 1 {
		t.Fatalf("ejection sides = %v, want [1 -1 1]", sides)
	}
}

func crossingTarget() *movingTarget {
	return &movingTarget{
		id:          "red-1",
		state:       model.KinematicState{Position: model.Vec2{Y: 5000}, Velocity: model.Vec2{X: 500}},
		reliability: 1,
	}
}

func TestVehicleHoldsCommandBetweenGuidanceUpdates(t *testing.T) {
	ctx := context.Background()
	class := DefaultVehicleClass()
	class.GuidanceInterval = 50 * time.Millisecond
	target := crossingTarget()
	v := launchTestVehicle(t, class, model.KinematicState{Orientation: math.Pi / 2}, "red-1")

	const dt = 0.01
	now := pdcEpoch
	step := func() {
		target.advance(dt)
		now = now.Add(10 * time.Millisecond)
		v.Step(ctx, now, dt, target, Unbounded{})
	}
	for i := 0; i < 200 && v.Phase() < model.PhaseCruise; i++ {
		step()
	}
	for i := 0; i < 10; i++ {
		step()
	}
	if v.Phase() != model.PhaseCruise {
		t.Fatalf("setup: phase = %v, want cruise", v.Phase())
	}

	updates := 0
	prevSteer, prevCmd := v.LastSteering(), v.Command()
	for i := 0; i < 40; i++ {
		step()
		steer, cmd := v.LastSteering(), v.Command()
		if steer != prevSteer {
			updates++
		} else if cmd != prevCmd {
			t.Fatalf("tick %d: command changed without a guidance update: %+v -> %+v", i, prevCmd, cmd)
		}
		prevSteer, prevCmd = steer, cmd
	}
	// 40 ticks of 10ms with a 50ms interval recompute about every fifth tick.
	if updates < 6 || updates > 10 {
		t.Fatalf("guidance updates over 40 ticks = %d, want ~8", updates)
	}
}

func TestVehicleGuidanceIntervalKeepsLOSRate(t *testing.T) {
	ctx := context.Background()
	everyTick := DefaultVehicleClass()
	held := DefaultVehicleClass()
	held.GuidanceInterval = 50 * time.Millisecond

	targetA, targetB := crossingTarget(), crossingTarget()
	a := launchTestVehicle(t, everyTick, model.KinematicState{Orientation: math.Pi / 2}, "red-1")
	b := launchTestVehicle(t, held, model.KinematicState{Orientation: math.Pi / 2}, "red-1")

	const dt = 0.01
	now := pdcEpoch
	samples := 0
	for i := 0; i < 1000 && !a.Dead() && !b.Dead(); i++ {
		targetA.advance(dt)
		targetB.advance(dt)
		now = now.Add(10 * time.Millisecond)
		a.Step(ctx, now, dt, targetA, Unbounded{})
		b.Step(ctx, now, dt, targetB, Unbounded{})

		if a.Phase() != model.PhaseCruise || b.Phase() != model.PhaseCruise || a.Elapsed() < time.Second {
			continue
		}
		ra, rb := a.LastSteering().LOSRate, b.LastSteering().LOSRate
		if math.Abs(ra) < 0.01 {
			continue
		}
		samples++
		if ratio := rb / ra; ratio < 0.8 || ratio > 1.25 {
			t.Fatalf("at %v LOS rate with held guidance = %.5f, every tick = %.5f (ratio %.2f)", a.Elapsed(), rb, ra, ratio)
		}
	}
	if samples < 50 {
		t.Fatalf("only %d comparable samples", samples)
	}
	if impacted, reason := b.Outcome(); !impacted {
		t.Fatalf("held guidance missed: %q", reason)
	}
}

func TestVehicleAlignWaitsForTarget(t *testing.T) {
	ctx := context.Background()
	class := DefaultVehicleClass()
	class.AlignEnabled = true
	target := &movingTarget{id: "red-1", state: model.KinematicState{Position: model.Vec2{X: 10000}}, reliability: 1}
	v := launchTestVehicle(t, class, model.KinematicState{Orientation: math.Pi / 2}, "red-1")

	now := pdcEpoch
	for i := 0; i < 200 && v.Phase() < model.PhaseAlign; i++ {
		now = now.Add(10 * time.Millisecond)
		v.Step(ctx, now, 0.01, target, Unbounded{})
	}
	if v.Phase() != model.PhaseAlign {
		t.Fatalf("setup: phase = %v, want align", v.Phase())
	}

	target.gone = true
	for i := 0; i < 10; i++ {
		now = now.Add(10 * time.Millisecond)
		v.Step(ctx, now, 0.01, target, Unbounded{})
		if v.Phase() != model.PhaseAlign {
			t.Fatalf("tick %d without a target moved align to %v", i, v.Phase())
		}
	}
}
