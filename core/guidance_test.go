package core

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/signalsfoundry/intercept-sim/model"
)

func newTestLaw(t *testing.T) (*GuidanceLaw, VehicleClass) {
	t.Helper()
	class := DefaultVehicleClass()
	law, err := NewGuidanceLaw(class)
	if err != nil {
		t.Fatalf("NewGuidanceLaw: %v", err)
	}
	return law, class
}

func TestGuidanceNoTargetFallback(t *testing.T) {
	law, _ := newTestLaw(t)
	self := model.KinematicState{Velocity: model.Vec2{X: 1000}, Orientation: 0.3}

	s := law.Compute(GuidanceInput{Self: self, Phase: model.PhaseCruise, Dt: 0.01})
	if !s.NoTarget {
		t.Fatalf("expected NoTarget steering")
	}
	if s.Command != NoTargetCommand() {
		t.Fatalf("command = %+v, want no-target command", s.Command)
	}
	if s.PNTurnRate != 0 || s.PursuitTurnRate != 0 {
		t.Fatalf("no-target steering must not carry PN or pursuit terms: %+v", s)
	}
}

func TestGuidanceLaunchPhaseHasNoAuthority(t *testing.T) {
	law, _ := newTestLaw(t)
	est := &model.TargetEstimate{ID: "t", State: model.KinematicState{Position: model.Vec2{X: 1000, Y: 1000}}, Reliability: 1}
	s := law.Compute(GuidanceInput{
		Target: est,
		Aim:    est.State.Position,
		Phase:  model.PhaseLaunch,
		Dt:     0.01,
	})
	if s.Command.TurnRate != 0 {
		t.Fatalf("launch phase turn rate = %v, want 0", s.Command.TurnRate)
	}
}

func TestGuidanceOutputBounded(t *testing.T) {
	law, class := newTestLaw(t)
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 2000; i++ {
		self := model.KinematicState{
			Position:    model.Vec2{X: rng.Float64()*20000 - 10000, Y: rng.Float64()*20000 - 10000},
			Velocity:    model.Vec2{X: rng.Float64()*6000 - 3000, Y: rng.Float64()*6000 - 3000},
			Orientation: rng.Float64()*2*math.Pi - math.Pi,
		}
		target := model.KinematicState{
			Position: model.Vec2{X: rng.Float64()*20000 - 10000, Y: rng.Float64()*20000 - 10000},
			Velocity: model.Vec2{X: rng.Float64()*1000 - 500, Y: rng.Float64()*1000 - 500},
		}
		est := &model.TargetEstimate{ID: "t", State: target, Reliability: rng.Float64()}
		phase := model.PhaseCruise
		if i%3 == 0 {
			phase = model.PhaseTerminal
		}
		ir := SolveIntercept(self, target, InterceptModel{Model: Accelerating, MaxAccel: class.MaxAccel})
		s := law.Compute(GuidanceInput{
			Self:      self,
			Target:    est,
			Intercept: ir,
			Aim:       ir.Point,
			Phase:     phase,
			Dt:        0.01 + rng.Float64()*0.05,
		})

		if math.IsNaN(s.Command.TurnRate) || math.Abs(s.Command.TurnRate) > class.MaxTurnRate {
			t.Fatalf("iteration %d: turn rate %v exceeds limit %v", i, s.Command.TurnRate, class.MaxTurnRate)
		}
		if s.Damping <= 0 || s.Damping > 1 {
			t.Fatalf("iteration %d: damping %v outside (0,1]", i, s.Damping)
		}
		if s.DirectWeight < 0 || s.DirectWeight > 1 {
			t.Fatalf("iteration %d: direct weight %v outside [0,1]", i, s.DirectWeight)
		}
		if math.Abs(s.LateralAccel) > class.MaxAccel {
			t.Fatalf("iteration %d: lateral accel %v exceeds max accel", i, s.LateralAccel)
		}
	}
}

func TestGuidancePNRespondsToLOSRate(t *testing.T) {
	law, _ := newTestLaw(t)
	est := &model.TargetEstimate{ID: "t", Reliability: 1}
	aim := model.Vec2{X: 1000, Y: 5000}

	first := law.Compute(GuidanceInput{
		Self:   model.KinematicState{Velocity: model.Vec2{Y: 1000}, Orientation: math.Pi / 2},
		Target: est,
		Aim:    aim,
		Phase:  model.PhaseCruise,
		Dt:     0.1,
	})
	if first.LOSRate != 0 {
		t.Fatalf("first call has no LOS history, got rate %v", first.LOSRate)
	}

	second := law.Compute(GuidanceInput{
		Self:   model.KinematicState{Position: model.Vec2{Y: 100}, Velocity: model.Vec2{Y: 1000}, Orientation: math.Pi / 2},
		Target: est,
		Aim:    aim,
		Phase:  model.PhaseCruise,
		Dt:     0.1,
	})
	if second.LOSRate == 0 {
		t.Fatalf("expected nonzero LOS rate after moving")
	}
	if second.LateralAccel == 0 {
		t.Fatalf("expected nonzero PN lateral acceleration")
	}
}

func TestGuidanceDirectWeightBoosts(t *testing.T) {
	law, class := newTestLaw(t)
	g := class.Guidance
	self := model.KinematicState{Velocity: model.Vec2{X: class.CruiseSpeed}}
	est := &model.TargetEstimate{ID: "t", State: model.KinematicState{Position: model.Vec2{X: 5000}}, Reliability: 1}
	ir := model.InterceptResult{Point: est.State.Position, Time: 2, Valid: true}

	s := law.Compute(GuidanceInput{Self: self, Target: est, Intercept: ir, Aim: ir.Point, Phase: model.PhaseCruise, Dt: 0.01})
	if math.Abs(s.DirectWeight-g.BaseDirectWeight) > 1e-12 {
		t.Fatalf("nominal direct weight = %v, want %v", s.DirectWeight, g.BaseDirectWeight)
	}

	weak := *est
	weak.Reliability = 0.1
	slow := model.KinematicState{Velocity: model.Vec2{X: 10}}
	s = law.Compute(GuidanceInput{Self: slow, Target: &weak, Intercept: ir, Aim: ir.Point, Phase: model.PhaseCruise, Dt: 0.01})
	want := math.Min(1, g.BaseDirectWeight+g.LowSpeedBoost+g.LowConfidenceBoost)
	if math.Abs(s.DirectWeight-want) > 1e-12 {
		t.Fatalf("boosted direct weight = %v, want %v", s.DirectWeight, want)
	}
}

func TestGuidanceDampingContinuous(t *testing.T) {
	law, class := newTestLaw(t)
	g := class.Guidance
	if d := law.damping(0.1, 0.1); d != 1 {
		t.Fatalf("damping inside thresholds = %v, want 1", d)
	}
	below := law.damping(g.DampAngle, 0)
	above := law.damping(g.DampAngle*1.001, 0)
	if below != 1 || above >= 1 || 1-above > 1e-3 {
		t.Fatalf("damping not continuous at threshold: %v -> %v", below, above)
	}
	if law.damping(math.Pi, 100) >= law.damping(math.Pi, 0) {
		t.Fatalf("damping should shrink as error rate grows")
	}
}

func TestPointAtTurnsTowardAim(t *testing.T) {
	law, class := newTestLaw(t)
	rate := law.PointAt(model.KinematicState{}, model.Vec2{Y: 100})
	if rate <= 0 || rate > class.MaxTurnRate {
		t.Fatalf("PointAt rate = %v, want positive and bounded", rate)
	}
	if got := law.PointAt(model.KinematicState{}, model.Vec2{}); got != 0 {
		t.Fatalf("PointAt on own position = %v, want 0", got)
	}
}
