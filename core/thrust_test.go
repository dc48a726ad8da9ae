package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/intercept-sim/model"
)

func TestThrustFractionPhases(t *testing.T) {
	cfg := ThrustConfig{Cruise: 0.8, Floor: 0.2}
	if f := ThrustFraction(cfg, model.PhaseLaunch, ThrustContext{}); f != 0 {
		t.Fatalf("launch thrust = %v, want 0", f)
	}
	if f := ThrustFraction(cfg, model.PhaseAlign, ThrustContext{}); f != 0 {
		t.Fatalf("align thrust = %v, want 0", f)
	}
	if f := ThrustFraction(cfg, model.PhaseCruise, ThrustContext{}); f != 0.8 {
		t.Fatalf("cruise thrust = %v, want 0.8", f)
	}
	if f := ThrustFraction(cfg, model.PhaseTerminal, ThrustContext{}); f != 1 {
		t.Fatalf("full terminal thrust = %v, want 1", f)
	}
}

func TestThrustFractionCruiseRamp(t *testing.T) {
	cfg := ThrustConfig{Cruise: 1, CruiseRamp: time.Second}
	if f := ThrustFraction(cfg, model.PhaseCruise, ThrustContext{SinceIgnition: 0.25}); f != 0.25 {
		t.Fatalf("ramp thrust = %v, want 0.25", f)
	}
	if f := ThrustFraction(cfg, model.PhaseCruise, ThrustContext{SinceIgnition: 3}); f != 1 {
		t.Fatalf("ramp complete = %v, want 1", f)
	}
}

func TestThrustFractionTerminalRampMonotonic(t *testing.T) {
	cfg := ThrustConfig{Terminal: TerminalRamp, Floor: 0.3}
	prev := 2.0
	for p := 0.0; p <= 1.0; p += 0.1 {
		f := ThrustFraction(cfg, model.PhaseTerminal, ThrustContext{TerminalProgress: p})
		if f > prev {
			t.Fatalf("ramp increased at progress %v: %v > %v", p, f, prev)
		}
		if f < cfg.Floor-1e-12 || f > 1 {
			t.Fatalf("ramp out of [floor,1] at %v: %v", p, f)
		}
		prev = f
	}
}

func TestThrustFractionTerminalWindow(t *testing.T) {
	cfg := ThrustConfig{Terminal: TerminalWindow, Floor: 0.2, Window: time.Second, Exponent: 2}
	if f := ThrustFraction(cfg, model.PhaseTerminal, ThrustContext{TimeToGo: 2}); f != 1 {
		t.Fatalf("outside window = %v, want 1", f)
	}
	f := ThrustFraction(cfg, model.PhaseTerminal, ThrustContext{TimeToGo: 0.5})
	if want := 0.2 + 0.8*0.25; f != want {
		t.Fatalf("inside window = %v, want %v", f, want)
	}
	if f := ThrustFraction(cfg, model.PhaseTerminal, ThrustContext{TimeToGo: 0}); f != 0.2 {
		t.Fatalf("at impact = %v, want floor", f)
	}
}

func TestThrustFractionSpeedHold(t *testing.T) {
	cfg := ThrustConfig{Terminal: TerminalSpeedHold, SpeedLimit: 3000}
	if f := ThrustFraction(cfg, model.PhaseTerminal, ThrustContext{ClosingSpeed: 3500}); f != 0 {
		t.Fatalf("above limit = %v, want 0", f)
	}
	if f := ThrustFraction(cfg, model.PhaseTerminal, ThrustContext{ClosingSpeed: 2000}); f != 1 {
		t.Fatalf("below limit = %v, want 1", f)
	}
}

func TestParseTerminalThrust(t *testing.T) {
	for in, want := range map[string]TerminalThrust{
		"":           TerminalFull,
		"full":       TerminalFull,
		"ramp":       TerminalRamp,
		"window":     TerminalWindow,
		"speed_hold": TerminalSpeedHold,
	} {
		got, err := ParseTerminalThrust(in)
		if err != nil || got != want {
			t.Fatalf("ParseTerminalThrust(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseTerminalThrust("afterburner"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
