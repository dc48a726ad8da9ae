package core

import (
	"math"

	"github.com/signalsfoundry/intercept-sim/model"
)

// ThrustContext carries the fresh per-tick measurements thrust curves use.
type ThrustContext struct {
	SinceIgnition float64 // s
	// TerminalProgress is 0 at Terminal entry and 1 at zero range.
	TerminalProgress float64
	TimeToGo         float64 // s
	ClosingSpeed     float64 // m/s
}

// ThrustFraction returns the main-engine fraction in [0,1] for phase.
func ThrustFraction(cfg ThrustConfig, phase model.FlightPhase, c ThrustContext) float64 {
	var f float64
	switch phase {
	case model.PhaseCruise:
		f = cfg.Cruise
		if cfg.CruiseRamp > 0 {
			f *= clamp(c.SinceIgnition/seconds(cfg.CruiseRamp), 0, 1)
		}
	case model.PhaseTerminal:
		switch cfg.Terminal {
		case TerminalRamp:
			f = 1 - (1-cfg.Floor)*clamp(c.TerminalProgress, 0, 1)
		case TerminalWindow:
			window := seconds(cfg.Window)
			if c.TimeToGo >= window {
				f = 1
			} else {
				f = cfg.Floor + (1-cfg.Floor)*math.Pow(clamp(c.TimeToGo/window, 0, 1), cfg.Exponent)
			}
		case TerminalSpeedHold:
			if c.ClosingSpeed > cfg.SpeedLimit {
				f = 0
			} else {
				f = 1
			}
		default:
			f = 1
		}
	default:
		f = 0
	}
	return clamp(finiteOr(f, 0), 0, 1)
}
