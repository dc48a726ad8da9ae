package core

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestDefaultClassesValid(t *testing.T) {
	if err := DefaultVehicleClass().Validate(); err != nil {
		t.Fatalf("default vehicle class: %v", err)
	}
	if err := DefaultTurretClass().Validate(); err != nil {
		t.Fatalf("default turret class: %v", err)
	}
}

func TestVehicleClassValidate(t *testing.T) {
	cases := map[string]func(*VehicleClass){
		"max_accel":         func(c *VehicleClass) { c.MaxAccel = 0 },
		"max_turn_rate":     func(c *VehicleClass) { c.MaxTurnRate = math.NaN() },
		"ignition_delay":    func(c *VehicleClass) { c.LateralClearance = 0; c.IgnitionDelay = 0 },
		"align_tolerance":   func(c *VehicleClass) { c.AlignEnabled = true; c.AlignTolerance = 0 },
		"terminal_progress": func(c *VehicleClass) { c.TerminalProgress = 1 },
		"proximity_radius":  func(c *VehicleClass) { c.ProximityRadius = 0 },
		"guidance.min_speed": func(c *VehicleClass) {
			c.Guidance.MinSpeed = 0
		},
		"thrust.speed_limit": func(c *VehicleClass) {
			c.Thrust.Terminal = TerminalSpeedHold
			c.Thrust.SpeedLimit = 0
		},
	}
	for field, mutate := range cases {
		c := DefaultVehicleClass()
		mutate(&c)
		err := c.Validate()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: err = %v, want ErrInvalidConfig", field, err)
		}
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("%s: error %q does not name the field", field, err)
		}
	}
}

func TestTurretClassValidate(t *testing.T) {
	cases := map[string]func(*TurretClass){
		"muzzle_velocity":    func(c *TurretClass) { c.MuzzleVelocity = -1 },
		"burst_length":       func(c *TurretClass) { c.BurstLength = 0 },
		"abort_tolerance":    func(c *TurretClass) { c.AbortTolerance = c.AimTolerance / 2 },
		"lock_hysteresis":    func(c *TurretClass) { c.LockHysteresis = 0.9 },
		"max_intercept_time": func(c *TurretClass) { c.MaxInterceptTime = c.MinInterceptTime },
		"weights":            func(c *TurretClass) { c.Weights.Closing = -1 },
	}
	for field, mutate := range cases {
		c := DefaultTurretClass()
		mutate(&c)
		err := c.Validate()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: err = %v, want ErrInvalidConfig", field, err)
		}
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("%s: error %q does not name the field", field, err)
		}
	}
}

func TestNewGuidanceLawRejectsInvalidClass(t *testing.T) {
	c := DefaultVehicleClass()
	c.MaxAccel = -5
	if _, err := NewGuidanceLaw(c); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("NewGuidanceLaw err = %v", err)
	}
}
