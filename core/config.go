package core

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidConfig wraps every class validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrVehicleDead is returned when an operation targets a dead vehicle.
	ErrVehicleDead = errors.New("vehicle is dead")
	// ErrDuplicateEntity indicates an entity with the same ID is already simulated.
	ErrDuplicateEntity = errors.New("entity already simulated")
)

// GuidanceConfig holds the blended PN / direct-pursuit gains.
type GuidanceConfig struct {
	// NavGain is the proportional navigation constant N (typically 3-5).
	NavGain float64

	// Kp, Ki, Kd are the direct-pursuit PID gains on the aim-point error.
	Kp, Ki, Kd float64
	// IntegralDecay is the per-second retention of the integral term in (0,1].
	IntegralDecay float64

	// HeadingGain converts body heading error (rad) to turn rate (rad/s).
	HeadingGain float64
	// MinSpeed guards speed-divided terms (m/s).
	MinSpeed float64

	// BaseDirectWeight is the direct-pursuit blend weight with no boosts.
	BaseDirectWeight float64
	// LowSpeedBoost applies below half of VehicleClass.CruiseSpeed.
	LowSpeedBoost float64
	// ShortRange and ShortRangeBoost raise direct weight close to the target.
	ShortRange      float64
	ShortRangeBoost float64
	// LowConfidence and LowConfidenceBoost raise direct weight for weak estimates
	// or degraded intercept solutions.
	LowConfidence      float64
	LowConfidenceBoost float64

	// DampAngle (rad) and DampRate (rad/s) are the heading error and error-rate
	// magnitudes above which the commanded rate is scaled down by DampGain.
	DampAngle float64
	DampRate  float64
	DampGain  float64

	// TerminalGainTau (s) reduces the commanded rate in Terminal as time-to-go
	// drops below it, never below TerminalGainFloor.
	TerminalGainTau   float64
	TerminalGainFloor float64
}

// TerminalThrust selects the thrust curve used in the Terminal phase.
type TerminalThrust int

const (
	// TerminalFull keeps full thrust through impact.
	TerminalFull TerminalThrust = iota
	// TerminalRamp decreases thrust monotonically across the terminal segment.
	TerminalRamp
	// TerminalWindow shapes thrust by time-to-go inside a window with an exponent.
	TerminalWindow
	// TerminalSpeedHold cuts thrust while closing speed exceeds SpeedLimit.
	TerminalSpeedHold
)

// ParseTerminalThrust maps a config string to a TerminalThrust.
func ParseTerminalThrust(s string) (TerminalThrust, error) {
	switch s {
	case "", "full":
		return TerminalFull, nil
	case "ramp":
		return TerminalRamp, nil
	case "window":
		return TerminalWindow, nil
	case "speed_hold":
		return TerminalSpeedHold, nil
	default:
		return TerminalFull, fmt.Errorf("%w: unknown terminal thrust policy %q", ErrInvalidConfig, s)
	}
}

// ThrustConfig governs the main-engine fraction per phase.
type ThrustConfig struct {
	// Cruise is the steady cruise thrust fraction.
	Cruise float64
	// CruiseRamp ramps thrust from 0 to Cruise after ignition; 0 disables.
	CruiseRamp time.Duration

	Terminal TerminalThrust
	// Floor is the lowest thrust fraction Ramp and Window curves reach.
	Floor float64
	// Window is the time-to-go window for TerminalWindow.
	Window time.Duration
	// Exponent shapes TerminalWindow.
	Exponent float64
	// SpeedLimit is the closing speed cap for TerminalSpeedHold (m/s).
	SpeedLimit float64
}

// VehicleClass is the per-class constant set for guided vehicles.
type VehicleClass struct {
	Name string

	MaxAccel    float64 // m/s²
	MaxTurnRate float64 // rad/s
	// MaxSpeed caps speed when > 0. Some classes fly uncapped.
	MaxSpeed float64
	// CruiseSpeed is the nominal speed used by guidance blending.
	CruiseSpeed float64

	EjectionSpeed    float64 // m/s, perpendicular to the launcher heading
	LateralClearance float64 // m
	IgnitionDelay    time.Duration

	AlignEnabled   bool
	AlignTolerance float64 // rad
	AlignTimeout   time.Duration

	TerminalRange    float64 // m
	TerminalProgress float64 // fraction in (0,1); 0 disables

	GuidanceRamp     time.Duration
	GuidanceInterval time.Duration // 0 recomputes every tick

	Lifetime        time.Duration
	ProximityRadius float64 // m
	OvershootRange  float64 // m; 0 disables overshoot misses

	MinReliability    float64
	MaxEstimateAge    time.Duration
	TargetLossTimeout time.Duration

	SolverIterations int
	SolverTolerance  float64

	Guidance GuidanceConfig
	Thrust   ThrustConfig
}

// DefaultGuidanceConfig returns gains tuned for high-acceleration torpedoes.
func DefaultGuidanceConfig() GuidanceConfig {
	return GuidanceConfig{
		NavGain:            4,
		Kp:                 1,
		Ki:                 0.05,
		Kd:                 2,
		IntegralDecay:      0.5,
		HeadingGain:        6,
		MinSpeed:           10,
		BaseDirectWeight:   0.2,
		LowSpeedBoost:      0.4,
		ShortRange:         500,
		ShortRangeBoost:    0.3,
		LowConfidence:      0.6,
		LowConfidenceBoost: 0.4,
		DampAngle:          math.Pi / 2,
		DampRate:           8,
		DampGain:           0.5,
		TerminalGainTau:    0.5,
		TerminalGainFloor:  0.5,
	}
}

// DefaultVehicleClass returns a torpedo class with uncapped speed.
func DefaultVehicleClass() VehicleClass {
	return VehicleClass{
		Name:              "torpedo",
		MaxAccel:          1000,
		MaxTurnRate:       3,
		CruiseSpeed:       3000,
		EjectionSpeed:     20,
		LateralClearance:  10,
		IgnitionDelay:     500 * time.Millisecond,
		AlignTolerance:    5 * math.Pi / 180,
		AlignTimeout:      2 * time.Second,
		TerminalRange:     1500,
		TerminalProgress:  0.9,
		GuidanceRamp:      250 * time.Millisecond,
		Lifetime:          60 * time.Second,
		ProximityRadius:   15,
		OvershootRange:    2000,
		MinReliability:    0.3,
		MaxEstimateAge:    time.Second,
		TargetLossTimeout: 2 * time.Second,
		SolverIterations:  DefaultSolverIterations,
		SolverTolerance:   DefaultSolverTolerance,
		Guidance:          DefaultGuidanceConfig(),
		Thrust: ThrustConfig{
			Cruise:   1,
			Terminal: TerminalFull,
			Floor:    0.3,
			Window:   time.Second,
			Exponent: 2,
		},
	}
}

// Validate rejects classes that would divide by zero or never progress.
func (c VehicleClass) Validate() error {
	switch {
	case !(c.MaxAccel > 0):
		return fieldErr("max_accel", c.MaxAccel, "must be > 0")
	case !(c.MaxTurnRate > 0):
		return fieldErr("max_turn_rate", c.MaxTurnRate, "must be > 0")
	case c.MaxSpeed < 0:
		return fieldErr("max_speed", c.MaxSpeed, "must be >= 0")
	case !(c.CruiseSpeed > 0):
		return fieldErr("cruise_speed", c.CruiseSpeed, "must be > 0")
	case c.EjectionSpeed < 0:
		return fieldErr("ejection_speed", c.EjectionSpeed, "must be >= 0")
	case c.LateralClearance <= 0 && c.IgnitionDelay <= 0:
		return fieldErr("ignition_delay", c.IgnitionDelay, "launch needs a clearance distance or ignition delay")
	case c.LateralClearance > 0 && c.EjectionSpeed == 0 && c.IgnitionDelay <= 0:
		return fieldErr("ejection_speed", c.EjectionSpeed, "clearance distance unreachable without ejection speed or ignition delay")
	case c.AlignEnabled && !(c.AlignTolerance > 0):
		return fieldErr("align_tolerance", c.AlignTolerance, "must be > 0 when align is enabled")
	case c.TerminalRange < 0:
		return fieldErr("terminal_range", c.TerminalRange, "must be >= 0")
	case c.TerminalProgress < 0 || c.TerminalProgress >= 1:
		return fieldErr("terminal_progress", c.TerminalProgress, "must be in [0,1)")
	case c.GuidanceInterval < 0:
		return fieldErr("guidance_interval", c.GuidanceInterval, "must be >= 0")
	case c.Lifetime <= 0:
		return fieldErr("lifetime", c.Lifetime, "must be > 0")
	case !(c.ProximityRadius > 0):
		return fieldErr("proximity_radius", c.ProximityRadius, "must be > 0")
	case c.OvershootRange < 0:
		return fieldErr("overshoot_range", c.OvershootRange, "must be >= 0")
	case c.MinReliability < 0 || c.MinReliability > 1:
		return fieldErr("min_reliability", c.MinReliability, "must be in [0,1]")
	case c.TargetLossTimeout < 0:
		return fieldErr("target_loss_timeout", c.TargetLossTimeout, "must be >= 0")
	}
	if err := c.Guidance.validate(); err != nil {
		return err
	}
	return c.Thrust.validate()
}

func (g GuidanceConfig) validate() error {
	switch {
	case g.NavGain < 0:
		return fieldErr("guidance.nav_gain", g.NavGain, "must be >= 0")
	case g.IntegralDecay < 0 || g.IntegralDecay > 1:
		return fieldErr("guidance.integral_decay", g.IntegralDecay, "must be in [0,1]")
	case !(g.HeadingGain > 0):
		return fieldErr("guidance.heading_gain", g.HeadingGain, "must be > 0")
	case !(g.MinSpeed > 0):
		return fieldErr("guidance.min_speed", g.MinSpeed, "must be > 0")
	case g.BaseDirectWeight < 0 || g.BaseDirectWeight > 1:
		return fieldErr("guidance.base_direct_weight", g.BaseDirectWeight, "must be in [0,1]")
	case g.DampGain < 0:
		return fieldErr("guidance.damp_gain", g.DampGain, "must be >= 0")
	case g.DampGain > 0 && !(g.DampAngle > 0 && g.DampRate > 0):
		return fieldErr("guidance.damp_angle", g.DampAngle, "damping thresholds must be > 0")
	case g.TerminalGainFloor < 0 || g.TerminalGainFloor > 1:
		return fieldErr("guidance.terminal_gain_floor", g.TerminalGainFloor, "must be in [0,1]")
	}
	return nil
}

func (t ThrustConfig) validate() error {
	switch {
	case t.Cruise < 0 || t.Cruise > 1:
		return fieldErr("thrust.cruise", t.Cruise, "must be in [0,1]")
	case t.Floor < 0 || t.Floor > 1:
		return fieldErr("thrust.floor", t.Floor, "must be in [0,1]")
	case t.Terminal == TerminalWindow && (t.Window <= 0 || !(t.Exponent > 0)):
		return fieldErr("thrust.window", t.Window, "window policy needs window > 0 and exponent > 0")
	case t.Terminal == TerminalSpeedHold && !(t.SpeedLimit > 0):
		return fieldErr("thrust.speed_limit", t.SpeedLimit, "must be > 0 for speed_hold")
	}
	return nil
}

// ScoreWeights are the tunable threat-priority weights.
type ScoreWeights struct {
	Proximity   float64
	Closing     float64
	Alignment   float64
	Feasibility float64
}

// TurretClass is the per-class constant set for point-defense turrets.
type TurretClass struct {
	Name string

	EngagementRange float64 // m
	MuzzleVelocity  float64 // m/s
	FireRate        float64 // rounds/s
	BurstLength     int     // rounds
	Cooldown        time.Duration

	RotationRate   float64 // rad/s
	AimTolerance   float64 // rad; enter Firing below
	AbortTolerance float64 // rad; drop back to Tracking above mid-burst
	AimGrace       time.Duration

	// ArcCenter is the turret's forward arc relative to the platform heading.
	ArcCenter float64 // rad
	MaxOffAxis float64 // rad

	ScanInterval    time.Duration
	LockHold        time.Duration
	LockHysteresis  float64
	MinClosingSpeed float64 // m/s
	// ClosingNorm normalises closing speed into [0,1] for scoring.
	ClosingNorm float64

	MinInterceptTime time.Duration
	MaxInterceptTime time.Duration

	MinReliability float64
	MaxEstimateAge time.Duration

	RoundLifetime   time.Duration
	RoundFuseRadius float64 // m

	Weights ScoreWeights
}

// DefaultTurretClass returns a rapid-fire point-defense cannon.
func DefaultTurretClass() TurretClass {
	return TurretClass{
		Name:             "pdc",
		EngagementRange:  5000,
		MuzzleVelocity:   3000,
		FireRate:         50,
		BurstLength:      20,
		Cooldown:         300 * time.Millisecond,
		RotationRate:     4,
		AimTolerance:     7 * math.Pi / 180,
		AbortTolerance:   15 * math.Pi / 180,
		AimGrace:         200 * time.Millisecond,
		MaxOffAxis:       math.Pi,
		ScanInterval:     100 * time.Millisecond,
		LockHold:         500 * time.Millisecond,
		LockHysteresis:   1.3,
		MinClosingSpeed:  10,
		ClosingNorm:      4000,
		MinInterceptTime: 10 * time.Millisecond,
		MaxInterceptTime: 3 * time.Second,
		MinReliability:   0.3,
		MaxEstimateAge:   time.Second,
		RoundLifetime:    2 * time.Second,
		RoundFuseRadius:  8,
		Weights: ScoreWeights{
			Proximity:   4,
			Closing:     3,
			Alignment:   1,
			Feasibility: 2,
		},
	}
}

// Validate rejects turret classes that cannot aim or fire.
func (c TurretClass) Validate() error {
	switch {
	case !(c.EngagementRange > 0):
		return fieldErr("engagement_range", c.EngagementRange, "must be > 0")
	case !(c.MuzzleVelocity > 0):
		return fieldErr("muzzle_velocity", c.MuzzleVelocity, "must be > 0")
	case !(c.FireRate > 0):
		return fieldErr("fire_rate", c.FireRate, "must be > 0")
	case c.BurstLength <= 0:
		return fieldErr("burst_length", c.BurstLength, "must be > 0")
	case c.Cooldown < 0:
		return fieldErr("cooldown", c.Cooldown, "must be >= 0")
	case !(c.RotationRate > 0):
		return fieldErr("rotation_rate", c.RotationRate, "must be > 0")
	case !(c.AimTolerance > 0):
		return fieldErr("aim_tolerance", c.AimTolerance, "must be > 0")
	case c.AbortTolerance < c.AimTolerance:
		return fieldErr("abort_tolerance", c.AbortTolerance, "must be >= aim_tolerance")
	case !(c.MaxOffAxis > 0):
		return fieldErr("max_off_axis", c.MaxOffAxis, "must be > 0")
	case c.ScanInterval < 0:
		return fieldErr("scan_interval", c.ScanInterval, "must be >= 0")
	case c.LockHysteresis < 1:
		return fieldErr("lock_hysteresis", c.LockHysteresis, "must be >= 1")
	case !(c.ClosingNorm > 0):
		return fieldErr("closing_norm", c.ClosingNorm, "must be > 0")
	case c.MaxInterceptTime <= c.MinInterceptTime:
		return fieldErr("max_intercept_time", c.MaxInterceptTime, "must exceed min_intercept_time")
	case c.MinReliability < 0 || c.MinReliability > 1:
		return fieldErr("min_reliability", c.MinReliability, "must be in [0,1]")
	case c.RoundLifetime <= 0:
		return fieldErr("round_lifetime", c.RoundLifetime, "must be > 0")
	case !(c.RoundFuseRadius > 0):
		return fieldErr("round_fuse_radius", c.RoundFuseRadius, "must be > 0")
	case c.Weights.Proximity < 0 || c.Weights.Closing < 0 || c.Weights.Alignment < 0 || c.Weights.Feasibility < 0:
		return fieldErr("weights", c.Weights, "must be >= 0")
	}
	return nil
}

func fieldErr(field string, value any, reason string) error {
	return fmt.Errorf("%w: %s=%v %s", ErrInvalidConfig, field, value, reason)
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}
