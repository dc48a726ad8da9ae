// Package config loads engagement scenarios and vehicle/turret class
// parameters from YAML or JSON files through viper.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/intercept-sim/core"
	"github.com/signalsfoundry/intercept-sim/model"
)

var (
	// ErrNoVehicleClass is returned when a launcher names an undefined class.
	ErrNoVehicleClass = errors.New("vehicle class not defined")
	// ErrNoTurretClass is returned when a turret names an undefined class.
	ErrNoTurretClass = errors.New("turret class not defined")
)

// EnvPrefix prefixes environment overrides, e.g. INTERCEPT_SIMULATION_TICK.
const EnvPrefix = "INTERCEPT"

// Config is a complete scenario. Angles are in degrees and durations are
// strings such as "250ms". Class names are case-insensitive.
type Config struct {
	Simulation     Simulation              `mapstructure:"simulation"`
	Bounds         Bounds                  `mapstructure:"bounds"`
	VehicleClasses map[string]VehicleClass `mapstructure:"vehicle_classes"`
	TurretClasses  map[string]TurretClass  `mapstructure:"turret_classes"`
	Ships          []Ship                  `mapstructure:"ships"`
}

type Simulation struct {
	Tick        time.Duration `mapstructure:"tick"`
	Duration    time.Duration `mapstructure:"duration"`
	Accelerated bool          `mapstructure:"accelerated"`
	Workers     int           `mapstructure:"workers"`
	Jitter      float64       `mapstructure:"jitter"`
	Seed        uint64        `mapstructure:"seed"`
}

// Bounds is a rectangle (min/max) or a circle (radius around the origin).
// All zero means unbounded.
type Bounds struct {
	MinX   float64 `mapstructure:"min_x"`
	MinY   float64 `mapstructure:"min_y"`
	MaxX   float64 `mapstructure:"max_x"`
	MaxY   float64 `mapstructure:"max_y"`
	Radius float64 `mapstructure:"radius"`
}

// Query converts the bounds into a core.BoundsQuery.
func (b Bounds) Query() core.BoundsQuery {
	switch {
	case b.Radius > 0:
		return core.CircleBounds{Radius: b.Radius}
	case b.MaxX > b.MinX && b.MaxY > b.MinY:
		return core.RectBounds{
			Min: model.Vec2{X: b.MinX, Y: b.MinY},
			Max: model.Vec2{X: b.MaxX, Y: b.MaxY},
		}
	default:
		return core.Unbounded{}
	}
}

type Guidance struct {
	NavGain            float64 `mapstructure:"nav_gain"`
	Kp                 float64 `mapstructure:"kp"`
	Ki                 float64 `mapstructure:"ki"`
	Kd                 float64 `mapstructure:"kd"`
	IntegralDecay      float64 `mapstructure:"integral_decay"`
	HeadingGain        float64 `mapstructure:"heading_gain"`
	MinSpeed           float64 `mapstructure:"min_speed"`
	BaseDirectWeight   float64 `mapstructure:"base_direct_weight"`
	LowSpeedBoost      float64 `mapstructure:"low_speed_boost"`
	ShortRange         float64 `mapstructure:"short_range"`
	ShortRangeBoost    float64 `mapstructure:"short_range_boost"`
	LowConfidence      float64 `mapstructure:"low_confidence"`
	LowConfidenceBoost float64 `mapstructure:"low_confidence_boost"`
	DampAngleDeg       float64 `mapstructure:"damp_angle_deg"`
	DampRate           float64 `mapstructure:"damp_rate"`
	DampGain           float64 `mapstructure:"damp_gain"`
	TerminalGainTau    float64 `mapstructure:"terminal_gain_tau"`
	TerminalGainFloor  float64 `mapstructure:"terminal_gain_floor"`
}

type Thrust struct {
	Cruise     float64       `mapstructure:"cruise"`
	CruiseRamp time.Duration `mapstructure:"cruise_ramp"`
	Terminal   string        `mapstructure:"terminal"`
	Floor      float64       `mapstructure:"floor"`
	Window     time.Duration `mapstructure:"window"`
	Exponent   float64       `mapstructure:"exponent"`
	SpeedLimit float64       `mapstructure:"speed_limit"`
}

type VehicleClass struct {
	MaxAccel          float64       `mapstructure:"max_accel"`
	MaxTurnRateDeg    float64       `mapstructure:"max_turn_rate_deg"`
	MaxSpeed          float64       `mapstructure:"max_speed"`
	CruiseSpeed       float64       `mapstructure:"cruise_speed"`
	EjectionSpeed     float64       `mapstructure:"ejection_speed"`
	LateralClearance  float64       `mapstructure:"lateral_clearance"`
	IgnitionDelay     time.Duration `mapstructure:"ignition_delay"`
	AlignEnabled      bool          `mapstructure:"align_enabled"`
	AlignToleranceDeg float64       `mapstructure:"align_tolerance_deg"`
	AlignTimeout      time.Duration `mapstructure:"align_timeout"`
	TerminalRange     float64       `mapstructure:"terminal_range"`
	TerminalProgress  float64       `mapstructure:"terminal_progress"`
	GuidanceRamp      time.Duration `mapstructure:"guidance_ramp"`
	GuidanceInterval  time.Duration `mapstructure:"guidance_interval"`
	Lifetime          time.Duration `mapstructure:"lifetime"`
	ProximityRadius   float64       `mapstructure:"proximity_radius"`
	OvershootRange    float64       `mapstructure:"overshoot_range"`
	MinReliability    float64       `mapstructure:"min_reliability"`
	MaxEstimateAge    time.Duration `mapstructure:"max_estimate_age"`
	TargetLossTimeout time.Duration `mapstructure:"target_loss_timeout"`
	SolverIterations  int           `mapstructure:"solver_iterations"`
	SolverTolerance   float64       `mapstructure:"solver_tolerance"`
	Guidance          Guidance      `mapstructure:"guidance"`
	Thrust            Thrust        `mapstructure:"thrust"`
}

type Weights struct {
	Proximity   float64 `mapstructure:"proximity"`
	Closing     float64 `mapstructure:"closing"`
	Alignment   float64 `mapstructure:"alignment"`
	Feasibility float64 `mapstructure:"feasibility"`
}

type TurretClass struct {
	EngagementRange   float64       `mapstructure:"engagement_range"`
	MuzzleVelocity    float64       `mapstructure:"muzzle_velocity"`
	FireRate          float64       `mapstructure:"fire_rate"`
	BurstLength       int           `mapstructure:"burst_length"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
	RotationRateDeg   float64       `mapstructure:"rotation_rate_deg"`
	AimToleranceDeg   float64       `mapstructure:"aim_tolerance_deg"`
	AbortToleranceDeg float64       `mapstructure:"abort_tolerance_deg"`
	AimGrace          time.Duration `mapstructure:"aim_grace"`
	ArcCenterDeg      float64       `mapstructure:"arc_center_deg"`
	MaxOffAxisDeg     float64       `mapstructure:"max_off_axis_deg"`
	ScanInterval      time.Duration `mapstructure:"scan_interval"`
	LockHold          time.Duration `mapstructure:"lock_hold"`
	LockHysteresis    float64       `mapstructure:"lock_hysteresis"`
	MinClosingSpeed   float64       `mapstructure:"min_closing_speed"`
	ClosingNorm       float64       `mapstructure:"closing_norm"`
	MinInterceptTime  time.Duration `mapstructure:"min_intercept_time"`
	MaxInterceptTime  time.Duration `mapstructure:"max_intercept_time"`
	MinReliability    float64       `mapstructure:"min_reliability"`
	MaxEstimateAge    time.Duration `mapstructure:"max_estimate_age"`
	RoundLifetime     time.Duration `mapstructure:"round_lifetime"`
	RoundFuseRadius   float64       `mapstructure:"round_fuse_radius"`
	Weights           Weights       `mapstructure:"weights"`
}

// Ship is a platform in the scenario. It may carry launchers and turrets.
type Ship struct {
	ID             string     `mapstructure:"id"`
	Faction        string     `mapstructure:"faction"`
	X              float64    `mapstructure:"x"`
	Y              float64    `mapstructure:"y"`
	VX             float64    `mapstructure:"vx"`
	VY             float64    `mapstructure:"vy"`
	HeadingDeg     float64    `mapstructure:"heading_deg"`
	Reliability    float64    `mapstructure:"reliability"`
	Motion         string     `mapstructure:"motion"`
	WeaveAmplitude float64    `mapstructure:"weave_amplitude"`
	WeavePeriod    float64    `mapstructure:"weave_period"`
	Launchers      []Launcher `mapstructure:"launchers"`
	Turrets        []Turret   `mapstructure:"turrets"`
}

// State returns the ship's initial kinematic state.
func (s Ship) State() model.KinematicState {
	return model.KinematicState{
		Position:    model.Vec2{X: s.X, Y: s.Y},
		Velocity:    model.Vec2{X: s.VX, Y: s.VY},
		Orientation: core.WrapAngle(deg(s.HeadingDeg)),
	}
}

// Launcher fires a salvo of vehicles at Target.
type Launcher struct {
	Class    string        `mapstructure:"class"`
	Target   string        `mapstructure:"target"`
	Salvo    int           `mapstructure:"salvo"`
	Delay    time.Duration `mapstructure:"delay"`
	Interval time.Duration `mapstructure:"interval"`
	Policy   Policy        `mapstructure:"policy"`
}

type Policy struct {
	Kind       string        `mapstructure:"kind"`
	ArcOffset  float64       `mapstructure:"arc_offset"`
	ImpactTime time.Duration `mapstructure:"impact_time"`
	MinThrust  float64       `mapstructure:"min_thrust"`
}

// Guidance converts the file policy into a core policy.
func (p Policy) Guidance() (core.GuidancePolicy, error) {
	kind, err := core.ParsePolicyKind(p.Kind)
	if err != nil {
		return core.GuidancePolicy{}, err
	}
	gp := core.GuidancePolicy{
		Kind:       kind,
		ArcOffset:  p.ArcOffset,
		ImpactTime: p.ImpactTime,
		MinThrust:  p.MinThrust,
	}
	return gp, gp.Validate()
}

type Turret struct {
	ID         string  `mapstructure:"id"`
	Class      string  `mapstructure:"class"`
	OffsetX    float64 `mapstructure:"offset_x"`
	OffsetY    float64 `mapstructure:"offset_y"`
	BearingDeg float64 `mapstructure:"bearing_deg"`
}

// Load reads a YAML or JSON scenario file, chosen by extension.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

// Read parses a scenario from r in the given format ("yaml" or "json").
func Read(r io.Reader, format string) (*Config, error) {
	v := newViper()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("simulation.tick", "16ms")
	v.SetDefault("simulation.duration", "60s")
	v.SetDefault("simulation.accelerated", true)
	v.SetDefault("simulation.workers", 1)
	v.SetDefault("simulation.jitter", 0.0)
	v.SetDefault("simulation.seed", 1)
	return v
}

// decode fills per-class defaults for every class named in the file so a
// class only lists the keys it overrides.
func decode(v *viper.Viper) (*Config, error) {
	for name := range v.GetStringMap("vehicle_classes") {
		setDefaults(v, "vehicle_classes."+name, vehicleDefaults())
	}
	for name := range v.GetStringMap("turret_classes") {
		setDefaults(v, "turret_classes."+name, turretDefaults())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, prefix string, defaults map[string]any) {
	for key, val := range defaults {
		if nested, ok := val.(map[string]any); ok {
			setDefaults(v, prefix+"."+key, nested)
			continue
		}
		v.SetDefault(prefix+"."+key, val)
	}
}

// Validate checks the simulation block, every class and every reference.
func (c *Config) Validate() error {
	if c.Simulation.Tick <= 0 {
		return fmt.Errorf("%w: simulation.tick must be > 0", core.ErrInvalidConfig)
	}
	if c.Simulation.Jitter < 0 || c.Simulation.Jitter >= 1 {
		return fmt.Errorf("%w: simulation.jitter must be in [0,1)", core.ErrInvalidConfig)
	}
	for name := range c.VehicleClasses {
		if _, err := c.VehicleClass(name); err != nil {
			return fmt.Errorf("vehicle class %q: %w", name, err)
		}
	}
	for name := range c.TurretClasses {
		if _, err := c.TurretClass(name); err != nil {
			return fmt.Errorf("turret class %q: %w", name, err)
		}
	}
	seen := make(map[string]struct{}, len(c.Ships))
	for _, s := range c.Ships {
		if s.ID == "" {
			return fmt.Errorf("%w: ship without id", core.ErrInvalidConfig)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: ship %q", core.ErrDuplicateEntity, s.ID)
		}
		seen[s.ID] = struct{}{}
		if _, err := core.NewMotionModel(s.Motion, s.WeaveAmplitude, s.WeavePeriod); err != nil {
			return fmt.Errorf("ship %q: %w", s.ID, err)
		}
		for _, l := range s.Launchers {
			if _, ok := c.VehicleClasses[strings.ToLower(l.Class)]; !ok {
				return fmt.Errorf("ship %q launcher: %w: %q", s.ID, ErrNoVehicleClass, l.Class)
			}
			if _, err := l.Policy.Guidance(); err != nil {
				return fmt.Errorf("ship %q launcher: %w", s.ID, err)
			}
		}
		for _, t := range s.Turrets {
			if _, ok := c.TurretClasses[strings.ToLower(t.Class)]; !ok {
				return fmt.Errorf("ship %q turret: %w: %q", s.ID, ErrNoTurretClass, t.Class)
			}
		}
	}
	return nil
}

// VehicleClass returns the named class converted to SI units and validated.
func (c *Config) VehicleClass(name string) (core.VehicleClass, error) {
	f, ok := c.VehicleClasses[strings.ToLower(name)]
	if !ok {
		return core.VehicleClass{}, fmt.Errorf("%w: %q", ErrNoVehicleClass, name)
	}
	terminal, err := core.ParseTerminalThrust(f.Thrust.Terminal)
	if err != nil {
		return core.VehicleClass{}, err
	}
	g := f.Guidance
	vc := core.VehicleClass{
		Name:              name,
		MaxAccel:          f.MaxAccel,
		MaxTurnRate:       deg(f.MaxTurnRateDeg),
		MaxSpeed:          f.MaxSpeed,
		CruiseSpeed:       f.CruiseSpeed,
		EjectionSpeed:     f.EjectionSpeed,
		LateralClearance:  f.LateralClearance,
		IgnitionDelay:     f.IgnitionDelay,
		AlignEnabled:      f.AlignEnabled,
		AlignTolerance:    deg(f.AlignToleranceDeg),
		AlignTimeout:      f.AlignTimeout,
		TerminalRange:     f.TerminalRange,
		TerminalProgress:  f.TerminalProgress,
		GuidanceRamp:      f.GuidanceRamp,
		GuidanceInterval:  f.GuidanceInterval,
		Lifetime:          f.Lifetime,
		ProximityRadius:   f.ProximityRadius,
		OvershootRange:    f.OvershootRange,
		MinReliability:    f.MinReliability,
		MaxEstimateAge:    f.MaxEstimateAge,
		TargetLossTimeout: f.TargetLossTimeout,
		SolverIterations:  f.SolverIterations,
		SolverTolerance:   f.SolverTolerance,
		Guidance: core.GuidanceConfig{
			NavGain:            g.NavGain,
			Kp:                 g.Kp,
			Ki:                 g.Ki,
			Kd:                 g.Kd,
			IntegralDecay:      g.IntegralDecay,
			HeadingGain:        g.HeadingGain,
			MinSpeed:           g.MinSpeed,
			BaseDirectWeight:   g.BaseDirectWeight,
			LowSpeedBoost:      g.LowSpeedBoost,
			ShortRange:         g.ShortRange,
			ShortRangeBoost:    g.ShortRangeBoost,
			LowConfidence:      g.LowConfidence,
			LowConfidenceBoost: g.LowConfidenceBoost,
			DampAngle:          deg(g.DampAngleDeg),
			DampRate:           g.DampRate,
			DampGain:           g.DampGain,
			TerminalGainTau:    g.TerminalGainTau,
			TerminalGainFloor:  g.TerminalGainFloor,
		},
		Thrust: core.ThrustConfig{
			Cruise:     f.Thrust.Cruise,
			CruiseRamp: f.Thrust.CruiseRamp,
			Terminal:   terminal,
			Floor:      f.Thrust.Floor,
			Window:     f.Thrust.Window,
			Exponent:   f.Thrust.Exponent,
			SpeedLimit: f.Thrust.SpeedLimit,
		},
	}
	return vc, vc.Validate()
}

// TurretClass returns the named class converted to SI units and validated.
func (c *Config) TurretClass(name string) (core.TurretClass, error) {
	f, ok := c.TurretClasses[strings.ToLower(name)]
	if !ok {
		return core.TurretClass{}, fmt.Errorf("%w: %q", ErrNoTurretClass, name)
	}
	tc := core.TurretClass{
		Name:             name,
		EngagementRange:  f.EngagementRange,
		MuzzleVelocity:   f.MuzzleVelocity,
		FireRate:         f.FireRate,
		BurstLength:      f.BurstLength,
		Cooldown:         f.Cooldown,
		RotationRate:     deg(f.RotationRateDeg),
		AimTolerance:     deg(f.AimToleranceDeg),
		AbortTolerance:   deg(f.AbortToleranceDeg),
		AimGrace:         f.AimGrace,
		ArcCenter:        deg(f.ArcCenterDeg),
		MaxOffAxis:       deg(f.MaxOffAxisDeg),
		ScanInterval:     f.ScanInterval,
		LockHold:         f.LockHold,
		LockHysteresis:   f.LockHysteresis,
		MinClosingSpeed:  f.MinClosingSpeed,
		ClosingNorm:      f.ClosingNorm,
		MinInterceptTime: f.MinInterceptTime,
		MaxInterceptTime: f.MaxInterceptTime,
		MinReliability:   f.MinReliability,
		MaxEstimateAge:   f.MaxEstimateAge,
		RoundLifetime:    f.RoundLifetime,
		RoundFuseRadius:  f.RoundFuseRadius,
		Weights: core.ScoreWeights{
			Proximity:   f.Weights.Proximity,
			Closing:     f.Weights.Closing,
			Alignment:   f.Weights.Alignment,
			Feasibility: f.Weights.Feasibility,
		},
	}
	return tc, tc.Validate()
}

func vehicleDefaults() map[string]any {
	d := core.DefaultVehicleClass()
	g := d.Guidance
	return map[string]any{
		"max_accel":           d.MaxAccel,
		"max_turn_rate_deg":   toDeg(d.MaxTurnRate),
		"max_speed":           d.MaxSpeed,
		"cruise_speed":        d.CruiseSpeed,
		"ejection_speed":      d.EjectionSpeed,
		"lateral_clearance":   d.LateralClearance,
		"ignition_delay":      d.IgnitionDelay.String(),
		"align_enabled":       d.AlignEnabled,
		"align_tolerance_deg": toDeg(d.AlignTolerance),
		"align_timeout":       d.AlignTimeout.String(),
		"terminal_range":      d.TerminalRange,
		"terminal_progress":   d.TerminalProgress,
		"guidance_ramp":       d.GuidanceRamp.String(),
		"guidance_interval":   d.GuidanceInterval.String(),
		"lifetime":            d.Lifetime.String(),
		"proximity_radius":    d.ProximityRadius,
		"overshoot_range":     d.OvershootRange,
		"min_reliability":     d.MinReliability,
		"max_estimate_age":    d.MaxEstimateAge.String(),
		"target_loss_timeout": d.TargetLossTimeout.String(),
		"solver_iterations":   d.SolverIterations,
		"solver_tolerance":    d.SolverTolerance,
		"guidance": map[string]any{
			"nav_gain":             g.NavGain,
			"kp":                   g.Kp,
			"ki":                   g.Ki,
			"kd":                   g.Kd,
			"integral_decay":       g.IntegralDecay,
			"heading_gain":         g.HeadingGain,
			"min_speed":            g.MinSpeed,
			"base_direct_weight":   g.BaseDirectWeight,
			"low_speed_boost":      g.LowSpeedBoost,
			"short_range":          g.ShortRange,
			"short_range_boost":    g.ShortRangeBoost,
			"low_confidence":       g.LowConfidence,
			"low_confidence_boost": g.LowConfidenceBoost,
			"damp_angle_deg":       toDeg(g.DampAngle),
			"damp_rate":            g.DampRate,
			"damp_gain":            g.DampGain,
			"terminal_gain_tau":    g.TerminalGainTau,
			"terminal_gain_floor":  g.TerminalGainFloor,
		},
		"thrust": map[string]any{
			"cruise":      d.Thrust.Cruise,
			"cruise_ramp": d.Thrust.CruiseRamp.String(),
			"terminal":    "full",
			"floor":       d.Thrust.Floor,
			"window":      d.Thrust.Window.String(),
			"exponent":    d.Thrust.Exponent,
			"speed_limit": d.Thrust.SpeedLimit,
		},
	}
}

func turretDefaults() map[string]any {
	d := core.DefaultTurretClass()
	return map[string]any{
		"engagement_range":    d.EngagementRange,
		"muzzle_velocity":     d.MuzzleVelocity,
		"fire_rate":           d.FireRate,
		"burst_length":        d.BurstLength,
		"cooldown":            d.Cooldown.String(),
		"rotation_rate_deg":   toDeg(d.RotationRate),
		"aim_tolerance_deg":   toDeg(d.AimTolerance),
		"abort_tolerance_deg": toDeg(d.AbortTolerance),
		"aim_grace":           d.AimGrace.String(),
		"arc_center_deg":      toDeg(d.ArcCenter),
		"max_off_axis_deg":    toDeg(d.MaxOffAxis),
		"scan_interval":       d.ScanInterval.String(),
		"lock_hold":           d.LockHold.String(),
		"lock_hysteresis":     d.LockHysteresis,
		"min_closing_speed":   d.MinClosingSpeed,
		"closing_norm":        d.ClosingNorm,
		"min_intercept_time":  d.MinInterceptTime.String(),
		"max_intercept_time":  d.MaxInterceptTime.String(),
		"min_reliability":     d.MinReliability,
		"max_estimate_age":    d.MaxEstimateAge.String(),
		"round_lifetime":      d.RoundLifetime.String(),
		"round_fuse_radius":   d.RoundFuseRadius,
		"weights": map[string]any{
			"proximity":   d.Weights.Proximity,
			"closing":     d.Weights.Closing,
			"alignment":   d.Weights.Alignment,
			"feasibility": d.Weights.Feasibility,
		},
	}
}

func deg(d float64) float64   { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }
