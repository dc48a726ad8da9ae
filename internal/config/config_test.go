package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/intercept-sim/core"
)

const scenarioYAML = `
simulation:
  tick: 10ms
  duration: 20s
  workers: 4
bounds:
  radius: 50000
vehicle_classes:
  Heavy:
    max_accel: 800
    max_turn_rate_deg: 90
    guidance:
      nav_gain: 5
    thrust:
      terminal: ramp
      floor: 0.4
turret_classes:
  pdc:
    fire_rate: 40
    aim_tolerance_deg: 5
ships:
  - id: blue-1
    faction: blue
    heading_deg: 90
    launchers:
      - class: heavy
        target: red-1
        salvo: 2
        policy:
          kind: multi_angle
          arc_offset: 0.3
  - id: red-1
    faction: red
    y: 10000
    vx: 200
    motion: weave
    weave_amplitude: 20
    weave_period: 8
    turrets:
      - class: pdc
        offset_x: 5
`

func TestReadScenarioAppliesClassDefaults(t *testing.T) {
	cfg, err := Read(strings.NewReader(scenarioYAML), "yaml")
	require.NoError(t, err)

	assert.Equal(t, 10*time.Millisecond, cfg.Simulation.Tick)
	assert.Equal(t, 20*time.Second, cfg.Simulation.Duration)
	assert.Equal(t, 4, cfg.Simulation.Workers)
	assert.True(t, cfg.Simulation.Accelerated, "accelerated defaults to true")

	vc, err := cfg.VehicleClass("heavy")
	require.NoError(t, err)
	def := core.DefaultVehicleClass()
	assert.Equal(t, 800.0, vc.MaxAccel)
	assert.InDelta(t, math.Pi/2, vc.MaxTurnRate, 1e-9)
	assert.Equal(t, 5.0, vc.Guidance.NavGain)
	assert.Equal(t, def.Guidance.Kd, vc.Guidance.Kd, "unset guidance keys keep defaults")
	assert.Equal(t, core.TerminalRamp, vc.Thrust.Terminal)
	assert.Equal(t, 0.4, vc.Thrust.Floor)
	assert.Equal(t, def.Lifetime, vc.Lifetime)
	assert.Equal(t, def.IgnitionDelay, vc.IgnitionDelay)

	tc, err := cfg.TurretClass("PDC")
	require.NoError(t, err)
	assert.Equal(t, 40.0, tc.FireRate)
	assert.InDelta(t, 5*math.Pi/180, tc.AimTolerance, 1e-9)
	assert.Equal(t, core.DefaultTurretClass().BurstLength, tc.BurstLength)

	require.Len(t, cfg.Ships, 2)
	assert.InDelta(t, math.Pi/2, cfg.Ships[0].State().Orientation, 1e-9)
	policy, err := cfg.Ships[0].Launchers[0].Policy.Guidance()
	require.NoError(t, err)
	assert.Equal(t, core.PolicyMultiAngle, policy.Kind)

	_, ok := cfg.Bounds.Query().(core.CircleBounds)
	assert.True(t, ok, "radius selects circular bounds")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.json")
	body := `{
  "simulation": {"tick": "20ms"},
  "bounds": {"min_x": -100, "min_y": -100, "max_x": 100, "max_y": 100},
  "vehicle_classes": {"light": {"cruise_speed": 1500}}
}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, cfg.Simulation.Tick)
	vc, err := cfg.VehicleClass("light")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, vc.CruiseSpeed)

	_, ok := cfg.Bounds.Query().(core.RectBounds)
	assert.True(t, ok, "min/max selects rectangular bounds")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("INTERCEPT_SIMULATION_TICK", "5ms")
	cfg, err := Read(strings.NewReader("simulation:\n  tick: 10ms\n"), "yaml")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, cfg.Simulation.Tick)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestUnknownClassReference(t *testing.T) {
	body := `
ships:
  - id: blue-1
    faction: blue
    launchers:
      - class: ghost
        target: red-1
`
	_, err := Read(strings.NewReader(body), "yaml")
	require.ErrorIs(t, err, ErrNoVehicleClass)

	body = `
ships:
  - id: blue-1
    turrets:
      - class: ghost
`
	_, err = Read(strings.NewReader(body), "yaml")
	require.ErrorIs(t, err, ErrNoTurretClass)
}

func TestInvalidClassRejected(t *testing.T) {
	body := `
vehicle_classes:
  broken:
    max_accel: -1
`
	_, err := Read(strings.NewReader(body), "yaml")
	require.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "max_accel")
}

func TestDuplicateShipRejected(t *testing.T) {
	body := `
ships:
  - id: a
  - id: a
`
	_, err := Read(strings.NewReader(body), "yaml")
	require.ErrorIs(t, err, core.ErrDuplicateEntity)
}

func TestUnknownPolicyRejected(t *testing.T) {
	body := `
vehicle_classes:
  heavy: {}
ships:
  - id: a
    launchers:
      - class: heavy
        policy:
          kind: spiral
`
	_, err := Read(strings.NewReader(body), "yaml")
	require.ErrorIs(t, err, core.ErrInvalidConfig)
}
