package scenario

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/intercept-sim/core"
	"github.com/signalsfoundry/intercept-sim/internal/analytics"
	"github.com/signalsfoundry/intercept-sim/internal/config"
	"github.com/signalsfoundry/intercept-sim/kb"
)

const duel = `
simulation:
  tick: 10ms
vehicle_classes:
  torpedo: {}
turret_classes:
  pdc: {}
ships:
  - id: blue-1
    faction: blue
    launchers:
      - class: torpedo
        target: red-1
        salvo: 2
        delay: 100ms
        interval: 1s
  - id: red-1
    faction: red
    x: 8000
    motion: static
`

func TestBuildRegistersShipsAndSchedulesSalvos(t *testing.T) {
	cfg, err := config.Read(strings.NewReader(duel), "yaml")
	require.NoError(t, err)

	engine := core.NewSimulationEngine(kb.NewKnowledgeBase(), nil)
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	sc, err := Build(cfg, engine, start)
	require.NoError(t, err)

	assert.Equal(t, 2, sc.Ships())
	assert.Equal(t, 0, sc.Turrets())
	assert.Equal(t, 2, sc.Pending())

	ctx := context.Background()
	n, err := sc.Launch(ctx, start)
	require.NoError(t, err)
	assert.Zero(t, n, "salvo delayed")

	n, err = sc.Launch(ctx, start.Add(100*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = sc.Launch(ctx, start.Add(1100*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, sc.Pending())
	assert.Len(t, engine.Vehicles(), 2)
}

func TestDuelRunsToImpact(t *testing.T) {
	cfg, err := config.Read(strings.NewReader(duel), "yaml")
	require.NoError(t, err)

	engine := core.NewSimulationEngine(kb.NewKnowledgeBase(), cfg.Bounds.Query())
	rec := analytics.NewRecorder()
	rec.Attach(engine.Bus)

	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	engine.Start(start)
	sc, err := Build(cfg, engine, start)
	require.NoError(t, err)

	ctx := context.Background()
	now := start
	for i := 0; i < 3000 && !(i > 0 && sc.Done()); i++ {
		_, err := sc.Launch(ctx, now)
		require.NoError(t, err)
		now = now.Add(cfg.Simulation.Tick)
		require.NoError(t, engine.Step(ctx, now))
	}

	require.True(t, sc.Done(), "engagement did not finish")
	s := rec.Summary()
	assert.Equal(t, 2, s.Impacts, "misses: %v", s.MissesByReason)
	assert.Zero(t, s.Duplicates)
	assert.Empty(t, rec.Pending())
}

func TestBuildRejectsDuplicateShip(t *testing.T) {
	cfg := &config.Config{Ships: []config.Ship{{ID: "a"}, {ID: "a"}}}
	engine := core.NewSimulationEngine(kb.NewKnowledgeBase(), nil)
	_, err := Build(cfg, engine, time.Time{})
	require.ErrorIs(t, err, core.ErrDuplicateEntity)
}
