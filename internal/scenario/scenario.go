// Package scenario turns a loaded configuration into ships, turrets and
// scheduled salvos on a simulation engine.
package scenario

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/intercept-sim/core"
	"github.com/signalsfoundry/intercept-sim/internal/config"
	"github.com/signalsfoundry/intercept-sim/internal/logging"
	"github.com/signalsfoundry/intercept-sim/model"
)

// Scenario drives the scheduled launches of one run.
type Scenario struct {
	engine  *core.SimulationEngine
	salvos  []*salvo
	log     logging.Logger
	ships   int
	turrets int
}

type salvo struct {
	launcher  *core.Launcher
	target    model.EntityID
	next      time.Time
	interval  time.Duration
	remaining int
}

// Option customises Build.
type Option func(*Scenario)

// WithLogger sets the scenario logger; vehicles inherit it.
func WithLogger(l logging.Logger) Option {
	return func(s *Scenario) {
		if l != nil {
			s.log = l
		}
	}
}

// Build registers every ship and turret of cfg on engine and schedules the
// launchers relative to start.
func Build(cfg *config.Config, engine *core.SimulationEngine, start time.Time, opts ...Option) (*Scenario, error) {
	s := &Scenario{engine: engine, log: logging.Noop()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	for _, ship := range cfg.Ships {
		motion, err := core.NewMotionModel(ship.Motion, ship.WeaveAmplitude, ship.WeavePeriod)
		if err != nil {
			return nil, fmt.Errorf("ship %q: %w", ship.ID, err)
		}
		reliability := ship.Reliability
		if reliability == 0 {
			reliability = 1
		}
		entity := model.Entity{
			ID:          model.EntityID(ship.ID),
			Kind:        model.KindShip,
			Faction:     ship.Faction,
			State:       ship.State(),
			Reliability: reliability,
			ObservedAt:  start,
		}
		if err := engine.AddShip(entity, motion); err != nil {
			return nil, fmt.Errorf("ship %q: %w", ship.ID, err)
		}
		s.ships++
	}

	for _, ship := range cfg.Ships {
		for i, tc := range ship.Turrets {
			class, err := cfg.TurretClass(tc.Class)
			if err != nil {
				return nil, fmt.Errorf("ship %q turret %d: %w", ship.ID, i, err)
			}
			turret, err := core.NewTurret(core.TurretSpec{
				ID:       model.EntityID(tc.ID),
				Platform: model.EntityID(ship.ID),
				Offset:   model.Vec2{X: tc.OffsetX, Y: tc.OffsetY},
				Bearing:  tc.BearingDeg * math.Pi / 180,
			}, class, core.WithTurretLogger(s.log))
			if err != nil {
				return nil, fmt.Errorf("ship %q turret %d: %w", ship.ID, i, err)
			}
			if err := engine.AddTurret(turret); err != nil {
				return nil, err
			}
			s.turrets++
		}
		for i, lc := range ship.Launchers {
			class, err := cfg.VehicleClass(lc.Class)
			if err != nil {
				return nil, fmt.Errorf("ship %q launcher %d: %w", ship.ID, i, err)
			}
			policy, err := lc.Policy.Guidance()
			if err != nil {
				return nil, fmt.Errorf("ship %q launcher %d: %w", ship.ID, i, err)
			}
			count := lc.Salvo
			if count <= 0 {
				count = 1
			}
			s.salvos = append(s.salvos, &salvo{
				launcher: &core.Launcher{
					Platform: model.EntityID(ship.ID),
					Faction:  ship.Faction,
					Class:    class,
					Policy:   policy,
				},
				target:    model.EntityID(lc.Target),
				next:      start.Add(lc.Delay),
				interval:  lc.Interval,
				remaining: count,
			})
		}
	}
	return s, nil
}

// Ships reports how many ships were registered.
func (s *Scenario) Ships() int { return s.ships }

// Turrets reports how many turrets were registered.
func (s *Scenario) Turrets() int { return s.turrets }

// Launch releases every vehicle due at or before now and returns how many
// left their launchers. A launcher whose platform is gone drops its salvo.
func (s *Scenario) Launch(ctx context.Context, now time.Time) (int, error) {
	launched := 0
	for _, sv := range s.salvos {
		for sv.remaining > 0 && !sv.next.After(now) {
			platform, ok := s.engine.KB.GetEntity(sv.launcher.Platform)
			if !ok {
				s.log.Warn(ctx, "launcher platform lost; salvo cancelled",
					logging.String("platform", string(sv.launcher.Platform)),
					logging.Int("remaining", sv.remaining),
				)
				sv.remaining = 0
				break
			}
			v, err := sv.launcher.Launch(platform.State, sv.target, now, core.WithVehicleLogger(s.log))
			if err != nil {
				return launched, err
			}
			if err := s.engine.AddVehicle(v, now); err != nil {
				return launched, err
			}
			s.log.Info(ctx, "vehicle launched",
				logging.String("vehicle", string(v.ID())),
				logging.String("platform", string(sv.launcher.Platform)),
				logging.String("target", string(sv.target)),
			)
			launched++
			sv.remaining--
			if sv.interval <= 0 {
				continue
			}
			sv.next = sv.next.Add(sv.interval)
		}
	}
	return launched, nil
}

// Pending reports how many launches are still scheduled.
func (s *Scenario) Pending() int {
	n := 0
	for _, sv := range s.salvos {
		n += sv.remaining
	}
	return n
}

// Done reports whether every launch has happened and no vehicle is in flight.
func (s *Scenario) Done() bool {
	return s.Pending() == 0 && len(s.engine.Vehicles()) == 0
}
