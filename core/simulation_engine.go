package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/intercept-sim/internal/logging"
	"github.com/signalsfoundry/intercept-sim/kb"
	"github.com/signalsfoundry/intercept-sim/model"
)

const tracerName = "github.com/signalsfoundry/intercept-sim/core"

// EngineMetrics receives per-tick engine measurements.
type EngineMetrics interface {
	ObserveTick(d time.Duration)
	SetActive(vehicles, turrets, rounds int)
}

// TickStats summarises one engine step for tick listeners.
type TickStats struct {
	Tick     int
	Time     time.Time
	Dt       float64
	Vehicles int
	Turrets  int
	Rounds   int
	Events   int
}

// EngineOption customises a SimulationEngine.
type EngineOption func(*SimulationEngine)

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l logging.Logger) EngineOption {
	return func(se *SimulationEngine) {
		if l != nil {
			se.log = l
		}
	}
}

// WithEventBus publishes engagement events on bus.
func WithEventBus(bus *EventBus) EngineOption {
	return func(se *SimulationEngine) {
		if bus != nil {
			se.Bus = bus
		}
	}
}

// WithEngineMetrics records tick duration and entity counts.
func WithEngineMetrics(m EngineMetrics) EngineOption {
	return func(se *SimulationEngine) { se.metrics = m }
}

// WithParallelism steps vehicles on up to n goroutines. Events are still
// published in insertion order.
func WithParallelism(n int) EngineOption {
	return func(se *SimulationEngine) {
		if n > 0 {
			se.workers = n
		}
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) EngineOption {
	return func(se *SimulationEngine) {
		if t != nil {
			se.tracer = t
		}
	}
}

// SimulationEngine owns every vehicle, turret and round and steps them
// against a per-tick snapshot of the knowledge base.
type SimulationEngine struct {
	KB  *kb.KnowledgeBase
	Bus *EventBus

	bounds BoundsQuery

	ships    []*shipTrack
	vehicles []*Vehicle
	turrets  []*Turret
	rounds   []*Round
	ids      map[model.EntityID]struct{}

	started  bool
	lastTime time.Time
	tick     int

	workers int
	metrics EngineMetrics
	tracer  trace.Tracer
	log     logging.Logger

	tickListeners []func(TickStats)
}

type shipTrack struct {
	id      model.EntityID
	motion  MotionModel
	elapsed float64
}

// NewSimulationEngine builds an engine over store. A nil bounds means
// unbounded.
func NewSimulationEngine(store *kb.KnowledgeBase, bounds BoundsQuery, opts ...EngineOption) *SimulationEngine {
	if store == nil {
		store = kb.NewKnowledgeBase()
	}
	if bounds == nil {
		bounds = Unbounded{}
	}
	se := &SimulationEngine{
		KB:      store,
		Bus:     NewEventBus(),
		bounds:  bounds,
		ids:     make(map[model.EntityID]struct{}),
		workers: 1,
		tracer:  otel.Tracer(tracerName),
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(se)
		}
	}
	return se
}

// Start fixes the simulation time of the first tick's predecessor.
func (se *SimulationEngine) Start(t time.Time) {
	se.lastTime = t
	se.started = true
}

// RegisterTickListener is called after every completed step.
func (se *SimulationEngine) RegisterTickListener(fn func(TickStats)) {
	se.tickListeners = append(se.tickListeners, fn)
}

// AddShip registers a ship entity moved by m. A nil model leaves the ship
// to external updates.
func (se *SimulationEngine) AddShip(e model.Entity, m MotionModel) error {
	if err := se.claim(e.ID); err != nil {
		return err
	}
	if e.Kind == model.KindUnknown {
		e.Kind = model.KindShip
	}
	if err := se.KB.AddEntity(e); err != nil {
		delete(se.ids, e.ID)
		return err
	}
	if m != nil {
		se.ships = append(se.ships, &shipTrack{id: e.ID, motion: m})
	}
	return nil
}

// AddVehicle registers a launched vehicle and publishes its track.
func (se *SimulationEngine) AddVehicle(v *Vehicle, now time.Time) error {
	if v == nil {
		return fmt.Errorf("%w: nil vehicle", ErrInvalidConfig)
	}
	if v.Dead() {
		return ErrVehicleDead
	}
	if err := se.claim(v.ID()); err != nil {
		return err
	}
	if err := se.KB.AddEntity(v.Entity(now)); err != nil {
		delete(se.ids, v.ID())
		return err
	}
	se.vehicles = append(se.vehicles, v)
	return nil
}

// AddTurret registers a turret. Its platform must already be tracked.
func (se *SimulationEngine) AddTurret(t *Turret) error {
	if t == nil {
		return fmt.Errorf("%w: nil turret", ErrInvalidConfig)
	}
	if _, ok := se.KB.GetEntity(t.Platform()); !ok {
		return fmt.Errorf("turret %q: %w: platform %q", t.ID(), kb.ErrEntityNotFound, t.Platform())
	}
	if err := se.claim(t.ID()); err != nil {
		return err
	}
	se.turrets = append(se.turrets, t)
	return nil
}

func (se *SimulationEngine) claim(id model.EntityID) error {
	if _, dup := se.ids[id]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateEntity, id)
	}
	se.ids[id] = struct{}{}
	return nil
}

// Vehicles returns the live vehicles in insertion order.
func (se *SimulationEngine) Vehicles() []*Vehicle { return append([]*Vehicle(nil), se.vehicles...) }

// Turrets returns the registered turrets.
func (se *SimulationEngine) Turrets() []*Turret { return append([]*Turret(nil), se.turrets...) }

// Rounds returns the rounds in flight.
func (se *SimulationEngine) Rounds() []*Round { return append([]*Round(nil), se.rounds...) }

// Step advances the world to simTime. The first call without Start only
// records the time.
func (se *SimulationEngine) Step(ctx context.Context, simTime time.Time) error {
	if !se.started {
		se.Start(simTime)
		return nil
	}
	dt := simTime.Sub(se.lastTime).Seconds()
	if dt <= 0 {
		return nil
	}
	se.lastTime = simTime
	return se.advance(ctx, simTime, dt)
}

// Run steps n fixed ticks of length tick from the last recorded time.
func (se *SimulationEngine) Run(ctx context.Context, n int, tick time.Duration) error {
	if !se.started {
		se.Start(time.Time{})
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := se.Step(ctx, se.lastTime.Add(tick)); err != nil {
			return err
		}
	}
	return nil
}

func (se *SimulationEngine) advance(ctx context.Context, now time.Time, dt float64) error {
	start := time.Now()
	se.tick++
	ctx, span := se.tracer.Start(ctx, "sim.tick", trace.WithAttributes(
		attribute.Int("sim.tick", se.tick),
		attribute.Float64("sim.dt", dt),
	))
	defer span.End()

	se.moveShips(ctx, now, dt)
	snap := se.KB.Snapshot(now)

	if err := se.stepVehicles(ctx, now, dt, snap); err != nil {
		span.RecordError(err)
		return err
	}

	var events []Event
	for _, t := range se.turrets {
		t.Step(ctx, now, dt, snap)
		for _, ev := range t.DrainEvents() {
			if ev.Kind == EventFire && ev.Round != nil {
				se.spawn(ctx, *ev.Round, now)
			}
			events = append(events, ev)
		}
	}

	se.stepRounds(ctx, now, dt, snap)

	var vehicleEvents []Event
	for _, v := range se.vehicles {
		vehicleEvents = append(vehicleEvents, v.DrainEvents()...)
	}
	events = append(vehicleEvents, events...)
	for _, ev := range events {
		se.Bus.Publish(ev)
	}

	se.writeBack(ctx, now)

	stats := TickStats{
		Tick:     se.tick,
		Time:     now,
		Dt:       dt,
		Vehicles: len(se.vehicles),
		Turrets:  len(se.turrets),
		Rounds:   len(se.rounds),
		Events:   len(events),
	}
	span.SetAttributes(
		attribute.Int("sim.vehicles", stats.Vehicles),
		attribute.Int("sim.rounds", stats.Rounds),
		attribute.Int("sim.events", stats.Events),
	)
	if se.metrics != nil {
		se.metrics.ObserveTick(time.Since(start))
		se.metrics.SetActive(stats.Vehicles, stats.Turrets, stats.Rounds)
	}
	for _, fn := range se.tickListeners {
		fn(stats)
	}
	return nil
}

func (se *SimulationEngine) moveShips(ctx context.Context, now time.Time, dt float64) {
	for _, s := range se.ships {
		e, ok := se.KB.GetEntity(s.id)
		if !ok {
			continue
		}
		next := s.motion.Advance(e.State, s.elapsed, dt)
		s.elapsed += dt
		if err := se.KB.UpdateState(s.id, next, now); err != nil {
			se.log.Warn(ctx, "ship update failed", logging.String("ship", string(s.id)), logging.Err(err))
		}
	}
}

// stepVehicles partitions vehicles into disjoint shards. Each vehicle only
// mutates itself and reads the immutable snapshot.
func (se *SimulationEngine) stepVehicles(ctx context.Context, now time.Time, dt float64, snap *kb.Snapshot) error {
	if se.workers <= 1 || len(se.vehicles) < 2 {
		for _, v := range se.vehicles {
			v.Step(ctx, now, dt, snap, se.bounds)
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	workers := min(se.workers, len(se.vehicles))
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := w; i < len(se.vehicles); i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				se.vehicles[i].Step(gctx, now, dt, snap, se.bounds)
			}
			return nil
		})
	}
	return g.Wait()
}

func (se *SimulationEngine) spawn(ctx context.Context, spec RoundSpec, now time.Time) {
	r := NewRound(spec)
	e := r.Entity()
	if platform, ok := se.KB.GetEntity(spec.Platform); ok {
		e.Faction = platform.Faction
	}
	e.ObservedAt = now
	if err := se.KB.AddEntity(e); err != nil {
		se.log.Warn(ctx, "round registration failed", logging.Err(err))
		return
	}
	se.rounds = append(se.rounds, r)
}

func (se *SimulationEngine) stepRounds(ctx context.Context, now time.Time, dt float64, snap *kb.Snapshot) {
	byID := make(map[model.EntityID]*Vehicle, len(se.vehicles))
	for _, v := range se.vehicles {
		byID[v.ID()] = v
	}
	for _, r := range se.rounds {
		hit, ok := r.Step(dt, snap)
		if !ok {
			continue
		}
		if v := byID[hit]; v != nil && !v.Dead() {
			se.log.Info(ctx, "vehicle destroyed by point defense",
				logging.String("vehicle", string(hit)),
				logging.String("turret", string(r.Spec().Turret)),
			)
			v.Destroy(now, MissDestroyed)
		}
	}
}

// writeBack publishes live states and forgets dead entities.
func (se *SimulationEngine) writeBack(ctx context.Context, now time.Time) {
	live := se.vehicles[:0]
	for _, v := range se.vehicles {
		if v.Dead() {
			se.forget(ctx, v.ID())
			continue
		}
		se.update(ctx, v.ID(), v.State(), now)
		live = append(live, v)
	}
	clear(se.vehicles[len(live):])
	se.vehicles = live

	rounds := se.rounds[:0]
	for _, r := range se.rounds {
		if r.Dead() {
			se.forget(ctx, r.ID())
			continue
		}
		se.update(ctx, r.ID(), r.State(), now)
		rounds = append(rounds, r)
	}
	clear(se.rounds[len(rounds):])
	se.rounds = rounds
}

func (se *SimulationEngine) update(ctx context.Context, id model.EntityID, s model.KinematicState, now time.Time) {
	if err := se.KB.UpdateState(id, s, now); err != nil {
		se.log.Warn(ctx, "state write-back failed", logging.String("entity", string(id)), logging.Err(err))
	}
}

func (se *SimulationEngine) forget(ctx context.Context, id model.EntityID) {
	delete(se.ids, id)
	if err := se.KB.RemoveEntity(id); err != nil && !errors.Is(err, kb.ErrEntityNotFound) {
		se.log.Warn(ctx, "entity removal failed", logging.String("entity", string(id)), logging.Err(err))
	}
}
