package core

import (
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/intercept-sim/model"
)

// EventKind identifies an outbound engagement event.
type EventKind int

const (
	EventPhaseChanged EventKind = iota
	EventImpact
	EventMiss
	EventTargetAcquired
	EventTargetLost
	EventFire
)

func (k EventKind) String() string {
	switch k {
	case EventPhaseChanged:
		return "phase_changed"
	case EventImpact:
		return "impact"
	case EventMiss:
		return "miss"
	case EventTargetAcquired:
		return "target_acquired"
	case EventTargetLost:
		return "target_lost"
	case EventFire:
		return "fire"
	default:
		return "unknown"
	}
}

// RoundSpec describes a round leaving a turret.
type RoundSpec struct {
	Turret model.EntityID
	// Platform is the firing platform; it decides hostility for the fuse.
	Platform model.EntityID
	Target   model.EntityID
	Origin   model.Vec2
	Velocity model.Vec2
	Bearing  float64
	Lifetime time.Duration
	Fuse     float64
}

// Event is emitted by vehicles and turrets. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind   EventKind
	Time   time.Time
	Source model.EntityID
	Target model.EntityID

	From, To model.FlightPhase

	Position model.Vec2
	Velocity model.Vec2
	// Angle is the body heading error against the LOS at impact (rad).
	Angle float64

	Reason          MissReason
	ClosestApproach float64
	FlightTime      time.Duration

	Round *RoundSpec
}

// Listener receives typed engagement callbacks.
type Listener interface {
	OnPhaseChanged(vehicle model.EntityID, from, to model.FlightPhase)
	OnImpact(vehicle, target model.EntityID, position, velocity model.Vec2, angle float64)
	OnMiss(vehicle model.EntityID, reason MissReason, closestApproach float64)
	OnTargetAcquired(turret, target model.EntityID)
	OnTargetLost(turret, target model.EntityID)
	OnFire(turret model.EntityID, round RoundSpec)
}

// Route adapts a Listener to an EventBus subscriber.
func Route(l Listener) func(Event) {
	return func(ev Event) {
		switch ev.Kind {
		case EventPhaseChanged:
			l.OnPhaseChanged(ev.Source, ev.From, ev.To)
		case EventImpact:
			l.OnImpact(ev.Source, ev.Target, ev.Position, ev.Velocity, ev.Angle)
		case EventMiss:
			l.OnMiss(ev.Source, ev.Reason, ev.ClosestApproach)
		case EventTargetAcquired:
			l.OnTargetAcquired(ev.Source, ev.Target)
		case EventTargetLost:
			l.OnTargetLost(ev.Source, ev.Target)
		case EventFire:
			if ev.Round != nil {
				l.OnFire(ev.Source, *ev.Round)
			}
		}
	}
}

// EventBus fans events out to subscribers in subscription order.
type EventBus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns an unsubscribe function.
func (b *EventBus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers ev to every subscriber outside the lock so subscribers
// may themselves subscribe or unsubscribe.
func (b *EventBus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, b.subs[id])
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
