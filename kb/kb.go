package kb

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/intercept-sim/model"
)

var (
	// ErrEntityExists is returned when adding an ID that is already stored.
	ErrEntityExists = errors.New("entity already exists")
	// ErrEntityNotFound is returned for operations on unknown IDs.
	ErrEntityNotFound = errors.New("entity not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventEntityAdded EventType = iota
	EventEntityUpdated
	EventEntityRemoved
)

// Event is emitted to subscribers when an entity changes.
type Event struct {
	Type   EventType
	Entity model.Entity
}

// Hostility decides whether two factions are enemies.
type Hostility func(a, b string) bool

// DifferentFactions treats every pair of distinct non-empty factions as
// hostile.
func DifferentFactions(a, b string) bool {
	return a != "" && b != "" && a != b
}

// Option customises a KnowledgeBase.
type Option func(*KnowledgeBase)

// WithHostility replaces the faction rule.
func WithHostility(fn Hostility) Option {
	return func(kb *KnowledgeBase) {
		if fn != nil {
			kb.hostile = fn
		}
	}
}

// KnowledgeBase is an in-memory, thread-safe store of tracked entities:
// ships, vehicles and rounds. Consumers read it through Snapshot.
type KnowledgeBase struct {
	mu sync.RWMutex

	entities map[model.EntityID]*model.Entity
	hostile  Hostility

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase(opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		entities: make(map[model.EntityID]*model.Entity),
		hostile:  DifferentFactions,
		subs:     make(map[int]func(Event)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(kb)
		}
	}
	return kb
}

// AddEntity stores a new entity.
func (kb *KnowledgeBase) AddEntity(e model.Entity) error {
	if e.ID == "" {
		return fmt.Errorf("entity has empty ID")
	}
	kb.mu.Lock()
	if _, exists := kb.entities[e.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrEntityExists, e.ID)
	}
	stored := e
	kb.entities[e.ID] = &stored
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventEntityAdded, Entity: e})
	return nil
}

// UpdateState records a fresh observation of an entity's kinematics.
func (kb *KnowledgeBase) UpdateState(id model.EntityID, state model.KinematicState, observedAt time.Time) error {
	return kb.update(id, func(e *model.Entity) {
		e.State = state
		e.ObservedAt = observedAt
	})
}

// SetReliability changes the sensor confidence in an entity's track.
func (kb *KnowledgeBase) SetReliability(id model.EntityID, reliability float64) error {
	return kb.update(id, func(e *model.Entity) {
		e.Reliability = reliability
	})
}

func (kb *KnowledgeBase) update(id model.EntityID, fn func(*model.Entity)) error {
	kb.mu.Lock()
	e, ok := kb.entities[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrEntityNotFound, id)
	}
	fn(e)
	event := Event{Type: EventEntityUpdated, Entity: *e}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// RemoveEntity deletes an entity.
func (kb *KnowledgeBase) RemoveEntity(id model.EntityID) error {
	kb.mu.Lock()
	e, ok := kb.entities[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrEntityNotFound, id)
	}
	delete(kb.entities, id)
	event := Event{Type: EventEntityRemoved, Entity: *e}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// GetEntity returns a copy of the entity.
func (kb *KnowledgeBase) GetEntity(id model.EntityID) (model.Entity, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	e, ok := kb.entities[id]
	if !ok {
		return model.Entity{}, false
	}
	return *e, true
}

// ListEntities returns copies of all entities ordered by ID.
func (kb *KnowledgeBase) ListEntities() []model.Entity {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return sortedCopy(kb.entities)
}

// Len reports the number of stored entities.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.entities)
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

// subscribersLocked copies subscribers in registration order. Callers
// notify outside the lock.
func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, kb.subs[id])
	}
	return out
}

func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}

// Snapshot freezes the store at simulation time at. The result is immutable
// and safe for concurrent readers.
func (kb *KnowledgeBase) Snapshot(at time.Time) *Snapshot {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	list := sortedCopy(kb.entities)
	byID := make(map[model.EntityID]int, len(list))
	for i, e := range list {
		byID[e.ID] = i
	}
	return &Snapshot{at: at, list: list, byID: byID, hostile: kb.hostile}
}

// Snapshot is a per-tick read-only view of the KB. It answers target
// estimates, faction hostility and contact lists.
type Snapshot struct {
	at      time.Time
	list    []model.Entity
	byID    map[model.EntityID]int
	hostile Hostility
}

// At is the simulation time the snapshot was taken.
func (s *Snapshot) At() time.Time { return s.at }

// Entity returns the stored entity.
func (s *Snapshot) Entity(id model.EntityID) (model.Entity, bool) {
	i, ok := s.byID[id]
	if !ok {
		return model.Entity{}, false
	}
	return s.list[i], true
}

// Estimate returns the track for id. Age is measured from the last
// observation to the snapshot time; non-finite states are unavailable.
func (s *Snapshot) Estimate(id model.EntityID) (model.TargetEstimate, bool) {
	e, ok := s.Entity(id)
	if !ok || !finiteState(e.State) {
		return model.TargetEstimate{}, false
	}
	age := time.Duration(0)
	if !e.ObservedAt.IsZero() && s.at.After(e.ObservedAt) {
		age = s.at.Sub(e.ObservedAt)
	}
	return model.TargetEstimate{
		ID:          e.ID,
		State:       e.State,
		Reliability: e.Reliability,
		Age:         age,
	}, true
}

// Hostile reports whether a and b are both known and their factions are
// enemies.
func (s *Snapshot) Hostile(a, b model.EntityID) bool {
	ea, ok := s.Entity(a)
	if !ok {
		return false
	}
	eb, ok := s.Entity(b)
	if !ok {
		return false
	}
	return s.hostile(ea.Faction, eb.Faction)
}

// Contacts lists every entity ordered by ID. The slice is shared; callers
// must not modify it.
func (s *Snapshot) Contacts() []model.Entity { return s.list }

// Len reports the number of entities in the snapshot.
func (s *Snapshot) Len() int { return len(s.list) }

func sortedCopy(m map[model.EntityID]*model.Entity) []model.Entity {
	out := make([]model.Entity, 0, len(m))
	for _, e := range m {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func finiteState(s model.KinematicState) bool {
	return s.Position.IsFinite() && s.Velocity.IsFinite() &&
		!math.IsNaN(s.Orientation) && !math.IsInf(s.Orientation, 0)
}
