package core

import "github.com/signalsfoundry/intercept-sim/model"

// TargetProvider returns a fresh estimate of an entity, validating that it
// still exists. Callers must not keep the result beyond the current tick.
type TargetProvider interface {
	Estimate(id model.EntityID) (model.TargetEstimate, bool)
}

// FactionQuery reports whether two entities are mutually hostile.
type FactionQuery interface {
	Hostile(a, b model.EntityID) bool
}

// BoundsQuery reports whether a position lies inside the simulation volume.
type BoundsQuery interface {
	Contains(p model.Vec2) bool
}

// ThreatSource lists candidate contacts for a turret scan. Implementations
// return a stable order.
type ThreatSource interface {
	TargetProvider
	FactionQuery
	Contacts() []model.Entity
}

// RectBounds is an axis-aligned simulation volume.
type RectBounds struct {
	Min, Max model.Vec2
}

// Contains implements BoundsQuery. Non-finite positions are outside.
func (b RectBounds) Contains(p model.Vec2) bool {
	if !p.IsFinite() {
		return false
	}
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// CircleBounds is a circular simulation volume.
type CircleBounds struct {
	Center model.Vec2
	Radius float64
}

// Contains implements BoundsQuery. Non-finite positions are outside.
func (b CircleBounds) Contains(p model.Vec2) bool {
	if !p.IsFinite() {
		return false
	}
	return p.DistanceTo(b.Center) <= b.Radius
}

// Unbounded accepts every finite position.
type Unbounded struct{}

// Contains implements BoundsQuery.
func (Unbounded) Contains(p model.Vec2) bool { return p.IsFinite() }
