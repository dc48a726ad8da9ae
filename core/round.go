package core

import (
	"math"

	"github.com/google/uuid"

	"github.com/signalsfoundry/intercept-sim/model"
)

// Round is an unguided point-defense projectile. It flies straight, expires
// after its lifetime and detonates when its swept path passes within the
// fuse radius of a vehicle hostile to the firing platform.
type Round struct {
	id    model.EntityID
	spec  RoundSpec
	state model.KinematicState
	age   float64
	dead  bool
}

// NewRound places a round at its muzzle.
func NewRound(spec RoundSpec) *Round {
	return &Round{
		id:   model.EntityID("rnd-" + uuid.NewString()),
		spec: spec,
		state: model.KinematicState{
			Position:    spec.Origin,
			Velocity:    spec.Velocity,
			Orientation: spec.Bearing,
		},
	}
}

func (r *Round) ID() model.EntityID          { return r.id }
func (r *Round) Spec() RoundSpec             { return r.spec }
func (r *Round) State() model.KinematicState { return r.state }
func (r *Round) Dead() bool                  { return r.dead }

// Entity is the round's knowledge-base record.
func (r *Round) Entity() model.Entity {
	return model.Entity{ID: r.id, Kind: model.KindRound, State: r.state, Reliability: 1}
}

// Step moves the round and returns the vehicle it destroyed, if any. The
// nearest hostile vehicle along the swept segment wins.
func (r *Round) Step(dt float64, src ThreatSource) (model.EntityID, bool) {
	if r.dead || !(dt > 0) {
		return "", false
	}
	start := r.state.Position
	end := start.Add(r.state.Velocity.Scale(dt))
	r.state.Position = end
	r.age += dt

	var hit model.EntityID
	best := math.Inf(1)
	if src != nil {
		for _, c := range src.Contacts() {
			if c.Kind != model.KindVehicle || !src.Hostile(r.spec.Platform, c.ID) {
				continue
			}
			// Snapshot states are start-of-tick; extrapolate across the step.
			cEnd := c.State.Position.Add(c.State.Velocity.Scale(dt))
			d, _ := closestApproach(start, end, c.State.Position, cEnd)
			if d <= r.spec.Fuse && d < best {
				best = d
				hit = c.ID
			}
		}
	}
	if hit != "" {
		r.dead = true
		return hit, true
	}
	if r.age >= seconds(r.spec.Lifetime) {
		r.dead = true
	}
	return "", false
}
