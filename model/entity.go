package model

import "time"

// EntityID identifies a simulated entity. IDs are never reused within a run.
type EntityID string

// EntityKind classifies entities for scanning and scoring.
type EntityKind int

const (
	KindUnknown EntityKind = iota
	KindShip
	KindVehicle // self-propelled guided projectile
	KindRound   // ballistic turret round
)

func (k EntityKind) String() string {
	switch k {
	case KindShip:
		return "ship"
	case KindVehicle:
		return "vehicle"
	case KindRound:
		return "round"
	default:
		return "unknown"
	}
}

// Entity is the public record for anything in the simulation volume.
type Entity struct {
	ID      EntityID
	Kind    EntityKind
	Faction string
	State   KinematicState

	// Reliability is the sensor confidence in State, in [0,1].
	Reliability float64
	// ObservedAt is the simulation time State was last observed.
	ObservedAt time.Time
}

// ThreatRecord is a turret's lock on a candidate threat.
type ThreatRecord struct {
	Target   EntityID
	State    KinematicState
	Score    float64
	LockedAt time.Time
}
