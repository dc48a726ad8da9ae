package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/intercept-sim/internal/logging"
	"github.com/signalsfoundry/intercept-sim/model"
)

// FireState is the turret's burst-fire cycle.
type FireState int

const (
	FireIdle FireState = iota
	FireTracking
	FireFiring
	FireCooldown
)

func (s FireState) String() string {
	switch s {
	case FireIdle:
		return "idle"
	case FireTracking:
		return "tracking"
	case FireFiring:
		return "firing"
	case FireCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// LockPolicy decides when a turret abandons its current target.
type LockPolicy struct {
	Hold       time.Duration
	Hysteresis float64
}

// ShouldSwitch reports whether challenger should replace current. The lock
// must have been held for Hold and the challenger must outscore the current
// target by the Hysteresis ratio.
func (p LockPolicy) ShouldSwitch(current, challenger model.ThreatRecord, now time.Time) bool {
	if challenger.Target == current.Target {
		return false
	}
	if now.Sub(current.LockedAt) < p.Hold {
		return false
	}
	if current.Score <= 0 {
		return challenger.Score > 0
	}
	return challenger.Score >= current.Score*p.Hysteresis
}

// ScoreThreat computes a candidate's priority. Inputs are range (m),
// closing speed (m/s), off-axis angle (rad) and intercept time (s).
func ScoreThreat(c TurretClass, rng, closing, offAxis, interceptTime float64) float64 {
	proximity := clamp(1-rng/c.EngagementRange, 0, 1)
	closingNorm := clamp(closing/c.ClosingNorm, 0, 1)
	alignment := clamp(1-offAxis/c.MaxOffAxis, 0, 1)
	window := seconds(c.MaxInterceptTime) - seconds(c.MinInterceptTime)
	feasibility := clamp(1-(interceptTime-seconds(c.MinInterceptTime))/window, 0, 1)
	w := c.Weights
	return w.Proximity*proximity + w.Closing*closingNorm + w.Alignment*alignment + w.Feasibility*feasibility
}

// TurretSpec places a turret on a platform.
type TurretSpec struct {
	// ID is generated when empty.
	ID       model.EntityID
	Platform model.EntityID
	// Offset is the mount position in the platform body frame (m).
	Offset model.Vec2
	// Bearing is the initial bearing relative to the platform heading (rad).
	Bearing float64
}

// TurretOption customises turret construction.
type TurretOption func(*Turret)

// WithTurretLogger attaches a logger for lock and fire logs.
func WithTurretLogger(l logging.Logger) TurretOption {
	return func(t *Turret) {
		if l != nil {
			t.log = l
		}
	}
}

// Turret is a point-defense fire-control unit. It scans at ScanInterval,
// aims and rotates every tick, and runs an Idle → Tracking → Firing →
// Cooldown cycle.
type Turret struct {
	id       model.EntityID
	platform model.EntityID
	offset   model.Vec2
	class    TurretClass
	policy   LockPolicy

	position        model.Vec2
	velocity        model.Vec2
	platformHeading float64
	faction         string
	mounted         bool

	bearing    float64
	aimBearing float64
	aimValid   bool
	lastAim    float64

	lock     *model.ThreatRecord
	state    FireState
	clock    float64
	lastScan float64
	scanned  bool

	burstFired   int
	shotTimer    float64
	cooldownLeft float64

	events []Event
	log    logging.Logger
}

// NewTurret validates the class and mounts a turret on spec.Platform.
func NewTurret(spec TurretSpec, class TurretClass, opts ...TurretOption) (*Turret, error) {
	if err := class.Validate(); err != nil {
		return nil, err
	}
	if spec.Platform == "" {
		return nil, fmt.Errorf("%w: turret has no platform", ErrInvalidConfig)
	}
	id := spec.ID
	if id == "" {
		id = model.EntityID("pdc-" + uuid.NewString())
	}
	t := &Turret{
		id:       id,
		platform: spec.Platform,
		offset:   spec.Offset,
		class:    class,
		policy:   LockPolicy{Hold: class.LockHold, Hysteresis: class.LockHysteresis},
		bearing:  WrapAngle(spec.Bearing),
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	t.log = t.log.With(logging.String("turret", string(id)))
	return t, nil
}

func (t *Turret) ID() model.EntityID       { return t.id }
func (t *Turret) Platform() model.EntityID { return t.platform }
func (t *Turret) Class() TurretClass       { return t.class }
func (t *Turret) State() FireState         { return t.state }
func (t *Turret) Bearing() float64         { return t.bearing }
func (t *Turret) Position() model.Vec2     { return t.position }

// Aim returns the current aim bearing and whether it is usable.
func (t *Turret) Aim() (float64, bool) { return t.aimBearing, t.aimValid }

// Lock returns a copy of the current threat record.
func (t *Turret) Lock() (model.ThreatRecord, bool) {
	if t.lock == nil {
		return model.ThreatRecord{}, false
	}
	return *t.lock, true
}

// DrainEvents returns and clears events emitted since the last drain.
func (t *Turret) DrainEvents() []Event {
	out := t.events
	t.events = nil
	return out
}

// Step advances the turret by dt seconds against a read-only snapshot.
func (t *Turret) Step(ctx context.Context, now time.Time, dt float64, src ThreatSource) {
	if !(dt > 0) || src == nil {
		return
	}
	t.clock += dt

	platform, ok := src.Estimate(t.platform)
	if !ok {
		t.mounted = false
		if t.lock != nil {
			t.dropLock(ctx, now, "platform lost")
		}
		t.aimValid = false
		t.state = FireIdle
		return
	}
	t.mounted = true
	t.position = platform.State.Position.Add(t.offset.Rotate(platform.State.Orientation))
	t.velocity = platform.State.Velocity
	t.platformHeading = platform.State.Orientation

	if !t.scanned || t.clock-t.lastScan >= seconds(t.class.ScanInterval) {
		t.scan(ctx, now, src)
		t.lastScan = t.clock
		t.scanned = true
	}
	t.aim(src)
	if t.aimValid {
		t.bearing = WrapAngle(t.bearing + clampAbs(AngleDiff(t.aimBearing, t.bearing), t.class.RotationRate*dt))
	}
	t.cycle(ctx, now, dt)
}

// candidate is a scored, currently valid threat.
type candidate struct {
	record model.ThreatRecord
}

// scan drops an invalid lock first, then scores every contact and applies
// lock hysteresis.
func (t *Turret) scan(ctx context.Context, now time.Time, src ThreatSource) {
	if t.lock != nil {
		cur, ok := t.evaluate(t.lock.Target, src)
		if !ok {
			t.dropLock(ctx, now, "invalid")
		} else {
			t.lock.State = cur.record.State
			t.lock.Score = cur.record.Score
		}
	}

	var best *candidate
	for _, contact := range src.Contacts() {
		if contact.Kind != model.KindVehicle || contact.ID == t.platform {
			continue
		}
		c, ok := t.evaluate(contact.ID, src)
		if !ok {
			continue
		}
		if best == nil || c.record.Score > best.record.Score {
			cc := c
			best = &cc
		}
	}
	if best == nil {
		return
	}

	switch {
	case t.lock == nil:
		t.acquire(ctx, now, best.record)
	case t.policy.ShouldSwitch(*t.lock, best.record, now):
		t.dropLock(ctx, now, "superseded")
		t.acquire(ctx, now, best.record)
	}
}

// evaluate applies the scan gates to one entity and scores it.
func (t *Turret) evaluate(id model.EntityID, src ThreatSource) (candidate, bool) {
	est, ok := src.Estimate(id)
	if !ok || !est.Fresh(t.class.MinReliability, t.class.MaxEstimateAge) {
		return candidate{}, false
	}
	if !src.Hostile(t.platform, id) {
		return candidate{}, false
	}
	rel := est.State.Position.Sub(t.position)
	rng := rel.Norm()
	if rng > t.class.EngagementRange {
		return candidate{}, false
	}
	closing := -rel.Unit().Dot(est.State.Velocity.Sub(t.velocity))
	if closing < t.class.MinClosingSpeed {
		return candidate{}, false
	}
	offAxis := math.Abs(AngleDiff(rel.Angle(), t.platformHeading+t.class.ArcCenter))
	if offAxis > t.class.MaxOffAxis {
		return candidate{}, false
	}
	ir := SolveBallistic(t.position, t.velocity, t.class.MuzzleVelocity, est.State.Position, est.State.Velocity)
	if !ir.Valid || ir.Time < seconds(t.class.MinInterceptTime) || ir.Time > seconds(t.class.MaxInterceptTime) {
		return candidate{}, false
	}
	return candidate{record: model.ThreatRecord{
		Target: id,
		State:  est.State,
		Score:  ScoreThreat(t.class, rng, closing, offAxis, ir.Time),
	}}, true
}

func (t *Turret) acquire(ctx context.Context, now time.Time, rec model.ThreatRecord) {
	rec.LockedAt = now
	t.lock = &rec
	t.aimValid = false
	t.log.Debug(ctx, "target acquired",
		logging.String("target", string(rec.Target)),
		logging.Float("score", rec.Score),
	)
	t.emit(Event{Kind: EventTargetAcquired, Time: now, Source: t.id, Target: rec.Target})
}

func (t *Turret) dropLock(ctx context.Context, now time.Time, why string) {
	target := t.lock.Target
	t.lock = nil
	t.aimValid = false
	if t.state == FireFiring {
		t.enterCooldown()
	}
	t.log.Debug(ctx, "target lost", logging.String("target", string(target)), logging.String("why", why))
	t.emit(Event{Kind: EventTargetLost, Time: now, Source: t.id, Target: target})
}

// aim refreshes the ballistic aim bearing. Without a fresh valid solution the
// last bearing is held for AimGrace, then aim becomes unusable.
func (t *Turret) aim(src ThreatSource) {
	if t.lock == nil {
		t.aimValid = false
		return
	}
	if est, ok := src.Estimate(t.lock.Target); ok && est.Fresh(t.class.MinReliability, t.class.MaxEstimateAge) {
		ir := SolveBallistic(t.position, t.velocity, t.class.MuzzleVelocity, est.State.Position, est.State.Velocity)
		if ir.Valid && ir.Point.IsFinite() {
			rel := ir.Point.Sub(t.position)
			if rel.NormSq() > solverEpsilon {
				t.aimBearing = rel.Angle()
				t.aimValid = true
				t.lastAim = t.clock
				t.lock.State = est.State
				return
			}
		}
	}
	if t.aimValid && t.clock-t.lastAim > seconds(t.class.AimGrace) {
		t.aimValid = false
	}
}

func (t *Turret) cycle(ctx context.Context, now time.Time, dt float64) {
	bearingErr := math.Abs(AngleDiff(t.aimBearing, t.bearing))
	switch t.state {
	case FireIdle:
		if t.lock != nil {
			t.state = FireTracking
		}
	case FireTracking:
		if t.lock == nil {
			t.state = FireIdle
			return
		}
		if t.aimValid && bearingErr <= t.class.AimTolerance {
			t.state = FireFiring
			t.burstFired = 0
			t.shotTimer = 0
			t.fire(ctx, now, dt)
		}
	case FireFiring:
		switch {
		case t.lock == nil:
			t.enterCooldown()
		case !t.aimValid || bearingErr > t.class.AbortTolerance:
			t.state = FireTracking
		default:
			t.fire(ctx, now, dt)
		}
	case FireCooldown:
		t.cooldownLeft -= dt
		if t.cooldownLeft <= 0 {
			t.state = FireIdle
			if t.lock != nil {
				t.state = FireTracking
			}
		}
	}
}

// fire emits every round due within this tick.
func (t *Turret) fire(ctx context.Context, now time.Time, dt float64) {
	t.shotTimer -= dt
	interval := 1 / t.class.FireRate
	for t.shotTimer <= 0 && t.burstFired < t.class.BurstLength {
		round := RoundSpec{
			Turret:   t.id,
			Platform: t.platform,
			Target:   t.lock.Target,
			Origin:   t.position,
			Velocity: t.velocity.Add(model.FromAngle(t.bearing).Scale(t.class.MuzzleVelocity)),
			Bearing:  t.bearing,
			Lifetime: t.class.RoundLifetime,
			Fuse:     t.class.RoundFuseRadius,
		}
		t.emit(Event{Kind: EventFire, Time: now, Source: t.id, Target: round.Target, Round: &round})
		t.burstFired++
		t.shotTimer += interval
	}
	if t.burstFired >= t.class.BurstLength {
		t.log.Debug(ctx, "burst complete", logging.Int("rounds", t.burstFired))
		t.enterCooldown()
	}
}

func (t *Turret) enterCooldown() {
	t.state = FireCooldown
	t.cooldownLeft = seconds(t.class.Cooldown)
	t.burstFired = 0
}

func (t *Turret) emit(ev Event) {
	t.events = append(t.events, ev)
}
