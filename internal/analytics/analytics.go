// Package analytics aggregates engagement outcomes into a battle summary.
package analytics

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/intercept-sim/core"
	"github.com/signalsfoundry/intercept-sim/model"
)

// ErrDuplicateOutcome is returned when a vehicle reports a second outcome.
var ErrDuplicateOutcome = errors.New("outcome already recorded")

// Outcome is the terminal result of one vehicle.
type Outcome struct {
	Vehicle         model.EntityID
	Target          model.EntityID
	Impact          bool
	Reason          core.MissReason
	ClosestApproach float64 // m; negative when never measured
	FlightTime      time.Duration
	Angle           float64 // rad, impacts only
}

// Summary is the aggregate report for a run.
type Summary struct {
	Launched        int
	Impacts         int
	Misses          int
	MissesByReason  map[core.MissReason]int
	HitRate         float64
	MeanClosest     float64
	MeanFlightTime  time.Duration
	MeanImpactAngle float64
	RoundsFired     int
	Acquisitions    int
	Duplicates      int
}

// Recorder subscribes to an event bus and records each vehicle's outcome
// exactly once. It is safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	launched   map[model.EntityID]struct{}
	outcomes   map[model.EntityID]Outcome
	order      []model.EntityID
	rounds     int
	acquired   int
	duplicates int
}

// NewRecorder constructs an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		launched: make(map[model.EntityID]struct{}),
		outcomes: make(map[model.EntityID]Outcome),
	}
}

// Attach subscribes the recorder to bus and returns the unsubscribe func.
func (r *Recorder) Attach(bus *core.EventBus) func() {
	return bus.Subscribe(r.Observe)
}

// Observe is the event-bus subscriber.
func (r *Recorder) Observe(ev core.Event) {
	switch ev.Kind {
	case core.EventPhaseChanged:
		r.mu.Lock()
		r.launched[ev.Source] = struct{}{}
		r.mu.Unlock()
	case core.EventImpact:
		_ = r.Record(Outcome{
			Vehicle:         ev.Source,
			Target:          ev.Target,
			Impact:          true,
			ClosestApproach: ev.ClosestApproach,
			FlightTime:      ev.FlightTime,
			Angle:           ev.Angle,
		})
	case core.EventMiss:
		_ = r.Record(Outcome{
			Vehicle:         ev.Source,
			Target:          ev.Target,
			Reason:          ev.Reason,
			ClosestApproach: ev.ClosestApproach,
			FlightTime:      ev.FlightTime,
		})
	case core.EventFire:
		r.mu.Lock()
		r.rounds++
		r.mu.Unlock()
	case core.EventTargetAcquired:
		r.mu.Lock()
		r.acquired++
		r.mu.Unlock()
	}
}

// Record stores o. A second outcome for the same vehicle is rejected and
// counted as a duplicate.
func (r *Recorder) Record(o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.outcomes[o.Vehicle]; dup {
		r.duplicates++
		return fmt.Errorf("%w: vehicle %q", ErrDuplicateOutcome, o.Vehicle)
	}
	r.launched[o.Vehicle] = struct{}{}
	r.outcomes[o.Vehicle] = o
	r.order = append(r.order, o.Vehicle)
	return nil
}

// Outcome returns the recorded result for vehicle.
func (r *Recorder) Outcome(vehicle model.EntityID) (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outcomes[vehicle]
	return o, ok
}

// Outcomes returns every outcome in recording order.
func (r *Recorder) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.outcomes[id])
	}
	return out
}

// Pending lists vehicles seen in flight without an outcome yet, sorted.
func (r *Recorder) Pending() []model.EntityID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.EntityID
	for id := range r.launched {
		if _, done := r.outcomes[id]; !done {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Summary aggregates everything recorded so far.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		Launched:       len(r.launched),
		MissesByReason: make(map[core.MissReason]int),
		RoundsFired:    r.rounds,
		Acquisitions:   r.acquired,
		Duplicates:     r.duplicates,
	}
	var closestSum, angleSum float64
	var closestN int
	var flight time.Duration
	for _, id := range r.order {
		o := r.outcomes[id]
		if o.Impact {
			s.Impacts++
			angleSum += o.Angle
		} else {
			s.Misses++
			s.MissesByReason[o.Reason]++
		}
		if o.ClosestApproach >= 0 {
			closestSum += o.ClosestApproach
			closestN++
		}
		flight += o.FlightTime
	}
	if n := len(r.order); n > 0 {
		s.HitRate = float64(s.Impacts) / float64(n)
		s.MeanFlightTime = flight / time.Duration(n)
	}
	if closestN > 0 {
		s.MeanClosest = closestSum / float64(closestN)
	}
	if s.Impacts > 0 {
		s.MeanImpactAngle = angleSum / float64(s.Impacts)
	}
	return s
}

// Reasons returns the miss reasons in the summary, sorted.
func (s Summary) Reasons() []core.MissReason {
	out := make([]core.MissReason, 0, len(s.MissesByReason))
	for r := range s.MissesByReason {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
