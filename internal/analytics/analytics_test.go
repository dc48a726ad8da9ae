package analytics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/intercept-sim/core"
	"github.com/signalsfoundry/intercept-sim/model"
)

func TestRecorderSummary(t *testing.T) {
	r := NewRecorder()
	bus := core.NewEventBus()
	r.Attach(bus)

	bus.Publish(core.Event{Kind: core.EventPhaseChanged, Source: "v1", From: model.PhaseLaunch, To: model.PhaseCruise})
	bus.Publish(core.Event{Kind: core.EventPhaseChanged, Source: "v2", From: model.PhaseLaunch, To: model.PhaseCruise})
	bus.Publish(core.Event{Kind: core.EventPhaseChanged, Source: "v3", From: model.PhaseLaunch, To: model.PhaseCruise})
	bus.Publish(core.Event{Kind: core.EventImpact, Source: "v1", Target: "s1", ClosestApproach: 4, FlightTime: 4 * time.Second, Angle: 0.1})
	bus.Publish(core.Event{Kind: core.EventMiss, Source: "v2", Reason: core.MissOvershoot, ClosestApproach: 60, FlightTime: 6 * time.Second})
	bus.Publish(core.Event{Kind: core.EventFire, Source: "t1"})
	bus.Publish(core.Event{Kind: core.EventFire, Source: "t1"})
	bus.Publish(core.Event{Kind: core.EventTargetAcquired, Source: "t1", Target: "v3"})

	s := r.Summary()
	assert.Equal(t, 3, s.Launched)
	assert.Equal(t, 1, s.Impacts)
	assert.Equal(t, 1, s.Misses)
	assert.Equal(t, 1, s.MissesByReason[core.MissOvershoot])
	assert.InDelta(t, 0.5, s.HitRate, 1e-12)
	assert.InDelta(t, 32.0, s.MeanClosest, 1e-12)
	assert.Equal(t, 5*time.Second, s.MeanFlightTime)
	assert.InDelta(t, 0.1, s.MeanImpactAngle, 1e-12)
	assert.Equal(t, 2, s.RoundsFired)
	assert.Equal(t, 1, s.Acquisitions)
	assert.Equal(t, []model.EntityID{"v3"}, r.Pending())
	assert.Equal(t, []core.MissReason{core.MissOvershoot}, s.Reasons())
}

func TestRecorderRejectsSecondOutcome(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Record(Outcome{Vehicle: "v1", Impact: true}))

	err := r.Record(Outcome{Vehicle: "v1", Reason: core.MissTargetLost})
	require.ErrorIs(t, err, ErrDuplicateOutcome)

	o, ok := r.Outcome("v1")
	require.True(t, ok)
	assert.True(t, o.Impact, "first outcome wins")
	assert.Equal(t, 1, r.Summary().Duplicates)
	assert.Len(t, r.Outcomes(), 1)
}

func TestRecorderSkipsUnknownClosestApproach(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Record(Outcome{Vehicle: "v1", Reason: core.MissTargetLost, ClosestApproach: -1}))
	require.NoError(t, r.Record(Outcome{Vehicle: "v2", Reason: core.MissTargetLost, ClosestApproach: 10}))
	assert.InDelta(t, 10.0, r.Summary().MeanClosest, 1e-12)
}

func TestRecorderConcurrentObserve(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Observe(core.Event{Kind: core.EventFire})
				r.Observe(core.Event{Kind: core.EventImpact, Source: "shared"})
			}
		}()
	}
	wg.Wait()

	s := r.Summary()
	assert.Equal(t, 800, s.RoundsFired)
	assert.Equal(t, 1, s.Impacts)
	assert.Equal(t, 799, s.Duplicates)
}

func TestEmptySummary(t *testing.T) {
	s := NewRecorder().Summary()
	assert.Zero(t, s.Launched)
	assert.Zero(t, s.HitRate)
	assert.Empty(t, s.Reasons())
}
