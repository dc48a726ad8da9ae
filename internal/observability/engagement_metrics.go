package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/intercept-sim/core"
	"github.com/signalsfoundry/intercept-sim/model"
)

// EngagementCollector exposes engagement and engine metrics. It implements
// core.Listener and core.EngineMetrics; Observe is the event-bus subscriber.
type EngagementCollector struct {
	gatherer prometheus.Gatherer

	Impacts          prometheus.Counter
	Misses           *prometheus.CounterVec
	PhaseTransitions *prometheus.CounterVec
	RoundsFired      prometheus.Counter
	Acquisitions     prometheus.Counter
	Losses           prometheus.Counter

	ActiveVehicles prometheus.Gauge
	ActiveTurrets  prometheus.Gauge
	ActiveRounds   prometheus.Gauge

	TickDuration    prometheus.Histogram
	FlightTime      prometheus.Histogram
	ClosestApproach prometheus.Histogram
}

var (
	_ core.Listener      = (*EngagementCollector)(nil)
	_ core.EngineMetrics = (*EngagementCollector)(nil)
)

// NewEngagementCollector registers engagement metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngagementCollector(reg prometheus.Registerer) (*EngagementCollector, error) {
	reg, gatherer := resolveRegistry(reg)
	c := &EngagementCollector{gatherer: gatherer}

	var err error
	counters := []struct {
		dst  *prometheus.Counter
		name string
		help string
	}{
		{&c.Impacts, "intercept_impacts_total", "Vehicles that reached their target."},
		{&c.RoundsFired, "pdc_rounds_fired_total", "Point-defense rounds fired."},
		{&c.Acquisitions, "pdc_target_acquisitions_total", "Point-defense target locks acquired."},
		{&c.Losses, "pdc_target_losses_total", "Point-defense target locks dropped."},
	}
	for _, spec := range counters {
		*spec.dst, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: spec.name,
			Help: spec.help,
		}), spec.name)
		if err != nil {
			return nil, err
		}
	}

	c.Misses, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intercept_misses_total",
		Help: "Vehicles that died without impact, labeled by reason.",
	}, []string{"reason"}), "intercept_misses_total")
	if err != nil {
		return nil, err
	}
	c.PhaseTransitions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intercept_phase_transitions_total",
		Help: "Flight phase transitions, labeled by destination phase.",
	}, []string{"to"}), "intercept_phase_transitions_total")
	if err != nil {
		return nil, err
	}

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.ActiveVehicles, "sim_active_vehicles", "Vehicles in flight."},
		{&c.ActiveTurrets, "sim_active_turrets", "Registered point-defense turrets."},
		{&c.ActiveRounds, "sim_active_rounds", "Point-defense rounds in flight."},
	}
	for _, spec := range gauges {
		*spec.dst, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: spec.name,
			Help: spec.help,
		}), spec.name)
		if err != nil {
			return nil, err
		}
	}

	c.TickDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Wall-clock duration of one engine step.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}), "sim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}
	c.FlightTime, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "intercept_flight_time_seconds",
		Help:    "Simulated flight time from launch to death.",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
	}), "intercept_flight_time_seconds")
	if err != nil {
		return nil, err
	}
	c.ClosestApproach, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "intercept_closest_approach_meters",
		Help:    "Closest approach between a vehicle and its target.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 1000, 5000},
	}), "intercept_closest_approach_meters")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngagementCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Observe records one engagement event.
func (c *EngagementCollector) Observe(ev core.Event) {
	if c == nil {
		return
	}
	core.Route(c)(ev)
	switch ev.Kind {
	case core.EventImpact, core.EventMiss:
		c.FlightTime.Observe(ev.FlightTime.Seconds())
		if ev.ClosestApproach >= 0 {
			c.ClosestApproach.Observe(ev.ClosestApproach)
		}
	}
}

func (c *EngagementCollector) OnPhaseChanged(_ model.EntityID, _, to model.FlightPhase) {
	if c == nil {
		return
	}
	c.PhaseTransitions.WithLabelValues(to.String()).Inc()
}

func (c *EngagementCollector) OnImpact(model.EntityID, model.EntityID, model.Vec2, model.Vec2, float64) {
	if c == nil {
		return
	}
	c.Impacts.Inc()
}

func (c *EngagementCollector) OnMiss(_ model.EntityID, reason core.MissReason, _ float64) {
	if c == nil {
		return
	}
	c.Misses.WithLabelValues(string(reason)).Inc()
}

func (c *EngagementCollector) OnTargetAcquired(model.EntityID, model.EntityID) {
	if c == nil {
		return
	}
	c.Acquisitions.Inc()
}

func (c *EngagementCollector) OnTargetLost(model.EntityID, model.EntityID) {
	if c == nil {
		return
	}
	c.Losses.Inc()
}

func (c *EngagementCollector) OnFire(model.EntityID, core.RoundSpec) {
	if c == nil {
		return
	}
	c.RoundsFired.Inc()
}

// ObserveTick records one engine step duration.
func (c *EngagementCollector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// SetActive updates the live entity gauges.
func (c *EngagementCollector) SetActive(vehicles, turrets, rounds int) {
	if c == nil {
		return
	}
	c.ActiveVehicles.Set(float64(vehicles))
	c.ActiveTurrets.Set(float64(turrets))
	c.ActiveRounds.Set(float64(rounds))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
