package timectrl

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. Components depend
// on it rather than on a concrete controller so tests can drive time.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// After returns a channel that receives the simulation time once d of
	// simulation time has elapsed.
	After(d time.Duration) <-chan time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// Option customises a TimeController.
type Option func(*TimeController)

// WithJitter varies every step by up to ±fraction of Tick, drawn from a
// seeded generator so runs are reproducible.
func WithJitter(fraction float64, seed uint64) Option {
	return func(tc *TimeController) {
		if fraction <= 0 {
			return
		}
		if fraction > 0.9 {
			fraction = 0.9
		}
		tc.jitter = fraction
		tc.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

type timer struct {
	at time.Time
	ch chan time.Time
}

// TimeController drives simulation time and notifies registered listeners.
// It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	steps       int

	jitter float64
	rng    *rand.Rand

	timers    []timer
	listeners []func(time.Time)
}

var _ SimClock = (*TimeController)(nil)

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode, opts ...Option) *TimeController {
	tc := &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(tc)
		}
	}
	return tc
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Steps reports how many ticks have been taken.
func (tc *TimeController) Steps() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.steps
}

// SetTime jumps simulation time without notifying listeners. Timers due at
// or before t fire.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	due := tc.dueTimersLocked()
	tc.mu.Unlock()
	fire(due, t)
}

// After returns a channel that receives the simulation time once d of
// simulation time has elapsed. Implements SimClock.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	tc.mu.Lock()
	defer tc.mu.Unlock()
	at := tc.currentTime.Add(d)
	if d <= 0 {
		ch <- tc.currentTime
		return ch
	}
	tc.timers = append(tc.timers, timer{at: at, ch: ch})
	sort.SliceStable(tc.timers, func(i, j int) bool { return tc.timers[i].at.Before(tc.timers[j].at) })
	return ch
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Step advances simulation time by one (possibly jittered) tick, notifies
// listeners and fires due timers. It returns the new time.
func (tc *TimeController) Step() time.Time {
	tc.mu.Lock()
	next := tc.currentTime.Add(tc.nextTickLocked())
	tc.currentTime = next
	tc.steps++
	listeners := append([]func(time.Time){}, tc.listeners...)
	due := tc.dueTimersLocked()
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	fire(due, next)
	return next
}

// Run takes n steps synchronously, stopping early if ctx is cancelled.
func (tc *TimeController) Run(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tc.Step()
	}
	return nil
}

// Start runs the controller for the specified duration in a separate goroutine.
// It returns a channel that is closed when the controller finishes.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	return tc.StartContext(context.Background(), duration)
}

// StartContext is Start with cancellation. RealTime paces steps with a
// wall-clock ticker; Accelerated steps back to back. A non-positive duration
// runs until ctx is done.
func (tc *TimeController) StartContext(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		tc.currentTime = tc.StartTime
		tc.mu.Unlock()
		end := tc.StartTime.Add(duration)

		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(tc.Tick)
			defer ticker.Stop()
		}

		for {
			if duration > 0 && !tc.Now().Before(end) {
				return
			}
			if ticker != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			} else if ctx.Err() != nil {
				return
			}
			tc.Step()
		}
	}()
	return done
}

func (tc *TimeController) nextTickLocked() time.Duration {
	if tc.jitter <= 0 || tc.rng == nil {
		return tc.Tick
	}
	scale := 1 + tc.jitter*(2*tc.rng.Float64()-1)
	return time.Duration(float64(tc.Tick) * scale)
}

func (tc *TimeController) dueTimersLocked() []timer {
	n := 0
	for n < len(tc.timers) && !tc.timers[n].at.After(tc.currentTime) {
		n++
	}
	due := append([]timer(nil), tc.timers[:n]...)
	tc.timers = tc.timers[n:]
	return due
}

func fire(due []timer, now time.Time) {
	for _, t := range due {
		t.ch <- now
	}
}
