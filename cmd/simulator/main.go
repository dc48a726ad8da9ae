package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/intercept-sim/core"
	"github.com/signalsfoundry/intercept-sim/internal/analytics"
	"github.com/signalsfoundry/intercept-sim/internal/config"
	"github.com/signalsfoundry/intercept-sim/internal/logging"
	"github.com/signalsfoundry/intercept-sim/internal/observability"
	"github.com/signalsfoundry/intercept-sim/internal/scenario"
	"github.com/signalsfoundry/intercept-sim/kb"
	"github.com/signalsfoundry/intercept-sim/model"
	"github.com/signalsfoundry/intercept-sim/timectrl"
)

// Options are the CLI overrides on top of the scenario file.
type Options struct {
	ConfigPath string
	Duration   time.Duration
	Tick       time.Duration
	Workers    int
	Jitter     float64
	Seed       uint64
}

func main() {
	opts := Options{}
	flag.StringVar(&opts.ConfigPath, "config", "configs/engagement.yaml", "scenario file (yaml or json)")
	flag.DurationVar(&opts.Duration, "duration", 0, "override simulation duration")
	flag.DurationVar(&opts.Tick, "tick", 0, "override tick interval")
	flag.IntVar(&opts.Workers, "workers", 0, "override guidance worker count")
	flag.Float64Var(&opts.Jitter, "jitter", -1, "override tick jitter fraction")
	flag.Uint64Var(&opts.Seed, "seed", 0, "override jitter seed")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if _, err := run(ctx, opts, log, os.Stdout); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

// run loads the scenario, steps it in accelerated mode until every vehicle
// has an outcome or the duration elapses, and prints the summary to out.
func run(ctx context.Context, opts Options, log logging.Logger, out io.Writer) (analytics.Summary, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return analytics.Summary{}, err
	}
	applyOverrides(cfg, opts)
	return simulate(ctx, cfg, log, out)
}

func applyOverrides(cfg *config.Config, opts Options) {
	if opts.Duration > 0 {
		cfg.Simulation.Duration = opts.Duration
	}
	if opts.Tick > 0 {
		cfg.Simulation.Tick = opts.Tick
	}
	if opts.Workers > 0 {
		cfg.Simulation.Workers = opts.Workers
	}
	if opts.Jitter >= 0 && opts.Jitter < 1 {
		cfg.Simulation.Jitter = opts.Jitter
	}
	if opts.Seed != 0 {
		cfg.Simulation.Seed = opts.Seed
	}
}

func simulate(ctx context.Context, cfg *config.Config, log logging.Logger, out io.Writer) (analytics.Summary, error) {
	ctx, log = logging.WithRunLogger(ctx, log)

	metrics, err := observability.NewEngagementCollector(prometheus.NewRegistry())
	if err != nil {
		return analytics.Summary{}, err
	}
	store := kb.NewKnowledgeBase()
	engine := core.NewSimulationEngine(store, cfg.Bounds.Query(),
		core.WithEngineLogger(log),
		core.WithEngineMetrics(metrics),
		core.WithParallelism(cfg.Simulation.Workers),
	)
	recorder := analytics.NewRecorder()
	recorder.Attach(engine.Bus)
	engine.Bus.Subscribe(metrics.Observe)

	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	engine.Start(start)
	sc, err := scenario.Build(cfg, engine, start, scenario.WithLogger(log))
	if err != nil {
		return analytics.Summary{}, err
	}

	tc := timectrl.NewTimeController(start, cfg.Simulation.Tick, timectrl.Accelerated,
		timectrl.WithJitter(cfg.Simulation.Jitter, cfg.Simulation.Seed))

	log.Info(ctx, "starting simulation",
		logging.Duration("duration", cfg.Simulation.Duration),
		logging.Duration("tick", cfg.Simulation.Tick),
		logging.Int("ships", sc.Ships()),
		logging.Int("turrets", sc.Turrets()),
		logging.Int("launches", sc.Pending()),
	)

	end := start.Add(cfg.Simulation.Duration)
	prev := start
	for tc.Now().Before(end) {
		if err := ctx.Err(); err != nil {
			return analytics.Summary{}, err
		}
		if _, err := sc.Launch(ctx, prev); err != nil {
			return analytics.Summary{}, err
		}
		now := tc.Step()
		if err := engine.Step(ctx, now); err != nil {
			return analytics.Summary{}, err
		}
		prev = now
		if sc.Done() {
			break
		}
	}

	summary := recorder.Summary()
	printSummary(out, summary, tc.Now().Sub(start), recorder.Pending())
	return summary, nil
}

func printSummary(out io.Writer, s analytics.Summary, elapsed time.Duration, pending []model.EntityID) {
	fmt.Fprintf(out, "Simulated %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "Vehicles: %d launched, %d impacts, %d misses (hit rate %.0f%%)\n",
		s.Launched, s.Impacts, s.Misses, 100*s.HitRate)
	for _, reason := range s.Reasons() {
		fmt.Fprintf(out, "  miss %-18s %d\n", reason, s.MissesByReason[reason])
	}
	if s.Impacts+s.Misses > 0 {
		fmt.Fprintf(out, "Mean closest approach %.1f m, mean flight time %s\n",
			s.MeanClosest, s.MeanFlightTime.Round(time.Millisecond))
	}
	fmt.Fprintf(out, "Point defense: %d acquisitions, %d rounds fired\n", s.Acquisitions, s.RoundsFired)
	if len(pending) > 0 {
		fmt.Fprintf(out, "Still in flight: %v\n", pending)
	}
}
