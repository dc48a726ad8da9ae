package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/intercept-sim/core"
	"github.com/signalsfoundry/intercept-sim/internal/analytics"
	"github.com/signalsfoundry/intercept-sim/internal/config"
	"github.com/signalsfoundry/intercept-sim/internal/logging"
	"github.com/signalsfoundry/intercept-sim/internal/observability"
	"github.com/signalsfoundry/intercept-sim/internal/scenario"
	"github.com/signalsfoundry/intercept-sim/internal/server"
	"github.com/signalsfoundry/intercept-sim/kb"
	"github.com/signalsfoundry/intercept-sim/timectrl"
)

// Config holds the server's process settings.
type Config struct {
	ListenAddress  string
	MetricsAddress string
	ScenarioPath   string
	// Accelerated runs the engagement as fast as possible instead of in
	// wall-clock time.
	Accelerated bool
	// Registry defaults to a fresh registry per run.
	Registry *prometheus.Registry
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.ListenAddress, "grpc-addr", ":50051", "TCP address the gRPC health server listens on")
	flag.StringVar(&cfg.MetricsAddress, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	flag.StringVar(&cfg.ScenarioPath, "config", "configs/engagement.yaml", "scenario file (yaml or json)")
	flag.BoolVar(&cfg.Accelerated, "accelerated", false, "run the engagement in accelerated time")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ctx, runID := logging.EnsureRunID(ctx)
	tracing := observability.TracingConfigFromEnv()
	tracing.Scenario = strings.TrimSuffix(filepath.Base(cfg.ScenarioPath), filepath.Ext(cfg.ScenarioPath))
	tracing.RunID = runID
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}
	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "engagement server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves gRPC health on lis and metrics over HTTP while the scenario
// plays out. It returns when ctx is cancelled.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	ctx, log = logging.WithRunLogger(ctx, log)

	scn, err := config.Load(cfg.ScenarioPath)
	if err != nil {
		return err
	}

	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	rpcMetrics, err := observability.NewRPCCollector(reg)
	if err != nil {
		return err
	}
	engagementMetrics, err := observability.NewEngagementCollector(reg)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{Logger: log, Metrics: rpcMetrics, Tracing: true})
	metricsSrv := serveMetrics(cfg.MetricsAddress, rpcMetrics, log)

	engine := core.NewSimulationEngine(kb.NewKnowledgeBase(), scn.Bounds.Query(),
		core.WithEngineLogger(log),
		core.WithEngineMetrics(engagementMetrics),
		core.WithParallelism(scn.Simulation.Workers),
	)
	recorder := analytics.NewRecorder()
	recorder.Attach(engine.Bus)
	engine.Bus.Subscribe(engagementMetrics.Observe)

	start := time.Now().UTC()
	engine.Start(start)
	sc, err := scenario.Build(scn, engine, start, scenario.WithLogger(log))
	if err != nil {
		return err
	}

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(start, scn.Simulation.Tick, mode,
		timectrl.WithJitter(scn.Simulation.Jitter, scn.Simulation.Seed))

	// Listeners run on the controller goroutine; launches use the previous
	// tick time so vehicles enter the engine before it steps.
	prev := start
	tc.AddListener(func(now time.Time) {
		if _, err := sc.Launch(ctx, prev); err != nil {
			log.Warn(ctx, "launch failed", logging.Err(err))
		}
		if err := engine.Step(ctx, now); err != nil {
			log.Warn(ctx, "engine step failed", logging.Err(err))
		}
		prev = now
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting engagement gRPC server", logging.String("addr", lis.Addr().String()))
		return srv.Serve(lis)
	})
	g.Go(func() error {
		srv.SetServing(true)
		<-tc.StartContext(gctx, scn.Simulation.Duration)
		srv.SetServing(false)

		s := recorder.Summary()
		log.Info(gctx, "engagement finished",
			logging.Int("launched", s.Launched),
			logging.Int("impacts", s.Impacts),
			logging.Int("misses", s.Misses),
			logging.Int("rounds_fired", s.RoundsFired),
		)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down engagement server")
		srv.Stop(5 * time.Second)
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveMetrics(addr string, collector *observability.RPCCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
