// Command blinky launches a minimal reactive kernel deployment: a single
// active object toggling between Off and On on a periodic timer, with the
// full C1-C8 stack wired end to end as a worked example.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coachpo/rkh/config"
	"github.com/coachpo/rkh/internal/bus/controlbus"
	"github.com/coachpo/rkh/lib/async"
	"github.com/coachpo/rkh/lib/telemetry"
	"github.com/coachpo/rkh/pkg/ao"
	"github.com/coachpo/rkh/pkg/framework"
	"github.com/coachpo/rkh/pkg/hsm"
	"github.com/coachpo/rkh/pkg/rkhevent"
	"github.com/coachpo/rkh/pkg/rkhtimer"
	"github.com/coachpo/rkh/pkg/trace"
)

const (
	blinkyLoggerPrefix = "blinky "
	ledPriority        = 1
	sigToggle          = rkhevent.UserSignal
	toggleEveryTicks   = 5
	tickInterval       = 200 * time.Millisecond
)

func main() {
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newBlinkyLogger()
	cfg := loadConfig(logger)
	logger.Printf("configuration initialised: env=%s, max_priorities=%d", cfg.Environment, cfg.Scheduler.MaxPriorities)

	_, otelShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	reg := prometheus.NewRegistry()
	metrics := trace.NewPrometheusMetrics(reg)
	hooks := trace.NewHookSet()
	hooks.AddSink(trace.Filter{}, consoleSink{logger: logger})

	poolMgr := rkhevent.NewManager(nil)
	for i, size := range cfg.Pool.BlockSizes {
		if _, err := poolMgr.RegisterPool(size, cfg.Pool.Capacity[i]); err != nil {
			logger.Fatalf("register pool: %v", err)
		}
	}

	sched := ao.NewScheduler(ao.Config{
		Events: poolMgr,
		Hooks:  hooks,
		Idle:   func() { time.Sleep(tickInterval) },
	})

	led := newLEDMachine()
	handle, err := sched.Register(led, ledPriority, cfg.Scheduler.QueueCapacity)
	if err != nil {
		logger.Fatalf("register led active object: %v", err)
	}
	_ = handle

	wheelMetrics := gaugeWheelMetrics{metrics: metrics}
	wheel := rkhtimer.NewWheel(wheelMetrics)
	queue, ok := sched.QueueFor(ledPriority)
	if !ok {
		logger.Fatalf("no queue registered for led priority")
	}
	toggleTimer := &rkhtimer.Timer{Signal: sigToggle}
	wheel.Start(toggleTimer, queue, toggleEveryTicks, toggleEveryTicks)

	bus := controlbus.NewMemoryBus(controlbus.MemoryConfig{BufferSize: 4})
	fw := framework.Init(framework.Config{
		Scheduler: sched,
		Wheel:     wheel,
		Bus:       bus,
		Hooks: framework.Hooks{
			OnStart: func() { logger.Printf("framework started") },
			OnExit:  func() { logger.Printf("framework stopped") },
			Assert:  func(msg string) { logger.Fatalf("assertion failed: %s", msg) },
		},
	})

	// Background integration tasks (the metrics endpoint and the tick
	// source) run through a bounded worker pool rather than bare
	// goroutines, so shutdown can wait on them with a deadline the same way
	// it waits on the scheduler loop.
	integration, err := async.NewPool(2, 2)
	if err != nil {
		logger.Fatalf("init integration pool: %v", err)
	}

	metricsServer := newMetricsServer(cfg.MetricsAddr, reg)
	if err := integration.SubmitWithRetry(ctx, func(context.Context) error {
		return runMetricsServer(logger, metricsServer)
	}, 2*time.Second); err != nil {
		logger.Fatalf("submit metrics server: %v", err)
	}
	if err := integration.Submit(ctx, func(taskCtx context.Context) error {
		driveTicks(taskCtx, fw)
		return nil
	}); err != nil {
		logger.Fatalf("submit tick driver: %v", err)
	}

	runDone := make(chan struct{})
	go func() {
		fw.Run()
		close(runDone)
	}()

	<-ctx.Done()
	logger.Printf("shutdown signal received")
	fw.Exit()
	<-runDone

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelShutdown()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("metrics server shutdown: %v", err)
	}
	if err := integration.Shutdown(shutdownCtx); err != nil {
		logger.Printf("integration pool shutdown: %v", err)
	}
}

func driveTicks(ctx context.Context, fw *framework.Framework) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fw.Tick()
		}
	}
}

// loadConfig loads from the file named by RKH_CONFIG_FILE when set, falling
// back to the process environment otherwise.
func loadConfig(logger *log.Logger) config.Settings {
	if path := os.Getenv("RKH_CONFIG_FILE"); path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			logger.Fatalf("load config file %s: %v", path, err)
		}
		return cfg
	}
	return config.FromEnv()
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newBlinkyLogger() *log.Logger {
	return log.New(os.Stdout, blinkyLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

func newMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})) //nolint:exhaustruct
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second} //nolint:exhaustruct
}

// runMetricsServer blocks serving /metrics until the server is shut down,
// treating the expected post-Shutdown error as a clean return.
func runMetricsServer(logger *log.Logger, srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("metrics server error: %v", err)
		return err
	}
	return nil
}

// consoleSink prints every observation record it receives; used here with an
// empty Filter so nothing is excluded.
type consoleSink struct {
	logger *log.Logger
}

func (c consoleSink) Observe(r trace.Record) {
	c.logger.Printf("[%s] ao=%s signal=%d source=%s target=%s outcome=%s",
		r.Category, r.AOName, r.Signal, r.SourceName, r.TargetName, r.Outcome)
}

// gaugeWheelMetrics adapts rkhtimer.Metrics onto the shared Prometheus
// metrics surface.
type gaugeWheelMetrics struct {
	metrics *trace.PrometheusMetrics
}

func (g gaugeWheelMetrics) SetArmedCount(n int) {
	g.metrics.SetGauge("timer_armed_count", float64(n), nil)
}

// newLEDMachine builds the two-state Off/On state machine, toggling on
// sigToggle. The states have no Entry/Exit actions; their entries and exits
// are reported only through the observation-hook sink above.
func newLEDMachine() *hsm.AO {
	root := &hsm.State{Name: "root", Kind: hsm.KindComposite}
	off := &hsm.State{Name: "off", Kind: hsm.KindBasic, Parent: root}
	on := &hsm.State{Name: "on", Kind: hsm.KindBasic, Parent: root}
	root.Default = off

	off.Transitions = []hsm.Transition{{Trigger: sigToggle, Target: on}}
	on.Transitions = []hsm.Transition{{Trigger: sigToggle, Target: off}}

	return hsm.NewAO("led", root)
}
