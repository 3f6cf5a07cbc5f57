// Package orchestrator wires the daemon together: config in, registry,
// reconciler, control and metrics servers out, with a clean shutdown
// path.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/metrics"
	"github.com/streamvault/streamvault/internal/preflight"
	"github.com/streamvault/streamvault/internal/process"
	"github.com/streamvault/streamvault/internal/reconciler"
	"github.com/streamvault/streamvault/internal/recorder"
	"github.com/streamvault/streamvault/internal/registry"
	"github.com/streamvault/streamvault/internal/server"
	"github.com/streamvault/streamvault/internal/stats"
)

// Orchestrator owns every long-lived component of the daemon.
type Orchestrator struct {
	config    *config.Config
	logger    *slog.Logger
	runner    *process.StreamlinkRunner
	collector *metrics.Collector
	tracker   *stats.Tracker

	registry      *registry.Registry
	reconciler    *reconciler.Reconciler
	metricsServer *metrics.Server
	apiServer     *server.Server
}

// New builds the full component graph from configuration. Nothing runs
// until Run is called.
func New(cfg *config.Config, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		config:    cfg,
		logger:    logger,
		collector: metrics.NewCollector(),
		tracker:   stats.NewTracker(),
	}

	o.runner = process.NewStreamlinkRunner(&process.StreamlinkConfig{
		BinaryPath:   cfg.StreamlinkPath,
		URLTemplate:  cfg.URLTemplate,
		Quality:      cfg.StreamQuality,
		ProbeTimeout: cfg.ProbeTimeout,
	})

	store := registry.NewStore(cfg.ChannelsFile)
	o.registry = registry.New(store, o.newSupervisor, cfg.StopGrace, logger)

	o.reconciler = reconciler.New(&reconciler.Config{
		Registry:     o.registry,
		Prober:       o.runner,
		Interval:     cfg.CheckInterval,
		ProbeWorkers: cfg.ProbeWorkers,
		Logger:       logger,
		OnCycle:      o.onCycle,
		OnProbe: func(channel string, live bool, elapsed time.Duration) {
			o.collector.RecordProbe(live, elapsed)
		},
	})

	o.metricsServer = metrics.NewServer(cfg.MetricsAddr, o.collector, logger)
	o.apiServer = server.New(cfg.ListenAddr(), o.registry, cfg.RecordingsDir, logger)
	return o
}

// newSupervisor is the registry's supervisor factory. Channel names are
// validated before they reach it.
func (o *Orchestrator) newSupervisor(name string) registry.Supervisor {
	rec, err := recorder.New(&recorder.Config{
		Channel:          name,
		Builder:          o.runner,
		Logger:           o.logger,
		OutputDir:        o.config.RecordingsDir,
		LogsDir:          o.config.LogsDir,
		FilenameFormat:   o.config.FilenameFormat,
		FileExtension:    o.config.FileExtension,
		MaxFileSize:      o.config.MaxFileSize,
		SizePollInterval: o.config.SizePollInterval,
		MinLifetime:      o.config.MinLifetime,
		FailureWindow:    o.config.FailureWindow,
		RetryDelay:       o.config.RetryDelay,
		SplitDelay:       o.config.SplitDelay,
		StopGrace:        o.config.StopGrace,
		Callbacks: recorder.Callbacks{
			OnStateChange:  o.onStateChange,
			OnCaptureStart: o.onCaptureStart,
			OnCaptureExit:  o.onCaptureExit,
			OnSplit:        o.onSplit,
		},
	})
	if err != nil {
		panic(fmt.Sprintf("recorder for %q: %v", name, err))
	}
	return rec
}

// Run starts every component and blocks until the context is canceled
// or a termination signal arrives, then shuts down in reverse order.
func (o *Orchestrator) Run(ctx context.Context) error {
	for _, dir := range []string{o.config.RecordingsDir, o.config.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if err := o.registry.Load(); err != nil {
		return fmt.Errorf("load channels: %w", err)
	}

	if !o.config.SkipPreflight {
		result := preflight.RunAll(o.registry.Len(),
			o.config.StreamlinkPath, o.config.RecordingsDir, o.config.LogsDir)
		preflight.PrintResults(result)
		if !result.Passed {
			return fmt.Errorf("preflight checks failed")
		}
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	o.metricsServer.Start()
	o.apiServer.Start()

	o.logger.Info("daemon_started",
		"channels", o.registry.Len(),
		"check_interval", o.config.CheckInterval,
		"control_addr", o.config.ListenAddr(),
		"metrics_addr", o.config.MetricsAddr)

	reconcilerDone := make(chan struct{})
	go func() {
		defer close(reconcilerDone)
		o.reconciler.Run(ctx)
	}()

	<-ctx.Done()
	o.logger.Info("shutdown_started")
	<-reconcilerDone

	o.registry.StopAll(o.config.StopGrace + time.Second)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), o.config.ShutdownGrace)
	defer shutdownCancel()
	if err := o.apiServer.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("control_server_shutdown_error", "error", err)
	}
	if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}

	fmt.Print(stats.FormatExitSummary(o.tracker.Summary(), o.registry.Len(), o.config.RecordingsDir))
	o.logger.Info("daemon_stopped")
	return nil
}

// Registry exposes the channel table, mainly for tests.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

func (o *Orchestrator) onCycle(elapsed time.Duration) {
	o.collector.RecordReconcile(elapsed)

	total, rec, online, failed := o.registry.Counts()
	o.collector.SetChannelCounts(total, rec, online, failed)

	if free, err := server.DiskFree(o.config.RecordingsDir); err == nil {
		o.collector.SetDiskFree(free)
	}
}

func (o *Orchestrator) onStateChange(channel string, old, newState recorder.State) {
	if newState == recorder.StateFailed {
		o.collector.RecordToleranceExceeded()
		o.tracker.RecordFailure()
	}
}

func (o *Orchestrator) onCaptureStart(channel string, pid int, outputPath string) {
	o.collector.RecordCaptureStart()
}

func (o *Orchestrator) onCaptureExit(channel string, exitCode int, lifetime time.Duration) {
	o.collector.RecordCaptureExit(exitCode, lifetime)
	o.tracker.RecordSession(lifetime)
	if lifetime < o.config.MinLifetime {
		o.tracker.RecordEarlyExit()
	}
}

func (o *Orchestrator) onSplit(channel string, size int64) {
	o.collector.RecordSplit()
	o.tracker.RecordSplit()
}
