// Package reconciler drives the periodic probe-and-converge cycle: probe
// every tracked channel for availability, then let the registry align
// each supervisor with the desired recording state.
package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/streamvault/streamvault/internal/registry"
)

// Prober reports channel availability. A probe never fails; anything
// that prevents a definitive answer reads as offline.
type Prober interface {
	Probe(ctx context.Context, channel string) bool
}

// Config holds reconciler configuration.
type Config struct {
	// Registry is the channel table to reconcile.
	Registry *registry.Registry

	// Prober checks channel availability.
	Prober Prober

	// Interval between reconcile cycles. Defaults to 60s.
	Interval time.Duration

	// ProbeWorkers bounds concurrent probes per cycle. Defaults to 5.
	ProbeWorkers int

	// Logger receives cycle events. Defaults to slog.Default().
	Logger *slog.Logger

	// OnCycle is called after each completed cycle with its duration.
	OnCycle func(elapsed time.Duration)

	// OnProbe is called after each individual probe.
	OnProbe func(channel string, live bool, elapsed time.Duration)
}

// Reconciler runs the periodic reconcile loop.
type Reconciler struct {
	config *Config
	logger *slog.Logger
}

// New creates a reconciler. Registry and Prober are required.
func New(cfg *Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.ProbeWorkers <= 0 {
		cfg.ProbeWorkers = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{config: cfg, logger: logger}
}

// Run reconciles immediately, then on every interval tick until the
// context is canceled.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("reconciler_started",
		"interval", r.config.Interval,
		"probe_workers", r.config.ProbeWorkers)

	r.Reconcile(ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler_stopped")
			return
		case <-ticker.C:
			r.Reconcile(ctx)
		}
	}
}

// Reconcile runs one cycle: snapshot the table, probe every channel,
// fold results back in. A canceled context abandons the cycle without
// applying partial results.
func (r *Reconciler) Reconcile(ctx context.Context) {
	started := time.Now()

	channels := r.config.Registry.Snapshot()
	if len(channels) == 0 {
		return
	}

	availability := r.probeAll(ctx, channels)
	if ctx.Err() != nil {
		return
	}

	if err := r.config.Registry.Apply(availability); err != nil {
		r.logger.Error("reconcile_apply_failed", "error", err)
	}

	elapsed := time.Since(started)
	r.logger.Debug("reconcile_cycle",
		"channels", len(channels),
		"elapsed", elapsed.Round(time.Millisecond))
	if r.config.OnCycle != nil {
		r.config.OnCycle(elapsed)
	}
}

// probeAll probes every channel with bounded concurrency. A panicking
// probe is contained to its channel and reads as offline.
func (r *Reconciler) probeAll(ctx context.Context, channels []registry.Channel) map[string]bool {
	sem := semaphore.NewWeighted(int64(r.config.ProbeWorkers))

	var mu sync.Mutex
	results := make(map[string]bool, len(channels))

	var wg sync.WaitGroup
	for _, ch := range channels {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer sem.Release(1)

			live := r.probeOne(ctx, name)

			mu.Lock()
			results[name] = live
			mu.Unlock()
		}(ch.Name)
	}
	wg.Wait()
	return results
}

func (r *Reconciler) probeOne(ctx context.Context, name string) (live bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("probe_panic", "channel", name, "panic", rec)
			live = false
		}
	}()

	started := time.Now()
	live = r.config.Prober.Probe(ctx, name)
	elapsed := time.Since(started)

	r.logger.Debug("probe_done", "channel", name, "live", live,
		"elapsed", elapsed.Round(time.Millisecond))
	if r.config.OnProbe != nil {
		r.config.OnProbe(name, live, elapsed)
	}
	return live
}
