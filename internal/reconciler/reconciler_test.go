package reconciler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streamvault/streamvault/internal/recorder"
	"github.com/streamvault/streamvault/internal/registry"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingProber tracks concurrent probe invocations.
type countingProber struct {
	live    func(channel string) bool
	delay   time.Duration
	current atomic.Int64
	max     atomic.Int64
	total   atomic.Int64
}

func (p *countingProber) Probe(ctx context.Context, channel string) bool {
	cur := p.current.Add(1)
	defer p.current.Add(-1)
	for {
		old := p.max.Load()
		if cur <= old || p.max.CompareAndSwap(old, cur) {
			break
		}
	}
	p.total.Add(1)

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return false
		}
	}
	if p.live == nil {
		return false
	}
	return p.live(channel)
}

type fakeSupervisor struct {
	mu     sync.Mutex
	state  recorder.State
	starts int
	stops  int
}

func (f *fakeSupervisor) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.state = recorder.StateRunning
}

func (f *fakeSupervisor) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = recorder.StateIdle
}

func (f *fakeSupervisor) StopWait(time.Duration) bool { f.Stop(); return true }
func (f *fakeSupervisor) Reset()                      {}

func (f *fakeSupervisor) State() recorder.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSupervisor) OutputPath() string { return "" }

func newTestRegistry(t *testing.T) (*registry.Registry, map[string]*fakeSupervisor) {
	t.Helper()
	sups := make(map[string]*fakeSupervisor)
	var mu sync.Mutex
	store := registry.NewStore(filepath.Join(t.TempDir(), "channels.json"))
	reg := registry.New(store, func(name string) registry.Supervisor {
		mu.Lock()
		defer mu.Unlock()
		sup := &fakeSupervisor{}
		sups[name] = sup
		return sup
	}, time.Second, newTestLogger())
	return reg, sups
}

func TestReconcile_BoundedConcurrency(t *testing.T) {
	reg, _ := newTestRegistry(t)
	for i := 0; i < 50; i++ {
		if err := reg.Add(fmt.Sprintf("chan%02d", i)); err != nil {
			t.Fatal(err)
		}
	}

	prober := &countingProber{delay: 10 * time.Millisecond}
	rec := New(&Config{
		Registry:     reg,
		Prober:       prober,
		ProbeWorkers: 5,
		Logger:       newTestLogger(),
	})

	rec.Reconcile(context.Background())

	if got := prober.total.Load(); got != 50 {
		t.Errorf("probed %d channels, want 50", got)
	}
	if got := prober.max.Load(); got > 5 {
		t.Errorf("max concurrent probes = %d, want at most 5", got)
	}
}

func TestReconcile_StartsAndStops(t *testing.T) {
	reg, sups := newTestRegistry(t)
	for _, name := range []string{"live-idle", "dead-running", "dead-idle"} {
		if err := reg.Add(name); err != nil {
			t.Fatal(err)
		}
	}
	sups["dead-running"].Start()

	prober := &countingProber{live: func(channel string) bool {
		return channel == "live-idle"
	}}
	rec := New(&Config{
		Registry: reg,
		Prober:   prober,
		Logger:   newTestLogger(),
	})

	rec.Reconcile(context.Background())

	if sups["live-idle"].State() != recorder.StateRunning {
		t.Error("live idle channel not started")
	}
	if sups["dead-running"].State() != recorder.StateIdle {
		t.Error("offline running channel not stopped")
	}
	if sups["dead-idle"].State() != recorder.StateIdle {
		t.Error("offline idle channel should stay idle")
	}
}

func TestReconcile_EmptyRegistry(t *testing.T) {
	reg, _ := newTestRegistry(t)
	prober := &countingProber{}
	rec := New(&Config{Registry: reg, Prober: prober, Logger: newTestLogger()})

	rec.Reconcile(context.Background())

	if got := prober.total.Load(); got != 0 {
		t.Errorf("probed %d channels on empty registry", got)
	}
}

func TestReconcile_CanceledContextAppliesNothing(t *testing.T) {
	reg, sups := newTestRegistry(t)
	if err := reg.Add("alpha"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prober := &countingProber{live: func(string) bool { return true }}
	rec := New(&Config{Registry: reg, Prober: prober, Logger: newTestLogger()})
	rec.Reconcile(ctx)

	if sups["alpha"].State() != recorder.StateIdle {
		t.Error("supervisor started despite canceled context")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	reg, _ := newTestRegistry(t)
	if err := reg.Add("alpha"); err != nil {
		t.Fatal(err)
	}

	var cycles atomic.Int64
	rec := New(&Config{
		Registry: reg,
		Prober:   &countingProber{},
		Interval: 20 * time.Millisecond,
		Logger:   newTestLogger(),
		OnCycle:  func(time.Duration) { cycles.Add(1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && cycles.Load() < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}
	if cycles.Load() < 2 {
		t.Errorf("cycles = %d, want at least 2", cycles.Load())
	}
}

func TestReconcile_ProbePanicContained(t *testing.T) {
	reg, sups := newTestRegistry(t)
	for _, name := range []string{"good", "bad"} {
		if err := reg.Add(name); err != nil {
			t.Fatal(err)
		}
	}

	prober := &panicProber{}
	rec := New(&Config{Registry: reg, Prober: prober, Logger: newTestLogger()})
	rec.Reconcile(context.Background())

	if sups["good"].State() != recorder.StateRunning {
		t.Error("healthy channel not started after sibling probe panic")
	}
	if sups["bad"].State() != recorder.StateIdle {
		t.Error("panicking channel should read offline")
	}
}

type panicProber struct{}

func (panicProber) Probe(ctx context.Context, channel string) bool {
	if channel == "bad" {
		panic("probe exploded")
	}
	return true
}
