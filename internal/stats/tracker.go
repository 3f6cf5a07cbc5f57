// Package stats aggregates capture session statistics for the exit
// summary.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// Summary is a point-in-time aggregate of capture activity.
type Summary struct {
	RunDuration      time.Duration
	Sessions         int64
	TotalCaptureTime time.Duration
	Splits           int64
	EarlyExits       int64
	Failures         int64
	LifetimeP50      time.Duration
	LifetimeP95      time.Duration
	LifetimeP99      time.Duration
}

// Tracker accumulates session lifetimes and event counts. Lifetime
// percentiles come from a t-digest so memory stays constant no matter
// how many sessions a long run produces.
type Tracker struct {
	mu            sync.Mutex
	digest        *tdigest.TDigest
	sessions      int64
	totalDuration time.Duration
	splits        int64
	earlyExits    int64
	failures      int64
	started       time.Time
}

// NewTracker creates a tracker. The run clock starts now.
func NewTracker() *Tracker {
	return &Tracker{
		digest:  tdigest.NewWithCompression(100),
		started: time.Now(),
	}
}

// RecordSession records one completed capture session.
func (t *Tracker) RecordSession(lifetime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions++
	t.totalDuration += lifetime
	t.digest.Add(lifetime.Seconds(), 1)
}

// RecordSplit records one size-triggered split.
func (t *Tracker) RecordSplit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.splits++
}

// RecordEarlyExit records a session that ended before the minimum
// lifetime.
func (t *Tracker) RecordEarlyExit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.earlyExits++
}

// RecordFailure records a channel exhausting its restart tolerance.
func (t *Tracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures++
}

// Quantile returns the session lifetime at quantile q, or zero when no
// sessions were recorded.
func (t *Tracker) Quantile(q float64) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quantileLocked(q)
}

func (t *Tracker) quantileLocked(q float64) time.Duration {
	if t.sessions == 0 {
		return 0
	}
	return time.Duration(t.digest.Quantile(q) * float64(time.Second))
}

// Summary returns the current aggregate.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Summary{
		RunDuration:      time.Since(t.started),
		Sessions:         t.sessions,
		TotalCaptureTime: t.totalDuration,
		Splits:           t.splits,
		EarlyExits:       t.earlyExits,
		Failures:         t.failures,
		LifetimeP50:      t.quantileLocked(0.50),
		LifetimeP95:      t.quantileLocked(0.95),
		LifetimeP99:      t.quantileLocked(0.99),
	}
}
