// Package registry holds the channel table: which channels are tracked,
// whether the operator wants them recorded, and the supervisor attached
// to each. Mutations persist the table before they return.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/streamvault/streamvault/internal/recorder"
)

var (
	// ErrChannelExists is returned when adding a channel already tracked.
	ErrChannelExists = errors.New("channel already exists")

	// ErrChannelNotFound is returned for operations on unknown channels.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrInvalidName is returned for empty or malformed channel names.
	ErrInvalidName = errors.New("invalid channel name")
)

// Channel is one tracked channel. JSON field names match the snapshot
// format written by earlier versions of the channels file.
type Channel struct {
	Name   string `json:"name"`
	Active bool   `json:"is_recording"`
	Online bool   `json:"online"`
}

// Supervisor is the per-channel recording supervisor the registry
// manages. *recorder.Recorder satisfies it.
type Supervisor interface {
	Start()
	Stop()
	StopWait(timeout time.Duration) bool
	Reset()
	State() recorder.State
	OutputPath() string
}

// SupervisorFactory creates a supervisor for a channel name.
type SupervisorFactory func(name string) Supervisor

// Status is a point-in-time view of one channel for the control surface.
type Status struct {
	Name      string `json:"name"`
	Active    bool   `json:"is_recording"`
	Online    bool   `json:"online"`
	State     string `json:"state"`
	Recording bool   `json:"recording"`
	Output    string `json:"output,omitempty"`
}

// Registry is the concurrency-safe channel table.
type Registry struct {
	mu            sync.Mutex
	channels      []*Channel
	supervisors   map[string]Supervisor
	newSupervisor SupervisorFactory
	store         *Store
	logger        *slog.Logger
	stopGrace     time.Duration
}

// New creates an empty registry. Call Load to seed it from the store.
func New(store *Store, factory SupervisorFactory, stopGrace time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if stopGrace <= 0 {
		stopGrace = 10 * time.Second
	}
	return &Registry{
		supervisors:   make(map[string]Supervisor),
		newSupervisor: factory,
		store:         store,
		logger:        logger,
		stopGrace:     stopGrace,
	}
}

// Load seeds the registry from the store. Persisted online flags are
// stale by definition and reset until the next probe cycle.
func (r *Registry) Load() error {
	channels, err := r.store.Load()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range channels {
		name := CanonicalName(ch.Name)
		if err := validateName(name); err != nil {
			r.logger.Warn("channel_skipped", "name", ch.Name, "error", err)
			continue
		}
		if _, ok := r.supervisors[name]; ok {
			continue
		}
		r.channels = append(r.channels, &Channel{
			Name:   name,
			Active: ch.Active,
			Online: false,
		})
		r.supervisors[name] = r.newSupervisor(name)
	}

	r.logger.Info("registry_loaded", "channels", len(r.channels))
	return nil
}

// CanonicalName normalizes a channel name for lookup and storage.
func CanonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	for _, c := range name {
		if c == '/' || c == '\\' || c == 0 {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

// Add registers a new channel marked active. The next reconcile cycle
// starts recording if the channel is live.
func (r *Registry) Add(name string) error {
	name = CanonicalName(name)
	if err := validateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.supervisors[name]; ok {
		return fmt.Errorf("%w: %s", ErrChannelExists, name)
	}

	r.channels = append(r.channels, &Channel{Name: name, Active: true})
	r.supervisors[name] = r.newSupervisor(name)
	r.logger.Info("channel_added", "channel", name)
	return r.persistLocked()
}

// Remove stops the channel's supervisor and drops it from the table. The
// supervisor is stopped before the table entry disappears so no capture
// process outlives its registration.
func (r *Registry) Remove(name string) error {
	name = CanonicalName(name)

	r.mu.Lock()
	sup, ok := r.supervisors[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}

	if !sup.StopWait(r.stopGrace) {
		r.logger.Warn("remove_stop_timeout", "channel", name, "grace", r.stopGrace)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.supervisors[name]; !ok {
		// Removed concurrently while we were stopping it.
		return nil
	}
	delete(r.supervisors, name)
	for i, ch := range r.channels {
		if ch.Name == name {
			r.channels = append(r.channels[:i], r.channels[i+1:]...)
			break
		}
	}
	r.logger.Info("channel_removed", "channel", name)
	return r.persistLocked()
}

// Pause marks the channel inactive and stops any running capture. The
// channel stays tracked and keeps being probed.
func (r *Registry) Pause(name string) error {
	name = CanonicalName(name)

	r.mu.Lock()
	sup, ok := r.supervisors[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	for _, ch := range r.channels {
		if ch.Name == name {
			ch.Active = false
			break
		}
	}
	err := r.persistLocked()
	r.mu.Unlock()

	r.logger.Info("channel_paused", "channel", name)
	sup.Stop()
	return err
}

// Resume marks the channel active again and clears a failed supervisor
// back to idle so the next reconcile cycle can restart it.
func (r *Registry) Resume(name string) error {
	name = CanonicalName(name)

	r.mu.Lock()
	sup, ok := r.supervisors[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	for _, ch := range r.channels {
		if ch.Name == name {
			ch.Active = true
			break
		}
	}
	err := r.persistLocked()
	r.mu.Unlock()

	r.logger.Info("channel_resumed", "channel", name)
	sup.Reset()
	return err
}

// Snapshot returns a copy of the channel table in registration order.
func (r *Registry) Snapshot() []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Channel, len(r.channels))
	for i, ch := range r.channels {
		out[i] = *ch
	}
	return out
}

// StatusList returns the control-surface view of every channel.
func (r *Registry) StatusList() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.channels))
	for _, ch := range r.channels {
		sup := r.supervisors[ch.Name]
		state := sup.State()
		st := Status{
			Name:      ch.Name,
			Active:    ch.Active,
			Online:    ch.Online,
			State:     state.String(),
			Recording: state.IsActive(),
		}
		if state.IsActive() {
			st.Output = sup.OutputPath()
		}
		out = append(out, st)
	}
	return out
}

// Counts returns channel totals for gauges: tracked, recording, online
// and failed.
func (r *Registry) Counts() (total, rec, online, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total = len(r.channels)
	for _, ch := range r.channels {
		if ch.Online {
			online++
		}
		switch r.supervisors[ch.Name].State() {
		case recorder.StateRunning:
			rec++
		case recorder.StateFailed:
			failed++
		}
	}
	return total, rec, online, failed
}

// Apply folds a probe result into the table and reconciles supervisors
// with the desired state: active online channels record, everything else
// does not. Failed supervisors are left alone until resumed. Supervisor
// calls happen after the table is updated and persisted.
func (r *Registry) Apply(availability map[string]bool) error {
	var toStart, toStop []Supervisor

	r.mu.Lock()
	for _, ch := range r.channels {
		if online, ok := availability[ch.Name]; ok {
			ch.Online = online
		}
		sup := r.supervisors[ch.Name]
		switch sup.State() {
		case recorder.StateIdle:
			if ch.Active && ch.Online {
				toStart = append(toStart, sup)
			}
		case recorder.StateRunning:
			if !ch.Active || !ch.Online {
				toStop = append(toStop, sup)
			}
		}
	}
	err := r.persistLocked()
	r.mu.Unlock()

	for _, sup := range toStart {
		sup.Start()
	}
	for _, sup := range toStop {
		sup.Stop()
	}

	if len(toStart) > 0 || len(toStop) > 0 {
		r.logger.Info("reconcile_applied",
			"started", len(toStart),
			"stopped", len(toStop))
	}
	return err
}

// StopAll stops every supervisor in parallel and waits up to grace for
// each. Used during shutdown.
func (r *Registry) StopAll(grace time.Duration) {
	r.mu.Lock()
	sups := make([]Supervisor, 0, len(r.supervisors))
	names := make([]string, 0, len(r.supervisors))
	for name, sup := range r.supervisors {
		sups = append(sups, sup)
		names = append(names, name)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for i, sup := range sups {
		wg.Add(1)
		go func(name string, sup Supervisor) {
			defer wg.Done()
			if !sup.StopWait(grace) {
				r.logger.Warn("shutdown_stop_timeout", "channel", name)
			}
		}(names[i], sup)
	}
	wg.Wait()
}

// Persist writes the current table to the store.
func (r *Registry) Persist() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistLocked()
}

// Len returns the number of tracked channels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

func (r *Registry) persistLocked() error {
	if err := r.store.Save(r.channels); err != nil {
		r.logger.Error("persist_failed", "error", err)
		return err
	}
	return nil
}
