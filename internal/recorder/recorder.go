// Package recorder supervises a single channel's capture process.
//
// Each Recorder owns one channel. While running it keeps a capture
// process alive across stream splits and short-lived crashes, restarting
// with a fresh artifact path each time. Persistent rapid failures
// exhaust the restart tolerance and park the recorder in a failed state
// that only an operator reset can clear.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// CommandBuilder creates capture commands for a channel.
type CommandBuilder interface {
	// BuildCaptureCommand creates a command that records the channel's
	// stream to outputPath until the stream ends or it is terminated.
	BuildCaptureCommand(ctx context.Context, channel, outputPath string) (*exec.Cmd, error)

	// Name identifies the capture tool for logging.
	Name() string
}

// Callbacks are optional hooks invoked on recorder lifecycle events.
// Callbacks are invoked outside the recorder's lock and must not call
// back into the recorder synchronously.
type Callbacks struct {
	OnStateChange  func(channel string, oldState, newState State)
	OnCaptureStart func(channel string, pid int, outputPath string)
	OnCaptureExit  func(channel string, exitCode int, lifetime time.Duration)
	OnSplit        func(channel string, size int64)
}

// Config holds recorder configuration.
type Config struct {
	// Channel is the channel name this recorder supervises.
	Channel string

	// Builder creates capture commands.
	Builder CommandBuilder

	// Logger receives recorder events. Defaults to slog.Default().
	Logger *slog.Logger

	// Callbacks receive lifecycle notifications.
	Callbacks Callbacks

	// OutputDir is where capture artifacts are written.
	OutputDir string

	// LogsDir is where the channel's capture output log lives. When
	// empty, process output is discarded.
	LogsDir string

	// FilenameFormat names artifacts using {name}, {timestamp} and
	// {ext} placeholders.
	FilenameFormat string

	// FileExtension is substituted for {ext}.
	FileExtension string

	// MaxFileSize splits the recording when the artifact reaches this
	// size. Zero disables size splitting.
	MaxFileSize int64

	// SizePollInterval is how often the artifact size is checked.
	SizePollInterval time.Duration

	// MinLifetime is the minimum session duration considered healthy.
	// Shorter sessions count as failures.
	MinLifetime time.Duration

	// FailureWindow bounds how long rapid failures are retried before
	// the recorder gives up.
	FailureWindow time.Duration

	// RetryDelay is the pause before retrying after a failure.
	RetryDelay time.Duration

	// SplitDelay is the pause before restarting after a healthy exit.
	SplitDelay time.Duration

	// StopGrace is how long a terminated process gets to exit before
	// SIGKILL.
	StopGrace time.Duration
}

// Recorder supervises the capture lifecycle for one channel.
type Recorder struct {
	config *Config
	logger *slog.Logger

	mu            sync.Mutex
	state         State
	stopRequested bool
	stop          chan struct{}
	done          chan struct{}
	cmd           *exec.Cmd
	exited        chan struct{}
	outputPath    string
	lastStamp     string
	seq           int
	split         bool
}

// New creates a recorder for the configured channel.
func New(cfg *Config) (*Recorder, error) {
	if cfg.Channel == "" {
		return nil, fmt.Errorf("recorder: empty channel name")
	}
	if cfg.Builder == nil {
		return nil, fmt.Errorf("recorder: nil command builder")
	}
	if cfg.FilenameFormat == "" {
		cfg.FilenameFormat = "{name}_{timestamp}{ext}"
	}
	if cfg.SizePollInterval <= 0 {
		cfg.SizePollInterval = 5 * time.Second
	}
	if cfg.MinLifetime <= 0 {
		cfg.MinLifetime = 20 * time.Second
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = 180 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.SplitDelay <= 0 {
		cfg.SplitDelay = time.Second
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("channel", cfg.Channel)

	return &Recorder{
		config: cfg,
		logger: logger,
		state:  StateIdle,
	}, nil
}

// Start begins supervising the channel's capture. It is a no-op unless
// the recorder is idle; a failed recorder must be Reset first.
func (r *Recorder) Start() {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return
	}
	r.state = StateRunning
	r.stopRequested = false
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop := r.stop
	done := r.done
	r.mu.Unlock()

	r.notifyStateChange(StateIdle, StateRunning)
	go r.supervise(stop, done)
}

// Stop requests the supervision loop to wind down and terminates the
// current capture process. It returns immediately; use StopWait to block
// until the loop has exited. Calling Stop on an idle or failed recorder
// is a no-op.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.state != StateRunning || r.stopRequested {
		r.mu.Unlock()
		return
	}
	r.stopRequested = true
	close(r.stop)
	cmd := r.cmd
	exited := r.exited
	r.mu.Unlock()

	r.logger.Info("stop_requested")
	if cmd != nil {
		r.terminate(cmd, exited)
	}
}

// StopWait stops the recorder and waits up to timeout for the
// supervision loop to exit. It returns false on timeout.
func (r *Recorder) StopWait(timeout time.Duration) bool {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	r.Stop()

	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Reset clears a failed recorder back to idle so it can be started
// again. It is a no-op in any other state.
func (r *Recorder) Reset() {
	r.mu.Lock()
	if r.state != StateFailed {
		r.mu.Unlock()
		return
	}
	r.state = StateIdle
	r.mu.Unlock()

	r.logger.Info("recorder_reset")
	r.notifyStateChange(StateFailed, StateIdle)
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Channel returns the channel name this recorder supervises.
func (r *Recorder) Channel() string {
	return r.config.Channel
}

// OutputPath returns the most recent artifact path, or empty if no
// capture has started yet.
func (r *Recorder) OutputPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputPath
}

// supervise runs capture sessions until stopped or the restart
// tolerance is exhausted. Internal restarts do not change the observable
// state; the recorder stays running across splits and brief crashes.
func (r *Recorder) supervise(stop chan struct{}, done chan struct{}) {
	defer close(done)

	var failureSince time.Time

	for {
		started := time.Now()
		err := r.runOnce()
		lifetime := time.Since(started)
		split := r.takeSplit()

		r.mu.Lock()
		stopped := r.stopRequested
		r.mu.Unlock()
		if stopped {
			r.setFinalState(StateIdle)
			return
		}

		if err == nil && (split || lifetime >= r.config.MinLifetime) {
			// Healthy session. The failure window resets and the
			// next generation starts after a short pause.
			failureSince = time.Time{}
			if !r.pause(r.config.SplitDelay, stop) {
				r.setFinalState(StateIdle)
				return
			}
			continue
		}

		if err != nil {
			r.logger.Error("capture_start_failed", "error", err)
		}

		if failureSince.IsZero() {
			failureSince = started
			r.logger.Warn("failure_window_opened",
				"lifetime", lifetime.Round(time.Millisecond),
				"window", r.config.FailureWindow)
		}
		if time.Since(failureSince) > r.config.FailureWindow {
			r.logger.Error("restart_tolerance_exhausted",
				"failing_for", time.Since(failureSince).Round(time.Second))
			r.setFinalState(StateFailed)
			return
		}
		if !r.pause(r.config.RetryDelay, stop) {
			r.setFinalState(StateIdle)
			return
		}
	}
}

// runOnce executes a single capture generation: pick a fresh artifact
// path, start the process, watch its size, and wait for it to exit.
func (r *Recorder) runOnce() error {
	outPath := r.artifactPath()

	cmd, err := r.config.Builder.BuildCaptureCommand(context.Background(), r.config.Channel, outPath)
	if err != nil {
		return fmt.Errorf("build capture command: %w", err)
	}

	logFile, err := r.openLogFile()
	if err != nil {
		return err
	}
	if logFile != nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	// Own process group so termination reaches streamlink's children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	exited := make(chan struct{})

	r.mu.Lock()
	if r.stopRequested {
		r.mu.Unlock()
		if logFile != nil {
			logFile.Close()
		}
		return nil
	}
	if err := cmd.Start(); err != nil {
		r.mu.Unlock()
		if logFile != nil {
			logFile.Close()
		}
		return fmt.Errorf("start capture: %w", err)
	}
	r.cmd = cmd
	r.exited = exited
	r.outputPath = outPath
	r.split = false
	r.mu.Unlock()

	started := time.Now()
	pid := cmd.Process.Pid
	r.logger.Info("capture_started",
		"tool", r.config.Builder.Name(),
		"pid", pid,
		"output", outPath)
	if cb := r.config.Callbacks.OnCaptureStart; cb != nil {
		cb(r.config.Channel, pid, outPath)
	}

	go r.watchSize(cmd, outPath, exited)

	waitErr := cmd.Wait()
	close(exited)
	if logFile != nil {
		logFile.Close()
	}
	lifetime := time.Since(started)
	exitCode := extractExitCode(waitErr)

	r.mu.Lock()
	r.cmd = nil
	r.exited = nil
	r.mu.Unlock()

	r.logger.Info("capture_exited",
		"pid", pid,
		"exit_code", exitCode,
		"lifetime", lifetime.Round(time.Millisecond))
	if cb := r.config.Callbacks.OnCaptureExit; cb != nil {
		cb(r.config.Channel, exitCode, lifetime)
	}
	return nil
}

// watchSize polls the artifact size for one capture generation and
// terminates the process when it reaches the size limit. The watcher is
// bound to exactly one generation through its cmd and exited arguments
// and never observes a later one.
func (r *Recorder) watchSize(cmd *exec.Cmd, path string, exited chan struct{}) {
	if r.config.MaxFileSize <= 0 {
		return
	}

	ticker := time.NewTicker(r.config.SizePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-exited:
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					r.logger.Warn("size_check_failed", "path", path, "error", err)
				}
				continue
			}
			if info.Size() < r.config.MaxFileSize {
				continue
			}

			r.logger.Info("size_limit_reached",
				"path", path,
				"size_bytes", info.Size(),
				"limit_bytes", r.config.MaxFileSize)
			r.mu.Lock()
			r.split = true
			r.mu.Unlock()
			if cb := r.config.Callbacks.OnSplit; cb != nil {
				cb(r.config.Channel, info.Size())
			}
			r.terminate(cmd, exited)
			return
		}
	}
}

// terminate sends SIGTERM to the process group and escalates to SIGKILL
// if the process has not exited within the stop grace period.
func (r *Recorder) terminate(cmd *exec.Cmd, exited chan struct{}) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		// Process group may already be gone; try the process directly.
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	go func() {
		select {
		case <-exited:
		case <-time.After(r.config.StopGrace):
			r.logger.Warn("capture_killed", "pid", pid, "grace", r.config.StopGrace)
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		}
	}()
}

// artifactPath computes the next artifact path. The timestamp has one
// second resolution, so restarts within the same second get a numeric
// suffix to keep every generation's artifact distinct. Paths left by an
// earlier run are also skipped.
func (r *Recorder) artifactPath() string {
	stamp := time.Now().Format("2006-01-02_15-04-05")

	r.mu.Lock()
	if stamp == r.lastStamp {
		r.seq++
	} else {
		r.lastStamp = stamp
		r.seq = 0
	}
	seq := r.seq
	r.mu.Unlock()

	name := strings.NewReplacer(
		"{name}", r.config.Channel,
		"{timestamp}", stamp,
		"{ext}", r.config.FileExtension,
	).Replace(r.config.FilenameFormat)
	base := strings.TrimSuffix(name, r.config.FileExtension)

	for {
		candidate := name
		if seq > 0 {
			candidate = fmt.Sprintf("%s_%d%s", base, seq, r.config.FileExtension)
		}
		path := filepath.Join(r.config.OutputDir, candidate)
		if !fileExists(path) {
			return path
		}
		r.mu.Lock()
		r.seq++
		seq = r.seq
		r.mu.Unlock()
	}
}

// openLogFile opens the channel's append-only capture log. Returns nil
// when no logs directory is configured.
func (r *Recorder) openLogFile() (*os.File, error) {
	if r.config.LogsDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(r.config.LogsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	path := filepath.Join(r.config.LogsDir, r.config.Channel+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture log: %w", err)
	}
	return f, nil
}

// pause sleeps for d unless the stop channel closes first. Returns false
// when interrupted by a stop.
func (r *Recorder) pause(d time.Duration, stop chan struct{}) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-stop:
		return false
	case <-time.After(d):
		return true
	}
}

// takeSplit consumes the split flag for the generation that just exited.
func (r *Recorder) takeSplit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.split
	r.split = false
	return s
}

// setFinalState moves the recorder out of running when the supervision
// loop exits.
func (r *Recorder) setFinalState(newState State) {
	r.mu.Lock()
	old := r.state
	r.state = newState
	r.mu.Unlock()

	if old != newState {
		r.notifyStateChange(old, newState)
	}
}

func (r *Recorder) notifyStateChange(old, newState State) {
	r.logger.Info("state_change", "from", old.String(), "to", newState.String())
	if cb := r.config.Callbacks.OnStateChange; cb != nil {
		cb(r.config.Channel, old, newState)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// extractExitCode maps a Wait error to a conventional exit code,
// reporting 128+signal for signaled processes.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	return 1
}
