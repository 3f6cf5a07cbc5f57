// Package process builds and probes streamlink capture processes.
package process

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// StreamlinkConfig holds configuration for streamlink invocations.
type StreamlinkConfig struct {
	// BinaryPath is the path to the streamlink binary.
	BinaryPath string

	// URLTemplate produces the stream address for a channel name.
	// It must contain a single %s placeholder.
	URLTemplate string

	// Quality is the stream quality selector passed to streamlink.
	Quality string

	// ExtraArgs are additional arguments appended to capture commands.
	ExtraArgs []string

	// ProbeTimeout bounds the probe-mode invocation.
	ProbeTimeout time.Duration
}

// DefaultStreamlinkConfig returns a StreamlinkConfig with sensible defaults.
func DefaultStreamlinkConfig() *StreamlinkConfig {
	return &StreamlinkConfig{
		BinaryPath:   "streamlink",
		URLTemplate:  "https://twitch.tv/%s",
		Quality:      "best",
		ProbeTimeout: 10 * time.Second,
	}
}

// StreamlinkRunner builds capture commands and probes stream availability.
type StreamlinkRunner struct {
	config *StreamlinkConfig
}

// NewStreamlinkRunner creates a new runner with the given configuration.
func NewStreamlinkRunner(cfg *StreamlinkConfig) *StreamlinkRunner {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &StreamlinkRunner{config: cfg}
}

// Name returns "streamlink".
func (r *StreamlinkRunner) Name() string {
	return "streamlink"
}

// StreamURL returns the stream address for a channel name.
func (r *StreamlinkRunner) StreamURL(channel string) string {
	return fmt.Sprintf(r.config.URLTemplate, channel)
}

// BuildCaptureCommand creates an exec.Cmd that records the channel's stream
// to outputPath until the stream ends or the process is terminated.
func (r *StreamlinkRunner) BuildCaptureCommand(ctx context.Context, channel, outputPath string) (*exec.Cmd, error) {
	if channel == "" {
		return nil, fmt.Errorf("empty channel name")
	}
	if outputPath == "" {
		return nil, fmt.Errorf("empty output path")
	}

	args := r.captureArgs(channel, outputPath)
	return exec.CommandContext(ctx, r.config.BinaryPath, args...), nil
}

// captureArgs builds the argument list for a capture invocation.
func (r *StreamlinkRunner) captureArgs(channel, outputPath string) []string {
	args := []string{r.StreamURL(channel), r.config.Quality, "-o", outputPath}
	return append(args, r.config.ExtraArgs...)
}

// CommandString returns the capture command line for diagnostic output.
func (r *StreamlinkRunner) CommandString(channel, outputPath string) string {
	parts := append([]string{r.config.BinaryPath}, r.captureArgs(channel, outputPath)...)
	return strings.Join(parts, " ")
}

// Available checks if the streamlink binary can be found.
func (r *StreamlinkRunner) Available() bool {
	_, err := exec.LookPath(r.config.BinaryPath)
	return err == nil
}

// Config returns the runner configuration.
func (r *StreamlinkRunner) Config() *StreamlinkConfig {
	return r.config
}
