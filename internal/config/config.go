// Package config provides configuration management for streamvault.
package config

import (
	"fmt"
	"time"
)

// Config holds all configuration options for the recording daemon.
type Config struct {
	// Registry and storage
	ChannelsFile  string `json:"channels_file"`
	RecordingsDir string `json:"recordings_dir"`
	LogsDir       string `json:"logs_dir"`

	// Artifact naming
	FileExtension  string `json:"file_extension"`
	FilenameFormat string `json:"filename_format"` // {name}, {timestamp}, {ext}

	// Capture tool
	StreamlinkPath string `json:"streamlink_path"`
	URLTemplate    string `json:"url_template"` // %s is the channel name
	StreamQuality  string `json:"stream_quality"`

	// Reconciliation
	CheckInterval time.Duration `json:"check_interval"`
	ProbeTimeout  time.Duration `json:"probe_timeout"`
	ProbeWorkers  int           `json:"probe_workers"`

	// Supervision
	MaxFileSize      int64         `json:"max_file_size"` // bytes; split above this
	SizePollInterval time.Duration `json:"size_poll_interval"`
	MinLifetime      time.Duration `json:"min_lifetime"`
	FailureWindow    time.Duration `json:"failure_window"`
	RetryDelay       time.Duration `json:"retry_delay"`
	SplitDelay       time.Duration `json:"split_delay"`
	StopGrace        time.Duration `json:"stop_grace"`
	ShutdownGrace    time.Duration `json:"shutdown_grace"`

	// Control surface / observability
	Port        int    `json:"port"`
	MetricsAddr string `json:"metrics_addr"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`
	Verbose     bool   `json:"verbose"`

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd"`
	SkipPreflight bool `json:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ChannelsFile:  "channels.json",
		RecordingsDir: "recordings",
		LogsDir:       "logs",

		FileExtension:  ".ts",
		FilenameFormat: "{name}_{timestamp}{ext}",

		StreamlinkPath: "streamlink",
		URLTemplate:    "https://twitch.tv/%s",
		StreamQuality:  "best",

		CheckInterval: 60 * time.Second,
		ProbeTimeout:  10 * time.Second,
		ProbeWorkers:  5,

		MaxFileSize:      int64(18 * 1024 * 1024 * 1024 / 10), // 1.8 GiB
		SizePollInterval: 5 * time.Second,
		MinLifetime:      20 * time.Second,
		FailureWindow:    180 * time.Second,
		RetryDelay:       5 * time.Second,
		SplitDelay:       1 * time.Second,
		StopGrace:        5 * time.Second,
		ShutdownGrace:    10 * time.Second,

		Port:        5000,
		MetricsAddr: "0.0.0.0:9105",
		LogFormat:   "json",
		LogLevel:    "info",
	}
}

// ListenAddr returns the control-surface listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
