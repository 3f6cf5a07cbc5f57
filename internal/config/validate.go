package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.ChannelsFile == "" {
		errs = append(errs, ValidationError{Field: "channels_file", Message: "must not be empty"})
	}
	if cfg.RecordingsDir == "" {
		errs = append(errs, ValidationError{Field: "recordings_dir", Message: "must not be empty"})
	}

	// The per-generation timestamp is what guarantees artifact uniqueness
	// across restarts and splits.
	if !strings.Contains(cfg.FilenameFormat, "{name}") {
		errs = append(errs, ValidationError{Field: "filename_format", Message: "must contain {name}"})
	}
	if !strings.Contains(cfg.FilenameFormat, "{timestamp}") {
		errs = append(errs, ValidationError{Field: "filename_format", Message: "must contain {timestamp}"})
	}

	if !strings.Contains(cfg.URLTemplate, "%s") {
		errs = append(errs, ValidationError{Field: "url_template", Message: "must contain %s for the channel name"})
	}

	if cfg.CheckInterval <= 0 {
		errs = append(errs, ValidationError{Field: "check_interval", Message: "must be positive"})
	}
	if cfg.ProbeTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "probe_timeout", Message: "must be positive"})
	}
	if cfg.ProbeWorkers < 1 {
		errs = append(errs, ValidationError{Field: "probe_workers", Message: "must be at least 1"})
	}

	if cfg.MaxFileSize <= 0 {
		errs = append(errs, ValidationError{Field: "max_file_size", Message: "must be positive"})
	}
	if cfg.SizePollInterval <= 0 {
		errs = append(errs, ValidationError{Field: "size_poll_interval", Message: "must be positive"})
	}
	if cfg.MinLifetime <= 0 {
		errs = append(errs, ValidationError{Field: "min_lifetime", Message: "must be positive"})
	}
	if cfg.FailureWindow < cfg.MinLifetime {
		errs = append(errs, ValidationError{Field: "failure_window", Message: "must be >= min_lifetime"})
	}
	if cfg.StopGrace <= 0 {
		errs = append(errs, ValidationError{Field: "stop_grace", Message: "must be positive"})
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{Field: "port", Message: fmt.Sprintf("must be 1-65535 (got %d)", cfg.Port)})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{Field: "log_format", Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat)})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
