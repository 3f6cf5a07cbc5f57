package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	// Load .env files into the environment before reading it.
	_ "github.com/joho/godotenv/autoload"
)

// Load builds a Config from environment variables, falling back to defaults.
// Variable names follow the channels-file format of earlier deployments, so
// an existing .env keeps working.
func Load() *Config {
	cfg := DefaultConfig()

	cfg.ChannelsFile = getEnv("CHANNELS_FILE", cfg.ChannelsFile)
	cfg.RecordingsDir = getEnv("RECORDINGS_DIR", cfg.RecordingsDir)
	cfg.LogsDir = getEnv("LOGS_DIR", cfg.LogsDir)

	cfg.FileExtension = getEnv("FILE_EXTENSION", cfg.FileExtension)
	cfg.FilenameFormat = getEnv("FILENAME_FORMAT", cfg.FilenameFormat)

	cfg.StreamlinkPath = getEnv("STREAMLINK_PATH", cfg.StreamlinkPath)
	cfg.URLTemplate = getEnv("STREAM_URL_TEMPLATE", cfg.URLTemplate)
	cfg.StreamQuality = getEnv("STREAM_QUALITY", cfg.StreamQuality)

	cfg.CheckInterval = getDurationEnv("CHECK_INTERVAL", cfg.CheckInterval)
	cfg.ProbeTimeout = getDurationEnv("PROBE_TIMEOUT", cfg.ProbeTimeout)
	cfg.ProbeWorkers = getIntEnv("PROBE_WORKERS", cfg.ProbeWorkers)

	cfg.MaxFileSize = getSizeEnv("MAX_FILE_SIZE", cfg.MaxFileSize)
	cfg.SizePollInterval = getDurationEnv("SIZE_POLL_INTERVAL", cfg.SizePollInterval)
	cfg.MinLifetime = getDurationEnv("MIN_LIFETIME", cfg.MinLifetime)
	cfg.FailureWindow = getDurationEnv("FAILURE_WINDOW", cfg.FailureWindow)
	cfg.RetryDelay = getDurationEnv("RETRY_DELAY", cfg.RetryDelay)
	cfg.SplitDelay = getDurationEnv("SPLIT_DELAY", cfg.SplitDelay)
	cfg.StopGrace = getDurationEnv("STOP_GRACE", cfg.StopGrace)
	cfg.ShutdownGrace = getDurationEnv("SHUTDOWN_GRACE", cfg.ShutdownGrace)

	cfg.Port = getIntEnv("PORT", cfg.Port)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg
}

// ParseFlags loads the environment configuration and applies command-line
// overrides for the observability and diagnostic options.
func ParseFlags() *Config {
	cfg := Load()

	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address")
	flag.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the capture command and exit")
	flag.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	flag.Parse()

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go duration strings ("90s", "3m") and, for
// compatibility with the old integer variables, bare second counts ("90").
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getSizeEnv accepts integer byte counts and, for compatibility with the old
// MAX_FILE_SIZE variable, float values.
func getSizeEnv(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return int64(f)
	}
	return defaultValue
}
