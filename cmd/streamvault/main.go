// Package main provides the streamvault daemon entry point.
//
// streamvault supervises per-channel live stream recordings: it probes
// tracked channels for availability, runs a streamlink capture process
// for each live channel, splits recordings at a size limit, and exposes
// an HTTP control surface plus Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/logging"
	"github.com/streamvault/streamvault/internal/orchestrator"
	"github.com/streamvault/streamvault/internal/process"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/streamvault
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("streamvault %s\n", version)
			return 0
		}
	}

	cfg := config.ParseFlags()

	logger := logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Handle --print-cmd mode
	if cfg.PrintCmd {
		printCaptureCommand(cfg)
		return 0
	}

	logger.Info("starting",
		"version", version,
		"channels_file", cfg.ChannelsFile,
		"recordings_dir", cfg.RecordingsDir,
		"check_interval", cfg.CheckInterval,
		"quality", cfg.StreamQuality,
		"metrics_addr", cfg.MetricsAddr,
	)

	orch := orchestrator.New(cfg, logger)
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("daemon_failed", "error", err)
		return 1
	}

	return 0
}

// printCaptureCommand prints the streamlink command that would be
// generated for a sample channel.
func printCaptureCommand(cfg *config.Config) {
	runner := process.NewStreamlinkRunner(&process.StreamlinkConfig{
		BinaryPath:   cfg.StreamlinkPath,
		URLTemplate:  cfg.URLTemplate,
		Quality:      cfg.StreamQuality,
		ProbeTimeout: cfg.ProbeTimeout,
	})

	fmt.Println("# streamlink command that would be run per live channel:")
	fmt.Println()
	fmt.Println(runner.CommandString("CHANNEL", cfg.RecordingsDir+"/CHANNEL_TIMESTAMP"+cfg.FileExtension))
}
