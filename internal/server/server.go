// Package server exposes the HTTP control surface: channel management,
// recording listings and downloads.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/streamvault/streamvault/internal/registry"
)

// Server is the control-surface HTTP server.
type Server struct {
	app           *fiber.App
	registry      *registry.Registry
	recordingsDir string
	logger        *slog.Logger
	addr          string
}

// New creates the control server. Routes are registered immediately;
// nothing listens until Start.
func New(addr string, reg *registry.Registry, recordingsDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "streamvault",
		ServerHeader:          "streamvault",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Minute, // downloads can be large
		IdleTimeout:           30 * time.Second,
	})

	s := &Server{
		app:           app,
		registry:      reg,
		recordingsDir: recordingsDir,
		logger:        logger,
		addr:          addr,
	}
	s.routes()
	return s
}

// Start begins serving in a goroutine. Returns immediately; use
// Shutdown to stop.
func (s *Server) Start() {
	s.logger.Info("control_server_starting", "addr", s.addr)

	go func() {
		if err := s.app.Listen(s.addr); err != nil {
			s.logger.Error("control_server_error", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("control_server_shutting_down")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
