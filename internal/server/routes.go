package server

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/streamvault/streamvault/internal/registry"
)

type addChannelRequest struct {
	Name string `json:"name"`
}

type recordingInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size_bytes"`
	Modified time.Time `json:"modified"`
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	api := s.app.Group("/api")
	api.Get("/channels", s.listChannels)
	api.Post("/channels", s.addChannel)
	api.Delete("/channels/:name", s.removeChannel)
	api.Post("/channels/:name/pause", s.pauseChannel)
	api.Post("/channels/:name/resume", s.resumeChannel)
	api.Get("/recordings", s.listRecordings)
	api.Delete("/recordings/:filename", s.deleteRecording)

	s.app.Get("/recordings/:filename", s.downloadRecording)
}

func (s *Server) listChannels(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"channels": s.registry.StatusList()})
}

func (s *Server) addChannel(c *fiber.Ctx) error {
	var req addChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := s.registry.Add(req.Name); err != nil {
		return channelError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"name": registry.CanonicalName(req.Name),
	})
}

func (s *Server) removeChannel(c *fiber.Ctx) error {
	if err := s.registry.Remove(c.Params("name")); err != nil {
		return channelError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) pauseChannel(c *fiber.Ctx) error {
	if err := s.registry.Pause(c.Params("name")); err != nil {
		return channelError(c, err)
	}
	return c.JSON(fiber.Map{"name": registry.CanonicalName(c.Params("name")), "is_recording": false})
}

func (s *Server) resumeChannel(c *fiber.Ctx) error {
	if err := s.registry.Resume(c.Params("name")); err != nil {
		return channelError(c, err)
	}
	return c.JSON(fiber.Map{"name": registry.CanonicalName(c.Params("name")), "is_recording": true})
}

func (s *Server) listRecordings(c *fiber.Ctx) error {
	entries, err := os.ReadDir(s.recordingsDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("recordings_list_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cannot list recordings"})
	}

	recordings := make([]recordingInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		recordings = append(recordings, recordingInfo{
			Name:     e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].Modified.After(recordings[j].Modified)
	})

	free, err := DiskFree(s.recordingsDir)
	if err != nil {
		free = 0
	}

	return c.JSON(fiber.Map{
		"recordings": recordings,
		"free_bytes": free,
	})
}

func (s *Server) downloadRecording(c *fiber.Ctx) error {
	path, ok := s.recordingPath(c.Params("filename"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "recording not found"})
	}
	return c.Download(path)
}

func (s *Server) deleteRecording(c *fiber.Ctx) error {
	path, ok := s.recordingPath(c.Params("filename"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "recording not found"})
	}
	if err := os.Remove(path); err != nil {
		s.logger.Error("recording_delete_failed", "path", path, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cannot delete recording"})
	}
	s.logger.Info("recording_deleted", "path", path)
	return c.SendStatus(fiber.StatusNoContent)
}

// recordingPath resolves a requested filename inside the recordings
// directory. Base-name only, so traversal attempts never escape it.
func (s *Server) recordingPath(filename string) (string, bool) {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", false
	}
	path := filepath.Join(s.recordingsDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

func channelError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, registry.ErrChannelExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, registry.ErrInvalidName):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, registry.ErrChannelNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
