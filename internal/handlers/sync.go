package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/voicecart/internal/syncer"
)

// StartSync enables remote mirroring for the caller's list
func (h *Handler) StartSync(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	if err := s.StartSync(c.Context()); err != nil {
		if errors.Is(err, syncer.ErrNoRemote) {
			return Error(c, fiber.StatusServiceUnavailable, "remote sync is not configured")
		}
		// Remote failures are reported through the status, not as a failed request
		h.log.Warn("sync start failed", "user_id", s.UserID(), "error", err)
	}
	return Success(c, s.SyncStatus())
}

// StopSync disables remote mirroring
func (h *Handler) StopSync(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	s.StopSync()
	return Success(c, s.SyncStatus())
}

// GetSyncStatus reports the sync indicator
func (h *Handler) GetSyncStatus(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return Success(c, s.SyncStatus())
}
