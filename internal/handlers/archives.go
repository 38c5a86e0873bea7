package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/voicecart/internal/models"
	"github.com/foxxcyber/voicecart/internal/session"
)

const defaultArchiveLimit = 20

// CreateArchive stores a point-in-time copy of the caller's list
func (h *Handler) CreateArchive(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var req models.ArchiveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return Error(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	archive, err := s.Archive(c.Context(), req.Reason)
	if err != nil {
		h.log.Error("archive failed", "user_id", s.UserID(), "error", err)
		return Error(c, fiber.StatusInternalServerError, "failed to archive list")
	}

	return c.Status(fiber.StatusCreated).JSON(APIResponse{
		Success: true,
		Data:    archive,
	})
}

// ListArchives returns the caller's archives, newest first
func (h *Handler) ListArchives(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	limit := c.QueryInt("limit", defaultArchiveLimit)
	if limit < 1 || limit > 100 {
		limit = defaultArchiveLimit
	}

	archives, err := s.Archives(c.Context(), limit)
	if err != nil {
		h.log.Error("list archives failed", "user_id", s.UserID(), "error", err)
		return Error(c, fiber.StatusInternalServerError, "failed to list archives")
	}
	if archives == nil {
		archives = []models.Archive{}
	}
	return SuccessWithMeta(c, archives, len(archives), limit)
}

// GetArchiveURL returns a presigned download URL for one archive
func (h *Handler) GetArchiveURL(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	url, err := s.ArchiveURL(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, session.ErrNoObjectStorage) {
			return Error(c, fiber.StatusServiceUnavailable, "archive storage is not configured")
		}
		h.log.Error("archive url failed", "user_id", s.UserID(), "error", err)
		return Error(c, fiber.StatusInternalServerError, "failed to generate download url")
	}
	return Success(c, fiber.Map{"url": url})
}
