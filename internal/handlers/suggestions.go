package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/voicecart/internal/models"
	"github.com/foxxcyber/voicecart/internal/services"
)

// GetSuggestions returns ranked suggestions for the caller's list
func (h *Handler) GetSuggestions(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	suggestions := s.Suggestions(c.Context())
	return SuccessWithMeta(c, suggestions, len(suggestions), h.cfg.SuggestionCap)
}

// GetSubstitutes returns alternatives for one item
func (h *Handler) GetSubstitutes(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	item := c.Query("item")
	if services.CanonicalName(item) == "" {
		return Error(c, fiber.StatusBadRequest, "item is required")
	}
	subs := s.SubstitutesFor(item)
	if subs == nil {
		subs = []models.SuggestionCandidate{}
	}
	return Success(c, subs)
}

// AcceptSuggestion records the acceptance and adds the item
func (h *Handler) AcceptSuggestion(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var req models.SuggestionFeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	change, err := s.AcceptSuggestion(req.Item)
	if err != nil {
		return mutationError(c, err)
	}
	return Success(c, ItemMutationResponse{Change: change, Items: s.Items()})
}

// RejectSuggestion records the rejection
func (h *Handler) RejectSuggestion(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var req models.SuggestionFeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := s.RejectSuggestion(req.Item); err != nil {
		return mutationError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "suggestion rejected",
	})
}

// GetHistory returns the caller's history ledger
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	hist := s.History()
	return SuccessWithMeta(c, hist, len(hist), 0)
}

// ResetHistory clears the caller's history ledger
func (h *Handler) ResetHistory(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	s.ResetHistory()
	return c.JSON(fiber.Map{
		"success": true,
		"message": "history cleared",
	})
}
