package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/voicecart/internal/liststore"
	"github.com/foxxcyber/voicecart/internal/models"
	"github.com/foxxcyber/voicecart/internal/services"
	"github.com/foxxcyber/voicecart/internal/session"
)

// ItemMutationResponse reports a direct list mutation
type ItemMutationResponse struct {
	Change      models.ListChange            `json:"change"`
	Items       []models.ListItem            `json:"items"`
	Substitutes []models.SuggestionCandidate `json:"substitutes,omitempty"`
}

// HandleUtterance interprets a finalized utterance and applies it to the list
func (h *Handler) HandleUtterance(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var req models.UtteranceRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return Error(c, fiber.StatusBadRequest, "text is required")
	}
	if req.Locale == "" {
		req.Locale = h.cfg.DefaultLocale
	}

	outcome, err := s.HandleUtterance(c.Context(), req.Text, req.Locale)
	if err != nil {
		if errors.Is(err, session.ErrSessionClosed) {
			return Error(c, fiber.StatusServiceUnavailable, "session closed")
		}
		return Error(c, fiber.StatusRequestTimeout, "utterance was not processed")
	}

	return Success(c, outcome)
}

// GetList returns the current list, optionally grouped by category
func (h *Handler) GetList(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	if c.Query("group") == "category" {
		return Success(c, s.Groups())
	}
	items := s.Items()
	return SuccessWithMeta(c, items, len(items), 0)
}

// AddItem adds an item directly
func (h *Handler) AddItem(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var req models.AddListItemRequest
	if err := c.BodyParser(&req); err != nil {
		return Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	change, err := s.AddItem(req.Name, req.Quantity)
	if err != nil {
		return mutationError(c, err)
	}

	status := fiber.StatusOK
	if change.Kind == models.ChangeCreated {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(APIResponse{
		Success: true,
		Data:    ItemMutationResponse{Change: change, Items: s.Items()},
	})
}

// IncItem adds one to an item's quantity
func (h *Handler) IncItem(c *fiber.Ctx) error {
	return h.mutateByID(c, (*session.Session).IncQty)
}

// DecItem subtracts one from an item's quantity
func (h *Handler) DecItem(c *fiber.Ctx) error {
	return h.mutateByID(c, (*session.Session).DecQty)
}

// ToggleItem flips an item's bought flag
func (h *Handler) ToggleItem(c *fiber.Ctx) error {
	return h.mutateByID(c, (*session.Session).ToggleBought)
}

// DeleteItem removes an item and returns substitutes for it
func (h *Handler) DeleteItem(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	change, subs, err := s.Delete(c.Params("id"))
	if err != nil {
		return mutationError(c, err)
	}
	return Success(c, ItemMutationResponse{Change: change, Items: s.Items(), Substitutes: subs})
}

func (h *Handler) mutateByID(c *fiber.Ctx, fn func(*session.Session, string) (models.ListChange, error)) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	if id == "" {
		return Error(c, fiber.StatusBadRequest, "invalid item id")
	}

	change, err := fn(s, id)
	if err != nil {
		return mutationError(c, err)
	}
	return Success(c, ItemMutationResponse{Change: change, Items: s.Items()})
}

func mutationError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, liststore.ErrItemNotFound):
		return Error(c, fiber.StatusNotFound, "item not found in list")
	case errors.Is(err, liststore.ErrEmptyItemName), errors.Is(err, services.ErrEmptyItemName):
		return Error(c, fiber.StatusBadRequest, "name is required")
	case errors.Is(err, services.ErrImplausibleItem):
		return Error(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		return Error(c, fiber.StatusInternalServerError, "failed to update list")
	}
}
