package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/foxxcyber/voicecart/internal/middleware"
)

// AuthResponse is returned by the token endpoints
type AuthResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// AnonymousSignIn issues a token for a fresh anonymous user
func (h *Handler) AnonymousSignIn(c *fiber.Ctx) error {
	userID := uuid.NewString()
	token, err := middleware.IssueToken(h.cfg, userID, true)
	if err != nil {
		h.log.Error("failed to sign token", "error", err)
		return Error(c, fiber.StatusInternalServerError, "failed to generate token")
	}

	h.log.Info("anonymous sign-in", "user_id", userID)
	return c.Status(fiber.StatusCreated).JSON(APIResponse{
		Success: true,
		Data:    AuthResponse{Token: token, UserID: userID},
	})
}

// RefreshToken generates a new JWT token for the caller
func (h *Handler) RefreshToken(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	anonymous, _ := c.Locals("user_anonymous").(bool)

	token, err := middleware.IssueToken(h.cfg, userID, anonymous)
	if err != nil {
		return Error(c, fiber.StatusInternalServerError, "failed to generate token")
	}
	return Success(c, AuthResponse{Token: token, UserID: userID})
}
