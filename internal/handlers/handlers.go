package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/voicecart/internal/config"
	"github.com/foxxcyber/voicecart/internal/logger"
	"github.com/foxxcyber/voicecart/internal/middleware"
	"github.com/foxxcyber/voicecart/internal/session"
)

// Sessions resolves a user's live session
type Sessions interface {
	Get(userID string) (*session.Session, error)
}

// Handler holds all handler dependencies
type Handler struct {
	sessions Sessions
	cfg      *config.Config
	log      *logger.Logger
}

// New creates a new Handler instance
func New(sessions Sessions, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		cfg:      cfg,
		log:      logger.OrNop(log).With("component", "http"),
	}
}

// Register mounts every route on app
func (h *Handler) Register(app *fiber.App) {
	app.Get("/health", h.Health)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/anonymous", h.AnonymousSignIn)
	auth.Post("/refresh", middleware.AuthRequired(h.cfg), h.RefreshToken)

	authed := middleware.AuthRequired(h.cfg)

	api.Post("/utterances", authed, h.HandleUtterance)

	list := api.Group("/list", authed)
	list.Get("/", h.GetList)
	list.Post("/items", h.AddItem)
	list.Post("/items/:id/inc", h.IncItem)
	list.Post("/items/:id/dec", h.DecItem)
	list.Post("/items/:id/toggle", h.ToggleItem)
	list.Delete("/items/:id", h.DeleteItem)

	suggestions := api.Group("/suggestions", authed)
	suggestions.Get("/", h.GetSuggestions)
	suggestions.Get("/substitutes", h.GetSubstitutes)
	suggestions.Post("/accept", h.AcceptSuggestion)
	suggestions.Post("/reject", h.RejectSuggestion)

	history := api.Group("/history", authed)
	history.Get("/", h.GetHistory)
	history.Delete("/", h.ResetHistory)

	sync := api.Group("/sync", authed)
	sync.Post("/start", h.StartSync)
	sync.Post("/stop", h.StopSync)
	sync.Get("/status", h.GetSyncStatus)

	archives := api.Group("/archives", authed)
	archives.Get("/", h.ListArchives)
	archives.Post("/", h.CreateArchive)
	archives.Get("/:id/url", h.GetArchiveURL)
}

// Health reports liveness
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// ErrorHandler is a custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	// Default to 500
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	// Check if it's a Fiber error
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}

// APIResponse is a standard API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta describes collection responses
type Meta struct {
	Total int `json:"total"`
	Limit int `json:"limit,omitempty"`
}

// Success returns a successful response
func Success(c *fiber.Ctx, data interface{}) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
	})
}

// SuccessWithMeta returns a successful collection response
func SuccessWithMeta(c *fiber.Ctx, data interface{}, total, limit int) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Total: total,
			Limit: limit,
		},
	})
}

// Error returns an error response
func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}

// session resolves the caller's session
func (h *Handler) session(c *fiber.Ctx) (*session.Session, error) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	s, err := h.sessions.Get(userID)
	if err != nil {
		if errors.Is(err, session.ErrSessionClosed) {
			return nil, fiber.NewError(fiber.StatusServiceUnavailable, "shutting down")
		}
		h.log.Error("failed to open session", "user_id", userID, "error", err)
		return nil, fiber.NewError(fiber.StatusInternalServerError, "failed to open session")
	}
	return s, nil
}
