// Package api provides the HTTP handlers of the agent server.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
	store "github.com/couchrishi/sahabat/agentserver/internal/repository"
	"github.com/couchrishi/sahabat/agentserver/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the runner routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/list-apps", h.ListApps)

	// Sessions
	e.POST("/apps/:app_name/users/:user_id/sessions", h.CreateSession)
	e.POST("/apps/:app_name/users/:user_id/sessions/:session_id", h.CreateSession)
	e.GET("/apps/:app_name/users/:user_id/sessions", h.ListSessions)
	e.GET("/apps/:app_name/users/:user_id/sessions/:session_id", h.GetSession)
	e.DELETE("/apps/:app_name/users/:user_id/sessions/:session_id", h.DeleteSession)
	e.GET("/apps/:app_name/users/:user_id/sessions/:session_id/messages", h.GetSessionMessages)

	// Turns
	e.POST("/run_sse", h.RunSSE)
	e.POST("/run", h.Run)
	e.GET("/runs/:run_id", h.GetRun)
	e.GET("/runs/:run_id/events", h.GetRunEvents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// ListApps returns the served apps.
// GET /list-apps
func (h *Handler) ListApps(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.ListApps())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAppNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	return c.JSON(statusFor(err), domain.ErrorResponse{Error: err.Error()})
}
