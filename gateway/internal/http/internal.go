package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/couchrishi/sahabat/gateway/internal/hub"
)

// InternalServer serves the agent server's notification endpoint. It listens
// on its own port so nothing outside the deployment can reach it.
type InternalServer struct {
	echo   *echo.Echo
	hub    *hub.Hub
	logger *slog.Logger
}

// NewInternalServer creates the internal HTTP server.
func NewInternalServer(h *hub.Hub, logger *slog.Logger) *InternalServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &InternalServer{
		echo:   e,
		hub:    h,
		logger: logger,
	}

	e.POST("/internal/send", s.handleSend)
	e.GET("/health", s.handleHealth)

	return s
}

// Start starts the internal HTTP server.
func (s *InternalServer) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *InternalServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *InternalServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// SendRequest represents the request body for POST /internal/send.
type SendRequest struct {
	SessionID string                 `json:"session_id"`
	Event     map[string]interface{} `json:"event"`
}

// SendResponse represents the response for POST /internal/send.
type SendResponse struct {
	OK        bool `json:"ok"`
	Delivered bool `json:"delivered"`
}

func (s *InternalServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// handleSend forwards agent server notifications to WebSocket clients.
func (s *InternalServer) handleSend(c echo.Context) error {
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}

	if req.Event == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "event is required"})
	}

	if _, ok := req.Event["ts"]; !ok {
		req.Event["ts"] = time.Now().UnixMilli()
	}

	hasConnections := s.hub.HasActiveConnections(req.SessionID)

	if err := s.hub.BroadcastJSON(req.SessionID, req.Event); err != nil {
		s.logger.Error("failed to broadcast event", "session_id", req.SessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to broadcast event"})
	}

	s.logger.Info("notification sent",
		"session_id", req.SessionID,
		"type", req.Event["type"],
		"delivered", hasConnections)

	return c.JSON(http.StatusOK, SendResponse{
		OK:        true,
		Delivered: hasConnections,
	})
}
