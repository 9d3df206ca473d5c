// Package http provides the gateway's HTTP server.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/couchrishi/sahabat/gateway/internal/config"
	"github.com/couchrishi/sahabat/gateway/internal/hub"
	"github.com/couchrishi/sahabat/gateway/internal/proxy"
	"github.com/couchrishi/sahabat/gateway/internal/ws"
)

// Server is the public gateway server.
type Server struct {
	echo   *echo.Echo
	hub    *hub.Hub
	agent  *proxy.Client
	logger *slog.Logger
}

// NewServer creates the gateway server and registers its routes.
func NewServer(cfg *config.Config, h *hub.Hub, agent *proxy.Client, wsServer *ws.Server, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.CORSAllowOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	s := &Server{
		echo:   e,
		hub:    h,
		agent:  agent,
		logger: logger,
	}

	limited := rateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Register routes
	e.GET("/", s.handleRoot)
	e.GET("/health", s.handleHealth)
	e.POST("/chat", s.handleChat, limited)
	e.POST("/session/:app_name/users/:user_id/sessions/:session_id", s.handleCreateSession, limited)
	e.GET("/ws", wsServer.HandleWebSocket, limited)

	return s
}

// rateLimiter limits each client IP to rps requests per second.
func rateLimiter(rps float64, burst int) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(rps),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, detail("unable to identify client"))
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, detail("rate limit exceeded"))
		},
	})
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets tests drive the server without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func detail(message string) map[string]string {
	return map[string]string{"detail": message}
}

// handleRoot handles GET /.
func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Sahabat AI Gateway is running."})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"connections": s.hub.ConnectionCount(),
		"sessions":    s.hub.SessionCount(),
	})
}

// handleChat relays a run request to the agent server as an event stream.
// POST /chat
func (s *Server) handleChat(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil || !json.Valid(body) {
		return c.JSON(http.StatusBadRequest, detail("request body must be JSON"))
	}

	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	if err := s.agent.Relay(c.Request().Context(), body, c.Response(), c.Response().Flush); err != nil {
		s.logger.Warn("chat relay ended with error", "error", err)
	}
	return nil
}

// handleCreateSession proxies session creation to the agent server.
// POST /session/:app_name/users/:user_id/sessions/:session_id
func (s *Server) handleCreateSession(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, detail("failed to read request body"))
	}

	resp, err := s.agent.CreateSession(c.Request().Context(),
		c.Param("app_name"), c.Param("user_id"), c.Param("session_id"), body)
	if err != nil {
		var statusErr *proxy.StatusError
		if errors.As(err, &statusErr) {
			return c.JSON(statusErr.Status, detail(statusErr.Detail))
		}
		s.logger.Error("session proxy failed", "error", err)
		return c.JSON(http.StatusInternalServerError, detail(err.Error()))
	}

	return c.JSONBlob(resp.Status, resp.Body)
}
