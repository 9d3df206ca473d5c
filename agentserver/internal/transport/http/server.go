// Package http provides the HTTP server implementation for the agent server.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/couchrishi/sahabat/agentserver/internal/service"
	"github.com/couchrishi/sahabat/agentserver/internal/transport/http/api"
)

// NewServer creates and configures the agent server. It is called by the
// gateway only, so CORS is not enabled.
func NewServer(svc *service.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Handlers
	handler := api.NewHandler(svc)
	handler.RegisterRoutes(e)

	return e
}
