package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

func sessionKey(c echo.Context) domain.SessionKey {
	return domain.SessionKey{
		AppName:   c.Param("app_name"),
		UserID:    c.Param("user_id"),
		SessionID: c.Param("session_id"),
	}
}

// CreateSession creates a session, generating its id when the path has none.
// POST /apps/:app_name/users/:user_id/sessions[/:session_id]
func (h *Handler) CreateSession(c echo.Context) error {
	var req domain.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
	}

	session, err := h.service.CreateSession(c.Request().Context(), sessionKey(c), req.State)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// GetSession returns a session with its state.
// GET /apps/:app_name/users/:user_id/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.service.GetSession(c.Request().Context(), sessionKey(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// ListSessions lists a user's sessions.
// GET /apps/:app_name/users/:user_id/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	sessions, err := h.service.ListSessions(c.Request().Context(), c.Param("app_name"), c.Param("user_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sessions)
}

// DeleteSession deletes a session.
// DELETE /apps/:app_name/users/:user_id/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.service.DeleteSession(c.Request().Context(), sessionKey(c)); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetSessionMessages retrieves the stored conversation of a session.
// GET /apps/:app_name/users/:user_id/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}

	messages, err := h.service.GetMessages(c.Request().Context(), sessionKey(c), limit)
	if err != nil {
		return writeError(c, err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
		"has_more": len(messages) == limit,
	})
}
