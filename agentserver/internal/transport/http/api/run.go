package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
	"github.com/couchrishi/sahabat/internal/sse"
)

// eventStream writes agent events as SSE. Headers go out with the first event
// so that failures before the run starts can still be answered with a status code.
type eventStream struct {
	c       echo.Context
	started bool
}

func (s *eventStream) start() {
	if s.started {
		return
	}
	s.started = true
	header := s.c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	s.c.Response().WriteHeader(http.StatusOK)
}

func (s *eventStream) Send(ev *domain.Event) error {
	s.start()
	if err := sse.WriteJSON(s.c.Response(), ev); err != nil {
		return err
	}
	s.c.Response().Flush()
	return nil
}

func (s *eventStream) SendError(message string) {
	s.start()
	_, _ = s.c.Response().Write(sse.ErrorEvent(message))
	s.c.Response().Flush()
}

// RunSSE runs one turn and streams its events.
// POST /run_sse
func (h *Handler) RunSSE(c echo.Context) error {
	var req domain.RunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
	}

	stream := &eventStream{c: c}
	if _, err := h.service.Run(c.Request().Context(), req, stream.Send); err != nil {
		if !stream.started {
			return writeError(c, err)
		}
		// Can't change status code after the stream started.
		stream.SendError(err.Error())
	}
	return nil
}

// Run runs one turn and returns all final events at once.
// POST /run
func (h *Handler) Run(c echo.Context) error {
	var req domain.RunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
	}
	req.Streaming = false

	events := []*domain.Event{}
	_, err := h.service.Run(c.Request().Context(), req, func(ev *domain.Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

// GetRun returns a run.
// GET /runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// GetRunEvents retrieves the persisted trace of a run.
// GET /runs/:run_id/events
func (h *Handler) GetRunEvents(c echo.Context) error {
	runID := c.Param("run_id")
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	if t := c.QueryParam("types"); t != "" {
		types = strings.Split(t, ",")
	}

	events, err := h.service.GetRunEvents(c.Request().Context(), runID, afterTs, types, limit)
	if err != nil {
		return writeError(c, err)
	}
	if events == nil {
		events = []domain.TraceEvent{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
