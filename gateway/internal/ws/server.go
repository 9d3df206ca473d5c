// Package ws serves the gateway's WebSocket chat endpoint.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/couchrishi/sahabat/gateway/internal/config"
	"github.com/couchrishi/sahabat/gateway/internal/hub"
	"github.com/couchrishi/sahabat/gateway/internal/protocol"
	"github.com/couchrishi/sahabat/gateway/internal/proxy"
	"github.com/couchrishi/sahabat/internal/agentapi"
	"github.com/couchrishi/sahabat/internal/sse"
)

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	agent    *proxy.Client
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, agent *proxy.Client, logger *slog.Logger) *Server {
	origins := make(map[string]bool, len(cfg.CORSAllowOrigins))
	for _, o := range cfg.CORSAllowOrigins {
		origins[o] = true
	}
	return &Server{
		cfg:    cfg,
		hub:    h,
		agent:  agent,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Non-browser clients send no Origin.
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
// GET /ws
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", "error", err)
		return nil
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	// Chat turns in flight end with the connection.
	ctx, cancel := context.WithCancel(context.Background())

	go s.writePump(conn)
	go s.readPump(ctx, cancel, conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, conn *hub.Connection) {
	defer func() {
		cancel()
		s.hub.Unregister(conn)
		conn.Close()
	}()

	_ = conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", "conn_id", conn.ID, "error", err)
			}
			return
		}

		s.handleMessage(ctx, conn, message)
	}
}

// writePump drains the connection's send queue and keeps it alive with pings.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			if !ok {
				// Hub closed the queue.
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{}, s.cfg.WriteTimeout)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message, s.cfg.WriteTimeout); err != nil {
				s.logger.Warn("failed to write message", "conn_id", conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil, s.cfg.WriteTimeout); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(ctx context.Context, conn *hub.Connection, data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch baseMsg.Type {
	case protocol.TypeHello:
		s.handleHello(conn, data)
	case protocol.TypeChat:
		s.handleChat(ctx, conn, data)
	default:
		s.sendError(conn, baseMsg.RequestID, protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleHello binds the connection to a session.
func (s *Server) handleHello(conn *hub.Connection, data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid hello message")
		return
	}
	if msg.SessionID == "" {
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeInvalidMessage, "session_id is required")
		return
	}

	if err := s.hub.BindSession(conn, msg.SessionID); err != nil {
		s.logger.Debug("hello on closed connection", "conn_id", conn.ID, "error", err)
		return
	}

	s.send(conn, protocol.HelloAckMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeHelloAck,
			Ts:        time.Now().UnixMilli(),
			RequestID: msg.RequestID,
			SessionID: msg.SessionID,
		},
	})

	s.logger.Info("hello handshake completed", "conn_id", conn.ID, "session_id", msg.SessionID)
}

// handleChat runs one turn on the agent server and relays its events.
func (s *Server) handleChat(ctx context.Context, conn *hub.Connection, data []byte) {
	var msg protocol.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid chat message")
		return
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = s.hub.SessionOf(conn)
	}
	if sessionID == "" || msg.UserID == "" {
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeInvalidMessage, "user_id and session_id are required")
		return
	}
	text, ok := agentapi.LastUserText(msg.Messages)
	if !ok {
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeInvalidMessage, "no user message")
		return
	}

	body, err := json.Marshal(agentapi.NewTextRequest(msg.AppName, msg.UserID, sessionID, text))
	if err != nil {
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeInvalidMessage, err.Error())
		return
	}

	// Relay off the read loop so pings and further messages are still handled.
	go s.relay(ctx, conn, msg.RequestID, sessionID, body)
}

func (s *Server) relay(ctx context.Context, conn *hub.Connection, requestID, sessionID string, body []byte) {
	stream, err := s.agent.OpenRunStream(ctx, body)
	if err != nil {
		message := err.Error()
		var statusErr *proxy.StatusError
		if errors.As(err, &statusErr) {
			message = statusErr.Detail
		}
		s.logger.Warn("chat turn failed", "session_id", sessionID, "error", message)
		s.sendError(conn, requestID, protocol.ErrorCodeUpstreamFail, message)
		return
	}
	defer stream.Close()

	errStop := errors.New("agent error")
	err = sse.Parse(stream, func(ev sse.Event) error {
		var parsed agentapi.Event
		if json.Unmarshal([]byte(ev.Data), &parsed) == nil && parsed.Error != "" {
			s.sendError(conn, requestID, protocol.ErrorCodeAgentError, parsed.Error)
			return errStop
		}

		raw := json.RawMessage(ev.Data)
		if !json.Valid(raw) {
			raw, _ = json.Marshal(ev.Data)
		}
		return s.send(conn, protocol.EventMessage{
			BaseMessage: protocol.BaseMessage{
				Type:      protocol.TypeEvent,
				Ts:        time.Now().UnixMilli(),
				RequestID: requestID,
				SessionID: sessionID,
			},
			Data: raw,
		})
	})
	switch {
	case errors.Is(err, errStop):
		return
	case err != nil:
		if ctx.Err() == nil {
			s.sendError(conn, requestID, protocol.ErrorCodeUpstreamFail, "Agent service connection error: "+err.Error())
		}
		return
	}

	s.send(conn, protocol.DoneMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeDone,
			Ts:        time.Now().UnixMilli(),
			RequestID: requestID,
			SessionID: sessionID,
		},
	})
}

func (s *Server) send(conn *hub.Connection, v interface{}) error {
	if err := s.hub.SendJSONToConnection(conn, v); err != nil {
		s.logger.Warn("failed to queue message", "conn_id", conn.ID, "error", err)
		return err
	}
	return nil
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, requestID, code, message string) {
	s.send(conn, protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeError,
			Ts:        time.Now().UnixMilli(),
			RequestID: requestID,
			SessionID: s.hub.SessionOf(conn),
		},
		Code:    code,
		Message: message,
	})
}
