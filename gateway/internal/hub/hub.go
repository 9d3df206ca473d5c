// Package hub tracks WebSocket connections and the chat sessions they follow.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// sendBuffer is the per-connection outbound queue length.
const sendBuffer = 256

var (
	// ErrBufferFull is returned when a connection's send queue is full.
	ErrBufferFull = errors.New("send buffer full")
	// ErrConnectionClosed is returned when sending to an unregistered connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Connection is one WebSocket client.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	sessionID string
	closed    bool
	writeMu   sync.Mutex
}

// Hub fans agent events out to the connections bound to a session.
type Hub struct {
	connections map[string]*Connection
	// sessions maps session_id to the ids of connections bound to it.
	sessions map[string]map[string]struct{}

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan sessionMessage
	done       chan struct{}

	logger *slog.Logger
	mu     sync.RWMutex
}

type sessionMessage struct {
	sessionID string
	data      []byte
}

// New creates a hub. Call Run to start dispatching.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]struct{}),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan sessionMessage, sendBuffer),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run dispatches registrations and broadcasts until ctx is done, then closes
// every remaining connection's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, conn := range h.connections {
				h.closeLocked(conn)
				delete(h.connections, id)
			}
			h.sessions = make(map[string]map[string]struct{})
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if conn.sessionID != "" {
				h.bindLocked(conn, conn.sessionID)
			}
			h.mu.Unlock()
			h.logger.Debug("connection registered", "conn_id", conn.ID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.unbindLocked(conn)
				h.closeLocked(conn)
			}
			h.mu.Unlock()
			h.logger.Debug("connection unregistered", "conn_id", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.sessions[msg.sessionID] {
				conn, ok := h.connections[connID]
				if !ok {
					continue
				}
				select {
				case conn.Send <- msg.data:
				default:
					h.logger.Warn("connection buffer full, closing", "conn_id", connID, "session_id", msg.sessionID)
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection wraps an upgraded socket. It is not tracked until Register.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, sendBuffer),
	}
}

// Register starts tracking a connection.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister stops tracking a connection and closes its send queue.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

func (h *Hub) closeLocked(conn *Connection) {
	if !conn.closed {
		conn.closed = true
		close(conn.Send)
	}
}

// BindSession moves a connection to sessionID. A connection that was already
// unregistered stays unbound and ErrConnectionClosed is returned.
func (h *Hub) BindSession(conn *Connection, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn.closed {
		return ErrConnectionClosed
	}
	h.unbindLocked(conn)
	h.bindLocked(conn, sessionID)
	return nil
}

// SessionOf returns the session a connection is bound to, or "".
func (h *Hub) SessionOf(conn *Connection) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return conn.sessionID
}

func (h *Hub) bindLocked(conn *Connection, sessionID string) {
	conn.sessionID = sessionID
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]struct{})
	}
	h.sessions[sessionID][conn.ID] = struct{}{}
}

func (h *Hub) unbindLocked(conn *Connection) {
	ids, ok := h.sessions[conn.sessionID]
	if !ok {
		return
	}
	delete(ids, conn.ID)
	if len(ids) == 0 {
		delete(h.sessions, conn.sessionID)
	}
}

// Broadcast queues data for every connection bound to sessionID.
func (h *Hub) Broadcast(sessionID string, data []byte) {
	select {
	case h.broadcast <- sessionMessage{sessionID: sessionID, data: data}:
	case <-h.done:
	}
}

// BroadcastJSON marshals v and broadcasts it to sessionID.
func (h *Hub) BroadcastJSON(sessionID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(sessionID, data)
	return nil
}

// SendToConnection queues data for one connection without blocking.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if conn.closed {
		return ErrConnectionClosed
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONToConnection marshals v and queues it for one connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// ConnectionCount returns the number of tracked connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SessionCount returns the number of sessions with at least one connection.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HasActiveConnections reports whether any connection is bound to sessionID.
func (h *Hub) HasActiveConnections(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0
}

// WriteMessage writes one frame. gorilla/websocket allows a single concurrent writer.
func (c *Connection) WriteMessage(messageType int, data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.Conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return c.Conn.WriteMessage(messageType, data)
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
