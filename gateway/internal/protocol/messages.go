// Package protocol defines the WebSocket message protocol between chat clients and the gateway.
package protocol

import (
	"encoding/json"

	"github.com/couchrishi/sahabat/internal/agentapi"
)

// Message types from client to gateway
const (
	TypeHello = "hello"
	TypeChat  = "chat"
)

// Message types from gateway to client
const (
	TypeHelloAck = "hello_ack"
	TypeEvent    = "event"
	TypeDone     = "done"
	TypeError    = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// HelloMessage binds the connection to a session so it receives that
// session's out-of-band notifications.
type HelloMessage struct {
	BaseMessage
	UserID string `json:"user_id,omitempty"`
}

// HelloAckMessage is sent by the gateway after a successful hello.
type HelloAckMessage struct {
	BaseMessage
}

// ChatMessage asks the agent server to run one turn.
type ChatMessage struct {
	BaseMessage
	AppName  string             `json:"app_name"`
	UserID   string             `json:"user_id"`
	Messages []agentapi.Message `json:"messages"`
}

// EventMessage relays one agent server event.
type EventMessage struct {
	BaseMessage
	Data json.RawMessage `json:"data"`
}

// DoneMessage ends the relay of one chat turn.
type DoneMessage struct {
	BaseMessage
}

// ErrorMessage is sent by the gateway when an error occurs.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeAgentError     = "agent_error"
	ErrorCodeUpstreamFail   = "upstream_fail"
)
