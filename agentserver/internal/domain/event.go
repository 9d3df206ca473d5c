package domain

import (
	"encoding/json"
	"time"
)

// Event is one streamed agent event, sent as an SSE data line by /run_sse.
type Event struct {
	ID           string        `json:"id"`
	InvocationID string        `json:"invocationId"`
	Author       string        `json:"author"`
	Timestamp    float64       `json:"timestamp"`
	Partial      bool          `json:"partial,omitempty"`
	Content      *Content      `json:"content,omitempty"`
	Actions      *EventActions `json:"actions,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// EventActions carries side effects of an event.
type EventActions struct {
	StateDelta      map[string]any `json:"stateDelta,omitempty"`
	TransferToAgent string         `json:"transferToAgent,omitempty"`
}

// Timestamp converts t to fractional unix seconds.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Run represents one turn executed against a session.
type Run struct {
	RunID       string          `json:"run_id"`
	AppName     string          `json:"app_name"`
	UserID      string          `json:"user_id"`
	SessionID   string          `json:"session_id"`
	Status      RunStatus       `json:"status"`
	TargetAgent string          `json:"target_agent,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	Error       json.RawMessage `json:"error,omitempty"`
}

// TraceEvent is a persisted record of something that happened in a run.
type TraceEvent struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Author  string          `json:"author,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
