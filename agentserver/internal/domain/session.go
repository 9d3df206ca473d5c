package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session state keys shared by the orchestrator and the specialists.
const (
	StateUserTier             = "user_tier"
	StateQuery                = "query"
	StateUserQuery            = "user_query"
	StateOrchestratorAnalysis = "orchestrator_analysis"
	StateFinalResponse        = "final_response"
)

// SessionKey addresses a session.
type SessionKey struct {
	AppName   string
	UserID    string
	SessionID string
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.AppName, k.UserID, k.SessionID)
}

// Session is a conversation with its mutable state.
type Session struct {
	ID             string    `json:"id"`
	AppName        string    `json:"appName"`
	UserID         string    `json:"userId"`
	State          State     `json:"state"`
	LastUpdateTime float64   `json:"lastUpdateTime"`
	CreatedAt      time.Time `json:"-"`
}

// Key returns the session's address.
func (s *Session) Key() SessionKey {
	return SessionKey{AppName: s.AppName, UserID: s.UserID, SessionID: s.ID}
}

// State is the string-keyed session state.
type State map[string]any

// String returns the value under key when it is a string.
func (s State) String(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

// Tier returns the stored user tier, defaulting to Free.
func (s State) Tier() Tier {
	return ParseTier(s.String(StateUserTier))
}

// Merge copies every entry of delta into s.
func (s State) Merge(delta map[string]any) {
	for k, v := range delta {
		s[k] = v
	}
}

// Clone returns a deep copy made through a JSON round trip.
func (s State) Clone() State {
	out := State{}
	if len(s) == 0 {
		return out
	}
	data, err := json.Marshal(s)
	if err != nil {
		for k, v := range s {
			out[k] = v
		}
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}

// Message is a stored conversation turn used to rebuild model history.
type Message struct {
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	RunID     string    `json:"run_id,omitempty"`
	Role      string    `json:"role"`
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
