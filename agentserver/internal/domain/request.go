package domain

// RunRequest is the body of POST /run_sse and POST /run.
type RunRequest struct {
	AppName    string         `json:"app_name"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	NewMessage Content        `json:"new_message"`
	Streaming  bool           `json:"streaming"`
	StateDelta map[string]any `json:"state_delta,omitempty"`
}

// Key returns the addressed session.
func (r *RunRequest) Key() SessionKey {
	return SessionKey{AppName: r.AppName, UserID: r.UserID, SessionID: r.SessionID}
}

// CreateSessionRequest is the optional body of session creation.
type CreateSessionRequest struct {
	State map[string]any `json:"state,omitempty"`
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Notification is pushed to the gateway when a turn finishes.
type Notification struct {
	Type          string `json:"type"`
	RunID         string `json:"run_id"`
	SessionID     string `json:"session_id"`
	Author        string `json:"author,omitempty"`
	FinalResponse string `json:"final_response,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Notification types.
const (
	NotificationTurnComplete = "turn_complete"
	NotificationTurnFailed   = "turn_failed"
)
