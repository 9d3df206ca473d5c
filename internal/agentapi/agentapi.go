// Package agentapi holds the client side of the agent server's run contract,
// shared by the gateway's WebSocket path and the cli.
package agentapi

import "strings"

// DefaultAppName is the only app the agent server hosts.
const DefaultAppName = "sahabat"

// RunRequest is the body of POST /run_sse.
type RunRequest struct {
	AppName    string         `json:"app_name"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	NewMessage Content        `json:"new_message"`
	Streaming  bool           `json:"streaming"`
	StateDelta map[string]any `json:"state_delta,omitempty"`
}

// NewTextRequest builds a streaming run request carrying one user text message.
func NewTextRequest(appName, userID, sessionID, text string) RunRequest {
	if appName == "" {
		appName = DefaultAppName
	}
	return RunRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
		NewMessage: Content{
			Role:  "user",
			Parts: []Part{{Text: text}},
		},
		Streaming: true,
	}
}

// Content is a role-tagged list of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is the subset of a content part clients read.
type Part struct {
	Text         string        `json:"text,omitempty"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
	InlineData   *InlineData   `json:"inlineData,omitempty"`
}

// FunctionCall is a model-issued call such as transfer_to_agent.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// InlineData is binary model output such as a generated image.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Event is one streamed agent event, or a terminal error event.
type Event struct {
	ID           string   `json:"id"`
	InvocationID string   `json:"invocationId"`
	Author       string   `json:"author"`
	Partial      bool     `json:"partial,omitempty"`
	Content      *Content `json:"content,omitempty"`
	Actions      *Actions `json:"actions,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Actions carries state changes and hand-offs.
type Actions struct {
	StateDelta      map[string]any `json:"stateDelta,omitempty"`
	TransferToAgent string         `json:"transferToAgent,omitempty"`
}

// Text concatenates the event's text parts.
func (e *Event) Text() string {
	if e.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range e.Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// IsFinal reports whether the event carries a specialist's final response.
func (e *Event) IsFinal() bool {
	if e.Partial || e.Actions == nil {
		return false
	}
	_, ok := e.Actions.StateDelta["final_response"]
	return ok
}

// LastUserText returns the content of the last user message, if any.
func LastUserText(messages []Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content, true
		}
	}
	return "", false
}

// Message is one conversational turn in the gateway's chat request shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
