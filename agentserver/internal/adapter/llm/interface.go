// Package llm provides an abstraction over the generative model API.
package llm

import (
	"context"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

// Client defines the model operations used by the pipeline.
type Client interface {
	// GenerateContent sends a request and waits for the complete reply.
	GenerateContent(ctx context.Context, req *Request) (*Response, error)

	// GenerateContentStream sends a request and calls callback for each chunk.
	// It returns the aggregated reply once the stream ends.
	GenerateContentStream(ctx context.Context, req *Request, callback StreamCallback) (*Response, error)
}

// StreamCallback receives one streamed chunk.
type StreamCallback func(chunk *Response) error

// Request is a single model call.
type Request struct {
	Model             string
	SystemInstruction string
	Contents          []domain.Content
	Tools             []FunctionDeclaration
	Temperature       *float32
}

// LastContent returns the final content of the request, the one the model answers.
func (r *Request) LastContent() *domain.Content {
	if len(r.Contents) == 0 {
		return nil
	}
	return &r.Contents[len(r.Contents)-1]
}

// FunctionDeclaration declares a function the model may call.
type FunctionDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]Parameter
	Required    []string
}

// Parameter is a string argument of a declared function.
type Parameter struct {
	Description string
	Enum        []string
}

// Response is a model reply or a streamed chunk of one.
type Response struct {
	Model        string
	Content      domain.Content
	FinishReason string
	Usage        *Usage
}

// Usage reports token counts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TransferToAgent is the hand-off function declared to the orchestrator model.
const TransferToAgent = "transfer_to_agent"

// TransferDeclaration builds the transfer_to_agent declaration for the given targets.
func TransferDeclaration(targets []domain.TargetAgent) FunctionDeclaration {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = string(t)
	}
	return FunctionDeclaration{
		Name:        TransferToAgent,
		Description: "Transfer the question to another agent.",
		Parameters: map[string]Parameter{
			"agent_name": {Description: "the agent name to transfer to", Enum: names},
		},
		Required: []string{"agent_name"},
	}
}

// TransferTarget returns the agent_name argument of the first transfer_to_agent call.
func TransferTarget(content *domain.Content) string {
	for _, call := range content.FunctionCalls() {
		if call.Name != TransferToAgent {
			continue
		}
		if name, ok := call.Args["agent_name"].(string); ok {
			return name
		}
	}
	return ""
}
