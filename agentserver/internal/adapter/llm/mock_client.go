package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

// MockClient is a deterministic Client for local runs and tests.
// The orchestrator call is answered with a keyword-routed analysis; specialist
// calls are answered with canned text shaped like a real reply.
type MockClient struct{}

// NewMockClient creates a new mock model client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements Client interface.
var _ Client = (*MockClient)(nil)

// GenerateContent returns a mock reply.
func (m *MockClient) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content := m.generateMockContent(req)
	return &Response{
		Model:        req.Model,
		Content:      content,
		FinishReason: "STOP",
		Usage:        m.usage(req, content),
	}, nil
}

// GenerateContentStream simulates streaming by sending the text in chunks.
func (m *MockClient) GenerateContentStream(ctx context.Context, req *Request, callback StreamCallback) (*Response, error) {
	content := m.generateMockContent(req)
	agg := &Response{Model: req.Model, Content: domain.Content{Role: domain.RoleModel}}

	for _, part := range content.Parts {
		var pieces []domain.Part
		if part.Text != "" {
			for _, chunk := range splitIntoChunks(part.Text, 32) {
				pieces = append(pieces, domain.Part{Text: chunk})
			}
		} else {
			pieces = append(pieces, part)
		}

		for _, piece := range pieces {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			chunk := &Response{Model: req.Model, Content: domain.Content{Role: domain.RoleModel, Parts: []domain.Part{piece}}}
			if err := callback(chunk); err != nil {
				return nil, err
			}
			mergeChunk(agg, chunk)
		}
	}

	agg.FinishReason = "STOP"
	agg.Usage = m.usage(req, content)
	return agg, nil
}

func (m *MockClient) generateMockContent(req *Request) domain.Content {
	query := lastUserText(req)

	for _, tool := range req.Tools {
		if tool.Name == TransferToAgent {
			return m.mockAnalysis(query)
		}
	}

	instruction := strings.ToLower(req.SystemInstruction)
	switch {
	case strings.Contains(instruction, "image generation"):
		return domain.ModelText(fmt.Sprintf("[MOCK] A detailed, high-resolution illustration of %s, soft natural lighting, rich colors.", truncate(query, 100)))
	case strings.Contains(instruction, "video generation"):
		return domain.ModelText(fmt.Sprintf("[MOCK] A smooth cinematic shot of %s, slow dolly-in, golden hour light.", truncate(query, 100)))
	}

	paragraphs := []string{
		fmt.Sprintf("[MOCK] **Overview.** You asked: %q. This is a mock answer.", truncate(query, 100)),
		"[MOCK] **Details.** A real model would expand on the question here with supporting facts.",
		"[MOCK] **Summary.** This closing paragraph wraps up the mock response.",
	}
	return domain.ModelText(strings.Join(paragraphs, "\n\n"))
}

func (m *MockClient) mockAnalysis(query string) domain.Content {
	target := classify(query)
	analysis := map[string]any{
		"complexity":   string(estimateComplexity(query)),
		"target_agent": string(target),
		"is_safe":      true,
	}
	data, _ := json.Marshal(analysis)

	return domain.Content{
		Role: domain.RoleModel,
		Parts: []domain.Part{
			{Text: "```json\n" + string(data) + "\n```"},
			{FunctionCall: &domain.FunctionCall{
				Name: TransferToAgent,
				Args: map[string]any{"agent_name": string(target)},
			}},
		},
	}
}

var (
	imageKeywords = []string{"image", "picture", "draw", "photo", "illustration", "graphic", "logo", "gambar"}
	videoKeywords = []string{"video", "animation", "animate", "movie", "clip", "motion"}
)

func classify(query string) domain.TargetAgent {
	q := strings.ToLower(query)
	for _, kw := range videoKeywords {
		if strings.Contains(q, kw) {
			return domain.TargetVideo
		}
	}
	for _, kw := range imageKeywords {
		if strings.Contains(q, kw) {
			return domain.TargetImage
		}
	}
	return domain.TargetText
}

func estimateComplexity(query string) domain.Complexity {
	words := len(strings.Fields(query))
	switch {
	case words < 8:
		return domain.ComplexityLow
	case words < 25:
		return domain.ComplexityMedium
	default:
		return domain.ComplexityHigh
	}
}

func lastUserText(req *Request) string {
	for i := len(req.Contents) - 1; i >= 0; i-- {
		if req.Contents[i].Role == domain.RoleUser {
			if text, ok := req.Contents[i].FirstText(); ok {
				return text
			}
		}
	}
	return ""
}

func (m *MockClient) usage(req *Request, reply domain.Content) *Usage {
	prompt := len(req.SystemInstruction) / 4
	for _, c := range req.Contents {
		prompt += len(c.Text()) / 4
	}
	completion := len(reply.Text()) / 4
	return &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// splitIntoChunks splits a string into chunks of approximately the given size.
func splitIntoChunks(s string, chunkSize int) []string {
	if len(s) == 0 {
		return []string{""}
	}
	runes := []rune(s)
	var chunks []string
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
