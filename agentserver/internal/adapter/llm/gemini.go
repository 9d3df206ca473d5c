package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

// ErrNoCandidates is returned when the model produced no candidate reply.
var ErrNoCandidates = errors.New("model returned no candidates")

// GeminiClient calls the Gemini API.
type GeminiClient struct {
	client *genai.Client
}

// Ensure GeminiClient implements Client interface.
var _ Client = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini client. An API key is required.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Close releases the underlying connection.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// GenerateContent implements Client.
func (g *GeminiClient) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	session, parts, err := g.startChat(req)
	if err != nil {
		return nil, err
	}
	resp, err := session.SendMessage(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate %s: %w", req.Model, err)
	}
	return fromGenaiResponse(req.Model, resp)
}

// GenerateContentStream implements Client.
func (g *GeminiClient) GenerateContentStream(ctx context.Context, req *Request, callback StreamCallback) (*Response, error) {
	session, parts, err := g.startChat(req)
	if err != nil {
		return nil, err
	}

	agg := &Response{Model: req.Model, Content: domain.Content{Role: domain.RoleModel}}
	iter := session.SendMessageStream(ctx, parts...)
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gemini stream %s: %w", req.Model, err)
		}

		chunk, err := fromGenaiResponse(req.Model, resp)
		if err != nil {
			return nil, err
		}
		if err := callback(chunk); err != nil {
			return nil, err
		}
		mergeChunk(agg, chunk)
	}
	return agg, nil
}

func (g *GeminiClient) startChat(req *Request) (*genai.ChatSession, []genai.Part, error) {
	if len(req.Contents) == 0 {
		return nil, nil, errors.New("request has no contents")
	}

	model := g.client.GenerativeModel(req.Model)
	if req.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemInstruction)},
		}
	}
	if req.Temperature != nil {
		model.SetTemperature(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: toGenaiDeclarations(req.Tools)}}
	}

	session := model.StartChat()
	for _, c := range req.Contents[:len(req.Contents)-1] {
		session.History = append(session.History, toGenaiContent(c))
	}
	last := toGenaiContent(req.Contents[len(req.Contents)-1])
	return session, last.Parts, nil
}

func toGenaiDeclarations(decls []FunctionDeclaration) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		props := make(map[string]*genai.Schema, len(d.Parameters))
		for name, p := range d.Parameters {
			props[name] = &genai.Schema{
				Type:        genai.TypeString,
				Description: p.Description,
				Enum:        p.Enum,
			}
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   d.Required,
			},
		})
	}
	return out
}

func toGenaiContent(c domain.Content) *genai.Content {
	out := &genai.Content{Role: c.Role}
	for _, p := range c.Parts {
		switch {
		case p.FunctionCall != nil:
			out.Parts = append(out.Parts, genai.FunctionCall{Name: p.FunctionCall.Name, Args: p.FunctionCall.Args})
		case p.FunctionResponse != nil:
			out.Parts = append(out.Parts, genai.FunctionResponse{Name: p.FunctionResponse.Name, Response: p.FunctionResponse.Response})
		case p.InlineData != nil:
			out.Parts = append(out.Parts, genai.Blob{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data})
		case p.Text != "":
			out.Parts = append(out.Parts, genai.Text(p.Text))
		}
	}
	return out
}

func fromGenaiResponse(model string, resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, ErrNoCandidates
	}
	cand := resp.Candidates[0]

	out := &Response{
		Model:        model,
		Content:      domain.Content{Role: domain.RoleModel},
		FinishReason: cand.FinishReason.String(),
	}
	if cand.Content != nil {
		out.Content = fromGenaiContent(cand.Content)
	}
	if resp.UsageMetadata != nil {
		out.Usage = &Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

func fromGenaiContent(c *genai.Content) domain.Content {
	out := domain.Content{Role: c.Role}
	if out.Role == "" {
		out.Role = domain.RoleModel
	}
	for _, part := range c.Parts {
		switch v := part.(type) {
		case genai.Text:
			out.Parts = append(out.Parts, domain.Part{Text: string(v)})
		case genai.FunctionCall:
			out.Parts = append(out.Parts, domain.Part{FunctionCall: &domain.FunctionCall{Name: v.Name, Args: v.Args}})
		case genai.FunctionResponse:
			out.Parts = append(out.Parts, domain.Part{FunctionResponse: &domain.FunctionResponse{Name: v.Name, Response: v.Response}})
		case genai.Blob:
			out.Parts = append(out.Parts, domain.Part{InlineData: &domain.Blob{MIMEType: v.MIMEType, Data: v.Data}})
		}
	}
	return out
}

// mergeChunk folds a streamed chunk into the aggregated reply. Adjacent text
// parts are concatenated.
func mergeChunk(agg, chunk *Response) {
	for _, p := range chunk.Content.Parts {
		n := len(agg.Content.Parts)
		if p.Text != "" && n > 0 && agg.Content.Parts[n-1].Text != "" {
			agg.Content.Parts[n-1].Text += p.Text
			continue
		}
		agg.Content.Parts = append(agg.Content.Parts, p)
	}
	if chunk.FinishReason != "" {
		agg.FinishReason = chunk.FinishReason
	}
	if chunk.Usage != nil {
		agg.Usage = chunk.Usage
	}
}
