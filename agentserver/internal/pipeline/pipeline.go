// Package pipeline runs one Sahabat turn: the orchestrator analyses the user
// query, the routing policy picks a specialist, and the specialist answers.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/couchrishi/sahabat/agentserver/internal/adapter/llm"
	"github.com/couchrishi/sahabat/agentserver/internal/analysis"
	"github.com/couchrishi/sahabat/agentserver/internal/domain"
	"github.com/couchrishi/sahabat/agentserver/internal/prompt"
	"github.com/couchrishi/sahabat/agentserver/internal/tracer"
	"github.com/couchrishi/sahabat/agentserver/policy"
)

// Router picks the specialist for a turn.
type Router interface {
	Route(ctx context.Context, input policy.Input) (policy.Decision, error)
}

// Emitter receives every event produced during a turn, in order.
type Emitter func(ev *domain.Event) error

// Turn is the input of one pipeline run. State is mutated in place.
type Turn struct {
	InvocationID string
	State        domain.State
	History      []domain.Content
	Message      domain.Content
	Streaming    bool
}

// Outcome summarizes a completed turn.
type Outcome struct {
	Analysis      analysis.Result
	Decision      policy.Decision
	Target        domain.TargetAgent
	FinalResponse string
	Usage         []*llm.Usage
}

// Pipeline is the orchestrator plus its specialists.
type Pipeline struct {
	client      llm.Client
	router      Router
	models      Models
	specialists map[domain.TargetAgent]*Specialist
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a pipeline with the standard text, image and video specialists.
func New(client llm.Client, router Router, models Models, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		client:      client,
		router:      router,
		models:      models,
		specialists: specialists(models),
		logger:      logger,
		now:         time.Now,
	}
}

// Specialist returns the dispatch table entry for target.
func (p *Pipeline) Specialist(target domain.TargetAgent) (*Specialist, bool) {
	s, ok := p.specialists[target]
	return s, ok
}

// Run executes the turn and reports every event to emit.
func (p *Pipeline) Run(ctx context.Context, turn *Turn, emit Emitter) (*Outcome, error) {
	if turn.State == nil {
		turn.State = domain.State{}
	}
	if _, ok := turn.State[domain.StateUserTier]; !ok {
		turn.State[domain.StateUserTier] = string(domain.TierFree)
	}
	if text, ok := turn.Message.FirstText(); ok {
		turn.State[domain.StateQuery] = text
	}
	// Results of the previous turn must not sit next to this turn's query
	// when this turn fails before replacing them.
	delete(turn.State, domain.StateOrchestratorAnalysis)
	delete(turn.State, domain.StateFinalResponse)

	out := &Outcome{}

	reply, err := p.orchestrate(ctx, turn, out, emit)
	if err != nil {
		return nil, err
	}

	sp, err := p.route(ctx, turn, reply, out, emit)
	if err != nil {
		return nil, err
	}

	if err := p.answer(ctx, turn, sp, out, emit); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) orchestrate(ctx context.Context, turn *Turn, out *Outcome, emit Emitter) (*domain.Content, error) {
	ctx, span := tracer.StartSpan(ctx, "pipeline.orchestrator", tracer.StringAttr("model", p.models.Orchestrator))
	defer span.End()

	instruction, err := prompt.Render(prompt.Orchestrator, prompt.Data{Tier: turn.State.Tier()})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	req := &llm.Request{
		Model:             p.models.Orchestrator,
		SystemInstruction: instruction,
		Contents:          p.contents(turn),
		Tools:             []llm.FunctionDeclaration{llm.TransferDeclaration(domain.TargetAgents)},
	}

	delta := map[string]any{}
	if query, ok := CaptureQuery(req, turn.State); ok {
		delta[domain.StateUserQuery] = query
	}

	resp, err := p.client.GenerateContent(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("orchestrator model call: %w", err)
	}
	out.Usage = append(out.Usage, resp.Usage)

	out.Analysis = StoreAnalysis(&resp.Content, turn.State)
	delta[domain.StateOrchestratorAnalysis] = out.Analysis.StateValue()
	if !out.Analysis.IsOk() {
		p.logger.Warn("orchestrator analysis unavailable",
			"invocation_id", turn.InvocationID,
			"reason", out.Analysis.Reason(),
			"detail", out.Analysis.Detail())
	}

	content := resp.Content
	if content.Role == "" {
		content.Role = domain.RoleModel
	}
	ev := p.newEvent(turn, domain.AgentOrchestrator)
	ev.Content = &content
	ev.Actions = &domain.EventActions{StateDelta: delta}
	if err := emit(ev); err != nil {
		return nil, err
	}

	tracer.SetOK(span)
	return &content, nil
}

func (p *Pipeline) route(ctx context.Context, turn *Turn, reply *domain.Content, out *Outcome, emit Emitter) (*Specialist, error) {
	ctx, span := tracer.StartSpan(ctx, "pipeline.route")
	defer span.End()

	decision, err := p.router.Route(ctx, policy.Input{
		Analysis:       out.Analysis.StateValue(),
		TransferTarget: llm.TransferTarget(reply),
		UserTier:       string(turn.State.Tier()),
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("route: %w", err)
	}
	out.Decision = decision
	out.Target = domain.TargetAgent(decision.Target)
	span.SetAttributes(tracer.StringAttr("target", decision.Target), tracer.StringAttr("reason", decision.Reason))

	sp, ok := p.specialists[out.Target]
	if !ok {
		err := fmt.Errorf("no specialist registered for %q", decision.Target)
		tracer.RecordError(span, err)
		return nil, err
	}

	ev := p.newEvent(turn, domain.AgentOrchestrator)
	ev.Content = &domain.Content{
		Role: domain.RoleUser,
		Parts: []domain.Part{{FunctionResponse: &domain.FunctionResponse{
			Name:     llm.TransferToAgent,
			Response: map[string]any{"agent_name": decision.Target, "reason": decision.Reason},
		}}},
	}
	ev.Actions = &domain.EventActions{TransferToAgent: decision.Target}
	if err := emit(ev); err != nil {
		return nil, err
	}

	tracer.SetOK(span)
	return sp, nil
}

func (p *Pipeline) answer(ctx context.Context, turn *Turn, sp *Specialist, out *Outcome, emit Emitter) error {
	ctx, span := tracer.StartSpan(ctx, "pipeline.specialist",
		tracer.StringAttr("agent", string(sp.Name)),
		tracer.StringAttr("model", sp.Model),
		tracer.BoolAttr("streaming", turn.Streaming))
	defer span.End()

	analysisJSON, err := json.Marshal(turn.State[domain.StateOrchestratorAnalysis])
	if err != nil {
		tracer.RecordError(span, err)
		return fmt.Errorf("encode analysis: %w", err)
	}
	tier := turn.State.Tier()
	instruction, err := prompt.Render(sp.Prompt, prompt.Data{
		Tier:     tier,
		Query:    turn.State.String(domain.StateUserQuery),
		Analysis: string(analysisJSON),
	})
	if err != nil {
		tracer.RecordError(span, err)
		return err
	}
	req := &llm.Request{
		Model:             sp.Model,
		SystemInstruction: instruction,
		Contents:          p.contents(turn),
	}

	var resp *llm.Response
	if turn.Streaming {
		resp, err = p.client.GenerateContentStream(ctx, req, func(chunk *llm.Response) error {
			content := chunk.Content
			content.Role = domain.RoleModel
			ev := p.newEvent(turn, string(sp.Name))
			ev.Partial = true
			ev.Content = &content
			return emit(ev)
		})
	} else {
		resp, err = p.client.GenerateContent(ctx, req)
	}
	if err != nil {
		tracer.RecordError(span, err)
		return fmt.Errorf("%s model call: %w", sp.Name, err)
	}
	out.Usage = append(out.Usage, resp.Usage)

	final := resp.Content.Text()
	if sp.ShapeByTier {
		final = ShapeForTier(tier, final)
	}
	turn.State[domain.StateFinalResponse] = final
	out.FinalResponse = final

	content := domain.Content{Role: domain.RoleModel}
	if final != "" {
		content.Parts = append(content.Parts, domain.Part{Text: final})
	}
	for _, part := range resp.Content.Parts {
		if part.InlineData != nil {
			content.Parts = append(content.Parts, part)
		}
	}

	ev := p.newEvent(turn, string(sp.Name))
	ev.Content = &content
	ev.Actions = &domain.EventActions{StateDelta: map[string]any{domain.StateFinalResponse: final}}
	if err := emit(ev); err != nil {
		return err
	}

	tracer.SetOK(span)
	return nil
}

func (p *Pipeline) contents(turn *Turn) []domain.Content {
	contents := make([]domain.Content, 0, len(turn.History)+1)
	contents = append(contents, turn.History...)
	return append(contents, turn.Message)
}

func (p *Pipeline) newEvent(turn *Turn, author string) *domain.Event {
	return &domain.Event{
		ID:           ulid.Make().String(),
		InvocationID: turn.InvocationID,
		Author:       author,
		Timestamp:    domain.Timestamp(p.now()),
	}
}
