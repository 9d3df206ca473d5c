// Package policy evaluates the Rego routing policy that picks the specialist for a turn.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Input is the document the routing policy is evaluated against.
type Input struct {
	// Analysis is the stored orchestrator_analysis: the parsed object or {"error": ...}.
	Analysis map[string]any `json:"analysis"`
	// TransferTarget is the agent_name of the orchestrator's transfer_to_agent call, if any.
	TransferTarget string `json:"transfer_target"`
	UserTier       string `json:"user_tier"`
}

// Decision is the routing outcome.
type Decision struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.routing.decision"),
		rego.Module("routing.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy from path, or DefaultPolicy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Route evaluates the routing policy.
func (e *Engine) Route(ctx context.Context, input Input) (Decision, error) {
	if input.Analysis == nil {
		input.Analysis = map[string]any{}
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, fmt.Errorf("policy produced no decision")
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("unexpected decision type %T", results[0].Expressions[0].Value)
	}
	d := Decision{}
	d.Target, _ = obj["target"].(string)
	d.Reason, _ = obj["reason"].(string)
	if d.Target == "" {
		return Decision{}, fmt.Errorf("policy decision has no target")
	}
	return d, nil
}

// DefaultPolicy routes to the analysis target, then to the transfer call
// target, then falls back to the text specialist.
const DefaultPolicy = `
package routing

targets = {"specialist_text", "specialist_image", "specialist_video"}

decision = {"target": input.analysis.target_agent, "reason": "analysis"} {
	targets[input.analysis.target_agent]
} else = {"target": input.transfer_target, "reason": "transfer_call"} {
	targets[input.transfer_target]
} else = {"target": "specialist_text", "reason": "fallback"} {
	true
}
`
