package pipeline

import (
	"github.com/couchrishi/sahabat/agentserver/internal/adapter/llm"
	"github.com/couchrishi/sahabat/agentserver/internal/analysis"
	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

// CaptureQuery runs before the orchestrator model call. When the last content
// of the request is a user message with text, that text is copied to
// user_query. Otherwise state is left untouched.
func CaptureQuery(req *llm.Request, state domain.State) (string, bool) {
	last := req.LastContent()
	if last == nil || last.Role != domain.RoleUser {
		return "", false
	}
	text, ok := last.FirstText()
	if !ok {
		return "", false
	}
	state[domain.StateUserQuery] = text
	return text, true
}

// StoreAnalysis runs after the orchestrator model call. It always writes
// orchestrator_analysis, either the parsed object or an error marker.
func StoreAnalysis(reply *domain.Content, state domain.State) analysis.Result {
	result := analysis.Extract(reply)
	state[domain.StateOrchestratorAnalysis] = result.StateValue()
	return result
}
