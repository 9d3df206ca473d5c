// Package domain defines the core domain models for the agent server.
package domain

// AppName is the only application served by this agent server.
const AppName = "sahabat"

// Agent names used as event authors.
const (
	AgentOrchestrator = "sahabat_orchestrator"
)

// TargetAgent identifies a specialist. The string values are the contract
// between the orchestrator's analysis and the hand-off dispatch table.
type TargetAgent string

const (
	TargetText  TargetAgent = "specialist_text"
	TargetImage TargetAgent = "specialist_image"
	TargetVideo TargetAgent = "specialist_video"
)

// TargetAgents lists every allowed target in routing order.
var TargetAgents = []TargetAgent{TargetText, TargetImage, TargetVideo}

// Valid reports whether t is one of the three allowed targets.
func (t TargetAgent) Valid() bool {
	switch t {
	case TargetText, TargetImage, TargetVideo:
		return true
	}
	return false
}

// Complexity is the orchestrator's assessment of a query.
type Complexity string

const (
	ComplexityLow    Complexity = "Low"
	ComplexityMedium Complexity = "Medium"
	ComplexityHigh   Complexity = "High"
)

// Tier is the user's subscription level.
type Tier string

const (
	TierPaid Tier = "Paid"
	TierFree Tier = "Free"
)

// ParseTier maps a stored state value to a Tier. Anything but "Paid" is Free.
func ParseTier(v string) Tier {
	if v == string(TierPaid) {
		return TierPaid
	}
	return TierFree
}

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusDone    RunStatus = "DONE"
	RunStatusFailed  RunStatus = "FAILED"
)

// EventType represents the type of a persisted trace event.
type EventType string

const (
	EventTypeRunStarted     EventType = "run_started"
	EventTypeUserInput      EventType = "user_input"
	EventTypeQueryCaptured  EventType = "query_captured"
	EventTypeLLMCallStarted EventType = "llm_call_started"
	EventTypeLLMCallDone    EventType = "llm_call_done"
	EventTypeAnalysis       EventType = "orchestrator_analysis"
	EventTypePolicyDecision EventType = "policy_decision"
	EventTypeAgentEvent     EventType = "agent_event"
	EventTypeRunDone        EventType = "run_done"
	EventTypeRunFailed      EventType = "run_failed"
)
