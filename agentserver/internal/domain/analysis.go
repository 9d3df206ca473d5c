package domain

// Analysis is the orchestrator's routing verdict for one query.
type Analysis struct {
	Complexity  Complexity  `json:"complexity"`
	TargetAgent TargetAgent `json:"target_agent"`
	IsSafe      bool        `json:"is_safe"`
}
