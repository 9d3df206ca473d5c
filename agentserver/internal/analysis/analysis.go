// Package analysis turns the orchestrator model's reply into a routing analysis.
//
// Extraction never fails the turn: a reply without usable JSON degrades to an
// error marker that is stored in session state in place of the analysis.
package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

// Error marker reasons stored under {"error": reason}.
const (
	ReasonNoJSON      = "No JSON analysis found in LLM response"
	ReasonParseFailed = "Failed to parse analysis"
)

// Schema is the contract an analysis object must satisfy.
// Extra properties are allowed and preserved.
const Schema = `{
  "type": "object",
  "required": ["complexity", "target_agent", "is_safe"],
  "properties": {
    "complexity":   {"type": "string", "enum": ["Low", "Medium", "High"]},
    "target_agent": {"type": "string", "enum": ["specialist_text", "specialist_image", "specialist_video"]},
    "is_safe":      {"type": "boolean"}
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile([]byte(Schema))
})

// Result is either Ok(Analysis) or ParseError(reason).
type Result struct {
	ok       bool
	analysis domain.Analysis
	raw      map[string]any
	reason   string
	detail   string
}

// Ok wraps a validated analysis and the object it was decoded from.
func Ok(a domain.Analysis, raw map[string]any) Result {
	return Result{ok: true, analysis: a, raw: raw}
}

// ParseError builds a failed result. detail is for logs only.
func ParseError(reason, detail string) Result {
	return Result{reason: reason, detail: detail}
}

// IsOk reports whether the result holds an analysis.
func (r Result) IsOk() bool { return r.ok }

// Analysis returns the typed analysis of an Ok result.
func (r Result) Analysis() (domain.Analysis, bool) {
	return r.analysis, r.ok
}

// Reason returns the error marker reason of a ParseError result.
func (r Result) Reason() string { return r.reason }

// Detail describes why parsing failed.
func (r Result) Detail() string { return r.detail }

// StateValue is what gets stored under orchestrator_analysis: the parsed
// object unchanged, or the error marker.
func (r Result) StateValue() map[string]any {
	if r.ok {
		return r.raw
	}
	return map[string]any{"error": r.reason}
}

// Extract reads the first text part of the orchestrator reply, strips a
// markdown code fence, decodes the JSON and validates it against Schema.
// Function-call parts are skipped.
func Extract(content *domain.Content) Result {
	text, ok := content.FirstText()
	if !ok {
		return ParseError(ReasonNoJSON, "reply has no text part")
	}
	return Parse(text)
}

// Parse decodes one analysis text.
func Parse(text string) Result {
	cleaned := StripFences(text)

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return ParseError(ReasonParseFailed, fmt.Sprintf("invalid JSON: %v", err))
	}
	if err := validate(raw); err != nil {
		return ParseError(ReasonParseFailed, err.Error())
	}

	a := domain.Analysis{}
	if v, ok := raw["complexity"].(string); ok {
		a.Complexity = domain.Complexity(v)
	}
	if v, ok := raw["target_agent"].(string); ok {
		a.TargetAgent = domain.TargetAgent(v)
	}
	if v, ok := raw["is_safe"].(bool); ok {
		a.IsSafe = v
	}
	return Ok(a, raw)
}

func validate(raw map[string]any) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	result := schema.Validate(raw)
	if !result.IsValid() {
		return fmt.Errorf("schema violation: %s", result.Error())
	}
	return nil
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// StripFences removes a leading ```json or ``` marker and a trailing ``` marker.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	// Unbalanced fences: drop whichever marker is present.
	if strings.HasPrefix(strings.ToLower(s), "```json") {
		s = s[len("```json"):]
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
