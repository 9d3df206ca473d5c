package domain

// Roles used in model contents.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Content is a role-tagged list of parts, serialized in the shape the
// web frontend and the gateway relay expect.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one piece of a content. Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
	InlineData       *Blob             `json:"inlineData,omitempty"`
}

// FunctionCall is a tool invocation emitted by a model.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse answers a FunctionCall.
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

// Blob is inline binary data such as a generated image.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// UserText builds a single-part user content.
func UserText(text string) Content {
	return Content{Role: RoleUser, Parts: []Part{{Text: text}}}
}

// ModelText builds a single-part model content.
func ModelText(text string) Content {
	return Content{Role: RoleModel, Parts: []Part{{Text: text}}}
}

// FirstText returns the first non-empty text part.
func (c *Content) FirstText() (string, bool) {
	if c == nil {
		return "", false
	}
	for _, p := range c.Parts {
		if p.Text != "" {
			return p.Text, true
		}
	}
	return "", false
}

// Text concatenates every text part.
func (c *Content) Text() string {
	if c == nil {
		return ""
	}
	var out string
	for _, p := range c.Parts {
		out += p.Text
	}
	return out
}

// FunctionCalls returns every function-call part.
func (c *Content) FunctionCalls() []FunctionCall {
	if c == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range c.Parts {
		if p.FunctionCall != nil {
			calls = append(calls, *p.FunctionCall)
		}
	}
	return calls
}
