// Package llm shared request/response types.
package llm

import "encoding/json"

// Request is a single generation request.
type Request struct {
	// System is the optional system instruction.
	System string `json:"system,omitempty"`
	// Prompt is the user prompt text.
	Prompt string `json:"prompt"`
	// Schema is an optional JSON schema hint for structured output.
	// Providers that support native enforcement use it; others receive
	// the schema embedded in the prompt by the caller and ignore this.
	Schema json.RawMessage `json:"schema,omitempty"`
	// ExpectedBytes is a rough size estimate of the completion, used for
	// streaming progress estimation. Zero disables size-based estimates.
	ExpectedBytes int `json:"-"`
}

// Response is a completed generation.
type Response struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}
