// Package llm provides LLM provider abstractions for quiz generation and
// content-health analysis.
//
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error classification
//
// Providers perform a single network attempt per call. Retry, timeout, and
// circuit breaking live in the remote package; providers only classify
// their SDK errors so the call layer can decide what is retryable.

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers. Callers
// depend only on this interface; provider identity is never switched over
// outside the factory.
type Provider interface {
	// Name returns the provider name (for logging and breaker keying).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Generate sends a prompt and returns the full completion.
	Generate(ctx context.Context, req Request) (Response, error)

	// GenerateStream streams the completion, invoking onChunk with each
	// incremental piece of text, and returns the assembled response.
	GenerateStream(ctx context.Context, req Request, onChunk func(string)) (Response, error)
}
