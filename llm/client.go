// Resilient LLM client - pairs a Provider with the remote call layer.
//
// Information Hiding:
// - Retry, timeout, and breaker mechanics (delegated to remote)
// - Progress estimation from streamed byte counts

package llm

import (
	"context"

	"github.com/richinex/quizforge/remote"
)

// Client wraps a Provider so every call runs through the resilient call
// layer: per-attempt timeout, retry with backoff, and the provider's
// circuit breaker.
type Client struct {
	provider Provider
	caller   *remote.Caller
}

// NewClient creates a resilient client around the given provider.
func NewClient(provider Provider, caller *remote.Caller) *Client {
	return &Client{provider: provider, caller: caller}
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// Generate runs a completion through the call layer.
func (c *Client) Generate(ctx context.Context, op string, req Request) (Response, error) {
	return remote.Do(ctx, c.caller, c.provider.Name(), op, func(ctx context.Context) (Response, error) {
		return c.provider.Generate(ctx, req)
	})
}

// GenerateStream runs a streaming completion through the call layer. The
// percent estimate is derived from bytes received against
// req.ExpectedBytes; the call layer keeps it monotonic and emits the
// terminal 100% itself.
func (c *Client) GenerateStream(ctx context.Context, op string, req Request, onProgress remote.ProgressFunc) (Response, error) {
	return remote.DoStream(ctx, c.caller, c.provider.Name(), op, onProgress,
		func(ctx context.Context, report remote.ProgressFunc) (Response, error) {
			received := 0
			return c.provider.GenerateStream(ctx, req, func(chunk string) {
				received += len(chunk)
				report(chunk, estimatePercent(received, req.ExpectedBytes), "generating")
			})
		})
}

// estimatePercent maps received bytes to a completion estimate. Without a
// size hint the stream sits at zero until completion.
func estimatePercent(received, expected int) int {
	if expected <= 0 {
		return 0
	}
	percent := received * 100 / expected
	if percent > 99 {
		percent = 99
	}
	return percent
}
