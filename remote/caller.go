// Resilient call layer - every outbound request goes through here.
//
// A call gets a hard per-attempt timeout, retry with exponential backoff
// plus jitter for transient failures, and a per-provider circuit breaker
// consult before any network I/O. Only the terminal error escapes to the
// caller; transient attempts are absorbed here.

package remote

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// CallerConfig configures retry and timeout behavior.
type CallerConfig struct {
	// MaxRetries is the total number of attempts. Default: 3.
	MaxRetries int
	// Timeout is the hard deadline per attempt. Default: 30 seconds.
	Timeout time.Duration
	// BaseDelay seeds the exponential backoff. Default: 500ms.
	BaseDelay time.Duration
	// MaxDelay caps the backoff. Default: 8 seconds.
	MaxDelay time.Duration
	// Logger receives retry and breaker events. Default: slog.Default().
	Logger *slog.Logger
}

// GenerationCallerConfig returns the defaults for long-running generation
// calls (LLM completions).
func GenerationCallerConfig() CallerConfig {
	return CallerConfig{
		MaxRetries: 3,
		Timeout:    120 * time.Second,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
	}
}

// DataCallerConfig returns the defaults for short data calls (REST reads
// and writes).
func DataCallerConfig() CallerConfig {
	return CallerConfig{
		MaxRetries: 3,
		Timeout:    30 * time.Second,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
	}
}

// Caller executes remote operations with retry, timeout, and circuit
// breaking. Safe for concurrent use.
type Caller struct {
	config   CallerConfig
	breakers *BreakerRegistry
	logger   *slog.Logger
}

// NewCaller creates a caller sharing the given breaker registry. Callers
// with different configs (generation vs data) share one registry so a
// provider's breaker sees every call to it.
func NewCaller(config CallerConfig, breakers *BreakerRegistry) *Caller {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 8 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{config: config, breakers: breakers, logger: logger}
}

// Breakers returns the registry backing this caller.
func (c *Caller) Breakers() *BreakerRegistry {
	return c.breakers
}

// Do executes fn with retry, per-attempt timeout, and circuit breaking.
// fn must honor context cancellation. Errors returned by fn should carry a
// classification (WrapKind or *CallError); unclassified errors are treated
// as transport failures.
//
// Methods cannot be generic, so Do is a package function taking the caller.
func Do[T any](ctx context.Context, c *Caller, provider, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	breaker := c.breakers.Get(provider)
	if !breaker.Allow() {
		return zero, NewCallError(provider, op, KindUnavailable, ErrUnavailable)
	}

	var lastErr *CallError
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Debug("retrying remote call",
				"provider", provider, "op", op, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				breaker.ReleaseTrial()
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		result, err := fn(attemptCtx)
		cancel()

		if err == nil {
			breaker.RecordSuccess()
			return result, nil
		}

		// The caller abandoned the operation; not a provider failure.
		if ctx.Err() != nil {
			breaker.ReleaseTrial()
			return zero, ctx.Err()
		}

		kind := classifyAttempt(err)
		lastErr = NewCallError(provider, op, kind, err)
		if !kind.Retryable() {
			break
		}
	}

	breaker.RecordFailure()
	c.logger.Warn("remote call failed",
		"provider", provider, "op", op, "kind", lastErr.Kind.String(),
		"breaker", breaker.State().String())
	return zero, lastErr
}

// DoStream executes a streaming operation, forwarding incremental chunks
// through a monotonic progress guard: the percent estimate never decreases
// and reaches 100 exactly once, on completion.
func DoStream[T any](ctx context.Context, c *Caller, provider, op string, onProgress ProgressFunc, fn func(context.Context, ProgressFunc) (T, error)) (T, error) {
	guard := newProgressGuard(onProgress)
	result, err := Do(ctx, c, provider, op, func(attemptCtx context.Context) (T, error) {
		return fn(attemptCtx, guard.report)
	})
	if err == nil {
		guard.finish()
	}
	return result, err
}

// backoff returns base * 2^attempt plus up to 25% jitter, capped.
func (c *Caller) backoff(attempt int) time.Duration {
	delay := c.config.BaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > c.config.MaxDelay {
		delay = c.config.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

// classifyAttempt maps an attempt error to its kind. Deadline expiry takes
// precedence so SDK-wrapped timeout errors classify consistently.
func classifyAttempt(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return Classify(err)
}

// kindError tags an error with a classification without the provider/op
// context that Do adds later.
type kindError struct {
	kind ErrorKind
	err  error
}

func (e *kindError) Error() string {
	return e.err.Error()
}

func (e *kindError) Unwrap() error {
	return e.err
}

// WrapKind tags err with a classification for the call layer.
func WrapKind(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}
