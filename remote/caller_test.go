package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func testCaller(maxRetries int) *Caller {
	return NewCaller(CallerConfig{
		MaxRetries: maxRetries,
		Timeout:    time.Second,
		BaseDelay:  time.Millisecond,
		MaxDelay:   4 * time.Millisecond,
	}, NewBreakerRegistry(DefaultBreakerConfig()))
}

func TestDoReturnsResultOnSuccess(t *testing.T) {
	c := testCaller(3)

	got, err := Do(context.Background(), c, "p", "op", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
}

func TestDoRetriesExactlyMaxAttempts(t *testing.T) {
	c := testCaller(3)

	attempts := 0
	_, err := Do(context.Background(), c, "p", "op", func(ctx context.Context) (string, error) {
		attempts++
		return "", WrapKind(KindServer, errors.New("boom"))
	})
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}

	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected *CallError, got %T", err)
	}
	if callErr.Kind != KindServer {
		t.Errorf("expected server kind, got %s", callErr.Kind)
	}
	if callErr.Provider != "p" || callErr.Op != "op" {
		t.Errorf("call error lost its origin: %+v", callErr)
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	c := testCaller(3)

	attempts := 0
	got, err := Do(context.Background(), c, "p", "op", func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, WrapKind(KindTransport, errors.New("flaky"))
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoDoesNotRetryNonRetryableKinds(t *testing.T) {
	for _, kind := range []ErrorKind{KindAuth, KindValidation, KindQuota, KindParse} {
		t.Run(kind.String(), func(t *testing.T) {
			c := testCaller(3)

			attempts := 0
			_, err := Do(context.Background(), c, "p", "op", func(ctx context.Context) (string, error) {
				attempts++
				return "", WrapKind(kind, errors.New("no"))
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if attempts != 1 {
				t.Errorf("%s must not be retried, got %d attempts", kind, attempts)
			}
		})
	}
}

func TestDoFailsFastWhenBreakerOpen(t *testing.T) {
	c := testCaller(1)

	// Drive the provider breaker open.
	for i := 0; i < DefaultBreakerConfig().FailureThreshold; i++ {
		Do(context.Background(), c, "p", "op", func(ctx context.Context) (string, error) {
			return "", WrapKind(KindServer, errors.New("down"))
		})
	}
	if c.Breakers().Get("p").State() != BreakerOpen {
		t.Fatal("breaker should be open")
	}

	invoked := false
	_, err := Do(context.Background(), c, "p", "op", func(ctx context.Context) (string, error) {
		invoked = true
		return "", nil
	})
	if invoked {
		t.Fatal("open breaker must reject without invoking the operation")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	var callErr *CallError
	if !errors.As(err, &callErr) || callErr.Kind != KindUnavailable {
		t.Errorf("expected unavailable call error, got %v", err)
	}
}

func TestDoStopsOnCancellation(t *testing.T) {
	c := testCaller(5)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	_, err := Do(ctx, c, "p", "op", func(ctx context.Context) (string, error) {
		attempts++
		cancel()
		return "", WrapKind(KindServer, errors.New("boom"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("cancellation must stop retries, got %d attempts", attempts)
	}
}

func TestBackoffNonDecreasing(t *testing.T) {
	c := NewCaller(CallerConfig{
		MaxRetries: 5,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
	}, NewBreakerRegistry(DefaultBreakerConfig()))

	prevFloor := time.Duration(0)
	for attempt := 1; attempt <= 4; attempt++ {
		// The deterministic floor under the jitter must never decrease.
		floor := c.config.BaseDelay * time.Duration(1<<uint(attempt-1))
		if floor > c.config.MaxDelay {
			floor = c.config.MaxDelay
		}
		if floor < prevFloor {
			t.Fatalf("backoff floor decreased at attempt %d", attempt)
		}
		prevFloor = floor

		got := c.backoff(attempt)
		if got < floor {
			t.Errorf("attempt %d: backoff %v below floor %v", attempt, got, floor)
		}
		if got > floor+floor/4 {
			t.Errorf("attempt %d: backoff %v exceeds floor plus max jitter", attempt, got)
		}
	}
}

func TestDoStreamProgressMonotonicAndCompletesOnce(t *testing.T) {
	c := testCaller(3)

	var percents []int
	onProgress := func(chunk string, percent int, stage string) {
		percents = append(percents, percent)
	}

	attempts := 0
	_, err := DoStream(context.Background(), c, "p", "op", onProgress,
		func(ctx context.Context, report ProgressFunc) (string, error) {
			attempts++
			if attempts == 1 {
				// First attempt gets partway then dies.
				report("a", 40, "generating")
				report("b", 60, "generating")
				return "", WrapKind(KindServer, errors.New("mid-stream"))
			}
			// The retry starts over from the provider's view; reported
			// percents below the high-water mark must be clamped.
			report("a", 10, "generating")
			report("ab", 70, "generating")
			report("abc", 150, "generating")
			return "abc", nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := -1
	hundreds := 0
	for i, p := range percents {
		if p < last {
			t.Errorf("progress went backward at update %d: %v", i, percents)
		}
		last = p
		if p == 100 {
			hundreds++
		}
	}
	if hundreds != 1 {
		t.Errorf("expected exactly one 100%% update, got %d (%v)", hundreds, percents)
	}
	if percents[len(percents)-1] != 100 {
		t.Errorf("final update must be 100, got %v", percents)
	}
	// Mid-stream updates must never claim completion.
	for _, p := range percents[:len(percents)-1] {
		if p > 99 {
			t.Errorf("non-final update above 99: %v", percents)
		}
	}
}

func TestDoStreamNoTerminalUpdateOnFailure(t *testing.T) {
	c := testCaller(1)

	var percents []int
	_, err := DoStream(context.Background(), c, "p", "op",
		func(chunk string, percent int, stage string) {
			percents = append(percents, percent)
		},
		func(ctx context.Context, report ProgressFunc) (string, error) {
			report("x", 50, "generating")
			return "", WrapKind(KindServer, errors.New("boom"))
		})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, p := range percents {
		if p == 100 {
			t.Errorf("failed stream must never report 100%%: %v", percents)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"call error", NewCallError("p", "op", KindQuota, errors.New("x")), KindQuota},
		{"wrapped kind", WrapKind(KindAuth, errors.New("x")), KindAuth},
		{"deeply wrapped", fmt.Errorf("outer: %w", WrapKind(KindParse, errors.New("x"))), KindParse},
		{"plain error", errors.New("x"), KindTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestErrorKindRetryable(t *testing.T) {
	retryable := map[ErrorKind]bool{
		KindTimeout:     true,
		KindTransport:   true,
		KindServer:      true,
		KindAuth:        false,
		KindValidation:  false,
		KindQuota:       false,
		KindUnavailable: false,
		KindParse:       false,
		KindCorrupt:     false,
	}
	for kind, want := range retryable {
		if got := kind.Retryable(); got != want {
			t.Errorf("%s.Retryable() = %v, want %v", kind, got, want)
		}
	}
}
