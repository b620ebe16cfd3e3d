package remote

import (
	"testing"
	"time"
)

func testBreaker(now *time.Time) *Breaker {
	return NewBreaker(BreakerConfig{
		FailureThreshold: 3,
		Cooldown:         time.Minute,
		Now:              func() time.Time { return *now },
	})
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	now := time.Now()
	b := testBreaker(&now)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if !b.Allow() {
			t.Fatalf("breaker should stay closed after %d failures", i+1)
		}
	}

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after threshold, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("open breaker must reject calls")
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	now := time.Now()
	b := testBreaker(&now)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	if b.Failures() != 0 {
		t.Fatalf("expected zero failures after success, got %d", b.Failures())
	}

	// The count restarts: two more failures must not open it.
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	now := time.Now()
	b := testBreaker(&now)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	// Still inside the cooldown.
	now = now.Add(59 * time.Second)
	if b.Allow() {
		t.Fatal("breaker should reject before cooldown elapses")
	}

	now = now.Add(time.Second)
	if !b.Allow() {
		t.Fatal("expected one trial call after cooldown")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("only one trial call may pass in half-open")
	}
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	now := time.Now()
	b := testBreaker(&now)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	now = now.Add(time.Minute)
	if !b.Allow() {
		t.Fatal("expected trial call")
	}

	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed after trial success, got %s", b.State())
	}
	if b.Failures() != 0 {
		t.Fatalf("expected failure count reset, got %d", b.Failures())
	}
	if !b.Allow() {
		t.Fatal("closed breaker must allow calls")
	}
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	now := time.Now()
	b := testBreaker(&now)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	now = now.Add(time.Minute)
	b.Allow()
	b.RecordFailure()

	if b.State() != BreakerOpen {
		t.Fatalf("expected reopen after trial failure, got %s", b.State())
	}

	// Cooldown clock restarted at the trial failure.
	now = now.Add(30 * time.Second)
	if b.Allow() {
		t.Fatal("cooldown should have restarted")
	}
	now = now.Add(30 * time.Second)
	if !b.Allow() {
		t.Fatal("expected a trial after the fresh cooldown")
	}
}

func TestBreakerReleaseTrialFreesSlot(t *testing.T) {
	now := time.Now()
	b := testBreaker(&now)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	now = now.Add(time.Minute)
	b.Allow()

	// Caller cancelled the trial; the slot must become available again.
	b.ReleaseTrial()
	if !b.Allow() {
		t.Fatal("released trial slot should admit another call")
	}
}

func TestRegistryReturnsSameBreakerPerProvider(t *testing.T) {
	r := NewBreakerRegistry(DefaultBreakerConfig())

	if r.Get("anthropic") != r.Get("anthropic") {
		t.Error("expected one breaker per provider")
	}
	if r.Get("anthropic") == r.Get("wordpress") {
		t.Error("providers must not share a breaker")
	}

	states := r.States()
	if len(states) != 2 {
		t.Fatalf("expected 2 breakers, got %d", len(states))
	}
	for name, s := range states {
		if s != BreakerClosed {
			t.Errorf("breaker %s should start closed, got %s", name, s)
		}
	}
}
