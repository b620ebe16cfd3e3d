// Circuit breaker - one per remote provider.
//
// Closed -> Open after N consecutive qualifying failures.
// Open -> HalfOpen after a cooldown window, allowing one trial call.
// HalfOpen + success -> Closed with the failure count reset to zero.
// HalfOpen + failure -> Open with the cooldown clock restarted.

package remote

import (
	"sync"
	"time"
)

// BreakerState is the current position of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed is the normal operating state.
	BreakerClosed BreakerState = iota
	// BreakerOpen means calls are rejected without network I/O.
	BreakerOpen
	// BreakerHalfOpen means one trial call is allowed through.
	BreakerHalfOpen
)

// String returns a human-readable state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures failure tolerance and recovery.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failures before opening. Default: 5.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before allowing a trial
	// call. Default: 60 seconds.
	Cooldown time.Duration
	// Now is the clock, overridable in tests. Default: time.Now.
	Now func() time.Time
}

// DefaultBreakerConfig returns the default failure tolerance.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
	}
}

// Breaker is a per-provider circuit breaker. Safe for concurrent use.
type Breaker struct {
	mu          sync.Mutex
	config      BreakerConfig
	state       BreakerState
	failures    int
	lastFailure time.Time
	trialling   bool // a half-open trial call is in flight
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 60 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Breaker{config: config, state: BreakerClosed}
}

// Allow reports whether a call may proceed. In the open state it permits a
// single trial call once the cooldown has elapsed. Performs no I/O.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.config.Now().Sub(b.lastFailure) >= b.config.Cooldown {
			b.state = BreakerHalfOpen
			b.trialling = true
			return true
		}
		return false
	case BreakerHalfOpen:
		// Only the call that triggered the transition is allowed through.
		if b.trialling {
			return false
		}
		b.trialling = true
		return true
	default:
		return false
	}
}

// RecordSuccess resets the failure count and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialling = false
	b.state = BreakerClosed
}

// RecordFailure counts a terminal call failure. Opens the breaker at the
// threshold, and reopens with a fresh cooldown if a half-open trial fails.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.config.Now()
	b.trialling = false

	switch b.state {
	case BreakerClosed:
		if b.failures >= b.config.FailureThreshold {
			b.state = BreakerOpen
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
	}
}

// ReleaseTrial abandons a half-open trial without recording an outcome.
// Used when the caller cancels before the attempt completes, so the next
// trial slot is not lost.
func (b *Breaker) ReleaseTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialling = false
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// BreakerRegistry holds the breakers for all providers. Constructed at the
// composition root so tests get fresh instances instead of hidden shared
// state. Safe for concurrent use.
type BreakerRegistry struct {
	mu       sync.Mutex
	config   BreakerConfig
	breakers map[string]*Breaker
}

// NewBreakerRegistry creates an empty registry with a default config for
// breakers it creates on demand.
func NewBreakerRegistry(config BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for a provider, creating it if needed.
func (r *BreakerRegistry) Get(provider string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[provider]; ok {
		return b
	}
	b := NewBreaker(r.config)
	r.breakers[provider] = b
	return b
}

// States returns a snapshot of every breaker's state.
func (r *BreakerRegistry) States() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]BreakerState, len(r.breakers))
	for name, b := range r.breakers {
		states[name] = b.State()
	}
	return states
}
