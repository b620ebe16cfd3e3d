// Package remote wraps outbound network calls with timeout, retry with
// exponential backoff, and a per-provider circuit breaker.
//
// Information Hiding:
// - Error classification logic hidden behind ErrorKind
// - Backoff algorithm and jitter hidden
// - Circuit breaker state transitions hidden
package remote

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed remote call. The kind decides whether the
// call layer retries and whether the failure is surfaced to the user.
type ErrorKind int

const (
	// KindTimeout means an attempt exceeded its deadline. Retryable.
	KindTimeout ErrorKind = iota
	// KindTransport means a network or connection failure. Retryable.
	KindTransport
	// KindServer means a 5xx-class response from the remote. Retryable.
	KindServer
	// KindAuth means the credentials were rejected. Never retried.
	KindAuth
	// KindValidation means the request was malformed or the target does
	// not exist. Never retried.
	KindValidation
	// KindQuota means a rate or usage limit was hit. Never retried.
	KindQuota
	// KindUnavailable is synthesized when the circuit breaker is open;
	// no network attempt was made.
	KindUnavailable
	// KindParse means the remote response could not be interpreted as the
	// expected structured data. Surfaced to the caller, never retried.
	KindParse
	// KindCorrupt means a stored record failed verification. Self-healed
	// by the storage layer, never surfaced to the user.
	KindCorrupt
)

// String returns a human-readable kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindQuota:
		return "quota"
	case KindUnavailable:
		return "unavailable"
	case KindParse:
		return "parse"
	case KindCorrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Retryable reports whether the call layer may retry this kind of failure.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindTransport, KindServer:
		return true
	default:
		return false
	}
}

// ErrUnavailable is the sentinel matched by errors.Is when the circuit
// breaker rejects a call without attempting network I/O.
var ErrUnavailable = errors.New("service unavailable: circuit breaker open")

// CallError is the terminal error of a remote call, carrying its
// classification and origin.
type CallError struct {
	Provider string
	Op       string
	Kind     ErrorKind
	Err      error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Kind)
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error {
	return e.Err
}

// Is supports errors.Is(err, ErrUnavailable) for breaker rejections.
func (e *CallError) Is(target error) bool {
	return target == ErrUnavailable && e.Kind == KindUnavailable
}

// NewCallError builds a classified call error.
func NewCallError(provider, op string, kind ErrorKind, err error) *CallError {
	return &CallError{Provider: provider, Op: op, Kind: kind, Err: err}
}

// Classify extracts the ErrorKind from an error. Unclassified errors are
// treated as transport failures so that transient unknowns get retried.
func Classify(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindTransport
}
