// Package state holds the application state, the pure reducer that
// advances it, and a single-writer store that serializes dispatches.
//
// Information Hiding:
// - Action application order (the store's writer goroutine)
// - Copy-on-write discipline inside the reducer
//
// AppState values are treated as immutable once published: the reducer
// copies any map or slice it mutates, so snapshots can be read without
// locks.

package state

import "github.com/richinex/quizforge/model"

// ConnectionStatus describes the WordPress connection lifecycle.
type ConnectionStatus int

const (
	// Disconnected means no connection attempt has been made.
	Disconnected ConnectionStatus = iota
	// Connecting means a connection attempt is in flight.
	Connecting
	// Connected means credentials validated against the site.
	Connected
	// ConnectionFailed means the last attempt failed.
	ConnectionFailed
)

// String returns a human-readable status.
func (s ConnectionStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ConnectionFailed:
		return "connection_failed"
	default:
		return "unknown"
	}
}

// AppState is the full application state. Visible is derived from Posts
// and Filter by the reducer; it is never authoritative.
type AppState struct {
	Connection ConnectionStatus
	ConnError  string

	Posts      []model.ContentItem
	Page       int
	TotalPages int
	Filter     string
	Visible    []model.ContentItem

	Phases   map[int64]model.GenerationPhase
	Ideas    map[int64][]model.QuizIdea
	InFlight map[int64]string
	Health   map[int64]model.ContentHealth

	LastError string
}

// NewAppState returns the initial state.
func NewAppState() AppState {
	return AppState{
		Connection: Disconnected,
		Phases:     map[int64]model.GenerationPhase{},
		Ideas:      map[int64][]model.QuizIdea{},
		InFlight:   map[int64]string{},
		Health:     map[int64]model.ContentHealth{},
	}
}

// Phase returns the generation phase for an item, defaulting to idle.
func (s AppState) Phase(itemID int64) model.GenerationPhase {
	if phase, ok := s.Phases[itemID]; ok {
		return phase
	}
	return model.PhaseIdle
}

// AnalysisInFlight reports whether a health analysis is running for the
// item.
func (s AppState) AnalysisInFlight(itemID int64) bool {
	_, ok := s.InFlight[itemID]
	return ok
}
