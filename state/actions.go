// Actions describing every state transition. One concrete struct per
// transition; the unexported marker keeps the set closed to this package's
// consumers.

package state

import "github.com/richinex/quizforge/model"

// Action is a state transition request. Implementations live in this
// package only.
type Action interface {
	isAction()
}

// ConnectStarted marks the beginning of a connection attempt.
type ConnectStarted struct{}

// ConnectSucceeded marks a validated connection.
type ConnectSucceeded struct{}

// ConnectFailed records a failed connection attempt.
type ConnectFailed struct {
	Message string
}

// PostsLoaded replaces the post list with one fetched page.
type PostsLoaded struct {
	Posts      []model.ContentItem
	Page       int
	TotalPages int
}

// FilterChanged updates the search filter.
type FilterChanged struct {
	Filter string
}

// PhaseChanged moves an item through the generation lifecycle.
type PhaseChanged struct {
	ItemID int64
	Phase  model.GenerationPhase
}

// IdeasReady records generated quiz ideas for an item.
type IdeasReady struct {
	ItemID int64
	Ideas  []model.QuizIdea
}

// AnalysisStarted marks an item's health analysis as in flight. RunID
// correlates the start with its completion or failure in logs.
type AnalysisStarted struct {
	ItemID int64
	RunID  string
}

// AnalysisCompleted stores a health result and clears the in-flight mark.
type AnalysisCompleted struct {
	ItemID int64
	RunID  string
	Health model.ContentHealth
}

// AnalysisFailed clears the in-flight mark without a result.
type AnalysisFailed struct {
	ItemID int64
	RunID  string
}

// ErrorRaised sets the user-facing error message.
type ErrorRaised struct {
	Message string
}

// ErrorCleared clears the user-facing error message.
type ErrorCleared struct{}

func (ConnectStarted) isAction()    {}
func (ConnectSucceeded) isAction()  {}
func (ConnectFailed) isAction()     {}
func (PostsLoaded) isAction()       {}
func (FilterChanged) isAction()     {}
func (PhaseChanged) isAction()      {}
func (IdeasReady) isAction()        {}
func (AnalysisStarted) isAction()   {}
func (AnalysisCompleted) isAction() {}
func (AnalysisFailed) isAction()    {}
func (ErrorRaised) isAction()       {}
func (ErrorCleared) isAction()      {}
