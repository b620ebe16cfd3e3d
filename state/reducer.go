// Pure state transition function.

package state

import "github.com/richinex/quizforge/model"

// Reduce returns the state after applying one action. It never mutates
// its input: maps and slices are copied before modification, untouched
// fields are shared.
func Reduce(s AppState, action Action) AppState {
	switch a := action.(type) {
	case ConnectStarted:
		s.Connection = Connecting
		s.ConnError = ""

	case ConnectSucceeded:
		s.Connection = Connected
		s.ConnError = ""

	case ConnectFailed:
		s.Connection = ConnectionFailed
		s.ConnError = a.Message

	case PostsLoaded:
		s.Posts = a.Posts
		s.Page = a.Page
		s.TotalPages = a.TotalPages
		s.Visible = visiblePosts(s.Posts, s.Filter)

	case FilterChanged:
		s.Filter = a.Filter
		s.Visible = visiblePosts(s.Posts, s.Filter)

	case PhaseChanged:
		phases := clonePhases(s.Phases)
		if a.Phase == model.PhaseIdle {
			delete(phases, a.ItemID)
		} else {
			phases[a.ItemID] = a.Phase
		}
		s.Phases = phases

	case IdeasReady:
		ideas := cloneIdeas(s.Ideas)
		ideas[a.ItemID] = a.Ideas
		s.Ideas = ideas

	case AnalysisStarted:
		inFlight := cloneInFlight(s.InFlight)
		inFlight[a.ItemID] = a.RunID
		s.InFlight = inFlight

	case AnalysisCompleted:
		inFlight := cloneInFlight(s.InFlight)
		delete(inFlight, a.ItemID)
		s.InFlight = inFlight

		health := cloneHealth(s.Health)
		health[a.ItemID] = a.Health
		s.Health = health

	case AnalysisFailed:
		inFlight := cloneInFlight(s.InFlight)
		delete(inFlight, a.ItemID)
		s.InFlight = inFlight

	case ErrorRaised:
		s.LastError = a.Message

	case ErrorCleared:
		s.LastError = ""
	}

	return s
}

// visiblePosts recomputes the derived visible list.
func visiblePosts(posts []model.ContentItem, filter string) []model.ContentItem {
	if filter == "" {
		return posts
	}
	visible := make([]model.ContentItem, 0, len(posts))
	for _, p := range posts {
		if p.MatchesFilter(filter) {
			visible = append(visible, p)
		}
	}
	return visible
}

func clonePhases(m map[int64]model.GenerationPhase) map[int64]model.GenerationPhase {
	out := make(map[int64]model.GenerationPhase, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneIdeas(m map[int64][]model.QuizIdea) map[int64][]model.QuizIdea {
	out := make(map[int64][]model.QuizIdea, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneInFlight(m map[int64]string) map[int64]string {
	out := make(map[int64]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneHealth(m map[int64]model.ContentHealth) map[int64]model.ContentHealth {
	out := make(map[int64]model.ContentHealth, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
