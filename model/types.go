// Package model provides domain types shared across packages.
package model

import "strings"

// QuizIdea is one generated quiz suggestion for a content item.
type QuizIdea struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Angle       string `json:"angle,omitempty"` // e.g. "recall", "scenario", "myth-busting"
}

// ContentHealth is a computed content-quality assessment for one item.
type ContentHealth struct {
	Score         int      `json:"score"`          // 0-100
	Readability   string   `json:"readability"`    // e.g. "easy", "moderate", "dense"
	GapSummary    string   `json:"gap_summary"`    // prose description of content gaps
	MissingTopics []string `json:"missing_topics"` // topics the post should cover but doesn't
}

// Valid reports whether the assessment carries usable data.
// A zero-value ContentHealth is treated as absent.
func (h ContentHealth) Valid() bool {
	return h.Score > 0 || h.Readability != "" || h.GapSummary != ""
}

// ContentItem is the core's view of one WordPress post: just enough to
// key drafts, fingerprint content, and drive analysis. The full post
// representation lives in the wordpress package.
type ContentItem struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"` // plain or rendered HTML body
	Link    string `json:"link,omitempty"`
}

// MatchesFilter reports whether the item matches a free-text filter.
// Empty filter matches everything.
func (c ContentItem) MatchesFilter(filter string) bool {
	if filter == "" {
		return true
	}
	filter = strings.ToLower(filter)
	return strings.Contains(strings.ToLower(c.Title), filter) ||
		strings.Contains(strings.ToLower(c.Content), filter)
}

// GenerationPhase tracks where a user-initiated quiz generation is for an item.
type GenerationPhase int

const (
	// PhaseIdle means no generation has been started or the last one finished.
	PhaseIdle GenerationPhase = iota
	// PhaseGeneratingIdeas means idea suggestions are being generated.
	PhaseGeneratingIdeas
	// PhaseGeneratingQuiz means the full quiz is being generated.
	PhaseGeneratingQuiz
	// PhasePublishing means the quiz is being written back to WordPress.
	PhasePublishing
)

// String returns a human-readable phase name.
func (p GenerationPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGeneratingIdeas:
		return "generating_ideas"
	case PhaseGeneratingQuiz:
		return "generating_quiz"
	case PhasePublishing:
		return "publishing"
	default:
		return "unknown"
	}
}
