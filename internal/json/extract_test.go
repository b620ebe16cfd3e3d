package json

import (
	"testing"

	"github.com/richinex/quizforge/remote"
)

type health struct {
	Score       int    `json:"score"`
	Readability string `json:"readability"`
}

type idea struct {
	Title string `json:"title"`
}

func TestExtractPureJSON(t *testing.T) {
	got, err := Extract[health](`{"score": 80, "readability": "easy"}`)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got.Score != 80 || got.Readability != "easy" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestExtractMarkdownFenced(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"json fence", "```json\n{\"score\": 70, \"readability\": \"moderate\"}\n```"},
		{"bare fence", "```\n{\"score\": 70, \"readability\": \"moderate\"}\n```"},
		{"fence with whitespace", "  ```json\n  {\"score\": 70, \"readability\": \"moderate\"}\n```  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract[health](tt.response)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if got.Score != 70 {
				t.Errorf("unexpected result: %+v", got)
			}
		})
	}
}

func TestExtractEmbeddedInProse(t *testing.T) {
	response := `Here is the assessment you asked for:

{"score": 55, "readability": "dense"}

Let me know if you need more detail.`

	got, err := Extract[health](response)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got.Score != 55 || got.Readability != "dense" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestExtractArray(t *testing.T) {
	response := "Sure! Here are three ideas:\n" +
		`[{"title": "A"}, {"title": "B"}, {"title": "C"}]`

	got, err := Extract[[]idea](response)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got) != 3 || got[0].Title != "A" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestExtractFailureIsParseError(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no json at all", "I cannot help with that."},
		{"unbalanced", `{"score": 80`},
		{"wrong shape", `{"score": "not a number"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract[health](tt.response)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := remote.Classify(err); got != remote.KindParse {
				t.Errorf("expected parse classification, got %s", got)
			}
		})
	}
}

func TestExtractErrorTruncatesPreview(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	_, err := Extract[health](string(long))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(err.Error()) > 250 {
		t.Errorf("error preview not truncated: %d chars", len(err.Error()))
	}
}
