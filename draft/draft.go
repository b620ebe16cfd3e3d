// Package draft provides checksum-verified persistence for in-progress
// quiz work, with write batching and TTL-based eviction.
//
// Information Hiding:
// - Checksum algorithm and canonical encoding hidden
// - Pending-write coalescing hidden behind Save/SaveImmediate
// - Storage engine hidden behind Backend
package draft

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/richinex/quizforge/model"
)

// Draft is the saved in-progress work for one content item.
type Draft struct {
	ItemID          int64                `json:"item_id"`
	Ideas           []model.QuizIdea     `json:"ideas,omitempty"`
	Health          *model.ContentHealth `json:"health,omitempty"`
	SelectedIdea    *model.QuizIdea      `json:"selected_idea,omitempty"`
	QuizHTML        string               `json:"quiz_html,omitempty"`
	SuggestedUpdate string               `json:"suggested_update,omitempty"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// Patch is a partial update applied field-wise: a nil field leaves the
// existing value untouched, a non-nil field overwrites it.
type Patch struct {
	Ideas           *[]model.QuizIdea
	Health          *model.ContentHealth
	SelectedIdea    *model.QuizIdea
	QuizHTML        *string
	SuggestedUpdate *string
}

// apply merges the patch into d.
func (p Patch) apply(d *Draft) {
	if p.Ideas != nil {
		d.Ideas = *p.Ideas
	}
	if p.Health != nil {
		d.Health = p.Health
	}
	if p.SelectedIdea != nil {
		d.SelectedIdea = p.SelectedIdea
	}
	if p.QuizHTML != nil {
		d.QuizHTML = *p.QuizHTML
	}
	if p.SuggestedUpdate != nil {
		d.SuggestedUpdate = *p.SuggestedUpdate
	}
}

// IdeasPatch builds a patch replacing the idea list.
func IdeasPatch(ideas []model.QuizIdea) Patch {
	return Patch{Ideas: &ideas}
}

// HealthPatch builds a patch setting the health assessment.
func HealthPatch(health model.ContentHealth) Patch {
	return Patch{Health: &health}
}

// SelectedIdeaPatch builds a patch setting the chosen idea.
func SelectedIdeaPatch(idea model.QuizIdea) Patch {
	return Patch{SelectedIdea: &idea}
}

// QuizHTMLPatch builds a patch setting the generated quiz payload.
func QuizHTMLPatch(html string) Patch {
	return Patch{QuizHTML: &html}
}

// SuggestedUpdatePatch builds a patch setting the suggested content update.
func SuggestedUpdatePatch(text string) Patch {
	return Patch{SuggestedUpdate: &text}
}

// payload is the canonical encoding of a draft's semantic fields. The key,
// timestamp, and checksum are deliberately excluded so that the checksum
// detects corruption of the content itself.
type payload struct {
	Ideas           []model.QuizIdea     `json:"ideas,omitempty"`
	Health          *model.ContentHealth `json:"health,omitempty"`
	SelectedIdea    *model.QuizIdea      `json:"selected_idea,omitempty"`
	QuizHTML        string               `json:"quiz_html,omitempty"`
	SuggestedUpdate string               `json:"suggested_update,omitempty"`
}

// Checksum computes the 32-bit integrity digest over encoded payload bytes.
// Fast non-cryptographic hashing is intentional: this detects corruption,
// it is not a security boundary.
func Checksum(encoded []byte) uint32 {
	return uint32(xxhash.Sum64(encoded))
}

// encode serializes the draft's semantic fields and returns the bytes with
// their checksum.
func (d *Draft) encode() ([]byte, uint32, error) {
	raw, err := json.Marshal(payload{
		Ideas:           d.Ideas,
		Health:          d.Health,
		SelectedIdea:    d.SelectedIdea,
		QuizHTML:        d.QuizHTML,
		SuggestedUpdate: d.SuggestedUpdate,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode draft %d: %w", d.ItemID, err)
	}
	return raw, Checksum(raw), nil
}

// decodeRecord rebuilds a draft from a stored record, verifying the
// checksum. A mismatch means the record is corrupt and must be treated as
// absent.
func decodeRecord(rec Record) (*Draft, error) {
	if Checksum(rec.Payload) != rec.Checksum {
		return nil, fmt.Errorf("draft %d: checksum mismatch", rec.ItemID)
	}
	var p payload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, fmt.Errorf("draft %d: malformed payload: %w", rec.ItemID, err)
	}
	return &Draft{
		ItemID:          rec.ItemID,
		Ideas:           p.Ideas,
		Health:          p.Health,
		SelectedIdea:    p.SelectedIdea,
		QuizHTML:        p.QuizHTML,
		SuggestedUpdate: p.SuggestedUpdate,
		UpdatedAt:       rec.UpdatedAt,
	}, nil
}

// clone returns a deep-enough copy so pending-buffer mutations never leak
// through snapshots handed to callers.
func (d *Draft) clone() *Draft {
	if d == nil {
		return nil
	}
	out := *d
	if d.Ideas != nil {
		out.Ideas = append([]model.QuizIdea(nil), d.Ideas...)
	}
	if d.Health != nil {
		h := *d.Health
		h.MissingTopics = append([]string(nil), d.Health.MissingTopics...)
		out.Health = &h
	}
	if d.SelectedIdea != nil {
		idea := *d.SelectedIdea
		out.SelectedIdea = &idea
	}
	return &out
}
