// Health analysis runner shared by the scheduler and the user-initiated
// path. Consultation order: response cache, then draft store, then the
// remote provider.

package workflow

import (
	"context"
	"fmt"

	"github.com/richinex/quizforge/draft"
	ijson "github.com/richinex/quizforge/internal/json"
	"github.com/richinex/quizforge/model"
	"github.com/richinex/quizforge/remote"
	"github.com/richinex/quizforge/scheduler"
)

// errInvalidHealth marks a structurally valid but semantically out of
// range health payload as a parse failure.
func errInvalidHealth(itemID int64) error {
	return remote.WrapKind(remote.KindParse,
		fmt.Errorf("health analysis for item %d returned out-of-range values", itemID))
}

type analysisRunner struct {
	app *App
}

// CachedHealth returns the cached result if it is fresh and was derived
// from the item's current content.
func (r *analysisRunner) CachedHealth(item model.ContentItem) (model.ContentHealth, bool) {
	raw, ok := r.app.healthCache.Get(healthKey(item.ID), item.Content)
	if !ok {
		return model.ContentHealth{}, false
	}
	health, err := decodeHealth(raw)
	if err != nil {
		// Unreadable cache entries are dropped, not surfaced.
		r.app.healthCache.Delete(healthKey(item.ID))
		return model.ContentHealth{}, false
	}
	return health, true
}

// StoredHealth satisfies the analysis from a stored draft when the draft
// carries a valid assessment, warming the cache on the way out.
func (r *analysisRunner) StoredHealth(ctx context.Context, item model.ContentItem) (model.ContentHealth, bool) {
	d, err := r.app.drafts.Get(ctx, item.ID)
	if err != nil || d == nil || d.Health == nil || !d.Health.Valid() {
		return model.ContentHealth{}, false
	}
	if raw, encErr := encodeHealth(*d.Health); encErr == nil {
		r.app.healthCache.Set(healthKey(item.ID), raw, item.Content)
	}
	return *d.Health, true
}

// Analyze performs the remote analysis, caches the result against the
// item's current content, and saves it into the item's draft.
func (r *analysisRunner) Analyze(ctx context.Context, item model.ContentItem) (model.ContentHealth, error) {
	resp, err := r.app.llm.Generate(ctx, "analyze_health", r.app.prompts.Health(item))
	if err != nil {
		return model.ContentHealth{}, err
	}

	health, err := ijson.Extract[model.ContentHealth](resp.Content)
	if err != nil {
		return model.ContentHealth{}, err
	}
	if !health.Valid() {
		return model.ContentHealth{}, errInvalidHealth(item.ID)
	}

	if raw, encErr := encodeHealth(health); encErr == nil {
		r.app.healthCache.Set(healthKey(item.ID), raw, item.Content)
	}
	if saveErr := r.app.drafts.Save(ctx, item.ID, draft.HealthPatch(health)); saveErr != nil {
		r.app.logger.Warn("failed to save health draft", "item", item.ID, "error", saveErr)
	}
	return health, nil
}

var _ scheduler.Runner = (*analysisRunner)(nil)
