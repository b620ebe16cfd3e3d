// Package workflow wires the library together and exposes the
// orchestration operations a UI layer drives.
//
// Information Hiding:
// - Construction and wiring of every subsystem
// - Cache keying and cache/draft consultation order
// - Per-item cancellation bookkeeping
//
// Prompt construction is the consumer's concern: the Prompts interface
// supplies the requests, this package supplies resilience, caching,
// persistence, and state transitions around them.

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/richinex/quizforge/cache"
	"github.com/richinex/quizforge/config"
	"github.com/richinex/quizforge/draft"
	ijson "github.com/richinex/quizforge/internal/json"
	"github.com/richinex/quizforge/llm"
	"github.com/richinex/quizforge/model"
	"github.com/richinex/quizforge/remote"
	"github.com/richinex/quizforge/scheduler"
	"github.com/richinex/quizforge/state"
	"github.com/richinex/quizforge/wordpress"
)

// Prompts supplies the LLM requests for each generation task. The
// library never builds prompt text itself.
type Prompts interface {
	// Ideas returns the request producing a JSON array of quiz ideas.
	Ideas(item model.ContentItem) llm.Request
	// Quiz returns the request producing quiz HTML for the chosen idea.
	Quiz(item model.ContentItem, idea model.QuizIdea) llm.Request
	// Health returns the request producing a content-health JSON object.
	Health(item model.ContentItem) llm.Request
}

// App is the composition root. All collaborators are injected at
// construction; there are no package-level singletons.
type App struct {
	settings config.Settings
	prompts  Prompts
	logger   *slog.Logger

	store       *state.Store
	drafts      *draft.Store
	quizCache   *cache.Cache
	healthCache *cache.Cache
	llm         *llm.Client
	wp          *wordpress.Client
	sched       *scheduler.Scheduler

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
}

// Option overrides a default collaborator, mainly for tests.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	provider     llm.Provider
	draftBackend draft.Backend
	wpClient     func(*remote.Caller) *wordpress.Client
}

// WithLogger sets the logger shared by all subsystems.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProvider bypasses the factory and uses the given provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithDraftBackend uses the given backend instead of opening the
// configured SQLite file.
func WithDraftBackend(b draft.Backend) Option {
	return func(o *options) { o.draftBackend = b }
}

// WithWordPressClient builds the WordPress client from the data caller,
// overriding the configured site.
func WithWordPressClient(build func(*remote.Caller) *wordpress.Client) Option {
	return func(o *options) { o.wpClient = build }
}

// New builds the application from settings.
func New(settings config.Settings, prompts Prompts, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	provider := o.provider
	if provider == nil {
		apiKey, err := config.APIKeyFor(settings.LLM.Provider)
		if err != nil {
			return nil, err
		}
		providerType, err := llm.ParseProviderType(settings.LLM.Provider)
		if err != nil {
			return nil, err
		}
		provider, err = providerType.
			Model(settings.LLM.Model).
			MaxTokens(settings.LLM.MaxTokens).
			Temperature(float32(settings.LLM.Temperature)).
			APIKey(apiKey)
		if err != nil {
			return nil, err
		}
	}

	breakers := remote.NewBreakerRegistry(remote.BreakerConfig{
		FailureThreshold: settings.Remote.BreakerThreshold,
		Cooldown:         settings.Remote.BreakerCooldown,
	})

	genConfig := remote.GenerationCallerConfig()
	genConfig.MaxRetries = settings.Remote.MaxRetries
	genConfig.Timeout = settings.Remote.GenerationTimeout
	genConfig.Logger = logger
	genCaller := remote.NewCaller(genConfig, breakers)

	dataConfig := remote.DataCallerConfig()
	dataConfig.MaxRetries = settings.Remote.MaxRetries
	dataConfig.Timeout = settings.Remote.DataTimeout
	dataConfig.Logger = logger
	dataCaller := remote.NewCaller(dataConfig, breakers)

	var wp *wordpress.Client
	if o.wpClient != nil {
		wp = o.wpClient(dataCaller)
	} else {
		wp = wordpress.NewClient(
			settings.WordPress.BaseURL,
			settings.WordPress.Username,
			settings.WordPress.AppPassword,
			dataCaller,
		)
	}

	backend := o.draftBackend
	if backend == nil {
		var err error
		backend, err = draft.OpenSqlite(settings.Draft.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open draft storage: %w", err)
		}
	}
	draftConfig := draft.DefaultStoreConfig()
	draftConfig.BatchDelay = settings.Draft.BatchDelay
	draftConfig.TTL = settings.Draft.TTL
	draftConfig.MaxDrafts = settings.Draft.MaxDrafts
	draftConfig.Logger = logger
	drafts := draft.NewStore(backend, draftConfig)

	app := &App{
		settings:    settings,
		prompts:     prompts,
		logger:      logger,
		store:       state.NewStore(),
		drafts:      drafts,
		quizCache:   cache.New(settings.Cache.QuizCapacity, settings.Cache.QuizTTL),
		healthCache: cache.New(settings.Cache.HealthCapacity, settings.Cache.HealthTTL),
		llm:         llm.NewClient(provider, genCaller),
		wp:          wp,
		cancels:     map[int64]context.CancelFunc{},
	}

	schedConfig := scheduler.DefaultConfig()
	schedConfig.Workers = settings.Scheduler.Workers
	schedConfig.MaxPerRun = settings.Scheduler.MaxPerRun
	schedConfig.Logger = logger
	app.sched = scheduler.New(schedConfig, &analysisRunner{app: app}, app.store)

	return app, nil
}

// Store exposes the state store for snapshots and UI subscriptions.
func (a *App) Store() *state.Store {
	return a.store
}

// Drafts exposes the draft store for direct reads by the UI layer.
func (a *App) Drafts() *draft.Store {
	return a.drafts
}

// Connect validates connectivity and credentials against the site.
func (a *App) Connect(ctx context.Context) error {
	a.store.Dispatch(state.ConnectStarted{})
	if err := a.wp.Ping(ctx); err != nil {
		a.store.Dispatch(state.ConnectFailed{Message: userMessage(err)})
		return err
	}
	a.store.Dispatch(state.ConnectSucceeded{})
	return nil
}

// LoadPosts fetches one page of posts into the state.
func (a *App) LoadPosts(ctx context.Context, page int) error {
	result, err := a.wp.ListPosts(ctx, page, a.settings.WordPress.PageSize)
	if err != nil {
		a.store.Dispatch(state.ErrorRaised{Message: userMessage(err)})
		return err
	}
	a.store.Dispatch(state.PostsLoaded{
		Posts:      result.Posts,
		Page:       page,
		TotalPages: result.TotalPages,
	})
	return nil
}

// SetFilter updates the search filter; the visible list is derived by
// the reducer.
func (a *App) SetFilter(filter string) {
	a.store.Dispatch(state.FilterChanged{Filter: filter})
}

// GenerateIdeas produces quiz ideas for an item. Cancellable per item via
// CancelGeneration.
func (a *App) GenerateIdeas(ctx context.Context, item model.ContentItem) ([]model.QuizIdea, error) {
	ctx, done := a.itemContext(ctx, item.ID)
	defer done()

	a.store.Dispatch(state.PhaseChanged{ItemID: item.ID, Phase: model.PhaseGeneratingIdeas})
	defer a.store.Dispatch(state.PhaseChanged{ItemID: item.ID, Phase: model.PhaseIdle})

	resp, err := a.llm.Generate(ctx, "generate_ideas", a.prompts.Ideas(item))
	if err != nil {
		a.raiseUnlessCancelled(ctx, err)
		return nil, err
	}

	ideas, err := ijson.Extract[[]model.QuizIdea](resp.Content)
	if err != nil {
		a.store.Dispatch(state.ErrorRaised{Message: userMessage(err)})
		return nil, err
	}

	a.store.Dispatch(state.IdeasReady{ItemID: item.ID, Ideas: ideas})
	if err := a.drafts.Save(ctx, item.ID, draft.IdeasPatch(ideas)); err != nil {
		a.logger.Warn("failed to save ideas draft", "item", item.ID, "error", err)
	}
	return ideas, nil
}

// GenerateQuiz produces quiz HTML for the chosen idea. The quiz cache is
// consulted first, keyed by provider, model, and item, and validated
// against the item's current content. Results persist immediately.
func (a *App) GenerateQuiz(ctx context.Context, item model.ContentItem, idea model.QuizIdea, onProgress remote.ProgressFunc) (string, error) {
	ctx, done := a.itemContext(ctx, item.ID)
	defer done()

	a.store.Dispatch(state.PhaseChanged{ItemID: item.ID, Phase: model.PhaseGeneratingQuiz})
	defer a.store.Dispatch(state.PhaseChanged{ItemID: item.ID, Phase: model.PhaseIdle})

	key := a.quizKey(item.ID, idea)
	if html, ok := a.quizCache.Get(key, item.Content); ok {
		if onProgress != nil {
			onProgress("", 100, "complete")
		}
		a.persistQuiz(ctx, item.ID, idea, html)
		return html, nil
	}

	resp, err := a.llm.GenerateStream(ctx, "generate_quiz", a.prompts.Quiz(item, idea), onProgress)
	if err != nil {
		a.raiseUnlessCancelled(ctx, err)
		return "", err
	}

	a.quizCache.Set(key, resp.Content, item.Content)
	a.persistQuiz(ctx, item.ID, idea, resp.Content)
	return resp.Content, nil
}

// AnalyzeHealth runs a user-initiated health analysis. Unlike background
// analysis, errors surface to the caller and the error state.
func (a *App) AnalyzeHealth(ctx context.Context, item model.ContentItem) (model.ContentHealth, error) {
	runner := analysisRunner{app: a}
	if health, ok := runner.CachedHealth(item); ok {
		return health, nil
	}

	runID := uuid.NewString()
	a.store.Dispatch(state.AnalysisStarted{ItemID: item.ID, RunID: runID})

	if health, ok := runner.StoredHealth(ctx, item); ok {
		a.store.Dispatch(state.AnalysisCompleted{ItemID: item.ID, RunID: runID, Health: health})
		return health, nil
	}

	health, err := runner.Analyze(ctx, item)
	if err != nil {
		a.store.Dispatch(state.AnalysisFailed{ItemID: item.ID, RunID: runID})
		a.raiseUnlessCancelled(ctx, err)
		return model.ContentHealth{}, err
	}

	a.store.Dispatch(state.AnalysisCompleted{ItemID: item.ID, RunID: runID, Health: health})
	return health, nil
}

// RunBackgroundAnalysis queues opportunistic analysis for visible items.
// Fire-and-forget; failures never reach the error state.
func (a *App) RunBackgroundAnalysis(visible []model.ContentItem) {
	a.sched.Run(visible)
}

// Publish creates the quiz artifact, applies any suggested content
// update, and deletes the draft once everything landed.
func (a *App) Publish(ctx context.Context, item model.ContentItem) error {
	a.store.Dispatch(state.PhaseChanged{ItemID: item.ID, Phase: model.PhasePublishing})
	defer a.store.Dispatch(state.PhaseChanged{ItemID: item.ID, Phase: model.PhaseIdle})

	d, err := a.drafts.Get(ctx, item.ID)
	if err != nil {
		return err
	}
	if d == nil || d.QuizHTML == "" {
		err := fmt.Errorf("item %d has no generated quiz to publish", item.ID)
		a.store.Dispatch(state.ErrorRaised{Message: err.Error()})
		return err
	}

	artifact, err := a.wp.CreateQuizArtifact(ctx, item.ID, uuid.NewString(), d.QuizHTML)
	if err != nil {
		a.store.Dispatch(state.ErrorRaised{Message: userMessage(err)})
		return err
	}

	if d.SuggestedUpdate != "" {
		if err := a.wp.UpdatePost(ctx, item.ID, d.SuggestedUpdate); err != nil {
			// Roll back the artifact so a retry starts clean.
			if delErr := a.wp.DeleteQuizArtifact(ctx, artifact.ID); delErr != nil {
				a.logger.Warn("artifact rollback failed",
					"item", item.ID, "artifact", artifact.ID, "error", delErr)
			}
			a.store.Dispatch(state.ErrorRaised{Message: userMessage(err)})
			return err
		}
	}

	if err := a.drafts.Delete(ctx, item.ID); err != nil {
		a.logger.Warn("failed to delete published draft", "item", item.ID, "error", err)
	}
	return nil
}

// CancelGeneration aborts any in-flight generation for the item. The
// cancellation is real: the underlying SDK call is torn down.
func (a *App) CancelGeneration(itemID int64) {
	a.mu.Lock()
	cancel := a.cancels[itemID]
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ClearError clears the user-facing error message.
func (a *App) ClearError() {
	a.store.Dispatch(state.ErrorCleared{})
}

// Close flushes drafts, stops the scheduler, and shuts down the state
// store. In-flight generations are cancelled.
func (a *App) Close() error {
	a.mu.Lock()
	for _, cancel := range a.cancels {
		cancel()
	}
	a.mu.Unlock()

	a.sched.Close()
	err := a.drafts.Close()
	a.store.Close()
	return err
}

// itemContext derives a cancellable context registered under the item,
// replacing any earlier registration.
func (a *App) itemContext(ctx context.Context, itemID int64) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancels[itemID] = cancel
	a.mu.Unlock()
	return ctx, func() {
		a.mu.Lock()
		if a.cancels[itemID] != nil {
			delete(a.cancels, itemID)
		}
		a.mu.Unlock()
		cancel()
	}
}

// persistQuiz writes the generated quiz through synchronously so it
// survives an immediate navigation or close.
func (a *App) persistQuiz(ctx context.Context, itemID int64, idea model.QuizIdea, html string) {
	patch := draft.QuizHTMLPatch(html)
	patch.SelectedIdea = &idea
	if err := a.drafts.SaveImmediate(ctx, itemID, patch); err != nil {
		a.logger.Warn("failed to persist quiz draft", "item", itemID, "error", err)
	}
}

// raiseUnlessCancelled surfaces an error to the state unless the caller
// cancelled, which is not an error condition from the user's view.
func (a *App) raiseUnlessCancelled(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return
	}
	a.store.Dispatch(state.ErrorRaised{Message: userMessage(err)})
}

// quizKey keys cached quizzes by provider, model, item, and idea title so
// a provider or model switch never serves a stale quiz.
func (a *App) quizKey(itemID int64, idea model.QuizIdea) string {
	p := a.llm.Provider()
	return fmt.Sprintf("quiz:%s:%s:%d:%s", p.Name(), p.Model(), itemID, idea.Title)
}

// healthKey keys cached health results by item.
func healthKey(itemID int64) string {
	return fmt.Sprintf("health:%d", itemID)
}

// userMessage converts an internal error into the message stored in
// user-facing state.
func userMessage(err error) string {
	var callErr *remote.CallError
	if errors.As(err, &callErr) {
		switch callErr.Kind {
		case remote.KindUnavailable:
			return fmt.Sprintf("%s is temporarily unavailable, please retry shortly", callErr.Provider)
		case remote.KindAuth:
			return fmt.Sprintf("%s rejected the configured credentials", callErr.Provider)
		case remote.KindQuota:
			return fmt.Sprintf("%s rate limit reached, please retry later", callErr.Provider)
		case remote.KindTimeout:
			return fmt.Sprintf("%s timed out", callErr.Provider)
		}
	}
	return err.Error()
}

// encodeHealth round-trips health through JSON for cache storage.
func encodeHealth(h model.ContentHealth) (string, error) {
	raw, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("failed to encode health result: %w", err)
	}
	return string(raw), nil
}

func decodeHealth(raw string) (model.ContentHealth, error) {
	var h model.ContentHealth
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return model.ContentHealth{}, fmt.Errorf("failed to decode cached health: %w", err)
	}
	return h, nil
}
