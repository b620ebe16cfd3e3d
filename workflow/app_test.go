package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/richinex/quizforge/config"
	"github.com/richinex/quizforge/draft"
	"github.com/richinex/quizforge/llm"
	"github.com/richinex/quizforge/model"
	"github.com/richinex/quizforge/remote"
	"github.com/richinex/quizforge/state"
	"github.com/richinex/quizforge/wordpress"
)

// mockProvider returns a scripted response and counts calls.
type mockProvider struct {
	response string
	err      error
	block    chan struct{} // when set, Generate* waits for it or ctx
	calls    atomic.Int32
}

func (m *mockProvider) Name() string  { return "mock" }
func (m *mockProvider) Model() string { return "mock-1" }

func (m *mockProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	m.calls.Add(1)
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	if m.err != nil {
		return llm.Response{}, m.err
	}
	return llm.Response{Content: m.response}, nil
}

func (m *mockProvider) GenerateStream(ctx context.Context, req llm.Request, onChunk func(string)) (llm.Response, error) {
	resp, err := m.Generate(ctx, req)
	if err == nil && onChunk != nil {
		onChunk(resp.Content)
	}
	return resp, err
}

var _ llm.Provider = (*mockProvider)(nil)

// staticPrompts satisfies Prompts without building real prompt text.
type staticPrompts struct{}

func (staticPrompts) Ideas(item model.ContentItem) llm.Request {
	return llm.Request{Prompt: "ideas for " + item.Title}
}
func (staticPrompts) Quiz(item model.ContentItem, idea model.QuizIdea) llm.Request {
	return llm.Request{Prompt: "quiz " + idea.Title, ExpectedBytes: 1024}
}
func (staticPrompts) Health(item model.ContentItem) llm.Request {
	return llm.Request{Prompt: "health for " + item.Title}
}

func testSettings() config.Settings {
	return config.Settings{
		WordPress: config.WordPressConfig{PageSize: 10},
		Remote: config.RemoteConfig{
			MaxRetries:        1,
			GenerationTimeout: 5 * time.Second,
			DataTimeout:       5 * time.Second,
			BreakerThreshold:  5,
			BreakerCooldown:   time.Minute,
		},
	}
}

func newTestApp(t *testing.T, provider llm.Provider, wpHandler http.Handler) (*App, *httptest.Server) {
	t.Helper()

	backend, err := draft.NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create draft backend: %v", err)
	}

	var server *httptest.Server
	opts := []Option{WithProvider(provider), WithDraftBackend(backend)}
	if wpHandler != nil {
		server = httptest.NewServer(wpHandler)
		url := server.URL
		opts = append(opts, WithWordPressClient(func(caller *remote.Caller) *wordpress.Client {
			return wordpress.NewClient(url, "editor", "pass", caller)
		}))
	}

	app, err := New(testSettings(), staticPrompts{}, opts...)
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	t.Cleanup(func() {
		app.Close()
		if server != nil {
			server.Close()
		}
	})
	return app, server
}

func TestGenerateIdeas(t *testing.T) {
	provider := &mockProvider{
		response: `[{"title":"Recall basics","description":"d","angle":"recall"},{"title":"Scenario","description":"d2"}]`,
	}
	app, _ := newTestApp(t, provider, nil)

	item := model.ContentItem{ID: 1, Title: "Go Slices", Content: "body"}
	ideas, err := app.GenerateIdeas(context.Background(), item)
	if err != nil {
		t.Fatalf("GenerateIdeas failed: %v", err)
	}
	if len(ideas) != 2 || ideas[0].Title != "Recall basics" {
		t.Errorf("unexpected ideas: %+v", ideas)
	}

	app.Store().Barrier()
	snap := app.Store().Snapshot()
	if len(snap.Ideas[1]) != 2 {
		t.Errorf("ideas not dispatched to state: %+v", snap.Ideas)
	}
	if snap.Phase(1) != model.PhaseIdle {
		t.Errorf("phase should return to idle, got %s", snap.Phase(1))
	}
}

func TestGenerateIdeasParseFailureSurfaces(t *testing.T) {
	provider := &mockProvider{response: "I'd rather not produce JSON today."}
	app, _ := newTestApp(t, provider, nil)

	item := model.ContentItem{ID: 1, Title: "T", Content: "body"}
	if _, err := app.GenerateIdeas(context.Background(), item); err == nil {
		t.Fatal("expected parse error")
	}

	app.Store().Barrier()
	if app.Store().Snapshot().LastError == "" {
		t.Error("parse failure should surface in error state")
	}
}

func TestGenerateQuizCacheHitAvoidsNetwork(t *testing.T) {
	provider := &mockProvider{response: "<div>quiz</div>"}
	app, _ := newTestApp(t, provider, nil)

	item := model.ContentItem{ID: 2, Title: "T", Content: "stable body"}
	idea := model.QuizIdea{Title: "Recall"}

	first, err := app.GenerateQuiz(context.Background(), item, idea, nil)
	if err != nil {
		t.Fatalf("first GenerateQuiz failed: %v", err)
	}
	second, err := app.GenerateQuiz(context.Background(), item, idea, nil)
	if err != nil {
		t.Fatalf("second GenerateQuiz failed: %v", err)
	}

	if first != "<div>quiz</div>" || second != first {
		t.Errorf("unexpected quiz HTML: %q, %q", first, second)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Errorf("cache hit must avoid the network, got %d provider calls", got)
	}
}

func TestGenerateQuizContentChangeBypassesCache(t *testing.T) {
	provider := &mockProvider{response: "<div>quiz</div>"}
	app, _ := newTestApp(t, provider, nil)

	idea := model.QuizIdea{Title: "Recall"}
	item := model.ContentItem{ID: 2, Title: "T", Content: "v1"}
	if _, err := app.GenerateQuiz(context.Background(), item, idea, nil); err != nil {
		t.Fatalf("GenerateQuiz failed: %v", err)
	}

	item.Content = "v2 edited"
	if _, err := app.GenerateQuiz(context.Background(), item, idea, nil); err != nil {
		t.Fatalf("GenerateQuiz failed: %v", err)
	}

	if got := provider.calls.Load(); got != 2 {
		t.Errorf("edited content must regenerate, got %d provider calls", got)
	}
}

func TestGenerateQuizPersistsDraftImmediately(t *testing.T) {
	provider := &mockProvider{response: "<div>quiz</div>"}
	app, _ := newTestApp(t, provider, nil)

	item := model.ContentItem{ID: 3, Title: "T", Content: "body"}
	idea := model.QuizIdea{Title: "Recall", Description: "d"}
	if _, err := app.GenerateQuiz(context.Background(), item, idea, nil); err != nil {
		t.Fatalf("GenerateQuiz failed: %v", err)
	}

	d, err := app.Drafts().Get(context.Background(), 3)
	if err != nil {
		t.Fatalf("draft read failed: %v", err)
	}
	if d == nil || d.QuizHTML != "<div>quiz</div>" {
		t.Fatalf("quiz not persisted: %+v", d)
	}
	if d.SelectedIdea == nil || d.SelectedIdea.Title != "Recall" {
		t.Errorf("selected idea not persisted: %+v", d.SelectedIdea)
	}
}

func TestGenerateQuizReportsProgress(t *testing.T) {
	provider := &mockProvider{response: "<div>quiz</div>"}
	app, _ := newTestApp(t, provider, nil)

	var percents []int
	onProgress := func(chunk string, percent int, stage string) {
		percents = append(percents, percent)
	}

	item := model.ContentItem{ID: 4, Title: "T", Content: "body"}
	if _, err := app.GenerateQuiz(context.Background(), item, model.QuizIdea{Title: "R"}, onProgress); err != nil {
		t.Fatalf("GenerateQuiz failed: %v", err)
	}

	if len(percents) == 0 {
		t.Fatal("expected progress updates")
	}
	if percents[len(percents)-1] != 100 {
		t.Errorf("final update must be 100, got %v", percents)
	}
}

func TestCancelGenerationAbortsInFlight(t *testing.T) {
	provider := &mockProvider{response: "<div>quiz</div>", block: make(chan struct{})}
	app, _ := newTestApp(t, provider, nil)

	item := model.ContentItem{ID: 5, Title: "T", Content: "body"}
	errCh := make(chan error, 1)
	go func() {
		_, err := app.GenerateQuiz(context.Background(), item, model.QuizIdea{Title: "R"}, nil)
		errCh <- err
	}()

	// Wait for the provider call to start, then cancel.
	deadline := time.Now().Add(2 * time.Second)
	for provider.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("generation never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	app.CancelGeneration(5)

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancellation did not abort the call")
	}

	app.Store().Barrier()
	snap := app.Store().Snapshot()
	if snap.LastError != "" {
		t.Errorf("cancellation must not surface as an error: %q", snap.LastError)
	}
	if snap.Phase(5) != model.PhaseIdle {
		t.Errorf("phase should return to idle after cancel, got %s", snap.Phase(5))
	}
}

func TestAnalyzeHealthCachesResult(t *testing.T) {
	provider := &mockProvider{
		response: `{"score": 72, "readability": "moderate", "gap_summary": "thin examples"}`,
	}
	app, _ := newTestApp(t, provider, nil)

	item := model.ContentItem{ID: 6, Title: "T", Content: "body"}
	first, err := app.AnalyzeHealth(context.Background(), item)
	if err != nil {
		t.Fatalf("AnalyzeHealth failed: %v", err)
	}
	if first.Score != 72 {
		t.Errorf("unexpected health: %+v", first)
	}

	second, err := app.AnalyzeHealth(context.Background(), item)
	if err != nil {
		t.Fatalf("second AnalyzeHealth failed: %v", err)
	}
	if second.Score != 72 {
		t.Errorf("unexpected cached health: %+v", second)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Errorf("repeat analysis must hit the cache, got %d calls", got)
	}
}

func TestConnectDispatchesLifecycle(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 1})
	})
	app, _ := newTestApp(t, &mockProvider{}, handler)

	if err := app.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	app.Store().Barrier()
	if got := app.Store().Snapshot().Connection; got != state.Connected {
		t.Errorf("expected connected, got %s", got)
	}
}

func TestConnectFailureRecordsMessage(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"code": "bad_auth", "message": "nope"})
	})
	app, _ := newTestApp(t, &mockProvider{}, handler)

	if err := app.Connect(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	app.Store().Barrier()
	snap := app.Store().Snapshot()
	if snap.Connection != state.ConnectionFailed {
		t.Errorf("expected connection failed, got %s", snap.Connection)
	}
	if snap.ConnError == "" {
		t.Error("expected a user-facing connection error message")
	}
}

func TestLoadPosts(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-WP-TotalPages", "2")
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "title": map[string]string{"rendered": "A"}, "content": map[string]string{"rendered": "a"}},
			{"id": 2, "title": map[string]string{"rendered": "B"}, "content": map[string]string{"rendered": "b"}},
		})
	})
	app, _ := newTestApp(t, &mockProvider{}, handler)

	if err := app.LoadPosts(context.Background(), 1); err != nil {
		t.Fatalf("LoadPosts failed: %v", err)
	}
	app.Store().Barrier()
	snap := app.Store().Snapshot()
	if len(snap.Posts) != 2 || snap.TotalPages != 2 || snap.Page != 1 {
		t.Errorf("unexpected state: %d posts, page %d/%d", len(snap.Posts), snap.Page, snap.TotalPages)
	}
	if len(snap.Visible) != 2 {
		t.Errorf("visible list not derived: %d", len(snap.Visible))
	}
}

func TestPublishCreatesArtifactAndDeletesDraft(t *testing.T) {
	var artifactCreated, postUpdated bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/wp-json/quizforge/v1/artifacts":
			artifactCreated = true
			json.NewEncoder(w).Encode(map[string]any{"id": 77, "post_id": 7})
		case r.Method == http.MethodPost && r.URL.Path == "/wp-json/wp/v2/posts/7":
			postUpdated = true
			json.NewEncoder(w).Encode(map[string]any{"id": 7})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})
	provider := &mockProvider{response: "<div>quiz</div>"}
	app, _ := newTestApp(t, provider, handler)

	item := model.ContentItem{ID: 7, Title: "T", Content: "body"}
	if _, err := app.GenerateQuiz(context.Background(), item, model.QuizIdea{Title: "R"}, nil); err != nil {
		t.Fatalf("GenerateQuiz failed: %v", err)
	}
	if err := app.Drafts().SaveImmediate(context.Background(), 7, draft.SuggestedUpdatePatch("<p>updated</p>")); err != nil {
		t.Fatalf("draft save failed: %v", err)
	}

	if err := app.Publish(context.Background(), item); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if !artifactCreated {
		t.Error("artifact was not created")
	}
	if !postUpdated {
		t.Error("post was not updated")
	}
	d, err := app.Drafts().Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("draft read failed: %v", err)
	}
	if d != nil {
		t.Errorf("draft must be deleted after publish, got %+v", d)
	}
}

func TestPublishWithoutQuizFails(t *testing.T) {
	app, _ := newTestApp(t, &mockProvider{}, nil)

	item := model.ContentItem{ID: 8, Title: "T", Content: "body"}
	if err := app.Publish(context.Background(), item); err == nil {
		t.Fatal("expected error when no quiz exists")
	}
	app.Store().Barrier()
	if app.Store().Snapshot().LastError == "" {
		t.Error("missing quiz should surface in error state")
	}
}

func TestRunBackgroundAnalysisPopulatesState(t *testing.T) {
	provider := &mockProvider{
		response: `{"score": 60, "readability": "moderate", "gap_summary": "ok"}`,
	}
	app, _ := newTestApp(t, provider, nil)

	items := []model.ContentItem{
		{ID: 21, Title: "A", Content: "a"},
		{ID: 22, Title: "B", Content: "b"},
	}
	app.RunBackgroundAnalysis(items)

	deadline := time.Now().Add(5 * time.Second)
	for {
		app.Store().Barrier()
		snap := app.Store().Snapshot()
		if len(snap.Health) == 2 && len(snap.InFlight) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("analysis never completed: health=%v inflight=%v", snap.Health, snap.InFlight)
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap := app.Store().Snapshot()
	if snap.Health[21].Score != 60 || snap.Health[22].Score != 60 {
		t.Errorf("unexpected health: %+v", snap.Health)
	}
	if snap.LastError != "" {
		t.Errorf("background analysis must stay silent: %q", snap.LastError)
	}
}
