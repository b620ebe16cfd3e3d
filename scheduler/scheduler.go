// Package scheduler runs background content-health analysis over a
// bounded worker pool.
//
// Analysis is opportunistic: it runs for items the user can currently
// see, never twice concurrently for the same item, and its failures are
// logged but never surfaced as user-facing errors.
//
// Information Hiding:
// - Worker pool and queue mechanics
// - In-flight bookkeeping (mirrored into state via actions)

package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/richinex/quizforge/model"
	"github.com/richinex/quizforge/state"
)

// Runner performs the per-item work. The workflow layer implements it on
// top of the health cache, draft store, and LLM client.
type Runner interface {
	// CachedHealth returns a fresh cached result derived from the item's
	// current content, if one exists.
	CachedHealth(item model.ContentItem) (model.ContentHealth, bool)

	// StoredHealth returns valid health from the item's stored draft, if
	// any. Lets a draft satisfy the analysis without a remote call.
	StoredHealth(ctx context.Context, item model.ContentItem) (model.ContentHealth, bool)

	// Analyze performs the remote health analysis and caches the result.
	Analyze(ctx context.Context, item model.ContentItem) (model.ContentHealth, error)
}

// Config tunes the pool.
type Config struct {
	// Workers is the pool size. Default: 3.
	Workers int
	// QueueSize bounds pending jobs. Default: 16.
	QueueSize int
	// MaxPerRun caps how many candidates one Run invocation queues.
	// Default: 4.
	MaxPerRun int
	// Logger receives analysis outcomes. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the standard pool tuning.
func DefaultConfig() Config {
	return Config{Workers: 3, QueueSize: 16, MaxPerRun: 4}
}

type job struct {
	item  model.ContentItem
	runID string
}

// Scheduler dispatches analysis jobs to a fixed worker pool.
type Scheduler struct {
	config Config
	runner Runner
	store  *state.Store
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan job
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	inFlight map[int64]bool
}

// New starts the worker pool. Close must be called to stop it.
func New(config Config, runner Runner, store *state.Store) *Scheduler {
	if config.Workers <= 0 {
		config.Workers = 3
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}
	if config.MaxPerRun <= 0 {
		config.MaxPerRun = 4
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		config:   config,
		runner:   runner,
		store:    store,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		queue:    make(chan job, config.QueueSize),
		inFlight: map[int64]bool{},
	}

	for i := 0; i < config.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Run queues analysis for visible items that need it. Fire-and-forget:
// it never blocks on analysis and returns the number of jobs queued.
// Items already in flight, already cached for their current content, or
// beyond the per-invocation cap are skipped.
func (s *Scheduler) Run(visible []model.ContentItem) int {
	queued := 0
	for _, item := range visible {
		if queued >= s.config.MaxPerRun {
			break
		}
		if _, ok := s.runner.CachedHealth(item); ok {
			continue
		}
		if !s.markInFlight(item.ID) {
			continue
		}

		runID := uuid.NewString()
		// Mark before any I/O so concurrent invocations observe it.
		s.store.Dispatch(state.AnalysisStarted{ItemID: item.ID, RunID: runID})

		select {
		case s.queue <- job{item: item, runID: runID}:
			queued++
		default:
			// Queue full: undo the mark and let a later Run retry.
			s.store.Dispatch(state.AnalysisFailed{ItemID: item.ID, RunID: runID})
			s.clearInFlight(item.ID)
			s.logger.Debug("analysis queue full, skipping item", "item", item.ID)
			return queued
		}
	}
	return queued
}

// Close stops accepting work, drains the queue, and waits for workers.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	close(s.queue)
	s.wg.Wait()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for j := range s.queue {
		s.process(j)
	}
}

func (s *Scheduler) process(j job) {
	defer s.clearInFlight(j.item.ID)

	if s.ctx.Err() != nil {
		s.store.Dispatch(state.AnalysisFailed{ItemID: j.item.ID, RunID: j.runID})
		return
	}

	if health, ok := s.runner.StoredHealth(s.ctx, j.item); ok {
		s.store.Dispatch(state.AnalysisCompleted{ItemID: j.item.ID, RunID: j.runID, Health: health})
		return
	}

	health, err := s.runner.Analyze(s.ctx, j.item)
	if err != nil {
		// Background work fails silently; the item just stays unanalyzed.
		s.logger.Debug("background analysis failed",
			"item", j.item.ID, "run", j.runID, "error", err)
		s.store.Dispatch(state.AnalysisFailed{ItemID: j.item.ID, RunID: j.runID})
		return
	}

	s.store.Dispatch(state.AnalysisCompleted{ItemID: j.item.ID, RunID: j.runID, Health: health})
}

// markInFlight claims the item. Returns false if another invocation
// already holds it.
func (s *Scheduler) markInFlight(itemID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.inFlight[itemID] {
		return false
	}
	s.inFlight[itemID] = true
	return true
}

func (s *Scheduler) clearInFlight(itemID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, itemID)
}
