// Draft store with write batching.
//
// Rapid successive saves for the same item (per keystroke, per generation
// step) coalesce in a pending buffer and land as one physical write after
// the batch delay. SaveImmediate bypasses batching for results that must
// survive an immediate navigation or close.

package draft

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StoreConfig configures batching and eviction.
type StoreConfig struct {
	// BatchDelay is how long a batched save may sit in the pending buffer
	// before being flushed. Default: 500ms.
	BatchDelay time.Duration
	// TTL is the maximum draft age before eviction. Default: 7 days.
	TTL time.Duration
	// MaxDrafts caps the stored record count. Default: 200.
	MaxDrafts int
	// EvictionMargin is how far below the cap maintenance prunes, so the
	// very next save does not immediately re-trigger pruning. Default: 20.
	EvictionMargin int
	// Logger receives cleanup and flush diagnostics. Default: slog.Default().
	Logger *slog.Logger
	// Now is the clock, overridable in tests. Default: time.Now.
	Now func() time.Time
}

// DefaultStoreConfig returns production batching and eviction defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		BatchDelay:     500 * time.Millisecond,
		TTL:            7 * 24 * time.Hour,
		MaxDrafts:      200,
		EvictionMargin: 20,
	}
}

// MaintenanceReport summarizes one maintenance pass.
type MaintenanceReport struct {
	EvictedCount int
	FlushedCount int
}

// Store persists drafts with batching, checksum verification on read, and
// TTL/capacity eviction. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	config  StoreConfig
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	pending map[int64]*Draft
	timer   *time.Timer
	closed  bool
}

// NewStore creates a store over the given backend. The store takes
// ownership of the backend; Close closes it.
func NewStore(backend Backend, config StoreConfig) *Store {
	if config.BatchDelay <= 0 {
		config.BatchDelay = 500 * time.Millisecond
	}
	if config.TTL <= 0 {
		config.TTL = 7 * 24 * time.Hour
	}
	if config.MaxDrafts <= 0 {
		config.MaxDrafts = 200
	}
	if config.EvictionMargin < 0 {
		config.EvictionMargin = 0
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		config:  config,
		backend: backend,
		logger:  logger,
		now:     now,
		pending: make(map[int64]*Draft),
	}
}

// Save merges the patch into any pending write for the item and schedules
// a batched flush. Durability is best-effort until the flush lands; use
// SaveImmediate for results that must survive a close.
func (s *Store) Save(ctx context.Context, itemID int64, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("draft store is closed")
	}

	d, err := s.pendingDraftLocked(ctx, itemID)
	if err != nil {
		return err
	}
	patch.apply(d)
	d.UpdatedAt = s.now()

	if s.timer == nil {
		s.timer = time.AfterFunc(s.config.BatchDelay, s.flushTimerFired)
	}
	return nil
}

// SaveImmediate merges the patch like Save but writes through synchronously,
// including any fields already sitting in the pending buffer for this item.
func (s *Store) SaveImmediate(ctx context.Context, itemID int64, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("draft store is closed")
	}

	d, err := s.pendingDraftLocked(ctx, itemID)
	if err != nil {
		return err
	}
	patch.apply(d)
	d.UpdatedAt = s.now()

	if err := s.writeLocked(ctx, d); err != nil {
		return err
	}
	delete(s.pending, itemID)
	return nil
}

// Get returns the draft for an item, or nil if absent. The pending buffer
// is authoritative; durable reads verify checksum and TTL, and a failed
// verification is treated as absence with the bad record deleted
// asynchronously.
func (s *Store) Get(ctx context.Context, itemID int64) (*Draft, error) {
	s.mu.Lock()
	if d, ok := s.pending[itemID]; ok {
		out := d.clone()
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	rec, err := s.backend.Get(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to read draft %d: %w", itemID, err)
	}
	if rec == nil {
		return nil, nil
	}

	d, decodeErr := decodeRecord(*rec)
	if decodeErr != nil {
		s.cleanupAsync(itemID, "corrupt", decodeErr)
		return nil, nil
	}
	if s.now().Sub(d.UpdatedAt) >= s.config.TTL {
		s.cleanupAsync(itemID, "expired", nil)
		return nil, nil
	}
	return d, nil
}

// Delete removes the draft for an item from both the pending buffer and
// durable storage. Used when an item's workflow completes.
func (s *Store) Delete(ctx context.Context, itemID int64) error {
	s.mu.Lock()
	delete(s.pending, itemID)
	s.mu.Unlock()
	return s.backend.Delete(ctx, itemID)
}

// ListAll returns every readable draft keyed by item ID, with pending
// writes taking precedence over durable records. Records failing
// verification are skipped.
func (s *Store) ListAll(ctx context.Context) (map[int64]*Draft, error) {
	recs, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}

	out := make(map[int64]*Draft, len(recs))
	for _, rec := range recs {
		d, decodeErr := decodeRecord(rec)
		if decodeErr != nil {
			continue
		}
		if s.now().Sub(d.UpdatedAt) >= s.config.TTL {
			continue
		}
		out[rec.ItemID] = d
	}

	s.mu.Lock()
	for id, d := range s.pending {
		out[id] = d.clone()
	}
	s.mu.Unlock()

	return out, nil
}

// Flush writes out every pending draft and returns how many landed.
func (s *Store) Flush(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// RunMaintenance flushes pending writes, evicts drafts older than the TTL,
// and prunes oldest-first down below the capacity cap. Safe to call
// concurrently with normal reads and writes.
func (s *Store) RunMaintenance(ctx context.Context) (MaintenanceReport, error) {
	var report MaintenanceReport

	flushed, err := s.Flush(ctx)
	if err != nil {
		return report, err
	}
	report.FlushedCount = flushed

	cutoff := s.now().Add(-s.config.TTL)
	expired, err := s.backend.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("ttl eviction failed: %w", err)
	}
	report.EvictedCount += expired

	count, err := s.backend.Count(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to count drafts: %w", err)
	}
	if count > s.config.MaxDrafts {
		target := count - s.config.MaxDrafts + s.config.EvictionMargin
		ids, err := s.backend.OldestIDs(ctx, target)
		if err != nil {
			return report, fmt.Errorf("capacity eviction scan failed: %w", err)
		}
		for _, id := range ids {
			if err := s.backend.Delete(ctx, id); err != nil {
				return report, fmt.Errorf("capacity eviction of draft %d failed: %w", id, err)
			}
			report.EvictedCount++
		}
	}

	return report, nil
}

// Close flushes pending writes and closes the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if _, err := s.flushLocked(context.Background()); err != nil {
		s.logger.Warn("flush on close failed", "error", err)
	}
	s.mu.Unlock()
	return s.backend.Close()
}

// pendingDraftLocked returns the pending draft for an item, seeding it from
// durable storage on first touch so patches merge onto current data.
func (s *Store) pendingDraftLocked(ctx context.Context, itemID int64) (*Draft, error) {
	if d, ok := s.pending[itemID]; ok {
		return d, nil
	}

	d := &Draft{ItemID: itemID}
	rec, err := s.backend.Get(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to read draft %d: %w", itemID, err)
	}
	if rec != nil {
		if existing, decodeErr := decodeRecord(*rec); decodeErr == nil {
			d = existing
		}
	}
	s.pending[itemID] = d
	return d, nil
}

// flushLocked writes all pending drafts. Failed writes are logged and the
// draft dropped from the buffer: batched saves are best-effort by contract.
func (s *Store) flushLocked(ctx context.Context) (int, error) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	flushed := 0
	for id, d := range s.pending {
		if err := s.writeLocked(ctx, d); err != nil {
			s.logger.Warn("batched draft write failed", "item", id, "error", err)
			delete(s.pending, id)
			continue
		}
		delete(s.pending, id)
		flushed++
	}
	return flushed, nil
}

// writeLocked performs one physical write.
func (s *Store) writeLocked(ctx context.Context, d *Draft) error {
	raw, sum, err := d.encode()
	if err != nil {
		return err
	}
	rec := Record{
		ItemID:    d.ItemID,
		Payload:   raw,
		Checksum:  sum,
		UpdatedAt: d.UpdatedAt,
	}
	if err := s.backend.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist draft %d: %w", d.ItemID, err)
	}
	return nil
}

// flushTimerFired is the batch-delay callback.
func (s *Store) flushTimerFired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, err := s.flushLocked(context.Background()); err != nil {
		s.logger.Warn("batch flush failed", "error", err)
	}
}

// cleanupAsync deletes an unreadable record without blocking the read that
// discovered it.
func (s *Store) cleanupAsync(itemID int64, reason string, cause error) {
	s.logger.Debug("discarding unreadable draft", "item", itemID, "reason", reason, "error", cause)
	go func() {
		if err := s.backend.Delete(context.Background(), itemID); err != nil {
			s.logger.Warn("cleanup of unreadable draft failed", "item", itemID, "error", err)
		}
	}()
}
