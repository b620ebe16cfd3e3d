// Storage engine contract for draft records.

package draft

import (
	"context"
	"time"
)

// Record is the durable form of one draft: canonical payload bytes, their
// checksum, and the write timestamp used for TTL eviction.
type Record struct {
	ItemID    int64
	Payload   []byte
	Checksum  uint32
	UpdatedAt time.Time
}

// Backend is the embedded key-value engine behind the store. Implementations
// must support primary-key CRUD and range operations over the write
// timestamp (for TTL eviction and oldest-first capacity pruning).
type Backend interface {
	// Put inserts or replaces the record for its item.
	Put(ctx context.Context, rec Record) error

	// Get returns the record for an item, or nil if absent.
	Get(ctx context.Context, itemID int64) (*Record, error)

	// Delete removes the record for an item. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, itemID int64) error

	// List returns all records, newest first.
	List(ctx context.Context) ([]Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// DeleteOlderThan removes records last written before cutoff and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// OldestIDs returns up to limit item IDs ordered oldest-first by
	// write timestamp.
	OldestIDs(ctx context.Context, limit int) ([]int64, error)

	// Close releases the engine.
	Close() error
}
