// SQLite backend for draft records.
//
// Information Hiding:
// - Connection management hidden behind Backend
// - Schema and versioning details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package draft

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is bumped on incompatible schema changes. A database with a
// newer version than we understand is refused rather than silently misread.
const schemaVersion = 1

// SqliteBackend implements Backend using a SQLite database file.
type SqliteBackend struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteBackend, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	backend := &SqliteBackend{db: db}
	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return backend, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
// The pool is pinned to one connection; each new connection to :memory:
// would otherwise see its own empty database.
func NewSqliteInMemory() (*SqliteBackend, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	db.SetMaxOpenConns(1)

	backend := &SqliteBackend{db: db}
	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return backend, nil
}

// Close closes the database connection.
func (b *SqliteBackend) Close() error {
	return b.db.Close()
}

func (b *SqliteBackend) initSchema() error {
	var version int
	if err := b.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS drafts (
			item_id INTEGER PRIMARY KEY,
			payload BLOB NOT NULL,
			checksum INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_drafts_updated
		ON drafts(updated_at);
	`
	if _, err := b.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if _, err := b.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// Put inserts or replaces the record for its item.
func (b *SqliteBackend) Put(ctx context.Context, rec Record) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO drafts (item_id, payload, checksum, updated_at)
		VALUES (?, ?, ?, ?)`,
		rec.ItemID, rec.Payload, int64(rec.Checksum), rec.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store draft: %w", err)
	}
	return nil
}

// Get returns the record for an item, or nil if absent.
func (b *SqliteBackend) Get(ctx context.Context, itemID int64) (*Record, error) {
	var rec Record
	var checksum, updatedAt int64
	err := b.db.QueryRowContext(ctx,
		"SELECT item_id, payload, checksum, updated_at FROM drafts WHERE item_id = ?",
		itemID).Scan(&rec.ItemID, &rec.Payload, &checksum, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	rec.Checksum = uint32(checksum)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return &rec, nil
}

// Delete removes the record for an item.
func (b *SqliteBackend) Delete(ctx context.Context, itemID int64) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM drafts WHERE item_id = ?", itemID)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// List returns all records, newest first.
func (b *SqliteBackend) List(ctx context.Context) ([]Record, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT item_id, payload, checksum, updated_at FROM drafts ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var checksum, updatedAt int64
		if err := rows.Scan(&rec.ItemID, &rec.Payload, &checksum, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		rec.Checksum = uint32(checksum)
		rec.UpdatedAt = time.UnixMilli(updatedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drafts: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (b *SqliteBackend) Count(ctx context.Context) (int, error) {
	var count int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM drafts").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count drafts: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes records last written before cutoff. Uses the
// updated_at index for the range scan.
func (b *SqliteBackend) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx,
		"DELETE FROM drafts WHERE updated_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired drafts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// OldestIDs returns up to limit item IDs, oldest write first.
func (b *SqliteBackend) OldestIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT item_id FROM drafts ORDER BY updated_at ASC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query oldest drafts: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan draft id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating draft ids: %w", err)
	}
	return ids, nil
}

// Verify SqliteBackend implements Backend
var _ Backend = (*SqliteBackend)(nil)
