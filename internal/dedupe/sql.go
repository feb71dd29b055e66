package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"           // Register postgres driver
	_ "github.com/mattn/go-sqlite3" // Register sqlite3 driver
)

// dialect holds the driver specific statements of the ledger
type dialect struct {
	createTable string
	record      string
	seen        string
	forget      string
}

var dialects = map[string]dialect{
	"postgres": {
		createTable: `
			CREATE TABLE IF NOT EXISTS processed_photos (
				path TEXT PRIMARY KEY,
				first_seen_at TIMESTAMPTZ DEFAULT NOW(),
				last_seen_at TIMESTAMPTZ DEFAULT NOW(),
				seen_count INTEGER DEFAULT 1
			)
		`,
		record: `
			INSERT INTO processed_photos (path, first_seen_at, last_seen_at, seen_count)
			VALUES ($1, NOW(), NOW(), 1)
			ON CONFLICT (path) DO UPDATE
			SET last_seen_at = NOW(),
			    seen_count = processed_photos.seen_count + 1
			RETURNING seen_count
		`,
		seen:   `SELECT seen_count FROM processed_photos WHERE path = $1`,
		forget: `DELETE FROM processed_photos WHERE path = $1`,
	},
	"sqlite3": {
		createTable: `
			CREATE TABLE IF NOT EXISTS processed_photos (
				path TEXT PRIMARY KEY,
				first_seen_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				last_seen_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				seen_count INTEGER DEFAULT 1
			)
		`,
		record: `
			INSERT INTO processed_photos (path, first_seen_at, last_seen_at, seen_count)
			VALUES (?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, 1)
			ON CONFLICT (path) DO UPDATE
			SET last_seen_at = CURRENT_TIMESTAMP,
			    seen_count = processed_photos.seen_count + 1
			RETURNING seen_count
		`,
		seen:   `SELECT seen_count FROM processed_photos WHERE path = ?`,
		forget: `DELETE FROM processed_photos WHERE path = ?`,
	},
}

// SQLTracker persists the processed set so restarts do not reprint photos
type SQLTracker struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the ledger database. driver is "postgres" or "sqlite3".
func Open(ctx context.Context, driver, dsn string) (*SQLTracker, error) {
	if _, ok := dialects[driver]; !ok {
		return nil, fmt.Errorf("unsupported ledger driver: %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}
	return NewSQLTracker(ctx, db, driver)
}

// NewSQLTracker creates a tracker on an existing connection
func NewSQLTracker(ctx context.Context, db *sql.DB, driver string) (*SQLTracker, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported ledger driver: %q", driver)
	}
	tracker := &SQLTracker{db: db, dialect: d}

	if err := tracker.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure processed_photos table: %w", err)
	}

	return tracker, nil
}

// ensureTable creates the processed_photos table if it doesn't exist
func (t *SQLTracker) ensureTable(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, t.dialect.createTable); err != nil {
		return fmt.Errorf("failed to create processed_photos table: %w", err)
	}

	log.Printf("✓ processed_photos table ready")
	return nil
}

// Record implements Tracker
func (t *SQLTracker) Record(ctx context.Context, path string) (int, error) {
	var seenCount int
	if err := t.db.QueryRowContext(ctx, t.dialect.record, path).Scan(&seenCount); err != nil {
		return 0, fmt.Errorf("failed to record processed photo: %w", err)
	}
	return seenCount, nil
}

// Seen implements Tracker
func (t *SQLTracker) Seen(ctx context.Context, path string) (bool, error) {
	var seenCount int
	err := t.db.QueryRowContext(ctx, t.dialect.seen, path).Scan(&seenCount)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up processed photo: %w", err)
	}
	return true, nil
}

// Forget implements Tracker
func (t *SQLTracker) Forget(ctx context.Context, path string) error {
	if _, err := t.db.ExecContext(ctx, t.dialect.forget, path); err != nil {
		return fmt.Errorf("failed to forget processed photo: %w", err)
	}
	return nil
}

// Close closes the underlying connection
func (t *SQLTracker) Close() error {
	return t.db.Close()
}
