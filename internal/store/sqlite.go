// Package store provides durable storage for the market-data layer: a
// SQLite mirror of the series cache and a Parquet archive of fetched
// series.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vela/internal/marketdata"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ marketdata.Persister = (*SQLiteMirror)(nil)

// snapshotKey is the fixed key the cache snapshot lives under.
const snapshotKey = "ohlcv-cache"

// SQLiteMirror persists the series-cache snapshot as a JSON blob in a
// single-row key-value table. Writes are best-effort; the in-memory cache
// stays authoritative and a failed save never fails the request.
type SQLiteMirror struct {
	db *sql.DB
}

// NewSQLiteMirror opens (or creates) the SQLite database at dbPath and
// ensures the snapshot table exists.
func NewSQLiteMirror(dbPath string) (*SQLiteMirror, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %s: %w", dbPath, err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS cache_snapshots (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot table: %w", err)
	}

	return &SQLiteMirror{db: db}, nil
}

// TrySave replaces the stored snapshot with the given one.
func (m *SQLiteMirror) TrySave(snap marketdata.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	const upsert = `
		INSERT INTO cache_snapshots (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := m.db.Exec(upsert, snapshotKey, payload, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// TryLoad returns the stored snapshot, or ok=false when none was saved.
func (m *SQLiteMirror) TryLoad() (marketdata.Snapshot, bool, error) {
	var payload []byte
	err := m.db.QueryRow(`SELECT value FROM cache_snapshots WHERE key = ?`, snapshotKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return marketdata.Snapshot{}, false, nil
	}
	if err != nil {
		return marketdata.Snapshot{}, false, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap marketdata.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return marketdata.Snapshot{}, false, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, true, nil
}

// Close closes the underlying database connection.
func (m *SQLiteMirror) Close() error {
	return m.db.Close()
}
