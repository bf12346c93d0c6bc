// Package sqlite provides a SQLite implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jwulff/glucostatus/internal/glucose"
	"github.com/jwulff/glucostatus/internal/storage"

	_ "modernc.org/sqlite"
)

// Store is a SQLite implementation of storage.Store.
type Store struct {
	db *sql.DB
}

// NewMemoryStore creates an in-memory SQLite store.
func NewMemoryStore() (*Store, error) {
	return newStore(":memory:")
}

// NewFileStore creates a file-based SQLite store.
func NewFileStore(path string) (*Store, error) {
	return newStore(path)
}

func newStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every pooled connection to :memory: would see its own empty database
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// toMillis maps the zero time to 0 so unset columns round-trip.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Reading methods

// SaveReadings upserts readings; a reading at an existing timestamp replaces
// the stored value.
func (s *Store) SaveReadings(ctx context.Context, source string, readings []glucose.Reading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO readings (source, timestamp_ms, value)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, source, r.Timestamp.UnixMilli(), r.Value); err != nil {
			return fmt.Errorf("failed to save reading at %s: %w", r.Timestamp.Format(time.RFC3339), err)
		}
	}

	return tx.Commit()
}

// QueryReadings returns the readings within [since, until], newest first.
func (s *Store) QueryReadings(ctx context.Context, source string, since, until time.Time) ([]glucose.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp_ms, value FROM readings
		WHERE source = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms DESC
	`, source, since.UnixMilli(), until.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []glucose.Reading
	for rows.Next() {
		var ms int64
		var r glucose.Reading
		if err := rows.Scan(&ms, &r.Value); err != nil {
			return nil, err
		}
		r.Timestamp = time.UnixMilli(ms).UTC()
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func (s *Store) DeleteOldReadings(ctx context.Context, source string, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM readings WHERE source = ? AND timestamp_ms < ?
	`, source, before.UnixMilli())
	return err
}

// Source state methods

func (s *Store) SaveSourceState(ctx context.Context, state *storage.SourceState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO source_state (source, last_sync_ms, last_reading_ms, error_count, last_error)
		VALUES (?, ?, ?, ?, ?)
	`, state.Source, toMillis(state.LastSync), toMillis(state.LastReading), state.ErrorCount, state.LastError)
	return err
}

func (s *Store) GetSourceState(ctx context.Context, source string) (*storage.SourceState, error) {
	var state storage.SourceState
	var lastSync, lastReading int64
	var lastError sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT source, last_sync_ms, last_reading_ms, error_count, last_error
		FROM source_state WHERE source = ?
	`, source).Scan(&state.Source, &lastSync, &lastReading, &state.ErrorCount, &lastError)

	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Resource: "source_state", ID: source}
	}
	if err != nil {
		return nil, err
	}

	state.LastSync = fromMillis(lastSync)
	state.LastReading = fromMillis(lastReading)
	state.LastError = lastError.String
	return &state, nil
}

// Verify interface compliance
var _ storage.Store = (*Store)(nil)
