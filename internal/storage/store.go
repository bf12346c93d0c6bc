// Package storage provides storage abstractions for glucose readings.
package storage

import (
	"context"
	"time"

	"github.com/jwulff/glucostatus/internal/glucose"
)

// Store is the interface for persistent storage.
type Store interface {
	// Readings
	SaveReadings(ctx context.Context, source string, readings []glucose.Reading) error
	QueryReadings(ctx context.Context, source string, since, until time.Time) ([]glucose.Reading, error)
	DeleteOldReadings(ctx context.Context, source string, before time.Time) error

	// Source sync state
	GetSourceState(ctx context.Context, source string) (*SourceState, error)
	SaveSourceState(ctx context.Context, state *SourceState) error

	// Lifecycle
	Close() error
}

// SourceState tracks the sync health of a reading source.
type SourceState struct {
	Source      string
	LastSync    time.Time
	LastReading time.Time
	ErrorCount  int
	LastError   string
}

// NewSourceState creates a new source state.
func NewSourceState(source string) *SourceState {
	return &SourceState{
		Source: source,
	}
}

// RecordSuccess records a successful sync whose newest reading is at newest.
func (s *SourceState) RecordSuccess(at, newest time.Time) {
	s.LastSync = at
	if newest.After(s.LastReading) {
		s.LastReading = newest
	}
	s.ErrorCount = 0
	s.LastError = ""
}

// RecordError records a failed sync.
func (s *SourceState) RecordError(errMsg string) {
	s.ErrorCount++
	s.LastError = errMsg
}

// Snapshot returns the readings of source within lookback of at, newest
// first, as the calculator expects them.
func Snapshot(ctx context.Context, store Store, source string, at time.Time, lookback time.Duration) ([]glucose.Reading, error) {
	return store.QueryReadings(ctx, source, at.Add(-lookback), at)
}

// ErrNotFound is returned when a record is not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e ErrNotFound) Error() string {
	return e.Resource + " not found: " + e.ID
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}
