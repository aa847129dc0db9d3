package store

import (
	"context"
	"errors"
	"fmt"

	"threatwatch/internal/threat"
)

// ErrNotFound is returned when a threat or intelligence record does not exist.
var ErrNotFound = errors.New("not found")

// StorageError wraps an I/O failure from the backing store. Callers treat it
// as retryable rather than fatal.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// EventStore is the durable home of threats and intelligence records.
type EventStore interface {
	// Append inserts a new threat and returns its assigned id.
	// Ids are monotonically increasing.
	Append(ctx context.Context, t threat.Threat) (int64, error)

	// Get returns the threat with the given id, or ErrNotFound.
	Get(ctx context.Context, id int64) (*threat.Threat, error)

	// Recent returns up to limit threats, newest first. An empty typeFilter
	// matches all types.
	Recent(ctx context.Context, typeFilter string, limit int) ([]threat.Threat, error)

	// GetIntelligence returns the intelligence record with the given id,
	// or ErrNotFound.
	GetIntelligence(ctx context.Context, id string) (*threat.IntelligenceRecord, error)

	// UpsertIntelligence writes the full record, replacing any previous
	// version.
	UpsertIntelligence(ctx context.Context, rec threat.IntelligenceRecord) error

	// ListIntelligence returns records newest first. An empty scope matches
	// all scopes.
	ListIntelligence(ctx context.Context, scope threat.ShareScope) ([]threat.IntelligenceRecord, error)
}
