// Package collab owns the lifecycle of shared threat-intelligence records.
//
// Mutations to the same record are serialized through a mutex keyed by record
// id, so two concurrent endorsements both land while unrelated records update
// in parallel. The verification status is last-writer-wins; the verification
// and endorsement logs are append-only and never rewritten.
package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"threatwatch/internal/store"
	"threatwatch/internal/threat"
)

// ValidationError rejects malformed input before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Publisher receives the updated record after every successful mutation.
type Publisher interface {
	PublishIntelligence(rec threat.IntelligenceRecord)
}

// Manager coordinates collaborative updates to intelligence records.
type Manager struct {
	store store.EventStore
	pub   Publisher

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(st store.EventStore, pub Publisher) *Manager {
	return &Manager{store: st, pub: pub, locks: make(map[string]*sync.Mutex)}
}

// recordLock returns the mutex guarding one record id, creating it on first
// use. Lock granularity is per record so different records never contend.
func (m *Manager) recordLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Share creates a new intelligence record for a threat in the pending state.
// A threat may carry any number of records; sharing never merges into an
// existing one.
func (m *Manager) Share(ctx context.Context, userID string, threatID int64, insights string, tags []string, scope threat.ShareScope) (*threat.IntelligenceRecord, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if insights == "" {
		return nil, &ValidationError{Field: "insights", Reason: "must not be empty"}
	}
	if scope == "" {
		scope = threat.ScopePublic
	}
	if !scope.Valid() {
		return nil, &ValidationError{Field: "share_scope", Reason: fmt.Sprintf("unknown scope %q", scope)}
	}
	if _, err := m.store.Get(ctx, threatID); err != nil {
		return nil, err
	}

	rec := threat.IntelligenceRecord{
		ID:                 uuid.NewString(),
		ThreatID:           threatID,
		SharedBy:           userID,
		Insights:           insights,
		Tags:               tags,
		ShareScope:         scope,
		VerificationStatus: threat.VerificationPending,
		Collaborators:      []string{userID},
		Timestamp:          time.Now().UTC(),
	}
	if err := m.store.UpsertIntelligence(ctx, rec); err != nil {
		return nil, err
	}
	m.pub.PublishIntelligence(rec)
	return &rec, nil
}

// Verify appends an entry to the record's verification log and then sets the
// status. There is no terminal state; the last verify action wins.
func (m *Manager) Verify(ctx context.Context, recordID, userID string, status threat.VerificationStatus) (*threat.IntelligenceRecord, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}

	return m.mutate(ctx, recordID, func(rec *threat.IntelligenceRecord) {
		rec.VerifiedBy = append(rec.VerifiedBy, threat.Verification{
			UserID:    userID,
			Timestamp: time.Now().UTC(),
			Status:    status,
		})
		rec.VerificationStatus = status
		if !rec.HasCollaborator(userID) {
			rec.Collaborators = append(rec.Collaborators, userID)
		}
	})
}

// Endorse appends a supporting comment. The verification status is untouched.
func (m *Manager) Endorse(ctx context.Context, recordID, userID, comment string) (*threat.IntelligenceRecord, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if comment == "" {
		return nil, &ValidationError{Field: "comment", Reason: "must not be empty"}
	}

	return m.mutate(ctx, recordID, func(rec *threat.IntelligenceRecord) {
		rec.Endorsements = append(rec.Endorsements, threat.Endorsement{
			UserID:    userID,
			Timestamp: time.Now().UTC(),
			Comment:   comment,
		})
		if !rec.HasCollaborator(userID) {
			rec.Collaborators = append(rec.Collaborators, userID)
		}
	})
}

// mutate runs fn on the current version of the record and writes it back,
// all under the record's lock. The read-modify-write never leaves the lock,
// which is what makes concurrent appends conflict-free.
func (m *Manager) mutate(ctx context.Context, recordID string, fn func(*threat.IntelligenceRecord)) (*threat.IntelligenceRecord, error) {
	l := m.recordLock(recordID)
	l.Lock()
	defer l.Unlock()

	rec, err := m.store.GetIntelligence(ctx, recordID)
	if err != nil {
		return nil, err
	}
	fn(rec)
	if err := m.store.UpsertIntelligence(ctx, *rec); err != nil {
		return nil, err
	}
	m.pub.PublishIntelligence(*rec)
	return rec, nil
}

// ByScope lists intelligence records, newest first. An empty scope lists all.
func (m *Manager) ByScope(ctx context.Context, scope threat.ShareScope) ([]threat.IntelligenceRecord, error) {
	if scope != "" && !scope.Valid() {
		return nil, &ValidationError{Field: "share_scope", Reason: fmt.Sprintf("unknown scope %q", scope)}
	}
	return m.store.ListIntelligence(ctx, scope)
}
