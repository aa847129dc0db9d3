package store

import (
	"context"
	"sort"
	"sync"

	"threatwatch/internal/threat"
)

// MemoryStore is an in-memory EventStore for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	threats []threat.Threat
	intel   map[string]threat.IntelligenceRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{intel: make(map[string]threat.IntelligenceRecord)}
}

// Append implements EventStore.
func (m *MemoryStore) Append(ctx context.Context, t threat.Threat) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	m.threats = append(m.threats, t)
	return t.ID, nil
}

// Get implements EventStore.
func (m *MemoryStore) Get(ctx context.Context, id int64) (*threat.Threat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.threats {
		if m.threats[i].ID == id {
			t := m.threats[i]
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

// Recent implements EventStore.
func (m *MemoryStore) Recent(ctx context.Context, typeFilter string, limit int) ([]threat.Threat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []threat.Threat
	for i := len(m.threats) - 1; i >= 0 && len(out) < limit; i-- {
		t := m.threats[i]
		if typeFilter != "" && t.Type != typeFilter {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// GetIntelligence implements EventStore.
func (m *MemoryStore) GetIntelligence(ctx context.Context, id string) (*threat.IntelligenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.intel[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// UpsertIntelligence implements EventStore.
func (m *MemoryStore) UpsertIntelligence(ctx context.Context, rec threat.IntelligenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intel[rec.ID] = rec
	return nil
}

// ListIntelligence implements EventStore.
func (m *MemoryStore) ListIntelligence(ctx context.Context, scope threat.ShareScope) ([]threat.IntelligenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []threat.IntelligenceRecord
	for _, rec := range m.intel {
		if scope != "" && rec.ShareScope != scope {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}
