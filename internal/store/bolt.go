package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"threatwatch/internal/threat"
)

var (
	bucketThreats      = []byte("threats")
	bucketIntelligence = []byte("intelligence")
)

// BoltStore is an EventStore backed by BoltDB. Pure Go, single file, fsync on
// commit; threat keys are big-endian sequence numbers so cursor order equals
// id order.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketThreats, bucketIntelligence} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

func threatKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// Append implements EventStore.
func (s *BoltStore) Append(ctx context.Context, t threat.Threat) (int64, error) {
	var id int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketThreats)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)
		t.ID = id
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return b.Put(threatKey(id), data)
	})
	if err != nil {
		return 0, &StorageError{Op: "append", Err: err}
	}
	return id, nil
}

// Get implements EventStore.
func (s *BoltStore) Get(ctx context.Context, id int64) (*threat.Threat, error) {
	var t threat.Threat
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketThreats).Get(threatKey(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &t)
	})
	if err == ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	return &t, nil
}

// Recent implements EventStore. Walks the threat bucket backwards so the
// newest entries come out first.
func (s *BoltStore) Recent(ctx context.Context, typeFilter string, limit int) ([]threat.Threat, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []threat.Threat
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketThreats).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var t threat.Threat
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if typeFilter != "" && t.Type != typeFilter {
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: "recent", Err: err}
	}
	return out, nil
}

// GetIntelligence implements EventStore.
func (s *BoltStore) GetIntelligence(ctx context.Context, id string) (*threat.IntelligenceRecord, error) {
	var rec threat.IntelligenceRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketIntelligence).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err == ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get_intelligence", Err: err}
	}
	return &rec, nil
}

// UpsertIntelligence implements EventStore.
func (s *BoltStore) UpsertIntelligence(ctx context.Context, rec threat.IntelligenceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return &StorageError{Op: "upsert_intelligence", Err: err}
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIntelligence).Put([]byte(rec.ID), data)
	})
	if err != nil {
		return &StorageError{Op: "upsert_intelligence", Err: err}
	}
	return nil
}

// ListIntelligence implements EventStore.
func (s *BoltStore) ListIntelligence(ctx context.Context, scope threat.ShareScope) ([]threat.IntelligenceRecord, error) {
	var out []threat.IntelligenceRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIntelligence).ForEach(func(k, v []byte) error {
			var rec threat.IntelligenceRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if scope != "" && rec.ShareScope != scope {
				return nil
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, &StorageError{Op: "list_intelligence", Err: err}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}
