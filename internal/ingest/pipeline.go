// Package ingest admits new threat events: it normalizes them, persists them
// through the event store and hands them to the broadcast hub.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/willf/bloom"

	"threatwatch/internal/metrics"
	"threatwatch/internal/store"
	"threatwatch/internal/threat"
)

// Publisher receives each admitted threat for fan-out.
type Publisher interface {
	PublishThreat(t threat.Threat)
}

// Pipeline is the single entry point for threat events, whether they come
// from the HTTP API or the feed generator.
type Pipeline struct {
	store store.EventStore
	pub   Publisher

	// seen pre-screens indicator values so recurring infrastructure shows up
	// in the logs. False positives only cost a spurious log line.
	mu   sync.Mutex
	seen *bloom.BloomFilter
}

func NewPipeline(st store.EventStore, pub Publisher) *Pipeline {
	return &Pipeline{
		store: st,
		pub:   pub,
		seen:  bloom.New(100000, 5),
	}
}

// Submit normalizes t, appends it to the store and broadcasts a
// threat_created event. The assigned id is returned; storage failures
// surface to the caller and nothing is broadcast.
func (p *Pipeline) Submit(ctx context.Context, t threat.Threat) (int64, error) {
	normalize(&t)
	p.screenIndicators(t)

	id, err := p.store.Append(ctx, t)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("append").Inc()
		return 0, err
	}
	t.ID = id
	metrics.ThreatsIngested.WithLabelValues(string(t.Severity)).Inc()
	p.pub.PublishThreat(t)
	return id, nil
}

// normalize applies the ingestion invariants: confidence clamped to [0,1]
// (0.5 when unset), severity low when unknown, status active and timestamp
// now when missing.
func normalize(t *threat.Threat) {
	switch {
	case t.Confidence == 0:
		t.Confidence = 0.5
	case t.Confidence < 0:
		t.Confidence = 0
	case t.Confidence > 1:
		t.Confidence = 1
	}
	if !t.Severity.Valid() {
		t.Severity = threat.SeverityLow
	}
	if t.Status == "" {
		t.Status = threat.StatusActive
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
}

func (p *Pipeline) screenIndicators(t threat.Threat) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, val := range t.Indicators {
		if p.seen.TestAndAdd([]byte(fmt.Sprintf("%s=%v", key, val))) {
			metrics.RecurringIndicators.Inc()
			slog.Info("recurring indicator", "key", key, "source", t.Source, "type", t.Type)
		}
	}
}
