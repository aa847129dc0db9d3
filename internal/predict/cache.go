// Package predict serves risk predictions with bounded staleness.
//
// Predictions are recomputed lazily: the first reader past the TTL runs one
// refresh pass over the recent threat window while concurrent readers wait on
// it, then the rebuilt map is swapped in whole. No lock is held during store
// I/O, so readers never observe a half-updated cache.
package predict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"threatwatch/internal/insight"
	"threatwatch/internal/metrics"
	"threatwatch/internal/score"
	"threatwatch/internal/store"
	"threatwatch/internal/threat"
)

// ErrNoPrediction means the threat is outside the refresh window or unknown.
var ErrNoPrediction = errors.New("no prediction available")

const (
	DefaultTTL    = 30 * time.Second
	DefaultWindow = 100
)

// Cache holds the latest prediction per threat id.
type Cache struct {
	store    store.EventStore
	provider insight.Provider // may be nil

	ttl    time.Duration
	window int

	mu          sync.Mutex
	entries     map[int64]threat.Prediction
	lastRefresh time.Time
	refreshing  bool
	refreshDone chan struct{}
	refreshErr  error
}

// New creates a cache over st. provider may be nil; ttl and window fall back
// to the defaults when zero.
func New(st store.EventStore, provider insight.Provider, ttl time.Duration, window int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Cache{store: st, provider: provider, ttl: ttl, window: window}
}

// Get returns the cached prediction for threatID, refreshing the cache first
// if it has gone stale. A threat with no entry after a fresh pass yields
// ErrNoPrediction.
func (c *Cache) Get(ctx context.Context, threatID int64) (threat.Prediction, error) {
	if err := c.Refresh(ctx); err != nil && !c.hasEntries() {
		return threat.Prediction{}, err
	}

	c.mu.Lock()
	p, ok := c.entries[threatID]
	c.mu.Unlock()
	if !ok {
		metrics.CacheMisses.Inc()
		return threat.Prediction{}, ErrNoPrediction
	}
	metrics.CacheHits.Inc()
	return p, nil
}

// Predictions returns every cached prediction ordered by threat id,
// refreshing first if stale.
func (c *Cache) Predictions(ctx context.Context) ([]threat.Prediction, error) {
	if err := c.Refresh(ctx); err != nil && !c.hasEntries() {
		return nil, err
	}

	c.mu.Lock()
	out := make([]threat.Prediction, 0, len(c.entries))
	for _, p := range c.entries {
		out = append(out, p)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ThreatID < out[j].ThreatID })
	return out, nil
}

// hasEntries reports whether some (possibly stale) cache exists to fall back
// on when a refresh pass fails.
func (c *Cache) hasEntries() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries != nil
}

// Refresh recomputes the cache if the TTL has elapsed. Exactly one refresh
// pass runs per staleness window: the first caller performs it and concurrent
// callers block until it completes. A pass that fails outright still resets
// the refresh clock so a flapping store is not hammered on every read.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if !c.lastRefresh.IsZero() && time.Since(c.lastRefresh) <= c.ttl {
		c.mu.Unlock()
		return nil
	}
	if c.refreshing {
		done := c.refreshDone
		c.mu.Unlock()
		select {
		case <-done:
			// Waiters share the outcome of the pass they waited on.
			c.mu.Lock()
			err := c.refreshErr
			c.mu.Unlock()
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.refreshing = true
	done := make(chan struct{})
	c.refreshDone = done
	c.mu.Unlock()

	entries, err := c.rebuild(ctx)

	c.mu.Lock()
	if err == nil {
		c.entries = entries
	} else {
		slog.Error("prediction refresh failed", "err", err)
	}
	c.lastRefresh = time.Now()
	c.refreshing = false
	c.refreshErr = err
	close(done)
	c.mu.Unlock()

	metrics.CacheRefreshes.Inc()
	return err
}

// rebuild scores the recent threat window into a fresh map. Each threat is
// scored independently; insight failures degrade to a placeholder and never
// abort the pass.
func (c *Cache) rebuild(ctx context.Context) (map[int64]threat.Prediction, error) {
	recent, err := c.store.Recent(ctx, "", c.window)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("recent").Inc()
		return nil, fmt.Errorf("fetch refresh window: %w", err)
	}

	// Recent is newest first; trend wants oldest first. Group per type once
	// instead of re-querying history for every threat.
	history := make(map[string][]threat.Threat)
	for i := len(recent) - 1; i >= 0; i-- {
		t := recent[i]
		history[t.Type] = append(history[t.Type], t)
	}

	entries := make(map[int64]threat.Prediction, len(recent))
	for _, t := range recent {
		entries[t.ID] = c.predict(ctx, t, history[t.Type])
	}
	return entries, nil
}

func (c *Cache) predict(ctx context.Context, t threat.Threat, history []threat.Threat) threat.Prediction {
	risk := score.RiskScore(t)
	p := threat.Prediction{
		ThreatID:          t.ID,
		RiskScore:         risk,
		PredictedSeverity: score.SeverityFromScore(risk),
		Probability:       score.Probability(t),
		TrendDirection:    score.Trend(history),
		Indicators:        indicatorList(t),
		Insights:          insight.Unavailable,
		ComputedAt:        time.Now().UTC(),
	}
	if c.provider != nil {
		text, err := c.provider.Analyze(ctx, t)
		if err != nil {
			slog.Debug("insight unavailable", "threat", t.ID, "err", err)
		} else {
			p.Insights = text
		}
	}
	return p
}

func indicatorList(t threat.Threat) []string {
	if len(t.Indicators) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.Indicators))
	for k := range t.Indicators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s: %v", k, t.Indicators[k]))
	}
	return out
}
