// Package hub fans threat and intelligence events out to live subscribers.
//
// Each subscriber owns a bounded outbound queue drained by its own goroutine,
// so a slow or broken connection can never delay the publisher or the other
// subscribers; it is dropped instead.
package hub

import (
	"context"
	"log/slog"
	"sync"

	"threatwatch/internal/metrics"
	"threatwatch/internal/store"
	"threatwatch/internal/threat"
)

// EventType tags a feed event.
type EventType string

const (
	EventSnapshot            EventType = "snapshot"
	EventThreatCreated       EventType = "threat_created"
	EventIntelligenceUpdated EventType = "intelligence_updated"
)

// Event is one self-describing feed message. Exactly one payload field is set
// depending on Type.
type Event struct {
	Type         EventType                  `json:"type"`
	Threat       *threat.Threat             `json:"threat,omitempty"`
	Threats      []threat.Threat            `json:"threats,omitempty"`
	Intelligence *threat.IntelligenceRecord `json:"intelligence,omitempty"`
}

// Conn is the transport to one subscriber. Send may block on the underlying
// connection; the hub only ever calls it from that subscriber's own worker.
type Conn interface {
	Send(ev Event) error
	Close() error
}

// Sink mirrors every published event to a side channel (e.g. a message bus).
// Sinks must not block.
type Sink interface {
	Publish(ev Event) error
}

// Subscription identifies one registered subscriber.
type Subscription struct {
	id     uint64
	userID string
	conn   Conn
	queue  chan Event
	stop   chan struct{}
	once   sync.Once
}

// Done is closed once the subscription has been removed from the hub,
// whether by Unsubscribe or by the hub dropping the connection.
func (s *Subscription) Done() <-chan struct{} { return s.stop }

// Hub is the broadcast registry.
type Hub struct {
	store        store.EventStore
	snapshotSize int
	queueSize    int

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64

	sinks []Sink
}

// New creates a hub that serves snapshots of snapshotSize threats and gives
// each subscriber an outbound queue of queueSize events.
func New(st store.EventStore, snapshotSize, queueSize int) *Hub {
	if snapshotSize <= 0 {
		snapshotSize = 10
	}
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Hub{
		store:        st,
		snapshotSize: snapshotSize,
		queueSize:    queueSize,
		subs:         make(map[uint64]*Subscription),
	}
}

// AddSink registers a side channel. Not safe to call once subscribers exist.
func (h *Hub) AddSink(s Sink) { h.sinks = append(h.sinks, s) }

// Subscribe registers conn and immediately queues a snapshot of the most
// recent threats, newest first. The returned handle is passed to Unsubscribe
// when the viewer disconnects.
func (h *Hub) Subscribe(ctx context.Context, conn Conn, userID string) *Subscription {
	sub := &Subscription{
		userID: userID,
		conn:   conn,
		queue:  make(chan Event, h.queueSize),
		stop:   make(chan struct{}),
	}

	// Snapshot goes on the queue before the subscription is visible to
	// publishers, so it is always the first message delivered. A storage
	// failure degrades to an empty snapshot rather than none at all.
	recent, err := h.store.Recent(ctx, "", h.snapshotSize)
	if err != nil {
		slog.Error("snapshot fetch failed", "err", err)
		metrics.StorageErrors.WithLabelValues("recent").Inc()
		recent = []threat.Threat{}
	}
	sub.queue <- Event{Type: EventSnapshot, Threats: recent}

	h.mu.Lock()
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	h.mu.Unlock()
	metrics.ActiveSubscribers.Inc()

	go h.writer(sub)
	return sub
}

// Unsubscribe removes sub from the registry and releases its worker.
// Idempotent; safe to call from any goroutine.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.drop(sub, "client_close")
}

func (h *Hub) drop(sub *Subscription, reason string) {
	h.mu.Lock()
	_, present := h.subs[sub.id]
	delete(h.subs, sub.id)
	h.mu.Unlock()

	sub.once.Do(func() {
		close(sub.stop)
		if err := sub.conn.Close(); err != nil {
			slog.Debug("subscriber close", "err", err)
		}
	})
	if present {
		metrics.ActiveSubscribers.Dec()
		metrics.DroppedSubscribers.WithLabelValues(reason).Inc()
		slog.Info("subscriber removed", "user", sub.userID, "reason", reason)
	}
}

// Publish delivers ev to every registered subscriber without blocking.
// The registry lock is held only while copying the subscriber list; a
// subscriber whose queue is full is dropped rather than back-pressuring
// the producer. Delivery failures never surface to the caller.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	targets := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.queue <- ev:
		default:
			h.drop(sub, "slow_consumer")
		}
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()

	for _, sink := range h.sinks {
		if err := sink.Publish(ev); err != nil {
			slog.Error("sink publish failed", "err", err)
		}
	}
}

// PublishThreat is a convenience wrapper for new-threat events.
func (h *Hub) PublishThreat(t threat.Threat) {
	h.Publish(Event{Type: EventThreatCreated, Threat: &t})
}

// PublishIntelligence is a convenience wrapper for intelligence updates.
func (h *Hub) PublishIntelligence(rec threat.IntelligenceRecord) {
	h.Publish(Event{Type: EventIntelligenceUpdated, Intelligence: &rec})
}

// Subscribers returns the current registry size.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) writer(sub *Subscription) {
	for {
		select {
		case <-sub.stop:
			return
		case ev := <-sub.queue:
			if err := sub.conn.Send(ev); err != nil {
				h.drop(sub, "write_error")
				return
			}
		}
	}
}
