package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"threatwatch/internal/store"
	"threatwatch/internal/threat"
)

// fakeConn records delivered events.
type fakeConn struct {
	mu     sync.Mutex
	events []Event
	closed bool
	fail   bool
}

func (c *fakeConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errors.New("connection gone")
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *fakeConn) waitFor(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := c.snapshot(); len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", n, len(c.snapshot()))
	return nil
}

func seedStore(t *testing.T, n int) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	for i := 0; i < n; i++ {
		_, err := st.Append(context.Background(), threat.Threat{
			Type:     "Malware",
			Severity: threat.SeverityHigh,
			Source:   "sensor",
		})
		if err != nil {
			t.Fatalf("seed append: %v", err)
		}
	}
	return st
}

func TestSubscribeSendsSnapshot(t *testing.T) {
	st := seedStore(t, 25)
	h := New(st, 10, 32)

	conn := &fakeConn{}
	sub := h.Subscribe(context.Background(), conn, "u1")
	defer h.Unsubscribe(sub)

	evs := conn.waitFor(t, 1)
	if evs[0].Type != EventSnapshot {
		t.Fatalf("first event = %s, want snapshot", evs[0].Type)
	}
	if len(evs[0].Threats) != 10 {
		t.Errorf("snapshot size = %d, want 10", len(evs[0].Threats))
	}
	// Newest first: ids descend.
	for i := 1; i < len(evs[0].Threats); i++ {
		if evs[0].Threats[i].ID > evs[0].Threats[i-1].ID {
			t.Errorf("snapshot not newest-first at index %d", i)
		}
	}
}

type brokenRecentStore struct {
	*store.MemoryStore
}

func (b *brokenRecentStore) Recent(ctx context.Context, typeFilter string, limit int) ([]threat.Threat, error) {
	return nil, &store.StorageError{Op: "recent", Err: errors.New("disk gone")}
}

func TestSnapshotFailureDegradesToEmpty(t *testing.T) {
	st := &brokenRecentStore{MemoryStore: store.NewMemoryStore()}
	h := New(st, 10, 32)

	conn := &fakeConn{}
	sub := h.Subscribe(context.Background(), conn, "u1")
	defer h.Unsubscribe(sub)

	// The snapshot event still arrives first, just with no threats.
	evs := conn.waitFor(t, 1)
	if evs[0].Type != EventSnapshot {
		t.Fatalf("first event = %s, want snapshot", evs[0].Type)
	}
	if len(evs[0].Threats) != 0 {
		t.Errorf("snapshot size = %d, want 0", len(evs[0].Threats))
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	st := seedStore(t, 3)
	h := New(st, 10, 32)

	conn := &fakeConn{}
	sub := h.Subscribe(context.Background(), conn, "u1")
	defer h.Unsubscribe(sub)
	conn.waitFor(t, 1) // snapshot

	h.PublishThreat(threat.Threat{ID: 99, Type: "DDoS", Severity: threat.SeverityCritical})

	evs := conn.waitFor(t, 2)
	created := 0
	for _, ev := range evs {
		if ev.Type == EventThreatCreated {
			created++
			if ev.Threat == nil || ev.Threat.ID != 99 {
				t.Errorf("threat_created payload = %+v, want id 99", ev.Threat)
			}
		}
	}
	if created != 1 {
		t.Errorf("threat_created count = %d, want exactly 1", created)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	st := seedStore(t, 1)
	h := New(st, 10, 32)

	conn := &fakeConn{}
	sub := h.Subscribe(context.Background(), conn, "u1")
	h.Unsubscribe(sub)
	h.Unsubscribe(sub) // idempotent

	h.PublishThreat(threat.Threat{ID: 42})
	time.Sleep(50 * time.Millisecond)

	for _, ev := range conn.snapshot() {
		if ev.Type == EventThreatCreated {
			t.Fatal("removed subscriber still received threat_created")
		}
	}
	if h.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0", h.Subscribers())
	}
}

func TestPerSubscriberOrdering(t *testing.T) {
	st := seedStore(t, 1)
	h := New(st, 10, 256)

	conn := &fakeConn{}
	sub := h.Subscribe(context.Background(), conn, "u1")
	defer h.Unsubscribe(sub)
	conn.waitFor(t, 1)

	const n = 100
	for i := 0; i < n; i++ {
		h.PublishThreat(threat.Threat{ID: int64(i + 1)})
	}

	evs := conn.waitFor(t, n+1)
	var got []int64
	for _, ev := range evs {
		if ev.Type == EventThreatCreated {
			got = append(got, ev.Threat.ID)
		}
	}
	if len(got) != n {
		t.Fatalf("received %d threat_created events, want %d", len(got), n)
	}
	for i, id := range got {
		if id != int64(i+1) {
			t.Fatalf("out of order at %d: got id %d", i, id)
		}
	}
}

func TestSlowConsumerDropped(t *testing.T) {
	st := seedStore(t, 1)
	h := New(st, 1, 1) // tiny queue

	// A conn whose Send never completes parks its writer, so the queue
	// fills and a later publish finds no room.
	block := make(chan struct{})
	conn := &blockingConn{unblock: block}
	h.Subscribe(context.Background(), conn, "slow")

	for i := 0; i < 10; i++ {
		h.PublishThreat(threat.Threat{ID: int64(i)})
	}
	close(block)

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.Subscribers() != 0 {
		t.Error("slow consumer was not dropped")
	}
}

type blockingConn struct {
	unblock chan struct{}
}

func (c *blockingConn) Send(ev Event) error {
	<-c.unblock
	return nil
}

func (c *blockingConn) Close() error { return nil }

func TestWriteFailureUnsubscribes(t *testing.T) {
	st := seedStore(t, 1)
	h := New(st, 1, 32)

	conn := &fakeConn{fail: true}
	h.Subscribe(context.Background(), conn, "broken")

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.Subscribers() != 0 {
		t.Error("subscriber with failing connection was not dropped")
	}
}

func TestPublishDoesNotBlockAcrossSubscribers(t *testing.T) {
	st := seedStore(t, 1)
	h := New(st, 1, 1)

	block := make(chan struct{})
	defer close(block)
	h.Subscribe(context.Background(), &blockingConn{unblock: block}, "slow")

	healthy := &fakeConn{}
	sub := h.Subscribe(context.Background(), healthy, "fast")
	defer h.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.PublishThreat(threat.Threat{ID: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
