package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"threatwatch/internal/hub"
)

const heartbeatInterval = 30 * time.Second

var errFeedClosed = errors.New("feed connection closed")

// sseConn adapts one server-sent-events response to hub.Conn. The mutex
// covers the heartbeat writes from the handler goroutine and the closed
// fence: the ResponseWriter dies when the handler returns, and the hub's
// writer goroutine may still hold a queued event at that point.
type sseConn struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func (c *sseConn) Send(ev hub.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errFeedClosed
	}
	if _, err := fmt.Fprintf(c.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

// ping writes an SSE comment so dead connections are detected between events.
func (c *sseConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errFeedClosed
	}
	if _, err := fmt.Fprint(c.w, ": ping\n\n"); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

// Close fences further writes to the ResponseWriter. The hub closes the conn
// before Unsubscribe returns, so an in-flight Send finishes under the mutex
// first and anything after that fails instead of touching a dead response.
func (c *sseConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// handleFeed upgrades the request to a server-sent-events stream: one
// snapshot event on connect, then threat_created and intelligence_updated
// events until the client goes away.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	userID := r.URL.Query().Get("user")
	if userID == "" {
		userID = "anonymous"
	}

	conn := &sseConn{w: w, flusher: flusher}
	sub := s.hub.Subscribe(r.Context(), conn, userID)
	defer s.hub.Unsubscribe(sub)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
