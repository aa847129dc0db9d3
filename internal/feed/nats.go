// Package feed bridges hub events to external transports.
package feed

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"threatwatch/internal/hub"
)

// NATSSink mirrors every hub event onto a NATS subject so other services can
// consume the live feed without holding a dashboard connection. Publishing is
// buffered client-side and never blocks the hub.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

func NewNATSSink(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("threatwatch"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

// Publish implements hub.Sink.
func (s *NATSSink) Publish(ev hub.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.conn.Publish(s.subject, data)
}

// Close flushes buffered messages and drops the connection.
func (s *NATSSink) Close() {
	_ = s.conn.Drain()
}
