package socket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes status messages to NATS subjects, one subject per
// room. The websocket gateway subscribes on the other side and relays into
// its connection registry.
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSPublisher connects to the NATS server at url. subjectPrefix
// namespaces room subjects (e.g. "federalist.rooms").
func NewNATSPublisher(url, subjectPrefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("federalist-build-status"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	slog.Info("NATS publisher connected", "url", url, "subject_prefix", subjectPrefix)
	return &NATSPublisher{conn: conn, subjectPrefix: subjectPrefix}, nil
}

// Publish sends the message to the room's subject.
func (p *NATSPublisher) Publish(room string, msg StatusMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal status message: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, room)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection, flushing buffered publishes.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
