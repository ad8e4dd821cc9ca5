package socket

import (
	"log/slog"
	"sync"
)

// MemoryPublisher records published messages in memory. It backs tests and
// serves as the fallback when no NATS URL is configured, so a bare local
// deployment still runs with publishes visible in the log.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages map[string][]StatusMessage
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{messages: make(map[string][]StatusMessage)}
}

func (p *MemoryPublisher) Publish(room string, msg StatusMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[room] = append(p.messages[room], msg)
	slog.Debug("status message published", "room", room, "build", msg.ID, "state", msg.State)
	return nil
}

// Messages returns a copy of everything published to a room.
func (p *MemoryPublisher) Messages(room string) []StatusMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StatusMessage, len(p.messages[room]))
	copy(out, p.messages[room])
	return out
}

// Rooms returns the rooms that have received at least one message.
func (p *MemoryPublisher) Rooms() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	rooms := make([]string, 0, len(p.messages))
	for room := range p.messages {
		rooms = append(rooms, room)
	}
	return rooms
}
