// Package eventstore keeps an append-only audit trail of build lifecycle
// events. The trail is diagnostic: pipeline behavior never depends on it, and
// append failures are logged rather than propagated.
package eventstore

import "time"

// Event is one recorded build lifecycle event.
type Event struct {
	ID        int64
	BuildID   int64
	Type      string
	Timestamp time.Time
	Payload   []byte
}

// Event type names.
const (
	TypeBuildCreated       = "BuildCreated"
	TypeBuildStatusChanged = "BuildStatusChanged"
)
