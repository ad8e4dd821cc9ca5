package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store persists and retrieves build lifecycle events.
type Store interface {
	// Append adds a new event to the trail.
	Append(ctx context.Context, buildID int64, eventType string, payload []byte) error

	// GetByBuildID retrieves all events for a build in append order.
	GetByBuildID(ctx context.Context, buildID int64) ([]Event, error)
}

// BuildCreatedPayload is the payload for TypeBuildCreated events.
type BuildCreatedPayload struct {
	Site   int64  `json:"site"`
	Branch string `json:"branch"`
	Sha    string `json:"sha,omitempty"`
	User   int64  `json:"user,omitempty"`
}

// BuildStatusChangedPayload is the payload for TypeBuildStatusChanged events.
type BuildStatusChangedPayload struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// AppendBuildCreated records a build creation.
func AppendBuildCreated(ctx context.Context, s Store, buildID int64, p BuildCreatedPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", TypeBuildCreated, err)
	}
	return s.Append(ctx, buildID, TypeBuildCreated, data)
}

// AppendBuildStatusChanged records a state transition.
func AppendBuildStatusChanged(ctx context.Context, s Store, buildID int64, p BuildStatusChangedPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", TypeBuildStatusChanged, err)
	}
	return s.Append(ctx, buildID, TypeBuildStatusChanged, data)
}
