// Package build implements the build entity, its state machine, and the
// status pipeline that drives it: callback ingestion, upstream status
// mirroring, and real-time fan-out.
package build

import (
	"time"

	"github.com/google/uuid"
)

// State is a build's position in its lifecycle.
type State string

const (
	StateCreated    State = "created"
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// ParseState maps a reported status string to a State. Unrecognized values
// report ok=false; callers treat those as an error state with the literal
// text preserved in the message.
func ParseState(s string) (State, bool) {
	switch State(s) {
	case StateCreated, StateQueued, StateProcessing, StateSuccess, StateError:
		return State(s), true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transition is defined out of s.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateError
}

// Build is one attempt to compile and deploy a site from a branch/commit.
// Builds are historical records; they are never deleted, only superseded.
type Build struct {
	ID        int64  `json:"id"`
	Site      int64  `json:"site"`
	Branch    string `json:"branch"`
	CommitSha string `json:"commitSha,omitempty"`
	State     State  `json:"state"`

	// Token is the per-build capability credential for status callbacks.
	// It is never serialized; only the worker dispatch path may read it.
	Token string `json:"-"`

	// User is the requesting user's id, zero for externally triggered builds.
	User int64 `json:"user,omitempty"`

	// Error carries the diagnostic message for builds in the error state.
	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewToken generates a fresh capability token. Tokens are unique across all
// builds and never reused.
func NewToken() string {
	return uuid.NewString()
}

// BuildLog is one append-only log record emitted by the worker while
// executing a build. Immutable once created.
type BuildLog struct {
	ID        int64     `json:"id"`
	Build     int64     `json:"build"`
	Source    string    `json:"source"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"createdAt"`
}
