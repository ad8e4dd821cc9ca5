package build

import (
	"context"
	"time"
)

// Store persists builds and their logs. Concurrent transitions on the same
// build are serialized here via atomic conditional updates; the state machine
// itself holds no locks.
type Store interface {
	// CreateBuild persists a new build and fills in its id. At most one
	// queued build may exist per (site, branch); a violation returns a
	// validation-kind error so callers can fetch the existing one.
	CreateBuild(ctx context.Context, b *Build) error

	// GetBuild returns the build with the given id, or a not-found error.
	GetBuild(ctx context.Context, id int64) (*Build, error)

	// FindQueuedBuild returns the queued build for (site, branch), or a
	// not-found error when none is queued.
	FindQueuedBuild(ctx context.Context, siteID int64, branch string) (*Build, error)

	// ListBuilds returns up to limit builds for a site, newest first.
	ListBuilds(ctx context.Context, siteID int64, limit int) ([]*Build, error)

	// TransitionBuild atomically moves a non-terminal build to state,
	// recording message (error diagnostics) and completedAt (nil for
	// non-terminal states), and returns the updated build. A terminal build
	// yields an invalid-transition error and no state change; an unknown id
	// yields a not-found error.
	TransitionBuild(ctx context.Context, id int64, state State, message string, completedAt *time.Time) (*Build, error)

	// CreateLog appends a log record for a build and fills in its id.
	CreateLog(ctx context.Context, l *BuildLog) error

	// ListLogs returns all logs for a build in creation order.
	ListLogs(ctx context.Context, buildID int64) ([]*BuildLog, error)
}
