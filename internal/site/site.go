// Package site holds the site entity and its membership relation. Sites are
// owned by the wider application; the build pipeline only reads them to
// compose status-report targets and notification rooms, and to answer
// membership questions.
package site

import (
	"context"
	"time"
)

// Site is a deployed static site tracked by the service. Owner and Repository
// identify the source repository on the upstream provider.
type Site struct {
	ID            int64     `json:"id"`
	Owner         string    `json:"owner"`
	Repository    string    `json:"repository"`
	DefaultBranch string    `json:"defaultBranch"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Store provides read access to sites and their memberships, plus the writes
// the surrounding application needs to manage them.
type Store interface {
	// GetSite returns the site with the given id, or a not-found error.
	GetSite(ctx context.Context, id int64) (*Site, error)

	// FindByRepository resolves a site from its upstream (owner, repository)
	// pair. Used by the webhook receiver.
	FindByRepository(ctx context.Context, owner, repository string) (*Site, error)

	// IsMember reports whether the user is associated with the site.
	IsMember(ctx context.Context, userID, siteID int64) (bool, error)

	// CreateSite persists a new site and fills in its id.
	CreateSite(ctx context.Context, s *Site) error

	// AddMember associates a user with a site. Adding an existing member is
	// a no-op.
	AddMember(ctx context.Context, userID, siteID int64) error
}
