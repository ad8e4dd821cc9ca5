// Package auth answers the pipeline's two authorization questions: may this
// user create a build on a site, and may they read a build's logs. Both
// reduce to site membership; sessions and identity live outside this service.
package auth

import (
	"context"
	"fmt"

	"github.com/5l1v3r1/federalist/internal/errors"
	"github.com/5l1v3r1/federalist/internal/site"
)

// Authorizer checks site membership for pipeline operations.
type Authorizer struct {
	sites site.Store
}

// NewAuthorizer constructs an Authorizer over the site store.
func NewAuthorizer(sites site.Store) *Authorizer {
	return &Authorizer{sites: sites}
}

// CanCreateBuild allows the request when the user is a member of the target
// site; otherwise it fails with a forbidden error. The site must exist.
func (a *Authorizer) CanCreateBuild(ctx context.Context, userID, siteID int64) error {
	if _, err := a.sites.GetSite(ctx, siteID); err != nil {
		return err
	}
	return a.requireMembership(ctx, userID, siteID)
}

// CanViewSiteBuilds allows listing a site's builds for site members only.
func (a *Authorizer) CanViewSiteBuilds(ctx context.Context, userID, siteID int64) error {
	if _, err := a.sites.GetSite(ctx, siteID); err != nil {
		return err
	}
	return a.requireMembership(ctx, userID, siteID)
}

// CanViewBuildLogs allows reading logs of a build owned by siteID. Build
// existence is the caller's concern and must be resolved first: a missing
// build is NotFound, an existing build without membership is Forbidden.
// Existence is not sensitive; membership is.
func (a *Authorizer) CanViewBuildLogs(ctx context.Context, userID, siteID int64) error {
	return a.requireMembership(ctx, userID, siteID)
}

func (a *Authorizer) requireMembership(ctx context.Context, userID, siteID int64) error {
	ok, err := a.sites.IsMember(ctx, userID, siteID)
	if err != nil {
		return fmt.Errorf("check site membership: %w", err)
	}
	if !ok {
		return errors.Forbidden(fmt.Sprintf("user %d is not associated with site %d", userID, siteID))
	}
	return nil
}
