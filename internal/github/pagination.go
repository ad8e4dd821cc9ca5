package github

import (
	"context"
	"fmt"
	"iter"
)

const perPage = 100

// Member is a user reference returned by membership and collaborator
// listings.
type Member struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// memberPages lazily fetches pages from endpoint until the API returns an
// empty page. endpoint receives the 1-based page number. The sequence is
// restartable: ranging again starts over from page 1.
func (c *Client) memberPages(ctx context.Context, endpoint func(page int) string) iter.Seq2[[]*Member, error] {
	return func(yield func([]*Member, error) bool) {
		for page := 1; ; page++ {
			req, err := c.newRequest(ctx, "GET", endpoint(page), nil)
			if err != nil {
				yield(nil, err)
				return
			}
			var members []*Member
			if err := c.doRequest(req, &members); err != nil {
				yield(nil, err)
				return
			}
			if len(members) == 0 {
				return
			}
			if !yield(members, nil) {
				return
			}
		}
	}
}

func (c *Client) collectMembers(ctx context.Context, endpoint func(page int) string) ([]*Member, error) {
	var all []*Member
	for members, err := range c.memberPages(ctx, endpoint) {
		if err != nil {
			return nil, err
		}
		all = append(all, members...)
	}
	return all, nil
}

// ListOrgMembers returns all members of an organization with the given role
// (all, admin, or member).
func (c *Client) ListOrgMembers(ctx context.Context, org, role string) ([]*Member, error) {
	if role == "" {
		role = "all"
	}
	return c.collectMembers(ctx, func(page int) string {
		return fmt.Sprintf("/orgs/%s/members?per_page=%d&page=%d&role=%s", org, perPage, page, role)
	})
}

// ListTeamMembers returns all members of an organization team.
func (c *Client) ListTeamMembers(ctx context.Context, org, teamSlug string) ([]*Member, error) {
	return c.collectMembers(ctx, func(page int) string {
		return fmt.Sprintf("/orgs/%s/teams/%s/members?per_page=%d&page=%d", org, teamSlug, perPage, page)
	})
}

// ListCollaborators returns all collaborators on a repository.
func (c *Client) ListCollaborators(ctx context.Context, owner, repo string) ([]*Member, error) {
	return c.collectMembers(ctx, func(page int) string {
		return fmt.Sprintf("/repos/%s/%s/collaborators?per_page=%d&page=%d", owner, repo, perPage, page)
	})
}
