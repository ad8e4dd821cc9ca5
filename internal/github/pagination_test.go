package github

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedServer serves n members split into pages of perPage, then empty pages.
func pagedServer(t *testing.T, total int) (*Client, *int) {
	t.Helper()
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		require.GreaterOrEqual(t, page, 1)

		start := (page - 1) * perPage
		var members []*Member
		for i := start; i < total && i < start+perPage; i++ {
			members = append(members, &Member{ID: int64(i + 1), Login: fmt.Sprintf("user%d", i+1)})
		}
		_ = json.NewEncoder(w).Encode(members)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "tok", 5*time.Second), &requests
}

func TestListOrgMembersPaginatesUntilEmpty(t *testing.T) {
	client, requests := pagedServer(t, 250)

	members, err := client.ListOrgMembers(t.Context(), "org", "")
	require.NoError(t, err)

	assert.Len(t, members, 250)
	assert.Equal(t, "user1", members[0].Login)
	assert.Equal(t, "user250", members[249].Login)
	// 3 full/partial pages plus the empty page that terminates the walk
	assert.Equal(t, 4, *requests)
}

func TestListOrgMembersEmpty(t *testing.T) {
	client, requests := pagedServer(t, 0)

	members, err := client.ListOrgMembers(t.Context(), "org", "admin")
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, 1, *requests)
}

func TestMemberPagesIsRestartable(t *testing.T) {
	client, _ := pagedServer(t, 150)
	endpoint := func(page int) string {
		return fmt.Sprintf("/orgs/org/members?per_page=%d&page=%d", perPage, page)
	}

	pages := client.memberPages(t.Context(), endpoint)

	// first walk stops early after one page
	for members, err := range pages {
		require.NoError(t, err)
		assert.Len(t, members, perPage)
		break
	}

	// second walk starts over from page 1 and sees everything
	total := 0
	for members, err := range pages {
		require.NoError(t, err)
		total += len(members)
	}
	assert.Equal(t, 150, total)
}

func TestListCollaboratorsPropagatesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "tok", 5*time.Second)

	_, err := client.ListCollaborators(t.Context(), "org", "repo")
	assert.Error(t, err)
}

func TestListTeamMembersEndpoint(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path == "" {
			path = r.URL.Path
		}
		_, _ = w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "tok", 5*time.Second)

	_, err := client.ListTeamMembers(t.Context(), "org", "admins")
	require.NoError(t, err)
	assert.Equal(t, "/orgs/org/teams/admins/members", path)
}
