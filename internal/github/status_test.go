package github

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/5l1v3r1/federalist/internal/build"
	"github.com/5l1v3r1/federalist/internal/errors"
	"github.com/5l1v3r1/federalist/internal/site"
)

func testBuild(state build.State) *build.Build {
	return &build.Build{
		ID: 42, Site: 7, Branch: "main", CommitSha: "abc123",
		State: state, Token: "tok-abc",
	}
}

func testSite() *site.Site {
	return &site.Site{ID: 7, Owner: "org", Repository: "repo"}
}

func newReporter(t *testing.T, handler http.HandlerFunc) *StatusReporter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "test-token", 5*time.Second)
	return NewStatusReporter(client, "https://pages.example.gov", "federalist/build")
}

func TestReportBuildStatusPayload(t *testing.T) {
	var got commitStatus
	var path, auth string
	r := newReporter(t, func(w http.ResponseWriter, req *http.Request) {
		path = req.URL.Path
		auth = req.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	err := r.ReportBuildStatus(t.Context(), testBuild(build.StateSuccess), testSite())
	require.NoError(t, err)

	assert.Equal(t, "/repos/org/repo/statuses/abc123", path)
	assert.Equal(t, "Bearer test-token", auth)
	assert.Equal(t, "success", got.State)
	assert.Equal(t, "https://pages.example.gov/sites/7/builds/42/logs", got.TargetURL)
	assert.Equal(t, "federalist/build", got.Context)
	assert.Equal(t, "The build is complete!", got.Description)
}

func TestReportBuildStatusSucceedsOnFifthAttempt(t *testing.T) {
	var calls atomic.Int64
	r := newReporter(t, func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) < 5 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	err := r.ReportBuildStatus(t.Context(), testBuild(build.StateSuccess), testSite())
	require.NoError(t, err)
	assert.Equal(t, int64(5), calls.Load())
}

func TestReportBuildStatusExhaustsFiveAttempts(t *testing.T) {
	var calls atomic.Int64
	r := newReporter(t, func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	err := r.ReportBuildStatus(t.Context(), testBuild(build.StateError), testSite())
	require.Error(t, err)
	assert.Equal(t, int64(5), calls.Load())
	assert.True(t, errors.IsKind(err, errors.KindUpstream))
}

func TestReportBuildStatusSkipsWithoutSha(t *testing.T) {
	called := false
	r := newReporter(t, func(w http.ResponseWriter, req *http.Request) {
		called = true
	})

	b := testBuild(build.StateQueued)
	b.CommitSha = ""
	require.NoError(t, r.ReportBuildStatus(t.Context(), b, testSite()))
	assert.False(t, called)
}

func TestStateToGitHub(t *testing.T) {
	assert.Equal(t, "pending", stateToGitHub(build.StateCreated))
	assert.Equal(t, "pending", stateToGitHub(build.StateQueued))
	assert.Equal(t, "pending", stateToGitHub(build.StateProcessing))
	assert.Equal(t, "success", stateToGitHub(build.StateSuccess))
	assert.Equal(t, "error", stateToGitHub(build.StateError))
}

func TestDescribeState(t *testing.T) {
	b := testBuild(build.StateError)
	b.Error = "compile failed"
	assert.Equal(t, "compile failed", describeState(b))

	b.Error = strings.Repeat("x", 200)
	desc := describeState(b)
	assert.Len(t, desc, 140)
	assert.True(t, strings.HasSuffix(desc, "..."))

	assert.Equal(t, "The build is queued.", describeState(testBuild(build.StateQueued)))
	assert.Equal(t, "The build is in progress.", describeState(testBuild(build.StateProcessing)))
}
