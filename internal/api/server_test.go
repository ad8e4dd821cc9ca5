package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/5l1v3r1/federalist/internal/auth"
	"github.com/5l1v3r1/federalist/internal/build"
	"github.com/5l1v3r1/federalist/internal/site"
	"github.com/5l1v3r1/federalist/internal/socket"
)

const webhookSecret = "s3cret"

type fakeReporter struct {
	mu    sync.Mutex
	calls []build.State
}

func (f *fakeReporter) ReportBuildStatus(_ context.Context, b *build.Build, _ *site.Site) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, b.State)
	return nil
}

func (f *fakeReporter) states() []build.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]build.State(nil), f.calls...)
}

type fixture struct {
	server    *Server
	svc       *build.Service
	db        *sql.DB
	sites     *site.SQLiteStore
	reporter  *fakeReporter
	publisher *socket.MemoryPublisher
	siteID    int64
	memberID  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// a second pooled connection would see a fresh in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	builds, err := build.NewSQLiteStore(db)
	require.NoError(t, err)
	sites, err := site.NewSQLiteStore(db)
	require.NoError(t, err)

	s := &site.Site{Owner: "org", Repository: "repo"}
	require.NoError(t, sites.CreateSite(t.Context(), s))
	require.NoError(t, sites.AddMember(t.Context(), 3, s.ID))

	reporter := &fakeReporter{}
	publisher := socket.NewMemoryPublisher()
	svc := build.NewService(build.Deps{
		Store:     builds,
		Sites:     sites,
		Reporter:  reporter,
		Publisher: publisher,
	})

	server := NewServer(Options{
		Addr:          ":0",
		Builds:        svc,
		Authorizer:    auth.NewAuthorizer(sites),
		Sites:         sites,
		WebhookSecret: webhookSecret,
		Registry:      prom.NewRegistry(),
	})

	return &fixture{
		server: server, svc: svc, db: db, sites: sites,
		reporter: reporter, publisher: publisher,
		siteID: s.ID, memberID: 3,
	}
}

func (f *fixture) do(t *testing.T, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != 0 {
		req.Header.Set("X-Federalist-User", fmt.Sprint(userID))
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createBuild(t *testing.T) *build.Build {
	t.Helper()
	b, created, err := f.svc.CreateBuild(t.Context(), build.CreateBuildRequest{
		SiteID: f.siteID, UserID: f.memberID, Branch: "main", Sha: "abc123",
	})
	require.NoError(t, err)
	require.True(t, created)
	f.svc.Wait()
	return b
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateBuildEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v0/build", f.memberID,
		createBuildRequest{SiteID: f.siteID, Branch: "main", Sha: "abc123"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Success bool        `json:"success"`
		Data    build.Build `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, build.StateQueued, resp.Data.State)

	// same branch again while queued: existing build, 200 not 201
	rec = f.do(t, http.MethodPost, "/v0/build", f.memberID,
		createBuildRequest{SiteID: f.siteID, Branch: "main", Sha: "def456"})
	require.Equal(t, http.StatusOK, rec.Code)
	var second struct {
		Data build.Build `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, resp.Data.ID, second.Data.ID)
	f.svc.Wait()
}

func TestCreateBuildForbiddenForNonMember(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/v0/build", 99,
		createBuildRequest{SiteID: f.siteID, Branch: "main"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateBuildRequiresUser(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/v0/build", 0,
		createBuildRequest{SiteID: f.siteID, Branch: "main"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateBuildTokenNotSerialized(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/v0/build", f.memberID,
		createBuildRequest{SiteID: f.siteID, Branch: "main"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "token")
	f.svc.Wait()
}

func TestListBuilds(t *testing.T) {
	f := newFixture(t)
	f.createBuild(t)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/v0/site/%d/build", f.siteID), f.memberID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []build.Build `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v0/site/%d/build", f.siteID), 99, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStatusCallbackSuccess(t *testing.T) {
	f := newFixture(t)
	b := f.createBuild(t)

	rec := f.do(t, http.MethodPost,
		fmt.Sprintf("/v0/build/%d/status/%s", b.ID, b.Token), 0,
		statusRequest{Status: "success", Message: b64("all good")})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	f.svc.Wait()

	got, err := f.svc.GetBuild(t.Context(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, build.StateSuccess, got.State)
	require.NotNil(t, got.CompletedAt)

	// fan-out: both rooms and the upstream reporter saw the transition
	siteMsgs := f.publisher.Messages(socket.SiteRoom(f.siteID))
	require.Len(t, siteMsgs, 1)
	assert.Equal(t, socket.StatusMessage{
		ID: b.ID, State: "success", Site: f.siteID, Branch: "main",
		Owner: "org", Repository: "repo",
	}, siteMsgs[0])
	assert.Len(t, f.publisher.Messages(socket.BuilderRoom(f.siteID, f.memberID)), 1)
	assert.Equal(t, []build.State{build.StateQueued, build.StateSuccess}, f.reporter.states())
}

func TestStatusCallbackWrongToken(t *testing.T) {
	f := newFixture(t)
	b := f.createBuild(t)

	rec := f.do(t, http.MethodPost,
		fmt.Sprintf("/v0/build/%d/status/wrong-token", b.ID), 0,
		statusRequest{Status: "success", Message: b64("x")})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	got, err := f.svc.GetBuild(t.Context(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, build.StateQueued, got.State)
	assert.Nil(t, got.CompletedAt)
}

func TestStatusCallbackUnknownBuild(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v0/build/999/status/any", 0,
		statusRequest{Status: "success", Message: b64("x")})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// non-numeric id behaves like a missing build
	rec = f.do(t, http.MethodPost, "/v0/build/abc/status/any", 0,
		statusRequest{Status: "success", Message: b64("x")})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusCallbackTerminalBuild(t *testing.T) {
	f := newFixture(t)
	b := f.createBuild(t)

	rec := f.do(t, http.MethodPost,
		fmt.Sprintf("/v0/build/%d/status/%s", b.ID, b.Token), 0,
		statusRequest{Status: "error", Message: b64("boom")})
	require.Equal(t, http.StatusOK, rec.Code)
	f.svc.Wait()

	rec = f.do(t, http.MethodPost,
		fmt.Sprintf("/v0/build/%d/status/%s", b.ID, b.Token), 0,
		statusRequest{Status: "processing", Message: b64("late")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusCallbackMalformedMessage(t *testing.T) {
	f := newFixture(t)
	b := f.createBuild(t)

	rec := f.do(t, http.MethodPost,
		fmt.Sprintf("/v0/build/%d/status/%s", b.ID, b.Token), 0,
		statusRequest{Status: "success", Message: "%%%not-base64%%%"})
	require.Equal(t, http.StatusOK, rec.Code)
	f.svc.Wait()

	got, err := f.svc.GetBuild(t.Context(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, build.StateError, got.State)
	assert.Equal(t, "build status message parsing error", got.Error)
	require.NotNil(t, got.CompletedAt)
}

func TestWorkerLogAppend(t *testing.T) {
	f := newFixture(t)
	b := f.createBuild(t)

	rec := f.do(t, http.MethodPost,
		fmt.Sprintf("/v0/build/%d/log/%s", b.ID, b.Token), 0,
		logRequest{Source: "clone", Output: "cloning repository"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost,
		fmt.Sprintf("/v0/build/%d/log/bad-token", b.ID), 0,
		logRequest{Source: "clone", Output: "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetBuildLogsAuthorization(t *testing.T) {
	f := newFixture(t)
	b := f.createBuild(t)
	_, err := f.svc.CreateLog(t.Context(), b.ID, b.Token, "publish", "published")
	require.NoError(t, err)

	// member sees the logs
	rec := f.do(t, http.MethodGet, fmt.Sprintf("/v0/build/%d/log", b.ID), f.memberID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []build.BuildLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "published", resp.Data[0].Output)

	// authenticated non-member: forbidden
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v0/build/%d/log", b.ID), 99, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// missing build: not found, even for a user with no site relation
	rec = f.do(t, http.MethodGet, "/v0/build/9999/log", 99, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/metrics", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
