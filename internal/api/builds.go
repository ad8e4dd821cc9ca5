package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/5l1v3r1/federalist/internal/build"
	"github.com/5l1v3r1/federalist/internal/errors"
)

// createBuildRequest carries a siteId plus either a buildId to rerun or a
// (branch, sha) pair.
type createBuildRequest struct {
	SiteID  int64  `json:"siteId"`
	BuildID int64  `json:"buildId,omitempty"`
	Branch  string `json:"branch,omitempty"`
	Sha     string `json:"sha,omitempty"`
}

// statusRequest is the worker's status callback body. Message is base64.
type statusRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// logRequest is the worker's log append body.
type logRequest struct {
	Source string `json:"source"`
	Output string `json:"output"`
}

func (s *Server) handleCreateBuild(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		s.Error(w, r, errors.Forbidden("no authenticated user"))
		return
	}

	var req createBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Error(w, r, errors.Validation("invalid request body"))
		return
	}
	defer r.Body.Close()

	if err := s.authz.CanCreateBuild(r.Context(), userID, req.SiteID); err != nil {
		s.Error(w, r, err)
		return
	}

	b, created, err := s.builds.CreateBuild(r.Context(), build.CreateBuildRequest{
		SiteID:  req.SiteID,
		UserID:  userID,
		BuildID: req.BuildID,
		Branch:  req.Branch,
		Sha:     req.Sha,
	})
	if err != nil {
		s.Error(w, r, err)
		return
	}

	slog.Info("build requested",
		"build_id", b.ID, "site", b.Site, "branch", b.Branch, "user", userID, "created", created)
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	s.Success(w, code, b)
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		s.Error(w, r, errors.Forbidden("no authenticated user"))
		return
	}
	siteID, err := pathID(r, "site_id")
	if err != nil {
		s.Error(w, r, err)
		return
	}

	if err := s.authz.CanViewSiteBuilds(r.Context(), userID, siteID); err != nil {
		s.Error(w, r, err)
		return
	}

	builds, err := s.builds.ListBuilds(r.Context(), siteID)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	if builds == nil {
		builds = []*build.Build{}
	}
	s.Success(w, http.StatusOK, builds)
}

// handleBuildStatus is the worker status callback. On success it answers
// with a bare acknowledgement; the fan-out to the notifier and the upstream
// reporter has already been launched and cannot fail the response.
func (s *Server) handleBuildStatus(w http.ResponseWriter, r *http.Request) {
	buildID, err := pathID(r, "id")
	if err != nil {
		s.Error(w, r, err)
		return
	}
	token := chi.URLParam(r, "token")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Error(w, r, errors.Validation("invalid request body"))
		return
	}
	defer r.Body.Close()

	if _, err := s.builds.UpdateStatus(r.Context(), buildID, token, req.Status, req.Message); err != nil {
		s.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCreateBuildLog(w http.ResponseWriter, r *http.Request) {
	buildID, err := pathID(r, "id")
	if err != nil {
		s.Error(w, r, err)
		return
	}
	token := chi.URLParam(r, "token")

	var req logRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Error(w, r, errors.Validation("invalid request body"))
		return
	}
	defer r.Body.Close()

	l, err := s.builds.CreateLog(r.Context(), buildID, token, req.Source, req.Output)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusCreated, l)
}

// handleGetBuildLogs serves a build's logs to site members. Build existence
// resolves strictly before membership: a missing build is not found even for
// users with no site relation, while an existing build they cannot see is
// forbidden.
func (s *Server) handleGetBuildLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		s.Error(w, r, errors.Forbidden("no authenticated user"))
		return
	}
	buildID, err := pathID(r, "build_id")
	if err != nil {
		s.Error(w, r, err)
		return
	}

	b, err := s.builds.GetBuild(r.Context(), buildID)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	if err := s.authz.CanViewBuildLogs(r.Context(), userID, b.Site); err != nil {
		s.Error(w, r, err)
		return
	}

	logs, err := s.builds.Logs(r.Context(), buildID)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	if logs == nil {
		logs = []*build.BuildLog{}
	}
	s.Success(w, http.StatusOK, logs)
}
