package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/5l1v3r1/federalist/internal/build"
	"github.com/5l1v3r1/federalist/internal/errors"
	"github.com/5l1v3r1/federalist/internal/github"
)

// handleWebhook receives GitHub push events and turns them into queued
// builds. It always answers 200 for events it chooses to ignore so GitHub
// does not redeliver them; only authentication failures are rejected.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.Error(w, r, errors.Validation("unreadable payload"))
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Hub-Signature-256")
	if signature == "" {
		signature = r.Header.Get("X-Hub-Signature")
	}
	if !github.ValidateSignature(payload, signature, s.webhookSecret) {
		s.Error(w, r, errors.Forbidden("invalid webhook signature"))
		return
	}

	if event := r.Header.Get("X-GitHub-Event"); event != "push" {
		slog.Debug("ignoring webhook event", "event", event)
		w.WriteHeader(http.StatusOK)
		return
	}

	push, err := github.ParsePushEvent(payload)
	if err != nil {
		slog.Warn("ignoring unparseable push event", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	if push.Deleted {
		slog.Debug("ignoring branch deletion push", "owner", push.Owner, "repository", push.Repository)
		w.WriteHeader(http.StatusOK)
		return
	}

	st, err := s.sites.FindByRepository(r.Context(), push.Owner, push.Repository)
	if err != nil {
		slog.Info("push for untracked repository",
			"owner", push.Owner, "repository", push.Repository)
		w.WriteHeader(http.StatusOK)
		return
	}

	b, created, err := s.builds.CreateBuild(r.Context(), build.CreateBuildRequest{
		SiteID: st.ID,
		Branch: push.Branch,
		Sha:    push.Sha,
	})
	if err != nil {
		s.Error(w, r, err)
		return
	}

	slog.Info("webhook build requested",
		"build_id", b.ID, "site", st.ID, "branch", push.Branch, "created", created)
	w.WriteHeader(http.StatusOK)
}
