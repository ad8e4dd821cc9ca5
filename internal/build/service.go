package build

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/5l1v3r1/federalist/internal/errors"
	"github.com/5l1v3r1/federalist/internal/eventstore"
	"github.com/5l1v3r1/federalist/internal/metrics"
	"github.com/5l1v3r1/federalist/internal/site"
	"github.com/5l1v3r1/federalist/internal/socket"
)

// StatusReporter mirrors a build's state to the upstream commit-status API.
// Implementations bound their own retries; a returned error means the mirror
// is best-effort lost, never that the local transition failed.
type StatusReporter interface {
	ReportBuildStatus(ctx context.Context, b *Build, s *site.Site) error
}

// Service coordinates the build lifecycle: creation, the worker status
// callback, and the fan-out to the notifier and the upstream reporter.
type Service struct {
	store     Store
	sites     site.Store
	reporter  StatusReporter
	publisher socket.Publisher
	events    eventstore.Store
	metrics   metrics.Recorder
	logger    *slog.Logger

	// wg tracks in-flight fan-out goroutines so shutdown (and tests) can
	// wait for them.
	wg sync.WaitGroup
}

// Deps carries the service's collaborators. Store and Sites are required;
// the rest default to no-ops when nil.
type Deps struct {
	Store     Store
	Sites     site.Store
	Reporter  StatusReporter
	Publisher socket.Publisher
	Events    eventstore.Store
	Metrics   metrics.Recorder
	Logger    *slog.Logger
}

// NewService constructs a Service from its dependencies.
func NewService(deps Deps) *Service {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Publisher == nil {
		deps.Publisher = socket.NewMemoryPublisher()
	}
	return &Service{
		store:     deps.Store,
		sites:     deps.Sites,
		reporter:  deps.Reporter,
		publisher: deps.Publisher,
		events:    deps.Events,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// CreateBuildRequest asks for a new build on a site, either by pointing at a
// previous build to rerun or by naming a (branch, sha) pair.
type CreateBuildRequest struct {
	SiteID  int64
	UserID  int64
	BuildID int64 // optional: rerun this build's branch/sha
	Branch  string
	Sha     string
}

// CreateBuild creates a queued build for the request, or returns the build
// already queued for the same (site, branch). The boolean reports whether a
// new build was created. Authorization happens at the API boundary.
func (s *Service) CreateBuild(ctx context.Context, req CreateBuildRequest) (*Build, bool, error) {
	branch, sha := req.Branch, req.Sha
	if req.BuildID != 0 {
		prev, err := s.store.GetBuild(ctx, req.BuildID)
		if err != nil {
			return nil, false, err
		}
		if prev.Site != req.SiteID {
			return nil, false, errors.NotFound(
				fmt.Sprintf("build %d not found for site %d", req.BuildID, req.SiteID))
		}
		branch, sha = prev.Branch, prev.CommitSha
	}
	if branch == "" {
		return nil, false, errors.Validation("either buildId or branch is required")
	}

	if existing, err := s.store.FindQueuedBuild(ctx, req.SiteID, branch); err == nil {
		return existing, false, nil
	} else if !errors.IsKind(err, errors.KindNotFound) {
		return nil, false, err
	}

	b := &Build{
		Site:      req.SiteID,
		Branch:    branch,
		CommitSha: sha,
		User:      req.UserID,
		State:     StateCreated,
	}
	if err := s.store.CreateBuild(ctx, b); err != nil {
		return nil, false, err
	}

	queued, err := s.Enqueue(ctx, b)
	if err != nil {
		if errors.IsKind(err, errors.KindValidation) {
			// Lost the race against a concurrent creation; the partial
			// unique index rejected the second queued row. Close out ours
			// and hand back the winner.
			s.closeOutSupersededBuild(ctx, b.ID)
			if existing, findErr := s.store.FindQueuedBuild(ctx, req.SiteID, branch); findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	s.metrics.IncBuildCreated()
	s.appendEvent(ctx, queued.ID, eventstore.TypeBuildCreated, func(ctx context.Context) error {
		return eventstore.AppendBuildCreated(ctx, s.events, queued.ID, eventstore.BuildCreatedPayload{
			Site: queued.Site, Branch: queued.Branch, Sha: queued.CommitSha, User: queued.User,
		})
	})

	// Mirror the queued state upstream right away so the commit shows a
	// pending status before the worker picks the build up.
	s.wg.Add(1)
	go func(b *Build) {
		defer s.wg.Done()
		s.reportStatus(context.WithoutCancel(ctx), b)
	}(queued)

	return queued, true, nil
}

// Enqueue transitions a freshly created build to queued. Dispatching the
// actual work to a builder is the caller's concern.
func (s *Service) Enqueue(ctx context.Context, b *Build) (*Build, error) {
	return s.store.TransitionBuild(ctx, b.ID, StateQueued, "", nil)
}

// UpdateStatus ingests one worker status callback. The token must match the
// build's capability token; the check happens strictly after existence so a
// bad token cannot probe for build ids. The base64 message never rejects the
// callback: a decode failure forces the error state with a diagnostic
// substitute so the build still terminates observably.
func (s *Service) UpdateStatus(ctx context.Context, buildID int64, token, status, encodedMessage string) (*Build, error) {
	message, decodeErr := decodeMessage(encodedMessage)
	if decodeErr != nil {
		s.logger.Error("error decoding build status message",
			"build_id", buildID, "message", encodedMessage, "error", decodeErr)
	}

	b, err := s.store.GetBuild(ctx, buildID)
	if err != nil {
		s.metrics.IncStatusCallback(metrics.CallbackNotFound)
		return nil, err
	}
	if b.Token != token {
		s.metrics.IncStatusCallback(metrics.CallbackForbidden)
		return nil, errors.Forbidden(fmt.Sprintf("invalid token for build %d", buildID))
	}

	state := StateError
	switch {
	case decodeErr != nil:
		message = "build status message parsing error"
	default:
		parsed, ok := ParseState(status)
		if !ok {
			message = fmt.Sprintf("unrecognized build status %q", status)
		} else {
			state = parsed
		}
	}

	var completedAt *time.Time
	if state.IsTerminal() {
		now := time.Now().UTC()
		completedAt = &now
	}
	errMsg := ""
	if state == StateError {
		errMsg = message
	}

	updated, err := s.store.TransitionBuild(ctx, buildID, state, errMsg, completedAt)
	if err != nil {
		s.metrics.IncStatusCallback(metrics.CallbackInvalid)
		return nil, err
	}

	s.metrics.IncStatusCallback(metrics.CallbackSuccess)
	if state.IsTerminal() {
		s.metrics.IncBuildOutcome(string(state))
	}
	s.appendEvent(ctx, updated.ID, eventstore.TypeBuildStatusChanged, func(ctx context.Context) error {
		return eventstore.AppendBuildStatusChanged(ctx, s.events, updated.ID, eventstore.BuildStatusChangedPayload{
			State: string(updated.State), Message: errMsg,
		})
	})

	// The transition is committed; the notifier and the reporter run
	// concurrently and independently from here. Neither can fail the
	// callback, and a failure in one does not touch the other.
	detached := context.WithoutCancel(ctx)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.notifyBuildStatus(detached, updated)
	}()
	go func() {
		defer s.wg.Done()
		s.reportStatus(detached, updated)
	}()

	return updated, nil
}

// CreateLog appends a worker-emitted log record. The worker proves itself
// with the build's capability token, existence checked before the token.
func (s *Service) CreateLog(ctx context.Context, buildID int64, token, source, output string) (*BuildLog, error) {
	b, err := s.store.GetBuild(ctx, buildID)
	if err != nil {
		return nil, err
	}
	if b.Token != token {
		return nil, errors.Forbidden(fmt.Sprintf("invalid token for build %d", buildID))
	}
	l := &BuildLog{Build: b.ID, Source: source, Output: output}
	if err := s.store.CreateLog(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// GetBuild returns a build by id.
func (s *Service) GetBuild(ctx context.Context, id int64) (*Build, error) {
	return s.store.GetBuild(ctx, id)
}

// ListBuilds returns the newest builds for a site, at most 100.
func (s *Service) ListBuilds(ctx context.Context, siteID int64) ([]*Build, error) {
	return s.store.ListBuilds(ctx, siteID, 100)
}

// Logs returns a build's log records in creation order.
func (s *Service) Logs(ctx context.Context, buildID int64) ([]*BuildLog, error) {
	return s.store.ListLogs(ctx, buildID)
}

// Wait blocks until all in-flight fan-out goroutines finish. Called on
// shutdown and by tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

// notifyBuildStatus publishes the compact status message to the site room
// and, for user-initiated builds, the per-user room. Failures are logged;
// they never reach the transition path.
func (s *Service) notifyBuildStatus(ctx context.Context, b *Build) {
	st, err := s.sites.GetSite(ctx, b.Site)
	if err != nil {
		s.metrics.IncNotifyFailure()
		s.logger.Error("error resolving site for build status notification",
			"build_id", b.ID, "site", b.Site, "error", err)
		return
	}

	msg := socket.StatusMessage{
		ID:         b.ID,
		State:      string(b.State),
		Site:       b.Site,
		Branch:     b.Branch,
		Owner:      st.Owner,
		Repository: st.Repository,
	}

	rooms := []string{socket.SiteRoom(b.Site)}
	if b.User != 0 {
		rooms = append(rooms, socket.BuilderRoom(b.Site, b.User))
	}
	for _, room := range rooms {
		if err := s.publisher.Publish(room, msg); err != nil {
			s.metrics.IncNotifyFailure()
			s.logger.Error("error publishing build status",
				"build_id", b.ID, "room", room, "error", err)
		}
	}
}

// reportStatus mirrors the build's state upstream. The reporter owns its
// retry budget; an exhausted budget is logged here and goes no further.
func (s *Service) reportStatus(ctx context.Context, b *Build) {
	if s.reporter == nil {
		s.logger.Debug("status reporter not configured, skipping", "build_id", b.ID)
		return
	}
	st, err := s.sites.GetSite(ctx, b.Site)
	if err != nil {
		s.logger.Error("error resolving site for status report",
			"build_id", b.ID, "site", b.Site, "error", err)
		return
	}

	start := time.Now()
	err = s.reporter.ReportBuildStatus(ctx, b, st)
	s.metrics.ObserveStatusReportDuration(time.Since(start), err == nil)
	if err != nil {
		s.logger.Error("error reporting build status upstream",
			"build_id", b.ID, "state", b.State, "error", err)
	}
}

// closeOutSupersededBuild terminates the created row that lost a creation
// race so it does not linger in a non-terminal state.
func (s *Service) closeOutSupersededBuild(ctx context.Context, id int64) {
	now := time.Now().UTC()
	if _, err := s.store.TransitionBuild(ctx, id, StateError,
		"superseded by concurrently queued build", &now); err != nil {
		s.logger.Error("error closing out superseded build", "build_id", id, "error", err)
	}
}

// appendEvent records an audit event, logging failures instead of returning
// them; the audit trail is diagnostic only.
func (s *Service) appendEvent(ctx context.Context, buildID int64, eventType string, fn func(context.Context) error) {
	if s.events == nil {
		return
	}
	if err := fn(ctx); err != nil {
		s.logger.Error("error appending build event",
			"build_id", buildID, "event_type", eventType, "error", err)
	}
}

func decodeMessage(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
