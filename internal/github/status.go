package github

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/5l1v3r1/federalist/internal/build"
	"github.com/5l1v3r1/federalist/internal/errors"
	"github.com/5l1v3r1/federalist/internal/retry"
	"github.com/5l1v3r1/federalist/internal/site"
)

// GitHub caps commit status descriptions.
const maxDescriptionLen = 140

// commitStatus is the payload of the commit-status API.
type commitStatus struct {
	State       string `json:"state"`
	TargetURL   string `json:"target_url"`
	Description string `json:"description"`
	Context     string `json:"context"`
}

// StatusReporter mirrors build states onto GitHub commit statuses. It is a
// best-effort mirror: it retries sequentially within its policy and reports
// the last error when the budget is exhausted, without ever touching build
// state.
type StatusReporter struct {
	client  *Client
	host    string // externally reachable base URL for deep links
	context string // fixed status namespace, e.g. "federalist/build"
	policy  retry.Policy
}

// NewStatusReporter builds a reporter publishing statuses under the given
// context namespace, deep-linking into host.
func NewStatusReporter(client *Client, host, statusContext string) *StatusReporter {
	return &StatusReporter{
		client:  client,
		host:    host,
		context: statusContext,
		policy:  retry.DefaultPolicy(),
	}
}

// ReportBuildStatus sends the build's current state as a commit status keyed
// by (owner, repository, sha). Builds without a commit sha have nothing to
// key the status on and are skipped. Repeating an identical status is a
// no-op overwrite on the GitHub side, so redelivery is safe.
func (r *StatusReporter) ReportBuildStatus(ctx context.Context, b *build.Build, s *site.Site) error {
	if b.CommitSha == "" {
		slog.Debug("build has no commit sha, skipping status report", "build_id", b.ID)
		return nil
	}

	payload := commitStatus{
		State:       stateToGitHub(b.State),
		TargetURL:   fmt.Sprintf("%s/sites/%d/builds/%d/logs", r.host, b.Site, b.ID),
		Description: describeState(b),
		Context:     r.context,
	}
	endpoint := fmt.Sprintf("/repos/%s/%s/statuses/%s", s.Owner, s.Repository, b.CommitSha)

	err := r.policy.Do(ctx, func(ctx context.Context) error {
		req, err := r.client.newRequest(ctx, "POST", endpoint, payload)
		if err != nil {
			return err
		}
		return r.client.doRequest(req, nil)
	})
	if err != nil {
		return errors.Wrap(err, errors.KindUpstream,
			fmt.Sprintf("commit status for %s/%s@%s", s.Owner, s.Repository, b.CommitSha))
	}
	return nil
}

// stateToGitHub maps internal states to the commit-status vocabulary
// (pending, success, error, failure).
func stateToGitHub(state build.State) string {
	switch state {
	case build.StateSuccess:
		return "success"
	case build.StateError:
		return "error"
	default:
		return "pending"
	}
}

func describeState(b *build.Build) string {
	var desc string
	switch b.State {
	case build.StateSuccess:
		desc = "The build is complete!"
	case build.StateError:
		desc = b.Error
		if desc == "" {
			desc = "The build has encountered an error."
		}
	case build.StateProcessing:
		desc = "The build is in progress."
	default:
		desc = "The build is queued."
	}
	if len(desc) > maxDescriptionLen {
		desc = desc[:maxDescriptionLen-3] + "..."
	}
	return desc
}
