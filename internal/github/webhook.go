package github

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// ValidateSignature checks a webhook payload signature against the shared
// secret. Both the sha256 and legacy sha1 header formats are accepted.
func ValidateSignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	if expected, ok := strings.CutPrefix(signature, "sha256="); ok {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		calc := hex.EncodeToString(mac.Sum(nil))
		return hmac.Equal([]byte(expected), []byte(calc))
	}

	if expected, ok := strings.CutPrefix(signature, "sha1="); ok {
		mac := hmac.New(sha1.New, []byte(secret))
		mac.Write(payload)
		calc := hex.EncodeToString(mac.Sum(nil))
		return hmac.Equal([]byte(expected), []byte(calc))
	}

	return false
}

// PushEvent is the subset of a push webhook the build trigger needs.
type PushEvent struct {
	Branch     string
	Sha        string
	Owner      string
	Repository string
	Deleted    bool
}

type rawPushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Deleted    bool   `json:"deleted"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
			Name  string `json:"name"`
		} `json:"owner"`
	} `json:"repository"`
}

// ParsePushEvent decodes a push webhook payload. Only branch pushes are
// meaningful; tag refs yield an error.
func ParsePushEvent(payload []byte) (*PushEvent, error) {
	var raw rawPushEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("parse push event: %w", err)
	}

	branch, ok := strings.CutPrefix(raw.Ref, "refs/heads/")
	if !ok {
		return nil, fmt.Errorf("push event ref %q is not a branch", raw.Ref)
	}

	owner := raw.Repository.Owner.Login
	if owner == "" {
		owner = raw.Repository.Owner.Name
	}

	return &PushEvent{
		Branch:     branch,
		Sha:        raw.After,
		Owner:      owner,
		Repository: raw.Repository.Name,
		Deleted:    raw.Deleted,
	}, nil
}
