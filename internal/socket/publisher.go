// Package socket provides the real-time fan-out capability for build status
// changes. Room membership lives in an external connection registry; this
// package only knows how to derive room keys and publish to them.
package socket

import "fmt"

// StatusMessage is the compact build-status payload pushed to observers.
type StatusMessage struct {
	ID         int64  `json:"id"`
	State      string `json:"state"`
	Site       int64  `json:"site"`
	Branch     string `json:"branch"`
	Owner      string `json:"owner"`
	Repository string `json:"repository"`
}

// Publisher delivers a status message to a logical room. Implementations must
// be safe for concurrent use.
type Publisher interface {
	Publish(room string, msg StatusMessage) error
}

// SiteRoom returns the room observed by everyone watching a site.
func SiteRoom(siteID int64) string {
	return fmt.Sprintf("site-%d", siteID)
}

// BuilderRoom returns the room scoped to one user's builds on a site.
func BuilderRoom(siteID, userID int64) string {
	return fmt.Sprintf("site-%d-user-%d", siteID, userID)
}
