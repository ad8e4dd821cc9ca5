// Package metrics defines observability hooks for the build status pipeline.
package metrics

import "time"

// Recorder defines the pipeline's metric hooks. Implementations may forward
// to Prometheus or drop everything (NoopRecorder) when metrics are not
// configured.
type Recorder interface {
	IncBuildCreated()
	IncStatusCallback(result string) // result: success|not_found|forbidden|invalid
	IncBuildOutcome(state string)    // state: success|error
	ObserveStatusReportDuration(d time.Duration, success bool)
	IncNotifyFailure()
}

// Callback result labels.
const (
	CallbackSuccess   = "success"
	CallbackNotFound  = "not_found"
	CallbackForbidden = "forbidden"
	CallbackInvalid   = "invalid"
)

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) IncBuildCreated()                                 {}
func (NoopRecorder) IncStatusCallback(string)                         {}
func (NoopRecorder) IncBuildOutcome(string)                           {}
func (NoopRecorder) ObserveStatusReportDuration(time.Duration, bool)  {}
func (NoopRecorder) IncNotifyFailure()                                {}
