package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	buildsCreated        prom.Counter
	statusCallbacks      *prom.CounterVec
	buildOutcomes        *prom.CounterVec
	statusReportDuration *prom.HistogramVec
	notifyFailures       prom.Counter
}

// NewPrometheusRecorder constructs and registers pipeline metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		buildsCreated: prom.NewCounter(prom.CounterOpts{
			Namespace: "federalist",
			Name:      "builds_created_total",
			Help:      "Builds created, whether user-initiated or webhook-triggered",
		}),
		statusCallbacks: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "federalist",
			Name:      "status_callbacks_total",
			Help:      "Worker status callbacks by result",
		}, []string{"result"}),
		buildOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "federalist",
			Name:      "build_outcomes_total",
			Help:      "Terminal build states",
		}, []string{"state"}),
		statusReportDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "federalist",
			Name:      "status_report_duration_seconds",
			Help:      "Duration of commit-status reports to the upstream API, retries included",
			Buckets:   prom.DefBuckets,
		}, []string{"result"}),
		notifyFailures: prom.NewCounter(prom.CounterOpts{
			Namespace: "federalist",
			Name:      "notify_failures_total",
			Help:      "Real-time publish failures",
		}),
	}
	reg.MustRegister(
		pr.buildsCreated,
		pr.statusCallbacks,
		pr.buildOutcomes,
		pr.statusReportDuration,
		pr.notifyFailures,
	)
	return pr
}

func (pr *PrometheusRecorder) IncBuildCreated() {
	pr.buildsCreated.Inc()
}

func (pr *PrometheusRecorder) IncStatusCallback(result string) {
	pr.statusCallbacks.WithLabelValues(result).Inc()
}

func (pr *PrometheusRecorder) IncBuildOutcome(state string) {
	pr.buildOutcomes.WithLabelValues(state).Inc()
}

func (pr *PrometheusRecorder) ObserveStatusReportDuration(d time.Duration, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	pr.statusReportDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncNotifyFailure() {
	pr.notifyFailures.Inc()
}
