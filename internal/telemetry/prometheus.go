// Package telemetry exposes pipeline counters to Prometheus and, when
// configured, exports run metrics over OTLP.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LinesParsed counts successfully parsed log lines per site.
	LinesParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logamizer_lines_parsed_total",
		Help: "Successfully parsed log lines",
	}, []string{"site"})

	// LinesFailed counts lines no recognizer claimed.
	LinesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logamizer_lines_failed_total",
		Help: "Log lines that failed to parse",
	}, []string{"site"})

	// EventsFiltered counts events dropped by the hidden-IP filter.
	EventsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logamizer_events_filtered_total",
		Help: "Events dropped by the hidden-IP filter",
	}, []string{"site"})

	// FindingsEmitted counts findings by rule.
	FindingsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logamizer_findings_total",
		Help: "Security and anomaly findings emitted",
	}, []string{"site", "rule"})

	// ErrorOccurrences counts grouped error occurrences.
	ErrorOccurrences = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logamizer_error_occurrences_total",
		Help: "Error occurrences folded into groups",
	}, []string{"site"})

	// JobsCompleted counts terminal job states.
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logamizer_jobs_total",
		Help: "Pipeline jobs by kind and terminal status",
	}, []string{"kind", "status"})

	// JobDuration observes end-to-end job runtime.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logamizer_job_duration_seconds",
		Help:    "Pipeline job duration",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"kind"})
)

// Handler serves the metrics endpoint for worker processes.
func Handler() http.Handler {
	return promhttp.Handler()
}
