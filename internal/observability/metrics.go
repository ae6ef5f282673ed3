package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	gradingOutcomesTotal  *prometheus.CounterVec
	gradingLatencySeconds *prometheus.HistogramVec
	oracleMalformedTotal  prometheus.Counter
	releaseSweepTotal     *prometheus.CounterVec
	passbackResultsTotal  *prometheus.CounterVec
	eventPublishFailures  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the grader.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 15.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gradingOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_grading_outcomes_total",
			Help: "Graded submissions by grading mode and outcome.",
		}, []string{"mode", "outcome"})

		gradingLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_grading_latency_seconds",
			Help:    "End to end grading pipeline latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode"})

		oracleMalformedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grader_oracle_malformed_replies_total",
			Help: "Oracle replies that did not follow the Score/Feedback format.",
		})

		releaseSweepTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_release_sweep_submissions_total",
			Help: "Submissions examined by the release sweep, by result.",
		}, []string{"result"})

		passbackResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_passback_results_total",
			Help: "Grade passback attempts by platform and result.",
		}, []string{"platform", "result"})

		eventPublishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_event_publish_failures_total",
			Help: "Domain events that could not be published.",
		}, []string{"subject"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			gradingOutcomesTotal, gradingLatencySeconds, oracleMalformedTotal,
			releaseSweepTotal, passbackResultsTotal, eventPublishFailures,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// GradingOutcomes counts graded submissions.
func GradingOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingOutcomesTotal
}

// GradingLatency exposes the pipeline latency histogram.
func GradingLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingLatencySeconds
}

// OracleMalformedReplies counts unparseable oracle replies.
func OracleMalformedReplies() prometheus.Counter {
	RegisterMetrics()
	return oracleMalformedTotal
}

// ReleaseSweep counts sweep outcomes by result label.
func ReleaseSweep() *prometheus.CounterVec {
	RegisterMetrics()
	return releaseSweepTotal
}

// PassbackResults counts grade passback attempts.
func PassbackResults() *prometheus.CounterVec {
	RegisterMetrics()
	return passbackResultsTotal
}

// EventPublishFailures counts failed event publications.
func EventPublishFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return eventPublishFailures
}
