package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{
	0.001, // 1ms
	0.005, // 5ms
	0.01,  // 10ms
	0.025, // 25ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.25,  // 250ms
	0.5,   // 500ms
	1.0,   // 1s
	2.5,   // 2.5s
	5.0,   // 5s
	10.0,  // 10s
}

var (
	// SubmissionDuration tracks proof submission latency by outcome.
	SubmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "challengehub_submission_duration_seconds",
			Help:    "Duration of proof submissions in seconds",
			Buckets: latencyBuckets,
		},
		[]string{"result"},
	)

	// PayoutTransferDuration tracks external transfer latency by outcome.
	PayoutTransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "challengehub_payout_transfer_duration_seconds",
			Help:    "Duration of payout transfer calls in seconds",
			Buckets: latencyBuckets,
		},
		[]string{"outcome"},
	)

	// RevenueShareTransitions counts revenue share status changes.
	RevenueShareTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challengehub_revenue_share_transitions_total",
			Help: "Revenue share status transitions",
		},
		[]string{"status"},
	)

	// HTTPRequests counts API requests by route and status class.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challengehub_http_requests_total",
			Help: "HTTP requests handled",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordSubmission records the duration of a proof submission.
func RecordSubmission(result string, d time.Duration) {
	SubmissionDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RecordTransfer records the duration of a payout transfer call.
func RecordTransfer(outcome string, d time.Duration) {
	PayoutTransferDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordTransition counts a revenue share moving into status.
func RecordTransition(status string) {
	RevenueShareTransitions.WithLabelValues(status).Inc()
}

// RecordRequest counts an HTTP request.
func RecordRequest(method, route, status string) {
	HTTPRequests.WithLabelValues(method, route, status).Inc()
}
