package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopgrab_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopgrab_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ExtractionsTotal is labeled by mode (account or trial) and outcome.
	ExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopgrab_extractions_total",
			Help: "Total number of product extractions.",
		},
		[]string{"mode", "outcome"},
	)

	ExtractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shopgrab_extraction_duration_seconds",
			Help:    "Time spent fetching and normalizing one product.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
	)

	QuotaRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopgrab_quota_rejections_total",
			Help: "Extraction requests rejected by the quota policy.",
		},
		[]string{"plan"},
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopgrab_webhook_events_total",
			Help: "Stripe webhook events received.",
		},
		[]string{"type", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ExtractionsTotal,
		ExtractionDuration,
		QuotaRejectionsTotal,
		WebhookEventsTotal,
	)
}
