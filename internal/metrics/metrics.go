package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratealerts_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratealerts_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// AlertsCreated counts newly persisted alerts; replays are not counted.
	AlertsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratealerts_alerts_created_total",
			Help: "Number of rate alerts created",
		},
		[]string{"loan_type"},
	)

	// AlertEvaluations counts monitor outcomes per alert: triggered, checked, skipped, failed.
	AlertEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratealerts_monitor_evaluations_total",
			Help: "Rate monitor evaluations by outcome",
		},
		[]string{"outcome"},
	)

	NotificationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ratealerts_notification_failures_total",
			Help: "Trigger notifications that could not be delivered",
		},
	)

	PassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ratealerts_monitor_pass_duration_seconds",
			Help:    "Duration of full monitor passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratealerts_rate_limited_total",
			Help: "Requests rejected by the per-IP limiter",
		},
		[]string{"policy"},
	)
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call repeatedly.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequests,
			RequestDuration,
			AlertsCreated,
			AlertEvaluations,
			NotificationFailures,
			PassDuration,
			RateLimited,
		)
	})
}
