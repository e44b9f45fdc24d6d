// Package metrics registers the Prometheus collectors of the lead pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UnresolvedClient labels intake results whose client id was never resolved
// against the catalog. Raw request values must not become label values.
const UnresolvedClient = "unresolved"

var (
	// Intake metrics
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_submissions_total",
			Help: "Submissions received by result (created, duplicate, honeypot, rejected)",
		},
		[]string{"client_id", "result"},
	)

	EnqueueFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leads_enqueue_failures_total",
			Help: "Durable submissions whose delivery job could not be enqueued",
		},
	)

	// Quiz metrics
	QuizSessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leads_quiz_sessions_started_total",
			Help: "Quiz sessions started",
		},
	)

	QuizCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_quiz_completions_total",
			Help: "Completed quiz sessions by status and routing rule",
		},
		[]string{"status", "routed_by"},
	)

	// Delivery metrics
	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_delivery_attempts_total",
			Help: "CRM delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leads_delivery_duration_seconds",
			Help:    "Duration of CRM delivery calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	DeliveriesTerminal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_deliveries_terminal_total",
			Help: "Submissions reaching a terminal status",
		},
		[]string{"status"},
	)

	StoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leads_delivery_store_errors_total",
			Help: "Delivery transitions that could not be persisted and were retried",
		},
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leads_queue_depth",
			Help: "Delivery jobs waiting, including delayed retries",
		},
	)

	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leads_delivery_in_flight",
			Help: "Delivery jobs currently being processed",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leads_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
	)

	// HTTP metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leads_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
