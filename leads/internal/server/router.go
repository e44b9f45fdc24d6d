// Package server assembles the HTTP routers of the intake API and the dispatcher.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tschelli/lead-lander-sub001/common/middleware"
	"github.com/tschelli/lead-lander-sub001/leads/internal/auth"
	"github.com/tschelli/lead-lander-sub001/leads/internal/handlers"
	"github.com/tschelli/lead-lander-sub001/leads/internal/metrics"
)

// Handlers are the pieces NewRouter mounts. Quiz and Stats may be nil.
type Handlers struct {
	Submissions *handlers.SubmissionHandler
	Quiz        *handlers.QuizHandler
	Admin       *handlers.AdminHandler
	Stats       *handlers.StatsHandler
	Health      *handlers.HealthHandler
	Auth        *auth.Middleware
	CORSOrigins []string
}

// NewRouter constructs the intake API: public landing page routes, the
// authenticated admin routes and the ops endpoints.
func NewRouter(h Handlers) http.Handler {
	mux := http.NewServeMux()

	handle(mux, "POST /v1/submissions", http.HandlerFunc(h.Submissions.Create))

	if h.Quiz != nil {
		handle(mux, "POST /v1/quiz/sessions", http.HandlerFunc(h.Quiz.Start))
		handle(mux, "GET /v1/quiz/sessions/{id}", http.HandlerFunc(h.Quiz.Get))
		handle(mux, "POST /v1/quiz/sessions/{id}/answers", http.HandlerFunc(h.Quiz.Answer))
	}

	protect := h.Auth.RequireAuth
	handle(mux, "GET /v1/admin/submissions", protect(http.HandlerFunc(h.Admin.ListSubmissions)))
	handle(mux, "GET /v1/admin/submissions/{id}", protect(http.HandlerFunc(h.Admin.GetSubmission)))
	handle(mux, "GET /v1/admin/submissions/{id}/attempts", protect(http.HandlerFunc(h.Admin.ListAttempts)))
	handle(mux, "POST /v1/admin/submissions/{id}/requeue", protect(http.HandlerFunc(h.Admin.Requeue)))
	handle(mux, "GET /v1/admin/audit", protect(http.HandlerFunc(h.Admin.ListAudit)))
	handle(mux, "POST /v1/admin/backfill", protect(http.HandlerFunc(h.Admin.Backfill)))
	if h.Stats != nil {
		handle(mux, "GET /v1/admin/stats", protect(http.HandlerFunc(h.Stats.Get)))
	}

	mountOps(mux, h.Health)

	cors := middleware.CORS(middleware.LandingPageCORS(h.CORSOrigins))
	return middleware.RequestID(cors(mux))
}

// NewOpsRouter serves only /healthz and /metrics, for the dispatcher.
func NewOpsRouter(health *handlers.HealthHandler) http.Handler {
	mux := http.NewServeMux()
	mountOps(mux, health)
	return middleware.RequestID(mux)
}

func mountOps(mux *http.ServeMux, health *handlers.HealthHandler) {
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func handle(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, instrument(pattern, h))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// instrument records request count and latency under the route pattern.
func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
