// Package handlers exposes the intake, quiz and admin services over HTTP.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tschelli/lead-lander-sub001/common/httputil"
	"github.com/tschelli/lead-lander-sub001/common/logging"
	"github.com/tschelli/lead-lander-sub001/leads/internal/intake"
	"github.com/tschelli/lead-lander-sub001/leads/internal/ratelimit"
)

// HeaderIdempotencyKey may carry the idempotency key instead of the body.
const HeaderIdempotencyKey = "Idempotency-Key"

type Submitter interface {
	Submit(ctx context.Context, req intake.SubmitRequest) (*intake.SubmitResult, error)
}

// Recorder counts accepted submissions per client.
type Recorder interface {
	Record(clientID string, duplicate bool, ip string)
}

type SubmissionHandler struct {
	service      Submitter
	limiter      ratelimit.RateLimiter
	recorder     Recorder
	maxBodyBytes int64
	logger       *slog.Logger
}

func NewSubmissionHandler(service Submitter, limiter ratelimit.RateLimiter, maxBodyBytes int64, logger *slog.Logger) *SubmissionHandler {
	if limiter == nil {
		limiter = ratelimit.NoOpRateLimiter{}
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 64 << 10
	}
	return &SubmissionHandler{service: service, limiter: limiter, maxBodyBytes: maxBodyBytes, logger: logger}
}

// WithRecorder makes Create report accepted submissions to rec.
func (h *SubmissionHandler) WithRecorder(rec Recorder) *SubmissionHandler {
	h.recorder = rec
	return h
}

// Create handles POST /v1/submissions. A new lead answers 201, a repeated
// idempotency key answers 200 with the original submission.
func (h *SubmissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req intake.SubmitRequest
	if err := httputil.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	req.IP = httputil.GetClientIP(r)
	req.UserAgent = r.UserAgent()
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get(HeaderIdempotencyKey)
	}

	allowed, err := h.limiter.Allow(r.Context(), req.ClientID, req.IP)
	if err != nil {
		// Fail open when Redis is unreachable.
		h.logger.WarnContext(r.Context(), "rate limiter unavailable", logging.Error(err))
	} else if !allowed {
		w.Header().Set("Retry-After", "60")
		httputil.WriteCodedError(w, http.StatusTooManyRequests, "rate_limited", "too many submissions, try again later")
		return
	}

	res, err := h.service.Submit(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if h.recorder != nil && res.ClientID != "" {
		h.recorder.Record(res.ClientID, res.Duplicate, req.IP)
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, res)
}
