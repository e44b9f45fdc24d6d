package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tschelli/lead-lander-sub001/common/httputil"
	"github.com/tschelli/lead-lander-sub001/leads/internal/admin"
	"github.com/tschelli/lead-lander-sub001/leads/internal/auth"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

const (
	adminBodyLimit   = 4 << 10
	defaultPageLimit = 50
	maxPageLimit     = 500
)

type AdminService interface {
	ListSubmissions(ctx context.Context, p *auth.Principal, req admin.ListRequest) (*admin.SubmissionPage, error)
	GetSubmission(ctx context.Context, p *auth.Principal, id string) (*models.Submission, error)
	ListAttempts(ctx context.Context, p *auth.Principal, id string) ([]*models.DeliveryAttempt, error)
	ListAudit(ctx context.Context, p *auth.Principal, req admin.AuditRequest) ([]*models.AuditLogEntry, error)
	Requeue(ctx context.Context, p *auth.Principal, id, reason string) (*admin.RequeueResult, error)
	Backfill(ctx context.Context, p *auth.Principal, req admin.BackfillRequest) (*admin.BackfillResult, error)
}

// AdminHandler serves /v1/admin. Every route sits behind auth.Middleware.
type AdminHandler struct {
	service         AdminService
	backfillDefault time.Duration
	logger          *slog.Logger
}

func NewAdminHandler(service AdminService, backfillDefault time.Duration, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: service, backfillDefault: backfillDefault, logger: logger}
}

type submissionList struct {
	Submissions []*models.Submission `json:"submissions"`
	Pagination  httputil.Pagination  `json:"pagination"`
}

type requeueRequest struct {
	Reason string `json:"reason"`
}

type backfillRequest struct {
	OlderThan string `json:"olderThan"`
	Limit     int    `json:"limit"`
}

func principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		httputil.WriteCodedError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
	}
	return p, ok
}

// decodeOptional decodes a body that may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) error {
	err := httputil.DecodeJSON(w, r, adminBodyLimit, dst)
	if errors.Is(err, httputil.ErrEmptyBody) {
		return nil
	}
	return err
}

// ListSubmissions handles GET /v1/admin/submissions.
func (h *AdminHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := httputil.ParseTimeParam(q.Get("from"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	to, err := httputil.ParseTimeParam(q.Get("to"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	page := httputil.ParsePagination(r, defaultPageLimit, maxPageLimit)

	res, err := h.service.ListSubmissions(r.Context(), p, admin.ListRequest{
		ClientID:   q.Get("clientId"),
		AccountID:  q.Get("accountId"),
		Status:     models.SubmissionStatus(q.Get("status")),
		ProgramID:  q.Get("programId"),
		LocationID: q.Get("locationId"),
		From:       from,
		To:         to,
		Limit:      page.Limit,
		Offset:     page.Offset(),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	page.Total = res.Total
	httputil.WriteJSON(w, http.StatusOK, submissionList{Submissions: res.Submissions, Pagination: page})
}

// GetSubmission handles GET /v1/admin/submissions/{id}.
func (h *AdminHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	sub, err := h.service.GetSubmission(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

// ListAttempts handles GET /v1/admin/submissions/{id}/attempts.
func (h *AdminHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	attempts, err := h.service.ListAttempts(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

// ListAudit handles GET /v1/admin/audit.
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	entries, err := h.service.ListAudit(r.Context(), p, admin.AuditRequest{
		ClientID:     q.Get("clientId"),
		SubmissionID: q.Get("submissionId"),
		Limit:        httputil.ParseIntParam(q.Get("limit"), models.DefaultAuditLimit),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Requeue handles POST /v1/admin/submissions/{id}/requeue.
func (h *AdminHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req requeueRequest
	if err := decodeOptional(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	res, err := h.service.Requeue(r.Context(), p, r.PathValue("id"), req.Reason)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if res.Enqueued {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, res)
}

// Backfill handles POST /v1/admin/backfill.
func (h *AdminHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req backfillRequest
	if err := decodeOptional(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	olderThan := h.backfillDefault
	if req.OlderThan != "" {
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil {
			verr := &models.ValidationError{}
			verr.Add("olderThan", "must be a duration such as 15m")
			writeServiceError(w, r, h.logger, verr)
			return
		}
		olderThan = d
	}

	res, err := h.service.Backfill(r.Context(), p, admin.BackfillRequest{OlderThan: olderThan, Limit: req.Limit})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
