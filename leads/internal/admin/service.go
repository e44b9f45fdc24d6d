// Package admin serves operator reads and the requeue and backfill operations,
// scoped to the caller's tenant.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tschelli/lead-lander-sub001/common/logging"
	"github.com/tschelli/lead-lander-sub001/leads/internal/auditlog"
	"github.com/tschelli/lead-lander-sub001/leads/internal/auth"
	"github.com/tschelli/lead-lander-sub001/leads/internal/metrics"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
	"github.com/tschelli/lead-lander-sub001/leads/internal/queue"
	"github.com/tschelli/lead-lander-sub001/leads/internal/repository"
)

// ErrAlreadyDelivered is returned when requeueing a delivered submission.
var ErrAlreadyDelivered = errors.New("submission is already delivered")

const (
	defaultBackfillLimit = 500
	maxBackfillLimit     = 5000
)

type Service struct {
	repo   repository.Repository
	queue  queue.Queue
	audit  *auditlog.Builder
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo repository.Repository, q queue.Queue, builder *auditlog.Builder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		queue:  q,
		audit:  builder,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ListRequest filters a submission listing. ClientID is only honoured for
// super admins; other callers are pinned to their own tenant.
type ListRequest struct {
	ClientID   string
	AccountID  string
	Status     models.SubmissionStatus
	ProgramID  string
	LocationID string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

type SubmissionPage struct {
	Submissions []*models.Submission `json:"submissions"`
	Total       int                  `json:"total"`
}

func (s *Service) ListSubmissions(ctx context.Context, p *auth.Principal, req ListRequest) (*SubmissionPage, error) {
	clientID, ok := p.ClientScope(req.ClientID)
	if !ok {
		return nil, fmt.Errorf("%w: client scope required", models.ErrForbidden)
	}
	if req.Status != "" && !req.Status.Valid() {
		verr := &models.ValidationError{}
		verr.Add("status", "unknown status")
		return nil, verr
	}

	accounts := p.AccountScope()
	if req.AccountID != "" {
		if !p.CanRead(clientID, req.AccountID) {
			return nil, fmt.Errorf("%w: account %s", models.ErrForbidden, req.AccountID)
		}
		accounts = []string{req.AccountID}
	}
	if accounts != nil && len(accounts) == 0 {
		return &SubmissionPage{Submissions: []*models.Submission{}}, nil
	}

	subs, total, err := s.repo.ListSubmissions(ctx, models.ListSubmissionsFilter{
		ClientID:   clientID,
		AccountIDs: accounts,
		Status:     req.Status,
		ProgramID:  req.ProgramID,
		LocationID: req.LocationID,
		From:       req.From,
		To:         req.To,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	if subs == nil {
		subs = []*models.Submission{}
	}
	return &SubmissionPage{Submissions: subs, Total: total}, nil
}

// GetSubmission returns a submission the caller may read.
func (s *Service) GetSubmission(ctx context.Context, p *auth.Principal, id string) (*models.Submission, error) {
	sub, err := s.repo.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanRead(sub.ClientID, sub.AccountID) {
		return nil, fmt.Errorf("%w: submission %s", models.ErrForbidden, id)
	}
	return sub, nil
}

// ListAttempts returns the attempt history of a submission, oldest first.
func (s *Service) ListAttempts(ctx context.Context, p *auth.Principal, id string) ([]*models.DeliveryAttempt, error) {
	if _, err := s.GetSubmission(ctx, p, id); err != nil {
		return nil, err
	}
	attempts, err := s.repo.ListAttempts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	if attempts == nil {
		attempts = []*models.DeliveryAttempt{}
	}
	return attempts, nil
}

type AuditRequest struct {
	ClientID     string
	SubmissionID string
	Limit        int
}

// ListAudit returns a tenant's audit stream, newest first. Account-scoped
// roles must name a submission they can read.
func (s *Service) ListAudit(ctx context.Context, p *auth.Principal, req AuditRequest) ([]*models.AuditLogEntry, error) {
	clientID := req.ClientID
	if req.SubmissionID != "" {
		sub, err := s.GetSubmission(ctx, p, req.SubmissionID)
		if err != nil {
			return nil, err
		}
		if clientID != "" && clientID != sub.ClientID {
			return nil, fmt.Errorf("%w: submission %s", models.ErrForbidden, req.SubmissionID)
		}
		clientID = sub.ClientID
	} else {
		if p.AccountScope() != nil {
			return nil, fmt.Errorf("%w: account-scoped roles must filter by submission", models.ErrForbidden)
		}
		scoped, ok := p.ClientScope(clientID)
		if !ok {
			return nil, fmt.Errorf("%w: client scope required", models.ErrForbidden)
		}
		clientID = scoped
	}

	entries, err := s.repo.ListAudit(ctx, models.AuditQuery{ClientID: clientID, SubmissionID: req.SubmissionID, Limit: req.Limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	if entries == nil {
		entries = []*models.AuditLogEntry{}
	}
	return entries, nil
}

type RequeueResult struct {
	SubmissionID string                  `json:"submissionId"`
	Status       models.SubmissionStatus `json:"status"`
	// Requeued is true when this call moved the submission out of failed.
	Requeued bool `json:"requeued"`
	// Enqueued is true when a delivery job was admitted by this call.
	Enqueued bool `json:"enqueued"`
}

// Requeue restarts delivery of a failed submission. Repeating it while the
// submission is pending writes nothing and admits no second job.
func (s *Service) Requeue(ctx context.Context, p *auth.Principal, id, reason string) (*RequeueResult, error) {
	sub, err := s.repo.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanWrite(sub.ClientID, sub.AccountID) {
		return nil, fmt.Errorf("%w: submission %s", models.ErrForbidden, id)
	}
	if sub.Status == models.StatusDelivered {
		return nil, ErrAlreadyDelivered
	}
	if reason == "" {
		reason = "manual requeue"
	}
	log := s.logger.With(logging.ClientID(sub.ClientID), logging.SubmissionID(sub.ID))

	res := &RequeueResult{SubmissionID: sub.ID, Status: sub.Status}
	if sub.Status == models.StatusFailed {
		entry, err := s.audit.Entry(sub.ClientID, &sub.ID, models.EventRequeued, auditlog.Requeued{
			FromStatus: models.StatusFailed,
			Reason:     reason,
			Actor:      p.UserID,
		})
		if err != nil {
			return nil, err
		}
		ok, err := s.repo.Requeue(ctx, sub.ID, entry)
		if err != nil {
			return nil, fmt.Errorf("failed to requeue submission: %w", err)
		}
		res.Requeued = ok
		res.Status = models.StatusReceived
		if !ok {
			current, err := s.repo.GetSubmission(ctx, sub.ID)
			if err != nil {
				return nil, err
			}
			res.Status = current.Status
		}
	}
	if res.Status.IsTerminal() {
		return res, nil
	}

	enqueued, err := s.enqueue(ctx, sub.ID)
	if err != nil {
		metrics.EnqueueFailures.Inc()
		log.Error("failed to enqueue requeued submission", logging.Error(err))
		return res, nil
	}
	res.Enqueued = enqueued
	log.Info("submission requeued", slog.Bool("requeued", res.Requeued), slog.Bool("enqueued", enqueued), slog.String("actor", p.UserID))
	return res, nil
}

func (s *Service) enqueue(ctx context.Context, id string) (bool, error) {
	count, err := s.repo.CountAttempts(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to count attempts: %w", err)
	}
	return s.queue.Enqueue(ctx, queue.Job{SubmissionID: id, AttemptHint: count + 1})
}

type BackfillRequest struct {
	OlderThan time.Duration
	Limit     int
}

type BackfillResult struct {
	Scanned       int      `json:"scanned"`
	Enqueued      int      `json:"enqueued"`
	SubmissionIDs []string `json:"submissionIds"`
}

// Backfill re-enqueues received or delivering submissions older than the
// cutoff that were never delivered. Only jobs admitted by this run get a
// requeued audit entry, so overlapping runs never dispatch twice. Client
// admins only touch their own tenant.
func (s *Service) Backfill(ctx context.Context, p *auth.Principal, req BackfillRequest) (*BackfillResult, error) {
	if !p.IsSuperAdmin() && p.AccountScope() != nil {
		return nil, fmt.Errorf("%w: backfill requires an admin role", models.ErrForbidden)
	}
	if req.OlderThan <= 0 {
		verr := &models.ValidationError{}
		verr.Add("olderThan", "must be a positive duration")
		return nil, verr
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultBackfillLimit
	}
	limit = min(limit, maxBackfillLimit)

	cutoff := s.now().Add(-req.OlderThan)
	stale, err := s.repo.ListStaleUndelivered(ctx, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale submissions: %w", err)
	}

	res := &BackfillResult{SubmissionIDs: []string{}}
	for _, sub := range stale {
		if !p.CanWrite(sub.ClientID, sub.AccountID) {
			continue
		}
		res.Scanned++

		admitted, err := s.enqueue(ctx, sub.ID)
		if err != nil {
			metrics.EnqueueFailures.Inc()
			s.logger.Error("backfill enqueue failed", logging.SubmissionID(sub.ID), logging.Error(err))
			continue
		}
		if !admitted {
			continue
		}
		res.Enqueued++
		res.SubmissionIDs = append(res.SubmissionIDs, sub.ID)

		entry, err := s.audit.Entry(sub.ClientID, &sub.ID, models.EventRequeued, auditlog.Requeued{
			FromStatus: sub.Status,
			Reason:     "backfill",
			Actor:      p.UserID,
		})
		if err == nil {
			err = s.repo.AppendAudit(ctx, entry)
		}
		if err != nil {
			s.logger.Error("failed to audit backfilled submission", logging.SubmissionID(sub.ID), logging.Error(err))
		}
	}

	s.logger.Info("backfill completed",
		slog.Int("scanned", res.Scanned),
		slog.Int("enqueued", res.Enqueued),
		slog.Time("cutoff", cutoff),
		slog.String("actor", p.UserID))
	return res, nil
}
