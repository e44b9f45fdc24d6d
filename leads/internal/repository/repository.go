// Package repository persists submissions, delivery attempts and the audit log.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

var (
	ErrSubmissionNotFound = fmt.Errorf("submission %w", models.ErrNotFound)

	// ErrStaleTransition means the stored status no longer matches the
	// transition's expected From status, or the attempt number is taken.
	ErrStaleTransition = errors.New("stale submission transition")

	// ErrInvalidTransition means the requested status change is not part of the state machine.
	ErrInvalidTransition = errors.New("invalid submission transition")

	// ErrAuditWrite means the audit entry could not be appended; the paired
	// mutation was rolled back.
	ErrAuditWrite = errors.New("audit write failed")
)

// Repository is the durable store of the pipeline.
type Repository interface {
	// CreateSubmission stores sub with status received together with its
	// submission_created audit entry. If (clientId, idempotencyKey) already
	// exists the stored submission is returned with created=false and nothing is written.
	CreateSubmission(ctx context.Context, sub *models.Submission, entry *models.AuditLogEntry) (stored *models.Submission, created bool, err error)
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	GetSubmissionByIdempotencyKey(ctx context.Context, clientID, key string) (*models.Submission, error)
	ListSubmissions(ctx context.Context, filter models.ListSubmissionsFilter) ([]*models.Submission, int, error)

	// ApplyTransition writes the attempt, the status change and the audit entry
	// atomically, guarded on the stored status equalling t.From.
	ApplyTransition(ctx context.Context, t *models.Transition) error

	// Requeue moves a failed submission back to received and restarts its retry
	// budget. It returns false without writing if the submission is not failed.
	Requeue(ctx context.Context, submissionID string, entry *models.AuditLogEntry) (bool, error)

	CountAttempts(ctx context.Context, submissionID string) (int, error)
	ListAttempts(ctx context.Context, submissionID string) ([]*models.DeliveryAttempt, error)

	AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error
	ListAudit(ctx context.Context, q models.AuditQuery) ([]*models.AuditLogEntry, error)

	// ListStaleUndelivered returns received or delivering submissions created
	// before cutoff that have no CRM lead id, oldest first.
	ListStaleUndelivered(ctx context.Context, cutoff time.Time, limit int) ([]*models.Submission, error)

	Close()
}

// transitionAllowed accepts single steps of the state machine plus the
// composite received -> delivering -> {delivered, failed} taken on a first
// attempt that terminates.
func transitionAllowed(from, to models.SubmissionStatus) bool {
	if from == models.StatusFailed {
		return false
	}
	if models.CanTransition(from, to) {
		return true
	}
	return from == models.StatusReceived && models.CanTransition(models.StatusDelivering, to)
}

func validateTransition(t *models.Transition) error {
	if !transitionAllowed(t.From, t.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.From, t.To)
	}
	if (t.To == models.StatusDelivered) != (t.CRMLeadID != nil) {
		return fmt.Errorf("%w: crm lead id must be set exactly when delivered", ErrInvalidTransition)
	}
	return nil
}
