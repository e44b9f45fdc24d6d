// Package auditlog builds signed audit entries for the submission lifecycle.
package auditlog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tschelli/lead-lander-sub001/common/audit"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

// Builder creates signed AuditLogEntry values. It does not persist them; the
// repository writes each entry in the same transaction as the change it records.
type Builder struct {
	signer *audit.Signer
	now    func() time.Time
}

func NewBuilder(signer *audit.Signer) *Builder {
	return &Builder{signer: signer, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the timestamp source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Entry builds a signed entry. payload is marshalled to JSON.
func (b *Builder) Entry(clientID string, submissionID *string, event models.AuditEvent, payload any) (*models.AuditLogEntry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit payload: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate audit id: %w", err)
	}

	entry := &models.AuditLogEntry{
		ID:           id.String(),
		ClientID:     clientID,
		SubmissionID: submissionID,
		Event:        event,
		Payload:      data,
		CreatedAt:    b.now(),
	}
	entry.Signature = b.signer.SignEntry(entry.ID, entry.ClientID, string(entry.Event), entry.CreatedAt, entry.Payload)
	return entry, nil
}

// Verify reports whether entry still carries a valid signature.
func (b *Builder) Verify(entry *models.AuditLogEntry) bool {
	return b.signer.VerifyEntry(entry.ID, entry.ClientID, string(entry.Event), entry.CreatedAt, entry.Payload, entry.Signature)
}

// SubmissionCreated is the payload of a submission_created entry.
type SubmissionCreated struct {
	Status         models.SubmissionStatus `json:"status"`
	AccountID      string                  `json:"accountId"`
	ProgramID      string                  `json:"programId"`
	LocationID     *string                 `json:"locationId,omitempty"`
	IdempotencyKey string                  `json:"idempotencyKey"`
}

// AttemptRecorded is the payload of delivery_attempted, delivery_succeeded and delivery_failed entries.
type AttemptRecorded struct {
	AttemptNumber int                     `json:"attemptNumber"`
	Outcome       models.AttemptOutcome   `json:"outcome"`
	HTTPStatus    *int                    `json:"httpStatus,omitempty"`
	Error         *string                 `json:"error,omitempty"`
	FromStatus    models.SubmissionStatus `json:"fromStatus"`
	ToStatus      models.SubmissionStatus `json:"toStatus"`
	CRMLeadID     *string                 `json:"crmLeadId,omitempty"`
	NextAttemptAt *time.Time              `json:"nextAttemptAt,omitempty"`
}

// Requeued is the payload of a requeued entry.
type Requeued struct {
	FromStatus models.SubmissionStatus `json:"fromStatus"`
	Reason     string                  `json:"reason"`
	Actor      string                  `json:"actor,omitempty"`
}

// Skipped is the payload of a delivery_skipped entry.
type Skipped struct {
	ConnectionID string `json:"connectionId"`
	Event        string `json:"event"`
	Reason       string `json:"reason"`
}
