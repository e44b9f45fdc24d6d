package models

import "time"

// AttemptOutcome classifies one delivery attempt.
type AttemptOutcome string

const (
	OutcomeSuccess          AttemptOutcome = "success"
	OutcomeRetryableFailure AttemptOutcome = "retryable_failure"
	OutcomePermanentFailure AttemptOutcome = "permanent_failure"
)

// DeliveryAttempt records one call to the CRM for a submission.
type DeliveryAttempt struct {
	ID            string         `json:"id"`
	SubmissionID  string         `json:"submissionId"`
	AttemptNumber int            `json:"attemptNumber"`
	Outcome       AttemptOutcome `json:"outcome"`
	HTTPStatus    *int           `json:"httpStatus,omitempty"`
	ErrorDetail   *string        `json:"errorDetail,omitempty"`
	StartedAt     time.Time      `json:"startedAt"`
	FinishedAt    time.Time      `json:"finishedAt"`
}

// Transition is one persisted step of the delivery state machine: the attempt,
// the resulting status and the audit entry, written in one unit of work.
type Transition struct {
	SubmissionID string
	// From guards the write: it is applied only if the stored status still equals From.
	From      SubmissionStatus
	To        SubmissionStatus
	Attempt   *DeliveryAttempt
	CRMLeadID *string
	At        time.Time
	Audit     *AuditLogEntry
}
