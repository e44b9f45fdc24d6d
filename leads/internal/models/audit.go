package models

import (
	"encoding/json"
	"time"
)

// AuditEvent names what an audit entry records.
type AuditEvent string

const (
	EventSubmissionCreated AuditEvent = "submission_created"
	EventDeliveryAttempted AuditEvent = "delivery_attempted"
	EventDeliverySucceeded AuditEvent = "delivery_succeeded"
	EventDeliveryFailed    AuditEvent = "delivery_failed"
	EventRequeued          AuditEvent = "requeued"
	EventDeliverySkipped   AuditEvent = "delivery_skipped"
)

// AuditLogEntry is an append-only record of a state-changing event.
type AuditLogEntry struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"clientId"`
	SubmissionID *string         `json:"submissionId,omitempty"`
	Event        AuditEvent      `json:"event"`
	Payload      json.RawMessage `json:"payload"`
	Signature    string          `json:"signature"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// AuditQuery selects audit entries newest first.
type AuditQuery struct {
	ClientID     string
	SubmissionID string
	Limit        int
}

const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 500
)

// ClampAuditLimit bounds a requested page size.
func ClampAuditLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultAuditLimit
	case n > MaxAuditLimit:
		return MaxAuditLimit
	}
	return n
}
