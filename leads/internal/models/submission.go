package models

import (
	"encoding/json"
	"time"
)

// SubmissionStatus is the delivery lifecycle state of a Submission.
type SubmissionStatus string

const (
	StatusReceived   SubmissionStatus = "received"
	StatusDelivering SubmissionStatus = "delivering"
	StatusDelivered  SubmissionStatus = "delivered"
	StatusFailed     SubmissionStatus = "failed"
)

// IsTerminal reports whether no further delivery attempt is made from s.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusReceived, StatusDelivering, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal single step.
// failed -> received is only legal through an explicit requeue.
func CanTransition(from, to SubmissionStatus) bool {
	switch from {
	case StatusReceived:
		return to == StatusDelivering
	case StatusDelivering:
		return to == StatusDelivering || to == StatusDelivered || to == StatusFailed
	case StatusFailed:
		return to == StatusReceived
	}
	return false
}

// Contact holds the lead's contact details.
type Contact struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Answer is one quiz or form answer as captured on the landing page.
type Answer struct {
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
}

// Consent records the consent text the lead agreed to.
type Consent struct {
	Consented   bool      `json:"consented"`
	TextVersion string    `json:"textVersion"`
	Timestamp   time.Time `json:"timestamp"`
}

// Submission is one captured lead.
type Submission struct {
	ID                string           `json:"id"`
	ClientID          string           `json:"clientId"`
	AccountID         string           `json:"accountId"`
	LocationID        *string          `json:"locationId,omitempty"`
	ProgramID         string           `json:"programId"`
	Contact           Contact          `json:"contact"`
	Answers           []Answer         `json:"answers"`
	Metadata          json.RawMessage  `json:"metadata,omitempty"`
	Status            SubmissionStatus `json:"status"`
	IdempotencyKey    string           `json:"idempotencyKey"`
	CRMLeadID         *string          `json:"crmLeadId,omitempty"`
	LastStepCompleted *int             `json:"lastStepCompleted,omitempty"`
	Consent           Consent          `json:"consent"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
	DeliveredAt       *time.Time       `json:"deliveredAt,omitempty"`

	// AttemptBase counts attempts recorded before the current delivery cycle.
	// A requeue moves it to the total so the retry budget starts over.
	AttemptBase int `json:"-"`
}

// ListSubmissionsFilter narrows admin submission listings. ClientID is always set
// by the caller's tenant scope; AccountIDs further restricts account-scoped roles.
type ListSubmissionsFilter struct {
	ClientID   string
	AccountIDs []string
	Status     SubmissionStatus
	ProgramID  string
	LocationID string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
