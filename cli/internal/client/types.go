package client

import (
	"encoding/json"
	"time"
)

type Contact struct {
	FirstName string `json:"firstName" yaml:"firstName"`
	LastName  string `json:"lastName" yaml:"lastName"`
	Email     string `json:"email" yaml:"email"`
	Phone     string `json:"phone" yaml:"phone"`
}

type Answer struct {
	QuestionID string `json:"questionId" yaml:"questionId"`
	Value      string `json:"value" yaml:"value"`
}

type Consent struct {
	Consented   bool       `json:"consented" yaml:"consented"`
	TextVersion string     `json:"textVersion" yaml:"textVersion"`
	Timestamp   *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

type Submission struct {
	ID                string          `json:"id" yaml:"id"`
	ClientID          string          `json:"clientId" yaml:"clientId"`
	AccountID         string          `json:"accountId" yaml:"accountId"`
	LocationID        *string         `json:"locationId,omitempty" yaml:"locationId,omitempty"`
	ProgramID         string          `json:"programId" yaml:"programId"`
	Contact           Contact         `json:"contact" yaml:"contact"`
	Answers           []Answer        `json:"answers" yaml:"answers"`
	Metadata          json.RawMessage `json:"metadata,omitempty" yaml:"-"`
	Status            string          `json:"status" yaml:"status"`
	IdempotencyKey    string          `json:"idempotencyKey" yaml:"idempotencyKey"`
	CRMLeadID         *string         `json:"crmLeadId,omitempty" yaml:"crmLeadId,omitempty"`
	LastStepCompleted *int            `json:"lastStepCompleted,omitempty" yaml:"lastStepCompleted,omitempty"`
	Consent           Consent         `json:"consent" yaml:"consent"`
	CreatedAt         time.Time       `json:"createdAt" yaml:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt" yaml:"updatedAt"`
}

type Pagination struct {
	Page  int `json:"page" yaml:"page"`
	Limit int `json:"limit" yaml:"limit"`
	Total int `json:"total" yaml:"total"`
}

type SubmissionList struct {
	Submissions []Submission `json:"submissions" yaml:"submissions"`
	Pagination  Pagination   `json:"pagination" yaml:"pagination"`
}

// SubmissionFilter narrows ListSubmissions. Zero values are omitted.
type SubmissionFilter struct {
	ClientID   string
	AccountID  string
	Status     string
	ProgramID  string
	LocationID string
	From       time.Time
	To         time.Time
	Page       int
	Limit      int
}

type Attempt struct {
	ID            string    `json:"id" yaml:"id"`
	SubmissionID  string    `json:"submissionId" yaml:"submissionId"`
	AttemptNumber int       `json:"attemptNumber" yaml:"attemptNumber"`
	Outcome       string    `json:"outcome" yaml:"outcome"`
	HTTPStatus    *int      `json:"httpStatus,omitempty" yaml:"httpStatus,omitempty"`
	ErrorDetail   *string   `json:"errorDetail,omitempty" yaml:"errorDetail,omitempty"`
	StartedAt     time.Time `json:"startedAt" yaml:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt" yaml:"finishedAt"`
}

type AuditEntry struct {
	ID           string          `json:"id" yaml:"id"`
	ClientID     string          `json:"clientId" yaml:"clientId"`
	SubmissionID *string         `json:"submissionId,omitempty" yaml:"submissionId,omitempty"`
	Event        string          `json:"event" yaml:"event"`
	Payload      json.RawMessage `json:"payload" yaml:"-"`
	Signature    string          `json:"signature" yaml:"signature"`
	CreatedAt    time.Time       `json:"createdAt" yaml:"createdAt"`
}

type AuditFilter struct {
	ClientID     string
	SubmissionID string
	Limit        int
}

type RequeueResult struct {
	SubmissionID string `json:"submissionId" yaml:"submissionId"`
	Status       string `json:"status" yaml:"status"`
	Requeued     bool   `json:"requeued" yaml:"requeued"`
	Enqueued     bool   `json:"enqueued" yaml:"enqueued"`
}

type BackfillResult struct {
	Scanned       int      `json:"scanned" yaml:"scanned"`
	Enqueued      int      `json:"enqueued" yaml:"enqueued"`
	SubmissionIDs []string `json:"submissionIds" yaml:"submissionIds"`
}

// SubmissionInput is the public intake payload.
type SubmissionInput struct {
	ClientID       string         `json:"clientId"`
	AccountID      string         `json:"accountId"`
	LocationID     string         `json:"locationId,omitempty"`
	ProgramID      string         `json:"programId,omitempty"`
	Contact        Contact        `json:"contact"`
	Answers        []Answer       `json:"answers,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Consent        Consent        `json:"consent"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
}

type SubmitResult struct {
	SubmissionID string `json:"submissionId" yaml:"submissionId"`
	Status       string `json:"status" yaml:"status"`
	Duplicate    bool   `json:"-" yaml:"duplicate"`
}

type IntakeStats struct {
	ClientID            string            `json:"clientId" yaml:"clientId"`
	LastSubmissionAt    *time.Time        `json:"lastSubmissionAt,omitempty" yaml:"lastSubmissionAt,omitempty"`
	LastIP              string            `json:"lastIp,omitempty" yaml:"lastIp,omitempty"`
	TotalSubmissions    int64             `json:"totalSubmissions" yaml:"totalSubmissions"`
	Duplicates          int64             `json:"duplicates" yaml:"duplicates"`
	SubmissionsLastHour int64             `json:"submissionsLastHour" yaml:"submissionsLastHour"`
	SubmissionsLast24h  int64             `json:"submissionsLast24h" yaml:"submissionsLast24h"`
	UniqueIPsToday      int64             `json:"uniqueIpsToday" yaml:"uniqueIpsToday"`
	Instances           map[string]string `json:"instances,omitempty" yaml:"instances,omitempty"`
}
