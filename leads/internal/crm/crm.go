// Package crm delivers submissions to external CRM systems. The set of
// adapters is closed: New switches on the connection type.
package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

// EventLeadCreated is the event that triggers delivery of a new submission.
const EventLeadCreated = string(models.EventSubmissionCreated)

// Result is the classified outcome of one delivery call.
type Result struct {
	Outcome    models.AttemptOutcome
	HTTPStatus *int
	// CRMLeadID is set on success.
	CRMLeadID string
	// Err is a *RetryableError or *PermanentError unless Outcome is success.
	Err error
}

// Adapter delivers submissions over one CRM connection.
type Adapter interface {
	Type() models.CRMConnectionType
	// Accepts reports whether the connection delivers on event.
	Accepts(event string) bool
	Deliver(ctx context.Context, sub *models.Submission) Result
}

// RetryableError is a failure that may succeed on a later attempt.
type RetryableError struct {
	StatusCode int
	Err        error
}

func (e *RetryableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("retryable crm failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("retryable crm failure: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// PermanentError is a failure no retry can fix.
type PermanentError struct {
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("permanent crm failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("permanent crm failure: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Options configures adapters built by New.
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
}

// New builds the adapter for conn.
func New(conn *models.CRMConnection, opts Options) (Adapter, error) {
	switch conn.Type {
	case models.CRMWebhook:
		if conn.URL == "" {
			return nil, fmt.Errorf("webhook connection %s has no url", conn.ID)
		}
		return newWebhook(conn, opts), nil
	case models.CRMGeneric:
		return newGeneric(conn), nil
	default:
		return nil, fmt.Errorf("unsupported crm connection type %q", conn.Type)
	}
}

// ClassifyStatus maps an HTTP status code to an attempt outcome:
// 2xx success, 429 and 5xx retryable, everything else permanent.
func ClassifyStatus(code int) models.AttemptOutcome {
	switch {
	case code >= 200 && code < 300:
		return models.OutcomeSuccess
	case code == http.StatusTooManyRequests, code >= 500 && code < 600:
		return models.OutcomeRetryableFailure
	default:
		return models.OutcomePermanentFailure
	}
}

// ResultFromError turns an integration error into a Result. Errors that are
// not a *PermanentError are treated as retryable.
func ResultFromError(err error) Result {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return Result{Outcome: models.OutcomePermanentFailure, HTTPStatus: statusPtr(perm.StatusCode), Err: perm}
	}
	var retry *RetryableError
	if errors.As(err, &retry) {
		return Result{Outcome: models.OutcomeRetryableFailure, HTTPStatus: statusPtr(retry.StatusCode), Err: retry}
	}
	return Result{Outcome: models.OutcomeRetryableFailure, Err: &RetryableError{Err: err}}
}

func statusPtr(code int) *int {
	if code == 0 {
		return nil
	}
	return &code
}

func acceptsEvent(events []string, event string) bool {
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		if e == event {
			return true
		}
	}
	return false
}
