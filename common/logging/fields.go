package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across services.
const (
	FieldService      = "service"
	FieldRequestID    = "request_id"
	FieldClientID     = "client_id"
	FieldAccountID    = "account_id"
	FieldSubmissionID = "submission_id"
	FieldSessionID    = "quiz_session_id"
	FieldJobKey       = "job_key"
	FieldAttempt      = "attempt"
	FieldOutcome      = "outcome"
	FieldIP           = "ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatus       = "status"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
)

func Service(name string) slog.Attr { return slog.String(FieldService, name) }

func ClientID(id string) slog.Attr { return slog.String(FieldClientID, id) }

func AccountID(id string) slog.Attr { return slog.String(FieldAccountID, id) }

func SubmissionID(id string) slog.Attr { return slog.String(FieldSubmissionID, id) }

func SessionID(id string) slog.Attr { return slog.String(FieldSessionID, id) }

func JobKey(key string) slog.Attr { return slog.String(FieldJobKey, key) }

func Attempt(n int) slog.Attr { return slog.Int(FieldAttempt, n) }

func Outcome(o string) slog.Attr { return slog.String(FieldOutcome, o) }

func IP(ip string) slog.Attr { return slog.String(FieldIP, ip) }

func Method(method string) slog.Attr { return slog.String(FieldMethod, method) }

func Path(path string) slog.Attr { return slog.String(FieldPath, path) }

func Status(code int) slog.Attr { return slog.Int(FieldStatus, code) }

// Duration records d in milliseconds.
func Duration(d time.Duration) slog.Attr { return slog.Int64(FieldDuration, d.Milliseconds()) }

// Error returns a slog attribute for an error. A nil error logs as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
