package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tschelli/lead-lander-sub001/common/audit"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderSignature      = "X-Lead-Signature"
	HeaderLeadID         = "X-CRM-Lead-Id"

	maxResponseBytes = 64 << 10
)

// Envelope is the JSON body POSTed to webhook connections.
type Envelope struct {
	Event             string          `json:"event"`
	SubmissionID      string          `json:"submissionId"`
	ClientID          string          `json:"clientId"`
	AccountID         string          `json:"accountId"`
	ProgramID         string          `json:"programId"`
	LocationID        *string         `json:"locationId,omitempty"`
	Contact           models.Contact  `json:"contact"`
	Answers           []models.Answer `json:"answers"`
	Consent           models.Consent  `json:"consent"`
	LastStepCompleted *int            `json:"lastStepCompleted,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

func NewEnvelope(event string, sub *models.Submission) Envelope {
	answers := sub.Answers
	if answers == nil {
		answers = []models.Answer{}
	}
	return Envelope{
		Event:             event,
		SubmissionID:      sub.ID,
		ClientID:          sub.ClientID,
		AccountID:         sub.AccountID,
		ProgramID:         sub.ProgramID,
		LocationID:        sub.LocationID,
		Contact:           sub.Contact,
		Answers:           answers,
		Consent:           sub.Consent,
		LastStepCompleted: sub.LastStepCompleted,
		Metadata:          sub.Metadata,
		CreatedAt:         sub.CreatedAt,
	}
}

// WebhookAdapter POSTs the submission envelope to a CRM endpoint.
type WebhookAdapter struct {
	conn      models.CRMConnection
	client    *http.Client
	userAgent string
}

func newWebhook(conn *models.CRMConnection, opts Options) *WebhookAdapter {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "lead-dispatcher/1.0"
	}
	return &WebhookAdapter{conn: *conn, client: client, userAgent: ua}
}

func (w *WebhookAdapter) Type() models.CRMConnectionType {
	return models.CRMWebhook
}

func (w *WebhookAdapter) Accepts(event string) bool {
	return acceptsEvent(w.conn.Events, event)
}

func (w *WebhookAdapter) Deliver(ctx context.Context, sub *models.Submission) Result {
	body, err := json.Marshal(NewEnvelope(EventLeadCreated, sub))
	if err != nil {
		return Result{Outcome: models.OutcomePermanentFailure, Err: &PermanentError{Err: fmt.Errorf("marshal webhook payload: %w", err)}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.conn.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: models.OutcomePermanentFailure, Err: &PermanentError{Err: fmt.Errorf("create webhook request: %w", err)}}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set(HeaderIdempotencyKey, sub.ID)
	if w.conn.Secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+audit.SignBody(w.conn.Secret, body))
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	for k, v := range w.conn.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return Result{Outcome: models.OutcomeRetryableFailure, Err: &RetryableError{Err: fmt.Errorf("send webhook: %w", err)}}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	status := resp.StatusCode
	switch ClassifyStatus(status) {
	case models.OutcomeSuccess:
		return Result{Outcome: models.OutcomeSuccess, HTTPStatus: &status, CRMLeadID: leadID(respBody, resp.Header, sub.ID)}
	case models.OutcomeRetryableFailure:
		return Result{Outcome: models.OutcomeRetryableFailure, HTTPStatus: &status,
			Err: &RetryableError{StatusCode: status, Err: responseError(respBody)}}
	default:
		return Result{Outcome: models.OutcomePermanentFailure, HTTPStatus: &status,
			Err: &PermanentError{StatusCode: status, Err: responseError(respBody)}}
	}
}

// leadID reads the CRM's id for the lead from the response body, then the
// X-CRM-Lead-Id header. CRMs that return neither get the submission id.
func leadID(body []byte, header http.Header, fallback string) string {
	var parsed map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if len(body) > 0 && dec.Decode(&parsed) == nil {
		for _, key := range []string{"crmLeadId", "leadId", "id"} {
			switch v := parsed[key].(type) {
			case string:
				if v != "" {
					return v
				}
			case json.Number:
				return v.String()
			}
		}
	}
	if id := strings.TrimSpace(header.Get(HeaderLeadID)); id != "" {
		return id
	}
	return fallback
}

func responseError(body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg == "" {
		return errors.New("empty response body")
	}
	return errors.New(msg)
}
