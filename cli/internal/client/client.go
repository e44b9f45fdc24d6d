// Package client talks to the leads admin and intake HTTP APIs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const idempotencyHeader = "Idempotency-Key"

// APIError is a non-2xx response decoded from the service error body.
type APIError struct {
	Status  int          `json:"-"`
	Code    string       `json:"code"`
	Message string       `json:"error"`
	Details []FieldError `json:"details"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Details) > 0 {
		parts := make([]string, 0, len(e.Details))
		for _, d := range e.Details {
			parts = append(parts, d.Field+": "+d.Message)
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("%d: %s", e.Status, msg)
}

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, apiErr) != nil && len(data) > 0 {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return resp.StatusCode, apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// ListSubmissions returns one page of submissions visible to the token.
func (c *Client) ListSubmissions(ctx context.Context, f SubmissionFilter) (*SubmissionList, error) {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("clientId", f.ClientID)
	set("accountId", f.AccountID)
	set("status", f.Status)
	set("programId", f.ProgramID)
	set("locationId", f.LocationID)
	if !f.From.IsZero() {
		q.Set("from", f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q.Set("to", f.To.UTC().Format(time.RFC3339))
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	path := "/v1/admin/submissions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list SubmissionList
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	var sub Submission
	if _, err := c.do(ctx, http.MethodGet, "/v1/admin/submissions/"+url.PathEscape(id), nil, nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) ListAttempts(ctx context.Context, submissionID string) ([]Attempt, error) {
	var resp struct {
		Attempts []Attempt `json:"attempts"`
	}
	path := "/v1/admin/submissions/" + url.PathEscape(submissionID) + "/attempts"
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Attempts, nil
}

func (c *Client) ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	q := url.Values{}
	if f.ClientID != "" {
		q.Set("clientId", f.ClientID)
	}
	if f.SubmissionID != "" {
		q.Set("submissionId", f.SubmissionID)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "/v1/admin/audit"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Entries []AuditEntry `json:"entries"`
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Requeue asks the API to schedule another delivery cycle for a submission.
func (c *Client) Requeue(ctx context.Context, submissionID, reason string) (*RequeueResult, error) {
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	var res RequeueResult
	path := "/v1/admin/submissions/" + url.PathEscape(submissionID) + "/requeue"
	if _, err := c.do(ctx, http.MethodPost, path, body, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Backfill(ctx context.Context, olderThan time.Duration, limit int) (*BackfillResult, error) {
	body := map[string]any{}
	if olderThan > 0 {
		body["olderThan"] = olderThan.String()
	}
	if limit > 0 {
		body["limit"] = limit
	}
	var res BackfillResult
	if _, err := c.do(ctx, http.MethodPost, "/v1/admin/backfill", body, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Submit posts a lead to the public intake endpoint. Duplicate is set when the
// API answered 200 for an already-known idempotency key.
func (c *Client) Submit(ctx context.Context, lead SubmissionInput) (*SubmitResult, error) {
	headers := map[string]string{}
	if lead.IdempotencyKey != "" {
		headers[idempotencyHeader] = lead.IdempotencyKey
	}
	var res SubmitResult
	status, err := c.do(ctx, http.MethodPost, "/v1/submissions", lead, headers, &res)
	if err != nil {
		return nil, err
	}
	res.Duplicate = status == http.StatusOK
	return &res, nil
}

// GetStats returns the intake volume of one client.
func (c *Client) GetStats(ctx context.Context, clientID string) (*IntakeStats, error) {
	path := "/v1/admin/stats"
	if clientID != "" {
		path += "?clientId=" + url.QueryEscape(clientID)
	}
	var stats IntakeStats
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
