package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

// InMemoryRepository implements Repository with maps guarded by one mutex,
// which makes every method a single atomic unit like a database transaction.
type InMemoryRepository struct {
	mu          sync.RWMutex
	submissions map[string]*models.Submission
	byKey       map[string]string // clientID + "\x00" + key -> submission id
	attempts    map[string][]*models.DeliveryAttempt
	audit       []*models.AuditLogEntry

	auditErr error
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		submissions: make(map[string]*models.Submission),
		byKey:       make(map[string]string),
		attempts:    make(map[string][]*models.DeliveryAttempt),
	}
}

// FailAuditWrites makes every subsequent audit append fail with err (nil restores).
func (r *InMemoryRepository) FailAuditWrites(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auditErr = err
}

func idemKey(clientID, key string) string {
	return clientID + "\x00" + key
}

func cloneSubmission(s *models.Submission) *models.Submission {
	c := *s
	c.Answers = append([]models.Answer(nil), s.Answers...)
	c.Metadata = append(json.RawMessage(nil), s.Metadata...)
	return &c
}

func (r *InMemoryRepository) appendAuditLocked(entry *models.AuditLogEntry) error {
	if r.auditErr != nil {
		return fmt.Errorf("%w: %v", ErrAuditWrite, r.auditErr)
	}
	e := *entry
	r.audit = append(r.audit, &e)
	return nil
}

func (r *InMemoryRepository) CreateSubmission(_ context.Context, sub *models.Submission, entry *models.AuditLogEntry) (*models.Submission, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[idemKey(sub.ClientID, sub.IdempotencyKey)]; ok {
		return cloneSubmission(r.submissions[id]), false, nil
	}
	if entry != nil {
		if err := r.appendAuditLocked(entry); err != nil {
			return nil, false, err
		}
	}

	stored := cloneSubmission(sub)
	r.submissions[sub.ID] = stored
	r.byKey[idemKey(sub.ClientID, sub.IdempotencyKey)] = sub.ID
	return cloneSubmission(stored), true, nil
}

func (r *InMemoryRepository) GetSubmission(_ context.Context, id string) (*models.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.submissions[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	return cloneSubmission(s), nil
}

func (r *InMemoryRepository) GetSubmissionByIdempotencyKey(_ context.Context, clientID, key string) (*models.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[idemKey(clientID, key)]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	return cloneSubmission(r.submissions[id]), nil
}

func matchesFilter(s *models.Submission, f models.ListSubmissionsFilter) bool {
	if s.ClientID != f.ClientID {
		return false
	}
	if len(f.AccountIDs) > 0 {
		found := false
		for _, id := range f.AccountIDs {
			if id == s.AccountID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.ProgramID != "" && s.ProgramID != f.ProgramID {
		return false
	}
	if f.LocationID != "" && (s.LocationID == nil || *s.LocationID != f.LocationID) {
		return false
	}
	if f.From != nil && s.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !s.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

func (r *InMemoryRepository) ListSubmissions(_ context.Context, f models.ListSubmissionsFilter) ([]*models.Submission, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*models.Submission
	for _, s := range r.submissions {
		if matchesFilter(s, f) {
			matched = append(matched, s)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := min(f.Offset, total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}

	out := make([]*models.Submission, 0, end-start)
	for _, s := range matched[start:end] {
		out = append(out, cloneSubmission(s))
	}
	return out, total, nil
}

func (r *InMemoryRepository) ApplyTransition(_ context.Context, t *models.Transition) error {
	if err := validateTransition(t); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.submissions[t.SubmissionID]
	if !ok {
		return ErrSubmissionNotFound
	}
	if s.Status != t.From {
		return fmt.Errorf("%w: stored status is %s, expected %s", ErrStaleTransition, s.Status, t.From)
	}
	if t.Attempt != nil {
		if t.Attempt.AttemptNumber != len(r.attempts[s.ID])+1 {
			return fmt.Errorf("%w: attempt %d already recorded", ErrStaleTransition, t.Attempt.AttemptNumber)
		}
	}
	if t.Audit != nil {
		if err := r.appendAuditLocked(t.Audit); err != nil {
			return err
		}
	}

	if t.Attempt != nil {
		a := *t.Attempt
		r.attempts[s.ID] = append(r.attempts[s.ID], &a)
	}
	s.Status = t.To
	s.UpdatedAt = t.At
	if t.To == models.StatusDelivered {
		lead := *t.CRMLeadID
		at := t.At
		s.CRMLeadID = &lead
		s.DeliveredAt = &at
	}
	return nil
}

func (r *InMemoryRepository) Requeue(_ context.Context, submissionID string, entry *models.AuditLogEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.submissions[submissionID]
	if !ok {
		return false, ErrSubmissionNotFound
	}
	if s.Status != models.StatusFailed {
		return false, nil
	}
	if entry != nil {
		if err := r.appendAuditLocked(entry); err != nil {
			return false, err
		}
	}

	s.Status = models.StatusReceived
	s.AttemptBase = len(r.attempts[s.ID])
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *InMemoryRepository) CountAttempts(_ context.Context, submissionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attempts[submissionID]), nil
}

func (r *InMemoryRepository) ListAttempts(_ context.Context, submissionID string) ([]*models.DeliveryAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.DeliveryAttempt, 0, len(r.attempts[submissionID]))
	for _, a := range r.attempts[submissionID] {
		c := *a
		out = append(out, &c)
	}
	return out, nil
}

func (r *InMemoryRepository) AppendAudit(_ context.Context, entry *models.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendAuditLocked(entry)
}

func (r *InMemoryRepository) ListAudit(_ context.Context, q models.AuditQuery) ([]*models.AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := models.ClampAuditLimit(q.Limit)
	var out []*models.AuditLogEntry
	// Entries are appended in creation order, so walking backwards is newest first.
	for i := len(r.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.audit[i]
		if e.ClientID != q.ClientID {
			continue
		}
		if q.SubmissionID != "" && (e.SubmissionID == nil || *e.SubmissionID != q.SubmissionID) {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (r *InMemoryRepository) ListStaleUndelivered(_ context.Context, cutoff time.Time, limit int) ([]*models.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Submission
	for _, s := range r.submissions {
		if (s.Status == models.StatusReceived || s.Status == models.StatusDelivering) &&
			s.CRMLeadID == nil && s.CreatedAt.Before(cutoff) {
			out = append(out, cloneSubmission(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) Close() {}
