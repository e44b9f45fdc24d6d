package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

func newID() string {
	id, _ := uuid.NewV7()
	return id.String()
}

func newSubmission(clientID, key string, createdAt time.Time) *models.Submission {
	return &models.Submission{
		ID:             newID(),
		ClientID:       clientID,
		AccountID:      "acct-1",
		ProgramID:      "prog-1",
		Contact:        models.Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "5555550100"},
		Answers:        []models.Answer{{QuestionID: "q1", Value: "o1"}},
		Metadata:       json.RawMessage(`{"utm_source":"search"}`),
		Status:         models.StatusReceived,
		IdempotencyKey: key,
		Consent:        models.Consent{Consented: true, TextVersion: "v1", Timestamp: createdAt},
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func newAudit(clientID string, subID *string, event models.AuditEvent) *models.AuditLogEntry {
	return &models.AuditLogEntry{
		ID:           newID(),
		ClientID:     clientID,
		SubmissionID: subID,
		Event:        event,
		Payload:      json.RawMessage(`{}`),
		Signature:    "sig",
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

func attempt(subID string, n int, outcome models.AttemptOutcome) *models.DeliveryAttempt {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.DeliveryAttempt{
		ID:            newID(),
		SubmissionID:  subID,
		AttemptNumber: n,
		Outcome:       outcome,
		StartedAt:     now,
		FinishedAt:    now,
	}
}

func strPtr(s string) *string { return &s }

// runContract exercises behaviour every Repository implementation must share.
func runContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("create is idempotent per client", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Microsecond)
		client := "client-" + newID()

		first := newSubmission(client, "key-1", now)
		stored, created, err := repo.CreateSubmission(ctx, first, newAudit(client, &first.ID, models.EventSubmissionCreated))
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, first.ID, stored.ID)

		dup := newSubmission(client, "key-1", now)
		stored, created, err = repo.CreateSubmission(ctx, dup, newAudit(client, &dup.ID, models.EventSubmissionCreated))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, stored.ID)

		other := newSubmission("other-"+client, "key-1", now)
		_, created, err = repo.CreateSubmission(ctx, other, nil)
		require.NoError(t, err)
		assert.True(t, created, "same key under another client is a new submission")

		entries, err := repo.ListAudit(ctx, models.AuditQuery{ClientID: client})
		require.NoError(t, err)
		assert.Len(t, entries, 1, "duplicate must not write an audit entry")
	})

	t.Run("concurrent creates with one key store one row", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		client := "client-" + newID()
		now := time.Now().UTC().Truncate(time.Microsecond)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			ids     = map[string]bool{}
			created int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sub := newSubmission(client, "same-key", now)
				stored, ok, err := repo.CreateSubmission(ctx, sub, newAudit(client, &sub.ID, models.EventSubmissionCreated))
				require.NoError(t, err)
				mu.Lock()
				defer mu.Unlock()
				ids[stored.ID] = true
				if ok {
					created++
				}
			}()
		}
		wg.Wait()

		assert.Len(t, ids, 1)
		assert.Equal(t, 1, created)
		_, total, err := repo.ListSubmissions(ctx, models.ListSubmissionsFilter{ClientID: client})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("transitions are guarded and atomic", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		client := "client-" + newID()
		sub := newSubmission(client, "k", time.Now().UTC().Truncate(time.Microsecond))
		_, _, err := repo.CreateSubmission(ctx, sub, nil)
		require.NoError(t, err)

		at := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, repo.ApplyTransition(ctx, &models.Transition{
			SubmissionID: sub.ID,
			From:         models.StatusReceived,
			To:           models.StatusDelivering,
			Attempt:      attempt(sub.ID, 1, models.OutcomeRetryableFailure),
			At:           at,
			Audit:        newAudit(client, &sub.ID, models.EventDeliveryAttempted),
		}))

		err = repo.ApplyTransition(ctx, &models.Transition{
			SubmissionID: sub.ID,
			From:         models.StatusReceived,
			To:           models.StatusDelivering,
			Attempt:      attempt(sub.ID, 2, models.OutcomeRetryableFailure),
			At:           at,
		})
		assert.ErrorIs(t, err, ErrStaleTransition, "stored status moved on")

		err = repo.ApplyTransition(ctx, &models.Transition{
			SubmissionID: sub.ID,
			From:         models.StatusDelivering,
			To:           models.StatusDelivering,
			Attempt:      attempt(sub.ID, 1, models.OutcomeRetryableFailure),
			At:           at,
		})
		assert.ErrorIs(t, err, ErrStaleTransition, "attempt number already used")

		err = repo.ApplyTransition(ctx, &models.Transition{
			SubmissionID: sub.ID,
			From:         models.StatusDelivering,
			To:           models.StatusDelivered,
			Attempt:      attempt(sub.ID, 2, models.OutcomeSuccess),
			At:           at,
		})
		assert.ErrorIs(t, err, ErrInvalidTransition, "delivered without a lead id")

		require.NoError(t, repo.ApplyTransition(ctx, &models.Transition{
			SubmissionID: sub.ID,
			From:         models.StatusDelivering,
			To:           models.StatusDelivered,
			Attempt:      attempt(sub.ID, 2, models.OutcomeSuccess),
			CRMLeadID:    strPtr("lead-9"),
			At:           at,
			Audit:        newAudit(client, &sub.ID, models.EventDeliverySucceeded),
		}))

		got, err := repo.GetSubmission(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDelivered, got.Status)
		require.NotNil(t, got.CRMLeadID)
		assert.Equal(t, "lead-9", *got.CRMLeadID)
		assert.NotNil(t, got.DeliveredAt)

		attempts, err := repo.ListAttempts(ctx, sub.ID)
		require.NoError(t, err)
		require.Len(t, attempts, 2)
		assert.Equal(t, 1, attempts[0].AttemptNumber)
		assert.Equal(t, 2, attempts[1].AttemptNumber)

		entries, err := repo.ListAudit(ctx, models.AuditQuery{ClientID: client, SubmissionID: sub.ID})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, models.EventDeliverySucceeded, entries[0].Event, "newest first")
	})

	t.Run("requeue only from failed and restarts the budget", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		client := "client-" + newID()
		sub := newSubmission(client, "k", time.Now().UTC().Truncate(time.Microsecond))
		_, _, err := repo.CreateSubmission(ctx, sub, nil)
		require.NoError(t, err)

		ok, err := repo.Requeue(ctx, sub.ID, newAudit(client, &sub.ID, models.EventRequeued))
		require.NoError(t, err)
		assert.False(t, ok, "received submissions are not requeued")

		require.NoError(t, repo.ApplyTransition(ctx, &models.Transition{
			SubmissionID: sub.ID,
			From:         models.StatusReceived,
			To:           models.StatusFailed,
			Attempt:      attempt(sub.ID, 1, models.OutcomePermanentFailure),
			At:           time.Now().UTC(),
		}))

		ok, err = repo.Requeue(ctx, sub.ID, newAudit(client, &sub.ID, models.EventRequeued))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Requeue(ctx, sub.ID, newAudit(client, &sub.ID, models.EventRequeued))
		require.NoError(t, err)
		assert.False(t, ok, "second requeue is a no-op")

		got, err := repo.GetSubmission(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusReceived, got.Status)
		assert.Equal(t, 1, got.AttemptBase)

		entries, err := repo.ListAudit(ctx, models.AuditQuery{ClientID: client})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("list filters and paginates", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		client := "client-" + newID()
		base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)

		for i := 0; i < 5; i++ {
			s := newSubmission(client, fmt.Sprintf("k%d", i), base.Add(time.Duration(i)*time.Minute))
			if i%2 == 0 {
				s.ProgramID = "prog-even"
			}
			if i == 4 {
				s.AccountID = "acct-2"
				s.LocationID = strPtr("loc-1")
			}
			_, _, err := repo.CreateSubmission(ctx, s, nil)
			require.NoError(t, err)
		}

		page, total, err := repo.ListSubmissions(ctx, models.ListSubmissionsFilter{ClientID: client, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page, 2)
		assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))

		_, total, err = repo.ListSubmissions(ctx, models.ListSubmissionsFilter{ClientID: client, ProgramID: "prog-even"})
		require.NoError(t, err)
		assert.Equal(t, 3, total)

		_, total, err = repo.ListSubmissions(ctx, models.ListSubmissionsFilter{ClientID: client, AccountIDs: []string{"acct-2"}})
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		_, total, err = repo.ListSubmissions(ctx, models.ListSubmissionsFilter{ClientID: client, LocationID: "loc-1"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		from := base.Add(2 * time.Minute)
		_, total, err = repo.ListSubmissions(ctx, models.ListSubmissionsFilter{ClientID: client, From: &from})
		require.NoError(t, err)
		assert.Equal(t, 3, total)

		stale, err := repo.ListStaleUndelivered(ctx, base.Add(90*time.Second), 0)
		require.NoError(t, err)
		var mine int
		for _, s := range stale {
			if s.ClientID == client {
				mine++
			}
		}
		assert.Equal(t, 2, mine)
	})

	t.Run("missing submission", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetSubmission(context.Background(), newID())
		assert.ErrorIs(t, err, ErrSubmissionNotFound)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}
