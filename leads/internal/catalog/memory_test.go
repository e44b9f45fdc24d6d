package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

func strPtr(s string) *string { return &s }

func seeded() *MemoryCatalog {
	return NewMemoryCatalog().
		PutClient(models.Client{ID: "c1", Name: "Agency", Active: true}).
		PutClient(models.Client{ID: "c2", Name: "Dormant", Active: false}).
		PutAccount(models.Account{ID: "a1", ClientID: "c1", Name: "Tech School", CRMConnectionID: strPtr("conn1"), Active: true}).
		PutAccount(models.Account{ID: "a2", ClientID: "c1", Name: "No CRM", Active: true}).
		PutAccount(models.Account{ID: "a3", ClientID: "c2", Name: "Orphan", Active: true}).
		PutProgram(models.Program{ID: "p2", AccountID: "a1", Name: "Welding", DisplayOrder: 1, Active: true}).
		PutProgram(models.Program{ID: "p1", AccountID: "a1", Name: "HVAC", DisplayOrder: 1, Active: true}).
		PutProgram(models.Program{ID: "p0", AccountID: "a1", Name: "Retired", DisplayOrder: 0, Active: false}).
		PutLocation(models.Location{ID: "l1", AccountID: "a1", Name: "Main", Active: true}).
		PutConnection(models.CRMConnection{ID: "conn1", ClientID: "c1", Type: models.CRMWebhook, URL: "http://crm", Active: true}).
		PutQuestion(models.QuizQuestion{ID: "q2", AccountID: "a1", DisplayOrder: 2, Options: []models.QuizAnswerOption{{ID: "o2", DisplayOrder: 2}, {ID: "o1", DisplayOrder: 1}}}).
		PutQuestion(models.QuizQuestion{ID: "q1", AccountID: "a1", DisplayOrder: 1})
}

func TestMemoryCatalog_ResolveAccount(t *testing.T) {
	ctx := context.Background()
	cat := seeded()

	acct, err := cat.ResolveAccount(ctx, "c1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Tech School", acct.Name)

	_, err = cat.ResolveAccount(ctx, "c2", "a1")
	assert.ErrorIs(t, err, models.ErrUnknownEntity, "inactive client")

	_, err = cat.ResolveAccount(ctx, "c1", "a3")
	assert.ErrorIs(t, err, models.ErrUnknownEntity, "account of another client")

	_, err = cat.ResolveAccount(ctx, "c1", "missing")
	assert.ErrorIs(t, err, models.ErrUnknownEntity)
}

func TestMemoryCatalog_ResolveProgramAndLocation(t *testing.T) {
	ctx := context.Background()
	cat := seeded()

	_, err := cat.ResolveProgram(ctx, "a1", "p1")
	assert.NoError(t, err)
	_, err = cat.ResolveProgram(ctx, "a1", "p0")
	assert.ErrorIs(t, err, models.ErrUnknownEntity)
	_, err = cat.ResolveProgram(ctx, "a2", "p1")
	assert.ErrorIs(t, err, models.ErrUnknownEntity)

	_, err = cat.ResolveLocation(ctx, "a1", "l1")
	assert.NoError(t, err)
	_, err = cat.ResolveLocation(ctx, "a2", "l1")
	assert.ErrorIs(t, err, models.ErrUnknownEntity)
}

func TestMemoryCatalog_ResolveConnection(t *testing.T) {
	ctx := context.Background()
	cat := seeded()

	conn, err := cat.ResolveConnection(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.CRMWebhook, conn.Type)

	_, err = cat.ResolveConnection(ctx, "a2")
	assert.ErrorIs(t, err, ErrNoConnection)

	cat.PutConnection(models.CRMConnection{ID: "conn1", ClientID: "c1", Type: models.CRMWebhook, Active: false})
	_, err = cat.ResolveConnection(ctx, "a1")
	assert.ErrorIs(t, err, ErrNoConnection)
}

func TestMemoryCatalog_Ordering(t *testing.T) {
	ctx := context.Background()
	cat := seeded()

	programs, err := cat.ListPrograms(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, programs, 2)
	assert.Equal(t, "p1", programs[0].ID, "equal display order falls back to id")
	assert.Equal(t, "p2", programs[1].ID)

	questions, err := cat.ListQuizQuestions(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "q1", questions[0].ID)
	assert.Equal(t, "o1", questions[1].Options[0].ID)
	assert.Equal(t, "q2", questions[1].Options[0].QuestionID)
}
