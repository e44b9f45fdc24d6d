package quiz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschelli/lead-lander-sub001/leads/internal/catalog"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

func quizCatalog() *catalog.MemoryCatalog {
	cat := catalog.NewMemoryCatalog().
		PutClient(models.Client{ID: "c1", Active: true}).
		PutAccount(models.Account{ID: "acct", ClientID: "c1", Active: true})
	for _, p := range programs() {
		cat.PutProgram(p)
	}
	for _, q := range scoringQuiz() {
		q.AccountID = "acct"
		cat.PutQuestion(q)
	}
	return cat
}

func TestService_FullSession(t *testing.T) {
	svc := NewService(quizCatalog(), NewMemorySessionStore(), time.Hour)
	ctx := context.Background()

	view, err := svc.StartSession(ctx, "c1", "acct")
	require.NoError(t, err)
	require.NotNil(t, view.Question)
	assert.Equal(t, "qA", view.Question.ID)
	assert.Nil(t, view.Result)
	id := view.Session.ID
	assert.NotEmpty(t, id)

	view, err = svc.Answer(ctx, id, "qA", Answer{OptionID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "qB", view.Question.ID)

	view, err = svc.Answer(ctx, id, "qB", Answer{OptionID: "b1"})
	require.NoError(t, err)
	assert.Nil(t, view.Question)
	require.NotNil(t, view.Result)
	assert.Equal(t, models.QuizCompletedRecommended, view.Result.Status)
	assert.Equal(t, "progX", *view.Result.ProgramID)
	assert.Equal(t, map[string]int{"progX": 8, "progY": 4}, view.Result.Scores)

	got, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.QuizCompletedRecommended, got.Session.Status)

	require.NoError(t, svc.Convert(ctx, id))
	_, err = svc.GetSession(ctx, id)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_Errors(t *testing.T) {
	svc := NewService(quizCatalog(), NewMemorySessionStore(), time.Hour)
	ctx := context.Background()

	_, err := svc.StartSession(ctx, "c1", "missing")
	assert.ErrorIs(t, err, models.ErrUnknownEntity)
	_, err = svc.StartSession(ctx, "other-client", "acct")
	assert.ErrorIs(t, err, models.ErrUnknownEntity)

	_, err = svc.Answer(ctx, "no-such-session", "qA", Answer{OptionID: "a1"})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	view, err := svc.StartSession(ctx, "c1", "acct")
	require.NoError(t, err)
	_, err = svc.Answer(ctx, view.Session.ID, "qA", Answer{OptionID: "bogus"})
	assert.ErrorIs(t, err, models.ErrInvalidAnswer)

	got, err := svc.GetSession(ctx, view.Session.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Session.AnsweredQuestionIDs, "rejected answer is not saved")
}
