package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SubmissionStatus
		want     bool
	}{
		{StatusReceived, StatusDelivering, true},
		{StatusReceived, StatusDelivered, false},
		{StatusReceived, StatusFailed, false},
		{StatusDelivering, StatusDelivering, true},
		{StatusDelivering, StatusDelivered, true},
		{StatusDelivering, StatusFailed, true},
		{StatusDelivering, StatusReceived, false},
		{StatusDelivered, StatusReceived, false},
		{StatusDelivered, StatusDelivering, false},
		{StatusFailed, StatusReceived, true},
		{StatusFailed, StatusDelivering, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusReceived.IsTerminal())
	assert.False(t, StatusDelivering.IsTerminal())

	assert.True(t, StatusReceived.Valid())
	assert.False(t, SubmissionStatus("queued").Valid())
}

func TestQuizSession_Clone(t *testing.T) {
	q := "q1"
	s := &QuizSession{
		ID:                  "s1",
		CurrentQuestionID:   &q,
		AnsweredQuestionIDs: []string{"q0"},
		Answers:             map[string]QuizAnswer{"q0": {OptionID: "o1"}},
		ScoreByProgram:      map[string]int{"p1": 3},
	}

	c := s.Clone()
	c.AnsweredQuestionIDs = append(c.AnsweredQuestionIDs, "q1")
	c.Answers["q1"] = QuizAnswer{Text: "x"}
	c.ScoreByProgram["p1"] = 10
	*c.CurrentQuestionID = "q2"

	assert.Equal(t, []string{"q0"}, s.AnsweredQuestionIDs)
	assert.Len(t, s.Answers, 1)
	assert.Equal(t, 3, s.ScoreByProgram["p1"])
	assert.Equal(t, "q1", *s.CurrentQuestionID)
	assert.True(t, s.Answered("q0"))
	assert.False(t, s.Answered("q1"))
}

func TestValidationError(t *testing.T) {
	verr := &ValidationError{}
	assert.NoError(t, verr.OrNil())

	verr.Add("contact.email", "invalid email address")
	verr.Add("contact.phone", "is required")

	err := verr.OrNil()
	var target *ValidationError
	assert.True(t, errors.As(err, &target))
	assert.Len(t, target.Violations, 2)
	assert.Equal(t, "validation failed: contact.email: invalid email address; contact.phone: is required", err.Error())
}

func TestClampAuditLimit(t *testing.T) {
	assert.Equal(t, DefaultAuditLimit, ClampAuditLimit(0))
	assert.Equal(t, DefaultAuditLimit, ClampAuditLimit(-5))
	assert.Equal(t, 25, ClampAuditLimit(25))
	assert.Equal(t, MaxAuditLimit, ClampAuditLimit(10_000))
}

func TestQuizQuestion_Option(t *testing.T) {
	q := QuizQuestion{Options: []QuizAnswerOption{{ID: "a"}, {ID: "b"}}}
	opt, ok := q.Option("b")
	assert.True(t, ok)
	assert.Equal(t, "b", opt.ID)

	_, ok = q.Option("z")
	assert.False(t, ok)
}
