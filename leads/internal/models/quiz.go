package models

import "time"

// QuizStatus is the state of a QuizSession.
type QuizStatus string

const (
	QuizInProgress            QuizStatus = "in_progress"
	QuizCompletedRecommended  QuizStatus = "completed_recommended"
	QuizCompletedDisqualified QuizStatus = "completed_disqualified"
)

func (s QuizStatus) Completed() bool {
	return s == QuizCompletedRecommended || s == QuizCompletedDisqualified
}

// RoutedBy records which rule picked the recommended program.
type RoutedBy string

const (
	RoutedByScore       RoutedBy = "score"
	RoutedByDirectRoute RoutedBy = "direct_route"
	RoutedByDefault     RoutedBy = "default"
)

// QuizAnswer is either a chosen option or free text.
type QuizAnswer struct {
	OptionID string `json:"optionId,omitempty"`
	Text     string `json:"text,omitempty"`
}

// QuizSession is the server-held state of one visitor's quiz.
type QuizSession struct {
	ID                   string                `json:"id"`
	ClientID             string                `json:"clientId"`
	AccountID            string                `json:"accountId"`
	CurrentQuestionID    *string               `json:"currentQuestionId,omitempty"`
	AnsweredQuestionIDs  []string              `json:"answeredQuestionIds"`
	Answers              map[string]QuizAnswer `json:"answers"`
	ScoreByProgram       map[string]int        `json:"scoreByProgram"`
	Status               QuizStatus            `json:"status"`
	RecommendedProgramID *string               `json:"recommendedProgramId,omitempty"`
	RoutedBy             *RoutedBy             `json:"routedBy,omitempty"`
	CreatedAt            time.Time             `json:"createdAt"`
	UpdatedAt            time.Time             `json:"updatedAt"`
}

// Answered reports whether questionID already has an answer.
func (s *QuizSession) Answered(questionID string) bool {
	_, ok := s.Answers[questionID]
	return ok
}

// Clone returns a deep copy so transitions never mutate their input.
func (s *QuizSession) Clone() *QuizSession {
	c := *s
	c.AnsweredQuestionIDs = append([]string(nil), s.AnsweredQuestionIDs...)
	c.Answers = make(map[string]QuizAnswer, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	c.ScoreByProgram = make(map[string]int, len(s.ScoreByProgram))
	for k, v := range s.ScoreByProgram {
		c.ScoreByProgram[k] = v
	}
	if s.CurrentQuestionID != nil {
		id := *s.CurrentQuestionID
		c.CurrentQuestionID = &id
	}
	if s.RecommendedProgramID != nil {
		id := *s.RecommendedProgramID
		c.RecommendedProgramID = &id
	}
	if s.RoutedBy != nil {
		r := *s.RoutedBy
		c.RoutedBy = &r
	}
	return &c
}
