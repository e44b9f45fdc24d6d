// Package quiz runs the qualification quiz: it picks the next eligible
// question, accumulates per-program points and routes the visitor to a
// recommended program. Engine transitions are pure; Service adds the catalog
// and the server-held session store.
package quiz

import (
	"fmt"
	"strings"
	"time"

	"github.com/tschelli/lead-lander-sub001/leads/internal/catalog"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

// Answer is a visitor's response to one question.
type Answer struct {
	OptionID string
	Text     string
}

// RoutingResult is the outcome of a completed quiz.
type RoutingResult struct {
	Status    models.QuizStatus `json:"status"`
	ProgramID *string           `json:"programId,omitempty"`
	RoutedBy  *models.RoutedBy  `json:"routedBy,omitempty"`
	Scores    map[string]int    `json:"scores"`
}

// Engine holds one account's quiz definition.
type Engine struct {
	questions        []models.QuizQuestion
	programRank      map[string]int
	defaultProgramID *string
}

// NewEngine copies and orders questions and programs. defaultProgramID may be nil.
func NewEngine(questions []models.QuizQuestion, programs []models.Program, defaultProgramID *string) *Engine {
	qs := append([]models.QuizQuestion(nil), questions...)
	catalog.SortQuestions(qs)
	ps := append([]models.Program(nil), programs...)
	catalog.SortPrograms(ps)

	rank := make(map[string]int, len(ps))
	for i, p := range ps {
		rank[p.ID] = i
	}
	return &Engine{questions: qs, programRank: rank, defaultProgramID: defaultProgramID}
}

// Start returns a new in-progress session positioned on the first eligible
// question. A quiz with no eligible question completes immediately.
func (e *Engine) Start(sessionID, clientID, accountID string, now time.Time) *models.QuizSession {
	s := &models.QuizSession{
		ID:                  sessionID,
		ClientID:            clientID,
		AccountID:           accountID,
		AnsweredQuestionIDs: []string{},
		Answers:             map[string]models.QuizAnswer{},
		ScoreByProgram:      map[string]int{},
		Status:              models.QuizInProgress,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	e.advance(s)
	return s
}

// NextQuestion returns the question to ask, or the routing result when none
// remains. It does not modify s.
func (e *Engine) NextQuestion(s *models.QuizSession) (*models.QuizQuestion, *RoutingResult) {
	if s.Status.Completed() {
		return nil, resultOf(s)
	}
	if q := e.nextEligible(s); q != nil {
		return q, nil
	}
	done := s.Clone()
	e.finalize(done)
	return nil, resultOf(done)
}

// ApplyAnswer records answer to questionID and returns the resulting session.
// s is never modified. Every rejection wraps models.ErrInvalidAnswer.
func (e *Engine) ApplyAnswer(s *models.QuizSession, questionID string, answer Answer, now time.Time) (*models.QuizSession, error) {
	if s.Status != models.QuizInProgress {
		return nil, invalid("session is %s", s.Status)
	}
	if s.Answered(questionID) {
		return nil, invalid("question %q already answered", questionID)
	}
	q := e.question(questionID)
	if q == nil {
		return nil, invalid("unknown question %q", questionID)
	}
	if !e.eligible(s, q) {
		return nil, invalid("question %q is not currently eligible", questionID)
	}
	// Questions are answered strictly in the order they are asked.
	if cur := e.nextEligible(s); cur == nil || cur.ID != questionID {
		return nil, invalid("question %q is not the current question", questionID)
	}

	var opt *models.QuizAnswerOption
	switch q.Kind {
	case models.QuestionText:
		if strings.TrimSpace(answer.Text) == "" {
			return nil, invalid("question %q requires a text answer", questionID)
		}
	default:
		if answer.OptionID == "" {
			return nil, invalid("question %q requires an option", questionID)
		}
		var ok bool
		if opt, ok = q.Option(answer.OptionID); !ok {
			return nil, invalid("option %q does not belong to question %q", answer.OptionID, questionID)
		}
	}

	next := s.Clone()
	next.AnsweredQuestionIDs = append(next.AnsweredQuestionIDs, questionID)
	if opt != nil {
		next.Answers[questionID] = models.QuizAnswer{OptionID: opt.ID}
	} else {
		next.Answers[questionID] = models.QuizAnswer{Text: strings.TrimSpace(answer.Text)}
	}
	next.UpdatedAt = now

	if q.DirectRoute && opt != nil && opt.RouteProgramID != nil {
		complete(next, models.QuizCompletedRecommended, opt.RouteProgramID, models.RoutedByDirectRoute)
		return next, nil
	}

	if opt != nil {
		for programID, points := range opt.PointAssignments {
			next.ScoreByProgram[programID] += points
		}
	}
	e.advance(next)
	return next, nil
}

// advance moves s to its next eligible question or completes it.
func (e *Engine) advance(s *models.QuizSession) {
	if q := e.nextEligible(s); q != nil {
		id := q.ID
		s.CurrentQuestionID = &id
		return
	}
	e.finalize(s)
}

func (e *Engine) finalize(s *models.QuizSession) {
	best := ""
	bestScore := 0
	for programID, score := range s.ScoreByProgram {
		if score <= 0 {
			continue
		}
		if best == "" || score > bestScore || (score == bestScore && e.ranksBefore(programID, best)) {
			best, bestScore = programID, score
		}
	}

	switch {
	case best != "":
		complete(s, models.QuizCompletedRecommended, &best, models.RoutedByScore)
	case e.defaultProgramID != nil:
		id := *e.defaultProgramID
		complete(s, models.QuizCompletedRecommended, &id, models.RoutedByDefault)
	default:
		s.Status = models.QuizCompletedDisqualified
		s.CurrentQuestionID = nil
		s.RecommendedProgramID = nil
		s.RoutedBy = nil
	}
}

// ranksBefore orders programs by display order, then id; unknown programs sort last.
func (e *Engine) ranksBefore(a, b string) bool {
	ra, okA := e.programRank[a]
	rb, okB := e.programRank[b]
	switch {
	case okA && okB:
		return ra < rb
	case okA != okB:
		return okA
	}
	return a < b
}

func (e *Engine) nextEligible(s *models.QuizSession) *models.QuizQuestion {
	for i := range e.questions {
		q := &e.questions[i]
		if !s.Answered(q.ID) && e.eligible(s, q) {
			return q
		}
	}
	return nil
}

func (e *Engine) eligible(s *models.QuizSession, q *models.QuizQuestion) bool {
	if q.ConditionalOn == nil {
		return true
	}
	guard, ok := s.Answers[q.ConditionalOn.QuestionID]
	if !ok || guard.OptionID == "" {
		return false
	}
	for _, id := range q.ConditionalOn.OptionIDs {
		if id == guard.OptionID {
			return true
		}
	}
	return false
}

func (e *Engine) question(id string) *models.QuizQuestion {
	for i := range e.questions {
		if e.questions[i].ID == id {
			return &e.questions[i]
		}
	}
	return nil
}

func complete(s *models.QuizSession, status models.QuizStatus, programID *string, by models.RoutedBy) {
	s.Status = status
	s.CurrentQuestionID = nil
	s.RecommendedProgramID = programID
	s.RoutedBy = &by
}

func resultOf(s *models.QuizSession) *RoutingResult {
	scores := make(map[string]int, len(s.ScoreByProgram))
	for k, v := range s.ScoreByProgram {
		scores[k] = v
	}
	return &RoutingResult{
		Status:    s.Status,
		ProgramID: s.RecommendedProgramID,
		RoutedBy:  s.RoutedBy,
		Scores:    scores,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrInvalidAnswer, fmt.Sprintf(format, args...))
}
