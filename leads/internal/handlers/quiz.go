package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tschelli/lead-lander-sub001/common/httputil"
	"github.com/tschelli/lead-lander-sub001/leads/internal/metrics"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
	"github.com/tschelli/lead-lander-sub001/leads/internal/quiz"
)

const quizBodyLimit = 16 << 10

type QuizService interface {
	StartSession(ctx context.Context, clientID, accountID string) (*quiz.View, error)
	Answer(ctx context.Context, sessionID, questionID string, answer quiz.Answer) (*quiz.View, error)
	GetSession(ctx context.Context, sessionID string) (*quiz.View, error)
}

type QuizHandler struct {
	service QuizService
	logger  *slog.Logger
}

func NewQuizHandler(service QuizService, logger *slog.Logger) *QuizHandler {
	return &QuizHandler{service: service, logger: logger}
}

type startSessionRequest struct {
	ClientID  string `json:"clientId"`
	AccountID string `json:"accountId"`
	SchoolID  string `json:"schoolId,omitempty"`
}

type answerRequest struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId,omitempty"`
	Text       string `json:"text,omitempty"`
}

// quizView is what a landing page renders: the next question while the quiz
// runs, the routing result once it completes.
type quizView struct {
	Session  *models.QuizSession  `json:"session"`
	Question *models.QuizQuestion `json:"question,omitempty"`
	Result   *quiz.RoutingResult  `json:"result,omitempty"`
}

func toQuizView(v *quiz.View) quizView {
	return quizView{Session: v.Session, Question: v.Question, Result: v.Result}
}

// Start handles POST /v1/quiz/sessions.
func (h *QuizHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := httputil.DecodeJSON(w, r, quizBodyLimit, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	accountID := req.AccountID
	if accountID == "" {
		accountID = req.SchoolID
	}
	verr := &models.ValidationError{}
	if req.ClientID == "" {
		verr.Add("clientId", "is required")
	}
	if accountID == "" {
		verr.Add("accountId", "is required")
	}
	if err := verr.OrNil(); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	view, err := h.service.StartSession(r.Context(), req.ClientID, accountID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	metrics.QuizSessionsStarted.Inc()
	h.recordCompletion(view)
	httputil.WriteJSON(w, http.StatusCreated, toQuizView(view))
}

// Get handles GET /v1/quiz/sessions/{id}.
func (h *QuizHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toQuizView(view))
}

// Answer handles POST /v1/quiz/sessions/{id}/answers.
func (h *QuizHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := httputil.DecodeJSON(w, r, quizBodyLimit, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.QuestionID == "" {
		verr := &models.ValidationError{}
		verr.Add("questionId", "is required")
		writeServiceError(w, r, h.logger, verr)
		return
	}

	view, err := h.service.Answer(r.Context(), r.PathValue("id"), req.QuestionID, quiz.Answer{OptionID: req.OptionID, Text: req.Text})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.recordCompletion(view)
	httputil.WriteJSON(w, http.StatusOK, toQuizView(view))
}

func (h *QuizHandler) recordCompletion(v *quiz.View) {
	if v.Result == nil {
		return
	}
	routedBy := "none"
	if v.Result.RoutedBy != nil {
		routedBy = string(*v.Result.RoutedBy)
	}
	metrics.QuizCompletions.WithLabelValues(string(v.Result.Status), routedBy).Inc()
}
