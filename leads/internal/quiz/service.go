package quiz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tschelli/lead-lander-sub001/leads/internal/catalog"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

// View is a session together with what the visitor sees next: a question
// while in progress, the routing result once completed.
type View struct {
	Session  *models.QuizSession
	Question *models.QuizQuestion
	Result   *RoutingResult
}

// Service runs quiz sessions for landing pages.
type Service struct {
	catalog catalog.Catalog
	store   SessionStore
	ttl     time.Duration
	now     func() time.Time
}

func NewService(cat catalog.Catalog, store SessionStore, ttl time.Duration) *Service {
	return &Service{catalog: cat, store: store, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) engineFor(ctx context.Context, account *models.Account) (*Engine, error) {
	questions, err := s.catalog.ListQuizQuestions(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz questions: %w", err)
	}
	programs, err := s.catalog.ListPrograms(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load programs: %w", err)
	}
	return NewEngine(questions, programs, account.DefaultProgramID), nil
}

// StartSession creates a session for an active account of clientID.
func (s *Service) StartSession(ctx context.Context, clientID, accountID string) (*View, error) {
	account, err := s.catalog.ResolveAccount(ctx, clientID, accountID)
	if err != nil {
		return nil, err
	}
	engine, err := s.engineFor(ctx, account)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	session := engine.Start(id.String(), clientID, accountID, s.now())
	if err := s.store.Save(ctx, session, s.ttl); err != nil {
		return nil, err
	}
	return viewOf(engine, session), nil
}

// Answer applies one answer. Concurrent answers to one session are last-write-wins.
func (s *Service) Answer(ctx context.Context, sessionID, questionID string, answer Answer) (*View, error) {
	session, engine, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := engine.ApplyAnswer(session, questionID, answer, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, next, s.ttl); err != nil {
		return nil, err
	}
	return viewOf(engine, next), nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*View, error) {
	session, engine, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return viewOf(engine, session), nil
}

// Convert discards a completed session once its submission exists.
func (s *Service) Convert(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}

func (s *Service) load(ctx context.Context, sessionID string) (*models.QuizSession, *Engine, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	account, err := s.catalog.ResolveAccount(ctx, session.ClientID, session.AccountID)
	if err != nil {
		return nil, nil, err
	}
	engine, err := s.engineFor(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	return session, engine, nil
}

func viewOf(engine *Engine, session *models.QuizSession) *View {
	q, result := engine.NextQuestion(session)
	return &View{Session: session, Question: q, Result: result}
}
