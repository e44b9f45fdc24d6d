// Package intake validates and captures landing page submissions and hands
// them to the delivery queue.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tschelli/lead-lander-sub001/common/logging"
	"github.com/tschelli/lead-lander-sub001/leads/internal/auditlog"
	"github.com/tschelli/lead-lander-sub001/leads/internal/catalog"
	"github.com/tschelli/lead-lander-sub001/leads/internal/metrics"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
	"github.com/tschelli/lead-lander-sub001/leads/internal/queue"
	"github.com/tschelli/lead-lander-sub001/leads/internal/quiz"
	"github.com/tschelli/lead-lander-sub001/leads/internal/repository"
)

// ConsentInput is the consent block of a submission request.
type ConsentInput struct {
	Consented   bool       `json:"consented"`
	TextVersion string     `json:"textVersion"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

// SubmitRequest is the public submission payload. schoolId and campusId are
// accepted as aliases of accountId and locationId.
type SubmitRequest struct {
	ClientID          string          `json:"clientId"`
	AccountID         string          `json:"accountId,omitempty"`
	SchoolID          string          `json:"schoolId,omitempty"`
	LocationID        string          `json:"locationId,omitempty"`
	CampusID          string          `json:"campusId,omitempty"`
	ProgramID         string          `json:"programId,omitempty"`
	Contact           models.Contact  `json:"contact"`
	Answers           []models.Answer `json:"answers,omitempty"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	Consent           ConsentInput    `json:"consent"`
	IdempotencyKey    string          `json:"idempotencyKey,omitempty"`
	LastStepCompleted *int            `json:"lastStepCompleted,omitempty"`
	QuizSessionID     string          `json:"quizSessionId,omitempty"`
	// Website is a hidden form field only bots fill in.
	Website string `json:"website,omitempty"`

	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

type SubmitResult struct {
	SubmissionID string                  `json:"submissionId"`
	Status       models.SubmissionStatus `json:"status"`
	Duplicate    bool                    `json:"-"`
	// ClientID is the catalog-resolved client; empty for discarded honeypot hits.
	ClientID     string                  `json:"-"`
}

// QuizSessions is the part of the quiz service intake converts sessions with.
type QuizSessions interface {
	GetSession(ctx context.Context, id string) (*quiz.View, error)
	Convert(ctx context.Context, id string) error
}

type Service struct {
	repo    repository.Repository
	catalog catalog.Catalog
	queue   queue.Queue
	quiz    QuizSessions
	audit   *auditlog.Builder
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the ingestor. quizSessions may be nil when quizzes are not served.
func NewService(repo repository.Repository, cat catalog.Catalog, q queue.Queue, quizSessions QuizSessions, builder *auditlog.Builder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		catalog: cat,
		queue:   q,
		quiz:    quizSessions,
		audit:   builder,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit captures one lead. A repeated idempotency key returns the stored
// submission with Duplicate set and changes nothing.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if strings.TrimSpace(req.Website) != "" {
		metrics.SubmissionsTotal.WithLabelValues(metrics.UnresolvedClient, "honeypot").Inc()
		s.logger.Info("honeypot submission discarded", logging.ClientID(req.ClientID), logging.IP(req.IP))
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate submission id: %w", err)
		}
		return &SubmitResult{SubmissionID: id.String(), Status: models.StatusReceived}, nil
	}

	prep, err := s.prepare(ctx, &req)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(metrics.UnresolvedClient, "rejected").Inc()
		return nil, err
	}
	if prep.replay != nil {
		metrics.SubmissionsTotal.WithLabelValues(prep.replay.ClientID, "duplicate").Inc()
		s.logger.Info("duplicate submission", logging.ClientID(prep.replay.ClientID), logging.SubmissionID(prep.replay.ID))
		return &SubmitResult{SubmissionID: prep.replay.ID, Status: prep.replay.Status, Duplicate: true, ClientID: prep.replay.ClientID}, nil
	}
	sub, session := prep.sub, prep.session
	log := s.logger.With(logging.ClientID(sub.ClientID), logging.SubmissionID(sub.ID))

	entry, err := s.audit.Entry(sub.ClientID, &sub.ID, models.EventSubmissionCreated, auditlog.SubmissionCreated{
		Status:         sub.Status,
		AccountID:      sub.AccountID,
		ProgramID:      sub.ProgramID,
		LocationID:     sub.LocationID,
		IdempotencyKey: sub.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	stored, created, err := s.repo.CreateSubmission(ctx, sub, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to store submission: %w", err)
	}
	if !created {
		metrics.SubmissionsTotal.WithLabelValues(sub.ClientID, "duplicate").Inc()
		log.Info("duplicate submission", logging.SubmissionID(stored.ID))
		return &SubmitResult{SubmissionID: stored.ID, Status: stored.Status, Duplicate: true, ClientID: stored.ClientID}, nil
	}
	metrics.SubmissionsTotal.WithLabelValues(sub.ClientID, "created").Inc()

	job := queue.Job{SubmissionID: stored.ID, AttemptHint: 1}
	if _, err := s.queue.Enqueue(ctx, job); err != nil {
		// The lead is durable; backfill picks it up.
		metrics.EnqueueFailures.Inc()
		log.Error("failed to enqueue delivery job", logging.JobKey(job.Key()), logging.Error(err))
	}

	if session != "" {
		if err := s.quiz.Convert(ctx, session); err != nil {
			log.Warn("failed to discard converted quiz session", logging.SessionID(session), logging.Error(err))
		}
	}

	log.Info("submission captured", logging.AccountID(stored.AccountID))
	return &SubmitResult{SubmissionID: stored.ID, Status: stored.Status, ClientID: stored.ClientID}, nil
}

// prepared is a validated submission ready to store, or the stored
// submission a replayed idempotency key already points at.
type prepared struct {
	sub     *models.Submission
	session string
	replay  *models.Submission
}

// prepare validates req and resolves it against the catalog. It returns the
// submission to store and the quiz session to convert, if any. A known
// idempotency key short-circuits before the quiz session is read.
func (s *Service) prepare(ctx context.Context, req *SubmitRequest) (*prepared, error) {
	verr := &models.ValidationError{}

	accountID := resolveAlias(req.AccountID, req.SchoolID, "schoolId", "accountId", verr)
	locationID := resolveAlias(req.LocationID, req.CampusID, "campusId", "locationId", verr)
	clientID := strings.TrimSpace(req.ClientID)
	programID := strings.TrimSpace(req.ProgramID)
	sessionID := strings.TrimSpace(req.QuizSessionID)

	if clientID == "" {
		verr.Add("clientId", "is required")
	}
	if accountID == "" {
		verr.Add("accountId", "is required")
	}
	if programID == "" && sessionID == "" {
		verr.Add("programId", "is required")
	}
	contact := normalizeContact(req.Contact)
	validateContact(contact, verr)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	account, err := s.catalog.ResolveAccount(ctx, clientID, accountID)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.repo.GetSubmissionByIdempotencyKey(ctx, clientID, key)
		switch {
		case err == nil:
			return &prepared{replay: existing}, nil
		case !errors.Is(err, models.ErrNotFound):
			return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
		}
	}

	if sessionID != "" {
		recommended, err := s.completedSession(ctx, sessionID, account)
		if err != nil {
			return nil, err
		}
		if programID == "" {
			if recommended == "" {
				verr.Add("programId", "is required when the quiz recommended no program")
				return nil, verr
			}
			programID = recommended
		}
	}

	if _, err := s.catalog.ResolveProgram(ctx, account.ID, programID); err != nil {
		return nil, err
	}
	var locPtr *string
	if locationID != "" {
		if _, err := s.catalog.ResolveLocation(ctx, account.ID, locationID); err != nil {
			return nil, err
		}
		locPtr = &locationID
	}

	if !req.Consent.Consented {
		return nil, models.ErrConsentRequired
	}

	now := s.now()
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate submission id: %w", err)
	}
	if key == "" {
		k, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate idempotency key: %w", err)
		}
		key = k.String()
	}
	consentAt := now
	if req.Consent.Timestamp != nil {
		consentAt = req.Consent.Timestamp.UTC()
	}
	metadata, err := buildMetadata(req.Metadata, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}
	answers := req.Answers
	if answers == nil {
		answers = []models.Answer{}
	}

	sub := &models.Submission{
		ID:                id.String(),
		ClientID:          clientID,
		AccountID:         account.ID,
		LocationID:        locPtr,
		ProgramID:         programID,
		Contact:           contact,
		Answers:           answers,
		Metadata:          metadata,
		Status:            models.StatusReceived,
		IdempotencyKey:    key,
		LastStepCompleted: req.LastStepCompleted,
		Consent: models.Consent{
			Consented:   true,
			TextVersion: strings.TrimSpace(req.Consent.TextVersion),
			Timestamp:   consentAt,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return &prepared{sub: sub, session: sessionID}, nil
}

// completedSession checks the quiz session belongs to account and is
// complete, and returns its recommended program (empty when disqualified).
func (s *Service) completedSession(ctx context.Context, sessionID string, account *models.Account) (string, error) {
	verr := &models.ValidationError{}
	if s.quiz == nil {
		verr.Add("quizSessionId", "quiz sessions are not enabled")
		return "", verr
	}
	view, err := s.quiz.GetSession(ctx, sessionID)
	if errors.Is(err, models.ErrNotFound) {
		verr.Add("quizSessionId", "unknown or expired quiz session")
		return "", verr
	}
	if err != nil {
		return "", err
	}
	if view.Session.AccountID != account.ID || view.Session.ClientID != account.ClientID {
		verr.Add("quizSessionId", "quiz session belongs to another account")
		return "", verr
	}
	if view.Result == nil {
		verr.Add("quizSessionId", "quiz is not completed")
		return "", verr
	}
	if view.Result.ProgramID == nil {
		return "", nil
	}
	return *view.Result.ProgramID, nil
}

// resolveAlias returns the canonical value, falling back to the legacy alias.
func resolveAlias(canonical, alias, aliasField, canonicalField string, verr *models.ValidationError) string {
	canonical = strings.TrimSpace(canonical)
	alias = strings.TrimSpace(alias)
	if canonical != "" && alias != "" && canonical != alias {
		verr.Add(aliasField, "conflicts with "+canonicalField)
	}
	if canonical == "" {
		return alias
	}
	return canonical
}

func buildMetadata(in map[string]any, ip, userAgent string) (json.RawMessage, error) {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	if ip != "" {
		out["ip"] = ip
	}
	if userAgent != "" {
		out["user_agent"] = userAgent
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return data, nil
}
