package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = fmt.Errorf("quiz session %w", models.ErrNotFound)

// SessionStore holds quiz sessions between requests.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.QuizSession, error)
	Save(ctx context.Context, s *models.QuizSession, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// RedisSessionStore keeps each session as a JSON value with a TTL.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: "leads:quiz:"}
}

func (r *RedisSessionStore) Get(ctx context.Context, id string) (*models.QuizSession, error) {
	data, err := r.client.Get(ctx, r.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz session: %w", err)
	}

	var s models.QuizSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode quiz session: %w", err)
	}
	return &s, nil
}

func (r *RedisSessionStore) Save(ctx context.Context, s *models.QuizSession, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode quiz session: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+s.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save quiz session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.prefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete quiz session: %w", err)
	}
	return nil
}

type memoryEntry struct {
	session *models.QuizSession
	expires time.Time
}

// MemorySessionStore is the single-process SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (*models.QuizSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.sessions, id)
		return nil, ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

func (m *MemorySessionStore) Save(_ context.Context, s *models.QuizSession, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = m.now().Add(ttl)
	}
	m.sessions[s.ID] = memoryEntry{session: s.Clone(), expires: exp}
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
