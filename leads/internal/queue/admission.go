package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Admission is a set of live job keys with expiry.
type Admission interface {
	// Acquire marks key live for ttl. It returns false if key is already live.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisAdmission shares admission across intake and dispatcher replicas.
type RedisAdmission struct {
	client *redis.Client
	prefix string
}

func NewRedisAdmission(client *redis.Client) *RedisAdmission {
	return &RedisAdmission{client: client, prefix: "leads:job:"}
}

func (a *RedisAdmission) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := a.client.SetNX(ctx, a.prefix+key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("admission check failed: %w", err)
	}
	return ok, nil
}

func (a *RedisAdmission) Release(ctx context.Context, key string) error {
	if err := a.client.Del(ctx, a.prefix+key).Err(); err != nil {
		return fmt.Errorf("admission release failed: %w", err)
	}
	return nil
}

// MemoryAdmission is the single-process Admission.
type MemoryAdmission struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewMemoryAdmission() *MemoryAdmission {
	return &MemoryAdmission{held: make(map[string]time.Time), now: time.Now}
}

func (a *MemoryAdmission) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if exp, ok := a.held[key]; ok && (exp.IsZero() || now.Before(exp)) {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	a.held[key] = exp
	return true, nil
}

func (a *MemoryAdmission) Release(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.held, key)
	return nil
}
