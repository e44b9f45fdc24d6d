package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions tunes the go-redis client beyond what the URL carries.
type RedisOptions struct {
	MaxRetries int
	PoolSize   int
}

// ConnectRedis parses redisURL, applies opts and pings the server.
func ConnectRedis(ctx context.Context, redisURL string, opts RedisOptions) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if opts.MaxRetries != 0 {
		opt.MaxRetries = opts.MaxRetries
	}
	if opts.PoolSize > 0 {
		opt.PoolSize = opts.PoolSize
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}
