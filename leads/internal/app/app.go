// Package app connects the shared infrastructure both lead services run on.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tschelli/lead-lander-sub001/common/audit"
	"github.com/tschelli/lead-lander-sub001/common/config"
	"github.com/tschelli/lead-lander-sub001/common/database"
	natsclient "github.com/tschelli/lead-lander-sub001/common/messaging/nats"
	"github.com/tschelli/lead-lander-sub001/leads/internal/auditlog"
	"github.com/tschelli/lead-lander-sub001/leads/internal/catalog"
	"github.com/tschelli/lead-lander-sub001/leads/internal/dispatcher"
	"github.com/tschelli/lead-lander-sub001/leads/internal/handlers"
	"github.com/tschelli/lead-lander-sub001/leads/internal/queue"
	"github.com/tschelli/lead-lander-sub001/leads/internal/repository"
)

// Infra holds the connections and stores of a running service.
type Infra struct {
	Config  *config.Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	NATS    *natsclient.JetStreamClient
	Queue   queue.Queue
	Repo    repository.Repository
	Catalog catalog.Catalog
	Audit   *auditlog.Builder

	closers []func()
}

// Open connects Postgres, Redis (when enabled) and the configured queue backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Infra, error) {
	infra := &Infra{Config: cfg, Logger: logger}

	pool, err := database.Connect(ctx, cfg.Database.Postgres.ConnString(), database.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, err
	}
	infra.Pool = pool
	infra.closers = append(infra.closers, pool.Close)
	infra.Repo = repository.NewPostgresRepository(pool)
	infra.Catalog = catalog.NewPostgresCatalog(pool)
	infra.Audit = auditlog.NewBuilder(audit.NewSigner(cfg.Auth.AuditSecret))

	if cfg.Redis.Enabled {
		client, err := database.ConnectRedis(ctx, cfg.Redis.URL, database.RedisOptions{
			MaxRetries: cfg.Redis.MaxRetries,
			PoolSize:   cfg.Redis.PoolSize,
		})
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Redis = client
		infra.closers = append(infra.closers, func() { _ = client.Close() })
	}

	if err := infra.openQueue(ctx); err != nil {
		infra.Close()
		return nil, err
	}
	return infra, nil
}

func (i *Infra) admission() queue.Admission {
	if i.Redis != nil {
		return queue.NewRedisAdmission(i.Redis)
	}
	return queue.NewMemoryAdmission()
}

func (i *Infra) openQueue(ctx context.Context) error {
	qc := i.Config.Queue
	switch qc.Backend {
	case "memory":
		q := queue.NewMemoryQueue(i.admission(), qc.AdmissionTTL, 4096)
		i.Queue = q
		i.closers = append(i.closers, func() { _ = q.Close() })
		i.Logger.Warn("using in-process delivery queue; jobs are lost on restart until backfilled")
		return nil
	case "jetstream":
		js, err := natsclient.NewJetStreamClient(natsclient.Config{
			URL:           i.Config.NATS.URL,
			Name:          "leads",
			MaxReconnects: i.Config.NATS.MaxReconnects,
			ReconnectWait: i.Config.NATS.ReconnectWait,
			Logger:        i.Logger,
		})
		if err != nil {
			return err
		}
		i.NATS = js
		i.closers = append(i.closers, func() { _ = js.Drain() })

		q, err := queue.NewJetStreamQueue(ctx, js, i.admission(), queue.JetStreamConfig{
			Stream:        qc.Stream,
			Subject:       qc.Subject,
			Consumer:      qc.Consumer,
			AckWait:       qc.AckWait,
			MaxAckPending: i.Config.Delivery.Workers * 4,
			AdmissionTTL:  qc.AdmissionTTL,
		}, i.Logger)
		if err != nil {
			return err
		}
		i.Queue = q
		return nil
	}
	return fmt.Errorf("unknown queue backend %q", qc.Backend)
}

// Dispatcher builds the delivery worker pool from the delivery settings.
func (i *Infra) Dispatcher() *dispatcher.Dispatcher {
	dc := i.Config.Delivery
	return dispatcher.New(i.Repo, i.Catalog, i.Queue, i.Audit, dispatcher.Config{
		Workers:         dc.Workers,
		MaxPerClient:    dc.MaxPerClient,
		MaxAttempts:     dc.MaxAttempts,
		BaseDelay:       dc.BaseDelay,
		MaxDelay:        dc.MaxDelay,
		RequestTimeout:  dc.RequestTimeout,
		StoreRetryDelay: dc.StoreRetryDelay,
	}, i.Logger)
}

// Health returns a health handler probing every open dependency.
func (i *Infra) Health(service string) *handlers.HealthHandler {
	h := handlers.NewHealthHandler(service, i.Queue.Depth)
	h.AddCheck("postgres", i.Pool.Ping)
	if i.Redis != nil {
		h.AddCheck("redis", func(ctx context.Context) error { return i.Redis.Ping(ctx).Err() })
	}
	if i.NATS != nil {
		h.AddCheck("nats", i.NATS.CheckHealth)
	}
	return h
}

// Close releases connections in reverse order of opening.
func (i *Infra) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
	i.closers = nil
}
