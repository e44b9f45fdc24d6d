package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tschelli/lead-lander-sub001/common/config"
	"github.com/tschelli/lead-lander-sub001/common/database"
	"github.com/tschelli/lead-lander-sub001/common/logging"
	"github.com/tschelli/lead-lander-sub001/common/telemetry"
	"github.com/tschelli/lead-lander-sub001/common/tokens"
	"github.com/tschelli/lead-lander-sub001/leads/internal/admin"
	"github.com/tschelli/lead-lander-sub001/leads/internal/app"
	"github.com/tschelli/lead-lander-sub001/leads/internal/auth"
	"github.com/tschelli/lead-lander-sub001/leads/internal/handlers"
	"github.com/tschelli/lead-lander-sub001/leads/internal/intake"
	"github.com/tschelli/lead-lander-sub001/leads/internal/intakestats"
	"github.com/tschelli/lead-lander-sub001/leads/internal/quiz"
	"github.com/tschelli/lead-lander-sub001/leads/internal/ratelimit"
	"github.com/tschelli/lead-lander-sub001/leads/internal/server"
)

func main() {
	cfg, err := config.Load("leads")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("leads"))
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "leads", cfg.Telemetry)
	if err != nil {
		logger.Warn("tracing disabled", logging.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	if err := database.MigrateUp(cfg.Database.MigrationsPath, cfg.Database.Postgres.ConnString()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	infra, err := app.Open(ctx, cfg, logger.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}
	defer infra.Close()

	var sessions quiz.SessionStore = quiz.NewMemorySessionStore()
	if infra.Redis != nil {
		sessions = quiz.NewRedisSessionStore(infra.Redis)
	}
	quizService := quiz.NewService(infra.Catalog, sessions, cfg.Intake.QuizSessionTTL)

	var limiter ratelimit.RateLimiter = ratelimit.NoOpRateLimiter{}
	if infra.Redis != nil && cfg.Intake.RateLimitEnabled {
		limiter = ratelimit.NewRedisRateLimiter(infra.Redis, cfg.Intake.RateLimitRequests, cfg.Intake.RateLimitWindow)
		slog.Info("rate limiting enabled",
			slog.Int("requests", cfg.Intake.RateLimitRequests),
			slog.Duration("window", cfg.Intake.RateLimitWindow))
	}

	intakeService := intake.NewService(infra.Repo, infra.Catalog, infra.Queue, quizService, infra.Audit, logger.Logger)
	adminService := admin.NewService(infra.Repo, infra.Queue, infra.Audit, logger.Logger)
	tokenGen := tokens.NewTokenGenerator(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	submissions := handlers.NewSubmissionHandler(intakeService, limiter, cfg.Intake.MaxBodyBytes, logger.Logger)
	var statsHandler *handlers.StatsHandler
	if infra.Redis != nil {
		instanceID, _ := os.Hostname()
		collector := intakestats.NewCollector(intakestats.NewClient(infra.Redis, instanceID), cfg.Intake.StatsFlushInterval, logger.Logger)
		defer collector.Stop()
		submissions.WithRecorder(collector)
		statsHandler = handlers.NewStatsHandler(collector, logger.Logger)
	}

	router := server.NewRouter(server.Handlers{
		Submissions: submissions,
		Quiz:        handlers.NewQuizHandler(quizService, logger.Logger),
		Admin:       handlers.NewAdminHandler(adminService, cfg.Delivery.BackfillOlderThan, logger.Logger),
		Stats:       statsHandler,
		Health:      infra.Health("leads"),
		Auth:        auth.NewMiddleware(tokenGen),
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	// The in-process queue is only visible here, so its dispatcher runs alongside the API.
	dispatchDone := make(chan struct{})
	if cfg.Queue.Backend == "memory" {
		go func() {
			defer close(dispatchDone)
			if err := infra.Dispatcher().Run(ctx); err != nil {
				logger.Error("embedded dispatcher failed", logging.Error(err))
				stop()
			}
		}()
	} else {
		close(dispatchDone)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("leads API listening",
			slog.String("addr", srv.Addr),
			slog.String("queue_backend", cfg.Queue.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", logging.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", logging.Error(err))
	}
	<-dispatchDone
	slog.Info("server stopped")
}
