package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/tschelli/lead-lander-sub001/common/config"
	"github.com/tschelli/lead-lander-sub001/common/logging"
	"github.com/tschelli/lead-lander-sub001/common/telemetry"
	"github.com/tschelli/lead-lander-sub001/leads/internal/app"
	"github.com/tschelli/lead-lander-sub001/leads/internal/server"
)

func main() {
	cfg, err := config.Load("dispatcher")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Queue.Backend != "jetstream" {
		log.Fatalf("The dispatcher needs queue.backend=jetstream; the memory queue runs inside the leads API")
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("dispatcher"))
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "lead-dispatcher", cfg.Telemetry)
	if err != nil {
		logger.Warn("tracing disabled", logging.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	infra, err := app.Open(ctx, cfg, logger.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}
	defer infra.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.NewOpsRouter(infra.Health("dispatcher")),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		slog.Info("dispatcher ops endpoint listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", logging.Error(err))
		}
	}()

	// Run returns once ctx is cancelled and in-flight deliveries have finished.
	if err := infra.Dispatcher().Run(ctx); err != nil {
		logger.Error("dispatcher failed", logging.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server forced to shutdown", logging.Error(err))
	}
	slog.Info("dispatcher stopped")
}
