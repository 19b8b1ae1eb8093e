// Command server exposes the stock ledger over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/app"
	"stockledger/internal/config"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/pkg/logger"
)

const shutdownGrace = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: !cfg.App.IsProduction()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Errorw("server exited", "error", err)
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(logger.WithLogger(context.Background(), log), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting", "env", cfg.App.Env, "storage", cfg.Storage.Driver, "port", cfg.App.Port)

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}
	defer application.Close()

	router, err := v1.NewRouter(routerConfig(cfg, log, application))
	if err != nil {
		return fmt.Errorf("init router: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutdown requested, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func routerConfig(cfg *config.Config, log *logger.Logger, a *app.App) v1.RouterConfig {
	checks := make(map[string]handlers.Pinger, 2)
	if a.Pool != nil {
		checks["database"] = a.Pool
	}
	if a.Redis != nil {
		checks["redis"] = redisPing{a.Redis}
	}
	return v1.RouterConfig{
		Logger:          log,
		HealthChecks:    checks,
		Adjustments:     a.Adjustments,
		Queries:         a.Queries,
		Auditor:         a.Auditor,
		Transfers:       a.Transfers,
		Reconciliations: a.Reconciliations,
		AuditLog:        a.AuditLog,
		Idempotency:     a.Idempotency,
		Debug:           !cfg.App.IsProduction() && cfg.Log.Level == "debug",
	}
}

type redisPing struct{ client *redis.Client }

func (p redisPing) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }
