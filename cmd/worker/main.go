// Package main is the entry point for the stock ledger background worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"stockledger/internal/app"
	"stockledger/internal/config"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: !cfg.App.IsProduction(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	if cfg.Storage.Driver != "postgres" {
		log.Fatalw("worker requires the postgres storage driver", "storage", cfg.Storage.Driver)
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting stockledger worker")

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer application.Close()

	var (
		handler postgres.OutboxHandler = postgres.LogHandler{}
		locker  cache.Locker           = cache.NewLocalLocker()
	)
	if application.Redis != nil {
		handler = cache.NewRedisOutboxHandler(application.Redis, cfg.Outbox.Channel)
		locker = cache.NewRedisLocker(application.Redis, "")
	}

	worker := NewWorker(WorkerDeps{
		Config:      cfg,
		Relay:       postgres.NewOutboxRelay(application.TxManager, cfg.Outbox.BatchSize, handler),
		Engine:      application.Reconciliations,
		Auditor:     application.Auditor,
		Idempotency: application.IdempotencyClean,
		Locker:      locker,
	}, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}
