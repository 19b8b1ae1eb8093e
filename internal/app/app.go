// Package app wires repositories and services for the configured storage driver.
// cmd/server and cmd/worker share it.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/config"
	"stockledger/internal/core/event"
	"stockledger/internal/core/idempotency"
	corenumerator "stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/adjustment"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/transfer"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/numerator"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/reconciliation_repo"
	"stockledger/internal/infrastructure/storage/postgres/transfer_repo"
	"stockledger/pkg/logger"
)

// Cleaner removes expired idempotency keys.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// App holds the wired services.
type App struct {
	Config *config.Config

	// Set for the postgres driver only.
	Pool      *postgres.Pool
	TxManager *postgres.TxManager

	// Set when redis.enabled.
	Redis *redis.Client

	Projector       *ledger.Projector
	Queries         *ledger.Queries
	Auditor         *ledger.Auditor
	Adjustments     *adjustment.Service
	Transfers       *transfer.Service
	Reconciliations *reconciliation.Engine
	AuditLog        audit.Reader

	Idempotency      idempotency.Store
	IdempotencyClean Cleaner

	closers []func()
}

// New builds the application for cfg.Storage.Driver.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.Redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
	}

	var err error
	switch cfg.Storage.Driver {
	case "memory":
		a.wireMemory(memory.New())
	default:
		err = a.wirePostgres(ctx)
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info(ctx, "application wired",
		"storage", cfg.Storage.Driver,
		"redis", cfg.Redis.Enabled,
		"dedup_reference_types", cfg.Ledger.DedupReferenceTypes,
	)
	return a, nil
}

// NewMemory wires the in-memory store directly. Used by tests.
func NewMemory(cfg *config.Config, store *memory.Store) *App {
	a := &App{Config: cfg}
	a.wireMemory(store)
	return a
}

func (a *App) wirePostgres(ctx context.Context) error {
	cfg := a.Config

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.ApplicationName = cfg.App.Name
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	if cfg.Database.MinConns > 0 {
		poolCfg.MinConns = cfg.Database.MinConns
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)

	txOpts := postgres.DefaultTxOptions()
	txOpts.StatementTimeout = cfg.Database.StatementTimeout
	txOpts.LockTimeout = cfg.Database.LockTimeout
	txm := postgres.NewTxManager(pool, txOpts)
	a.TxManager = txm

	auditSvc, err := postgres.NewAuditService(txm)
	if err != nil {
		return fmt.Errorf("init audit service: %w", err)
	}

	movements := ledger_repo.NewMovementRepo(txm)
	balances := ledger_repo.NewBalanceRepo(txm)
	a.wireServices(txm, movements, balances, postgres.NewOutboxPublisher(txm), auditSvc,
		transfer_repo.NewRepo(txm),
		numerator.New(
			func(ctx context.Context) numerator.Querier { return txm.GetQuerier(ctx) },
			pool,
			numerator.Options{
				Strategy:  numerator.ParseStrategy(cfg.Transfer.NumberStrategy),
				RangeSize: cfg.Transfer.NumberRangeSize,
			},
		),
		reconciliation_repo.NewRepo(txm),
		reconciliation_repo.NewPOSSource(txm),
		reconciliation_repo.NewCashSource(txm),
	)
	a.AuditLog = auditSvc

	if cfg.Idempotency.Enabled {
		store := postgres.NewIdempotencyStore(txm, cfg.Idempotency.TTL)
		a.Idempotency = store
		a.IdempotencyClean = store
	}
	return nil
}

func (a *App) wireMemory(s *memory.Store) {
	auditLog := memory.NewAuditLog(s)
	a.wireServices(s, memory.NewMovementRepo(s), memory.NewBalanceRepo(s), memory.NewOutbox(s), auditLog,
		memory.NewTransferRepo(s),
		corenumerator.NewLocal(),
		memory.NewReconciliationRepo(s),
		memory.NewPOSSource(s),
		memory.NewCashSource(s),
	)
	a.AuditLog = auditLog

	if a.Config.Idempotency.Enabled {
		store := memory.NewIdempotencyStore(a.Config.Idempotency.TTL)
		a.Idempotency = store
		a.IdempotencyClean = store
	}
}

// movementStore is what both drivers' movement repositories provide.
type movementStore interface {
	ledger.MovementRepository
	reconciliation.LedgerSource
}

func (a *App) wireServices(
	txm tx.ReadOnlyManager,
	movements movementStore,
	balances ledger.BalanceRepository,
	events event.Publisher,
	recorder audit.Recorder,
	transfers transfer.Repository,
	numbers corenumerator.Generator,
	records reconciliation.Repository,
	pos reconciliation.POSSource,
	cash reconciliation.CashSource,
) {
	policy := LedgerPolicy(a.Config.Ledger)

	a.Projector = ledger.NewProjector(txm, movements, balances, events, ledger.ProjectorConfig{
		Policy:              policy,
		DedupReferenceTypes: a.Config.Ledger.ReferenceTypes(),
	})
	a.Queries = ledger.NewQueries(movements, balances)
	a.Auditor = ledger.NewAuditor(txm, movements, balances)
	a.Adjustments = adjustment.NewService(txm, a.Projector, movements, balances, recorder, policy)
	a.Transfers = transfer.NewService(txm, transfers, numbers, a.Projector, events, recorder, policy)
	a.Reconciliations = reconciliation.NewEngine(txm, records, movements, pos, cash, events, recorder,
		reconciliation.Config{
			Thresholds:                Thresholds(a.Config.Reconciliation),
			AllowRecomputeAfterReview: a.Config.Reconciliation.AllowRecomputeAfterReview,
			Policy:                    policy,
		})
}

// LedgerPolicy converts ledger config into the retry/timeout policy.
func LedgerPolicy(c config.LedgerConfig) tx.Policy {
	return tx.Policy{
		Timeout:    c.OperationTimeout,
		MaxRetries: c.MaxRetries,
		BaseDelay:  c.RetryBaseDelay,
	}
}

// Thresholds converts reconciliation config into engine thresholds.
func Thresholds(c config.ReconciliationConfig) reconciliation.Thresholds {
	return reconciliation.Thresholds{
		BalancedCashThreshold: c.BalancedCashThreshold,
		CashTolerance:         c.CashTolerance,
		QuantityTolerance:     types.NewQuantityFromDecimal(c.QuantityTolerance),
	}
}

// Close releases connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
