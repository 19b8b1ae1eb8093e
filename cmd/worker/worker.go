package main

import (
	"context"
	"strconv"
	"time"

	"stockledger/internal/app"
	"stockledger/internal/config"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/infrastructure/cache"
	"stockledger/pkg/logger"
)

// Relay moves pending outbox messages to the broker.
type Relay interface {
	ProcessBatch(ctx context.Context) (int, error)
	PurgePublished(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Batcher runs the periodic reconciliation.
type Batcher interface {
	RunBatch(ctx context.Context, tenantID id.ID, from, to time.Time) (reconciliation.BatchReport, error)
}

// Verifier runs the balance integrity audit.
type Verifier interface {
	Verify(ctx context.Context, tenantID id.ID, locationID *id.ID) (ledger.AuditReport, error)
}

// WorkerDeps are the jobs' collaborators. Idempotency may be nil.
type WorkerDeps struct {
	Config      *config.Config
	Relay       Relay
	Engine      Batcher
	Auditor     Verifier
	Idempotency app.Cleaner
	Locker      cache.Locker
}

// Worker runs the background loops: outbox relay, reconciliation batch and cleanup.
type Worker struct {
	deps WorkerDeps
	log  *logger.Logger
	now  func() time.Time
}

func NewWorker(deps WorkerDeps, log *logger.Logger) *Worker {
	return &Worker{
		deps: deps,
		log:  log.WithComponent("worker"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	cfg := w.deps.Config

	outboxTicker := time.NewTicker(cfg.Outbox.PollInterval)
	defer outboxTicker.Stop()

	batchTicker := time.NewTicker(cfg.Reconciliation.BatchInterval)
	defer batchTicker.Stop()

	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	// The previous period may have closed while no worker was running.
	w.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-outboxTicker.C:
			w.relayOutbox(ctx)
		case <-batchTicker.C:
			w.reconcile(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *Worker) relayOutbox(ctx context.Context) {
	for {
		n, err := w.deps.Relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox relay failed", "error", err)
			return
		}
		if n > 0 {
			w.log.Debugw("relayed outbox batch", "count", n)
		}
		if n < w.deps.Config.Outbox.BatchSize || ctx.Err() != nil {
			return
		}
	}
}

// reconcile runs the batch for the last closed period under the distributed lock, then
// audits the balances of every tenant it touched.
func (w *Worker) reconcile(ctx context.Context) {
	from, to := batchWindow(w.now(), w.deps.Config.Reconciliation.BatchPeriod)
	lockName := "reconciliation:" + strconv.FormatInt(from.Unix(), 10)

	release, ok, err := w.deps.Locker.TryLock(ctx, lockName, w.deps.Config.Reconciliation.LockTTL)
	if err != nil {
		w.log.Errorw("failed to acquire reconciliation lock", "error", err)
		return
	}
	if !ok {
		w.log.Debugw("reconciliation batch already running elsewhere", "period_start", from)
		return
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			w.log.Warnw("failed to release reconciliation lock", "error", err)
		}
	}()

	report, err := w.deps.Engine.RunBatch(ctx, id.ID{}, from, to)
	if err != nil {
		w.log.Errorw("reconciliation batch failed", "period_start", from, "error", err)
		return
	}

	for _, tenantID := range report.Tenants {
		audit, err := w.deps.Auditor.Verify(ctx, tenantID, nil)
		if err != nil {
			w.log.Errorw("balance audit failed", "tenant_id", tenantID, "error", err)
			continue
		}
		if !audit.Consistent() {
			w.log.Errorw("balance audit found mismatches",
				"tenant_id", tenantID,
				"checked_keys", audit.CheckedKeys,
				"mismatches", len(audit.Mismatches),
			)
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if w.deps.Idempotency != nil {
		n, err := w.deps.Idempotency.CleanupExpired(ctx)
		if err != nil {
			w.log.Warnw("idempotency cleanup failed", "error", err)
		} else if n > 0 {
			w.log.Infow("cleaned up idempotency keys", "count", n)
		}
	}

	n, err := w.deps.Relay.PurgePublished(ctx, w.deps.Config.Outbox.Retention)
	if err != nil {
		w.log.Warnw("outbox purge failed", "error", err)
	} else if n > 0 {
		w.log.Infow("purged published outbox messages", "count", n)
	}
}

// batchWindow returns the last fully closed period [from, to) aligned to period.
func batchWindow(now time.Time, period time.Duration) (time.Time, time.Time) {
	to := now.UTC().Truncate(period)
	return to.Add(-period), to
}
