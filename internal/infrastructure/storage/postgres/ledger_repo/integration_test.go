//go:build integration

package ledger_repo_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/migration"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
)

type pgHarness struct {
	pool      *postgres.Pool
	txm       *postgres.TxManager
	movements *ledger_repo.MovementRepo
	balances  *ledger_repo.BalanceRepo
	projector *ledger.Projector
	auditor   *ledger.Auditor
}

func newPGHarness(t *testing.T) *pgHarness {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stockledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migration.New(dsn, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	txm := postgres.NewTxManager(pool, postgres.DefaultTxOptions())
	h := &pgHarness{
		pool:      pool,
		txm:       txm,
		movements: ledger_repo.NewMovementRepo(txm),
		balances:  ledger_repo.NewBalanceRepo(txm),
	}
	outbox := postgres.NewOutboxPublisher(txm)
	h.projector = ledger.NewProjector(txm, h.movements, h.balances, outbox, ledger.ProjectorConfig{
		Policy: tx.DefaultPolicy(),
	})
	h.auditor = ledger.NewAuditor(txm, h.movements, h.balances)
	return h
}

func candidate(key entity.BalanceKey, mt entity.MovementType, qty int64, ref string) entity.StockMovement {
	rt := entity.ReferencePurchase
	if mt == entity.MovementOut {
		rt = entity.ReferenceSale
	}
	return entity.StockMovement{
		TenantID: key.TenantID, ProductID: key.ProductID, LocationID: key.LocationID,
		MovementType: mt, SignedQuantity: mt.Signed(types.NewQuantity(qty)),
		ReferenceType: rt, ReferenceID: ref, CreatedBy: "test",
	}
}

func TestPostgresLedger(t *testing.T) {
	h := newPGHarness(t)
	ctx := context.Background()

	t.Run("receive then oversell", func(t *testing.T) {
		key := entity.BalanceKey{TenantID: id.New(), ProductID: id.New(), LocationID: id.New()}

		res, err := h.projector.ApplyMovement(ctx, candidate(key, entity.MovementIn, 100, "po-1"), ledger.ApplyOptions{})
		require.NoError(t, err)
		assert.Equal(t, types.NewQuantity(100), res.Balance.Quantity)

		_, err = h.projector.ApplyMovement(ctx, candidate(key, entity.MovementOut, 30, "sale-1"), ledger.ApplyOptions{})
		require.NoError(t, err)

		_, err = h.projector.ApplyMovement(ctx, candidate(key, entity.MovementOut, 80, "sale-2"), ledger.ApplyOptions{})
		require.Error(t, err)
		assert.True(t, apperror.IsInsufficientStock(err))

		b, err := h.balances.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, types.NewQuantity(70), b.Quantity)

		history, err := h.movements.List(ctx, ledger.MovementFilter{TenantID: key.TenantID, ProductID: &key.ProductID})
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Less(t, history[0].ID, history[1].ID)
	})

	t.Run("concurrent decrements never oversell", func(t *testing.T) {
		key := entity.BalanceKey{TenantID: id.New(), ProductID: id.New(), LocationID: id.New()}
		_, err := h.projector.ApplyMovement(ctx, candidate(key, entity.MovementIn, 10, "po-2"), ledger.ApplyOptions{})
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.projector.ApplyMovement(ctx, candidate(key, entity.MovementOut, 1, id.New().String()), ledger.ApplyOptions{})
				if err == nil {
					mu.Lock()
					success++
					mu.Unlock()
					return
				}
				assert.True(t, apperror.IsInsufficientStock(err), "unexpected error: %v", err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 10, success)
		b, err := h.balances.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, b.Quantity.IsZero())

		report, err := h.auditor.Verify(ctx, key.TenantID, nil)
		require.NoError(t, err)
		assert.True(t, report.Consistent())
	})

	t.Run("ledger rows are append-only", func(t *testing.T) {
		key := entity.BalanceKey{TenantID: id.New(), ProductID: id.New(), LocationID: id.New()}
		res, err := h.projector.ApplyMovement(ctx, candidate(key, entity.MovementIn, 5, "po-3"), ledger.ApplyOptions{})
		require.NoError(t, err)

		_, err = h.pool.Exec(ctx, "UPDATE stock_movements SET signed_quantity = 1 WHERE id = $1", res.Movement.ID)
		require.Error(t, err)
		_, err = h.pool.Exec(ctx, "DELETE FROM stock_movements WHERE id = $1", res.Movement.ID)
		require.Error(t, err)
	})

	t.Run("outbound sums by product", func(t *testing.T) {
		key := entity.BalanceKey{TenantID: id.New(), ProductID: id.New(), LocationID: id.New()}
		start := time.Now().UTC().Add(-time.Minute)
		_, err := h.projector.ApplyBatch(ctx, []entity.StockMovement{
			candidate(key, entity.MovementIn, 50, "po-4"),
			candidate(key, entity.MovementOut, 7, "sale-a"),
			candidate(key, entity.MovementOut, 3, "sale-b"),
		}, ledger.ApplyOptions{})
		require.NoError(t, err)

		sums, err := h.movements.SumOutboundByProduct(ctx, ledger.OutboundFilter{
			TenantID: key.TenantID, LocationID: key.LocationID, ReferenceType: entity.ReferenceSale,
			From: start, To: time.Now().UTC().Add(time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, types.NewQuantity(10), sums[key.ProductID])
	})
}
