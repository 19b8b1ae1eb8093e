package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/event"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/memory"
)

type harness struct {
	store     *memory.Store
	movements *memory.MovementRepo
	balances  *memory.BalanceRepo
	outbox    *memory.Outbox
	projector *ledger.Projector
	auditor   *ledger.Auditor
}

func newHarness(dedup ...entity.ReferenceType) *harness {
	s := memory.New()
	h := &harness{
		store:     s,
		movements: memory.NewMovementRepo(s),
		balances:  memory.NewBalanceRepo(s),
		outbox:    memory.NewOutbox(s),
	}
	h.projector = ledger.NewProjector(s, h.movements, h.balances, h.outbox, ledger.ProjectorConfig{
		Policy:              tx.DefaultPolicy(),
		DedupReferenceTypes: dedup,
	})
	h.auditor = ledger.NewAuditor(s, h.movements, h.balances)
	return h
}

func movement(key entity.BalanceKey, mt entity.MovementType, qty int64, rt entity.ReferenceType, ref string) entity.StockMovement {
	return entity.StockMovement{
		TenantID:       key.TenantID,
		ProductID:      key.ProductID,
		LocationID:     key.LocationID,
		MovementType:   mt,
		SignedQuantity: mt.Signed(types.NewQuantity(qty)),
		ReferenceType:  rt,
		ReferenceID:    ref,
	}
}

func newKey() entity.BalanceKey {
	return entity.BalanceKey{TenantID: id.New(), ProductID: id.New(), LocationID: id.New()}
}

func (h *harness) seed(t *testing.T, key entity.BalanceKey, qty int64) {
	t.Helper()
	_, err := h.projector.ApplyMovement(context.Background(),
		movement(key, entity.MovementIn, qty, entity.ReferencePurchase, "seed"), ledger.ApplyOptions{})
	require.NoError(t, err)
}

func (h *harness) assertConsistent(t *testing.T, tenantID id.ID) {
	t.Helper()
	report, err := h.auditor.Verify(context.Background(), tenantID, nil)
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "mismatches: %+v", report.Mismatches)
}

func TestApplyMovementDecreasesBalance(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	key := newKey()
	h.seed(t, key, 100)

	res, err := h.projector.ApplyMovement(ctx, movement(key, entity.MovementOut, 30, entity.ReferenceSale, "sale-1"), ledger.ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(70), res.Balance.Quantity)
	assert.Equal(t, types.NewQuantity(-30), res.Movement.SignedQuantity)
	assert.NotZero(t, res.Movement.ID)
	assert.False(t, res.Movement.CreatedAt.IsZero())
	require.NotNil(t, res.Balance.LastMovementID)
	assert.Equal(t, res.Movement.ID, *res.Balance.LastMovementID)

	assert.Len(t, h.outbox.EventsOfType(event.MovementRecorded), 2)
	h.assertConsistent(t, key.TenantID)
}

func TestApplyMovementRejectsNegativeBalance(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	key := newKey()
	h.seed(t, key, 5)

	_, err := h.projector.ApplyMovement(ctx, movement(key, entity.MovementOut, 10, entity.ReferenceSale, "sale-1"), ledger.ApplyOptions{})
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	b, err := h.balances.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(5), b.Quantity)

	rows, err := h.movements.List(ctx, ledger.MovementFilter{TenantID: key.TenantID})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Len(t, h.outbox.Events(), 1)
}

func TestApplyMovementAllowNegative(t *testing.T) {
	h := newHarness()
	key := newKey()

	res, err := h.projector.ApplyMovement(context.Background(),
		movement(key, entity.MovementOut, 3, entity.ReferenceSale, "backorder"), ledger.ApplyOptions{AllowNegative: true})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(-3), res.Balance.Quantity)

	// An increase below zero is always accepted.
	res, err = h.projector.ApplyMovement(context.Background(),
		movement(key, entity.MovementIn, 1, entity.ReferencePurchase, "po-1"), ledger.ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(-2), res.Balance.Quantity)
	h.assertConsistent(t, key.TenantID)
}

func TestApplyBatchIsAtomic(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	a, b := newKey(), newKey()
	b.TenantID = a.TenantID
	h.seed(t, a, 10)
	h.seed(t, b, 1)

	_, err := h.projector.ApplyBatch(ctx, []entity.StockMovement{
		movement(a, entity.MovementTransferOut, 5, entity.ReferenceTransfer, "t1"),
		movement(b, entity.MovementTransferOut, 5, entity.ReferenceTransfer, "t1"),
	}, ledger.ApplyOptions{})
	assert.True(t, apperror.IsInsufficientStock(err))

	got, err := h.balances.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(10), got.Quantity)

	rows, err := h.movements.List(ctx, ledger.MovementFilter{TenantID: a.TenantID})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestApplyBatchKeepsInputOrder(t *testing.T) {
	h := newHarness()
	a, b := newKey(), newKey()
	b.TenantID = a.TenantID

	results, err := h.projector.ApplyBatch(context.Background(), []entity.StockMovement{
		movement(b, entity.MovementIn, 2, entity.ReferencePurchase, "po"),
		movement(a, entity.MovementIn, 1, entity.ReferencePurchase, "po"),
	}, ledger.ApplyOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, b.ProductID, results[0].Movement.ProductID)
	assert.Equal(t, a.ProductID, results[1].Movement.ProductID)
}

func TestApplyMovementValidation(t *testing.T) {
	h := newHarness()
	m := movement(newKey(), entity.MovementIn, 1, entity.ReferencePurchase, "po")
	m.SignedQuantity = 0

	_, err := h.projector.ApplyMovement(context.Background(), m, ledger.ApplyOptions{})
	assert.True(t, apperror.IsValidation(err))
}

func TestDedupReplaysReferencedMovement(t *testing.T) {
	h := newHarness(entity.ReferenceSale)
	ctx := context.Background()
	key := newKey()
	h.seed(t, key, 10)

	first, err := h.projector.ApplyMovement(ctx, movement(key, entity.MovementOut, 2, entity.ReferenceSale, "sale-9"), ledger.ApplyOptions{})
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := h.projector.ApplyMovement(ctx, movement(key, entity.MovementOut, 2, entity.ReferenceSale, "sale-9"), ledger.ApplyOptions{})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Movement.ID, again.Movement.ID)
	assert.Equal(t, types.NewQuantity(8), again.Balance.Quantity)

	// Purchases are not deduplicated.
	h.seed(t, key, 1)
	h.seed(t, key, 1)
	b, err := h.balances.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(10), b.Quantity)
}

func TestConcurrentAdjustmentsConverge(t *testing.T) {
	h := newHarness()
	key := newKey()
	h.seed(t, key, 50)

	const workers = 40
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	var want int64 = 50
	for i := 0; i < workers; i++ {
		delta := int64(i%5) - 1 // -1..3
		if delta == 0 {
			delta = 2
		}
		want += delta
		wg.Add(1)
		go func(delta int64) {
			defer wg.Done()
			m := movement(key, entity.MovementAdjustment, delta, entity.ReferenceAdjustment, "adj")
			_, err := h.projector.ApplyMovement(context.Background(), m, ledger.ApplyOptions{})
			errs <- err
		}(delta)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	b, err := h.balances.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(want), b.Quantity)
	h.assertConsistent(t, key.TenantID)
}

func TestCheckNonNegative(t *testing.T) {
	b := entity.NewInventoryBalance(newKey())
	b.Quantity = types.NewQuantity(5)

	assert.NoError(t, ledger.CheckNonNegative(b, types.NewQuantity(-5), ledger.ApplyOptions{}))
	assert.Error(t, ledger.CheckNonNegative(b, types.NewQuantity(-6), ledger.ApplyOptions{}))
	assert.NoError(t, ledger.CheckNonNegative(b, types.NewQuantity(-6), ledger.ApplyOptions{AllowNegative: true}))

	b.Quantity = types.NewQuantity(-5)
	assert.NoError(t, ledger.CheckNonNegative(b, types.NewQuantity(1), ledger.ApplyOptions{}))
}
