package adjustment

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	svc       *Service
	movements *memory.MovementRepo
	balances  *memory.BalanceRepo
	auditLog  *memory.AuditLog
	auditor   *ledger.Auditor
	tenant    id.ID
	product   id.ID
	location  id.ID
}

func newFixture() *fixture {
	s := memory.New()
	f := &fixture{
		movements: memory.NewMovementRepo(s),
		balances:  memory.NewBalanceRepo(s),
		auditLog:  memory.NewAuditLog(s),
		tenant:    id.New(),
		product:   id.New(),
		location:  id.New(),
	}
	projector := ledger.NewProjector(s, f.movements, f.balances, memory.NewOutbox(s), ledger.ProjectorConfig{Policy: tx.DefaultPolicy()})
	f.svc = NewService(s, projector, f.movements, f.balances, f.auditLog, tx.DefaultPolicy())
	f.auditor = ledger.NewAuditor(s, f.movements, f.balances)
	return f
}

func (f *fixture) key() entity.BalanceKey {
	return entity.BalanceKey{TenantID: f.tenant, ProductID: f.product, LocationID: f.location}
}

func (f *fixture) receive(t *testing.T, qty int64) {
	t.Helper()
	_, err := f.svc.RecordPurchaseReceipt(context.Background(), PurchaseReceipt{
		TenantID:    f.tenant,
		ProductID:   f.product,
		LocationID:  f.location,
		Quantity:    types.NewQuantity(qty),
		ReferenceID: id.New().String(),
	})
	require.NoError(t, err)
}

func (f *fixture) onHand(t *testing.T) types.Quantity {
	t.Helper()
	b, err := f.balances.Get(context.Background(), f.key())
	require.NoError(t, err)
	return b.Quantity
}

func (f *fixture) rowCount(t *testing.T) int {
	t.Helper()
	rows, err := f.movements.List(context.Background(), ledger.MovementFilter{TenantID: f.tenant, Limit: 1000})
	require.NoError(t, err)
	return len(rows)
}

func TestSaleReducesBalance(t *testing.T) {
	f := newFixture()
	f.receive(t, 100)

	res, err := f.svc.RecordMovement(context.Background(), MovementInput{
		TenantID:      f.tenant,
		ProductID:     f.product,
		LocationID:    f.location,
		Quantity:      types.NewQuantity(30),
		MovementType:  entity.MovementOut,
		ReferenceType: entity.ReferenceSale,
		ReferenceID:   "receipt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(70), res.OnHand)
	assert.Equal(t, types.NewQuantity(-30), res.Movement.SignedQuantity)
	assert.Equal(t, 2, f.rowCount(t))
}

func TestSaleBeyondStockIsRejected(t *testing.T) {
	f := newFixture()
	f.receive(t, 5)

	_, err := f.svc.RecordSale(context.Background(), SaleEvent{
		TenantID:    f.tenant,
		ProductID:   f.product,
		LocationID:  f.location,
		Quantity:    types.NewQuantity(10),
		ReferenceID: "receipt-2",
	})
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))
	assert.Equal(t, types.NewQuantity(5), f.onHand(t))
	assert.Equal(t, 1, f.rowCount(t))
}

func TestRecordMovementForcesSignByType(t *testing.T) {
	f := newFixture()
	f.receive(t, 10)

	res, err := f.svc.RecordMovement(context.Background(), MovementInput{
		TenantID:      f.tenant,
		ProductID:     f.product,
		LocationID:    f.location,
		Quantity:      types.NewQuantity(-4), // magnitude only
		MovementType:  entity.MovementIn,
		ReferenceType: entity.ReferenceReturn,
		ReferenceID:   "rma-1",
	})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(4), res.Movement.SignedQuantity)
	assert.Equal(t, types.NewQuantity(14), res.OnHand)
}

func TestRecordMovementValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.RecordMovement(ctx, MovementInput{
		TenantID: f.tenant, ProductID: f.product, LocationID: f.location,
		Quantity: types.NewQuantity(1), MovementType: "teleport", ReferenceType: entity.ReferenceSale,
	})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.RecordMovement(ctx, MovementInput{
		TenantID: f.tenant, ProductID: f.product, LocationID: f.location,
		MovementType: entity.MovementIn, ReferenceType: entity.ReferencePurchase,
	})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.RecordMovement(ctx, MovementInput{
		ProductID: f.product, LocationID: f.location, Quantity: types.NewQuantity(1),
		MovementType: entity.MovementIn, ReferenceType: entity.ReferencePurchase,
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestRecordMovementOutsideScope(t *testing.T) {
	f := newFixture()
	ctx := appctx.WithScope(context.Background(), &appctx.Scope{
		TenantID:    f.tenant,
		UserID:      "clerk",
		LocationIDs: []id.ID{id.New()},
	})

	_, err := f.svc.RecordMovement(ctx, MovementInput{
		TenantID: f.tenant, ProductID: f.product, LocationID: f.location,
		Quantity: types.NewQuantity(1), MovementType: entity.MovementIn, ReferenceType: entity.ReferencePurchase,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))
}

func TestAdjustStockStoresDeltaVerbatim(t *testing.T) {
	f := newFixture()
	f.receive(t, 10)
	ctx := context.Background()

	res, err := f.svc.AdjustStock(ctx, f.tenant, f.product, f.location, types.NewQuantity(-3), "breakage", "alice")
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(-3), res.Movement.SignedQuantity)
	assert.Equal(t, entity.MovementAdjustment, res.Movement.MovementType)
	assert.Equal(t, "alice", res.Movement.CreatedBy)
	require.NotNil(t, res.Movement.Notes)
	assert.Equal(t, "breakage", *res.Movement.Notes)
	assert.Equal(t, types.NewQuantity(7), res.OnHand)

	_, err = f.svc.AdjustStock(ctx, f.tenant, f.product, f.location, types.NewQuantity(1), "   ", "alice")
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.AdjustStock(ctx, f.tenant, f.product, f.location, types.NewQuantity(-8), "count", "alice")
	assert.True(t, apperror.IsInsufficientStock(err))
}

func TestPurchaseReceiptKeepsLotData(t *testing.T) {
	f := newFixture()
	expiry := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	cost := decimal.RequireFromString("12.50")

	res, err := f.svc.RecordPurchaseReceipt(context.Background(), PurchaseReceipt{
		TenantID:    f.tenant,
		ProductID:   f.product,
		LocationID:  f.location,
		Quantity:    types.NewQuantity(24),
		ReferenceID: "po-77",
		DocumentNo:  "GRN-0077",
		BatchNumber: "LOT-A",
		ExpiryDate:  &expiry,
		UnitCost:    &cost,
	})
	require.NoError(t, err)
	m := res.Movement
	assert.Equal(t, entity.ReferencePurchase, m.ReferenceType)
	require.NotNil(t, m.BatchNumber)
	assert.Equal(t, "LOT-A", *m.BatchNumber)
	require.NotNil(t, m.ExpiryDate)
	assert.True(t, expiry.Equal(*m.ExpiryDate))
	assert.True(t, m.UnitCost.Valid)
	assert.True(t, cost.Equal(m.UnitCost.Decimal))
	require.NotNil(t, m.ReferenceNumber)
	assert.Equal(t, "GRN-0077", *m.ReferenceNumber)
}

func TestProductionConsumptionAndOutput(t *testing.T) {
	f := newFixture()
	f.receive(t, 10)
	ctx := context.Background()
	finished := id.New()

	res, err := f.svc.RecordProductionConsumption(ctx, ProductionEvent{
		TenantID: f.tenant, ProductID: f.product, LocationID: f.location,
		Quantity: types.NewQuantity(4), ReferenceID: "mo-1",
	})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(6), res.OnHand)

	res, err = f.svc.RecordProductionOutput(ctx, ProductionEvent{
		TenantID: f.tenant, ProductID: finished, LocationID: f.location,
		Quantity: types.NewQuantity(2), ReferenceID: "mo-1",
	})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(2), res.OnHand)
	assert.Equal(t, entity.ReferenceProduction, res.Movement.ReferenceType)
}

func TestReverseAppendsCompensatingMovement(t *testing.T) {
	f := newFixture()
	f.receive(t, 10)
	ctx := context.Background()

	sale, err := f.svc.RecordSale(ctx, SaleEvent{
		TenantID: f.tenant, ProductID: f.product, LocationID: f.location,
		Quantity: types.NewQuantity(4), ReferenceID: "receipt-5",
	})
	require.NoError(t, err)

	rev, err := f.svc.Reverse(ctx, f.tenant, sale.Movement.ID, "voided at till", "manager", false)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(4), rev.Movement.SignedQuantity)
	assert.Equal(t, entity.ReferenceReversal, rev.Movement.ReferenceType)
	assert.Equal(t, types.NewQuantity(10), rev.OnHand)
	assert.Len(t, f.auditLog.Entries("stock_movement", rev.Movement.ReferenceID), 1)

	_, err = f.svc.Reverse(ctx, f.tenant, sale.Movement.ID, "again", "manager", false)
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	_, err = f.svc.Reverse(ctx, f.tenant, rev.Movement.ID, "undo", "manager", false)
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.Reverse(ctx, f.tenant, 9999, "missing", "manager", false)
	assert.True(t, apperror.IsNotFound(err))

	report, err := f.auditor.Verify(ctx, f.tenant, nil)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestRecordMovementRejectsReversalReference(t *testing.T) {
	f := newFixture()
	f.receive(t, 5)
	ctx := context.Background()
	rows, err := f.movements.List(ctx, ledger.MovementFilter{TenantID: f.tenant, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	receiptID := rows[0].ID

	_, err = f.svc.RecordMovement(ctx, MovementInput{
		TenantID: f.tenant, ProductID: f.product, LocationID: f.location,
		Quantity: types.NewQuantity(1), MovementType: entity.MovementAdjustment,
		ReferenceType: entity.ReferenceReversal, ReferenceID: strconv.FormatInt(receiptID, 10),
	})
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, 1, f.rowCount(t))

	rev, err := f.svc.Reverse(ctx, f.tenant, receiptID, "wrong product", "buyer", false)
	require.NoError(t, err)
	assert.True(t, rev.OnHand.IsZero())
}

func TestReversingReceiptRespectsStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	receipt, err := f.svc.RecordPurchaseReceipt(ctx, PurchaseReceipt{
		TenantID: f.tenant, ProductID: f.product, LocationID: f.location,
		Quantity: types.NewQuantity(5), ReferenceID: "po-1",
	})
	require.NoError(t, err)
	_, err = f.svc.RecordSale(ctx, SaleEvent{
		TenantID: f.tenant, ProductID: f.product, LocationID: f.location,
		Quantity: types.NewQuantity(3), ReferenceID: "r-1",
	})
	require.NoError(t, err)

	_, err = f.svc.Reverse(ctx, f.tenant, receipt.Movement.ID, "wrong supplier", "buyer", false)
	assert.True(t, apperror.IsInsufficientStock(err))

	res, err := f.svc.Reverse(ctx, f.tenant, receipt.Movement.ID, "wrong supplier", "buyer", true)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(-3), res.OnHand)
}

func TestConcurrentAdjustStock(t *testing.T) {
	f := newFixture()
	f.receive(t, 100)

	deltas := []int64{5, -3, 7, -10, 2, 2, -1, 4, -6, 9, 1, -2, 3, -4, 8, -5}
	var want int64 = 100
	for _, d := range deltas {
		want += d
	}

	var wg sync.WaitGroup
	errs := make([]error, len(deltas))
	for i, d := range deltas {
		wg.Add(1)
		go func(i int, d int64) {
			defer wg.Done()
			_, errs[i] = f.svc.AdjustStock(context.Background(), f.tenant, f.product, f.location,
				types.NewQuantity(d), "cycle count", "counter")
		}(i, d)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, types.NewQuantity(want), f.onHand(t))
	assert.Equal(t, len(deltas)+1, f.rowCount(t))

	report, err := f.auditor.Verify(context.Background(), f.tenant, nil)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}
