package reconciliation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/event"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	store     *memory.Store
	engine    *reconciliation.Engine
	projector *ledger.Projector
	outbox    *memory.Outbox
	auditLog  *memory.AuditLog

	tenant, branch, product id.ID
	start, end              time.Time
}

func newFixture(allowRecompute bool) *fixture {
	s := memory.New()
	movements := memory.NewMovementRepo(s)
	balances := memory.NewBalanceRepo(s)
	f := &fixture{
		store:    s,
		outbox:   memory.NewOutbox(s),
		auditLog: memory.NewAuditLog(s),
		tenant:   id.New(),
		branch:   id.New(),
		product:  id.New(),
	}
	now := time.Now().UTC()
	f.start = now.Add(-time.Hour).Truncate(time.Second)
	f.end = now.Add(time.Hour).Truncate(time.Second)

	f.projector = ledger.NewProjector(s, movements, balances, f.outbox, ledger.ProjectorConfig{Policy: tx.DefaultPolicy()})
	f.engine = reconciliation.NewEngine(s, memory.NewReconciliationRepo(s), movements,
		memory.NewPOSSource(s), memory.NewCashSource(s), f.outbox, f.auditLog,
		reconciliation.Config{
			Thresholds: reconciliation.Thresholds{
				BalancedCashThreshold: types.MustMoney("0"),
				CashTolerance:         types.MustMoney("500"),
				QuantityTolerance:     types.NewQuantity(0),
			},
			AllowRecomputeAfterReview: allowRecompute,
			Policy:                    tx.DefaultPolicy(),
		})
	return f
}

func (f *fixture) move(t *testing.T, mt entity.MovementType, rt entity.ReferenceType, qty int64) {
	t.Helper()
	_, err := f.projector.ApplyMovement(context.Background(), entity.StockMovement{
		TenantID:       f.tenant,
		ProductID:      f.product,
		LocationID:     f.branch,
		MovementType:   mt,
		SignedQuantity: mt.Signed(types.NewQuantity(qty)),
		ReferenceType:  rt,
		ReferenceID:    id.New().String(),
	}, ledger.ApplyOptions{})
	require.NoError(t, err)
}

// seedScenario loads one million units sold on both sides and a 500 cash shortfall.
func (f *fixture) seedScenario(t *testing.T) {
	t.Helper()
	f.move(t, entity.MovementIn, entity.ReferencePurchase, 1_200_000)
	f.move(t, entity.MovementOut, entity.ReferenceSale, 600_000)
	f.move(t, entity.MovementOut, entity.ReferenceSale, 400_000)
	// Not a sale: must not count.
	f.move(t, entity.MovementOut, entity.ReferenceProduction, 1_000)

	mid := f.start.Add(30 * time.Minute)
	f.store.AddSales(
		memory.SaleLine{TenantID: f.tenant, BranchID: f.branch, ProductID: f.product, Quantity: types.NewQuantity(1_000_000), Amount: types.MustMoney("500000"), SoldAt: mid},
		// Other branch.
		memory.SaleLine{TenantID: f.tenant, BranchID: id.New(), ProductID: f.product, Quantity: types.NewQuantity(7), Amount: types.MustMoney("1"), SoldAt: mid},
	)
	f.store.AddCashShifts(memory.CashShift{
		TenantID: f.tenant, BranchID: f.branch,
		Expected: types.MustMoney("500000"), Actual: types.MustMoney("499500"),
		ClosedAt: mid,
	})
}

func (f *fixture) request() reconciliation.Request {
	return reconciliation.Request{TenantID: f.tenant, BranchID: f.branch, PeriodStart: f.start, PeriodEnd: f.end}
}

func TestReconcileCashShortfall(t *testing.T) {
	f := newFixture(false)
	f.seedScenario(t)

	rec, err := f.engine.Reconcile(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(1_000_000), rec.POSTotal)
	assert.Equal(t, types.NewQuantity(1_000_000), rec.LedgerDerivedTotal)
	assert.True(t, rec.CashDifference.Equal(types.MustMoney("-500")))
	assert.Equal(t, reconciliation.StatusMinorIssues, rec.Status)
	assert.Equal(t, 1, rec.RunCount)
	assert.Len(t, f.outbox.EventsOfType(event.ReconciliationCompleted), 1)
}

func TestReconcileRequiresAttentionBeyondTolerance(t *testing.T) {
	f := newFixture(false)
	f.seedScenario(t)
	f.store.AddCashShifts(memory.CashShift{
		TenantID: f.tenant, BranchID: f.branch,
		Expected: types.MustMoney("0"), Actual: types.MustMoney("-1"),
		ClosedAt: f.start.Add(time.Minute),
	})

	rec, err := f.engine.Reconcile(context.Background(), f.request())
	require.NoError(t, err)
	assert.True(t, rec.CashDifference.Equal(types.MustMoney("-501")))
	assert.Equal(t, reconciliation.StatusRequiresAttention, rec.Status)
}

func TestReconcileIsIdempotentPerPeriod(t *testing.T) {
	f := newFixture(false)
	f.seedScenario(t)
	ctx := context.Background()

	first, err := f.engine.Reconcile(ctx, f.request())
	require.NoError(t, err)

	f.move(t, entity.MovementOut, entity.ReferenceSale, 5)
	second, err := f.engine.Reconcile(ctx, f.request())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.RunCount)
	assert.Equal(t, types.NewQuantity(1_000_005), second.LedgerDerivedTotal)
	assert.Equal(t, reconciliation.StatusRequiresAttention, second.Status)

	list, err := f.engine.List(ctx, reconciliation.ListFilter{TenantID: f.tenant})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReviewedRecordIsLocked(t *testing.T) {
	f := newFixture(false)
	f.seedScenario(t)
	ctx := context.Background()

	rec, err := f.engine.Reconcile(ctx, f.request())
	require.NoError(t, err)

	reviewed, err := f.engine.Review(ctx, f.tenant, rec.ID, "auditor-1", "shortfall explained")
	require.NoError(t, err)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, "auditor-1", *reviewed.ReviewedBy)

	_, err = f.engine.Reconcile(ctx, f.request())
	require.Error(t, err)
	assert.True(t, apperror.IsReviewedLocked(err))

	req := f.request()
	req.Override = true
	rec, err = f.engine.Reconcile(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.RunCount)
	require.NotNil(t, rec.ReviewedBy)
	assert.Equal(t, "auditor-1", *rec.ReviewedBy)
	require.NotNil(t, rec.ReviewedAt)
}

func TestRecomputeAfterReviewWhenAllowed(t *testing.T) {
	f := newFixture(true)
	f.seedScenario(t)
	ctx := context.Background()

	rec, err := f.engine.Reconcile(ctx, f.request())
	require.NoError(t, err)
	_, err = f.engine.Review(ctx, f.tenant, rec.ID, "auditor-1", "")
	require.NoError(t, err)

	rec, err = f.engine.Reconcile(ctx, f.request())
	require.NoError(t, err)
	assert.True(t, rec.IsReviewed())
	assert.Equal(t, 2, rec.RunCount)
}

func TestReviewTwice(t *testing.T) {
	f := newFixture(false)
	f.seedScenario(t)
	ctx := context.Background()

	rec, err := f.engine.Reconcile(ctx, f.request())
	require.NoError(t, err)

	first, err := f.engine.Review(ctx, f.tenant, rec.ID, "auditor-1", "ok")
	require.NoError(t, err)
	again, err := f.engine.Review(ctx, f.tenant, rec.ID, "auditor-1", "ok")
	require.NoError(t, err)
	assert.Equal(t, first.Version, again.Version)

	_, err = f.engine.Review(ctx, f.tenant, rec.ID, "auditor-2", "")
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	assert.Len(t, f.outbox.EventsOfType(event.ReconciliationReviewed), 1)
	assert.Len(t, f.auditLog.Entries("reconciliation", rec.ID.String()), 2)

	_, err = f.engine.Review(ctx, f.tenant, id.New(), "auditor-1", "")
	assert.True(t, apperror.IsNotFound(err))
}

func TestReconcileValidation(t *testing.T) {
	f := newFixture(false)
	req := f.request()
	req.PeriodStart, req.PeriodEnd = req.PeriodEnd, req.PeriodStart

	_, err := f.engine.Reconcile(context.Background(), req)
	assert.True(t, apperror.IsValidation(err))

	_, err = f.engine.Reconcile(context.Background(), reconciliation.Request{TenantID: f.tenant})
	assert.True(t, apperror.IsValidation(err))
}

func TestReconcileDoesNotTouchLedger(t *testing.T) {
	f := newFixture(false)
	f.seedScenario(t)
	before := len(f.outbox.EventsOfType(event.MovementRecorded))

	_, err := f.engine.Reconcile(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, before, len(f.outbox.EventsOfType(event.MovementRecorded)))
}

func TestRunBatch(t *testing.T) {
	f := newFixture(false)
	f.seedScenario(t)
	ctx := context.Background()

	quiet := id.New()
	_, err := f.projector.ApplyMovement(ctx, entity.StockMovement{
		TenantID:       f.tenant,
		ProductID:      f.product,
		LocationID:     quiet,
		MovementType:   entity.MovementIn,
		SignedQuantity: types.NewQuantity(1),
		ReferenceType:  entity.ReferencePurchase,
		ReferenceID:    "po",
	}, ledger.ApplyOptions{})
	require.NoError(t, err)

	report, err := f.engine.RunBatch(ctx, f.tenant, f.start, f.end)
	require.NoError(t, err)
	// The shop, the quiet location and the branch that only has POS sales.
	assert.Equal(t, 3, report.Reconciled)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 1, report.ByStatus[reconciliation.StatusMinorIssues])
	assert.Equal(t, 1, report.ByStatus[reconciliation.StatusBalanced])
	assert.Equal(t, 1, report.ByStatus[reconciliation.StatusRequiresAttention])
	assert.Equal(t, []id.ID{f.tenant}, report.Tenants)

	list, err := f.engine.List(ctx, reconciliation.ListFilter{TenantID: f.tenant})
	require.NoError(t, err)
	require.Len(t, list, 3)

	_, err = f.engine.Review(ctx, f.tenant, list[0].ID, "auditor-1", "")
	require.NoError(t, err)
	report, err = f.engine.RunBatch(ctx, f.tenant, f.start, f.end)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Reconciled)
	assert.Equal(t, 1, report.Skipped)

	// Other tenants are not touched.
	report, err = f.engine.RunBatch(ctx, id.New(), f.start, f.end)
	require.NoError(t, err)
	assert.Zero(t, report.Reconciled)
	assert.Empty(t, report.Tenants)
}

func TestRunBatchCoversBranchesWithoutMovements(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	mid := f.start.Add(30 * time.Minute)

	selling, counting := id.New(), id.New()
	f.store.AddSales(memory.SaleLine{
		TenantID: f.tenant, BranchID: selling, ProductID: f.product,
		Quantity: types.NewQuantity(20_000), Amount: types.MustMoney("40"), SoldAt: mid,
	})
	f.store.AddCashShifts(
		memory.CashShift{TenantID: f.tenant, BranchID: selling, Expected: types.MustMoney("40"), Actual: types.MustMoney("40"), ClosedAt: mid},
		memory.CashShift{TenantID: f.tenant, BranchID: counting, Expected: types.MustMoney("1000"), Actual: types.MustMoney("100"), ClosedAt: mid},
		// Outside the period.
		memory.CashShift{TenantID: f.tenant, BranchID: id.New(), Expected: types.MustMoney("1"), ClosedAt: f.end.Add(time.Minute)},
	)

	report, err := f.engine.RunBatch(ctx, id.ID{}, f.start, f.end)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Reconciled)
	assert.Equal(t, 2, report.ByStatus[reconciliation.StatusRequiresAttention])
	assert.Equal(t, []id.ID{f.tenant}, report.Tenants)

	rec, err := f.engine.Reconcile(ctx, reconciliation.Request{
		TenantID: f.tenant, BranchID: selling, PeriodStart: f.start, PeriodEnd: f.end,
	})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(20_000), rec.POSTotal)
	assert.Zero(t, rec.LedgerDerivedTotal)
	assert.Equal(t, reconciliation.StatusRequiresAttention, rec.Status)
}
