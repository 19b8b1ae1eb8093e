package reconciliation_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/infrastructure/storage/postgres"
)

// POSSource reads completed sale lines from pos_sale_lines.
type POSSource struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ reconciliation.POSSource = (*POSSource)(nil)

// NewPOSSource creates a POS source.
func NewPOSSource(txm *postgres.TxManager) *POSSource {
	return &POSSource{txm: txm, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

func (p *POSSource) salesQuery(tenantID, branchID id.ID, from, to time.Time) squirrel.SelectBuilder {
	return p.builder.Select("product_id", "SUM(quantity)::BIGINT AS quantity", "SUM(amount) AS amount").
		From("pos_sale_lines").
		Where(squirrel.Eq{"tenant_id": tenantID, "branch_id": branchID}).
		Where(squirrel.GtOrEq{"sold_at": from}).
		Where(squirrel.Lt{"sold_at": to}).
		GroupBy("product_id")
}

func (p *POSSource) SalesSummary(ctx context.Context, tenantID, branchID id.ID, from, to time.Time) (reconciliation.SalesSummary, error) {
	sql, args, err := p.salesQuery(tenantID, branchID, from, to).ToSql()
	if err != nil {
		return reconciliation.SalesSummary{}, fmt.Errorf("build query: %w", err)
	}

	// pos_sale_lines.quantity uses the ledger's fixed-point scale (1e4).
	var rows []struct {
		ProductID id.ID           `db:"product_id"`
		Quantity  types.Quantity  `db:"quantity"`
		Amount    decimal.Decimal `db:"amount"`
	}
	if err := pgxscan.Select(ctx, p.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return reconciliation.SalesSummary{}, postgres.MapError(ctx, fmt.Errorf("sum pos sales: %w", err))
	}

	sum := reconciliation.SalesSummary{ByProduct: make(map[id.ID]types.Quantity, len(rows))}
	for _, row := range rows {
		sum.TotalQuantity += row.Quantity
		sum.TotalAmount = sum.TotalAmount.Add(row.Amount)
		sum.ByProduct[row.ProductID] = row.Quantity
	}
	return sum, nil
}

func (p *POSSource) ActiveBranches(ctx context.Context, from, to time.Time) ([]reconciliation.TenantBranch, error) {
	return activeBranches(ctx, p.txm, p.builder, "pos_sale_lines", "sold_at", from, to)
}

// CashSource reads closed shifts from cash_shifts.
type CashSource struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ reconciliation.CashSource = (*CashSource)(nil)

// NewCashSource creates a cash source.
func NewCashSource(txm *postgres.TxManager) *CashSource {
	return &CashSource{txm: txm, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

func (c *CashSource) cashQuery(tenantID, branchID id.ID, from, to time.Time) squirrel.SelectBuilder {
	return c.builder.Select("COALESCE(SUM(expected), 0) AS expected", "COALESCE(SUM(actual), 0) AS actual").
		From("cash_shifts").
		Where(squirrel.Eq{"tenant_id": tenantID, "branch_id": branchID}).
		Where(squirrel.GtOrEq{"closed_at": from}).
		Where(squirrel.Lt{"closed_at": to})
}

func (c *CashSource) CashSummary(ctx context.Context, tenantID, branchID id.ID, from, to time.Time) (reconciliation.CashSummary, error) {
	sql, args, err := c.cashQuery(tenantID, branchID, from, to).ToSql()
	if err != nil {
		return reconciliation.CashSummary{}, fmt.Errorf("build query: %w", err)
	}

	var sum reconciliation.CashSummary
	if err := c.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&sum.Expected, &sum.Actual); err != nil {
		return reconciliation.CashSummary{}, postgres.MapError(ctx, fmt.Errorf("sum cash shifts: %w", err))
	}
	return sum, nil
}

func (c *CashSource) ActiveBranches(ctx context.Context, from, to time.Time) ([]reconciliation.TenantBranch, error) {
	return activeBranches(ctx, c.txm, c.builder, "cash_shifts", "closed_at", from, to)
}

func activeBranchesQuery(builder squirrel.StatementBuilderType, table, timeColumn string, from, to time.Time) squirrel.SelectBuilder {
	return builder.Select("tenant_id", "branch_id").
		Distinct().
		From(table).
		Where(squirrel.GtOrEq{timeColumn: from}).
		Where(squirrel.Lt{timeColumn: to}).
		OrderBy("tenant_id", "branch_id")
}

func activeBranches(ctx context.Context, txm *postgres.TxManager, builder squirrel.StatementBuilderType, table, timeColumn string, from, to time.Time) ([]reconciliation.TenantBranch, error) {
	sql, args, err := activeBranchesQuery(builder, table, timeColumn, from, to).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []reconciliation.TenantBranch
	if err := pgxscan.Select(ctx, txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, postgres.MapError(ctx, fmt.Errorf("list active branches in %s: %w", table, err))
	}
	return out, nil
}
