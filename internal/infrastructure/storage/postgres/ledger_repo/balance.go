package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

var balanceColumns = postgres.ExtractDBColumns[entity.InventoryBalance]()

// BalanceRepo implements ledger.BalanceRepository over inventory_balances.
type BalanceRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ ledger.BalanceRepository = (*BalanceRepo)(nil)

// NewBalanceRepo creates a balance repository.
func NewBalanceRepo(txm *postgres.TxManager) *BalanceRepo {
	return &BalanceRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func keyEq(key entity.BalanceKey) squirrel.Eq {
	return squirrel.Eq{
		"tenant_id":   key.TenantID,
		"product_id":  key.ProductID,
		"location_id": key.LocationID,
	}
}

// GetForUpdate materializes an empty row for unseen keys so the first movement of a key
// serializes on a real row lock, then locks it.
func (r *BalanceRepo) GetForUpdate(ctx context.Context, key entity.BalanceKey) (entity.InventoryBalance, error) {
	q := r.txm.GetQuerier(ctx)

	ensure, args, err := r.builder.Insert(balancesTable).
		Columns("tenant_id", "product_id", "location_id", "quantity", "version", "updated_at").
		Values(key.TenantID, key.ProductID, key.LocationID, 0, 0, time.Now().UTC()).
		Suffix("ON CONFLICT (tenant_id, product_id, location_id) DO NOTHING").
		ToSql()
	if err != nil {
		return entity.InventoryBalance{}, fmt.Errorf("build insert: %w", err)
	}
	if _, err := q.Exec(ctx, ensure, args...); err != nil {
		return entity.InventoryBalance{}, postgres.MapError(ctx, fmt.Errorf("ensure balance row: %w", err))
	}

	sql, args, err := r.selectByKey(key).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return entity.InventoryBalance{}, fmt.Errorf("build query: %w", err)
	}

	var b entity.InventoryBalance
	if err := pgxscan.Get(ctx, q, &b, sql, args...); err != nil {
		return entity.InventoryBalance{}, postgres.MapError(ctx, fmt.Errorf("lock balance: %w", err))
	}
	return b, nil
}

func (r *BalanceRepo) selectByKey(key entity.BalanceKey) squirrel.SelectBuilder {
	return r.builder.Select(balanceColumns...).
		From(balancesTable).
		Where(keyEq(key))
}

func (r *BalanceRepo) Get(ctx context.Context, key entity.BalanceKey) (entity.InventoryBalance, error) {
	sql, args, err := r.selectByKey(key).ToSql()
	if err != nil {
		return entity.InventoryBalance{}, fmt.Errorf("build query: %w", err)
	}

	var b entity.InventoryBalance
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.NewInventoryBalance(key), nil
		}
		return entity.InventoryBalance{}, postgres.MapError(ctx, fmt.Errorf("get balance: %w", err))
	}
	return b, nil
}

func (r *BalanceRepo) saveQuery(b *entity.InventoryBalance) squirrel.UpdateBuilder {
	return r.builder.Update(balancesTable).
		Set("quantity", b.Quantity).
		Set("last_movement_id", b.LastMovementID).
		Set("last_movement_at", b.LastMovementAt).
		Set("version", b.Version+1).
		Set("updated_at", b.UpdatedAt).
		Where(keyEq(b.BalanceKey)).
		Where(squirrel.Eq{"version": b.Version})
}

// Save is an optimistic write: zero rows affected means another writer moved the version.
func (r *BalanceRepo) Save(ctx context.Context, b *entity.InventoryBalance) error {
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}

	sql, args, err := r.saveQuery(b).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(ctx, fmt.Errorf("save balance: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrencyConflict("inventory_balance", b.BalanceKey.String())
	}
	b.Version++
	return nil
}

func (r *BalanceRepo) listByLocationQuery(tenantID, locationID id.ID, f ledger.BalanceFilter) squirrel.SelectBuilder {
	q := r.builder.Select(balanceColumns...).
		From(balancesTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "location_id": locationID})
	if f.ExcludeZero {
		q = q.Where(squirrel.NotEq{"quantity": 0})
	}
	if len(f.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"product_id": f.ProductIDs})
	}
	return q.OrderBy("product_id")
}

func (r *BalanceRepo) ListByLocation(ctx context.Context, tenantID, locationID id.ID, f ledger.BalanceFilter) ([]entity.InventoryBalance, error) {
	return r.selectAll(ctx, r.listByLocationQuery(tenantID, locationID, f))
}

func (r *BalanceRepo) ListByProduct(ctx context.Context, tenantID, productID id.ID) ([]entity.InventoryBalance, error) {
	return r.selectAll(ctx, r.builder.Select(balanceColumns...).
		From(balancesTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "product_id": productID}).
		OrderBy("location_id"))
}

func (r *BalanceRepo) List(ctx context.Context, tenantID id.ID, locationID *id.ID) ([]entity.InventoryBalance, error) {
	q := r.builder.Select(balanceColumns...).
		From(balancesTable).
		Where(squirrel.Eq{"tenant_id": tenantID})
	if locationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *locationID})
	}
	return r.selectAll(ctx, q.OrderBy("location_id", "product_id"))
}

func (r *BalanceRepo) selectAll(ctx context.Context, q squirrel.SelectBuilder) ([]entity.InventoryBalance, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	balances := []entity.InventoryBalance{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &balances, sql, args...); err != nil {
		return nil, postgres.MapError(ctx, fmt.Errorf("list balances: %w", err))
	}
	return balances, nil
}
