// Package ledger_repo provides the PostgreSQL movement ledger and balance projection.
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
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "stock_movements"
	balancesTable  = "inventory_balances"
)

var movementColumns = postgres.ExtractDBColumns[entity.StockMovement]()

// MovementRepo implements ledger.MovementRepository. The table is append-only; a
// trigger rejects UPDATE and DELETE as well.
type MovementRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ ledger.MovementRepository = (*MovementRepo)(nil)

// NewMovementRepo creates a movement repository.
func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *MovementRepo) insertQuery(m *entity.StockMovement) squirrel.InsertBuilder {
	return r.builder.Insert(movementsTable).
		Columns(
			"tenant_id", "product_id", "location_id",
			"movement_type", "signed_quantity",
			"reference_type", "reference_id", "reference_number",
			"batch_number", "expiry_date", "unit_cost",
			"created_by", "created_at", "notes",
		).
		Values(
			m.TenantID, m.ProductID, m.LocationID,
			m.MovementType, m.SignedQuantity,
			m.ReferenceType, m.ReferenceID, m.ReferenceNumber,
			m.BatchNumber, m.ExpiryDate, m.UnitCost,
			m.CreatedBy, m.CreatedAt, m.Notes,
		).
		Suffix("RETURNING id")
}

// Insert appends m. The identity column gives ids in commit-independent creation order.
func (r *MovementRepo) Insert(ctx context.Context, m *entity.StockMovement) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	sql, args, err := r.insertQuery(m).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&m.ID); err != nil {
		return postgres.MapError(ctx, fmt.Errorf("insert movement: %w", err))
	}
	return nil
}

func (r *MovementRepo) GetByID(ctx context.Context, tenantID id.ID, movementID int64) (entity.StockMovement, error) {
	sql, args, err := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "id": movementID}).
		ToSql()
	if err != nil {
		return entity.StockMovement{}, fmt.Errorf("build query: %w", err)
	}

	var m entity.StockMovement
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.StockMovement{}, apperror.NewNotFound("stock_movement", movementID)
		}
		return entity.StockMovement{}, postgres.MapError(ctx, fmt.Errorf("get movement: %w", err))
	}
	return m, nil
}

// listQuery builds the history query. Rows come back in ledger order.
func (r *MovementRepo) listQuery(f ledger.MovementFilter) squirrel.SelectBuilder {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"tenant_id": f.TenantID})

	if f.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *f.ProductID})
	}
	if f.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *f.LocationID})
	}
	if len(f.MovementTypes) > 0 {
		names := make([]string, len(f.MovementTypes))
		for i, mt := range f.MovementTypes {
			names[i] = string(mt)
		}
		q = q.Where(squirrel.Eq{"movement_type": names})
	}
	if f.ReferenceType != nil {
		q = q.Where(squirrel.Eq{"reference_type": *f.ReferenceType})
	}
	if f.ReferenceID != nil {
		q = q.Where(squirrel.Eq{"reference_id": *f.ReferenceID})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.Lt{"created_at": *f.To})
	}

	q = q.OrderBy("id")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

func (r *MovementRepo) List(ctx context.Context, f ledger.MovementFilter) ([]entity.StockMovement, error) {
	sql, args, err := r.listQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	movements := []entity.StockMovement{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, postgres.MapError(ctx, fmt.Errorf("list movements: %w", err))
	}
	return movements, nil
}

func (r *MovementRepo) FindByReference(ctx context.Context, key entity.BalanceKey, movementType entity.MovementType,
	referenceType entity.ReferenceType, referenceID string) (*entity.StockMovement, error) {
	sql, args, err := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{
			"tenant_id":      key.TenantID,
			"product_id":     key.ProductID,
			"location_id":    key.LocationID,
			"movement_type":  movementType,
			"reference_type": referenceType,
			"reference_id":   referenceID,
		}).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m entity.StockMovement
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, postgres.MapError(ctx, fmt.Errorf("find movement by reference: %w", err))
	}
	return &m, nil
}

func (r *MovementRepo) sumByKeyQuery(tenantID id.ID, locationID *id.ID) squirrel.SelectBuilder {
	q := r.builder.Select(
		"tenant_id", "product_id", "location_id",
		"SUM(signed_quantity)::BIGINT AS sum", "COUNT(*) AS count",
	).
		From(movementsTable).
		Where(squirrel.Eq{"tenant_id": tenantID})
	if locationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *locationID})
	}
	return q.GroupBy("tenant_id", "product_id", "location_id").
		OrderBy("location_id", "product_id")
}

func (r *MovementRepo) SumByKey(ctx context.Context, tenantID id.ID, locationID *id.ID) ([]ledger.KeySum, error) {
	sql, args, err := r.sumByKeyQuery(tenantID, locationID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var sums []ledger.KeySum
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &sums, sql, args...); err != nil {
		return nil, postgres.MapError(ctx, fmt.Errorf("sum movements: %w", err))
	}
	return sums, nil
}

func (r *MovementRepo) outboundQuery(f ledger.OutboundFilter) squirrel.SelectBuilder {
	return r.builder.Select("product_id", "(-SUM(signed_quantity))::BIGINT AS quantity").
		From(movementsTable).
		Where(squirrel.Eq{
			"tenant_id":      f.TenantID,
			"location_id":    f.LocationID,
			"reference_type": f.ReferenceType,
		}).
		Where(squirrel.Lt{"signed_quantity": 0}).
		Where(squirrel.GtOrEq{"created_at": f.From}).
		Where(squirrel.Lt{"created_at": f.To}).
		GroupBy("product_id")
}

func (r *MovementRepo) SumOutboundByProduct(ctx context.Context, f ledger.OutboundFilter) (map[id.ID]types.Quantity, error) {
	sql, args, err := r.outboundQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []struct {
		ProductID id.ID          `db:"product_id"`
		Quantity  types.Quantity `db:"quantity"`
	}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, postgres.MapError(ctx, fmt.Errorf("sum outbound movements: %w", err))
	}

	out := make(map[id.ID]types.Quantity, len(rows))
	for _, row := range rows {
		out[row.ProductID] = row.Quantity
	}
	return out, nil
}

func (r *MovementRepo) ActiveLocations(ctx context.Context, from, to time.Time) ([]ledger.TenantLocation, error) {
	sql, args, err := r.builder.Select("DISTINCT tenant_id", "location_id").
		From(movementsTable).
		Where(squirrel.GtOrEq{"created_at": from}).
		Where(squirrel.Lt{"created_at": to}).
		OrderBy("tenant_id", "location_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []ledger.TenantLocation
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, postgres.MapError(ctx, fmt.Errorf("active locations: %w", err))
	}
	return out, nil
}
