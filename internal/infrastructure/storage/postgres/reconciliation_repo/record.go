// Package reconciliation_repo persists reconciliation records and reads the POS and
// shift collaborator tables.
package reconciliation_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/infrastructure/storage/postgres"
)

const recordsTable = "stock_reconciliations"

var recordColumns = postgres.ExtractDBColumns[reconciliation.Record]()

// Repo implements reconciliation.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ reconciliation.Repository = (*Repo)(nil)

// NewRepo creates a record repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// lockName identifies a (tenant, branch, period) for the advisory lock.
func lockName(k reconciliation.Key) string {
	return fmt.Sprintf("reconciliation:%s:%s:%d:%d", k.TenantID, k.BranchID, k.PeriodStart.UnixNano(), k.PeriodEnd.UnixNano())
}

func keyEq(k reconciliation.Key) squirrel.Eq {
	return squirrel.Eq{
		"tenant_id":    k.TenantID,
		"branch_id":    k.BranchID,
		"period_start": k.PeriodStart,
		"period_end":   k.PeriodEnd,
	}
}

// GetByKeyForUpdate takes a transaction-scoped advisory lock on the key first, so two
// first-time reconciliations of the same period serialize even though no row exists yet.
func (r *Repo) GetByKeyForUpdate(ctx context.Context, key reconciliation.Key) (*reconciliation.Record, error) {
	q := r.txm.GetQuerier(ctx)
	if _, err := q.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", lockName(key)); err != nil {
		return nil, postgres.MapError(ctx, fmt.Errorf("lock reconciliation key: %w", err))
	}

	rec, err := r.getOne(ctx, r.builder.Select(recordColumns...).
		From(recordsTable).
		Where(keyEq(key)).
		Suffix("FOR UPDATE"))
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *Repo) byIDQuery(tenantID, recordID id.ID) squirrel.SelectBuilder {
	return r.builder.Select(recordColumns...).
		From(recordsTable).
		Where(squirrel.Eq{"id": recordID, "tenant_id": tenantID})
}

func (r *Repo) GetForUpdate(ctx context.Context, tenantID, recordID id.ID) (*reconciliation.Record, error) {
	return r.getOne(ctx, r.byIDQuery(tenantID, recordID).Suffix("FOR UPDATE"))
}

func (r *Repo) Get(ctx context.Context, tenantID, recordID id.ID) (*reconciliation.Record, error) {
	return r.getOne(ctx, r.byIDQuery(tenantID, recordID))
}

func (r *Repo) getOne(ctx context.Context, q squirrel.SelectBuilder) (*reconciliation.Record, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec reconciliation.Record
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("reconciliation", "")
		}
		return nil, postgres.MapError(ctx, fmt.Errorf("get reconciliation: %w", err))
	}
	return &rec, nil
}

// values maps a record to columns with discrepancies encoded as JSONB.
func values(rec *reconciliation.Record) (map[string]any, error) {
	m := postgres.StructToMap(rec)
	discrepancies := rec.Discrepancies
	if discrepancies == nil {
		discrepancies = []reconciliation.Discrepancy{}
	}
	raw, err := json.Marshal(discrepancies)
	if err != nil {
		return nil, fmt.Errorf("marshal discrepancies: %w", err)
	}
	m["discrepancies"] = string(raw)
	return m, nil
}

func (r *Repo) saveQuery(rec *reconciliation.Record) (string, []any, error) {
	vals, err := values(rec)
	if err != nil {
		return "", nil, err
	}

	if rec.Version == 0 {
		vals["version"] = int64(1)
		return r.builder.Insert(recordsTable).SetMap(vals).ToSql()
	}

	for _, immutable := range []string{"id", "tenant_id", "branch_id", "period_start", "period_end", "created_at"} {
		delete(vals, immutable)
	}
	vals["version"] = rec.Version + 1
	return r.builder.Update(recordsTable).
		SetMap(vals).
		Where(squirrel.Eq{"id": rec.ID, "tenant_id": rec.TenantID}).
		Where(squirrel.Eq{"version": rec.Version}).
		ToSql()
}

func (r *Repo) Save(ctx context.Context, rec *reconciliation.Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	sql, args, err := r.saveQuery(rec)
	if err != nil {
		return fmt.Errorf("build save: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(ctx, fmt.Errorf("save reconciliation: %w", err))
	}
	if rec.Version > 0 && tag.RowsAffected() == 0 {
		return apperror.NewConcurrencyConflict("reconciliation", rec.ID.String())
	}
	rec.Version++
	return nil
}

func (r *Repo) listQuery(f reconciliation.ListFilter) squirrel.SelectBuilder {
	q := r.builder.Select(recordColumns...).
		From(recordsTable).
		Where(squirrel.Eq{"tenant_id": f.TenantID})

	if f.BranchID != nil {
		q = q.Where(squirrel.Eq{"branch_id": *f.BranchID})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where(squirrel.Eq{"status": statuses})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"period_start": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.LtOrEq{"period_end": *f.To})
	}
	if f.Reviewed != nil {
		if *f.Reviewed {
			q = q.Where("reviewed_at IS NOT NULL")
		} else {
			q = q.Where("reviewed_at IS NULL")
		}
	}

	q = q.OrderBy("period_start DESC", "branch_id")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

func (r *Repo) List(ctx context.Context, f reconciliation.ListFilter) ([]reconciliation.Record, error) {
	sql, args, err := r.listQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	out := []reconciliation.Record{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, postgres.MapError(ctx, fmt.Errorf("list reconciliations: %w", err))
	}
	return out, nil
}
