// Package transfer_repo persists inter-location transfers in PostgreSQL.
package transfer_repo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/transfer"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	transfersTable = "stock_transfers"
	linesTable     = "stock_transfer_lines"
)

var (
	headerColumns = postgres.ExtractDBColumns[transfer.Transfer]()
	lineColumns   = postgres.ExtractDBColumns[transfer.Line]()
)

// Repo implements transfer.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ transfer.Repository = (*Repo)(nil)

// NewRepo creates a transfer repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *Repo) Create(ctx context.Context, t *transfer.Transfer) error {
	t.Version = 1
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.RequestedAt
	}

	sql, args, err := r.builder.Insert(transfersTable).SetMap(postgres.StructToMap(t)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	q := r.txm.GetQuerier(ctx)
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(ctx, fmt.Errorf("insert transfer: %w", err))
	}

	lines := r.builder.Insert(linesTable).Columns(lineColumns...)
	for i := range t.Lines {
		t.Lines[i].TransferID = t.ID
		l := t.Lines[i]
		lines = lines.Values(l.TransferID, l.LineNo, l.ProductID, l.QuantityRequested,
			l.QuantityShipped, l.QuantityReceived, l.BatchNumber, l.ExpiryDate)
	}
	sql, args, err = lines.ToSql()
	if err != nil {
		return fmt.Errorf("build line insert: %w", err)
	}
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(ctx, fmt.Errorf("insert transfer lines: %w", err))
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, tenantID, transferID id.ID) (*transfer.Transfer, error) {
	return r.get(ctx, tenantID, transferID, false)
}

func (r *Repo) GetForUpdate(ctx context.Context, tenantID, transferID id.ID) (*transfer.Transfer, error) {
	return r.get(ctx, tenantID, transferID, true)
}

func (r *Repo) getQuery(tenantID, transferID id.ID, forUpdate bool) squirrel.SelectBuilder {
	q := r.builder.Select(headerColumns...).
		From(transfersTable).
		Where(squirrel.Eq{"id": transferID, "tenant_id": tenantID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

func (r *Repo) get(ctx context.Context, tenantID, transferID id.ID, forUpdate bool) (*transfer.Transfer, error) {
	sql, args, err := r.getQuery(tenantID, transferID, forUpdate).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	q := r.txm.GetQuerier(ctx)
	var t transfer.Transfer
	if err := pgxscan.Get(ctx, q, &t, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("transfer", transferID)
		}
		return nil, postgres.MapError(ctx, fmt.Errorf("get transfer: %w", err))
	}

	sql, args, err = r.builder.Select(lineColumns...).
		From(linesTable).
		Where(squirrel.Eq{"transfer_id": transferID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build line query: %w", err)
	}
	if err := pgxscan.Select(ctx, q, &t.Lines, sql, args...); err != nil {
		return nil, postgres.MapError(ctx, fmt.Errorf("get transfer lines: %w", err))
	}
	return &t, nil
}

// updateQuery writes every header column except the identity ones, guarded by version.
func (r *Repo) updateQuery(t *transfer.Transfer) squirrel.UpdateBuilder {
	values := postgres.StructToMap(t)
	for _, immutable := range []string{"id", "tenant_id", "number", "from_location_id", "to_location_id", "requested_at", "requested_by"} {
		delete(values, immutable)
	}
	values["version"] = t.Version + 1

	return r.builder.Update(transfersTable).
		SetMap(values).
		Where(squirrel.Eq{"id": t.ID, "tenant_id": t.TenantID}).
		Where(squirrel.Eq{"version": t.Version})
}

func (r *Repo) Update(ctx context.Context, t *transfer.Transfer) error {
	t.UpdatedAt = time.Now().UTC()

	sql, args, err := r.updateQuery(t).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tx, err := r.txm.RequireTx(ctx)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}

	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(ctx, fmt.Errorf("update transfer: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrencyConflict("transfer", t.ID.String())
	}

	batch := &pgx.Batch{}
	for _, l := range t.Lines {
		sql, args, err := r.builder.Update(linesTable).
			Set("quantity_shipped", l.QuantityShipped).
			Set("quantity_received", l.QuantityReceived).
			Set("batch_number", l.BatchNumber).
			Set("expiry_date", l.ExpiryDate).
			Where(squirrel.Eq{"transfer_id": t.ID, "line_no": l.LineNo}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build line update: %w", err)
		}
		batch.Queue(sql, args...)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range t.Lines {
		if _, err := results.Exec(); err != nil {
			return postgres.MapError(ctx, fmt.Errorf("update transfer line: %w", err))
		}
	}

	t.Version++
	return nil
}

func (r *Repo) listQuery(f transfer.ListFilter) squirrel.SelectBuilder {
	q := r.builder.Select(headerColumns...).
		From(transfersTable).
		Where(squirrel.Eq{"tenant_id": f.TenantID})

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		sort.Strings(statuses)
		q = q.Where(squirrel.Eq{"status": statuses})
	}
	if f.LocationID != nil {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"from_location_id": *f.LocationID},
			squirrel.Eq{"to_location_id": *f.LocationID},
		})
	}

	q = q.OrderBy("requested_at DESC", "id DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

// List returns headers only.
func (r *Repo) List(ctx context.Context, f transfer.ListFilter) ([]transfer.Transfer, error) {
	sql, args, err := r.listQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	out := []transfer.Transfer{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, postgres.MapError(ctx, fmt.Errorf("list transfers: %w", err))
	}
	return out, nil
}
