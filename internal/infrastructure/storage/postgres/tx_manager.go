package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/tx"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/tx")

var _ tx.ReadOnlyManager = (*TxManager)(nil)

// ErrNoTransaction is returned by RequireTx outside RunInTransaction.
var ErrNoTransaction = errors.New("postgres: operation requires a transaction")

// TxOptions are applied with SET LOCAL at the start of every transaction.
// Zero durations keep the server defaults.
type TxOptions struct {
	StatementTimeout time.Duration
	LockTimeout      time.Duration
}

func DefaultTxOptions() TxOptions {
	return TxOptions{StatementTimeout: 30 * time.Second, LockTimeout: 5 * time.Second}
}

// TxManager keeps the open pgx.Tx in the context. Writes run READ COMMITTED and
// rely on SELECT ... FOR UPDATE on balance rows; reads run in a REPEATABLE READ
// snapshot. Every error leaving it goes through MapError.
type TxManager struct {
	pool *pgxpool.Pool
	opts TxOptions
}

func NewTxManager(pool *Pool, opts TxOptions) *TxManager {
	return &TxManager{pool: pool.Pool, opts: opts}
}

type txKey struct{}

// Tx is the transaction stored in the context.
type Tx struct {
	pgx.Tx
	ReadOnly bool
}

func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}, fn)
}

func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (m *TxManager) InTransaction(ctx context.Context) bool {
	return m.GetTx(ctx) != nil
}

func (m *TxManager) run(ctx context.Context, txOpts pgx.TxOptions, fn func(ctx context.Context) error) error {
	if existing := m.GetTx(ctx); existing != nil {
		if existing.ReadOnly && txOpts.AccessMode == pgx.ReadWrite {
			return errors.New("postgres: write transaction requested inside a read-only one")
		}
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "db.transaction", trace.WithAttributes(
		attribute.String("db.tx.isolation", string(txOpts.IsoLevel)),
		attribute.Bool("db.tx.read_only", txOpts.AccessMode == pgx.ReadOnly),
	))
	defer span.End()

	err := MapError(ctx, m.begin(ctx, txOpts, fn))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (m *TxManager) begin(ctx context.Context, txOpts pgx.TxOptions, fn func(ctx context.Context) error) error {
	pgTx, err := m.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	// rollback must not inherit a cancelled request context
	rollback := func(cause error) error {
		if rbErr := pgTx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Error(ctx, "rollback failed", "error", rbErr, "cause", cause)
		}
		return cause
	}

	if err := m.applyTimeouts(ctx, pgTx); err != nil {
		return rollback(err)
	}

	txCtx := context.WithValue(ctx, txKey{}, &Tx{Tx: pgTx, ReadOnly: txOpts.AccessMode == pgx.ReadOnly})
	if err := fn(txCtx); err != nil {
		return rollback(err)
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (m *TxManager) applyTimeouts(ctx context.Context, pgTx pgx.Tx) error {
	settings := []struct {
		name string
		d    time.Duration
	}{
		{"statement_timeout", m.opts.StatementTimeout},
		{"lock_timeout", m.opts.LockTimeout},
	}
	for _, s := range settings {
		if s.d <= 0 {
			continue
		}
		if _, err := pgTx.Exec(ctx, fmt.Sprintf("SET LOCAL %s = %d", s.name, s.d.Milliseconds())); err != nil {
			return fmt.Errorf("set %s: %w", s.name, err)
		}
	}
	return nil
}

// GetTx returns the transaction carried by ctx, or nil.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	t, _ := ctx.Value(txKey{}).(*Tx)
	return t
}

// RequireTx is GetTx for statements that must never run in autocommit.
func (m *TxManager) RequireTx(ctx context.Context) (*Tx, error) {
	if t := m.GetTx(ctx); t != nil {
		return t, nil
	}
	return nil, ErrNoTransaction
}

// Querier is what pgxpool.Pool and pgx.Tx have in common.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns the open transaction if there is one, else the pool.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := m.GetTx(ctx); t != nil {
		return t.Tx
	}
	return m.pool
}
