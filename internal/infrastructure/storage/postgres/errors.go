package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stockledger/internal/core/apperror"
)

// SQLSTATE codes the ledger reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeQueryCanceled        = "57014"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeRaiseException       = "P0001"
)

// MapError translates driver errors into the application taxonomy. AppErrors and nil
// pass through unchanged.
func MapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return apperror.NewConcurrencyConflict(pgErr.TableName, pgErr.Code).WithCause(err)
		case codeQueryCanceled, codeLockNotAvailable:
			return apperror.NewOperationTimeout(pgErr.Code).WithCause(err)
		case codeUniqueViolation:
			return apperror.NewConflict("duplicate record").
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case codeCheckViolation, codeRaiseException:
			return apperror.NewValidation(pgErr.Message).WithCause(err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperror.NewOperationTimeout("database").WithCause(err)
	}
	return err
}

// IsNoRows reports whether err is pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
