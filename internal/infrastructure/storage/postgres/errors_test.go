package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/apperror"
)

func TestMapError(t *testing.T) {
	ctx := context.Background()
	wrap := func(code string) error {
		return fmt.Errorf("update balance: %w", &pgconn.PgError{Code: code, Message: "x"})
	}

	tests := []struct {
		name string
		err  error
		code string
	}{
		{"serialization failure", wrap("40001"), apperror.CodeConcurrencyConflict},
		{"deadlock", wrap("40P01"), apperror.CodeConcurrencyConflict},
		{"statement timeout", wrap("57014"), apperror.CodeTimeout},
		{"lock timeout", wrap("55P03"), apperror.CodeTimeout},
		{"unique violation", wrap("23505"), apperror.CodeConflict},
		{"append-only trigger", wrap("P0001"), apperror.CodeValidation},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), apperror.CodeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapError(ctx, tt.err)
			assert.True(t, apperror.HasCode(mapped, tt.code), "got %v", mapped)
			assert.True(t, errors.Is(mapped, tt.err) || errors.Unwrap(mapped) == tt.err)
		})
	}

	assert.Nil(t, MapError(ctx, nil))
	plain := errors.New("boom")
	assert.Equal(t, plain, MapError(ctx, plain))
	app := apperror.NewValidation("bad")
	assert.Equal(t, error(app), MapError(ctx, app))
	assert.True(t, IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
}
