// Package ledger provides the append-only movement ledger and the balance projection
// derived from it.
package ledger

import (
	"context"
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Ledger appends and reads immutable movements. It does not enforce balance
// invariants; Projector calls it inside the balance transaction.
type Ledger struct {
	repo MovementRepository
}

// NewLedger creates a ledger over repo.
func NewLedger(repo MovementRepository) *Ledger {
	return &Ledger{repo: repo}
}

// Append validates and persists m, returning it with the assigned id and timestamp.
func (l *Ledger) Append(ctx context.Context, m entity.StockMovement) (entity.StockMovement, error) {
	if err := m.Validate(ctx); err != nil {
		return entity.StockMovement{}, err
	}
	m.ID = 0
	if err := l.repo.Insert(ctx, &m); err != nil {
		return entity.StockMovement{}, fmt.Errorf("insert movement: %w", err)
	}
	return m, nil
}

// Get returns a single movement.
func (l *Ledger) Get(ctx context.Context, tenantID id.ID, movementID int64) (entity.StockMovement, error) {
	return l.repo.GetByID(ctx, tenantID, movementID)
}

// History lists movements ordered by id.
func (l *Ledger) History(ctx context.Context, filter MovementFilter) ([]entity.StockMovement, error) {
	if id.IsNil(filter.TenantID) {
		return nil, apperror.NewValidation("tenant is required")
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, apperror.NewValidation("to must be after from")
	}
	filter.Normalize()
	return l.repo.List(ctx, filter)
}
