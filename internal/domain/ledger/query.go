package ledger

import (
	"context"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Queries serves read-only movement and balance lookups.
type Queries struct {
	ledger   *Ledger
	balances BalanceRepository
}

// NewQueries creates the read side over the same repositories the projector writes.
func NewQueries(movements MovementRepository, balances BalanceRepository) *Queries {
	return &Queries{ledger: NewLedger(movements), balances: balances}
}

// Movement returns one movement.
func (q *Queries) Movement(ctx context.Context, tenantID id.ID, movementID int64) (entity.StockMovement, error) {
	m, err := q.ledger.Get(ctx, tenantID, movementID)
	if err != nil {
		return entity.StockMovement{}, err
	}
	if !appctx.CanAccessLocation(ctx, m.LocationID) {
		return entity.StockMovement{}, apperror.NewNotFound("stock_movement", movementID)
	}
	return m, nil
}

// History lists movements. A location filter outside the caller's scope is rejected.
func (q *Queries) History(ctx context.Context, filter MovementFilter) ([]entity.StockMovement, error) {
	if filter.LocationID != nil && !appctx.CanAccessLocation(ctx, *filter.LocationID) {
		return nil, apperror.NewForbidden("location is outside the caller's scope")
	}
	items, err := q.ledger.History(ctx, filter)
	if err != nil {
		return nil, err
	}
	return filterByScope(ctx, items, func(m entity.StockMovement) id.ID { return m.LocationID }), nil
}

// Balance returns the materialized balance of one key. Unknown keys read as zero.
func (q *Queries) Balance(ctx context.Context, key entity.BalanceKey) (entity.InventoryBalance, error) {
	if !appctx.CanAccessLocation(ctx, key.LocationID) {
		return entity.InventoryBalance{}, apperror.NewForbidden("location is outside the caller's scope")
	}
	return q.balances.Get(ctx, key)
}

// BalancesByLocation lists the balances held at one location.
func (q *Queries) BalancesByLocation(ctx context.Context, tenantID, locationID id.ID, filter BalanceFilter) ([]entity.InventoryBalance, error) {
	if !appctx.CanAccessLocation(ctx, locationID) {
		return nil, apperror.NewForbidden("location is outside the caller's scope")
	}
	return q.balances.ListByLocation(ctx, tenantID, locationID, filter)
}

// BalancesByProduct lists a product's balances across the caller's locations.
func (q *Queries) BalancesByProduct(ctx context.Context, tenantID, productID id.ID) ([]entity.InventoryBalance, error) {
	items, err := q.balances.ListByProduct(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	return filterByScope(ctx, items, func(b entity.InventoryBalance) id.ID { return b.LocationID }), nil
}

func filterByScope[T any](ctx context.Context, items []T, location func(T) id.ID) []T {
	scope := appctx.GetScope(ctx)
	if scope == nil || scope.AllLocations {
		return items
	}
	out := items[:0]
	for _, it := range items {
		if appctx.CanAccessLocation(ctx, location(it)) {
			out = append(out, it)
		}
	}
	return out
}
