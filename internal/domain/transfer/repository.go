package transfer

import (
	"context"

	"stockledger/internal/core/id"
)

// Repository persists transfers with their lines.
type Repository interface {
	Create(ctx context.Context, t *Transfer) error

	// Get returns the transfer with lines, or a NotFound error.
	Get(ctx context.Context, tenantID, transferID id.ID) (*Transfer, error)

	// GetForUpdate is Get plus a row lock held until the transaction ends.
	GetForUpdate(ctx context.Context, tenantID, transferID id.ID) (*Transfer, error)

	// Update writes header and lines if the stored version equals t.Version, then
	// increments t.Version.
	Update(ctx context.Context, t *Transfer) error

	// List returns headers only, newest first.
	List(ctx context.Context, filter ListFilter) ([]Transfer, error)
}

// ListFilter narrows transfer listings for dashboards.
type ListFilter struct {
	TenantID   id.ID
	Statuses   []Status
	LocationID *id.ID // matches either side
	Limit      int
	Offset     int
}
