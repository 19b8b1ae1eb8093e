package ledger

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// MovementRepository persists ledger entries. Implementations never update or delete rows.
type MovementRepository interface {
	// Insert appends m and fills the store-assigned ID and CreatedAt.
	Insert(ctx context.Context, m *entity.StockMovement) error

	GetByID(ctx context.Context, tenantID id.ID, movementID int64) (entity.StockMovement, error)

	List(ctx context.Context, filter MovementFilter) ([]entity.StockMovement, error)

	// FindByReference returns the movement with the same key, movement type and reference,
	// or nil when there is none.
	FindByReference(ctx context.Context, key entity.BalanceKey, movementType entity.MovementType,
		referenceType entity.ReferenceType, referenceID string) (*entity.StockMovement, error)

	// SumByKey returns Σ signed_quantity per balance key (integrity audit).
	SumByKey(ctx context.Context, tenantID id.ID, locationID *id.ID) ([]KeySum, error)

	// SumOutboundByProduct returns Σ |signed_quantity| of decreasing movements per product
	// for one location, reference type and [From, To) window.
	SumOutboundByProduct(ctx context.Context, filter OutboundFilter) (map[id.ID]types.Quantity, error)

	// ActiveLocations lists (tenant, location) pairs that recorded movements in [from, to).
	ActiveLocations(ctx context.Context, from, to time.Time) ([]TenantLocation, error)
}

// BalanceRepository persists the materialized projection.
type BalanceRepository interface {
	// GetForUpdate returns the balance and holds its row lock until the transaction ends.
	// A key without a row yields a zero balance with Version 0.
	GetForUpdate(ctx context.Context, key entity.BalanceKey) (entity.InventoryBalance, error)

	// Get reads without locking. Missing keys yield a zero balance.
	Get(ctx context.Context, key entity.BalanceKey) (entity.InventoryBalance, error)

	// Save writes b if the stored version still equals b.Version, then increments
	// b.Version. A moved version yields a ConcurrencyConflict error.
	Save(ctx context.Context, b *entity.InventoryBalance) error

	ListByLocation(ctx context.Context, tenantID, locationID id.ID, filter BalanceFilter) ([]entity.InventoryBalance, error)
	ListByProduct(ctx context.Context, tenantID, productID id.ID) ([]entity.InventoryBalance, error)

	// List returns every balance of a tenant, optionally restricted to one location.
	List(ctx context.Context, tenantID id.ID, locationID *id.ID) ([]entity.InventoryBalance, error)
}

// MovementFilter selects movements for history queries. From is inclusive, To exclusive.
type MovementFilter struct {
	TenantID      id.ID
	ProductID     *id.ID
	LocationID    *id.ID
	MovementTypes []entity.MovementType
	ReferenceType *entity.ReferenceType
	ReferenceID   *string
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// BalanceFilter narrows balance listings.
type BalanceFilter struct {
	ExcludeZero bool
	ProductIDs  []id.ID
}

// OutboundFilter selects decreasing movements for reconciliation totals.
type OutboundFilter struct {
	TenantID      id.ID
	LocationID    id.ID
	ReferenceType entity.ReferenceType
	From          time.Time
	To            time.Time
}

// KeySum is the ledger-side total for one balance key.
type KeySum struct {
	entity.BalanceKey
	Sum   types.Quantity `db:"sum"`
	Count int64          `db:"count"`
}

// TenantLocation is a (tenant, location) pair.
type TenantLocation struct {
	TenantID   id.ID `db:"tenant_id"`
	LocationID id.ID `db:"location_id"`
}

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Normalize applies paging defaults.
func (f *MovementFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
