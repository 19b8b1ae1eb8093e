package entity

import (
	"fmt"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// BalanceKey identifies one materialized balance row.
type BalanceKey struct {
	TenantID   id.ID `db:"tenant_id" json:"tenantId"`
	ProductID  id.ID `db:"product_id" json:"productId"`
	LocationID id.ID `db:"location_id" json:"locationId"`
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.TenantID, k.LocationID, k.ProductID)
}

// Less orders keys by location, then product. Multi-key operations lock in this order.
func (k BalanceKey) Less(o BalanceKey) bool {
	if k.TenantID != o.TenantID {
		return id.Less(k.TenantID, o.TenantID)
	}
	if k.LocationID != o.LocationID {
		return id.Less(k.LocationID, o.LocationID)
	}
	return id.Less(k.ProductID, o.ProductID)
}

// InventoryBalance is the materialized on-hand quantity for one key.
// Quantity always equals the sum of SignedQuantity over the key's movements.
type InventoryBalance struct {
	BalanceKey

	Quantity       types.Quantity `db:"quantity" json:"quantity"`
	LastMovementID *int64         `db:"last_movement_id" json:"lastMovementId,omitempty"`
	LastMovementAt *time.Time     `db:"last_movement_at" json:"lastMovementAt,omitempty"`

	// Version increments on every write; stores use it to detect lost updates.
	Version   int64     `db:"version" json:"version"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewInventoryBalance returns an empty balance for key.
func NewInventoryBalance(key BalanceKey) InventoryBalance {
	return InventoryBalance{BalanceKey: key}
}

// Apply returns the balance after m. The receiver is not modified.
func (b InventoryBalance) Apply(m StockMovement) InventoryBalance {
	next := b
	next.Quantity = b.Quantity + m.SignedQuantity
	movementID := m.ID
	at := m.CreatedAt
	next.LastMovementID = &movementID
	next.LastMovementAt = &at
	next.UpdatedAt = m.CreatedAt
	return next
}
