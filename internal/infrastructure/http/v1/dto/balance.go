package dto

import (
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// BalanceResponse is the on-hand quantity of one product at one location.
type BalanceResponse struct {
	ProductID      id.ID          `json:"productId"`
	LocationID     id.ID          `json:"locationId"`
	Quantity       types.Quantity `json:"quantity"`
	LastMovementID *int64         `json:"lastMovementId,omitempty"`
	LastMovementAt *time.Time     `json:"lastMovementAt,omitempty"`
	Version        int64          `json:"version"`
}

// FromBalance converts an entity to a response.
func FromBalance(b entity.InventoryBalance) BalanceResponse {
	return BalanceResponse{
		ProductID:      b.ProductID,
		LocationID:     b.LocationID,
		Quantity:       b.Quantity,
		LastMovementID: b.LastMovementID,
		LastMovementAt: b.LastMovementAt,
		Version:        b.Version,
	}
}

// FromBalances converts a slice of entities.
func FromBalances(bs []entity.InventoryBalance) []BalanceResponse {
	out := make([]BalanceResponse, len(bs))
	for i, b := range bs {
		out[i] = FromBalance(b)
	}
	return out
}

// BalanceListResponse wraps balance listings.
type BalanceListResponse struct {
	Items []BalanceResponse `json:"items"`
}
