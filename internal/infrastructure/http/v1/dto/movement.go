package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/adjustment"
)

// RecordMovementRequest is the body of POST /movements.
type RecordMovementRequest struct {
	ProductID       id.ID            `json:"productId" binding:"required"`
	LocationID      id.ID            `json:"locationId" binding:"required"`
	Quantity        types.Quantity   `json:"quantity"`
	MovementType    string           `json:"movementType" binding:"required,movementtype"`
	ReferenceType   string           `json:"referenceType" binding:"required,referencetype"`
	ReferenceID     string           `json:"referenceId" binding:"required,max=128"`
	ReferenceNumber string           `json:"referenceNumber" binding:"max=64"`
	BatchNumber     string           `json:"batchNumber" binding:"max=64"`
	ExpiryDate      *time.Time       `json:"expiryDate"`
	UnitCost        *decimal.Decimal `json:"unitCost"`
	Notes           string           `json:"notes" binding:"max=1000"`
	AllowNegative   bool             `json:"allowNegative"`
}

// ToInput maps the request onto the service input.
func (r RecordMovementRequest) ToInput(tenantID id.ID, userID string) adjustment.MovementInput {
	return adjustment.MovementInput{
		TenantID:      tenantID,
		ProductID:     r.ProductID,
		LocationID:    r.LocationID,
		Quantity:      r.Quantity,
		MovementType:  entity.MovementType(r.MovementType),
		ReferenceType: entity.ReferenceType(r.ReferenceType),
		ReferenceID:   r.ReferenceID,
		Options: adjustment.Options{
			ReferenceNumber: r.ReferenceNumber,
			BatchNumber:     r.BatchNumber,
			ExpiryDate:      r.ExpiryDate,
			UnitCost:        r.UnitCost,
			Notes:           r.Notes,
			PerformedBy:     userID,
			AllowNegative:   r.AllowNegative,
		},
	}
}

// AdjustStockRequest is the body of POST /adjustments. Delta keeps its sign.
type AdjustStockRequest struct {
	ProductID  id.ID          `json:"productId" binding:"required"`
	LocationID id.ID          `json:"locationId" binding:"required"`
	Delta      types.Quantity `json:"delta"`
	Reason     string         `json:"reason" binding:"required,max=1000"`
}

// ReverseMovementRequest is the body of POST /movements/:id/reverse.
type ReverseMovementRequest struct {
	Reason        string `json:"reason" binding:"required,max=1000"`
	AllowNegative bool   `json:"allowNegative"`
}

// MovementResponse is a ledger entry as returned by the API.
type MovementResponse struct {
	ID              int64            `json:"id"`
	ProductID       id.ID            `json:"productId"`
	LocationID      id.ID            `json:"locationId"`
	MovementType    string           `json:"movementType"`
	SignedQuantity  types.Quantity   `json:"signedQuantity"`
	ReferenceType   string           `json:"referenceType"`
	ReferenceID     string           `json:"referenceId"`
	ReferenceNumber *string          `json:"referenceNumber,omitempty"`
	BatchNumber     *string          `json:"batchNumber,omitempty"`
	ExpiryDate      *time.Time       `json:"expiryDate,omitempty"`
	UnitCost        *decimal.Decimal `json:"unitCost,omitempty"`
	CreatedBy       string           `json:"createdBy"`
	CreatedAt       time.Time        `json:"createdAt"`
	Notes           *string          `json:"notes,omitempty"`
}

// FromMovement converts an entity to a response.
func FromMovement(m entity.StockMovement) MovementResponse {
	resp := MovementResponse{
		ID:              m.ID,
		ProductID:       m.ProductID,
		LocationID:      m.LocationID,
		MovementType:    string(m.MovementType),
		SignedQuantity:  m.SignedQuantity,
		ReferenceType:   string(m.ReferenceType),
		ReferenceID:     m.ReferenceID,
		ReferenceNumber: m.ReferenceNumber,
		BatchNumber:     m.BatchNumber,
		ExpiryDate:      m.ExpiryDate,
		CreatedBy:       m.CreatedBy,
		CreatedAt:       m.CreatedAt,
		Notes:           m.Notes,
	}
	if m.UnitCost.Valid {
		cost := m.UnitCost.Decimal
		resp.UnitCost = &cost
	}
	return resp
}

// FromMovements converts a slice of entities.
func FromMovements(ms []entity.StockMovement) []MovementResponse {
	out := make([]MovementResponse, len(ms))
	for i, m := range ms {
		out[i] = FromMovement(m)
	}
	return out
}

// MovementResultResponse is returned by every write that appends a movement.
type MovementResultResponse struct {
	Movement MovementResponse `json:"movement"`
	OnHand   types.Quantity   `json:"onHand"`
	Replayed bool             `json:"replayed,omitempty"`
}

// FromResult converts a service result.
func FromResult(r adjustment.Result) MovementResultResponse {
	return MovementResultResponse{Movement: FromMovement(r.Movement), OnHand: r.OnHand, Replayed: r.Replayed}
}
