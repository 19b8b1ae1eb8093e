// Package entity provides the ledger's core entities.
package entity

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// MovementType classifies a ledger entry. The type never implies the sign on its own;
// the signed quantity is always stored explicitly.
type MovementType string

const (
	MovementIn          MovementType = "in"
	MovementOut         MovementType = "out"
	MovementAdjustment  MovementType = "adjustment"
	MovementTransferIn  MovementType = "transfer_in"
	MovementTransferOut MovementType = "transfer_out"
)

// IsValid checks the value against the known movement types.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementTransferIn, MovementTransferOut:
		return true
	}
	return false
}

// Signed applies the type's sign rule to a quantity: out and transfer_out always
// decrease, in and transfer_in always increase, adjustment keeps the caller's sign.
func (t MovementType) Signed(q types.Quantity) types.Quantity {
	switch t {
	case MovementOut, MovementTransferOut:
		return q.Abs().Neg()
	case MovementIn, MovementTransferIn:
		return q.Abs()
	}
	return q
}

// ReferenceType names the business event that caused a movement.
type ReferenceType string

const (
	ReferencePurchase   ReferenceType = "purchase"
	ReferenceSale       ReferenceType = "sale"
	ReferenceTransfer   ReferenceType = "transfer"
	ReferenceAdjustment ReferenceType = "adjustment"
	ReferenceReturn     ReferenceType = "return"
	ReferenceProduction ReferenceType = "production"
	// ReferenceReversal marks a compensating movement; ReferenceID holds the reversed movement id.
	ReferenceReversal ReferenceType = "reversal"
)

// IsValid checks the value against the known reference types.
func (t ReferenceType) IsValid() bool {
	switch t {
	case ReferencePurchase, ReferenceSale, ReferenceTransfer, ReferenceAdjustment,
		ReferenceReturn, ReferenceProduction, ReferenceReversal:
		return true
	}
	return false
}

// IsSubmittable reports whether callers may record a movement with this reference.
// Reversal rows are appended only by the reversal operation.
func (t ReferenceType) IsSubmittable() bool {
	return t.IsValid() && t != ReferenceReversal
}

// StockMovement is one immutable ledger entry.
type StockMovement struct {
	// ID is assigned by the store in creation order.
	ID int64 `db:"id" json:"id"`

	TenantID   id.ID `db:"tenant_id" json:"tenantId"`
	ProductID  id.ID `db:"product_id" json:"productId"`
	LocationID id.ID `db:"location_id" json:"locationId"`

	MovementType   MovementType   `db:"movement_type" json:"movementType"`
	SignedQuantity types.Quantity `db:"signed_quantity" json:"signedQuantity"`

	ReferenceType   ReferenceType `db:"reference_type" json:"referenceType"`
	ReferenceID     string        `db:"reference_id" json:"referenceId"`
	ReferenceNumber *string       `db:"reference_number" json:"referenceNumber,omitempty"`

	// Lot tracking
	BatchNumber *string    `db:"batch_number" json:"batchNumber,omitempty"`
	ExpiryDate  *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`

	UnitCost decimal.NullDecimal `db:"unit_cost" json:"unitCost"`

	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
}

// Key returns the balance key the movement applies to.
func (m *StockMovement) Key() BalanceKey {
	return BalanceKey{TenantID: m.TenantID, ProductID: m.ProductID, LocationID: m.LocationID}
}

// Validate checks append preconditions. It does not look at balances.
func (m *StockMovement) Validate(ctx context.Context) error {
	if id.IsNil(m.TenantID) {
		return apperror.NewValidation("tenant is required").WithDetail("field", "tenantId")
	}
	if id.IsNil(m.ProductID) {
		return apperror.NewValidation("product is required").WithDetail("field", "productId")
	}
	if id.IsNil(m.LocationID) {
		return apperror.NewValidation("location is required").WithDetail("field", "locationId")
	}
	if m.SignedQuantity.IsZero() {
		return apperror.NewValidation("quantity must be non-zero").WithDetail("field", "signedQuantity")
	}
	if !m.MovementType.IsValid() {
		return apperror.NewValidation("unknown movement type").
			WithDetail("field", "movementType").
			WithDetail("value", string(m.MovementType))
	}
	if !m.ReferenceType.IsValid() {
		return apperror.NewValidation("unknown reference type").
			WithDetail("field", "referenceType").
			WithDetail("value", string(m.ReferenceType))
	}
	if m.UnitCost.Valid && m.UnitCost.Decimal.IsNegative() {
		return apperror.NewValidation("unit cost cannot be negative").WithDetail("field", "unitCost")
	}
	return nil
}
