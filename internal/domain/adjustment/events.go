package adjustment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// SaleEvent is a completed sale line from the POS collaborator.
type SaleEvent struct {
	TenantID    id.ID
	ProductID   id.ID
	LocationID  id.ID
	Quantity    types.Quantity
	ReferenceID string
	ReceiptNo   string
	// AllowNegative accepts the sale even when on-hand is short (back-order).
	AllowNegative bool
}

// RecordSale books a sale as an out movement.
func (s *Service) RecordSale(ctx context.Context, ev SaleEvent) (Result, error) {
	return s.RecordMovement(ctx, MovementInput{
		TenantID:      ev.TenantID,
		ProductID:     ev.ProductID,
		LocationID:    ev.LocationID,
		Quantity:      ev.Quantity,
		MovementType:  entity.MovementOut,
		ReferenceType: entity.ReferenceSale,
		ReferenceID:   ev.ReferenceID,
		Options:       Options{ReferenceNumber: ev.ReceiptNo, PerformedBy: "pos", AllowNegative: ev.AllowNegative},
	})
}

// PurchaseReceipt is a goods receipt from the purchasing collaborator.
type PurchaseReceipt struct {
	TenantID    id.ID
	ProductID   id.ID
	LocationID  id.ID
	Quantity    types.Quantity
	ReferenceID string
	DocumentNo  string
	BatchNumber string
	ExpiryDate  *time.Time
	UnitCost    *decimal.Decimal
	ReceivedBy  string
}

// RecordPurchaseReceipt books received goods, keeping lot and cost data.
func (s *Service) RecordPurchaseReceipt(ctx context.Context, r PurchaseReceipt) (Result, error) {
	return s.RecordMovement(ctx, MovementInput{
		TenantID:      r.TenantID,
		ProductID:     r.ProductID,
		LocationID:    r.LocationID,
		Quantity:      r.Quantity,
		MovementType:  entity.MovementIn,
		ReferenceType: entity.ReferencePurchase,
		ReferenceID:   r.ReferenceID,
		Options: Options{
			ReferenceNumber: r.DocumentNo,
			BatchNumber:     r.BatchNumber,
			ExpiryDate:      r.ExpiryDate,
			UnitCost:        r.UnitCost,
			PerformedBy:     r.ReceivedBy,
		},
	})
}

// ProductionEvent is a material consumption or finished-good output.
type ProductionEvent struct {
	TenantID    id.ID
	ProductID   id.ID
	LocationID  id.ID
	Quantity    types.Quantity
	ReferenceID string
	BatchNumber string
	PerformedBy string
}

// RecordProductionConsumption books raw material consumed by a production order.
func (s *Service) RecordProductionConsumption(ctx context.Context, ev ProductionEvent) (Result, error) {
	return s.recordProduction(ctx, ev, entity.MovementOut)
}

// RecordProductionOutput books finished goods produced by a production order.
func (s *Service) RecordProductionOutput(ctx context.Context, ev ProductionEvent) (Result, error) {
	return s.recordProduction(ctx, ev, entity.MovementIn)
}

func (s *Service) recordProduction(ctx context.Context, ev ProductionEvent, mt entity.MovementType) (Result, error) {
	return s.RecordMovement(ctx, MovementInput{
		TenantID:      ev.TenantID,
		ProductID:     ev.ProductID,
		LocationID:    ev.LocationID,
		Quantity:      ev.Quantity,
		MovementType:  mt,
		ReferenceType: entity.ReferenceProduction,
		ReferenceID:   ev.ReferenceID,
		Options:       Options{BatchNumber: ev.BatchNumber, PerformedBy: ev.PerformedBy},
	})
}

// ReturnEvent is goods coming back from a customer.
type ReturnEvent struct {
	TenantID    id.ID
	ProductID   id.ID
	LocationID  id.ID
	Quantity    types.Quantity
	ReferenceID string
	Reason      string
	PerformedBy string
}

// RecordReturn books a customer return as an in movement.
func (s *Service) RecordReturn(ctx context.Context, ev ReturnEvent) (Result, error) {
	return s.RecordMovement(ctx, MovementInput{
		TenantID:      ev.TenantID,
		ProductID:     ev.ProductID,
		LocationID:    ev.LocationID,
		Quantity:      ev.Quantity,
		MovementType:  entity.MovementIn,
		ReferenceType: entity.ReferenceReturn,
		ReferenceID:   ev.ReferenceID,
		Options:       Options{Notes: ev.Reason, PerformedBy: ev.PerformedBy},
	})
}
