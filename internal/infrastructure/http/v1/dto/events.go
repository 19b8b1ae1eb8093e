package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/adjustment"
)

// SaleEventRequest is a sale line pushed by the POS service.
type SaleEventRequest struct {
	ProductID     id.ID          `json:"productId" binding:"required"`
	LocationID    id.ID          `json:"locationId" binding:"required"`
	Quantity      types.Quantity `json:"quantity"`
	ReferenceID   string         `json:"referenceId" binding:"required,max=128"`
	ReceiptNo     string         `json:"receiptNo" binding:"max=64"`
	AllowNegative bool           `json:"allowNegative"`
}

func (r SaleEventRequest) ToEvent(tenantID id.ID) adjustment.SaleEvent {
	return adjustment.SaleEvent{
		TenantID:      tenantID,
		ProductID:     r.ProductID,
		LocationID:    r.LocationID,
		Quantity:      r.Quantity,
		ReferenceID:   r.ReferenceID,
		ReceiptNo:     r.ReceiptNo,
		AllowNegative: r.AllowNegative,
	}
}

// PurchaseReceiptRequest is a goods receipt pushed by purchasing.
type PurchaseReceiptRequest struct {
	ProductID   id.ID            `json:"productId" binding:"required"`
	LocationID  id.ID            `json:"locationId" binding:"required"`
	Quantity    types.Quantity   `json:"quantity"`
	ReferenceID string           `json:"referenceId" binding:"required,max=128"`
	DocumentNo  string           `json:"documentNo" binding:"max=64"`
	BatchNumber string           `json:"batchNumber" binding:"max=64"`
	ExpiryDate  *time.Time       `json:"expiryDate"`
	UnitCost    *decimal.Decimal `json:"unitCost"`
}

func (r PurchaseReceiptRequest) ToReceipt(tenantID id.ID, userID string) adjustment.PurchaseReceipt {
	return adjustment.PurchaseReceipt{
		TenantID:    tenantID,
		ProductID:   r.ProductID,
		LocationID:  r.LocationID,
		Quantity:    r.Quantity,
		ReferenceID: r.ReferenceID,
		DocumentNo:  r.DocumentNo,
		BatchNumber: r.BatchNumber,
		ExpiryDate:  r.ExpiryDate,
		UnitCost:    r.UnitCost,
		ReceivedBy:  userID,
	}
}

// ProductionEventRequest is a consumption or output line of a production order.
type ProductionEventRequest struct {
	ProductID   id.ID          `json:"productId" binding:"required"`
	LocationID  id.ID          `json:"locationId" binding:"required"`
	Quantity    types.Quantity `json:"quantity"`
	ReferenceID string         `json:"referenceId" binding:"required,max=128"`
	BatchNumber string         `json:"batchNumber" binding:"max=64"`
}

func (r ProductionEventRequest) ToEvent(tenantID id.ID, userID string) adjustment.ProductionEvent {
	return adjustment.ProductionEvent{
		TenantID:    tenantID,
		ProductID:   r.ProductID,
		LocationID:  r.LocationID,
		Quantity:    r.Quantity,
		ReferenceID: r.ReferenceID,
		BatchNumber: r.BatchNumber,
		PerformedBy: userID,
	}
}

// ReturnEventRequest is a customer return.
type ReturnEventRequest struct {
	ProductID   id.ID          `json:"productId" binding:"required"`
	LocationID  id.ID          `json:"locationId" binding:"required"`
	Quantity    types.Quantity `json:"quantity"`
	ReferenceID string         `json:"referenceId" binding:"required,max=128"`
	Reason      string         `json:"reason" binding:"max=1000"`
}

func (r ReturnEventRequest) ToEvent(tenantID id.ID, userID string) adjustment.ReturnEvent {
	return adjustment.ReturnEvent{
		TenantID:    tenantID,
		ProductID:   r.ProductID,
		LocationID:  r.LocationID,
		Quantity:    r.Quantity,
		ReferenceID: r.ReferenceID,
		Reason:      r.Reason,
		PerformedBy: userID,
	}
}
