package dto

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/transfer"
)

// TransferLineRequest is one requested product.
type TransferLineRequest struct {
	ProductID   id.ID          `json:"productId" binding:"required"`
	Quantity    types.Quantity `json:"quantity"`
	BatchNumber *string        `json:"batchNumber" binding:"omitempty,max=64"`
	ExpiryDate  *time.Time     `json:"expiryDate"`
}

// CreateTransferRequest is the body of POST /transfers.
type CreateTransferRequest struct {
	FromLocationID id.ID                 `json:"fromLocationId" binding:"required"`
	ToLocationID   id.ID                 `json:"toLocationId" binding:"required"`
	Lines          []TransferLineRequest `json:"lines" binding:"required,min=1,dive"`
	Notes          string                `json:"notes" binding:"max=1000"`
}

// ToInput maps the request onto the service input.
func (r CreateTransferRequest) ToInput(tenantID id.ID, userID string) transfer.CreateInput {
	lines := make([]transfer.LineInput, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = transfer.LineInput{
			ProductID:   l.ProductID,
			Quantity:    l.Quantity,
			BatchNumber: l.BatchNumber,
			ExpiryDate:  l.ExpiryDate,
		}
	}
	return transfer.CreateInput{
		TenantID:       tenantID,
		FromLocationID: r.FromLocationID,
		ToLocationID:   r.ToLocationID,
		Lines:          lines,
		RequestedBy:    userID,
		Notes:          r.Notes,
	}
}

// TransferLineQuantity sets the shipped or received quantity of one line.
type TransferLineQuantity struct {
	LineNo      int            `json:"lineNo" binding:"required,min=1"`
	Quantity    types.Quantity `json:"quantity"`
	BatchNumber *string        `json:"batchNumber" binding:"omitempty,max=64"`
	ExpiryDate  *time.Time     `json:"expiryDate"`
}

func toLineQuantities(in []TransferLineQuantity) []transfer.LineQuantity {
	out := make([]transfer.LineQuantity, len(in))
	for i, l := range in {
		out[i] = transfer.LineQuantity{
			LineNo:      l.LineNo,
			Quantity:    l.Quantity,
			BatchNumber: l.BatchNumber,
			ExpiryDate:  l.ExpiryDate,
		}
	}
	return out
}

// ShipTransferRequest is the body of POST /transfers/:id/ship. Omitted lines ship in full.
type ShipTransferRequest struct {
	Lines         []TransferLineQuantity `json:"lines" binding:"dive"`
	AllowNegative bool                   `json:"allowNegative"`
}

func (r ShipTransferRequest) ToInput(userID string) transfer.ShipInput {
	return transfer.ShipInput{Lines: toLineQuantities(r.Lines), ShippedBy: userID, AllowNegative: r.AllowNegative}
}

// ReceiveTransferRequest is the body of POST /transfers/:id/receive. Omitted lines are
// received as shipped.
type ReceiveTransferRequest struct {
	Lines []TransferLineQuantity `json:"lines" binding:"dive"`
}

func (r ReceiveTransferRequest) ToInput(userID string) transfer.ReceiveInput {
	return transfer.ReceiveInput{Lines: toLineQuantities(r.Lines), ReceivedBy: userID}
}

// ReasonRequest carries the reason for reject and cancel.
type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}
