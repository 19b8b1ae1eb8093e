// Package transfer provides the inter-location transfer workflow.
package transfer

import (
	"context"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Status is the transfer's workflow state.
type Status string

const (
	StatusRequested Status = "requested"
	StatusApproved  Status = "approved"
	StatusInTransit Status = "in_transit"
	StatusReceived  Status = "received"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

var allowedTransitions = map[Status][]Status{
	StatusRequested: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:  {StatusInTransit, StatusRejected, StatusCancelled},
	StatusInTransit: {StatusReceived},
	StatusReceived:  {StatusCompleted},
}

// IsValid checks the value against the known states.
func (s Status) IsValid() bool {
	switch s {
	case StatusRequested, StatusApproved, StatusInTransit, StatusReceived,
		StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// CanTransitionTo reports whether s → to is an edge of the state machine.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transfer moves stock from one location to another through paired movements.
type Transfer struct {
	ID             id.ID  `db:"id" json:"id"`
	TenantID       id.ID  `db:"tenant_id" json:"tenantId"`
	Number         string `db:"number" json:"number"`
	FromLocationID id.ID  `db:"from_location_id" json:"fromLocationId"`
	ToLocationID   id.ID  `db:"to_location_id" json:"toLocationId"`
	Status         Status `db:"status" json:"status"`

	RequestedAt time.Time `db:"requested_at" json:"requestedAt"`
	RequestedBy string    `db:"requested_by" json:"requestedBy"`

	ApprovedAt *time.Time `db:"approved_at" json:"approvedAt,omitempty"`
	ApprovedBy *string    `db:"approved_by" json:"approvedBy,omitempty"`

	RejectedAt      *time.Time `db:"rejected_at" json:"rejectedAt,omitempty"`
	RejectedBy      *string    `db:"rejected_by" json:"rejectedBy,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejectionReason,omitempty"`

	ShippedAt *time.Time `db:"shipped_at" json:"shippedAt,omitempty"`
	ShippedBy *string    `db:"shipped_by" json:"shippedBy,omitempty"`

	ReceivedAt *time.Time `db:"received_at" json:"receivedAt,omitempty"`
	ReceivedBy *string    `db:"received_by" json:"receivedBy,omitempty"`

	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CompletedBy *string    `db:"completed_by" json:"completedBy,omitempty"`

	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancelledBy  *string    `db:"cancelled_by" json:"cancelledBy,omitempty"`
	CancelReason *string    `db:"cancel_reason" json:"cancelReason,omitempty"`

	Notes *string `db:"notes" json:"notes,omitempty"`

	Version   int64     `db:"version" json:"version"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one product on a transfer.
type Line struct {
	TransferID        id.ID          `db:"transfer_id" json:"-"`
	LineNo            int            `db:"line_no" json:"lineNo"`
	ProductID         id.ID          `db:"product_id" json:"productId"`
	QuantityRequested types.Quantity `db:"quantity_requested" json:"quantityRequested"`
	QuantityShipped   types.Quantity `db:"quantity_shipped" json:"quantityShipped"`
	QuantityReceived  types.Quantity `db:"quantity_received" json:"quantityReceived"`
	BatchNumber       *string        `db:"batch_number" json:"batchNumber,omitempty"`
	ExpiryDate        *time.Time     `db:"expiry_date" json:"expiryDate,omitempty"`
}

// Discrepancy is what left the source but was not counted at the destination.
func (l Line) Discrepancy() types.Quantity {
	return l.QuantityShipped - l.QuantityReceived
}

// LineInput describes a requested line.
type LineInput struct {
	ProductID   id.ID
	Quantity    types.Quantity
	BatchNumber *string
	ExpiryDate  *time.Time
}

// LineQuantity sets a shipped or received quantity for one line. Lines omitted from a
// ship call ship in full; lines omitted from a receive call are received as shipped.
type LineQuantity struct {
	LineNo      int
	Quantity    types.Quantity
	BatchNumber *string
	ExpiryDate  *time.Time
}

// New builds a transfer in the requested state.
func New(tenantID, fromLocationID, toLocationID id.ID, lines []LineInput, requestedBy string, now time.Time) (*Transfer, error) {
	t := &Transfer{
		ID:             id.New(),
		TenantID:       tenantID,
		FromLocationID: fromLocationID,
		ToLocationID:   toLocationID,
		Status:         StatusRequested,
		RequestedAt:    now,
		RequestedBy:    requestedBy,
		UpdatedAt:      now,
	}
	for i, in := range lines {
		t.Lines = append(t.Lines, Line{
			TransferID:        t.ID,
			LineNo:            i + 1,
			ProductID:         in.ProductID,
			QuantityRequested: in.Quantity,
			BatchNumber:       in.BatchNumber,
			ExpiryDate:        in.ExpiryDate,
		})
	}
	if err := t.Validate(context.Background()); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks header and line invariants.
func (t *Transfer) Validate(ctx context.Context) error {
	if id.IsNil(t.TenantID) {
		return apperror.NewValidation("tenant is required").WithDetail("field", "tenantId")
	}
	if id.IsNil(t.FromLocationID) || id.IsNil(t.ToLocationID) {
		return apperror.NewValidation("source and destination locations are required")
	}
	if t.FromLocationID == t.ToLocationID {
		return apperror.NewValidation("source and destination must differ")
	}
	if len(t.Lines) == 0 {
		return apperror.NewValidation("transfer must have at least one line")
	}

	type lotKey struct {
		product id.ID
		batch   string
	}
	seen := make(map[lotKey]struct{}, len(t.Lines))
	for _, l := range t.Lines {
		if id.IsNil(l.ProductID) {
			return apperror.NewValidation("product is required").WithDetail("line", l.LineNo)
		}
		if !l.QuantityRequested.IsPositive() {
			return apperror.NewValidation("requested quantity must be positive").WithDetail("line", l.LineNo)
		}
		k := lotKey{product: l.ProductID}
		if l.BatchNumber != nil {
			k.batch = *l.BatchNumber
		}
		if _, dup := seen[k]; dup {
			return apperror.NewValidation("duplicate product on transfer").WithDetail("line", l.LineNo)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// moveTo performs the state check shared by every transition. It returns false with no
// error when the transfer is already in the target state.
func (t *Transfer) moveTo(to Status) (bool, error) {
	if t.Status == to {
		return false, nil
	}
	if !t.Status.CanTransitionTo(to) {
		return false, apperror.NewTransferState(t.ID, string(t.Status), string(to))
	}
	return true, nil
}

// Approve moves requested → approved.
func (t *Transfer) Approve(by string, now time.Time) (bool, error) {
	ok, err := t.moveTo(StatusApproved)
	if !ok || err != nil {
		return false, err
	}
	t.Status = StatusApproved
	t.ApprovedAt, t.ApprovedBy = &now, &by
	return true, nil
}

// Reject moves requested or approved → rejected.
func (t *Transfer) Reject(by, reason string, now time.Time) (bool, error) {
	ok, err := t.moveTo(StatusRejected)
	if !ok || err != nil {
		return false, err
	}
	t.Status = StatusRejected
	t.RejectedAt, t.RejectedBy = &now, &by
	if reason != "" {
		t.RejectionReason = &reason
	}
	return true, nil
}

// Ship moves approved → in_transit and records shipped quantities. The caller writes
// the matching transfer_out movements in the same transaction.
func (t *Transfer) Ship(shipments []LineQuantity, by string, now time.Time) (bool, error) {
	ok, err := t.moveTo(StatusInTransit)
	if !ok || err != nil {
		return false, err
	}

	byLine, err := t.indexQuantities(shipments)
	if err != nil {
		return false, err
	}

	lines := make([]Line, len(t.Lines))
	copy(lines, t.Lines)
	var total types.Quantity
	for i := range lines {
		l := &lines[i]
		l.QuantityShipped = l.QuantityRequested
		if q, found := byLine[l.LineNo]; found {
			if q.Quantity.IsNegative() || q.Quantity > l.QuantityRequested {
				return false, apperror.NewValidation("shipped quantity must be between zero and the requested quantity").
					WithDetail("line", l.LineNo).
					WithDetail("requested", l.QuantityRequested.String())
			}
			l.QuantityShipped = q.Quantity
			if q.BatchNumber != nil {
				l.BatchNumber = q.BatchNumber
			}
			if q.ExpiryDate != nil {
				l.ExpiryDate = q.ExpiryDate
			}
		}
		total += l.QuantityShipped
	}
	if total.IsZero() {
		return false, apperror.NewValidation("nothing to ship")
	}

	t.Lines = lines
	t.Status = StatusInTransit
	t.ShippedAt, t.ShippedBy = &now, &by
	return true, nil
}

// Receive moves in_transit → received and records counted quantities. A shortfall
// stays visible as the line discrepancy; it is never adjusted automatically.
func (t *Transfer) Receive(receipts []LineQuantity, by string, now time.Time) (bool, error) {
	ok, err := t.moveTo(StatusReceived)
	if !ok || err != nil {
		return false, err
	}

	byLine, err := t.indexQuantities(receipts)
	if err != nil {
		return false, err
	}

	lines := make([]Line, len(t.Lines))
	copy(lines, t.Lines)
	for i := range lines {
		l := &lines[i]
		l.QuantityReceived = l.QuantityShipped
		if q, found := byLine[l.LineNo]; found {
			if q.Quantity.IsNegative() || q.Quantity > l.QuantityShipped {
				return false, apperror.NewValidation("received quantity must be between zero and the shipped quantity").
					WithDetail("line", l.LineNo).
					WithDetail("shipped", l.QuantityShipped.String())
			}
			l.QuantityReceived = q.Quantity
		}
	}

	t.Lines = lines
	t.Status = StatusReceived
	t.ReceivedAt, t.ReceivedBy = &now, &by
	return true, nil
}

// Complete moves received → completed.
func (t *Transfer) Complete(by string, now time.Time) (bool, error) {
	ok, err := t.moveTo(StatusCompleted)
	if !ok || err != nil {
		return false, err
	}
	t.Status = StatusCompleted
	t.CompletedAt, t.CompletedBy = &now, &by
	return true, nil
}

// Cancel moves requested or approved → cancelled. Once stock has shipped the transfer
// must be received instead.
func (t *Transfer) Cancel(by, reason string, now time.Time) (bool, error) {
	ok, err := t.moveTo(StatusCancelled)
	if !ok || err != nil {
		return false, err
	}
	t.Status = StatusCancelled
	t.CancelledAt, t.CancelledBy = &now, &by
	if reason != "" {
		t.CancelReason = &reason
	}
	return true, nil
}

func (t *Transfer) indexQuantities(in []LineQuantity) (map[int]LineQuantity, error) {
	known := make(map[int]bool, len(t.Lines))
	for _, l := range t.Lines {
		known[l.LineNo] = true
	}
	out := make(map[int]LineQuantity, len(in))
	for _, q := range in {
		if !known[q.LineNo] {
			return nil, apperror.NewValidation("unknown transfer line").WithDetail("line", q.LineNo)
		}
		if _, dup := out[q.LineNo]; dup {
			return nil, apperror.NewValidation("line listed twice").WithDetail("line", q.LineNo)
		}
		out[q.LineNo] = q
	}
	return out, nil
}

// TotalShipped is Σ quantityShipped.
func (t *Transfer) TotalShipped() types.Quantity {
	var total types.Quantity
	for _, l := range t.Lines {
		total += l.QuantityShipped
	}
	return total
}

// TotalReceived is Σ quantityReceived.
func (t *Transfer) TotalReceived() types.Quantity {
	var total types.Quantity
	for _, l := range t.Lines {
		total += l.QuantityReceived
	}
	return total
}

// Clone returns a deep copy.
func (t *Transfer) Clone() *Transfer {
	c := *t
	c.Lines = make([]Line, len(t.Lines))
	copy(c.Lines, t.Lines)
	return &c
}

// ShipmentMovements returns one transfer_out per line with a shipped quantity.
func (t *Transfer) ShipmentMovements(createdBy string) []entity.StockMovement {
	return t.movements(t.FromLocationID, entity.MovementTransferOut, createdBy, func(l Line) types.Quantity {
		return l.QuantityShipped
	})
}

// ReceiptMovements returns one transfer_in per line with a received quantity.
func (t *Transfer) ReceiptMovements(createdBy string) []entity.StockMovement {
	return t.movements(t.ToLocationID, entity.MovementTransferIn, createdBy, func(l Line) types.Quantity {
		return l.QuantityReceived
	})
}

func (t *Transfer) movements(locationID id.ID, mt entity.MovementType, createdBy string, qty func(Line) types.Quantity) []entity.StockMovement {
	var out []entity.StockMovement
	for _, l := range t.Lines {
		q := qty(l)
		if q.IsZero() {
			continue
		}
		out = append(out, entity.StockMovement{
			TenantID:       t.TenantID,
			ProductID:      l.ProductID,
			LocationID:     locationID,
			MovementType:   mt,
			SignedQuantity: mt.Signed(q),
			ReferenceType:  entity.ReferenceTransfer,
			ReferenceID:    t.ID.String(),
			BatchNumber:    l.BatchNumber,
			ExpiryDate:     l.ExpiryDate,
			CreatedBy:      createdBy,
		})
	}
	return out
}
