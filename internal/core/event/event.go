// Package event defines domain events written to the transactional outbox.
package event

import (
	"context"

	"stockledger/internal/core/id"
)

// Event types published by the ledger, transfer and reconciliation services.
const (
	MovementRecorded = "stock.movement_recorded"

	TransferRequested = "transfer.requested"
	TransferApproved  = "transfer.approved"
	TransferRejected  = "transfer.rejected"
	TransferShipped   = "transfer.shipped"
	TransferReceived  = "transfer.received"
	TransferCompleted = "transfer.completed"
	TransferCancelled = "transfer.cancelled"

	ReconciliationCompleted = "reconciliation.completed"
	ReconciliationReviewed  = "reconciliation.reviewed"
)

// Event is a fact that happened inside a committed transaction.
type Event struct {
	TenantID      id.ID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       any
}

// Publisher stores events in the same transaction as the state change.
// Implementations must be called with a transaction in ctx.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }
