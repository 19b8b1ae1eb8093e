package transfer

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/event"
	"stockledger/internal/core/id"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

// Service runs transfer transitions. Each transition and its ledger writes form one
// transaction serialized by the transfer's row lock.
type Service struct {
	txm       tx.Manager
	repo      Repository
	numbers   numerator.Generator
	projector *ledger.Projector
	events    event.Publisher
	audit     audit.Recorder
	policy    tx.Policy
	now       func() time.Time
}

// NumberPrefix prefixes transfer numbers: TR-2026-00001.
const NumberPrefix = "TR"

// NewService creates the transfer workflow service. numbers, events and recorder may be nil.
func NewService(txm tx.Manager, repo Repository, numbers numerator.Generator, projector *ledger.Projector, events event.Publisher, recorder audit.Recorder, policy tx.Policy) *Service {
	if numbers == nil {
		numbers = numerator.NewLocal()
	}
	if events == nil {
		events = event.Nop{}
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{
		txm:       txm,
		repo:      repo,
		numbers:   numbers,
		projector: projector,
		events:    events,
		audit:     recorder,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput is a transfer request.
type CreateInput struct {
	TenantID       id.ID
	FromLocationID id.ID
	ToLocationID   id.ID
	Lines          []LineInput
	RequestedBy    string
	Notes          string
}

// ShipInput carries per-line shipped quantities.
type ShipInput struct {
	Lines     []LineQuantity
	ShippedBy string
	// AllowNegative permits shipping more than the source holds.
	AllowNegative bool
}

// ReceiveInput carries per-line counted quantities.
type ReceiveInput struct {
	Lines      []LineQuantity
	ReceivedBy string
}

// Create records a new transfer in the requested state.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Transfer, error) {
	if !appctx.CanAccessLocation(ctx, in.FromLocationID) && !appctx.CanAccessLocation(ctx, in.ToLocationID) {
		return nil, apperror.NewForbidden("location is outside the caller's scope")
	}

	t, err := New(in.TenantID, in.FromLocationID, in.ToLocationID, in.Lines, audit.Actor(ctx, in.RequestedBy), s.now())
	if err != nil {
		return nil, err
	}
	if in.Notes != "" {
		t.Notes = &in.Notes
	}

	err = tx.Run(ctx, s.txm, s.policy, "transfer_create", func(ctx context.Context) error {
		number, err := s.numbers.Next(ctx, t.TenantID, numerator.DefaultConfig(NumberPrefix), t.RequestedAt)
		if err != nil {
			return fmt.Errorf("transfer number: %w", err)
		}
		t.Number = number
		if err := s.repo.Create(ctx, t); err != nil {
			return fmt.Errorf("create transfer: %w", err)
		}
		return s.record(ctx, t, "", event.TransferRequested, audit.ActionCreate)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "transfer requested",
		"transfer_id", t.ID,
		"number", t.Number,
		"from_location_id", t.FromLocationID,
		"to_location_id", t.ToLocationID,
		"lines", len(t.Lines),
	)
	return t, nil
}

// Get returns a transfer with its lines.
func (s *Service) Get(ctx context.Context, tenantID, transferID id.ID) (*Transfer, error) {
	return s.repo.Get(ctx, tenantID, transferID)
}

// List returns transfer headers.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	if id.IsNil(filter.TenantID) {
		return nil, apperror.NewValidation("tenant is required")
	}
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, apperror.NewValidation("unknown transfer status").WithDetail("status", string(st))
		}
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

// Approve moves a requested transfer to approved.
func (s *Service) Approve(ctx context.Context, tenantID, transferID id.ID, approvedBy string) (*Transfer, error) {
	return s.transition(ctx, tenantID, transferID, "approve", event.TransferApproved, func(ctx context.Context, t *Transfer) (bool, error) {
		return t.Approve(audit.Actor(ctx, approvedBy), s.now())
	})
}

// Reject closes a transfer before shipment.
func (s *Service) Reject(ctx context.Context, tenantID, transferID id.ID, rejectedBy, reason string) (*Transfer, error) {
	return s.transition(ctx, tenantID, transferID, "reject", event.TransferRejected, func(ctx context.Context, t *Transfer) (bool, error) {
		return t.Reject(audit.Actor(ctx, rejectedBy), reason, s.now())
	})
}

// Ship records shipped quantities and the transfer_out movements at the source.
// If any line would take the source below zero nothing is written and the transfer
// stays approved.
func (s *Service) Ship(ctx context.Context, tenantID, transferID id.ID, in ShipInput) (*Transfer, error) {
	return s.transition(ctx, tenantID, transferID, "ship", event.TransferShipped, func(ctx context.Context, t *Transfer) (bool, error) {
		if !appctx.CanAccessLocation(ctx, t.FromLocationID) {
			return false, apperror.NewForbidden("source location is outside the caller's scope")
		}
		actor := audit.Actor(ctx, in.ShippedBy)
		changed, err := t.Ship(in.Lines, actor, s.now())
		if err != nil || !changed {
			return changed, err
		}
		if _, err := s.projector.ApplyBatch(ctx, t.ShipmentMovements(actor), ledger.ApplyOptions{AllowNegative: in.AllowNegative}); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Receive records counted quantities and the transfer_in movements at the destination.
// The counted quantity, not the shipped one, is what enters the destination.
func (s *Service) Receive(ctx context.Context, tenantID, transferID id.ID, in ReceiveInput) (*Transfer, error) {
	return s.transition(ctx, tenantID, transferID, "receive", event.TransferReceived, func(ctx context.Context, t *Transfer) (bool, error) {
		if !appctx.CanAccessLocation(ctx, t.ToLocationID) {
			return false, apperror.NewForbidden("destination location is outside the caller's scope")
		}
		actor := audit.Actor(ctx, in.ReceivedBy)
		changed, err := t.Receive(in.Lines, actor, s.now())
		if err != nil || !changed {
			return changed, err
		}
		if movements := t.ReceiptMovements(actor); len(movements) > 0 {
			if _, err := s.projector.ApplyBatch(ctx, movements, ledger.ApplyOptions{}); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// Complete closes a received transfer. No ledger effect.
func (s *Service) Complete(ctx context.Context, tenantID, transferID id.ID, completedBy string) (*Transfer, error) {
	return s.transition(ctx, tenantID, transferID, "complete", event.TransferCompleted, func(ctx context.Context, t *Transfer) (bool, error) {
		return t.Complete(audit.Actor(ctx, completedBy), s.now())
	})
}

// Cancel closes a transfer that has not shipped.
func (s *Service) Cancel(ctx context.Context, tenantID, transferID id.ID, cancelledBy, reason string) (*Transfer, error) {
	return s.transition(ctx, tenantID, transferID, "cancel", event.TransferCancelled, func(ctx context.Context, t *Transfer) (bool, error) {
		return t.Cancel(audit.Actor(ctx, cancelledBy), reason, s.now())
	})
}

type mutation func(ctx context.Context, t *Transfer) (bool, error)

// transition locks the transfer, applies mutate and persists the result. When mutate
// reports no change the call is a no-op and returns the current state.
func (s *Service) transition(ctx context.Context, tenantID, transferID id.ID, op, eventType string, mutate mutation) (*Transfer, error) {
	var (
		result  *Transfer
		from    Status
		changed bool
	)
	err := tx.Run(ctx, s.txm, s.policy, "transfer_"+op, func(ctx context.Context) error {
		t, err := s.repo.GetForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		from = t.Status

		working := t.Clone()
		changed, err = mutate(ctx, working)
		if err != nil {
			return err
		}
		if !changed {
			result = t
			return nil
		}

		working.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, working); err != nil {
			return fmt.Errorf("update transfer: %w", err)
		}
		if err := s.record(ctx, working, from, eventType, audit.ActionTransition); err != nil {
			return err
		}
		result = working
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		logger.Info(ctx, "transfer transition",
			"transfer_id", result.ID,
			"operation", op,
			"from", from,
			"to", result.Status,
		)
	} else {
		logger.Debug(ctx, "transfer transition already applied", "transfer_id", result.ID, "operation", op)
	}
	return result, nil
}

func (s *Service) record(ctx context.Context, t *Transfer, from Status, eventType string, action audit.Action) error {
	if err := s.events.Publish(ctx, event.Event{
		TenantID:      t.TenantID,
		AggregateType: "transfer",
		AggregateID:   t.ID.String(),
		EventType:     eventType,
		Payload:       t,
	}); err != nil {
		return fmt.Errorf("publish transfer event: %w", err)
	}

	changes := map[string]any{"status": map[string]any{"old": from, "new": t.Status}}
	if t.Status == StatusInTransit || t.Status == StatusReceived {
		changes["lines"] = t.Lines
	}
	if err := s.audit.Record(ctx, audit.Entry{
		TenantID:   t.TenantID,
		EntityType: "transfer",
		EntityID:   t.ID.String(),
		Action:     action,
		UserID:     appctx.GetUserID(ctx),
		Changes:    changes,
	}); err != nil {
		return fmt.Errorf("audit transfer: %w", err)
	}
	return nil
}
