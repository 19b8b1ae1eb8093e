// Package adjustment translates manual corrections and collaborator business events
// into ledger movements.
package adjustment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

// Service is the entry point for single-movement writes.
type Service struct {
	txm       tx.Manager
	projector *ledger.Projector
	movements ledger.MovementRepository
	balances  ledger.BalanceRepository
	audit     audit.Recorder
	policy    tx.Policy
}

// NewService creates the adjustment service. recorder may be nil.
func NewService(txm tx.Manager, projector *ledger.Projector, movements ledger.MovementRepository,
	balances ledger.BalanceRepository, recorder audit.Recorder, policy tx.Policy) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{
		txm:       txm,
		projector: projector,
		movements: movements,
		balances:  balances,
		audit:     recorder,
		policy:    policy,
	}
}

// Options carry optional movement attributes and policy overrides.
type Options struct {
	ReferenceNumber string
	BatchNumber     string
	ExpiryDate      *time.Time
	UnitCost        *decimal.Decimal
	Notes           string
	PerformedBy     string
	AllowNegative   bool
}

// MovementInput describes one movement request.
type MovementInput struct {
	TenantID      id.ID
	ProductID     id.ID
	LocationID    id.ID
	Quantity      types.Quantity
	MovementType  entity.MovementType
	ReferenceType entity.ReferenceType
	ReferenceID   string
	Options       Options
}

// Result carries the appended movement and the on-hand quantity after it.
type Result struct {
	Movement entity.StockMovement `json:"movement"`
	OnHand   types.Quantity       `json:"onHand"`
	Replayed bool                 `json:"replayed"`
}

// RecordMovement derives the signed quantity from the movement type and applies it.
// Callers that may redeliver the same event must pass a stable ReferenceID.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (Result, error) {
	if !in.MovementType.IsValid() {
		return Result{}, apperror.NewValidation("unknown movement type").WithDetail("value", string(in.MovementType))
	}
	if !in.ReferenceType.IsSubmittable() {
		return Result{}, apperror.NewValidation("unknown reference type").WithDetail("value", string(in.ReferenceType))
	}
	if in.Quantity.IsZero() {
		return Result{}, apperror.NewValidation("quantity must be non-zero").WithDetail("field", "quantity")
	}
	if !appctx.CanAccessLocation(ctx, in.LocationID) {
		return Result{}, apperror.NewForbidden("location is outside the caller's scope")
	}

	candidate := entity.StockMovement{
		TenantID:       in.TenantID,
		ProductID:      in.ProductID,
		LocationID:     in.LocationID,
		MovementType:   in.MovementType,
		SignedQuantity: in.MovementType.Signed(in.Quantity),
		ReferenceType:  in.ReferenceType,
		ReferenceID:    in.ReferenceID,
		CreatedBy:      audit.Actor(ctx, in.Options.PerformedBy),
	}
	applyOptions(&candidate, in.Options)

	res, err := s.projector.ApplyMovement(ctx, candidate, ledger.ApplyOptions{AllowNegative: in.Options.AllowNegative})
	if err != nil {
		return Result{}, err
	}
	return Result{Movement: res.Movement, OnHand: res.Balance.Quantity, Replayed: res.Replayed}, nil
}

// AdjustStock records a manual correction. delta is stored verbatim and may be negative.
func (s *Service) AdjustStock(ctx context.Context, tenantID, productID, locationID id.ID, delta types.Quantity, reason, performedBy string) (Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Result{}, apperror.NewValidation("reason is required").WithDetail("field", "reason")
	}
	return s.RecordMovement(ctx, MovementInput{
		TenantID:      tenantID,
		ProductID:     productID,
		LocationID:    locationID,
		Quantity:      delta,
		MovementType:  entity.MovementAdjustment,
		ReferenceType: entity.ReferenceAdjustment,
		ReferenceID:   id.New().String(),
		Options:       Options{Notes: reason, PerformedBy: performedBy},
	})
}

// Reverse appends a compensating movement with the opposite sign. A movement can be
// reversed once; reversals themselves cannot be reversed.
func (s *Service) Reverse(ctx context.Context, tenantID id.ID, movementID int64, reason, performedBy string, allowNegative bool) (Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Result{}, apperror.NewValidation("reason is required").WithDetail("field", "reason")
	}

	var result Result
	err := tx.Run(ctx, s.txm, s.policy, "reverse_movement", func(ctx context.Context) error {
		original, err := s.movements.GetByID(ctx, tenantID, movementID)
		if err != nil {
			return err
		}
		if !appctx.CanAccessLocation(ctx, original.LocationID) {
			return apperror.NewForbidden("location is outside the caller's scope")
		}
		if original.ReferenceType == entity.ReferenceReversal {
			return apperror.NewValidation("a reversal cannot be reversed").WithDetail("movementId", movementID)
		}

		// Lock the key first so two reversals of the same movement serialize.
		if _, err := s.balances.GetForUpdate(ctx, original.Key()); err != nil {
			return fmt.Errorf("lock balance %s: %w", original.Key(), err)
		}
		ref := strconv.FormatInt(original.ID, 10)
		existing, err := s.movements.FindByReference(ctx, original.Key(), entity.MovementAdjustment, entity.ReferenceReversal, ref)
		if err != nil {
			return fmt.Errorf("find reversal: %w", err)
		}
		if existing != nil {
			return apperror.NewConflict("movement already reversed").
				WithDetail("movementId", movementID).
				WithDetail("reversalId", existing.ID)
		}

		notes := reason
		res, err := s.projector.ApplyMovement(ctx, entity.StockMovement{
			TenantID:       original.TenantID,
			ProductID:      original.ProductID,
			LocationID:     original.LocationID,
			MovementType:   entity.MovementAdjustment,
			SignedQuantity: original.SignedQuantity.Neg(),
			ReferenceType:  entity.ReferenceReversal,
			ReferenceID:    ref,
			BatchNumber:    original.BatchNumber,
			ExpiryDate:     original.ExpiryDate,
			UnitCost:       original.UnitCost,
			CreatedBy:      audit.Actor(ctx, performedBy),
			Notes:          &notes,
		}, ledger.ApplyOptions{AllowNegative: allowNegative})
		if err != nil {
			return err
		}

		if err := s.audit.Record(ctx, audit.Entry{
			TenantID:   original.TenantID,
			EntityType: "stock_movement",
			EntityID:   ref,
			Action:     audit.ActionReverse,
			UserID:     res.Movement.CreatedBy,
			Changes: map[string]any{
				"reversalId": res.Movement.ID,
				"quantity":   res.Movement.SignedQuantity,
				"reason":     reason,
			},
		}); err != nil {
			return fmt.Errorf("audit reversal: %w", err)
		}

		result = Result{Movement: res.Movement, OnHand: res.Balance.Quantity}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	logger.Info(ctx, "stock movement reversed",
		"movement_id", movementID,
		"reversal_id", result.Movement.ID,
		"on_hand", result.OnHand.String(),
	)
	return result, nil
}

func applyOptions(m *entity.StockMovement, o Options) {
	if o.ReferenceNumber != "" {
		v := o.ReferenceNumber
		m.ReferenceNumber = &v
	}
	if o.BatchNumber != "" {
		v := o.BatchNumber
		m.BatchNumber = &v
	}
	if o.ExpiryDate != nil {
		v := o.ExpiryDate.UTC()
		m.ExpiryDate = &v
	}
	if o.UnitCost != nil {
		m.UnitCost = decimal.NullDecimal{Decimal: *o.UnitCost, Valid: true}
	}
	if o.Notes != "" {
		v := o.Notes
		m.Notes = &v
	}
}
