package reconciliation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/event"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/reconciliation")

// Config holds the engine's policy knobs.
type Config struct {
	Thresholds Thresholds
	// AllowRecomputeAfterReview lets a re-run overwrite a reviewed record's computed fields.
	AllowRecomputeAfterReview bool
	Policy                    tx.Policy
}

// Engine produces branch/period health reports. It never writes to the ledger.
type Engine struct {
	txm    tx.ReadOnlyManager
	repo   Repository
	ledger LedgerSource
	pos    POSSource
	cash   CashSource
	events event.Publisher
	audit  audit.Recorder
	cfg    Config
	now    func() time.Time
}

// NewEngine wires the engine. events and recorder may be nil.
func NewEngine(txm tx.ReadOnlyManager, repo Repository, ledgerSrc LedgerSource, pos POSSource, cash CashSource,
	events event.Publisher, recorder audit.Recorder, cfg Config) *Engine {
	if events == nil {
		events = event.Nop{}
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Engine{
		txm:    txm,
		repo:   repo,
		ledger: ledgerSrc,
		pos:    pos,
		cash:   cash,
		events: events,
		audit:  recorder,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Request asks for one branch/period reconciliation. The window is [PeriodStart, PeriodEnd).
type Request struct {
	TenantID    id.ID
	BranchID    id.ID
	PeriodStart time.Time
	PeriodEnd   time.Time
	// Override recomputes a reviewed record even when policy forbids it.
	Override    bool
	RequestedBy string
}

func (r Request) validate() error {
	switch {
	case id.IsNil(r.TenantID):
		return apperror.NewValidation("tenant is required")
	case id.IsNil(r.BranchID):
		return apperror.NewValidation("branch is required")
	case r.PeriodStart.IsZero() || r.PeriodEnd.IsZero():
		return apperror.NewValidation("period bounds are required")
	case !r.PeriodStart.Before(r.PeriodEnd):
		return apperror.NewValidation("period start must be before period end")
	}
	return nil
}

// Reconcile gathers POS, ledger and cash figures in one read snapshot, evaluates them
// and upserts the record for the branch and period.
func (e *Engine) Reconcile(ctx context.Context, req Request) (*Record, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if !appctx.CanAccessLocation(ctx, req.BranchID) {
		return nil, apperror.NewForbidden("branch is outside the caller's scope")
	}

	ctx, span := tracer.Start(ctx, "reconciliation.reconcile",
		trace.WithAttributes(
			attribute.String("branch.id", req.BranchID.String()),
			attribute.String("period.start", req.PeriodStart.Format(time.RFC3339)),
		))
	defer span.End()

	inputs, err := e.gather(ctx, req)
	if err != nil {
		return nil, err
	}
	outcome := Evaluate(inputs, e.cfg.Thresholds)

	key := Key{TenantID: req.TenantID, BranchID: req.BranchID, PeriodStart: req.PeriodStart.UTC(), PeriodEnd: req.PeriodEnd.UTC()}
	var rec *Record
	err = tx.Run(ctx, e.txm, e.cfg.Policy, "reconcile", func(ctx context.Context) error {
		existing, err := e.repo.GetByKeyForUpdate(ctx, key)
		if err != nil {
			return fmt.Errorf("lock reconciliation record: %w", err)
		}

		now := e.now()
		if existing == nil {
			existing = &Record{
				ID:          id.New(),
				TenantID:    key.TenantID,
				BranchID:    key.BranchID,
				PeriodStart: key.PeriodStart,
				PeriodEnd:   key.PeriodEnd,
				CreatedAt:   now,
			}
		} else if existing.IsReviewed() && !e.cfg.AllowRecomputeAfterReview && !req.Override {
			return apperror.NewReviewedRecordLocked(existing.ID, *existing.ReviewedBy)
		}

		existing.Apply(outcome, now)
		if err := e.repo.Save(ctx, existing); err != nil {
			return fmt.Errorf("save reconciliation record: %w", err)
		}

		if err := e.events.Publish(ctx, event.Event{
			TenantID:      existing.TenantID,
			AggregateType: "reconciliation",
			AggregateID:   existing.ID.String(),
			EventType:     event.ReconciliationCompleted,
			Payload:       existing,
		}); err != nil {
			return fmt.Errorf("publish reconciliation event: %w", err)
		}
		if err := e.audit.Record(ctx, audit.Entry{
			TenantID:   existing.TenantID,
			EntityType: "reconciliation",
			EntityID:   existing.ID.String(),
			Action:     audit.ActionReconcile,
			UserID:     audit.Actor(ctx, req.RequestedBy),
			Changes: map[string]any{
				"status":        existing.Status,
				"runCount":      existing.RunCount,
				"override":      req.Override,
				"discrepancies": len(existing.Discrepancies),
			},
		}); err != nil {
			return fmt.Errorf("audit reconciliation: %w", err)
		}

		rec = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("reconciliation.status", string(rec.Status)))
	logger.Info(ctx, "reconciliation completed",
		"record_id", rec.ID,
		"branch_id", rec.BranchID,
		"status", rec.Status,
		"cash_difference", rec.CashDifference.String(),
		"run_count", rec.RunCount,
	)
	return rec, nil
}

// gather reads every input inside one read-only snapshot so totals are mutually consistent.
func (e *Engine) gather(ctx context.Context, req Request) (Inputs, error) {
	var in Inputs
	err := e.txm.ReadOnly(ctx, func(ctx context.Context) error {
		sales, err := e.pos.SalesSummary(ctx, req.TenantID, req.BranchID, req.PeriodStart, req.PeriodEnd)
		if err != nil {
			return fmt.Errorf("pos sales summary: %w", err)
		}
		byProduct, err := e.ledger.SumOutboundByProduct(ctx, ledger.OutboundFilter{
			TenantID:      req.TenantID,
			LocationID:    req.BranchID,
			ReferenceType: entity.ReferenceSale,
			From:          req.PeriodStart,
			To:            req.PeriodEnd,
		})
		if err != nil {
			return fmt.Errorf("ledger outbound totals: %w", err)
		}
		cash, err := e.cash.CashSummary(ctx, req.TenantID, req.BranchID, req.PeriodStart, req.PeriodEnd)
		if err != nil {
			return fmt.Errorf("shift cash summary: %w", err)
		}
		in = Inputs{Sales: sales, LedgerByProduct: byProduct, Cash: cash}
		return nil
	})
	return in, err
}

// Review signs a record off. Reviewing again as the same reviewer is a no-op; a
// different reviewer gets a Conflict.
func (e *Engine) Review(ctx context.Context, tenantID, recordID id.ID, reviewer, notes string) (*Record, error) {
	reviewer = audit.Actor(ctx, reviewer)
	if reviewer == "" {
		return nil, apperror.NewValidation("reviewer is required")
	}

	var (
		rec     *Record
		changed bool
	)
	err := tx.Run(ctx, e.txm, e.cfg.Policy, "reconciliation_review", func(ctx context.Context) error {
		r, err := e.repo.GetForUpdate(ctx, tenantID, recordID)
		if err != nil {
			return err
		}
		if !appctx.CanAccessLocation(ctx, r.BranchID) {
			return apperror.NewForbidden("branch is outside the caller's scope")
		}
		if r.IsReviewed() {
			if *r.ReviewedBy != reviewer {
				return apperror.NewConflict("reconciliation record already reviewed").
					WithDetail("reviewedBy", *r.ReviewedBy)
			}
			rec = r
			return nil
		}

		now := e.now()
		r.ReviewedBy = &reviewer
		r.ReviewedAt = &now
		if notes != "" {
			r.ReviewNotes = &notes
		}
		r.UpdatedAt = now
		if err := e.repo.Save(ctx, r); err != nil {
			return fmt.Errorf("save reconciliation review: %w", err)
		}
		if err := e.events.Publish(ctx, event.Event{
			TenantID:      r.TenantID,
			AggregateType: "reconciliation",
			AggregateID:   r.ID.String(),
			EventType:     event.ReconciliationReviewed,
			Payload:       r,
		}); err != nil {
			return fmt.Errorf("publish review event: %w", err)
		}
		if err := e.audit.Record(ctx, audit.Entry{
			TenantID:   r.TenantID,
			EntityType: "reconciliation",
			EntityID:   r.ID.String(),
			Action:     audit.ActionReview,
			UserID:     reviewer,
			Changes:    map[string]any{"reviewedBy": reviewer, "notes": notes, "status": r.Status},
		}); err != nil {
			return fmt.Errorf("audit review: %w", err)
		}
		rec = r
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		logger.Info(ctx, "reconciliation reviewed", "record_id", rec.ID, "reviewed_by", reviewer)
	}
	return rec, nil
}

// Get returns one record.
func (e *Engine) Get(ctx context.Context, tenantID, recordID id.ID) (*Record, error) {
	return e.repo.Get(ctx, tenantID, recordID)
}

// List returns records ordered by period start descending.
func (e *Engine) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	if id.IsNil(filter.TenantID) {
		return nil, apperror.NewValidation("tenant is required")
	}
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, apperror.NewValidation("unknown reconciliation status").WithDetail("status", string(st))
		}
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return e.repo.List(ctx, filter)
}
