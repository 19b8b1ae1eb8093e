package reconciliation

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

// BatchFailure records one branch that could not be reconciled.
type BatchFailure struct {
	TenantID id.ID  `json:"tenantId"`
	BranchID id.ID  `json:"branchId"`
	Error    string `json:"error"`
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	PeriodStart time.Time      `json:"periodStart"`
	PeriodEnd   time.Time      `json:"periodEnd"`
	Reconciled  int            `json:"reconciled"`
	Skipped     int            `json:"skipped"`
	ByStatus    map[Status]int `json:"byStatus"`
	Failures    []BatchFailure `json:"failures,omitempty"`
	// Tenants lists every tenant that had an active branch in the period.
	Tenants []id.ID `json:"tenants"`
}

// RunBatch reconciles every branch that recorded movements, POS sales or closed cash
// shifts in [from, to). A nil tenant covers all tenants. Reviewed records are skipped
// and other failures are collected; neither stops the batch. Only context
// cancellation aborts it.
func (e *Engine) RunBatch(ctx context.Context, tenantID id.ID, from, to time.Time) (BatchReport, error) {
	report := BatchReport{PeriodStart: from, PeriodEnd: to, ByStatus: make(map[Status]int)}
	if !from.Before(to) {
		return report, apperror.NewValidation("period start must be before period end")
	}

	locations, err := e.batchTargets(ctx, tenantID, from, to)
	if err != nil {
		return report, err
	}

	seen := make(map[id.ID]bool)
	for _, loc := range locations {
		if !seen[loc.TenantID] {
			seen[loc.TenantID] = true
			report.Tenants = append(report.Tenants, loc.TenantID)
		}
	}

	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rec, err := e.Reconcile(ctx, Request{
			TenantID:    loc.TenantID,
			BranchID:    loc.BranchID,
			PeriodStart: from,
			PeriodEnd:   to,
			RequestedBy: "system:reconciliation-batch",
		})
		switch {
		case err == nil:
			report.Reconciled++
			report.ByStatus[rec.Status]++
		case apperror.IsReviewedLocked(err):
			report.Skipped++
		default:
			logger.Warn(ctx, "branch reconciliation failed",
				"tenant_id", loc.TenantID,
				"branch_id", loc.BranchID,
				"error", err,
			)
			report.Failures = append(report.Failures, BatchFailure{
				TenantID: loc.TenantID,
				BranchID: loc.BranchID,
				Error:    err.Error(),
			})
		}
	}

	logger.Info(ctx, "reconciliation batch finished",
		"period_start", from,
		"period_end", to,
		"reconciled", report.Reconciled,
		"skipped", report.Skipped,
		"failed", len(report.Failures),
	)
	return report, nil
}

// TenantBranch is one batch target.
type TenantBranch struct {
	TenantID id.ID `db:"tenant_id"`
	BranchID id.ID `db:"branch_id"`
}

// batchTargets is the union of ledger, POS and shift activity, in first-seen order.
func (e *Engine) batchTargets(ctx context.Context, tenantID id.ID, from, to time.Time) ([]TenantBranch, error) {
	var targets []TenantBranch
	seen := make(map[TenantBranch]bool)
	add := func(tb TenantBranch) {
		if seen[tb] || (!id.IsNil(tenantID) && tb.TenantID != tenantID) {
			return
		}
		seen[tb] = true
		targets = append(targets, tb)
	}

	err := e.txm.ReadOnly(ctx, func(ctx context.Context) error {
		active, err := e.ledger.ActiveLocations(ctx, from, to)
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		for _, tl := range active {
			add(TenantBranch{TenantID: tl.TenantID, BranchID: tl.LocationID})
		}

		selling, err := e.pos.ActiveBranches(ctx, from, to)
		if err != nil {
			return fmt.Errorf("pos: %w", err)
		}
		shifts, err := e.cash.ActiveBranches(ctx, from, to)
		if err != nil {
			return fmt.Errorf("cash shifts: %w", err)
		}
		for _, tb := range append(selling, shifts...) {
			add(tb)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list active branches: %w", err)
	}
	return targets, nil
}
