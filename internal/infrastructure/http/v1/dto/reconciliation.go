package dto

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/reconciliation"
)

// ReconcileRequest is the body of POST /reconciliations. The period is [periodStart, periodEnd).
type ReconcileRequest struct {
	BranchID    id.ID     `json:"branchId" binding:"required"`
	PeriodStart time.Time `json:"periodStart" binding:"required"`
	PeriodEnd   time.Time `json:"periodEnd" binding:"required"`
	Override    bool      `json:"override"`
}

func (r ReconcileRequest) ToRequest(tenantID id.ID, userID string) reconciliation.Request {
	return reconciliation.Request{
		TenantID:    tenantID,
		BranchID:    r.BranchID,
		PeriodStart: r.PeriodStart.UTC(),
		PeriodEnd:   r.PeriodEnd.UTC(),
		Override:    r.Override,
		RequestedBy: userID,
	}
}

// ReviewRequest is the body of POST /reconciliations/:id/review.
type ReviewRequest struct {
	Notes string `json:"notes" binding:"max=2000"`
}
