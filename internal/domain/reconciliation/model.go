// Package reconciliation compares ledger-derived sales with POS totals and shift cash
// counts per branch and period.
package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Status summarizes a branch/period health check.
type Status string

const (
	StatusBalanced          Status = "balanced"
	StatusMinorIssues       Status = "minor_issues"
	StatusRequiresAttention Status = "requires_attention"
)

// IsValid checks the value against the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusBalanced, StatusMinorIssues, StatusRequiresAttention:
		return true
	}
	return false
}

// DiscrepancyKind says which comparison produced a discrepancy.
type DiscrepancyKind string

const (
	KindSalesTotal   DiscrepancyKind = "sales_total"
	KindProductSales DiscrepancyKind = "product_sales"
	KindCash         DiscrepancyKind = "cash"
)

// Severity grades a discrepancy against the configured tolerance band.
type Severity string

const (
	SeverityMinor Severity = "minor"
	SeverityMajor Severity = "major"
)

// Discrepancy is one mismatch. Expected is the independent source (POS, shift),
// Actual is the ledger or counted value.
type Discrepancy struct {
	Kind       DiscrepancyKind `json:"kind"`
	ProductID  *id.ID          `json:"productId,omitempty"`
	Expected   decimal.Decimal `json:"expected"`
	Actual     decimal.Decimal `json:"actual"`
	Difference decimal.Decimal `json:"difference"`
	Severity   Severity        `json:"severity"`
}

// Key identifies the single record of a branch and period.
type Key struct {
	TenantID    id.ID
	BranchID    id.ID
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Record is the stored reconciliation result.
type Record struct {
	ID          id.ID     `db:"id" json:"id"`
	TenantID    id.ID     `db:"tenant_id" json:"tenantId"`
	BranchID    id.ID     `db:"branch_id" json:"branchId"`
	PeriodStart time.Time `db:"period_start" json:"periodStart"`
	PeriodEnd   time.Time `db:"period_end" json:"periodEnd"`

	POSTotal           types.Quantity `db:"pos_total" json:"posTotal"`
	LedgerDerivedTotal types.Quantity `db:"ledger_derived_total" json:"ledgerDerivedTotal"`
	POSAmount          types.Money    `db:"pos_amount" json:"posAmount"`

	CashExpected   types.Money `db:"cash_expected" json:"cashExpected"`
	CashActual     types.Money `db:"cash_actual" json:"cashActual"`
	CashDifference types.Money `db:"cash_difference" json:"cashDifference"`

	Status        Status        `db:"status" json:"status"`
	Discrepancies []Discrepancy `db:"discrepancies" json:"discrepancies"`

	ReviewedBy  *string    `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ReviewNotes *string    `db:"review_notes" json:"reviewNotes,omitempty"`

	ComputedAt time.Time `db:"computed_at" json:"computedAt"`
	RunCount   int       `db:"run_count" json:"runCount"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
	Version    int64     `db:"version" json:"version"`
}

// Key returns the record's uniqueness key.
func (r *Record) Key() Key {
	return Key{TenantID: r.TenantID, BranchID: r.BranchID, PeriodStart: r.PeriodStart, PeriodEnd: r.PeriodEnd}
}

// IsReviewed reports whether a reviewer signed the record off.
func (r *Record) IsReviewed() bool {
	return r.ReviewedBy != nil
}

// Apply overwrites computed fields with outcome. Review fields are untouched.
func (r *Record) Apply(o Outcome, now time.Time) {
	r.POSTotal = o.POSTotal
	r.LedgerDerivedTotal = o.LedgerTotal
	r.POSAmount = o.POSAmount
	r.CashExpected = o.CashExpected
	r.CashActual = o.CashActual
	r.CashDifference = o.CashDifference
	r.Status = o.Status
	r.Discrepancies = o.Discrepancies
	r.ComputedAt = now
	r.UpdatedAt = now
	r.RunCount++
}
