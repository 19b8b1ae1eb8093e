package reconciliation

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
)

// Repository persists reconciliation records.
type Repository interface {
	// GetByKeyForUpdate locks the record of key. It returns nil, nil when none exists;
	// implementations still serialize concurrent callers for the same key.
	GetByKeyForUpdate(ctx context.Context, key Key) (*Record, error)

	GetForUpdate(ctx context.Context, tenantID, recordID id.ID) (*Record, error)
	Get(ctx context.Context, tenantID, recordID id.ID) (*Record, error)

	// Save inserts a record with Version 0 or updates one with a matching version,
	// then increments Version.
	Save(ctx context.Context, r *Record) error

	List(ctx context.Context, filter ListFilter) ([]Record, error)
}

// ListFilter narrows record listings.
type ListFilter struct {
	TenantID id.ID
	BranchID *id.ID
	Statuses []Status
	From     *time.Time
	To       *time.Time
	Reviewed *bool
	Limit    int
	Offset   int
}

// SalesSummary is what the POS collaborator reports for a branch and period.
type SalesSummary struct {
	TotalQuantity types.Quantity
	TotalAmount   types.Money
	// ByProduct is optional; when nil only totals are compared.
	ByProduct map[id.ID]types.Quantity
}

// CashSummary is what the shift collaborator reports for a branch and period.
type CashSummary struct {
	Expected types.Money
	Actual   types.Money
}

// POSSource reads completed sales from the POS collaborator.
type POSSource interface {
	SalesSummary(ctx context.Context, tenantID, branchID id.ID, from, to time.Time) (SalesSummary, error)
	// ActiveBranches lists the branches with sales in [from, to).
	ActiveBranches(ctx context.Context, from, to time.Time) ([]TenantBranch, error)
}

// CashSource reads shift cash counts from the shift collaborator.
type CashSource interface {
	CashSummary(ctx context.Context, tenantID, branchID id.ID, from, to time.Time) (CashSummary, error)
	// ActiveBranches lists the branches with shifts closed in [from, to).
	ActiveBranches(ctx context.Context, from, to time.Time) ([]TenantBranch, error)
}

// LedgerSource is the read side of the movement ledger the engine needs.
type LedgerSource interface {
	SumOutboundByProduct(ctx context.Context, filter ledger.OutboundFilter) (map[id.ID]types.Quantity, error)
	ActiveLocations(ctx context.Context, from, to time.Time) ([]ledger.TenantLocation, error)
}
