package memory

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/reconciliation"
)

// SaleLine is one completed POS sale line, as the POS service would store it.
type SaleLine struct {
	TenantID  id.ID
	BranchID  id.ID
	ProductID id.ID
	Quantity  types.Quantity
	Amount    types.Money
	SoldAt    time.Time
}

// CashShift is one closed cash shift, as the shift service would store it.
type CashShift struct {
	TenantID id.ID
	BranchID id.ID
	Expected types.Money
	Actual   types.Money
	ClosedAt time.Time
}

// AddSales loads POS sale lines. Collaborator data is not transactional here.
func (s *Store) AddSales(lines ...SaleLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.sales = append(s.st.sales, lines...)
}

// AddCashShifts loads closed cash shifts.
func (s *Store) AddCashShifts(shifts ...CashShift) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.shifts = append(s.st.shifts, shifts...)
}

// POSSource implements reconciliation.POSSource over loaded sale lines.
type POSSource struct {
	s *Store
}

// NewPOSSource creates a POS source over s.
func NewPOSSource(s *Store) *POSSource {
	return &POSSource{s: s}
}

var _ reconciliation.POSSource = (*POSSource)(nil)

func (p *POSSource) SalesSummary(ctx context.Context, tenantID, branchID id.ID, from, to time.Time) (reconciliation.SalesSummary, error) {
	sum := reconciliation.SalesSummary{ByProduct: make(map[id.ID]types.Quantity)}
	p.s.read(ctx, func(v view) {
		for _, l := range v.base.sales {
			if l.TenantID != tenantID || l.BranchID != branchID || l.SoldAt.Before(from) || !l.SoldAt.Before(to) {
				continue
			}
			sum.TotalQuantity += l.Quantity
			sum.TotalAmount = sum.TotalAmount.Add(l.Amount)
			sum.ByProduct[l.ProductID] += l.Quantity
		}
	})
	return sum, nil
}

func (p *POSSource) ActiveBranches(ctx context.Context, from, to time.Time) ([]reconciliation.TenantBranch, error) {
	var out []reconciliation.TenantBranch
	p.s.read(ctx, func(v view) {
		seen := make(map[reconciliation.TenantBranch]bool)
		for _, l := range v.base.sales {
			tb := reconciliation.TenantBranch{TenantID: l.TenantID, BranchID: l.BranchID}
			if seen[tb] || l.SoldAt.Before(from) || !l.SoldAt.Before(to) {
				continue
			}
			seen[tb] = true
			out = append(out, tb)
		}
	})
	return out, nil
}

// CashSource implements reconciliation.CashSource over loaded shifts.
type CashSource struct {
	s *Store
}

// NewCashSource creates a cash source over s.
func NewCashSource(s *Store) *CashSource {
	return &CashSource{s: s}
}

var _ reconciliation.CashSource = (*CashSource)(nil)

func (c *CashSource) CashSummary(ctx context.Context, tenantID, branchID id.ID, from, to time.Time) (reconciliation.CashSummary, error) {
	var sum reconciliation.CashSummary
	c.s.read(ctx, func(v view) {
		for _, sh := range v.base.shifts {
			if sh.TenantID != tenantID || sh.BranchID != branchID || sh.ClosedAt.Before(from) || !sh.ClosedAt.Before(to) {
				continue
			}
			sum.Expected = sum.Expected.Add(sh.Expected)
			sum.Actual = sum.Actual.Add(sh.Actual)
		}
	})
	return sum, nil
}

func (c *CashSource) ActiveBranches(ctx context.Context, from, to time.Time) ([]reconciliation.TenantBranch, error) {
	var out []reconciliation.TenantBranch
	c.s.read(ctx, func(v view) {
		seen := make(map[reconciliation.TenantBranch]bool)
		for _, sh := range v.base.shifts {
			tb := reconciliation.TenantBranch{TenantID: sh.TenantID, BranchID: sh.BranchID}
			if seen[tb] || sh.ClosedAt.Before(from) || !sh.ClosedAt.Before(to) {
				continue
			}
			seen[tb] = true
			out = append(out, tb)
		}
	})
	return out, nil
}
