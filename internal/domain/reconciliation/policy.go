package reconciliation

import (
	"sort"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Thresholds configure the status policy.
type Thresholds struct {
	// BalancedCashThreshold is the largest |cashDifference| still considered balanced.
	BalancedCashThreshold types.Money
	// CashTolerance is the largest |cashDifference| still considered a minor issue.
	CashTolerance types.Money
	// QuantityTolerance is the largest ledger/POS unit gap still considered a minor issue.
	QuantityTolerance types.Quantity
}

// Inputs are the gathered figures for one branch and period.
type Inputs struct {
	Sales           SalesSummary
	LedgerByProduct map[id.ID]types.Quantity
	Cash            CashSummary
}

// Outcome is the computed part of a record.
type Outcome struct {
	POSTotal       types.Quantity
	LedgerTotal    types.Quantity
	POSAmount      types.Money
	CashExpected   types.Money
	CashActual     types.Money
	CashDifference types.Money
	Status         Status
	Discrepancies  []Discrepancy
}

// Evaluate computes totals, discrepancies and status. It has no side effects.
func Evaluate(in Inputs, th Thresholds) Outcome {
	out := Outcome{
		POSTotal:      in.Sales.TotalQuantity,
		POSAmount:     in.Sales.TotalAmount,
		CashExpected:  in.Cash.Expected,
		CashActual:    in.Cash.Actual,
		Discrepancies: []Discrepancy{},
	}
	for _, q := range in.LedgerByProduct {
		out.LedgerTotal += q
	}
	out.CashDifference = in.Cash.Actual.Sub(in.Cash.Expected)

	exact := true
	withinTolerance := true

	quantityGap := func(kind DiscrepancyKind, productID *id.ID, expected, actual types.Quantity) {
		if expected == actual {
			return
		}
		exact = false
		sev := SeverityMinor
		if (actual - expected).Abs() > th.QuantityTolerance {
			sev = SeverityMajor
			withinTolerance = false
		}
		out.Discrepancies = append(out.Discrepancies, Discrepancy{
			Kind:       kind,
			ProductID:  productID,
			Expected:   expected.Decimal(),
			Actual:     actual.Decimal(),
			Difference: (actual - expected).Decimal(),
			Severity:   sev,
		})
	}

	quantityGap(KindSalesTotal, nil, out.POSTotal, out.LedgerTotal)

	if in.Sales.ByProduct != nil {
		for _, pid := range productUnion(in.Sales.ByProduct, in.LedgerByProduct) {
			quantityGap(KindProductSales, &pid, in.Sales.ByProduct[pid], in.LedgerByProduct[pid])
		}
	}

	absCash := out.CashDifference.Abs()
	cashBalanced := absCash.LessThanOrEqual(th.BalancedCashThreshold)
	cashTolerable := absCash.LessThanOrEqual(th.CashTolerance)
	if !out.CashDifference.IsZero() {
		sev := SeverityMinor
		if !cashTolerable {
			sev = SeverityMajor
		}
		out.Discrepancies = append(out.Discrepancies, Discrepancy{
			Kind:       KindCash,
			Expected:   in.Cash.Expected,
			Actual:     in.Cash.Actual,
			Difference: out.CashDifference,
			Severity:   sev,
		})
	}

	switch {
	case cashBalanced && exact:
		out.Status = StatusBalanced
	case cashTolerable && withinTolerance:
		out.Status = StatusMinorIssues
	default:
		out.Status = StatusRequiresAttention
	}
	return out
}

func productUnion(a, b map[id.ID]types.Quantity) []id.ID {
	seen := make(map[id.ID]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	out := make([]id.ID, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return id.Less(out[i], out[j]) })
	return out
}

