package reconciliation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

func thresholds(cashTolerance string) Thresholds {
	return Thresholds{
		BalancedCashThreshold: types.MustMoney("100"),
		CashTolerance:         types.MustMoney(cashTolerance),
		QuantityTolerance:     types.NewQuantity(5),
	}
}

func scenarioInputs() Inputs {
	product := id.New()
	return Inputs{
		Sales: SalesSummary{TotalQuantity: types.NewQuantity(1_000_000), TotalAmount: types.MustMoney("25000000")},
		LedgerByProduct: map[id.ID]types.Quantity{
			product: types.NewQuantity(1_000_000),
		},
		Cash: CashSummary{Expected: types.MustMoney("500000"), Actual: types.MustMoney("499500")},
	}
}

func TestEvaluateCashShortWithinTolerance(t *testing.T) {
	out := Evaluate(scenarioInputs(), thresholds("500"))
	assert.True(t, out.CashDifference.Equal(types.MustMoney("-500")))
	assert.Equal(t, StatusMinorIssues, out.Status)
	assert.Equal(t, out.POSTotal, out.LedgerTotal)
	require.Len(t, out.Discrepancies, 1)
	assert.Equal(t, KindCash, out.Discrepancies[0].Kind)
	assert.Equal(t, SeverityMinor, out.Discrepancies[0].Severity)
}

func TestEvaluateCashShortBeyondTolerance(t *testing.T) {
	out := Evaluate(scenarioInputs(), thresholds("499.99"))
	assert.True(t, out.CashDifference.Equal(types.MustMoney("-500")))
	assert.Equal(t, StatusRequiresAttention, out.Status)
	require.Len(t, out.Discrepancies, 1)
	assert.Equal(t, SeverityMajor, out.Discrepancies[0].Severity)
}

func TestEvaluateBalanced(t *testing.T) {
	in := scenarioInputs()
	in.Cash.Actual = types.MustMoney("499950")
	out := Evaluate(in, thresholds("500"))
	assert.Equal(t, StatusBalanced, out.Status)
	// A difference under the balanced threshold is still reported.
	assert.Len(t, out.Discrepancies, 1)

	in.Cash.Actual = in.Cash.Expected
	out = Evaluate(in, thresholds("500"))
	assert.Equal(t, StatusBalanced, out.Status)
	assert.Empty(t, out.Discrepancies)
}

func TestEvaluateQuantityMismatch(t *testing.T) {
	in := scenarioInputs()
	in.Cash.Actual = in.Cash.Expected
	for p := range in.LedgerByProduct {
		in.LedgerByProduct[p] = types.NewQuantity(999_997)
	}

	out := Evaluate(in, thresholds("500"))
	assert.Equal(t, StatusMinorIssues, out.Status, "any total mismatch rules out balanced")
	require.Len(t, out.Discrepancies, 1)
	assert.Equal(t, KindSalesTotal, out.Discrepancies[0].Kind)
	assert.True(t, out.Discrepancies[0].Difference.Equal(types.NewQuantity(-3).Decimal()))

	for p := range in.LedgerByProduct {
		in.LedgerByProduct[p] = types.NewQuantity(999_990)
	}
	out = Evaluate(in, thresholds("500"))
	assert.Equal(t, StatusRequiresAttention, out.Status)
}

func TestEvaluateProductBreakdown(t *testing.T) {
	a, b := id.New(), id.New()
	in := Inputs{
		Sales: SalesSummary{
			TotalQuantity: types.NewQuantity(10),
			ByProduct:     map[id.ID]types.Quantity{a: types.NewQuantity(6), b: types.NewQuantity(4)},
		},
		LedgerByProduct: map[id.ID]types.Quantity{a: types.NewQuantity(4), b: types.NewQuantity(6)},
	}

	out := Evaluate(in, thresholds("500"))
	// Totals agree but products were swapped.
	assert.Equal(t, StatusMinorIssues, out.Status)
	require.Len(t, out.Discrepancies, 2)
	for _, d := range out.Discrepancies {
		assert.Equal(t, KindProductSales, d.Kind)
		require.NotNil(t, d.ProductID)
	}
}

func TestEvaluateEmptyPeriod(t *testing.T) {
	out := Evaluate(Inputs{}, thresholds("500"))
	assert.Equal(t, StatusBalanced, out.Status)
	assert.NotNil(t, out.Discrepancies)
	assert.Empty(t, out.Discrepancies)
}
