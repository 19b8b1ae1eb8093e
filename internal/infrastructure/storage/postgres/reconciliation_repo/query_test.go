package reconciliation_repo

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/reconciliation"
)

func newRecord() *reconciliation.Record {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &reconciliation.Record{
		ID:             id.New(),
		TenantID:       id.New(),
		BranchID:       id.New(),
		PeriodStart:    start,
		PeriodEnd:      start.AddDate(0, 0, 1),
		Status:         reconciliation.StatusMinorIssues,
		CashExpected:   types.MustMoney("15000"),
		CashActual:     types.MustMoney("14500"),
		CashDifference: types.MustMoney("-500"),
		Discrepancies: []reconciliation.Discrepancy{{
			Kind:       reconciliation.KindCash,
			Expected:   types.MustMoney("15000"),
			Actual:     types.MustMoney("14500"),
			Difference: types.MustMoney("-500"),
			Severity:   reconciliation.SeverityMinor,
		}},
		ComputedAt: start.AddDate(0, 0, 1),
		RunCount:   1,
	}
}

func TestSaveQueryInsertsNewRecord(t *testing.T) {
	repo := NewRepo(nil)
	rec := newRecord()

	sql, args, err := repo.saveQuery(rec)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, "INSERT INTO stock_reconciliations ("), sql)
	assert.Len(t, args, len(recordColumns))

	var encoded string
	for _, a := range args {
		if s, ok := a.(string); ok && strings.HasPrefix(s, "[") {
			encoded = s
		}
	}
	var decoded []reconciliation.Discrepancy
	require.NoError(t, json.Unmarshal([]byte(encoded), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, reconciliation.KindCash, decoded[0].Kind)
}

func TestSaveQueryUpdatesWithVersionGuard(t *testing.T) {
	repo := NewRepo(nil)
	rec := newRecord()
	rec.Version = 2

	sql, args, err := repo.saveQuery(rec)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, "UPDATE stock_reconciliations SET "), sql)

	set := sql[:strings.Index(sql, " WHERE ")]
	for _, col := range []string{"branch_id", "period_start", "period_end", "created_at"} {
		assert.NotContains(t, set, " "+col+" =")
	}
	assert.Contains(t, sql, "AND version = $")
	assert.Equal(t, int64(2), args[len(args)-1])
}

func TestListQuery(t *testing.T) {
	repo := NewRepo(nil)
	cols := strings.Join(recordColumns, ", ")
	reviewed := false
	branch := id.New()

	sql, args, err := repo.listQuery(reconciliation.ListFilter{
		TenantID: id.New(),
		BranchID: &branch,
		Statuses: []reconciliation.Status{reconciliation.StatusRequiresAttention},
		Reviewed: &reviewed,
		Limit:    100,
	}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT "+cols+" FROM stock_reconciliations WHERE tenant_id = $1 AND branch_id = $2"+
		" AND status IN ($3) AND reviewed_at IS NULL ORDER BY period_start DESC, branch_id LIMIT 100", sql)
	assert.Len(t, args, 3)
}

func TestSourceQueries(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	sql, args, err := NewPOSSource(nil).salesQuery(id.New(), id.New(), from, to).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT product_id, SUM(quantity)::BIGINT AS quantity, SUM(amount) AS amount FROM pos_sale_lines"+
		" WHERE branch_id = $1 AND tenant_id = $2 AND sold_at >= $3 AND sold_at < $4 GROUP BY product_id", sql)
	assert.Len(t, args, 4)

	sql, _, err = NewCashSource(nil).cashQuery(id.New(), id.New(), from, to).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT COALESCE(SUM(expected), 0) AS expected, COALESCE(SUM(actual), 0) AS actual FROM cash_shifts"+
		" WHERE branch_id = $1 AND tenant_id = $2 AND closed_at >= $3 AND closed_at < $4", sql)
}

func TestActiveBranchesQuery(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	pos := NewPOSSource(nil)
	sql, args, err := activeBranchesQuery(pos.builder, "pos_sale_lines", "sold_at", from, to).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT DISTINCT tenant_id, branch_id FROM pos_sale_lines"+
		" WHERE sold_at >= $1 AND sold_at < $2 ORDER BY tenant_id, branch_id", sql)
	assert.Equal(t, []any{from, to}, args)
}
