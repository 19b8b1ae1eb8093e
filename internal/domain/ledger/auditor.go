package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// Mismatch is a key whose materialized balance differs from its ledger sum.
type Mismatch struct {
	Key          entity.BalanceKey `json:"key"`
	Materialized types.Quantity    `json:"materialized"`
	LedgerSum    types.Quantity    `json:"ledgerSum"`
	Difference   types.Quantity    `json:"difference"`
}

// AuditReport is the outcome of an integrity check.
type AuditReport struct {
	TenantID    id.ID      `json:"tenantId"`
	LocationID  *id.ID     `json:"locationId,omitempty"`
	CheckedKeys int        `json:"checkedKeys"`
	Mismatches  []Mismatch `json:"mismatches"`
	CheckedAt   time.Time  `json:"checkedAt"`
}

// Consistent reports whether every balance equals its ledger sum.
func (r AuditReport) Consistent() bool {
	return len(r.Mismatches) == 0
}

// Auditor recomputes balances from the full ledger. Offline use only; the hot path
// never sums the ledger.
type Auditor struct {
	txm       tx.ReadOnlyManager
	movements MovementRepository
	balances  BalanceRepository
}

// NewAuditor creates an auditor.
func NewAuditor(txm tx.ReadOnlyManager, movements MovementRepository, balances BalanceRepository) *Auditor {
	return &Auditor{txm: txm, movements: movements, balances: balances}
}

// Verify compares every materialized balance of the tenant (optionally one location)
// with Σ signed_quantity over its movements, reading both from one snapshot.
func (a *Auditor) Verify(ctx context.Context, tenantID id.ID, locationID *id.ID) (AuditReport, error) {
	report := AuditReport{TenantID: tenantID, LocationID: locationID, Mismatches: []Mismatch{}}

	var sums []KeySum
	var balances []entity.InventoryBalance
	err := a.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if sums, err = a.movements.SumByKey(ctx, tenantID, locationID); err != nil {
			return fmt.Errorf("sum ledger: %w", err)
		}
		if balances, err = a.balances.List(ctx, tenantID, locationID); err != nil {
			return fmt.Errorf("list balances: %w", err)
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	ledgerSums := make(map[entity.BalanceKey]types.Quantity, len(sums))
	for _, s := range sums {
		ledgerSums[s.BalanceKey] = s.Sum
	}
	materialized := make(map[entity.BalanceKey]types.Quantity, len(balances))
	for _, b := range balances {
		materialized[b.BalanceKey] = b.Quantity
	}

	keys := make(map[entity.BalanceKey]struct{}, len(ledgerSums)+len(materialized))
	for k := range ledgerSums {
		keys[k] = struct{}{}
	}
	for k := range materialized {
		keys[k] = struct{}{}
	}

	for k := range keys {
		m, s := materialized[k], ledgerSums[k]
		if m != s {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Key:          k,
				Materialized: m,
				LedgerSum:    s,
				Difference:   m - s,
			})
		}
	}
	sort.Slice(report.Mismatches, func(i, j int) bool {
		return report.Mismatches[i].Key.Less(report.Mismatches[j].Key)
	})

	report.CheckedKeys = len(keys)
	report.CheckedAt = time.Now().UTC()

	if !report.Consistent() {
		logger.Error(ctx, "balance integrity check failed",
			"tenant_id", tenantID,
			"mismatches", len(report.Mismatches),
		)
	}
	return report, nil
}
