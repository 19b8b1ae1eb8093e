package memory

import (
	"context"
	"fmt"
	"sort"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/reconciliation"
)

// ReconciliationRepo implements reconciliation.Repository.
type ReconciliationRepo struct {
	s *Store
}

// NewReconciliationRepo creates a record repository over s.
func NewReconciliationRepo(s *Store) *ReconciliationRepo {
	return &ReconciliationRepo{s: s}
}

var _ reconciliation.Repository = (*ReconciliationRepo)(nil)

// recordLock is shared by the key and id lookups so reconcile and review serialize.
func recordLock(k reconciliation.Key) string {
	return fmt.Sprintf("reconciliation:%s:%s:%d:%d", k.TenantID, k.BranchID, k.PeriodStart.UnixNano(), k.PeriodEnd.UnixNano())
}

func (r *ReconciliationRepo) GetByKeyForUpdate(ctx context.Context, key reconciliation.Key) (*reconciliation.Record, error) {
	var out *reconciliation.Record
	err := r.s.write(ctx, func(ctx context.Context, tx *memTx) error {
		if err := r.s.lock(ctx, tx, recordLock(key)); err != nil {
			return err
		}
		out = r.findByKey(ctx, key)
		return nil
	})
	return out, err
}

func (r *ReconciliationRepo) GetForUpdate(ctx context.Context, tenantID, recordID id.ID) (*reconciliation.Record, error) {
	var out *reconciliation.Record
	err := r.s.write(ctx, func(ctx context.Context, tx *memTx) error {
		rec, err := r.Get(ctx, tenantID, recordID)
		if err != nil {
			return err
		}
		if err := r.s.lock(ctx, tx, recordLock(rec.Key())); err != nil {
			return err
		}
		// Re-read under the lock.
		out, err = r.Get(ctx, tenantID, recordID)
		return err
	})
	return out, err
}

func (r *ReconciliationRepo) Get(ctx context.Context, tenantID, recordID id.ID) (*reconciliation.Record, error) {
	var out *reconciliation.Record
	r.s.read(ctx, func(v view) {
		if rec, ok := v.records()[recordID]; ok && rec.TenantID == tenantID {
			out = cloneRecord(rec)
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("reconciliation", recordID)
	}
	return out, nil
}

func (r *ReconciliationRepo) Save(ctx context.Context, rec *reconciliation.Record) error {
	return r.s.write(ctx, func(ctx context.Context, tx *memTx) error {
		var current *reconciliation.Record
		r.s.read(ctx, func(v view) {
			current = v.records()[rec.ID]
		})

		if current == nil {
			if rec.Version != 0 {
				return apperror.NewNotFound("reconciliation", rec.ID)
			}
			if other := r.findByKey(ctx, rec.Key()); other != nil {
				return apperror.NewConflict("reconciliation record for branch and period already exists")
			}
		} else if current.Version != rec.Version {
			return apperror.NewConcurrencyConflict("reconciliation", rec.ID.String())
		}

		rec.Version++
		tx.records[rec.ID] = cloneRecord(rec)
		return nil
	})
}

func (r *ReconciliationRepo) List(ctx context.Context, f reconciliation.ListFilter) ([]reconciliation.Record, error) {
	statuses := make(map[reconciliation.Status]bool, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses[st] = true
	}

	var out []reconciliation.Record
	r.s.read(ctx, func(v view) {
		for _, rec := range v.records() {
			switch {
			case rec.TenantID != f.TenantID:
				continue
			case f.BranchID != nil && rec.BranchID != *f.BranchID:
				continue
			case len(statuses) > 0 && !statuses[rec.Status]:
				continue
			case f.From != nil && rec.PeriodStart.Before(*f.From):
				continue
			case f.To != nil && rec.PeriodEnd.After(*f.To):
				continue
			case f.Reviewed != nil && rec.IsReviewed() != *f.Reviewed:
				continue
			}
			out = append(out, *cloneRecord(rec))
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.After(out[j].PeriodStart)
		}
		return id.Less(out[i].BranchID, out[j].BranchID)
	})
	return page(out, f.Offset, f.Limit), nil
}

func (r *ReconciliationRepo) findByKey(ctx context.Context, key reconciliation.Key) *reconciliation.Record {
	var out *reconciliation.Record
	r.s.read(ctx, func(v view) {
		for _, rec := range v.records() {
			if sameKey(rec.Key(), key) {
				out = cloneRecord(rec)
				return
			}
		}
	})
	return out
}

func cloneRecord(r *reconciliation.Record) *reconciliation.Record {
	c := *r
	c.Discrepancies = append([]reconciliation.Discrepancy(nil), r.Discrepancies...)
	return &c
}

func sameKey(a, b reconciliation.Key) bool {
	return a.TenantID == b.TenantID && a.BranchID == b.BranchID &&
		a.PeriodStart.Equal(b.PeriodStart) && a.PeriodEnd.Equal(b.PeriodEnd)
}
