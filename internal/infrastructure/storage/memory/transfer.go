package memory

import (
	"context"
	"sort"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/transfer"
)

// TransferRepo implements transfer.Repository.
type TransferRepo struct {
	s *Store
}

// NewTransferRepo creates a transfer repository over s.
func NewTransferRepo(s *Store) *TransferRepo {
	return &TransferRepo{s: s}
}

var _ transfer.Repository = (*TransferRepo)(nil)

func (r *TransferRepo) Create(ctx context.Context, t *transfer.Transfer) error {
	return r.s.write(ctx, func(ctx context.Context, tx *memTx) error {
		if _, exists := r.find(ctx, t.ID); exists {
			return apperror.NewConflict("transfer already exists").WithDetail("id", t.ID.String())
		}
		t.Version = 1
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.RequestedAt
		}
		for i := range t.Lines {
			t.Lines[i].TransferID = t.ID
		}
		tx.transfers[t.ID] = t.Clone()
		return nil
	})
}

func (r *TransferRepo) Get(ctx context.Context, tenantID, transferID id.ID) (*transfer.Transfer, error) {
	t, ok := r.find(ctx, transferID)
	if !ok || t.TenantID != tenantID {
		return nil, apperror.NewNotFound("transfer", transferID)
	}
	return t, nil
}

func (r *TransferRepo) GetForUpdate(ctx context.Context, tenantID, transferID id.ID) (*transfer.Transfer, error) {
	var out *transfer.Transfer
	err := r.s.write(ctx, func(ctx context.Context, tx *memTx) error {
		if err := r.s.lock(ctx, tx, "transfer:"+transferID.String()); err != nil {
			return err
		}
		t, err := r.Get(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

func (r *TransferRepo) Update(ctx context.Context, t *transfer.Transfer) error {
	return r.s.write(ctx, func(ctx context.Context, tx *memTx) error {
		current, ok := r.find(ctx, t.ID)
		if !ok || current.TenantID != t.TenantID {
			return apperror.NewNotFound("transfer", t.ID)
		}
		if current.Version != t.Version {
			return apperror.NewConcurrencyConflict("transfer", t.ID.String())
		}
		t.Version++
		tx.transfers[t.ID] = t.Clone()
		return nil
	})
}

func (r *TransferRepo) List(ctx context.Context, f transfer.ListFilter) ([]transfer.Transfer, error) {
	statuses := make(map[transfer.Status]bool, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses[st] = true
	}

	var out []transfer.Transfer
	r.s.read(ctx, func(v view) {
		for _, t := range v.transfers() {
			if t.TenantID != f.TenantID {
				continue
			}
			if len(statuses) > 0 && !statuses[t.Status] {
				continue
			}
			if f.LocationID != nil && t.FromLocationID != *f.LocationID && t.ToLocationID != *f.LocationID {
				continue
			}
			header := *t
			header.Lines = nil
			out = append(out, header)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.After(out[j].RequestedAt)
		}
		return id.Less(out[j].ID, out[i].ID)
	})
	return page(out, f.Offset, f.Limit), nil
}

func (r *TransferRepo) find(ctx context.Context, transferID id.ID) (*transfer.Transfer, bool) {
	var (
		out *transfer.Transfer
		ok  bool
	)
	r.s.read(ctx, func(v view) {
		var t *transfer.Transfer
		if t, ok = v.transfer(transferID); ok {
			out = t.Clone()
		}
	})
	return out, ok
}
