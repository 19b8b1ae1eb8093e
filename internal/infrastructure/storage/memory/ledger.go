package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
)

var errReadOnly = errors.New("memory: write in read-only transaction")

// MovementRepo implements ledger.MovementRepository.
type MovementRepo struct {
	s *Store
}

// NewMovementRepo creates a movement repository over s.
func NewMovementRepo(s *Store) *MovementRepo {
	return &MovementRepo{s: s}
}

var _ ledger.MovementRepository = (*MovementRepo)(nil)

func (r *MovementRepo) Insert(ctx context.Context, m *entity.StockMovement) error {
	return r.s.write(ctx, func(ctx context.Context, t *memTx) error {
		m.ID = r.s.nextID.Add(1)
		if m.CreatedAt.IsZero() {
			m.CreatedAt = r.s.now()
		}
		t.movements = append(t.movements, *m)
		return nil
	})
}

func (r *MovementRepo) GetByID(ctx context.Context, tenantID id.ID, movementID int64) (entity.StockMovement, error) {
	var (
		found entity.StockMovement
		ok    bool
	)
	r.s.read(ctx, func(v view) {
		all := v.movements()
		i := sort.Search(len(all), func(i int) bool { return all[i].ID >= movementID })
		if i < len(all) && all[i].ID == movementID && all[i].TenantID == tenantID {
			found, ok = all[i], true
			return
		}
		// Pending rows of the current transaction are appended unsorted.
		for _, m := range all {
			if m.ID == movementID && m.TenantID == tenantID {
				found, ok = m, true
				return
			}
		}
	})
	if !ok {
		return entity.StockMovement{}, apperror.NewNotFound("stock_movement", movementID)
	}
	return found, nil
}

func (r *MovementRepo) List(ctx context.Context, f ledger.MovementFilter) ([]entity.StockMovement, error) {
	var out []entity.StockMovement
	r.s.read(ctx, func(v view) {
		for _, m := range v.movements() {
			if matchMovement(m, f) {
				out = append(out, m)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, f.Offset, f.Limit), nil
}

func matchMovement(m entity.StockMovement, f ledger.MovementFilter) bool {
	if m.TenantID != f.TenantID {
		return false
	}
	if f.ProductID != nil && m.ProductID != *f.ProductID {
		return false
	}
	if f.LocationID != nil && m.LocationID != *f.LocationID {
		return false
	}
	if len(f.MovementTypes) > 0 {
		hit := false
		for _, mt := range f.MovementTypes {
			if m.MovementType == mt {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if f.ReferenceType != nil && m.ReferenceType != *f.ReferenceType {
		return false
	}
	if f.ReferenceID != nil && m.ReferenceID != *f.ReferenceID {
		return false
	}
	if f.From != nil && m.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !m.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

func (r *MovementRepo) FindByReference(ctx context.Context, key entity.BalanceKey, movementType entity.MovementType,
	referenceType entity.ReferenceType, referenceID string) (*entity.StockMovement, error) {
	var found *entity.StockMovement
	r.s.read(ctx, func(v view) {
		for _, m := range v.movements() {
			if m.Key() == key && m.MovementType == movementType &&
				m.ReferenceType == referenceType && m.ReferenceID == referenceID {
				found = &m
				return
			}
		}
	})
	return found, nil
}

func (r *MovementRepo) SumByKey(ctx context.Context, tenantID id.ID, locationID *id.ID) ([]ledger.KeySum, error) {
	sums := make(map[entity.BalanceKey]*ledger.KeySum)
	r.s.read(ctx, func(v view) {
		for _, m := range v.movements() {
			if m.TenantID != tenantID || (locationID != nil && m.LocationID != *locationID) {
				continue
			}
			ks, ok := sums[m.Key()]
			if !ok {
				ks = &ledger.KeySum{BalanceKey: m.Key()}
				sums[m.Key()] = ks
			}
			ks.Sum += m.SignedQuantity
			ks.Count++
		}
	})
	out := make([]ledger.KeySum, 0, len(sums))
	for _, ks := range sums {
		out = append(out, *ks)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BalanceKey.Less(out[j].BalanceKey) })
	return out, nil
}

func (r *MovementRepo) SumOutboundByProduct(ctx context.Context, f ledger.OutboundFilter) (map[id.ID]types.Quantity, error) {
	out := make(map[id.ID]types.Quantity)
	r.s.read(ctx, func(v view) {
		for _, m := range v.movements() {
			if m.TenantID != f.TenantID || m.LocationID != f.LocationID || m.ReferenceType != f.ReferenceType {
				continue
			}
			if !m.SignedQuantity.IsNegative() || m.CreatedAt.Before(f.From) || !m.CreatedAt.Before(f.To) {
				continue
			}
			out[m.ProductID] += m.SignedQuantity.Abs()
		}
	})
	return out, nil
}

func (r *MovementRepo) ActiveLocations(ctx context.Context, from, to time.Time) ([]ledger.TenantLocation, error) {
	seen := make(map[ledger.TenantLocation]struct{})
	r.s.read(ctx, func(v view) {
		for _, m := range v.movements() {
			if m.CreatedAt.Before(from) || !m.CreatedAt.Before(to) {
				continue
			}
			seen[ledger.TenantLocation{TenantID: m.TenantID, LocationID: m.LocationID}] = struct{}{}
		}
	})
	out := make([]ledger.TenantLocation, 0, len(seen))
	for tl := range seen {
		out = append(out, tl)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TenantID != out[j].TenantID {
			return id.Less(out[i].TenantID, out[j].TenantID)
		}
		return id.Less(out[i].LocationID, out[j].LocationID)
	})
	return out, nil
}

// BalanceRepo implements ledger.BalanceRepository.
type BalanceRepo struct {
	s *Store
}

// NewBalanceRepo creates a balance repository over s.
func NewBalanceRepo(s *Store) *BalanceRepo {
	return &BalanceRepo{s: s}
}

var _ ledger.BalanceRepository = (*BalanceRepo)(nil)

func balanceLock(key entity.BalanceKey) string {
	return "balance:" + key.String()
}

func (r *BalanceRepo) GetForUpdate(ctx context.Context, key entity.BalanceKey) (entity.InventoryBalance, error) {
	var b entity.InventoryBalance
	err := r.s.write(ctx, func(ctx context.Context, t *memTx) error {
		if err := r.s.lock(ctx, t, balanceLock(key)); err != nil {
			return err
		}
		b = r.load(ctx, key)
		return nil
	})
	return b, err
}

func (r *BalanceRepo) Get(ctx context.Context, key entity.BalanceKey) (entity.InventoryBalance, error) {
	return r.load(ctx, key), nil
}

func (r *BalanceRepo) load(ctx context.Context, key entity.BalanceKey) entity.InventoryBalance {
	b := entity.NewInventoryBalance(key)
	r.s.read(ctx, func(v view) {
		if stored, ok := v.balance(key); ok {
			b = stored
		}
	})
	return b
}

func (r *BalanceRepo) Save(ctx context.Context, b *entity.InventoryBalance) error {
	return r.s.write(ctx, func(ctx context.Context, t *memTx) error {
		current := r.load(ctx, b.BalanceKey)
		if current.Version != b.Version {
			return apperror.NewConcurrencyConflict("inventory_balance", b.BalanceKey.String())
		}
		b.Version++
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = r.s.now()
		}
		t.balances[b.BalanceKey] = *b
		return nil
	})
}

func (r *BalanceRepo) ListByLocation(ctx context.Context, tenantID, locationID id.ID, f ledger.BalanceFilter) ([]entity.InventoryBalance, error) {
	products := make(map[id.ID]bool, len(f.ProductIDs))
	for _, p := range f.ProductIDs {
		products[p] = true
	}
	return r.collect(ctx, func(b entity.InventoryBalance) bool {
		if b.TenantID != tenantID || b.LocationID != locationID {
			return false
		}
		if f.ExcludeZero && b.Quantity.IsZero() {
			return false
		}
		return len(products) == 0 || products[b.ProductID]
	}), nil
}

func (r *BalanceRepo) ListByProduct(ctx context.Context, tenantID, productID id.ID) ([]entity.InventoryBalance, error) {
	return r.collect(ctx, func(b entity.InventoryBalance) bool {
		return b.TenantID == tenantID && b.ProductID == productID
	}), nil
}

func (r *BalanceRepo) List(ctx context.Context, tenantID id.ID, locationID *id.ID) ([]entity.InventoryBalance, error) {
	return r.collect(ctx, func(b entity.InventoryBalance) bool {
		return b.TenantID == tenantID && (locationID == nil || b.LocationID == *locationID)
	}), nil
}

func (r *BalanceRepo) collect(ctx context.Context, keep func(entity.InventoryBalance) bool) []entity.InventoryBalance {
	var out []entity.InventoryBalance
	r.s.read(ctx, func(v view) {
		for _, b := range v.balances() {
			if keep(b) {
				out = append(out, b)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].BalanceKey.Less(out[j].BalanceKey) })
	return out
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
