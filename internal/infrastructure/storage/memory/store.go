// Package memory is a transactional in-memory store with the same locking contract as
// the postgres store: per-row locks held until commit, buffered writes applied
// atomically, read-only snapshots. It backs STORAGE_DRIVER=memory and the domain tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/event"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/transfer"
)

// state is the committed data set.
type state struct {
	movements []entity.StockMovement
	balances  map[entity.BalanceKey]entity.InventoryBalance
	transfers map[id.ID]*transfer.Transfer
	records   map[id.ID]*reconciliation.Record
	events    []OutboxEvent
	audit     []AuditRecord
	sales     []SaleLine
	shifts    []CashShift
}

func newState() state {
	return state{
		balances:  make(map[entity.BalanceKey]entity.InventoryBalance),
		transfers: make(map[id.ID]*transfer.Transfer),
		records:   make(map[id.ID]*reconciliation.Record),
	}
}

// snapshot copies the committed state. Movements are append-only so the slice is
// shared with its length capped; everything mutable is copied.
func (st *state) snapshot() *state {
	c := &state{
		movements: st.movements[:len(st.movements):len(st.movements)],
		balances:  make(map[entity.BalanceKey]entity.InventoryBalance, len(st.balances)),
		transfers: make(map[id.ID]*transfer.Transfer, len(st.transfers)),
		records:   make(map[id.ID]*reconciliation.Record, len(st.records)),
		sales:     st.sales[:len(st.sales):len(st.sales)],
		shifts:    st.shifts[:len(st.shifts):len(st.shifts)],
	}
	for k, v := range st.balances {
		c.balances[k] = v
	}
	for k, v := range st.transfers {
		c.transfers[k] = v.Clone()
	}
	for k, v := range st.records {
		c.records[k] = cloneRecord(v)
	}
	return c
}

// Store holds committed state and coordinates transactions.
type Store struct {
	mu     sync.RWMutex
	st     state
	locks  *lockTable
	nextID atomic.Int64
	seq    atomic.Int64
	now    func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		st:    newState(),
		locks: newLockTable(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type txKey struct{}

// memTx buffers writes until commit. It must not be shared across goroutines.
type memTx struct {
	store    *Store
	snapshot *state // set for read-only transactions

	movements []entity.StockMovement
	balances  map[entity.BalanceKey]entity.InventoryBalance
	transfers map[id.ID]*transfer.Transfer
	records   map[id.ID]*reconciliation.Record
	events    []OutboxEvent
	audit     []AuditRecord

	held []string
}

func (s *Store) txFrom(ctx context.Context) *memTx {
	if t, ok := ctx.Value(txKey{}).(*memTx); ok && t.store == s {
		return t
	}
	return nil
}

// InTransaction reports whether ctx carries a transaction of this store.
func (s *Store) InTransaction(ctx context.Context) bool {
	return s.txFrom(ctx) != nil
}

// RunInTransaction runs fn with buffered writes and commits them atomically when fn
// succeeds. Nested calls join the outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.InTransaction(ctx) {
		return fn(ctx)
	}

	t := &memTx{
		store:     s,
		balances:  make(map[entity.BalanceKey]entity.InventoryBalance),
		transfers: make(map[id.ID]*transfer.Transfer),
		records:   make(map[id.ID]*reconciliation.Record),
	}
	defer s.releaseAll(t)

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	// A transaction whose deadline passed before commit is rolled back.
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

// ReadOnly runs fn against a consistent snapshot of committed state. No row locks are
// taken and writes are rejected.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.InTransaction(ctx) {
		return fn(ctx)
	}
	s.mu.RLock()
	snap := s.st.snapshot()
	s.mu.RUnlock()

	t := &memTx{store: s, snapshot: snap}
	return fn(context.WithValue(ctx, txKey{}, t))
}

func (s *Store) commit(t *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(t.movements) > 0 {
		s.st.movements = append(s.st.movements, t.movements...)
		// Ids are taken at insert time; concurrent commits may land out of order.
		if !sort.SliceIsSorted(s.st.movements, func(i, j int) bool {
			return s.st.movements[i].ID < s.st.movements[j].ID
		}) {
			sorted := make([]entity.StockMovement, len(s.st.movements))
			copy(sorted, s.st.movements)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
			s.st.movements = sorted
		}
	}
	for k, v := range t.balances {
		s.st.balances[k] = v
	}
	for k, v := range t.transfers {
		s.st.transfers[k] = v
	}
	for k, v := range t.records {
		s.st.records[k] = v
	}
	s.st.events = append(s.st.events, t.events...)
	s.st.audit = append(s.st.audit, t.audit...)
}

// lock takes the named row lock for the rest of the transaction. Re-locking a name the
// transaction already holds returns immediately.
func (s *Store) lock(ctx context.Context, t *memTx, name string) error {
	if t.snapshot != nil {
		return errReadOnly
	}
	for _, h := range t.held {
		if h == name {
			return nil
		}
	}
	if err := s.locks.acquire(ctx, name); err != nil {
		return err
	}
	t.held = append(t.held, name)
	return nil
}

func (s *Store) releaseAll(t *memTx) {
	for i := len(t.held) - 1; i >= 0; i-- {
		s.locks.release(t.held[i])
	}
	t.held = nil
}

// write runs fn inside the caller's transaction or a short implicit one.
func (s *Store) write(ctx context.Context, fn func(ctx context.Context, t *memTx) error) error {
	if t := s.txFrom(ctx); t != nil {
		if t.snapshot != nil {
			return errReadOnly
		}
		return fn(ctx, t)
	}
	return s.RunInTransaction(ctx, func(ctx context.Context) error {
		return fn(ctx, s.txFrom(ctx))
	})
}

// view is committed state seen through a transaction's pending writes.
type view struct {
	base *state
	tx   *memTx
}

// read calls fn with the state visible to ctx. Committed state is read-locked for the
// duration of fn, so fn must not call back into the store.
func (s *Store) read(ctx context.Context, fn func(v view)) {
	t := s.txFrom(ctx)
	if t != nil && t.snapshot != nil {
		fn(view{base: t.snapshot})
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(view{base: &s.st, tx: t})
}

func (v view) movements() []entity.StockMovement {
	if v.tx == nil || len(v.tx.movements) == 0 {
		return v.base.movements
	}
	out := make([]entity.StockMovement, 0, len(v.base.movements)+len(v.tx.movements))
	out = append(out, v.base.movements...)
	return append(out, v.tx.movements...)
}

func (v view) balance(key entity.BalanceKey) (entity.InventoryBalance, bool) {
	if v.tx != nil {
		if b, ok := v.tx.balances[key]; ok {
			return b, true
		}
	}
	b, ok := v.base.balances[key]
	return b, ok
}

func (v view) balances() map[entity.BalanceKey]entity.InventoryBalance {
	if v.tx == nil || len(v.tx.balances) == 0 {
		return v.base.balances
	}
	out := make(map[entity.BalanceKey]entity.InventoryBalance, len(v.base.balances)+len(v.tx.balances))
	for k, b := range v.base.balances {
		out[k] = b
	}
	for k, b := range v.tx.balances {
		out[k] = b
	}
	return out
}

func (v view) transfer(transferID id.ID) (*transfer.Transfer, bool) {
	if v.tx != nil {
		if t, ok := v.tx.transfers[transferID]; ok {
			return t, true
		}
	}
	t, ok := v.base.transfers[transferID]
	return t, ok
}

func (v view) transfers() map[id.ID]*transfer.Transfer {
	if v.tx == nil || len(v.tx.transfers) == 0 {
		return v.base.transfers
	}
	out := make(map[id.ID]*transfer.Transfer, len(v.base.transfers)+len(v.tx.transfers))
	for k, t := range v.base.transfers {
		out[k] = t
	}
	for k, t := range v.tx.transfers {
		out[k] = t
	}
	return out
}

func (v view) records() map[id.ID]*reconciliation.Record {
	if v.tx == nil || len(v.tx.records) == 0 {
		return v.base.records
	}
	out := make(map[id.ID]*reconciliation.Record, len(v.base.records)+len(v.tx.records))
	for k, r := range v.base.records {
		out[k] = r
	}
	for k, r := range v.tx.records {
		out[k] = r
	}
	return out
}

// lockTable is a set of named mutexes whose waits honor context cancellation.
type lockTable struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[string]chan struct{})}
}

func (l *lockTable) acquire(ctx context.Context, name string) error {
	for {
		l.mu.Lock()
		ch, busy := l.held[name]
		if !busy {
			l.held[name] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *lockTable) release(name string) {
	l.mu.Lock()
	ch, ok := l.held[name]
	delete(l.held, name)
	l.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Compile-time interface checks.
var (
	_ event.Publisher = (*Outbox)(nil)
	_ audit.Recorder  = (*AuditLog)(nil)
)

// SetClock replaces the time source used for created/updated timestamps.
// Call it before the store is shared.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}
