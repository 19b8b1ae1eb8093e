package numerator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	corenumerator "stockledger/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if ptr, ok := dest[0].(*int64); ok {
		*ptr = m.val
	}
	return nil
}

// mockQuerier simulates sys_sequences keyed by (tenant, key).
type mockQuerier struct {
	mu    sync.Mutex
	vals  map[string]int64
	calls int
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{vals: make(map[string]int64)}
}

func (m *mockQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	k := args[0].(id.ID).String() + ":" + args[1].(string)
	switch {
	case len(args) == 2:
		m.vals[k]++
	case strings.Contains(sql, "current_val + $3"):
		m.vals[k] += args[2].(int64)
	default:
		m.vals[k] = args[2].(int64)
	}
	return &mockRow{val: m.vals[k]}
}

var at = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func TestNextStrict(t *testing.T) {
	q := newMockQuerier()
	svc := New(func(context.Context) Querier { return q }, nil, Options{})
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("TR")
	tenant := id.New()

	num, err := svc.Next(ctx, tenant, cfg, at)
	require.NoError(t, err)
	assert.Equal(t, "TR-2026-00001", num)

	num, err = svc.Next(ctx, tenant, cfg, at)
	require.NoError(t, err)
	assert.Equal(t, "TR-2026-00002", num)

	num, err = svc.Next(ctx, id.New(), cfg, at)
	require.NoError(t, err)
	assert.Equal(t, "TR-2026-00001", num)
}

func TestNextCached(t *testing.T) {
	q := newMockQuerier()
	svc := New(nil, q, Options{Strategy: StrategyCached, RangeSize: 10})
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("TR")
	tenant := id.New()

	num, err := svc.Next(ctx, tenant, cfg, at)
	require.NoError(t, err)
	assert.Equal(t, "TR-2026-00001", num)
	assert.Equal(t, 1, q.calls)

	// Served from the reserved range.
	for i := 2; i <= 10; i++ {
		_, err := svc.Next(ctx, tenant, cfg, at)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, q.calls)

	num, err = svc.Next(ctx, tenant, cfg, at)
	require.NoError(t, err)
	assert.Equal(t, "TR-2026-00011", num)
	assert.Equal(t, 2, q.calls)
}

func TestSetNextInvalidatesCache(t *testing.T) {
	q := newMockQuerier()
	svc := New(nil, q, Options{Strategy: StrategyCached, RangeSize: 10})
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("TR")
	tenant := id.New()

	_, err := svc.Next(ctx, tenant, cfg, at)
	require.NoError(t, err)

	require.NoError(t, svc.SetNext(ctx, tenant, cfg, at, 100))

	num, err := svc.Next(ctx, tenant, cfg, at)
	require.NoError(t, err)
	assert.Equal(t, "TR-2026-00101", num)
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, StrategyCached, ParseStrategy("cached"))
	assert.Equal(t, StrategyStrict, ParseStrategy("strict"))
	assert.Equal(t, StrategyStrict, ParseStrategy(""))
}
