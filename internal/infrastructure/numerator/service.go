// Package numerator provides the PostgreSQL implementation of document numbering.
// It implements core/numerator.Generator over the sys_sequences table.
package numerator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/id"
	corenumerator "stockledger/internal/core/numerator"
)

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict increments the sequence row inside the caller's transaction.
	// Numbers are gapless: a rolled back transfer returns its number.
	StrategyStrict Strategy = iota

	// StrategyCached reserves ranges on the pool, outside business transactions.
	// Faster under contention, but a restart or rollback leaves gaps.
	StrategyCached
)

// ParseStrategy maps a config value to a Strategy. Unknown values are strict.
func ParseStrategy(s string) Strategy {
	if s == "cached" {
		return StrategyCached
	}
	return StrategyStrict
}

// Options configuration for number generation.
type Options struct {
	Strategy Strategy
	// RangeSize is the number of values reserved at once by StrategyCached.
	// Default is 50.
	RangeSize int64
}

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type cachedRange struct {
	current int64
	max     int64
}

// Service issues numbers from sys_sequences.
type Service struct {
	// tx returns the caller's transaction when there is one, else the pool.
	tx   func(ctx context.Context) Querier
	pool Querier
	opts Options

	cacheMu sync.Mutex
	ranges  map[string]*cachedRange
}

var _ corenumerator.Generator = (*Service)(nil)

// New creates a numerator. tx resolves the transaction-bound querier; pool is used for
// range reservations, which must commit independently of the business transaction.
func New(tx func(ctx context.Context) Querier, pool Querier, opts Options) *Service {
	if opts.RangeSize <= 0 {
		opts.RangeSize = 50
	}
	return &Service{
		tx:     tx,
		pool:   pool,
		opts:   opts,
		ranges: make(map[string]*cachedRange),
	}
}

// Next returns the next number for cfg.
func (s *Service) Next(ctx context.Context, tenantID id.ID, cfg corenumerator.Config, at time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}

	key := cfg.Key(at)
	var (
		num int64
		err error
	)
	switch s.opts.Strategy {
	case StrategyCached:
		num, err = s.nextCached(ctx, tenantID, key)
	default:
		num, err = s.nextStrict(ctx, tenantID, key)
	}
	if err != nil {
		return "", err
	}
	return cfg.Format(at, num), nil
}

func (s *Service) nextStrict(ctx context.Context, tenantID id.ID, key string) (int64, error) {
	var num int64
	err := s.tx(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (tenant_id, key, current_val)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, key) DO UPDATE SET current_val = sys_sequences.current_val + 1
		RETURNING current_val
	`, tenantID, key).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("strict next: %w", err)
	}
	return num, nil
}

// nextCached hands out values from an in-memory range, reserving a new one when empty.
// current_val always holds the last reserved value, so a reservation of n returns
// the range (new-n, new].
func (s *Service) nextCached(ctx context.Context, tenantID id.ID, key string) (int64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	cacheKey := tenantID.String() + ":" + key
	rng, ok := s.ranges[cacheKey]
	if !ok {
		rng = &cachedRange{}
		s.ranges[cacheKey] = rng
	}

	if rng.current >= rng.max {
		size := s.opts.RangeSize
		var newMax int64
		err := s.pool.QueryRow(ctx, `
			INSERT INTO sys_sequences (tenant_id, key, current_val)
			VALUES ($1, $2, $3)
			ON CONFLICT (tenant_id, key) DO UPDATE SET current_val = sys_sequences.current_val + $3
			RETURNING current_val
		`, tenantID, key, size).Scan(&newMax)
		if err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}
		rng.current = newMax - size
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

// SetNext moves the sequence so the next issued value is value+1. Used when importing
// transfers numbered elsewhere.
func (s *Service) SetNext(ctx context.Context, tenantID id.ID, cfg corenumerator.Config, at time.Time, value int64) error {
	key := cfg.Key(at)

	var result int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sys_sequences (tenant_id, key, current_val)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, key) DO UPDATE SET current_val = $3
		RETURNING current_val
	`, tenantID, key, value).Scan(&result)

	s.cacheMu.Lock()
	delete(s.ranges, tenantID.String()+":"+key)
	s.cacheMu.Unlock()

	if err != nil {
		return fmt.Errorf("set sequence: %w", err)
	}
	return nil
}
