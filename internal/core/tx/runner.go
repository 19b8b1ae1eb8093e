package tx

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// Policy bounds a mutating operation: total time per attempt and how often lock
// contention is retried before it is surfaced.
type Policy struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultPolicy returns 3 retries with jittered backoff and a 5s attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		BaseDelay:  20 * time.Millisecond,
	}
}

// Run executes fn in a transaction under policy p.
//
// Concurrency conflicts roll the attempt back and retry the whole function; deadline
// expiry becomes an OperationTimeout error. When ctx already carries a transaction the
// function joins it and retrying is left to the outermost caller.
func Run(ctx context.Context, m Manager, p Policy, op string, fn func(ctx context.Context) error) error {
	if m.InTransaction(ctx) {
		return m.RunInTransaction(ctx, fn)
	}

	for attempt := 0; ; attempt++ {
		err := runOnce(ctx, m, p, op, fn)
		if err == nil {
			return nil
		}
		if !apperror.IsConcurrencyConflict(err) || attempt >= p.MaxRetries {
			return err
		}

		delay := backoff(p.BaseDelay, attempt)
		logger.Warn(ctx, "retrying after concurrency conflict",
			"operation", op,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return normalize(ctx.Err(), op)
		case <-timer.C:
		}
	}
}

func runOnce(ctx context.Context, m Manager, p Policy, op string, fn func(ctx context.Context) error) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	return normalize(m.RunInTransaction(ctx, fn), op)
}

// normalize converts context expiry into the typed timeout error. AppErrors pass through.
func normalize(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewOperationTimeout(op).WithCause(err)
	}
	return err
}

func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << attempt
	return d + time.Duration(rand.Int64N(int64(base)))
}
