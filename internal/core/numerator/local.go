package numerator

import (
	"context"
	"sync"
	"time"

	"stockledger/internal/core/id"
)

// Local is an in-process Generator. Sequences do not survive a restart.
type Local struct {
	mu   sync.Mutex
	last map[localKey]int64
}

type localKey struct {
	tenant id.ID
	key    string
}

func NewLocal() *Local {
	return &Local{last: make(map[localKey]int64)}
}

var _ Generator = (*Local)(nil)

func (l *Local) Next(_ context.Context, tenantID id.ID, cfg Config, at time.Time) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := localKey{tenant: tenantID, key: cfg.Key(at)}
	l.last[k]++
	return cfg.Format(at, l.last[k]), nil
}
