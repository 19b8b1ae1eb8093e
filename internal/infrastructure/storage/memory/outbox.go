package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockledger/internal/core/event"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/audit"
)

// OutboxEvent is a committed event.
type OutboxEvent struct {
	Seq       int64
	Event     event.Event
	CreatedAt time.Time
}

// Outbox implements event.Publisher. Events become visible only when the surrounding
// transaction commits.
type Outbox struct {
	s *Store
}

// NewOutbox creates a publisher over s.
func NewOutbox(s *Store) *Outbox {
	return &Outbox{s: s}
}

func (o *Outbox) Publish(ctx context.Context, events ...event.Event) error {
	return o.s.write(ctx, func(ctx context.Context, t *memTx) error {
		now := o.s.now()
		for _, ev := range events {
			t.events = append(t.events, OutboxEvent{Seq: o.s.seq.Add(1), Event: ev, CreatedAt: now})
		}
		return nil
	})
}

// Events returns committed events in publication order.
func (o *Outbox) Events() []OutboxEvent {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	return append([]OutboxEvent(nil), o.s.st.events...)
}

// EventsOfType returns committed events of one type.
func (o *Outbox) EventsOfType(eventType string) []OutboxEvent {
	var out []OutboxEvent
	for _, ev := range o.Events() {
		if ev.Event.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// AuditRecord is a committed audit entry.
type AuditRecord struct {
	audit.Entry
	CreatedAt time.Time
}

// AuditLog implements audit.Recorder.
type AuditLog struct {
	s *Store
}

// NewAuditLog creates a recorder over s.
func NewAuditLog(s *Store) *AuditLog {
	return &AuditLog{s: s}
}

func (a *AuditLog) Record(ctx context.Context, entry audit.Entry) error {
	return a.s.write(ctx, func(ctx context.Context, t *memTx) error {
		t.audit = append(t.audit, AuditRecord{Entry: entry, CreatedAt: a.s.now()})
		return nil
	})
}

// Entries returns committed audit entries for one entity.
func (a *AuditLog) Entries(entityType, entityID string) []AuditRecord {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	var out []AuditRecord
	for _, r := range a.s.st.audit {
		if r.EntityType == entityType && r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out
}

var _ audit.Reader = (*AuditLog)(nil)

// History implements audit.Reader.
func (a *AuditLog) History(ctx context.Context, tenantID id.ID, entityType, entityID string, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	entries := a.Entries(entityType, entityID)
	out := make([]audit.Record, 0, len(entries))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := entries[i]
		if e.TenantID != tenantID {
			continue
		}
		changes, err := json.Marshal(e.Changes)
		if err != nil {
			return nil, fmt.Errorf("marshal audit changes: %w", err)
		}
		out = append(out, audit.Record{
			TenantID:   e.TenantID,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Action:     e.Action,
			UserID:     e.UserID,
			Changes:    changes,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out, nil
}
