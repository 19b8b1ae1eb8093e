// Package audit defines the audit trail port used by workflow services.
package audit

import (
	"context"
	"encoding/json"
	"time"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
)

// Action is the kind of audited change.
type Action string

const (
	ActionCreate     Action = "create"
	ActionTransition Action = "transition"
	ActionReverse    Action = "reverse"
	ActionReconcile  Action = "reconcile"
	ActionReview     Action = "review"
)

// Entry is one audit record. Changes is stored as JSON.
type Entry struct {
	TenantID   id.ID
	EntityType string
	EntityID   string
	Action     Action
	UserID     string
	Changes    map[string]any
}

// Recorder writes audit entries inside the caller's transaction.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Record is a stored entry as read back for history views.
type Record struct {
	TenantID   id.ID           `json:"tenantId"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     Action          `json:"action"`
	UserID     string          `json:"userId"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Reader returns an entity's audit trail, newest first.
type Reader interface {
	History(ctx context.Context, tenantID id.ID, entityType, entityID string, limit int) ([]Record, error)
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

// Actor returns the explicit performer if given, otherwise the user from the request scope.
func Actor(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return appctx.GetUserID(ctx)
}
