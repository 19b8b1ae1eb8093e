package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/infrastructure/storage/postgres"
)

// RedisOutboxHandler fans relayed outbox events out on a Redis pub/sub channel.
type RedisOutboxHandler struct {
	client  redis.Cmdable
	channel string
}

var _ postgres.OutboxHandler = (*RedisOutboxHandler)(nil)

// NewRedisOutboxHandler creates a handler publishing to channel.
func NewRedisOutboxHandler(client redis.Cmdable, channel string) *RedisOutboxHandler {
	return &RedisOutboxHandler{client: client, channel: channel}
}

type outboxEnvelope struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenantId"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     string          `json:"createdAt"`
}

func (h *RedisOutboxHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}

	body, err := json.Marshal(outboxEnvelope{
		ID:            msg.ID.String(),
		TenantID:      msg.TenantID.String(),
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		CreatedAt:     msg.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("marshal outbox message: %w", err)
	}

	if err := h.client.Publish(ctx, h.channel, body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", h.channel, err)
	}
	return nil
}
