// Package idempotency defines the store behind X-Idempotency-Key request replay.
package idempotency

import (
	"context"
)

// Replay is a stored HTTP response.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store records request outcomes by key.
type Store interface {
	// AcquireKey claims key for a request. It returns (nil, nil) when the caller should
	// proceed, a Replay when the request already finished, or an IdempotencyConflict /
	// mismatch error.
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*Replay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
}

// NormalizeStatus defaults a missing stored status to 200.
func NormalizeStatus(status int) int {
	if status == 0 {
		return 200
	}
	return status
}

// NormalizeContentType defaults a missing stored content type to JSON.
func NormalizeContentType(ct string) string {
	if ct == "" {
		return "application/json"
	}
	return ct
}
