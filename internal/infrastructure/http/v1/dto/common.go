// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// ListResponse wraps list results with paging parameters.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewListResponse never returns a null items array.
func NewListResponse[T any](items []T, limit, offset int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Limit: limit, Offset: offset}
}

// ParseID parses a required UUID field.
func ParseID(field, raw string) (id.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return id.ID{}, apperror.NewValidation(field + " is required").WithDetail("field", field)
	}
	v, err := id.Parse(raw)
	if err != nil {
		return id.ID{}, apperror.NewValidation("invalid " + field + " format").WithDetail("field", field)
	}
	return v, nil
}

// ParseOptionalID returns nil for an empty value.
func ParseOptionalID(field, raw string) (*id.ID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := ParseID(field, raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ParseOptionalTime accepts RFC 3339 timestamps or plain dates (UTC midnight).
func ParseOptionalTime(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperror.NewValidation("invalid " + field + " format, expected RFC 3339 or YYYY-MM-DD").
		WithDetail("field", field)
}
