// Package numerator provides domain contracts for human-readable document numbers.
// Implementations live in the infrastructure layer.
package numerator

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/id"
)

// Generator issues sequential numbers per tenant and sequence key.
type Generator interface {
	// Next returns the next number for cfg in the period containing at.
	// Pattern: PREFIX-YEAR-XXXXX (e.g., TR-2026-00001).
	Next(ctx context.Context, tenantID id.ID, cfg Config, at time.Time) (string, error)
}

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "TR")
	Prefix string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}

// Key is the sequence the number for at is drawn from.
func (c Config) Key(at time.Time) string {
	switch c.ResetPeriod {
	case "month":
		return c.Prefix + "_" + at.UTC().Format("2006_01")
	case "year":
		return c.Prefix + "_" + at.UTC().Format("2006")
	default:
		return c.Prefix
	}
}

// Format renders sequence value n.
func (c Config) Format(at time.Time, n int64) string {
	width := c.PadWidth
	if width == 0 {
		width = 5
	}
	if c.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", c.Prefix, at.UTC().Format("2006"), width, n)
	}
	return fmt.Sprintf("%s-%0*d", c.Prefix, width, n)
}
