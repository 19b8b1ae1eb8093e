// Package id generates and parses the UUIDv7 identifiers used for tenants,
// products, locations, movements and workflow records.
package id

import (
	"bytes"

	"github.com/google/uuid"
)

// ID is the uuid type itself so pgx and encoding/json handle it natively.
type ID = uuid.UUID

// New returns a time-ordered UUIDv7. NewV7 only fails when the random source
// does, in which case a v4 is still a valid identifier.
func New() ID {
	if v, err := uuid.NewV7(); err == nil {
		return v
	}
	return uuid.New()
}

func Parse(s string) (ID, error) { return uuid.Parse(s) }

// MustParse is for fixtures and tests.
func MustParse(s string) ID { return uuid.MustParse(s) }

func IsNil(v ID) bool { return v == uuid.Nil }

// Less gives the total order used when several balance rows are locked at once.
func Less(a, b ID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
