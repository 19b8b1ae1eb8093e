// Package types holds the numeric types of the ledger: exact fixed-point
// quantities and decimal money.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an arbitrary-precision amount (unit cost, cash counts, POS totals).
type Money = decimal.Decimal

// MustMoney is for fixtures and tests.
func MustMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// Quantity counts stock in ten-thousandths of a unit. Balances and ledger sums
// are plain int64 additions, stored as BIGINT.
type Quantity int64

const quantityPlaces = 4

var errQuantityRange = errors.New("quantity out of range")

func NewQuantity(units int64) Quantity { return Quantity(units * 10_000) }

// NewQuantityFromDecimal drops digits past the fourth decimal place.
func NewQuantityFromDecimal(d decimal.Decimal) Quantity {
	return Quantity(d.Shift(quantityPlaces).IntPart())
}

// ParseQuantity accepts plain and exponent notation ("12.5", "-3", "1e2").
// Extra fractional digits are truncated toward zero.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	if s == "" {
		return 0, errors.New("empty quantity")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	scaled := d.Shift(quantityPlaces).Truncate(0)
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("parse quantity %q: %w", s, errQuantityRange)
	}
	return Quantity(scaled.IntPart()), nil
}

func (q Quantity) Decimal() decimal.Decimal { return decimal.New(int64(q), -quantityPlaces) }

func (q Quantity) IsZero() bool     { return q == 0 }
func (q Quantity) IsPositive() bool { return q > 0 }
func (q Quantity) IsNegative() bool { return q < 0 }
func (q Quantity) Neg() Quantity    { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// String always prints four decimal places.
func (q Quantity) String() string {
	return q.Decimal().StringFixed(quantityPlaces)
}

// MarshalJSON writes a bare JSON number.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON takes a number or a numeric string; null leaves zero.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*q = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	v, err := ParseQuantity(raw)
	if err != nil {
		return err
	}
	*q = v
	return nil
}
