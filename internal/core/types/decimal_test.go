package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want Quantity
	}{
		{"30", NewQuantity(30)},
		{"-30", NewQuantity(-30)},
		{"0.5", Quantity(5000)},
		{"1.23456", Quantity(12345)},
		{"+2.1", Quantity(21000)},
		{".25", Quantity(2500)},
		{"1e2", NewQuantity(100)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuantity(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseQuantity("abc")
	assert.Error(t, err)
	_, err = ParseQuantity("")
	assert.Error(t, err)
}

func TestQuantityString(t *testing.T) {
	assert.Equal(t, "70.0000", NewQuantity(70).String())
	assert.Equal(t, "-0.0500", Quantity(-500).String())
}

func TestQuantityJSON(t *testing.T) {
	var v struct {
		A Quantity `json:"a"`
		B Quantity `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12.5, "b": "-3"}`), &v))
	assert.Equal(t, Quantity(125000), v.A)
	assert.Equal(t, NewQuantity(-3), v.B)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 12.5, "b": -3}`, string(out))
}

func TestQuantityDecimal(t *testing.T) {
	q := Quantity(12345)
	assert.True(t, q.Decimal().Equal(decimal.RequireFromString("1.2345")))
	assert.Equal(t, q, NewQuantityFromDecimal(q.Decimal()))
	assert.Equal(t, NewQuantity(5), NewQuantity(-5).Abs())
}

func TestParseQuantityRange(t *testing.T) {
	_, err := ParseQuantity("1e30")
	assert.ErrorIs(t, err, errQuantityRange)

	q, err := ParseQuantity("-0.00009")
	require.NoError(t, err)
	assert.True(t, q.IsZero())
}
