package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"3.336333", "3.34"},
		{"4.4955", "4.50"},
		{"0.005", "0.01"},
		{"0.004", "0"},
		{"10", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Round2(d(tt.in))
			assert.True(t, d(tt.want).Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestClamp(t *testing.T) {
	got, clamped := Clamp(d("150"), d("100"))
	assert.True(t, d("100").Equal(got))
	assert.True(t, clamped)

	got, clamped = Clamp(d("-5"), d("100"))
	assert.True(t, got.IsZero())
	assert.True(t, clamped)

	got, clamped = Clamp(d("40"), d("100"))
	assert.True(t, d("40").Equal(got))
	assert.False(t, clamped)

	got, clamped = Clamp(d("40"), d("-1"))
	assert.True(t, got.IsZero())
	assert.True(t, clamped)
}

func TestNearlyEqual(t *testing.T) {
	assert.True(t, NearlyEqual(d("100"), d("100.001")))
	assert.True(t, NearlyEqual(d("100"), d("99.9995")))
	assert.False(t, NearlyEqual(d("100"), d("100.01")))
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		weights []string
		want    []string
	}{
		{
			name:    "even split",
			amount:  "10",
			weights: []string{"50", "50"},
			want:    []string{"5", "5"},
		},
		{
			name:    "remainder goes to largest weight",
			amount:  "10",
			weights: []string{"1", "1", "1"},
			want:    []string{"3.34", "3.33", "3.33"},
		},
		{
			name:    "pro rata",
			amount:  "30",
			weights: []string{"100", "200"},
			want:    []string{"10", "20"},
		},
		{
			name:    "zero weight gets nothing",
			amount:  "7",
			weights: []string{"0", "14"},
			want:    []string{"0", "7"},
		},
		{
			name:    "all zero weights",
			amount:  "7",
			weights: []string{"0", "0"},
			want:    []string{"0", "0"},
		},
		{
			name:    "no weights",
			amount:  "7",
			weights: nil,
			want:    []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weights := make([]decimal.Decimal, len(tt.weights))
			for i, w := range tt.weights {
				weights[i] = d(w)
			}
			got := Allocate(d(tt.amount), weights)
			assert.Len(t, got, len(tt.want))
			for i, w := range tt.want {
				assert.True(t, d(w).Equal(got[i]), "share %d: expected %s, got %s", i, w, got[i])
			}
		})
	}
}

func TestAllocate_SharesSumToAmount(t *testing.T) {
	weights := []decimal.Decimal{d("9.99"), d("19.99"), d("0.01"), d("250")}
	for _, amount := range []string{"0.01", "1", "33.33", "279.99", "1000"} {
		shares := Allocate(d(amount), weights)
		assert.True(t, d(amount).Equal(Sum(shares...)), "amount %s: shares sum to %s", amount, Sum(shares...))
	}
}
