package payment

import (
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestEvaluateStatus(t *testing.T) {
	tests := []struct {
		name        string
		total       string
		payments    []string
		status      Status
		change      string
		outstanding string
	}{
		{"exact", "100.00", []string{"100.00"}, StatusPaid, "0", "0"},
		{"overpaid", "100.00", []string{"150"}, StatusOverpaid, "50", "0"},
		{"partial", "100.00", []string{"60"}, StatusPartial, "0", "40"},
		{"unpaid", "100.00", nil, StatusUnpaid, "0", "100"},
		{"split tender", "100.00", []string{"40", "60"}, StatusPaid, "0", "0"},
		{"within epsilon below", "100.00", []string{"99.9995"}, StatusPaid, "0", "0"},
		{"within epsilon above", "100.00", []string{"100.0009"}, StatusPaid, "0", "0"},
		{"just outside epsilon", "100.00", []string{"99.99"}, StatusPartial, "0", "0.01"},
		{"zero total nothing paid", "0", nil, StatusPaid, "0", "0"},
		{"zero total something paid", "0", []string{"5"}, StatusOverpaid, "5", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payments []Payment
			for _, a := range tt.payments {
				payments = append(payments, Payment{Method: "cash", Amount: d(a)})
			}
			res, err := EvaluateStatus(d(tt.total), payments)
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.True(t, d(tt.change).Equal(res.ChangeDue), "change: got %s", res.ChangeDue)
			assert.True(t, d(tt.outstanding).Equal(res.Outstanding), "outstanding: got %s", res.Outstanding)
		})
	}
}

func TestEvaluateStatus_NegativePayment(t *testing.T) {
	_, err := EvaluateStatus(d("10"), []Payment{{Method: "card", Amount: d("-1")}})
	require.ErrorIs(t, err, ErrNegativePayment)
}

func TestComputeTip(t *testing.T) {
	tip, err := ComputeTip(d("84.30"), &TipConfig{Kind: TipPercent, Value: d("15")})
	require.NoError(t, err)
	assert.True(t, d("12.65").Equal(tip), "round2(12.645), got %s", tip)

	tip, err = ComputeTip(d("84.30"), &TipConfig{Kind: TipFixed, Value: d("5")})
	require.NoError(t, err)
	assert.True(t, d("5").Equal(tip))

	tip, err = ComputeTip(d("84.30"), nil)
	require.NoError(t, err)
	assert.True(t, tip.IsZero())

	_, err = ComputeTip(d("1"), &TipConfig{Kind: "round-up", Value: d("1")})
	require.ErrorIs(t, err, ErrInvalidTip)

	_, err = ComputeTip(d("1"), &TipConfig{Kind: TipFixed, Value: d("-1")})
	require.ErrorIs(t, err, ErrInvalidTip)
}

func TestAllocateTip(t *testing.T) {
	alloc, err := AllocateTip(d("10"), []TipShare{
		{StaffID: "barista", Weight: d("2")},
		{StaffID: "runner", Weight: d("1")},
	})
	require.NoError(t, err)
	require.Len(t, alloc, 2)
	assert.Equal(t, "barista", alloc[0].StaffID)
	assert.True(t, d("6.67").Equal(alloc[0].Amount))
	assert.True(t, d("3.33").Equal(alloc[1].Amount))

	_, err = AllocateTip(d("10"), []TipShare{{StaffID: "x", Weight: d("-1")}})
	require.ErrorIs(t, err, ErrInvalidTip)
}

func TestDecode(t *testing.T) {
	payments, err := DecodePayments(jx.DecodeStr(`[{"method":"cash","amount":20},{"method":"card","amount":"5.25"}]`))
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.True(t, d("5.25").Equal(payments[1].Amount))

	tip, err := DecodeTip(jx.DecodeStr(`{"kind":"percent","value":10}`))
	require.NoError(t, err)
	assert.Equal(t, TipPercent, tip.Kind)

	tip, err = DecodeTip(jx.DecodeStr(`null`))
	require.NoError(t, err)
	assert.Nil(t, tip)
}
