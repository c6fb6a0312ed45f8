// Package payment reconciles tenders and tips against a total.
package payment

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/money"
)

var (
	// ErrNegativePayment is returned when a tender has a negative amount.
	ErrNegativePayment = errors.New("payment amount must not be negative")
	// ErrInvalidTip is returned for a tip configuration that cannot be
	// computed.
	ErrInvalidTip = errors.New("invalid tip")
)

// Status of an order's payment.
type Status string

const (
	StatusUnpaid   Status = "unpaid"
	StatusPartial  Status = "partial"
	StatusPaid     Status = "paid"
	StatusOverpaid Status = "overpaid"
)

// Payment is one tender.
type Payment struct {
	Method string
	Amount decimal.Decimal
}

// Result is the reconciliation of payments against a total.
type Result struct {
	AmountPaid  decimal.Decimal
	Status      Status
	ChangeDue   decimal.Decimal
	Outstanding decimal.Decimal
}

// EvaluateStatus compares the sum of payments with total. Amounts within
// money.Epsilon of each other count as equal.
func EvaluateStatus(total decimal.Decimal, payments []Payment) (Result, error) {
	paid := decimal.Zero
	for _, p := range payments {
		if p.Amount.IsNegative() {
			return Result{}, errors.Wrapf(ErrNegativePayment, "%s %s", p.Method, p.Amount)
		}
		paid = paid.Add(p.Amount)
	}

	res := Result{
		AmountPaid:  money.Round2(paid),
		ChangeDue:   money.Round2(money.FloorAtZero(paid.Sub(total))),
		Outstanding: money.Round2(money.FloorAtZero(total.Sub(paid))),
	}
	switch {
	case money.NearlyEqual(paid, total):
		// Also covers a zero total with nothing paid.
		res.Status = StatusPaid
	case money.NearlyEqual(paid, decimal.Zero):
		res.Status = StatusUnpaid
	case paid.LessThan(total):
		res.Status = StatusPartial
	default:
		res.Status = StatusOverpaid
	}
	return res, nil
}

// TipKind is the way a tip is configured.
type TipKind string

const (
	TipPercent TipKind = "percent"
	TipFixed   TipKind = "fixed"
)

// TipConfig configures the tip added to an order.
type TipConfig struct {
	Kind  TipKind
	Value decimal.Decimal
}

// ComputeTip returns the tip for subtotal. A nil config means no tip.
func ComputeTip(subtotal decimal.Decimal, cfg *TipConfig) (decimal.Decimal, error) {
	if cfg == nil {
		return decimal.Zero, nil
	}
	if cfg.Value.IsNegative() {
		return decimal.Zero, errors.Wrap(ErrInvalidTip, "negative value")
	}
	switch cfg.Kind {
	case TipPercent:
		return money.Percent(subtotal, cfg.Value), nil
	case TipFixed:
		return money.Round2(cfg.Value), nil
	default:
		return decimal.Zero, errors.Wrapf(ErrInvalidTip, "unknown kind %q", cfg.Kind)
	}
}

// TipShare is a staff member's weight in the tip pool.
type TipShare struct {
	StaffID string
	Weight  decimal.Decimal
}

// TipAllocation is the amount owed to one staff member.
type TipAllocation struct {
	StaffID string
	Amount  decimal.Decimal
}

// AllocateTip splits tip across shares by weight. The allocations add up
// to the rounded tip exactly.
func AllocateTip(tip decimal.Decimal, shares []TipShare) ([]TipAllocation, error) {
	weights := make([]decimal.Decimal, len(shares))
	for i, s := range shares {
		if s.Weight.IsNegative() {
			return nil, errors.Wrapf(ErrInvalidTip, "negative weight for %q", s.StaffID)
		}
		weights[i] = s.Weight
	}
	out := make([]TipAllocation, len(shares))
	for i, amount := range money.Allocate(tip, weights) {
		out[i] = TipAllocation{StaffID: shares[i].StaffID, Amount: amount}
	}
	return out, nil
}
