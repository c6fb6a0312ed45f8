// Package pricing computes cart totals from lines, promotions and manual
// discounts.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
	"github.com/xenking/pos-pricing/internal/money"
)

// ManualType enumerates the manual discount kinds a cashier can apply.
type ManualType string

const (
	// ManualPercent takes Value percent off the running total.
	ManualPercent ManualType = "PERCENT"
	// ManualFixed takes Value off the running total.
	ManualFixed ManualType = "FIXED"
)

// ManualDiscount is a cart-wide discount entered at the register.
type ManualDiscount struct {
	Type  ManualType
	Value decimal.Decimal
	Label string
}

// ErrInvalidManualDiscount is the sentinel wrapped by ManualDiscountError.
var ErrInvalidManualDiscount = errors.New("invalid manual discount")

// ManualDiscountError reports a manual discount that cannot be applied.
type ManualDiscountError struct {
	Index  int
	Type   ManualType
	Reason string
}

func (e *ManualDiscountError) Error() string {
	return fmt.Sprintf("manual discount %d (%q): %s", e.Index, e.Type, e.Reason)
}

// Kind returns the error taxonomy tag.
func (e *ManualDiscountError) Kind() string { return "INVALID_MANUAL_DISCOUNT" }

func (e *ManualDiscountError) Unwrap() error { return ErrInvalidManualDiscount }

// Source tells where an applied discount came from.
type Source string

const (
	SourcePromotion Source = "promotion"
	SourceManual    Source = "manual"
)

// AppliedDiscount is one entry of the audit trail.
type AppliedDiscount struct {
	Source Source
	// Ref is the promotion id or "manual:<index>".
	Ref    string
	Label  string
	Amount decimal.Decimal
}

// Result is the priced cart.
type Result struct {
	SubTotal         decimal.Decimal
	DiscountTotal    decimal.Decimal
	GrandTotal       decimal.Decimal
	AppliedDiscounts []AppliedDiscount
	Lines            []cart.LineItem
	Promotions       []promotion.Applied
	Failures         []promotion.Failure
}

// Calculator prices carts. It is safe for concurrent use.
type Calculator struct {
	engine *promotion.Engine
	lg     *zap.Logger
}

// NewCalculator creates a Calculator. A nil engine gets a silent default.
func NewCalculator(engine *promotion.Engine, lg *zap.Logger) *Calculator {
	if lg == nil {
		lg = zap.NewNop()
	}
	if engine == nil {
		engine = promotion.NewEngine(lg, nil)
	}
	return &Calculator{engine: engine, lg: lg}
}

var defaultCalculator = NewCalculator(nil, nil)

// CalculatePricing prices lines with the default calculator.
func CalculatePricing(lines []cart.LineItem, manual []ManualDiscount, promos []promotion.Promotion) (Result, error) {
	return defaultCalculator.Calculate(lines, manual, promos, nil)
}

// Calculate applies promotions first, then each manual discount in order
// against the running total. Percent discounts compound. extra is passed
// to promotion rules.
func (c *Calculator) Calculate(
	lines []cart.LineItem,
	manual []ManualDiscount,
	promos []promotion.Promotion,
	extra map[string]any,
) (Result, error) {
	if err := validateManual(manual); err != nil {
		return Result{}, err
	}
	prepared, err := cart.Prepare(lines)
	if err != nil {
		return Result{}, errors.Wrap(err, "prepare lines")
	}

	subTotal := cart.Subtotal(prepared)
	promoRes := c.engine.Apply(prepared, promos, extra)
	work := promoRes.Lines

	applied := make([]AppliedDiscount, 0, len(promoRes.Applied)+len(manual))
	for _, a := range promoRes.Applied {
		applied = append(applied, AppliedDiscount{
			Source: SourcePromotion,
			Ref:    a.PromoID,
			Label:  a.Description,
			Amount: a.Amount,
		})
	}

	for i, m := range manual {
		running := cart.NetSubtotal(work)
		var amount decimal.Decimal
		switch m.Type {
		case ManualPercent:
			amount = money.Percent(running, m.Value)
		case ManualFixed:
			amount = money.Round2(decimal.Min(m.Value, running))
		}
		taken := cart.Allocate(work, cart.All(work), amount)
		applied = append(applied, AppliedDiscount{
			Source: SourceManual,
			Ref:    fmt.Sprintf("manual:%d", i),
			Label:  m.label(),
			Amount: taken,
		})
	}

	final := cart.NetSubtotal(work)
	discountTotal := subTotal.Sub(final)
	res := Result{
		SubTotal:         money.Round2(subTotal),
		DiscountTotal:    money.Round2(discountTotal),
		GrandTotal:       money.Round2(money.FloorAtZero(subTotal.Sub(discountTotal))),
		AppliedDiscounts: applied,
		Lines:            work,
		Promotions:       promoRes.Applied,
		Failures:         promoRes.Failures,
	}
	if len(res.Failures) > 0 {
		c.lg.Info("Promotions skipped", zap.Int("count", len(res.Failures)))
	}
	return res, nil
}

func validateManual(manual []ManualDiscount) error {
	for i, m := range manual {
		invalid := func(reason string) error {
			return &ManualDiscountError{Index: i, Type: m.Type, Reason: reason}
		}
		switch m.Type {
		case ManualPercent:
			if m.Value.IsNegative() || m.Value.GreaterThan(decimal.NewFromInt(100)) {
				return invalid("percent must be between 0 and 100")
			}
		case ManualFixed:
			if m.Value.IsNegative() {
				return invalid("amount must not be negative")
			}
		default:
			return invalid("unknown type")
		}
	}
	return nil
}

func (m ManualDiscount) label() string {
	if m.Label != "" {
		return m.Label
	}
	if m.Type == ManualPercent {
		return m.Value.String() + "% off"
	}
	return m.Value.StringFixed(2) + " off"
}
