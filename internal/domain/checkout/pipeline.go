// Package checkout produces a full quote for a cart: pricing, tax, tip and
// payment status.
package checkout

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/payment"
	"github.com/xenking/pos-pricing/internal/domain/pricing"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
	"github.com/xenking/pos-pricing/internal/domain/tax"
	"github.com/xenking/pos-pricing/internal/money"
)

// ErrEmptyCart is returned when a quote is requested without lines.
var ErrEmptyCart = errors.New("cart has no lines")

// Input is everything the pipeline needs. Promotions and Taxes are used as
// given; filtering them is the caller's job.
type Input struct {
	Lines           []cart.LineItem
	ManualDiscounts []pricing.ManualDiscount
	Promotions      []promotion.Promotion
	Taxes           []tax.Definition
	Payments        []payment.Payment
	Tip             *payment.TipConfig
	// Extra is merged into the promotion rule context.
	Extra map[string]any
}

// Quote is the priced order.
type Quote struct {
	ID      string
	Pricing pricing.Result
	Tax     tax.Result
	Tip     decimal.Decimal
	// TotalDue is GrandTotal + TotalTax + Tip.
	TotalDue decimal.Decimal
	Payment  payment.Result
}

// Pipeline runs pricing, tax, tip and payment in order. It does no I/O.
type Pipeline struct {
	calc *pricing.Calculator
}

// NewPipeline creates a Pipeline. A nil calculator gets a silent default.
func NewPipeline(calc *pricing.Calculator) *Pipeline {
	if calc == nil {
		calc = pricing.NewCalculator(nil, nil)
	}
	return &Pipeline{calc: calc}
}

// Run prices in. Promotion failures are carried in Pricing.Failures; input,
// tax, tip and payment errors are returned.
func (p *Pipeline) Run(in Input) (*Quote, error) {
	if len(in.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	priced, err := p.calc.Calculate(in.Lines, in.ManualDiscounts, in.Promotions, in.Extra)
	if err != nil {
		return nil, errors.Wrap(err, "calculate pricing")
	}

	taxed, err := tax.Calculate(priced.Lines, in.Taxes)
	if err != nil {
		return nil, errors.Wrap(err, "calculate tax")
	}

	tip, err := payment.ComputeTip(priced.SubTotal, in.Tip)
	if err != nil {
		return nil, errors.Wrap(err, "compute tip")
	}

	due := money.Round2(priced.GrandTotal.Add(taxed.TotalTax).Add(tip))
	status, err := payment.EvaluateStatus(due, in.Payments)
	if err != nil {
		return nil, errors.Wrap(err, "evaluate payment")
	}

	return &Quote{
		Pricing:  priced,
		Tax:      taxed,
		Tip:      tip,
		TotalDue: due,
		Payment:  status,
	}, nil
}
