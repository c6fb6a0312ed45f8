// Package simulation runs what-if pricing scenarios in parallel.
package simulation

import (
	"maps"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/checkout"
	"github.com/xenking/pos-pricing/internal/domain/payment"
	"github.com/xenking/pos-pricing/internal/domain/pricing"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
	"github.com/xenking/pos-pricing/internal/domain/tax"
)

// Scenario is one hypothetical checkout.
//
// Promotions and Taxes replace the harness defaults when non-nil;
// ExtraPromotions are appended to whichever list is in effect.
type Scenario struct {
	ID              string
	Lines           []cart.LineItem
	PriceOverrides  map[string]decimal.Decimal
	QtyOverrides    map[string]int
	Promotions      []promotion.Promotion
	ExtraPromotions []promotion.Promotion
	Taxes           []tax.Definition
	ManualDiscounts []pricing.ManualDiscount
	Payments        []payment.Payment
	Tip             *payment.TipConfig
	Extra           map[string]any
}

// Result is the outcome of one scenario. Exactly one of Quote and Error is
// set.
type Result struct {
	ID       string
	OK       bool
	Error    string
	Quote    *checkout.Quote
	Duration time.Duration
}

// Revenue returns grand total plus tax, or zero for a failed scenario.
func (r Result) Revenue() decimal.Decimal {
	if !r.OK || r.Quote == nil {
		return decimal.Zero
	}
	return r.Quote.Pricing.GrandTotal.Add(r.Quote.Tax.TotalTax)
}

// Defaults are used by scenarios that do not bring their own promotions or
// taxes.
type Defaults struct {
	Promotions []promotion.Promotion
	Taxes      []tax.Definition
}

// input resolves the scenario against defaults into a pipeline input.
// A quantity override of zero drops the line.
func (s Scenario) input(def Defaults) checkout.Input {
	lines := make([]cart.LineItem, 0, len(s.Lines))
	for _, l := range s.Lines {
		if p, ok := s.PriceOverrides[l.ProductID]; ok {
			l.UnitPrice = p
		}
		if q, ok := s.QtyOverrides[l.ProductID]; ok {
			if q == 0 {
				continue
			}
			l.Qty = q
		}
		lines = append(lines, l)
	}

	promos := def.Promotions
	if s.Promotions != nil {
		promos = s.Promotions
	}
	if len(s.ExtraPromotions) > 0 {
		promos = append(append([]promotion.Promotion(nil), promos...), s.ExtraPromotions...)
	}
	taxes := def.Taxes
	if s.Taxes != nil {
		taxes = s.Taxes
	}

	extra := maps.Clone(s.Extra)
	if extra == nil {
		extra = make(map[string]any, 1)
	}
	extra["scenarioId"] = s.ID

	return checkout.Input{
		Lines:           lines,
		ManualDiscounts: s.ManualDiscounts,
		Promotions:      promos,
		Taxes:           taxes,
		Payments:        s.Payments,
		Tip:             s.Tip,
		Extra:           extra,
	}
}
