package simulation

import (
	"maps"
	"math"

	"github.com/shopspring/decimal"
)

// ElasticitySweep returns one scenario per candidate price for productID,
// with the quantity adjusted by a constant-elasticity demand curve:
//
//	qty' = max(1, round(qty * (p'/p)^(-e)))
//
// The base price is taken from base.PriceOverrides or, failing that, from
// the first line for productID. A zero base price leaves quantities alone.
func ElasticitySweep(base Scenario, productID string, prices []decimal.Decimal, elasticity float64) []Scenario {
	basePrice, qty, found := sweepBase(base, productID)
	out := make([]Scenario, 0, len(prices))
	for _, p := range prices {
		s := base
		s.ID = base.ID + "@" + p.StringFixed(2)
		s.PriceOverrides = maps.Clone(base.PriceOverrides)
		if s.PriceOverrides == nil {
			s.PriceOverrides = make(map[string]decimal.Decimal, 1)
		}
		s.PriceOverrides[productID] = p

		if found && basePrice.IsPositive() {
			s.QtyOverrides = maps.Clone(base.QtyOverrides)
			if s.QtyOverrides == nil {
				s.QtyOverrides = make(map[string]int, 1)
			}
			s.QtyOverrides[productID] = DemandAt(qty, basePrice, p, elasticity)
		}
		out = append(out, s)
	}
	return out
}

// DemandAt applies the constant-elasticity model to qty.
func DemandAt(qty int, basePrice, price decimal.Decimal, elasticity float64) int {
	if !basePrice.IsPositive() || !price.IsPositive() {
		return max(1, qty)
	}
	ratio := price.Div(basePrice).InexactFloat64()
	adjusted := math.Round(float64(qty) * math.Pow(ratio, -elasticity))
	if adjusted < 1 || math.IsNaN(adjusted) {
		return 1
	}
	if adjusted > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(adjusted)
}

func sweepBase(s Scenario, productID string) (decimal.Decimal, int, bool) {
	for _, l := range s.Lines {
		if l.ProductID != productID {
			continue
		}
		price := l.UnitPrice
		if p, ok := s.PriceOverrides[productID]; ok {
			price = p
		}
		qty := l.Qty
		if q, ok := s.QtyOverrides[productID]; ok {
			qty = q
		}
		return price, qty, true
	}
	return decimal.Zero, 0, false
}
