package promotion

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/money"
)

var hundred = decimal.NewFromInt(100)

// effect is the raw outcome of a discount event before clamping: the lines
// it touches and the amount it wants to take from them.
type effect struct {
	idx    []int
	amount decimal.Decimal
}

// base returns the remaining value of the touched lines.
func (ef effect) base(lines []cart.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, i := range ef.idx {
		sum = sum.Add(lines[i].NetTotal)
	}
	return sum
}

// compute evaluates ev against the running state of lines. A zero effect
// means the event does not apply to this cart.
func compute(p *Promotion, lines []cart.LineItem) (effect, error) {
	ev := p.Effect
	fail := func(reason string) (effect, error) {
		return effect{}, &ComputationError{PromoID: p.ID, Reason: reason}
	}

	switch ev.Type {
	case discount.PercentCart:
		if !validPercent(ev.Value) {
			return fail("percent must be in (0, 100]")
		}
		idx := cart.All(lines)
		return effect{idx: idx, amount: money.Percent(cart.NetSubtotal(lines), ev.Value)}, nil

	case discount.FixedCart:
		if !ev.Value.IsPositive() {
			return fail("fixed amount must be positive")
		}
		return effect{idx: cart.All(lines), amount: ev.Value}, nil

	case discount.PercentLine, discount.FixedLine:
		if ev.ProductID == "" {
			return fail("product id is required")
		}
		if ev.Type == discount.PercentLine && !validPercent(ev.Value) {
			return fail("percent must be in (0, 100]")
		}
		if ev.Type == discount.FixedLine && !ev.Value.IsPositive() {
			return fail("fixed amount must be positive")
		}
		ef := effect{idx: cart.Indexes(lines, ev.ProductID)}
		if ev.Type == discount.PercentLine {
			ef.amount = money.Percent(ef.base(lines), ev.Value)
		} else if len(ef.idx) > 0 {
			ef.amount = ev.Value
		}
		return ef, nil

	case discount.BuyXGetY:
		if ev.ProductID == "" {
			return fail("product id is required")
		}
		if ev.BuyQty <= 0 || ev.GetQty <= 0 {
			return fail("buy and get quantities must be positive")
		}
		ef := effect{idx: cart.Indexes(lines, ev.ProductID)}
		if len(ef.idx) == 0 {
			return ef, nil
		}
		qty := 0
		for _, i := range ef.idx {
			qty += lines[i].Qty
		}
		free := FreeUnits(qty, ev.BuyQty, ev.GetQty)
		unit := lines[ef.idx[0]].UnitPrice
		ef.amount = unit.Mul(decimal.NewFromInt(int64(free)))
		return ef, nil

	case discount.FreeItem:
		if ev.ProductID == "" {
			return fail("product id is required")
		}
		ef := effect{idx: cart.Indexes(lines, ev.ProductID)}
		ef.amount = ef.base(lines)
		return ef, nil

	case discount.ComboFixedPrice:
		if len(ev.ComboProductIDs) == 0 {
			return fail("combo has no products")
		}
		if ev.ComboPrice.IsNegative() {
			return fail("combo price must not be negative")
		}
		var ef effect
		for _, id := range ev.ComboProductIDs {
			idx := cart.Indexes(lines, id)
			if len(idx) == 0 {
				return effect{}, nil
			}
			ef.idx = appendUnique(ef.idx, idx...)
		}
		ef.amount = money.FloorAtZero(ef.base(lines).Sub(ev.ComboPrice))
		return ef, nil

	default:
		return fail("unsupported event type " + string(ev.Type))
	}
}

// FreeUnits returns floor(qty/(buy+get))*get.
func FreeUnits(qty, buy, get int) int {
	if buy+get <= 0 || qty <= 0 {
		return 0
	}
	return qty / (buy + get) * get
}

func validPercent(v decimal.Decimal) bool {
	return v.IsPositive() && v.LessThanOrEqual(hundred)
}

func appendUnique(dst []int, idx ...int) []int {
	for _, i := range idx {
		if !slices.Contains(dst, i) {
			dst = append(dst, i)
		}
	}
	return dst
}
