package promotion

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/rule"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func line(t *testing.T, id string, qty int, price string) cart.LineItem {
	t.Helper()
	l, err := cart.NewLine(id, id, qty, d(price))
	require.NoError(t, err)
	return l
}

func logic(t *testing.T, src string) *rule.Node {
	t.Helper()
	n, err := rule.Parse([]byte(src))
	require.NoError(t, err)
	return &n
}

func ids(applied []Applied) []string {
	out := make([]string, len(applied))
	for i, a := range applied {
		out[i] = a.PromoID
	}
	return out
}

func TestApply_BuyXGetY(t *testing.T) {
	lines := []cart.LineItem{line(t, "donut", 7, "3.50")}
	promos := []Promotion{{
		ID:        "bogo",
		Stackable: true,
		Effect:    &discount.Event{Type: discount.BuyXGetY, ProductID: "donut", BuyQty: 2, GetQty: 1},
	}}

	res := NewEngine(nil, nil).Apply(lines, promos, nil)
	require.Empty(t, res.Failures)
	require.Len(t, res.Applied, 1)
	assert.True(t, d("7").Equal(res.Applied[0].Amount), "2 free units at 3.50, got %s", res.Applied[0].Amount)
	assert.Equal(t, []string{"donut"}, res.Applied[0].ProductIDs)
	assert.True(t, d("17.50").Equal(res.Lines[0].NetTotal))
}

func TestFreeUnits(t *testing.T) {
	assert.Equal(t, 2, FreeUnits(7, 2, 1))
	assert.Equal(t, 0, FreeUnits(2, 2, 1))
	assert.Equal(t, 1, FreeUnits(3, 2, 1))
	assert.Equal(t, 4, FreeUnits(8, 2, 2))
	assert.Equal(t, 0, FreeUnits(5, 0, 0))
}

func TestApply_Combo(t *testing.T) {
	lines := []cart.LineItem{line(t, "p1", 1, "500"), line(t, "p2", 1, "500"), line(t, "p3", 1, "100")}
	promos := []Promotion{{
		ID:     "combo",
		Effect: &discount.Event{Type: discount.ComboFixedPrice, ComboProductIDs: []string{"p1", "p2"}, ComboPrice: d("800")},
	}}

	res := NewEngine(nil, nil).Apply(lines, promos, nil)
	require.Len(t, res.Applied, 1)
	assert.True(t, d("200").Equal(res.DiscountTotal))
	assert.True(t, d("400").Equal(res.Lines[0].NetTotal))
	assert.True(t, d("400").Equal(res.Lines[1].NetTotal))
	assert.True(t, d("100").Equal(res.Lines[2].NetTotal))
}

func TestApply_ComboMissingItemDoesNotFire(t *testing.T) {
	lines := []cart.LineItem{line(t, "p1", 1, "500")}
	promos := []Promotion{
		{
			ID:       "combo",
			Excludes: []string{"pct"},
			Effect:   &discount.Event{Type: discount.ComboFixedPrice, ComboProductIDs: []string{"p1", "p2"}, ComboPrice: d("800")},
		},
		{ID: "pct", Priority: 1, Effect: discount.Percent(d("10"))},
	}

	res := NewEngine(nil, nil).Apply(lines, promos, nil)
	assert.Equal(t, []string{"pct"}, ids(res.Applied))
	assert.Empty(t, res.Failures)
}

func TestApply_Exclusion(t *testing.T) {
	lines := []cart.LineItem{line(t, "p1", 2, "50")}
	promos := []Promotion{
		{ID: "A", Priority: 1, Stackable: true, Excludes: []string{"B"}, Effect: discount.Percent(d("10"))},
		{ID: "B", Priority: 2, Stackable: true, Effect: discount.Fixed(d("5"))},
		{ID: "C", Priority: 3, Stackable: true, Excludes: []string{"A"}, Effect: discount.Fixed(d("5"))},
		{ID: "D", Priority: 4, Stackable: true, Effect: discount.Fixed(d("5"))},
	}

	res := NewEngine(nil, nil).Apply(lines, promos, nil)
	assert.Equal(t, []string{"A", "D"}, ids(res.Applied))
	assert.True(t, d("15").Equal(res.DiscountTotal))
}

func TestApply_NonStackableHalts(t *testing.T) {
	lines := []cart.LineItem{line(t, "p1", 1, "100")}
	promos := []Promotion{
		{ID: "first", Priority: 1, Stackable: false, Effect: discount.Percent(d("10"))},
		{ID: "second", Priority: 2, Stackable: true, Effect: discount.Fixed(d("5"))},
	}

	res := NewEngine(nil, nil).Apply(lines, promos, nil)
	assert.Equal(t, []string{"first"}, ids(res.Applied))
}

func TestApply_ConditionFalseDoesNotHalt(t *testing.T) {
	lines := []cart.LineItem{line(t, "p1", 1, "100")}
	promos := []Promotion{
		{ID: "gated", Priority: 1, Logic: logic(t, `{">":[{"var":"subtotal"},1000]}`), Effect: discount.Percent(d("50"))},
		{ID: "open", Priority: 2, Effect: discount.Fixed(d("5"))},
	}

	res := NewEngine(nil, nil).Apply(lines, promos, nil)
	assert.Equal(t, []string{"open"}, ids(res.Applied))
}

func TestApply_PriorityIsStable(t *testing.T) {
	lines := []cart.LineItem{line(t, "p1", 1, "100")}
	promos := []Promotion{
		{ID: "late", Priority: 5, Stackable: true, Effect: discount.Fixed(d("1"))},
		{ID: "tie-1", Priority: 1, Stackable: true, Effect: discount.Fixed(d("1"))},
		{ID: "tie-2", Priority: 1, Stackable: true, Effect: discount.Fixed(d("1"))},
		{ID: "early", Priority: 0, Stackable: true, Effect: discount.Fixed(d("1"))},
	}

	res := NewEngine(nil, nil).Apply(lines, promos, nil)
	assert.Equal(t, []string{"early", "tie-1", "tie-2", "late"}, ids(res.Applied))
	assert.Equal(t, "late", promos[0].ID, "input must not be reordered")
}

func TestApply_SequentialCartPercent(t *testing.T) {
	lines := []cart.LineItem{line(t, "p1", 1, "100")}
	promos := []Promotion{
		{ID: "a", Priority: 1, Stackable: true, Effect: discount.Percent(d("10"))},
		{ID: "b", Priority: 2, Stackable: true, Effect: discount.Percent(d("10"))},
	}

	res := NewEngine(nil, nil).Apply(lines, promos, nil)
	require.Len(t, res.Applied, 2)
	assert.True(t, d("10").Equal(res.Applied[0].Amount))
	assert.True(t, d("9").Equal(res.Applied[1].Amount))
}

func TestApply_RuleSeesRunningSubtotal(t *testing.T) {
	lines := []cart.LineItem{line(t, "p1", 1, "100")}
	promos := []Promotion{
		{ID: "big", Priority: 1, Stackable: true, Effect: discount.Fixed(d("30"))},
		{ID: "over-80", Priority: 2, Stackable: true, Logic: logic(t, `{">":[{"var":"subtotal"},80]}`), Effect: discount.Fixed(d("5"))},
	}

	res := NewEngine(nil, nil).Apply(lines, promos, nil)
	assert.Equal(t, []string{"big"}, ids(res.Applied))
}

func TestApply_ExtraContext(t *testing.T) {
	lines := []cart.LineItem{line(t, "p1", 1, "100")}
	promos := []Promotion{
		{ID: "vip", Logic: logic(t, `{"if":[{">":[{"var":"customer.visits"},9]},true,false]}`), Effect: discount.Percent(d("20"))},
	}

	res := NewEngine(nil, nil).Apply(lines, promos, map[string]any{"customer": map[string]any{"visits": 12.0}})
	assert.Equal(t, []string{"vip"}, ids(res.Applied))

	res = NewEngine(nil, nil).Apply(lines, promos, map[string]any{"customer": map[string]any{"visits": 3.0}})
	assert.Empty(t, res.Applied)
}

func TestApply_PartialFailure(t *testing.T) {
	lines := []cart.LineItem{line(t, "p1", 1, "100"), line(t, "p2", 1, "50")}
	broken := rule.Node{Kind: rule.KindGreater, Args: []rule.Node{rule.Literal(1.0)}}
	promos := []Promotion{
		{ID: "bad-type", Priority: 1, Stackable: true, Effect: &discount.Event{Type: "Teleport"}},
		{ID: "bad-rule", Priority: 2, Stackable: true, Logic: &broken, Effect: discount.Fixed(d("5"))},
		{ID: "bad-payload", Priority: 3, Stackable: true, Effect: &discount.Event{Type: discount.PercentCart, Value: d("150")}},
		{ID: "bad-bogo", Priority: 4, Stackable: true, Effect: &discount.Event{Type: discount.BuyXGetY, ProductID: "p1"}},
		{ID: "no-effect", Priority: 5, Stackable: true},
		{ID: "good", Priority: 6, Stackable: true, Effect: &discount.Event{Type: discount.PercentLine, ProductID: "p2", Value: d("10")}},
	}

	res := NewEngine(nil, nil).Apply(lines, promos, nil)
	assert.Equal(t, []string{"good"}, ids(res.Applied))
	assert.True(t, d("5").Equal(res.DiscountTotal))

	kinds := map[string]string{}
	for _, f := range res.Failures {
		kinds[f.PromoID] = f.Kind
	}
	assert.Equal(t, map[string]string{
		"bad-type":    KindInvalidEvent,
		"bad-rule":    KindRuleStructural,
		"bad-payload": KindComputation,
		"bad-bogo":    KindComputation,
		"no-effect":   KindInvalidEvent,
	}, kinds)

	var ce *ComputationError
	for _, f := range res.Failures {
		if f.PromoID == "bad-payload" {
			require.True(t, errors.As(f.Err, &ce))
			assert.Equal(t, "bad-payload", ce.PromoID)
		}
	}
}

func TestApply_Clamped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	lines := []cart.LineItem{line(t, "p1", 1, "20")}
	promos := []Promotion{
		{ID: "huge", Effect: discount.Fixed(d("50"))},
	}

	res := NewEngine(zap.New(core), nil).Apply(lines, promos, nil)
	require.Len(t, res.Applied, 1)
	assert.True(t, res.Applied[0].Clamped)
	assert.True(t, d("20").Equal(res.Applied[0].Amount))
	assert.True(t, res.Lines[0].NetTotal.IsZero())
	assert.Equal(t, 1, logs.FilterField(zap.String("kind", "PRICING_NEGATIVE_RESULT")).Len())
}

func TestApply_LineDiscounts(t *testing.T) {
	lines := []cart.LineItem{line(t, "tea", 2, "4"), line(t, "cake", 1, "6")}
	promos := []Promotion{
		{ID: "tea-off", Priority: 1, Stackable: true, Effect: &discount.Event{Type: discount.FixedLine, ProductID: "tea", Value: d("1.5")}},
		{ID: "cake-free", Priority: 2, Stackable: true, Effect: &discount.Event{Type: discount.FreeItem, ProductID: "cake"}},
		{ID: "absent", Priority: 3, Stackable: true, Effect: &discount.Event{Type: discount.FreeItem, ProductID: "scone"}},
	}

	res := NewEngine(nil, nil).Apply(lines, promos, nil)
	assert.Equal(t, []string{"tea-off", "cake-free"}, ids(res.Applied))
	assert.True(t, d("6.5").Equal(res.Lines[0].NetTotal))
	assert.True(t, res.Lines[1].NetTotal.IsZero())
	assert.True(t, d("7.5").Equal(res.DiscountTotal))
}

func TestApply_Idempotent(t *testing.T) {
	lines := []cart.LineItem{line(t, "p1", 3, "9.99"), line(t, "p2", 1, "24.50")}
	promos := []Promotion{
		{ID: "a", Priority: 2, Stackable: true, Effect: discount.Percent(d("15"))},
		{ID: "b", Priority: 1, Stackable: true, Effect: &discount.Event{Type: discount.BuyXGetY, ProductID: "p1", BuyQty: 1, GetQty: 1}},
	}
	e := NewEngine(nil, nil)

	first := e.Apply(lines, promos, nil)
	second := e.Apply(lines, promos, nil)
	assert.Equal(t, first, second)
	assert.True(t, lines[0].Discount.IsZero(), "input lines must not be mutated")
}

func TestApply_NeverNegative(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	types := discount.Types
	products := []string{"p1", "p2", "p3"}
	e := NewEngine(nil, nil)

	for range 200 {
		var lines []cart.LineItem
		for _, id := range products[:1+rng.IntN(len(products))] {
			price := decimal.New(int64(rng.IntN(10000)), -2)
			l, err := cart.NewLine(id, id, 1+rng.IntN(9), price)
			require.NoError(t, err)
			lines = append(lines, l)
		}
		var promos []Promotion
		for i := range 1 + rng.IntN(6) {
			promos = append(promos, Promotion{
				ID:        string(rune('a' + i)),
				Priority:  rng.IntN(3),
				Stackable: rng.IntN(4) > 0,
				Effect: &discount.Event{
					Type:            types[rng.IntN(len(types))],
					Value:           decimal.New(int64(1+rng.IntN(12000)), -2),
					ProductID:       products[rng.IntN(len(products))],
					BuyQty:          1 + rng.IntN(3),
					GetQty:          1 + rng.IntN(2),
					ComboProductIDs: []string{"p1", "p2"},
					ComboPrice:      decimal.New(int64(rng.IntN(5000)), -2),
				},
			})
		}

		res := e.Apply(lines, promos, nil)
		subtotal := cart.Subtotal(lines)
		assert.False(t, res.DiscountTotal.IsNegative())
		assert.True(t, res.DiscountTotal.LessThanOrEqual(subtotal))
		for _, l := range res.Lines {
			assert.False(t, l.NetTotal.IsNegative())
		}
		assert.True(t, subtotal.Sub(res.DiscountTotal).Equal(cart.NetSubtotal(res.Lines)))
	}
}

func TestEligible(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	promos := []Promotion{
		{ID: "inactive"},
		{ID: "open", Active: true},
		{ID: "window", Active: true, ValidFrom: &past, ValidTo: &future},
		{ID: "edge", Active: true, ValidFrom: &now, ValidTo: &now},
		{ID: "expired", Active: true, ValidTo: &past},
		{ID: "not-yet", Active: true, ValidFrom: &future},
		{ID: "branch-ok", Active: true, BranchIDs: []string{"b1", "b2"}},
		{ID: "branch-other", Active: true, BranchIDs: []string{"b3"}},
	}

	got := Eligible(promos, now, "b2")
	var gotIDs []string
	for _, p := range got {
		gotIDs = append(gotIDs, p.ID)
	}
	assert.Equal(t, []string{"open", "window", "edge", "branch-ok"}, gotIDs)
}
