package promotion

import (
	"maps"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/rule"
	"github.com/xenking/pos-pricing/internal/money"
)

// Engine applies promotions to cart lines. It holds no per-call state and is
// safe for concurrent use.
type Engine struct {
	lg    *zap.Logger
	rules *rule.Evaluator
}

// NewEngine creates an Engine. A nil logger or evaluator is replaced by a
// silent one.
func NewEngine(lg *zap.Logger, rules *rule.Evaluator) *Engine {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Engine{lg: lg, rules: rules}
}

// fold is the accumulator threaded through the promotion list.
type fold struct {
	lines    []cart.LineItem
	fired    []*Promotion
	applied  []Applied
	failures []Failure
	halted   bool
}

func (f *fold) excluded(p *Promotion) (string, bool) {
	for _, prev := range f.fired {
		if prev.ExcludesPromotion(p) {
			return prev.ID, true
		}
	}
	return "", false
}

func (f *fold) fail(p *Promotion, kind string, err error) {
	f.failures = append(f.failures, Failure{PromoID: p.ID, Kind: kind, Err: err})
}

// Apply evaluates promotions in priority order against lines.
//
// Lines are copied; their existing Discount/NetTotal is the starting point.
// extra is merged into the rule context of every promotion. Errors of a
// single promotion are reported in Result.Failures and never stop the pass.
func (e *Engine) Apply(lines []cart.LineItem, promos []Promotion, extra map[string]any) Result {
	st := &fold{lines: cart.Clone(lines)}
	start := cart.NetSubtotal(st.lines)

	sorted := SortByPriority(promos)
	for i := range sorted {
		if st.halted {
			break
		}
		e.step(st, &sorted[i], extra)
	}

	total := decimal.Zero
	for _, a := range st.applied {
		total = total.Add(a.Amount)
	}
	if total.GreaterThan(start) {
		// Unreachable while every effect is clamped to the remaining base.
		e.lg.Error("Promotion total exceeds subtotal",
			zap.Stringer("total", total),
			zap.Stringer("subtotal", start),
		)
		total = start
	}

	return Result{
		Lines:         st.lines,
		Applied:       st.applied,
		Failures:      st.failures,
		DiscountTotal: total,
	}
}

func (e *Engine) step(st *fold, p *Promotion, extra map[string]any) {
	lg := e.lg.With(zap.String("promo_id", p.ID))

	if by, ok := st.excluded(p); ok {
		lg.Debug("Promotion excluded", zap.String("by", by))
		return
	}
	if err := discount.Validate(p.Effect); err != nil {
		lg.Warn("Invalid discount event", zap.Error(err))
		st.fail(p, KindInvalidEvent, err)
		return
	}

	if err := p.LogicErr(); err != nil {
		lg.Warn("Promotion rule is malformed", zap.Error(err))
		st.fail(p, KindRuleStructural, err)
		return
	}
	if p.Logic != nil {
		data := cart.Context(st.lines, extra)
		v, err := e.rules.Evaluate(*p.Logic, data)
		if err != nil {
			kind := KindRuleStructural
			var se *rule.StructuralError
			if !errors.As(err, &se) {
				kind = KindComputation
			}
			lg.Warn("Promotion rule failed", zap.Error(err))
			st.fail(p, kind, err)
			return
		}
		if !rule.Truthy(v) {
			lg.Debug("Promotion condition not met")
			return
		}
	}

	ef, err := compute(p, st.lines)
	if err != nil {
		lg.Warn("Promotion computation failed", zap.Error(err))
		st.fail(p, KindComputation, err)
		return
	}

	raw := money.Round2(ef.amount)
	amount, clamped := money.Clamp(raw, ef.base(st.lines))
	if clamped {
		lg.Warn("Discount clamped to available base",
			zap.String("kind", "PRICING_NEGATIVE_RESULT"),
			zap.Stringer("raw", raw),
			zap.Stringer("clamped", amount),
		)
	}
	if !amount.IsPositive() {
		lg.Debug("Promotion has no effect")
		return
	}

	// Cart-level and combo amounts spread pro rata over their lines; the
	// per-line clamp inside Allocate keeps net totals non-negative.
	taken := cart.Allocate(st.lines, ef.idx, amount)
	if !taken.IsPositive() {
		return
	}

	st.fired = append(st.fired, p)
	st.applied = append(st.applied, Applied{
		PromoID:     p.ID,
		Type:        p.Effect.Type,
		Amount:      taken,
		Description: p.Label(),
		ProductIDs:  productIDs(st.lines, ef.idx),
		Clamped:     clamped,
	})
	lg.Debug("Promotion applied", zap.Stringer("amount", taken))

	if !p.Stackable {
		st.halted = true
	}
}

func productIDs(lines []cart.LineItem, idx []int) []string {
	seen := make(map[string]struct{}, len(idx))
	for _, i := range idx {
		seen[lines[i].ProductID] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}
