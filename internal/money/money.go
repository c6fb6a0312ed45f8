// Package money holds the decimal helpers shared by the pricing pipeline.
//
// Every amount leaving the pipeline is rounded to cents half-up. Inputs are
// non-negative, so decimal's half-away-from-zero rounding is half-up here.
package money

import "github.com/shopspring/decimal"

var (
	// Epsilon is the tolerance used when comparing settled amounts.
	Epsilon = decimal.RequireFromString("0.001")

	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Round2 rounds d to two decimal places, half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FloorAtZero clamps negative values to zero.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}

// Clamp limits d to the range [0, limit]. The second return value reports
// whether d had to be reduced.
func Clamp(d, limit decimal.Decimal) (decimal.Decimal, bool) {
	limit = FloorAtZero(limit)
	if d.IsNegative() {
		return zero, true
	}
	if d.GreaterThan(limit) {
		return limit, true
	}
	return d, false
}

// Percent returns pct percent of base, rounded to cents.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return Round2(base.Mul(pct).Div(hundred))
}

// NearlyEqual reports whether a and b differ by at most Epsilon.
func NearlyEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Allocate splits amount across weights pro rata. Shares are rounded to
// cents and the rounding remainder goes to the largest weight, so the shares
// always add up to Round2(amount). Negative weights count as zero. When the
// total weight is zero every share is zero.
func Allocate(amount decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(weights))
	for i := range shares {
		shares[i] = zero
	}
	amount = Round2(amount)
	if len(weights) == 0 || amount.IsZero() {
		return shares
	}

	total := zero
	for _, w := range weights {
		total = total.Add(FloorAtZero(w))
	}
	if !total.IsPositive() {
		return shares
	}

	allocated := zero
	for i, w := range weights {
		w = FloorAtZero(w)
		if w.IsZero() {
			continue
		}
		shares[i] = Round2(amount.Mul(w).Div(total))
		allocated = allocated.Add(shares[i])
	}

	if diff := amount.Sub(allocated); !diff.IsZero() {
		i := largest(weights)
		shares[i] = shares[i].Add(diff)
	}
	return shares
}

// largest returns the index of the largest weight; ties go to the first one.
func largest(weights []decimal.Decimal) int {
	best := 0
	for i, w := range weights {
		if w.GreaterThan(weights[best]) {
			best = i
		}
	}
	return best
}
