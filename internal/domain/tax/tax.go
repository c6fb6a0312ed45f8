// Package tax computes line and cart level taxes on discounted amounts.
package tax

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/money"
)

// Scope tells what a tax is levied on.
type Scope string

const (
	// ScopeLine taxes every eligible line on its net total.
	ScopeLine Scope = "line"
	// ScopeGlobal taxes the discounted cart total once.
	ScopeGlobal Scope = "global"
)

// Definition is one configured tax.
type Definition struct {
	Code string
	Name string
	// Rate is a fraction: 0.11 is 11%.
	Rate   decimal.Decimal
	Scope  Scope
	Active bool
	// Categories limits a line tax to these product categories. Empty means
	// every line.
	Categories []string
}

func (def Definition) covers(l cart.LineItem) bool {
	return len(def.Categories) == 0 || slices.Contains(def.Categories, l.Category)
}

// Line is one computed tax amount.
type Line struct {
	Code   string
	Name   string
	Scope  Scope
	Base   decimal.Decimal
	Rate   decimal.Decimal
	Amount decimal.Decimal
	// ProductID and LineIndex identify the taxed line for line scope taxes.
	// LineIndex is -1 for global taxes.
	ProductID string
	LineIndex int
}

// Result is the outcome of Calculate.
type Result struct {
	Lines    []Line
	TotalTax decimal.Decimal
}

// ForLine returns the tax lines levied on the cart line at index i.
func (r Result) ForLine(i int) []Line {
	var out []Line
	for _, l := range r.Lines {
		if l.Scope == ScopeLine && l.LineIndex == i {
			out = append(out, l)
		}
	}
	return out
}

// Source provides the tax configuration.
type Source interface {
	ActiveTaxes(ctx context.Context) ([]Definition, error)
}

// Static is a Source serving a fixed configuration.
type Static []Definition

// ActiveTaxes implements Source.
func (s Static) ActiveTaxes(context.Context) ([]Definition, error) {
	out := make([]Definition, 0, len(s))
	for _, def := range s {
		if def.Active {
			out = append(out, def)
		}
	}
	return out, nil
}

// ErrInvalidConfig is the sentinel wrapped by ConfigError.
var ErrInvalidConfig = errors.New("invalid tax config")

// ConfigError reports a malformed tax definition. It is fatal to the
// calculation.
type ConfigError struct {
	Code   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("tax %q: %s", e.Code, e.Reason)
}

// Kind returns the error taxonomy tag.
func (e *ConfigError) Kind() string { return "INVALID_TAX_CONFIG" }

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// Validate checks every definition, active or not.
func Validate(defs []Definition) error {
	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		switch {
		case def.Code == "":
			return &ConfigError{Reason: "code is required"}
		case def.Rate.IsNegative():
			return &ConfigError{Code: def.Code, Reason: "rate must not be negative"}
		case def.Scope != ScopeLine && def.Scope != ScopeGlobal:
			return &ConfigError{Code: def.Code, Reason: fmt.Sprintf("unknown scope %q", def.Scope)}
		case def.Scope == ScopeGlobal && len(def.Categories) > 0:
			return &ConfigError{Code: def.Code, Reason: "categories only apply to line taxes"}
		}
		if _, ok := seen[def.Code]; ok {
			return &ConfigError{Code: def.Code, Reason: "duplicate code"}
		}
		seen[def.Code] = struct{}{}
	}
	return nil
}

// Calculate levies the active definitions on the discounted lines.
//
// Line taxes use each line's NetTotal; global taxes use Σ NetTotal. Every
// amount is rounded to cents half-up on its own.
func Calculate(lines []cart.LineItem, defs []Definition) (Result, error) {
	if err := Validate(defs); err != nil {
		return Result{}, err
	}

	res := Result{TotalTax: decimal.Zero}
	for _, def := range defs {
		if !def.Active {
			continue
		}
		switch def.Scope {
		case ScopeLine:
			for i, l := range lines {
				if !def.covers(l) {
					continue
				}
				res.add(def, l.NetTotal, l.ProductID, i)
			}
		case ScopeGlobal:
			res.add(def, cart.NetSubtotal(lines), "", -1)
		}
	}
	return res, nil
}

func (r *Result) add(def Definition, base decimal.Decimal, productID string, idx int) {
	base = money.Round2(base)
	amount := money.Round2(base.Mul(def.Rate))
	r.Lines = append(r.Lines, Line{
		Code:      def.Code,
		Name:      def.Name,
		Scope:     def.Scope,
		Base:      base,
		Rate:      def.Rate,
		Amount:    amount,
		ProductID: productID,
		LineIndex: idx,
	})
	r.TotalTax = r.TotalTax.Add(amount)
}
