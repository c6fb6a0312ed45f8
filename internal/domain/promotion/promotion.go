// Package promotion selects and applies promotions to a cart.
package promotion

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/rule"
)

// Promotion is a conditional discount.
type Promotion struct {
	ID          string
	Name        string
	Description string
	// Priority orders evaluation, lowest first. Ties keep input order.
	Priority  int
	Active    bool
	ValidFrom *time.Time
	ValidTo   *time.Time
	// BranchIDs restricts the promotion to these branches. Empty means every
	// branch.
	BranchIDs []string
	Stackable bool
	// Excludes lists promotions that cannot fire together with this one.
	Excludes []string
	// Logic gates the promotion. Nil means unconditional.
	Logic  *rule.Node
	Effect *discount.Event

	// Set by DecodeLogic when the decoded rule is malformed.
	logicRaw any
	logicErr error
}

// LogicErr returns the structural error of a malformed decoded rule, or nil.
func (p *Promotion) LogicErr() error { return p.logicErr }

// Label returns the text used in the audit trail.
func (p *Promotion) Label() string {
	switch {
	case p.Description != "":
		return p.Description
	case p.Name != "":
		return p.Name
	default:
		return p.ID
	}
}

// InWindow reports whether now falls inside the inclusive validity window.
func (p *Promotion) InWindow(now time.Time) bool {
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidTo != nil && now.After(*p.ValidTo) {
		return false
	}
	return true
}

// AppliesTo reports whether the promotion runs at branchID.
func (p *Promotion) AppliesTo(branchID string) bool {
	return len(p.BranchIDs) == 0 || slices.Contains(p.BranchIDs, branchID)
}

// ExcludesPromotion reports whether p and other are mutually exclusive.
// Exclusion holds when either side lists the other.
func (p *Promotion) ExcludesPromotion(other *Promotion) bool {
	return slices.Contains(p.Excludes, other.ID) || slices.Contains(other.Excludes, p.ID)
}

// Eligible returns the active promotions valid at now for branchID, keeping
// input order.
func Eligible(promos []Promotion, now time.Time, branchID string) []Promotion {
	out := make([]Promotion, 0, len(promos))
	for _, p := range promos {
		if p.Active && p.InWindow(now) && p.AppliesTo(branchID) {
			out = append(out, p)
		}
	}
	return out
}

// SortByPriority returns a copy of promos ordered by ascending priority.
// The sort is stable.
func SortByPriority(promos []Promotion) []Promotion {
	out := slices.Clone(promos)
	slices.SortStableFunc(out, func(a, b Promotion) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return out
}

// Source provides the promotions that may apply to a branch.
type Source interface {
	ActivePromotions(ctx context.Context, branchID string, now time.Time) ([]Promotion, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, branchID string, now time.Time) ([]Promotion, error)

// ActivePromotions calls f.
func (f SourceFunc) ActivePromotions(ctx context.Context, branchID string, now time.Time) ([]Promotion, error) {
	return f(ctx, branchID, now)
}

// Static is a Source serving a fixed list, filtered with Eligible.
type Static []Promotion

// ActivePromotions implements Source.
func (s Static) ActivePromotions(_ context.Context, branchID string, now time.Time) ([]Promotion, error) {
	return Eligible(s, now, branchID), nil
}

// Failure kinds.
const (
	KindRuleStructural = "RULE_EVAL_STRUCTURAL_ERROR"
	KindInvalidEvent   = "INVALID_DISCOUNT_EVENT"
	KindComputation    = "PROMOTION_COMPUTATION_ERROR"
)

// Failure records a promotion that was skipped because of an error. It
// never aborts the pass.
type Failure struct {
	PromoID string
	Kind    string
	Err     error
}

func (f Failure) Error() string {
	return fmt.Sprintf("promotion %q: %s: %v", f.PromoID, f.Kind, f.Err)
}

// ErrComputation is the sentinel wrapped by ComputationError.
var ErrComputation = errors.New("promotion computation failed")

// ComputationError reports a payload that does not fit its event type.
type ComputationError struct {
	PromoID string
	Reason  string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("compute promotion %q: %s", e.PromoID, e.Reason)
}

// Kind returns the error taxonomy tag.
func (e *ComputationError) Kind() string { return KindComputation }

func (e *ComputationError) Unwrap() error { return ErrComputation }

// Applied is the audit record of a promotion that fired.
type Applied struct {
	PromoID     string
	Type        discount.EventType
	Amount      decimal.Decimal
	Description string
	ProductIDs  []string
	// Clamped is set when the raw effect exceeded the available base.
	Clamped bool
}

// Result is the outcome of applying promotions.
type Result struct {
	Lines         []cart.LineItem
	Applied       []Applied
	Failures      []Failure
	DiscountTotal decimal.Decimal
}
