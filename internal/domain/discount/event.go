// Package discount describes the mechanical effect of a promotion.
package discount

import (
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// EventType enumerates the supported discount effects.
type EventType string

const (
	// PercentCart takes Value percent off the running cart subtotal.
	PercentCart EventType = "DiscountPercentCart"
	// FixedCart takes Value off the running cart subtotal.
	FixedCart EventType = "DiscountFixedCart"
	// PercentLine takes Value percent off the ProductID line.
	PercentLine EventType = "DiscountPercentLine"
	// FixedLine takes Value off the ProductID line.
	FixedLine EventType = "DiscountFixedLine"
	// BuyXGetY gives GetQty free units of ProductID for every BuyQty+GetQty.
	BuyXGetY EventType = "BuyXGetY"
	// FreeItem makes the ProductID line free.
	FreeItem EventType = "FreeItem"
	// ComboFixedPrice sells the ComboProductIDs lines together for ComboPrice.
	ComboFixedPrice EventType = "ComboFixedPrice"
)

// Types lists every known event type.
var Types = []EventType{
	PercentCart,
	FixedCart,
	PercentLine,
	FixedLine,
	BuyXGetY,
	FreeItem,
	ComboFixedPrice,
}

// Known reports whether t belongs to the closed set of event types.
func (t EventType) Known() bool {
	return slices.Contains(Types, t)
}

// CartLevel reports whether t discounts the cart as a whole.
func (t EventType) CartLevel() bool {
	return t == PercentCart || t == FixedCart
}

// Event is an immutable discount effect.
type Event struct {
	Type            EventType
	Value           decimal.Decimal
	ProductID       string
	BuyQty          int
	GetQty          int
	ComboProductIDs []string
	ComboPrice      decimal.Decimal
}

// Percent returns a cart-wide percentage discount.
func Percent(pct decimal.Decimal) *Event {
	return &Event{Type: PercentCart, Value: pct}
}

// Fixed returns a cart-wide fixed discount.
func Fixed(amount decimal.Decimal) *Event {
	return &Event{Type: FixedCart, Value: amount}
}

// ErrInvalidEvent is the sentinel wrapped by every ValidationError.
var ErrInvalidEvent = errors.New("invalid discount event")

// ValidationError reports a discount event that cannot be used.
type ValidationError struct {
	Type   EventType
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid discount event %q: %s: %s", e.Type, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid discount event %q: %s", e.Type, e.Reason)
}

// Kind returns the error taxonomy tag.
func (e *ValidationError) Kind() string { return "INVALID_DISCOUNT_EVENT" }

func (e *ValidationError) Unwrap() error { return ErrInvalidEvent }

var hundred = decimal.NewFromInt(100)

// Validate checks that ev is present and that its type is known. The
// payload is not inspected; see ValidatePayload.
func Validate(ev *Event) error {
	if ev == nil {
		return &ValidationError{Reason: "event is missing"}
	}
	if !ev.Type.Known() {
		return &ValidationError{Type: ev.Type, Reason: "unknown type"}
	}
	return nil
}

// ValidatePayload validates the type and checks that the payload matches
// it.
func ValidatePayload(ev *Event) error {
	if err := Validate(ev); err != nil {
		return err
	}
	invalid := func(field, reason string) error {
		return &ValidationError{Type: ev.Type, Field: field, Reason: reason}
	}

	switch ev.Type {
	case PercentCart, PercentLine:
		if !ev.Value.IsPositive() || ev.Value.GreaterThan(hundred) {
			return invalid("value", "percent must be in (0, 100]")
		}
	case FixedCart, FixedLine:
		if !ev.Value.IsPositive() {
			return invalid("value", "amount must be positive")
		}
	case ComboFixedPrice:
		if ev.ComboPrice.IsNegative() {
			return invalid("comboPrice", "must not be negative")
		}
		distinct := slices.Clone(ev.ComboProductIDs)
		slices.Sort(distinct)
		distinct = slices.Compact(distinct)
		if len(distinct) < 2 || slices.Contains(distinct, "") {
			return invalid("comboProductIds", "need at least two distinct product ids")
		}
		return nil
	}

	switch ev.Type {
	case PercentLine, FixedLine, BuyXGetY, FreeItem:
		if ev.ProductID == "" {
			return invalid("productId", "required")
		}
	}
	if ev.Type == BuyXGetY && (ev.BuyQty <= 0 || ev.GetQty <= 0) {
		return invalid("buyQty/getQty", "must be positive")
	}
	return nil
}
