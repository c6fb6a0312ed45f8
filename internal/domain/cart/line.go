// Package cart holds the line items being priced and the rule context
// derived from them.
package cart

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/money"
)

// LineItem is one product line of a cart.
//
// LineTotal is Qty × UnitPrice. Discount is the sum of every discount
// allocated to the line and NetTotal is LineTotal − Discount, never negative.
type LineItem struct {
	ProductID string
	Name      string
	Category  string
	Qty       int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	Discount  decimal.Decimal
	NetTotal  decimal.Decimal
}

// ErrInvalidLine is the sentinel wrapped by InvalidLineError.
var ErrInvalidLine = errors.New("invalid line")

// InvalidLineError reports a line that cannot be priced.
type InvalidLineError struct {
	ProductID string
	Reason    string
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("invalid line %q: %s", e.ProductID, e.Reason)
}

// Kind returns the error taxonomy tag.
func (e *InvalidLineError) Kind() string { return "INVALID_LINE" }

func (e *InvalidLineError) Unwrap() error { return ErrInvalidLine }

// NewLine validates the inputs and returns a line with computed totals.
func NewLine(productID, name string, qty int, unitPrice decimal.Decimal) (LineItem, error) {
	l := LineItem{
		ProductID: productID,
		Name:      name,
		Qty:       qty,
		UnitPrice: unitPrice,
	}
	if err := l.Validate(); err != nil {
		return LineItem{}, err
	}
	l.Reset()
	return l, nil
}

// Validate checks the caller supplied fields.
func (l LineItem) Validate() error {
	switch {
	case l.ProductID == "":
		return &InvalidLineError{Reason: "product id is required"}
	case l.Qty <= 0:
		return &InvalidLineError{ProductID: l.ProductID, Reason: fmt.Sprintf("quantity %d must be positive", l.Qty)}
	case l.UnitPrice.IsNegative():
		return &InvalidLineError{ProductID: l.ProductID, Reason: "unit price must not be negative"}
	}
	return nil
}

// Reset recomputes LineTotal and clears any allocated discount.
func (l *LineItem) Reset() {
	l.LineTotal = money.Round2(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty))))
	l.Discount = decimal.Zero
	l.NetTotal = l.LineTotal
}

// AddDiscount allocates amount to the line, never taking NetTotal below
// zero. It returns the amount actually taken.
func (l *LineItem) AddDiscount(amount decimal.Decimal) decimal.Decimal {
	taken, _ := money.Clamp(money.Round2(amount), l.NetTotal)
	l.Discount = l.Discount.Add(taken)
	l.NetTotal = l.NetTotal.Sub(taken)
	return taken
}

// Prepare validates lines and returns fresh copies with totals computed and
// no discount allocated. The input is not modified.
func Prepare(lines []LineItem) ([]LineItem, error) {
	out := make([]LineItem, len(lines))
	for i, l := range lines {
		if err := l.Validate(); err != nil {
			return nil, errors.Wrapf(err, "line %d", i)
		}
		l.Reset()
		out[i] = l
	}
	return out, nil
}

// PreparePriced is like Prepare but keeps the discount already allocated to
// each line. The discount must lie within the recomputed line total and
// agree with NetTotal.
func PreparePriced(lines []LineItem) ([]LineItem, error) {
	out := make([]LineItem, len(lines))
	for i, l := range lines {
		if err := l.Validate(); err != nil {
			return nil, errors.Wrapf(err, "line %d", i)
		}
		discount, net := money.Round2(l.Discount), money.Round2(l.NetTotal)
		l.Reset()
		switch {
		case discount.IsNegative():
			return nil, errors.Wrapf(&InvalidLineError{ProductID: l.ProductID, Reason: "discount must not be negative"}, "line %d", i)
		case discount.GreaterThan(l.LineTotal):
			return nil, errors.Wrapf(&InvalidLineError{ProductID: l.ProductID, Reason: "discount exceeds line total"}, "line %d", i)
		case !discount.Add(net).Equal(l.LineTotal):
			return nil, errors.Wrapf(&InvalidLineError{ProductID: l.ProductID, Reason: "net total does not equal line total less discount"}, "line %d", i)
		}
		l.Discount, l.NetTotal = discount, net
		out[i] = l
	}
	return out, nil
}

// Clone copies lines so the copy can be mutated independently.
func Clone(lines []LineItem) []LineItem {
	return append([]LineItem(nil), lines...)
}

// Subtotal returns Σ LineTotal.
func Subtotal(lines []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.LineTotal)
	}
	return sum
}

// NetSubtotal returns Σ NetTotal.
func NetSubtotal(lines []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.NetTotal)
	}
	return sum
}

// TotalQty returns the number of units across all lines.
func TotalQty(lines []LineItem) int {
	total := 0
	for _, l := range lines {
		total += l.Qty
	}
	return total
}

// Indexes returns the positions of the lines selling productID.
func Indexes(lines []LineItem, productID string) []int {
	var idx []int
	for i, l := range lines {
		if l.ProductID == productID {
			idx = append(idx, i)
		}
	}
	return idx
}

// Allocate spreads amount across the lines at idx pro rata to their
// NetTotal and returns the amount actually taken.
func Allocate(lines []LineItem, idx []int, amount decimal.Decimal) decimal.Decimal {
	weights := make([]decimal.Decimal, len(idx))
	for i, j := range idx {
		weights[i] = lines[j].NetTotal
	}
	taken := decimal.Zero
	for i, share := range money.Allocate(amount, weights) {
		taken = taken.Add(lines[idx[i]].AddDiscount(share))
	}
	return taken
}

// All returns the index of every line.
func All(lines []LineItem) []int {
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	return idx
}
