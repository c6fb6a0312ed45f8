package cart

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/money"
)

// Decode reads a line from d. Only the caller supplied fields are read;
// totals are recomputed by Reset.
func (l *LineItem) Decode(d *jx.Decoder) error {
	if err := d.Obj(l.field); err != nil {
		return err
	}
	l.Reset()
	return nil
}

// DecodePriced reads a line as the pricing result encodes it. A discount or
// netTotal already allocated to the line is kept; PreparePriced checks it
// against the recomputed line total.
func (l *LineItem) DecodePriced(d *jx.Decoder) error {
	var discount, net *decimal.Decimal
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "discount", "netTotal":
			v, err := money.Decode(d)
			if err != nil {
				return errors.Wrapf(err, "decode %q", key)
			}
			if key == "discount" {
				discount = &v
			} else {
				net = &v
			}
			return nil
		default:
			return l.field(d, key)
		}
	})
	if err != nil {
		return err
	}
	l.Reset()
	switch {
	case discount != nil && net != nil:
		l.Discount, l.NetTotal = *discount, *net
	case discount != nil:
		l.Discount, l.NetTotal = *discount, l.LineTotal.Sub(*discount)
	case net != nil:
		l.Discount, l.NetTotal = l.LineTotal.Sub(*net), *net
	}
	return nil
}

func (l *LineItem) field(d *jx.Decoder, key string) error {
	var err error
	switch key {
	case "productId":
		l.ProductID, err = d.Str()
	case "name":
		l.Name, err = d.Str()
	case "category":
		l.Category, err = d.Str()
	case "qty":
		l.Qty, err = d.Int()
	case "unitPrice":
		l.UnitPrice, err = money.Decode(d)
	default:
		err = d.Skip()
	}
	if err != nil {
		return errors.Wrapf(err, "decode %q", key)
	}
	return nil
}

// DecodeLines reads a JSON array of lines.
func DecodeLines(d *jx.Decoder) ([]LineItem, error) {
	var lines []LineItem
	err := d.Arr(func(d *jx.Decoder) error {
		var l LineItem
		if err := l.Decode(d); err != nil {
			return errors.Wrapf(err, "line %d", len(lines))
		}
		lines = append(lines, l)
		return nil
	})
	return lines, err
}

// DecodePricedLines reads a JSON array of lines with DecodePriced.
func DecodePricedLines(d *jx.Decoder) ([]LineItem, error) {
	var lines []LineItem
	err := d.Arr(func(d *jx.Decoder) error {
		var l LineItem
		if err := l.DecodePriced(d); err != nil {
			return errors.Wrapf(err, "line %d", len(lines))
		}
		lines = append(lines, l)
		return nil
	})
	return lines, err
}

// Encode writes the line with its computed totals.
func (l LineItem) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(l.ProductID)
	if l.Name != "" {
		e.FieldStart("name")
		e.Str(l.Name)
	}
	if l.Category != "" {
		e.FieldStart("category")
		e.Str(l.Category)
	}
	e.FieldStart("qty")
	e.Int(l.Qty)
	e.FieldStart("unitPrice")
	money.Encode(e, l.UnitPrice)
	e.FieldStart("lineTotal")
	money.EncodeAmount(e, l.LineTotal)
	e.FieldStart("discount")
	money.EncodeAmount(e, l.Discount)
	e.FieldStart("netTotal")
	money.EncodeAmount(e, l.NetTotal)
	e.ObjEnd()
}

// EncodeLines writes lines as a JSON array.
func EncodeLines(e *jx.Encoder, lines []LineItem) {
	e.ArrStart()
	for _, l := range lines {
		l.Encode(e)
	}
	e.ArrEnd()
}
