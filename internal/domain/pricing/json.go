package pricing

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/money"
)

// DecodeManual reads a JSON array of manual discounts.
func DecodeManual(d *jx.Decoder) ([]ManualDiscount, error) {
	var out []ManualDiscount
	err := d.Arr(func(d *jx.Decoder) error {
		var m ManualDiscount
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "type":
				var s string
				s, err = d.Str()
				m.Type = ManualType(s)
			case "value":
				m.Value, err = money.Decode(d)
			case "label":
				m.Label, err = d.Str()
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrapf(err, "decode %q", key)
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "manual discount %d", len(out))
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

// EncodeManual writes manual discounts as a JSON array.
func EncodeManual(e *jx.Encoder, manual []ManualDiscount) {
	e.ArrStart()
	for _, m := range manual {
		e.ObjStart()
		e.FieldStart("type")
		e.Str(string(m.Type))
		e.FieldStart("value")
		money.Encode(e, m.Value)
		if m.Label != "" {
			e.FieldStart("label")
			e.Str(m.Label)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
}

// Encode writes the result as JSON.
func (r *Result) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("subTotal")
	money.EncodeAmount(e, r.SubTotal)
	e.FieldStart("discountTotal")
	money.EncodeAmount(e, r.DiscountTotal)
	e.FieldStart("grandTotal")
	money.EncodeAmount(e, r.GrandTotal)

	e.FieldStart("appliedDiscounts")
	e.ArrStart()
	for _, a := range r.AppliedDiscounts {
		e.ObjStart()
		e.FieldStart("source")
		e.Str(string(a.Source))
		e.FieldStart("ref")
		e.Str(a.Ref)
		e.FieldStart("label")
		e.Str(a.Label)
		e.FieldStart("amount")
		money.EncodeAmount(e, a.Amount)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("lines")
	cart.EncodeLines(e, r.Lines)

	e.FieldStart("promotions")
	e.ArrStart()
	for _, p := range r.Promotions {
		e.ObjStart()
		e.FieldStart("promoId")
		e.Str(p.PromoID)
		e.FieldStart("type")
		e.Str(string(p.Type))
		e.FieldStart("amount")
		money.EncodeAmount(e, p.Amount)
		e.FieldStart("description")
		e.Str(p.Description)
		e.FieldStart("productIds")
		e.ArrStart()
		for _, id := range p.ProductIDs {
			e.Str(id)
		}
		e.ArrEnd()
		e.FieldStart("clamped")
		e.Bool(p.Clamped)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("failures")
	e.ArrStart()
	for _, f := range r.Failures {
		e.ObjStart()
		e.FieldStart("promoId")
		e.Str(f.PromoID)
		e.FieldStart("kind")
		e.Str(f.Kind)
		e.FieldStart("message")
		e.Str(f.Err.Error())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
