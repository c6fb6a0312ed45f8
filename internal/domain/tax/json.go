package tax

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/pos-pricing/internal/money"
)

// DecodeDefinitions reads a JSON array of tax definitions. "active"
// defaults to true when omitted.
func DecodeDefinitions(d *jx.Decoder) ([]Definition, error) {
	var out []Definition
	err := d.Arr(func(d *jx.Decoder) error {
		def := Definition{Active: true}
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "code":
				def.Code, err = d.Str()
			case "name":
				def.Name, err = d.Str()
			case "rate":
				def.Rate, err = money.Decode(d)
			case "scope":
				var s string
				s, err = d.Str()
				def.Scope = Scope(s)
			case "active":
				def.Active, err = d.Bool()
			case "categories":
				err = d.Arr(func(d *jx.Decoder) error {
					c, err := d.Str()
					if err != nil {
						return err
					}
					def.Categories = append(def.Categories, c)
					return nil
				})
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrapf(err, "decode %q", key)
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "tax %d", len(out))
		}
		out = append(out, def)
		return nil
	})
	return out, err
}

// Encode writes the result as JSON.
func (r *Result) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("taxLines")
	e.ArrStart()
	for _, l := range r.Lines {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(l.Code)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("scope")
		e.Str(string(l.Scope))
		e.FieldStart("base")
		money.EncodeAmount(e, l.Base)
		e.FieldStart("rate")
		money.Encode(e, l.Rate)
		e.FieldStart("amount")
		money.EncodeAmount(e, l.Amount)
		if l.Scope == ScopeLine {
			e.FieldStart("productId")
			e.Str(l.ProductID)
			e.FieldStart("lineIndex")
			e.Int(l.LineIndex)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("totalTax")
	money.EncodeAmount(e, r.TotalTax)
	e.ObjEnd()
}

// EncodeDefinitions writes definitions as a JSON array.
func EncodeDefinitions(e *jx.Encoder, defs []Definition) {
	e.ArrStart()
	for _, def := range defs {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(def.Code)
		if def.Name != "" {
			e.FieldStart("name")
			e.Str(def.Name)
		}
		e.FieldStart("rate")
		money.Encode(e, def.Rate)
		e.FieldStart("scope")
		e.Str(string(def.Scope))
		e.FieldStart("active")
		e.Bool(def.Active)
		if len(def.Categories) > 0 {
			e.FieldStart("categories")
			e.ArrStart()
			for _, c := range def.Categories {
				e.Str(c)
			}
			e.ArrEnd()
		}
		e.ObjEnd()
	}
	e.ArrEnd()
}
