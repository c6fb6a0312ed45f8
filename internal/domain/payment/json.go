package payment

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/pos-pricing/internal/money"
)

// DecodePayments reads a JSON array of {method, amount}.
func DecodePayments(d *jx.Decoder) ([]Payment, error) {
	var out []Payment
	err := d.Arr(func(d *jx.Decoder) error {
		var p Payment
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "method":
				p.Method, err = d.Str()
			case "amount":
				p.Amount, err = money.Decode(d)
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrapf(err, "decode %q", key)
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "payment %d", len(out))
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// DecodeTip reads a {kind, value} object. Null decodes as no tip.
func DecodeTip(d *jx.Decoder) (*TipConfig, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	cfg := new(TipConfig)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "kind", "type":
			var s string
			s, err = d.Str()
			cfg.Kind = TipKind(s)
		case "value":
			cfg.Value, err = money.Decode(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Encode writes the result as JSON.
func (r *Result) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("amountPaid")
	money.EncodeAmount(e, r.AmountPaid)
	e.FieldStart("status")
	e.Str(string(r.Status))
	e.FieldStart("changeDue")
	money.EncodeAmount(e, r.ChangeDue)
	e.FieldStart("outstanding")
	money.EncodeAmount(e, r.Outstanding)
	e.ObjEnd()
}
