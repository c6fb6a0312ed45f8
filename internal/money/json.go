package money

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Decode reads a decimal written either as a JSON number or as a numeric
// string. Null decodes as zero.
func Decode(d *jx.Decoder) (decimal.Decimal, error) {
	switch tt := d.Next(); tt {
	case jx.Number:
		raw, err := d.Raw()
		if err != nil {
			return zero, err
		}
		v, err := decimal.NewFromString(strings.TrimSpace(string(raw)))
		if err != nil {
			return zero, errors.Wrap(err, "parse number")
		}
		return v, nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return zero, err
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return zero, errors.Wrapf(err, "parse %q", s)
		}
		return v, nil
	case jx.Null:
		return zero, d.Null()
	default:
		return zero, errors.Errorf("expected number, got %s", tt)
	}
}

// Encode writes v as a JSON number.
func Encode(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.String()))
}

// EncodeAmount writes v rounded to cents as a JSON number.
func EncodeAmount(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(Round2(v).StringFixed(2)))
}
