package simulation

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/payment"
	"github.com/xenking/pos-pricing/internal/domain/pricing"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
	"github.com/xenking/pos-pricing/internal/domain/rule"
	"github.com/xenking/pos-pricing/internal/domain/tax"
	"github.com/xenking/pos-pricing/internal/money"
)

// Decode reads a scenario object.
func (s *Scenario) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			s.ID, err = d.Str()
		case "lines":
			s.Lines, err = cart.DecodeLines(d)
		case "priceOverrides":
			s.PriceOverrides = make(map[string]decimal.Decimal)
			err = d.Obj(func(d *jx.Decoder, pid string) error {
				v, err := money.Decode(d)
				s.PriceOverrides[pid] = v
				return err
			})
		case "qtyOverrides":
			s.QtyOverrides = make(map[string]int)
			err = d.Obj(func(d *jx.Decoder, pid string) error {
				v, err := d.Int()
				s.QtyOverrides[pid] = v
				return err
			})
		case "promotions":
			s.Promotions, err = promotion.DecodeList(d)
			if err == nil && s.Promotions == nil {
				s.Promotions = []promotion.Promotion{}
			}
		case "extraPromotions":
			s.ExtraPromotions, err = promotion.DecodeList(d)
		case "taxes":
			s.Taxes, err = tax.DecodeDefinitions(d)
			if err == nil && s.Taxes == nil {
				s.Taxes = []tax.Definition{}
			}
		case "manualDiscounts":
			s.ManualDiscounts, err = pricing.DecodeManual(d)
		case "payments":
			s.Payments, err = payment.DecodePayments(d)
		case "tip":
			s.Tip, err = payment.DecodeTip(d)
		case "context":
			var v any
			v, err = rule.DecodeValue(d)
			if err == nil {
				m, ok := v.(map[string]any)
				if !ok && v != nil {
					return errors.New(`"context" must be an object`)
				}
				s.Extra = m
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

// DecodeScenarios reads a JSON array of scenarios.
func DecodeScenarios(d *jx.Decoder) ([]Scenario, error) {
	var out []Scenario
	err := d.Arr(func(d *jx.Decoder) error {
		var s Scenario
		if err := s.Decode(d); err != nil {
			return errors.Wrapf(err, "scenario %d", len(out))
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// Encode writes the result. Failed results carry only id, ok and error.
func (r *Result) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(r.ID)
	e.FieldStart("ok")
	e.Bool(r.OK)
	if r.OK && r.Quote != nil {
		e.FieldStart("quote")
		r.Quote.Encode(e)
	} else {
		e.FieldStart("error")
		e.Str(r.Error)
	}
	e.FieldStart("durationMs")
	e.Float64(float64(r.Duration) / float64(time.Millisecond))
	e.ObjEnd()
}

// EncodeResults writes results as a JSON array.
func EncodeResults(e *jx.Encoder, results []Result) {
	e.ArrStart()
	for i := range results {
		results[i].Encode(e)
	}
	e.ArrEnd()
}

// Encode writes the summary.
func (s Summary) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("total")
	e.Int(s.Total)
	e.FieldStart("ok")
	e.Int(s.OK)
	e.FieldStart("failed")
	e.Int(s.Failed)
	e.FieldStart("revenue")
	money.EncodeAmount(e, s.Revenue)
	if s.BestID != "" {
		e.FieldStart("bestId")
		e.Str(s.BestID)
		e.FieldStart("bestRevenue")
		money.EncodeAmount(e, s.BestRevenue)
	}
	e.ObjEnd()
}

// Decode reads {"promotions": [...], "taxes": [...]}, the layout of the
// seed file, so a seeded catalogue can be simulated offline.
func (def *Defaults) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "promotions":
			def.Promotions, err = promotion.DecodeList(d)
		case "taxes":
			def.Taxes, err = tax.DecodeDefinitions(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}
