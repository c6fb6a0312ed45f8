package discount

import (
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/pos-pricing/internal/money"
)

// ParseEvent decodes a JSON discount event and validates its type.
func ParseEvent(data []byte) (*Event, error) {
	ev := new(Event)
	if err := ev.Decode(jx.DecodeBytes(data)); err != nil {
		return nil, err
	}
	if err := Validate(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Decode reads the event from d. Unknown fields are skipped. The type is
// not validated.
func (ev *Event) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "type":
			var s string
			s, err = d.Str()
			ev.Type = EventType(s)
		case "value":
			ev.Value, err = money.Decode(d)
		case "productId":
			ev.ProductID, err = d.Str()
		case "buyQty":
			ev.BuyQty, err = d.Int()
		case "getQty":
			ev.GetQty, err = d.Int()
		case "comboProductIds":
			ev.ComboProductIDs = ev.ComboProductIDs[:0]
			err = d.Arr(func(d *jx.Decoder) error {
				id, err := d.Str()
				if err != nil {
					return err
				}
				ev.ComboProductIDs = append(ev.ComboProductIDs, id)
				return nil
			})
		case "comboPrice":
			ev.ComboPrice, err = money.Decode(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

// Encode writes the event as JSON, omitting fields its type does not use.
func (ev *Event) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("type")
	e.Str(string(ev.Type))
	switch ev.Type {
	case ComboFixedPrice:
		e.FieldStart("comboProductIds")
		e.ArrStart()
		for _, id := range ev.ComboProductIDs {
			e.Str(id)
		}
		e.ArrEnd()
		e.FieldStart("comboPrice")
		money.Encode(e, ev.ComboPrice)
	case BuyXGetY:
		e.FieldStart("productId")
		e.Str(ev.ProductID)
		e.FieldStart("buyQty")
		e.Int(ev.BuyQty)
		e.FieldStart("getQty")
		e.Int(ev.GetQty)
	case FreeItem:
		e.FieldStart("productId")
		e.Str(ev.ProductID)
	default:
		e.FieldStart("value")
		money.Encode(e, ev.Value)
		if ev.ProductID != "" {
			e.FieldStart("productId")
			e.Str(ev.ProductID)
		}
	}
	e.ObjEnd()
}

// MarshalJSON implements json.Marshaler.
func (ev *Event) MarshalJSON() ([]byte, error) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	ev.Encode(e)
	return slices.Clone(e.Bytes()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (ev *Event) UnmarshalJSON(data []byte) error {
	parsed, err := ParseEvent(data)
	if err != nil {
		return err
	}
	*ev = *parsed
	return nil
}
