package promotion

import (
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/rule"
)

// Decode reads a promotion from d. Absent "active" and "stackable" default to
// true, as in the promotions table. The effect type is not validated here;
// the engine reports unknown types as failures, and so does a structurally
// malformed "logic" (see LogicErr).
//
// "dsl" is accepted as an alias of "effect" and "appliesToBranchIds" as an
// alias of "branchIds".
func (p *Promotion) Decode(d *jx.Decoder) error {
	p.Active = true
	p.Stackable = true
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "priority":
			p.Priority, err = d.Int()
		case "active":
			p.Active, err = d.Bool()
		case "stackable":
			p.Stackable, err = d.Bool()
		case "validFrom":
			p.ValidFrom, err = decodeTime(d)
		case "validTo":
			p.ValidTo, err = decodeTime(d)
		case "branchIds", "appliesToBranchIds":
			p.BranchIDs, err = decodeStrings(d)
		case "excludes":
			p.Excludes, err = decodeStrings(d)
		case "logic":
			err = p.DecodeLogic(d)
		case "effect", "dsl":
			ev := new(discount.Event)
			err = ev.Decode(d)
			p.Effect = ev
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

// DecodeList reads a JSON array of promotions.
func DecodeList(d *jx.Decoder) ([]Promotion, error) {
	var out []Promotion
	err := d.Arr(func(d *jx.Decoder) error {
		var p Promotion
		if err := p.Decode(d); err != nil {
			return errors.Wrapf(err, "promotion %d", len(out))
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// Encode writes the promotion as JSON.
func (p *Promotion) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	if p.Name != "" {
		e.FieldStart("name")
		e.Str(p.Name)
	}
	if p.Description != "" {
		e.FieldStart("description")
		e.Str(p.Description)
	}
	e.FieldStart("priority")
	e.Int(p.Priority)
	e.FieldStart("active")
	e.Bool(p.Active)
	e.FieldStart("stackable")
	e.Bool(p.Stackable)
	if p.ValidFrom != nil {
		e.FieldStart("validFrom")
		e.Str(p.ValidFrom.UTC().Format(time.RFC3339))
	}
	if p.ValidTo != nil {
		e.FieldStart("validTo")
		e.Str(p.ValidTo.UTC().Format(time.RFC3339))
	}
	if len(p.BranchIDs) > 0 {
		e.FieldStart("branchIds")
		encodeStrings(e, p.BranchIDs)
	}
	if len(p.Excludes) > 0 {
		e.FieldStart("excludes")
		encodeStrings(e, p.Excludes)
	}
	if p.HasLogic() {
		e.FieldStart("logic")
		p.EncodeLogic(e)
	}
	if p.Effect != nil {
		e.FieldStart("effect")
		p.Effect.Encode(e)
	}
	e.ObjEnd()
}

// DecodeLogic reads the "logic" value of p. A value that is valid JSON but not
// a well-formed rule tree is kept verbatim and reported by LogicErr instead of
// failing the decode.
func (p *Promotion) DecodeLogic(d *jx.Decoder) error {
	p.Logic, p.logicRaw, p.logicErr = nil, nil, nil
	if d.Next() == jx.Null {
		return d.Null()
	}
	v, err := rule.DecodeValue(d)
	if err != nil {
		return err
	}
	n, err := rule.FromValue(v)
	var se *rule.StructuralError
	switch {
	case err == nil:
		p.Logic = &n
	case errors.As(err, &se):
		p.logicRaw, p.logicErr = v, err
	default:
		return err
	}
	return nil
}

// HasLogic reports whether p carries a rule, well-formed or not.
func (p *Promotion) HasLogic() bool {
	return p.Logic != nil || p.logicErr != nil
}

// EncodeLogic writes the rule of p, or the malformed value it was decoded
// from. It writes null when p has no rule.
func (p *Promotion) EncodeLogic(e *jx.Encoder) {
	switch {
	case p.Logic != nil:
		p.Logic.Encode(e)
	case p.logicErr != nil:
		rule.EncodeValue(e, p.logicRaw)
	default:
		e.Null()
	}
}

// EncodeList writes promotions as a JSON array.
func EncodeList(e *jx.Encoder, promos []Promotion) {
	e.ArrStart()
	for i := range promos {
		promos[i].Encode(e)
	}
	e.ArrEnd()
}

// MarshalList encodes promotions into a new byte slice.
func MarshalList(promos []Promotion) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	EncodeList(e, promos)
	return slices.Clone(e.Bytes())
}

// UnmarshalList decodes a JSON array of promotions.
func UnmarshalList(data []byte) ([]Promotion, error) {
	return DecodeList(jx.DecodeBytes(data))
}

func decodeTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, errors.Wrap(err, "parse time")
	}
	return &t, nil
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func encodeStrings(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}
