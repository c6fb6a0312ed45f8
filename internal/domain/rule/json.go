package rule

import (
	"math"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Parse decodes a JSON rule tree.
//
// Operator payloads are checked eagerly: an "if" without 2 or 3 operands, a
// comparison without exactly 2, or a "var" with more than 2 returns a
// *StructuralError.
func Parse(data []byte) (Node, error) {
	v, err := DecodeValue(jx.DecodeBytes(data))
	if err != nil {
		return Node{}, errors.Wrap(err, "decode rule")
	}
	return FromValue(v)
}

// FromValue converts a generic JSON value (as produced by DecodeValue or
// encoding/json) into a rule tree.
func FromValue(v any) (Node, error) {
	switch v := v.(type) {
	case nil, bool, string, float64:
		return Literal(v), nil
	case int:
		return Literal(float64(v)), nil
	case int64:
		return Literal(float64(v)), nil
	case []any:
		elems := make([]Node, 0, len(v))
		for _, e := range v {
			n, err := FromValue(e)
			if err != nil {
				return Node{}, err
			}
			elems = append(elems, n)
		}
		return Array(elems...), nil
	case map[string]any:
		return fromObject(v)
	default:
		return Node{}, errors.Errorf("unsupported rule value %T", v)
	}
}

func fromObject(obj map[string]any) (Node, error) {
	if len(obj) != 1 {
		return PassThrough(obj), nil
	}
	var (
		key     string
		operand any
	)
	for k, v := range obj {
		key, operand = k, v
	}

	var kind Kind
	switch key {
	case OpIf:
		kind = KindIf
	case OpGreater:
		kind = KindGreater
	case OpLess:
		kind = KindLess
	case OpVar:
		return fromVar(operand)
	default:
		return PassThrough(obj), nil
	}

	list, ok := operand.([]any)
	if !ok {
		return Node{}, &StructuralError{Op: key, Reason: "operand must be an array"}
	}
	if kind == KindIf && (len(list) < 2 || len(list) > 3) {
		return Node{}, arityError(key, len(list))
	}
	if kind != KindIf && len(list) != 2 {
		return Node{}, arityError(key, len(list))
	}
	args, err := fromList(list)
	if err != nil {
		return Node{}, err
	}
	return Node{Kind: kind, Args: args}, nil
}

func fromVar(operand any) (Node, error) {
	list, ok := operand.([]any)
	if !ok {
		arg, err := FromValue(operand)
		if err != nil {
			return Node{}, err
		}
		return Node{Kind: KindVar, Args: []Node{arg}}, nil
	}
	if len(list) > 2 {
		return Node{}, arityError(OpVar, len(list))
	}
	args, err := fromList(list)
	if err != nil {
		return Node{}, err
	}
	return Node{Kind: KindVar, Args: args}, nil
}

func fromList(list []any) ([]Node, error) {
	out := make([]Node, 0, len(list))
	for _, v := range list {
		n, err := FromValue(v)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// ToValue converts the tree back into its generic JSON form.
func (n Node) ToValue() any {
	switch n.Kind {
	case KindLiteral, KindPassThrough:
		return n.Value
	case KindArray:
		return listValue(n.Args)
	case KindVar:
		if len(n.Args) == 1 {
			return map[string]any{OpVar: n.Args[0].ToValue()}
		}
		return map[string]any{OpVar: listValue(n.Args)}
	default:
		return map[string]any{n.Kind.String(): listValue(n.Args)}
	}
}

func listValue(nodes []Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = n.ToValue()
	}
	return out
}

// Encode writes the tree as JSON.
func (n Node) Encode(e *jx.Encoder) {
	EncodeValue(e, n.ToValue())
}

// MarshalJSON implements json.Marshaler.
func (n Node) MarshalJSON() ([]byte, error) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	n.Encode(e)
	return slices.Clone(e.Bytes()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// DecodeValue reads one JSON value into its generic Go form: nil, bool,
// float64, string, []any or map[string]any.
func DecodeValue(d *jx.Decoder) (any, error) {
	switch tt := d.Next(); tt {
	case jx.Null:
		return nil, d.Null()
	case jx.Bool:
		b, err := d.Bool()
		return b, err
	case jx.Number:
		f, err := d.Float64()
		return f, err
	case jx.String:
		s, err := d.Str()
		return s, err
	case jx.Array:
		out := []any{}
		err := d.Arr(func(d *jx.Decoder) error {
			v, err := DecodeValue(d)
			if err != nil {
				return err
			}
			out = append(out, v)
			return nil
		})
		return out, err
	case jx.Object:
		out := map[string]any{}
		err := d.Obj(func(d *jx.Decoder, key string) error {
			v, err := DecodeValue(d)
			if err != nil {
				return errors.Wrapf(err, "field %q", key)
			}
			out[key] = v
			return nil
		})
		return out, err
	default:
		return nil, errors.Errorf("unexpected json type %s", tt)
	}
}

// EncodeValue writes a generic value. Object keys are written in sorted
// order so the output is deterministic.
func EncodeValue(e *jx.Encoder, v any) {
	switch v := v.(type) {
	case nil:
		e.Null()
	case bool:
		e.Bool(v)
	case string:
		e.Str(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			e.Null()
			return
		}
		e.Float64(v)
	case int:
		e.Int(v)
	case int64:
		e.Int64(v)
	case []any:
		e.ArrStart()
		for _, elem := range v {
			EncodeValue(e, elem)
		}
		e.ArrEnd()
	case []Node:
		e.ArrStart()
		for _, elem := range v {
			elem.Encode(e)
		}
		e.ArrEnd()
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		e.ObjStart()
		for _, k := range keys {
			e.FieldStart(k)
			EncodeValue(e, v[k])
		}
		e.ObjEnd()
	default:
		e.Null()
	}
}
