package rule

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// Evaluator evaluates rule trees. It is safe for concurrent use.
//
// Pass-through objects are returned unchanged; single-key ones are logged and
// counted because they are usually a misspelled operator.
type Evaluator struct {
	lg          *zap.Logger
	passThrough metric.Int64Counter
}

var nopEvaluator = &Evaluator{lg: zap.NewNop(), passThrough: noop.Int64Counter{}}

// NewEvaluator creates an Evaluator. Both arguments may be nil.
func NewEvaluator(lg *zap.Logger, meter metric.Meter) (*Evaluator, error) {
	if lg == nil {
		lg = zap.NewNop()
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	counter, err := meter.Int64Counter("pricing.rule.passthrough",
		metric.WithDescription("Single-key rule objects that were not recognized as operators"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create passthrough counter")
	}
	return &Evaluator{lg: lg, passThrough: counter}, nil
}

// Evaluate evaluates n against data with a silent evaluator.
func Evaluate(n Node, data any) (any, error) {
	return nopEvaluator.Evaluate(n, data)
}

// Evaluate evaluates n against data. Operators never panic; a malformed
// operator returns a *StructuralError.
func (e *Evaluator) Evaluate(n Node, data any) (any, error) {
	if e == nil {
		e = nopEvaluator
	}
	switch n.Kind {
	case KindLiteral:
		return n.Value, nil
	case KindArray:
		out := make([]any, len(n.Args))
		for i, arg := range n.Args {
			v, err := e.Evaluate(arg, data)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case KindIf:
		return e.evalIf(n, data)
	case KindGreater, KindLess:
		return e.evalCompare(n, data)
	case KindVar:
		return e.evalVar(n, data)
	case KindPassThrough:
		if n.Key != "" {
			e.lg.Debug("Rule object passed through", zap.String("key", n.Key))
			e.passThrough.Add(context.Background(), 1, metric.WithAttributes(
				attribute.String("key", n.Key),
			))
		}
		return n.Value, nil
	default:
		return nil, &StructuralError{Op: n.Kind.String(), Reason: "unknown node kind"}
	}
}

func (e *Evaluator) evalIf(n Node, data any) (any, error) {
	if len(n.Args) < 2 || len(n.Args) > 3 {
		return nil, arityError(OpIf, len(n.Args))
	}
	cond, err := e.Evaluate(n.Args[0], data)
	if err != nil {
		return nil, err
	}
	if Truthy(cond) {
		return e.Evaluate(n.Args[1], data)
	}
	if len(n.Args) == 3 {
		return e.Evaluate(n.Args[2], data)
	}
	return nil, nil
}

func (e *Evaluator) evalCompare(n Node, data any) (any, error) {
	op := n.Kind.String()
	if len(n.Args) != 2 {
		return nil, arityError(op, len(n.Args))
	}
	a, err := e.Evaluate(n.Args[0], data)
	if err != nil {
		return nil, err
	}
	b, err := e.Evaluate(n.Args[1], data)
	if err != nil {
		return nil, err
	}
	c, ok := compare(a, b)
	if !ok {
		return false, nil
	}
	if n.Kind == KindGreater {
		return c > 0, nil
	}
	return c < 0, nil
}

func (e *Evaluator) evalVar(n Node, data any) (any, error) {
	if len(n.Args) > 2 {
		return nil, arityError(OpVar, len(n.Args))
	}
	var def any
	if len(n.Args) == 2 {
		v, err := e.Evaluate(n.Args[1], data)
		if err != nil {
			return nil, err
		}
		def = v
	}
	if len(n.Args) == 0 {
		return data, nil
	}
	p, err := e.Evaluate(n.Args[0], data)
	if err != nil {
		return nil, err
	}
	path, ok := pathString(p)
	if !ok {
		return def, nil
	}
	if path == "" {
		return data, nil
	}
	if v := Lookup(data, path); v != nil {
		return v, nil
	}
	return def, nil
}

func pathString(v any) (string, bool) {
	switch v := v.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	default:
		return "", false
	}
}

// Lookup walks a dotted path through nested maps and slices. Slice segments
// are numeric indexes. It returns nil when any segment is missing.
func Lookup(data any, path string) any {
	cur := data
	for seg := range strings.SplitSeq(path, ".") {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(c) {
				return nil
			}
			cur = c[i]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Truthy reports whether v counts as true in a condition: null, false, zero,
// NaN, the empty string and the empty array are false; everything else,
// including any object, is true.
func Truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case []Node:
		return len(v) > 0
	default:
		if f, ok := number(v); ok {
			return f != 0 && !math.IsNaN(f)
		}
		return true
	}
}

// compare orders two evaluated operands. Numbers compare numerically and
// strings lexically; any other pairing is not comparable.
func compare(a, b any) (int, bool) {
	if x, ok := number(a); ok {
		y, ok := number(b)
		if !ok || math.IsNaN(x) || math.IsNaN(y) {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		default:
			return 0, true
		}
	}
	x, ok := a.(string)
	if !ok {
		return 0, false
	}
	y, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(x, y), true
}

func number(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case decimal.Decimal:
		return v.InexactFloat64(), true
	default:
		return 0, false
	}
}

// Format renders a tree as compact JSON for logs and error messages.
func Format(n Node) string {
	b, err := n.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s>", n.Kind)
	}
	return string(b)
}
