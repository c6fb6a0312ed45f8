// Package rule implements the small conditional expression language used by
// promotions to gate their effects.
//
// A rule tree is a JSON value. Single-key objects whose key is a known
// operator ("if", ">", "<", "var") are interpreted; every other object is
// passed through unchanged so that literal configuration can flow through
// the same evaluator.
package rule

import (
	"fmt"
)

// Kind is the variant tag of a Node.
type Kind uint8

const (
	// KindLiteral is a scalar JSON value: null, bool, number or string.
	KindLiteral Kind = iota
	// KindArray evaluates every element and yields the list of results.
	KindArray
	// KindIf is {"if": [cond, then, else?]}.
	KindIf
	// KindGreater is {">": [a, b]}.
	KindGreater
	// KindLess is {"<": [a, b]}.
	KindLess
	// KindVar is {"var": path} or {"var": [path, default]}.
	KindVar
	// KindPassThrough carries an object that is not an operator.
	KindPassThrough
)

// Operator keys understood by the evaluator.
const (
	OpIf      = "if"
	OpGreater = ">"
	OpLess    = "<"
	OpVar     = "var"
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindArray:
		return "array"
	case KindIf:
		return OpIf
	case KindGreater:
		return OpGreater
	case KindLess:
		return OpLess
	case KindVar:
		return OpVar
	case KindPassThrough:
		return "passthrough"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Node is one element of a rule tree.
//
// Value holds the literal for KindLiteral and the original object
// (map[string]any) for KindPassThrough. Args holds array elements and
// operator operands.
type Node struct {
	Kind  Kind
	Value any
	Args  []Node
	// Key is the single object key of a pass-through node, empty when the
	// object had zero or several keys.
	Key string
}

// IsZero reports whether n is the zero Node, which evaluates to null.
func (n Node) IsZero() bool {
	return n.Kind == KindLiteral && n.Value == nil && n.Args == nil
}

// Literal returns a literal node. Numbers should be float64.
func Literal(v any) Node {
	return Node{Kind: KindLiteral, Value: v}
}

// Array returns a node evaluating each element.
func Array(elems ...Node) Node {
	if elems == nil {
		elems = []Node{}
	}
	return Node{Kind: KindArray, Args: elems}
}

// If returns {"if": [cond, then]} or {"if": [cond, then, else]}.
func If(cond, then Node, otherwise ...Node) Node {
	args := append([]Node{cond, then}, otherwise...)
	return Node{Kind: KindIf, Args: args}
}

// Greater returns {">": [a, b]}.
func Greater(a, b Node) Node {
	return Node{Kind: KindGreater, Args: []Node{a, b}}
}

// Less returns {"<": [a, b]}.
func Less(a, b Node) Node {
	return Node{Kind: KindLess, Args: []Node{a, b}}
}

// Var returns {"var": path}. An empty path resolves to the whole context.
func Var(path string) Node {
	return Node{Kind: KindVar, Args: []Node{Literal(path)}}
}

// VarOr returns {"var": [path, def]}.
func VarOr(path string, def Node) Node {
	return Node{Kind: KindVar, Args: []Node{Literal(path), def}}
}

// PassThrough wraps a literal object that is not meant to be interpreted.
func PassThrough(obj map[string]any) Node {
	n := Node{Kind: KindPassThrough, Value: obj}
	if len(obj) == 1 {
		for k := range obj {
			n.Key = k
		}
	}
	return n
}

// StructuralError reports an operator whose operand cannot be interpreted,
// such as an "if" with one element or a ">" with three.
type StructuralError struct {
	Op     string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("rule: malformed %q operator: %s", e.Op, e.Reason)
}

// Kind returns the error taxonomy tag.
func (e *StructuralError) Kind() string {
	return "RULE_EVAL_STRUCTURAL_ERROR"
}

func arityError(op string, got int) *StructuralError {
	var want string
	switch op {
	case OpIf:
		want = "2 or 3"
	case OpVar:
		want = "at most 2"
	default:
		want = "2"
	}
	return &StructuralError{Op: op, Reason: fmt.Sprintf("expected %s operands, got %d", want, got)}
}
