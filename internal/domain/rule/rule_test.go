package rule

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func eval(t *testing.T, rule string, data any) any {
	t.Helper()
	n, err := Parse([]byte(rule))
	require.NoError(t, err)
	v, err := Evaluate(n, data)
	require.NoError(t, err)
	return v
}

func TestEvaluate_Var(t *testing.T) {
	data := map[string]any{
		"a": map[string]any{"b": 5.0},
		"lines": []any{
			map[string]any{"productId": "espresso"},
		},
	}
	tests := []struct {
		name string
		rule string
		want any
	}{
		{"nested path", `{"var":"a.b"}`, 5.0},
		{"missing leaf", `{"var":"a.x"}`, nil},
		{"missing root", `{"var":"x.y.z"}`, nil},
		{"slice index", `{"var":"lines.0.productId"}`, "espresso"},
		{"slice out of range", `{"var":"lines.3.productId"}`, nil},
		{"default when missing", `{"var":["a.x", 7]}`, 7.0},
		{"default ignored when present", `{"var":["a.b", 7]}`, 5.0},
		{"single element array", `{"var":["a.b"]}`, 5.0},
		{"null path is whole context", `{"var":null}`, data},
		{"empty path is whole context", `{"var":""}`, data},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eval(t, tt.rule, data))
		})
	}
}

func TestEvaluate_NumericPath(t *testing.T) {
	data := []any{"first", "second"}
	assert.Equal(t, "second", eval(t, `{"var":1}`, data))
}

func TestEvaluate_If(t *testing.T) {
	rule := `{"if":[{">":[{"var":"qty"},10]},"bulk","retail"]}`
	assert.Equal(t, "bulk", eval(t, rule, map[string]any{"qty": 12.0}))
	assert.Equal(t, "retail", eval(t, rule, map[string]any{"qty": 10.0}))
	assert.Equal(t, "retail", eval(t, rule, map[string]any{}))

	assert.Nil(t, eval(t, `{"if":[false,"yes"]}`, nil))
	assert.Equal(t, "yes", eval(t, `{"if":[{"any":"object"},"yes","no"]}`, nil))
	assert.Equal(t, "no", eval(t, `{"if":["","yes","no"]}`, nil))
	assert.Equal(t, "no", eval(t, `{"if":[[],"yes","no"]}`, nil))
	assert.Equal(t, "yes", eval(t, `{"if":[[0],"yes","no"]}`, nil))
}

func TestEvaluate_Compare(t *testing.T) {
	tests := []struct {
		rule string
		want bool
	}{
		{`{">":[3,2]}`, true},
		{`{">":[2,2]}`, false},
		{`{"<":[1.5,2]}`, true},
		{`{"<":["apple","banana"]}`, true},
		{`{">":["apple","banana"]}`, false},
		{`{">":["10",2]}`, false},
		{`{"<":[null,2]}`, false},
		{`{">":[true,false]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			assert.Equal(t, tt.want, eval(t, tt.rule, nil))
		})
	}
}

func TestEvaluate_Literals(t *testing.T) {
	assert.Equal(t, 5.0, eval(t, `5`, nil))
	assert.Equal(t, "x", eval(t, `"x"`, nil))
	assert.Nil(t, eval(t, `null`, nil))
	assert.Equal(t, []any{1.0, "a", 2.0}, eval(t, `[1,"a",{"var":"n"}]`, map[string]any{"n": 2.0}))
}

func TestEvaluate_PassThrough(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))

	e, err := NewEvaluator(zap.New(core), provider.Meter("test"))
	require.NoError(t, err)

	n, err := Parse([]byte(`{"unknownOp":[1,2]}`))
	require.NoError(t, err)
	require.Equal(t, KindPassThrough, n.Kind)

	v, err := e.Evaluate(n, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"unknownOp": []any{1.0, 2.0}}, v)
	assert.Equal(t, 1, logs.FilterField(zap.String("key", "unknownOp")).Len())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

func TestEvaluate_MultiKeyObjectIsSilent(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	e, err := NewEvaluator(zap.New(core), nil)
	require.NoError(t, err)

	n, err := Parse([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)
	v, err := e.Evaluate(n, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, v)
	assert.Zero(t, logs.Len())
}

func TestParse_Structural(t *testing.T) {
	for _, rule := range []string{
		`{"if":[true]}`,
		`{"if":[true,1,2,3]}`,
		`{">":[1]}`,
		`{"<":[1,2,3]}`,
		`{">":5}`,
		`{"var":["a",1,2]}`,
		`{"if":[{">":[1]},1,2]}`,
	} {
		t.Run(rule, func(t *testing.T) {
			_, err := Parse([]byte(rule))
			var se *StructuralError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, "RULE_EVAL_STRUCTURAL_ERROR", se.Kind())
		})
	}
}

func TestEvaluate_HandBuiltStructural(t *testing.T) {
	n := Node{Kind: KindGreater, Args: []Node{Literal(1.0)}}
	_, err := Evaluate(n, nil)
	var se *StructuralError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, OpGreater, se.Op)

	n = If(Greater(Literal(1.0), Literal(0.0)), Node{Kind: KindIf})
	_, err = Evaluate(n, nil)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, OpIf, se.Op)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte(`{"if":`))
	require.Error(t, err)
	var se *StructuralError
	assert.False(t, errors.As(err, &se))
}

func TestRoundTrip(t *testing.T) {
	for _, rule := range []string{
		`{"if":[{">":[{"var":"subtotal"},100]},true,false]}`,
		`{"var":["customer.tier","guest"]}`,
		`{"<":[{"var":"qty"},3]}`,
		`[1,"two",null,true]`,
		`{"custom":{"nested":1}}`,
	} {
		t.Run(rule, func(t *testing.T) {
			n, err := Parse([]byte(rule))
			require.NoError(t, err)
			out, err := n.MarshalJSON()
			require.NoError(t, err)
			assert.JSONEq(t, rule, string(out))

			again, err := Parse(out)
			require.NoError(t, err)
			assert.Equal(t, n, again)
		})
	}
}

func TestBuilders(t *testing.T) {
	n := If(Greater(Var("qty"), Literal(10.0)), Literal("bulk"), Literal("retail"))
	assert.JSONEq(t, `{"if":[{">":[{"var":"qty"},10]},"bulk","retail"]}`, Format(n))

	v, err := Evaluate(VarOr("missing", Literal("fallback")), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(0.0))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy([]any{}))
	assert.True(t, Truthy(map[string]any{}))
	assert.True(t, Truthy(-1.0))
	assert.True(t, Truthy("0"))
}
