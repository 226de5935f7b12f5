package ast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonathonfletcher/flitter/model"
)

func num(x float64) *Literal     { return NumberLiteral(x) }
func name(s string) *Name        { return &Name{Name: s} }
func vec(xs ...float64) *Literal { return &Literal{Value: model.NewFloats(xs)} }
func boolLit(b bool) *Literal    { return &Literal{Value: model.NewBool(b)} }
func nullLit() *Literal          { return &Literal{Value: model.Null} }

type simplifyCase struct {
	name     string
	input    Expression
	expected Expression
	opts     *SimplifyOptions
	errors   []string

	// Materialised alias bindings are deliberately not fixed points: the
	// scope bookkeeping that produced them is gone on a second pass.
	skipIdempotent bool
}

func dynamicNames(names ...string) *SimplifyOptions {
	return &SimplifyOptions{Dynamic: names}
}

func runSimplifyCases(t *testing.T, cases []simplifyCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, report := Simplify(tc.input, tc.opts)
			require.Equal(t, tc.expected.String(), result.String())
			require.Equal(t, tc.errors, report.Errors)

			if !tc.skipIdempotent {
				again, _ := Simplify(result, tc.opts)
				require.Equal(t, result.String(), again.String())
			}
		})
	}
}

func TestSimplifyName(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{
			name:     "undefined names become null with an error",
			input:    name("x"),
			expected: nullLit(),
			errors:   []string{"Unbound name 'x'"},
		},
		{
			name:     "dynamic names are unchanged",
			input:    name("x"),
			expected: name("x"),
			opts:     dynamicNames("x"),
		},
		{
			name:     "static vectors become literals",
			input:    name("x"),
			expected: num(5),
			opts:     &SimplifyOptions{Static: map[string]any{"x": model.NewFloat(5)}},
		},
		{
			name:     "static aliases substitute the target name",
			input:    name("x"),
			expected: name("y"),
			opts:     &SimplifyOptions{Static: map[string]any{"x": name("y")}, Dynamic: []string{"y"}},
		},
		{
			name:     "static builtins fold to their value",
			input:    name("null"),
			expected: nullLit(),
		},
		{
			name:     "dynamic builtins are left alone",
			input:    name("debug"),
			expected: name("debug"),
		},
	})
}

func TestSimplifySequence(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{
			name:     "single item sequences collapse",
			input:    &Sequence{Exprs: []Expression{name("x")}},
			expected: name("x"),
			opts:     dynamicNames("x"),
		},
		{
			name: "nested sequences are packed",
			input: &Sequence{Exprs: []Expression{
				name("x"),
				&Sequence{Exprs: []Expression{name("y"), &Sequence{Exprs: []Expression{name("y")}}}},
			}},
			expected: &Sequence{Exprs: []Expression{name("x"), name("y"), name("y")}},
			opts:     dynamicNames("x", "y"),
		},
		{
			name: "adjacent literals compose",
			input: &Sequence{Exprs: []Expression{
				name("x"), vec(1, 2, 3), vec(4, 5), name("y"),
			}},
			expected: &Sequence{Exprs: []Expression{name("x"), vec(1, 2, 3, 4, 5), name("y")}},
			opts:     dynamicNames("x", "y"),
		},
		{
			name:     "fully static sequences fold",
			input:    &Sequence{Exprs: []Expression{name("x"), name("y")}},
			expected: vec(1, 2, 3, 4, 5),
			opts: &SimplifyOptions{Static: map[string]any{
				"x": model.NewFloats([]float64{1, 2, 3}),
				"y": model.NewFloats([]float64{4, 5}),
			}},
		},
	})
}

func TestSimplifyUnary(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{name: "positive of numeric literal", input: &Positive{Expr: num(5)}, expected: num(5)},
		{name: "positive of non-numeric literal", input: &Positive{Expr: StringLiteral("foo")}, expected: nullLit()},
		{name: "double positive", input: &Positive{Expr: &Positive{Expr: name("x")}}, expected: &Positive{Expr: name("x")}, opts: dynamicNames("x")},
		{name: "positive of negative", input: &Positive{Expr: &Negative{Expr: name("x")}}, expected: &Negative{Expr: name("x")}, opts: dynamicNames("x")},
		{name: "positive of binary maths", input: &Positive{Expr: &Add{Left: name("x"), Right: name("y")}}, expected: &Add{Left: name("x"), Right: name("y")}, opts: dynamicNames("x", "y")},
		{name: "negative literal", input: &Negative{Expr: num(5)}, expected: num(-5)},
		{name: "negative non-numeric", input: &Negative{Expr: StringLiteral("foo")}, expected: nullLit()},
		{name: "double negative", input: &Negative{Expr: &Negative{Expr: name("x")}}, expected: &Positive{Expr: name("x")}, opts: dynamicNames("x")},
		{name: "ceil literal", input: &Ceil{Expr: num(4.3)}, expected: num(5)},
		{name: "floor literal", input: &Floor{Expr: num(4.3)}, expected: num(4)},
		{name: "not true", input: &Not{Expr: boolLit(true)}, expected: boolLit(false)},
	})
}

func TestSimplifyNegativePropagation(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{
			name:     "negative pushes into multiply literal",
			input:    &Negative{Expr: &Multiply{Left: num(5), Right: name("x")}},
			expected: &Multiply{Left: num(-5), Right: name("x")},
			opts:     dynamicNames("x"),
		},
		{
			name:     "negative pushes into right multiply literal",
			input:    &Negative{Expr: &Multiply{Left: name("x"), Right: num(5)}},
			expected: &Multiply{Left: name("x"), Right: num(-5)},
			opts:     dynamicNames("x"),
		},
		{
			name:     "negative of division by literal becomes multiply",
			input:    &Negative{Expr: &Divide{Left: name("x"), Right: num(5)}},
			expected: &Multiply{Left: num(-0.2), Right: name("x")},
			opts:     dynamicNames("x"),
		},
		{
			name:     "negative of half-literal addition becomes subtraction",
			input:    &Negative{Expr: &Add{Left: num(5), Right: name("x")}},
			expected: &Subtract{Left: num(-5), Right: name("x")},
			opts:     dynamicNames("x"),
		},
		{
			name:     "negative of half-literal subtraction becomes subtraction",
			input:    &Negative{Expr: &Subtract{Left: name("x"), Right: num(5)}},
			expected: &Subtract{Left: num(5), Right: name("x")},
			opts:     dynamicNames("x"),
		},
	})
}

func TestSimplifyBinaryMaths(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{name: "literal add", input: &Add{Left: num(5), Right: num(10)}, expected: num(15)},
		{name: "add zero", input: &Add{Left: num(0), Right: name("x")}, expected: &Positive{Expr: name("x")}, opts: dynamicNames("x")},
		{name: "add negative", input: &Add{Left: name("x"), Right: &Negative{Expr: name("y")}}, expected: &Subtract{Left: name("x"), Right: name("y")}, opts: dynamicNames("x", "y")},
		{name: "literal subtract", input: &Subtract{Left: num(5), Right: num(10)}, expected: num(-5)},
		{name: "subtract zero", input: &Subtract{Left: name("x"), Right: num(0)}, expected: &Positive{Expr: name("x")}, opts: dynamicNames("x")},
		{name: "subtract from zero", input: &Subtract{Left: num(0), Right: name("x")}, expected: &Negative{Expr: name("x")}, opts: dynamicNames("x")},
		{name: "literal multiply", input: &Multiply{Left: num(5), Right: num(10)}, expected: num(50)},
		{name: "multiply one", input: &Multiply{Left: name("x"), Right: num(1)}, expected: &Positive{Expr: name("x")}, opts: dynamicNames("x")},
		{name: "multiply minus one", input: &Multiply{Left: num(-1), Right: name("x")}, expected: &Negative{Expr: name("x")}, opts: dynamicNames("x")},
		{name: "literal divide", input: &Divide{Left: num(5), Right: num(10)}, expected: num(0.5)},
		{name: "divide by one", input: &Divide{Left: name("x"), Right: num(1)}, expected: &Positive{Expr: name("x")}, opts: dynamicNames("x")},
		{name: "divide by literal", input: &Divide{Left: name("x"), Right: num(10)}, expected: &Multiply{Left: num(0.1), Right: name("x")}, opts: dynamicNames("x")},
		{name: "floor divide by one", input: &FloorDivide{Left: name("x"), Right: num(1)}, expected: &Floor{Expr: name("x")}, opts: dynamicNames("x")},
		{name: "modulo one", input: &Modulo{Left: name("x"), Right: num(1)}, expected: &Fract{Expr: name("x")}, opts: dynamicNames("x")},
		{name: "literal power", input: &Power{Left: num(5), Right: num(2)}, expected: num(25)},
		{name: "power of one", input: &Power{Left: name("x"), Right: num(1)}, expected: &Positive{Expr: name("x")}, opts: dynamicNames("x")},
	})
}

func TestSimplifyMultiplyPropagation(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{
			name:     "add propagation",
			input:    &Multiply{Left: &Add{Left: name("x"), Right: num(5)}, Right: num(10)},
			expected: &Add{Left: &Multiply{Left: num(10), Right: name("x")}, Right: num(50)},
			opts:     dynamicNames("x"),
		},
		{
			name:     "subtract propagation",
			input:    &Multiply{Left: num(10), Right: &Subtract{Left: num(5), Right: name("x")}},
			expected: &Subtract{Left: num(50), Right: &Multiply{Left: num(10), Right: name("x")}},
			opts:     dynamicNames("x"),
		},
		{
			name:     "multiply propagation",
			input:    &Multiply{Left: &Multiply{Left: num(5), Right: name("x")}, Right: num(10)},
			expected: &Multiply{Left: num(50), Right: name("x")},
			opts:     dynamicNames("x"),
		},
		{
			name:     "divide propagation",
			input:    &Multiply{Left: &Divide{Left: num(5), Right: name("x")}, Right: num(10)},
			expected: &Divide{Left: num(50), Right: name("x")},
			opts:     dynamicNames("x"),
		},
		{
			name:     "inverse divide propagation",
			input:    &Multiply{Left: &Divide{Left: name("x"), Right: num(5)}, Right: num(10)},
			expected: &Multiply{Left: num(2), Right: name("x")},
			opts:     dynamicNames("x"),
		},
		{
			name:     "negative fold",
			input:    &Multiply{Left: &Negative{Expr: name("x")}, Right: num(10)},
			expected: &Multiply{Left: num(-10), Right: name("x")},
			opts:     dynamicNames("x"),
		},
	})
}

func TestSimplifyComparisons(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{name: "equal", input: &EqualTo{Left: num(5), Right: num(5)}, expected: boolLit(true)},
		{name: "not equal", input: &NotEqualTo{Left: num(5), Right: num(4)}, expected: boolLit(true)},
		{name: "less than", input: &LessThan{Left: num(4), Right: num(5)}, expected: boolLit(true)},
		{name: "greater than", input: &GreaterThan{Left: num(4), Right: num(5)}, expected: boolLit(false)},
		{name: "less or equal", input: &LessThanOrEqualTo{Left: num(5), Right: num(5)}, expected: boolLit(true)},
		{name: "greater or equal", input: &GreaterThanOrEqualTo{Left: num(4), Right: num(5)}, expected: boolLit(false)},
		{name: "mixed kinds compare false", input: &LessThan{Left: num(5), Right: StringLiteral("5")}, expected: boolLit(false)},
		{
			name:     "dynamic comparisons are unchanged",
			input:    &EqualTo{Left: name("x"), Right: num(5)},
			expected: &EqualTo{Left: name("x"), Right: num(5)},
			opts:     dynamicNames("x"),
		},
	})
}

func TestSimplifyLogical(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{name: "true and shortcuts to right", input: &And{Left: boolLit(true), Right: name("y")}, expected: name("y"), opts: dynamicNames("y")},
		{name: "false and shortcuts to left", input: &And{Left: boolLit(false), Right: name("y")}, expected: boolLit(false), opts: dynamicNames("y")},
		{name: "true or shortcuts to left", input: &Or{Left: boolLit(true), Right: name("y")}, expected: boolLit(true), opts: dynamicNames("y")},
		{name: "false or shortcuts to right", input: &Or{Left: boolLit(false), Right: name("y")}, expected: name("y"), opts: dynamicNames("y")},
		{name: "right operands never shortcut and", input: &And{Left: name("x"), Right: boolLit(false)}, expected: &And{Left: name("x"), Right: boolLit(false)}, opts: dynamicNames("x")},
		{name: "xor false left shortcuts to right", input: &Xor{Left: boolLit(false), Right: name("y")}, expected: name("y"), opts: dynamicNames("y")},
		{name: "xor false right shortcuts to left", input: &Xor{Left: name("x"), Right: boolLit(false)}, expected: name("x"), opts: dynamicNames("x")},
		{name: "xor true left is kept", input: &Xor{Left: boolLit(true), Right: name("y")}, expected: &Xor{Left: boolLit(true), Right: name("y")}, opts: dynamicNames("y")},
		{name: "xor literals fold", input: &Xor{Left: boolLit(true), Right: boolLit(true)}, expected: boolLit(false)},
	})
}

func TestSimplifyRangeAndSlice(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{
			name:     "literal range folds",
			input:    &Range{Start: num(0), Stop: num(10), Step: num(2)},
			expected: vec(0, 2, 4, 6, 8),
		},
		{
			name:     "dynamic range is kept",
			input:    &Range{Start: nil, Stop: name("x"), Step: nil},
			expected: &Range{Start: nil, Stop: name("x"), Step: nil},
			opts:     dynamicNames("x"),
		},
		{
			name:     "literal slice folds",
			input:    &Slice{Expr: vec(1, 2, 3, 4, 5), Index: num(3)},
			expected: num(4),
		},
		{
			name:     "literal index lowers to a fast slice",
			input:    &Slice{Expr: name("x"), Index: num(3)},
			expected: &FastSlice{Expr: name("x"), Index: model.NewFloat(3)},
			opts:     dynamicNames("x"),
		},
		{
			name:     "dynamic slice is kept",
			input:    &Slice{Expr: name("x"), Index: name("y")},
			expected: &Slice{Expr: name("x"), Index: name("y")},
			opts:     dynamicNames("x", "y"),
		},
	})
}

func TestSimplifyLookup(t *testing.T) {
	state := model.NewStateDict()
	state.Set(model.Symbol("foo"), model.NewFloat(5))
	runSimplifyCases(t, []simplifyCase{
		{
			name:     "literal key in state folds",
			input:    &Lookup{Key: &Literal{Value: model.Symbol("foo")}},
			expected: num(5),
			opts:     &SimplifyOptions{State: state},
		},
		{
			name:     "literal key not in state is kept",
			input:    &Lookup{Key: &Literal{Value: model.Symbol("bar")}},
			expected: &Lookup{Key: &Literal{Value: model.Symbol("bar")}},
			opts:     &SimplifyOptions{State: state},
		},
		{
			name:     "no state keeps the lookup",
			input:    &Lookup{Key: &Literal{Value: model.Symbol("foo")}},
			expected: &Lookup{Key: &Literal{Value: model.Symbol("foo")}},
		},
	})
}

func TestSimplifyLet(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{
			name:     "dynamic binding is kept",
			input:    &Let{Bindings: []PolyBinding{{Names: []string{"x"}, Expr: &Add{Left: name("y"), Right: num(5)}}}},
			expected: &Let{Bindings: []PolyBinding{{Names: []string{"x"}, Expr: &Add{Left: name("y"), Right: num(5)}}}},
			opts:     dynamicNames("y"),
		},
		{
			name:     "literal bindings are removed",
			input:    &Let{Bindings: []PolyBinding{{Names: []string{"x"}, Expr: num(5)}}},
			expected: nullLit(),
		},
		{
			name: "shadowing a renamed local materialises the alias",
			input: &Let{Bindings: []PolyBinding{
				{Names: []string{"x"}, Expr: name("y")},
				{Names: []string{"y"}, Expr: num(5)},
			}},
			expected:       &Let{Bindings: []PolyBinding{{Names: []string{"x"}, Expr: name("y")}}},
			opts:           dynamicNames("y"),
			skipIdempotent: true,
		},
	})
}

func TestSimplifyLetBindingValues(t *testing.T) {
	_, report := Simplify(
		&Let{Bindings: []PolyBinding{{Names: []string{"x", "y", "z"}, Expr: vec(5, 10)}}}, nil)
	require.Empty(t, report.Errors)
	require.True(t, model.NewFloat(5).Equal(report.Names["x"].(model.Vector)))
	require.True(t, model.NewFloat(10).Equal(report.Names["y"].(model.Vector)))
	// Short literals wrap
	require.True(t, model.NewFloat(5).Equal(report.Names["z"].(model.Vector)))
}

func TestSimplifyInlineLet(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{
			name: "literal binding substitutes into the body",
			input: &InlineLet{
				Body:     &Add{Left: name("x"), Right: name("y")},
				Bindings: []PolyBinding{{Names: []string{"x"}, Expr: num(5)}},
			},
			expected: &Add{Left: num(5), Right: name("y")},
			opts:     dynamicNames("y"),
		},
		{
			name: "multi-name literal binding folds completely",
			input: &InlineLet{
				Body:     &Add{Left: name("x"), Right: name("y")},
				Bindings: []PolyBinding{{Names: []string{"x", "y"}, Expr: vec(5, 10)}},
			},
			expected: num(15),
		},
		{
			name: "rename substitutes the alias",
			input: &InlineLet{
				Body:     &Add{Left: name("x"), Right: name("y")},
				Bindings: []PolyBinding{{Names: []string{"x"}, Expr: name("y")}},
			},
			expected: &Add{Left: name("y"), Right: name("y")},
			opts:     dynamicNames("y"),
		},
		{
			name: "rename shadowed by a literal",
			input: &InlineLet{
				Body: &Add{Left: name("x"), Right: name("y")},
				Bindings: []PolyBinding{
					{Names: []string{"x"}, Expr: name("y")},
					{Names: []string{"y"}, Expr: num(5)},
				},
			},
			expected: &Add{Left: name("y"), Right: num(5)},
			opts:     dynamicNames("y"),
		},
		{
			name: "rename shadowed by an expression",
			input: &InlineLet{
				Body: &Add{Left: name("x"), Right: name("y")},
				Bindings: []PolyBinding{
					{Names: []string{"y"}, Expr: &Add{Left: name("y"), Right: num(5)}},
				},
			},
			expected: &InlineLet{
				Body: &Add{Left: name("x"), Right: name("y")},
				Bindings: []PolyBinding{
					{Names: []string{"x"}, Expr: name("y")},
					{Names: []string{"y"}, Expr: &Add{Left: name("y"), Right: num(5)}},
				},
			},
			opts: &SimplifyOptions{Static: map[string]any{"x": name("y")}, Dynamic: []string{"y"}},
		},
	})
}

func TestSimplifyFor(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{
			name:     "dynamic source is kept",
			input:    &For{Names: []string{"x"}, Source: name("y"), Body: name("x")},
			expected: &For{Names: []string{"x"}, Source: name("y"), Body: name("x")},
			opts:     dynamicNames("y"),
		},
		{
			name:  "literal source unrolls",
			input: &For{Names: []string{"x"}, Source: vec(1, 2), Body: &Add{Left: name("x"), Right: name("z")}},
			expected: &Sequence{Exprs: []Expression{
				&Add{Left: num(1), Right: name("z")},
				&Add{Left: num(2), Right: name("z")},
			}},
			opts: dynamicNames("z"),
		},
		{
			name:  "multiple names consume the source in tuples",
			input: &For{Names: []string{"x", "y"}, Source: vec(1, 2, 3), Body: &Call{Function: name("f"), Args: []Expression{name("x"), name("y")}}},
			expected: &Sequence{Exprs: []Expression{
				&Call{Function: name("f"), Args: []Expression{num(1), num(2)}},
				&Call{Function: name("f"), Args: []Expression{num(3), nullLit()}},
			}},
			opts: dynamicNames("f"),
		},
		{
			name:     "fully literal loops fold",
			input:    &For{Names: []string{"x"}, Source: vec(1, 2, 3), Body: &Multiply{Left: name("x"), Right: num(2)}},
			expected: vec(2, 4, 6),
		},
	})
}

func TestSimplifyForBudget(t *testing.T) {
	source := &Literal{Value: model.Range(model.NewFloat(0), model.NewFloat(100), model.NewFloat(1))}
	loop := &For{Names: []string{"x"}, Source: source, Body: &Add{Left: name("x"), Right: name("z")}}
	result, _ := Simplify(loop, &SimplifyOptions{Dynamic: []string{"z"}, UnrollBudget: 10})
	require.IsType(t, &For{}, result)
	result, _ = Simplify(loop, &SimplifyOptions{Dynamic: []string{"z"}, UnrollBudget: 200})
	require.IsType(t, &Sequence{}, result)
}

func TestSimplifyIfElse(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{
			name:     "true condition selects the then branch",
			input:    &IfElse{Tests: []IfCondition{{Condition: boolLit(true), Then: name("y")}}, Else: name("z")},
			expected: name("y"),
			opts:     dynamicNames("y", "z"),
		},
		{
			name:     "false condition selects the else branch",
			input:    &IfElse{Tests: []IfCondition{{Condition: boolLit(false), Then: name("y")}}, Else: name("z")},
			expected: name("z"),
			opts:     dynamicNames("y", "z"),
		},
		{
			name:     "false condition without else becomes null",
			input:    &IfElse{Tests: []IfCondition{{Condition: boolLit(false), Then: name("y")}}},
			expected: nullLit(),
			opts:     dynamicNames("y"),
		},
		{
			name: "true second condition becomes the else branch",
			input: &IfElse{Tests: []IfCondition{
				{Condition: name("w"), Then: name("x")},
				{Condition: boolLit(true), Then: name("y")},
				{Condition: name("a"), Then: name("b")},
			}, Else: name("z")},
			expected: &IfElse{Tests: []IfCondition{{Condition: name("w"), Then: name("x")}}, Else: name("y")},
			opts:     dynamicNames("w", "x", "y", "z", "a", "b"),
		},
		{
			name: "false conditions are dropped",
			input: &IfElse{Tests: []IfCondition{
				{Condition: boolLit(false), Then: name("x")},
				{Condition: name("w"), Then: name("y")},
			}, Else: name("z")},
			expected: &IfElse{Tests: []IfCondition{{Condition: name("w"), Then: name("y")}}, Else: name("z")},
			opts:     dynamicNames("w", "x", "y", "z"),
		},
	})
}

func TestSimplifyCallFolding(t *testing.T) {
	runSimplifyCases(t, []simplifyCase{
		{
			name:     "static calls to pure builtins fold",
			input:    &Call{Function: name("sqrt"), Args: []Expression{num(25)}},
			expected: num(5),
		},
		{
			name:     "keyword arguments fold too",
			input:    &Call{Function: name("sqrt"), Kwargs: []Binding{{Name: "xs", Expr: num(25)}}},
			expected: num(5),
		},
		{
			name:     "dynamic arguments keep the call",
			input:    &Call{Function: name("sqrt"), Args: []Expression{name("y")}},
			expected: &Call{Function: &Literal{Value: mustStatic(t, "sqrt")}, Args: []Expression{name("y")}},
			opts:     dynamicNames("y"),
		},
		{
			name:     "context builtins never fold",
			input:    &Call{Function: name("debug"), Args: []Expression{num(1)}},
			expected: &Call{Function: name("debug"), Args: []Expression{num(1)}},
		},
	})
}

func mustStatic(t *testing.T, name string) model.Vector {
	t.Helper()
	v, report := Simplify(&Name{Name: name}, nil)
	require.Empty(t, report.Errors)
	return v.(*Literal).Value
}

func TestSimplifyFunctionInlining(t *testing.T) {
	square := &Function{
		Name:       "square",
		Parameters: []Binding{{Name: "n"}},
		Body:       &Multiply{Left: name("n"), Right: name("n")},
	}
	top := &Top{Body: []Expression{
		square,
		&Pragma{Name: "v", Expr: &Call{Function: name("square"), Args: []Expression{num(4)}}},
	}}
	result, report := Simplify(top, nil)
	require.Empty(t, report.Errors)

	simplified := result.(*Top)
	require.Len(t, simplified.Body, 2)
	pragma := simplified.Body[1].(*Pragma)
	value, ok := pragma.Expr.(*Literal)
	require.True(t, ok, "call should fold to a literal, got %s", pragma.Expr)
	require.True(t, model.NewFloat(16).Equal(value.Value))

	fn, ok := report.Names["square"].(*Function)
	require.True(t, ok)
	require.Empty(t, fn.Captures)
	require.False(t, fn.Recursive)
}

func TestSimplifyFunctionCaptures(t *testing.T) {
	fn := &Function{
		Name:       "offset",
		Parameters: []Binding{{Name: "x"}},
		Body:       &Add{Left: name("x"), Right: name("y")},
	}
	result, report := Simplify(fn, nil)
	simplified := result.(*Function)
	require.Equal(t, []string{"y"}, simplified.Captures)
	require.Nil(t, report.Names["offset"])
	require.Empty(t, report.Errors)
}

func TestSimplifyRecursiveFunction(t *testing.T) {
	// func sumto(x) = x > 0 ? x + sumto(x-1) : 0
	sumto := &Function{
		Name:       "sumto",
		Parameters: []Binding{{Name: "x"}},
		Body: &IfElse{
			Tests: []IfCondition{{
				Condition: &GreaterThan{Left: name("x"), Right: num(0)},
				Then: &Add{Left: name("x"), Right: &Call{
					Function: name("sumto"),
					Args:     []Expression{&Subtract{Left: name("x"), Right: num(1)}},
				}},
			}},
			Else: num(0),
		},
	}
	result, report := Simplify(sumto, nil)
	simplified := result.(*Function)
	require.True(t, simplified.Recursive)
	require.Empty(t, simplified.Captures)
	require.Empty(t, report.Errors)

	// A dynamic argument keeps the call
	s := &simplifyHarness{static: map[string]any{"sumto": simplified}}
	kept, _ := Simplify(&Call{Function: name("sumto"), Args: []Expression{name("y")}},
		&SimplifyOptions{Static: s.static, Dynamic: []string{"y"}})
	require.IsType(t, &Call{}, kept)

	// Literal arguments fold the whole recursion
	folded, foldReport := Simplify(&Call{Function: name("sumto"), Args: []Expression{num(5)}},
		&SimplifyOptions{Static: s.static})
	require.Empty(t, foldReport.Errors)
	value, ok := folded.(*Literal)
	require.True(t, ok, "expected literal, got %s", folded)
	require.True(t, model.NewFloat(15).Equal(value.Value))
}

type simplifyHarness struct {
	static map[string]any
}

func TestSimplifyTagAndAttributes(t *testing.T) {
	taggedNode := model.NewNode("node", "tag")
	runSimplifyCases(t, []simplifyCase{
		{
			name:     "dynamic node keeps the tag",
			input:    &Tag{Node: name("node"), Tag: "tag"},
			expected: &Tag{Node: name("node"), Tag: "tag"},
			opts:     dynamicNames("node"),
		},
		{
			name:     "literal nodes are tagged",
			input:    &Tag{Node: NodeLiteral("node"), Tag: "tag"},
			expected: &Literal{Value: model.NewNodeVector(taggedNode)},
		},
		{
			name: "nested attributes are combined",
			input: &Attributes{
				Node:     &Attributes{Node: name("node"), Bindings: []Binding{{Name: "x", Expr: name("x")}}},
				Bindings: []Binding{{Name: "y", Expr: name("y")}},
			},
			expected: &Attributes{
				Node:     name("node"),
				Bindings: []Binding{{Name: "x", Expr: name("x")}, {Name: "y", Expr: name("y")}},
			},
			opts: dynamicNames("node", "x", "y"),
		},
	})
}

func TestSimplifyAttributesFolding(t *testing.T) {
	input := &Attributes{Node: NodeLiteral("node"), Bindings: []Binding{{Name: "y", Expr: num(5)}}}
	result, report := Simplify(input, nil)
	require.Empty(t, report.Errors)
	lit, ok := result.(*Literal)
	require.True(t, ok)
	node := lit.Value.Objects()[0].(*model.Node)
	require.True(t, model.NewFloat(5).Equal(node.Attribute("y")))

	// Dynamic suffix survives with the literal prefix folded
	partial := &Attributes{Node: NodeLiteral("node"), Bindings: []Binding{
		{Name: "a", Expr: num(1)},
		{Name: "b", Expr: name("v")},
	}}
	result, _ = Simplify(partial, dynamicNames("v"))
	attrs, ok := result.(*Attributes)
	require.True(t, ok)
	require.Len(t, attrs.Bindings, 1)
	require.Equal(t, "b", attrs.Bindings[0].Name)
	folded := attrs.Node.(*Literal).Value.Objects()[0].(*model.Node)
	require.True(t, model.NewFloat(1).Equal(folded.Attribute("a")))
}

func TestSimplifyAppendFolding(t *testing.T) {
	// Literal child appends onto a literal node
	input := &Append{Node: NodeLiteral("x"), Children: NodeLiteral("y")}
	result, report := Simplify(input, nil)
	require.Empty(t, report.Errors)
	lit, ok := result.(*Literal)
	require.True(t, ok)
	parent := lit.Value.Objects()[0].(*model.Node)
	require.Len(t, parent.Children(), 1)
	require.Equal(t, "y", parent.FirstChild().Kind())

	// Literal appends push through an intermediate Attributes
	through := &Append{
		Node:     &Attributes{Node: NodeLiteral("node1"), Bindings: []Binding{{Name: "x", Expr: name("x")}}},
		Children: NodeLiteral("node2"),
	}
	result, _ = Simplify(through, dynamicNames("x"))
	attrs, ok := result.(*Attributes)
	require.True(t, ok)
	folded := attrs.Node.(*Literal).Value.Objects()[0].(*model.Node)
	require.Equal(t, "node2", folded.FirstChild().Kind())

	// A literal prefix of an appended sequence is pulled out
	pulled := &Append{
		Node: NodeLiteral("node1"),
		Children: &Sequence{Exprs: []Expression{
			NodeLiteral("node2"), name("x"), name("y"),
		}},
	}
	result, _ = Simplify(pulled, dynamicNames("x", "y"))
	app, ok := result.(*Append)
	require.True(t, ok)
	base := app.Node.(*Literal).Value.Objects()[0].(*model.Node)
	require.Equal(t, "node2", base.FirstChild().Kind())
	require.IsType(t, &Sequence{}, app.Children)
}

func TestSimplifyTopExports(t *testing.T) {
	top := &Top{Body: []Expression{
		&Let{Bindings: []PolyBinding{{Names: []string{"x", "y"}, Expr: num(5)}}},
		name("z"),
	}}
	result, report := Simplify(top, dynamicNames("z"))
	require.Empty(t, report.Errors)

	simplified := result.(*Top)
	require.Len(t, simplified.Body, 2)
	require.Equal(t, "z", simplified.Body[0].String())
	store, ok := simplified.Body[1].(*StoreGlobal)
	require.True(t, ok)
	require.Len(t, store.Bindings, 2)
	require.Equal(t, "x", store.Bindings[0].Name)
	require.Equal(t, "y", store.Bindings[1].Name)

	// Re-simplifying adds nothing
	again, _ := Simplify(result, dynamicNames("z"))
	require.Equal(t, result.String(), again.String())
}

func TestSimplifyArithmeticFoldingScenario(t *testing.T) {
	// let x=2+3 followed by a pragma using x*x folds to a literal 25
	top := &Top{Body: []Expression{
		&Let{Bindings: []PolyBinding{{Names: []string{"x"}, Expr: &Add{Left: num(2), Right: num(3)}}}},
		&Pragma{Name: "v", Expr: &Multiply{Left: name("x"), Right: name("x")}},
	}}
	result, report := Simplify(top, nil)
	require.Empty(t, report.Errors)
	simplified := result.(*Top)
	var pragma *Pragma
	for _, expr := range simplified.Body {
		if p, ok := expr.(*Pragma); ok {
			pragma = p
		}
	}
	require.NotNil(t, pragma)
	value, ok := pragma.Expr.(*Literal)
	require.True(t, ok)
	require.True(t, model.NewFloat(25).Equal(value.Value))
}

func TestSimplifyImport(t *testing.T) {
	imp := &Import{Names: []string{"x", "y"}, Filename: name("m")}
	result, report := Simplify(imp, &SimplifyOptions{Static: map[string]any{"m": model.NewString("module.fl")}})
	require.Empty(t, report.Errors)
	simplified := result.(*Import)
	require.Equal(t, `"module.fl"`, simplified.Filename.String())
	// Imported names become dynamic
	require.Contains(t, report.Names, "x")
	require.Nil(t, report.Names["x"])
}
