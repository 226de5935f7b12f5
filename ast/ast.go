// Package ast defines the Flitter expression tree and its partial
// evaluator. The external parser produces a Top expression; Simplify folds
// constants, unrolls literal loops and inlines known functions; the
// compiler package lowers the result to instructions.
package ast

import (
	"strings"

	"github.com/jonathonfletcher/flitter/model"
)

// Expression is a node of the syntax tree.
type Expression interface {
	// String returns a source-like representation of the expression.
	String() string
}

// Literal is a constant vector.
type Literal struct {
	Value model.Vector
}

// Name references a binding by name.
type Name struct {
	Name string
}

// FunctionName marks a reference that simplification resolved to a known
// function definition; kept symbolic so calls to it can be inlined while
// unresolved uses still compile as a plain name load.
type FunctionName struct {
	Name string
}

// Lookup reads a key from the persistent state.
type Lookup struct {
	Key Expression
}

// Range is start..stop|step with any operand optional (nil means default).
type Range struct {
	Start Expression
	Stop  Expression
	Step  Expression
}

// Unary operators.
type (
	Positive struct{ Expr Expression }
	Negative struct{ Expr Expression }
	Ceil     struct{ Expr Expression }
	Floor    struct{ Expr Expression }
	Fract    struct{ Expr Expression }
	Not      struct{ Expr Expression }
)

// Binary mathematical operators.
type (
	Add         struct{ Left, Right Expression }
	Subtract    struct{ Left, Right Expression }
	Multiply    struct{ Left, Right Expression }
	Divide      struct{ Left, Right Expression }
	FloorDivide struct{ Left, Right Expression }
	Modulo      struct{ Left, Right Expression }
	Power       struct{ Left, Right Expression }
)

// Comparison operators.
type (
	EqualTo              struct{ Left, Right Expression }
	NotEqualTo           struct{ Left, Right Expression }
	LessThan             struct{ Left, Right Expression }
	GreaterThan          struct{ Left, Right Expression }
	LessThanOrEqualTo    struct{ Left, Right Expression }
	GreaterThanOrEqualTo struct{ Left, Right Expression }
)

// Logical operators. And and Or short-circuit; Xor evaluates both sides.
type (
	And struct{ Left, Right Expression }
	Or  struct{ Left, Right Expression }
	Xor struct{ Left, Right Expression }
)

// Slice indexes Expr by Index.
type Slice struct {
	Expr  Expression
	Index Expression
}

// FastSlice is a Slice whose index folded to a literal.
type FastSlice struct {
	Expr  Expression
	Index model.Vector
}

// Call invokes a callable with positional and keyword arguments.
type Call struct {
	Function Expression
	Args     []Expression
	Kwargs   []Binding
}

// Binding associates a single name with an expression (attributes, keyword
// arguments, function parameters).
type Binding struct {
	Name string
	Expr Expression
}

// PolyBinding associates one or more names with an expression; with several
// names the expression's elements are distributed, wrapping modulo its
// length.
type PolyBinding struct {
	Names []string
	Expr  Expression
}

// Let introduces bindings scoped to the remainder of the enclosing
// sequence.
type Let struct {
	Bindings []PolyBinding
}

// InlineLet is an expression-scoped let produced by function inlining.
type InlineLet struct {
	Body     Expression
	Bindings []PolyBinding
}

// For iterates Names over Source, evaluating Body per step and composing
// the results.
type For struct {
	Names  []string
	Source Expression
	Body   Expression
}

// IfCondition is one test/then arm of an IfElse.
type IfCondition struct {
	Condition Expression
	Then      Expression
}

// IfElse evaluates the first arm whose condition is truthy, or Else (which
// may be nil, meaning null).
type IfElse struct {
	Tests []IfCondition
	Else  Expression
}

// Function defines a named function. Captures lists the free names the body
// references (nil until simplification has computed it); Recursive marks
// self-reference.
type Function struct {
	Name       string
	Parameters []Binding
	Body       Expression
	Captures   []string
	Recursive  bool
}

// Tag adds a tag to the nodes produced by Node.
type Tag struct {
	Node Expression
	Tag  string
}

// Attributes binds attribute values on the nodes produced by Node. Within
// the bindings, names resolve against the node under construction before
// the enclosing scope.
type Attributes struct {
	Node     Expression
	Bindings []Binding
}

// Append attaches the children to the nodes produced by Node.
type Append struct {
	Node     Expression
	Children Expression
}

// Prepend attaches the children before existing children.
type Prepend struct {
	Node     Expression
	Children Expression
}

// Search queries the graph constructed so far.
type Search struct {
	Query *model.Query
}

// Pragma records a named directive for the host.
type Pragma struct {
	Name string
	Expr Expression
}

// Import loads names from another module.
type Import struct {
	Names    []string
	Filename Expression
}

// StoreGlobal writes constant bindings straight into the run's globals;
// emitted by simplification for statically-bound top-level lets.
type StoreGlobal struct {
	Bindings []Binding
}

// Sequence concatenates the values of its expressions. Let, Import and
// Function children scope over the remainder of the sequence.
type Sequence struct {
	Exprs []Expression
}

// Top is the root of a program: a sequence whose node values are appended
// to the graph root and whose remaining locals become globals.
type Top struct {
	Body []Expression
}

func (e *Literal) String() string      { return e.Value.Repr() }
func (e *Name) String() string         { return e.Name }
func (e *FunctionName) String() string { return e.Name }
func (e *Lookup) String() string       { return "$(" + e.Key.String() + ")" }

func (e *Range) String() string {
	var b strings.Builder
	if e.Start != nil {
		b.WriteString(e.Start.String())
	}
	b.WriteString("..")
	if e.Stop != nil {
		b.WriteString(e.Stop.String())
	}
	if e.Step != nil {
		b.WriteByte('|')
		b.WriteString(e.Step.String())
	}
	return b.String()
}

func (e *Positive) String() string { return "+(" + e.Expr.String() + ")" }
func (e *Negative) String() string { return "-(" + e.Expr.String() + ")" }
func (e *Ceil) String() string     { return "ceil(" + e.Expr.String() + ")" }
func (e *Floor) String() string    { return "floor(" + e.Expr.String() + ")" }
func (e *Fract) String() string    { return "fract(" + e.Expr.String() + ")" }
func (e *Not) String() string      { return "not " + e.Expr.String() }

func binaryString(left Expression, operator string, right Expression) string {
	return "(" + left.String() + operator + right.String() + ")"
}

func (e *Add) String() string         { return binaryString(e.Left, "+", e.Right) }
func (e *Subtract) String() string    { return binaryString(e.Left, "-", e.Right) }
func (e *Multiply) String() string    { return binaryString(e.Left, "*", e.Right) }
func (e *Divide) String() string      { return binaryString(e.Left, "/", e.Right) }
func (e *FloorDivide) String() string { return binaryString(e.Left, "//", e.Right) }
func (e *Modulo) String() string      { return binaryString(e.Left, "%", e.Right) }
func (e *Power) String() string       { return binaryString(e.Left, "**", e.Right) }

func (e *EqualTo) String() string              { return binaryString(e.Left, "==", e.Right) }
func (e *NotEqualTo) String() string           { return binaryString(e.Left, "!=", e.Right) }
func (e *LessThan) String() string             { return binaryString(e.Left, "<", e.Right) }
func (e *GreaterThan) String() string          { return binaryString(e.Left, ">", e.Right) }
func (e *LessThanOrEqualTo) String() string    { return binaryString(e.Left, "<=", e.Right) }
func (e *GreaterThanOrEqualTo) String() string { return binaryString(e.Left, ">=", e.Right) }

func (e *And) String() string { return binaryString(e.Left, " and ", e.Right) }
func (e *Or) String() string  { return binaryString(e.Left, " or ", e.Right) }
func (e *Xor) String() string { return binaryString(e.Left, " xor ", e.Right) }

func (e *Slice) String() string {
	return e.Expr.String() + "[" + e.Index.String() + "]"
}

func (e *FastSlice) String() string {
	return e.Expr.String() + "[" + e.Index.Repr() + "]"
}

func (e *Call) String() string {
	var b strings.Builder
	b.WriteString(e.Function.String())
	b.WriteByte('(')
	for i, arg := range e.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(arg.String())
	}
	for i, kw := range e.Kwargs {
		if i > 0 || len(e.Args) > 0 {
			b.WriteString(", ")
		}
		b.WriteString(kw.Name)
		b.WriteByte('=')
		b.WriteString(kw.Expr.String())
	}
	b.WriteByte(')')
	return b.String()
}

func (b Binding) String() string {
	return b.Name + "=" + b.Expr.String()
}

func (b PolyBinding) String() string {
	return strings.Join(b.Names, ";") + "=" + b.Expr.String()
}

func bindingsString(bindings []PolyBinding) string {
	parts := make([]string, len(bindings))
	for i, b := range bindings {
		parts[i] = b.String()
	}
	return strings.Join(parts, " ")
}

func (e *Let) String() string {
	return "let " + bindingsString(e.Bindings)
}

func (e *InlineLet) String() string {
	return "(let " + bindingsString(e.Bindings) + " in " + e.Body.String() + ")"
}

func (e *For) String() string {
	return "for " + strings.Join(e.Names, ";") + " in " + e.Source.String() + " do " + e.Body.String()
}

func (e *IfElse) String() string {
	var b strings.Builder
	for i, test := range e.Tests {
		if i == 0 {
			b.WriteString("if ")
		} else {
			b.WriteString(" elif ")
		}
		b.WriteString(test.Condition.String())
		b.WriteString(" then ")
		b.WriteString(test.Then.String())
	}
	if e.Else != nil {
		b.WriteString(" else ")
		b.WriteString(e.Else.String())
	}
	return b.String()
}

func (e *Function) String() string {
	params := make([]string, len(e.Parameters))
	for i, p := range e.Parameters {
		params[i] = p.String()
	}
	return "func " + e.Name + "(" + strings.Join(params, ", ") + ") " + e.Body.String()
}

func (e *Tag) String() string {
	return e.Node.String() + "#" + e.Tag
}

func (e *Attributes) String() string {
	parts := make([]string, len(e.Bindings))
	for i, b := range e.Bindings {
		parts[i] = b.String()
	}
	return e.Node.String() + " " + strings.Join(parts, " ")
}

func (e *Append) String() string {
	return e.Node.String() + " { " + e.Children.String() + " }"
}

func (e *Prepend) String() string {
	return e.Node.String() + " {^ " + e.Children.String() + " }"
}

func (e *Search) String() string {
	return e.Query.String()
}

func (e *Pragma) String() string {
	return "!pragma " + e.Name + "=" + e.Expr.String()
}

func (e *Import) String() string {
	return "import " + strings.Join(e.Names, ";") + " from " + e.Filename.String()
}

func (e *StoreGlobal) String() string {
	parts := make([]string, len(e.Bindings))
	for i, b := range e.Bindings {
		parts[i] = b.String()
	}
	return "store " + strings.Join(parts, " ")
}

func (e *Sequence) String() string {
	parts := make([]string, len(e.Exprs))
	for i, expr := range e.Exprs {
		parts[i] = expr.String()
	}
	return "(" + strings.Join(parts, "; ") + ")"
}

func (e *Top) String() string {
	var b strings.Builder
	for i, expr := range e.Body {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(expr.String())
	}
	return b.String()
}

// NumberLiteral returns a Literal wrapping a single number.
func NumberLiteral(x float64) *Literal {
	return &Literal{Value: model.NewFloat(x)}
}

// StringLiteral returns a Literal wrapping a single string.
func StringLiteral(s string) *Literal {
	return &Literal{Value: model.NewString(s)}
}

// NodeLiteral returns a Literal wrapping a single node constructor.
func NodeLiteral(kind string, tags ...string) *Literal {
	return &Literal{Value: model.NewNodeVector(model.NewNode(kind, tags...))}
}
