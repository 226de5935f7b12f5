package ast

import (
	"fmt"

	"github.com/jonathonfletcher/flitter/builtins"
	"github.com/jonathonfletcher/flitter/model"
)

// Default budgets bounding the partial evaluator. Loop unrolling and
// function inlining can otherwise blow up code size without bound;
// expressions over budget are left as-is for the VM.
const (
	DefaultUnrollBudget = 4096
	DefaultInlineDepth  = 64
)

// SimplifyOptions configures a simplification pass.
type SimplifyOptions struct {
	// State supplies the persistent store so literal Lookup keys present in
	// it fold to their stored values.
	State *model.StateDict

	// Static binds names to known values: a model.Vector (constant), a
	// *Name (alias to another name), or a *Function (known definition).
	Static map[string]any

	// Dynamic names are known to exist but have unknown values.
	Dynamic []string

	// UnrollBudget caps the element count of a literal loop source that
	// will be unrolled; zero means DefaultUnrollBudget.
	UnrollBudget int

	// InlineDepth caps nested function inlining; zero means
	// DefaultInlineDepth.
	InlineDepth int
}

// Report carries the outcome of a simplification pass: the recorded errors
// and the final name bindings (a model.Vector, *Name, *Function, or nil for
// a name whose value stayed unknown).
type Report struct {
	Errors []string
	Names  map[string]any
}

// Simplify returns an equivalent, simpler expression: constants folded,
// algebraic identities rewritten, literal loops unrolled, known function
// calls inlined, and statically-resolved let bindings removed.
//
// Simplification preserves observable semantics. It is idempotent except
// for outputs containing alias bindings materialised by the rename
// handling, which simplify again to a different form.
func Simplify(e Expression, opts *SimplifyOptions) (Expression, *Report) {
	if opts == nil {
		opts = &SimplifyOptions{}
	}
	s := &simplifier{
		state:        opts.State,
		names:        make(map[string]any),
		errorSet:     make(map[string]struct{}),
		unrollBudget: opts.UnrollBudget,
		inlineBudget: opts.InlineDepth,
	}
	if s.unrollBudget <= 0 {
		s.unrollBudget = DefaultUnrollBudget
	}
	if s.inlineBudget <= 0 {
		s.inlineBudget = DefaultInlineDepth
	}
	for name, value := range opts.Static {
		s.names[name] = value
	}
	for _, name := range opts.Dynamic {
		if _, ok := s.names[name]; !ok {
			s.names[name] = nil
		}
	}
	simplified := s.simplify(e)
	return simplified, &Report{Errors: s.errors, Names: s.names}
}

type simplifier struct {
	state        *model.StateDict
	names        map[string]any
	errorSet     map[string]struct{}
	errors       []string
	unrollBudget int
	inlineBudget int
	inlineDepth  int

	// Function-body scope: free names are collected rather than reported,
	// and a reference to selfName marks the function recursive. Only names
	// that were dynamic in the definition environment (outerDynamic) or
	// entirely unknown count as captures; parameters and body-local
	// bindings do not.
	captures     []string
	captureSet   map[string]struct{}
	outerDynamic map[string]struct{}
	selfName     string
	selfRecursed bool
	atTop        bool
	exported     []string
}

func (s *simplifier) addError(msg string) {
	if _, ok := s.errorSet[msg]; ok {
		return
	}
	s.errorSet[msg] = struct{}{}
	s.errors = append(s.errors, msg)
}

func (s *simplifier) snapshotNames() map[string]any {
	saved := make(map[string]any, len(s.names))
	for k, v := range s.names {
		saved[k] = v
	}
	return saved
}

func literalValue(e Expression) (model.Vector, bool) {
	if lit, ok := e.(*Literal); ok {
		return lit.Value, true
	}
	return model.Null, false
}

func isScalar(e Expression, x float64) bool {
	if v, ok := literalValue(e); ok {
		if y, ok := v.AsFloat(); ok {
			return y == x
		}
	}
	return false
}

func isMathsBinary(e Expression) bool {
	switch e.(type) {
	case *Add, *Subtract, *Multiply, *Divide, *FloorDivide, *Modulo, *Power:
		return true
	}
	return false
}

// literal wraps a vector, cloning any nodes so simplification never shares
// mutable graph state between expressions.
func literal(v model.Vector) *Literal {
	return &Literal{Value: v.CopyAllNodes()}
}

func (s *simplifier) simplify(e Expression) Expression {
	switch e := e.(type) {
	case *Literal:
		if e.Value.ContainsNode() {
			return literal(e.Value)
		}
		return e

	case *Name:
		return s.simplifyName(e)

	case *FunctionName:
		return e

	case *Lookup:
		key := s.simplify(e.Key)
		if v, ok := literalValue(key); ok && s.state != nil && s.state.Contains(v) {
			return literal(s.state.Get(v))
		}
		return &Lookup{Key: key}

	case *Range:
		return s.simplifyRange(e)

	case *Positive:
		return s.simplifyPositive(e)

	case *Negative:
		return s.simplifyNegative(e)

	case *Ceil:
		expr := s.simplify(e.Expr)
		if v, ok := literalValue(expr); ok {
			return literal(v.Ceil())
		}
		return &Ceil{Expr: expr}

	case *Floor:
		expr := s.simplify(e.Expr)
		if v, ok := literalValue(expr); ok {
			return literal(v.Floor())
		}
		return &Floor{Expr: expr}

	case *Fract:
		expr := s.simplify(e.Expr)
		if v, ok := literalValue(expr); ok {
			return literal(v.Fract())
		}
		return &Fract{Expr: expr}

	case *Not:
		expr := s.simplify(e.Expr)
		if v, ok := literalValue(expr); ok {
			return literal(v.Not())
		}
		return &Not{Expr: expr}

	case *Add:
		return s.simplifyAdd(s.simplify(e.Left), s.simplify(e.Right))

	case *Subtract:
		return s.simplifySubtract(s.simplify(e.Left), s.simplify(e.Right))

	case *Multiply:
		return s.simplifyMultiply(s.simplify(e.Left), s.simplify(e.Right))

	case *Divide:
		return s.simplifyDivide(s.simplify(e.Left), s.simplify(e.Right))

	case *FloorDivide:
		left, right := s.simplify(e.Left), s.simplify(e.Right)
		if lv, ok := literalValue(left); ok {
			if rv, ok := literalValue(right); ok {
				return literal(lv.FloorDiv(rv))
			}
		}
		if isScalar(right, 1) {
			return s.simplify(&Floor{Expr: left})
		}
		return &FloorDivide{Left: left, Right: right}

	case *Modulo:
		left, right := s.simplify(e.Left), s.simplify(e.Right)
		if lv, ok := literalValue(left); ok {
			if rv, ok := literalValue(right); ok {
				return literal(lv.Mod(rv))
			}
		}
		if isScalar(right, 1) {
			return s.simplify(&Fract{Expr: left})
		}
		return &Modulo{Left: left, Right: right}

	case *Power:
		left, right := s.simplify(e.Left), s.simplify(e.Right)
		if lv, ok := literalValue(left); ok {
			if rv, ok := literalValue(right); ok {
				return literal(lv.Pow(rv))
			}
		}
		if isScalar(right, 1) {
			return s.simplify(&Positive{Expr: left})
		}
		return &Power{Left: left, Right: right}

	case *EqualTo:
		return s.simplifyComparison(e.Left, e.Right,
			func(c int, ok bool, eq bool) bool { return eq },
			func(l, r Expression) Expression { return &EqualTo{Left: l, Right: r} })

	case *NotEqualTo:
		return s.simplifyComparison(e.Left, e.Right,
			func(c int, ok bool, eq bool) bool { return !eq },
			func(l, r Expression) Expression { return &NotEqualTo{Left: l, Right: r} })

	case *LessThan:
		return s.simplifyComparison(e.Left, e.Right,
			func(c int, ok bool, eq bool) bool { return ok && c < 0 },
			func(l, r Expression) Expression { return &LessThan{Left: l, Right: r} })

	case *GreaterThan:
		return s.simplifyComparison(e.Left, e.Right,
			func(c int, ok bool, eq bool) bool { return ok && c > 0 },
			func(l, r Expression) Expression { return &GreaterThan{Left: l, Right: r} })

	case *LessThanOrEqualTo:
		return s.simplifyComparison(e.Left, e.Right,
			func(c int, ok bool, eq bool) bool { return ok && c <= 0 },
			func(l, r Expression) Expression { return &LessThanOrEqualTo{Left: l, Right: r} })

	case *GreaterThanOrEqualTo:
		return s.simplifyComparison(e.Left, e.Right,
			func(c int, ok bool, eq bool) bool { return ok && c >= 0 },
			func(l, r Expression) Expression { return &GreaterThanOrEqualTo{Left: l, Right: r} })

	case *And:
		left := s.simplify(e.Left)
		if v, ok := literalValue(left); ok {
			if v.Truthy() {
				return s.simplify(e.Right)
			}
			return left
		}
		return &And{Left: left, Right: s.simplify(e.Right)}

	case *Or:
		left := s.simplify(e.Left)
		if v, ok := literalValue(left); ok {
			if v.Truthy() {
				return left
			}
			return s.simplify(e.Right)
		}
		return &Or{Left: left, Right: s.simplify(e.Right)}

	case *Xor:
		left, right := s.simplify(e.Left), s.simplify(e.Right)
		if lv, lok := literalValue(left); lok {
			if rv, rok := literalValue(right); rok {
				return literal(lv.Xor(rv))
			}
			if !lv.Truthy() {
				return right
			}
		} else if rv, rok := literalValue(right); rok && !rv.Truthy() {
			return left
		}
		return &Xor{Left: left, Right: right}

	case *Slice:
		expr, index := s.simplify(e.Expr), s.simplify(e.Index)
		if iv, ok := literalValue(index); ok {
			if ev, ok := literalValue(expr); ok {
				return literal(ev.Slice(iv))
			}
			return &FastSlice{Expr: expr, Index: iv}
		}
		return &Slice{Expr: expr, Index: index}

	case *FastSlice:
		expr := s.simplify(e.Expr)
		if ev, ok := literalValue(expr); ok {
			return literal(ev.Slice(e.Index))
		}
		return &FastSlice{Expr: expr, Index: e.Index}

	case *Call:
		return s.simplifyCall(e)

	case *Let:
		kept := s.simplifyBindings(e.Bindings, false)
		if len(kept) == 0 {
			return literal(model.Null)
		}
		return &Let{Bindings: kept}

	case *InlineLet:
		saved := s.snapshotNames()
		savedTop := s.atTop
		s.atTop = false
		kept := s.simplifyBindings(e.Bindings, true)
		body := s.simplify(e.Body)
		s.names = saved
		s.atTop = savedTop
		if len(kept) == 0 {
			return body
		}
		return &InlineLet{Body: body, Bindings: kept}

	case *For:
		return s.simplifyFor(e)

	case *IfElse:
		return s.simplifyIfElse(e)

	case *Function:
		return s.simplifyFunction(e)

	case *Tag:
		node := s.simplify(e.Node)
		if v, ok := literalValue(node); ok && allNodes(v) {
			tagged := v.CopyAllNodes()
			for _, obj := range tagged.Objects() {
				obj.(*model.Node).AddTag(e.Tag)
			}
			return &Literal{Value: tagged}
		}
		return &Tag{Node: node, Tag: e.Tag}

	case *Attributes:
		return s.simplifyAttributes(e)

	case *Append:
		return s.simplifyAppend(e)

	case *Prepend:
		node := s.simplify(e.Node)
		children := s.simplify(e.Children)
		return &Prepend{Node: node, Children: children}

	case *Search:
		return e

	case *Pragma:
		return &Pragma{Name: e.Name, Expr: s.simplify(e.Expr)}

	case *Import:
		filename := s.simplify(e.Filename)
		for _, name := range e.Names {
			s.names[name] = nil
		}
		return &Import{Names: e.Names, Filename: filename}

	case *StoreGlobal:
		return e

	case *Sequence:
		savedTop := s.atTop
		s.atTop = false
		result := s.simplifySequence(e.Exprs, false)
		s.atTop = savedTop
		return result

	case *Top:
		return s.simplifyTop(e)
	}
	return e
}

func (s *simplifier) simplifyName(e *Name) Expression {
	if value, ok := s.names[e.Name]; ok {
		switch v := value.(type) {
		case model.Vector:
			return literal(v)
		case *Name:
			// Rename hack: the alias was resolved when it was bound and is
			// substituted verbatim.
			return &Name{Name: v.Name}
		case *Function:
			return &FunctionName{Name: e.Name}
		case nil:
			if s.captureSet != nil {
				if _, outer := s.outerDynamic[e.Name]; outer {
					s.recordCapture(e.Name)
				}
			}
			return e
		}
	}
	if v, ok := builtins.Static[e.Name]; ok {
		return literal(v)
	}
	if _, ok := builtins.Dynamic[e.Name]; ok {
		return e
	}
	if e.Name == s.selfName {
		s.selfRecursed = true
		return e
	}
	if s.captureSet != nil {
		s.recordCapture(e.Name)
		return e
	}
	s.addError(fmt.Sprintf("Unbound name '%s'", e.Name))
	return literal(model.Null)
}

func (s *simplifier) recordCapture(name string) {
	if _, ok := s.captureSet[name]; ok {
		return
	}
	s.captureSet[name] = struct{}{}
	s.captures = append(s.captures, name)
}

func (s *simplifier) simplifyRange(e *Range) Expression {
	start, stop, step := s.simplifyOptional(e.Start), s.simplifyOptional(e.Stop), s.simplifyOptional(e.Step)
	sv, sok := optionalLiteral(start)
	ev, eok := optionalLiteral(stop)
	dv, dok := optionalLiteral(step)
	if sok && eok && dok && stop != nil {
		return literal(model.Range(sv, ev, dv))
	}
	return &Range{Start: start, Stop: stop, Step: step}
}

func (s *simplifier) simplifyOptional(e Expression) Expression {
	if e == nil {
		return nil
	}
	return s.simplify(e)
}

func optionalLiteral(e Expression) (model.Vector, bool) {
	if e == nil {
		return model.Null, true
	}
	return literalValue(e)
}

func (s *simplifier) simplifyPositive(e *Positive) Expression {
	expr := s.simplify(e.Expr)
	if v, ok := literalValue(expr); ok {
		return literal(v.Pos())
	}
	switch inner := expr.(type) {
	case *Positive, *Negative:
		return expr
	default:
		if isMathsBinary(inner) {
			return expr
		}
	}
	return &Positive{Expr: expr}
}

func (s *simplifier) simplifyNegative(e *Negative) Expression {
	expr := s.simplify(e.Expr)
	if v, ok := literalValue(expr); ok {
		return literal(v.Neg())
	}
	switch inner := expr.(type) {
	case *Negative:
		return s.simplify(&Positive{Expr: inner.Expr})
	case *Multiply:
		if _, ok := literalValue(inner.Left); ok {
			return s.simplify(&Multiply{Left: &Negative{Expr: inner.Left}, Right: inner.Right})
		}
		if _, ok := literalValue(inner.Right); ok {
			return s.simplify(&Multiply{Left: inner.Left, Right: &Negative{Expr: inner.Right}})
		}
	case *Divide:
		if _, ok := literalValue(inner.Left); ok {
			return s.simplify(&Divide{Left: &Negative{Expr: inner.Left}, Right: inner.Right})
		}
	case *Add:
		if _, lok := literalValue(inner.Left); lok {
			return s.simplify(&Add{Left: &Negative{Expr: inner.Left}, Right: &Negative{Expr: inner.Right}})
		}
		if _, rok := literalValue(inner.Right); rok {
			return s.simplify(&Add{Left: &Negative{Expr: inner.Left}, Right: &Negative{Expr: inner.Right}})
		}
	case *Subtract:
		if _, lok := literalValue(inner.Left); lok {
			return s.simplify(&Add{Left: &Negative{Expr: inner.Left}, Right: inner.Right})
		}
		if _, rok := literalValue(inner.Right); rok {
			return s.simplify(&Subtract{Left: inner.Right, Right: inner.Left})
		}
	}
	return &Negative{Expr: expr}
}

func (s *simplifier) simplifyAdd(left, right Expression) Expression {
	if lv, lok := literalValue(left); lok {
		if rv, rok := literalValue(right); rok {
			return literal(lv.Add(rv))
		}
	}
	if isScalar(left, 0) {
		return s.simplify(&Positive{Expr: right})
	}
	if isScalar(right, 0) {
		return s.simplify(&Positive{Expr: left})
	}
	if neg, ok := right.(*Negative); ok {
		return s.simplify(&Subtract{Left: left, Right: neg.Expr})
	}
	if neg, ok := left.(*Negative); ok {
		return s.simplify(&Subtract{Left: right, Right: neg.Expr})
	}
	return &Add{Left: left, Right: right}
}

func (s *simplifier) simplifySubtract(left, right Expression) Expression {
	if lv, lok := literalValue(left); lok {
		if rv, rok := literalValue(right); rok {
			return literal(lv.Sub(rv))
		}
	}
	if isScalar(right, 0) {
		return s.simplify(&Positive{Expr: left})
	}
	if isScalar(left, 0) {
		return s.simplify(&Negative{Expr: right})
	}
	if neg, ok := right.(*Negative); ok {
		return s.simplify(&Add{Left: left, Right: neg.Expr})
	}
	return &Subtract{Left: left, Right: right}
}

func (s *simplifier) simplifyMultiply(left, right Expression) Expression {
	lv, lok := literalValue(left)
	rv, rok := literalValue(right)
	if lok && rok {
		return literal(lv.Mul(rv))
	}
	if isScalar(left, 1) {
		return s.simplify(&Positive{Expr: right})
	}
	if isScalar(right, 1) {
		return s.simplify(&Positive{Expr: left})
	}
	if isScalar(left, -1) {
		return s.simplify(&Negative{Expr: right})
	}
	if isScalar(right, -1) {
		return s.simplify(&Negative{Expr: left})
	}
	if lok {
		if rewritten, ok := s.distributeMultiply(lv, right); ok {
			return rewritten
		}
	}
	if rok {
		if rewritten, ok := s.distributeMultiply(rv, left); ok {
			return rewritten
		}
	}
	return &Multiply{Left: left, Right: right}
}

// distributeMultiply pushes a literal factor through a half-literal Add,
// Subtract, Multiply or Divide, or through a Negative, producing a more
// foldable tree.
func (s *simplifier) distributeMultiply(factor model.Vector, other Expression) (Expression, bool) {
	switch inner := other.(type) {
	case *Add:
		if iv, ok := literalValue(inner.Left); ok {
			return &Add{
				Left:  s.simplify(&Multiply{Left: literal(factor), Right: inner.Right}),
				Right: literal(factor.Mul(iv)),
			}, true
		}
		if iv, ok := literalValue(inner.Right); ok {
			return &Add{
				Left:  s.simplify(&Multiply{Left: literal(factor), Right: inner.Left}),
				Right: literal(factor.Mul(iv)),
			}, true
		}
	case *Subtract:
		if iv, ok := literalValue(inner.Left); ok {
			return &Subtract{
				Left:  literal(factor.Mul(iv)),
				Right: s.simplify(&Multiply{Left: literal(factor), Right: inner.Right}),
			}, true
		}
		if iv, ok := literalValue(inner.Right); ok {
			return &Subtract{
				Left:  s.simplify(&Multiply{Left: literal(factor), Right: inner.Left}),
				Right: literal(factor.Mul(iv)),
			}, true
		}
	case *Multiply:
		if iv, ok := literalValue(inner.Left); ok {
			return s.simplify(&Multiply{Left: literal(factor.Mul(iv)), Right: inner.Right}), true
		}
		if iv, ok := literalValue(inner.Right); ok {
			return s.simplify(&Multiply{Left: literal(factor.Mul(iv)), Right: inner.Left}), true
		}
	case *Divide:
		if iv, ok := literalValue(inner.Left); ok {
			return &Divide{Left: literal(factor.Mul(iv)), Right: inner.Right}, true
		}
	case *Negative:
		return s.simplify(&Multiply{Left: literal(factor.Neg()), Right: inner.Expr}), true
	}
	return nil, false
}

func (s *simplifier) simplifyDivide(left, right Expression) Expression {
	if lv, lok := literalValue(left); lok {
		if rv, rok := literalValue(right); rok {
			return literal(lv.TrueDiv(rv))
		}
	}
	if isScalar(right, 1) {
		return s.simplify(&Positive{Expr: left})
	}
	if rv, ok := literalValue(right); ok {
		inverse := model.NewFloat(1).TrueDiv(rv)
		if !inverse.IsNull() {
			return s.simplify(&Multiply{Left: literal(inverse), Right: left})
		}
	}
	return &Divide{Left: left, Right: right}
}

func (s *simplifier) simplifyComparison(l, r Expression, decide func(c int, ok bool, eq bool) bool, rebuild func(l, r Expression) Expression) Expression {
	left, right := s.simplify(l), s.simplify(r)
	if lv, lok := literalValue(left); lok {
		if rv, rok := literalValue(right); rok {
			c, ok := lv.Compare(rv)
			return literal(model.NewBool(decide(c, ok, lv.Equal(rv))))
		}
	}
	return rebuild(left, right)
}

func (s *simplifier) simplifyCall(e *Call) Expression {
	fn := s.simplify(e.Function)
	args := make([]Expression, len(e.Args))
	argsLiteral := true
	for i, arg := range e.Args {
		args[i] = s.simplify(arg)
		if _, ok := literalValue(args[i]); !ok {
			argsLiteral = false
		}
	}
	kwargs := make([]Binding, len(e.Kwargs))
	for i, kw := range e.Kwargs {
		kwargs[i] = Binding{Name: kw.Name, Expr: s.simplify(kw.Expr)}
		if _, ok := literalValue(kwargs[i].Expr); !ok {
			argsLiteral = false
		}
	}

	if fname, ok := fn.(*FunctionName); ok {
		if def, ok := s.names[fname.Name].(*Function); ok {
			if def.Captures != nil && len(def.Captures) == 0 && (!def.Recursive || argsLiteral) {
				if inlined, ok := s.inlineCall(def, args, kwargs); ok {
					return inlined
				}
			}
		}
	}

	if argsLiteral {
		if fv, ok := literalValue(fn); ok {
			if folded, ok := s.foldCall(fv, args, kwargs); ok {
				return folded
			}
		}
	}
	return &Call{Function: fn, Args: args, Kwargs: kwargs}
}

// inlineCall rewrites a call to a known capture-free function as an
// InlineLet binding the parameters, then re-simplifies the result.
func (s *simplifier) inlineCall(def *Function, args []Expression, kwargs []Binding) (Expression, bool) {
	if s.inlineDepth >= s.inlineBudget {
		return nil, false
	}
	bindings := make([]PolyBinding, len(def.Parameters))
	for i, param := range def.Parameters {
		value := param.Expr
		if value == nil {
			value = literal(model.Null)
		}
		if i < len(args) {
			value = args[i]
		}
		for _, kw := range kwargs {
			if kw.Name == param.Name {
				value = kw.Expr
			}
		}
		bindings[i] = PolyBinding{Names: []string{param.Name}, Expr: value}
	}
	s.inlineDepth++
	defer func() { s.inlineDepth-- }()
	return s.simplify(&InlineLet{Body: def.Body, Bindings: bindings}), true
}

// foldCall evaluates a call whose callable and arguments are all literal,
// provided every callable element is a pure builtin.
func (s *simplifier) foldCall(callable model.Vector, args []Expression, kwargs []Binding) (Expression, bool) {
	if callable.IsNumeric() || callable.IsNull() {
		return nil, false
	}
	values := make([]model.Vector, len(args))
	for i, arg := range args {
		values[i], _ = literalValue(arg)
	}
	kwvalues := make(map[string]model.Vector, len(kwargs))
	for _, kw := range kwargs {
		kwvalues[kw.Name], _ = literalValue(kw.Expr)
	}
	var results []model.Vector
	for _, obj := range callable.Objects() {
		builtin, ok := obj.(*model.Builtin)
		if !ok {
			return nil, false
		}
		result, err := builtin.Call(values, kwvalues)
		if err != nil {
			return nil, false
		}
		results = append(results, result)
	}
	return literal(model.Compose(results)), true
}

// simplifyBindings processes let bindings in order, mutating the scope.
// Bindings that resolve statically are removed; the rest are kept with the
// names marked unknown. Rebinding a name that other names alias emits
// compensating bindings so the aliases keep their pre-shadow meaning.
func (s *simplifier) simplifyBindings(bindings []PolyBinding, inline bool) []PolyBinding {
	var kept []PolyBinding
	for _, binding := range bindings {
		expr := s.simplify(binding.Expr)

		value, isLiteral := literalValue(expr)
		alias, isAlias := expr.(*Name)
		isAlias = isAlias && len(binding.Names) == 1
		eliminated := isLiteral || isAlias

		// Materialise aliases to a name about to be shadowed. Inline lets
		// substitute eliminated bindings directly into the body, so they
		// only need this when the new binding survives to runtime.
		if !inline || !eliminated {
			for _, name := range binding.Names {
				for existing, bound := range s.names {
					if aliased, ok := bound.(*Name); ok && aliased.Name == name {
						kept = append(kept, PolyBinding{Names: []string{existing}, Expr: &Name{Name: name}})
						s.names[existing] = nil
					}
				}
			}
		}

		switch {
		case isLiteral:
			for i, name := range binding.Names {
				if len(binding.Names) == 1 {
					s.names[name] = value
				} else {
					s.names[name] = value.Item(i)
				}
				s.noteExport(name)
			}
		case isAlias:
			s.names[binding.Names[0]] = alias
		default:
			for _, name := range binding.Names {
				s.names[name] = nil
			}
			kept = append(kept, PolyBinding{Names: binding.Names, Expr: expr})
		}
	}
	return kept
}

func (s *simplifier) noteExport(name string) {
	if !s.atTop {
		return
	}
	for _, existing := range s.exported {
		if existing == name {
			return
		}
	}
	s.exported = append(s.exported, name)
}

func (s *simplifier) simplifyFor(e *For) Expression {
	source := s.simplify(e.Source)
	v, ok := literalValue(source)
	if !ok || v.Len() > s.unrollBudget {
		saved := s.snapshotNames()
		savedTop := s.atTop
		s.atTop = false
		for _, name := range e.Names {
			s.names[name] = nil
		}
		body := s.simplify(e.Body)
		s.names = saved
		s.atTop = savedTop
		return &For{Names: e.Names, Source: source, Body: body}
	}

	saved := s.snapshotNames()
	savedTop := s.atTop
	s.atTop = false
	n := len(e.Names)
	var unrolled []Expression
	for i := 0; i < v.Len(); i += n {
		for j, name := range e.Names {
			if i+j < v.Len() {
				s.names[name] = v.Item(i + j)
			} else {
				s.names[name] = model.Null
			}
		}
		unrolled = append(unrolled, s.simplify(e.Body))
	}
	s.names = saved
	s.atTop = savedTop
	return s.simplifySequence(unrolled, true)
}

func (s *simplifier) simplifyIfElse(e *IfElse) Expression {
	var kept []IfCondition
	for _, test := range e.Tests {
		condition := s.simplify(test.Condition)
		if v, ok := literalValue(condition); ok {
			if v.Truthy() {
				then := s.simplify(test.Then)
				if len(kept) == 0 {
					return then
				}
				return &IfElse{Tests: kept, Else: then}
			}
			continue
		}
		kept = append(kept, IfCondition{Condition: condition, Then: s.simplify(test.Then)})
	}
	var elseExpr Expression
	if e.Else != nil {
		elseExpr = s.simplify(e.Else)
	}
	if len(kept) == 0 {
		if elseExpr != nil {
			return elseExpr
		}
		return literal(model.Null)
	}
	return &IfElse{Tests: kept, Else: elseExpr}
}

func (s *simplifier) simplifyFunction(e *Function) Expression {
	params := make([]Binding, len(e.Parameters))
	for i, param := range e.Parameters {
		def := param.Expr
		if def == nil {
			def = literal(model.Null)
		}
		params[i] = Binding{Name: param.Name, Expr: s.simplify(def)}
	}

	sub := &simplifier{
		state:        s.state,
		names:        s.snapshotNames(),
		errorSet:     s.errorSet,
		errors:       s.errors,
		unrollBudget: s.unrollBudget,
		inlineBudget: s.inlineBudget,
		captureSet:   make(map[string]struct{}),
		outerDynamic: make(map[string]struct{}),
		selfName:     e.Name,
	}
	delete(sub.names, e.Name)
	for outer, bound := range sub.names {
		if bound == nil {
			sub.outerDynamic[outer] = struct{}{}
		}
	}
	for _, param := range params {
		sub.names[param.Name] = nil
	}
	body := sub.simplify(e.Body)
	s.errors = sub.errors

	captures := sub.captures
	if captures == nil {
		captures = []string{}
	}
	fn := &Function{
		Name:       e.Name,
		Parameters: params,
		Body:       body,
		Captures:   captures,
		Recursive:  sub.selfRecursed,
	}
	if len(captures) == 0 {
		s.names[e.Name] = fn
	} else {
		s.names[e.Name] = nil
	}
	return fn
}

func allNodes(v model.Vector) bool {
	if v.IsNumeric() || v.IsNull() {
		return false
	}
	for _, obj := range v.Objects() {
		if _, ok := obj.(*model.Node); !ok {
			return false
		}
	}
	return true
}

func (s *simplifier) simplifyAttributes(e *Attributes) Expression {
	node := s.simplify(e.Node)

	// Combine nested attribute operations into one.
	if inner, ok := node.(*Attributes); ok {
		combined := make([]Binding, 0, len(inner.Bindings)+len(e.Bindings))
		combined = append(combined, inner.Bindings...)
		combined = append(combined, e.Bindings...)
		return s.simplifyAttributes(&Attributes{Node: inner.Node, Bindings: combined})
	}

	bindings := make([]Binding, len(e.Bindings))
	for i, binding := range e.Bindings {
		bindings[i] = Binding{Name: binding.Name, Expr: s.simplify(binding.Expr)}
	}

	// Fold a literal prefix of the bindings into a literal node, keeping
	// attribute insertion order intact.
	if v, ok := literalValue(node); ok && allNodes(v) {
		folded := 0
		for _, binding := range bindings {
			if _, ok := literalValue(binding.Expr); !ok {
				break
			}
			folded++
		}
		if folded > 0 {
			updated := v.CopyAllNodes()
			for _, obj := range updated.Objects() {
				target := obj.(*model.Node)
				for _, binding := range bindings[:folded] {
					value, _ := literalValue(binding.Expr)
					target.SetAttribute(binding.Name, value)
				}
			}
			node = &Literal{Value: updated}
			bindings = bindings[folded:]
		}
	}
	if len(bindings) == 0 {
		return node
	}
	return &Attributes{Node: node, Bindings: bindings}
}

func (s *simplifier) simplifyAppend(e *Append) Expression {
	node := s.simplify(e.Node)
	children := s.simplify(e.Children)

	// Pull a literal prefix out of an appended sequence onto a literal node.
	if seq, ok := children.(*Sequence); ok && len(seq.Exprs) > 0 {
		if first, ok := literalValue(seq.Exprs[0]); ok {
			if _, nok := literalValue(node); nok {
				folded := s.simplifyAppend(&Append{Node: node, Children: &Literal{Value: first}})
				rest := seq.Exprs[1:]
				if len(rest) == 1 {
					return &Append{Node: folded, Children: rest[0]}
				}
				return &Append{Node: folded, Children: &Sequence{Exprs: rest}}
			}
		}
	}

	cv, cok := literalValue(children)
	if nv, ok := literalValue(node); ok && allNodes(nv) && cok {
		if cv.IsNull() {
			return &Literal{Value: nv}
		}
		if allNodes(cv) {
			updated := nv.CopyAllNodes()
			for _, obj := range updated.Objects() {
				parent := obj.(*model.Node)
				for _, childObj := range cv.Objects() {
					parent.Append(childObj.(*model.Node))
				}
			}
			return &Literal{Value: updated}
		}
	}

	// Push a literal append through an intermediate attribute operation so
	// it can fold into a literal root.
	if attrs, ok := node.(*Attributes); ok && cok {
		if _, aok := literalValue(attrs.Node); aok {
			folded := s.simplifyAppend(&Append{Node: attrs.Node, Children: &Literal{Value: cv}})
			return &Attributes{Node: folded, Bindings: attrs.Bindings}
		}
	}
	return &Append{Node: node, Children: children}
}

func (s *simplifier) simplifySequence(exprs []Expression, presimplified bool) Expression {
	var flattened []Expression
	scoped := false
	for _, expr := range exprs {
		if !presimplified {
			expr = s.simplify(expr)
		}
		switch child := expr.(type) {
		case *Sequence:
			flattened = append(flattened, child.Exprs...)
		default:
			flattened = append(flattened, expr)
		}
	}

	merged := make([]Expression, 0, len(flattened))
	for _, expr := range flattened {
		switch expr.(type) {
		case *Let, *Import, *Function, *StoreGlobal:
			scoped = true
		}
		if v, ok := literalValue(expr); ok {
			if v.IsNull() {
				continue
			}
			if len(merged) > 0 {
				if prev, ok := literalValue(merged[len(merged)-1]); ok {
					merged[len(merged)-1] = &Literal{Value: model.Compose([]model.Vector{prev, v})}
					continue
				}
			}
		}
		merged = append(merged, expr)
	}

	if !scoped {
		switch len(merged) {
		case 0:
			return literal(model.Null)
		case 1:
			return merged[0]
		}
	}
	return &Sequence{Exprs: merged}
}

func (s *simplifier) simplifyTop(e *Top) Expression {
	s.atTop = true
	var body []Expression
	for _, expr := range e.Body {
		simplified := s.simplify(expr)
		if v, ok := literalValue(simplified); ok && v.IsNull() {
			continue
		}
		body = append(body, simplified)
	}
	s.atTop = false

	if len(s.exported) > 0 {
		bindings := make([]Binding, 0, len(s.exported))
		for _, name := range s.exported {
			if value, ok := s.names[name].(model.Vector); ok {
				bindings = append(bindings, Binding{Name: name, Expr: literal(value)})
			}
		}
		if len(bindings) > 0 {
			body = append(body, &StoreGlobal{Bindings: bindings})
		}
		s.exported = nil
	}
	return &Top{Body: body}
}
