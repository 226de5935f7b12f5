// Package compiler lowers a simplified Flitter AST to the linear
// instruction form executed by the virtual machine.
//
// The compiler maintains a compile-time stack of local variable names
// (lvars) mirroring the VM's locals stack, so name references inside let
// bindings, loops and function bodies become local loads while everything
// else becomes a runtime name lookup. Forward control flow is emitted
// against labels, which the program linker resolves to relative offsets.
package compiler

import (
	"fmt"

	"github.com/jonathonfletcher/flitter/ast"
	"github.com/jonathonfletcher/flitter/model"
	"github.com/jonathonfletcher/flitter/op"
	"github.com/jonathonfletcher/flitter/program"
)

// Compile lowers a program root to an optimised, linked Program.
func Compile(top *ast.Top) (*program.Program, error) {
	c := &compiler{}
	c.compileTop(top)
	if c.err != nil {
		return nil, c.err
	}
	p := program.Build(c.instrs)
	p.SetTop(top)
	return p, nil
}

// CompileExpression lowers a single expression to a Program that leaves its
// value on the stack. Used by tests.
func CompileExpression(e ast.Expression) (*program.Program, error) {
	c := &compiler{}
	c.compile(e)
	if c.err != nil {
		return nil, c.err
	}
	return program.Build(c.instrs), nil
}

type compiler struct {
	instrs    []program.Instruction
	lvars     []string
	nextLabel int
	err       error
}

func (c *compiler) fail(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf(format, args...)
	}
}

func (c *compiler) emit(instr program.Instruction) {
	c.instrs = append(c.instrs, instr)
}

func (c *compiler) newLabel() int {
	c.nextLabel++
	return c.nextLabel
}

func (c *compiler) placeLabel(id int) {
	c.emit(program.Instruction{Op: op.Label, Label: id})
}

// localDepth returns the depth of name on the compile-time locals stack,
// or -1 when the name is not a local.
func (c *compiler) localDepth(name string) int {
	for i := len(c.lvars) - 1; i >= 0; i-- {
		if c.lvars[i] == name {
			return len(c.lvars) - 1 - i
		}
	}
	return -1
}

func (c *compiler) compileTop(top *ast.Top) {
	for _, expr := range top.Body {
		switch e := expr.(type) {
		case *ast.Let:
			c.compileLetBindings(e.Bindings)
		case *ast.Import:
			c.compileImport(e)
		case *ast.Function:
			c.compileFunction(e)
		case *ast.Pragma:
			c.compile(e.Expr)
			c.emit(program.Instruction{Op: op.Pragma, Str: e.Name})
		case *ast.StoreGlobal:
			for _, binding := range e.Bindings {
				c.compile(binding.Expr)
				c.emit(program.Instruction{Op: op.StoreGlobal, Str: binding.Name})
			}
		default:
			c.compile(expr)
			c.emit(program.Instruction{Op: op.AppendRoot})
		}
	}
	// Remaining top-level locals become globals.
	n := len(c.lvars)
	for i := n - 1; i >= 0; i-- {
		c.emit(program.Instruction{Op: op.LocalLoad, Int: n - 1 - i})
		c.emit(program.Instruction{Op: op.StoreGlobal, Str: c.lvars[i]})
	}
	if n > 0 {
		c.emit(program.Instruction{Op: op.LocalDrop, Int: n})
		c.lvars = c.lvars[:0]
	}
}

func (c *compiler) compile(e ast.Expression) {
	switch e := e.(type) {
	case nil:
		c.emit(program.Instruction{Op: op.Literal, Value: model.Null})

	case *ast.Literal:
		if e.Value.ContainsNode() {
			c.emit(program.Instruction{Op: op.LiteralNode, Value: e.Value})
		} else {
			c.emit(program.Instruction{Op: op.Literal, Value: e.Value.Intern()})
		}

	case *ast.Name:
		c.compileName(e.Name)

	case *ast.FunctionName:
		c.compileName(e.Name)

	case *ast.Lookup:
		if key, ok := e.Key.(*ast.Literal); ok {
			c.emit(program.Instruction{Op: op.LookupLiteral, Value: key.Value.Intern()})
		} else {
			c.compile(e.Key)
			c.emit(program.Instruction{Op: op.Lookup})
		}

	case *ast.Range:
		c.compile(e.Start)
		c.compile(e.Stop)
		c.compile(e.Step)
		c.emit(program.Instruction{Op: op.Range})

	case *ast.Positive:
		c.compileUnary(e.Expr, op.Pos)
	case *ast.Negative:
		c.compileUnary(e.Expr, op.Neg)
	case *ast.Ceil:
		c.compileUnary(e.Expr, op.Ceil)
	case *ast.Floor:
		c.compileUnary(e.Expr, op.Floor)
	case *ast.Fract:
		c.compileUnary(e.Expr, op.Fract)
	case *ast.Not:
		c.compileUnary(e.Expr, op.Not)

	case *ast.Add:
		c.compileBinary(e.Left, e.Right, op.Add)
	case *ast.Subtract:
		c.compileBinary(e.Left, e.Right, op.Sub)
	case *ast.Multiply:
		c.compileBinary(e.Left, e.Right, op.Mul)
	case *ast.Divide:
		c.compileBinary(e.Left, e.Right, op.TrueDiv)
	case *ast.FloorDivide:
		c.compileBinary(e.Left, e.Right, op.FloorDiv)
	case *ast.Modulo:
		c.compileBinary(e.Left, e.Right, op.Mod)
	case *ast.Power:
		c.compileBinary(e.Left, e.Right, op.Pow)

	case *ast.EqualTo:
		c.compileBinary(e.Left, e.Right, op.Eq)
	case *ast.NotEqualTo:
		c.compileBinary(e.Left, e.Right, op.Ne)
	case *ast.LessThan:
		c.compileBinary(e.Left, e.Right, op.Lt)
	case *ast.GreaterThan:
		c.compileBinary(e.Left, e.Right, op.Gt)
	case *ast.LessThanOrEqualTo:
		c.compileBinary(e.Left, e.Right, op.Le)
	case *ast.GreaterThanOrEqualTo:
		c.compileBinary(e.Left, e.Right, op.Ge)

	case *ast.And:
		c.compileShortCircuit(e.Left, e.Right, op.BranchFalse)
	case *ast.Or:
		c.compileShortCircuit(e.Left, e.Right, op.BranchTrue)
	case *ast.Xor:
		c.compileBinary(e.Left, e.Right, op.Xor)

	case *ast.Slice:
		c.compile(e.Expr)
		c.compile(e.Index)
		c.emit(program.Instruction{Op: op.Slice})

	case *ast.FastSlice:
		c.compile(e.Expr)
		if x, ok := e.Index.AsFloat(); ok && x == float64(int(x)) {
			c.emit(program.Instruction{Op: op.IndexLiteral, Int: int(x)})
		} else {
			c.emit(program.Instruction{Op: op.SliceLiteral, Value: e.Index.Intern()})
		}

	case *ast.Call:
		c.compileCall(e)

	case *ast.Let:
		// A let outside a sequence contributes no value; its bindings
		// cannot outlive the expression.
		n := c.compileLetBindings(e.Bindings)
		c.dropLocals(n)
		c.emit(program.Instruction{Op: op.Literal, Value: model.Null})

	case *ast.InlineLet:
		n := c.compileLetBindings(e.Bindings)
		c.compile(e.Body)
		c.dropLocals(n)

	case *ast.For:
		c.compileFor(e)

	case *ast.IfElse:
		c.compileIfElse(e)

	case *ast.Function:
		c.compileFunction(e)
		c.emit(program.Instruction{Op: op.Literal, Value: model.Null})

	case *ast.Tag:
		c.compile(e.Node)
		c.emit(program.Instruction{Op: op.Tag, Str: e.Tag})

	case *ast.Attributes:
		c.compileAttributes(e)

	case *ast.Append:
		c.compile(e.Node)
		c.compile(e.Children)
		c.emit(program.Instruction{Op: op.Append, Int: 1})

	case *ast.Prepend:
		c.compile(e.Node)
		c.compile(e.Children)
		c.emit(program.Instruction{Op: op.Prepend})

	case *ast.Search:
		c.emit(program.Instruction{Op: op.Search, Query: e.Query})

	case *ast.Sequence:
		c.compileSequence(e)

	default:
		c.fail("compiler: unexpected expression %T", e)
	}
}

func (c *compiler) compileName(name string) {
	if depth := c.localDepth(name); depth >= 0 {
		c.emit(program.Instruction{Op: op.LocalLoad, Int: depth})
		return
	}
	c.emit(program.Instruction{Op: op.Name, Str: name})
}

func (c *compiler) compileUnary(expr ast.Expression, code op.Code) {
	c.compile(expr)
	c.emit(program.Instruction{Op: code})
}

func (c *compiler) compileBinary(left, right ast.Expression, code op.Code) {
	c.compile(left)
	c.compile(right)
	c.emit(program.Instruction{Op: code})
}

func (c *compiler) compileShortCircuit(left, right ast.Expression, branch op.Code) {
	end := c.newLabel()
	c.compile(left)
	c.emit(program.Instruction{Op: op.Dup})
	c.emit(program.Instruction{Op: branch, Label: end})
	c.emit(program.Instruction{Op: op.Drop, Int: 1})
	c.compile(right)
	c.placeLabel(end)
}

func (c *compiler) compileCall(e *ast.Call) {
	// A literal single pure callable with positional arguments only is
	// dispatched directly.
	if lit, ok := e.Function.(*ast.Literal); ok && len(e.Kwargs) == 0 && lit.Value.Len() == 1 {
		if _, ok := lit.Value.Objects()[0].(*model.Builtin); ok {
			for _, arg := range e.Args {
				c.compile(arg)
			}
			c.emit(program.Instruction{Op: op.CallFast, Value: lit.Value, Int: len(e.Args)})
			return
		}
	}
	for _, arg := range e.Args {
		c.compile(arg)
	}
	names := make([]string, len(e.Kwargs))
	for i, kw := range e.Kwargs {
		names[i] = kw.Name
		c.compile(kw.Expr)
	}
	c.compile(e.Function)
	c.emit(program.Instruction{Op: op.Call, Int: len(e.Args), Names: names})
}

// compileLetBindings emits the bindings and returns the number of locals
// pushed onto the compile-time stack.
func (c *compiler) compileLetBindings(bindings []ast.PolyBinding) int {
	count := 0
	for _, binding := range bindings {
		c.compile(binding.Expr)
		if len(binding.Names) == 1 {
			c.emit(program.Instruction{Op: op.LocalPush, Names: binding.Names})
		} else {
			for i, name := range binding.Names {
				c.emit(program.Instruction{Op: op.Dup})
				c.emit(program.Instruction{Op: op.IndexLiteral, Int: i})
				c.emit(program.Instruction{Op: op.LocalPush, Names: []string{name}})
			}
			c.emit(program.Instruction{Op: op.Drop, Int: 1})
		}
		c.lvars = append(c.lvars, binding.Names...)
		count += len(binding.Names)
	}
	return count
}

func (c *compiler) dropLocals(n int) {
	if n <= 0 {
		return
	}
	c.emit(program.Instruction{Op: op.LocalDrop, Int: n})
	c.lvars = c.lvars[:len(c.lvars)-n]
}

func (c *compiler) compileFor(e *ast.For) {
	start, end := c.newLabel(), c.newLabel()
	c.compile(e.Source)
	c.emit(program.Instruction{Op: op.BeginFor, Names: e.Names})
	c.lvars = append(c.lvars, e.Names...)
	c.placeLabel(start)
	c.emit(program.Instruction{Op: op.Next, Label: end})
	c.compile(e.Body)
	c.emit(program.Instruction{Op: op.Jump, Label: start})
	c.placeLabel(end)
	c.emit(program.Instruction{Op: op.EndForCompose})
	c.lvars = c.lvars[:len(c.lvars)-len(e.Names)]
}

func (c *compiler) compileIfElse(e *ast.IfElse) {
	end := c.newLabel()
	for _, test := range e.Tests {
		next := c.newLabel()
		c.compile(test.Condition)
		c.emit(program.Instruction{Op: op.BranchFalse, Label: next})
		c.compile(test.Then)
		c.emit(program.Instruction{Op: op.Jump, Label: end})
		c.placeLabel(next)
	}
	if e.Else != nil {
		c.compile(e.Else)
	} else {
		c.emit(program.Instruction{Op: op.Literal, Value: model.Null})
	}
	c.placeLabel(end)
}

// compileFunction emits the default vectors and a Func instruction carrying
// the separately-compiled body, then binds the function value as a local.
func (c *compiler) compileFunction(e *ast.Function) {
	params := make([]string, len(e.Parameters))
	for i, param := range e.Parameters {
		params[i] = param.Name
		c.compile(param.Expr)
	}

	body := &compiler{lvars: append([]string{}, params...), nextLabel: 0}
	body.compile(e.Body)
	if body.err != nil {
		c.fail("%s", body.err)
		return
	}
	c.emit(program.Instruction{
		Op: op.Func,
		Func: &program.FuncSpec{
			Name:       e.Name,
			Parameters: params,
			Body:       program.Build(body.instrs),
		},
	})
	c.emit(program.Instruction{Op: op.LocalPush, Names: []string{e.Name}})
	c.lvars = append(c.lvars, e.Name)
}

// compileAttributes applies attribute bindings to each node of the target
// vector in turn, making the node under construction available for name
// resolution while its attribute expressions evaluate.
func (c *compiler) compileAttributes(e *ast.Attributes) {
	start, end := c.newLabel(), c.newLabel()
	c.compile(e.Node)
	c.emit(program.Instruction{Op: op.BeginFor})
	c.placeLabel(start)
	c.emit(program.Instruction{Op: op.PushNext, Label: end})
	c.emit(program.Instruction{Op: op.SetNodeScope})
	for _, binding := range e.Bindings {
		c.compile(binding.Expr)
		c.emit(program.Instruction{Op: op.Attribute, Str: binding.Name})
	}
	c.emit(program.Instruction{Op: op.ClearNodeScope})
	c.emit(program.Instruction{Op: op.Jump, Label: start})
	c.placeLabel(end)
	c.emit(program.Instruction{Op: op.EndForCompose})
}

func (c *compiler) compileSequence(e *ast.Sequence) {
	values := 0
	locals := 0
	for _, expr := range e.Exprs {
		switch child := expr.(type) {
		case *ast.Let:
			locals += c.compileLetBindings(child.Bindings)
		case *ast.Import:
			locals += c.compileImport(child)
		case *ast.Function:
			c.compileFunction(child)
			locals++
		case *ast.StoreGlobal:
			for _, binding := range child.Bindings {
				c.compile(binding.Expr)
				c.emit(program.Instruction{Op: op.StoreGlobal, Str: binding.Name})
			}
		case *ast.Pragma:
			c.compile(child.Expr)
			c.emit(program.Instruction{Op: op.Pragma, Str: child.Name})
		default:
			c.compile(expr)
			values++
		}
	}
	c.emit(program.Instruction{Op: op.Compose, Int: values})
	c.dropLocals(locals)
}

// compileImport returns the number of locals the import binds.
func (c *compiler) compileImport(e *ast.Import) int {
	c.compile(e.Filename)
	c.emit(program.Instruction{Op: op.Import, Names: e.Names})
	c.lvars = append(c.lvars, e.Names...)
	return len(e.Names)
}
