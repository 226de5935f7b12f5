// Package vm provides the stack virtual machine that executes compiled
// Flitter programs. One Machine executes one program at a time against a
// per-run Context; independent Machines may run concurrently.
package vm

import (
	"fmt"
	"strings"

	"github.com/jonathonfletcher/flitter/builtins"
	"github.com/jonathonfletcher/flitter/model"
	"github.com/jonathonfletcher/flitter/op"
	"github.com/jonathonfletcher/flitter/program"
)

const initialStackSize = 256

// SourceLoader supplies compiled programs for import statements. Load must
// be idempotent for the same (filename, currentPath) key; the loader owns
// caching and file IO.
type SourceLoader interface {
	Load(filename, currentPath string) (*program.Program, error)
}

// Machine executes programs. The zero value is not usable; call New.
type Machine struct {
	stack  []model.Vector
	locals []local
	loops  []loopFrame
	scopes []*model.Node
	ctx    *model.Context
	loader SourceLoader
	tracer Tracer
}

type local struct {
	name  string
	value model.Vector
}

// loopFrame is one active for-loop: its source vector, the read position,
// the number of locals it binds, and the number of values its body has
// produced so far.
type loopFrame struct {
	source model.Vector
	pos    int
	names  int
	count  int
}

// New returns a Machine configured with the given options.
func New(options ...Option) *Machine {
	m := &Machine{stack: make([]model.Vector, 0, initialStackSize)}
	for _, option := range options {
		option(m)
	}
	return m
}

// Run executes one frame of the given program: a fresh Context is
// constructed around state and the seed variables, the program runs to
// completion, and the context is returned with the produced graph,
// globals, pragmas, errors and logs.
//
// Recoverable failures (unbound names, failed imports, host call errors)
// are recorded in the context and the run continues. The returned error is
// non-nil only for internal errors, which abort the run.
func (m *Machine) Run(p *program.Program, state *model.StateDict, variables map[string]model.Vector) (*model.Context, error) {
	ctx := model.NewContext(state)
	ctx.Path = p.Path()
	for name, value := range variables {
		ctx.Variables[name] = value
	}
	m.stack = m.stack[:0]
	m.locals = m.locals[:0]
	m.loops = m.loops[:0]
	m.scopes = m.scopes[:0]
	m.ctx = ctx
	if err := m.exec(p); err != nil {
		return ctx, err
	}
	if len(m.stack) != 0 || len(m.locals) != 0 || len(m.loops) != 0 {
		return ctx, fmt.Errorf("vm: unbalanced run: %d values, %d locals and %d loops left",
			len(m.stack), len(m.locals), len(m.loops))
	}
	return ctx, nil
}

// Run executes a program on a new Machine. See Machine.Run.
func Run(p *program.Program, state *model.StateDict, variables map[string]model.Vector) (*model.Context, error) {
	return New().Run(p, state, variables)
}

func (m *Machine) push(v model.Vector) {
	m.stack = append(m.stack, v)
}

func (m *Machine) pop() model.Vector {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *Machine) peek() model.Vector {
	return m.stack[len(m.stack)-1]
}

// popN removes the top n values, returned in push order.
func (m *Machine) popN(n int) []model.Vector {
	if n == 0 {
		return nil
	}
	values := make([]model.Vector, n)
	copy(values, m.stack[len(m.stack)-n:])
	m.stack = m.stack[:len(m.stack)-n]
	return values
}

func (m *Machine) exec(p *program.Program) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vm: panic: %v", r)
		}
	}()
	instrs := p.Instructions
	for pc := 0; pc < len(instrs); pc++ {
		instr := instrs[pc]
		if m.tracer != nil {
			m.tracer.OnStep(pc, instr, len(m.stack))
		}
		switch instr.Op {

		case op.Literal:
			m.push(instr.Value)

		case op.LiteralNode:
			m.push(instr.Value.CopyAllNodes())

		case op.Dup:
			m.push(m.peek())

		case op.Drop:
			m.stack = m.stack[:len(m.stack)-instr.Int]

		case op.Compose:
			m.push(model.Compose(m.popN(instr.Int)))

		case op.Name:
			m.push(m.resolveName(instr.Str))

		case op.LocalLoad:
			m.push(m.locals[len(m.locals)-1-instr.Int].value.CopyNodes())

		case op.LocalPush:
			values := m.popN(len(instr.Names))
			for i, name := range instr.Names {
				m.locals = append(m.locals, local{name: name, value: values[i]})
			}

		case op.LocalDrop:
			m.locals = m.locals[:len(m.locals)-instr.Int]

		case op.StoreGlobal:
			m.ctx.Variables[instr.Str] = m.pop()

		case op.Lookup:
			m.push(m.ctx.State.Get(m.pop()))

		case op.LookupLiteral:
			m.push(m.ctx.State.Get(instr.Value))

		case op.Range:
			step := m.pop()
			stop := m.pop()
			start := m.pop()
			m.push(model.Range(start, stop, step))

		case op.Add:
			right := m.pop()
			m.push(m.pop().Add(right))

		case op.Sub:
			right := m.pop()
			m.push(m.pop().Sub(right))

		case op.Mul:
			right := m.pop()
			m.push(m.pop().Mul(right))

		case op.MulAdd:
			multiplier := m.pop()
			multiplicand := m.pop()
			addend := m.pop()
			m.push(multiplicand.MulAdd(multiplier, addend))

		case op.TrueDiv:
			right := m.pop()
			m.push(m.pop().TrueDiv(right))

		case op.FloorDiv:
			right := m.pop()
			m.push(m.pop().FloorDiv(right))

		case op.Mod:
			right := m.pop()
			m.push(m.pop().Mod(right))

		case op.Pow:
			right := m.pop()
			m.push(m.pop().Pow(right))

		case op.Neg:
			m.push(m.pop().Neg())

		case op.Pos:
			m.push(m.pop().Pos())

		case op.Ceil:
			m.push(m.pop().Ceil())

		case op.Floor:
			m.push(m.pop().Floor())

		case op.Fract:
			m.push(m.pop().Fract())

		case op.Not:
			m.push(m.pop().Not())

		case op.Eq:
			right := m.pop()
			m.push(model.NewBool(m.pop().Equal(right)))

		case op.Ne:
			right := m.pop()
			m.push(model.NewBool(!m.pop().Equal(right)))

		case op.Lt:
			right := m.pop()
			c, ok := m.pop().Compare(right)
			m.push(model.NewBool(ok && c < 0))

		case op.Le:
			right := m.pop()
			c, ok := m.pop().Compare(right)
			m.push(model.NewBool(ok && c <= 0))

		case op.Gt:
			right := m.pop()
			c, ok := m.pop().Compare(right)
			m.push(model.NewBool(ok && c > 0))

		case op.Ge:
			right := m.pop()
			c, ok := m.pop().Compare(right)
			m.push(model.NewBool(ok && c >= 0))

		case op.Xor:
			right := m.pop()
			m.push(m.pop().Xor(right))

		case op.Slice:
			index := m.pop()
			m.push(m.pop().Slice(index))

		case op.SliceLiteral:
			m.push(m.pop().Slice(instr.Value))

		case op.IndexLiteral:
			m.push(m.pop().Item(instr.Int))

		case op.Call:
			if err := m.execCall(instr); err != nil {
				return m.internalError(p, pc, err)
			}

		case op.CallFast:
			args := m.popN(instr.Int)
			builtin := instr.Value.Objects()[0].(*model.Builtin)
			result, err := builtin.Fn(args)
			if err != nil {
				m.ctx.AddError(fmt.Sprintf("Error calling %s: %s", builtin.Name, err))
				result = model.Null
			}
			m.push(result)

		case op.Func:
			spec := instr.Func
			defaults := m.popN(len(spec.Parameters))
			captured := make([]local, len(m.locals))
			copy(captured, m.locals)
			m.push(model.NewObjects([]model.Object{&Function{
				Name:       spec.Name,
				Parameters: spec.Parameters,
				Defaults:   defaults,
				Program:    spec.Body,
				Captured:   captured,
				Path:       m.ctx.Path,
			}}))

		case op.Tag:
			for _, obj := range m.peek().Objects() {
				if node, ok := obj.(*model.Node); ok {
					node.AddTag(instr.Str)
				}
			}

		case op.Attribute:
			value := m.pop()
			for _, obj := range m.peek().Objects() {
				if node, ok := obj.(*model.Node); ok {
					node.SetAttribute(instr.Str, value)
				}
			}

		case op.Append:
			children := model.Compose(m.popN(instr.Int))
			m.appendNodes(m.pop(), children, false)

		case op.Prepend:
			children := m.pop()
			m.appendNodes(m.pop(), children, true)

		case op.AppendRoot:
			for _, obj := range m.pop().Objects() {
				if node, ok := obj.(*model.Node); ok {
					m.ctx.Graph.AppendIfUnattached(node)
				}
			}

		case op.SetNodeScope:
			m.scopes = append(m.scopes, lastNode(m.peek()))

		case op.ClearNodeScope:
			m.scopes = m.scopes[:len(m.scopes)-1]

		case op.Search:
			matched := m.ctx.Graph.Select(instr.Query)
			m.push(model.NewNodeVector(matched...))

		case op.BeginFor:
			m.loops = append(m.loops, loopFrame{source: m.pop(), names: len(instr.Names)})
			for _, name := range instr.Names {
				m.locals = append(m.locals, local{name: name, value: model.Null})
			}

		case op.Next:
			frame := &m.loops[len(m.loops)-1]
			if frame.pos >= frame.source.Len() {
				pc += instr.Offset
				continue
			}
			base := len(m.locals) - frame.names
			for j := 0; j < frame.names; j++ {
				if frame.pos < frame.source.Len() {
					m.locals[base+j].value = frame.source.Item(frame.pos)
				} else {
					m.locals[base+j].value = model.Null
				}
				frame.pos++
			}
			frame.count++

		case op.PushNext:
			frame := &m.loops[len(m.loops)-1]
			if frame.pos >= frame.source.Len() {
				pc += instr.Offset
				continue
			}
			m.push(frame.source.Item(frame.pos))
			frame.pos++
			frame.count++

		case op.EndForCompose:
			frame := m.loops[len(m.loops)-1]
			m.loops = m.loops[:len(m.loops)-1]
			m.push(model.Compose(m.popN(frame.count)))
			if frame.names > 0 {
				m.locals = m.locals[:len(m.locals)-frame.names]
			}

		case op.Jump:
			pc += instr.Offset

		case op.BranchTrue:
			if m.pop().Truthy() {
				pc += instr.Offset
			}

		case op.BranchFalse:
			if !m.pop().Truthy() {
				pc += instr.Offset
			}

		case op.Import:
			m.execImport(instr)

		case op.Pragma:
			m.ctx.Pragmas[instr.Str] = m.pop()

		default:
			return m.internalError(p, pc, fmt.Errorf("invalid opcode %d", instr.Op))
		}
		if pc < -1 || pc >= len(instrs) {
			return m.internalError(p, pc, fmt.Errorf("jump out of program bounds"))
		}
	}
	return nil
}

// resolveName implements the name resolution order: locals, program
// globals, static builtins, dynamic builtins, then the node scope. An
// unresolved name records an error and yields null.
func (m *Machine) resolveName(name string) model.Vector {
	for i := len(m.locals) - 1; i >= 0; i-- {
		if m.locals[i].name == name {
			return m.locals[i].value.CopyNodes()
		}
	}
	if v, ok := m.ctx.Variables[name]; ok {
		return v.CopyNodes()
	}
	if v, ok := builtins.Static[name]; ok {
		return v
	}
	if v, ok := builtins.Dynamic[name]; ok {
		return v
	}
	if len(m.scopes) > 0 {
		if scope := m.scopes[len(m.scopes)-1]; scope != nil && scope.HasAttribute(name) {
			return scope.Attribute(name)
		}
	}
	m.ctx.AddError(fmt.Sprintf("Unbound name '%s'", name))
	return model.Null
}

func lastNode(v model.Vector) *model.Node {
	objs := v.Objects()
	for i := len(objs) - 1; i >= 0; i-- {
		if node, ok := objs[i].(*model.Node); ok {
			return node
		}
	}
	return nil
}

// appendNodes attaches the children to every node of the parents vector.
// All but the last parent receive copies; the last retains the original
// children (which are themselves copied if already attached elsewhere).
func (m *Machine) appendNodes(parents, children model.Vector, prepend bool) {
	nodes := make([]*model.Node, 0, parents.Len())
	for _, obj := range parents.Objects() {
		if node, ok := obj.(*model.Node); ok {
			nodes = append(nodes, node)
		}
	}
	for i, parent := range nodes {
		last := i == len(nodes)-1
		childObjs := children.Objects()
		if prepend {
			for j := len(childObjs) - 1; j >= 0; j-- {
				if child, ok := childObjs[j].(*model.Node); ok {
					if !last {
						child = child.Copy()
					}
					parent.Insert(child)
				}
			}
		} else {
			for _, obj := range childObjs {
				if child, ok := obj.(*model.Node); ok {
					if !last {
						child = child.Copy()
					}
					parent.Append(child)
				}
			}
		}
	}
	m.push(parents)
}

// internalError aborts the run, reporting the failing instruction within a
// listing of the five instructions centred on it.
func (m *Machine) internalError(p *program.Program, pc int, cause error) error {
	var b strings.Builder
	fmt.Fprintf(&b, "vm: internal error at %d: %s\n", pc, cause)
	lo, hi := pc-2, pc+3
	if lo < 0 {
		lo = 0
	}
	if hi > len(p.Instructions) {
		hi = len(p.Instructions)
	}
	for i := lo; i < hi; i++ {
		marker := "  "
		if i == pc {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%4d  %s\n", marker, i, p.Instructions[i])
	}
	return fmt.Errorf("%s", b.String())
}
