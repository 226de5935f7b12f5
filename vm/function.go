package vm

import (
	"fmt"

	"github.com/jonathonfletcher/flitter/model"
	"github.com/jonathonfletcher/flitter/program"
)

// Function is a first-class callable: a compiled body, the parameter names
// and default values, and a by-value snapshot of the locals visible at the
// definition site. Pushing the snapshot under the parameters at call time
// lets the body resolve captured names without tying the function's
// lifetime to its defining scope.
type Function struct {
	Name       string
	Parameters []string
	Defaults   []model.Vector
	Program    *program.Program
	Captured   []local
	Path       string
}

func (f *Function) String() string {
	return f.Name
}

// execCall implements the Call instruction: the callable vector is popped,
// then the keyword values, then the positional arguments. Every callable
// element is invoked in order with the same arguments and the results are
// composed; non-callable elements are silently skipped.
func (m *Machine) execCall(instr program.Instruction) error {
	callable := m.pop()
	kwargs := make(map[string]model.Vector, len(instr.Names))
	for i := len(instr.Names) - 1; i >= 0; i-- {
		kwargs[instr.Names[i]] = m.pop()
	}
	args := m.popN(instr.Int)

	var results []model.Vector
	for _, obj := range callable.Objects() {
		switch f := obj.(type) {
		case *Function:
			result, err := m.callFunction(f, args, kwargs)
			if err != nil {
				return err
			}
			results = append(results, result)
		case *model.Builtin:
			result, err := f.Call(args, kwargs)
			if err != nil {
				m.ctx.AddError(fmt.Sprintf("Error calling %s: %s", f.Name, err))
				result = model.Null
			}
			results = append(results, result)
		case *model.ContextBuiltin:
			result, err := safeContextCall(f, m.ctx, kwargs, args)
			if err != nil {
				m.ctx.AddError(fmt.Sprintf("Error calling %s: %s", f.Name, err))
				result = model.Null
			}
			results = append(results, result)
		}
	}
	m.push(model.Compose(results))
	return nil
}

// safeContextCall shields the VM from panicking host functions; a panic is
// reported as an ordinary call error.
func safeContextCall(f *model.ContextBuiltin, ctx *model.Context, kwargs map[string]model.Vector, args []model.Vector) (result model.Vector, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = model.Null
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f.Fn(ctx, kwargs, args)
}

// callFunction binds arguments over the function's captured locals, runs
// the body program, and asserts the compile-time stack contract: exactly
// one result value and no leaked locals.
func (m *Machine) callFunction(f *Function, args []model.Vector, kwargs map[string]model.Vector) (model.Vector, error) {
	stackBefore := len(m.stack)
	localsBefore := len(m.locals)

	m.locals = append(m.locals, f.Captured...)
	for i, param := range f.Parameters {
		value := model.Null
		if i < len(f.Defaults) {
			value = f.Defaults[i]
		}
		if i < len(args) {
			value = args[i]
		}
		if kw, ok := kwargs[param]; ok {
			value = kw
		}
		m.locals = append(m.locals, local{name: param, value: value})
	}

	if err := m.exec(f.Program); err != nil {
		return model.Null, err
	}

	if len(m.stack) != stackBefore+1 {
		return model.Null, fmt.Errorf("vm: function %s returned %d values", f.Name, len(m.stack)-stackBefore)
	}
	if len(m.locals) != localsBefore+len(f.Captured)+len(f.Parameters) {
		return model.Null, fmt.Errorf("vm: function %s leaked locals", f.Name)
	}
	result := m.pop()
	m.locals = m.locals[:localsBefore]
	return result, nil
}
