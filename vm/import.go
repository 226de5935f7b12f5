package vm

import (
	"fmt"

	"github.com/jonathonfletcher/flitter/model"
	"github.com/jonathonfletcher/flitter/program"
)

// execImport implements the Import instruction: the filename is popped,
// the loader supplies the compiled module, and the module runs in a child
// context sharing everything but variables. The requested names are then
// bound as locals in the caller. A failed load records an error and binds
// every requested name to null; a name the module does not define records
// an error and binds that name alone to null.
func (m *Machine) execImport(instr program.Instruction) {
	filename := m.pop().AsString()

	module := m.loadModule(filename)
	for _, name := range instr.Names {
		value := model.Null
		if module != nil {
			imported, ok := module.Variables[name]
			if !ok {
				m.ctx.AddError(fmt.Sprintf("Unable to import '%s' from '%s'", name, filename))
			} else {
				value = imported
			}
		}
		m.locals = append(m.locals, local{name: name, value: value})
	}
}

// loadModule runs the referenced module and returns its context, nil when
// the import failed.
func (m *Machine) loadModule(filename string) *model.Context {
	if m.loader == nil {
		m.ctx.AddError(fmt.Sprintf("Unable to import '%s': no source loader", filename))
		return nil
	}
	prog, err := m.loader.Load(filename, m.ctx.Path)
	if err != nil || prog == nil {
		m.ctx.AddError(fmt.Sprintf("Unable to import '%s'", filename))
		return nil
	}
	path := prog.Path()
	if m.ctx.Path == path || m.ctx.InImportChain(path) {
		m.ctx.AddError(fmt.Sprintf("Circular import of '%s'", filename))
		return nil
	}

	child := m.ctx.Child(path)
	// The module executes on its own stacks, asserted empty on both entry
	// and exit.
	sub := &Machine{
		stack:  make([]model.Vector, 0, initialStackSize),
		loader: m.loader,
		tracer: m.tracer,
		ctx:    child,
	}
	if err := sub.exec(prog); err != nil {
		m.ctx.AddError(fmt.Sprintf("Error importing '%s': %s", filename, err))
		return nil
	}
	if len(sub.stack) != 0 || len(sub.locals) != 0 {
		m.ctx.AddError(fmt.Sprintf("Error importing '%s': unbalanced module execution", filename))
		return nil
	}
	return child
}
