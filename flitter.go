// Package flitter is the language engine of the Flitter live-coding
// system: a partial evaluator, compiler and stack virtual machine for the
// declarative per-frame scene language.
//
// The textual parser is an external collaborator; hosts hand the engine a
// parsed ast.Top and receive a model.Context holding the scene graph,
// global bindings, pragmas, errors and logs for the frame:
//
//	prog, err := flitter.Compile(top, nil)
//	ctx, err := flitter.Run(prog, state, nil)
//	render(ctx.Graph)
package flitter

import (
	"github.com/jonathonfletcher/flitter/ast"
	"github.com/jonathonfletcher/flitter/compiler"
	"github.com/jonathonfletcher/flitter/model"
	"github.com/jonathonfletcher/flitter/program"
	"github.com/jonathonfletcher/flitter/vm"
)

// Compile simplifies a program root and lowers it to an executable
// Program. Errors reported by simplification (such as unbound names) are
// discarded: an unbound name is compiled as a null literal and records no
// error in the run context.
func Compile(top *ast.Top, opts *ast.SimplifyOptions) (*program.Program, error) {
	simplified, _ := ast.Simplify(top, opts)
	return compiler.Compile(simplified.(*ast.Top))
}

// Run executes one frame of a compiled program against the given state and
// seed variables.
func Run(p *program.Program, state *model.StateDict, variables map[string]model.Vector) (*model.Context, error) {
	return vm.Run(p, state, variables)
}
