package program

import "strings"

// Program is an optimised, linked instruction sequence ready for the
// virtual machine. It is immutable after linking; the VM holds its own
// stacks, so a single Program may be executed concurrently by independent
// machines.
type Program struct {
	Instructions []Instruction
	path         string
	top          any // simplified AST root, kept for diagnostics and re-use
}

// New wraps raw instructions in a Program without optimising or linking.
// Most callers want Build.
func New(instructions []Instruction) *Program {
	return &Program{Instructions: instructions}
}

// Build optimises and links raw compiler output into an executable Program.
func Build(instructions []Instruction) *Program {
	return &Program{Instructions: Link(Optimize(instructions))}
}

// Path returns the source identity the program was loaded from.
func (p *Program) Path() string {
	return p.path
}

// SetPath records the source identity used for import resolution and
// diagnostics.
func (p *Program) SetPath(path string) {
	p.path = path
}

// Top returns the simplified AST root the program was compiled from, nil if
// not recorded.
func (p *Program) Top() any {
	return p.top
}

// SetTop records the simplified AST root.
func (p *Program) SetTop(top any) {
	p.top = top
}

// String returns a plain-text listing of the instructions.
func (p *Program) String() string {
	var b strings.Builder
	for i, instr := range p.Instructions {
		writeListingLine(&b, i, instr)
	}
	return b.String()
}
