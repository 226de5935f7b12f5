package program

import "github.com/jonathonfletcher/flitter/op"

// Link removes Label pseudo-instructions and resolves each jump's Offset to
// a signed displacement relative to the following instruction, so the VM
// advances with pc += offset after the fetch.
func Link(instructions []Instruction) []Instruction {
	addresses := make(map[int]int)
	out := make([]Instruction, 0, len(instructions))
	for _, instr := range instructions {
		if instr.Op == op.Label {
			addresses[instr.Label] = len(out)
			continue
		}
		out = append(out, instr)
	}
	for i := range out {
		if op.IsJump(out[i].Op) {
			target, ok := addresses[out[i].Label]
			if !ok {
				// An unresolved label is a compiler bug; make it loud.
				panic("program: unresolved label in instruction stream")
			}
			out[i].Offset = target - (i + 1)
		}
	}
	return out
}
