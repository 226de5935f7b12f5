package program

import "github.com/jonathonfletcher/flitter/op"

// Optimize applies peephole rewrites to raw compiler output:
//
//   - Compose(n); Compose(m)  →  Compose(n+m-1)
//   - Compose(n); Append(m)   →  Append(n+m-1)
//   - Mul; Add                →  MulAdd
//   - Literal(null); Append / AppendRoot  →  (removed)
//   - Compose(1)              →  (removed)
//
// Rewrites never cross a Label, since a jump could land between the fused
// instructions. The input slice is not modified.
func Optimize(instructions []Instruction) []Instruction {
	out := make([]Instruction, 0, len(instructions))
	for _, instr := range instructions {
		if last := len(out) - 1; last >= 0 && out[last].Op != op.Label {
			prev := out[last]
			switch {
			case prev.Op == op.Compose && instr.Op == op.Compose:
				out[last].Int = prev.Int + instr.Int - 1
				continue
			case prev.Op == op.Compose && instr.Op == op.Append:
				out[last] = Instruction{Op: op.Append, Int: prev.Int + instr.Int - 1}
				continue
			case prev.Op == op.Mul && instr.Op == op.Add:
				out[last] = Instruction{Op: op.MulAdd}
				continue
			case prev.Op == op.Literal && prev.Value.IsNull() &&
				((instr.Op == op.Append && instr.Int == 1) || instr.Op == op.AppendRoot):
				out = out[:last]
				continue
			}
		}
		if instr.Op == op.Compose && instr.Int == 1 {
			continue
		}
		out = append(out, instr)
	}
	return out
}
