package program

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/jonathonfletcher/flitter/op"
)

var (
	addrColor    = color.New(color.FgHiBlack)
	opColor      = color.New(color.FgCyan)
	operandColor = color.New(color.FgYellow)
)

func writeListingLine(b *strings.Builder, index int, instr Instruction) {
	fmt.Fprintf(b, "%4d  %s\n", index, instr)
}

// Disassemble writes a listing of the program to w, colourised when w is a
// terminal. Nested function bodies are listed after the main stream.
func Disassemble(w io.Writer, p *Program) {
	colorize := false
	if f, ok := w.(*os.File); ok {
		colorize = isatty.IsTerminal(f.Fd())
	}
	disassemble(w, p, "", colorize)
}

func disassemble(w io.Writer, p *Program, prefix string, colorize bool) {
	var nested []*FuncSpec
	for i, instr := range p.Instructions {
		if instr.Op == op.Func {
			nested = append(nested, instr.Func)
		}
		if colorize {
			addrColor.Fprintf(w, "%s%4d  ", prefix, i)
			opColor.Fprint(w, op.GetInfo(instr.Op).Name)
			if operand := operandText(instr); operand != "" {
				operandColor.Fprint(w, " "+operand)
			}
			fmt.Fprintln(w)
		} else {
			fmt.Fprintf(w, "%s%4d  %s\n", prefix, i, instr)
		}
	}
	for _, spec := range nested {
		fmt.Fprintf(w, "%sfunc %s(%s):\n", prefix, spec.Name, strings.Join(spec.Parameters, ", "))
		disassemble(w, spec.Body, prefix+"  ", colorize)
	}
}

func operandText(instr Instruction) string {
	full := instr.String()
	name := op.GetInfo(instr.Op).Name
	if len(full) > len(name) {
		return full[len(name)+1:]
	}
	return ""
}
