// Package program defines the linear instruction form produced by the
// compiler and executed by the virtual machine, along with the peephole
// optimiser and the label linker that run between the two.
package program

import (
	"fmt"
	"strings"

	"github.com/jonathonfletcher/flitter/model"
	"github.com/jonathonfletcher/flitter/op"
)

// Instruction is one operation plus its payload. Which fields are
// meaningful depends on the opcode's payload kind; unused fields stay zero.
type Instruction struct {
	Op     op.Code
	Int    int          // counts, depths, literal indexes
	Str    string       // names for Name/Tag/Attribute/StoreGlobal/Pragma
	Names  []string     // name tuples for LocalPush/BeginFor/Import/Call
	Value  model.Vector // literal payloads, CallFast callables
	Query  *model.Query // Search predicate
	Func   *FuncSpec    // Func payload
	Label  int          // label id for jumps and Label pseudo-instructions
	Offset int          // linked relative jump offset
}

// FuncSpec is the compile-time description of a function literal: its name,
// parameter names, and compiled body.
type FuncSpec struct {
	Name       string
	Parameters []string
	Body       *Program
}

func (i Instruction) String() string {
	info := op.GetInfo(i.Op)
	switch info.Payload {
	case op.PayloadNone:
		return info.Name
	case op.PayloadInt:
		return fmt.Sprintf("%s %d", info.Name, i.Int)
	case op.PayloadStr:
		return fmt.Sprintf("%s %q", info.Name, i.Str)
	case op.PayloadNames:
		return fmt.Sprintf("%s (%s)", info.Name, strings.Join(i.Names, " "))
	case op.PayloadValue:
		return fmt.Sprintf("%s %s", info.Name, i.Value.Repr())
	case op.PayloadQuery:
		return fmt.Sprintf("%s %s", info.Name, i.Query)
	case op.PayloadLabel:
		if i.Op == op.Label {
			return fmt.Sprintf("%s .L%d", info.Name, i.Label)
		}
		return fmt.Sprintf("%s .L%d (%+d)", info.Name, i.Label, i.Offset)
	case op.PayloadIntNames:
		if len(i.Names) > 0 {
			return fmt.Sprintf("%s %d (%s)", info.Name, i.Int, strings.Join(i.Names, " "))
		}
		return fmt.Sprintf("%s %d", info.Name, i.Int)
	case op.PayloadValueInt:
		return fmt.Sprintf("%s %s %d", info.Name, i.Value.Repr(), i.Int)
	case op.PayloadFunc:
		return fmt.Sprintf("%s %s(%s)", info.Name, i.Func.Name, strings.Join(i.Func.Parameters, " "))
	}
	return info.Name
}
