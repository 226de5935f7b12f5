// Package op defines the opcodes shared by the Flitter compiler and
// virtual machine.
package op

// Code identifies an operation to execute.
type Code uint16

const (
	Invalid Code = 0

	// Stack and literals
	Literal     Code = 1
	LiteralNode Code = 2
	Dup         Code = 3
	Drop        Code = 4
	Compose     Code = 5

	// Names and locals
	Name        Code = 10
	LocalLoad   Code = 11
	LocalPush   Code = 12
	LocalDrop   Code = 13
	StoreGlobal Code = 14

	// State
	Lookup        Code = 20
	LookupLiteral Code = 21

	// Maths
	Range    Code = 30
	Add      Code = 31
	Sub      Code = 32
	Mul      Code = 33
	MulAdd   Code = 34
	TrueDiv  Code = 35
	FloorDiv Code = 36
	Mod      Code = 37
	Pow      Code = 38
	Neg      Code = 39
	Pos      Code = 40
	Ceil     Code = 41
	Floor    Code = 42
	Fract    Code = 43

	// Comparison and logic
	Eq  Code = 50
	Ne  Code = 51
	Lt  Code = 52
	Le  Code = 53
	Gt  Code = 54
	Ge  Code = 55
	Not Code = 56
	Xor Code = 57

	// Indexing
	Slice        Code = 60
	SliceLiteral Code = 61
	IndexLiteral Code = 62

	// Calls and functions
	Call     Code = 70
	CallFast Code = 71
	Func     Code = 72

	// Nodes and the graph
	Tag            Code = 80
	Attribute      Code = 81
	Append         Code = 82
	Prepend        Code = 83
	AppendRoot     Code = 84
	SetNodeScope   Code = 85
	ClearNodeScope Code = 86
	Search         Code = 87

	// Loops
	BeginFor      Code = 90
	Next          Code = 91
	PushNext      Code = 92
	EndForCompose Code = 93

	// Control flow
	Jump        Code = 100
	BranchTrue  Code = 101
	BranchFalse Code = 102
	Label       Code = 103 // pseudo-instruction, removed by the linker

	// Host interface
	Import Code = 110
	Pragma Code = 111
)

// Payload describes the operand variant an opcode carries.
type Payload uint8

const (
	PayloadNone Payload = iota
	PayloadInt
	PayloadStr
	PayloadNames
	PayloadValue
	PayloadQuery
	PayloadLabel
	PayloadIntNames // integer + name tuple (Call)
	PayloadValueInt // vector + integer (CallFast)
	PayloadFunc     // name + params + nested program (Func)
)

// Info describes an opcode for the disassembler and the linker.
type Info struct {
	Code    Code
	Name    string
	Payload Payload
}

var infos = make([]Info, 128)

func init() {
	ops := []Info{
		{Literal, "LITERAL", PayloadValue},
		{LiteralNode, "LITERAL_NODE", PayloadValue},
		{Dup, "DUP", PayloadNone},
		{Drop, "DROP", PayloadInt},
		{Compose, "COMPOSE", PayloadInt},
		{Name, "NAME", PayloadStr},
		{LocalLoad, "LOCAL_LOAD", PayloadInt},
		{LocalPush, "LOCAL_PUSH", PayloadNames},
		{LocalDrop, "LOCAL_DROP", PayloadInt},
		{StoreGlobal, "STORE_GLOBAL", PayloadStr},
		{Lookup, "LOOKUP", PayloadNone},
		{LookupLiteral, "LOOKUP_LITERAL", PayloadValue},
		{Range, "RANGE", PayloadNone},
		{Add, "ADD", PayloadNone},
		{Sub, "SUB", PayloadNone},
		{Mul, "MUL", PayloadNone},
		{MulAdd, "MUL_ADD", PayloadNone},
		{TrueDiv, "TRUE_DIV", PayloadNone},
		{FloorDiv, "FLOOR_DIV", PayloadNone},
		{Mod, "MOD", PayloadNone},
		{Pow, "POW", PayloadNone},
		{Neg, "NEG", PayloadNone},
		{Pos, "POS", PayloadNone},
		{Ceil, "CEIL", PayloadNone},
		{Floor, "FLOOR", PayloadNone},
		{Fract, "FRACT", PayloadNone},
		{Eq, "EQ", PayloadNone},
		{Ne, "NE", PayloadNone},
		{Lt, "LT", PayloadNone},
		{Le, "LE", PayloadNone},
		{Gt, "GT", PayloadNone},
		{Ge, "GE", PayloadNone},
		{Not, "NOT", PayloadNone},
		{Xor, "XOR", PayloadNone},
		{Slice, "SLICE", PayloadNone},
		{SliceLiteral, "SLICE_LITERAL", PayloadValue},
		{IndexLiteral, "INDEX_LITERAL", PayloadInt},
		{Call, "CALL", PayloadIntNames},
		{CallFast, "CALL_FAST", PayloadValueInt},
		{Func, "FUNC", PayloadFunc},
		{Tag, "TAG", PayloadStr},
		{Attribute, "ATTRIBUTE", PayloadStr},
		{Append, "APPEND", PayloadInt},
		{Prepend, "PREPEND", PayloadNone},
		{AppendRoot, "APPEND_ROOT", PayloadNone},
		{SetNodeScope, "SET_NODE_SCOPE", PayloadNone},
		{ClearNodeScope, "CLEAR_NODE_SCOPE", PayloadNone},
		{Search, "SEARCH", PayloadQuery},
		{BeginFor, "BEGIN_FOR", PayloadNames},
		{Next, "NEXT", PayloadLabel},
		{PushNext, "PUSH_NEXT", PayloadLabel},
		{EndForCompose, "END_FOR_COMPOSE", PayloadNone},
		{Jump, "JUMP", PayloadLabel},
		{BranchTrue, "BRANCH_TRUE", PayloadLabel},
		{BranchFalse, "BRANCH_FALSE", PayloadLabel},
		{Label, "LABEL", PayloadLabel},
		{Import, "IMPORT", PayloadNames},
		{Pragma, "PRAGMA", PayloadStr},
	}
	for _, info := range ops {
		infos[info.Code] = info
	}
}

// GetInfo returns the description of an opcode.
func GetInfo(code Code) Info {
	if int(code) < len(infos) {
		return infos[code]
	}
	return Info{}
}

// IsJump reports whether the opcode transfers control via a label offset.
func IsJump(code Code) bool {
	switch code {
	case Jump, BranchTrue, BranchFalse, Next, PushNext:
		return true
	}
	return false
}
