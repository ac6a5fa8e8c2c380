// Package bytecode defines the compiled program representation executed
// by the virtual machine: a flat instruction stream, a constant pool, a
// function table, a global-variable descriptor table, and a line map
// for diagnostics (spec.md §4.4 / §4.6).
//
// Architecture:
//
// The instruction set is stack-based: operators pop their operands from
// the top of the stack and push their result, variable slots are
// addressed by small integer indices resolved at compile time, and
// calls are resolved through a call-site table that records the callee
// name and argument count rather than embedding them directly in the
// operand (keeping Instruction a fixed two-field record).
package bytecode

// Opcode identifies a single VM operation.
type Opcode byte

const (
	// Stack / literal push operations. Operand indexes the constant pool,
	// except PushNull which needs no operand.
	PushInt Opcode = iota
	PushFloat
	PushString
	PushNull
	Pop
	Dup

	// Local and global variable access. Operand is a local slot index or
	// an index into the global descriptor table, respectively.
	LoadLocal
	StoreLocal
	LoadGlobal
	StoreGlobal

	// Arithmetic. No operand; operate on the top one or two stack slots.
	Add
	Sub
	Mul
	Div
	Mod
	Neg

	// Comparison. No operand; push an Int 0/1 result.
	Eq
	Ne
	Lt
	Le
	Gt
	Ge

	// Logical. No operand.
	LogAnd
	LogOr
	LogNot

	// Bitwise. No operand.
	BitAnd
	BitOr
	BitXor
	BitNot
	Lshift
	Rshift

	// Control flow. Operand is an absolute instruction index.
	Jump
	JumpIfFalse
	JumpIfTrue

	// Calls and return. Call's operand indexes the call-site table
	// (name + arg count, per spec.md §4.6's "CALL {arg_count, name}").
	// CallMethod's operand is the argument count directly: the method
	// name and receiver are read off the stack at run time, since
	// method dispatch is inherently dynamic (spec.md §4.6 "the stack
	// layout is ... object method-name-string arg1 ... argN"). Return
	// takes no operand.
	Call
	CallMethod
	Return

	// Aggregate construction and access. MakeArray/MakeMapping operands
	// give the element/entry count to pop off the stack; Index/Store
	// operands are unused (index and collection come off the stack).
	MakeArray
	IndexArray
	StoreArray
	MakeMapping
	IndexMapping
	StoreMapping

	// Host interaction and termination.
	Print
	Halt
)

func (op Opcode) String() string {
	switch op {
	case PushInt:
		return "PUSH_INT"
	case PushFloat:
		return "PUSH_FLOAT"
	case PushString:
		return "PUSH_STRING"
	case PushNull:
		return "PUSH_NULL"
	case Pop:
		return "POP"
	case Dup:
		return "DUP"
	case LoadLocal:
		return "LOAD_LOCAL"
	case StoreLocal:
		return "STORE_LOCAL"
	case LoadGlobal:
		return "LOAD_GLOBAL"
	case StoreGlobal:
		return "STORE_GLOBAL"
	case Add:
		return "ADD"
	case Sub:
		return "SUB"
	case Mul:
		return "MUL"
	case Div:
		return "DIV"
	case Mod:
		return "MOD"
	case Neg:
		return "NEG"
	case Eq:
		return "EQ"
	case Ne:
		return "NE"
	case Lt:
		return "LT"
	case Le:
		return "LE"
	case Gt:
		return "GT"
	case Ge:
		return "GE"
	case LogAnd:
		return "AND"
	case LogOr:
		return "OR"
	case LogNot:
		return "NOT"
	case BitAnd:
		return "BIT_AND"
	case BitOr:
		return "BIT_OR"
	case BitXor:
		return "BIT_XOR"
	case BitNot:
		return "BIT_NOT"
	case Lshift:
		return "LSHIFT"
	case Rshift:
		return "RSHIFT"
	case Jump:
		return "JUMP"
	case JumpIfFalse:
		return "JUMP_IF_FALSE"
	case JumpIfTrue:
		return "JUMP_IF_TRUE"
	case Call:
		return "CALL"
	case CallMethod:
		return "CALL_METHOD"
	case Return:
		return "RETURN"
	case MakeArray:
		return "MAKE_ARRAY"
	case IndexArray:
		return "INDEX_ARRAY"
	case StoreArray:
		return "STORE_ARRAY"
	case MakeMapping:
		return "MAKE_MAPPING"
	case IndexMapping:
		return "INDEX_MAPPING"
	case StoreMapping:
		return "STORE_MAPPING"
	case Print:
		return "PRINT"
	case Halt:
		return "HALT"
	default:
		return "UNKNOWN"
	}
}

// Instruction is one decoded opcode/operand pair.
type Instruction struct {
	Op      Opcode
	Operand int32
}

// ConstKind tags the variant held by a Constant.
type ConstKind byte

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstString
)

// Constant is one entry in a Program's constant pool.
type Constant struct {
	Kind ConstKind
	I    int64
	F    float64
	S    string
}

// FunctionEntry describes one compiled function: its name (for
// CALL-by-name resolution and for call_other's method lookup), its
// parameter and local-slot counts, and the instruction index where its
// body begins.
type FunctionEntry struct {
	Name      string
	NumParams int
	NumLocals int
	EntryPC   int
}

// GlobalDescriptor names one global variable slot.
type GlobalDescriptor struct {
	Name     string
	TypeName string
}

// CallSite records the static shape of one call expression: the callee
// name as written in source (a function name, an efun name, or a
// method name reached via `.`) and the number of arguments pushed
// before the Call/CallMethod instruction executes. Resolution of the
// name to a function-table entry, an efun-registry entry, or a dynamic
// method on the receiving object happens at run time, per spec.md §4.6.
type CallSite struct {
	Name     string
	NumArgs  int
}

// LineEntry maps one instruction index to the source line that produced
// it. The map is sparse: it records only the instruction indices where
// the line changes from the previous entry, and lookups find the
// nearest preceding entry.
type LineEntry struct {
	PC   int
	Line int
}

// Program is a fully compiled compilation unit, ready for the loader
// (pkg/vm) to turn into VM-resident functions.
type Program struct {
	Filename  string
	Source    string
	Code      []Instruction
	Constants []Constant
	Functions []FunctionEntry
	Globals   []GlobalDescriptor
	CallSites []CallSite
	Lines     []LineEntry
	LastError string
}

// LineForPC returns the source line associated with pc, or 0 if the
// program carries no line information (e.g. a hand-built test program).
func (p *Program) LineForPC(pc int) int {
	line := 0
	for _, e := range p.Lines {
		if e.PC > pc {
			break
		}
		line = e.Line
	}
	return line
}

// FunctionByName returns the index of the function entry with the given
// name, or -1 if there is none.
func (p *Program) FunctionByName(name string) int {
	for i, f := range p.Functions {
		if f.Name == name {
			return i
		}
	}
	return -1
}
