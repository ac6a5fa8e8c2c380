// Package vm implements the stack-based virtual machine that executes
// compiled bytecode.Programs: the operand stack, call frames, the
// global-variable vector, the efun registry, and object-method
// dispatch (spec.md §4.6 / §4.7).
//
// The VM is single-threaded and cooperative (spec.md §5): a script
// runs to completion (or to a runtime error) before control returns to
// the caller. Nested user-function and method calls recurse through
// Go's own call stack rather than an explicit frame-stepping loop,
// which keeps the dispatch code straightforward; what the spec calls
// "iterative, not unwinding arbitrary C-stack state" is preserved at
// the level that matters here — a runtime error never leaves the VM's
// own bookkeeping (stack, frames, globals) in a half-updated state,
// it just returns an error value up the Go call chain like any other
// Go function.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/Thurtea/amlp-driver/pkg/bytecode"
	"github.com/Thurtea/amlp-driver/pkg/value"
)

// EfunFunc is a native function registered in the efun registry. args
// is already arity-checked by the caller against the entry's
// min/max bounds.
type EfunFunc func(vm *VM, args []value.Value) (value.Value, *RuntimeError)

// EfunEntry is one efun registry record (spec.md §4.8).
type EfunEntry struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 means unbounded
	Fn      EfunFunc
}

// MethodResolver is implemented by object.Object (or any other value
// that can stand behind a value.Object) to support CALL_METHOD and the
// call_other/tell_object efuns without pkg/vm importing pkg/object
// directly. ResolveMethod walks the implementer's prototype chain and
// reports the function table index, declared parameter count, and the
// Program that owns that function table entry.
type MethodResolver interface {
	value.ObjectRef
	ResolveMethod(name string) (funcIndex int, numParams int, prog *bytecode.Program, found bool)
}

// CallFrame is one activation record: either the top-level frame for a
// Program's global-initializer code (FunctionName == "") or a user
// function's frame allocated by CallFunction.
type CallFrame struct {
	FunctionName string
	Program      *bytecode.Program
	Locals       []value.Value
	IP           int
	StackBase    int
}

// VM is the runtime state shared by every script running in one
// session or object graph: the operand stack, the global-variable
// vector, the registered programs, the efun registry, and the
// instrumentation hooks.
type VM struct {
	stack      []value.Value
	frames     []*CallFrame
	globals    []value.Value
	programs   []*bytecode.Program
	efuns      []EfunEntry
	arena      *value.Arena
	debugger   *Debugger
	diagOut    io.Writer
	errorCount int64
	running    bool
}

// New creates a VM with an empty stack, no globals, and a disabled
// debugger writing diagnostics to os.Stderr.
func New() *VM {
	vm := &VM{
		arena:   value.NewArena(),
		diagOut: os.Stderr,
	}
	vm.debugger = NewDebugger(vm)
	return vm
}

// Debugger returns the VM's tracing/profiling instrumentation.
func (vm *VM) Debugger() *Debugger { return vm.debugger }

// Arena returns the VM's aggregate arena, for efuns that build arrays
// or mappings directly (e.g. explode/get_dir).
func (vm *VM) Arena() *value.Arena { return vm.arena }

// SetDiagOutput redirects non-fatal diagnostics (efun arity errors,
// unresolved method lookups) that are not tied to a DebugFlags trace.
func (vm *VM) SetDiagOutput(w io.Writer) { vm.diagOut = w }

// Diagnostic writes a non-fatal message to the VM's diagnostic stream.
// Efuns use this for the "otherwise returns Null with a diagnostic"
// convention of spec.md §4.8, rather than failing the call outright.
func (vm *VM) Diagnostic(format string, args ...interface{}) {
	fmt.Fprintf(vm.diagOut, format+"\n", args...)
}

// ErrorCount reports how many runtime errors the VM has raised since
// creation.
func (vm *VM) ErrorCount() int64 { return vm.errorCount }

// Running reports whether a script is currently executing somewhere on
// the Go call stack underneath this call (used by this_player-style
// efuns to detect reentrancy).
func (vm *VM) Running() bool { return vm.running }

// RegisterEfun appends an entry to the efun registry. Registration
// order does not matter for correctness; lookup is a linear scan by
// name (spec.md §4.8) over a flat vector rather than a map, so the
// first registration of a given name wins and later ones would need
// their own distinct names to be reachable.
func (vm *VM) RegisterEfun(name string, minArgs, maxArgs int, fn EfunFunc) {
	vm.efuns = append(vm.efuns, EfunEntry{Name: name, MinArgs: minArgs, MaxArgs: maxArgs, Fn: fn})
}

func (vm *VM) lookupEfun(name string) (*EfunEntry, bool) {
	for i := range vm.efuns {
		if vm.efuns[i].Name == name {
			return &vm.efuns[i], true
		}
	}
	return nil, false
}

// LookupEfun exposes the registry lookup publicly, for callers (the
// session layer's command dispatch, tests) that need to know whether a
// given efun exists and invoke it directly without going through
// compiled bytecode.
func (vm *VM) LookupEfun(name string) (*EfunEntry, bool) {
	return vm.lookupEfun(name)
}

// Push places a value on the operand stack, from host code (e.g. a
// session handing player input to a process_command call).
func (vm *VM) Push(v value.Value) {
	value.AddRef(v)
	vm.stack = append(vm.stack, v)
}

// Pop removes and returns the top of the operand stack.
func (vm *VM) Pop() (value.Value, bool) {
	return vm.pop1()
}

// Peek returns the top of the operand stack without removing it.
func (vm *VM) Peek() (value.Value, bool) {
	return vm.peek1()
}

// Reset clears the operand stack and call-frame stack, leaving globals
// and registered programs/efuns intact. This is the VM's "free" in the
// sense of spec.md §4.6: releasing transient execution state between
// independent top-level invocations (e.g. between two commands typed
// by the same player) without tearing down the whole runtime.
func (vm *VM) Reset() {
	for _, f := range vm.frames {
		vm.releaseLocals(f)
	}
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
}

func (vm *VM) releaseLocals(f *CallFrame) {
	for _, l := range f.Locals {
		value.Release(l)
		vm.debugger.profiler.recordRelease(l)
	}
}

func (vm *VM) fail(format string, args ...interface{}) *RuntimeError {
	vm.errorCount++
	msg := fmt.Sprintf(format, args...)
	stack := vm.snapshotStack()
	vm.debugger.dumpCallStackOnError(stack)
	return newRuntimeError(msg, stack)
}

func (vm *VM) snapshotStack() []StackFrame {
	out := make([]StackFrame, len(vm.frames))
	for i, f := range vm.frames {
		name := f.FunctionName
		if name == "" {
			name = "<top-level>"
		}
		line := 0
		if f.Program != nil {
			line = f.Program.LineForPC(f.IP)
		}
		out[i] = StackFrame{FunctionName: name, Line: line, PC: f.IP}
	}
	return out
}

// Execute runs prog's top-level instruction stream (its global
// initializers, terminated by HALT) until HALT, a stray RETURN, or a
// runtime error.
func (vm *VM) Execute(prog *bytecode.Program) (value.Value, *RuntimeError) {
	frame := &CallFrame{FunctionName: "", Program: prog, IP: 0, StackBase: len(vm.stack)}
	vm.frames = append(vm.frames, frame)
	return vm.run(frame)
}

// CallFunction runs the function at prog.Functions[funcIdx], consuming
// argCount already-pushed arguments from the top of the operand stack
// and returning its result (spec.md §4.6 "Frame management").
func (vm *VM) CallFunction(prog *bytecode.Program, funcIdx int, argCount int) (value.Value, *RuntimeError) {
	if funcIdx < 0 || funcIdx >= len(prog.Functions) {
		return value.NullValue(), vm.fail("call_function: function index %d out of range", funcIdx)
	}
	fn := prog.Functions[funcIdx]
	if argCount != fn.NumParams {
		return value.NullValue(), vm.fail("call_function: %s expects %d args, got %d", fn.Name, fn.NumParams, argCount)
	}
	if len(vm.stack) < argCount {
		return value.NullValue(), vm.fail("call_function: stack underflow passing args to %s", fn.Name)
	}

	base := len(vm.stack) - argCount
	locals := make([]value.Value, fn.NumParams+fn.NumLocals)
	for i := 0; i < fn.NumParams; i++ {
		v := vm.stack[base+i]
		value.AddRef(v)
		vm.debugger.profiler.recordConstruct(v)
		locals[i] = v
	}
	for i := fn.NumParams; i < len(locals); i++ {
		locals[i] = value.UninitializedValue()
	}
	vm.stack = vm.stack[:base]

	frame := &CallFrame{
		FunctionName: fn.Name,
		Program:      prog,
		Locals:       locals,
		IP:           fn.EntryPC,
		StackBase:    len(vm.stack),
	}
	vm.frames = append(vm.frames, frame)
	wasRunning := vm.running
	vm.running = true
	result, rerr := vm.run(frame)
	vm.running = wasRunning
	return result, rerr
}

// InvokeMethod runs the spec.md §4.7 method-dispatch contract against
// an already-resolved receiver: arity-check, argument refcounting, and
// invoking call_function, collapsing the spec's manual
// stack-top-snapshot-and-restore choreography into call_function's
// ordinary Go return value (call_function already leaves the operand
// stack exactly as it found it, modulo the arguments it consumed).
func (vm *VM) InvokeMethod(resolver MethodResolver, name string, args []value.Value) (value.Value, *RuntimeError) {
	funcIdx, numParams, prog, found := resolver.ResolveMethod(name)
	if !found {
		fmt.Fprintf(vm.diagOut, "call_other: no such method %q on %s\n", name, resolver.ObjectName())
		return value.NullValue(), nil
	}
	if len(args) != numParams {
		fmt.Fprintf(vm.diagOut, "call_other: %s.%s expects %d args, got %d\n", resolver.ObjectName(), name, numParams, len(args))
		return value.NullValue(), nil
	}
	for _, a := range args {
		value.AddRef(a)
	}
	vm.stack = append(vm.stack, args...)
	result, rerr := vm.CallFunction(prog, funcIdx, len(args))
	if rerr != nil {
		return value.NullValue(), rerr
	}
	return result, nil
}

// run executes instructions in frame.Program.Code starting at
// frame.IP until frame itself returns (via RETURN, HALT, or falling
// off the end of the code array) or a runtime error aborts it. Nested
// CALL/CALL_METHOD dispatch recurses into CallFunction/InvokeMethod,
// which push and run their own frames before returning control here.
func (vm *VM) run(frame *CallFrame) (value.Value, *RuntimeError) {
	defer func() {
		vm.frames = vm.frames[:len(vm.frames)-1]
		vm.releaseLocals(frame)
	}()

	for {
		if frame.IP < 0 || frame.IP >= len(frame.Program.Code) {
			return vm.frameResult(frame), nil
		}
		instr := frame.Program.Code[frame.IP]
		vm.debugger.traceInstruction(frame, frame.IP, instr)
		vm.debugger.traceStackSnapshot(vm.stack, len(vm.stack))
		vm.debugger.traceLocalsSnapshot(frame)

		switch instr.Op {
		case bytecode.PushInt, bytecode.PushFloat, bytecode.PushString:
			v, err := vm.constantValue(frame.Program, instr.Operand)
			if err != nil {
				return value.NullValue(), vm.fail("%v", err)
			}
			value.AddRef(v)
			vm.debugger.profiler.recordConstruct(v)
			vm.stack = append(vm.stack, v)
			frame.IP++

		case bytecode.PushNull:
			vm.stack = append(vm.stack, value.NullValue())
			frame.IP++

		case bytecode.Pop:
			v, ok := vm.pop1()
			if !ok {
				return value.NullValue(), vm.fail("POP: stack underflow")
			}
			value.Release(v)
			vm.debugger.profiler.recordRelease(v)
			frame.IP++

		case bytecode.Dup:
			v, ok := vm.peek1()
			if !ok {
				return value.NullValue(), vm.fail("DUP: stack underflow")
			}
			value.AddRef(v)
			vm.stack = append(vm.stack, v)
			frame.IP++

		case bytecode.LoadLocal:
			idx := int(instr.Operand)
			if idx < 0 || idx >= len(frame.Locals) {
				return value.NullValue(), vm.fail("LOAD_LOCAL: index %d out of range [0,%d)", idx, len(frame.Locals))
			}
			v := frame.Locals[idx]
			value.AddRef(v)
			vm.stack = append(vm.stack, v)
			frame.IP++

		case bytecode.StoreLocal:
			idx := int(instr.Operand)
			if idx < 0 || idx >= len(frame.Locals) {
				return value.NullValue(), vm.fail("STORE_LOCAL: index %d out of range [0,%d)", idx, len(frame.Locals))
			}
			v, ok := vm.peek1()
			if !ok {
				return value.NullValue(), vm.fail("STORE_LOCAL: stack underflow")
			}
			value.AddRef(v)
			value.Release(frame.Locals[idx])
			frame.Locals[idx] = v
			frame.IP++

		case bytecode.LoadGlobal:
			idx := int(instr.Operand)
			if idx < 0 || idx >= len(vm.globals) {
				return value.NullValue(), vm.fail("LOAD_GLOBAL: index %d out of range [0,%d)", idx, len(vm.globals))
			}
			v := vm.globals[idx]
			value.AddRef(v)
			vm.stack = append(vm.stack, v)
			frame.IP++

		case bytecode.StoreGlobal:
			idx := int(instr.Operand)
			v, ok := vm.peek1()
			if !ok {
				return value.NullValue(), vm.fail("STORE_GLOBAL: stack underflow")
			}
			if idx < 0 {
				idx = len(vm.globals)
				vm.globals = append(vm.globals, value.UninitializedValue())
			} else if idx >= len(vm.globals) {
				return value.NullValue(), vm.fail("STORE_GLOBAL: index %d out of range [0,%d)", idx, len(vm.globals))
			}
			value.AddRef(v)
			value.Release(vm.globals[idx])
			vm.globals[idx] = v
			frame.IP++

		case bytecode.Add, bytecode.Sub, bytecode.Mul, bytecode.Div:
			if err := vm.arith(instr.Op); err != nil {
				return value.NullValue(), err
			}
			frame.IP++

		case bytecode.Mod:
			if err := vm.mod(); err != nil {
				return value.NullValue(), err
			}
			frame.IP++

		case bytecode.Neg:
			if err := vm.neg(); err != nil {
				return value.NullValue(), err
			}
			frame.IP++

		case bytecode.Eq, bytecode.Ne, bytecode.Lt, bytecode.Le, bytecode.Gt, bytecode.Ge:
			if err := vm.compare(instr.Op); err != nil {
				return value.NullValue(), err
			}
			frame.IP++

		case bytecode.LogAnd, bytecode.LogOr:
			if err := vm.logical(instr.Op); err != nil {
				return value.NullValue(), err
			}
			frame.IP++

		case bytecode.LogNot:
			v, ok := vm.pop1()
			if !ok {
				return value.NullValue(), vm.fail("NOT: stack underflow")
			}
			vm.stack = append(vm.stack, boolValue(!v.Truthy()))
			frame.IP++

		case bytecode.BitAnd, bytecode.BitOr, bytecode.BitXor, bytecode.Lshift, bytecode.Rshift:
			if err := vm.bitwise(instr.Op); err != nil {
				return value.NullValue(), err
			}
			frame.IP++

		case bytecode.BitNot:
			v, ok := vm.pop1()
			if !ok {
				return value.NullValue(), vm.fail("BIT_NOT: stack underflow")
			}
			i, ok := asIntView(v)
			if !ok {
				return value.NullValue(), vm.fail("BIT_NOT: operand is not numeric")
			}
			vm.stack = append(vm.stack, value.IntValue(^i))
			frame.IP++

		case bytecode.Jump:
			frame.IP = int(instr.Operand)

		case bytecode.JumpIfFalse:
			v, ok := vm.pop1()
			if !ok {
				return value.NullValue(), vm.fail("JUMP_IF_FALSE: stack underflow")
			}
			if !v.Truthy() {
				frame.IP = int(instr.Operand)
			} else {
				frame.IP++
			}

		case bytecode.JumpIfTrue:
			v, ok := vm.pop1()
			if !ok {
				return value.NullValue(), vm.fail("JUMP_IF_TRUE: stack underflow")
			}
			if v.Truthy() {
				frame.IP = int(instr.Operand)
			} else {
				frame.IP++
			}

		case bytecode.Call:
			if err := vm.dispatchCall(frame, instr); err != nil {
				return value.NullValue(), err
			}
			frame.IP++

		case bytecode.CallMethod:
			if err := vm.dispatchCallMethod(frame, instr); err != nil {
				return value.NullValue(), err
			}
			frame.IP++

		case bytecode.Return:
			return vm.frameResult(frame), nil

		case bytecode.MakeArray:
			if err := vm.makeArray(int(instr.Operand)); err != nil {
				return value.NullValue(), err
			}
			frame.IP++

		case bytecode.IndexArray, bytecode.IndexMapping:
			if err := vm.indexCollection(); err != nil {
				return value.NullValue(), err
			}
			frame.IP++

		case bytecode.StoreArray, bytecode.StoreMapping:
			if err := vm.storeCollection(); err != nil {
				return value.NullValue(), err
			}
			frame.IP++

		case bytecode.MakeMapping:
			if err := vm.makeMapping(int(instr.Operand)); err != nil {
				return value.NullValue(), err
			}
			frame.IP++

		case bytecode.Print:
			v, ok := vm.pop1()
			if !ok {
				return value.NullValue(), vm.fail("PRINT: stack underflow")
			}
			fmt.Fprintln(os.Stdout, value.ToDisplayString(v))
			value.Release(v)
			frame.IP++

		case bytecode.Halt:
			return vm.frameResult(frame), nil

		default:
			return value.NullValue(), vm.fail("unknown opcode %v at pc=%d", instr.Op, frame.IP)
		}
	}
}

// frameResult returns whatever value sits above frame.StackBase, per
// "the return value remains on the stack above the caller's base."
func (vm *VM) frameResult(frame *CallFrame) value.Value {
	if len(vm.stack) > frame.StackBase {
		v := vm.stack[len(vm.stack)-1]
		vm.stack = vm.stack[:len(vm.stack)-1]
		return v
	}
	return value.NullValue()
}

func (vm *VM) constantValue(prog *bytecode.Program, operand int32) (value.Value, error) {
	idx := int(operand)
	if idx < 0 || idx >= len(prog.Constants) {
		return value.Value{}, fmt.Errorf("constant index %d out of range [0,%d)", idx, len(prog.Constants))
	}
	c := prog.Constants[idx]
	switch c.Kind {
	case bytecode.ConstInt:
		return value.IntValue(c.I), nil
	case bytecode.ConstFloat:
		return value.FloatValue(c.F), nil
	case bytecode.ConstString:
		return value.StringValue(c.S), nil
	default:
		return value.Value{}, fmt.Errorf("unknown constant kind %d", c.Kind)
	}
}

func (vm *VM) pop1() (value.Value, bool) {
	if len(vm.stack) == 0 {
		return value.Value{}, false
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, true
}

func (vm *VM) peek1() (value.Value, bool) {
	if len(vm.stack) == 0 {
		return value.Value{}, false
	}
	return vm.stack[len(vm.stack)-1], true
}

func boolValue(b bool) value.Value {
	if b {
		return value.IntValue(1)
	}
	return value.IntValue(0)
}
