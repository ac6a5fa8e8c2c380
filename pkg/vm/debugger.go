package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/Thurtea/amlp-driver/pkg/bytecode"
	"github.com/Thurtea/amlp-driver/pkg/value"
)

// DebugFlags is the bitmask gating the VM's four orthogonal traces
// (spec.md §4.6 "Tracing & debug hooks"). All flags write to the
// Debugger's configured stream, so a test harness can capture trace
// output instead of it going to the terminal.
type DebugFlags uint8

const (
	TraceInstructions DebugFlags = 1 << iota
	TraceStack
	TraceLocals
	TraceCallStackOnError
)

// Debugger owns the VM's tracing/profiling instrumentation and an
// optional set of breakpoints. It is always present on a VM; with no
// flags set and no breakpoints it costs a handful of branches per
// dispatch.
type Debugger struct {
	vm          *VM
	flags       DebugFlags
	out         io.Writer
	breakpoints map[int]bool
	profiler    Profiler
}

// NewDebugger creates a disabled debugger attached to vm, writing to
// os.Stderr until SetOutput is called.
func NewDebugger(vm *VM) *Debugger {
	return &Debugger{
		vm:          vm,
		out:         os.Stderr,
		breakpoints: make(map[int]bool),
	}
}

// SetFlags replaces the active trace bitmask.
func (d *Debugger) SetFlags(f DebugFlags) { d.flags = f }

// Flags reports the active trace bitmask.
func (d *Debugger) Flags() DebugFlags { return d.flags }

// SetOutput redirects trace output.
func (d *Debugger) SetOutput(w io.Writer) { d.out = w }

// AddBreakpoint marks pc as a pause point (checked by the caller driving
// the VM's step loop; the VM itself never blocks on input).
func (d *Debugger) AddBreakpoint(pc int) { d.breakpoints[pc] = true }

// RemoveBreakpoint clears a previously set breakpoint.
func (d *Debugger) RemoveBreakpoint(pc int) { delete(d.breakpoints, pc) }

// AtBreakpoint reports whether pc has a breakpoint set.
func (d *Debugger) AtBreakpoint(pc int) bool { return d.breakpoints[pc] }

// Profiler returns the running construction/free counters.
func (d *Debugger) Profiler() *Profiler { return &d.profiler }

func (d *Debugger) traceInstruction(frame *CallFrame, pc int, instr bytecode.Instruction) {
	if d.flags&TraceInstructions == 0 {
		return
	}
	line := 0
	if frame.Program != nil {
		line = frame.Program.LineForPC(pc)
	}
	fmt.Fprintf(d.out, "[trace] %-20s pc=%-4d fn=%-16s line=%d operand=%d\n",
		instr.Op, pc, frame.FunctionName, line, instr.Operand)
}

func (d *Debugger) traceStackSnapshot(stack []value.Value, sp int) {
	if d.flags&TraceStack == 0 {
		return
	}
	fmt.Fprintf(d.out, "[stack]  ")
	for i := 0; i < sp; i++ {
		fmt.Fprintf(d.out, "%s ", value.ToDisplayString(stack[i]))
	}
	fmt.Fprintln(d.out)
}

func (d *Debugger) traceLocalsSnapshot(frame *CallFrame) {
	if d.flags&TraceLocals == 0 {
		return
	}
	fmt.Fprintf(d.out, "[locals] ")
	for i, v := range frame.Locals {
		fmt.Fprintf(d.out, "[%d]=%s ", i, value.ToDisplayString(v))
	}
	fmt.Fprintln(d.out)
}

func (d *Debugger) dumpCallStackOnError(stack []StackFrame) {
	if d.flags&TraceCallStackOnError == 0 {
		return
	}
	fmt.Fprintln(d.out, "[error] call stack:")
	for i := len(stack) - 1; i >= 0; i-- {
		f := stack[i]
		fmt.Fprintf(d.out, "  at %s (line %d, pc %d)\n", f.FunctionName, f.Line, f.PC)
	}
}

// Profiler counts Value constructions and releases by kind, plus total
// string bytes allocated versus freed, per spec.md §4.6. Counting is
// advisory bookkeeping in a garbage-collected host: it tracks how many
// times the VM minted or released a Value of each kind, independent of
// whether the Go runtime has actually reclaimed the backing memory yet.
type Profiler struct {
	Constructed      [value.Function + 1]int64
	Released         [value.Function + 1]int64
	StringBytesAlloc int64
	StringBytesFreed int64
}

func (p *Profiler) recordConstruct(v value.Value) {
	p.Constructed[v.Kind()]++
	if v.Kind() == value.String {
		p.StringBytesAlloc += int64(len(v.AsString()))
	}
}

func (p *Profiler) recordRelease(v value.Value) {
	p.Released[v.Kind()]++
	if v.Kind() == value.String {
		p.StringBytesFreed += int64(len(v.AsString()))
	}
}
