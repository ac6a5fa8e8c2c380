package vm

import (
	"fmt"
	"strings"
)

// StackFrame captures one entry of a call-stack dump: which function was
// executing, the source line, and the instruction pointer. The VM's
// "call-stack dumps on error" trace (spec.md §4.6) walks a slice of
// these from innermost to outermost frame.
type StackFrame struct {
	FunctionName string
	Line         int
	PC           int
}

// RuntimeError is returned by Execute/CallFunction when an opcode fails:
// an unknown opcode, an out-of-range local index, stack underflow, or a
// decoding failure (spec.md §4.6 "Error semantics"). The VM itself is
// left runnable after one of these; it is the caller's responsibility to
// decide whether to abort the session or recover.
type RuntimeError struct {
	Message string
	Stack   []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Stack) > 0 {
		b.WriteString("\n\nCall stack:")
		for i := len(e.Stack) - 1; i >= 0; i-- {
			f := e.Stack[i]
			b.WriteString(fmt.Sprintf("\n  at %s", f.FunctionName))
			if f.Line > 0 {
				b.WriteString(fmt.Sprintf(" (line %d)", f.Line))
			}
			b.WriteString(fmt.Sprintf(" [pc=%d]", f.PC))
		}
	}
	return b.String()
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, Stack: stack}
}
