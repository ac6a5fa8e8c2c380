package vm

import (
	"fmt"

	"github.com/Thurtea/amlp-driver/pkg/bytecode"
	"github.com/Thurtea/amlp-driver/pkg/value"
)

// LoadProgram prepares a freshly compiled or decoded Program for
// execution (spec.md §4.5): it validates that every function's entry
// point falls inside the code array, and grows the VM's global vector
// to match the program's global descriptor table, initializing any new
// slots to Uninitialized. A program's own global *initializer* code runs
// later, as part of Execute — the loader only reserves the slots.
//
// Decode itself (turning a byte stream into a Program) lives in
// pkg/bytecode; by the time a Program reaches LoadProgram its
// instruction stream, constant pool, and tables are already fully
// materialized; rejecting a malformed layout here is what replaces the
// "free partially allocated structures and return failure" rule from a
// from-scratch decode.
func (vm *VM) LoadProgram(prog *bytecode.Program) error {
	if prog == nil {
		return fmt.Errorf("vm: cannot load a nil program")
	}
	for _, fn := range prog.Functions {
		if fn.EntryPC < 0 || fn.EntryPC > len(prog.Code) {
			return fmt.Errorf("vm: function %q entry point %d out of range [0,%d]", fn.Name, fn.EntryPC, len(prog.Code))
		}
	}
	for _, cs := range prog.CallSites {
		if cs.NumArgs < 0 {
			return fmt.Errorf("vm: call site %q has negative arg count %d", cs.Name, cs.NumArgs)
		}
	}
	for len(vm.globals) < len(prog.Globals) {
		vm.globals = append(vm.globals, value.UninitializedValue())
	}
	vm.programs = append(vm.programs, prog)
	return nil
}

// AddFunction appends a new function entry to prog's function table,
// pointing at code already present in prog.Code (or appended by the
// caller beforehand), and returns its index. This is the host-driven
// `add_function` primitive from spec.md §4.6; clone_object does not go
// through it (object.Manager.CloneObject attaches methods with
// Object.AddMethod).
func (vm *VM) AddFunction(prog *bytecode.Program, entry bytecode.FunctionEntry) (int, error) {
	if entry.EntryPC < 0 || entry.EntryPC > len(prog.Code) {
		return -1, fmt.Errorf("vm: function %q entry point %d out of range [0,%d]", entry.Name, entry.EntryPC, len(prog.Code))
	}
	prog.Functions = append(prog.Functions, entry)
	return len(prog.Functions) - 1, nil
}

// Globals exposes the VM's global vector for inspection by the session
// and debugger layers; callers must not retain the returned slice
// across a call that might grow it.
func (vm *VM) Globals() []value.Value { return vm.globals }

// Global returns the current value of global slot idx, or Null if idx
// is out of range.
func (vm *VM) Global(idx int) value.Value {
	if idx < 0 || idx >= len(vm.globals) {
		return value.NullValue()
	}
	return vm.globals[idx]
}

// SetGlobal writes v into global slot idx from host code, growing the
// global vector as needed. This is how the session layer binds
// `this_player` and similar host-provided bindings into script-visible
// globals outside of any STORE_GLOBAL instruction.
func (vm *VM) SetGlobal(idx int, v value.Value) {
	for len(vm.globals) <= idx {
		vm.globals = append(vm.globals, value.UninitializedValue())
	}
	value.AddRef(v)
	value.Release(vm.globals[idx])
	vm.globals[idx] = v
}
