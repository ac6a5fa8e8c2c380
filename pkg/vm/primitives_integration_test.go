package vm

import (
	"testing"

	"github.com/Thurtea/amlp-driver/pkg/bytecode"
	"github.com/Thurtea/amlp-driver/pkg/value"
)

// stubObject is a minimal MethodResolver standing in for pkg/object's
// real Object, exercising CALL_METHOD / InvokeMethod without importing
// pkg/object (which would create an import cycle back into pkg/vm).
type stubObject struct {
	name      string
	destroyed bool
	prog      *bytecode.Program
	methods   map[string]int
}

func (s *stubObject) ObjectName() string { return s.name }
func (s *stubObject) Destroyed() bool    { return s.destroyed }
func (s *stubObject) ResolveMethod(name string) (int, int, *bytecode.Program, bool) {
	idx, ok := s.methods[name]
	if !ok {
		return 0, 0, nil, false
	}
	fn := s.prog.Functions[idx]
	return idx, fn.NumParams, s.prog, true
}

func newStubObject(t *testing.T, name string, src string, methods ...string) *stubObject {
	t.Helper()
	prog := compile(t, src)
	m := make(map[string]int, len(methods))
	for _, meth := range methods {
		idx := prog.FunctionByName(meth)
		if idx < 0 {
			t.Fatalf("newStubObject: no function %q in source", meth)
		}
		m[meth] = idx
	}
	return &stubObject{name: name, prog: prog, methods: m}
}

func TestCallMethodDispatchesToResolvedMethod(t *testing.T) {
	obj := newStubObject(t, "/obj/rat#1", `int greet(int loudness) { return loudness * 2; }`, "greet")
	machine := New()

	prog := &bytecode.Program{
		Globals: []bytecode.GlobalDescriptor{{Name: "target"}},
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstString, S: "greet"},
			{Kind: bytecode.ConstInt, I: 5},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.LoadGlobal, Operand: 0},
			{Op: bytecode.PushString, Operand: 0},
			{Op: bytecode.PushInt, Operand: 1},
			{Op: bytecode.CallMethod, Operand: 1},
			{Op: bytecode.Return},
		},
	}
	if err := machine.LoadProgram(prog); err != nil {
		t.Fatalf("load error: %v", err)
	}
	machine.SetGlobal(0, value.ObjectValueOf(obj))
	result, rerr := machine.Execute(prog)
	if rerr != nil {
		t.Fatalf("runtime error: %v", rerr)
	}
	if result.Kind() != value.Int || result.AsInt() != 10 {
		t.Fatalf("expected Int 10, got %+v", result)
	}
}

func TestCallMethodOnUnknownMethodYieldsNull(t *testing.T) {
	obj := newStubObject(t, "/obj/rat#1", `void create() {}`)
	machine := New()

	prog := &bytecode.Program{
		Globals:   []bytecode.GlobalDescriptor{{Name: "target"}},
		Constants: []bytecode.Constant{{Kind: bytecode.ConstString, S: "nosuchmethod"}},
		Code: []bytecode.Instruction{
			{Op: bytecode.LoadGlobal, Operand: 0},
			{Op: bytecode.PushString, Operand: 0},
			{Op: bytecode.CallMethod, Operand: 0},
			{Op: bytecode.Return},
		},
	}
	if err := machine.LoadProgram(prog); err != nil {
		t.Fatalf("load error: %v", err)
	}
	machine.SetGlobal(0, value.ObjectValueOf(obj))
	result, rerr := machine.Execute(prog)
	if rerr != nil {
		t.Fatalf("unresolved method dispatch should not be a fatal runtime error: %v", rerr)
	}
	if result.Kind() != value.Null {
		t.Fatalf("expected Null for an unresolved method, got %+v", result)
	}
}

func TestCallMethodOnDestroyedObjectYieldsNull(t *testing.T) {
	obj := newStubObject(t, "/obj/rat#1", `int greet() { return 1; }`, "greet")
	obj.destroyed = true
	machine := New()

	prog := &bytecode.Program{
		Globals:   []bytecode.GlobalDescriptor{{Name: "target"}},
		Constants: []bytecode.Constant{{Kind: bytecode.ConstString, S: "greet"}},
		Code: []bytecode.Instruction{
			{Op: bytecode.LoadGlobal, Operand: 0},
			{Op: bytecode.PushString, Operand: 0},
			{Op: bytecode.CallMethod, Operand: 0},
			{Op: bytecode.Return},
		},
	}
	if err := machine.LoadProgram(prog); err != nil {
		t.Fatalf("load error: %v", err)
	}
	machine.SetGlobal(0, value.ObjectValueOf(obj))
	result, rerr := machine.Execute(prog)
	if rerr != nil {
		t.Fatalf("unexpected runtime error: %v", rerr)
	}
	if result.Kind() != value.Null {
		t.Fatalf("expected Null for a destroyed object, got %+v", result)
	}
}

func TestInvokeMethodDirectlyChecksArity(t *testing.T) {
	obj := newStubObject(t, "/obj/rat#1", `int greet(int a, int b) { return a + b; }`, "greet")
	machine := New()
	result, rerr := machine.InvokeMethod(obj, "greet", []value.Value{value.IntValue(1)})
	if rerr != nil {
		t.Fatalf("arity mismatch should be a graceful Null, not a runtime error: %v", rerr)
	}
	if result.Kind() != value.Null {
		t.Fatalf("expected Null for an arity mismatch, got %+v", result)
	}

	result, rerr = machine.InvokeMethod(obj, "greet", []value.Value{value.IntValue(2), value.IntValue(3)})
	if rerr != nil {
		t.Fatalf("unexpected runtime error: %v", rerr)
	}
	if result.AsInt() != 5 {
		t.Fatalf("expected 5, got %v", result.AsInt())
	}
}

func TestEfunCallWithinCompiledFunction(t *testing.T) {
	prog := compile(t, `mixed f() { return triple(4); }`)
	machine := New()
	machine.RegisterEfun("triple", 1, 1, func(vm *VM, args []value.Value) (value.Value, *RuntimeError) {
		return value.IntValue(args[0].AsInt() * 3), nil
	})
	if err := machine.LoadProgram(prog); err != nil {
		t.Fatalf("load error: %v", err)
	}
	idx := prog.FunctionByName("f")
	result, rerr := machine.CallFunction(prog, idx, 0)
	if rerr != nil {
		t.Fatalf("unexpected runtime error: %v", rerr)
	}
	if result.AsInt() != 12 {
		t.Fatalf("expected 12, got %v", result.AsInt())
	}
}
