package vm

import (
	"testing"

	"github.com/Thurtea/amlp-driver/pkg/bytecode"
	"github.com/Thurtea/amlp-driver/pkg/compiler"
	"github.com/Thurtea/amlp-driver/pkg/parser"
	"github.com/Thurtea/amlp-driver/pkg/value"
)

func compile(t *testing.T, src string) *bytecode.Program {
	t.Helper()
	p := parser.New(src)
	ast, err := p.Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	prog, err := compiler.New().Compile("test.c", src, ast)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return prog
}

func runTopLevel(t *testing.T, src string) (*VM, *bytecode.Program, value.Value) {
	t.Helper()
	prog := compile(t, src)
	machine := New()
	if err := machine.LoadProgram(prog); err != nil {
		t.Fatalf("load error: %v", err)
	}
	result, rerr := machine.Execute(prog)
	if rerr != nil {
		t.Fatalf("runtime error: %v", rerr)
	}
	return machine, prog, result
}

func callFunction(t *testing.T, machine *VM, prog *bytecode.Program, name string, args ...value.Value) value.Value {
	t.Helper()
	idx := prog.FunctionByName(name)
	if idx < 0 {
		t.Fatalf("no such function %q", name)
	}
	for _, a := range args {
		machine.Push(a)
	}
	result, rerr := machine.CallFunction(prog, idx, len(args))
	if rerr != nil {
		t.Fatalf("runtime error calling %s: %v", name, rerr)
	}
	return result
}

func TestGlobalInitializerRunsOnExecute(t *testing.T) {
	_, prog, _ := runTopLevel(t, `int counter = 42;`)
	if len(prog.Globals) != 1 {
		t.Fatalf("expected one global")
	}
}

func TestCallFunctionReturnsArithmeticResult(t *testing.T) {
	machine, prog, _ := runTopLevel(t, `int add(int a, int b) { return a + b; }`)
	result := callFunction(t, machine, prog, "add", value.IntValue(3), value.IntValue(4))
	if result.Kind() != value.Int || result.AsInt() != 7 {
		t.Fatalf("expected Int 7, got %+v", result)
	}
}

func TestArithmeticPromotesToFloat(t *testing.T) {
	machine, prog, _ := runTopLevel(t, `mixed f(int a, float b) { return a + b; }`)
	result := callFunction(t, machine, prog, "f", value.IntValue(3), value.FloatValue(0.5))
	if result.Kind() != value.Float || result.AsFloat() != 3.5 {
		t.Fatalf("expected Float 3.5, got %+v", result)
	}
}

func TestDivisionAlwaysYieldsFloat(t *testing.T) {
	machine, prog, _ := runTopLevel(t, `mixed f(int a, int b) { return a / b; }`)
	result := callFunction(t, machine, prog, "f", value.IntValue(7), value.IntValue(2))
	if result.Kind() != value.Float || result.AsFloat() != 3.5 {
		t.Fatalf("expected Float 3.5, got %+v", result)
	}
}

func TestComparisonPushesIntBool(t *testing.T) {
	machine, prog, _ := runTopLevel(t, `int f(int a, int b) { return a < b; }`)
	result := callFunction(t, machine, prog, "f", value.IntValue(1), value.IntValue(2))
	if result.Kind() != value.Int || result.AsInt() != 1 {
		t.Fatalf("expected Int 1, got %+v", result)
	}
}

func TestIfElseSelectsBranch(t *testing.T) {
	src := `int f(int x) {
		if (x > 0) {
			return 1;
		} else {
			return -1;
		}
	}`
	machine, prog, _ := runTopLevel(t, src)
	if r := callFunction(t, machine, prog, "f", value.IntValue(5)); r.AsInt() != 1 {
		t.Fatalf("expected 1, got %v", r.AsInt())
	}
	if r := callFunction(t, machine, prog, "f", value.IntValue(-5)); r.AsInt() != -1 {
		t.Fatalf("expected -1, got %v", r.AsInt())
	}
}

func TestWhileLoopAccumulates(t *testing.T) {
	src := `int sum(int n) {
		int total = 0;
		int i = 0;
		while (i < n) {
			total = total + i;
			i = i + 1;
		}
		return total;
	}`
	machine, prog, _ := runTopLevel(t, src)
	result := callFunction(t, machine, prog, "sum", value.IntValue(5))
	if result.AsInt() != 10 {
		t.Fatalf("expected 10, got %v", result.AsInt())
	}
}

func TestCallToUserFunctionFromAnotherFunction(t *testing.T) {
	src := `int square(int x) { return x * x; }
	int sumOfSquares(int a, int b) { return square(a) + square(b); }`
	machine, prog, _ := runTopLevel(t, src)
	result := callFunction(t, machine, prog, "sumOfSquares", value.IntValue(3), value.IntValue(4))
	if result.AsInt() != 25 {
		t.Fatalf("expected 25, got %v", result.AsInt())
	}
}

func TestCallUnknownEfunOrFunctionIsRuntimeError(t *testing.T) {
	prog := compile(t, `void f() { nosuchefun(); }`)
	machine := New()
	if err := machine.LoadProgram(prog); err != nil {
		t.Fatalf("load error: %v", err)
	}
	idx := prog.FunctionByName("f")
	_, rerr := machine.CallFunction(prog, idx, 0)
	if rerr == nil {
		t.Fatalf("expected a runtime error calling an undefined function")
	}
}

func TestEfunRegistrationAndArityCheck(t *testing.T) {
	prog := compile(t, `mixed f() { return double(21); }`)
	machine := New()
	machine.RegisterEfun("double", 1, 1, func(vm *VM, args []value.Value) (value.Value, *RuntimeError) {
		return value.IntValue(args[0].AsInt() * 2), nil
	})
	if err := machine.LoadProgram(prog); err != nil {
		t.Fatalf("load error: %v", err)
	}
	idx := prog.FunctionByName("f")
	result, rerr := machine.CallFunction(prog, idx, 0)
	if rerr != nil {
		t.Fatalf("unexpected runtime error: %v", rerr)
	}
	if result.AsInt() != 42 {
		t.Fatalf("expected 42, got %v", result.AsInt())
	}
}

func TestRuntimeErrorLeavesVMUsable(t *testing.T) {
	prog := compile(t, `int bad(int a) { return a % 0; }
	int good(int a, int b) { return a + b; }`)
	machine := New()
	if err := machine.LoadProgram(prog); err != nil {
		t.Fatalf("load error: %v", err)
	}
	badIdx := prog.FunctionByName("bad")
	machine.Push(value.IntValue(1))
	if _, rerr := machine.CallFunction(prog, badIdx, 1); rerr == nil {
		t.Fatalf("expected a modulo-by-zero runtime error")
	}
	if machine.ErrorCount() == 0 {
		t.Fatalf("expected error counter to increment")
	}
	goodIdx := prog.FunctionByName("good")
	machine.Push(value.IntValue(1))
	machine.Push(value.IntValue(2))
	result, rerr := machine.CallFunction(prog, goodIdx, 2)
	if rerr != nil {
		t.Fatalf("VM should still be usable after an error: %v", rerr)
	}
	if result.AsInt() != 3 {
		t.Fatalf("expected 3, got %v", result.AsInt())
	}
}

func TestStringConcatenationWithAdd(t *testing.T) {
	machine, prog, _ := runTopLevel(t, `mixed f() { return "foo" + "bar"; }`)
	result := callFunction(t, machine, prog, "f")
	if result.Kind() != value.String || result.AsString() != "foobar" {
		t.Fatalf("expected \"foobar\", got %+v", result)
	}
}
