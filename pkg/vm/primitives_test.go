package vm

import (
	"testing"

	"github.com/Thurtea/amlp-driver/pkg/bytecode"
	"github.com/Thurtea/amlp-driver/pkg/value"
)

// hand-built programs exercise opcode semantics directly, without
// going through the compiler, for cases the compiler never emits on
// its own (e.g. raw INDEX_MAPPING/STORE_MAPPING).

func runProgram(t *testing.T, prog *bytecode.Program) (*VM, value.Value) {
	t.Helper()
	machine := New()
	if err := machine.LoadProgram(prog); err != nil {
		t.Fatalf("load error: %v", err)
	}
	result, rerr := machine.Execute(prog)
	if rerr != nil {
		t.Fatalf("runtime error: %v", rerr)
	}
	return machine, result
}

func TestMakeArrayPreservesSourceOrder(t *testing.T) {
	prog := &bytecode.Program{
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstInt, I: 10},
			{Kind: bytecode.ConstInt, I: 20},
			{Kind: bytecode.ConstInt, I: 30},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.PushInt, Operand: 0},
			{Op: bytecode.PushInt, Operand: 1},
			{Op: bytecode.PushInt, Operand: 2},
			{Op: bytecode.MakeArray, Operand: 3},
			{Op: bytecode.Return},
		},
	}
	_, result := runProgram(t, prog)
	if result.Kind() != value.Array {
		t.Fatalf("expected an array, got %+v", result)
	}
	arr := result.AsArray()
	if arr.Len() != 3 {
		t.Fatalf("expected 3 elements, got %d", arr.Len())
	}
	if arr.Get(0).AsInt() != 10 || arr.Get(1).AsInt() != 20 || arr.Get(2).AsInt() != 30 {
		t.Fatalf("expected [10,20,30] in source order, got [%v,%v,%v]",
			arr.Get(0).AsInt(), arr.Get(1).AsInt(), arr.Get(2).AsInt())
	}
}

func TestIndexArrayOutOfRangeYieldsNull(t *testing.T) {
	prog := &bytecode.Program{
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstInt, I: 1},
			{Kind: bytecode.ConstInt, I: 99},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.PushInt, Operand: 0},
			{Op: bytecode.MakeArray, Operand: 1},
			{Op: bytecode.PushInt, Operand: 1},
			{Op: bytecode.IndexArray},
			{Op: bytecode.Return},
		},
	}
	_, result := runProgram(t, prog)
	if result.Kind() != value.Null {
		t.Fatalf("expected Null for out-of-range index, got %+v", result)
	}
}

func TestStoreArrayWritesInPlace(t *testing.T) {
	prog := &bytecode.Program{
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstInt, I: 1},
			{Kind: bytecode.ConstInt, I: 2},
			{Kind: bytecode.ConstInt, I: 0},
			{Kind: bytecode.ConstInt, I: 77},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.PushInt, Operand: 0}, // 1
			{Op: bytecode.PushInt, Operand: 1}, // 2
			{Op: bytecode.MakeArray, Operand: 2},
			{Op: bytecode.Dup},
			{Op: bytecode.PushInt, Operand: 2}, // index 0
			{Op: bytecode.PushInt, Operand: 3}, // value 77
			{Op: bytecode.StoreArray},          // leaves the stored value (77) as a residual
			{Op: bytecode.Pop},                 // discard it, as an assignment-statement would
			{Op: bytecode.PushInt, Operand: 2},
			{Op: bytecode.IndexArray},
			{Op: bytecode.Return},
		},
	}
	_, result := runProgram(t, prog)
	if result.Kind() != value.Int || result.AsInt() != 77 {
		t.Fatalf("expected Int 77 after in-place store, got %+v", result)
	}
}

func TestMakeMappingAndIndexMapping(t *testing.T) {
	prog := &bytecode.Program{
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstString, S: "name"},
			{Kind: bytecode.ConstString, S: "rat"},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.PushString, Operand: 0},
			{Op: bytecode.PushString, Operand: 1},
			{Op: bytecode.MakeMapping, Operand: 1},
			{Op: bytecode.PushString, Operand: 0},
			{Op: bytecode.IndexMapping},
			{Op: bytecode.Return},
		},
	}
	_, result := runProgram(t, prog)
	if result.Kind() != value.String || result.AsString() != "rat" {
		t.Fatalf("expected String \"rat\", got %+v", result)
	}
}

func TestMappingMissingKeyYieldsNull(t *testing.T) {
	prog := &bytecode.Program{
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstString, S: "name"},
			{Kind: bytecode.ConstString, S: "rat"},
			{Kind: bytecode.ConstString, S: "nosuch"},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.PushString, Operand: 0},
			{Op: bytecode.PushString, Operand: 1},
			{Op: bytecode.MakeMapping, Operand: 1},
			{Op: bytecode.PushString, Operand: 2},
			{Op: bytecode.IndexMapping},
			{Op: bytecode.Return},
		},
	}
	_, result := runProgram(t, prog)
	if result.Kind() != value.Null {
		t.Fatalf("expected Null for a missing key, got %+v", result)
	}
}

func TestBitwiseAndOperator(t *testing.T) {
	prog := &bytecode.Program{
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstInt, I: 6},
			{Kind: bytecode.ConstInt, I: 3},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.PushInt, Operand: 0},
			{Op: bytecode.PushInt, Operand: 1},
			{Op: bytecode.BitAnd},
			{Op: bytecode.Return},
		},
	}
	_, result := runProgram(t, prog)
	if result.AsInt() != 2 {
		t.Fatalf("expected 6 & 3 == 2, got %v", result.AsInt())
	}
}

func TestShiftLeft(t *testing.T) {
	prog := &bytecode.Program{
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstInt, I: 1},
			{Kind: bytecode.ConstInt, I: 4},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.PushInt, Operand: 0},
			{Op: bytecode.PushInt, Operand: 1},
			{Op: bytecode.Lshift},
			{Op: bytecode.Return},
		},
	}
	_, result := runProgram(t, prog)
	if result.AsInt() != 16 {
		t.Fatalf("expected 1 << 4 == 16, got %v", result.AsInt())
	}
}

func TestModOperatesOnIntegerViews(t *testing.T) {
	prog := &bytecode.Program{
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstFloat, F: 17.9},
			{Kind: bytecode.ConstInt, I: 5},
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.PushFloat, Operand: 0},
			{Op: bytecode.PushInt, Operand: 1},
			{Op: bytecode.Mod},
			{Op: bytecode.Return},
		},
	}
	_, result := runProgram(t, prog)
	if result.Kind() != value.Int || result.AsInt() != 2 {
		t.Fatalf("expected Int 2 (17 %% 5), got %+v", result)
	}
}

func TestStackUnderflowProducesRuntimeError(t *testing.T) {
	prog := &bytecode.Program{
		Code: []bytecode.Instruction{
			{Op: bytecode.Add},
			{Op: bytecode.Return},
		},
	}
	machine := New()
	if err := machine.LoadProgram(prog); err != nil {
		t.Fatalf("load error: %v", err)
	}
	_, rerr := machine.Execute(prog)
	if rerr == nil {
		t.Fatalf("expected a stack underflow runtime error")
	}
}

func TestUnknownOpcodeProducesRuntimeError(t *testing.T) {
	prog := &bytecode.Program{
		Code: []bytecode.Instruction{
			{Op: bytecode.Opcode(200)},
		},
	}
	machine := New()
	if err := machine.LoadProgram(prog); err != nil {
		t.Fatalf("load error: %v", err)
	}
	_, rerr := machine.Execute(prog)
	if rerr == nil {
		t.Fatalf("expected a runtime error for an unknown opcode")
	}
}
