package vm

import (
	"fmt"

	"github.com/Thurtea/amlp-driver/pkg/bytecode"
	"github.com/Thurtea/amlp-driver/pkg/value"
)

// toFloatView reports v as a float64, promoting Int, and fails for any
// other kind — used by arithmetic and comparison, which promote to
// float whenever either operand is a Float (spec.md §4.6).
func toFloatView(v value.Value) (float64, bool) {
	switch v.Kind() {
	case value.Int:
		return float64(v.AsInt()), true
	case value.Float:
		return v.AsFloat(), true
	default:
		return 0, false
	}
}

// asIntView reports v as an int64, truncating a Float, for the
// operators the spec defines over "integer views of both operands"
// (MOD and the bitwise family).
func asIntView(v value.Value) (int64, bool) {
	switch v.Kind() {
	case value.Int:
		return v.AsInt(), true
	case value.Float:
		return int64(v.AsFloat()), true
	default:
		return 0, false
	}
}

func isFloatKind(v value.Value) bool { return v.Kind() == value.Float }

// arith implements ADD/SUB/MUL/DIV: pop b then a, promote to float if
// either operand is float, compute, push. DIV always yields Float
// regardless of operand kinds.
func (vm *VM) arith(op bytecode.Opcode) *RuntimeError {
	b, ok := vm.pop1()
	if !ok {
		return vm.fail("%s: stack underflow", op)
	}
	a, ok := vm.pop1()
	if !ok {
		return vm.fail("%s: stack underflow", op)
	}

	if op == bytecode.Add && a.Kind() == value.String && b.Kind() == value.String {
		vm.stack = append(vm.stack, value.StringValue(a.AsString()+b.AsString()))
		return nil
	}

	af, aok := toFloatView(a)
	bf, bok := toFloatView(b)
	if !aok || !bok {
		return vm.fail("%s: operands are not numeric", op)
	}

	if op == bytecode.Div {
		if bf == 0 {
			// spec.md §8: division by zero yields Float 0.0, not a
			// runtime error — scripts are operator-authored and a
			// stray zero divisor shouldn't abort the whole call.
			vm.stack = append(vm.stack, value.FloatValue(0))
			return nil
		}
		vm.stack = append(vm.stack, value.FloatValue(af/bf))
		return nil
	}

	var result float64
	switch op {
	case bytecode.Add:
		result = af + bf
	case bytecode.Sub:
		result = af - bf
	case bytecode.Mul:
		result = af * bf
	}

	if isFloatKind(a) || isFloatKind(b) {
		vm.stack = append(vm.stack, value.FloatValue(result))
	} else {
		vm.stack = append(vm.stack, value.IntValue(int64(result)))
	}
	return nil
}

// mod implements MOD over integer views of both operands.
func (vm *VM) mod() *RuntimeError {
	b, ok := vm.pop1()
	if !ok {
		return vm.fail("MOD: stack underflow")
	}
	a, ok := vm.pop1()
	if !ok {
		return vm.fail("MOD: stack underflow")
	}
	bi, bok := asIntView(b)
	ai, aok := asIntView(a)
	if !aok || !bok {
		return vm.fail("MOD: operands are not numeric")
	}
	if bi == 0 {
		return vm.fail("MOD: division by zero")
	}
	vm.stack = append(vm.stack, value.IntValue(ai%bi))
	return nil
}

// neg negates the top of the stack, preserving its Int/Float kind.
func (vm *VM) neg() *RuntimeError {
	v, ok := vm.pop1()
	if !ok {
		return vm.fail("NEG: stack underflow")
	}
	switch v.Kind() {
	case value.Int:
		vm.stack = append(vm.stack, value.IntValue(-v.AsInt()))
	case value.Float:
		vm.stack = append(vm.stack, value.FloatValue(-v.AsFloat()))
	default:
		return vm.fail("NEG: operand is not numeric")
	}
	return nil
}

// compare implements EQ/NE/LT/LE/GT/GE: pop b then a, promote to float
// for ordering, push Int 0/1. EQ/NE additionally allow string operands
// (compared by content) and fall back to value.Equal for non-numeric,
// non-string kinds (object identity, etc).
func (vm *VM) compare(op bytecode.Opcode) *RuntimeError {
	b, ok := vm.pop1()
	if !ok {
		return vm.fail("%s: stack underflow", op)
	}
	a, ok := vm.pop1()
	if !ok {
		return vm.fail("%s: stack underflow", op)
	}

	af, aok := toFloatView(a)
	bf, bok := toFloatView(b)
	if aok && bok {
		var result bool
		switch op {
		case bytecode.Eq:
			result = af == bf
		case bytecode.Ne:
			result = af != bf
		case bytecode.Lt:
			result = af < bf
		case bytecode.Le:
			result = af <= bf
		case bytecode.Gt:
			result = af > bf
		case bytecode.Ge:
			result = af >= bf
		}
		vm.stack = append(vm.stack, boolValue(result))
		return nil
	}

	if a.Kind() == value.String && b.Kind() == value.String {
		var result bool
		switch op {
		case bytecode.Eq:
			result = a.AsString() == b.AsString()
		case bytecode.Ne:
			result = a.AsString() != b.AsString()
		case bytecode.Lt:
			result = a.AsString() < b.AsString()
		case bytecode.Le:
			result = a.AsString() <= b.AsString()
		case bytecode.Gt:
			result = a.AsString() > b.AsString()
		case bytecode.Ge:
			result = a.AsString() >= b.AsString()
		}
		vm.stack = append(vm.stack, boolValue(result))
		return nil
	}

	switch op {
	case bytecode.Eq:
		vm.stack = append(vm.stack, boolValue(value.Equal(a, b)))
	case bytecode.Ne:
		vm.stack = append(vm.stack, boolValue(!value.Equal(a, b)))
	default:
		return vm.fail("%s: operands are not ordered", op)
	}
	return nil
}

// logical implements AND/OR over truthiness, pushing Int 0/1.
func (vm *VM) logical(op bytecode.Opcode) *RuntimeError {
	b, ok := vm.pop1()
	if !ok {
		return vm.fail("%s: stack underflow", op)
	}
	a, ok := vm.pop1()
	if !ok {
		return vm.fail("%s: stack underflow", op)
	}
	var result bool
	if op == bytecode.LogAnd {
		result = a.Truthy() && b.Truthy()
	} else {
		result = a.Truthy() || b.Truthy()
	}
	vm.stack = append(vm.stack, boolValue(result))
	return nil
}

// bitwise implements BIT_AND/BIT_OR/BIT_XOR/LSHIFT/RSHIFT over integer
// views of both operands.
func (vm *VM) bitwise(op bytecode.Opcode) *RuntimeError {
	b, ok := vm.pop1()
	if !ok {
		return vm.fail("%s: stack underflow", op)
	}
	a, ok := vm.pop1()
	if !ok {
		return vm.fail("%s: stack underflow", op)
	}
	ai, aok := asIntView(a)
	bi, bok := asIntView(b)
	if !aok || !bok {
		return vm.fail("%s: operands are not numeric", op)
	}
	var result int64
	switch op {
	case bytecode.BitAnd:
		result = ai & bi
	case bytecode.BitOr:
		result = ai | bi
	case bytecode.BitXor:
		result = ai ^ bi
	case bytecode.Lshift:
		result = ai << uint(bi)
	case bytecode.Rshift:
		result = ai >> uint(bi)
	}
	vm.stack = append(vm.stack, value.IntValue(result))
	return nil
}

// makeArray pops n values already sitting in source (push) order on
// top of the stack and assembles them into a fresh array. Reading the
// top n slots directly (rather than popping one at a time and
// reversing) yields source order without an explicit reversal step,
// since the compiler pushes array elements left to right.
func (vm *VM) makeArray(n int) *RuntimeError {
	if n < 0 || len(vm.stack) < n {
		return vm.fail("MAKE_ARRAY: stack underflow (need %d, have %d)", n, len(vm.stack))
	}
	elems := append([]value.Value(nil), vm.stack[len(vm.stack)-n:]...)
	vm.stack = vm.stack[:len(vm.stack)-n]
	av := vm.arena.NewArray(elems)
	vm.stack = append(vm.stack, value.ArrayValueOf(av))
	return nil
}

// makeMapping pops n key/value pairs (pushed key-then-value per
// entry) and builds a fresh mapping. Non-string keys are rendered via
// ToDisplayString, since mapping keys are strings (spec.md §3).
func (vm *VM) makeMapping(n int) *RuntimeError {
	if n < 0 || len(vm.stack) < 2*n {
		return vm.fail("MAKE_MAPPING: stack underflow (need %d pairs, have %d values)", n, len(vm.stack))
	}
	pairs := append([]value.Value(nil), vm.stack[len(vm.stack)-2*n:]...)
	vm.stack = vm.stack[:len(vm.stack)-2*n]
	mv := vm.arena.NewMapping()
	for i := 0; i < n; i++ {
		key := pairs[2*i]
		val := pairs[2*i+1]
		mv.Set(value.ToDisplayString(key), val)
	}
	vm.stack = append(vm.stack, value.MappingValueOf(mv))
	return nil
}

// indexCollection implements INDEX_ARRAY/INDEX_MAPPING: pop index then
// collection, push the element. Arrays index by integer; mappings
// index by string key. Out-of-range array indices and missing mapping
// keys both yield Null rather than a runtime error, per spec.md §4.6.
func (vm *VM) indexCollection() *RuntimeError {
	idx, ok := vm.pop1()
	if !ok {
		return vm.fail("INDEX: stack underflow")
	}
	coll, ok := vm.pop1()
	if !ok {
		return vm.fail("INDEX: stack underflow")
	}
	switch coll.Kind() {
	case value.Array:
		i, iok := asIntView(idx)
		if !iok {
			return vm.fail("INDEX: array index is not numeric")
		}
		vm.stack = append(vm.stack, value.Clone(coll.AsArray().Get(i)))
	case value.Mapping:
		key := value.ToDisplayString(idx)
		v, found := coll.AsMapping().Get(key)
		if !found {
			vm.stack = append(vm.stack, value.NullValue())
		} else {
			vm.stack = append(vm.stack, value.Clone(v))
		}
	default:
		return vm.fail("INDEX: value is not an array or mapping")
	}
	return nil
}

// storeCollection implements STORE_ARRAY/STORE_MAPPING: pop value,
// index, collection; write in place; push the value back. Pushing the
// value back (rather than leaving the stack one shorter) keeps
// element-assignment consistent with STORE_LOCAL/STORE_GLOBAL, which
// leave the stored value as the assignment expression's result — here
// that means popping all three operands and restoring just the one
// that matters, since the collection and index aren't addressable by
// peeking alone once the value sits on top of them.
func (vm *VM) storeCollection() *RuntimeError {
	val, ok := vm.pop1()
	if !ok {
		return vm.fail("STORE: stack underflow")
	}
	idx, ok := vm.pop1()
	if !ok {
		return vm.fail("STORE: stack underflow")
	}
	coll, ok := vm.pop1()
	if !ok {
		return vm.fail("STORE: stack underflow")
	}
	switch coll.Kind() {
	case value.Array:
		i, iok := asIntView(idx)
		if !iok {
			return vm.fail("STORE: array index is not numeric")
		}
		if !coll.AsArray().Set(i, val) {
			return vm.fail("STORE: cannot store an array into one of its own cells")
		}
	case value.Mapping:
		if !coll.AsMapping().Set(value.ToDisplayString(idx), val) {
			return vm.fail("STORE: cannot store a mapping into one of its own cells")
		}
	default:
		return vm.fail("STORE: value is not an array or mapping")
	}
	vm.stack = append(vm.stack, val)
	return nil
}

// dispatchCall implements CALL: resolve instr.Operand's call site
// first against the efun registry, then against the current program's
// function table.
func (vm *VM) dispatchCall(frame *CallFrame, instr bytecode.Instruction) *RuntimeError {
	siteIdx := int(instr.Operand)
	if siteIdx < 0 || siteIdx >= len(frame.Program.CallSites) {
		return vm.fail("CALL: call site index %d out of range", siteIdx)
	}
	site := frame.Program.CallSites[siteIdx]
	if len(vm.stack) < site.NumArgs {
		return vm.fail("CALL: stack underflow passing args to %q", site.Name)
	}
	args := append([]value.Value(nil), vm.stack[len(vm.stack)-site.NumArgs:]...)
	vm.stack = vm.stack[:len(vm.stack)-site.NumArgs]

	if ef, ok := vm.lookupEfun(site.Name); ok {
		if site.NumArgs < ef.MinArgs || (ef.MaxArgs >= 0 && site.NumArgs > ef.MaxArgs) {
			fmt.Fprintf(vm.diagOut, "efun %s: %d args out of range [%d,%d]\n", site.Name, site.NumArgs, ef.MinArgs, ef.MaxArgs)
			vm.stack = append(vm.stack, value.NullValue())
			return nil
		}
		result, rerr := ef.Fn(vm, args)
		if rerr != nil {
			return rerr
		}
		vm.stack = append(vm.stack, result)
		return nil
	}

	if fnIdx := frame.Program.FunctionByName(site.Name); fnIdx >= 0 {
		fn := frame.Program.Functions[fnIdx]
		if site.NumArgs != fn.NumParams {
			return vm.fail("CALL: %s expects %d args, got %d", site.Name, fn.NumParams, site.NumArgs)
		}
		vm.stack = append(vm.stack, args...)
		result, rerr := vm.CallFunction(frame.Program, fnIdx, site.NumArgs)
		if rerr != nil {
			return rerr
		}
		vm.stack = append(vm.stack, result)
		return nil
	}

	return vm.fail("CALL: undefined function or efun %q", site.Name)
}

// dispatchCallMethod implements CALL_METHOD: pop args, method name,
// then object, and dispatch via InvokeMethod. An unresolvable object
// or method is a diagnostic-and-Null outcome, not a runtime error —
// only a malformed stack is fatal here, per spec.md §4.7 step 1.
func (vm *VM) dispatchCallMethod(frame *CallFrame, instr bytecode.Instruction) *RuntimeError {
	n := int(instr.Operand)
	if n < 0 || len(vm.stack) < n+2 {
		return vm.fail("CALL_METHOD: stack underflow")
	}
	args := append([]value.Value(nil), vm.stack[len(vm.stack)-n:]...)
	nameVal := vm.stack[len(vm.stack)-n-1]
	objVal := vm.stack[len(vm.stack)-n-2]
	vm.stack = vm.stack[:len(vm.stack)-n-2]

	if nameVal.Kind() != value.String {
		return vm.fail("CALL_METHOD: method name is not a string")
	}
	if objVal.Kind() != value.Object || objVal.AsObject() == nil || objVal.AsObject().Destroyed() {
		fmt.Fprintf(vm.diagOut, "call_other: %q sent to a non-object or destructed object\n", nameVal.AsString())
		vm.stack = append(vm.stack, value.NullValue())
		return nil
	}
	resolver, ok := objVal.AsObject().(MethodResolver)
	if !ok {
		fmt.Fprintf(vm.diagOut, "call_other: object %s does not support method dispatch\n", objVal.AsObject().ObjectName())
		vm.stack = append(vm.stack, value.NullValue())
		return nil
	}
	result, rerr := vm.InvokeMethod(resolver, nameVal.AsString(), args)
	if rerr != nil {
		return rerr
	}
	vm.stack = append(vm.stack, result)
	return nil
}
