package efun

import (
	"sort"

	"github.com/Thurtea/amlp-driver/pkg/value"
	"github.com/Thurtea/amlp-driver/pkg/vm"
)

// registerAggregateEfuns wires size, the type predicates, sort, and
// reverse from spec.md §4.8.
func (r *Registry) registerAggregateEfuns(machine *vm.VM) {
	machine.RegisterEfun("sizeof", 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		switch args[0].Kind() {
		case value.Array:
			return value.IntValue(int64(args[0].AsArray().Len())), nil
		case value.Mapping:
			return value.IntValue(int64(args[0].AsMapping().Len())), nil
		case value.String:
			return value.IntValue(int64(len(args[0].AsString()))), nil
		default:
			return value.IntValue(0), nil
		}
	})

	registerPredicate(machine, "is_array", func(v value.Value) bool { return v.Kind() == value.Array })
	registerPredicate(machine, "is_int", func(v value.Value) bool { return v.Kind() == value.Int })
	registerPredicate(machine, "is_float", func(v value.Value) bool { return v.Kind() == value.Float })
	registerPredicate(machine, "is_string", func(v value.Value) bool { return v.Kind() == value.String })
	registerPredicate(machine, "is_object", func(v value.Value) bool { return v.Kind() == value.Object })
	registerPredicate(machine, "is_mapping", func(v value.Value) bool { return v.Kind() == value.Mapping })

	machine.RegisterEfun("sort_array", 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		if args[0].Kind() != value.Array {
			return value.NullValue(), nil
		}
		src := args[0].AsArray()
		out := make([]value.Value, src.Len())
		copy(out, src.Elements())
		sort.SliceStable(out, func(i, j int) bool { return lessValue(out[i], out[j]) })
		return value.ArrayValueOf(machine.Arena().NewArray(out)), nil
	})

	machine.RegisterEfun("reverse_array", 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		if args[0].Kind() != value.Array {
			return value.NullValue(), nil
		}
		src := args[0].AsArray()
		out := make([]value.Value, src.Len())
		for i := 0; i < src.Len(); i++ {
			out[len(out)-1-i] = src.Get(int64(i))
		}
		return value.ArrayValueOf(machine.Arena().NewArray(out)), nil
	})
}

func registerPredicate(machine *vm.VM, name string, pred func(value.Value) bool) {
	machine.RegisterEfun(name, 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		if pred(args[0]) {
			return value.IntValue(1), nil
		}
		return value.IntValue(0), nil
	})
}

// lessValue orders two values for sort_array: numerically if both are
// numeric, lexically if both are strings, otherwise by Kind so the
// sort is at least total and stable.
func lessValue(a, b value.Value) bool {
	an, aIsNum := numericView(a)
	bn, bIsNum := numericView(b)
	if aIsNum && bIsNum {
		return an < bn
	}
	if a.Kind() == value.String && b.Kind() == value.String {
		return a.AsString() < b.AsString()
	}
	return a.Kind() < b.Kind()
}

func numericView(v value.Value) (float64, bool) {
	switch v.Kind() {
	case value.Int:
		return float64(v.AsInt()), true
	case value.Float:
		return v.AsFloat(), true
	default:
		return 0, false
	}
}
