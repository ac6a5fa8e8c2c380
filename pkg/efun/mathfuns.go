package efun

import (
	"math"
	"math/rand"

	"github.com/Thurtea/amlp-driver/pkg/value"
	"github.com/Thurtea/amlp-driver/pkg/vm"
)

// registerMathEfuns wires abs, sqrt, pow, random, min, max from
// spec.md §4.8. Each accepts either Int or Float and promotes to
// Float for sqrt/pow, matching the VM's own arithmetic promotion
// rules (see pkg/vm/ops.go).
func (r *Registry) registerMathEfuns(machine *vm.VM) {
	machine.RegisterEfun("abs", 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		if args[0].Kind() == value.Float {
			return value.FloatValue(math.Abs(args[0].AsFloat())), nil
		}
		n := args[0].AsInt()
		if n < 0 {
			n = -n
		}
		return value.IntValue(n), nil
	})

	machine.RegisterEfun("sqrt", 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		return value.FloatValue(math.Sqrt(asFloat(args[0]))), nil
	})

	machine.RegisterEfun("pow", 2, 2, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		return value.FloatValue(math.Pow(asFloat(args[0]), asFloat(args[1]))), nil
	})

	machine.RegisterEfun("random", 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		bound := args[0].AsInt()
		if bound <= 0 {
			return value.IntValue(0), nil
		}
		return value.IntValue(rand.Int63n(bound)), nil
	})

	machine.RegisterEfun("min", 1, -1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		return minMax(args, false), nil
	})

	machine.RegisterEfun("max", 1, -1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		return minMax(args, true), nil
	})
}

func asFloat(v value.Value) float64 {
	if v.Kind() == value.Float {
		return v.AsFloat()
	}
	return float64(v.AsInt())
}

// minMax reduces args numerically, preserving the Int/Float kind of
// the winning element (it does not force promotion the way binary +
// does, since there's no second operand to promote against).
func minMax(args []value.Value, wantMax bool) value.Value {
	best := args[0]
	bestF := asFloat(best)
	for _, a := range args[1:] {
		f := asFloat(a)
		if (wantMax && f > bestF) || (!wantMax && f < bestF) {
			best, bestF = a, f
		}
	}
	return best
}
