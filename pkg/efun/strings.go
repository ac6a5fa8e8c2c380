package efun

import (
	"strings"

	"github.com/Thurtea/amlp-driver/pkg/value"
	"github.com/Thurtea/amlp-driver/pkg/vm"
)

// registerStringEfuns wires the string efuns from spec.md §4.8: length,
// substring, upper/lower case, trim, explode, implode.
func (r *Registry) registerStringEfuns(machine *vm.VM) {
	machine.RegisterEfun("strlen", 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		return value.IntValue(int64(len(args[0].AsString()))), nil
	})

	machine.RegisterEfun("substring", 2, 3, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		s := args[0].AsString()
		start := clampIndex(args[1].AsInt(), len(s))
		end := len(s)
		if len(args) == 3 {
			end = clampIndex(args[2].AsInt(), len(s))
		}
		if end < start {
			return value.StringValue(""), nil
		}
		return value.StringValue(s[start:end]), nil
	})

	machine.RegisterEfun("upper_case", 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		return value.StringValue(strings.ToUpper(args[0].AsString())), nil
	})

	machine.RegisterEfun("lower_case", 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		return value.StringValue(strings.ToLower(args[0].AsString())), nil
	})

	machine.RegisterEfun("trim", 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		return value.StringValue(strings.TrimSpace(args[0].AsString())), nil
	})

	machine.RegisterEfun("explode", 2, 2, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		sep := args[1].AsString()
		var parts []string
		if sep == "" {
			parts = strings.Split(args[0].AsString(), "")
		} else {
			parts = strings.Split(args[0].AsString(), sep)
		}
		elems := make([]value.Value, len(parts))
		for i, p := range parts {
			elems[i] = value.StringValue(p)
		}
		return value.ArrayValueOf(machine.Arena().NewArray(elems)), nil
	})

	machine.RegisterEfun("implode", 2, 2, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		if args[0].Kind() != value.Array {
			return value.NullValue(), nil
		}
		arr := args[0].AsArray()
		parts := make([]string, arr.Len())
		for i := 0; i < arr.Len(); i++ {
			parts[i] = value.ToDisplayString(arr.Get(int64(i)))
		}
		return value.StringValue(strings.Join(parts, args[1].AsString())), nil
	})
}

// clampIndex keeps a script-supplied index within [0, length], treating
// a negative index as an offset from the end of the string, matching
// common LPC-efun substring conventions.
func clampIndex(idx int64, length int) int {
	if idx < 0 {
		idx += int64(length)
	}
	if idx < 0 {
		return 0
	}
	if idx > int64(length) {
		return length
	}
	return int(idx)
}
