package efun

import (
	"fmt"

	"github.com/Thurtea/amlp-driver/pkg/value"
	"github.com/Thurtea/amlp-driver/pkg/vm"
)

// registerOutputEfuns wires write and printf from spec.md §4.8. write
// sends a message to this_player (the usual script-visible "print to
// whoever ran this command" primitive); printf is the diagnostic-only
// path, going straight to the VM's diagnostic stream rather than to
// any player.
func (r *Registry) registerOutputEfuns(machine *vm.VM) {
	machine.RegisterEfun("write", 1, 1, func(m *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		obj, ok := resolveObject(r.currentPlayer)
		if !ok {
			return value.IntValue(0), nil
		}
		_, rerr := m.InvokeMethod(obj, "receive_message", []value.Value{args[0]})
		if rerr != nil {
			return value.IntValue(0), rerr
		}
		return value.IntValue(1), nil
	})

	machine.RegisterEfun("printf", 1, -1, func(m *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		format := args[0].AsString()
		rest := make([]interface{}, len(args)-1)
		for i, a := range args[1:] {
			rest[i] = value.ToDisplayString(a)
		}
		m.Diagnostic("%s", fmt.Sprintf(format, rest...))
		return value.IntValue(1), nil
	})
}
