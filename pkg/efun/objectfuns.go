package efun

import (
	"os"

	"github.com/Thurtea/amlp-driver/pkg/object"
	"github.com/Thurtea/amlp-driver/pkg/value"
	"github.com/Thurtea/amlp-driver/pkg/vm"
)

// environmentProperty is the internal property key objects use to
// record their containing object, read/written only by environment
// and move_object — scripts have no other way to reach it, since
// property names beginning with two underscores are not reachable
// through ordinary property-read sugar (see pkg/compiler's MemberExpr
// handling, which only ever compiles to call_other, never to a raw
// property read).
const environmentProperty = "__environment__"

// idProperty is the property present() matches against when an
// object's bare name doesn't match the identity string directly.
const idProperty = "id"

func resolveObject(v value.Value) (*object.Object, bool) {
	if v.Kind() != value.Object {
		return nil, false
	}
	obj, ok := v.AsObject().(*object.Object)
	if !ok || obj.Destroyed() {
		return nil, false
	}
	return obj, true
}

// registerObjectEfuns wires the object/player efuns from spec.md §4.8:
// clone_object, find_object, call_other, present, environment,
// move_object, this_player, file_name.
func (r *Registry) registerObjectEfuns(machine *vm.VM) {
	machine.RegisterEfun("clone_object", 1, 1, func(m *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		path := args[0].AsString()
		full, err := r.fs.Resolve(path)
		if err != nil {
			m.Diagnostic("clone_object: %v", err)
			return value.NullValue(), nil
		}
		src, err := os.ReadFile(full)
		if err != nil {
			m.Diagnostic("clone_object: %v", err)
			return value.NullValue(), nil
		}
		prog, err := compileSource(path, string(src))
		if err != nil {
			m.Diagnostic("clone_object: %v", err)
			return value.NullValue(), nil
		}
		obj, err := r.objects.CloneObject(m, path, prog)
		if err != nil {
			m.Diagnostic("clone_object: %v", err)
			return value.NullValue(), nil
		}
		return object.ValueOf(obj), nil
	})

	machine.RegisterEfun("find_object", 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		obj := r.objects.Find(args[0].AsString())
		return object.ValueOf(obj), nil
	})

	machine.RegisterEfun("call_other", 2, -1, func(m *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		obj, ok := resolveObject(args[0])
		if !ok {
			return value.NullValue(), nil
		}
		return m.InvokeMethod(obj, args[1].AsString(), args[2:])
	})

	machine.RegisterEfun("present", 1, 2, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		id := args[0].AsString()
		var env *object.Object
		if len(args) == 2 {
			env, _ = resolveObject(args[1])
		}
		for _, candidate := range r.objects.All() {
			if env != nil {
				if loc, ok := candidate.Property(environmentProperty); !ok || loc.AsObject() != env {
					continue
				}
			}
			if candidate.ObjectName() == id {
				return object.ValueOf(candidate), nil
			}
			if propID, ok := candidate.Property(idProperty); ok && propID.Kind() == value.String && propID.AsString() == id {
				return object.ValueOf(candidate), nil
			}
		}
		return value.NullValue(), nil
	})

	machine.RegisterEfun("environment", 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		obj, ok := resolveObject(args[0])
		if !ok {
			return value.NullValue(), nil
		}
		loc, ok := obj.Property(environmentProperty)
		if !ok {
			return value.NullValue(), nil
		}
		return loc, nil
	})

	machine.RegisterEfun("move_object", 2, 2, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		obj, ok := resolveObject(args[0])
		if !ok {
			return value.IntValue(0), nil
		}
		dest, ok := resolveObject(args[1])
		if !ok {
			return value.IntValue(0), nil
		}
		obj.SetProperty(environmentProperty, object.ValueOf(dest))
		return value.IntValue(1), nil
	})

	machine.RegisterEfun("this_player", 0, 0, func(_ *vm.VM, _ []value.Value) (value.Value, *vm.RuntimeError) {
		return r.currentPlayer, nil
	})

	machine.RegisterEfun("file_name", 1, 1, func(_ *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		obj, ok := resolveObject(args[0])
		if !ok {
			return value.NullValue(), nil
		}
		return value.StringValue(obj.ObjectName()), nil
	})

	machine.RegisterEfun("tell_object", 2, -1, func(m *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		obj, ok := resolveObject(args[0])
		if !ok {
			return value.IntValue(0), nil
		}
		rest := append([]value.Value{args[1]}, args[2:]...)
		_, rerr := m.InvokeMethod(obj, "receive_message", rest)
		if rerr != nil {
			return value.IntValue(0), rerr
		}
		return value.IntValue(1), nil
	})
}
