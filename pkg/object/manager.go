package object

import (
	"fmt"

	"github.com/Thurtea/amlp-driver/pkg/bytecode"
	"github.com/Thurtea/amlp-driver/pkg/value"
	"github.com/Thurtea/amlp-driver/pkg/vm"
)

// Manager is the ObjectManager of spec.md §3/§4.7: a flat vector of
// live objects with lookup by name. Clones of the same source path are
// disambiguated with a "#N" suffix, matching the driver's object
// naming convention ("/obj/rat#1", "/obj/rat#2", ...).
type Manager struct {
	objects []*Object
	byName  map[string]*Object
	clones  map[string]int
}

// NewManager returns an empty object manager.
func NewManager() *Manager {
	return &Manager{
		byName: make(map[string]*Object),
		clones: make(map[string]int),
	}
}

// Find looks an object up by its exact name (its clone path, including
// any "#N" suffix). It returns nil if no such object is currently live.
func (m *Manager) Find(name string) *Object {
	return m.byName[name]
}

// All returns every live object, for iteration by efuns like
// find_object's siblings or debug tooling. Callers must not retain the
// slice across a further CloneObject/Destroy call.
func (m *Manager) All() []*Object {
	return m.objects
}

func (m *Manager) register(obj *Object) {
	m.objects = append(m.objects, obj)
	m.byName[obj.name] = obj
}

func (m *Manager) nextName(sourcePath string) string {
	m.clones[sourcePath]++
	return fmt.Sprintf("%s#%d", sourcePath, m.clones[sourcePath])
}

// CloneObject implements clone_object (spec.md §4.7): prog is the
// already-compiled Program for sourcePath (compiling the source file
// itself is the efun layer's job, since that's where path sandboxing
// happens — see pkg/efun). CloneObject loads prog into machine, creates
// a new Object named after sourcePath with a unique "#N" suffix,
// attaches every function in prog as a method, registers the object,
// and — if the object defines a zero-arg create() — invokes it before
// returning the reference.
func (m *Manager) CloneObject(machine *vm.VM, sourcePath string, prog *bytecode.Program) (*Object, error) {
	if err := machine.LoadProgram(prog); err != nil {
		return nil, fmt.Errorf("object: %w", err)
	}
	obj := NewObject(m.nextName(sourcePath), nil)
	for i, fn := range prog.Functions {
		obj.AddMethod(fn.Name, i, fn.NumParams, prog)
	}
	m.register(obj)

	if _, numParams, _, found := obj.ResolveMethod("create"); found && numParams == 0 {
		if _, rerr := machine.InvokeMethod(obj, "create", nil); rerr != nil {
			return obj, rerr
		}
	}
	return obj, nil
}

// Destroy removes obj from the manager and releases it. Script-visible
// Object values referencing a destroyed object keep their identity
// (ObjectName still returns its former path) but Destroyed() becomes
// true, which is what makes further CALL_METHOD/efun dispatch against
// it resolve to Null instead of a dangling call.
func (m *Manager) Destroy(obj *Object) {
	if obj == nil || obj.destroyed {
		return
	}
	delete(m.byName, obj.name)
	for i, o := range m.objects {
		if o == obj {
			m.objects = append(m.objects[:i], m.objects[i+1:]...)
			break
		}
	}
	obj.Release()
}

// ValueOf wraps obj as a script-visible Value.
func ValueOf(obj *Object) value.Value {
	if obj == nil {
		return value.NullValue()
	}
	return value.ObjectValueOf(obj)
}
