// Package object implements the VM's object model (spec.md §4.7): single
// prototype inheritance, chained property/method lookup, and the
// clone_object lifecycle. Object implements vm.MethodResolver so that
// CALL_METHOD, call_other, and tell_object can dispatch onto it without
// pkg/vm importing this package.
package object

import (
	"github.com/Thurtea/amlp-driver/pkg/bytecode"
	"github.com/Thurtea/amlp-driver/pkg/value"
)

// methodEntry is one resolved method: an index into prog's function
// table, its declared parameter count (cached so callers don't need to
// re-index prog.Functions), and the Program owning the bytecode.
type methodEntry struct {
	funcIndex int
	numParams int
	prog      *bytecode.Program
}

// Object is one live object record: a name (its identity/path),
// a single prototype pointer, a property table, and a method table.
// Method lookup and property reads walk the prototype chain; property
// writes always target the receiver (spec.md §4.7).
type Object struct {
	name       string
	prototype  *Object
	properties map[string]value.Value
	methods    map[string]methodEntry
	refcount   int
	destroyed  bool
}

// NewObject creates an object with the given name and optional
// prototype. Objects are normally created through a Manager's
// CloneObject, which also registers them and runs create(); NewObject
// is exposed directly for prototypes that are never cloned themselves
// (e.g. a hand-built root object in tests).
func NewObject(name string, prototype *Object) *Object {
	return &Object{
		name:       name,
		prototype:  prototype,
		properties: make(map[string]value.Value),
		methods:    make(map[string]methodEntry),
		refcount:   1,
	}
}

// ObjectName satisfies value.ObjectRef.
func (o *Object) ObjectName() string { return o.name }

// Destroyed satisfies value.ObjectRef.
func (o *Object) Destroyed() bool { return o.destroyed }

// Prototype returns the object's single prototype, or nil at the root
// of the chain.
func (o *Object) Prototype() *Object { return o.prototype }

// Retain increments the object's reference count.
func (o *Object) Retain() { o.refcount++ }

// Release decrements the object's reference count and, if it has
// dropped to zero, tears the object down: releases every property
// value, drops the method table, and decrements the prototype's own
// refcount. It does not remove the object from any Manager; callers
// that hold a Manager should go through Manager.Destroy instead.
func (o *Object) Release() {
	o.refcount--
	if o.refcount > 0 {
		return
	}
	for _, v := range o.properties {
		value.Release(v)
	}
	o.properties = nil
	o.methods = nil
	o.destroyed = true
	if o.prototype != nil {
		o.prototype.Release()
	}
}

// AddMethod registers a method against this object by name.
// Manager.CloneObject calls it for every function of a freshly loaded
// Program; no efun exposes it to scripts.
func (o *Object) AddMethod(name string, funcIndex, numParams int, prog *bytecode.Program) {
	o.methods[name] = methodEntry{funcIndex: funcIndex, numParams: numParams, prog: prog}
}

// ResolveMethod walks the prototype chain looking for name, satisfying
// vm.MethodResolver. The chain walk happens here rather than in the VM
// so that pkg/vm never needs to know that objects have prototypes at
// all.
func (o *Object) ResolveMethod(name string) (funcIndex int, numParams int, prog *bytecode.Program, found bool) {
	for obj := o; obj != nil; obj = obj.prototype {
		if m, ok := obj.methods[name]; ok {
			return m.funcIndex, m.numParams, m.prog, true
		}
	}
	return 0, 0, nil, false
}

// Property reads a property value, walking the prototype chain on a
// miss. The bool result is false only when the property is unset on
// every object in the chain, in which case the zero Value is Null.
func (o *Object) Property(name string) (value.Value, bool) {
	for obj := o; obj != nil; obj = obj.prototype {
		if v, ok := obj.properties[name]; ok {
			return v, true
		}
	}
	return value.NullValue(), false
}

// SetProperty writes a property on the receiver only; it never
// traverses the prototype chain (spec.md §4.7: "Property writes always
// target the current object").
func (o *Object) SetProperty(name string, v value.Value) {
	value.AddRef(v)
	if old, ok := o.properties[name]; ok {
		value.Release(old)
	}
	o.properties[name] = v
}
