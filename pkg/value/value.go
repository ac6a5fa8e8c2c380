// Package value implements the tagged runtime value representation shared
// by the compiler, the virtual machine, and the efun registry.
//
// A Value is always in exactly one of the variants listed below; operations
// that would produce an inconsistent variant (dividing a string, indexing an
// integer, ...) fail with a runtime error and the
// caller is expected to substitute Null rather than propagate a malformed
// Value.
//
// String payloads are reference counted. The header precedes the payload
// in memory conceptually (the Go representation keeps the header and the
// payload together in one struct since Go has no raw pointer arithmetic),
// and AddRef/Release/Free are the only sanctioned ways to mutate the count.
// Arrays and mappings are owned by an Arena (see arena.go) and are cloned
// by value when a Value containing one is duplicated deeply.
package value

import (
	"fmt"
	"math"
)

// Kind identifies which variant a Value currently holds.
type Kind int

const (
	Uninitialized Kind = iota
	Null
	Int
	Float
	String
	Array
	Mapping
	Object
	Function
)

func (k Kind) String() string {
	switch k {
	case Uninitialized:
		return "uninitialized"
	case Null:
		return "null"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Array:
		return "array"
	case Mapping:
		return "mapping"
	case Object:
		return "object"
	case Function:
		return "function"
	default:
		return "unknown"
	}
}

// StringHeader is the refcounted payload behind a Value of kind String.
// Every touch that keeps a reference to the payload alive (a stack push,
// a store into a local/global/property, passing as an argument) must call
// AddRef; every matching release must call Release. When the count reaches
// zero the payload is eligible for collection by the Go garbage collector
// (freeing here just means dropping the last Go-level reference — the
// counting discipline itself is what the spec requires, independent of
// whether the host language reclaims memory automatically).
type StringHeader struct {
	refcount int
	payload  string
}

// NewStringHeader creates a refcount-1 header wrapping payload.
func NewStringHeader(payload string) *StringHeader {
	return &StringHeader{refcount: 1, payload: payload}
}

// AddRef increments the header's reference count.
func (h *StringHeader) AddRef() {
	h.refcount++
}

// Release decrements the reference count. It is a programming error to
// release more times than the payload was referenced; the spec documents
// this as an assertion rather than a recoverable condition.
func (h *StringHeader) Release() {
	h.refcount--
	if h.refcount < 0 {
		panic("value: string refcount underflow")
	}
}

// RefCount reports the current reference count, chiefly for tests.
func (h *StringHeader) RefCount() int { return h.refcount }

// ObjectRef is a non-owning handle to an object record held by the object
// manager. The manager owns lifetime; a Value of kind Object never keeps
// the referent alive by itself.
type ObjectRef interface {
	ObjectName() string
	Destroyed() bool
}

// FunctionRef is a reference to a compiled VM function, used for
// first-class function values (passed as arguments, stored in
// variables, etc).
type FunctionRef struct {
	Name  string
	Index int
}

// Value is the tagged sum type described in spec.md §3.
type Value struct {
	kind   Kind
	i      int64
	f      float64
	str    *StringHeader
	arr    *ArrayValue
	m      *MappingValue
	obj    ObjectRef
	fn     *FunctionRef
}

// NullValue is the canonical Null value.
func NullValue() Value { return Value{kind: Null} }

// UninitializedValue is the canonical Uninitialized value.
func UninitializedValue() Value { return Value{kind: Uninitialized} }

// IntValue constructs an Int value.
func IntValue(i int64) Value { return Value{kind: Int, i: i} }

// FloatValue constructs a Float value.
func FloatValue(f float64) Value { return Value{kind: Float, f: f} }

// StringValue constructs a String value from a fresh header with refcount 1.
func StringValue(s string) Value { return Value{kind: String, str: NewStringHeader(s)} }

// StringValueFromHeader wraps an existing header without bumping its
// refcount; callers that want to retain the value separately must call
// AddRef explicitly (mirrors the teacher's clone/addref split).
func StringValueFromHeader(h *StringHeader) Value { return Value{kind: String, str: h} }

// ArrayValueOf wraps an arena-owned array.
func ArrayValueOf(a *ArrayValue) Value { return Value{kind: Array, arr: a} }

// MappingValueOf wraps an arena-owned mapping.
func MappingValueOf(m *MappingValue) Value { return Value{kind: Mapping, m: m} }

// ObjectValueOf wraps an object reference.
func ObjectValueOf(o ObjectRef) Value { return Value{kind: Object, obj: o} }

// FunctionValueOf wraps a function reference.
func FunctionValueOf(fn *FunctionRef) Value { return Value{kind: Function, fn: fn} }

// Kind returns the value's variant tag.
func (v Value) Kind() Kind { return v.kind }

// AsInt returns the raw int64 payload (only meaningful for Kind Int).
func (v Value) AsInt() int64 { return v.i }

// AsFloat returns the raw float64 payload (only meaningful for Kind Float).
func (v Value) AsFloat() float64 { return v.f }

// AsString returns the string payload (only meaningful for Kind String).
func (v Value) AsString() string {
	if v.str == nil {
		return ""
	}
	return v.str.payload
}

// StringHeaderRef exposes the backing header for refcount bookkeeping.
func (v Value) StringHeaderRef() *StringHeader { return v.str }

// AsArray returns the backing array (only meaningful for Kind Array).
func (v Value) AsArray() *ArrayValue { return v.arr }

// AsMapping returns the backing mapping (only meaningful for Kind Mapping).
func (v Value) AsMapping() *MappingValue { return v.m }

// AsObject returns the object reference (only meaningful for Kind Object).
func (v Value) AsObject() ObjectRef { return v.obj }

// AsFunction returns the function reference (only meaningful for Kind Function).
func (v Value) AsFunction() *FunctionRef { return v.fn }

// Truthy implements the truthiness rules from spec.md §4.1: Null and
// Uninitialized are false; Int/Float are false iff zero; non-empty strings
// are true; arrays, mappings, and objects are always true.
func (v Value) Truthy() bool {
	switch v.kind {
	case Uninitialized, Null:
		return false
	case Int:
		return v.i != 0
	case Float:
		return v.f != 0
	case String:
		return v.AsString() != ""
	case Array, Mapping, Object, Function:
		return true
	default:
		return false
	}
}

// AddRef bumps the reference count of a string payload. Non-string values
// are no-ops, matching the teacher's uniform addref/release API that is
// safe to call on any Value.
func AddRef(v Value) {
	if v.kind == String && v.str != nil {
		v.str.AddRef()
	}
}

// Release drops a reference to a string payload. Non-string values are
// no-ops.
func Release(v Value) {
	if v.kind == String && v.str != nil {
		v.str.Release()
	}
}

// Clone performs the spec's clone semantics: a deep copy for aggregates,
// a refcount bump for strings, and a plain value copy for everything else.
func Clone(v Value) Value {
	switch v.kind {
	case String:
		v.str.AddRef()
		return v
	case Array:
		return ArrayValueOf(v.arr.Clone())
	case Mapping:
		return MappingValueOf(v.m.Clone())
	default:
		return v
	}
}

// ToDisplayString renders a best-effort human-readable form of v, used by
// the write/printf efuns and by diagnostics. It never fails: values that
// cannot be rendered meaningfully degrade to a type tag.
func ToDisplayString(v Value) string {
	switch v.kind {
	case Uninitialized:
		return ""
	case Null:
		return "0"
	case Int:
		return fmt.Sprintf("%d", v.i)
	case Float:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return fmt.Sprintf("%f", v.f)
		}
		return fmt.Sprintf("%g", v.f)
	case String:
		return v.AsString()
	case Array:
		return v.arr.String()
	case Mapping:
		return v.m.String()
	case Object:
		if v.obj != nil {
			return "/" + v.obj.ObjectName()
		}
		return "<destructed object>"
	case Function:
		if v.fn != nil {
			return "<function " + v.fn.Name + ">"
		}
		return "<function>"
	default:
		return "<unknown>"
	}
}

// Equal implements the EQ opcode's value equality: same kind and same
// payload. Int/Float cross-kind equality is handled by the VM's numeric
// promotion, not here — Equal is for same-kind structural comparison used
// by aggregates (e.g. mapping key lookup) and by tests.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Uninitialized, Null:
		return true
	case Int:
		return a.i == b.i
	case Float:
		return a.f == b.f
	case String:
		return a.AsString() == b.AsString()
	case Object:
		return a.obj == b.obj
	case Function:
		return a.fn == b.fn
	case Array:
		return a.arr == b.arr
	case Mapping:
		return a.m == b.m
	default:
		return false
	}
}
