package value

import "strings"

// Arena owns heap-allocated aggregates (arrays and mappings). The VM holds
// one arena per running program; arrays and mappings created by MAKE_ARRAY
// / MAKE_MAPPING are registered here so their lifetime can be reasoned
// about independently of any single Value that happens to reference them.
//
// As documented in spec.md §9, arrays and mappings never form cycles
// because the source language has no syntactic way to build a
// self-referential aggregate; codegen's aggregate-store instructions
// additionally refuse to store an aggregate into one of its own cells
// (see ArrayValue.Set / MappingValue.Set) as a belt-and-braces measure.
type Arena struct {
	arrays   []*ArrayValue
	mappings []*MappingValue
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// NewArray allocates a fresh array of the given elements, registers it
// with the arena, and returns it.
func (a *Arena) NewArray(elems []Value) *ArrayValue {
	av := &ArrayValue{elems: append([]Value(nil), elems...)}
	a.arrays = append(a.arrays, av)
	return av
}

// NewMapping allocates a fresh empty mapping with the default bucket
// count and registers it with the arena.
func (a *Arena) NewMapping() *MappingValue {
	mv := newMappingValue()
	a.mappings = append(a.mappings, mv)
	return mv
}

// defaultBucketCount is the fixed number of hash buckets mappings use, per
// spec.md §3 ("Mapping: hash table ... with a fixed number of buckets and
// collision chaining").
const defaultBucketCount = 64

// ArrayValue is an ordered, growable sequence of Values. Growth doubles
// capacity, matching spec.md §3.
type ArrayValue struct {
	elems []Value
}

// Len returns the number of elements.
func (a *ArrayValue) Len() int { return len(a.elems) }

// Get returns the element at idx, or Null if idx is out of range (spec.md
// §4.6 INDEX_ARRAY: "out-of-range yields Null").
func (a *ArrayValue) Get(idx int64) Value {
	if idx < 0 || idx >= int64(len(a.elems)) {
		return NullValue()
	}
	return a.elems[idx]
}

// Set writes value at idx in place (STORE_ARRAY). Out-of-range indices
// grow the array by doubling capacity as needed, consistent with the
// array's own doubling growth policy. Storing the array into one of its
// own cells is rejected; the caller is expected to substitute Null.
func (a *ArrayValue) Set(idx int64, val Value) bool {
	if idx < 0 {
		return false
	}
	if val.Kind() == Array && val.AsArray() == a {
		return false
	}
	if idx >= int64(len(a.elems)) {
		newLen := idx + 1
		if cap(a.elems) < int(newLen) {
			newCap := cap(a.elems)
			if newCap == 0 {
				newCap = 4
			}
			for int64(newCap) < newLen {
				newCap *= 2
			}
			grown := make([]Value, len(a.elems), newCap)
			copy(grown, a.elems)
			a.elems = grown
		}
		for int64(len(a.elems)) < newLen {
			a.elems = append(a.elems, NullValue())
		}
	}
	a.elems[idx] = val
	return true
}

// Append adds one element, growing by doubling when capacity is
// exhausted.
func (a *ArrayValue) Append(val Value) {
	if len(a.elems) == cap(a.elems) {
		newCap := cap(a.elems) * 2
		if newCap == 0 {
			newCap = 4
		}
		grown := make([]Value, len(a.elems), newCap)
		copy(grown, a.elems)
		a.elems = grown
	}
	a.elems = append(a.elems, val)
}

// Elements returns a read-only view of the underlying slice.
func (a *ArrayValue) Elements() []Value { return a.elems }

// Clone performs a deep value-copy of the array, per spec.md §3 "cloned
// by value when needed".
func (a *ArrayValue) Clone() *ArrayValue {
	out := make([]Value, len(a.elems))
	for i, e := range a.elems {
		out[i] = Clone(e)
	}
	return &ArrayValue{elems: out}
}

func (a *ArrayValue) String() string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteByte('{')
	for i, e := range a.elems {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ToDisplayString(e))
	}
	b.WriteByte('}')
	b.WriteByte(')')
	return b.String()
}

// mappingEntry is one hash-chain link.
type mappingEntry struct {
	key  string
	val  Value
	next *mappingEntry
}

// MappingValue is a hash table keyed by strings, with a fixed bucket
// count and collision chaining. Iteration order is not guaranteed, per
// spec.md §3.
type MappingValue struct {
	buckets []*mappingEntry
	count   int
}

func newMappingValue() *MappingValue {
	return &MappingValue{buckets: make([]*mappingEntry, defaultBucketCount)}
}

func hashKey(key string) int {
	h := 2166136261
	for i := 0; i < len(key); i++ {
		h ^= int(key[i])
		h *= 16777619
	}
	if h < 0 {
		h = -h
	}
	return h
}

// Get looks up key, returning (value, true) on hit or (Null, false) on
// miss.
func (m *MappingValue) Get(key string) (Value, bool) {
	idx := hashKey(key) % len(m.buckets)
	for e := m.buckets[idx]; e != nil; e = e.next {
		if e.key == key {
			return e.val, true
		}
	}
	return NullValue(), false
}

// Set inserts or overwrites key with val. Storing the mapping into one of
// its own cells is rejected (see ArrayValue.Set for the rationale).
func (m *MappingValue) Set(key string, val Value) bool {
	if val.Kind() == Mapping && val.AsMapping() == m {
		return false
	}
	idx := hashKey(key) % len(m.buckets)
	for e := m.buckets[idx]; e != nil; e = e.next {
		if e.key == key {
			e.val = val
			return true
		}
	}
	m.buckets[idx] = &mappingEntry{key: key, val: val, next: m.buckets[idx]}
	m.count++
	return true
}

// Keys returns all keys in unspecified order.
func (m *MappingValue) Keys() []string {
	keys := make([]string, 0, m.count)
	for _, head := range m.buckets {
		for e := head; e != nil; e = e.next {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Len returns the number of entries.
func (m *MappingValue) Len() int { return m.count }

// Clone performs a deep value-copy of the mapping.
func (m *MappingValue) Clone() *MappingValue {
	out := newMappingValue()
	for _, head := range m.buckets {
		for e := head; e != nil; e = e.next {
			out.Set(e.key, Clone(e.val))
		}
	}
	return out
}

func (m *MappingValue) String() string {
	var b strings.Builder
	b.WriteString("([ ")
	first := true
	for _, head := range m.buckets {
		for e := head; e != nil; e = e.next {
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(e.key)
			b.WriteString(": ")
			b.WriteString(ToDisplayString(e.val))
		}
	}
	b.WriteString(" ])")
	return b.String()
}
