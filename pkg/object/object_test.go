package object

import (
	"testing"

	"github.com/Thurtea/amlp-driver/pkg/value"
)

func TestPropertyLookupWalksPrototypeChain(t *testing.T) {
	proto := NewObject("/obj/animal", nil)
	proto.SetProperty("legs", value.IntValue(4))

	child := NewObject("/obj/rat#1", proto)

	v, ok := child.Property("legs")
	if !ok || v.AsInt() != 4 {
		t.Fatalf("expected to inherit legs=4 from prototype, got %+v ok=%v", v, ok)
	}

	child.SetProperty("legs", value.IntValue(2))
	v, ok = child.Property("legs")
	if !ok || v.AsInt() != 2 {
		t.Fatalf("expected own property to shadow prototype, got %+v ok=%v", v, ok)
	}

	// the prototype's own value must be untouched by the child's write.
	v, ok = proto.Property("legs")
	if !ok || v.AsInt() != 4 {
		t.Fatalf("prototype property must not be affected by child write, got %+v ok=%v", v, ok)
	}
}

func TestPropertyMissEverywhereIsNotOk(t *testing.T) {
	proto := NewObject("/obj/animal", nil)
	child := NewObject("/obj/rat#1", proto)
	if _, ok := child.Property("nosuch"); ok {
		t.Fatalf("expected a miss for an unset property")
	}
}

func TestResolveMethodWalksPrototypeChain(t *testing.T) {
	proto := NewObject("/obj/animal", nil)
	proto.AddMethod("speak", 3, 0, nil)

	child := NewObject("/obj/rat#1", proto)
	idx, numParams, _, found := child.ResolveMethod("speak")
	if !found || idx != 3 || numParams != 0 {
		t.Fatalf("expected to resolve inherited method speak, got idx=%d numParams=%d found=%v", idx, numParams, found)
	}

	if _, _, _, found := child.ResolveMethod("nosuch"); found {
		t.Fatalf("expected no resolution for an undefined method")
	}
}

func TestResolveMethodPrefersOwnOverPrototype(t *testing.T) {
	proto := NewObject("/obj/animal", nil)
	proto.AddMethod("speak", 3, 0, nil)

	child := NewObject("/obj/rat#1", proto)
	child.AddMethod("speak", 9, 0, nil)

	idx, _, _, found := child.ResolveMethod("speak")
	if !found || idx != 9 {
		t.Fatalf("expected the child's own method to shadow the prototype's, got idx=%d found=%v", idx, found)
	}
}

func TestReleaseTearsDownPropertiesAndPrototypeRefcount(t *testing.T) {
	proto := NewObject("/obj/animal", nil)
	proto.Retain() // simulate a second owner besides the child below

	child := NewObject("/obj/rat#1", proto)
	child.SetProperty("name", value.StringValue("whiskers"))

	child.Release()
	if !child.Destroyed() {
		t.Fatalf("expected child to be destroyed once its refcount drops to zero")
	}
	if proto.Destroyed() {
		t.Fatalf("prototype should still be alive: it was retained twice, released once")
	}
}
