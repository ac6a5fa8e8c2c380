package efun

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Thurtea/amlp-driver/pkg/object"
	"github.com/Thurtea/amlp-driver/pkg/value"
	"github.com/Thurtea/amlp-driver/pkg/vm"
)

func callEfun(t *testing.T, machine *vm.VM, name string, args ...value.Value) value.Value {
	t.Helper()
	entry, ok := machine.LookupEfun(name)
	if !ok {
		t.Fatalf("efun %q not registered", name)
	}
	result, rerr := entry.Fn(machine, args)
	if rerr != nil {
		t.Fatalf("efun %q returned runtime error: %v", name, rerr)
	}
	return result
}

func newRegistry(t *testing.T) (*vm.VM, *Registry) {
	t.Helper()
	machine := vm.New()
	sandbox, err := NewSandbox(t.TempDir())
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	reg := NewRegistry(object.NewManager(), sandbox)
	reg.RegisterAll(machine)
	return machine, reg
}

func TestStringEfuns(t *testing.T) {
	machine, _ := newRegistry(t)
	if got := callEfun(t, machine, "strlen", value.StringValue("hello")); got.AsInt() != 5 {
		t.Fatalf("strlen: expected 5, got %v", got.AsInt())
	}
	if got := callEfun(t, machine, "upper_case", value.StringValue("abc")); got.AsString() != "ABC" {
		t.Fatalf("upper_case: expected ABC, got %q", got.AsString())
	}
	if got := callEfun(t, machine, "trim", value.StringValue("  hi  ")); got.AsString() != "hi" {
		t.Fatalf("trim: expected %q, got %q", "hi", got.AsString())
	}
	exploded := callEfun(t, machine, "explode", value.StringValue("a,b,c"), value.StringValue(","))
	if exploded.Kind() != value.Array || exploded.AsArray().Len() != 3 {
		t.Fatalf("explode: expected 3 elements, got %+v", exploded)
	}
	joined := callEfun(t, machine, "implode", exploded, value.StringValue("-"))
	if joined.AsString() != "a-b-c" {
		t.Fatalf("implode: expected a-b-c, got %q", joined.AsString())
	}
}

func TestAggregateEfuns(t *testing.T) {
	machine, _ := newRegistry(t)
	arr := value.ArrayValueOf(machine.Arena().NewArray([]value.Value{
		value.IntValue(3), value.IntValue(1), value.IntValue(2),
	}))
	if got := callEfun(t, machine, "sizeof", arr); got.AsInt() != 3 {
		t.Fatalf("sizeof: expected 3, got %v", got.AsInt())
	}
	if got := callEfun(t, machine, "is_array", arr); got.AsInt() != 1 {
		t.Fatalf("is_array: expected true")
	}
	if got := callEfun(t, machine, "is_int", arr); got.AsInt() != 0 {
		t.Fatalf("is_int: expected false for an array")
	}
	sorted := callEfun(t, machine, "sort_array", arr)
	s := sorted.AsArray()
	if s.Get(0).AsInt() != 1 || s.Get(1).AsInt() != 2 || s.Get(2).AsInt() != 3 {
		t.Fatalf("sort_array: expected [1,2,3], got [%v,%v,%v]", s.Get(0).AsInt(), s.Get(1).AsInt(), s.Get(2).AsInt())
	}
	reversed := callEfun(t, machine, "reverse_array", arr)
	r := reversed.AsArray()
	if r.Get(0).AsInt() != 2 || r.Get(2).AsInt() != 3 {
		t.Fatalf("reverse_array: unexpected result %+v", r)
	}
}

func TestMathEfuns(t *testing.T) {
	machine, _ := newRegistry(t)
	if got := callEfun(t, machine, "abs", value.IntValue(-5)); got.AsInt() != 5 {
		t.Fatalf("abs: expected 5, got %v", got.AsInt())
	}
	if got := callEfun(t, machine, "pow", value.FloatValue(2), value.FloatValue(10)); got.AsFloat() != 1024 {
		t.Fatalf("pow: expected 1024, got %v", got.AsFloat())
	}
	if got := callEfun(t, machine, "max", value.IntValue(1), value.IntValue(9), value.IntValue(4)); got.AsInt() != 9 {
		t.Fatalf("max: expected 9, got %v", got.AsInt())
	}
	if got := callEfun(t, machine, "min", value.IntValue(1), value.IntValue(9), value.IntValue(4)); got.AsInt() != 1 {
		t.Fatalf("min: expected 1, got %v", got.AsInt())
	}
}

func TestFileEfunsStayInsideSandbox(t *testing.T) {
	machine, reg := newRegistry(t)

	written := callEfun(t, machine, "write_file", value.StringValue("notes.txt"), value.StringValue("hello\n"))
	if written.AsInt() != 1 {
		t.Fatalf("write_file: expected success")
	}
	content := callEfun(t, machine, "read_file", value.StringValue("notes.txt"))
	if content.AsString() != "hello\n" {
		t.Fatalf("read_file: expected %q, got %q", "hello\n", content.AsString())
	}

	escaped := callEfun(t, machine, "read_file", value.StringValue("../../etc/passwd"))
	if escaped.Kind() != value.Null {
		t.Fatalf("read_file: expected Null for a path escaping the sandbox, got %+v", escaped)
	}

	if got, err := reg.fs.Resolve("notes.txt"); err != nil || filepath.Dir(got) != reg.fs.Root() {
		t.Fatalf("Resolve: expected notes.txt to resolve inside the sandbox root, got %q err=%v", got, err)
	}
}

func TestObjectEfuns(t *testing.T) {
	machine, reg := newRegistry(t)

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "room.c"), []byte(`void create() {}`), 0o644)
	sandbox, err := NewSandbox(dir)
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	reg.fs = sandbox

	cloned := callEfun(t, machine, "clone_object", value.StringValue("room.c"))
	if cloned.Kind() != value.Object {
		t.Fatalf("clone_object: expected an Object, got %+v", cloned)
	}
	obj := cloned.AsObject()

	found := callEfun(t, machine, "find_object", value.StringValue(obj.ObjectName()))
	if found.Kind() != value.Object || found.AsObject().ObjectName() != obj.ObjectName() {
		t.Fatalf("find_object: expected to find the clone back by name")
	}

	unknown := callEfun(t, machine, "find_object", value.StringValue("/obj/nosuch"))
	if unknown.Kind() != value.Null {
		t.Fatalf("find_object: expected Null for an unknown path")
	}
}
