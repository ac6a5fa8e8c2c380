package efun

import (
	"github.com/Thurtea/amlp-driver/pkg/bytecode"
	"github.com/Thurtea/amlp-driver/pkg/compiler"
	"github.com/Thurtea/amlp-driver/pkg/object"
	"github.com/Thurtea/amlp-driver/pkg/parser"
	"github.com/Thurtea/amlp-driver/pkg/value"
	"github.com/Thurtea/amlp-driver/pkg/vm"
)

// Registry owns everything the standard efuns need beyond the VM
// itself: the live object manager (for clone_object/find_object/
// call_other/present/environment/move_object), the path sandbox (for
// the file efuns), and the session layer's current-player binding
// (for this_player and write's implicit receiver resolution).
type Registry struct {
	objects *object.Manager
	fs      *Sandbox

	// currentPlayer is set by the session/command-dispatch layer around
	// each command it runs, and read by the this_player efun. It is
	// deliberately a plain field rather than a VM global: this_player is
	// about "who is driving the current command", which is a property of
	// the call, not of any one Program's global-variable namespace.
	currentPlayer value.Value
}

// NewRegistry builds a Registry around an object manager and a path
// sandbox. Both are typically process-wide singletons shared with the
// session and netio layers.
func NewRegistry(objects *object.Manager, fs *Sandbox) *Registry {
	return &Registry{objects: objects, fs: fs, currentPlayer: value.NullValue()}
}

// SetCurrentPlayer binds the object the this_player efun should return
// for the duration of the command currently being dispatched. The
// session layer calls this around every script dispatch and clears it
// back to Null afterward (spec.md §4.9).
func (r *Registry) SetCurrentPlayer(obj value.Value) { r.currentPlayer = obj }

// Objects returns the live object manager backing clone_object/
// find_object, so the session layer can clone bound player objects and
// resolve movement destinations without duplicating Registry's state.
func (r *Registry) Objects() *object.Manager { return r.objects }

// Filesystem returns the path sandbox backing the file efuns, so the
// session layer's privileged ls/cd/cat built-ins stay inside the same
// boundary as read_file/write_file.
func (r *Registry) Filesystem() *Sandbox { return r.fs }

// CompileSource exposes the lex/parse/compile pipeline clone_object
// uses internally to callers outside this package.
func CompileSource(filename, src string) (*bytecode.Program, error) {
	return compileSource(filename, src)
}

// RegisterAll registers every standard efun from spec.md §4.8 against
// machine.
func (r *Registry) RegisterAll(machine *vm.VM) {
	r.registerStringEfuns(machine)
	r.registerAggregateEfuns(machine)
	r.registerMathEfuns(machine)
	r.registerIOEfuns(machine)
	r.registerObjectEfuns(machine)
	r.registerOutputEfuns(machine)
}

// compileSource runs the full lex/parse/compile pipeline used by
// clone_object on already-read source text, reusing exactly the
// pipeline cmd/driver uses to load the bootstrap objects.
func compileSource(filename, src string) (*bytecode.Program, error) {
	p := parser.New(src)
	astProg, err := p.Parse()
	if err != nil {
		return nil, err
	}
	return compiler.New().Compile(filename, src, astProg)
}
