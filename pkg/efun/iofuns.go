package efun

import (
	"os"
	"strings"

	"github.com/Thurtea/amlp-driver/pkg/value"
	"github.com/Thurtea/amlp-driver/pkg/vm"
)

// registerIOEfuns wires the host file/directory efuns from spec.md
// §4.8: read_file, write_file, file_size, get_dir, mkdir, remove_file.
// Every path argument goes through r.fs.Resolve first; a path that
// would escape the sandbox root fails the call with a diagnostic
// rather than a runtime error, consistent with every other efun's
// "bad input yields Null" convention.
func (r *Registry) registerIOEfuns(machine *vm.VM) {
	machine.RegisterEfun("read_file", 1, 3, func(m *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		full, err := r.fs.Resolve(args[0].AsString())
		if err != nil {
			m.Diagnostic("read_file: %v", err)
			return value.NullValue(), nil
		}
		data, err := os.ReadFile(full)
		if err != nil {
			m.Diagnostic("read_file: %v", err)
			return value.NullValue(), nil
		}
		text := string(data)
		if len(args) == 3 {
			lines := strings.Split(text, "\n")
			start := clampIndex(args[1].AsInt(), len(lines))
			end := clampIndex(args[2].AsInt(), len(lines))
			if end < start {
				return value.StringValue(""), nil
			}
			text = strings.Join(lines[start:end], "\n")
		}
		return value.StringValue(text), nil
	})

	machine.RegisterEfun("write_file", 2, 2, func(m *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		full, err := r.fs.Resolve(args[0].AsString())
		if err != nil {
			m.Diagnostic("write_file: %v", err)
			return value.IntValue(0), nil
		}
		f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			m.Diagnostic("write_file: %v", err)
			return value.IntValue(0), nil
		}
		defer f.Close()
		if _, err := f.WriteString(args[1].AsString()); err != nil {
			m.Diagnostic("write_file: %v", err)
			return value.IntValue(0), nil
		}
		return value.IntValue(1), nil
	})

	machine.RegisterEfun("file_size", 1, 1, func(m *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		// spec.md §4.8: -1 if the path escapes the sandbox or the entry
		// is absent, -2 for a directory, else the regular file's size.
		full, err := r.fs.Resolve(args[0].AsString())
		if err != nil {
			m.Diagnostic("file_size: %v", err)
			return value.IntValue(-1), nil
		}
		info, err := os.Stat(full)
		if err != nil {
			return value.IntValue(-1), nil
		}
		if info.IsDir() {
			return value.IntValue(-2), nil
		}
		return value.IntValue(info.Size()), nil
	})

	machine.RegisterEfun("get_dir", 1, 1, func(m *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		full, err := r.fs.Resolve(args[0].AsString())
		if err != nil {
			m.Diagnostic("get_dir: %v", err)
			return value.NullValue(), nil
		}
		entries, err := os.ReadDir(full)
		if err != nil {
			m.Diagnostic("get_dir: %v", err)
			return value.NullValue(), nil
		}
		names := make([]value.Value, len(entries))
		for i, e := range entries {
			names[i] = value.StringValue(e.Name())
		}
		return value.ArrayValueOf(machine.Arena().NewArray(names)), nil
	})

	machine.RegisterEfun("mkdir", 1, 1, func(m *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		full, err := r.fs.Resolve(args[0].AsString())
		if err != nil {
			m.Diagnostic("mkdir: %v", err)
			return value.IntValue(0), nil
		}
		if err := os.Mkdir(full, 0o755); err != nil {
			m.Diagnostic("mkdir: %v", err)
			return value.IntValue(0), nil
		}
		return value.IntValue(1), nil
	})

	machine.RegisterEfun("remove_file", 1, 1, func(m *vm.VM, args []value.Value) (value.Value, *vm.RuntimeError) {
		full, err := r.fs.Resolve(args[0].AsString())
		if err != nil {
			m.Diagnostic("remove_file: %v", err)
			return value.IntValue(0), nil
		}
		if err := os.Remove(full); err != nil {
			m.Diagnostic("remove_file: %v", err)
			return value.IntValue(0), nil
		}
		return value.IntValue(1), nil
	})
}
