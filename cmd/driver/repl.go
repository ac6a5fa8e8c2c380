package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v3"

	"github.com/Thurtea/amlp-driver/pkg/compiler"
	"github.com/Thurtea/amlp-driver/pkg/efun"
	"github.com/Thurtea/amlp-driver/pkg/object"
	"github.com/Thurtea/amlp-driver/pkg/parser"
	"github.com/Thurtea/amlp-driver/pkg/value"
	"github.com/Thurtea/amlp-driver/pkg/vm"
)

// replCommand is the supplemental "driver repl" console (SPEC_FULL.md
// §A2): an operator can load the compiler and a live VM + object
// manager and try scripts against them line by line, the same role the
// teacher's "smog repl" fills (cmd/smog/main.go:runREPL), but backed by
// a real line editor instead of a bare bufio.Scanner loop.
var replCommand = &cli.Command{
	Name:  "repl",
	Usage: "interactively compile and run AMLP statements against a live VM",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		return runREPL()
	},
}

func runREPL() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "amlp> ",
		HistoryFile:     "/tmp/amlp-driver-repl.history",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	cfgDir, err := os.MkdirTemp("", "amlp-repl")
	if err != nil {
		return err
	}
	sandbox, err := efun.NewSandbox(cfgDir)
	if err != nil {
		return err
	}
	machine := vm.New()
	reg := efun.NewRegistry(object.NewManager(), sandbox)
	reg.RegisterAll(machine)

	fmt.Println("AMLP driver REPL. Ctrl-D to exit.")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		evalREPLLine(machine, line)
	}
}

// evalREPLLine parses, compiles, and runs one line as a standalone
// function body, printing its result or any error without tearing down
// the REPL — mirroring the teacher's evalREPL error-recovery contract.
func evalREPLLine(machine *vm.VM, line string) {
	source := "mixed __repl() { return " + line + "; }"
	p := parser.New(source)
	astProg, err := p.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse error: %v\n", err)
		return
	}
	prog, err := compiler.New().Compile("<repl>", source, astProg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compile error: %v\n", err)
		return
	}
	idx := prog.FunctionByName("__repl")
	if idx < 0 {
		fmt.Fprintln(os.Stderr, "compile error: __repl not found")
		return
	}
	result, rerr := machine.CallFunction(prog, idx, 0)
	if rerr != nil {
		fmt.Fprintf(os.Stderr, "runtime error: %v\n", rerr)
		return
	}
	fmt.Println(formatResult(result))
}

func formatResult(v value.Value) string {
	switch v.Kind() {
	case value.Null, value.Uninitialized:
		return "0"
	case value.Int:
		return fmt.Sprintf("%d", v.AsInt())
	case value.Float:
		return fmt.Sprintf("%g", v.AsFloat())
	case value.String:
		return fmt.Sprintf("%q", v.AsString())
	case value.Array:
		return v.AsArray().String()
	case value.Mapping:
		return v.AsMapping().String()
	default:
		return v.Kind().String()
	}
}
