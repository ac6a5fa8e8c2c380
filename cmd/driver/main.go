// Command driver is the AMLP server entrypoint: it loads configuration,
// compiles (or loads from cache) the master source tree, stands up the
// efun registry and VM, and runs the dual stream/framed listeners until
// told to shut down. It also exposes a --parse-test mode for checking a
// single source file compiles, and a supplemental "repl" subcommand for
// probing the compiler/VM interactively (SPEC_FULL.md §A2).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/Thurtea/amlp-driver/internal/config"
	"github.com/Thurtea/amlp-driver/internal/diag"
	"github.com/Thurtea/amlp-driver/internal/store"
	"github.com/Thurtea/amlp-driver/pkg/bytecode"
	"github.com/Thurtea/amlp-driver/pkg/compiler"
	"github.com/Thurtea/amlp-driver/pkg/efun"
	"github.com/Thurtea/amlp-driver/pkg/netio"
	"github.com/Thurtea/amlp-driver/pkg/object"
	"github.com/Thurtea/amlp-driver/pkg/parser"
	"github.com/Thurtea/amlp-driver/pkg/vm"
)

func main() {
	app := &cli.Command{
		Name:  "driver",
		Usage: "the AMLP text-world driver",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "parse-test",
				Usage: "compile <source_path> and report function count and bytecode size",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to amlp.toml (default: $AMLP_MUDLIB/amlp.toml)",
			},
		},
		Commands: []*cli.Command{replCommand},
		Action:   runDriver,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "driver: %v\n", err)
		os.Exit(1)
	}
}

func runDriver(ctx context.Context, cmd *cli.Command) error {
	if path := cmd.String("parse-test"); path != "" {
		ok := runParseTest(path)
		if !ok {
			os.Exit(1)
		}
		return nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	args := cmd.Args().Slice()
	if len(args) > 0 {
		p, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("stream_port: %w", err)
		}
		cfg.StreamPort = p
	}
	if len(args) > 1 {
		p, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("framed_port: %w", err)
		}
		cfg.FramedPort = p
	}
	if len(args) > 2 {
		cfg.MasterSourcePath = args[2]
	}

	level := slog.LevelInfo
	if cfg.DebugTrace {
		level = slog.LevelDebug
	}
	log := diag.New(os.Stderr, level)

	machine, reg, players, cache, playerProg, err := bootstrap(cfg, log)
	if err != nil {
		return err
	}
	defer cache.Close()

	m := netio.New(netio.Config{
		StreamAddr:    fmt.Sprintf(":%d", cfg.StreamPort),
		FramedAddr:    fmt.Sprintf(":%d", cfg.FramedPort),
		IdleTimeout:   time.Duration(cfg.IdleTimeoutSecs) * time.Second,
		Machine:       machine,
		Registry:      reg,
		Players:       players,
		PlayerProgram: playerProg,
		Log:           log,
	})

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("driver: listening", "stream_port", cfg.StreamPort, "framed_port", cfg.FramedPort)
	return m.Run(runCtx)
}

func loadConfig(cmd *cli.Command) (config.Config, error) {
	path := cmd.String("config")
	if path == "" {
		path = filepath.Join(config.Default().MasterSourcePath, "amlp.toml")
	}
	return config.Load(path)
}

// bootstrap compiles (or loads from cache) obj/player.c under the
// master source path into a clonable "player" program, and wires together the shared VM, efun
// registry, and persistence the multiplexer needs per session.
func bootstrap(cfg config.Config, log *slog.Logger) (*vm.VM, *efun.Registry, *store.PlayerStore, *store.ProgramCache, *bytecode.Program, error) {
	machine := vm.New()
	sandbox, err := efun.NewSandbox(cfg.MasterSourcePath)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	reg := efun.NewRegistry(object.NewManager(), sandbox)
	reg.RegisterAll(machine)

	players, err := store.NewPlayerStore(filepath.Join(cfg.MasterSourcePath, "save", "players"))
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	cache, err := store.OpenProgramCache(filepath.Join(cfg.MasterSourcePath, cfg.ProgramCachePath))
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	playerSourcePath := filepath.Join(cfg.MasterSourcePath, "obj", "player.c")
	prog, err := compileWithCache(cache, playerSourcePath, log)
	if err != nil {
		log.Warn("driver: no bootstrap player program available", "path", playerSourcePath, "err", err)
		prog = nil
	}

	return machine, reg, players, cache, prog, nil
}

// compileWithCache consults cache before invoking the lexer/parser/
// compiler pipeline, and populates it after a successful compile
// (SPEC_FULL.md §A3). A cache miss, decode failure, or missing source
// file all fall back transparently rather than aborting startup.
func compileWithCache(cache *store.ProgramCache, path string, log *slog.Logger) (*bytecode.Program, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if prog, ok := cache.Get(path, info.ModTime()); ok {
		return prog, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := parser.New(string(src))
	astProg, err := p.Parse()
	if err != nil {
		return nil, err
	}
	prog, err := compiler.New().Compile(path, string(src), astProg)
	if err != nil {
		return nil, err
	}
	if err := cache.Put(path, info.ModTime(), prog); err != nil {
		log.Warn("driver: program cache write failed", "path", path, "err", err)
	}
	return prog, nil
}

// runParseTest implements `driver --parse-test <source_path>`
// (spec.md §6): compile one file and report function count and
// bytecode size, true on success.
func runParseTest(path string) bool {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse-test: %v\n", err)
		return false
	}
	p := parser.New(string(src))
	astProg, err := p.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse-test: parse error: %v\n", err)
		for _, e := range p.Errors() {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
		return false
	}
	prog, err := compiler.New().Compile(path, string(src), astProg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse-test: compile error: %v\n", err)
		return false
	}
	fmt.Printf("%s: %d functions, %d instructions\n", path, len(prog.Functions), len(prog.Code))
	return true
}
