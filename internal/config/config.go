// Package config loads the driver's optional amlp.toml configuration
// file (spec.md §6 "Environment", SPEC_FULL.md §A1) and layers the CLI
// flags cmd/driver parses with urfave/cli/v3 on top of it. TOML values
// set the baseline; explicit flags always win, matching the precedence
// wudi-hey/cmd/hey/fpm's config+flags split and ProbeChain-go-probe's
// cmd/gprobe --config handling both follow.
package config

import (
	"os"

	"github.com/naoina/toml"
)

// DefaultStreamPort and DefaultFramedPort are spec.md §6's documented
// CLI defaults when no positional argument overrides them.
const (
	DefaultStreamPort       = 3000
	DefaultFramedPort       = 3001
	DefaultIdleTimeoutSecs  = 1800
	DefaultProgramCachePath = "amlp-programs.cache"
	driverRootEnv           = "AMLP_MUDLIB"
)

// Config is the driver's full runtime configuration, assembled from
// the built-in defaults and $AMLP_MUDLIB, then amlp.toml (if present),
// then CLI arguments, in that order of increasing precedence.
type Config struct {
	StreamPort       int    `toml:"stream_port"`
	FramedPort       int    `toml:"framed_port"`
	MasterSourcePath string `toml:"master_source_path"`
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`
	DebugTrace       bool   `toml:"debug_trace"`
	ProgramCachePath string `toml:"program_cache_path"`
}

// Default returns a Config populated with spec.md §6's documented
// defaults and $AMLP_MUDLIB (or the working directory) as the master
// source path.
func Default() Config {
	root := os.Getenv(driverRootEnv)
	if root == "" {
		root, _ = os.Getwd()
	}
	return Config{
		StreamPort:       DefaultStreamPort,
		FramedPort:       DefaultFramedPort,
		MasterSourcePath: root,
		IdleTimeoutSecs:  DefaultIdleTimeoutSecs,
		ProgramCachePath: DefaultProgramCachePath,
	}
}

// Load reads an amlp.toml file at path and overlays it onto Default().
// A missing file is not an error — amlp.toml is optional, per
// SPEC_FULL.md §A1 — but a present, malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
