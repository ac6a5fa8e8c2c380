// Package diag provides the driver's operational logging: connects,
// disconnects, listener errors, and shutdown (spec.md §4.10). It is
// deliberately separate from pkg/vm's Debugger, which instruments
// bytecode execution (spec.md §4.6) rather than the host process.
//
// No third-party structured logger appears anywhere in the example
// pack this driver was grounded on, so this package is built on the
// standard library's log/slog — see DESIGN.md's "internal/diag" entry
// for the justification.
package diag

import (
	"io"
	"log/slog"
	"os"
)

// New builds a text-handler logger writing to w at the given level.
// The driver calls this once at startup with os.Stderr and threads the *slog.Logger through netio and
// session construction.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Default returns a logger at the Info level writing to os.Stderr, for
// callers (tests, --parse-test) that don't need a configured level.
func Default() *slog.Logger {
	return New(os.Stderr, slog.LevelInfo)
}
