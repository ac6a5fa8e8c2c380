// Package store implements the driver's two persistence surfaces
// (SPEC_FULL.md §A3): mandatory player save files on disconnect, and
// an ambient compiled-program cache that is a pure optimization — a
// cache miss or a corrupt entry always falls back to full compilation,
// never a hard failure.
package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PlayerStore persists the minimal per-session save record spec.md §6
// requires: save/players/<username> holding at least a name: and a
// priv: field.
type PlayerStore struct {
	root string
}

// NewPlayerStore returns a PlayerStore rooted at dir (typically
// "<master_source_path>/save/players"), creating the directory if it
// does not yet exist.
func NewPlayerStore(dir string) (*PlayerStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: cannot create player save directory: %w", err)
	}
	return &PlayerStore{root: dir}, nil
}

func (s *PlayerStore) path(username string) string {
	return filepath.Join(s.root, username)
}

// Exists reports whether username already has a save record, the
// signal spec.md §4.9's GetName transition uses to route into
// GetPassword instead of NewPassword.
func (s *PlayerStore) Exists(username string) bool {
	_, err := os.Stat(s.path(username))
	return err == nil
}

// Record is the minimal persisted per-player state.
type Record struct {
	Name          string
	PrivLevel     int
	PasswordHash  string
}

// Save writes rec's save file, overwriting any existing one. The
// session layer calls it on quit, on the save and promote commands,
// and from Session.Disconnect, so one session can write its record
// more than once.
func (s *PlayerStore) Save(rec Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "name:%s\n", rec.Name)
	fmt.Fprintf(&b, "priv:%d\n", rec.PrivLevel)
	if rec.PasswordHash != "" {
		fmt.Fprintf(&b, "passwd:%s\n", rec.PasswordHash)
	}
	return os.WriteFile(s.path(rec.Name), []byte(b.String()), 0o600)
}

// Load reads username's save record. ok is false if no record exists.
func (s *PlayerStore) Load(username string) (rec Record, ok bool, err error) {
	f, openErr := os.Open(s.path(username))
	if openErr != nil {
		if os.IsNotExist(openErr) {
			return Record{}, false, nil
		}
		return Record{}, false, openErr
	}
	defer f.Close()

	rec.Name = username
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		switch key {
		case "name":
			rec.Name = value
		case "priv":
			lvl, convErr := strconv.Atoi(value)
			if convErr == nil {
				rec.PrivLevel = lvl
			}
		case "passwd":
			rec.PasswordHash = value
		}
	}
	if err := scanner.Err(); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}
