package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/Thurtea/amlp-driver/pkg/bytecode"
)

// ProgramCache is a compiled-program cache keyed by the source path
// and its modification time, so an edited source file always misses
// and recompiles. It is a pure optimization (SPEC_FULL.md §A1/§A3): a
// miss, a decode error, or a closed/unavailable database all fall back
// to the caller recompiling from source, never a hard failure.
type ProgramCache struct {
	db *leveldb.DB
}

// OpenProgramCache opens (creating if necessary) a goleveldb database
// at path.
func OpenProgramCache(path string) (*ProgramCache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: cannot open program cache at %q: %w", path, err)
	}
	return &ProgramCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *ProgramCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func cacheKey(sourcePath string, modTime time.Time) []byte {
	h := sha256.New()
	h.Write([]byte(sourcePath))
	h.Write([]byte(modTime.UTC().Format(time.RFC3339Nano)))
	sum := h.Sum(nil)
	return []byte(hex.EncodeToString(sum))
}

// Get looks up the cached Program for sourcePath at modTime. ok is
// false on any cache miss or decode failure; callers should treat that
// identically to "not cached" and recompile.
func (c *ProgramCache) Get(sourcePath string, modTime time.Time) (prog *bytecode.Program, ok bool) {
	if c == nil || c.db == nil {
		return nil, false
	}
	data, err := c.db.Get(cacheKey(sourcePath, modTime), nil)
	if err != nil {
		return nil, false
	}
	var p bytecode.Program
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, false
	}
	return &p, true
}

// Put stores prog under sourcePath/modTime. A write failure is logged
// by the caller (via internal/diag) but never propagated as a fatal
// error — the cache is strictly an optimization.
func (c *ProgramCache) Put(sourcePath string, modTime time.Time, prog *bytecode.Program) error {
	if c == nil || c.db == nil {
		return errors.New("store: program cache is not open")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(prog); err != nil {
		return fmt.Errorf("store: cannot encode program for cache: %w", err)
	}
	return c.db.Put(cacheKey(sourcePath, modTime), buf.Bytes(), nil)
}
