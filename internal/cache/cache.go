// Package cache keeps diagnostic results on disk so unchanged datasets are not re-analyzed.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
)

// schemaVersion is bumped whenever the payload layout or the engine's findings change.
const schemaVersion uint16 = 1

// Cache stores entries as msgpack files keyed by content digest.
// Safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Entry is the cached result of diagnosing one dataset.
type Entry struct {
	Dataset     string
	Format      string
	Columns     []string
	Rows        int
	Diagnostics []diagnostics.Diagnostic
	CreatedAt   time.Time
}

type payload struct {
	Schema      uint16
	Dataset     string
	Format      string
	Columns     []string
	Rows        int
	Diagnostics []diskDiagnostic
	CreatedAt   time.Time
}

type diskDiagnostic struct {
	Type           string
	Column         string
	Message        string
	Severity       uint8
	Types          []string `msgpack:",omitempty"`
	NullPercentage string   `msgpack:",omitempty"`
	Unique         *diskValue
}

type diskValue struct {
	Kind uint8
	Str  string  `msgpack:",omitempty"`
	Num  float64 `msgpack:",omitempty"`
	Bool bool    `msgpack:",omitempty"`
}

// DefaultDir returns $XDG_CACHE_HOME/datalens, or ~/.cache/datalens.
func DefaultDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "datalens"), nil
}

// Open prepares a cache rooted at dir; an empty dir selects DefaultDir.
func Open(dir string) (*Cache, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

// Key digests the given parts. Each part is length-prefixed so ("ab","c") and ("a","bc") differ.
func Key(parts ...[]byte) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) pathFor(key string) string {
	return filepath.Join(c.dir, "results", key+".mp")
}

// Put writes an entry atomically. A nil cache is a no-op.
func (c *Cache) Put(key string, e Entry) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Debug("cache: remove temp file", "path", tmp, "err", rmErr)
		}
	}()

	if err := msgpack.NewEncoder(f).Encode(toPayload(e)); err != nil {
		f.Close()
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Get reads an entry. Missing entries and entries written by another schema report false.
func (c *Cache) Get(key string) (Entry, bool, error) {
	if c == nil {
		return Entry{}, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	defer f.Close()

	var pl payload
	if err := msgpack.NewDecoder(f).Decode(&pl); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	if pl.Schema != schemaVersion {
		slog.Debug("cache: schema mismatch", "key", key, "schema", pl.Schema)
		return Entry{}, false, nil
	}
	return fromPayload(pl), true, nil
}

// Clear removes every cached result.
func (c *Cache) Clear() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "results"))
}

func toPayload(e Entry) payload {
	pl := payload{
		Schema:      schemaVersion,
		Dataset:     e.Dataset,
		Format:      e.Format,
		Columns:     e.Columns,
		Rows:        e.Rows,
		CreatedAt:   e.CreatedAt,
		Diagnostics: make([]diskDiagnostic, len(e.Diagnostics)),
	}
	for i, d := range e.Diagnostics {
		dd := diskDiagnostic{
			Type:     string(d.Type),
			Column:   d.Column,
			Message:  d.Message,
			Severity: uint8(d.Severity),
		}
		if d.Details != nil {
			dd.Types = d.Details.Types
			dd.NullPercentage = d.Details.NullPercentage
			if v := d.Details.UniqueValue; v != nil {
				dd.Unique = &diskValue{Kind: uint8(v.Kind()), Str: v.Str(), Num: v.Num(), Bool: v.Bool()}
			}
		}
		pl.Diagnostics[i] = dd
	}
	return pl
}

func fromPayload(pl payload) Entry {
	e := Entry{
		Dataset:     pl.Dataset,
		Format:      pl.Format,
		Columns:     pl.Columns,
		Rows:        pl.Rows,
		CreatedAt:   pl.CreatedAt,
		Diagnostics: make([]diagnostics.Diagnostic, len(pl.Diagnostics)),
	}
	for i, dd := range pl.Diagnostics {
		d := diagnostics.Diagnostic{
			Type:     diagnostics.Type(dd.Type),
			Column:   dd.Column,
			Message:  dd.Message,
			Severity: diagnostics.Severity(dd.Severity),
		}
		if len(dd.Types) > 0 || dd.NullPercentage != "" || dd.Unique != nil {
			d.Details = &diagnostics.Details{Types: dd.Types, NullPercentage: dd.NullPercentage}
			if dd.Unique != nil {
				v := dd.Unique.value()
				d.Details.UniqueValue = &v
			}
		}
		e.Diagnostics[i] = d
	}
	return e
}

func (v diskValue) value() diagnostics.Value {
	switch diagnostics.Kind(v.Kind) {
	case diagnostics.KindNull:
		return diagnostics.Null()
	case diagnostics.KindString:
		return diagnostics.String(v.Str)
	case diagnostics.KindNumber:
		return diagnostics.Number(v.Num)
	case diagnostics.KindBool:
		return diagnostics.Bool(v.Bool)
	case diagnostics.KindOther:
		return diagnostics.Other(v.Str)
	}
	return diagnostics.Missing()
}
