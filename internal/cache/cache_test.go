package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
)

func sampleEntry() Entry {
	rows := make([]diagnostics.Row, 11)
	for i := range rows {
		rows[i] = diagnostics.Row{"k": diagnostics.Number(7), "m": diagnostics.String("")}
	}
	rows[0]["m"] = diagnostics.Bool(true)
	rows[1]["m"] = diagnostics.String("x")
	return Entry{
		Dataset:     "t.csv",
		Format:      "csv",
		Columns:     []string{"k", "m"},
		Rows:        len(rows),
		Diagnostics: diagnostics.Analyze(rows, []string{"k", "m"}),
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)

	e := sampleEntry()
	require.Len(t, e.Diagnostics, 3)
	key := Key([]byte("file bytes"), []byte("opts"))
	require.NoError(t, c.Put(key, e))

	got, ok, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e.Dataset, got.Dataset)
	assert.Equal(t, e.Columns, got.Columns)
	assert.Equal(t, e.Rows, got.Rows)
	assert.True(t, e.CreatedAt.Equal(got.CreatedAt))
	require.Len(t, got.Diagnostics, len(e.Diagnostics))
	for i := range e.Diagnostics {
		want, have := e.Diagnostics[i], got.Diagnostics[i]
		assert.Equal(t, want.Type, have.Type)
		assert.Equal(t, want.Column, have.Column)
		assert.Equal(t, want.Message, have.Message)
		assert.Equal(t, want.Severity, have.Severity)
		if want.Details == nil {
			assert.Nil(t, have.Details)
			continue
		}
		require.NotNil(t, have.Details)
		assert.Equal(t, want.Details.Types, have.Details.Types)
		assert.Equal(t, want.Details.NullPercentage, have.Details.NullPercentage)
		if want.Details.UniqueValue != nil {
			require.NotNil(t, have.Details.UniqueValue)
			assert.True(t, want.Details.UniqueValue.Equal(*have.Details.UniqueValue))
		}
	}
}

func TestGetMissing(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	_, ok, err := c.Get(Key([]byte("nope")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	require.NoError(t, c.Put("k", Entry{}))
	_, ok, err := c.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyIsLengthPrefixed(t *testing.T) {
	assert.NotEqual(t, Key([]byte("ab"), []byte("c")), Key([]byte("a"), []byte("bc")))
	assert.Equal(t, Key([]byte("a")), Key([]byte("a")))
	assert.Len(t, Key(), 64)
}

func TestSchemaMismatchIsAMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	key := Key([]byte("old"))
	p := c.pathFor(key)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	b, err := msgpack.Marshal(payload{Schema: schemaVersion + 1, Dataset: "old.csv"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, b, 0o644))

	_, ok, err := c.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCorruptEntryIsAnError(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	key := Key([]byte("bad"))
	p := c.pathFor(key)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte{0xc1}, 0o644))
	_, _, err = c.Get(key)
	assert.Error(t, err)
}

func TestConcurrentPutGet(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	e := sampleEntry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := Key([]byte("shared"))
			assert.NoError(t, c.Put(key, e))
			_, ok, err := c.Get(key)
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}

func TestClear(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	key := Key([]byte("x"))
	require.NoError(t, c.Put(key, sampleEntry()))
	require.NoError(t, c.Clear())
	_, ok, err := c.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultDirUsesXDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	d, err := DefaultDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdg", "datalens"), d)
}
