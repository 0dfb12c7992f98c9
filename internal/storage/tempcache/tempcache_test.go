package tempcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_ReserveAndGetRoundTrip(t *testing.T) {
	c, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	path, err := c.Reserve("jw01234/obs001/file.fits")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o640))

	got, ok := c.Get("jw01234/obs001/file.fits")
	require.True(t, ok)
	assert.Equal(t, path, got)
}

func TestCache_GetMissWhenAbsent(t *testing.T) {
	c, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	_, ok := c.Get("does/not/exist.fits")
	assert.False(t, ok)
}

func TestCache_KeyToPathRejectsTraversal(t *testing.T) {
	c, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	path := c.keyToPath("../../etc/passwd")
	assert.True(t, filepath.IsAbs(path))
	rel, err := filepath.Rel(c.Dir(), path)
	require.NoError(t, err)
	assert.False(t, filepath.IsAbs(rel))
	assert.NotContains(t, rel, "..")
}

func TestCache_EvictIfNeededRemovesOldestFirst(t *testing.T) {
	c, err := New(t.TempDir(), 10)
	require.NoError(t, err)

	old, err := c.Reserve("old.fits")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(old, []byte("12345"), 0o640))
	oldTime := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, oldTime, oldTime))

	newer, err := c.Reserve("newer.fits")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(newer, []byte("67890"), 0o640))

	evicted, err := c.EvictIfNeeded()
	require.NoError(t, err)
	assert.Equal(t, 0, evicted, "total (10 bytes) is within the 10 byte budget")

	// Push over budget so the oldest entry must go.
	third, err := c.Reserve("third.fits")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(third, []byte("abcde"), 0o640))

	evicted, err = c.EvictIfNeeded()
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	_, ok := c.Get("old.fits")
	assert.False(t, ok)
	_, ok = c.Get("third.fits")
	assert.True(t, ok)
}

func TestCache_EvictIfNeededNoOpUnderBudget(t *testing.T) {
	c, err := New(t.TempDir(), DefaultMaxBytes)
	require.NoError(t, err)

	path, err := c.Reserve("small.fits")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o640))

	evicted, err := c.EvictIfNeeded()
	require.NoError(t, err)
	assert.Equal(t, 0, evicted)
}
