package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_WriteFromBytesThenRead(t *testing.T) {
	p, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.WriteFromBytes(ctx, "jw01234/obs001/file.fits", []byte("data")))

	exists, err := p.Exists(ctx, "jw01234/obs001/file.fits")
	require.NoError(t, err)
	assert.True(t, exists)

	path, err := p.ReadToTemp(ctx, "jw01234/obs001/file.fits")
	require.NoError(t, err)
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(contents))
}

func TestProvider_WriteFromPathCopies(t *testing.T) {
	p, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "source.fits")
	require.NoError(t, os.WriteFile(srcPath, []byte("contents"), 0o640))

	require.NoError(t, p.WriteFromPath(ctx, "dest/file.fits", srcPath))

	resolved, err := p.ResolveLocalPath("dest/file.fits")
	require.NoError(t, err)
	contents, err := os.ReadFile(resolved)
	require.NoError(t, err)
	assert.Equal(t, "contents", string(contents))
}

func TestProvider_ExistsFalseWhenAbsent(t *testing.T) {
	p, err := New(t.TempDir())
	require.NoError(t, err)

	exists, err := p.Exists(context.Background(), "missing.fits")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProvider_DeleteIsIdempotent(t *testing.T) {
	p, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.WriteFromBytes(ctx, "file.fits", []byte("x")))
	require.NoError(t, p.Delete(ctx, "file.fits"))
	require.NoError(t, p.Delete(ctx, "file.fits"))

	exists, err := p.Exists(ctx, "file.fits")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProvider_SafePathRejectsTraversal(t *testing.T) {
	p, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = p.ResolveLocalPath("../../etc/passwd")
	require.Error(t, err)
}
