package backingfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/swarmvol/swarmio"
)

func TestSpecToOSPath(t *testing.T) {
	assert.Equal(t, "a/b", SpecToOSPath("a/b"))
	assert.Equal(t, "c", SpecToOSPath("c"))
}

func TestResolveOSPath(t *testing.T) {
	assert.Equal(t, filepath.Join("base", "a", "b"), ResolveOSPath("base", "a/b"))
	assert.Equal(t, "a/b", ResolveOSPath("", "a/b"))
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bf := New(swarmio.OSFileSystem{}, ResolveOSPath(dir, "a/b"), "a/b", 0, 8)
	defer bf.Close()

	n, err := bf.Write([]byte("ABCDEFGH"), 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	out := make([]byte, 8)
	n, err = bf.Read(out, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "ABCDEFGH", string(out))

	assert.FileExists(t, filepath.Join(dir, "a", "b"))
}

func TestResizeReserved(t *testing.T) {
	dir := t.TempDir()
	bf := New(swarmio.OSFileSystem{}, ResolveOSPath(dir, "f"), "f", 0, 1024)
	defer bf.Close()

	require.NoError(t, bf.ResizeReserved())

	fi, err := swarmio.OSFileSystem{}.Stat(filepath.Join(dir, "f"))
	require.NoError(t, err)
	assert.EqualValues(t, 1024, fi.Size())
}

func TestMkdirConflictLeavesInvalidHandle(t *testing.T) {
	dir := t.TempDir()
	// Create a plain file where a directory needs to go.
	f := New(swarmio.OSFileSystem{}, ResolveOSPath(dir, "blocker"), "blocker", 0, 1)
	require.NoError(t, f.Close())

	bf := New(swarmio.OSFileSystem{}, ResolveOSPath(dir, "blocker/child"), "blocker/child", 0, 1)
	defer bf.Close()
	_, err := bf.Write([]byte("x"), 0)
	assert.Error(t, err)
}
