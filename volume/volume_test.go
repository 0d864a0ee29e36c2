package volume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manifestBody40 is a self-describing two-entry manifest: its own first
// record declares its total length (40 bytes), followed by "a/b 3" and
// "c 5". Content entries total 8 bytes, giving a 48-byte volume.
const manifestBody40 = "META-INF-multifilespec.txt 40\na/b 3\nc 5\n"

func TestSingleFileLeech(t *testing.T) {
	dir := t.TempDir()
	v := New(filepath.Join(dir, "v"))
	require.NoError(t, v.Err())
	assert.Equal(t, "INIT", v.State())

	n, err := v.Write([]byte("ABCDEFGH"), 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "SINGLE_FILE", v.State())

	out := make([]byte, 8)
	n, err = v.Read(out, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "ABCDEFGH", string(out))
}

func TestMultiFileLeechSingleChunk(t *testing.T) {
	dir := t.TempDir()
	v := New(filepath.Join(dir, "v"))

	full := manifestBody40 + "abc" + "hello"
	n, err := v.Write([]byte(full), 0)
	require.NoError(t, err)
	assert.Equal(t, len(full), n)
	assert.Equal(t, "MFSPEC_COMPLETE", v.State())

	files := v.Files()
	require.Len(t, files, 3)
	assert.Equal(t, "a/b", files[1].GetSpecPathName())
	assert.EqualValues(t, 40, files[1].Start())
	assert.EqualValues(t, 42, files[1].End())
	assert.Equal(t, "c", files[2].GetSpecPathName())
	assert.EqualValues(t, 43, files[2].Start())
	assert.EqualValues(t, 47, files[2].End())

	abContent, err := os.ReadFile(filepath.Join(dir, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(abContent))

	cContent, err := os.ReadFile(filepath.Join(dir, "c"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(cContent))

	out := make([]byte, 8)
	n, err = v.Read(out, 40)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "abchello", string(out))
}

func TestMultiFileLeechAcrossTwoChunks(t *testing.T) {
	dir := t.TempDir()
	v := New(filepath.Join(dir, "v"))

	first := manifestBody40[:30]
	n, err := v.Write([]byte(first), 0)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	assert.Equal(t, "MFSPEC_SIZE_KNOWN", v.State())
	assert.EqualValues(t, 40, v.specSize)

	second := manifestBody40[30:] + "abc" + "hello"
	n, err = v.Write([]byte(second), 30)
	require.NoError(t, err)
	assert.Equal(t, len(second), n)
	assert.Equal(t, "MFSPEC_COMPLETE", v.State())

	files := v.Files()
	require.Len(t, files, 3)

	out := make([]byte, 8)
	n, err = v.Read(out, 40)
	require.NoError(t, err)
	assert.Equal(t, "abchello", string(out[:n]))
}

func TestSeedDetection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s")
	require.NoError(t, os.WriteFile(path, []byte(manifestBody40), 0o644))

	v := New(path)
	require.NoError(t, v.Err())
	assert.Equal(t, "MFSPEC_COMPLETE", v.State())

	files := v.Files()
	require.Len(t, files, 3)
	assert.Equal(t, "a/b", files[1].GetSpecPathName())
	assert.Equal(t, "c", files[2].GetSpecPathName())
}

func TestUnsafePathRejected(t *testing.T) {
	dir := t.TempDir()
	v := New(filepath.Join(dir, "v"))

	body := "META-INF-multifilespec.txt 40\n../evil 4\n"
	_, err := v.Write([]byte(body), 0)
	assert.ErrorIs(t, err, ErrUnsafePath)
	assert.Equal(t, "MFSPEC_COMPLETE", v.State())

	// The manifest's own entry is indexed, but the malicious range never
	// was: a lookup into where "../evil" would have landed misses.
	_, ok := v.index.FindByOffset(v.files[0].GetSize())
	assert.False(t, ok)
}

func TestStraddlingRead(t *testing.T) {
	dir := t.TempDir()
	v := New(filepath.Join(dir, "v"))

	manifest := "META-INF-multifilespec.txt 40\nx 10\ny 10\n"
	full := manifest + "0123456789" + "ABCDEFGHIJ"
	n, err := v.Write([]byte(full), 0)
	require.NoError(t, err)
	assert.Equal(t, len(full), n)

	files := v.Files()
	require.Len(t, files, 3)
	assert.EqualValues(t, 40, files[1].Start())
	assert.EqualValues(t, 49, files[1].End())
	assert.EqualValues(t, 50, files[2].Start())
	assert.EqualValues(t, 59, files[2].End())

	out := make([]byte, 8)
	n, err = v.Read(out, 46)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "6789ABCD", string(out))
}

func TestPostponedReserveReplaysOnSingleFile(t *testing.T) {
	dir := t.TempDir()
	v := New(filepath.Join(dir, "v"))

	require.NoError(t, v.ResizeReserved(100))
	_, err := v.Write([]byte("hi"), 0)
	require.NoError(t, err)

	reserved, err := v.GetReservedSize()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reserved, int64(100))
}

func TestResizeReservedIdempotentWhenNotGrowing(t *testing.T) {
	dir := t.TempDir()
	v := New(filepath.Join(dir, "v"))

	full := manifestBody40 + "abc" + "hello"
	_, err := v.Write([]byte(full), 0)
	require.NoError(t, err)

	before, err := v.GetReservedSize()
	require.NoError(t, err)

	require.NoError(t, v.ResizeReserved(10))

	after, err := v.GetReservedSize()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestResizeReservedFailsWhileSizeKnown(t *testing.T) {
	dir := t.TempDir()
	v := New(filepath.Join(dir, "v"))

	_, err := v.Write([]byte(manifestBody40[:30]), 0)
	require.NoError(t, err)
	assert.Equal(t, "MFSPEC_SIZE_KNOWN", v.State())

	err = v.ResizeReserved(1000)
	assert.ErrorIs(t, err, ErrNotReady)
}
