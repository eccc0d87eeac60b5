package fileio_test

import (
	"io"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.asdf.sh/asdf/fileio"
)

func TestMemoryFileReadWriteSeek(t *testing.T) {
	t.Parallel()

	f := fileio.NewMemoryFile()

	n, err := f.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 5)
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))

	pos, err := f.Tell()
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos)
}

func TestMemoryFileReadUntil(t *testing.T) {
	t.Parallel()

	f := fileio.NewMemoryFileFromBytes([]byte("#ASDF 1.0.0\n#ASDF_STANDARD 1.6.0\n--- \n"))

	re := regexp.MustCompile(`\n`)

	line, err := f.ReadUntil(re)
	require.NoError(t, err)
	assert.Equal(t, "#ASDF 1.0.0\n", string(line))

	line, err = f.ReadUntil(re)
	require.NoError(t, err)
	assert.Equal(t, "#ASDF_STANDARD 1.6.0\n", string(line))
}

func TestMemoryFileFastForwardAndClear(t *testing.T) {
	t.Parallel()

	f := fileio.NewMemoryFileFromBytes([]byte("0123456789"))

	err := f.FastForward(3)
	require.NoError(t, err)

	pos, err := f.Tell()
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos)

	err = f.Clear(4)
	require.NoError(t, err)

	pos, err = f.Tell()
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos)

	assert.Equal(t, "012\x00\x00\x00\x00789", string(f.Bytes()))
}

func TestMemoryFileTruncate(t *testing.T) {
	t.Parallel()

	f := fileio.NewMemoryFileFromBytes([]byte("0123456789"))

	require.NoError(t, f.Truncate(4))

	n, err := f.Len()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, "0123", string(f.Bytes()))
}

func TestMemoryFileNotMappable(t *testing.T) {
	t.Parallel()

	f := fileio.NewMemoryFile()
	assert.False(t, f.CanMmap())

	_, err := f.Mmap(0, 1, false)
	require.ErrorIs(t, err, fileio.ErrNotMappable)
}
