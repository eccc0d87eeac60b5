package block_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.asdf.sh/asdf/block"
	"go.asdf.sh/asdf/fileio"
	"go.asdf.sh/asdf/serialctx"
)

func fixedCallback(data []byte) func() ([]byte, error) {
	return func() ([]byte, error) { return data, nil }
}

func TestStoreFindAvailableBlockIndexReusesKey(t *testing.T) {
	t.Parallel()

	s := block.NewStore(false, false)
	key := freshKey(t)

	idx1, err := s.FindAvailableBlockIndex(fixedCallback([]byte("a")), key)
	require.NoError(t, err)

	idx2, err := s.FindAvailableBlockIndex(fixedCallback([]byte("ignored")), key)
	require.NoError(t, err)

	assert.Equal(t, idx1, idx2)
	assert.Equal(t, 1, s.Len())
}

func TestStoreFindAvailableBlockIndexDistinctKeysDistinctBlocks(t *testing.T) {
	t.Parallel()

	s := block.NewStore(false, false)
	k1 := freshKey(t)
	k2 := freshKey(t)

	idx1, err := s.FindAvailableBlockIndex(fixedCallback([]byte("a")), k1)
	require.NoError(t, err)

	idx2, err := s.FindAvailableBlockIndex(fixedCallback([]byte("b")), k2)
	require.NoError(t, err)

	assert.NotEqual(t, idx1, idx2)
	assert.Equal(t, 2, s.Len())
}

func TestStoreReserveStreamedBlockRejectsSecondCall(t *testing.T) {
	t.Parallel()

	s := block.NewStore(false, false)

	_, err := s.ReserveStreamedBlock(fixedCallback([]byte("a")))
	require.NoError(t, err)

	_, err = s.ReserveStreamedBlock(fixedCallback([]byte("b")))
	require.ErrorIs(t, err, block.ErrMultipleStreamedBlocks)
}

func TestStoreWriteReadRoundTripInternalBlocks(t *testing.T) {
	t.Parallel()

	s := block.NewStore(false, true)

	noKey := serialctx.BlockKey{}
	_, err := s.FindAvailableBlockIndex(fixedCallback([]byte("first block payload")), noKey)
	require.NoError(t, err)

	_, err = s.FindAvailableBlockIndex(fixedCallback([]byte("second, longer block payload")), noKey)
	require.NoError(t, err)

	f := fileio.NewMemoryFile()

	offsets, err := s.WriteInternalBlocks(f, 0)
	require.NoError(t, err)
	require.Len(t, offsets, 2)

	require.NoError(t, block.WriteIndexTrailer(f, offsets))

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	readBack, err := block.ReadBlocks(f, false, true)
	require.NoError(t, err)
	require.Len(t, readBack.InternalBlocks(), 2)

	p0, err := readBack.InternalBlocks()[0].Payload()
	require.NoError(t, err)
	assert.Equal(t, "first block payload", string(p0))

	p1, err := readBack.InternalBlocks()[1].Payload()
	require.NoError(t, err)
	assert.Equal(t, "second, longer block payload", string(p1))

	pos, err := f.Tell()
	require.NoError(t, err)

	_, err = f.Seek(pos, io.SeekStart)
	require.NoError(t, err)

	trailer, err := io.ReadAll(f)
	require.NoError(t, err)

	gotOffsets, ok := block.ReadIndexTrailer(trailer)
	require.True(t, ok)
	assert.Equal(t, offsets, gotOffsets)
}

func TestStoreWriteReadRoundTripWithStreamedBlock(t *testing.T) {
	t.Parallel()

	s := block.NewStore(false, true)

	noKey := serialctx.BlockKey{}
	_, err := s.FindAvailableBlockIndex(fixedCallback([]byte("internal payload")), noKey)
	require.NoError(t, err)

	_, err = s.ReserveStreamedBlock(fixedCallback([]byte("streamed tail, open-ended")))
	require.NoError(t, err)

	f := fileio.NewMemoryFile()

	_, err = s.WriteInternalBlocks(f, 0)
	require.NoError(t, err)

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	readBack, err := block.ReadBlocks(f, false, true)
	require.NoError(t, err)
	require.Len(t, readBack.InternalBlocks(), 1)

	streamed, err := readBack.At(-1)
	require.NoError(t, err)
	assert.True(t, streamed.Header.Streamed())

	payload, err := streamed.Payload()
	require.NoError(t, err)
	assert.Equal(t, "streamed tail, open-ended", string(payload))
}

func TestStorePaddingRoundTrip(t *testing.T) {
	t.Parallel()

	s := block.NewStore(true, true)

	noKey := serialctx.BlockKey{}
	_, err := s.FindAvailableBlockIndex(fixedCallback([]byte("abc")), noKey)
	require.NoError(t, err)

	f := fileio.NewMemoryFile()

	_, err = s.WriteInternalBlocks(f, 16)
	require.NoError(t, err)

	size, err := f.Len()
	require.NoError(t, err)
	assert.Positive(t, size)

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	readBack, err := block.ReadBlocks(f, true, true)
	require.NoError(t, err)

	b := readBack.InternalBlocks()[0]
	assert.Equal(t, uint64(3), b.Header.UsedSize)
	assert.Equal(t, uint64(16), b.Header.AllocatedSize)

	payload, err := b.Payload()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(payload))
}

func TestCalculatePadding(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(0), block.CalculatePadding(16, false, 16))
	assert.Equal(t, int64(0), block.CalculatePadding(16, true, 16))
	assert.Equal(t, int64(3), block.CalculatePadding(13, true, 16))
	assert.Equal(t, int64(0), block.CalculatePadding(13, true, 0))
}

func TestReadBlocksRejectsBadMagic(t *testing.T) {
	t.Parallel()

	f := fileio.NewMemoryFileFromBytes([]byte("not a block"))

	_, err := block.ReadBlocks(f, false, false)
	require.ErrorIs(t, err, block.ErrBadMagic)
}

func TestReadIndexTrailerRejectsNonTrailerBytes(t *testing.T) {
	t.Parallel()

	_, ok := block.ReadIndexTrailer([]byte("not a trailer"))
	assert.False(t, ok)
}

// freshKey mints a new BlockKey from a throwaway Context. GenerateBlockKey
// never touches the reader/writer/registry, so a minimal Context with all
// three nil is enough.
func freshKey(t *testing.T) serialctx.BlockKey {
	t.Helper()

	ctx := serialctx.NewWriteContext("1.6.0", "", nil, nil)

	return ctx.GenerateBlockKey()
}
