package update_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.asdf.sh/asdf/block"
	"go.asdf.sh/asdf/fileio"
	"go.asdf.sh/asdf/serialctx"
	"go.asdf.sh/asdf/update"
)

// buildThreeBlockFile writes a minimal tree placeholder followed by three
// internal blocks to f, returning the populated Store and the three block
// payloads used, mirroring spec.md §5 scenario 6 ("Update without
// rewrite").
func buildThreeBlockFile(t *testing.T, f fileio.File, payloads [3][]byte) *block.Store {
	t.Helper()

	store := block.NewStore(false, false)

	for _, p := range payloads {
		data := p
		_, err := store.FindAvailableBlockIndex(func() ([]byte, error) { return data, nil }, serialctx.BlockKey{})
		require.NoError(t, err)
	}

	tree := []byte("tree-v1\n")

	_, err := f.Write(tree)
	require.NoError(t, err)

	_, err = store.WriteInternalBlocks(f, 0)
	require.NoError(t, err)

	return store
}

func rereadBlocks(t *testing.T, f fileio.File, treeLen int64) *block.Store {
	t.Helper()

	_, err := f.Seek(treeLen, 0)
	require.NoError(t, err)

	store, err := block.ReadBlocks(f, false, true)
	require.NoError(t, err)

	return store
}

func TestUpdateWithoutRewriteSameSizeMiddleBlock(t *testing.T) {
	t.Parallel()

	f := fileio.NewMemoryFile()

	original := [3][]byte{
		[]byte("aaaaaaaaaa"),
		[]byte("bbbbbbbbbb"),
		[]byte("cccccccccc"),
	}

	buildThreeBlockFile(t, f, original)

	originalLen, err := f.Len()
	require.NoError(t, err)

	store := rereadBlocks(t, f, int64(len("tree-v1\n")))
	require.Equal(t, 3, len(store.InternalBlocks()))

	firstOffset := store.InternalBlocks()[0].Offset
	thirdOffset := store.InternalBlocks()[2].Offset
	firstChecksum := store.InternalBlocks()[0].Header.Checksum
	thirdChecksum := store.InternalBlocks()[2].Header.Checksum

	// Mint a real block key the way a converter would on read (via
	// Context.GenerateBlockKey bound through GetBlockDataCallback), then
	// reuse it to give the middle block new, same-size content -- the same
	// correlation a reconstructed ndarray relies on to land back in the
	// same block on write.
	ctx := serialctx.NewReadContext("1.6.0", "", nil, store)
	key := ctx.GenerateBlockKey()

	cb, err := store.GetBlockDataCallback(1, key)
	require.NoError(t, err)
	_, err = cb()
	require.NoError(t, err)

	newMiddle := []byte("BBBBBBBBBB")
	_, err = store.FindAvailableBlockIndex(func() ([]byte, error) { return newMiddle, nil }, key)
	require.NoError(t, err)

	kept, placed, err := update.Classify(store)
	require.NoError(t, err)
	assert.Empty(t, placed)
	require.Len(t, kept, 3)

	newTree := []byte("tree-v1\n") // same size as original

	plan := update.Plan(kept, placed, int64(len(newTree)))
	require.False(t, plan.FullRewrite)

	err = update.Apply(f, newTree, store, plan, nil)
	require.NoError(t, err)

	finalLen, err := f.Len()
	require.NoError(t, err)
	assert.Equal(t, originalLen, finalLen)

	reread := rereadBlocks(t, f, int64(len(newTree)))
	require.Len(t, reread.InternalBlocks(), 3)

	assert.Equal(t, firstOffset, reread.InternalBlocks()[0].Offset)
	assert.Equal(t, thirdOffset, reread.InternalBlocks()[2].Offset)
	assert.Equal(t, firstChecksum, reread.InternalBlocks()[0].Header.Checksum)
	assert.Equal(t, thirdChecksum, reread.InternalBlocks()[2].Header.Checksum)

	middlePayload, err := reread.InternalBlocks()[1].Payload()
	require.NoError(t, err)
	assert.Equal(t, newMiddle, middlePayload)
}

func TestClassifyMarksResizedBlockAsPlaced(t *testing.T) {
	t.Parallel()

	f := fileio.NewMemoryFile()

	original := [3][]byte{
		[]byte("aaaaaaaaaa"),
		[]byte("bbbbbbbbbb"),
		[]byte("cccccccccc"),
	}

	buildThreeBlockFile(t, f, original)

	store := rereadBlocks(t, f, int64(len("tree-v1\n")))

	ctx := serialctx.NewReadContext("1.6.0", "", nil, store)
	key := ctx.GenerateBlockKey()

	_, err := store.GetBlockDataCallback(1, key)
	require.NoError(t, err)

	grown := []byte("this middle block grew much larger than before")
	_, err = store.FindAvailableBlockIndex(func() ([]byte, error) { return grown, nil }, key)
	require.NoError(t, err)

	kept, placed, err := update.Classify(store)
	require.NoError(t, err)
	require.Len(t, placed, 1)
	assert.Equal(t, 1, placed[0].BlockIndex)
	assert.Len(t, kept, 2)
}

func TestEngineUpdateFallsBackToFullRewriteWhenTreeGrowsPastFirstBlock(t *testing.T) {
	t.Parallel()

	f := fileio.NewMemoryFile()

	original := [3][]byte{
		[]byte("aaaaaaaaaa"),
		[]byte("bbbbbbbbbb"),
		[]byte("cccccccccc"),
	}

	buildThreeBlockFile(t, f, original)

	store := rereadBlocks(t, f, int64(len("tree-v1\n")))

	hugeTree := make([]byte, 10_000)

	fullRewriteCalled := false

	var eng update.Engine

	err := eng.Update(f, hugeTree, store, nil, func() error {
		fullRewriteCalled = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, fullRewriteCalled)
}
