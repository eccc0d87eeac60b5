package compress_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.asdf.sh/asdf/compress"
)

func TestZlibRoundTrip(t *testing.T) {
	t.Parallel()

	var z compress.Zlib

	original := []byte("the quick brown fox jumps over the lazy dog, repeated repeated repeated")

	compressed, err := z.Compress(original)
	require.NoError(t, err)
	assert.NotEqual(t, original, compressed)

	decompressed, err := z.Decompress(compressed, len(original))
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestZlibLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "zlib", compress.Zlib{}.Label())
}

func TestBzip2DecompressOnly(t *testing.T) {
	t.Parallel()

	var b compress.Bzip2

	assert.Equal(t, "bzp2", b.Label())

	_, err := b.Compress([]byte("data"))
	require.Error(t, err)
	assert.ErrorIs(t, err, compress.ErrUnsupportedOperation)
}

func TestBuiltinExtensionBundlesBothCompressors(t *testing.T) {
	t.Parallel()

	ext := compress.BuiltinExtension()

	labels := make(map[string]bool)
	for _, c := range ext.Compressors() {
		labels[c.Label()] = true
	}

	assert.True(t, labels["zlib"])
	assert.True(t, labels["bzp2"])
	assert.Empty(t, ext.Tags())
	assert.Empty(t, ext.Converters())
	assert.Empty(t, ext.Validators())
}
