package tree_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.asdf.sh/asdf/tree"
)

func TestSoftwareRoundTrip(t *testing.T) {
	t.Parallel()

	reg := newRegistry()
	conv, ok := reg.ConverterForTag(tree.SoftwareTag)
	require.True(t, ok)

	sw := tree.Software{Name: "go-asdf", Version: "0.1.0", Author: "example"}

	encoded, err := conv.ToYAMLTree(sw, nil)
	require.NoError(t, err)

	decoded, err := conv.FromYAMLTree(tree.SoftwareTag, encoded, nil)
	require.NoError(t, err)
	assert.Equal(t, sw, decoded)
}

func TestHistoryEntryRoundTrip(t *testing.T) {
	t.Parallel()

	reg := newRegistry()
	conv, ok := reg.ConverterForTag(tree.HistoryEntryTag)
	require.True(t, ok)

	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	entry := tree.HistoryEntry{
		Description: "wrote a file",
		Time:        when,
		Software:    []tree.Software{{Name: "go-asdf", Version: "0.1.0"}},
	}

	encoded, err := conv.ToYAMLTree(entry, nil)
	require.NoError(t, err)

	decoded, err := conv.FromYAMLTree(tree.HistoryEntryTag, encoded, nil)
	require.NoError(t, err)

	got, ok := decoded.(tree.HistoryEntry)
	require.True(t, ok)
	assert.Equal(t, entry.Description, got.Description)
	assert.True(t, entry.Time.Equal(got.Time))
	assert.Equal(t, entry.Software, got.Software)
}

func TestExtensionMetadataRoundTrip(t *testing.T) {
	t.Parallel()

	reg := newRegistry()
	conv, ok := reg.ConverterForTag(tree.ExtensionMetadataTag)
	require.True(t, ok)

	sw := tree.Software{Name: "go-asdf"}
	meta := tree.ExtensionMetadata{
		ExtensionClass: "tree.coreExtension",
		ExtensionURI:   "asdf://asdf-format.org/core/extensions/core-1.0.0",
		Software:       &sw,
	}

	encoded, err := conv.ToYAMLTree(meta, nil)
	require.NoError(t, err)

	decoded, err := conv.FromYAMLTree(tree.ExtensionMetadataTag, encoded, nil)
	require.NoError(t, err)

	got, ok := decoded.(tree.ExtensionMetadata)
	require.True(t, ok)
	assert.Equal(t, meta.ExtensionClass, got.ExtensionClass)
	assert.Equal(t, meta.ExtensionURI, got.ExtensionURI)
	require.NotNil(t, got.Software)
	assert.Equal(t, sw, *got.Software)
}

func TestNewExtensionMetadataUsesGoTypeName(t *testing.T) {
	t.Parallel()

	meta := tree.NewExtensionMetadata(tree.CoreExtension())
	assert.Contains(t, meta.ExtensionClass, "coreExtension")
	assert.Equal(t, tree.CoreExtension().ExtensionURI(), meta.ExtensionURI)
}
