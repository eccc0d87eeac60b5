package asdf_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.asdf.sh/asdf"
	"go.asdf.sh/asdf/stringtest"
	"go.asdf.sh/asdf/tree"
)

func TestCreateWriteToOpenRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "roundtrip.asdf")

	ff := asdf.Create(asdf.WithFacadeConfig(asdf.Config{DefaultVersion: "1.6.0"}))

	root := tree.NewMapping()
	root.Set("greeting", "hello")
	ff.Tree = root

	require.NoError(t, ff.WriteTo(path))
	require.NoError(t, ff.Close())

	reopened, err := asdf.Open(path, asdf.WithFacadeConfig(asdf.Config{ValidateOnRead: false}))
	require.NoError(t, err)
	defer reopened.Close()

	mapping, ok := reopened.Tree.(*tree.Mapping)
	require.True(t, ok)

	val, ok := mapping.Property("greeting")
	require.True(t, ok)
	assert.Equal(t, "hello", val)
}

func TestUpdateInPlacePreservesUnrelatedContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "update.asdf")

	ff := asdf.Create(asdf.WithFacadeConfig(asdf.Config{DefaultVersion: "1.6.0"}))

	root := tree.NewMapping()
	root.Set("counter", "1")
	root.Set("label", "unchanged")
	ff.Tree = root

	require.NoError(t, ff.WriteTo(path))
	require.NoError(t, ff.Close())

	reopened, err := asdf.Open(path, asdf.WithFacadeConfig(asdf.Config{ValidateOnRead: false}))
	require.NoError(t, err)
	defer reopened.Close()

	updated := reopened.Tree.(*tree.Mapping)
	updated.Set("counter", "2")

	require.NoError(t, reopened.Update())

	reread, err := asdf.Open(path, asdf.WithFacadeConfig(asdf.Config{ValidateOnRead: false}))
	require.NoError(t, err)
	defer reread.Close()

	mapping := reread.Tree.(*tree.Mapping)
	val, ok := mapping.Property("counter")
	require.True(t, ok)
	assert.Equal(t, "2", val)

	label, ok := mapping.Property("label")
	require.True(t, ok)
	assert.Equal(t, "unchanged", label)
}

func TestWriteToProducesExactHeaderAndDocumentMarkers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "header.asdf")

	ff := asdf.Create(asdf.WithFacadeConfig(asdf.Config{DefaultVersion: "1.6.0"}))
	ff.Tree = tree.NewMapping()

	require.NoError(t, ff.WriteTo(path))
	require.NoError(t, ff.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	wantPrefix := stringtest.JoinLF("#ASDF "+asdf.FileFormatVersion, "#ASDF_STANDARD 1.6.0", "---") + "\n"
	require.True(t, len(raw) >= len(wantPrefix))
	assert.Equal(t, wantPrefix, string(raw[:len(wantPrefix)]))

	assert.Contains(t, string(raw), "\n...\n")
}

func TestWriteToAndUpdateAppendHistoryEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "history.asdf")

	ff := asdf.Create(asdf.WithFacadeConfig(asdf.Config{DefaultVersion: "1.6.0"}))
	root := tree.NewMapping()
	root.Set("value", "1")
	ff.Tree = root

	require.NoError(t, ff.WriteTo(path))
	root.Set("value", "2")
	require.NoError(t, ff.Update())
	require.NoError(t, ff.Close())

	reopened, err := asdf.Open(path, asdf.WithFacadeConfig(asdf.Config{ValidateOnRead: false}))
	require.NoError(t, err)
	defer reopened.Close()

	mapping := reopened.Tree.(*tree.Mapping)

	historyAny, ok := mapping.Property("history")
	require.True(t, ok)
	history, ok := historyAny.(*tree.Mapping)
	require.True(t, ok)

	entriesAny, ok := history.Property("entries")
	require.True(t, ok)
	entries, ok := entriesAny.(tree.Sequence)
	require.True(t, ok)
	require.Len(t, entries, 2)

	first, ok := entries[0].(tree.HistoryEntry)
	require.True(t, ok)
	assert.Equal(t, "file written", first.Description)
	require.Len(t, first.Software, 1)
	assert.Equal(t, "go-asdf", first.Software[0].Name)

	second, ok := entries[1].(tree.HistoryEntry)
	require.True(t, ok)
	assert.Equal(t, "file updated", second.Description)
}

func TestOpenForUpdateBlocksConcurrentOpenForUpdate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "locked.asdf")

	ff := asdf.Create(asdf.WithFacadeConfig(asdf.Config{DefaultVersion: "1.6.0"}))
	root := tree.NewMapping()
	root.Set("greeting", "hello")
	ff.Tree = root
	require.NoError(t, ff.WriteTo(path))
	require.NoError(t, ff.Close())

	first, err := asdf.OpenForUpdate(path, asdf.WithFacadeConfig(asdf.Config{ValidateOnRead: false}))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)

		second, err := asdf.OpenForUpdate(path, asdf.WithFacadeConfig(asdf.Config{ValidateOnRead: false}))
		if err == nil {
			_ = second.Close()
		}
	}()

	select {
	case <-done:
		t.Fatal("second OpenForUpdate returned before the first facade was closed")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second OpenForUpdate never completed after the first facade closed")
	}
}

func TestOpenMissingFileReturnsIOError(t *testing.T) {
	t.Parallel()

	_, err := asdf.Open(filepath.Join(t.TempDir(), "does-not-exist.asdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, asdf.ErrIO)
}

func TestUpdateImmediatelyAfterWriteToNeedsNoReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "same-facade.asdf")

	ff := asdf.Create(asdf.WithFacadeConfig(asdf.Config{DefaultVersion: "1.6.0"}))

	root := tree.NewMapping()
	root.Set("stage", "one")
	ff.Tree = root

	require.NoError(t, ff.WriteTo(path))

	root.Set("stage", "two")
	require.NoError(t, ff.Update())
	require.NoError(t, ff.Close())

	reopened, err := asdf.Open(path, asdf.WithFacadeConfig(asdf.Config{ValidateOnRead: false}))
	require.NoError(t, err)
	defer reopened.Close()

	mapping := reopened.Tree.(*tree.Mapping)
	val, ok := mapping.Property("stage")
	require.True(t, ok)
	assert.Equal(t, "two", val)
}
