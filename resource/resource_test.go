package resource_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.asdf.sh/asdf/resource"
)

func TestStoreFirstWins(t *testing.T) {
	t.Parallel()

	first := resource.MapProvider{"tag:example:foo-1.0.0": []byte("first")}
	second := resource.MapProvider{"tag:example:foo-1.0.0": []byte("second")}

	store := resource.NewStore(first, second)

	b, err := store.Get("tag:example:foo-1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "first", string(b))
}

func TestStoreMissing(t *testing.T) {
	t.Parallel()

	store := resource.NewStore(resource.MapProvider{})

	_, err := store.Get("tag:example:missing-1.0.0")
	require.ErrorIs(t, err, resource.ErrMissing)
}

func TestStoreWithProviderPrecedence(t *testing.T) {
	t.Parallel()

	base := resource.NewStore(resource.MapProvider{"uri": []byte("base")})
	layered := base.WithProvider(resource.MapProvider{"uri": []byte("override")})

	b, err := layered.Get("uri")
	require.NoError(t, err)
	assert.Equal(t, "override", string(b))

	// The base Store is untouched.
	b, err = base.Get("uri")
	require.NoError(t, err)
	assert.Equal(t, "base", string(b))
}

func TestDirectoryProvider(t *testing.T) {
	t.Parallel()

	mapFS := fstest.MapFS{
		"schemas/foo-1.0.0.yaml": {Data: []byte("type: object\n")},
	}

	provider := &resource.DirectoryProvider{
		FS:        mapFS,
		Root:      "schemas",
		URIPrefix: "tag:example:schemas",
	}

	b, ok := provider.Get("tag:example:schemas/foo-1.0.0")
	require.True(t, ok)
	assert.Equal(t, "type: object\n", string(b))

	_, ok = provider.Get("tag:example:schemas/missing-1.0.0")
	assert.False(t, ok)
}

func TestDraft04Provider(t *testing.T) {
	t.Parallel()

	store := resource.NewStore(resource.Draft04Provider())

	b, err := store.Get("http://json-schema.org/draft-04/schema#")
	require.NoError(t, err)
	assert.Contains(t, string(b), "Core schema meta-schema")
}
