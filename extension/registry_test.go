package extension_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.asdf.sh/asdf/extension"
)

type fakeConverter struct {
	tags  []string
	types []extension.TypeRef
}

func (f fakeConverter) Tags() []string           { return f.tags }
func (f fakeConverter) Types() []extension.TypeRef { return f.types }
func (f fakeConverter) ToYAMLTree(obj any, _ extension.SerializationContext) (any, error) {
	return obj, nil
}
func (f fakeConverter) FromYAMLTree(_ string, node any, _ extension.SerializationContext) (any, error) {
	return node, nil
}
func (f fakeConverter) SelectTag(_ any, _ []string, _ extension.SerializationContext) string {
	return ""
}

type fakeExtension struct {
	uri        string
	tags       []extension.TagDefinition
	converters []extension.Converter
}

func (f fakeExtension) ExtensionURI() string                  { return f.uri }
func (f fakeExtension) StandardRequirement() string           { return "" }
func (f fakeExtension) Tags() []extension.TagDefinition        { return f.tags }
func (f fakeExtension) Converters() []extension.Converter      { return f.converters }
func (f fakeExtension) Validators() []extension.Validator      { return nil }
func (f fakeExtension) Compressors() []extension.Compressor    { return nil }
func (f fakeExtension) YAMLTagHandles() map[string]string      { return nil }

type userType struct{ X int }

func TestRegistryPrecedence(t *testing.T) {
	t.Parallel()

	userConv := fakeConverter{tags: []string{"tag:stsci.edu:asdf/core/ndarray-1.0.0"}}
	builtinConv := fakeConverter{tags: []string{"tag:stsci.edu:asdf/core/ndarray-1.0.0"}}

	user := fakeExtension{uri: "user-ext", converters: []extension.Converter{userConv}}
	builtin := fakeExtension{uri: "builtin-ext", converters: []extension.Converter{builtinConv}}

	ordered := extension.Order([]extension.Extension{user}, nil, []extension.Extension{builtin})
	reg := extension.New(ordered)

	conv, ok := reg.ConverterForTag("tag:stsci.edu:asdf/core/ndarray-1.0.0")
	require.True(t, ok)
	assert.Equal(t, userConv, conv)
}

func TestRegistryOrderSortsThirdPartyAlphabetically(t *testing.T) {
	t.Parallel()

	b := fakeExtension{uri: "bbb"}
	a := fakeExtension{uri: "aaa"}

	ordered := extension.Order(nil, []extension.Extension{b, a}, nil)

	require.Len(t, ordered, 2)
	assert.Equal(t, "aaa", ordered[0].ExtensionURI())
	assert.Equal(t, "bbb", ordered[1].ExtensionURI())
}

func TestWildcardTagMatch(t *testing.T) {
	t.Parallel()

	td := extension.TagDefinition{TagURI: "tag:stsci.edu:asdf/core/ndarray-*"}
	assert.True(t, td.Matches("tag:stsci.edu:asdf/core/ndarray-1.0.0"))
	assert.False(t, td.Matches("tag:stsci.edu:asdf/core/complex-1.0.0"))
}

func TestConverterForType(t *testing.T) {
	t.Parallel()

	conv := fakeConverter{types: []extension.TypeRef{extension.ResolvedTypeRef(reflect.TypeOf(userType{}))}}
	ext := fakeExtension{uri: "x", converters: []extension.Converter{conv}}

	reg := extension.New([]extension.Extension{ext})

	got, ok := reg.ConverterForType(reflect.TypeOf(userType{}))
	require.True(t, ok)
	assert.Equal(t, conv, got)
}

func TestDiscoverPluginsReportsDuplicates(t *testing.T) {
	t.Parallel()

	factories := []extension.Factory{
		func() extension.Extension { return fakeExtension{uri: "dup"} },
		func() extension.Extension { return fakeExtension{uri: "dup"} },
		func() extension.Extension { return fakeExtension{uri: "unique"} },
	}

	exts, warnings := extension.DiscoverPlugins(factories)
	require.Len(t, exts, 2)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "dup")
}
