package tree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.asdf.sh/asdf/tree"
)

func TestConstantRoundTrip(t *testing.T) {
	t.Parallel()

	reg := newRegistry()
	conv, ok := reg.ConverterForTag(tree.ConstantTag)
	require.True(t, ok)

	encoded, err := conv.ToYAMLTree(tree.MaskedConstant, nil)
	require.NoError(t, err)
	assert.Equal(t, "masked", encoded)

	decoded, err := conv.FromYAMLTree(tree.ConstantTag, encoded, nil)
	require.NoError(t, err)
	assert.Equal(t, tree.MaskedConstant, decoded)
}

func TestConstantString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "masked", tree.MaskedConstant.String())
}
