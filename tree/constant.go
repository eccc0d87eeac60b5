package tree

import (
	"fmt"
	"reflect"

	"go.asdf.sh/asdf/extension"
)

// ConstantTag is the built-in fixed-sentinel scalar tag (spec.md §D.5,
// grounded on asdf.core._converters.constant in original_source), used for
// masked-array sentinels such as a mask value that is always exactly one
// singleton regardless of payload.
const ConstantTag = "tag:stsci.edu:asdf/core/constant-1.0.0"

// Constant is a named sentinel value: two Constants are the same masked
// value if and only if their Name matches, independent of any payload.
type Constant struct {
	Name string
}

// Well-known constants used by the masked-array converter.
var (
	MaskedConstant = Constant{Name: "masked"}
)

func (c Constant) String() string { return c.Name }

type constantConverter struct{}

func (constantConverter) Tags() []string { return []string{ConstantTag} }

func (constantConverter) Types() []extension.TypeRef {
	return []extension.TypeRef{extension.ResolvedTypeRef(reflect.TypeOf(Constant{}))}
}

func (constantConverter) SelectTag(_ any, _ []string, _ extension.SerializationContext) string {
	return ConstantTag
}

func (constantConverter) ToYAMLTree(obj any, _ extension.SerializationContext) (any, error) {
	c, ok := obj.(Constant)
	if !ok {
		return nil, fmt.Errorf("constant converter given %T", obj)
	}

	return c.Name, nil
}

func (constantConverter) FromYAMLTree(_ string, node any, _ extension.SerializationContext) (any, error) {
	name, ok := node.(string)
	if !ok {
		return nil, fmt.Errorf("constant node is not a string: %T", node)
	}

	return Constant{Name: name}, nil
}
