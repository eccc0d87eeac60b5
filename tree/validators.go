package tree

import (
	"fmt"

	"go.asdf.sh/asdf/extension"
)

// taggedNode, ndArrayNode, and orderedNode are declared locally rather than
// imported from package schema, which defines the same shapes (TaggedNode,
// NDArrayNode, OrderedNode) for its own walk. Duplicating the interface
// keeps tree decoupled from schema: Tagged, Mapping and NDArray satisfy
// both by structure, with no import either way.
type taggedNode interface {
	ASDFTag() string
}

type ndArrayNode interface {
	ArrayShape() []int
	ArrayDatatype() string
}

type orderedNode interface {
	OrderedKeys() []string
}

// tagValidator implements the "tag" schema keyword: the node being
// validated must carry an ASDF tag matching the keyword's pattern
// (spec.md §3 tag_uri wildcard semantics).
type tagValidator struct{}

func (tagValidator) Keyword() string { return "tag" }

func (tagValidator) Validate(value any, node any) []string {
	pattern, ok := value.(string)
	if !ok {
		return nil
	}

	tn, ok := node.(taggedNode)
	if !ok {
		return nil
	}

	if !extension.MatchTagPattern(pattern, tn.ASDFTag()) {
		return []string{fmt.Sprintf("tag %q does not match required pattern %q", tn.ASDFTag(), pattern)}
	}

	return nil
}

// ndimValidator implements the "ndim" keyword: the node's array shape must
// have exactly the required number of dimensions.
type ndimValidator struct{}

func (ndimValidator) Keyword() string { return "ndim" }

func (ndimValidator) Validate(value any, node any) []string {
	want, ok := toInt(value)
	if !ok {
		return nil
	}

	nd, ok := node.(ndArrayNode)
	if !ok {
		return nil
	}

	if got := len(nd.ArrayShape()); got != want {
		return []string{fmt.Sprintf("ndim %d does not match required %d", got, want)}
	}

	return nil
}

// maxNdimValidator implements the "max_ndim" keyword.
type maxNdimValidator struct{}

func (maxNdimValidator) Keyword() string { return "max_ndim" }

func (maxNdimValidator) Validate(value any, node any) []string {
	want, ok := toInt(value)
	if !ok {
		return nil
	}

	nd, ok := node.(ndArrayNode)
	if !ok {
		return nil
	}

	if got := len(nd.ArrayShape()); got > want {
		return []string{fmt.Sprintf("ndim %d exceeds max_ndim %d", got, want)}
	}

	return nil
}

// datatypeValidator implements the "datatype" keyword: the array's stored
// datatype must be losslessly convertible to the required one (a narrower
// reader-side widening is allowed; a narrowing is not).
type datatypeValidator struct{}

func (datatypeValidator) Keyword() string { return "datatype" }

func (datatypeValidator) Validate(value any, node any) []string {
	nd, ok := node.(ndArrayNode)
	if !ok {
		return nil
	}

	// A structured (record) datatype requirement names one schema per
	// column. This engine's NDArray only ever holds a single scalar or
	// string column, so anything but exactly one required column is a
	// count mismatch (spec.md §4.5, "extra columns fail with Mismatch in
	// number of columns").
	if cols, ok := value.([]any); ok {
		if len(cols) != 1 {
			return []string{fmt.Sprintf("Mismatch in number of columns: array has 1, schema requires %d", len(cols))}
		}

		col, ok := cols[0].(map[string]any)
		if !ok {
			return nil
		}

		want, _ := col["datatype"].(string)
		if want == "" {
			return nil
		}

		got := nd.ArrayDatatype()
		if got == want || widens(got, want) {
			return nil
		}

		return []string{fmt.Sprintf("datatype %q is not convertible to required %q", got, want)}
	}

	want, ok := value.(string)
	if !ok {
		return nil
	}

	got := nd.ArrayDatatype()
	if got == want {
		return nil
	}

	if widens(got, want) {
		return nil
	}

	return []string{fmt.Sprintf("datatype %q is not convertible to required %q", got, want)}
}

// exactDatatypeValidator implements the "exact_datatype" keyword: no
// widening is permitted, the stored datatype must match literally.
type exactDatatypeValidator struct{}

func (exactDatatypeValidator) Keyword() string { return "exact_datatype" }

func (exactDatatypeValidator) Validate(value any, node any) []string {
	want, ok := value.(string)
	if !ok {
		return nil
	}

	nd, ok := node.(ndArrayNode)
	if !ok {
		return nil
	}

	if got := nd.ArrayDatatype(); got != want {
		return []string{fmt.Sprintf("exact_datatype %q does not match required %q", got, want)}
	}

	return nil
}

// propertyOrderValidator implements the "propertyOrder" keyword: the
// mapping's leading keys must equal the listed keys in the listed order,
// position by position, for as many positions as both have. A mapping with
// fewer keys passes when its keys match the start of the list; keys after
// the list's length are not checked (spec.md's property_order map ordering
// requirement).
type propertyOrderValidator struct{}

func (propertyOrderValidator) Keyword() string { return "propertyOrder" }

func (propertyOrderValidator) Validate(value any, node any) []string {
	want, ok := value.([]any)
	if !ok {
		return nil
	}

	on, ok := node.(orderedNode)
	if !ok {
		return nil
	}

	got := on.OrderedKeys()

	var wantKeys []string
	for _, v := range want {
		s, ok := v.(string)
		if !ok {
			return nil
		}

		wantKeys = append(wantKeys, s)
	}

	gotPrefix := got
	if len(gotPrefix) > len(wantKeys) {
		gotPrefix = gotPrefix[:len(wantKeys)]
	}

	for i, k := range gotPrefix {
		if i >= len(wantKeys) {
			break
		}

		if k != wantKeys[i] {
			return []string{fmt.Sprintf("property order %v does not match required prefix %v", got, wantKeys)}
		}
	}

	return nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// widens reports whether a value stored as from can be losslessly widened
// to to, for the handful of numeric promotions ndarray readers commonly
// tolerate.
func widens(from, to string) bool {
	promotions := map[string][]string{
		"int8":    {"int16", "int32", "int64", "float32", "float64"},
		"uint8":   {"int16", "uint16", "int32", "uint32", "int64", "uint64", "float32", "float64"},
		"int16":   {"int32", "int64", "float32", "float64"},
		"uint16":  {"int32", "uint32", "int64", "uint64", "float32", "float64"},
		"int32":   {"int64", "float64"},
		"uint32":  {"int64", "uint64", "float64"},
		"float32": {"float64"},
	}

	for _, t := range promotions[from] {
		if t == to {
			return true
		}
	}

	return false
}

// CoreExtension bundles the built-in ASDF tags, converters, and keyword
// validators into a single extension.Extension, the same single bundled
// "core" extension the reference implementation registers by default
// (asdf.core, referenced via original_source).
func CoreExtension() extension.Extension {
	return coreExtension{}
}

type coreExtension struct{}

func (coreExtension) ExtensionURI() string        { return "asdf://asdf-format.org/core/extensions/core-1.0.0" }
func (coreExtension) StandardRequirement() string { return "" }

func (coreExtension) Tags() []extension.TagDefinition {
	return []extension.TagDefinition{
		{TagURI: NDArrayTag, Title: "An n-dimensional array"},
		{TagURI: HistoryEntryTag, Title: "A record of a mutating operation"},
		{TagURI: SoftwareTag, Title: "A software package description"},
		{TagURI: ExtensionMetadataTag, Title: "Metadata about an exercised extension"},
		{TagURI: ComplexTag, Title: "A complex scalar"},
		{TagURI: ConstantTag, Title: "A named sentinel constant"},
	}
}

func (coreExtension) Converters() []extension.Converter {
	return []extension.Converter{
		ndarrayConverter{},
		historyEntryConverter{},
		softwareConverter{},
		extensionMetadataConverter{},
		complexConverter{},
		constantConverter{},
	}
}

func (coreExtension) Validators() []extension.Validator {
	return []extension.Validator{
		tagValidator{},
		ndimValidator{},
		maxNdimValidator{},
		datatypeValidator{},
		exactDatatypeValidator{},
		propertyOrderValidator{},
	}
}

func (coreExtension) Compressors() []extension.Compressor { return nil }
func (coreExtension) YAMLTagHandles() map[string]string   { return nil }
