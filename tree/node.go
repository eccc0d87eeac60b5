// Package tree implements the TreeCodec of spec.md §4.4: decoding the YAML
// document of an ASDF file into a native Go value (dispatching tagged nodes
// through extension.Converter) and encoding a native tree back into YAML,
// attaching explicit tags and flow/block style the same way.
package tree

import "fmt"

// Mapping is the generic decoded form of a YAML mapping: an ordered set of
// key/value pairs. It is what tree.Codec.Decode produces for any mapping
// node no converter claimed, and what a converter sees as its FromYAMLTree
// node argument. It satisfies both schema.PropertyLookup/OrderedNode and
// this package's local orderedNode, with no import of package schema
// needed: the method shapes just happen to coincide, the same way
// Block satisfies serialctx.BlockReader without serialctx importing block.
type Mapping struct {
	keys   []string
	values map[string]any
}

// NewMapping creates an empty Mapping.
func NewMapping() *Mapping {
	return &Mapping{values: make(map[string]any)}
}

// Set appends key (if new) or overwrites it (preserving its original
// position if already present).
func (m *Mapping) Set(key string, value any) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}

	m.values[key] = value
}

// Property implements schema.PropertyLookup.
func (m *Mapping) Property(name string) (any, bool) {
	v, ok := m.values[name]

	return v, ok
}

// OrderedKeys implements schema.OrderedNode and this package's orderedNode.
func (m *Mapping) OrderedKeys() []string {
	return m.keys
}

// Len reports the number of keys.
func (m *Mapping) Len() int { return len(m.keys) }

// Range calls fn for every key/value pair in source order, stopping early
// if fn returns false.
func (m *Mapping) Range(fn func(key string, value any) bool) {
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Sequence is the generic decoded form of a YAML sequence.
type Sequence []any

// Elements implements schema.ElementLookup.
func (s Sequence) Elements() []any { return []any(s) }

// Tagged wraps a converter-produced native value together with the tag URI
// it was read from (or will be written with) and its source style, so the
// "tag" schema keyword and round-trip style preservation both have
// something to inspect without the native type itself needing to carry
// ASDF bookkeeping fields.
type Tagged struct {
	TagURI string
	Value  any
	// FlowStyle mirrors the YAML flow/block style the node was read with
	// (spec.md's "flowStyle" keyword is advisory to the encoder, not
	// validated against the decoded value's content).
	FlowStyle bool
}

// ASDFTag implements schema.TaggedNode and this package's taggedNode.
func (t *Tagged) ASDFTag() string { return t.TagURI }

func (t *Tagged) String() string {
	return fmt.Sprintf("tag:%s value:%v", t.TagURI, t.Value)
}
