package tree

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"
	"gopkg.in/yaml.v3"

	"go.asdf.sh/asdf/extension"
	"go.asdf.sh/asdf/serialctx"
)

// ErrDecode wraps any failure parsing or walking the YAML document into a
// native tree.
var ErrDecode = errors.New("tree decode failed")

// ErrEncode wraps any failure building the YAML document from a native
// tree.
var ErrEncode = errors.New("tree encode failed")

// Codec implements TreeCodec (spec.md §4.4): decoding a YAML document into
// a native tree with tagged nodes dispatched through the registry's
// converters, and encoding a native tree back into YAML with explicit
// tags attached per SelectTag.
//
// Decode walks the github.com/goccy/go-yaml AST directly rather than using
// its high-level Unmarshal, the same way the teacher's magicschema
// generator walks the AST to infer a schema: a high-level Unmarshal into
// map[string]any would resolve away the explicit YAML tags this format's
// converter dispatch depends on. Encode instead builds a gopkg.in/yaml.v3
// Node tree and marshals it, since that library's Node carries an explicit
// Tag and Style a converter's SelectTag/flowStyle decision can set directly
// without fighting a struct-tag-driven encoder.
type Codec struct {
	reg *extension.Registry
}

// NewCodec creates a Codec dispatching tagged nodes through reg.
func NewCodec(reg *extension.Registry) *Codec {
	return &Codec{reg: reg}
}

// Decode parses data as a single YAML document and returns its native tree
// form: *Mapping for mappings, Sequence for sequences, a Go scalar for
// scalars, the converter's reconstructed object for any tag the registry
// recognizes, and *Tagged for any tag it does not.
func (c *Codec) Decode(data []byte, ctx *serialctx.Context) (any, error) {
	file, err := parser.ParseBytes(data, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if len(file.Docs) == 0 || file.Docs[0].Body == nil {
		return nil, nil
	}

	return c.decodeNode(file.Docs[0].Body, ctx)
}

func (c *Codec) decodeNode(node ast.Node, ctx *serialctx.Context) (any, error) {
	tagURI, inner := unwrapTag(node)

	var (
		basic any
		err   error
	)

	switch n := inner.(type) {
	case *ast.MappingNode:
		basic, err = c.decodeMapping(n.Values, ctx)
	case *ast.MappingValueNode:
		basic, err = c.decodeMapping([]*ast.MappingValueNode{n}, ctx)
	case *ast.SequenceNode:
		basic, err = c.decodeSequence(n, ctx)
	case nil:
		return nil, nil
	default:
		basic, err = decodeScalar(inner)
	}

	if err != nil {
		return nil, err
	}

	if tagURI == "" {
		return basic, nil
	}

	if conv, ok := c.reg.ConverterForTag(tagURI); ok {
		obj, err := conv.FromYAMLTree(tagURI, basic, ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: tag %s: %w", ErrDecode, tagURI, err)
		}

		return obj, nil
	}

	flow := false

	switch n := inner.(type) {
	case *ast.MappingNode:
		flow = n.IsFlowStyle
	case *ast.SequenceNode:
		flow = n.IsFlowStyle
	}

	return &Tagged{TagURI: tagURI, Value: basic, FlowStyle: flow}, nil
}

func (c *Codec) decodeMapping(values []*ast.MappingValueNode, ctx *serialctx.Context) (any, error) {
	m := NewMapping()

	for _, mvn := range values {
		if mvn == nil || mvn.Key == nil {
			continue
		}

		key := strings.Trim(mvn.Key.String(), `"'`)

		val, err := c.decodeNode(mvn.Value, ctx)
		if err != nil {
			return nil, err
		}

		m.Set(key, val)
	}

	if m.Len() == 1 {
		if uri, ok := m.values["$ref"].(string); ok {
			return &Reference{URI: uri}, nil
		}
	}

	return m, nil
}

func (c *Codec) decodeSequence(n *ast.SequenceNode, ctx *serialctx.Context) (any, error) {
	seq := make(Sequence, 0, len(n.Values))

	for _, v := range n.Values {
		val, err := c.decodeNode(v, ctx)
		if err != nil {
			return nil, err
		}

		seq = append(seq, val)
	}

	return seq, nil
}

// unwrapTag strips an *ast.TagNode (and any *ast.AnchorNode around it) off
// node, returning the tag's URI text (with a leading "!" stripped, "" if
// node carries no explicit tag) and the underlying value node.
func unwrapTag(node ast.Node) (string, ast.Node) {
	tagURI := ""

	for {
		switch n := node.(type) {
		case *ast.TagNode:
			if n.Start != nil {
				tagURI = parseTagText(n.Start.Value)
			}

			node = n.Value
		case *ast.AnchorNode:
			node = n.Value
		default:
			return tagURI, node
		}
	}
}

// parseTagText extracts the URI out of a raw YAML tag token, undoing
// verbatimTag's "!<uri>" form (and tolerating the plain "!uri" shorthand
// form, in case a document was hand-written rather than produced by this
// package's Encode).
func parseTagText(raw string) string {
	s := strings.TrimLeft(raw, "!")
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")

	return s
}

func decodeScalar(node ast.Node) (any, error) {
	switch n := node.(type) {
	case *ast.StringNode:
		return n.Value, nil
	case *ast.IntegerNode:
		return n.Value, nil
	case *ast.FloatNode:
		return n.Value, nil
	case *ast.BoolNode:
		return n.Value, nil
	case *ast.NullNode:
		return nil, nil
	case nil:
		return nil, nil
	default:
		return n.String(), nil
	}
}

// Encode builds a YAML document from value, attaching explicit tags per
// the registry's Converter.SelectTag and honoring *Tagged's recorded
// style, and returns the marshaled bytes.
func (c *Codec) Encode(value any, ctx *serialctx.Context) ([]byte, error) {
	node, err := c.toNode(value, ctx)
	if err != nil {
		return nil, err
	}

	out, err := yaml.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	return out, nil
}

func (c *Codec) toNode(v any, ctx *serialctx.Context) (*yaml.Node, error) {
	switch val := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case *Tagged:
		inner, err := c.toNode(val.Value, ctx)
		if err != nil {
			return nil, err
		}

		inner.Tag = verbatimTag(val.TagURI)

		if val.FlowStyle {
			inner.Style |= yaml.FlowStyle
		}

		return inner, nil
	case *Mapping:
		node := &yaml.Node{Kind: yaml.MappingNode}

		var rangeErr error

		val.Range(func(key string, v any) bool {
			valNode, err := c.toNode(v, ctx)
			if err != nil {
				rangeErr = err

				return false
			}

			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, valNode)

			return true
		})

		if rangeErr != nil {
			return nil, rangeErr
		}

		return node, nil
	case Sequence:
		return c.encodeSlice([]any(val), ctx)
	case []any:
		return c.encodeSlice(val, ctx)
	case *Reference:
		m := NewMapping()
		m.Set("$ref", val.URI)

		return c.toNode(m, ctx)
	default:
		return c.toConverterOrScalar(v, ctx)
	}
}

func (c *Codec) encodeSlice(vs []any, ctx *serialctx.Context) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.SequenceNode}

	for _, v := range vs {
		child, err := c.toNode(v, ctx)
		if err != nil {
			return nil, err
		}

		node.Content = append(node.Content, child)
	}

	return node, nil
}

func (c *Codec) toConverterOrScalar(v any, ctx *serialctx.Context) (*yaml.Node, error) {
	if conv, ok := c.reg.ConverterForType(reflect.TypeOf(v)); ok {
		basic, err := conv.ToYAMLTree(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncode, err)
		}

		tags := conv.Tags()

		tagURI := conv.SelectTag(v, tags, ctx)
		if tagURI == "" && len(tags) == 1 {
			tagURI = tags[0]
		}

		node, err := c.toNode(basic, ctx)
		if err != nil {
			return nil, err
		}

		if tagURI != "" {
			node.Tag = verbatimTag(tagURI)
		}

		return node, nil
	}

	node := &yaml.Node{}
	if err := node.Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	return node, nil
}

// verbatimTag renders a tag URI using YAML's verbatim tag syntax ("!<uri>"),
// which needs no %TAG handle to resolve unambiguously -- the simplest
// correct emission, at the cost of the shorter "!core/ndarray-1.0.0" form
// a handle-aware emitter would produce.
func verbatimTag(tagURI string) string {
	if tagURI == "" {
		return ""
	}

	return "!<" + tagURI + ">"
}
