// Package extension implements the ExtensionRegistry of spec.md §4.1: it
// discovers, orders, and indexes converters, validators, tag definitions,
// and compressors contributed by enabled extensions.
//
// Dynamic dispatch is replaced with a capability trait per role (spec.md
// §9): Converter, Validator, Compressor, and Extension are plain
// interfaces implemented by concrete types, rather than duck-typed
// attribute probing.
package extension

import (
	"reflect"
	"strings"
)

// TagDefinition is (tag_uri, [schema_uri], title?, description?) from
// spec.md §3. TagURI may end in "*" to match a version range.
type TagDefinition struct {
	TagURI      string
	SchemaURIs  []string
	Title       string
	Description string
}

// Matches reports whether a concrete tag URI (never itself wildcarded) is
// covered by this definition's TagURI pattern: an exact literal pattern
// matches itself; a pattern ending in "*" matches any string sharing its
// prefix.
func (t TagDefinition) Matches(tagURI string) bool {
	return MatchTagPattern(t.TagURI, tagURI)
}

// MatchTagPattern implements the wildcard match semantics of spec.md §3:
// a literal pattern matches itself, and a pattern ending in "*" matches any
// suffix (i.e. any URI sharing the pattern's prefix up to the "*").
func MatchTagPattern(pattern, tagURI string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(tagURI, strings.TrimSuffix(pattern, "*"))
	}

	return pattern == tagURI
}

// TypeRef identifies the native Go type a Converter handles. It may be
// resolved immediately (Resolved != nil) or deferred by fully-qualified
// path (ClassPath != "") when the concrete type's package has not been
// imported by the calling binary yet -- the Go analogue of spec.md §3's
// "types list may contain ... its fully-qualified class path (resolved
// lazily when the module becomes available)". In Go every type that can
// appear in a TypeRef is necessarily already imported for the program to
// compile, so ClassPath exists only to let a converter be registered by
// name before its type is known to the registry building the index (e.g.
// a converter package registered before the type package's init has run);
// Resolve promotes it to Resolved on first successful lookup.
type TypeRef struct {
	Resolved  reflect.Type
	ClassPath string
}

// ResolvedTypeRef builds a TypeRef that is already resolved.
func ResolvedTypeRef(t reflect.Type) TypeRef {
	return TypeRef{Resolved: t}
}

// DeferredTypeRef builds a TypeRef keyed by class path, to be resolved
// later via Resolve.
func DeferredTypeRef(classPath string) TypeRef {
	return TypeRef{ClassPath: classPath}
}

// Resolve looks up ClassPath in a caller-provided class-path -> type table
// and, on success, returns a new Resolved TypeRef. It is a no-op (returns t
// unchanged) if t is already resolved or the path is not yet known.
func (t TypeRef) Resolve(known map[string]reflect.Type) TypeRef {
	if t.Resolved != nil || t.ClassPath == "" {
		return t
	}

	if rt, ok := known[t.ClassPath]; ok {
		return TypeRef{Resolved: rt}
	}

	return t
}

func (t TypeRef) key() any {
	if t.Resolved != nil {
		return t.Resolved
	}

	return t.ClassPath
}

// Converter is a pluggable bidirectional mapper between a native object and
// its tagged YAML representation (spec.md §3 "Converter").
type Converter interface {
	// Tags returns the tag URI patterns this converter produces/consumes.
	Tags() []string
	// Types returns the native types (or deferred class paths) this
	// converter handles on write.
	Types() []TypeRef
	// ToYAMLTree converts a native object into a basic mapping/sequence/
	// scalar value (no tag attached yet -- SelectTag supplies that).
	ToYAMLTree(obj any, ctx SerializationContext) (any, error)
	// FromYAMLTree reconstructs a native object from a basic
	// mapping/sequence/scalar tagged with tagURI.
	FromYAMLTree(tagURI string, node any, ctx SerializationContext) (any, error)
	// SelectTag picks the tag URI to attach to obj's serialized form when a
	// converter produces more than one tag. Returns "" to use the sole
	// entry in Tags().
	SelectTag(obj any, activeTags []string, ctx SerializationContext) string
}

// Validator implements one custom JSON-Schema keyword (e.g. "tag", "ndim",
// "datatype") applied during schema.Engine's tree walk.
type Validator interface {
	// Keyword is the schema property name this validator handles.
	Keyword() string
	// Validate checks value (the schema keyword's value) against node (the
	// tree node being validated) and returns a human-readable message per
	// failure, or nil if the node satisfies the keyword.
	Validate(value any, node any) []string
}

// Compressor implements one block compression codec, keyed by its 4-byte
// (or shorter) label (spec.md §6 "all_array_compression").
type Compressor interface {
	// Label is the compression label stored in the block header, e.g.
	// "zlib" or "bzp2".
	Label() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte, decompressedSize int) ([]byte, error)
}

// Extension is (extension_uri, asdf_standard_requirement?, tags,
// converters, validators, compressors, yaml_tag_handles) from spec.md §3.
type Extension interface {
	// ExtensionURI identifies the extension for precedence, diagnostics,
	// and ExtensionMetadata history entries.
	ExtensionURI() string
	// StandardRequirement is a version-range string the current ASDF
	// Standard version must satisfy, or "" for no constraint.
	StandardRequirement() string
	Tags() []TagDefinition
	Converters() []Converter
	Validators() []Validator
	Compressors() []Compressor
	// YAMLTagHandles maps a short YAML tag handle (e.g. "!") to the URI
	// prefix it expands to, for %TAG directive emission.
	YAMLTagHandles() map[string]string
}

// SerializationContext is the subset of serialctx.Context that Converter
// needs to see. It is declared here (rather than importing package
// serialctx directly) to avoid an import cycle, since serialctx in turn
// needs to reference Registry for tag/converter lookups; serialctx.Context
// satisfies this interface.
type SerializationContext interface {
	Version() string
	URL() string
	MarkExtensionUsed(ext Extension)
}
