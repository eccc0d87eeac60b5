// Package schema resolves a tag's schema document through a resource.Store
// and validates a decoded tree node against it. Standard keywords are
// delegated to github.com/google/jsonschema-go, the same schema library the
// teacher's magicschema generator builds documents with. Keywords outside
// that vocabulary (tag, propertyOrder, ndim, datatype, and so on) have no
// equivalent there; they are walked structurally in custom.go and checked
// through whichever extension.Validator a caller's registry supplies for
// that keyword, so this package never needs to know the ASDF vocabulary by
// name.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/google/jsonschema-go/jsonschema"

	"go.asdf.sh/asdf/extension"
	"go.asdf.sh/asdf/resource"
)

// ErrSchemaViolation indicates an instance failed validation against its
// schema, standard or ASDF-specific.
var ErrSchemaViolation = errors.New("schema violation")

// ErrSchemaNotFound indicates no resource provider had the requested schema
// URI.
var ErrSchemaNotFound = errors.New("schema not found")

// compiled pairs a resolved jsonschema.Schema (for standard keyword
// validation) with its raw decoded form (for the ASDF keyword walk, which
// needs the keys jsonschema-go's struct doesn't carry).
type compiled struct {
	resolved *jsonschema.Resolved
	raw      any
}

// Engine loads and caches schemas by URI and validates tree values against
// them. The ASDF-specific keyword vocabulary is not hardcoded here: it is
// supplied by whatever extension.Validator implementations reg carries, the
// same capability-trait registry that resolves converters and compressors
// (spec.md §9). reg may be nil, in which case only plain JSON Schema
// keywords are checked.
type Engine struct {
	store *resource.Store
	reg   *extension.Registry

	mu    sync.RWMutex
	cache map[string]*compiled
}

// NewEngine creates an Engine backed by store, dispatching custom keyword
// checks through reg.
func NewEngine(store *resource.Store, reg *extension.Registry) *Engine {
	return &Engine{
		store: store,
		reg:   reg,
		cache: make(map[string]*compiled),
	}
}

func (e *Engine) load(uri string) (*compiled, error) {
	e.mu.RLock()
	c, ok := e.cache[uri]
	e.mu.RUnlock()

	if ok {
		return c, nil
	}

	data, err := e.store.Get(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSchemaNotFound, uri, err)
	}

	c, err = compile(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSchemaViolation, uri, err)
	}

	e.mu.Lock()
	e.cache[uri] = c
	e.mu.Unlock()

	return c, nil
}

// compile parses a schema document (YAML or JSON, both accepted since JSON
// is a YAML subset) into both its typed jsonschema.Resolved form and a raw
// generic tree for the custom keyword walk.
func compile(data []byte) (*compiled, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing schema document: %w", err)
	}

	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encoding schema document as JSON: %w", err)
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(jsonBytes, &s); err != nil {
		return nil, fmt.Errorf("decoding JSON Schema: %w", err)
	}

	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving JSON Schema: %w", err)
	}

	return &compiled{resolved: resolved, raw: raw}, nil
}

// TaggedNode is implemented by tree values that carry an ASDF tag URI, so
// the "tag" keyword can be checked. Plain decoded Go values (map[string]any,
// []any, scalars) simply don't satisfy it, and the tag check is skipped for
// them.
type TaggedNode interface {
	ASDFTag() string
}

// OrderedNode is implemented by tree mapping values that preserve the
// source key order, for the "propertyOrder" keyword.
type OrderedNode interface {
	OrderedKeys() []string
}

// NDArrayNode is implemented by tree values representing an ndarray, for
// the "ndim", "max_ndim", "datatype" and "exact_datatype" keywords.
type NDArrayNode interface {
	ArrayShape() []int
	ArrayDatatype() string
}

// PropertyLookup is implemented by tree mapping values so the custom
// keyword walk can descend into "properties" children without assuming a
// concrete Go map type.
type PropertyLookup interface {
	Property(name string) (value any, ok bool)
}

// ElementLookup is implemented by tree sequence values so the custom
// keyword walk can descend into "items" elements.
type ElementLookup interface {
	Elements() []any
}

// Validate resolves schemaURI and checks instance against both its standard
// JSON Schema keywords and the ASDF-specific vocabulary.
func (e *Engine) Validate(schemaURI string, instance any) error {
	c, err := e.load(schemaURI)
	if err != nil {
		return err
	}

	if err := c.resolved.Validate(instance); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSchemaViolation, schemaURI, err)
	}

	return validateCustom(e.reg, c.raw, instance, schemaURI)
}

// Has reports whether schemaURI is resolvable without surfacing the error.
func (e *Engine) Has(schemaURI string) bool {
	_, err := e.load(schemaURI)
	return err == nil
}
