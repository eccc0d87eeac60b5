package tree

import (
	"errors"
	"fmt"
	"strings"
)

// ErrReferenceUnresolved indicates an external $ref target could not be
// located at resolution time (spec.md §4.5 "Reference resolution").
var ErrReferenceUnresolved = errors.New("reference unresolved")

// Reference is the deferred form of a {"$ref": URI} mapping produced by
// Codec.Decode. A converter or caller that wants automatic dereferencing
// never sees this type; it only appears when nothing has resolved the
// tree yet, or when a caller deliberately opts out of auto-resolution by
// asking for the raw decoded value (spec.md §D "Reference" type, grounded
// on asdf.core._converters.reference.Reference in original_source).
type Reference struct {
	URI string
}

// Opener loads an external reference target for reference resolution.
// ResolveReferences calls Open for every reference whose URI does not start
// with "#", relative paths included; this package has no built-in file
// reading, and with a nil Opener such a reference fails with
// ErrReferenceUnresolved. Open returns the root native tree of the target
// the same way the top-level FileFacade.Open does, letting
// ResolveReferences substitute into a target node directly.
type Opener interface {
	Open(uri string) (root any, err error)
}

// ResolveReferences walks value depth-first and replaces every *Reference
// it finds with the result of resolving its URI through opener, caching by
// URI so a document referenced from multiple places is only opened once.
// A "#/a/b/c" local JSON-pointer-style fragment resolves against root
// instead of calling opener.
func ResolveReferences(value any, root any, opener Opener) (any, error) {
	cache := make(map[string]any)

	return resolveValue(value, root, opener, cache)
}

func resolveValue(value any, root any, opener Opener, cache map[string]any) (any, error) {
	switch v := value.(type) {
	case *Reference:
		return resolveReference(v, root, opener, cache)
	case *Mapping:
		out := NewMapping()

		var err error

		v.Range(func(key string, child any) bool {
			var resolved any

			resolved, err = resolveValue(child, root, opener, cache)
			if err != nil {
				return false
			}

			out.Set(key, resolved)

			return true
		})

		if err != nil {
			return nil, err
		}

		return out, nil
	case Sequence:
		out := make(Sequence, len(v))

		for i, child := range v {
			resolved, err := resolveValue(child, root, opener, cache)
			if err != nil {
				return nil, err
			}

			out[i] = resolved
		}

		return out, nil
	case *Tagged:
		resolved, err := resolveValue(v.Value, root, opener, cache)
		if err != nil {
			return nil, err
		}

		return &Tagged{TagURI: v.TagURI, Value: resolved, FlowStyle: v.FlowStyle}, nil
	default:
		return value, nil
	}
}

func resolveReference(ref *Reference, root any, opener Opener, cache map[string]any) (any, error) {
	if strings.HasPrefix(ref.URI, "#") {
		return resolvePointer(strings.TrimPrefix(ref.URI, "#"), root)
	}

	target, fragment, hasFragment := strings.Cut(ref.URI, "#")

	doc, cached := cache[target]

	if !cached {
		if opener == nil {
			return nil, fmt.Errorf("%w: %s: no opener configured", ErrReferenceUnresolved, ref.URI)
		}

		var err error

		doc, err = opener.Open(target)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrReferenceUnresolved, ref.URI, err)
		}

		cache[target] = doc
	}

	if !hasFragment || fragment == "" {
		return doc, nil
	}

	return resolvePointer(fragment, doc)
}

// resolvePointer walks a "/a/b/0" JSON-pointer-style path through value,
// descending Mapping keys and Sequence indices.
func resolvePointer(pointer string, value any) (any, error) {
	pointer = strings.Trim(pointer, "/")
	if pointer == "" {
		return value, nil
	}

	cur := value

	for _, part := range strings.Split(pointer, "/") {
		switch v := cur.(type) {
		case *Mapping:
			child, ok := v.Property(part)
			if !ok {
				return nil, fmt.Errorf("%w: pointer segment %q not found", ErrReferenceUnresolved, part)
			}

			cur = child
		case Sequence:
			idx, err := toIndex(part)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("%w: pointer segment %q out of range", ErrReferenceUnresolved, part)
			}

			cur = v[idx]
		default:
			return nil, fmt.Errorf("%w: cannot descend into %T at %q", ErrReferenceUnresolved, cur, part)
		}
	}

	return cur, nil
}

func toIndex(s string) (int, error) {
	n := 0

	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q is not a valid index", ErrReferenceUnresolved, s)
		}

		n = n*10 + int(r-'0')
	}

	return n, nil
}
