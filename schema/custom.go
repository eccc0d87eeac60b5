package schema

import (
	"fmt"
	"strings"

	"go.asdf.sh/asdf/extension"
)

// structuralKeywords are plain JSON Schema composition keywords the walk
// recurses through directly; every other key found on a schema object is
// treated as a candidate custom keyword and dispatched to any
// extension.Validator registered for it (spec.md §9: custom keywords are a
// capability trait, not a hardcoded list).
var structuralKeywords = map[string]bool{
	"type": true, "properties": true, "items": true,
	"allOf": true, "anyOf": true, "oneOf": true, "not": true,
	"required": true, "additionalProperties": true, "$ref": true,
	"enum": true, "const": true, "title": true, "description": true,
	"default": true, "id": true, "$id": true, "$schema": true,
	"definitions": true, "pattern": true, "format": true,
	"minimum": true, "maximum": true, "minItems": true, "maxItems": true,
	"minLength": true, "maxLength": true,
}

// validateCustom recursively checks every non-structural keyword found in
// raw against instance, dispatching to reg.Validators(keyword). reg may be
// nil (no extensions registered), in which case only the structural walk
// runs and no custom keyword is checked.
func validateCustom(reg *extension.Registry, raw any, instance any, path string) error {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	if reg != nil {
		for keyword, value := range m {
			if structuralKeywords[keyword] {
				continue
			}

			for _, v := range reg.Validators(keyword) {
				if msgs := v.Validate(value, instance); len(msgs) > 0 {
					return fmt.Errorf("%w: %s: keyword %q: %s", ErrSchemaViolation, path, keyword, strings.Join(msgs, "; "))
				}
			}
		}
	}

	if err := descendProperties(reg, m, instance, path); err != nil {
		return err
	}

	if err := descendItems(reg, m, instance, path); err != nil {
		return err
	}

	return descendCombinators(reg, m, instance, path)
}

func descendProperties(reg *extension.Registry, m map[string]any, instance any, path string) error {
	props, ok := m["properties"].(map[string]any)
	if !ok {
		return nil
	}

	for key, subSchema := range props {
		child, present := lookupProperty(instance, key)
		if !present {
			continue
		}

		if err := validateCustom(reg, subSchema, child, path+"."+key); err != nil {
			return err
		}
	}

	return nil
}

func lookupProperty(instance any, key string) (any, bool) {
	switch v := instance.(type) {
	case PropertyLookup:
		return v.Property(key)
	case map[string]any:
		child, ok := v[key]

		return child, ok
	default:
		return nil, false
	}
}

func descendItems(reg *extension.Registry, m map[string]any, instance any, path string) error {
	itemsSchema, ok := m["items"]
	if !ok {
		return nil
	}

	elements := lookupElements(instance)

	for i, item := range elements {
		if err := validateCustom(reg, itemsSchema, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}

	return nil
}

func lookupElements(instance any) []any {
	switch v := instance.(type) {
	case ElementLookup:
		return v.Elements()
	case []any:
		return v
	default:
		return nil
	}
}

func descendCombinators(reg *extension.Registry, m map[string]any, instance any, path string) error {
	if subs, ok := m["allOf"].([]any); ok {
		for _, sub := range subs {
			if err := validateCustom(reg, sub, instance, path); err != nil {
				return err
			}
		}
	}

	// anyOf/oneOf branches are alternatives; the standard validator already
	// decided the instance matches (at least) one of them, so a branch's
	// custom-keyword mismatch does not by itself fail the instance.
	for _, key := range []string{"anyOf", "oneOf"} {
		subs, ok := m[key].([]any)
		if !ok {
			continue
		}

		for _, sub := range subs {
			_ = validateCustom(reg, sub, instance, path)
		}
	}

	return nil
}
