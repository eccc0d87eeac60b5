package extension

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
)

// Registry holds the enabled extensions and the indexes built from them,
// per spec.md §4.1. Extensions are consumed in the order given to New:
// user-supplied extensions first, then third-party plugins sorted by
// package name, then built-ins last, matching spec.md §3 "Extension"
// precedence and §5 "Ordering guarantees".
type Registry struct {
	extensions []Extension

	tagDefs          map[string]TagDefinition
	converterByTag   map[string]Converter
	converterByType  map[any]Converter
	validatorsByName map[string][]Validator
	compressors      map[string]Compressor

	wildcardTagDefs []TagDefinition

	warnings []string
}

// New builds a Registry from extensions already in final precedence order.
// Use Order to produce that ordering from separate user/third-party/
// built-in groups.
func New(extensions []Extension) *Registry {
	r := &Registry{
		extensions:       extensions,
		tagDefs:          make(map[string]TagDefinition),
		converterByTag:   make(map[string]Converter),
		converterByType:  make(map[any]Converter),
		validatorsByName: make(map[string][]Validator),
		compressors:      make(map[string]Compressor),
	}

	r.build()

	return r
}

// Order arranges extensions into the documented precedence: user extensions
// first (in the order given), then thirdParty sorted alphabetically by
// ExtensionURI, then builtIn last. Third parties are allowed to override
// built-ins because they are listed earlier in the resulting slice and
// indexing is first-wins.
func Order(user, thirdParty, builtIn []Extension) []Extension {
	sorted := append([]Extension(nil), thirdParty...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ExtensionURI() < sorted[j].ExtensionURI()
	})

	out := make([]Extension, 0, len(user)+len(sorted)+len(builtIn))
	out = append(out, user...)
	out = append(out, sorted...)
	out = append(out, builtIn...)

	return out
}

func (r *Registry) build() {
	converterTypeEntries := make(map[any]Converter)

	for _, ext := range r.extensions {
		for _, td := range ext.Tags() {
			if _, exists := r.tagDefs[td.TagURI]; !exists {
				r.tagDefs[td.TagURI] = td
				if len(td.TagURI) > 0 && td.TagURI[len(td.TagURI)-1] == '*' {
					r.wildcardTagDefs = append(r.wildcardTagDefs, td)
				}
			}
		}

		for _, conv := range ext.Converters() {
			for _, tag := range conv.Tags() {
				if _, exists := r.converterByTag[tag]; exists {
					r.warnings = append(r.warnings,
						fmt.Sprintf("extension %q: tag %q already claimed by a higher-precedence converter", ext.ExtensionURI(), tag))

					continue
				}

				r.converterByTag[tag] = conv
			}

			for _, typ := range conv.Types() {
				key := typ.key()
				if _, exists := converterTypeEntries[key]; !exists {
					converterTypeEntries[key] = conv
				}
			}
		}

		for _, v := range ext.Validators() {
			r.validatorsByName[v.Keyword()] = append(r.validatorsByName[v.Keyword()], v)
		}

		for _, c := range ext.Compressors() {
			if _, exists := r.compressors[c.Label()]; !exists {
				r.compressors[c.Label()] = c
			}
		}
	}

	for key, conv := range converterTypeEntries {
		r.converterByType[key] = conv
	}
}

// ResolveDeferredTypes attempts to promote any converter registered by
// class path into the by-type index now that known maps a path to a
// reflect.Type. Call this once the corresponding native package has been
// imported/registered by the caller.
func (r *Registry) ResolveDeferredTypes(known map[string]reflect.Type) {
	for path, rt := range known {
		if conv, ok := r.converterByType[path]; ok {
			if _, already := r.converterByType[rt]; !already {
				r.converterByType[rt] = conv
			}
		}
	}
}

// Warnings returns diagnostic strings accumulated while building the index
// (e.g. duplicate tag claims across extensions).
func (r *Registry) Warnings() []string {
	return r.warnings
}

// Extensions returns the ordered extension list backing this registry.
func (r *Registry) Extensions() []Extension {
	return r.extensions
}

// TagDefinition returns the definition registered for tagURI, matching
// wildcard patterns if no exact entry exists, and ok=false if none match.
// If more than one wildcard matches, the first registered (highest
// precedence) wins.
func (r *Registry) TagDefinition(tagURI string) (TagDefinition, bool) {
	if td, ok := r.tagDefs[tagURI]; ok {
		return td, true
	}

	for _, td := range r.wildcardTagDefs {
		if td.Matches(tagURI) {
			return td, true
		}
	}

	return TagDefinition{}, false
}

// ConverterForTag returns the converter registered for tagURI (exact or
// wildcard, via TagDefinition's match semantics applied to every converter
// tag pattern), and ok=false if none handles it.
func (r *Registry) ConverterForTag(tagURI string) (Converter, bool) {
	if conv, ok := r.converterByTag[tagURI]; ok {
		return conv, true
	}

	for pattern, conv := range r.converterByTag {
		if MatchTagPattern(pattern, tagURI) {
			return conv, true
		}
	}

	return nil, false
}

// ConverterForType returns the converter registered for t, and ok=false if
// none handles it.
func (r *Registry) ConverterForType(t reflect.Type) (Converter, bool) {
	conv, ok := r.converterByType[t]
	return conv, ok
}

// Validators returns the validators registered for a schema keyword, in
// extension precedence order (union across extensions, per spec.md §4.1).
func (r *Registry) Validators(keyword string) []Validator {
	return r.validatorsByName[keyword]
}

// Compressor returns the compressor registered for a block compression
// label, and ok=false if none is installed.
func (r *Registry) Compressor(label string) (Compressor, bool) {
	c, ok := r.compressors[label]
	return c, ok
}

// HandlesTag reports whether a converter is registered for tagURI.
func (r *Registry) HandlesTag(tagURI string) bool {
	_, ok := r.ConverterForTag(tagURI)
	return ok
}

// LogWarnings emits every accumulated build warning through logger at warn
// level, then clears them.
func (r *Registry) LogWarnings(logger *slog.Logger) {
	if logger == nil {
		return
	}

	for _, w := range r.warnings {
		logger.Warn("extension registry", slog.String("warning", w))
	}

	r.warnings = nil
}
