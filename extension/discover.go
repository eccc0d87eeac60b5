package extension

import "fmt"

// Factory constructs an Extension. Go has no runtime plugin discovery by
// default, so unlike Python's importlib.metadata entry points
// (asdf/_entry_points.py), plugin discovery here is a caller-supplied list
// of constructor functions -- typically one per imported extension
// package's init-time registration.
type Factory func() Extension

// DiscoverPlugins calls each factory and returns the resulting extensions,
// reporting (rather than silently dropping) any duplicate ExtensionURI: the
// first-registered factory for a given URI wins and every subsequent
// duplicate is returned as a warning string, mirroring spec.md §3's
// Extension precedence and §4.1's duplicate-tag diagnostic.
func DiscoverPlugins(factories []Factory) (exts []Extension, warnings []string) {
	seen := make(map[string]bool)

	for _, factory := range factories {
		ext := factory()

		uri := ext.ExtensionURI()
		if seen[uri] {
			warnings = append(warnings, fmt.Sprintf("duplicate extension %q ignored", uri))

			continue
		}

		seen[uri] = true
		exts = append(exts, ext)
	}

	return exts, warnings
}
