package tree

import (
	"reflect"
	"time"

	"go.asdf.sh/asdf/extension"
)

// HistoryEntryTag, SoftwareTag and ExtensionMetadataTag are the built-in
// history-related tags
// (spec.md §3 "History entry").
const (
	HistoryEntryTag      = "tag:stsci.edu:asdf/core/history_entry-1.0.0"
	SoftwareTag          = "tag:stsci.edu:asdf/core/software-1.0.0"
	ExtensionMetadataTag = "tag:stsci.edu:asdf/core/extension_metadata-1.0.0"
)

// Software identifies a producer, used both standalone and nested inside
// HistoryEntry/ExtensionMetadata.
type Software struct {
	Name     string
	Version  string
	Author   string
	Homepage string
}

// HistoryEntry records one mutating operation (spec.md §3): a description,
// the time it happened, and the software that performed it.
type HistoryEntry struct {
	Description string
	Time        time.Time
	Software    []Software
}

// ExtensionMetadata records that an extension's converter was exercised
// during a write (spec.md §3 "Extension metadata"). FileFacade does not
// append it to history; it appends only a HistoryEntry on each write.
type ExtensionMetadata struct {
	ExtensionClass string
	ExtensionURI   string
	Software       *Software
}

// AppendHistoryEntry appends entry to root["history"]["entries"], creating
// either mapping as needed (spec.md §3 "History entry": every mutating
// write appends one). root must be a *Mapping for the entry to land
// anywhere; any other root type is returned unchanged, since a
// non-mapping document has nowhere to carry a history tree.
func AppendHistoryEntry(root any, entry HistoryEntry) any {
	m, ok := root.(*Mapping)
	if !ok {
		return root
	}

	history, ok := historyMapping(m)
	if !ok {
		history = NewMapping()
		m.Set("history", history)
	}

	entries, _ := history.Property("entries")
	seq, _ := entries.(Sequence)
	seq = append(seq, entry)
	history.Set("entries", seq)

	return m
}

func historyMapping(m *Mapping) (*Mapping, bool) {
	raw, ok := m.Property("history")
	if !ok {
		return nil, false
	}

	history, ok := raw.(*Mapping)

	return history, ok
}

// NewExtensionMetadata builds an ExtensionMetadata entry for ext, using its
// Go type name as extension_class since this engine has no Python-style
// module.ClassName string to report.
func NewExtensionMetadata(ext extension.Extension) ExtensionMetadata {
	return ExtensionMetadata{
		ExtensionClass: reflect.TypeOf(ext).String(),
		ExtensionURI:   ext.ExtensionURI(),
	}
}

type softwareConverter struct{}

func (softwareConverter) Tags() []string { return []string{SoftwareTag} }
func (softwareConverter) Types() []extension.TypeRef {
	return []extension.TypeRef{extension.ResolvedTypeRef(reflect.TypeOf(Software{}))}
}

func (softwareConverter) SelectTag(_ any, _ []string, _ extension.SerializationContext) string {
	return SoftwareTag
}

func (softwareConverter) ToYAMLTree(obj any, _ extension.SerializationContext) (any, error) {
	s := obj.(Software)

	m := NewMapping()
	m.Set("name", s.Name)
	m.Set("version", s.Version)

	if s.Author != "" {
		m.Set("author", s.Author)
	}

	if s.Homepage != "" {
		m.Set("homepage", s.Homepage)
	}

	return m, nil
}

func (softwareConverter) FromYAMLTree(_ string, node any, _ extension.SerializationContext) (any, error) {
	m, ok := node.(*Mapping)
	if !ok {
		return Software{}, nil
	}

	name, _ := m.values["name"].(string)
	version, _ := m.values["version"].(string)
	author, _ := m.values["author"].(string)
	homepage, _ := m.values["homepage"].(string)

	return Software{Name: name, Version: version, Author: author, Homepage: homepage}, nil
}

type historyEntryConverter struct{}

func (historyEntryConverter) Tags() []string { return []string{HistoryEntryTag} }
func (historyEntryConverter) Types() []extension.TypeRef {
	return []extension.TypeRef{extension.ResolvedTypeRef(reflect.TypeOf(HistoryEntry{}))}
}

func (historyEntryConverter) SelectTag(_ any, _ []string, _ extension.SerializationContext) string {
	return HistoryEntryTag
}

func (historyEntryConverter) ToYAMLTree(obj any, ctx extension.SerializationContext) (any, error) {
	h := obj.(HistoryEntry)

	m := NewMapping()
	m.Set("description", h.Description)
	m.Set("time", h.Time.UTC().Format(time.RFC3339))

	if len(h.Software) > 0 {
		sw := make(Sequence, len(h.Software))
		for i, s := range h.Software {
			encoded, err := softwareConverter{}.ToYAMLTree(s, ctx)
			if err != nil {
				return nil, err
			}

			sw[i] = encoded
		}

		m.Set("software", sw)
	}

	return m, nil
}

func (historyEntryConverter) FromYAMLTree(_ string, node any, ctx extension.SerializationContext) (any, error) {
	m, ok := node.(*Mapping)
	if !ok {
		return HistoryEntry{}, nil
	}

	desc, _ := m.values["description"].(string)

	var t time.Time

	if raw, ok := m.values["time"].(string); ok {
		t, _ = time.Parse(time.RFC3339, raw)
	}

	var sw []Software

	if raw, ok := m.values["software"].(Sequence); ok {
		for _, entry := range raw {
			decoded, err := softwareConverter{}.FromYAMLTree(SoftwareTag, entry, ctx)
			if err != nil {
				return nil, err
			}

			sw = append(sw, decoded.(Software))
		}
	}

	return HistoryEntry{Description: desc, Time: t, Software: sw}, nil
}

type extensionMetadataConverter struct{}

func (extensionMetadataConverter) Tags() []string { return []string{ExtensionMetadataTag} }
func (extensionMetadataConverter) Types() []extension.TypeRef {
	return []extension.TypeRef{extension.ResolvedTypeRef(reflect.TypeOf(ExtensionMetadata{}))}
}

func (extensionMetadataConverter) SelectTag(_ any, _ []string, _ extension.SerializationContext) string {
	return ExtensionMetadataTag
}

func (extensionMetadataConverter) ToYAMLTree(obj any, ctx extension.SerializationContext) (any, error) {
	e := obj.(ExtensionMetadata)

	m := NewMapping()
	m.Set("extension_class", e.ExtensionClass)

	if e.ExtensionURI != "" {
		m.Set("extension_uri", e.ExtensionURI)
	}

	if e.Software != nil {
		sw, err := softwareConverter{}.ToYAMLTree(*e.Software, ctx)
		if err != nil {
			return nil, err
		}

		m.Set("software", sw)
	}

	return m, nil
}

func (extensionMetadataConverter) FromYAMLTree(_ string, node any, ctx extension.SerializationContext) (any, error) {
	m, ok := node.(*Mapping)
	if !ok {
		return ExtensionMetadata{}, nil
	}

	class, _ := m.values["extension_class"].(string)
	uri, _ := m.values["extension_uri"].(string)

	out := ExtensionMetadata{ExtensionClass: class, ExtensionURI: uri}

	if raw, ok := m.values["software"]; ok {
		decoded, err := softwareConverter{}.FromYAMLTree(SoftwareTag, raw, ctx)
		if err != nil {
			return nil, err
		}

		s := decoded.(Software)
		out.Software = &s
	}

	return out, nil
}
