// Package resource implements the URI-to-bytes ResourceStore described in
// spec.md §4.1: schema documents and extension manifests are located by
// URI through a chain of providers, first-wins, the way the teacher's
// magicschema package chained annotators by priority order.
package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrMissing indicates no provider in the Store produced bytes for a URI.
var ErrMissing = errors.New("resource missing")

// Provider maps URIs to bytes. Store runs concurrent Gets of the same URI
// once through a single singleflight group keyed by URI; Gets of different
// URIs can call a provider's Get concurrently.
type Provider interface {
	// Get returns the bytes for uri, or ok=false if this provider does not
	// have it.
	Get(uri string) (data []byte, ok bool)
}

// MapProvider is a Provider backed by an in-memory map, used for resources
// registered programmatically (e.g. a converter's schema embedded via
// go:embed).
type MapProvider map[string][]byte

// Get implements Provider.
func (m MapProvider) Get(uri string) ([]byte, bool) {
	b, ok := m[uri]
	return b, ok
}

// DirectoryProvider serves resources rooted at an fs.FS, mapping a URI
// prefix to a directory of JSON/YAML schema files, mirroring pyasdf's
// resolver-by-prefix behavior.
//
// A file's URI is URIPrefix, then "/", then the file's path relative to
// Root with the extension stripped. When FilenameIsVersion is true, the final path
// segment's extension-stripped name is treated as a version and appended
// to the URI with a "-" separator instead of "/", matching an extension
// manifest directory laid out as "<uri-base>/1.0.0.yaml".
type DirectoryProvider struct {
	FS                fs.FS
	Root              string
	URIPrefix         string
	Recursive         bool
	FilenameIsVersion bool

	once  sync.Once
	index map[string]string // uri -> fs path
}

// Get implements Provider.
func (d *DirectoryProvider) Get(uri string) ([]byte, bool) {
	d.once.Do(d.buildIndex)

	p, ok := d.index[uri]
	if !ok {
		return nil, false
	}

	b, err := fs.ReadFile(d.FS, p)
	if err != nil {
		return nil, false
	}

	return b, true
}

func (d *DirectoryProvider) buildIndex() {
	d.index = make(map[string]string)

	walk := fs.WalkDir(d.FS, d.Root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort indexing
		}

		if entry.IsDir() {
			if !d.Recursive && p != d.Root {
				return fs.SkipDir
			}

			return nil
		}

		rel := strings.TrimPrefix(p, d.Root)
		rel = strings.TrimPrefix(rel, "/")
		ext := path.Ext(rel)
		stem := strings.TrimSuffix(rel, ext)

		var uri string
		if d.FilenameIsVersion {
			dir, version := path.Split(stem)
			dir = strings.TrimSuffix(dir, "/")

			if dir == "" {
				uri = d.URIPrefix + "-" + version
			} else {
				uri = d.URIPrefix + "/" + dir + "-" + version
			}
		} else {
			uri = d.URIPrefix + "/" + stem
		}

		d.index[uri] = p

		return nil
	})
	_ = walk
}

// Store layers providers with first-wins precedence: the provider appended
// earliest that returns ok=true wins. A single-flight group per Store
// deduplicates concurrent loads of the same URI so a schema referenced from
// many goroutines is only read from disk once.
type Store struct {
	providers []Provider
	group     singleflight.Group
	mu        sync.RWMutex
	cache     map[string][]byte
}

// NewStore creates a Store with providers in precedence order (first wins).
func NewStore(providers ...Provider) *Store {
	return &Store{
		providers: append([]Provider(nil), providers...),
		cache:     make(map[string][]byte),
	}
}

// WithProvider returns a new Store with provider prepended (highest
// precedence), leaving the receiver untouched, so a provider can be layered
// over an existing Store without mutating it.
func (s *Store) WithProvider(provider Provider) *Store {
	s.mu.RLock()
	providers := append([]Provider{provider}, s.providers...)
	s.mu.RUnlock()

	return NewStore(providers...)
}

// Get returns the bytes registered for uri across all providers, in
// precedence order, or ErrMissing if none has it.
func (s *Store) Get(uri string) ([]byte, error) {
	s.mu.RLock()
	if b, ok := s.cache[uri]; ok {
		s.mu.RUnlock()
		return b, nil
	}
	s.mu.RUnlock()

	v, err, _ := s.group.Do(uri, func() (any, error) {
		for _, p := range s.providers {
			if b, ok := p.Get(uri); ok {
				s.mu.Lock()
				s.cache[uri] = b
				s.mu.Unlock()

				return b, nil
			}
		}

		return nil, fmt.Errorf("%w: %s", ErrMissing, uri)
	})
	if err != nil {
		return nil, err
	}

	return v.([]byte), nil
}

// Has reports whether any provider has uri, without surfacing the error
// from a failed lookup.
func (s *Store) Has(uri string) bool {
	_, err := s.Get(uri)
	return err == nil
}

// URIs returns every URI known to map-backed providers in the store,
// sorted. DirectoryProvider entries are only included after their first
// Get call has built the lazy index (Store does not eagerly walk the
// filesystem).
func (s *Store) URIs() []string {
	seen := make(map[string]struct{})

	for _, p := range s.providers {
		switch prov := p.(type) {
		case MapProvider:
			for uri := range prov {
				seen[uri] = struct{}{}
			}
		case *DirectoryProvider:
			for uri := range prov.index {
				seen[uri] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for uri := range seen {
		out = append(out, uri)
	}

	sort.Strings(out)

	return out
}
