// Package serialctx implements the SerializationContext of spec.md §4.6: a
// per-operation value threaded through every converter invocation, mediating
// block allocation/reservation without converters touching block.Store
// directly.
package serialctx

import (
	"errors"
	"fmt"
	"sync"

	"go.asdf.sh/asdf/extension"
)

// Errors returned by context methods used from the wrong mode (spec.md §4.6
// "Failure model").
var (
	ErrInvalidContextUsage = errors.New("invalid context usage")
	ErrNotAnExtension      = errors.New("not an extension")
)

// BlockKey is the opaque hashable identifier minted by a Context so a
// converter producing multiple blocks per object can correlate reads with
// writes (spec.md §3 "BlockKey"). The zero value is not a valid key; obtain
// one from Context.GenerateBlockKey.
type BlockKey struct {
	id    uint64
	owner any
}

// Valid reports whether k was produced by GenerateBlockKey.
func (k BlockKey) Valid() bool {
	return k.id != 0
}

// BindOwner attaches the reconstructed native object to a key generated
// during read, so that a later write of the same object reuses the same
// block (spec.md §4.3 "Block allocation for converters").
func (k BlockKey) BindOwner(obj any) BlockKey {
	k.owner = obj
	return k
}

// BlockReader is the read-mode subset of block.Store that Context needs.
// block.Store implements this; it is declared here to avoid an import
// cycle (block imports serialctx for BlockKey).
type BlockReader interface {
	GetBlockDataCallback(index int, key BlockKey) (func() ([]byte, error), error)
}

// BlockWriter is the write-mode subset of block.Store that Context needs.
type BlockWriter interface {
	FindAvailableBlockIndex(dataCallback func() ([]byte, error), key BlockKey) (int, error)
}

// ErrConverterBlockKeyRequired indicates a converter accessed more than one
// block for the same object without using distinct keys (spec.md §4.3).
var ErrConverterBlockKeyRequired = errors.New("converter must use distinct block keys for multi-block access")

// ArrayPolicy carries the caller's storage policy for ndarray converters
// (spec.md §4.3 write-path step 1, "Apply the caller's storage policy"),
// threaded in from asdf.Config by the FileFacade at write-context
// construction time. Declared here rather than in package block (which
// defines the storage-class vocabulary) to avoid an import cycle: block
// imports serialctx for BlockKey.
type ArrayPolicy struct {
	// InlineThreshold: arrays with at most this many elements serialize
	// inline. Zero disables inlining.
	InlineThreshold int

	// AllStorage overrides the storage class for every array, taking
	// precedence over InlineThreshold. Empty string means no override.
	// One of "internal", "inline", "streamed", "external".
	AllStorage string

	// AllCompression carries the configured compression label. The
	// built-in ndarray converter does not read it and block payloads are
	// written uncompressed whatever its value.
	AllCompression string
}

// Mode distinguishes a read (deserialization) Context from a write
// (serialization) one. Calling a method that does not match Mode fails
// with ErrInvalidContextUsage.
type Mode int

const (
	// ModeRead is active during Open/resolve.
	ModeRead Mode = iota
	// ModeWrite is active during write_to/update.
	ModeWrite
)

// Context is the per-operation SerializationContext. Create one with
// NewReadContext or NewWriteContext; it is not safe for concurrent use
// (spec.md §5: operations on one FileFacade are sequential).
type Context struct {
	mode    Mode
	version string
	url     string
	reg     *extension.Registry

	reader BlockReader
	writer BlockWriter

	arrayPolicy ArrayPolicy

	mu              sync.Mutex
	nextKeyID       uint64
	usedKeys        map[uint64]bool
	usedExt         map[string]extension.Extension
	anonymousAccess map[any]bool
}

// NewReadContext creates a Context for deserialization.
func NewReadContext(version, url string, reg *extension.Registry, reader BlockReader) *Context {
	return &Context{
		mode:            ModeRead,
		version:         version,
		url:             url,
		reg:             reg,
		reader:          reader,
		usedKeys:        make(map[uint64]bool),
		usedExt:         make(map[string]extension.Extension),
		anonymousAccess: make(map[any]bool),
	}
}

// NewWriteContext creates a Context for serialization.
func NewWriteContext(version, url string, reg *extension.Registry, writer BlockWriter) *Context {
	return &Context{
		mode:            ModeWrite,
		version:         version,
		url:             url,
		reg:             reg,
		writer:          writer,
		usedKeys:        make(map[uint64]bool),
		usedExt:         make(map[string]extension.Extension),
		anonymousAccess: make(map[any]bool),
	}
}

// Version returns the active ASDF Standard version string.
func (c *Context) Version() string { return c.version }

// URL returns the file's URI, or "" for in-memory streams.
func (c *Context) URL() string { return c.url }

// Mode reports whether this Context is in read or write mode.
func (c *Context) Mode() Mode { return c.mode }

// SetArrayPolicy installs the storage policy ndarray converters consult on
// write. Uncalled, the zero ArrayPolicy (no inlining, no storage override)
// applies.
func (c *Context) SetArrayPolicy(p ArrayPolicy) { c.arrayPolicy = p }

// ArrayPolicy returns the policy installed by SetArrayPolicy.
func (c *Context) ArrayPolicy() ArrayPolicy { return c.arrayPolicy }

// ExtensionRegistry returns the read-only registry view backing this
// context (spec.md §4.6 "extension_manager").
func (c *Context) ExtensionRegistry() *extension.Registry { return c.reg }

// MarkExtensionUsed records that ext's converter was exercised during this
// operation, so a tree.ExtensionMetadata entry can be built from it. A nil
// ext is ignored; the method has no error result.
func (c *Context) MarkExtensionUsed(ext extension.Extension) {
	if ext == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.usedExt[ext.ExtensionURI()] = ext
}

// UsedExtensions returns every extension marked used so far, for building
// ExtensionMetadata history entries.
func (c *Context) UsedExtensions() []extension.Extension {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]extension.Extension, 0, len(c.usedExt))
	for _, e := range c.usedExt {
		out = append(out, e)
	}

	return out
}

// GenerateBlockKey mints a new BlockKey unique within this Context's
// lifetime. A key generated during read but never passed to
// GetBlockDataCallback is counted by UnusedKeys; FileFacade's Open fails
// with ErrUnusedBlockKey when that count is not zero.
func (c *Context) GenerateBlockKey() BlockKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextKeyID++
	id := c.nextKeyID
	c.usedKeys[id] = false

	return BlockKey{id: id}
}

func (c *Context) markKeyUsed(k BlockKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.usedKeys[k.id]; ok {
		c.usedKeys[k.id] = true
	}
}

// UnusedKeys returns the number of keys minted by GenerateBlockKey that were never
// passed to GetBlockDataCallback / FindAvailableBlockIndex, per spec.md
// §4.3 "A key that is generated during read but never used fails with
// UnusedBlockKey at assignment time."
func (c *Context) UnusedKeys() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0

	for _, used := range c.usedKeys {
		if !used {
			n++
		}
	}

	return n
}

// checkAnonymousAccess enforces spec.md §4.3: "A converter that accesses
// more than one block must use distinct keys for each; omitting keys on
// multi-block access fails with ConverterBlockKeyRequired." identity
// correlates repeated calls from the same converter invocation (typically
// the native object being read/written); a second key-less access for the
// same identity is the error.
func (c *Context) checkAnonymousAccess(key BlockKey, identity any) error {
	if key.Valid() || identity == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.anonymousAccess[identity] {
		return ErrConverterBlockKeyRequired
	}

	c.anonymousAccess[identity] = true

	return nil
}

// GetBlockDataCallback returns a zero-argument closure yielding the block's
// bytes, for use during deserialization. Calling this in write mode fails
// with ErrInvalidContextUsage. identity identifies the object being
// reconstructed, used only to detect a second key-less access (pass nil to
// skip the check for single-block converters).
func (c *Context) GetBlockDataCallback(index int, key BlockKey, identity any) (func() ([]byte, error), error) {
	if c.mode != ModeRead {
		return nil, fmt.Errorf("%w: GetBlockDataCallback called outside read mode", ErrInvalidContextUsage)
	}

	if err := c.checkAnonymousAccess(key, identity); err != nil {
		return nil, err
	}

	if key.Valid() {
		c.markKeyUsed(key)
	}

	return c.reader.GetBlockDataCallback(index, key)
}

// FindAvailableBlockIndex returns the index of an existing block keyed by
// key, or registers dataCallback to produce a new block's payload at flush
// time. A zero key always registers a new block; identity is used only for
// the multi-access check, not to find an existing block. Calling
// this in read mode fails with ErrInvalidContextUsage. identity identifies
// the object being serialized (pass nil to skip the multi-access check).
func (c *Context) FindAvailableBlockIndex(dataCallback func() ([]byte, error), key BlockKey, identity any) (int, error) {
	if c.mode != ModeWrite {
		return 0, fmt.Errorf("%w: FindAvailableBlockIndex called outside write mode", ErrInvalidContextUsage)
	}

	if err := c.checkAnonymousAccess(key, identity); err != nil {
		return 0, err
	}

	if key.Valid() {
		c.markKeyUsed(key)
	}

	return c.writer.FindAvailableBlockIndex(dataCallback, key)
}
