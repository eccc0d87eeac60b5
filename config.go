package asdf

import (
	"context"
	"sync"

	"go.asdf.sh/asdf/block"
)

// StorageClass names the on-disk representation of an array, per spec.md
// §3 "Storage class". It is an alias of block.StorageClass so both
// packages share one vocabulary without an import cycle (block has no
// dependency on the root package).
type StorageClass = block.StorageClass

// Storage class constants, re-exported from package block for callers that
// only import the root package.
const (
	StorageInternal = block.StorageInternal
	StorageInline   = block.StorageInline
	StorageStreamed = block.StorageStreamed
	StorageExternal = block.StorageExternal
)

// Config is the process-wide configuration described in spec.md §5.
// DefaultConfig returns the documented default; the zero value differs from
// it (no validation on read, no inline threshold, Memmap false). A Config is
// a plain value: a change is made by building a new value and passing it to
// SetGlobalConfig, WithConfig or WithFacadeConfig.
type Config struct {
	// ValidateOnRead runs the SchemaEngine during Open.
	ValidateOnRead bool

	// DefaultVersion is the ASDF Standard version string used for new files.
	DefaultVersion string

	// ArrayInlineThreshold: arrays with at most this many elements
	// serialize inline rather than as a binary block. Zero disables
	// inlining.
	ArrayInlineThreshold int

	// AllArrayStorage overrides the storage class for every array on
	// write. Empty string means "let each array keep its own class".
	AllArrayStorage StorageClass

	// AllArrayCompression is a 4-byte-or-less compression label (e.g.
	// "zlib", "bzp2"). It is passed to converters in
	// serialctx.ArrayPolicy.AllCompression, but the built-in ndarray
	// converter does not read it: internal blocks are written uncompressed
	// whatever its value.
	AllArrayCompression string

	// IgnoreMissingExtensions is only checked against StrictExtensionCheck
	// by Validate. Open, WriteTo and Update do not read it: the extensions a
	// file declares are not checked, so no ErrMissingExtension is raised.
	IgnoreMissingExtensions bool

	// StrictExtensionCheck is only checked against IgnoreMissingExtensions
	// by Validate. Open, WriteTo and Update do not read it: no
	// ErrUnknownTag or ErrMissingExtension is raised, as a warning or as an
	// error, whether or not it is set.
	StrictExtensionCheck bool

	// IgnoreUnrecognizedTag is not read by Open, WriteTo or Update. A tag
	// with no converter decodes to a *tree.Tagged and raises no
	// ErrUnknownTag diagnostic whether or not it is set.
	IgnoreUnrecognizedTag bool

	// IgnoreVersionMismatch is not read by Open, WriteTo or Update; no
	// version-mismatch warning is raised whether or not it is set.
	IgnoreVersionMismatch bool

	// PadBlocks rounds each internal block's allocated size up to the next
	// multiple of the system page size (os.Getpagesize, the usual
	// filesystem block size) when the whole file is written by WriteTo or
	// by Update's full-rewrite fallback, leaving room for in-place growth
	// on a later update. See DESIGN.md for the rounding rule (spec.md §9
	// open question).
	PadBlocks bool

	// Memmap is not read by Open: block payloads are memory-mapped on first
	// access whenever the backing file supports it, whether or not Memmap
	// is set.
	Memmap bool

	// VerifyChecksums enables MD5 verification of block payloads on read.
	VerifyChecksums bool
}

// DefaultConfig returns the documented default configuration: validation
// enabled, the latest known standard version, a 100-element inline
// threshold, memmap enabled, checksum verification disabled (it is opt-in
// per spec.md §4.3).
func DefaultConfig() Config {
	return Config{
		ValidateOnRead:       true,
		DefaultVersion:       LatestStandardVersion,
		ArrayInlineThreshold: 100,
		Memmap:               true,
	}
}

// Validate reports ErrIncompatibleOptions when StrictExtensionCheck and
// IgnoreMissingExtensions are both set, per spec.md §7.
func (c Config) Validate() error {
	if c.StrictExtensionCheck && c.IgnoreMissingExtensions {
		return ErrIncompatibleOptions
	}

	return nil
}

// LatestStandardVersion is the newest ASDF Standard version this engine
// writes by default.
const LatestStandardVersion = "1.6.0"

// RecognizedStandardVersions lists every ASDF Standard version this engine
// can read.
var RecognizedStandardVersions = []string{"1.0.0", "1.1.0", "1.2.0", "1.3.0", "1.4.0", "1.5.0", "1.6.0"}

type configKey struct{}

var globalConfig = struct {
	mu  sync.RWMutex
	cfg Config
}{cfg: DefaultConfig()}

// SetGlobalConfig replaces the process-wide default configuration. It is
// intended for startup only; prefer WithConfig for scoped overrides.
func SetGlobalConfig(cfg Config) {
	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()
	globalConfig.cfg = cfg
}

// GlobalConfig returns the process-wide default configuration.
func GlobalConfig() Config {
	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	return globalConfig.cfg
}

// ConfigFromContext returns the innermost scoped Config pushed with
// WithConfig, or the process-wide default if ctx carries no override.
func ConfigFromContext(ctx context.Context) Config {
	if cfg, ok := ctx.Value(configKey{}).(Config); ok {
		return cfg
	}

	return GlobalConfig()
}

// WithConfig pushes cfg as the active configuration for the duration of fn
// and pops it on return, including when fn panics. This is the Go analogue
// of spec.md §5's thread-local override stack: Go has no thread affinity,
// so the scope is carried explicitly through ctx instead of implicitly
// through a per-thread global.
func WithConfig(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	scoped := context.WithValue(ctx, configKey{}, cfg)

	return fn(scoped)
}
