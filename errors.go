package asdf

import "errors"

// Sentinel error kinds. Every diagnostic surfaced by the engine wraps
// exactly one of these via fmt.Errorf("%w: %w", Kind, cause), so callers
// can test with errors.Is regardless of the wrapped detail.
var (
	// ErrIO is an underlying file/stream failure. Always fatal for the
	// current operation.
	ErrIO = errors.New("io error")

	// ErrHeaderMalformed indicates a missing magic, unknown version syntax,
	// or truncated file header.
	ErrHeaderMalformed = errors.New("header malformed")

	// ErrBlockMalformed indicates a bad block magic, a header length too
	// small to hold the fixed fields, or a size overflow.
	ErrBlockMalformed = errors.New("block malformed")

	// ErrChecksumMismatch is returned only when checksum verification was
	// requested and the stored checksum does not match the computed one.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrSchemaViolation indicates the tree failed validation against the
	// schema implied by a tag.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrUnknownTag indicates a tag with no definition and no converter.
	// FileFacade does not raise it: a tag with no converter decodes to a
	// *tree.Tagged without a diagnostic.
	ErrUnknownTag = errors.New("unknown tag")

	// ErrMissingExtension indicates the file declares an extension URI the
	// current registry does not provide.
	ErrMissingExtension = errors.New("missing extension")

	// ErrConverterBlockKeyRequired indicates a converter accessed more than
	// one block without using distinct keys.
	ErrConverterBlockKeyRequired = errors.New("converter must use distinct block keys for multi-block access")

	// ErrUnusedBlockKey indicates a key was generated during read but never
	// bound to a block access.
	ErrUnusedBlockKey = errors.New("block key generated but never used")

	// ErrMultipleStreamedBlocks indicates more than one streamed block was
	// constructed for a single file.
	ErrMultipleStreamedBlocks = errors.New("at most one streamed block is allowed per file")

	// ErrInvalidContextUsage indicates a read-only SerializationContext
	// method was called during a write (or vice versa).
	ErrInvalidContextUsage = errors.New("invalid context usage")

	// ErrNotAnExtension indicates MarkExtensionUsed was called with a value
	// that does not implement extension.Extension.
	ErrNotAnExtension = errors.New("not an extension")

	// ErrReferenceUnresolved indicates an external $ref target could not be
	// located at resolution time.
	ErrReferenceUnresolved = errors.New("reference unresolved")

	// ErrResourceMissing indicates a ResourceStore lookup found no provider
	// for the requested URI.
	ErrResourceMissing = errors.New("resource missing")

	// ErrIncompatibleOptions indicates two configuration options were set
	// that contradict each other (e.g. StrictExtensionCheck together with
	// IgnoreMissingExtensions).
	ErrIncompatibleOptions = errors.New("incompatible options")
)
