// Package block implements the BlockStore of spec.md §4.3: the sequence of
// binary blocks that follow the tagged YAML document, their header codec,
// storage-class assignment, checksum handling, and lazy (optionally
// memory-mapped) payload access.
package block

// StorageClass names the on-disk representation of an array (spec.md §3
// "Storage class"). Every block is exactly one of these.
type StorageClass string

const (
	// StorageInternal is written in the current file.
	StorageInternal StorageClass = "internal"
	// StorageInline is serialized as a literal YAML sequence, no binary
	// block at all.
	StorageInline StorageClass = "inline"
	// StorageStreamed is the final block, open-ended (size determined by
	// EOF).
	StorageStreamed StorageClass = "streamed"
	// StorageExternal is stored in a sibling file referenced by relative
	// URI.
	StorageExternal StorageClass = "external"
)
