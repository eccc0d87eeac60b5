package fileio

import "context"

// RangeReader is a named-but-not-specified collaborator (spec.md §1 "out of
// scope... collaborators whose interfaces are named but not specified"):
// a remote, byte-range-addressable source, the Go analogue of
// generic_io.py's HTTPConnection backend. A future remote FileIO
// implementation would wrap one of these; the core engine only needs the
// os.File and in-memory backends above.
type RangeReader interface {
	// ReadRange returns the bytes in [offset, offset+length).
	ReadRange(ctx context.Context, offset, length int64) ([]byte, error)
	// Size returns the total addressable length, if known.
	Size(ctx context.Context) (int64, error)
}
