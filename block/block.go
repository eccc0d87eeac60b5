package block

import (
	"sync"

	"github.com/edsrzf/mmap-go"

	"go.asdf.sh/asdf/fileio"
	"go.asdf.sh/asdf/serialctx"
)

// payloadState is the once-cell enum of spec.md §9 "Lazy sequences":
// NotLoaded(BlockRef), Memmapped(view), Owned(buffer).
type payloadState int

const (
	notLoaded payloadState = iota
	memmappedState
	ownedState
)

// Block is a single binary block, spec.md §3 "Block". Construct one via
// Store methods rather than directly.
type Block struct {
	Header  Header
	Offset  int64 // byte offset of the magic bytes; -1 until assigned
	Storage StorageClass

	// ExternalURI is the sibling-file relative URI, set only when
	// Storage == StorageExternal.
	ExternalURI string

	// Key correlates this block with the converter that produced or
	// reconstructed it, per spec.md §3 "BlockKey".
	Key serialctx.BlockKey

	// index is this block's position among internal blocks, assigned when
	// the block is added to its Store; -1 (streamed) is encoded as source -1 in the tree.
	index int

	mu           sync.Mutex
	state        payloadState
	owned        []byte
	mapped       mmap.MMap
	source       fileio.File
	dataOffset   int64
	headerLength int

	// dataCallback produces this block's payload at flush time, set when
	// the block was registered via FindAvailableBlockIndex rather than
	// read from disk.
	dataCallback func() ([]byte, error)
}

// NewOwnedBlock creates a block whose payload is already in memory, for
// writing.
func NewOwnedBlock(data []byte) *Block {
	return &Block{
		Offset:  -1,
		Storage: StorageInternal,
		state:   ownedState,
		owned:   data,
		index:   -1,
	}
}

// UsedSize returns the number of meaningful (pre-padding) payload bytes.
func (b *Block) UsedSize() int64 {
	return int64(b.Header.UsedSize)
}

// Index returns this block's position among internal blocks, as assigned
// by Store (the index a tree's ndarray "source" field refers to).
func (b *Block) Index() int { return b.index }

// Rebind replaces a previously-read block's payload source with a fresh
// dataCallback and drops any cached bytes, so a converter reusing the same
// BlockKey to serialize changed content does not silently keep the stale
// on-disk (or previously cached) bytes (spec.md §4.3: "the key is later
// bound to the reconstructed object so subsequent writes reuse the same
// block").
func (b *Block) Rebind(dataCallback func() ([]byte, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dataCallback = dataCallback
	b.state = notLoaded
	b.owned = nil
	b.mapped = nil
}

// Payload returns the block's bytes, loading them on first access: via
// memmap if the block was read from a seekable, mappable file with memmap
// enabled, otherwise by reading into a heap buffer. Subsequent calls return
// the cached bytes.
func (b *Block) Payload() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case ownedState:
		return b.owned, nil
	case memmappedState:
		return b.mapped, nil
	case notLoaded:
		return b.load()
	default:
		return b.owned, nil
	}
}

func (b *Block) load() ([]byte, error) {
	if b.dataCallback != nil {
		data, err := b.dataCallback()
		if err != nil {
			return nil, err
		}

		b.owned = data
		b.state = ownedState

		return b.owned, nil
	}

	if b.source == nil {
		return nil, nil
	}

	size := b.Header.UsedSize
	if b.Header.Streamed() {
		total, err := b.source.Len()
		if err != nil {
			return nil, err
		}

		size = uint64(total - b.dataOffset) //nolint:gosec // file sizes fit in int64 in practice
	}

	if b.source.CanMmap() {
		m, err := b.source.Mmap(b.dataOffset, int64(size), false) //nolint:gosec
		if err == nil {
			b.mapped = m
			b.state = memmappedState

			return b.mapped, nil
		}
	}

	if _, err := b.source.Seek(b.dataOffset, 0); err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	if _, err := readFull(b.source, buf); err != nil {
		return nil, err
	}

	b.owned = buf
	b.state = ownedState

	return b.owned, nil
}

// Detach drops any memmap view of this block without discarding the
// decoded bytes, used before an in-place update overwrites the block's
// on-disk bytes (spec.md §5: "a changed block's old memmap is invalidated
// (the engine must detach existing views before overwriting)").
func (b *Block) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == memmappedState && b.mapped != nil {
		owned := append([]byte(nil), b.mapped...)

		if err := b.mapped.Unmap(); err != nil {
			return err
		}

		b.mapped = nil
		b.owned = owned
		b.state = ownedState
	}

	return nil
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n

		if err != nil {
			return total, err
		}

		if n == 0 {
			break
		}
	}

	return total, nil
}
