package update

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.asdf.sh/asdf/block"
	"go.asdf.sh/asdf/fileio"
)

// ErrFullRewriteRequired is returned by Apply when Plan could not find an
// in-place layout; the caller should fall back to writing the file from
// scratch instead of retrying Apply.
var ErrFullRewriteRequired = errors.New("update requires a full rewrite")

// Engine is the UpdateEngine of spec.md §4.4: given an already-populated
// block.Store (the same instance the file was read into) and the freshly
// serialized tree, it classifies the blocks, computes a layout, and either
// applies it in place or defers to fullRewrite.
type Engine struct{}

// Update runs the classify/plan/apply pipeline against f. If Plan decides
// no in-place layout is possible, Update calls fullRewrite instead of
// touching f itself -- the caller owns what "from scratch" means for its
// FileFacade (typically block.Store.WriteInternalBlocks plus
// block.WriteIndexTrailer against the same file, truncated first).
// writeTrailer is passed through to Apply unchanged.
func (Engine) Update(
	f fileio.File,
	treeBytes []byte,
	store *block.Store,
	writeTrailer func(offsets []int64) error,
	fullRewrite func() error,
) error {
	kept, placed, err := Classify(store)
	if err != nil {
		return err
	}

	plan := Plan(kept, placed, int64(len(treeBytes)))
	if plan.FullRewrite {
		return fullRewrite()
	}

	return Apply(f, treeBytes, store, plan, writeTrailer)
}

// Classify inspects store -- the same block.Store instance the file was
// originally read into, now re-populated by serializing the mutated tree
// through it -- and partitions its blocks into Kept (preserves its on-disk
// offset) and Placed (needs Plan to find it a slot), by diffing each
// block's freshly produced payload against what is already on disk.
//
// Reusing the same Store across the read and the re-serialize is what lets
// a converter's unchanged BlockKey resolve to the same Block
// (block.Store.FindAvailableBlockIndex rebinds the existing block's data
// source rather than creating a new one), so this function never needs to
// match old and new blocks itself.
func Classify(store *block.Store) (kept []Kept, placed []Placed, err error) {
	// Sizes given to Plan cover a block's whole on-disk extent: magic,
	// header length, header and allocated payload.
	overhead := int64(len(block.Magic) + 2 + block.HeaderSize)

	for _, b := range store.InternalBlocks() {
		payload, payloadErr := b.Payload()
		if payloadErr != nil {
			return nil, nil, payloadErr
		}

		newSize := int64(len(payload))

		if b.Offset < 0 {
			placed = append(placed, Placed{BlockIndex: b.Index(), Size: newSize + overhead})
			continue
		}

		oldAllocated := int64(b.Header.AllocatedSize)
		if newSize > oldAllocated {
			placed = append(placed, Placed{BlockIndex: b.Index(), Size: newSize + overhead})
			continue
		}

		changed := block.Checksum(payload) != b.Header.Checksum

		kept = append(kept, Kept{
			BlockIndex:     b.Index(),
			Offset:         b.Offset,
			Size:           oldAllocated + overhead,
			ContentChanged: changed,
		})
	}

	return kept, placed, nil
}

// Apply executes plan against f: writes treeBytes at offset 0, scrubs any
// shrinking gap before the first surviving block, rewrites every block
// plan.Rewrite names at its planned offset, writes the index trailer
// (unless suppressed by the caller omitting a call to this when a streamed
// block is present), and truncates f to its final size. It returns
// ErrFullRewriteRequired without touching f if plan.FullRewrite is set.
//
// writeTrailer is called with the final offsets of every internal block in
// store's discovery order, so the caller can build the same flow-sequence
// trailer block.WriteIndexTrailer expects; pass nil to skip the trailer
// (streamed-block files never have one, per spec.md §4.3).
func Apply(f fileio.File, treeBytes []byte, store *block.Store, plan Plan, writeTrailer func(offsets []int64) error) error {
	if plan.FullRewrite {
		return ErrFullRewriteRequired
	}

	if _, err := f.Seek(0, 0); err != nil {
		return err
	}

	if _, err := f.Write(treeBytes); err != nil {
		return fmt.Errorf("writing tree: %w", err)
	}

	if plan.ClearGap > 0 {
		if err := f.Clear(plan.ClearGap); err != nil {
			return fmt.Errorf("clearing stale gap: %w", err)
		}
	}

	rewrite := make(map[int]bool, len(plan.Rewrite))
	for _, idx := range plan.Rewrite {
		rewrite[idx] = true
	}

	offsets := make([]int64, 0, store.Len())

	for _, b := range store.InternalBlocks() {
		finalOffset, ok := plan.Offsets[b.Index()]
		if !ok {
			return fmt.Errorf("%w: plan has no offset for block %d", ErrFullRewriteRequired, b.Index())
		}

		if rewrite[b.Index()] {
			if err := b.Detach(); err != nil {
				return err
			}

			if err := writeBlockAt(f, b, finalOffset); err != nil {
				return err
			}
		}

		b.Offset = finalOffset

		offsets = append(offsets, finalOffset)
	}

	if writeTrailer != nil {
		if _, err := f.Seek(plan.IndexOffset, 0); err != nil {
			return err
		}

		if err := writeTrailer(offsets); err != nil {
			return err
		}
	}

	finalLen, err := f.Tell()
	if err != nil {
		return err
	}

	if finalLen < plan.FinalSize {
		finalLen = plan.FinalSize
	}

	return f.Truncate(finalLen)
}

func writeBlockAt(f fileio.File, b *block.Block, offset int64) error {
	if _, err := f.Seek(offset, 0); err != nil {
		return err
	}

	payload, err := b.Payload()
	if err != nil {
		return err
	}

	used := int64(len(payload))
	allocated := int64(b.Header.AllocatedSize)

	if allocated < used {
		allocated = used
	}

	header := block.Header{
		AllocatedSize: uint64(allocated), //nolint:gosec
		UsedSize:      uint64(used),      //nolint:gosec
		DataSize:      uint64(used),      //nolint:gosec
		Checksum:      block.Checksum(payload),
	}

	if _, err := f.Write(block.Magic[:]); err != nil {
		return err
	}

	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(block.HeaderSize))

	if _, err := f.Write(lenBuf); err != nil {
		return err
	}

	if _, err := f.Write(header.Pack()); err != nil {
		return err
	}

	if _, err := f.Write(payload); err != nil {
		return err
	}

	if pad := allocated - used; pad > 0 {
		if _, err := f.Write(make([]byte, pad)); err != nil {
			return err
		}
	}

	b.Header = header

	return nil
}
