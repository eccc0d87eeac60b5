// Package update implements the UpdateEngine of spec.md §4.4: given an
// existing file opened read/write and a mutated tree, decide whether the
// file can be overwritten in place -- preserving the byte offsets of every
// block whose allocated size did not change -- or whether a full rewrite
// is required, then carry out whichever plan was chosen.
//
// The planning step (Plan) is a pure function over block extents and sizes,
// grounded in the same "compute a layout, then apply it" split block.Store
// uses between WriteInternalBlocks (apply) and CalculatePadding (a pure
// sizing decision); Apply is the thin I/O step that executes a Plan against
// a fileio.File and a block.Store.
package update

import "sort"

// Extent describes a byte range already occupied on disk before this
// update: [Offset, Offset+Size).
type Extent struct {
	Offset int64
	Size   int64
}

func (e Extent) end() int64 { return e.Offset + e.Size }

// Kept describes a block whose allocated size is unchanged from the prior
// file, so its offset can be preserved exactly (its content may still have
// changed and need rewriting at that same offset).
type Kept struct {
	BlockIndex int
	Offset     int64
	Size       int64
	// ContentChanged is true when the block's payload must be rewritten at
	// its preserved offset (a checksum change, not a size change).
	ContentChanged bool
}

func (k Kept) end() int64 { return k.Offset + k.Size }

// Placed describes a block with no preserved offset: either newly added,
// or resized so its old slot can no longer hold it. It needs a slot found
// by Plan.
type Placed struct {
	BlockIndex int
	Size       int64
}

// Plan is the computed layout for an in-place update, or a signal to fall
// back to a full rewrite.
type Plan struct {
	// FullRewrite is true when no in-place layout was possible (the new
	// tree does not fit ahead of the first kept block). The caller should
	// discard the rest of Plan and rewrite the file from scratch.
	FullRewrite bool

	// TreeSize is the size in bytes of the freshly serialized tree,
	// written at offset 0.
	TreeSize int64

	// ClearGap is the number of stale bytes to zero between the end of the
	// tree and the first surviving block, when the new tree is smaller
	// than the old one (fileio.File.Clear scrubs this).
	ClearGap int64

	// Offsets maps a block's index (block.Block.index, i.e. its discovery
	// position) to its final offset in the updated file.
	Offsets map[int]int64

	// Rewrite lists, in ascending block-index order, the blocks whose bytes
	// must actually be written: every Placed block, plus every Kept block
	// with ContentChanged set.
	Rewrite []int

	// IndexOffset is where the block-index trailer starts: immediately
	// after the last block's allocated extent.
	IndexOffset int64

	// FinalSize equals IndexOffset: Plan does not serialize the trailer and
	// does not count its size. Apply truncates the file to the larger of
	// FinalSize and the position just after the trailer it writes.
	FinalSize int64
}

// computePlan is the layout computation behind Plan; it never returns an
// error, only FullRewrite=true when the layout does not fit.
func computePlan(kept []Kept, placed []Placed, treeSize int64) Plan {
	sorted := append([]Kept(nil), kept...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	if len(sorted) > 0 && treeSize > sorted[0].Offset {
		return Plan{FullRewrite: true}
	}

	offsets := make(map[int]int64, len(kept)+len(placed))
	rewrite := make([]int, 0, len(placed))

	var clearGap int64

	if len(sorted) > 0 {
		clearGap = sorted[0].Offset - treeSize
	}

	type gap struct {
		start, end int64 // end == -1 means unbounded (the file tail)
	}

	var gaps []gap

	cursor := treeSize

	for _, k := range sorted {
		if k.Offset > cursor {
			gaps = append(gaps, gap{start: cursor, end: k.Offset})
		}

		offsets[k.BlockIndex] = k.Offset

		if k.ContentChanged {
			rewrite = append(rewrite, k.BlockIndex)
		}

		cursor = k.end()
	}

	gaps = append(gaps, gap{start: cursor, end: -1})

	for _, p := range placed {
		placedAt := int64(-1)

		for gi, g := range gaps {
			avail := g.end - g.start
			if g.end == -1 {
				avail = p.Size // the tail always "fits", growing the file
			}

			if avail >= p.Size {
				placedAt = g.start

				if g.end == -1 {
					gaps[gi].start += p.Size
				} else if g.start+p.Size == g.end {
					gaps = append(gaps[:gi], gaps[gi+1:]...)
				} else {
					gaps[gi].start += p.Size
				}

				break
			}
		}

		offsets[p.BlockIndex] = placedAt
		rewrite = append(rewrite, p.BlockIndex)
	}

	// The tail gap is never removed by the placement loop above (only
	// bounded gaps are), so it is always the last entry and its start is
	// the file's final extent.
	end := gaps[len(gaps)-1].start

	sort.Ints(rewrite)

	return Plan{
		TreeSize:    treeSize,
		ClearGap:    clearGap,
		Offsets:     offsets,
		Rewrite:     rewrite,
		IndexOffset: end,
		FinalSize:   end,
	}
}

// Plan computes an in-place update layout (spec.md §4.4 steps 2-3): tree
// bytes at file start, every kept block's offset preserved, and every
// placed (new or resized) block slotted into the first free gap -- between
// kept blocks, or appended at the tail -- that is large enough, in the
// order given in placed.
func Plan(kept []Kept, placed []Placed, treeSize int64) Plan {
	return computePlan(kept, placed, treeSize)
}
