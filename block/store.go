package block

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.asdf.sh/asdf/fileio"
	"go.asdf.sh/asdf/serialctx"
)

// ErrMultipleStreamedBlocks indicates more than one streamed block was
// constructed for a single file (spec.md §4.3).
var ErrMultipleStreamedBlocks = errors.New("at most one streamed block is allowed per file")

// ErrBlockNotFound indicates an index referenced a block that does not
// exist.
var ErrBlockNotFound = errors.New("block not found")

// Store owns the sequence of blocks for one FileFacade, per spec.md §4.3
// "BlockStore". It is used both as a serialctx.BlockReader during
// deserialization and a serialctx.BlockWriter during serialization;
// FileFacade picks the right view for the Context it builds.
type Store struct {
	blocks []*Block
	byKey  map[serialctx.BlockKey]*Block

	streamedIndex int // index into blocks, or -1
	padBlocks     bool
	verify        bool
}

// NewStore creates an empty Store. padBlocks/verify mirror asdf.Config's
// PadBlocks and VerifyChecksums.
func NewStore(padBlocks, verify bool) *Store {
	return &Store{
		byKey:         make(map[serialctx.BlockKey]*Block),
		streamedIndex: -1,
		padBlocks:     padBlocks,
		verify:        verify,
	}
}

// Len returns the number of blocks currently tracked (internal + streamed;
// external blocks read via a sibling file are tracked by the caller, not
// here).
func (s *Store) Len() int { return len(s.blocks) }

// Blocks returns the tracked blocks in write/discovery order.
func (s *Store) Blocks() []*Block { return s.blocks }

// FindAvailableBlockIndex implements serialctx.BlockWriter: it returns the
// index of the block already bound to key, or registers dataCallback as a
// new internal block and returns its index.
func (s *Store) FindAvailableBlockIndex(dataCallback func() ([]byte, error), key serialctx.BlockKey) (int, error) {
	if key.Valid() {
		if existing, ok := s.byKey[key]; ok {
			existing.Rebind(dataCallback)
			return existing.index, nil
		}
	}

	b := &Block{
		Offset:       -1,
		Storage:      StorageInternal,
		index:        len(s.blocks),
		dataCallback: dataCallback,
		Key:          key,
	}

	s.blocks = append(s.blocks, b)

	if key.Valid() {
		s.byKey[key] = b
	}

	return b.index, nil
}

// ReserveStreamedBlock registers the one allowed streamed block and returns
// its index (always the sentinel -1 per spec.md §4.5 "source is ... a
// negative integer (streamed)"). A second call fails with
// ErrMultipleStreamedBlocks.
func (s *Store) ReserveStreamedBlock(dataCallback func() ([]byte, error)) (int, error) {
	if s.streamedIndex != -1 {
		return 0, ErrMultipleStreamedBlocks
	}

	b := &Block{
		Offset:       -1,
		Storage:      StorageStreamed,
		index:        len(s.blocks),
		dataCallback: dataCallback,
	}

	s.blocks = append(s.blocks, b)
	s.streamedIndex = b.index

	return -1, nil
}

// GetBlockDataCallback implements serialctx.BlockReader: it returns a
// closure yielding the bytes of the block at index (-1 selects the
// streamed block), and binds key to that block so a later write of the
// same reconstructed object reuses it.
func (s *Store) GetBlockDataCallback(index int, key serialctx.BlockKey) (func() ([]byte, error), error) {
	b, err := s.At(index)
	if err != nil {
		return nil, err
	}

	if key.Valid() {
		s.byKey[key] = b
		b.Key = key
	}

	return b.Payload, nil
}

// At returns the block at a source index: a non-negative index selects an
// internal block by discovery order; -1 selects the streamed block.
func (s *Store) At(index int) (*Block, error) {
	if index == -1 {
		if s.streamedIndex == -1 {
			return nil, fmt.Errorf("%w: no streamed block", ErrBlockNotFound)
		}

		return s.blocks[s.streamedIndex], nil
	}

	internal := s.InternalBlocks()
	if index < 0 || index >= len(internal) {
		return nil, fmt.Errorf("%w: index %d", ErrBlockNotFound, index)
	}

	return internal[index], nil
}

// InternalBlocks returns blocks with StorageInternal, in discovery order.
// The streamed block (if any) is not included; callers select it via At(-1).
func (s *Store) InternalBlocks() []*Block {
	out := make([]*Block, 0, len(s.blocks))

	for _, b := range s.blocks {
		if b.Storage == StorageInternal {
			out = append(out, b)
		}
	}

	return out
}

// appendExisting registers a block read from disk, preserving discovery
// order. Used by ReadBlocks.
func (s *Store) appendExisting(b *Block) error {
	if b.Storage == StorageStreamed {
		if s.streamedIndex != -1 {
			return ErrMultipleStreamedBlocks
		}

		s.streamedIndex = len(s.blocks)
	}

	b.index = len(s.blocks)
	s.blocks = append(s.blocks, b)

	return nil
}

// ReadBlocks reads every block following the tree, starting at the file's
// current position, until EOF or an index trailer is encountered. It
// returns the Store; when reading stopped at an index trailer, f is left
// positioned at the trailer's first byte.
func ReadBlocks(f fileio.File, padBlocks, verify bool) (*Store, error) {
	s := NewStore(padBlocks, verify)

	for {
		start, err := f.Tell()
		if err != nil {
			return nil, err
		}

		magic := make([]byte, 4)

		n, err := readFull(f, magic)
		if err != nil && n == 0 {
			break
		}

		if n < 4 || bytes.Equal(magic, IndexMagic[:]) {
			// Index trailer (or a short/empty final read): stop here and
			// rewind so the caller can hand the remaining bytes to
			// ReadIndexTrailer.
			if _, err := f.Seek(start, 0); err != nil {
				return nil, err
			}

			break
		}

		if !bytes.Equal(magic, Magic[:]) {
			return nil, fmt.Errorf("%w: at offset %d", ErrBadMagic, start)
		}

		b, err := readOneBlock(f, start, verify)
		if err != nil {
			return nil, err
		}

		if appendErr := s.appendExisting(b); appendErr != nil {
			return nil, appendErr
		}

		if b.Storage == StorageStreamed {
			break
		}
	}

	return s, nil
}

func readOneBlock(f fileio.File, offset int64, verify bool) (*Block, error) {
	lenBuf := make([]byte, 2)
	if _, err := readFull(f, lenBuf); err != nil {
		return nil, fmt.Errorf("%w: reading block header length: %w", ErrBlockMalformed, err)
	}

	headerLen := binary.BigEndian.Uint16(lenBuf)
	if int(headerLen) < HeaderSize {
		return nil, fmt.Errorf("%w: header length %d below minimum %d", ErrHeaderTooSmall, headerLen, HeaderSize)
	}

	headerBuf := make([]byte, headerLen)
	if _, err := readFull(f, headerBuf); err != nil {
		return nil, fmt.Errorf("%w: reading block header: %w", ErrBlockMalformed, err)
	}

	header, err := UnpackHeader(headerBuf)
	if err != nil {
		return nil, err
	}

	dataOffset := offset + 4 + 2 + int64(headerLen)

	storage := StorageInternal
	if header.Streamed() {
		storage = StorageStreamed
	}

	b := &Block{
		Header:       header,
		Offset:       offset,
		Storage:      storage,
		source:       f,
		dataOffset:   dataOffset,
		headerLength: int(headerLen),
	}

	if !header.Streamed() {
		if verify {
			payload, err := b.Payload()
			if err != nil {
				return nil, err
			}

			if Checksum(payload) != header.Checksum {
				return nil, ErrChecksumMismatch
			}
		}

		// Position past the full allocated region (payload + padding) so
		// the next iteration finds the following block's magic bytes,
		// whether or not verify loaded the payload itself.
		if _, err := f.Seek(dataOffset+int64(header.AllocatedSize), 0); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// ErrBlockMalformed and ErrChecksumMismatch mirror the root package's
// sentinel errors so this package can be used standalone (e.g. from tests)
// without importing the root asdf package, which would cycle (asdf imports
// block for StorageClass).
var (
	ErrBlockMalformed   = errors.New("block malformed")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// CalculatePadding returns the number of zero-padding bytes to append after
// used bytes so the block's allocated size satisfies the implementation's
// rounding rule when padBlocks is enabled (spec.md §9 open question:
// "implementers should document their exact rounding"). This
// implementation rounds the allocated size up to the next multiple of
// blockSize (typically the filesystem block size); when padBlocks is
// false, allocated size equals used size (no padding).
func CalculatePadding(usedSize int64, padBlocks bool, blockSize int64) int64 {
	if !padBlocks || blockSize <= 0 {
		return 0
	}

	remainder := usedSize % blockSize
	if remainder == 0 {
		return 0
	}

	return blockSize - remainder
}

// WriteInternalBlocks writes every internal block (and, if present, the
// trailing streamed block) to f starting at the current position, in
// discovery order. It returns the absolute offset of each written block,
// for the index trailer, and updates each Block's Offset/Header in place.
func (s *Store) WriteInternalBlocks(f fileio.File, blockSize int64) ([]int64, error) {
	offsets := make([]int64, 0, len(s.blocks))

	for _, b := range s.blocks {
		if b.Storage != StorageInternal && b.Storage != StorageStreamed {
			continue
		}

		offset, err := f.Tell()
		if err != nil {
			return nil, err
		}

		offsets = append(offsets, offset)
		b.Offset = offset

		payload, err := b.Payload()
		if err != nil {
			return nil, err
		}

		used := int64(len(payload))

		var flags uint32

		var allocated int64

		if b.Storage == StorageStreamed {
			flags = FlagStreamed
			allocated = 0
		} else {
			allocated = used + CalculatePadding(used, s.padBlocks, blockSize)
		}

		header := Header{
			Flags:         flags,
			AllocatedSize: uint64(allocated), //nolint:gosec
			UsedSize:      uint64(used),      //nolint:gosec
			DataSize:      uint64(used),      //nolint:gosec
			Checksum:      Checksum(payload),
		}
		b.Header = header

		if _, err := f.Write(Magic[:]); err != nil {
			return nil, err
		}

		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(HeaderSize)) //nolint:gosec
		if _, err := f.Write(lenBuf); err != nil {
			return nil, err
		}

		if _, err := f.Write(header.Pack()); err != nil {
			return nil, err
		}

		if _, err := f.Write(payload); err != nil {
			return nil, err
		}

		if b.Storage != StorageStreamed {
			pad := allocated - used
			if pad > 0 {
				if _, err := f.Write(make([]byte, pad)); err != nil {
					return nil, err
				}
			}
		}
	}

	return offsets, nil
}

// IndexHeaderComment is the ASCII comment appended to the index magic line,
// per spec.md §6.
const IndexHeaderComment = " #ASDF BLOCK INDEX"

// WriteIndexTrailer writes the block-index trailer: IndexMagic, the ASCII
// comment, then a flow-sequence YAML document of absolute offsets. It is
// the caller's responsibility to skip this when a streamed block is
// present (spec.md §4.3: "unless suppressed or a streamed block is
// present").
func WriteIndexTrailer(f fileio.File, offsets []int64) error {
	if _, err := f.Write(IndexMagic[:]); err != nil {
		return err
	}

	if _, err := f.Write([]byte(IndexHeaderComment + "\n")); err != nil {
		return err
	}

	var sb strings.Builder

	sb.WriteString("%YAML 1.1\n--- [")

	for i, off := range offsets {
		if i > 0 {
			sb.WriteString(", ")
		}

		sb.WriteString(strconv.FormatInt(off, 10))
	}

	sb.WriteString("]\n...\n")

	_, err := f.Write([]byte(sb.String()))

	return err
}

// indexLineRE matches a single flow-sequence offset list on the "--- [...]"
// line of the trailer.
var indexLineRE = regexp.MustCompile(`^---\s*\[(.*)\]\s*$`)

// ReadIndexTrailer parses a trailer previously written by WriteIndexTrailer
// from data, returning the offsets in file order. ok is false if data does not
// begin with the index magic (callers should then fall back to forward
// scanning via ReadBlocks).
func ReadIndexTrailer(data []byte) (offsets []int64, ok bool) {
	if !bytes.HasPrefix(data, IndexMagic[:]) {
		return nil, false
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		m := indexLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		parts := strings.Split(m[1], ",")
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}

			v, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return nil, false
			}

			offsets = append(offsets, v)
		}

		return offsets, true
	}

	return nil, false
}
