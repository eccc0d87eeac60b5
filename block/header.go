package block

import (
	"crypto/md5" //nolint:gosec // MD5 is the ASDF wire-format checksum algorithm, not used for security.
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic bytes from spec.md §6.
var (
	// Magic precedes every block header.
	Magic = [4]byte{0xd3, 'B', 'L', 'K'}
	// IndexMagic precedes the block-index trailer.
	IndexMagic = [4]byte{0xd3, 'I', 'D', 'X'}
)

// FlagStreamed marks a block as the final, open-ended streamed block.
const FlagStreamed uint32 = 0x1

// HeaderSize is the packed size of Header's fixed fields: flags(4) +
// compression(4) + allocated_size(8) + used_size(8) + data_size(8) +
// checksum(16) = 48 bytes.
const HeaderSize = 4 + 4 + 8 + 8 + 8 + 16

// ErrBadMagic indicates the expected block magic bytes were not found.
var ErrBadMagic = errors.New("bad block magic")

// ErrHeaderTooSmall indicates a stored header length is smaller than
// HeaderSize, so required fields would be truncated.
var ErrHeaderTooSmall = errors.New("block header length too small")

// Header is the fixed-size block header of spec.md §6, big-endian encoded.
type Header struct {
	// Flags holds format bits; bit 0 (FlagStreamed) marks the streamed
	// block. Reserved/unknown bits are ignored on read and zeroed on
	// write, per spec.md §6.
	Flags uint32
	// Compression is a 4-byte label ("zlib", "bzp2", ...) or all-zero for
	// no compression.
	Compression [4]byte
	// AllocatedSize is the padded on-disk payload size. Zero for a
	// streamed block on write; the reader computes the true size from
	// EOF.
	AllocatedSize uint64
	// UsedSize is the number of meaningful payload bytes (pre-padding,
	// post-compression).
	UsedSize uint64
	// DataSize is the payload size before compression. Equal to UsedSize
	// when Compression is unset.
	DataSize uint64
	// Checksum is the MD5 digest of the stored (possibly compressed)
	// payload bytes.
	Checksum [16]byte
}

// Streamed reports whether FlagStreamed is set.
func (h Header) Streamed() bool {
	return h.Flags&FlagStreamed != 0
}

// Pack encodes h into a HeaderSize-byte big-endian buffer.
func (h Header) Pack() []byte {
	buf := make([]byte, HeaderSize)

	binary.BigEndian.PutUint32(buf[0:4], h.Flags&FlagStreamed) // reserved bits zeroed on write
	copy(buf[4:8], h.Compression[:])
	binary.BigEndian.PutUint64(buf[8:16], h.AllocatedSize)
	binary.BigEndian.PutUint64(buf[16:24], h.UsedSize)
	binary.BigEndian.PutUint64(buf[24:32], h.DataSize)
	copy(buf[32:48], h.Checksum[:])

	return buf
}

// UnpackHeader decodes a packed header buffer of at least HeaderSize bytes.
// Extra trailing bytes (a header_len larger than HeaderSize) are ignored,
// matching forward-compatible readers that must skip unknown header
// extensions.
func UnpackHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes, need %d", ErrHeaderTooSmall, len(buf), HeaderSize)
	}

	var h Header

	h.Flags = binary.BigEndian.Uint32(buf[0:4]) // unknown bits ignored on read
	copy(h.Compression[:], buf[4:8])
	h.AllocatedSize = binary.BigEndian.Uint64(buf[8:16])
	h.UsedSize = binary.BigEndian.Uint64(buf[16:24])
	h.DataSize = binary.BigEndian.Uint64(buf[24:32])
	copy(h.Checksum[:], buf[32:48])

	return h, nil
}

// Checksum computes the MD5 digest of payload, as stored in Header.Checksum
// on write and compared against it when verification is enabled on read.
func Checksum(payload []byte) [16]byte {
	return md5.Sum(payload) //nolint:gosec // wire-format checksum, not a security boundary.
}

// CompressionLabel packs a compressor name into the fixed 4-byte field,
// zero-padding short names. Names longer than 4 bytes are truncated.
func CompressionLabel(name string) [4]byte {
	var label [4]byte

	copy(label[:], name)

	return label
}

// CompressionLabelString returns the label as a trimmed string, or "" for
// no compression.
func CompressionLabelString(label [4]byte) string {
	n := 0
	for n < len(label) && label[n] != 0 {
		n++
	}

	return string(label[:n])
}
