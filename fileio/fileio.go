// Package fileio implements the FileIO abstraction of spec.md §2/§4.3: a
// random-access-or-stream file with read, write, seek, tell, read_until
// (regex), seek_until (regex), fast_forward, clear, and optional memmap,
// grounded in pyasdf's generic_io.py RandomAccessFile/InputStream pair but
// expressed as a small Go interface plus two concrete backends.
package fileio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/edsrzf/mmap-go"
)

// ErrNotSeekable is returned by Seek/Tell/Mmap on a stream-only File.
var ErrNotSeekable = errors.New("file is not seekable")

// ErrNotMappable is returned by Mmap when the backing storage cannot be
// memory-mapped (not a real file, or memmap disabled).
var ErrNotMappable = errors.New("file cannot be memory-mapped")

// File is the FileIO abstraction threaded through the block and tree
// layers. Every method may be called regardless of whether the underlying
// storage is seekable; non-seekable backends return ErrNotSeekable from the
// position-dependent ones.
type File interface {
	io.Reader
	io.Writer
	io.Closer

	// Seekable reports whether Seek/Tell/Mmap are usable.
	Seekable() bool
	// Seek moves the read/write position, io.Seeker semantics.
	Seek(offset int64, whence int) (int64, error)
	// Tell returns the current position. Equivalent to Seek(0, io.SeekCurrent).
	Tell() (int64, error)
	// ReadUntil reads and returns bytes up to and including the first
	// match of re, or to EOF if re never matches.
	ReadUntil(re *regexp.Regexp) ([]byte, error)
	// SeekUntil advances the position to just after the first match of re
	// without returning the skipped bytes.
	SeekUntil(re *regexp.Regexp) error
	// FastForward advances the position by n bytes without reading them
	// (seekable backends seek; stream backends discard by reading).
	FastForward(n int64) error
	// Clear overwrites n bytes starting at the current position with
	// zero, used to scrub stale block magic between the tree and the
	// first block after a shrinking in-place update.
	Clear(n int64) error
	// CanMmap reports whether Mmap is expected to succeed.
	CanMmap() bool
	// Mmap maps [offset, offset+length) read-only (writable=false) or
	// read-write (writable=true).
	Mmap(offset, length int64, writable bool) (mmap.MMap, error)
	// Truncate resizes the underlying storage, when supported.
	Truncate(size int64) error
	// Len returns the total size of the underlying storage.
	Len() (int64, error)
}

// OSFile is a File backed by a real, seekable *os.File, supporting memmap.
type OSFile struct {
	f       *os.File
	memmaps []mmap.MMap
}

// OpenOSFile opens path with the given os.O_* flags.
func OpenOSFile(path string, flag int, perm os.FileMode) (*OSFile, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return &OSFile{f: f}, nil
}

// NewOSFile wraps an already-open *os.File.
func NewOSFile(f *os.File) *OSFile { return &OSFile{f: f} }

func (o *OSFile) Read(p []byte) (int, error)  { return o.f.Read(p) }
func (o *OSFile) Write(p []byte) (int, error) { return o.f.Write(p) }
func (o *OSFile) Seekable() bool              { return true }

func (o *OSFile) Seek(offset int64, whence int) (int64, error) {
	return o.f.Seek(offset, whence)
}

func (o *OSFile) Tell() (int64, error) {
	return o.f.Seek(0, io.SeekCurrent)
}

func (o *OSFile) ReadUntil(re *regexp.Regexp) ([]byte, error) {
	return readUntil(o, re)
}

func (o *OSFile) SeekUntil(re *regexp.Regexp) error {
	_, err := o.ReadUntil(re)
	return err
}

func (o *OSFile) FastForward(n int64) error {
	_, err := o.f.Seek(n, io.SeekCurrent)
	return err
}

func (o *OSFile) Clear(n int64) error {
	return clearBySeekWrite(o, n)
}

func (o *OSFile) CanMmap() bool { return true }

func (o *OSFile) Mmap(offset, length int64, writable bool) (mmap.MMap, error) {
	flags := mmap.RDONLY
	if writable {
		flags = mmap.RDWR
	}

	m, err := mmap.MapRegion(o.f, int(length), flags, 0, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotMappable, err)
	}

	o.memmaps = append(o.memmaps, m)

	return m, nil
}

func (o *OSFile) Truncate(size int64) error { return o.f.Truncate(size) }

func (o *OSFile) Len() (int64, error) {
	fi, err := o.f.Stat()
	if err != nil {
		return 0, err
	}

	return fi.Size(), nil
}

// Close unmaps every outstanding memmap before closing the underlying file
// descriptor, per spec.md §5: "closing the facade must unmap before closing
// the file handle."
func (o *OSFile) Close() error {
	for _, m := range o.memmaps {
		_ = m.Unmap()
	}

	o.memmaps = nil

	return o.f.Close()
}

// MemoryFile is a File backed by an in-memory, seekable buffer. It never
// supports Mmap. Used for round-trip tests and for any io.Reader-only
// source materialized into memory up front.
type MemoryFile struct {
	buf *bytes.Buffer
	// data backs Read/Seek; buf is only used while appending via Write.
	data []byte
	pos  int64
}

// NewMemoryFile creates an empty, writable MemoryFile.
func NewMemoryFile() *MemoryFile {
	return &MemoryFile{buf: &bytes.Buffer{}}
}

// NewMemoryFileFromBytes creates a MemoryFile pre-populated with data
// (copied), positioned at offset 0.
func NewMemoryFileFromBytes(data []byte) *MemoryFile {
	cp := append([]byte(nil), data...)
	return &MemoryFile{data: cp}
}

func (m *MemoryFile) ensureData() {
	if m.buf != nil && m.buf.Len() > 0 {
		m.data = append(m.data, m.buf.Bytes()...)
		m.buf.Reset()
	}
}

func (m *MemoryFile) Read(p []byte) (int, error) {
	m.ensureData()

	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}

	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)

	return n, nil
}

func (m *MemoryFile) Write(p []byte) (int, error) {
	m.ensureData()

	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}

	copy(m.data[m.pos:end], p)
	m.pos = end

	return len(p), nil
}

func (m *MemoryFile) Seekable() bool { return true }

func (m *MemoryFile) Seek(offset int64, whence int) (int64, error) {
	m.ensureData()

	var target int64

	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = m.pos + offset
	case io.SeekEnd:
		target = int64(len(m.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	if target < 0 {
		return 0, fmt.Errorf("negative seek position %d", target)
	}

	m.pos = target

	return m.pos, nil
}

func (m *MemoryFile) Tell() (int64, error) { return m.pos, nil }

func (m *MemoryFile) ReadUntil(re *regexp.Regexp) ([]byte, error) {
	return readUntil(m, re)
}

func (m *MemoryFile) SeekUntil(re *regexp.Regexp) error {
	_, err := m.ReadUntil(re)
	return err
}

func (m *MemoryFile) FastForward(n int64) error {
	_, err := m.Seek(n, io.SeekCurrent)
	return err
}

func (m *MemoryFile) Clear(n int64) error {
	return clearBySeekWrite(m, n)
}

func (m *MemoryFile) CanMmap() bool { return false }

func (m *MemoryFile) Mmap(int64, int64, bool) (mmap.MMap, error) {
	return nil, ErrNotMappable
}

func (m *MemoryFile) Truncate(size int64) error {
	m.ensureData()

	if size < int64(len(m.data)) {
		m.data = m.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, m.data)
		m.data = grown
	}

	return nil
}

func (m *MemoryFile) Len() (int64, error) {
	m.ensureData()
	return int64(len(m.data)), nil
}

func (m *MemoryFile) Close() error { return nil }

// Bytes returns the full current contents. Only meaningful for MemoryFile.
func (m *MemoryFile) Bytes() []byte {
	m.ensureData()
	return append([]byte(nil), m.data...)
}

// readUntil implements ReadUntil generically against any File by reading
// one byte at a time and testing the accumulated buffer against re. This
// favors simplicity over throughput: header/trailer parsing reads at most a
// few hundred bytes per call.
func readUntil(f File, re *regexp.Regexp) ([]byte, error) {
	var acc []byte

	one := make([]byte, 1)

	for {
		n, err := f.Read(one)
		if n == 1 {
			acc = append(acc, one[0])

			if loc := re.FindIndex(acc); loc != nil {
				return acc, nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return acc, nil
			}

			return acc, err
		}
	}
}

// clearBySeekWrite zero-fills n bytes at the current position, restoring
// the original position afterward, then re-seeking to the start of the
// cleared range (matching generic_io.py's GenericFile.clear, used between
// the tree and the first block after an in-place update shrinks the tree).
func clearBySeekWrite(f File, n int64) error {
	if n <= 0 {
		return nil
	}

	start, err := f.Tell()
	if err != nil {
		return err
	}

	zeros := make([]byte, n)

	if _, err := f.Write(zeros); err != nil {
		return err
	}

	_, err = f.Seek(start, io.SeekStart)

	return err
}
