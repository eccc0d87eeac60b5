// Package compress implements the block payload Compressor plugins named
// by spec.md §6 "all_array_compression", for the labels "zlib" and "bzp2".
// They can be looked up through extension.Registry.Compressor, but no code
// in this module calls that lookup: block payloads are neither compressed
// on write nor decompressed on read.
package compress

import (
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"go.asdf.sh/asdf/extension"
)

// ErrUnsupportedOperation is returned by a Compressor that can only go one
// direction (bzp2: Go has no maintained bzip2 encoder anywhere in the
// ecosystem, stdlib included -- see Bzip2's doc comment).
var ErrUnsupportedOperation = errors.New("compressor does not support this operation")

// Zlib implements extension.Compressor for the "zlib" label using
// klauspost/compress/zlib, a drop-in faster replacement for the standard
// library's compress/zlib with the identical Reader/Writer shape.
type Zlib struct{}

// Label returns "zlib".
func (Zlib) Label() string { return "zlib" }

// Compress deflates data with zlib framing.
func (Zlib) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := zlib.NewWriter(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress inflates data. decompressedSize, when known (spec.md §6's
// block header carries it as data_size), is used only to preallocate the
// output buffer; a mismatch is not an error, since streamed data may have
// been padded.
func (Zlib) Decompress(data []byte, decompressedSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	defer r.Close()

	out := bytes.NewBuffer(make([]byte, 0, decompressedSize))

	if _, err := io.Copy(out, r); err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}

	return out.Bytes(), nil
}

// Bzip2 implements extension.Compressor for the "bzp2" label using the
// standard library's compress/bzip2 -- decode only. No library in this
// pack, the wider Go ecosystem, or the standard library implements a bzip2
// *encoder*; klauspost/compress itself does not carry one either (bzip2's
// block-sorting compressor is significantly harder to implement than the
// LZ77 family the rest of that module covers, and no maintained Go
// implementation exists). Compress therefore fails with
// ErrUnsupportedOperation rather than silently downgrading to an
// unlabeled/uncompressed block or vendoring a hand-written encoder.
type Bzip2 struct{}

// Label returns "bzp2".
func (Bzip2) Label() string { return "bzp2" }

// Compress always fails; see the type's doc comment.
func (Bzip2) Compress([]byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: bzp2 encode", ErrUnsupportedOperation)
}

// Decompress reads a bzip2 stream with the standard library's decoder.
func (Bzip2) Decompress(data []byte, decompressedSize int) ([]byte, error) {
	r := bzip2.NewReader(bytes.NewReader(data))

	out := bytes.NewBuffer(make([]byte, 0, decompressedSize))

	if _, err := io.Copy(out, r); err != nil {
		return nil, fmt.Errorf("bzp2 decompress: %w", err)
	}

	return out.Bytes(), nil
}

// builtinExtension is the extension.Extension bundling only this package's
// Compressors, merged alongside tree.CoreExtension() when a FileFacade
// builds its registry. It contributes no tags or converters of its own.
type builtinExtension struct{}

func (builtinExtension) ExtensionURI() string        { return "asdf://asdf-format.org/core/extensions/compress-1.0.0" }
func (builtinExtension) StandardRequirement() string { return "" }
func (builtinExtension) Tags() []extension.TagDefinition { return nil }
func (builtinExtension) Converters() []extension.Converter { return nil }
func (builtinExtension) Validators() []extension.Validator { return nil }
func (builtinExtension) YAMLTagHandles() map[string]string { return nil }

func (builtinExtension) Compressors() []extension.Compressor {
	return []extension.Compressor{Zlib{}, Bzip2{}}
}

// BuiltinExtension returns the extension.Extension bundling this package's
// Compressors, for callers assembling an extension.Registry.
func BuiltinExtension() extension.Extension {
	return builtinExtension{}
}
