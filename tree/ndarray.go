package tree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"go.asdf.sh/asdf/extension"
	"go.asdf.sh/asdf/serialctx"
)

// NDArrayTag is the built-in ndarray tag URI (spec.md §4.5).
const NDArrayTag = "tag:stsci.edu:asdf/core/ndarray-1.0.0"

// ErrNDArrayMalformed indicates an ndarray mapping is missing a required
// field or has an unsupported combination (e.g. a structured datatype with
// more than one column, out of scope for this engine's ndarray converter).
var ErrNDArrayMalformed = errors.New("ndarray malformed")

// scalarDatatypes is every primitive dtype name spec.md §4.5 names, along
// with its encoded element width in bytes.
var scalarDatatypes = map[string]int{
	"int8": 1, "uint8": 1, "bool8": 1,
	"int16": 2, "uint16": 2,
	"int32": 4, "uint32": 4, "float32": 4,
	"int64": 8, "uint64": 8, "float64": 8,
	"complex64": 8, "complex128": 16,
}

// NDArray is the native decoded form of a tag:stsci.edu:asdf/core/ndarray
// node: raw element bytes plus the metadata needed to interpret them.
// Source block reuse on write is tracked via key, set once by the
// converter on first read so that re-serializing the same *NDArray value
// writes back into the same block instead of allocating a new one
// (spec.md §4.3 "Block allocation for converters").
//
// Base, when non-nil, makes this array a view: its element bytes are a
// sub-range of Base.Data starting at Offset, and on write it shares Base's
// block instead of allocating its own (spec.md §8 "Block sharing").
type NDArray struct {
	Shape     []int
	Datatype  string // scalar dtype name, or "ascii"/"ucs4" for string dtypes
	ByteOrder string // "little" or "big"
	Offset    int64
	Strides   []int64
	Data      []byte

	// StringWidth is the fixed per-element byte width (ascii) or code
	// point count (ucs4) for string datatypes. Unused otherwise.
	StringWidth int

	// Mask is nil (unmasked), a scalar sentinel (e.g. math.NaN(), or any
	// value equal-comparable to a decoded element), a Constant/
	// MaskedConstant, or a nested *NDArray of boolean-ish values
	// (spec.md §4.5 "Masked arrays").
	Mask any

	// Base, if set, makes this array a view sharing Base's block.
	Base *NDArray

	key serialctx.BlockKey
}

// ArrayShape implements schema.NDArrayNode / this package's ndArrayNode.
func (a *NDArray) ArrayShape() []int { return a.Shape }

// ArrayDatatype implements schema.NDArrayNode / this package's
// ndArrayNode.
func (a *NDArray) ArrayDatatype() string { return a.Datatype }

// ElementCount returns the product of Shape, i.e. the number of scalar
// elements the array holds.
func (a *NDArray) ElementCount() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}

	return n
}

// MaskBools resolves Mask into one boolean per element (true meaning
// masked), or returns nil if the array carries no mask.
func (a *NDArray) MaskBools() ([]bool, error) {
	if a.Mask == nil {
		return nil, nil
	}

	switch mask := a.Mask.(type) {
	case *NDArray:
		data, err := mask.resolvedData()
		if err != nil {
			return nil, err
		}

		elems, err := decodeElementsFlat(data, mask.Datatype, mask.StringWidth, mustByteOrder(mask.ByteOrder))
		if err != nil {
			return nil, err
		}

		out := make([]bool, len(elems))
		for i, e := range elems {
			out[i] = truthy(e)
		}

		return out, nil
	case float64:
		data, err := a.resolvedData()
		if err != nil {
			return nil, err
		}

		elems, err := decodeElementsFlat(data, a.Datatype, a.StringWidth, mustByteOrder(a.ByteOrder))
		if err != nil {
			return nil, err
		}

		out := make([]bool, len(elems))

		if math.IsNaN(mask) {
			for i, e := range elems {
				f, ok := toFloat(e)
				out[i] = ok && math.IsNaN(f)
			}

			return out, nil
		}

		for i, e := range elems {
			f, ok := toFloat(e)
			out[i] = ok && f == mask
		}

		return out, nil
	case Constant:
		return nil, fmt.Errorf("%w: constant mask sentinel %q has no element-wise meaning", ErrNDArrayMalformed, mask.Name)
	default:
		return nil, fmt.Errorf("%w: unsupported mask sentinel %T", ErrNDArrayMalformed, a.Mask)
	}
}

// resolvedData returns a's own element bytes: Data for a standalone array,
// or the Offset-relative slice of Base.Data for a view.
func (a *NDArray) resolvedData() ([]byte, error) {
	if a.Base == nil {
		return a.Data, nil
	}

	width := elementByteSize(a.Datatype, a.StringWidth)
	if width <= 0 {
		return nil, fmt.Errorf("%w: cannot size view of datatype %q", ErrNDArrayMalformed, a.Datatype)
	}

	start := int(a.Offset)
	end := start + a.ElementCount()*width

	if start < 0 || end > len(a.Base.Data) {
		return nil, fmt.Errorf("%w: view offset %d..%d out of range for base of %d bytes", ErrNDArrayMalformed, start, end, len(a.Base.Data))
	}

	return a.Base.Data[start:end], nil
}

// ndarrayConverter is the built-in Converter for NDArrayTag.
type ndarrayConverter struct{}

func (ndarrayConverter) Tags() []string { return []string{NDArrayTag} }

func (ndarrayConverter) Types() []extension.TypeRef {
	return []extension.TypeRef{extension.ResolvedTypeRef(reflect.TypeOf(&NDArray{}))}
}

func (ndarrayConverter) SelectTag(_ any, _ []string, _ extension.SerializationContext) string {
	return NDArrayTag
}

func (ndarrayConverter) ToYAMLTree(obj any, ctx extension.SerializationContext) (any, error) {
	arr, ok := obj.(*NDArray)
	if !ok {
		return nil, fmt.Errorf("%w: ndarray converter given %T", ErrNDArrayMalformed, obj)
	}

	sc, ok := ctx.(*serialctx.Context)
	if !ok {
		return nil, fmt.Errorf("%w: ndarray converter requires a *serialctx.Context", ErrNDArrayMalformed)
	}

	m := NewMapping()

	storage := effectiveStorage(sc.ArrayPolicy(), arr.ElementCount())

	if storage == string(storageInline) {
		data, err := arr.resolvedData()
		if err != nil {
			return nil, err
		}

		order, err := arr.byteOrder()
		if err != nil {
			return nil, err
		}

		elems, err := decodeElementsFlat(data, arr.Datatype, arr.StringWidth, order)
		if err != nil {
			return nil, err
		}

		m.Set("data", nestInline(elems, arr.Shape))
	} else {
		base := arr
		if arr.Base != nil {
			base = arr.Base
		}

		if !base.key.Valid() {
			base.key = sc.GenerateBlockKey()
		}

		index, err := sc.FindAvailableBlockIndex(func() ([]byte, error) { return base.Data, nil }, base.key, base)
		if err != nil {
			return nil, fmt.Errorf("allocating ndarray block: %w", err)
		}

		m.Set("source", index)
	}

	m.Set("shape", intsToAny(arr.Shape))
	m.Set("datatype", encodeDatatype(arr.Datatype, arr.StringWidth))

	byteorder := arr.ByteOrder
	if byteorder == "" {
		byteorder = "little"
	}

	m.Set("byteorder", byteorder)

	if arr.Offset != 0 {
		m.Set("offset", arr.Offset)
	}

	if len(arr.Strides) > 0 {
		m.Set("strides", int64sToAny(arr.Strides))
	}

	if arr.Mask != nil {
		m.Set("mask", arr.Mask)
	}

	return m, nil
}

// storageInline mirrors block.StorageInline's string value. ndarray.go does
// not import package block; the storage-class strings are compared as plain
// strings here.
const storageInline = "inline"

// effectiveStorage applies spec.md §4.3's write-path storage-policy
// precedence: an explicit AllStorage override wins outright; otherwise an
// array at or under InlineThreshold elements serializes inline; otherwise
// it gets its own internal block.
func effectiveStorage(policy serialctx.ArrayPolicy, count int) string {
	if policy.AllStorage != "" {
		return policy.AllStorage
	}

	if policy.InlineThreshold > 0 && count <= policy.InlineThreshold {
		return string(storageInline)
	}

	return "internal"
}

func (ndarrayConverter) FromYAMLTree(_ string, node any, ctx extension.SerializationContext) (any, error) {
	m, ok := node.(*Mapping)
	if !ok {
		return nil, fmt.Errorf("%w: ndarray node is not a mapping", ErrNDArrayMalformed)
	}

	datatype, stringWidth, err := decodeDatatype(m.values["datatype"])
	if err != nil {
		return nil, err
	}

	shape, err := decodeShape(m)
	if err != nil {
		return nil, err
	}

	byteorder, _ := m.values["byteorder"].(string)
	if byteorder == "" {
		byteorder = "little"
	}

	arr := &NDArray{
		Shape:       shape,
		Datatype:    datatype,
		StringWidth: stringWidth,
		ByteOrder:   byteorder,
		Mask:        m.values["mask"],
	}

	if offset, ok := m.values["offset"]; ok {
		n, _ := toInt(offset)
		arr.Offset = int64(n)
	}

	if raw, ok := m.values["strides"]; ok {
		strides, err := decodeStrides(raw)
		if err != nil {
			return nil, err
		}

		arr.Strides = strides
	}

	if inline, ok := m.values["data"]; ok {
		order, err := arr.byteOrder()
		if err != nil {
			return nil, err
		}

		data, err := encodeElementsFlat(flattenInline(inline), datatype, stringWidth, order)
		if err != nil {
			return nil, err
		}

		arr.Data = data

		return arr, nil
	}

	sc, ok := ctx.(*serialctx.Context)
	if !ok {
		return nil, fmt.Errorf("%w: ndarray converter requires a *serialctx.Context", ErrNDArrayMalformed)
	}

	source, ok := m.values["source"]
	if !ok {
		return nil, fmt.Errorf("%w: missing source or data", ErrNDArrayMalformed)
	}

	index, ok := toInt(source)
	if !ok {
		return nil, fmt.Errorf("%w: external/fits ndarray sources are not supported", ErrNDArrayMalformed)
	}

	arr.key = sc.GenerateBlockKey()

	cb, err := sc.GetBlockDataCallback(index, arr.key, arr)
	if err != nil {
		return nil, fmt.Errorf("resolving ndarray block: %w", err)
	}

	block, err := cb()
	if err != nil {
		return nil, fmt.Errorf("reading ndarray block: %w", err)
	}

	// A nonzero Offset makes this node a view into a block another node
	// (or this node's earlier write) owns: slice out just this node's
	// share. Offset 0 covers both the ordinary single-owner case and the
	// streamed wildcard-shape case (Shape containing -1, whose element
	// count can't be computed from Shape alone), so the full block is
	// used as-is there, exactly as before this node gained view support.
	if arr.Offset != 0 {
		width := elementByteSize(datatype, stringWidth)
		if width <= 0 {
			return nil, fmt.Errorf("%w: cannot size datatype %q", ErrNDArrayMalformed, datatype)
		}

		start, end := int(arr.Offset), int(arr.Offset)+arr.ElementCount()*width
		if start < 0 || end > len(block) {
			return nil, fmt.Errorf("%w: view offset %d..%d out of range for block of %d bytes", ErrNDArrayMalformed, start, end, len(block))
		}

		arr.Data = block[start:end]
	} else {
		arr.Data = block
	}

	return arr, nil
}

// decodeDatatype accepts both the plain scalar-dtype-name form and the
// 2-element [name, width] form spec.md §4.5 uses for "ascii"/"ucs4" string
// arrays. Structured (record) datatypes, i.e. lists of more than one
// column, are out of scope for this engine's single-column NDArray.
func decodeDatatype(raw any) (string, int, error) {
	if v, ok := raw.(string); ok {
		if _, known := scalarDatatypes[v]; !known {
			return "", 0, fmt.Errorf("%w: unsupported or structured datatype %q", ErrNDArrayMalformed, v)
		}

		return v, 0, nil
	}

	if seq, ok := asSequence(raw); ok {
		return decodeStringDatatype(seq)
	}

	return "", 0, fmt.Errorf("%w: missing or malformed datatype", ErrNDArrayMalformed)
}

func decodeStringDatatype(parts []any) (string, int, error) {
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("%w: structured datatypes are not supported by this engine", ErrNDArrayMalformed)
	}

	kind, ok := parts[0].(string)
	if !ok || (kind != "ascii" && kind != "ucs4") {
		return "", 0, fmt.Errorf("%w: structured datatypes are not supported by this engine", ErrNDArrayMalformed)
	}

	width, ok := toInt(parts[1])
	if !ok || width <= 0 {
		return "", 0, fmt.Errorf("%w: malformed %s datatype width", ErrNDArrayMalformed, kind)
	}

	return kind, width, nil
}

func encodeDatatype(datatype string, width int) any {
	if datatype == "ascii" || datatype == "ucs4" {
		return []any{datatype, width}
	}

	return datatype
}

// elementByteSize returns datatype's per-element encoded width, resolving
// string widths against stringWidth (per-character for ascii, 4 bytes per
// code point for ucs4).
func elementByteSize(datatype string, stringWidth int) int {
	if w, ok := scalarDatatypes[datatype]; ok {
		return w
	}

	switch datatype {
	case "ascii":
		return stringWidth
	case "ucs4":
		return stringWidth * 4
	default:
		return 0
	}
}

// asSequence accepts either a codec-decoded Sequence or a plain []any
// (e.g. from a hand-built *Mapping in tests), since Sequence is a
// distinct named type that a []any type assertion will not match.
func asSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case Sequence:
		return []any(s), true
	case []any:
		return s, true
	default:
		return nil, false
	}
}

func decodeShape(m *Mapping) ([]int, error) {
	raw, ok := asSequence(m.values["shape"])
	if !ok {
		return nil, fmt.Errorf("%w: missing or malformed shape", ErrNDArrayMalformed)
	}

	shape := make([]int, 0, len(raw))

	for _, v := range raw {
		if v == "*" {
			shape = append(shape, -1) // streamed leading dimension, size derived from block length

			continue
		}

		n, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("%w: non-integer shape entry %v", ErrNDArrayMalformed, v)
		}

		shape = append(shape, n)
	}

	return shape, nil
}

func decodeStrides(raw any) ([]int64, error) {
	seq, ok := asSequence(raw)
	if !ok {
		return nil, fmt.Errorf("%w: malformed strides", ErrNDArrayMalformed)
	}

	out := make([]int64, 0, len(seq))

	for _, v := range seq {
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("%w: non-integer strides entry %v", ErrNDArrayMalformed, v)
		}

		out = append(out, n)
	}

	return out, nil
}

// flattenInline walks an arbitrarily nested data literal (spec.md §4.5
// "source|data") and returns its scalars in row-major order.
func flattenInline(v any) []any {
	var out []any

	var walk func(any)
	walk = func(v any) {
		if seq, ok := asSequence(v); ok {
			for _, e := range seq {
				walk(e)
			}

			return
		}

		out = append(out, v)
	}

	walk(v)

	return out
}

// nestInline is flattenInline's inverse: it groups flat's scalars into
// shape's nested sequence form for emission as an inline "data" literal.
func nestInline(flat []any, shape []int) any {
	if len(shape) <= 1 {
		seq := make(Sequence, len(flat))
		copy(seq, flat)

		return seq
	}

	dim, rest := shape[0], shape[1:]

	stride := 1
	for _, d := range rest {
		stride *= d
	}

	out := make(Sequence, dim)

	for i := 0; i < dim; i++ {
		lo, hi := i*stride, (i+1)*stride
		if hi > len(flat) {
			hi = len(flat)
		}

		out[i] = nestInline(flat[lo:hi], rest)
	}

	return out
}

// decodeElementsFlat decodes data as a flat slice of Go scalars per
// datatype/order, used for both inline array serialization and mask
// resolution. ascii/ucs4 elements decode to strings (spec.md §4.5 "Inline
// string arrays serialize as UTF-8").
func decodeElementsFlat(data []byte, datatype string, stringWidth int, order binary.ByteOrder) ([]any, error) {
	width := elementByteSize(datatype, stringWidth)
	if width <= 0 {
		return nil, fmt.Errorf("%w: inline/mask encoding unsupported for datatype %q", ErrNDArrayMalformed, datatype)
	}

	if len(data)%width != 0 {
		return nil, fmt.Errorf("%w: data length %d is not a multiple of element width %d", ErrNDArrayMalformed, len(data), width)
	}

	count := len(data) / width
	out := make([]any, count)

	switch datatype {
	case "int8":
		for i := 0; i < count; i++ {
			out[i] = int64(int8(data[i]))
		}
	case "uint8":
		for i := 0; i < count; i++ {
			out[i] = uint64(data[i])
		}
	case "bool8":
		for i := 0; i < count; i++ {
			out[i] = data[i] != 0
		}
	case "int16":
		for i := 0; i < count; i++ {
			out[i] = int64(int16(order.Uint16(data[i*2:])))
		}
	case "uint16":
		for i := 0; i < count; i++ {
			out[i] = uint64(order.Uint16(data[i*2:]))
		}
	case "int32":
		for i := 0; i < count; i++ {
			out[i] = int64(int32(order.Uint32(data[i*4:])))
		}
	case "uint32":
		for i := 0; i < count; i++ {
			out[i] = uint64(order.Uint32(data[i*4:]))
		}
	case "int64":
		for i := 0; i < count; i++ {
			out[i] = int64(order.Uint64(data[i*8:]))
		}
	case "uint64":
		for i := 0; i < count; i++ {
			out[i] = order.Uint64(data[i*8:])
		}
	case "float32":
		for i := 0; i < count; i++ {
			out[i] = float64(math.Float32frombits(order.Uint32(data[i*4:])))
		}
	case "float64":
		for i := 0; i < count; i++ {
			out[i] = math.Float64frombits(order.Uint64(data[i*8:]))
		}
	case "complex64":
		for i := 0; i < count; i++ {
			re := math.Float32frombits(order.Uint32(data[i*8:]))
			im := math.Float32frombits(order.Uint32(data[i*8+4:]))
			out[i] = complex64(complex(re, im))
		}
	case "complex128":
		for i := 0; i < count; i++ {
			re := math.Float64frombits(order.Uint64(data[i*16:]))
			im := math.Float64frombits(order.Uint64(data[i*16+8:]))
			out[i] = complex(re, im)
		}
	case "ascii":
		for i := 0; i < count; i++ {
			out[i] = strings.TrimRight(string(data[i*width:(i+1)*width]), "\x00")
		}
	case "ucs4":
		for i := 0; i < count; i++ {
			out[i] = decodeUCS4(data[i*width:(i+1)*width], order)
		}
	default:
		return nil, fmt.Errorf("%w: inline/mask encoding unsupported for datatype %q", ErrNDArrayMalformed, datatype)
	}

	return out, nil
}

// encodeElementsFlat is decodeElementsFlat's inverse, used to materialize
// an inline "data" literal's scalars back into raw element bytes.
func encodeElementsFlat(values []any, datatype string, stringWidth int, order binary.ByteOrder) ([]byte, error) {
	width := elementByteSize(datatype, stringWidth)
	if width <= 0 {
		return nil, fmt.Errorf("%w: inline/mask encoding unsupported for datatype %q", ErrNDArrayMalformed, datatype)
	}

	buf := make([]byte, len(values)*width)

	for i, v := range values {
		off := i * width

		switch datatype {
		case "int8":
			n, _ := toInt64(v)
			buf[off] = byte(int8(n))
		case "uint8":
			n, _ := toInt64(v)
			buf[off] = byte(n)
		case "bool8":
			if truthy(v) {
				buf[off] = 1
			}
		case "int16":
			n, _ := toInt64(v)
			order.PutUint16(buf[off:], uint16(int16(n)))
		case "uint16":
			n, _ := toInt64(v)
			order.PutUint16(buf[off:], uint16(n))
		case "int32":
			n, _ := toInt64(v)
			order.PutUint32(buf[off:], uint32(int32(n)))
		case "uint32":
			n, _ := toInt64(v)
			order.PutUint32(buf[off:], uint32(n))
		case "int64":
			n, _ := toInt64(v)
			order.PutUint64(buf[off:], uint64(n))
		case "uint64":
			n, _ := toInt64(v)
			order.PutUint64(buf[off:], uint64(n))
		case "float32":
			f, _ := toFloat(v)
			order.PutUint32(buf[off:], math.Float32bits(float32(f)))
		case "float64":
			f, _ := toFloat(v)
			order.PutUint64(buf[off:], math.Float64bits(f))
		case "complex64":
			c, _ := toComplex(v)
			order.PutUint32(buf[off:], math.Float32bits(float32(real(c))))
			order.PutUint32(buf[off+4:], math.Float32bits(float32(imag(c))))
		case "complex128":
			c, _ := toComplex(v)
			order.PutUint64(buf[off:], math.Float64bits(real(c)))
			order.PutUint64(buf[off+8:], math.Float64bits(imag(c)))
		case "ascii":
			s, _ := v.(string)
			copy(buf[off:off+width], s)
		case "ucs4":
			s, _ := v.(string)
			encodeUCS4(buf[off:off+width], s, order)
		default:
			return nil, fmt.Errorf("%w: inline/mask encoding unsupported for datatype %q", ErrNDArrayMalformed, datatype)
		}
	}

	return buf, nil
}

func decodeUCS4(data []byte, order binary.ByteOrder) string {
	runes := make([]rune, 0, len(data)/4)

	for i := 0; i+4 <= len(data); i += 4 {
		cp := order.Uint32(data[i:])
		if cp == 0 {
			break
		}

		runes = append(runes, rune(cp))
	}

	return string(runes)
}

func encodeUCS4(dst []byte, s string, order binary.ByteOrder) {
	i := 0

	for _, r := range s {
		if (i+1)*4 > len(dst) {
			break
		}

		order.PutUint32(dst[i*4:], uint32(r))
		i++
	}
}

func intsToAny(vs []int) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}

	return out
}

func int64sToAny(vs []int64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}

	return out
}

// Float64s decodes a's raw bytes as a flat slice of float64, honoring
// ByteOrder. Returns an error if Datatype is not float32/float64.
func (a *NDArray) Float64s() ([]float64, error) {
	order, err := a.byteOrder()
	if err != nil {
		return nil, err
	}

	data, err := a.resolvedData()
	if err != nil {
		return nil, err
	}

	n := a.ElementCount()
	out := make([]float64, n)

	switch a.Datatype {
	case "float64":
		for i := 0; i < n; i++ {
			bits := order.Uint64(data[i*8:])
			out[i] = math.Float64frombits(bits)
		}
	case "float32":
		for i := 0; i < n; i++ {
			bits := order.Uint32(data[i*4:])
			out[i] = float64(math.Float32frombits(bits))
		}
	default:
		return nil, fmt.Errorf("%w: Float64s called on datatype %q", ErrNDArrayMalformed, a.Datatype)
	}

	return out, nil
}

// SetFloat64s encodes vs as Data using Datatype (float32 or float64) and
// ByteOrder, sizing Shape to [len(vs)] if Shape is empty. Not valid on a
// view (Base != nil): set values on the base array instead.
func (a *NDArray) SetFloat64s(vs []float64) error {
	if a.Base != nil {
		return fmt.Errorf("%w: SetFloat64s called on a view; set it on the base array", ErrNDArrayMalformed)
	}

	order, err := a.byteOrder()
	if err != nil {
		return err
	}

	if a.Datatype == "" {
		a.Datatype = "float64"
	}

	if len(a.Shape) == 0 {
		a.Shape = []int{len(vs)}
	}

	switch a.Datatype {
	case "float64":
		buf := make([]byte, len(vs)*8)
		for i, v := range vs {
			order.PutUint64(buf[i*8:], math.Float64bits(v))
		}

		a.Data = buf
	case "float32":
		buf := make([]byte, len(vs)*4)
		for i, v := range vs {
			order.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
		}

		a.Data = buf
	default:
		return fmt.Errorf("%w: SetFloat64s called on datatype %q", ErrNDArrayMalformed, a.Datatype)
	}

	return nil
}

func (a *NDArray) byteOrder() (binary.ByteOrder, error) {
	switch a.ByteOrder {
	case "", "little":
		return binary.LittleEndian, nil
	case "big":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("%w: unknown byteorder %q", ErrNDArrayMalformed, a.ByteOrder)
	}
}

// mustByteOrder is byteOrder without the malformed-byteorder error case,
// for call sites (MaskBools) operating on an already-validated array.
func mustByteOrder(name string) binary.ByteOrder {
	if name == "big" {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toComplex(v any) (complex128, bool) {
	switch n := v.(type) {
	case complex128:
		return n, true
	case complex64:
		return complex128(n), true
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch n := v.(type) {
	case bool:
		return n
	case int64:
		return n != 0
	case uint64:
		return n != 0
	case float64:
		return n != 0
	default:
		return false
	}
}
