package encval

import (
	"encoding/binary"
	"errors"
	"fmt"

	"dexlens/internal/dexfile"
	"dexlens/internal/dexfmt"
)

var (
	ErrBadValue = errors.New("encval: malformed encoded_value")
	ErrTooDeep  = errors.New("encval: encoded_value nesting too deep")
)

const (
	valueTypeMask = 0x1f
	valueArgShift = 5
)

// Decoder owns the annotation and array pools. Every nested array or
// annotation encountered while decoding is appended to its pool and
// referenced from the enclosing Value by position.
type Decoder struct {
	Annotations Arena[AnnotationRecord]
	Arrays      Arena[ArrayRecord]

	maxDepth int
}

// NewDecoder returns a decoder with empty pools. maxDepth bounds the
// nesting of arrays and annotations; 0 selects the default.
func NewDecoder(maxDepth int) *Decoder {
	if maxDepth <= 0 {
		maxDepth = dexfmt.DefaultMaxDepth
	}
	return &Decoder{maxDepth: maxDepth}
}

// DecodeValue decodes exactly one encoded_value and leaves s positioned
// after it.
func (d *Decoder) DecodeValue(s *dexfmt.Stream) (Value, error) {
	return d.value(s, 0)
}

func (d *Decoder) value(s *dexfmt.Stream, depth int) (Value, error) {
	start := s.Position()
	header, err := s.ReadByte()
	if err != nil {
		return Value{}, err
	}
	typ := ValueType(header & valueTypeMask)
	arg := int(header >> valueArgShift)
	v := Value{Type: typ}

	switch typ {
	case TypeByte, TypeShort, TypeInt, TypeLong:
		v.Data, err = readSigned(s, arg+1, typ.width())
	case TypeChar:
		v.Data, err = readUnsigned(s, arg+1, typ.width())
	case TypeFloat, TypeDouble:
		v.Data, err = readFloat(s, arg+1, typ.width())
	case TypeMethodType, TypeMethodHandle, TypeString, TypeType, TypeField, TypeMethod, TypeEnum:
		v.Data, err = readUnsigned(s, arg+1, 4)
	case TypeArray:
		if arg != 0 {
			return v, fmt.Errorf("%w: array arg %d at 0x%x", ErrBadValue, arg, start)
		}
		var pos uint32
		pos, err = d.array(s, depth+1)
		v.Data = binary.LittleEndian.AppendUint32(nil, pos)
	case TypeAnnotation:
		if arg != 0 {
			return v, fmt.Errorf("%w: annotation arg %d at 0x%x", ErrBadValue, arg, start)
		}
		var pos uint32
		pos, err = d.annotation(s, VisibilityEncoded, depth+1)
		v.Data = binary.LittleEndian.AppendUint32(nil, pos)
	case TypeNull:
		if arg != 0 {
			return v, fmt.Errorf("%w: null arg %d at 0x%x", ErrBadValue, arg, start)
		}
	case TypeBoolean:
		if arg > 1 {
			return v, fmt.Errorf("%w: boolean arg %d at 0x%x", ErrBadValue, arg, start)
		}
		v.Data = []byte{byte(arg)}
	default:
		return v, fmt.Errorf("%w: unknown type 0x%02x at 0x%x", ErrBadValue, uint8(typ), start)
	}
	if err != nil {
		return v, fmt.Errorf("encval: %s at 0x%x: %w", typ, start, err)
	}
	return v, nil
}

// readSigned reads size little-endian bytes and sign-extends them to
// width bytes: the value is shifted up against the top of the word and
// arithmetic-shifted back down.
func readSigned(s *dexfmt.Stream, size, width int) ([]byte, error) {
	raw, err := readLE(s, size, width)
	if err != nil {
		return nil, err
	}
	shift := uint(64 - size*8)
	v := int64(raw<<shift) >> shift
	return putLE(uint64(v), width), nil
}

// readUnsigned reads size little-endian bytes and zero-extends them.
func readUnsigned(s *dexfmt.Stream, size, width int) ([]byte, error) {
	raw, err := readLE(s, size, width)
	if err != nil {
		return nil, err
	}
	return putLE(raw, width), nil
}

// readFloat places size bytes in the most significant end of a width
// byte little-endian float; the encoding drops trailing zero bytes of
// the IEEE-754 pattern.
func readFloat(s *dexfmt.Stream, size, width int) ([]byte, error) {
	if size > width {
		return nil, fmt.Errorf("%w: size %d exceeds width %d", ErrBadValue, size, width)
	}
	raw, err := s.Slice(size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, width)
	copy(out[width-size:], raw)
	return out, nil
}

func readLE(s *dexfmt.Stream, size, width int) (uint64, error) {
	if size > width {
		return 0, fmt.Errorf("%w: size %d exceeds width %d", ErrBadValue, size, width)
	}
	raw, err := s.Slice(size)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i, b := range raw {
		v |= uint64(b) << (8 * i)
	}
	return v, nil
}

func putLE(v uint64, width int) []byte {
	out := make([]byte, width)
	for i := range out {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

// DecodeArray decodes an encoded_array, appends it to the array pool and
// returns its position. On error both pools are left as they were.
func (d *Decoder) DecodeArray(s *dexfmt.Stream) (pos uint32, err error) {
	undo := d.rollback()
	defer func() {
		if err != nil {
			undo()
		}
	}()
	return d.array(s, 0)
}

func (d *Decoder) array(s *dexfmt.Stream, depth int) (uint32, error) {
	if depth > d.maxDepth {
		return 0, ErrTooDeep
	}
	n, err := s.ReadULEB128()
	if err != nil {
		return 0, err
	}
	if int(n) > s.Remaining() {
		return 0, fmt.Errorf("%w: array of %d values with %d bytes left", ErrBadValue, n, s.Remaining())
	}
	rec := ArrayRecord{Values: make([]Value, 0, n)}
	for i := uint32(0); i < n; i++ {
		v, err := d.value(s, depth)
		if err != nil {
			return 0, err
		}
		rec.Values = append(rec.Values, v)
	}
	// Position is taken after the children: nested arrays land first.
	return d.Arrays.Append(rec), nil
}

// DecodeAnnotation decodes an encoded_annotation, stores it in the
// annotation pool with the given visibility and returns its position.
// On error both pools are left as they were.
func (d *Decoder) DecodeAnnotation(s *dexfmt.Stream, visibility uint8) (pos uint32, err error) {
	undo := d.rollback()
	defer func() {
		if err != nil {
			undo()
		}
	}()
	return d.annotation(s, visibility, 0)
}

// rollback returns a func that truncates both pools to their current
// length.
func (d *Decoder) rollback() func() {
	na, nr := d.Annotations.Len(), d.Arrays.Len()
	return func() {
		d.Annotations.Truncate(na)
		d.Arrays.Truncate(nr)
	}
}

func (d *Decoder) annotation(s *dexfmt.Stream, visibility uint8, depth int) (uint32, error) {
	if depth > d.maxDepth {
		return 0, ErrTooDeep
	}
	typ, err := s.ReadULEB128()
	if err != nil {
		return 0, err
	}
	n, err := s.ReadULEB128()
	if err != nil {
		return 0, err
	}
	if uint64(n)*2 > uint64(s.Remaining()) {
		return 0, fmt.Errorf("%w: annotation with %d elements and %d bytes left", ErrBadValue, n, s.Remaining())
	}

	// The slot is reserved before the elements are decoded so nested
	// annotations get later positions; rec stays valid across appends.
	pos, rec := d.Annotations.Reserve()
	rec.Type = typ
	rec.Visibility = VisibilityEncoded
	elems := make([]Element, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := s.ReadULEB128()
		if err != nil {
			return 0, err
		}
		v, err := d.value(s, depth)
		if err != nil {
			return 0, err
		}
		elems = append(elems, Element{Name: name, Value: v})
	}
	rec.Elements = elems
	rec.Visibility = visibility
	return pos, nil
}

// DecodeAnnotationItem decodes the annotation_item at off: a visibility
// byte followed by an encoded_annotation. The visibility is not part of
// the encoded_annotation and is merged in after decoding.
func (d *Decoder) DecodeAnnotationItem(f *dexfile.File, off uint32) (uint32, error) {
	s, err := f.StreamAt(off)
	if err != nil {
		return 0, fmt.Errorf("encval: annotation_item: %w", err)
	}
	vis, err := s.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("encval: annotation_item at 0x%x: %w", off, err)
	}
	pos, err := d.DecodeAnnotation(s, vis)
	if err != nil {
		return 0, fmt.Errorf("encval: annotation_item at 0x%x: %w", off, err)
	}
	return pos, nil
}

// DecodeAnnotationSet decodes every annotation of the
// annotation_set_item at off and appends their positions to dst.
// Offset zero is an empty set.
func (d *Decoder) DecodeAnnotationSet(f *dexfile.File, off uint32, dst []uint32) ([]uint32, error) {
	entries, err := f.AnnotationSet(off)
	if err != nil {
		return dst, err
	}
	for _, e := range entries {
		pos, err := d.DecodeAnnotationItem(f, e)
		if err != nil {
			return dst, err
		}
		dst = append(dst, pos)
	}
	return dst, nil
}

// DecodeStaticValues decodes the encoded_array_item of a class's static
// field initial values. ok is false when the class has none.
func (d *Decoder) DecodeStaticValues(f *dexfile.File, off uint32) (pos uint32, ok bool, err error) {
	if off == 0 {
		return 0, false, nil
	}
	s, err := f.StreamAt(off)
	if err != nil {
		return 0, false, fmt.Errorf("encval: static values: %w", err)
	}
	pos, err = d.DecodeArray(s)
	if err != nil {
		return 0, false, fmt.Errorf("encval: static values at 0x%x: %w", off, err)
	}
	return pos, true, nil
}
