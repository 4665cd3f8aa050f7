// Package dexfile is the low-level DEX container accessor: header, fixed
// size ID tables and bounds-checked access into the data section of a
// memory-resident file. The buffer is borrowed, never copied.
package dexfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"dexlens/internal/dexfmt"
)

var (
	ErrNotDEX        = errors.New("dexfile: not a DEX file")
	ErrCompact       = errors.New("dexfile: compact dex is not supported")
	ErrBadEndian     = errors.New("dexfile: unsupported endian tag")
	ErrTableOverflow = errors.New("dexfile: id table exceeds file")
	ErrBadIndex      = errors.New("dexfile: index out of range")
)

var (
	dexMagic  = []byte("dex\n")
	cdexMagic = []byte("cdex")
)

// File is a parsed view over a DEX buffer.
type File struct {
	data    []byte
	hdr     Header
	compact bool

	stringIDs []uint32 // string_data_off per string
	typeIDs   []uint32 // descriptor string index per type
	protoIDs  []ProtoID
	fieldIDs  []FieldID
	methodIDs []MethodID
	classDefs []ClassDef
}

// Parse reads the header and ID tables of data. A compact DEX header is
// recognized and reported through IsCompact without decoding tables:
// callers decide whether to reject it.
func Parse(data []byte) (*File, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrNotDEX, len(data))
	}
	f := &File{data: data}
	switch {
	case bytes.HasPrefix(data, dexMagic):
	case bytes.HasPrefix(data, cdexMagic):
		f.compact = true
	default:
		return nil, ErrNotDEX
	}
	if err := f.parseHeader(); err != nil {
		return nil, err
	}
	if f.compact {
		return f, nil
	}
	if err := f.parseTables(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) parseHeader() error {
	h := &f.hdr
	copy(h.Magic[:], f.data[:8])
	h.Version = string(bytes.TrimRight(f.data[4:8], "\x00"))

	le := binary.LittleEndian
	h.Checksum = le.Uint32(f.data[8:])
	copy(h.Signature[:], f.data[12:32])
	fields := []*uint32{
		&h.FileSize, &h.HeaderSize, &h.EndianTag, &h.LinkSize, &h.LinkOff, &h.MapOff,
		&h.StringIDsSize, &h.StringIDsOff, &h.TypeIDsSize, &h.TypeIDsOff,
		&h.ProtoIDsSize, &h.ProtoIDsOff, &h.FieldIDsSize, &h.FieldIDsOff,
		&h.MethodIDsSize, &h.MethodIDsOff, &h.ClassDefsSize, &h.ClassDefsOff,
		&h.DataSize, &h.DataOff,
	}
	for i, p := range fields {
		*p = le.Uint32(f.data[32+4*i:])
	}

	if h.EndianTag != EndianConstant {
		return fmt.Errorf("%w: 0x%08x", ErrBadEndian, h.EndianTag)
	}
	return nil
}

// table returns the bytes of an ID table after checking it lies within the file.
func (f *File) table(name string, size, off uint32, itemSize int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	end := uint64(off) + uint64(size)*uint64(itemSize)
	if end > uint64(len(f.data)) {
		return nil, fmt.Errorf("%w: %s (%d items at 0x%x)", ErrTableOverflow, name, size, off)
	}
	return f.data[off:end], nil
}

func (f *File) parseTables() error {
	le := binary.LittleEndian
	h := &f.hdr

	b, err := f.table("string_ids", h.StringIDsSize, h.StringIDsOff, stringIDSize)
	if err != nil {
		return err
	}
	f.stringIDs = make([]uint32, h.StringIDsSize)
	for i := range f.stringIDs {
		f.stringIDs[i] = le.Uint32(b[i*stringIDSize:])
	}

	b, err = f.table("type_ids", h.TypeIDsSize, h.TypeIDsOff, typeIDSize)
	if err != nil {
		return err
	}
	f.typeIDs = make([]uint32, h.TypeIDsSize)
	for i := range f.typeIDs {
		f.typeIDs[i] = le.Uint32(b[i*typeIDSize:])
	}

	b, err = f.table("proto_ids", h.ProtoIDsSize, h.ProtoIDsOff, protoIDSize)
	if err != nil {
		return err
	}
	f.protoIDs = make([]ProtoID, h.ProtoIDsSize)
	for i := range f.protoIDs {
		p := b[i*protoIDSize:]
		f.protoIDs[i] = ProtoID{
			ShortyIdx:     le.Uint32(p),
			ReturnTypeIdx: le.Uint32(p[4:]),
			ParametersOff: le.Uint32(p[8:]),
		}
	}

	b, err = f.table("field_ids", h.FieldIDsSize, h.FieldIDsOff, fieldIDSize)
	if err != nil {
		return err
	}
	f.fieldIDs = make([]FieldID, h.FieldIDsSize)
	for i := range f.fieldIDs {
		p := b[i*fieldIDSize:]
		f.fieldIDs[i] = FieldID{
			ClassIdx: le.Uint16(p),
			TypeIdx:  le.Uint16(p[2:]),
			NameIdx:  le.Uint32(p[4:]),
		}
	}

	b, err = f.table("method_ids", h.MethodIDsSize, h.MethodIDsOff, methodIDSize)
	if err != nil {
		return err
	}
	f.methodIDs = make([]MethodID, h.MethodIDsSize)
	for i := range f.methodIDs {
		p := b[i*methodIDSize:]
		f.methodIDs[i] = MethodID{
			ClassIdx: le.Uint16(p),
			ProtoIdx: le.Uint16(p[2:]),
			NameIdx:  le.Uint32(p[4:]),
		}
	}

	b, err = f.table("class_defs", h.ClassDefsSize, h.ClassDefsOff, classDefSize)
	if err != nil {
		return err
	}
	f.classDefs = make([]ClassDef, h.ClassDefsSize)
	for i := range f.classDefs {
		p := b[i*classDefSize:]
		f.classDefs[i] = ClassDef{
			ClassIdx:        le.Uint32(p),
			AccessFlags:     le.Uint32(p[4:]),
			SuperclassIdx:   le.Uint32(p[8:]),
			InterfacesOff:   le.Uint32(p[12:]),
			SourceFileIdx:   le.Uint32(p[16:]),
			AnnotationsOff:  le.Uint32(p[20:]),
			ClassDataOff:    le.Uint32(p[24:]),
			StaticValuesOff: le.Uint32(p[28:]),
		}
	}
	return nil
}

// Header returns the decoded header.
func (f *File) Header() Header { return f.hdr }

// IsCompact reports whether the buffer holds a compact DEX container.
func (f *File) IsCompact() bool { return f.compact }

// Bytes returns the underlying buffer.
func (f *File) Bytes() []byte { return f.data }

func (f *File) StringIDs() []uint32   { return f.stringIDs }
func (f *File) TypeIDs() []uint32     { return f.typeIDs }
func (f *File) ProtoIDs() []ProtoID   { return f.protoIDs }
func (f *File) FieldIDs() []FieldID   { return f.fieldIDs }
func (f *File) MethodIDs() []MethodID { return f.methodIDs }
func (f *File) ClassDefs() []ClassDef { return f.classDefs }

// DataAt returns n bytes at off, aliasing the buffer.
func (f *File) DataAt(off uint32, n int) ([]byte, error) {
	end := uint64(off) + uint64(n)
	if n < 0 || end > uint64(len(f.data)) {
		return nil, fmt.Errorf("%w: %d bytes at 0x%x (size 0x%x)", dexfmt.ErrOutOfBounds, n, off, len(f.data))
	}
	return f.data[off:end], nil
}

// StreamAt returns a stream positioned at off.
func (f *File) StreamAt(off uint32) (*dexfmt.Stream, error) {
	return dexfmt.NewStreamAt(f.data, int(off))
}

// StringData returns the raw MUTF-8 bytes of string i, without the
// ULEB128 length prefix or the terminating NUL.
func (f *File) StringData(i uint32) ([]byte, error) {
	if int(i) >= len(f.stringIDs) {
		return nil, fmt.Errorf("%w: string %d", ErrBadIndex, i)
	}
	s, err := f.StreamAt(f.stringIDs[i])
	if err != nil {
		return nil, err
	}
	if _, err := s.ReadULEB128(); err != nil {
		return nil, fmt.Errorf("dexfile: string %d length: %w", i, err)
	}
	return s.ReadCString()
}

// String returns string i decoded to a Go string.
func (f *File) String(i uint32) (string, error) {
	b, err := f.StringData(i)
	if err != nil {
		return "", err
	}
	return dexfmt.DecodeMUTF8(b)
}

// TypeDescriptor returns the descriptor string of type i.
func (f *File) TypeDescriptor(i uint32) (string, error) {
	if int(i) >= len(f.typeIDs) {
		return "", fmt.Errorf("%w: type %d", ErrBadIndex, i)
	}
	return f.String(f.typeIDs[i])
}

// TypeList decodes the type_list at off. Offset zero is the empty list.
func (f *File) TypeList(off uint32) ([]uint16, error) {
	if off == 0 {
		return nil, nil
	}
	s, err := f.StreamAt(off)
	if err != nil {
		return nil, err
	}
	n, err := s.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("dexfile: type_list at 0x%x: %w", off, err)
	}
	if uint64(n)*2 > uint64(s.Remaining()) {
		return nil, fmt.Errorf("dexfile: type_list at 0x%x (%d entries): %w", off, n, dexfmt.ErrStreamEOF)
	}
	raw, err := s.Slice(int(n) * 2)
	if err != nil {
		return nil, fmt.Errorf("dexfile: type_list at 0x%x (%d entries): %w", off, n, err)
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return out, nil
}

// AnnotationsDirectory decodes the annotations_directory_item at off.
// Offset zero returns nil, meaning the class carries no annotations.
func (f *File) AnnotationsDirectory(off uint32) (*AnnotationsDirectory, error) {
	if off == 0 {
		return nil, nil
	}
	hdr, err := f.DataAt(off, annoDirHdrSize)
	if err != nil {
		return nil, fmt.Errorf("dexfile: annotations directory: %w", err)
	}
	le := binary.LittleEndian
	d := &AnnotationsDirectory{ClassAnnotationsOff: le.Uint32(hdr)}
	nFields := le.Uint32(hdr[4:])
	nMethods := le.Uint32(hdr[8:])
	nParams := le.Uint32(hdr[12:])

	// Field items follow the header, method items follow the field
	// items, parameter items follow the method items.
	size := (uint64(nFields) + uint64(nMethods) + uint64(nParams)) * annoDirEntrySize
	if size > uint64(len(f.data)) {
		return nil, fmt.Errorf("dexfile: annotations directory at 0x%x (%d/%d/%d entries): %w",
			off, nFields, nMethods, nParams, dexfmt.ErrOutOfBounds)
	}
	body, err := f.DataAt(off+annoDirHdrSize, int(size))
	if err != nil {
		return nil, fmt.Errorf("dexfile: annotations directory at 0x%x (%d/%d/%d entries): %w",
			off, nFields, nMethods, nParams, err)
	}
	read := func(n uint32) []MemberAnnotations {
		if n == 0 {
			return nil
		}
		out := make([]MemberAnnotations, n)
		for i := range out {
			out[i] = MemberAnnotations{Idx: le.Uint32(body), Off: le.Uint32(body[4:])}
			body = body[annoDirEntrySize:]
		}
		return out
	}
	d.Fields = read(nFields)
	d.Methods = read(nMethods)
	d.Parameters = read(nParams)
	return d, nil
}

// offsetList reads a uint size followed by size uint offsets.
func (f *File) offsetList(what string, off uint32) ([]uint32, error) {
	if off == 0 {
		return nil, nil
	}
	s, err := f.StreamAt(off)
	if err != nil {
		return nil, err
	}
	n, err := s.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("dexfile: %s at 0x%x: %w", what, off, err)
	}
	if uint64(n)*4 > uint64(s.Remaining()) {
		return nil, fmt.Errorf("dexfile: %s at 0x%x (%d entries): %w", what, off, n, dexfmt.ErrStreamEOF)
	}
	raw, err := s.Slice(int(n) * 4)
	if err != nil {
		return nil, fmt.Errorf("dexfile: %s at 0x%x: %w", what, off, err)
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return out, nil
}

// AnnotationSet returns the annotation_item offsets of the
// annotation_set_item at off.
func (f *File) AnnotationSet(off uint32) ([]uint32, error) {
	return f.offsetList("annotation_set_item", off)
}

// AnnotationSetRefList returns the annotation_set_item offsets (zero for
// a parameter without annotations) of the annotation_set_ref_list at off.
func (f *File) AnnotationSetRefList(off uint32) ([]uint32, error) {
	return f.offsetList("annotation_set_ref_list", off)
}

// CodeAt decodes the code_item header at off. The instruction array is
// returned as an alias into the buffer.
func (f *File) CodeAt(off uint32) (*Code, error) {
	hdr, err := f.DataAt(off, codeItemHdrSize)
	if err != nil {
		return nil, fmt.Errorf("dexfile: code_item: %w", err)
	}
	le := binary.LittleEndian
	c := &Code{
		Off:           off,
		RegistersSize: le.Uint16(hdr),
		InsSize:       le.Uint16(hdr[2:]),
		OutsSize:      le.Uint16(hdr[4:]),
		TriesSize:     le.Uint16(hdr[6:]),
		DebugInfoOff:  le.Uint32(hdr[8:]),
	}
	n := le.Uint32(hdr[12:])
	if uint64(n)*2 > uint64(len(f.data)) {
		return nil, fmt.Errorf("dexfile: code_item at 0x%x: %d code units: %w", off, n, dexfmt.ErrOutOfBounds)
	}
	c.Insns, err = f.DataAt(off+codeItemHdrSize, int(n)*2)
	if err != nil {
		return nil, fmt.Errorf("dexfile: code_item at 0x%x insns: %w", off, err)
	}
	return c, nil
}
