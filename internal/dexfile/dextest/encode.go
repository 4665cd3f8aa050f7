package dextest

import (
	"encoding/binary"

	"dexlens/internal/dexfile"
)

// ULEB encodes v as unsigned LEB128.
func ULEB(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// Cat concatenates byte slices.
func Cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// TypeList encodes a type_list.
func TypeList(types []uint16) []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(types)))
	for _, t := range types {
		out = binary.LittleEndian.AppendUint16(out, t)
	}
	return out
}

// OffsetList encodes an annotation_set_item or annotation_set_ref_list.
func OffsetList(offs ...uint32) []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(offs)))
	for _, o := range offs {
		out = binary.LittleEndian.AppendUint32(out, o)
	}
	return out
}

// FieldEntry is a class_data field with an absolute field index.
type FieldEntry struct {
	Idx   uint32
	Flags uint32
}

// MethodEntry is a class_data method with an absolute method index.
type MethodEntry struct {
	Idx     uint32
	Flags   uint32
	CodeOff uint32
}

// ClassData encodes a class_data_item, converting absolute indices to
// per-list deltas.
func ClassData(static, instance []FieldEntry, direct, virtual []MethodEntry) []byte {
	out := Cat(ULEB(uint32(len(static))), ULEB(uint32(len(instance))),
		ULEB(uint32(len(direct))), ULEB(uint32(len(virtual))))
	for _, list := range [][]FieldEntry{static, instance} {
		prev := uint32(0)
		for _, f := range list {
			out = append(out, ULEB(f.Idx-prev)...)
			out = append(out, ULEB(f.Flags)...)
			prev = f.Idx
		}
	}
	for _, list := range [][]MethodEntry{direct, virtual} {
		prev := uint32(0)
		for _, m := range list {
			out = append(out, ULEB(m.Idx-prev)...)
			out = append(out, ULEB(m.Flags)...)
			out = append(out, ULEB(m.CodeOff)...)
			prev = m.Idx
		}
	}
	return out
}

// Code encodes a code_item with no tries and no debug info.
func Code(registers, ins, outs uint16, insns ...uint16) []byte {
	le := binary.LittleEndian
	out := le.AppendUint16(nil, registers)
	out = le.AppendUint16(out, ins)
	out = le.AppendUint16(out, outs)
	out = le.AppendUint16(out, 0)
	out = le.AppendUint32(out, 0)
	out = le.AppendUint32(out, uint32(len(insns)))
	for _, u := range insns {
		out = le.AppendUint16(out, u)
	}
	return out
}

// AnnotationsDirectory encodes an annotations_directory_item.
func AnnotationsDirectory(classOff uint32, fields, methods, params []dexfile.MemberAnnotations) []byte {
	le := binary.LittleEndian
	out := le.AppendUint32(nil, classOff)
	out = le.AppendUint32(out, uint32(len(fields)))
	out = le.AppendUint32(out, uint32(len(methods)))
	out = le.AppendUint32(out, uint32(len(params)))
	for _, list := range [][]dexfile.MemberAnnotations{fields, methods, params} {
		for _, m := range list {
			out = le.AppendUint32(out, m.Idx)
			out = le.AppendUint32(out, m.Off)
		}
	}
	return out
}

// Value types used by the encoders below.
const (
	VByte       = 0x00
	VShort      = 0x02
	VChar       = 0x03
	VInt        = 0x04
	VLong       = 0x06
	VFloat      = 0x10
	VDouble     = 0x11
	VMethodType = 0x15
	VMethodHdl  = 0x16
	VString     = 0x17
	VType       = 0x18
	VField      = 0x19
	VMethod     = 0x1a
	VEnum       = 0x1b
	VArray      = 0x1c
	VAnnotation = 0x1d
	VNull       = 0x1e
	VBoolean    = 0x1f
)

// Value encodes an encoded_value header followed by payload; the size
// argument is derived from len(payload).
func Value(typ byte, payload ...byte) []byte {
	arg := byte(0)
	if len(payload) > 0 {
		arg = byte(len(payload) - 1)
	}
	return append([]byte{arg<<5 | typ}, payload...)
}

// Bool encodes a boolean encoded_value.
func Bool(v bool) []byte {
	if v {
		return []byte{1<<5 | VBoolean}
	}
	return []byte{VBoolean}
}

// Null encodes a null encoded_value.
func Null() []byte { return []byte{VNull} }

// Array encodes an encoded_value of type array.
func Array(values ...[]byte) []byte {
	return Cat([]byte{VArray}, EncodedArray(values...))
}

// EncodedArray encodes an encoded_array (no header byte).
func EncodedArray(values ...[]byte) []byte {
	return Cat(ULEB(uint32(len(values))), Cat(values...))
}

// Element is a name/value pair of an encoded_annotation.
type Element struct {
	Name  uint32
	Value []byte
}

// EncodedAnnotation encodes an encoded_annotation (no header byte).
func EncodedAnnotation(typ uint32, elems ...Element) []byte {
	out := Cat(ULEB(typ), ULEB(uint32(len(elems))))
	for _, e := range elems {
		out = append(out, ULEB(e.Name)...)
		out = append(out, e.Value...)
	}
	return out
}

// Annotation encodes an encoded_value of type annotation.
func Annotation(typ uint32, elems ...Element) []byte {
	return Cat([]byte{VAnnotation}, EncodedAnnotation(typ, elems...))
}

// AnnotationItem encodes an annotation_item.
func AnnotationItem(visibility byte, typ uint32, elems ...Element) []byte {
	return Cat([]byte{visibility}, EncodedAnnotation(typ, elems...))
}

// ClassDefFor returns a class_def for type cls with no superclass, no
// source file and no data.
func ClassDefFor(cls uint32) dexfile.ClassDef {
	return dexfile.ClassDef{
		ClassIdx:      cls,
		SuperclassIdx: dexfile.NoIndex,
		SourceFileIdx: dexfile.NoIndex,
	}
}
