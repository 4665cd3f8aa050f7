// Package dextest builds small synthetic DEX files for tests.
//
// The layout is header, data section, then the ID tables. Placing data
// first means every data offset is known the moment it is added, so
// class_data and annotation items can reference each other without a
// fix-up pass.
package dextest

import (
	"encoding/binary"

	"dexlens/internal/dexfile"
)

// Builder accumulates strings, types, members, class definitions and
// raw data items.
type Builder struct {
	Compact bool

	data      []byte
	strings   []uint32
	strIndex  map[string]uint32
	types     []uint32
	typeIndex map[string]uint32
	protos    []dexfile.ProtoID
	fields    []dexfile.FieldID
	methods   []dexfile.MethodID
	classes   []dexfile.ClassDef
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{
		strIndex:  make(map[string]uint32),
		typeIndex: make(map[string]uint32),
	}
}

// Data appends a data item aligned to four bytes and returns its file offset.
func (b *Builder) Data(p []byte) uint32 {
	for len(b.data)%4 != 0 {
		b.data = append(b.data, 0)
	}
	off := uint32(dexfile.HeaderSize + len(b.data))
	b.data = append(b.data, p...)
	return off
}

// String interns s and returns its string index. s must be ASCII.
func (b *Builder) String(s string) uint32 {
	if i, ok := b.strIndex[s]; ok {
		return i
	}
	item := ULEB(uint32(len(s)))
	item = append(item, s...)
	item = append(item, 0)
	off := uint32(dexfile.HeaderSize + len(b.data))
	b.data = append(b.data, item...)
	i := uint32(len(b.strings))
	b.strings = append(b.strings, off)
	b.strIndex[s] = i
	return i
}

// Type interns a descriptor and returns its type index.
func (b *Builder) Type(desc string) uint32 {
	if i, ok := b.typeIndex[desc]; ok {
		return i
	}
	i := uint32(len(b.types))
	b.types = append(b.types, b.String(desc))
	b.typeIndex[desc] = i
	return i
}

func shortyChar(desc string) byte {
	if desc[0] == '[' {
		return 'L'
	}
	return desc[0]
}

// Proto adds a prototype and returns its index.
func (b *Builder) Proto(ret string, params ...string) uint32 {
	shorty := []byte{shortyChar(ret)}
	var list []uint16
	for _, p := range params {
		shorty = append(shorty, shortyChar(p))
		list = append(list, uint16(b.Type(p)))
	}
	p := dexfile.ProtoID{
		ShortyIdx:     b.String(string(shorty)),
		ReturnTypeIdx: b.Type(ret),
	}
	if len(list) > 0 {
		p.ParametersOff = b.Data(TypeList(list))
	}
	b.protos = append(b.protos, p)
	return uint32(len(b.protos) - 1)
}

// Field adds a field_id and returns its index.
func (b *Builder) Field(class, typ, name string) uint32 {
	b.fields = append(b.fields, dexfile.FieldID{
		ClassIdx: uint16(b.Type(class)),
		TypeIdx:  uint16(b.Type(typ)),
		NameIdx:  b.String(name),
	})
	return uint32(len(b.fields) - 1)
}

// Method adds a method_id and returns its index.
func (b *Builder) Method(class, name, ret string, params ...string) uint32 {
	proto := b.Proto(ret, params...)
	b.methods = append(b.methods, dexfile.MethodID{
		ClassIdx: uint16(b.Type(class)),
		ProtoIdx: uint16(proto),
		NameIdx:  b.String(name),
	})
	return uint32(len(b.methods) - 1)
}

// Class adds a class_def and returns its index.
func (b *Builder) Class(c dexfile.ClassDef) uint32 {
	b.classes = append(b.classes, c)
	return uint32(len(b.classes) - 1)
}

// Bytes lays out the file.
func (b *Builder) Bytes() []byte {
	le := binary.LittleEndian
	out := make([]byte, dexfile.HeaderSize, dexfile.HeaderSize+len(b.data)+1024)
	out = append(out, b.data...)
	for len(out)%4 != 0 {
		out = append(out, 0)
	}

	put32 := func(v uint32) { out = le.AppendUint32(out, v) }
	put16 := func(v uint16) { out = le.AppendUint16(out, v) }

	stringOff := uint32(len(out))
	for _, off := range b.strings {
		put32(off)
	}
	typeOff := uint32(len(out))
	for _, s := range b.types {
		put32(s)
	}
	protoOff := uint32(len(out))
	for _, p := range b.protos {
		put32(p.ShortyIdx)
		put32(p.ReturnTypeIdx)
		put32(p.ParametersOff)
	}
	fieldOff := uint32(len(out))
	for _, f := range b.fields {
		put16(f.ClassIdx)
		put16(f.TypeIdx)
		put32(f.NameIdx)
	}
	methodOff := uint32(len(out))
	for _, m := range b.methods {
		put16(m.ClassIdx)
		put16(m.ProtoIdx)
		put32(m.NameIdx)
	}
	classOff := uint32(len(out))
	for _, c := range b.classes {
		put32(c.ClassIdx)
		put32(c.AccessFlags)
		put32(c.SuperclassIdx)
		put32(c.InterfacesOff)
		put32(c.SourceFileIdx)
		put32(c.AnnotationsOff)
		put32(c.ClassDataOff)
		put32(c.StaticValuesOff)
	}

	magic := "dex\n035\x00"
	if b.Compact {
		magic = "cdex001\x00"
	}
	copy(out, magic)
	hdr := []uint32{
		uint32(len(out)), dexfile.HeaderSize, dexfile.EndianConstant, 0, 0, 0,
		uint32(len(b.strings)), offOrZero(len(b.strings), stringOff),
		uint32(len(b.types)), offOrZero(len(b.types), typeOff),
		uint32(len(b.protos)), offOrZero(len(b.protos), protoOff),
		uint32(len(b.fields)), offOrZero(len(b.fields), fieldOff),
		uint32(len(b.methods)), offOrZero(len(b.methods), methodOff),
		uint32(len(b.classes)), offOrZero(len(b.classes), classOff),
		uint32(len(b.data)), dexfile.HeaderSize,
	}
	for i, v := range hdr {
		le.PutUint32(out[32+4*i:], v)
	}
	return out
}

func offOrZero(n int, off uint32) uint32 {
	if n == 0 {
		return 0
	}
	return off
}
