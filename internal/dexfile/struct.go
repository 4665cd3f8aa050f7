package dexfile

// Layout constants, see
// https://source.android.com/docs/core/runtime/dex-format
const (
	HeaderSize       = 0x70
	EndianConstant   = 0x12345678
	ReverseEndian    = 0x78563412
	NoIndex          = 0xffffffff
	stringIDSize     = 4
	typeIDSize       = 4
	protoIDSize      = 12
	fieldIDSize      = 8
	methodIDSize     = 8
	classDefSize     = 32
	annoDirHdrSize   = 16
	annoDirEntrySize = 8
	codeItemHdrSize  = 16
)

// Header is the decoded header_item.
type Header struct {
	Magic         [8]byte  `json:"-"`
	Version       string   `json:"version"`
	Checksum      uint32   `json:"checksum"`
	Signature     [20]byte `json:"-"`
	FileSize      uint32   `json:"file_size"`
	HeaderSize    uint32   `json:"header_size"`
	EndianTag     uint32   `json:"endian_tag"`
	LinkSize      uint32   `json:"link_size"`
	LinkOff       uint32   `json:"link_off"`
	MapOff        uint32   `json:"map_off"`
	StringIDsSize uint32   `json:"string_ids_size"`
	StringIDsOff  uint32   `json:"string_ids_off"`
	TypeIDsSize   uint32   `json:"type_ids_size"`
	TypeIDsOff    uint32   `json:"type_ids_off"`
	ProtoIDsSize  uint32   `json:"proto_ids_size"`
	ProtoIDsOff   uint32   `json:"proto_ids_off"`
	FieldIDsSize  uint32   `json:"field_ids_size"`
	FieldIDsOff   uint32   `json:"field_ids_off"`
	MethodIDsSize uint32   `json:"method_ids_size"`
	MethodIDsOff  uint32   `json:"method_ids_off"`
	ClassDefsSize uint32   `json:"class_defs_size"`
	ClassDefsOff  uint32   `json:"class_defs_off"`
	DataSize      uint32   `json:"data_size"`
	DataOff       uint32   `json:"data_off"`
}

// ProtoID is a proto_id_item.
type ProtoID struct {
	ShortyIdx     uint32
	ReturnTypeIdx uint32
	ParametersOff uint32
}

// FieldID is a field_id_item.
type FieldID struct {
	ClassIdx uint16
	TypeIdx  uint16
	NameIdx  uint32
}

// MethodID is a method_id_item.
type MethodID struct {
	ClassIdx uint16
	ProtoIdx uint16
	NameIdx  uint32
}

// ClassDef is a class_def_item.
type ClassDef struct {
	ClassIdx        uint32
	AccessFlags     uint32
	SuperclassIdx   uint32
	InterfacesOff   uint32
	SourceFileIdx   uint32
	AnnotationsOff  uint32
	ClassDataOff    uint32
	StaticValuesOff uint32
}

// AnnotationsDirectory is an annotations_directory_item. The field,
// method and parameter arrays are laid out back to back directly after
// the fixed header.
type AnnotationsDirectory struct {
	ClassAnnotationsOff uint32
	Fields              []MemberAnnotations
	Methods             []MemberAnnotations
	Parameters          []MemberAnnotations
}

// MemberAnnotations pairs a field or method index with an offset: an
// annotation_set_item for fields and methods, an annotation_set_ref_list
// for parameters.
type MemberAnnotations struct {
	Idx uint32
	Off uint32
}

// Code is a code_item. Insns aliases the file buffer: two bytes per
// code unit, little-endian.
type Code struct {
	Off           uint32
	RegistersSize uint16
	InsSize       uint16
	OutsSize      uint16
	TriesSize     uint16
	DebugInfoOff  uint32
	Insns         []byte
}

// InsnsSize returns the number of 16-bit code units.
func (c *Code) InsnsSize() int { return len(c.Insns) / 2 }

// Access flags used for classes, fields and methods.
const (
	AccPublic               = 0x1
	AccPrivate              = 0x2
	AccProtected            = 0x4
	AccStatic               = 0x8
	AccFinal                = 0x10
	AccSynchronized         = 0x20
	AccVolatile             = 0x40
	AccBridge               = 0x40
	AccTransient            = 0x80
	AccVarargs              = 0x80
	AccNative               = 0x100
	AccInterface            = 0x200
	AccAbstract             = 0x400
	AccStrict               = 0x800
	AccSynthetic            = 0x1000
	AccAnnotation           = 0x2000
	AccEnum                 = 0x4000
	AccConstructor          = 0x10000
	AccDeclaredSynchronized = 0x20000
)

// Annotation visibility values.
const (
	VisibilityBuild   = 0x00
	VisibilityRuntime = 0x01
	VisibilitySystem  = 0x02
)
