// Package encval decodes DEX encoded_value, encoded_array and
// encoded_annotation structures into flat, position-addressed pools.
package encval

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ValueType is the low five bits of an encoded_value header.
type ValueType uint8

const (
	TypeByte         ValueType = 0x00
	TypeShort        ValueType = 0x02
	TypeChar         ValueType = 0x03
	TypeInt          ValueType = 0x04
	TypeLong         ValueType = 0x06
	TypeFloat        ValueType = 0x10
	TypeDouble       ValueType = 0x11
	TypeMethodType   ValueType = 0x15
	TypeMethodHandle ValueType = 0x16
	TypeString       ValueType = 0x17
	TypeType         ValueType = 0x18
	TypeField        ValueType = 0x19
	TypeMethod       ValueType = 0x1a
	TypeEnum         ValueType = 0x1b
	TypeArray        ValueType = 0x1c
	TypeAnnotation   ValueType = 0x1d
	TypeNull         ValueType = 0x1e
	TypeBoolean      ValueType = 0x1f
)

var typeNames = map[ValueType]string{
	TypeByte:         "byte",
	TypeShort:        "short",
	TypeChar:         "char",
	TypeInt:          "int",
	TypeLong:         "long",
	TypeFloat:        "float",
	TypeDouble:       "double",
	TypeMethodType:   "method_type",
	TypeMethodHandle: "method_handle",
	TypeString:       "string",
	TypeType:         "type",
	TypeField:        "field",
	TypeMethod:       "method",
	TypeEnum:         "enum",
	TypeArray:        "array",
	TypeAnnotation:   "annotation",
	TypeNull:         "null",
	TypeBoolean:      "boolean",
}

func (t ValueType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type_0x%02x", uint8(t))
}

// IsIndex reports whether the value payload is a table index.
func (t ValueType) IsIndex() bool {
	switch t {
	case TypeMethodType, TypeMethodHandle, TypeString, TypeType, TypeField, TypeMethod, TypeEnum:
		return true
	}
	return false
}

// width returns the full decoded width of numeric types, 0 otherwise.
func (t ValueType) width() int {
	switch t {
	case TypeByte:
		return 1
	case TypeShort, TypeChar:
		return 2
	case TypeInt, TypeFloat:
		return 4
	case TypeLong, TypeDouble:
		return 8
	}
	return 0
}

// Value is one decoded encoded_value. Data holds the full-width
// little-endian representation:
//
//	null                 empty
//	boolean              one byte, 0 or 1
//	byte..double         1, 2, 2, 4, 8, 4, 8 bytes, sign/zero extended or right padded
//	index types          four bytes, unsigned
//	array, annotation    four bytes, pool position
type Value struct {
	Type ValueType `json:"type" cbor:"1,keyasint"`
	Data []byte    `json:"data,omitempty" cbor:"2,keyasint,omitempty"`
}

// Int returns the signed value of byte/short/int/long and the unsigned
// value of char.
func (v Value) Int() int64 {
	le := binary.LittleEndian
	switch v.Type {
	case TypeByte:
		return int64(int8(v.Data[0]))
	case TypeShort:
		return int64(int16(le.Uint16(v.Data)))
	case TypeChar:
		return int64(le.Uint16(v.Data))
	case TypeInt:
		return int64(int32(le.Uint32(v.Data)))
	case TypeLong:
		return int64(le.Uint64(v.Data))
	}
	return 0
}

// Uint returns the raw little-endian payload as an unsigned integer.
func (v Value) Uint() uint64 {
	var u uint64
	for i, b := range v.Data {
		if i == 8 {
			break
		}
		u |= uint64(b) << (8 * i)
	}
	return u
}

// Index returns the table index or pool position carried by index,
// array and annotation values.
func (v Value) Index() uint32 {
	if len(v.Data) != 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(v.Data)
}

// Float32 returns a float value.
func (v Value) Float32() float32 {
	if v.Type != TypeFloat {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(v.Data))
}

// Float64 returns a double value.
func (v Value) Float64() float64 {
	if v.Type != TypeDouble {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(v.Data))
}

// Bool returns a boolean value.
func (v Value) Bool() bool {
	return v.Type == TypeBoolean && len(v.Data) == 1 && v.Data[0] == 1
}

func (v Value) String() string {
	switch {
	case v.Type == TypeNull:
		return "null"
	case v.Type == TypeBoolean:
		return fmt.Sprint(v.Bool())
	case v.Type == TypeFloat:
		return fmt.Sprint(v.Float32())
	case v.Type == TypeDouble:
		return fmt.Sprint(v.Float64())
	case v.Type.width() > 0:
		return fmt.Sprint(v.Int())
	case v.Type == TypeArray, v.Type == TypeAnnotation:
		return fmt.Sprintf("%s#%d", v.Type, v.Index())
	}
	return fmt.Sprintf("%s@%d", v.Type, v.Index())
}

// Element is one name/value pair of an annotation.
type Element struct {
	Name  uint32 `json:"name" cbor:"1,keyasint"`
	Value Value  `json:"value" cbor:"2,keyasint"`
}

// VisibilityEncoded marks an annotation that was nested inside another
// value rather than listed in an annotation set; it has no visibility byte.
const VisibilityEncoded = 0xff

// AnnotationRecord is a pooled annotation.
type AnnotationRecord struct {
	Visibility uint8     `json:"visibility" cbor:"1,keyasint"`
	Type       uint32    `json:"type" cbor:"2,keyasint"`
	Elements   []Element `json:"elements" cbor:"3,keyasint"`
}

// ArrayRecord is a pooled array.
type ArrayRecord struct {
	Values []Value `json:"values" cbor:"1,keyasint"`
}
