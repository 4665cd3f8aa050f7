package dexfile

import "strings"

// JavaName converts a type descriptor to its Java source spelling:
// "Lfoo/Bar;" → "foo.Bar", "[[I" → "int[][]". Descriptors it does not
// understand are returned unchanged.
func JavaName(d string) string {
	dims := 0
	for dims < len(d) && d[dims] == '[' {
		dims++
	}
	if dims == len(d) {
		return d
	}

	var base string
	switch c := d[dims]; c {
	case 'L':
		if !strings.HasSuffix(d, ";") {
			return d
		}
		base = strings.ReplaceAll(d[dims+1:len(d)-1], "/", ".")
	case 'B':
		base = "byte"
	case 'C':
		base = "char"
	case 'D':
		base = "double"
	case 'F':
		base = "float"
	case 'I':
		base = "int"
	case 'J':
		base = "long"
	case 'S':
		base = "short"
	case 'Z':
		base = "boolean"
	case 'V':
		base = "void"
	default:
		return d
	}
	if c := d[dims]; c != 'L' && len(d) != dims+1 {
		return d
	}
	return base + strings.Repeat("[]", dims)
}

// ParamTypes returns the parameter type indices of proto i.
func (f *File) ParamTypes(i uint32) ([]uint16, error) {
	if int(i) >= len(f.protoIDs) {
		return nil, ErrBadIndex
	}
	return f.TypeList(f.protoIDs[i].ParametersOff)
}
