package session

import (
	"fmt"
	"strings"

	"dexlens/internal/dexfile"
)

func (s *Session) str(i uint32) string {
	if int(i) < len(s.tables.Strings) {
		return s.tables.Strings[i]
	}
	return fmt.Sprintf("string@%d", i)
}

// StringAt returns string i, or a placeholder when out of range.
func (s *Session) StringAt(i uint32) string { return s.str(i) }

// TypeName returns the descriptor of type i. NoIndex yields "".
func (s *Session) TypeName(i uint32) string {
	if i == dexfile.NoIndex {
		return ""
	}
	if int(i) < len(s.tables.Types) {
		return s.str(s.tables.Types[i])
	}
	return fmt.Sprintf("type@%d", i)
}

// ProtoSignature returns "(params)ret" for proto i.
func (s *Session) ProtoSignature(i uint32) string {
	if int(i) >= len(s.tables.Protos) {
		return fmt.Sprintf("proto@%d", i)
	}
	p := s.tables.Protos[i]
	var b strings.Builder
	b.WriteByte('(')
	for _, t := range p[2:] {
		b.WriteString(s.TypeName(t))
	}
	b.WriteByte(')')
	b.WriteString(s.TypeName(p[1]))
	return b.String()
}

// MethodName returns "Lcls;->name(params)ret" for method i.
func (s *Session) MethodName(i uint32) string {
	if int(i) >= len(s.tables.Methods) {
		return fmt.Sprintf("method@%d", i)
	}
	m := s.tables.Methods[i]
	return s.TypeName(m[0]) + "->" + s.str(m[2]) + s.ProtoSignature(m[1])
}

// FieldName returns "Lcls;->name:type" for field i.
func (s *Session) FieldName(i uint32) string {
	if int(i) >= len(s.tables.Fields) {
		return fmt.Sprintf("field@%d", i)
	}
	f := s.tables.Fields[i]
	return s.TypeName(f[0]) + "->" + s.str(f[2]) + ":" + s.TypeName(f[1])
}

// MethodClass returns the declaring type index of method i.
func (s *Session) MethodClass(i uint32) uint32 {
	if int(i) >= len(s.tables.Methods) {
		return dexfile.NoIndex
	}
	return s.tables.Methods[i][0]
}

// MemberName returns the bare name of method i.
func (s *Session) MemberName(i uint32) string {
	if int(i) >= len(s.tables.Methods) {
		return ""
	}
	return s.str(s.tables.Methods[i][2])
}
