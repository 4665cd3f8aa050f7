package output

import (
	"fmt"

	"dexlens/internal/bytecode"
	"dexlens/internal/classdata"
	"dexlens/internal/dexfile"
	"dexlens/internal/encval"
	"dexlens/internal/jni"
	"dexlens/internal/session"
	"dexlens/internal/visit"
)

// MemberRecord is a field or method with resolved names.
type MemberRecord struct {
	Idx         uint32     `json:"idx"`
	Name        string     `json:"name"`
	Flags       uint32     `json:"flags"`
	CodeOff     uint32     `json:"code_off,omitempty"`
	Annotations []uint32   `json:"annotations,omitempty"`
	Params      [][]uint32 `json:"param_annotations,omitempty"`
}

// ClassRecord is one line of classes.jsonl.
type ClassRecord struct {
	Index        int            `json:"index"`
	Name         string         `json:"name"`
	Descriptor   string         `json:"descriptor"`
	Super        string         `json:"super,omitempty"`
	SourceFile   string         `json:"source_file,omitempty"`
	Flags        uint32         `json:"flags"`
	Interfaces   []string       `json:"interfaces,omitempty"`
	Fields       []MemberRecord `json:"fields,omitempty"`
	Methods      []MemberRecord `json:"methods,omitempty"`
	Annotations  []uint32       `json:"annotations,omitempty"`
	StaticValues []string       `json:"static_values,omitempty"`
}

// NewClassRecord resolves class i of s.
func NewClassRecord(s *session.Session, i int) ClassRecord {
	cd := &s.Classes()[i]
	rec := ClassRecord{
		Index:       i,
		Descriptor:  s.TypeName(cd.Def.ClassIdx),
		Super:       s.TypeName(cd.Def.SuperclassIdx),
		Flags:       cd.Def.AccessFlags,
		Annotations: cd.Annotations,
	}
	rec.Name = dexfile.JavaName(rec.Descriptor)
	if cd.Def.SourceFileIdx != dexfile.NoIndex {
		rec.SourceFile = s.StringAt(cd.Def.SourceFileIdx)
	}
	for _, t := range cd.Interfaces {
		rec.Interfaces = append(rec.Interfaces, s.TypeName(uint32(t)))
	}
	for _, list := range [][]classdata.Field{cd.StaticFields, cd.InstanceFields} {
		for _, f := range list {
			rec.Fields = append(rec.Fields, MemberRecord{
				Idx:         f.Idx,
				Name:        s.FieldName(f.Idx),
				Flags:       f.Flags,
				Annotations: s.FieldAnnotations()[f.Idx],
			})
		}
	}
	for _, list := range [][]classdata.Method{cd.DirectMethods, cd.VirtualMethods} {
		for _, m := range list {
			mr := MemberRecord{
				Idx:         m.Idx,
				Name:        s.MethodName(m.Idx),
				Flags:       m.Flags,
				CodeOff:     m.CodeOff,
				Annotations: s.MethodAnnotations()[m.Idx],
			}
			if p, ok := s.ParamAnnotations()[m.Idx]; ok {
				mr.Params = classdata.SplitParams(p)
			}
			rec.Methods = append(rec.Methods, mr)
		}
	}
	if cd.HasStaticValues {
		if arr := s.Array(cd.StaticValues); arr != nil {
			for _, v := range arr.Values {
				rec.StaticValues = append(rec.StaticValues, FormatValue(s, v))
			}
		}
	}
	return rec
}

// FormatValue renders v with string, type, field and method indices
// resolved.
func FormatValue(s *session.Session, v encval.Value) string {
	switch v.Type {
	case encval.TypeString:
		return fmt.Sprintf("%q", s.StringAt(v.Index()))
	case encval.TypeType:
		return s.TypeName(v.Index())
	case encval.TypeField, encval.TypeEnum:
		return s.FieldName(v.Index())
	case encval.TypeMethod:
		return s.MethodName(v.Index())
	}
	return v.String()
}

// BodyRecord is one line of bodies.jsonl.
type BodyRecord struct {
	Method      uint32   `json:"method"`
	Name        string   `json:"name"`
	CodeOff     uint32   `json:"code_off"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Strings     []string `json:"strings,omitempty"`
	Reads       []string `json:"reads,omitempty"`
	Writes      []string `json:"writes,omitempty"`
	Invokes     []string `json:"invokes,omitempty"`
	Insns       int      `json:"insns"`
	Error       string   `json:"error,omitempty"`
}

// NewBodyRecord resolves a scanned body. body may be nil when err is set.
func NewBodyRecord(s *session.Session, m classdata.Method, body *bytecode.MethodBody, err error) BodyRecord {
	rec := BodyRecord{Method: m.Idx, Name: s.MethodName(m.Idx), CodeOff: m.CodeOff}
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.Fingerprint = fmt.Sprintf("%016x", body.Fingerprint())
	rec.Insns = len(body.Opcodes)
	for _, i := range body.Strings {
		rec.Strings = append(rec.Strings, s.StringAt(i))
	}
	for _, i := range body.AccessedFields {
		rec.Reads = append(rec.Reads, s.FieldName(i))
	}
	for _, i := range body.AssignedFields {
		rec.Writes = append(rec.Writes, s.FieldName(i))
	}
	for _, i := range body.InvokedMethods {
		rec.Invokes = append(rec.Invokes, s.MethodName(i))
	}
	return rec
}

// BodyWriter is a visitor that writes every method body to a JSONL
// stream. The first write error stops the traversal and is kept in Err.
type BodyWriter struct {
	visit.Members
	S   *session.Session
	Out *JSONL
	Err error
}

func (w *BodyWriter) VisitClass(visit.ClassInfo) (visit.MemberVisitor, visit.Capability) {
	return w, visit.CapMethodBodies
}

func (w *BodyWriter) VisitMethodBody(m visit.MethodInfo, body *bytecode.MethodBody, err error) {
	if w.Err != nil {
		return
	}
	w.Err = w.Out.Write(NewBodyRecord(w.S, m.Method, body, err))
}

func (w *BodyWriter) Stop() bool { return w.Err != nil }

// NativeRecord is one line of natives.jsonl: a native method with its
// binding, or a JNI_OnLoad entry with Method empty.
type NativeRecord struct {
	Method  string   `json:"method,omitempty"`
	Lib     string   `json:"lib,omitempty"`
	Symbol  string   `json:"symbol,omitempty"`
	Addr    uint64   `json:"addr,omitempty"`
	Long    bool     `json:"long,omitempty"`
	Bound   bool     `json:"bound"`
	Calls   []string `json:"calls,omitempty"`
	Preview []string `json:"preview,omitempty"`
}

// NativeRecords flattens a resolution report: bound natives, then
// unbound natives, then JNI_OnLoad entries.
func NativeRecords(rep *jni.Report) []NativeRecord {
	var out []NativeRecord
	for _, b := range rep.Bound {
		rec := entryRecord(b.Entry)
		rec.Method = b.Signature
		rec.Long = b.Long
		out = append(out, rec)
	}
	for _, n := range rep.Unbound {
		out = append(out, NativeRecord{Method: n.Signature})
	}
	for _, e := range rep.OnLoads {
		out = append(out, entryRecord(e))
	}
	return out
}

func entryRecord(e jni.Entry) NativeRecord {
	rec := NativeRecord{Lib: e.Lib, Symbol: e.Symbol, Addr: e.Addr, Bound: true}
	for _, c := range e.Calls {
		if callee := c.Callee(); callee != "" {
			rec.Calls = append(rec.Calls, callee)
		}
	}
	for _, inst := range e.Insts {
		rec.Preview = append(rec.Preview, fmt.Sprintf("0x%x: %s", inst.Addr, inst.Text))
	}
	return rec
}
