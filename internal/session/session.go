// Package session owns the decoded state of one DEX buffer: top-level
// tables, class structure, annotation and array pools and the method
// body cache.
package session

import (
	"errors"
	"fmt"

	"dexlens/internal/bytecode"
	"dexlens/internal/classdata"
	"dexlens/internal/dexfile"
	"dexlens/internal/dexfmt"
	"dexlens/internal/encval"
	"dexlens/internal/visit"
)

var (
	ErrNoSession = errors.New("session: no session")
	ErrClosed    = errors.New("session: session is closed")
	ErrBadHandle = errors.New("session: unknown handle")
)

// Options controls Open.
type Options struct {
	Annotations bool
	Mode        dexfmt.Mode
	MaxDepth    int // encoded_value nesting cap; 0 = default
	MaxSteps    int // per-method instruction cap; 0 = default
}

func (o Options) fmtOptions() dexfmt.Options {
	return dexfmt.Options{Mode: o.Mode, MaxDepth: o.MaxDepth, MaxSteps: o.MaxSteps}
}

// Tables are the top-level identifier tables in bulk form.
type Tables struct {
	Strings []string `json:"strings"`
	// Types holds the descriptor string index of each type.
	Types []uint32 `json:"types"`
	// Protos holds [shorty, return type, parameter types...] per proto.
	Protos [][]uint32 `json:"protos"`
	// Fields holds [class type, field type, name string] per field.
	Fields [][3]uint32 `json:"fields"`
	// Methods holds [class type, proto, name string] per method.
	Methods [][3]uint32 `json:"methods"`
}

// Session is a parse session over a borrowed buffer. It is not safe for
// concurrent use; independent sessions share nothing.
type Session struct {
	file   *dexfile.File
	opts   Options
	tables Tables
	vals   *encval.Decoder
	cls    *classdata.Result
	bodies *bytecode.Cache
	diags  dexfmt.Diags
	closed bool
}

// Open parses buf. The buffer is borrowed and must not be modified until
// Close. Compact DEX is rejected with dexfile.ErrCompact and no session
// is returned.
func Open(buf []byte, opts Options) (*Session, error) {
	f, err := dexfile.Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	if f.IsCompact() {
		return nil, fmt.Errorf("session: open: %w", dexfile.ErrCompact)
	}
	fo := opts.fmtOptions()
	s := &Session{
		file:   f,
		opts:   opts,
		vals:   encval.NewDecoder(fo.EffectiveMaxDepth()),
		bodies: bytecode.NewCache(fo.EffectiveMaxSteps()),
	}
	if err := s.buildTables(); err != nil {
		return nil, err
	}
	s.cls, err = classdata.Decode(f, s.vals, classdata.Options{Annotations: opts.Annotations, Mode: opts.Mode}, &s.diags)
	if err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	return s, nil
}

func (s *Session) buildTables() error {
	f := s.file
	t := &s.tables

	t.Strings = make([]string, len(f.StringIDs()))
	for i := range t.Strings {
		str, err := f.String(uint32(i))
		if err != nil {
			if s.opts.Mode == dexfmt.ModeStrict {
				return fmt.Errorf("session: open: string %d: %w", i, err)
			}
			s.diags.Addf(uint64(f.StringIDs()[i]), dexfmt.DiagInvalid, "string %d: %v", i, err)
			continue
		}
		t.Strings[i] = str
	}

	t.Types = f.TypeIDs()

	t.Protos = make([][]uint32, len(f.ProtoIDs()))
	for i, p := range f.ProtoIDs() {
		params, err := f.TypeList(p.ParametersOff)
		if err != nil {
			if s.opts.Mode == dexfmt.ModeStrict {
				return fmt.Errorf("session: open: proto %d: %w", i, err)
			}
			s.diags.Addf(uint64(p.ParametersOff), dexfmt.DiagInvalid, "proto %d parameters: %v", i, err)
		}
		row := make([]uint32, 0, 2+len(params))
		row = append(row, p.ShortyIdx, p.ReturnTypeIdx)
		for _, pt := range params {
			row = append(row, uint32(pt))
		}
		t.Protos[i] = row
	}

	t.Fields = make([][3]uint32, len(f.FieldIDs()))
	for i, fid := range f.FieldIDs() {
		t.Fields[i] = [3]uint32{uint32(fid.ClassIdx), uint32(fid.TypeIdx), fid.NameIdx}
	}
	t.Methods = make([][3]uint32, len(f.MethodIDs()))
	for i, mid := range f.MethodIDs() {
		t.Methods[i] = [3]uint32{uint32(mid.ClassIdx), uint32(mid.ProtoIdx), mid.NameIdx}
	}
	return nil
}

// Close releases pools, class data and cached bodies. It is safe to call
// on a nil or already closed session.
func (s *Session) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	s.vals = nil
	s.cls = nil
	s.bodies = nil
	s.tables = Tables{}
	s.file = nil
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s != nil && s.closed }

// Visit drives v over every class. A body scan failure is delivered to
// the member visitor and does not end the traversal.
func (s *Session) Visit(v visit.ClassVisitor) error {
	if s == nil {
		return ErrNoSession
	}
	if s.closed {
		return ErrClosed
	}
	visit.NewWalker(s).Walk(v)
	return nil
}

// File returns the container accessor.
func (s *Session) File() *dexfile.File { return s.file }

// Options returns the options the session was opened with.
func (s *Session) Options() Options { return s.opts }

// Tables returns the top-level tables.
func (s *Session) Tables() *Tables { return &s.tables }

// Classes returns the decoded class structure in class_def order.
func (s *Session) Classes() []classdata.ClassData {
	if s.cls == nil {
		return nil
	}
	return s.cls.Classes
}

// Body returns the scanned body of m, scanning it on first request.
func (s *Session) Body(m classdata.Method) (*bytecode.MethodBody, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	if s.closed {
		return nil, ErrClosed
	}
	before := s.bodies.Scans()
	b, err := s.bodies.Get(m.Idx, m.CodeOff, s.file.CodeAt)
	if err != nil && s.bodies.Scans() > before {
		s.diags.Add(uint64(m.CodeOff), dexfmt.DiagBadCode, err.Error())
	}
	return b, err
}

// BodyScans returns how many method bodies have been scanned.
func (s *Session) BodyScans() int {
	if s.bodies == nil {
		return 0
	}
	return s.bodies.Scans()
}

// Annotations returns the annotation pool in position order.
func (s *Session) Annotations() []encval.AnnotationRecord {
	if s.vals == nil {
		return nil
	}
	return s.vals.Annotations.Slice()
}

// Arrays returns the array pool in position order.
func (s *Session) Arrays() []encval.ArrayRecord {
	if s.vals == nil {
		return nil
	}
	return s.vals.Arrays.Slice()
}

// Annotation returns the pooled annotation at pos, or nil.
func (s *Session) Annotation(pos uint32) *encval.AnnotationRecord {
	if s.vals == nil {
		return nil
	}
	return s.vals.Annotations.At(pos)
}

// Array returns the pooled array at pos, or nil.
func (s *Session) Array(pos uint32) *encval.ArrayRecord {
	if s.vals == nil {
		return nil
	}
	return s.vals.Arrays.At(pos)
}

// FieldAnnotations maps field index to annotation positions.
func (s *Session) FieldAnnotations() map[uint32][]uint32 {
	if s.cls == nil {
		return nil
	}
	return s.cls.FieldAnnotations
}

// MethodAnnotations maps method index to annotation positions.
func (s *Session) MethodAnnotations() map[uint32][]uint32 {
	if s.cls == nil {
		return nil
	}
	return s.cls.MethodAnnotations
}

// ParamAnnotations maps method index to parameter annotation positions
// with dexfile.NoIndex after each parameter.
func (s *Session) ParamAnnotations() map[uint32][]uint32 {
	if s.cls == nil {
		return nil
	}
	return s.cls.ParamAnnotations
}

// Diags returns the diagnostics recorded in best-effort mode.
func (s *Session) Diags() []dexfmt.Diag { return s.diags.Items() }
