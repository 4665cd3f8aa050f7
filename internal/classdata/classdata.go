// Package classdata decodes the per-class structure of a DEX file:
// interfaces, the diff-encoded field and method lists of class_data_item,
// and the annotations directory.
package classdata

import (
	"fmt"

	"dexlens/internal/dexfile"
	"dexlens/internal/dexfmt"
	"dexlens/internal/encval"
)

// Field is one class_data field entry with its absolute field index.
type Field struct {
	Idx   uint32 `json:"idx"`
	Flags uint32 `json:"flags"`
}

// Method is one class_data method entry. CodeOff is 0 for abstract and
// native methods.
type Method struct {
	Idx     uint32 `json:"idx"`
	Flags   uint32 `json:"flags"`
	CodeOff uint32 `json:"code_off,omitempty"`
}

// HasCode reports whether the method has a code_item.
func (m Method) HasCode() bool { return m.CodeOff != 0 }

// ClassData is the decoded structure of one class definition.
type ClassData struct {
	Def            dexfile.ClassDef `json:"def"`
	Interfaces     []uint16         `json:"interfaces"`
	StaticFields   []Field          `json:"static_fields"`
	InstanceFields []Field          `json:"instance_fields"`
	DirectMethods  []Method         `json:"direct_methods"`
	VirtualMethods []Method         `json:"virtual_methods"`

	// Annotations holds annotation pool positions of the class set.
	Annotations []uint32 `json:"annotations,omitempty"`
	// StaticValues is the array pool position of the static initial
	// values, valid when HasStaticValues is set.
	StaticValues    uint32 `json:"static_values,omitempty"`
	HasStaticValues bool   `json:"has_static_values,omitempty"`
}

// Options controls the structural pass.
type Options struct {
	Annotations bool
	Mode        dexfmt.Mode
}

// Result is the output of Decode. The annotation maps are keyed by the
// global field or method index. Params lists carry dexfile.NoIndex after
// each parameter's group, empty groups included.
type Result struct {
	Classes []ClassData

	FieldAnnotations  map[uint32][]uint32
	MethodAnnotations map[uint32][]uint32
	ParamAnnotations  map[uint32][]uint32
}

// Decode decodes every class definition in order. Annotation and static
// value decoding appends to vals' pools.
//
// In strict mode the first structural error is returned. In best-effort
// mode a failing class keeps whatever decoded before the failure, a
// diagnostic is added to diags and decoding continues with the next class.
func Decode(f *dexfile.File, vals *encval.Decoder, opts Options, diags *dexfmt.Diags) (*Result, error) {
	defs := f.ClassDefs()
	r := &Result{
		Classes:           make([]ClassData, len(defs)),
		FieldAnnotations:  make(map[uint32][]uint32),
		MethodAnnotations: make(map[uint32][]uint32),
		ParamAnnotations:  make(map[uint32][]uint32),
	}
	for i := range defs {
		cd := &r.Classes[i]
		cd.Def = defs[i]
		if err := r.decodeClass(f, vals, opts, cd); err != nil {
			err = fmt.Errorf("classdata: class %d (type %d): %w", i, defs[i].ClassIdx, err)
			if opts.Mode == dexfmt.ModeStrict {
				return r, err
			}
			if diags != nil {
				diags.Add(uint64(defs[i].ClassDataOff), dexfmt.DiagInvalid, err.Error())
			}
		}
	}
	return r, nil
}

func (r *Result) decodeClass(f *dexfile.File, vals *encval.Decoder, opts Options, cd *ClassData) error {
	ifaces, err := f.TypeList(cd.Def.InterfacesOff)
	if err != nil {
		return fmt.Errorf("interfaces: %w", err)
	}
	cd.Interfaces = ifaces

	if err := DecodeClassData(f, cd.Def.ClassDataOff, cd); err != nil {
		return err
	}

	// Member lists are complete here; later failures leave them intact.
	if !opts.Annotations {
		return nil
	}
	if pos, ok, err := vals.DecodeStaticValues(f, cd.Def.StaticValuesOff); err != nil {
		return err
	} else if ok {
		cd.StaticValues = pos
		cd.HasStaticValues = true
	}
	dir, err := f.AnnotationsDirectory(cd.Def.AnnotationsOff)
	if err != nil {
		return fmt.Errorf("annotations directory: %w", err)
	}
	if dir == nil {
		return nil
	}
	return r.decodeDirectory(f, vals, dir, cd)
}

// DecodeClassData decodes the class_data_item at off into cd. Offset 0
// leaves every list empty. The running index sum restarts at zero for
// each of the four lists.
func DecodeClassData(f *dexfile.File, off uint32, cd *ClassData) error {
	if off == 0 {
		return nil
	}
	s, err := f.StreamAt(off)
	if err != nil {
		return fmt.Errorf("class_data: %w", err)
	}
	var counts [4]uint32
	for i := range counts {
		if counts[i], err = s.ReadULEB128(); err != nil {
			return fmt.Errorf("class_data at 0x%x: counts: %w", off, err)
		}
	}
	// Every entry takes at least two bytes; reject counts the buffer cannot hold.
	total := uint64(counts[0]) + uint64(counts[1]) + uint64(counts[2]) + uint64(counts[3])
	if total*2 > uint64(s.Remaining()) {
		return fmt.Errorf("class_data at 0x%x: %d entries with %d bytes left: %w",
			off, total, s.Remaining(), dexfmt.ErrOutOfBounds)
	}

	if cd.StaticFields, err = readFields(s, counts[0], cd.StaticFields); err != nil {
		return fmt.Errorf("class_data at 0x%x: static fields: %w", off, err)
	}
	if cd.InstanceFields, err = readFields(s, counts[1], cd.InstanceFields); err != nil {
		return fmt.Errorf("class_data at 0x%x: instance fields: %w", off, err)
	}
	if cd.DirectMethods, err = readMethods(s, counts[2], cd.DirectMethods); err != nil {
		return fmt.Errorf("class_data at 0x%x: direct methods: %w", off, err)
	}
	if cd.VirtualMethods, err = readMethods(s, counts[3], cd.VirtualMethods); err != nil {
		return fmt.Errorf("class_data at 0x%x: virtual methods: %w", off, err)
	}
	return nil
}

func readFields(s *dexfmt.Stream, n uint32, dst []Field) ([]Field, error) {
	var idx uint32
	for i := uint32(0); i < n; i++ {
		delta, err := s.ReadULEB128()
		if err != nil {
			return dst, err
		}
		flags, err := s.ReadULEB128()
		if err != nil {
			return dst, err
		}
		idx += delta
		dst = append(dst, Field{Idx: idx, Flags: flags})
	}
	return dst, nil
}

func readMethods(s *dexfmt.Stream, n uint32, dst []Method) ([]Method, error) {
	var idx uint32
	for i := uint32(0); i < n; i++ {
		delta, err := s.ReadULEB128()
		if err != nil {
			return dst, err
		}
		flags, err := s.ReadULEB128()
		if err != nil {
			return dst, err
		}
		code, err := s.ReadULEB128()
		if err != nil {
			return dst, err
		}
		idx += delta
		dst = append(dst, Method{Idx: idx, Flags: flags, CodeOff: code})
	}
	return dst, nil
}

func (r *Result) decodeDirectory(f *dexfile.File, vals *encval.Decoder, dir *dexfile.AnnotationsDirectory, cd *ClassData) error {
	var err error
	if cd.Annotations, err = vals.DecodeAnnotationSet(f, dir.ClassAnnotationsOff, cd.Annotations); err != nil {
		return fmt.Errorf("class annotations: %w", err)
	}
	for _, fa := range dir.Fields {
		if r.FieldAnnotations[fa.Idx], err = vals.DecodeAnnotationSet(f, fa.Off, r.FieldAnnotations[fa.Idx]); err != nil {
			return fmt.Errorf("field %d annotations: %w", fa.Idx, err)
		}
	}
	for _, ma := range dir.Methods {
		if r.MethodAnnotations[ma.Idx], err = vals.DecodeAnnotationSet(f, ma.Off, r.MethodAnnotations[ma.Idx]); err != nil {
			return fmt.Errorf("method %d annotations: %w", ma.Idx, err)
		}
	}
	for _, pa := range dir.Parameters {
		if r.ParamAnnotations[pa.Idx], err = decodeParams(f, vals, pa.Off, r.ParamAnnotations[pa.Idx]); err != nil {
			return fmt.Errorf("method %d parameter annotations: %w", pa.Idx, err)
		}
	}
	return nil
}

// decodeParams walks an annotation_set_ref_list, appending each
// parameter's annotation positions followed by a NoIndex separator.
func decodeParams(f *dexfile.File, vals *encval.Decoder, off uint32, dst []uint32) ([]uint32, error) {
	refs, err := f.AnnotationSetRefList(off)
	if err != nil {
		return dst, err
	}
	for _, set := range refs {
		if dst, err = vals.DecodeAnnotationSet(f, set, dst); err != nil {
			return dst, err
		}
		dst = append(dst, dexfile.NoIndex)
	}
	return dst, nil
}

// SplitParams splits a parameter annotation list at its separators into
// one group per parameter.
func SplitParams(list []uint32) [][]uint32 {
	var groups [][]uint32
	cur := []uint32{}
	for _, p := range list {
		if p == dexfile.NoIndex {
			groups = append(groups, cur)
			cur = []uint32{}
			continue
		}
		cur = append(cur, p)
	}
	return groups
}
