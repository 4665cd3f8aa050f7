// Package visit drives class, member and method-body traversal over a
// decoded DEX file.
//
// A class visitor declares, per class, which member kinds it wants by
// returning a Capability set along with its member visitor. The walker
// branches on those flags only.
package visit

import (
	"fmt"

	"dexlens/internal/bytecode"
	"dexlens/internal/classdata"
)

// Capability is a set of member kinds a visitor consumes.
type Capability uint8

const (
	CapFields Capability = 1 << iota
	CapMethods
	// CapMethodBodies implies CapMethods.
	CapMethodBodies
)

func (c Capability) Has(x Capability) bool { return c&x != 0 }

// ClassInfo is passed to VisitClass.
type ClassInfo struct {
	Index int
	Data  *classdata.ClassData
}

// FieldInfo is passed to VisitField. Annotations holds annotation pool
// positions and is empty unless the source decoded annotations.
type FieldInfo struct {
	Class       int
	Field       classdata.Field
	Static      bool
	Annotations []uint32
}

// MethodInfo is passed to VisitMethod and VisitMethodBody. Params lists
// parameter annotation positions with dexfile.NoIndex after each
// parameter.
type MethodInfo struct {
	Class       int
	Method      classdata.Method
	Direct      bool
	Annotations []uint32
	Params      []uint32
}

// ClassVisitor receives every class. Returning a nil MemberVisitor or a
// zero Capability skips the class's members. Stop is queried after each
// class; true ends the traversal.
type ClassVisitor interface {
	VisitClass(ClassInfo) (MemberVisitor, Capability)
	Stop() bool
}

// MemberVisitor receives the members of one class. Stop is queried after
// each field and after each method; true ends that kind of member for the
// current class only.
type MemberVisitor interface {
	VisitField(FieldInfo)
	VisitMethod(MethodInfo)
	// VisitMethodBody is called after VisitMethod for methods with code
	// when CapMethodBodies is declared. err is the scan failure for this
	// body, if any; body is nil then.
	VisitMethodBody(m MethodInfo, body *bytecode.MethodBody, err error)
	Stop() bool
}

// Members is an embeddable MemberVisitor that ignores everything.
type Members struct{}

func (Members) VisitField(FieldInfo) {}
func (Members) VisitMethod(MethodInfo) {}
func (Members) VisitMethodBody(MethodInfo, *bytecode.MethodBody, error) {}
func (Members) Stop() bool { return false }

// Source is what the walker traverses.
type Source interface {
	Classes() []classdata.ClassData
	// Body returns the scanned body of m; it is called only for methods
	// with code.
	Body(m classdata.Method) (*bytecode.MethodBody, error)
}

// Annotated is implemented by sources that carry member annotations,
// keyed by global field or method index.
type Annotated interface {
	FieldAnnotations() map[uint32][]uint32
	MethodAnnotations() map[uint32][]uint32
	ParamAnnotations() map[uint32][]uint32
}

// State is the walker's position in the traversal.
type State int

const (
	NotStarted State = iota
	PerClass
	PerField
	PerMethod
	PerMethodBody
	Stopped
	Done
)

var stateNames = [...]string{"not_started", "per_class", "per_field", "per_method", "per_method_body", "stopped", "done"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Walker runs one traversal.
type Walker struct {
	src   Source
	ann   Annotated
	state State
}

// NewWalker returns a walker over src. Member infos carry annotations
// when src implements Annotated.
func NewWalker(src Source) *Walker {
	w := &Walker{src: src}
	w.ann, _ = src.(Annotated)
	return w
}

// State returns the current state; after Walk it is Stopped or Done.
func (w *Walker) State() State { return w.state }

// Walk visits every class in order until the class visitor stops.
func (w *Walker) Walk(v ClassVisitor) {
	classes := w.src.Classes()
	for i := range classes {
		w.state = PerClass
		cd := &classes[i]
		mv, caps := v.VisitClass(ClassInfo{Index: i, Data: cd})
		if mv != nil {
			if caps.Has(CapFields) {
				w.fields(i, cd, mv)
			}
			if caps.Has(CapMethods | CapMethodBodies) {
				w.methods(i, cd, mv, caps.Has(CapMethodBodies))
			}
		}
		if v.Stop() {
			w.state = Stopped
			return
		}
	}
	w.state = Done
}

func (w *Walker) fields(class int, cd *classdata.ClassData, mv MemberVisitor) {
	w.state = PerField
	for _, list := range []struct {
		fields []classdata.Field
		static bool
	}{{cd.StaticFields, true}, {cd.InstanceFields, false}} {
		for _, f := range list.fields {
			info := FieldInfo{Class: class, Field: f, Static: list.static}
			if w.ann != nil {
				info.Annotations = w.ann.FieldAnnotations()[f.Idx]
			}
			mv.VisitField(info)
			if mv.Stop() {
				return
			}
		}
	}
}

func (w *Walker) methods(class int, cd *classdata.ClassData, mv MemberVisitor, bodies bool) {
	for _, list := range []struct {
		methods []classdata.Method
		direct  bool
	}{{cd.DirectMethods, true}, {cd.VirtualMethods, false}} {
		for _, m := range list.methods {
			w.state = PerMethod
			info := MethodInfo{Class: class, Method: m, Direct: list.direct}
			if w.ann != nil {
				info.Annotations = w.ann.MethodAnnotations()[m.Idx]
				info.Params = w.ann.ParamAnnotations()[m.Idx]
			}
			mv.VisitMethod(info)
			if bodies && m.HasCode() {
				w.state = PerMethodBody
				body, err := w.src.Body(m)
				mv.VisitMethodBody(info, body, err)
			}
			if mv.Stop() {
				return
			}
		}
	}
}
