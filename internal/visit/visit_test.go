package visit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"dexlens/internal/bytecode"
	"dexlens/internal/classdata"
)

type fakeSource struct {
	classes []classdata.ClassData
	scans   map[uint32]int
}

func (s *fakeSource) Classes() []classdata.ClassData { return s.classes }

func (s *fakeSource) Body(m classdata.Method) (*bytecode.MethodBody, error) {
	s.scans[m.Idx]++
	if m.CodeOff == 0xbad {
		return nil, errors.New("broken")
	}
	return &bytecode.MethodBody{InvokedMethods: []uint32{m.Idx + 100}}, nil
}

func twoClasses() *fakeSource {
	return &fakeSource{
		scans: make(map[uint32]int),
		classes: []classdata.ClassData{
			{
				StaticFields:   []classdata.Field{{Idx: 0}, {Idx: 1}},
				InstanceFields: []classdata.Field{{Idx: 2}},
				DirectMethods:  []classdata.Method{{Idx: 0, CodeOff: 0x10}},
				VirtualMethods: []classdata.Method{{Idx: 1}, {Idx: 2, CodeOff: 0xbad}},
			},
			{
				StaticFields:   []classdata.Field{{Idx: 3}},
				InstanceFields: []classdata.Field{{Idx: 4}, {Idx: 5}},
				VirtualMethods: []classdata.Method{{Idx: 3, CodeOff: 0x20}},
			},
		},
	}
}

// recorder logs every callback as a string.
type recorder struct {
	log  []string
	caps Capability

	stopFieldsAfter int // per class, 0 = never
	stopMethods     bool
	stopAfterClass  int // -1 = never

	fields    int
	inMethods bool
	class     int
}

func (r *recorder) VisitClass(c ClassInfo) (MemberVisitor, Capability) {
	r.log = append(r.log, fmt.Sprintf("class %d", c.Index))
	r.class = c.Index
	r.fields = 0
	r.inMethods = false
	return r, r.caps
}

func (r *recorder) VisitField(f FieldInfo) {
	r.fields++
	r.log = append(r.log, fmt.Sprintf("field %d", f.Field.Idx))
}

func (r *recorder) VisitMethod(m MethodInfo) {
	r.inMethods = true
	r.log = append(r.log, fmt.Sprintf("method %d", m.Method.Idx))
}

func (r *recorder) VisitMethodBody(m MethodInfo, b *bytecode.MethodBody, err error) {
	if err != nil {
		r.log = append(r.log, fmt.Sprintf("body %d error", m.Method.Idx))
		return
	}
	r.log = append(r.log, fmt.Sprintf("body %d -> %v", m.Method.Idx, b.InvokedMethods))
}

func (r *recorder) Stop() bool {
	if r.inMethods {
		return r.stopMethods
	}
	return r.stopFieldsAfter > 0 && r.fields >= r.stopFieldsAfter
}

type classStopper struct{ *recorder }

func (c classStopper) Stop() bool { return c.class == c.stopAfterClass }

func TestFullTraversal(t *testing.T) {
	src := twoClasses()
	r := &recorder{caps: CapFields | CapMethodBodies, stopAfterClass: -1}
	w := NewWalker(src)
	w.Walk(classStopper{r})

	assert.Equal(t, []string{
		"class 0", "field 0", "field 1", "field 2",
		"method 0", "body 0 -> [100]", "method 1", "method 2", "body 2 error",
		"class 1", "field 3", "field 4", "field 5",
		"method 3", "body 3 -> [103]",
	}, r.log)
	assert.Equal(t, Done, w.State())
	assert.Equal(t, map[uint32]int{0: 1, 2: 1, 3: 1}, src.scans)
}

func TestFieldStopIsPerClass(t *testing.T) {
	src := twoClasses()
	r := &recorder{caps: CapFields | CapMethods, stopFieldsAfter: 2, stopAfterClass: -1}
	NewWalker(src).Walk(classStopper{r})

	assert.Equal(t, []string{
		"class 0", "field 0", "field 1",
		"method 0", "method 1", "method 2",
		"class 1", "field 3", "field 4",
		"method 3",
	}, r.log)
}

func TestMethodStopIsPerClass(t *testing.T) {
	src := twoClasses()
	r := &recorder{caps: CapMethods, stopMethods: true, stopAfterClass: -1}
	NewWalker(src).Walk(classStopper{r})
	assert.Equal(t, []string{"class 0", "method 0", "class 1", "method 3"}, r.log)
	assert.Empty(t, src.scans, "no bodies without CapMethodBodies")
}

func TestClassStopEndsTraversal(t *testing.T) {
	src := twoClasses()
	r := &recorder{caps: CapFields, stopAfterClass: 0}
	w := NewWalker(src)
	w.Walk(classStopper{r})
	assert.Equal(t, []string{"class 0", "field 0", "field 1", "field 2"}, r.log)
	assert.Equal(t, Stopped, w.State())
}

func TestNoCapabilitiesSkipsMembers(t *testing.T) {
	src := twoClasses()
	r := &recorder{stopAfterClass: -1}
	NewWalker(src).Walk(classStopper{r})
	assert.Equal(t, []string{"class 0", "class 1"}, r.log)
}

type bodiesOnly struct{ Members }

func TestMembersEmbedding(t *testing.T) {
	var mv MemberVisitor = bodiesOnly{}
	assert.False(t, mv.Stop())
}

type annotatedSource struct {
	*fakeSource
	fields, methods, params map[uint32][]uint32
}

func (s annotatedSource) FieldAnnotations() map[uint32][]uint32  { return s.fields }
func (s annotatedSource) MethodAnnotations() map[uint32][]uint32 { return s.methods }
func (s annotatedSource) ParamAnnotations() map[uint32][]uint32  { return s.params }

type infoRecorder struct {
	Members
	fields  map[uint32]FieldInfo
	methods map[uint32]MethodInfo
}

func (r *infoRecorder) VisitClass(ClassInfo) (MemberVisitor, Capability) {
	return r, CapFields | CapMethods
}

func (r *infoRecorder) VisitField(f FieldInfo)   { r.fields[f.Field.Idx] = f }
func (r *infoRecorder) VisitMethod(m MethodInfo) { r.methods[m.Method.Idx] = m }

func TestMemberInfoCarriesAnnotations(t *testing.T) {
	src := annotatedSource{
		fakeSource: twoClasses(),
		fields:     map[uint32][]uint32{4: {0}},
		methods:    map[uint32][]uint32{1: {1, 2}},
		params:     map[uint32][]uint32{1: {3, 0xffffffff}},
	}
	r := &infoRecorder{fields: map[uint32]FieldInfo{}, methods: map[uint32]MethodInfo{}}
	NewWalker(src).Walk(r)

	assert.Equal(t, []uint32{0}, r.fields[4].Annotations)
	assert.Empty(t, r.fields[3].Annotations)
	assert.Equal(t, []uint32{1, 2}, r.methods[1].Annotations)
	assert.Equal(t, []uint32{3, 0xffffffff}, r.methods[1].Params)
	assert.Empty(t, r.methods[0].Params)

	// A plain source leaves the annotation fields empty.
	r = &infoRecorder{fields: map[uint32]FieldInfo{}, methods: map[uint32]MethodInfo{}}
	NewWalker(twoClasses()).Walk(r)
	assert.Empty(t, r.methods[1].Annotations)
}
