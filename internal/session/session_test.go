package session_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexlens/internal/bytecode"
	"dexlens/internal/classdata"
	"dexlens/internal/dexfile"
	"dexlens/internal/dexfile/dextest"
	"dexlens/internal/dexfmt"
	"dexlens/internal/encval"
	"dexlens/internal/session"
	"dexlens/internal/visit"
)

// bodyCollector visits every method body, twice if asked.
type bodyCollector struct {
	visit.Members
	bodies map[uint32]*bytecode.MethodBody
	errs   map[uint32]error
}

func newBodyCollector() *bodyCollector {
	return &bodyCollector{bodies: map[uint32]*bytecode.MethodBody{}, errs: map[uint32]error{}}
}

func (c *bodyCollector) VisitClass(visit.ClassInfo) (visit.MemberVisitor, visit.Capability) {
	return c, visit.CapMethodBodies
}

func (c *bodyCollector) VisitMethodBody(m visit.MethodInfo, b *bytecode.MethodBody, err error) {
	c.bodies[m.Method.Idx] = b
	if err != nil {
		c.errs[m.Method.Idx] = err
	}
}

func TestOpenTables(t *testing.T) {
	buf, id := dextest.Sample()
	s, err := session.Open(buf, session.Options{})
	require.NoError(t, err)
	defer s.Close()

	tab := s.Tables()
	assert.Equal(t, "hello", tab.Strings[id.Hello])
	desc := tab.Strings[tab.Types[id.Main]]
	assert.Equal(t, "Lcom/example/Main;", desc)

	m := tab.Methods[id.Log]
	assert.Equal(t, id.Main, m[0])
	assert.Equal(t, "log", tab.Strings[m[2]])
	proto := tab.Protos[m[1]]
	require.Len(t, proto, 3, "shorty, return, one parameter")
	assert.Equal(t, "VL", tab.Strings[proto[0]])
	assert.Equal(t, "Ljava/lang/String;", tab.Strings[tab.Types[proto[2]]])

	f := tab.Fields[id.Count]
	assert.Equal(t, "count", tab.Strings[f[2]])

	require.Len(t, s.Classes(), 2)
	assert.Len(t, s.Classes()[0].DirectMethods, 3)
	assert.Empty(t, s.Annotations(), "annotations were not requested")
	assert.Empty(t, s.Diags())
}

func TestVisitScansOnce(t *testing.T) {
	buf, id := dextest.Sample()
	s, err := session.Open(buf, session.Options{})
	require.NoError(t, err)
	defer s.Close()

	c := newBodyCollector()
	require.NoError(t, s.Visit(c))
	require.NoError(t, s.Visit(c))
	assert.Equal(t, 4, s.BodyScans(), "four methods with code, each scanned once")

	mainBody := c.bodies[id.MainM]
	require.NotNil(t, mainBody)
	assert.Equal(t, []uint32{id.Hello}, mainBody.Strings)
	assert.Equal(t, []uint32{id.Tag}, mainBody.AccessedFields)
	assert.Equal(t, []uint32{id.Count}, mainBody.AssignedFields)
	assert.Equal(t, []uint32{id.Log}, mainBody.InvokedMethods)

	logBody := c.bodies[id.Log]
	require.NotNil(t, logBody)
	assert.Equal(t, []byte{0x1a, 0x2b, 0x0e}, logBody.Opcodes)

	runBody := c.bodies[id.Run]
	require.NotNil(t, runBody)
	assert.Equal(t, []uint32{id.Jumbo}, runBody.Strings)

	_, ok := c.bodies[id.NativeHash]
	assert.False(t, ok, "native methods have no body")
	assert.Empty(t, c.errs)
}

func TestAnnotationsPools(t *testing.T) {
	buf, id := dextest.Sample()
	s, err := session.Open(buf, session.Options{Annotations: true})
	require.NoError(t, err)
	defer s.Close()

	anns := s.Annotations()
	require.Len(t, anns, 5)
	arrays := s.Arrays()
	require.Len(t, arrays, 2)

	tag := s.FieldAnnotations()[id.Tag]
	require.Len(t, tag, 1)
	assert.Equal(t, uint8(dexfile.VisibilityRuntime), anns[tag[0]].Visibility)

	entry := s.MethodAnnotations()[id.MainM]
	require.Len(t, entry, 1)
	a := s.Annotation(entry[0])
	require.NotNil(t, a)
	arr := s.Array(a.Elements[0].Value.Index())
	require.NotNil(t, arr)
	require.Len(t, arr.Values, 2)
	assert.Equal(t, id.Hello, arr.Values[0].Index())
	assert.Equal(t, encval.TypeAnnotation, arr.Values[1].Type)
	assert.Equal(t, uint8(encval.VisibilityEncoded), s.Annotation(arr.Values[1].Index()).Visibility)

	params := s.ParamAnnotations()[id.Log]
	assert.Len(t, params, 2)
	assert.Equal(t, uint32(dexfile.NoIndex), params[1])

	main := s.Classes()[0]
	require.True(t, main.HasStaticValues)
	sv := s.Array(main.StaticValues)
	require.NotNil(t, sv)
	assert.Equal(t, "main", s.Tables().Strings[sv.Values[0].Index()])

	assert.Len(t, s.Classes()[1].Annotations, 1)
}

type annotationCollector struct {
	visit.Members
	fields  map[uint32][]uint32
	methods map[uint32]visit.MethodInfo
}

func (c *annotationCollector) VisitClass(visit.ClassInfo) (visit.MemberVisitor, visit.Capability) {
	return c, visit.CapFields | visit.CapMethods
}

func (c *annotationCollector) VisitField(f visit.FieldInfo)   { c.fields[f.Field.Idx] = f.Annotations }
func (c *annotationCollector) VisitMethod(m visit.MethodInfo) { c.methods[m.Method.Idx] = m }

func TestVisitCarriesMemberAnnotations(t *testing.T) {
	buf, id := dextest.Sample()
	s, err := session.Open(buf, session.Options{Annotations: true})
	require.NoError(t, err)
	defer s.Close()

	c := &annotationCollector{fields: map[uint32][]uint32{}, methods: map[uint32]visit.MethodInfo{}}
	require.NoError(t, s.Visit(c))

	assert.Equal(t, s.FieldAnnotations()[id.Tag], c.fields[id.Tag])
	assert.Len(t, c.fields[id.Tag], 1)
	assert.Empty(t, c.fields[id.Count])
	assert.Len(t, c.methods[id.MainM].Annotations, 1)
	assert.Equal(t, []uint32{c.methods[id.Log].Params[0], dexfile.NoIndex}, c.methods[id.Log].Params)
	assert.Empty(t, c.methods[id.Init].Params)
}

func TestOpenCompactFails(t *testing.T) {
	b := dextest.New()
	b.Compact = true
	s, err := session.Open(b.Bytes(), session.Options{})
	assert.ErrorIs(t, err, dexfile.ErrCompact)
	assert.Nil(t, s)

	r := session.NewRegistry()
	h, err := r.Open(b.Bytes(), session.Options{})
	assert.ErrorIs(t, err, dexfile.ErrCompact)
	assert.Zero(t, h)
	assert.Zero(t, r.Len())
}

func TestNilAndClosedSession(t *testing.T) {
	var s *session.Session
	assert.NoError(t, s.Close())
	assert.ErrorIs(t, s.Visit(newBodyCollector()), session.ErrNoSession)
	_, err := s.Body(classdata.Method{Idx: 0, CodeOff: 0x70})
	assert.ErrorIs(t, err, session.ErrNoSession)

	buf, _ := dextest.Sample()
	s, err = session.Open(buf, session.Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, s.Closed())
	assert.ErrorIs(t, s.Visit(newBodyCollector()), session.ErrClosed)
	assert.Nil(t, s.Annotations())
}

func TestBodyFailureIsReportedAndTraversalContinues(t *testing.T) {
	b := dextest.New()
	cls := b.Type("LA;")
	bad := b.Method("LA;", "bad", "V")
	good := b.Method("LA;", "good", "V")
	badCode := b.Data(dextest.Code(1, 0, 0, 0x006e, 0x0000)) // invoke missing its third unit
	goodCode := b.Data(dextest.Code(1, 0, 0, 0x000e))
	def := dextest.ClassDefFor(cls)
	def.ClassDataOff = b.Data(dextest.ClassData(nil, nil, nil, []dextest.MethodEntry{
		{Idx: bad, CodeOff: badCode},
		{Idx: good, CodeOff: goodCode},
	}))
	b.Class(def)

	s, err := session.Open(b.Bytes(), session.Options{})
	require.NoError(t, err)
	defer s.Close()

	c := newBodyCollector()
	require.NoError(t, s.Visit(c))
	assert.ErrorIs(t, c.errs[bad], bytecode.ErrTruncated)
	assert.Nil(t, c.bodies[bad])
	assert.NotNil(t, c.bodies[good])
	require.Len(t, s.Diags(), 1)
	assert.Equal(t, dexfmt.DiagBadCode, s.Diags()[0].Kind)
}

func TestRegistryLifecycle(t *testing.T) {
	buf, _ := dextest.Sample()
	r := session.NewRegistry()

	h, err := r.Open(buf, session.Options{})
	require.NoError(t, err)
	assert.NotZero(t, h)
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Visit(h, newBodyCollector()))

	require.NoError(t, r.Close(h))
	require.NoError(t, r.Close(h), "close is idempotent")
	require.NoError(t, r.Close(0))
	assert.ErrorIs(t, r.Visit(h, newBodyCollector()), session.ErrBadHandle)
	assert.ErrorIs(t, r.Visit(0, newBodyCollector()), session.ErrNoSession)
	assert.Zero(t, r.Len())
}

func TestRegistryConcurrentSessions(t *testing.T) {
	buf, _ := dextest.Sample()
	r := session.NewRegistry()
	defer r.CloseAll()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each goroutine owns its own buffer copy and session.
			own := append([]byte(nil), buf...)
			h, err := r.Open(own, session.Options{Annotations: true})
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, r.Visit(h, newBodyCollector()))
			assert.NoError(t, r.Close(h))
		}()
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}
