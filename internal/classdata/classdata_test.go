package classdata_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexlens/internal/classdata"
	"dexlens/internal/dexfile"
	"dexlens/internal/dexfile/dextest"
	"dexlens/internal/dexfmt"
	"dexlens/internal/encval"
)

func decode(t *testing.T, b *dextest.Builder, opts classdata.Options) (*classdata.Result, *encval.Decoder, *dexfmt.Diags) {
	t.Helper()
	df, err := dexfile.Parse(b.Bytes())
	require.NoError(t, err)
	vals := encval.NewDecoder(0)
	var diags dexfmt.Diags
	r, err := classdata.Decode(df, vals, opts, &diags)
	require.NoError(t, err)
	return r, vals, &diags
}

func TestEmptyClass(t *testing.T) {
	b := dextest.New()
	b.Class(dextest.ClassDefFor(b.Type("LEmpty;")))
	r, vals, diags := decode(t, b, classdata.Options{Annotations: true})

	require.Len(t, r.Classes, 1)
	cd := r.Classes[0]
	assert.Empty(t, cd.Interfaces)
	assert.Empty(t, cd.StaticFields)
	assert.Empty(t, cd.InstanceFields)
	assert.Empty(t, cd.DirectMethods)
	assert.Empty(t, cd.VirtualMethods)
	assert.Empty(t, cd.Annotations)
	assert.False(t, cd.HasStaticValues)
	assert.Zero(t, vals.Annotations.Len())
	assert.Zero(t, diags.Len())
}

func TestDeltaDecoding(t *testing.T) {
	b := dextest.New()
	def := dextest.ClassDefFor(b.Type("LA;"))
	def.ClassDataOff = b.Data(dextest.ClassData(
		[]dextest.FieldEntry{{Idx: 3, Flags: dexfile.AccStatic}, {Idx: 5, Flags: dexfile.AccStatic}},
		[]dextest.FieldEntry{{Idx: 1}, {Idx: 4}},
		[]dextest.MethodEntry{{Idx: 2, Flags: dexfile.AccConstructor, CodeOff: 0x100}},
		[]dextest.MethodEntry{{Idx: 1, CodeOff: 0x200}, {Idx: 7, Flags: dexfile.AccAbstract}},
	))
	b.Class(def)
	r, _, _ := decode(t, b, classdata.Options{})

	cd := r.Classes[0]
	assert.Equal(t, []classdata.Field{{Idx: 3, Flags: dexfile.AccStatic}, {Idx: 5, Flags: dexfile.AccStatic}}, cd.StaticFields)
	assert.Equal(t, []classdata.Field{{Idx: 1}, {Idx: 4}}, cd.InstanceFields, "running sum restarts per list")
	assert.Equal(t, []classdata.Method{{Idx: 2, Flags: dexfile.AccConstructor, CodeOff: 0x100}}, cd.DirectMethods)
	require.Len(t, cd.VirtualMethods, 2)
	assert.Equal(t, uint32(1), cd.VirtualMethods[0].Idx, "virtual list does not continue the direct sum")
	assert.Equal(t, uint32(7), cd.VirtualMethods[1].Idx)
	assert.False(t, cd.VirtualMethods[1].HasCode())
}

func TestRawDeltas(t *testing.T) {
	b := dextest.New()
	def := dextest.ClassDefFor(b.Type("LA;"))
	// Two static fields with deltas 3 and 2.
	def.ClassDataOff = b.Data(dextest.Cat(
		dextest.ULEB(2), dextest.ULEB(0), dextest.ULEB(0), dextest.ULEB(0),
		dextest.ULEB(3), dextest.ULEB(0),
		dextest.ULEB(2), dextest.ULEB(0),
	))
	b.Class(def)
	r, _, _ := decode(t, b, classdata.Options{})
	got := []uint32{r.Classes[0].StaticFields[0].Idx, r.Classes[0].StaticFields[1].Idx}
	assert.Equal(t, []uint32{3, 5}, got)
}

func TestInterfaces(t *testing.T) {
	b := dextest.New()
	def := dextest.ClassDefFor(b.Type("LA;"))
	i1, i2 := b.Type("LI1;"), b.Type("LI2;")
	def.InterfacesOff = b.Data(dextest.TypeList([]uint16{uint16(i1), uint16(i2)}))
	b.Class(def)
	r, _, _ := decode(t, b, classdata.Options{})
	assert.Equal(t, []uint16{uint16(i1), uint16(i2)}, r.Classes[0].Interfaces)
}

func TestAnnotationsDirectory(t *testing.T) {
	b := dextest.New()
	def := dextest.ClassDefFor(b.Type("LA;"))
	item := func(typ uint32) uint32 {
		return b.Data(dextest.AnnotationItem(dexfile.VisibilityRuntime, typ))
	}
	classSet := b.Data(dextest.OffsetList(item(1)))
	fieldSet := b.Data(dextest.OffsetList(item(2), item(3)))
	methodSet := b.Data(dextest.OffsetList(item(4)))
	p0 := b.Data(dextest.OffsetList(item(5)))
	p2 := b.Data(dextest.OffsetList(item(6), item(7)))
	refs := b.Data(dextest.OffsetList(p0, 0, p2))
	def.AnnotationsOff = b.Data(dextest.AnnotationsDirectory(classSet,
		[]dexfile.MemberAnnotations{{Idx: 9, Off: fieldSet}},
		[]dexfile.MemberAnnotations{{Idx: 4, Off: methodSet}},
		[]dexfile.MemberAnnotations{{Idx: 4, Off: refs}},
	))
	b.Class(def)

	r, vals, diags := decode(t, b, classdata.Options{Annotations: true})
	assert.Zero(t, diags.Len())
	assert.Equal(t, 7, vals.Annotations.Len())

	cd := r.Classes[0]
	require.Len(t, cd.Annotations, 1)
	assert.Equal(t, uint32(1), vals.Annotations.At(cd.Annotations[0]).Type)

	require.Len(t, r.FieldAnnotations[9], 2)
	assert.Equal(t, uint32(3), vals.Annotations.At(r.FieldAnnotations[9][1]).Type)
	require.Len(t, r.MethodAnnotations[4], 1)

	params := r.ParamAnnotations[4]
	groups := classdata.SplitParams(params)
	require.Len(t, groups, 3, "one group per parameter")
	assert.Len(t, groups[0], 1)
	assert.Empty(t, groups[1], "empty parameter still emits a separator")
	assert.Len(t, groups[2], 2)
	assert.Equal(t, uint32(dexfile.NoIndex), params[len(params)-1])
	assert.Equal(t, 3, countNoIndex(params))
}

func countNoIndex(list []uint32) int {
	n := 0
	for _, p := range list {
		if p == dexfile.NoIndex {
			n++
		}
	}
	return n
}

func TestAnnotationsDisabled(t *testing.T) {
	b := dextest.New()
	def := dextest.ClassDefFor(b.Type("LA;"))
	classSet := b.Data(dextest.OffsetList(b.Data(dextest.AnnotationItem(dexfile.VisibilityBuild, 1))))
	def.AnnotationsOff = b.Data(dextest.AnnotationsDirectory(classSet, nil, nil, nil))
	def.StaticValuesOff = b.Data(dextest.EncodedArray(dextest.Value(dextest.VInt, 1)))
	b.Class(def)

	r, vals, _ := decode(t, b, classdata.Options{})
	assert.Empty(t, r.Classes[0].Annotations)
	assert.False(t, r.Classes[0].HasStaticValues)
	assert.Zero(t, vals.Annotations.Len())
	assert.Zero(t, vals.Arrays.Len())
}

func TestStaticValues(t *testing.T) {
	b := dextest.New()
	def := dextest.ClassDefFor(b.Type("LA;"))
	def.StaticValuesOff = b.Data(dextest.EncodedArray(dextest.Value(dextest.VInt, 1), dextest.Bool(true)))
	b.Class(def)

	r, vals, _ := decode(t, b, classdata.Options{Annotations: true})
	cd := r.Classes[0]
	require.True(t, cd.HasStaticValues)
	arr := vals.Arrays.At(cd.StaticValues)
	require.Len(t, arr.Values, 2)
	assert.True(t, arr.Values[1].Bool())
}

func truncatedClassBuilder() *dextest.Builder {
	b := dextest.New()
	bad := dextest.ClassDefFor(b.Type("LBad;"))
	// Claims far more static fields than the file holds.
	bad.ClassDataOff = b.Data(dextest.Cat(dextest.ULEB(1<<28), dextest.ULEB(0), dextest.ULEB(0), dextest.ULEB(0)))
	bad.InterfacesOff = b.Data(dextest.TypeList([]uint16{0}))
	b.Class(bad)
	good := dextest.ClassDefFor(b.Type("LGood;"))
	good.ClassDataOff = b.Data(dextest.ClassData([]dextest.FieldEntry{{Idx: 1}}, nil, nil, nil))
	b.Class(good)
	return b
}

func TestBestEffortKeepsGoing(t *testing.T) {
	b := truncatedClassBuilder()
	df, err := dexfile.Parse(b.Bytes())
	require.NoError(t, err)

	var diags dexfmt.Diags
	r, err := classdata.Decode(df, encval.NewDecoder(0), classdata.Options{}, &diags)
	require.NoError(t, err)
	assert.Equal(t, 1, diags.Len())
	assert.Equal(t, []uint16{0}, r.Classes[0].Interfaces, "class keeps what decoded before the failure")
	assert.Len(t, r.Classes[1].StaticFields, 1)
}

func TestStrictFails(t *testing.T) {
	b := truncatedClassBuilder()
	df, err := dexfile.Parse(b.Bytes())
	require.NoError(t, err)

	_, err = classdata.Decode(df, encval.NewDecoder(0), classdata.Options{Mode: dexfmt.ModeStrict}, nil)
	assert.ErrorIs(t, err, dexfmt.ErrOutOfBounds)
}

func corruptDirectoryBuilder() *dextest.Builder {
	b := dextest.New()
	def := dextest.ClassDefFor(b.Type("LA;"))
	def.ClassDataOff = b.Data(dextest.ClassData(
		[]dextest.FieldEntry{{Idx: 2, Flags: dexfile.AccStatic}}, nil,
		[]dextest.MethodEntry{{Idx: 1, Flags: dexfile.AccStatic}}, nil))
	dir := dextest.AnnotationsDirectory(0, nil, nil, nil)
	binary.LittleEndian.PutUint32(dir[4:], 0xffff) // field entries the file cannot hold
	def.AnnotationsOff = b.Data(dir)
	b.Class(def)
	return b
}

func TestCorruptDirectoryIgnoredWithoutAnnotations(t *testing.T) {
	b := corruptDirectoryBuilder()
	df, err := dexfile.Parse(b.Bytes())
	require.NoError(t, err)

	for _, mode := range []dexfmt.Mode{dexfmt.ModeBestEffort, dexfmt.ModeStrict} {
		var diags dexfmt.Diags
		r, err := classdata.Decode(df, encval.NewDecoder(0), classdata.Options{Mode: mode}, &diags)
		require.NoError(t, err)
		assert.Zero(t, diags.Len())
		cd := r.Classes[0]
		assert.Equal(t, []classdata.Field{{Idx: 2, Flags: dexfile.AccStatic}}, cd.StaticFields)
		assert.Equal(t, []classdata.Method{{Idx: 1, Flags: dexfile.AccStatic}}, cd.DirectMethods)
	}
}

func TestCorruptDirectoryKeepsMembers(t *testing.T) {
	r, _, diags := decode(t, corruptDirectoryBuilder(), classdata.Options{Annotations: true})
	assert.Equal(t, 1, diags.Len())
	cd := r.Classes[0]
	assert.Len(t, cd.StaticFields, 1, "member lists survive a bad directory")
	assert.Len(t, cd.DirectMethods, 1)
	assert.Empty(t, cd.Annotations)
}
