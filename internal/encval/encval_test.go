package encval_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexlens/internal/dexfile"
	"dexlens/internal/dexfile/dextest"
	"dexlens/internal/dexfmt"
	"dexlens/internal/encval"
)

func decodeOne(t *testing.T, d *encval.Decoder, b []byte) encval.Value {
	t.Helper()
	s := dexfmt.NewStream(b)
	v, err := d.DecodeValue(s)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Remaining(), "value must consume its payload exactly")
	return v
}

func TestSignExtension(t *testing.T) {
	d := encval.NewDecoder(0)
	tests := []struct {
		name string
		typ  byte
		in   []byte
		want int64
	}{
		{"byte -1", dextest.VByte, []byte{0xff}, -1},
		{"byte 127", dextest.VByte, []byte{0x7f}, 127},
		{"short narrow -1", dextest.VShort, []byte{0xff}, -1},
		{"short narrow 0x80", dextest.VShort, []byte{0x80}, -128},
		{"short full", dextest.VShort, []byte{0x00, 0x80}, math.MinInt16},
		{"int 1 byte", dextest.VInt, []byte{0xfe}, -2},
		{"int 3 bytes", dextest.VInt, []byte{0x00, 0x00, 0x80}, -0x800000},
		{"int positive", dextest.VInt, []byte{0x34, 0x12}, 0x1234},
		{"long 5 bytes", dextest.VLong, []byte{0xff, 0xff, 0xff, 0xff, 0xff}, -1},
		{"long 6 bytes positive", dextest.VLong, []byte{1, 2, 3, 4, 5, 0x06}, 0x060504030201},
		{"long 7 bytes", dextest.VLong, []byte{0, 0, 0, 0, 0, 0, 0x80}, -(1 << 55)},
		{"long 8 bytes", dextest.VLong, []byte{0, 0, 0, 0, 0, 0, 0, 0x80}, math.MinInt64},
		{"char zero extended", dextest.VChar, []byte{0xff}, 0xff},
		{"char full", dextest.VChar, []byte{0xff, 0xff}, 0xffff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := decodeOne(t, d, dextest.Value(tt.typ, tt.in...))
			assert.Equal(t, tt.want, v.Int())
		})
	}
}

func TestSignExtensionMatchesReference(t *testing.T) {
	d := encval.NewDecoder(0)
	for _, want := range []int64{0, 1, -1, 127, -128, 300, -300, 1 << 40, -(1 << 40), math.MaxInt64, math.MinInt64} {
		full := binary.LittleEndian.AppendUint64(nil, uint64(want))
		// Shortest encoding that still sign-extends back to want.
		size := 8
		for size > 1 {
			top := int8(full[size-1])
			next := int8(full[size-2])
			if (top == 0 && next >= 0) || (top == -1 && next < 0) {
				size--
				continue
			}
			break
		}
		v := decodeOne(t, d, dextest.Value(dextest.VLong, full[:size]...))
		assert.Equal(t, want, v.Int(), "size %d", size)
	}
}

func TestFloatRightPadding(t *testing.T) {
	d := encval.NewDecoder(0)

	v := decodeOne(t, d, dextest.Value(dextest.VFloat, 0x00, 0x3f))
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x3f}, v.Data)
	assert.Equal(t, math.Float32frombits(0x3f000000), v.Float32())

	v = decodeOne(t, d, dextest.Value(dextest.VDouble, 0xf0, 0x3f))
	assert.Equal(t, 1.0, v.Float64())
}

func TestIndexAndScalarTypes(t *testing.T) {
	d := encval.NewDecoder(0)

	v := decodeOne(t, d, dextest.Value(dextest.VString, 0xff, 0xff))
	assert.Equal(t, encval.TypeString, v.Type)
	assert.Equal(t, uint32(0xffff), v.Index(), "index types are unsigned")

	v = decodeOne(t, d, dextest.Bool(true))
	assert.True(t, v.Bool())
	v = decodeOne(t, d, dextest.Bool(false))
	assert.False(t, v.Bool())

	v = decodeOne(t, d, dextest.Null())
	assert.Equal(t, encval.TypeNull, v.Type)
	assert.Empty(t, v.Data)
}

func TestMalformedValues(t *testing.T) {
	d := encval.NewDecoder(0)
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"int wider than 4", dextest.Value(dextest.VInt, 1, 2, 3, 4, 5), encval.ErrBadValue},
		{"string wider than 4", dextest.Value(dextest.VString, 1, 2, 3, 4, 5), encval.ErrBadValue},
		{"null with arg", []byte{1<<5 | dextest.VNull}, encval.ErrBadValue},
		{"unknown type", []byte{0x05}, encval.ErrBadValue},
		{"truncated payload", []byte{3<<5 | dextest.VInt, 1}, dexfmt.ErrStreamEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.DecodeValue(dexfmt.NewStream(tt.in))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNestedArraysTakePositionAfterChildren(t *testing.T) {
	d := encval.NewDecoder(0)
	in := dextest.Array(
		dextest.Value(dextest.VInt, 1),
		dextest.Array(dextest.Value(dextest.VInt, 2)),
	)
	v := decodeOne(t, d, in)
	require.Equal(t, 2, d.Arrays.Len())
	assert.Equal(t, uint32(1), v.Index(), "outer array is appended after the inner one")

	outer := d.Arrays.At(1)
	require.Len(t, outer.Values, 2)
	assert.Equal(t, encval.TypeArray, outer.Values[1].Type)
	assert.Equal(t, uint32(0), outer.Values[1].Index())
	assert.Equal(t, int64(2), d.Arrays.At(0).Values[0].Int())
}

func TestNestedAnnotationStablePositions(t *testing.T) {
	b := dextest.New()
	// @Outer(value = { @Inner(x = 7) }) with runtime visibility.
	item := b.Data(dextest.AnnotationItem(dexfile.VisibilityRuntime, 10,
		dextest.Element{Name: 20, Value: dextest.Array(
			dextest.Annotation(11, dextest.Element{Name: 21, Value: dextest.Value(dextest.VInt, 7)}),
		)},
	))
	df, err := dexfile.Parse(b.Bytes())
	require.NoError(t, err)

	d := encval.NewDecoder(0)
	pos, err := d.DecodeAnnotationItem(df, item)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), pos, "outer slot is reserved before its elements")

	anns := d.Annotations.Slice()
	require.Len(t, anns, 2)
	assert.Equal(t, uint8(dexfile.VisibilityRuntime), anns[0].Visibility)
	assert.Equal(t, uint32(10), anns[0].Type)
	assert.Equal(t, uint8(encval.VisibilityEncoded), anns[1].Visibility)
	assert.Equal(t, uint32(11), anns[1].Type)

	arr := d.Arrays.At(anns[0].Elements[0].Value.Index())
	require.NotNil(t, arr)
	assert.Equal(t, uint32(1), arr.Values[0].Index())
	assert.Equal(t, int64(7), anns[1].Elements[0].Value.Int())
}

func TestArenaPointerStability(t *testing.T) {
	var a encval.Arena[encval.ArrayRecord]
	pos, p := a.Reserve()
	for i := 0; i < 3*256; i++ {
		a.Append(encval.ArrayRecord{})
	}
	p.Values = []encval.Value{{Type: encval.TypeNull}}
	assert.Same(t, p, a.At(pos))
	assert.Len(t, a.At(pos).Values, 1)
	assert.Equal(t, 3*256+1, a.Len())
	assert.Len(t, a.Slice(), 3*256+1)
	assert.Nil(t, a.At(uint32(a.Len())))
}

func TestDepthLimit(t *testing.T) {
	in := dextest.Value(dextest.VInt, 1)
	for i := 0; i < 5; i++ {
		in = dextest.Array(in)
	}
	_, err := encval.NewDecoder(3).DecodeValue(dexfmt.NewStream(in))
	assert.ErrorIs(t, err, encval.ErrTooDeep)

	_, err = encval.NewDecoder(8).DecodeValue(dexfmt.NewStream(in))
	assert.NoError(t, err)
}

func TestAnnotationSetAndStaticValues(t *testing.T) {
	b := dextest.New()
	a1 := b.Data(dextest.AnnotationItem(dexfile.VisibilityBuild, 1))
	a2 := b.Data(dextest.AnnotationItem(dexfile.VisibilitySystem, 2))
	set := b.Data(dextest.OffsetList(a1, a2))
	static := b.Data(dextest.EncodedArray(dextest.Value(dextest.VInt, 5), dextest.Null()))
	df, err := dexfile.Parse(b.Bytes())
	require.NoError(t, err)

	d := encval.NewDecoder(0)
	got, err := d.DecodeAnnotationSet(df, set, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, got)
	assert.Equal(t, uint8(dexfile.VisibilitySystem), d.Annotations.At(1).Visibility)

	got, err = d.DecodeAnnotationSet(df, 0, got)
	require.NoError(t, err)
	assert.Len(t, got, 2, "offset zero is an empty set")

	pos, ok, err := d.DecodeStaticValues(df, static)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, d.Arrays.At(pos).Values, 2)

	_, ok, err = d.DecodeStaticValues(df, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailedAnnotationLeavesPoolsUnchanged(t *testing.T) {
	b := dextest.New()
	good := b.Data(dextest.AnnotationItem(dexfile.VisibilityRuntime, 1))
	// The first element decodes a nested annotation and array; the
	// second has reserved value type 0x05.
	bad := b.Data(dextest.AnnotationItem(dexfile.VisibilityRuntime, 0,
		dextest.Element{Name: 1, Value: dextest.Array(dextest.Annotation(2))},
		dextest.Element{Name: 2, Value: dextest.Value(0x05, 1)},
	))
	df, err := dexfile.Parse(b.Bytes())
	require.NoError(t, err)

	d := encval.NewDecoder(0)
	_, err = d.DecodeAnnotationItem(df, good)
	require.NoError(t, err)
	_, err = d.DecodeAnnotationItem(df, bad)
	require.Error(t, err)
	assert.Equal(t, 1, d.Annotations.Len())
	assert.Zero(t, d.Arrays.Len())

	pos, err := d.DecodeAnnotationItem(df, good)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), pos, "freed slots are reused")
	assert.Empty(t, d.Annotations.At(pos).Elements)
}

func TestFailedArrayLeavesPoolsUnchanged(t *testing.T) {
	d := encval.NewDecoder(0)
	in := dextest.EncodedArray(dextest.Array(dextest.Value(dextest.VInt, 1)), dextest.Value(0x05, 1))
	_, err := d.DecodeArray(dexfmt.NewStream(in))
	require.Error(t, err)
	assert.Zero(t, d.Arrays.Len())
}

func TestArenaTruncate(t *testing.T) {
	var a encval.Arena[encval.ArrayRecord]
	for i := 0; i < 300; i++ {
		a.Append(encval.ArrayRecord{Values: []encval.Value{{Type: encval.TypeNull}}})
	}
	a.Truncate(10)
	assert.Equal(t, 10, a.Len())
	assert.Nil(t, a.At(10))
	_, p := a.Reserve()
	assert.Empty(t, p.Values, "reused slot starts empty")

	a.Truncate(50)
	assert.Equal(t, 11, a.Len(), "truncating past the end is a no-op")
}
