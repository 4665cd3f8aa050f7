package jni

import (
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexlens/internal/dexfile/dextest"
	"dexlens/internal/elfx"
	"dexlens/internal/elfx/elftest"
	"dexlens/internal/session"
)

func sampleNatives(t *testing.T) []Native {
	t.Helper()
	buf, _ := dextest.Sample()
	s, err := session.Open(buf, session.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	natives, err := Natives(s)
	require.NoError(t, err)
	return natives
}

func library(t *testing.T, name string, b *elftest.Builder) Library {
	t.Helper()
	f, err := elfx.NewFile(b.Bytes())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return Library{Name: name, File: f}
}

var nativeHashBody = []uint32{
	0xAA0003F3, // MOV X19, X0
	0xF9400008, // LDR X8, [X0]
	0xF9429D08, // LDR X8, [X8, #0x538]
	0xD63F0100, // BLR X8
	0xD65F03C0, // RET
}

func TestNatives(t *testing.T) {
	natives := sampleNatives(t)
	_, id := dextest.Sample()
	require.Len(t, natives, 1)
	n := natives[0]
	assert.Equal(t, id.NativeHash, n.Method)
	assert.Equal(t, "Lcom/example/Main;->nativeHash(I)J", n.Signature)
	assert.Equal(t, "Lcom/example/Main;", n.Class)
	assert.Equal(t, "nativeHash", n.Name)
	assert.Equal(t, "I", n.Params)
}

func TestResolveShortName(t *testing.T) {
	b := elftest.New()
	addr := b.Func("Java_com_example_Main_nativeHash", nativeHashBody...)
	b.Func("JNI_OnLoad",
		0xF94007E0, // LDR X0, [SP, #8]
		0xF9400008, // LDR X8, [X0]
		0xF9435D08, // LDR X8, [X8, #0x6b8]
		0xD63F0100, // BLR X8
		0xD65F03C0, // RET
	)
	b.Func("Java_com_example_Gone_missing", 0xD65F03C0)
	b.Func("Java_bad_0zz", 0xD65F03C0)
	b.Func("helper", 0xD65F03C0)
	lib := library(t, "libnative.so", b)

	rep, err := NewResolver(log.NewNopLogger(), 0).Resolve(sampleNatives(t), []Library{lib})
	require.NoError(t, err)

	require.Len(t, rep.Bound, 1)
	bd := rep.Bound[0]
	assert.False(t, bd.Long)
	assert.Equal(t, "libnative.so", bd.Lib)
	assert.Equal(t, addr, bd.Addr)
	assert.Len(t, bd.Insts, len(nativeHashBody))
	require.Len(t, bd.Calls, 1)
	assert.Equal(t, "JNIEnv->NewStringUTF", bd.Calls[0].Callee())
	assert.Empty(t, rep.Unbound)

	require.Len(t, rep.Orphans, 2)
	assert.Equal(t, "Java_bad_0zz", rep.Orphans[0].Export.Name)
	assert.Empty(t, rep.Orphans[0].Symbol.Class, "malformed names keep a zero symbol")
	assert.Equal(t, "Java_com_example_Gone_missing", rep.Orphans[1].Export.Name)
	assert.Equal(t, "Lcom/example/Gone;", rep.Orphans[1].Symbol.Class)

	require.Len(t, rep.OnLoads, 1)
	assert.Equal(t, OnLoad, rep.OnLoads[0].Symbol)
	assert.True(t, rep.Registers)
}

func TestResolveLongNameAcrossLibraries(t *testing.T) {
	first := elftest.New()
	first.Func("JNI_OnLoad", 0xD2800000, 0xD65F03C0) // MOV X0, #0; RET
	second := elftest.New()
	second.Func("Java_com_example_Main_nativeHash", 0xD65F03C0)
	second.Func("Java_com_example_Main_nativeHash__I", nativeHashBody...)
	libs := []Library{library(t, "liba.so", first), library(t, "libb.so", second)}

	rep, err := NewResolver(nil, 2).Resolve(sampleNatives(t), libs)
	require.NoError(t, err)

	require.Len(t, rep.Bound, 1)
	bd := rep.Bound[0]
	assert.True(t, bd.Long)
	assert.Equal(t, "libb.so", bd.Lib)
	assert.Equal(t, "Java_com_example_Main_nativeHash__I", bd.Symbol)
	assert.Len(t, bd.Insts, 2, "preview limit")
	assert.Empty(t, bd.Calls)

	require.Len(t, rep.Orphans, 1, "the unused short name")
	assert.Equal(t, "Java_com_example_Main_nativeHash", rep.Orphans[0].Export.Name)
	assert.False(t, rep.Registers)
}

func TestResolveUnbound(t *testing.T) {
	b := elftest.New()
	b.Func("unrelated", 0xD65F03C0)
	rep, err := NewResolver(nil, 0).Resolve(sampleNatives(t), []Library{library(t, "libx.so", b)})
	require.NoError(t, err)
	assert.Empty(t, rep.Bound)
	require.Len(t, rep.Unbound, 1)
	assert.Equal(t, "nativeHash", rep.Unbound[0].Name)
	assert.Empty(t, rep.Orphans)
	assert.Empty(t, rep.OnLoads)

	rep, err = NewResolver(nil, 0).Resolve(sampleNatives(t), nil)
	require.NoError(t, err)
	assert.Len(t, rep.Unbound, 1)
}
