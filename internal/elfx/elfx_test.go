package elfx

import (
	"debug/elf"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexlens/internal/elfx/elftest"
)

func sampleLib() ([]byte, uint64) {
	b := elftest.New()
	b.Func("JNI_OnLoad", 0xD2800000, 0xD65F03C0) // MOV X0, #0; RET
	addr := b.Func("Java_com_example_Main_nativeHash", 0xD65F03C0)
	b.Import("strlen")
	b.Object("g_table")
	return b.Bytes(), addr
}

func TestNewFileValid(t *testing.T) {
	data, _ := sampleLib()
	ef, err := NewFile(data)
	require.NoError(t, err)
	defer ef.Close()
	assert.Equal(t, int64(len(data)), ef.FileSize())
}

func TestOpenFromPath(t *testing.T) {
	data, _ := sampleLib()
	p := filepath.Join(t.TempDir(), "libnative.so")
	require.NoError(t, os.WriteFile(p, data, 0644))

	ef, err := Open(p)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), ef.FileSize())
	require.NoError(t, ef.Close())
}

func TestOpenRejectsNonELF(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "notelf")
	require.NoError(t, os.WriteFile(tmp, []byte("not an ELF file at all"), 0644))
	_, err := Open(tmp)
	assert.ErrorIs(t, err, ErrNotELF)
}

func TestRejectsWrongMachineAndType(t *testing.T) {
	b := elftest.New()
	b.Machine = elf.EM_X86_64
	b.Func("f", 0xD65F03C0)
	_, err := NewFile(b.Bytes())
	assert.ErrorIs(t, err, ErrNotARM64)

	b = elftest.New()
	b.Type = elf.ET_EXEC
	b.Func("f", 0xD65F03C0)
	_, err = NewFile(b.Bytes())
	assert.ErrorIs(t, err, ErrNotShared)
}

func TestExports(t *testing.T) {
	data, addr := sampleLib()
	ef, err := NewFile(data)
	require.NoError(t, err)
	defer ef.Close()

	exps, err := ef.Exports()
	require.NoError(t, err)
	require.Len(t, exps, 2, "imports and data symbols are not exports")
	assert.Equal(t, "JNI_OnLoad", exps[0].Name)
	assert.Equal(t, "Java_com_example_Main_nativeHash", exps[1].Name)
	assert.Equal(t, addr, exps[1].Addr)
	assert.Equal(t, uint64(4), exps[1].Size)
}

func TestSymbolLookup(t *testing.T) {
	data, addr := sampleLib()
	ef, err := NewFile(data)
	require.NoError(t, err)
	defer ef.Close()

	va, size, err := ef.Symbol("Java_com_example_Main_nativeHash")
	require.NoError(t, err)
	assert.Equal(t, addr, va)
	assert.Equal(t, uint64(4), size)

	_, _, err = ef.Symbol("Java_missing")
	assert.ErrorIs(t, err, ErrNoSymbol)
}

func TestReadBytesAtVA(t *testing.T) {
	data, addr := sampleLib()
	ef, err := NewFile(data)
	require.NoError(t, err)
	defer ef.Close()

	off, err := ef.VAToFileOffset(addr)
	require.NoError(t, err)
	assert.Equal(t, addr, off, "single segment at vaddr 0")

	code, err := ef.ReadBytesAtVA(addr, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC0, 0x03, 0x5F, 0xD6}, code)

	_, err = ef.VAToFileOffset(0xDEADBEEFDEADBEEF)
	assert.ErrorIs(t, err, ErrNoSegment)
}

func FuzzNewFile(f *testing.F) {
	data, _ := sampleLib()
	f.Add(data)
	f.Add([]byte("\x7fELF\x02\x01\x01\x00\x00\x00\x00\x00\x00\x00\x00\x00"))
	f.Add([]byte("not an elf at all"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		ef, err := NewFile(data)
		if err != nil {
			return
		}
		ef.Exports()
		ef.Symbol("JNI_OnLoad")
		ef.ReadBytesAtVA(0, 16)
		ef.Close()
	})
}
