package bytecode

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexlens/internal/dexfile"
)

func units(us ...uint16) []byte {
	out := make([]byte, 0, 2*len(us))
	for _, u := range us {
		out = binary.LittleEndian.AppendUint16(out, u)
	}
	return out
}

func TestScanClassification(t *testing.T) {
	code := units(
		0x001a, 42, // const-string v0, string@42
		0x001b, 0x0001, 0x0002, // const-string/jumbo v0, string@0x20001
		0x0152, 7, // iget v1, v0, field@7
		0x0060, 8, // sget v0, field@8
		0x0159, 9, // iput v1, v0, field@9
		0x006d, 10, // sput-short v0, field@10
		0x106e, 3, 0x0000, // invoke-virtual {v0}, method@3
		0x0178, 4, 0x0000, // invoke-interface/range {v0}, method@4
		0x0052, 7, // iget again, deduplicated
		0x000e, // return-void
	)
	b, err := Scan(code, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{42, 0x20001}, b.Strings)
	assert.Equal(t, []uint32{7, 8}, b.AccessedFields)
	assert.Equal(t, []uint32{9, 10}, b.AssignedFields)
	assert.Equal(t, []uint32{3, 4}, b.InvokedMethods)
	assert.Equal(t, []byte{0x1a, 0x1b, 0x52, 0x60, 0x59, 0x6d, 0x6e, 0x78, 0x52, 0x0e}, b.Opcodes)
}

func TestScanSortsSets(t *testing.T) {
	b, err := Scan(units(0x006e, 9, 0, 0x006e, 2, 0, 0x006e, 9, 0), 0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 9}, b.InvokedMethods)
}

func TestPackedSwitchPayloadSkipped(t *testing.T) {
	const targets = 3
	code := units(0x001a, 42) // const-string v0, #42
	code = append(code, units(PackedSwitchPayload, targets, 0, 0)...)
	for i := 0; i < targets; i++ {
		// Target words that would decode as invoke opcodes if misread.
		code = append(code, units(0x006e, 0x006e)...)
	}
	code = append(code, units(0x0070, 5, 0)...) // invoke-direct method@5

	b, err := Scan(code, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1a, 0x70}, b.Opcodes, "payload contributes no trace entries")
	assert.Equal(t, []uint32{5}, b.InvokedMethods)
	assert.Equal(t, []uint32{42}, b.Strings)
}

func TestSparseSwitchAndFillArrayPayloads(t *testing.T) {
	code := units(SparseSwitchPayload, 2, 0x1a, 0x1a, 0x1a, 0x1a, 0x1a, 0x1a, 0x1a, 0x1a)
	// Five 1-byte elements: (5*1+1)/2 = 3 data units.
	code = append(code, units(FillArrayDataPayload, 1, 5, 0, 0x1a1a, 0x1a1a, 0x001a)...)
	code = append(code, units(0x000e)...)

	var kinds []uint16
	err := Walk(code, 0, func(in Insn) error {
		kinds = append(kinds, in.Payload)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint16{SparseSwitchPayload, FillArrayDataPayload, 0}, kinds)

	b, err := Scan(code, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0e}, b.Opcodes)
	assert.Empty(t, b.Strings)
}

func TestTruncated(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"short instruction", units(0x006e, 1)},
		{"jumbo string", units(0x001b, 1)},
		{"packed payload body", units(PackedSwitchPayload, 4, 0, 0, 1, 2)},
		{"packed payload header", units(PackedSwitchPayload)},
		{"fill array header", units(FillArrayDataPayload, 1)},
		{"fill array huge", units(FillArrayDataPayload, 4, 0xffff, 0xffff)},
		{"odd length", []byte{0x0e, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan(tt.code, 0)
			assert.ErrorIs(t, err, ErrTruncated)
		})
	}
}

func TestUnusedOpcodesAdvanceOne(t *testing.T) {
	b, err := Scan(units(0x003e, 0x0073, 0x00e3, 0x000e), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x3e, 0x73, 0xe3, 0x0e}, b.Opcodes)
}

func TestNopWithUnknownIdentIsNop(t *testing.T) {
	b, err := Scan(units(0x0400, 0x000e), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x0e}, b.Opcodes)
}

func TestStepLimit(t *testing.T) {
	_, err := Scan(units(0, 0, 0, 0), 3)
	assert.ErrorIs(t, err, ErrStepLimit)
}

func TestFingerprint(t *testing.T) {
	a, err := Scan(units(0x001a, 1, 0x000e), 0)
	require.NoError(t, err)
	b, err := Scan(units(0x001a, 2, 0x000e), 0)
	require.NoError(t, err)
	c, err := Scan(units(0x000e, 0x000e), 0)
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "operands do not affect the trace")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestCacheScansOnce(t *testing.T) {
	loads := 0
	load := func(off uint32) (*dexfile.Code, error) {
		loads++
		return &dexfile.Code{Off: off, Insns: units(0x006e, 3, 0, 0x000e)}, nil
	}
	c := NewCache(0)
	b1, err := c.Get(7, 0x100, load)
	require.NoError(t, err)
	b2, err := c.Get(7, 0x100, load)
	require.NoError(t, err)
	assert.Same(t, b1, b2)
	assert.Equal(t, 1, c.Scans())
	assert.Equal(t, 1, loads)

	got, ok := c.Lookup(7)
	assert.True(t, ok)
	assert.Same(t, b1, got)
}

func TestCacheKeepsFailures(t *testing.T) {
	load := func(off uint32) (*dexfile.Code, error) {
		return &dexfile.Code{Off: off, Insns: units(0x006e)}, nil
	}
	c := NewCache(0)
	_, err := c.Get(1, 0x10, load)
	assert.ErrorIs(t, err, ErrTruncated)
	_, err = c.Get(1, 0x10, load)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, 1, c.Scans())
	_, ok := c.Lookup(1)
	assert.False(t, ok)
}
