package disasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBranch(t *testing.T) {
	tests := []struct {
		name   string
		raw    uint32
		pc     uint64
		target uint64
		cond   bool
		exits  bool
	}{
		{"ret", 0xD65F03C0, 0x1000, 0, false, true},
		{"br x16", 0xD61F0200, 0x1000, 0, false, true},
		{"b forward", 0x14000000 | 0x40, 0x1000, 0x1100, false, false},
		{"b backward", 0x14000000 | (0x03FFFFFF - 3), 0x1000, 0x0FF0, false, false},
		{"b.eq", 0x54000000 | (8 << 5), 0x2000, 0x2020, true, false},
		{"cbz x0", 0xB4000000 | (0x10 << 5), 0x3000, 0x3040, true, false},
		{"cbnz w1", 0x35000000 | (2 << 5) | 1, 0x3000, 0x3008, true, false},
		{"tbz", 0x36000000 | (4 << 5), 0x4000, 0x4010, true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bi := DecodeBranch(tc.raw, tc.pc)
			require.NotNil(t, bi)
			assert.Equal(t, tc.target, bi.Target)
			assert.Equal(t, tc.cond, bi.Cond)
			assert.Equal(t, tc.exits, bi.Exits)
			assert.True(t, IsBranchTerminator(tc.raw))
		})
	}
}

func TestDecodeBranchKind(t *testing.T) {
	assert.Equal(t, "ret", DecodeBranch(0xD65F03C0, 0).Kind)
	assert.Equal(t, "br", DecodeBranch(0xD61F0200, 0).Kind)
	assert.Equal(t, "b.cond", DecodeBranch(0x54000000|(8<<5), 0).Kind)
	assert.Equal(t, "tbnz", DecodeBranch(0x37000000|(4<<5), 0).Kind)
}

func TestDecodeBranchNotBranch(t *testing.T) {
	assert.Nil(t, DecodeBranch(0x8B020020, 0x1000), "ADD X0, X1, X2")
	assert.Nil(t, DecodeBranch(0x94000100, 0x1000), "BL returns to the next instruction")
	assert.Nil(t, DecodeBranch(0xD63F0100, 0x1000), "BLR returns to the next instruction")
}

func TestSignExtend(t *testing.T) {
	tests := []struct {
		val  uint32
		bits int
		want int32
	}{
		{0x04, 19, 4},
		{0x7FFFF, 19, -1},
		{0x3FFF, 14, -1},
		{0x2000, 14, -8192},
		{0x03FFFFFE, 26, -2},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, signExtend(tc.val, tc.bits), "signExtend(0x%x, %d)", tc.val, tc.bits)
	}
}
