package disasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLDR64UnsignedOffset(t *testing.T) {
	tests := []struct {
		name string
		raw  uint32
		base int
		off  int
		ok   bool
	}{
		{"ldr x8, [x0]", 0xF9400008, 0, 0, true},
		{"ldr x9, [x8, #0x30]", 0xF9401909, 8, 0x30, true},
		{"ldr x8, [x8, #0x538]", 0xF9429D08, 8, 0x538, true},
		{"ldr x8, [x19]", 0xF9400268, 19, 0, true},
		{"ldr w8, [x0]", 0xB9400008, 0, 0, false},
		{"nop", 0xD503201F, 0, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			base, off, ok := isLDR64UnsignedOffset(tc.raw)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.base, base)
				assert.Equal(t, tc.off, off)
			}
		})
	}
}

func TestSlotLoads(t *testing.T) {
	insts := seq(0x100,
		0xF94007E0, // LDR X0, [SP, #8]
		0xF9400008, // LDR X8, [X0]
		0xF9435D08, // LDR X8, [X8, #0x6b8]
		0xD63F0100, // BLR X8
	)
	assert.Equal(t, []uint64{0x108}, SlotLoads(insts, 0x6b8))
	assert.Equal(t, []uint64{0x104}, SlotLoads(insts, 0))
	assert.Empty(t, SlotLoads(insts, 0x30))
}
