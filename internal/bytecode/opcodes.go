package bytecode

// Opcode is the low byte of an instruction's first code unit.
type Opcode uint8

const (
	OpNop              Opcode = 0x00
	OpReturnVoid       Opcode = 0x0e
	OpReturn           Opcode = 0x0f
	OpReturnWide       Opcode = 0x10
	OpReturnObject     Opcode = 0x11
	OpConstString      Opcode = 0x1a
	OpConstStringJumbo Opcode = 0x1b
	OpFillArrayData    Opcode = 0x26
	OpThrow            Opcode = 0x27
	OpGoto             Opcode = 0x28
	OpGoto16           Opcode = 0x29
	OpGoto32           Opcode = 0x2a
	OpPackedSwitch     Opcode = 0x2b
	OpSparseSwitch     Opcode = 0x2c
	OpIfEq             Opcode = 0x32
	OpIfLez            Opcode = 0x3d
	OpIgetFirst        Opcode = 0x52
	OpIgetLast         Opcode = 0x58
	OpIputFirst        Opcode = 0x59
	OpIputLast         Opcode = 0x5f
	OpSgetFirst        Opcode = 0x60
	OpSgetLast         Opcode = 0x66
	OpSputFirst        Opcode = 0x67
	OpSputLast         Opcode = 0x6d
	OpInvokeFirst      Opcode = 0x6e
	OpInvokeLast       Opcode = 0x72
	OpInvokeRangeFirst Opcode = 0x74
	OpInvokeRangeLast  Opcode = 0x78
)

// Pseudo-instruction payload identifiers: the full first code unit.
const (
	PackedSwitchPayload  uint16 = 0x0100
	SparseSwitchPayload  uint16 = 0x0200
	FillArrayDataPayload uint16 = 0x0300
)

// widths is the fixed instruction length in code units, indexed by
// opcode. Unused opcodes are 1.
var widths = [256]uint8{
	// 0x00 - 0x0f: nop, move family, move-result, return-void, return
	1, 1, 2, 3, 1, 2, 3, 1, 2, 3, 1, 1, 1, 1, 1, 1,
	// 0x10 - 0x1f: return-wide, return-object, const family, const-string, const-class, monitor, check-cast
	1, 1, 1, 2, 3, 2, 2, 3, 5, 2, 2, 3, 2, 1, 1, 2,
	// 0x20 - 0x2f: instance-of, array-length, new-*, filled-new-array, fill-array-data, throw, goto, switch, cmp
	2, 1, 2, 2, 3, 3, 3, 1, 1, 2, 3, 3, 3, 2, 2, 2,
	// 0x30 - 0x3f: cmp, if-test, if-testz, unused
	2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 1, 1,
	// 0x40 - 0x4f: unused, aget/aput
	1, 1, 1, 1, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
	// 0x50 - 0x5f: aput, iget, iput
	2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
	// 0x60 - 0x6f: sget, sput, invoke
	2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 3, 3,
	// 0x70 - 0x7f: invoke, unused, invoke/range, unused, unop
	3, 3, 3, 1, 3, 3, 3, 3, 3, 1, 1, 1, 1, 1, 1, 1,
	// 0x80 - 0x8f: unop
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	// 0x90 - 0x9f: binop
	2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
	// 0xa0 - 0xaf: binop
	2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
	// 0xb0 - 0xbf: binop/2addr
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	// 0xc0 - 0xcf: binop/2addr
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	// 0xd0 - 0xdf: binop/lit16, binop/lit8
	2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
	// 0xe0 - 0xef: binop/lit8, unused
	2, 2, 2, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	// 0xf0 - 0xff: unused, invoke-polymorphic, invoke-custom, const-method-handle, const-method-type
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 4, 4, 3, 3, 2, 2,
}

// Width returns the fixed length of op in code units.
func Width(op Opcode) int { return int(widths[op]) }

// IsFieldRead reports iget* and sget*.
func (op Opcode) IsFieldRead() bool {
	return (op >= OpIgetFirst && op <= OpIgetLast) || (op >= OpSgetFirst && op <= OpSgetLast)
}

// IsFieldWrite reports iput* and sput*.
func (op Opcode) IsFieldWrite() bool {
	return (op >= OpIputFirst && op <= OpIputLast) || (op >= OpSputFirst && op <= OpSputLast)
}

// IsInvoke reports invoke-kind and invoke-kind/range.
func (op Opcode) IsInvoke() bool {
	return (op >= OpInvokeFirst && op <= OpInvokeLast) || (op >= OpInvokeRangeFirst && op <= OpInvokeRangeLast)
}

// IsReturn reports return-void and return*.
func (op Opcode) IsReturn() bool { return op >= OpReturnVoid && op <= OpReturnObject }

// IsIf reports if-test and if-testz.
func (op Opcode) IsIf() bool { return op >= OpIfEq && op <= OpIfLez }

// IsGoto reports goto, goto/16 and goto/32.
func (op Opcode) IsGoto() bool { return op >= OpGoto && op <= OpGoto32 }

// IsSwitch reports packed-switch and sparse-switch.
func (op Opcode) IsSwitch() bool { return op == OpPackedSwitch || op == OpSparseSwitch }
