package disasm

// BranchInfo describes a decoded branch instruction.
type BranchInfo struct {
	Kind   string // mnemonic of the encoding class: "b", "b.cond", "cbz", ...
	Target uint64 // absolute target, 0 when Exits
	Cond   bool   // falls through when not taken
	Exits  bool   // RET or BR: control leaves the function
}

// pcRel is one PC-relative branch encoding: raw&mask == match, with a
// signed word offset of bits width starting at shift.
type pcRel struct {
	kind        string
	mask, match uint32
	shift, bits uint
	cond        bool
}

var pcRelBranches = [...]pcRel{
	{"b", 0xFC000000, 0x14000000, 0, 26, false},     // 000101 imm26
	{"b.cond", 0xFF000010, 0x54000000, 5, 19, true}, // 01010100 imm19 0 cond
	{"cbz", 0x7F000000, 0x34000000, 5, 19, true},    // sf 0110100 imm19 Rt
	{"cbnz", 0x7F000000, 0x35000000, 5, 19, true},   // sf 0110101 imm19 Rt
	{"tbz", 0x7F000000, 0x36000000, 5, 14, true},    // b5 0110110 b40 imm14 Rt
	{"tbnz", 0x7F000000, 0x37000000, 5, 14, true},   // b5 0110111 b40 imm14 Rt
}

// DecodeBranch decodes raw at pc as a block-ending branch. It returns nil
// for everything else, including BL and BLR, which return to the next
// instruction.
func DecodeBranch(raw uint32, pc uint64) *BranchInfo {
	if raw&0xFFFFFC1F == 0xD65F0000 { // RET {Xn}
		return &BranchInfo{Kind: "ret", Exits: true}
	}
	if _, ok := isBR(raw); ok {
		return &BranchInfo{Kind: "br", Exits: true}
	}
	for _, e := range pcRelBranches {
		if raw&e.mask != e.match {
			continue
		}
		imm := (raw >> e.shift) & (1<<e.bits - 1)
		off := int64(signExtend(imm, int(e.bits))) * 4
		return &BranchInfo{Kind: e.kind, Target: uint64(int64(pc) + off), Cond: e.cond}
	}
	return nil
}

// signExtend widens the low bits of val as a two's complement value.
func signExtend(val uint32, bits int) int32 {
	shift := 32 - bits
	return int32(val<<shift) >> shift
}

// IsBranchTerminator reports whether raw ends a basic block.
func IsBranchTerminator(raw uint32) bool {
	return DecodeBranch(raw, 0) != nil
}
