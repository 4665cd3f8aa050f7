package disasm

// Annotator returns an optional inline comment for an instruction.
// Empty string means no annotation. Receives the full Inst for access
// to both raw encoding and address.
type Annotator func(inst Inst) string

// isLDR64UnsignedOffset returns true if the raw 32-bit ARM64 instruction is
// LDR Xt, [Xn, #imm] (64-bit, unsigned offset). Returns the base register
// number and the byte offset.
//
// Encoding: size=11 | 111 | V=0 | 01 | opc=01 | imm12 | Rn | Rt
// Mask: 0xFFC00000, Value: 0xF9400000
func isLDR64UnsignedOffset(raw uint32) (baseReg int, byteOffset int, ok bool) {
	if raw&0xFFC00000 != 0xF9400000 {
		return 0, 0, false
	}
	rn := int((raw >> 5) & 0x1F)
	imm12 := int((raw >> 10) & 0xFFF)
	return rn, imm12 << 3, true // scaled by 8 for 64-bit
}

// EdgeAnnotator comments each call site with its resolved callee.
func EdgeAnnotator(edges []CallEdge) Annotator {
	byPC := make(map[uint64]string, len(edges))
	for _, e := range edges {
		if c := e.Callee(); c != "" {
			byPC[e.FromPC] = c
		}
	}
	return func(inst Inst) string { return byPC[inst.Addr] }
}

// SlotLoads returns the addresses of 64-bit loads from byte offset off of
// any base register. It finds table dispatch whose base pointer came
// through memory and escaped register tracking.
func SlotLoads(insts []Inst, off int) []uint64 {
	var out []uint64
	for _, inst := range insts {
		if _, o, ok := isLDR64UnsignedOffset(inst.Raw); ok && o == off {
			out = append(out, inst.Addr)
		}
	}
	return out
}
