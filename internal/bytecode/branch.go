package bytecode

import "encoding/binary"

// BranchInfo describes how control leaves an instruction.
type BranchInfo struct {
	Targets []int // code unit offsets, in payload order for switches
	Cond    bool  // true if execution may also fall through
	IsTerm  bool  // true for return and throw
}

// DecodeBranch returns the control transfer of in, or nil if in always
// falls through. insns is the whole method code, needed to read switch
// payloads. Switch targets whose payload lies outside insns are dropped.
func DecodeBranch(in Insn, insns []byte) *BranchInfo {
	op := in.Op
	switch {
	case in.IsPayload():
		return nil
	case op.IsReturn() || op == OpThrow:
		return &BranchInfo{IsTerm: true}
	case op == OpGoto:
		return &BranchInfo{Targets: []int{in.Off + int(int8(in.Unit(0)>>8))}}
	case op == OpGoto16:
		return &BranchInfo{Targets: []int{in.Off + int(int16(in.Unit(1)))}}
	case op == OpGoto32:
		return &BranchInfo{Targets: []int{in.Off + int(in.rel32())}}
	case op.IsIf():
		return &BranchInfo{Targets: []int{in.Off + int(int16(in.Unit(1)))}, Cond: true}
	case op.IsSwitch():
		return &BranchInfo{Targets: switchTargets(in, insns), Cond: true}
	}
	return nil
}

func (in Insn) rel32() int32 {
	return int32(uint32(in.Unit(1)) | uint32(in.Unit(2))<<16)
}

// switchTargets reads the payload referenced by a packed-switch or
// sparse-switch. Targets are relative to the switch instruction.
func switchTargets(in Insn, insns []byte) []int {
	le := binary.LittleEndian
	n := len(insns) / 2
	p := in.Off + int(in.rel32())
	if p < 0 || p+2 > n {
		return nil
	}
	size := int(le.Uint16(insns[2*p+2:]))
	var first int // code unit of the first target
	switch le.Uint16(insns[2*p:]) {
	case PackedSwitchPayload:
		first = p + 4
	case SparseSwitchPayload:
		first = p + 2 + size*2
	default:
		return nil
	}
	if first+size*2 > n {
		return nil
	}
	targets := make([]int, size)
	for i := range targets {
		targets[i] = in.Off + int(int32(le.Uint32(insns[2*(first+2*i):])))
	}
	return targets
}
