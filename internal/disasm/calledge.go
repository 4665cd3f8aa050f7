package disasm

import "fmt"

// Root provenance labels for a function's first argument. JNI exports
// receive JNIEnv* in X0; JNI_OnLoad receives JavaVM*.
const (
	RootJNIEnv = "JNIEnv"
	RootJavaVM = "JavaVM"
)

// CallEdge represents a call site extracted from disassembly.
type CallEdge struct {
	FromPC     uint64 `json:"from_pc"`
	Kind       string `json:"kind"`                // "bl", "blr" or "br"
	TargetPC   uint64 `json:"target_pc,omitempty"` // resolved VA for bl
	TargetName string `json:"target_name,omitempty"`
	Reg        string `json:"reg,omitempty"` // register for blr/br (e.g. "X8")
	Via        string `json:"via,omitempty"` // provenance: "JNIEnv->FindClass", ""
}

// Callee returns the best available name for the call target.
func (e CallEdge) Callee() string {
	switch {
	case e.TargetName != "":
		return e.TargetName
	case e.Via != "":
		return e.Via
	case e.Kind == "bl":
		return fmt.Sprintf("0x%x", e.TargetPC)
	}
	return ""
}

// RegDef records the last definition of a register.
type RegDef struct {
	Annotation string // e.g. "JNIEnv.functions" or "JNIEnv->FindClass"
	Age        int    // instructions since definition
}

// RegTracker tracks last-def provenance for GP registers X0-X30.
// With a window w > 0, definitions older than w instructions expire;
// w <= 0 keeps them until killed.
type RegTracker struct {
	defs [31]RegDef // X0..X30
	w    int
}

// NewRegTracker creates a tracker with the given window size.
func NewRegTracker(w int) *RegTracker {
	return &RegTracker{w: w}
}

// Reset clears all tracked definitions. Call between functions.
func (rt *RegTracker) Reset() {
	for i := range rt.defs {
		rt.defs[i] = RegDef{}
	}
}

// Tick ages all definitions by 1 and expires those beyond the window.
func (rt *RegTracker) Tick() {
	if rt.w <= 0 {
		return
	}
	for i := range rt.defs {
		if rt.defs[i].Annotation != "" {
			rt.defs[i].Age++
			if rt.defs[i].Age > rt.w {
				rt.defs[i] = RegDef{}
			}
		}
	}
}

// Define records that register rd was defined with the given annotation.
// An empty annotation kills rd.
func (rt *RegTracker) Define(rd int, annotation string) {
	if rd < 0 || rd > 30 {
		return
	}
	rt.defs[rd] = RegDef{Annotation: annotation}
}

// Lookup returns the annotation for register rd, or "" if expired/unknown.
// Register 31 (SP/XZR) is never tracked.
func (rt *RegTracker) Lookup(rd int) string {
	if rd < 0 || rd > 30 {
		return ""
	}
	return rt.defs[rd].Annotation
}

// Kill clears the definition for a register.
func (rt *RegTracker) Kill(rd int) { rt.Define(rd, "") }

// Clobber kills the registers a call may overwrite under AAPCS64:
// X0-X18 and the link register. X19-X28 survive calls.
func (rt *RegTracker) Clobber() {
	for r := 0; r <= 18; r++ {
		rt.Kill(r)
	}
	rt.Kill(30)
}

// isBL detects ARM64 BL (branch with link) instructions.
// Encoding: 1 | 00101 | imm26
// Mask: 0xFC000000, Value: 0x94000000
// Returns the target address (sign-extended imm26 * 4 + PC).
func isBL(raw uint32, pc uint64) (target uint64, ok bool) {
	if raw&0xFC000000 != 0x94000000 {
		return 0, false
	}
	offset := signExtend(raw&0x03FFFFFF, 26) * 4
	return uint64(int64(pc) + int64(offset)), true
}

// isBLR detects BLR Xn. Mask: 0xFFFFFC1F, Value: 0xD63F0000.
func isBLR(raw uint32) (rn int, ok bool) {
	if raw&0xFFFFFC1F != 0xD63F0000 {
		return 0, false
	}
	return int((raw >> 5) & 0x1F), true
}

// isBR detects BR Xn, the tail-call form. Mask: 0xFFFFFC1F, Value: 0xD61F0000.
func isBR(raw uint32) (rn int, ok bool) {
	if raw&0xFFFFFC1F != 0xD61F0000 {
		return 0, false
	}
	return int((raw >> 5) & 0x1F), true
}

// isMOVReg detects MOV Xd, Xm (ORR Xd, XZR, Xm).
// Mask: 0xFFE0FFE0, Value: 0xAA0003E0.
func isMOVReg(raw uint32) (rd, rm int, ok bool) {
	if raw&0xFFE0FFE0 != 0xAA0003E0 {
		return 0, 0, false
	}
	return int(raw & 0x1F), int((raw >> 16) & 0x1F), true
}

// dstRegOfInst returns the destination register of a data-processing or load
// instruction, or -1 if not detected. Used by the register tracker to know
// which register an instruction overwrites.
func dstRegOfInst(raw uint32) int {
	switch {
	case raw&0xFFC00000 == 0xF9400000, // LDR X64 unsigned offset
		raw&0xFFC00000 == 0xB9400000, // LDR W32 unsigned offset
		raw&0xFFE00C00 == 0xF8400000, // LDUR X64
		raw&0xFFE00C00 == 0xB8400000, // LDUR W32
		raw&0xFFE00C00 == 0xF8600800, // LDR X64 register offset
		raw&0xFF000000 == 0x91000000, // ADD X64 immediate
		raw&0xFF000000 == 0xD1000000, // SUB X64 immediate
		raw&0xFF800000 == 0xD2800000, // MOVZ X
		raw&0xFF800000 == 0xF2800000, // MOVK X
		raw&0xFF800000 == 0x92800000, // MOVN X
		raw&0x9F000000 == 0x90000000, // ADRP
		raw&0x9F000000 == 0x10000000, // ADR
		raw&0xFFE0FFE0 == 0xAA0003E0: // MOV X
		return int(raw & 0x1F)
	}
	return -1
}

// interfaceLoad resolves LDR Xt, [Xn, #off] through the JNIEnv and
// JavaVM pointer chains: the root pointer's first word is its function
// table, and each table slot holds one function.
func interfaceLoad(base string, off int) string {
	switch base {
	case RootJNIEnv, RootJavaVM:
		if off == 0 {
			return base + ".functions"
		}
	case RootJNIEnv + ".functions":
		if name := JNIEnvFunc(off); name != "" {
			return RootJNIEnv + "->" + name
		}
	case RootJavaVM + ".functions":
		if name := JavaVMFunc(off); name != "" {
			return RootJavaVM + "->" + name
		}
	}
	return ""
}

// ExtractCallEdges scans instructions for BL, BLR and BR call sites.
// root labels X0 at entry (RootJNIEnv, RootJavaVM or ""); register
// copies and table loads propagate it so indirect calls through the JNI
// function tables are named. symbols resolves BL target addresses.
func ExtractCallEdges(insts []Inst, symbols SymbolLookup, root string, w int) []CallEdge {
	rt := NewRegTracker(w)
	rt.Define(0, root)
	var edges []CallEdge

	for _, inst := range insts {
		if target, ok := isBL(inst.Raw, inst.Addr); ok {
			e := CallEdge{FromPC: inst.Addr, Kind: "bl", TargetPC: target}
			if symbols != nil {
				if name, found := symbols(target); found {
					e.TargetName = name
				}
			}
			edges = append(edges, e)
			rt.Clobber()
			rt.Tick()
			continue
		}
		if rn, ok := isBLR(inst.Raw); ok {
			edges = append(edges, CallEdge{
				FromPC: inst.Addr,
				Kind:   "blr",
				Reg:    fmt.Sprintf("X%d", rn),
				Via:    rt.Lookup(rn),
			})
			rt.Clobber()
			rt.Tick()
			continue
		}
		if rn, ok := isBR(inst.Raw); ok {
			edges = append(edges, CallEdge{
				FromPC: inst.Addr,
				Kind:   "br",
				Reg:    fmt.Sprintf("X%d", rn),
				Via:    rt.Lookup(rn),
			})
			rt.Tick()
			continue
		}

		rt.Tick()
		if rd, rm, ok := isMOVReg(inst.Raw); ok {
			rt.Define(rd, rt.Lookup(rm))
			continue
		}
		if base, off, ok := isLDR64UnsignedOffset(inst.Raw); ok {
			rt.Define(int(inst.Raw&0x1F), interfaceLoad(rt.Lookup(base), off))
			continue
		}
		if rd := dstRegOfInst(inst.Raw); rd >= 0 {
			rt.Kill(rd)
		}
	}
	return edges
}
