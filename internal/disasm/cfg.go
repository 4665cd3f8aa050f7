package disasm

import "sort"

// BasicBlock represents a sequence of instructions with a single entry point.
type BasicBlock struct {
	ID      int
	Start   int    // index into FuncCFG.Insts (inclusive)
	End     int    // index into FuncCFG.Insts (exclusive)
	Succs   []Succ // successor edges
	IsEntry bool
	IsTerm  bool // ends with RET, BR, or a branch out of the function
}

// Succ describes a control-flow successor edge.
type Succ struct {
	BlockID int
	Cond    string // "" = unconditional, "T" = taken, "F" = fallthrough
}

// FuncCFG is a per-function control flow graph.
type FuncCFG struct {
	Name   string
	Blocks []BasicBlock
	Insts  []Inst
}

// BuildCFG constructs a control flow graph from a function's instruction
// stream. Leaders are index 0, in-function branch targets and the
// instruction after every branch; blocks run from one leader to the next
// and take their successors from their last instruction.
func BuildCFG(name string, insts []Inst) FuncCFG {
	cfg := FuncCFG{Name: name, Insts: insts}
	if len(insts) == 0 {
		return cfg
	}

	// Instructions are contiguous and 4 bytes wide, so a target maps to
	// an index arithmetically.
	start := insts[0].Addr
	indexOf := func(addr uint64) (int, bool) {
		if addr < start || (addr-start)%4 != 0 {
			return 0, false
		}
		idx := int((addr - start) / 4)
		return idx, idx < len(insts)
	}

	branches := make([]*BranchInfo, len(insts))
	leaders := map[int]bool{0: true}
	for i, inst := range insts {
		bi := DecodeBranch(inst.Raw, inst.Addr)
		branches[i] = bi
		if bi == nil {
			continue
		}
		if i+1 < len(insts) {
			leaders[i+1] = true
		}
		if !bi.Exits {
			if idx, ok := indexOf(bi.Target); ok {
				leaders[idx] = true
			}
		}
	}

	sorted := make([]int, 0, len(leaders))
	for idx := range leaders {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	blockOf := make(map[int]int, len(sorted))
	for i, s := range sorted {
		end := len(insts)
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		cfg.Blocks = append(cfg.Blocks, BasicBlock{ID: i, Start: s, End: end, IsEntry: s == 0})
		blockOf[s] = i
	}

	for i := range cfg.Blocks {
		blk := &cfg.Blocks[i]
		next, hasNext := blockOf[blk.End]
		bi := branches[blk.End-1]
		switch {
		case bi == nil:
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next})
			}
			continue
		case bi.Exits:
			blk.IsTerm = true
			continue
		}

		target := -1
		if idx, ok := indexOf(bi.Target); ok {
			target = blockOf[idx]
		}
		if bi.Cond {
			if target >= 0 {
				blk.Succs = append(blk.Succs, Succ{BlockID: target, Cond: "T"})
			}
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next, Cond: "F"})
			}
			continue
		}
		if target >= 0 {
			blk.Succs = append(blk.Succs, Succ{BlockID: target})
		} else {
			// Tail branch to another function.
			blk.IsTerm = true
		}
	}
	return cfg
}
