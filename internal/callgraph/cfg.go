package callgraph

import (
	"fmt"
	"sort"

	"github.com/zboralski/lattice"

	"dexlens/internal/bytecode"
	"dexlens/internal/session"
	"dexlens/internal/visit"
)

// Namer resolves the indices instructions carry.
type Namer interface {
	MethodName(i uint32) string
	StringAt(i uint32) string
}

// Options controls CFG construction.
type Options struct {
	Strings  bool // add const-string loads as call sites
	MaxSteps int  // instruction limit per method, 0 for the default
}

// BuildCFG builds a FuncCFG for every method with code in s whose full
// name satisfies match (nil matches all). Methods whose code cannot be
// walked are skipped and counted.
func BuildCFG(s *session.Session, match func(name string) bool, opts Options) (*lattice.CFGGraph, int, error) {
	b := &cfgBuilder{s: s, match: match, opts: opts, g: &lattice.CFGGraph{}}
	if err := s.Visit(b); err != nil {
		return nil, 0, err
	}
	return b.g, b.skipped, nil
}

type cfgBuilder struct {
	visit.Members
	s       *session.Session
	match   func(string) bool
	opts    Options
	g       *lattice.CFGGraph
	skipped int
}

func (b *cfgBuilder) VisitClass(visit.ClassInfo) (visit.MemberVisitor, visit.Capability) {
	return b, visit.CapMethods
}

func (b *cfgBuilder) VisitMethod(m visit.MethodInfo) {
	if !m.Method.HasCode() {
		return
	}
	name := b.s.MethodName(m.Method.Idx)
	if b.match != nil && !b.match(name) {
		return
	}
	code, err := b.s.File().CodeAt(m.Method.CodeOff)
	if err != nil {
		b.skipped++
		return
	}
	lcfg, _, err := BuildFuncCFG(name, code.Insns, b.s, b.opts)
	if err != nil {
		b.skipped++
		return
	}
	b.g.Funcs = append(b.g.Funcs, lcfg)
}

// BuildFuncCFG builds a single-method lattice.FuncCFG from a code unit
// stream. Returns the FuncCFG and the number of basic blocks.
//
// The algorithm:
//  1. Find block leaders: index 0, branch targets, instructions after branches.
//  2. Partition instructions into blocks by leaders.
//  3. Compute successor edges from each block's last instruction.
//
// Payload pseudo-instructions are not part of any block.
func BuildFuncCFG(name string, insns []byte, n Namer, opts Options) (*lattice.FuncCFG, int, error) {
	var insts []bytecode.Insn
	err := bytecode.Walk(insns, opts.MaxSteps, func(in bytecode.Insn) error {
		if !in.IsPayload() {
			insts = append(insts, in)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("callgraph: %s: %w", name, err)
	}
	lcfg := &lattice.FuncCFG{Name: name}
	if len(insts) == 0 {
		return lcfg, 0, nil
	}

	// Code unit offset → instruction index.
	offToIdx := make(map[int]int, len(insts))
	for i, in := range insts {
		offToIdx[in.Off] = i
	}
	branches := make([]*bytecode.BranchInfo, len(insts))

	// Pass 1: leaders.
	leaders := map[int]bool{0: true}
	for i, in := range insts {
		bi := bytecode.DecodeBranch(in, insns)
		branches[i] = bi
		if bi == nil {
			continue
		}
		if i+1 < len(insts) {
			leaders[i+1] = true
		}
		for _, t := range bi.Targets {
			if idx, ok := offToIdx[t]; ok {
				leaders[idx] = true
			}
		}
	}
	sorted := make([]int, 0, len(leaders))
	for idx := range leaders {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	// Pass 2: partition.
	leaderToBlock := make(map[int]int, len(sorted))
	for i, start := range sorted {
		end := len(insts)
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		lcfg.Blocks = append(lcfg.Blocks, &lattice.BasicBlock{ID: i, Start: start, End: end})
		leaderToBlock[start] = i
	}

	// Pass 3: successors and call sites.
	for _, blk := range lcfg.Blocks {
		for idx := blk.Start; idx < blk.End; idx++ {
			if cs, ok := callSite(insts[idx], idx, n, opts); ok {
				blk.Calls = append(blk.Calls, cs)
			}
		}

		next, hasNext := leaderToBlock[blk.End]
		bi := branches[blk.End-1]
		if bi == nil {
			if hasNext {
				blk.Succs = append(blk.Succs, lattice.Successor{BlockID: next})
			}
			continue
		}
		if bi.IsTerm {
			blk.Term = true
			continue
		}

		cond := ""
		if bi.Cond {
			cond = "T"
		}
		seen := make(map[int]bool)
		for _, t := range bi.Targets {
			idx, ok := offToIdx[t]
			if !ok {
				continue
			}
			if id := leaderToBlock[idx]; !seen[id] {
				seen[id] = true
				blk.Succs = append(blk.Succs, lattice.Successor{BlockID: id, Cond: cond})
			}
		}
		switch {
		case bi.Cond && hasNext:
			blk.Succs = append(blk.Succs, lattice.Successor{BlockID: next, Cond: "F"})
		case !bi.Cond && len(blk.Succs) == 0:
			// Goto outside the method.
			blk.Term = true
		}
	}
	return lcfg, len(lcfg.Blocks), nil
}

// callSite labels invokes with the callee and, when enabled, string loads
// with the quoted value.
func callSite(in bytecode.Insn, idx int, n Namer, opts Options) (lattice.CallSite, bool) {
	switch {
	case in.Op.IsInvoke():
		return lattice.CallSite{Offset: idx, Callee: n.MethodName(uint32(in.Unit(1)))}, true
	case opts.Strings && in.Op == bytecode.OpConstString:
		return lattice.CallSite{Offset: idx, Callee: quote(n.StringAt(uint32(in.Unit(1))))}, true
	case opts.Strings && in.Op == bytecode.OpConstStringJumbo:
		si := uint32(in.Unit(1)) | uint32(in.Unit(2))<<16
		return lattice.CallSite{Offset: idx, Callee: quote(n.StringAt(si))}, true
	}
	return lattice.CallSite{}, false
}

func quote(val string) string {
	if len(val) > 50 {
		val = val[:47] + "..."
	}
	return fmt.Sprintf("%q", val)
}
