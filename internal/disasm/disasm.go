// Package disasm provides ARM64 disassembly previews of JNI entry points
// in native libraries.
package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

// Inst is a decoded ARM64 instruction with address and raw bytes.
type Inst struct {
	Addr     uint64
	Raw      uint32
	Size     int // always 4 for ARM64
	Mnemonic string
	Operands string
	Text     string // full disassembly line
}

// SymbolLookup resolves an address to a symbolic name. Returns ("", false) if unknown.
type SymbolLookup func(addr uint64) (name string, ok bool)

// Options controls disassembly behavior.
type Options struct {
	BaseAddr uint64 // VA of the first byte in Data
	MaxSteps int    // maximum instructions to decode; 0 = 10M
}

const defaultMaxSteps = 10_000_000

func (o Options) effectiveMax() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return defaultMaxSteps
}

// Disassemble decodes ARM64 instructions from a byte region.
// Returns decoded instructions up to MaxSteps or end of data.
func Disassemble(data []byte, opts Options) []Inst {
	n := min(len(data)/4, opts.effectiveMax())
	result := make([]Inst, 0, n)
	for i := 0; i < n; i++ {
		off := i * 4
		result = append(result, decode(data[off:off+4], opts.BaseAddr+uint64(off)))
	}
	return result
}

func decode(word []byte, addr uint64) Inst {
	raw := binary.LittleEndian.Uint32(word)
	inst := Inst{Addr: addr, Raw: raw, Size: 4}
	dec, err := arm64asm.Decode(word)
	if err != nil {
		inst.Mnemonic = ".word"
		inst.Operands = fmt.Sprintf("0x%08x", raw)
		inst.Text = ".word " + inst.Operands
		return inst
	}
	inst.Text = dec.String()
	inst.Mnemonic, inst.Operands, _ = strings.Cut(inst.Text, " ")
	return inst
}

// Preview decodes a function entry. With a known symbol size the whole
// body up to maxInsts instructions is decoded; with size 0 decoding stops
// after the first RET or BR.
func Preview(data []byte, base, size uint64, maxInsts int) []Inst {
	if size > 0 && size < uint64(len(data)) {
		data = data[:size]
	}
	insts := Disassemble(data, Options{BaseAddr: base, MaxSteps: maxInsts})
	if size > 0 {
		return insts
	}
	for i, inst := range insts {
		if bi := DecodeBranch(inst.Raw, inst.Addr); bi != nil && bi.Exits {
			return insts[:i+1]
		}
	}
	return insts
}

// Format renders a slice of instructions as stable text output.
// Each line: <addr>  <hex bytes>  <disasm>  ; <comments>
// Annotators are checked in order; first non-empty result is used.
func Format(insts []Inst, lookup SymbolLookup, annotators ...Annotator) string {
	var b strings.Builder
	for _, inst := range insts {
		fmt.Fprintf(&b, "0x%08x  ", inst.Addr)
		fmt.Fprintf(&b, "%02x %02x %02x %02x  ",
			byte(inst.Raw), byte(inst.Raw>>8), byte(inst.Raw>>16), byte(inst.Raw>>24))
		b.WriteString(inst.Text)
		commented := false
		if lookup != nil {
			if name, ok := lookup(inst.Addr); ok {
				fmt.Fprintf(&b, "  ; <%s>", name)
				commented = true
			}
		}
		if !commented {
			for _, ann := range annotators {
				if s := ann(inst); s != "" {
					fmt.Fprintf(&b, "  ; %s", s)
					break
				}
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// MapLookup returns a SymbolLookup over a fixed address → name map.
func MapLookup(names map[uint64]string) SymbolLookup {
	return func(addr uint64) (string, bool) {
		name, ok := names[addr]
		return name, ok
	}
}
