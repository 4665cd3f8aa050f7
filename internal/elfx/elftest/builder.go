// Package elftest builds minimal ARM64 ELF shared objects for tests: one
// PT_LOAD segment, a .text section and a dynamic symbol table.
package elftest

import (
	"debug/elf"
	"encoding/binary"
)

const textOff = 0x100

// Builder accumulates functions placed back to back in .text.
type Builder struct {
	Machine elf.Machine
	Type    elf.Type
	text    []byte
	syms    []sym
}

type sym struct {
	name  string
	off   uint64
	size  uint64
	info  uint8
	undef bool
}

// New returns a builder for an AArch64 shared object.
func New() *Builder {
	return &Builder{Machine: elf.EM_AARCH64, Type: elf.ET_DYN}
}

// Func appends code as a global function and returns its address.
func (b *Builder) Func(name string, insns ...uint32) uint64 {
	addr := uint64(textOff + len(b.text))
	for _, in := range insns {
		b.text = binary.LittleEndian.AppendUint32(b.text, in)
	}
	b.syms = append(b.syms, sym{
		name: name,
		off:  addr,
		size: uint64(4 * len(insns)),
		info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
	})
	return addr
}

// Import adds an undefined function symbol.
func (b *Builder) Import(name string) {
	b.syms = append(b.syms, sym{name: name, info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC), undef: true})
}

// Object adds a defined data symbol at the start of .text.
func (b *Builder) Object(name string) {
	b.syms = append(b.syms, sym{name: name, off: textOff, info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT)})
}

// Bytes lays out the image.
//
// Sections: 0 null, 1 .text, 2 .dynstr, 3 .dynsym, 4 .shstrtab.
func (b *Builder) Bytes() []byte {
	le := binary.LittleEndian
	align8 := func(n int) int { return (n + 7) &^ 7 }

	dynstr := []byte{0}
	dynsym := make([]byte, 24) // null symbol
	for _, s := range b.syms {
		name := uint32(len(dynstr))
		dynstr = append(append(dynstr, s.name...), 0)
		shndx := uint16(1)
		if s.undef {
			shndx = uint16(elf.SHN_UNDEF)
		}
		dynsym = le.AppendUint32(dynsym, name)
		dynsym = append(dynsym, s.info, 0)
		dynsym = le.AppendUint16(dynsym, shndx)
		dynsym = le.AppendUint64(dynsym, s.off)
		dynsym = le.AppendUint64(dynsym, s.size)
	}
	shstr := []byte{0}
	shName := func(n string) uint32 {
		off := uint32(len(shstr))
		shstr = append(append(shstr, n...), 0)
		return off
	}
	nText, nDynstr, nDynsym, nShstr := shName(".text"), shName(".dynstr"), shName(".dynsym"), shName(".shstrtab")

	dynstrOff := align8(textOff + len(b.text))
	dynsymOff := align8(dynstrOff + len(dynstr))
	shstrOff := dynsymOff + len(dynsym)
	shOff := align8(shstrOff + len(shstr))
	total := shOff + 5*64

	out := make([]byte, total)
	// ELF header.
	copy(out, elf.ELFMAG)
	out[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	out[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	out[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	le.PutUint16(out[16:], uint16(b.Type))
	le.PutUint16(out[18:], uint16(b.Machine))
	le.PutUint32(out[20:], uint32(elf.EV_CURRENT))
	le.PutUint64(out[32:], 64)            // e_phoff
	le.PutUint64(out[40:], uint64(shOff)) // e_shoff
	le.PutUint16(out[52:], 64)            // e_ehsize
	le.PutUint16(out[54:], 56)            // e_phentsize
	le.PutUint16(out[56:], 1)             // e_phnum
	le.PutUint16(out[58:], 64)            // e_shentsize
	le.PutUint16(out[60:], 5)             // e_shnum
	le.PutUint16(out[62:], 4)             // e_shstrndx

	// PT_LOAD covering the whole image at vaddr 0.
	ph := out[64:]
	le.PutUint32(ph[0:], uint32(elf.PT_LOAD))
	le.PutUint32(ph[4:], uint32(elf.PF_R|elf.PF_X))
	le.PutUint64(ph[32:], uint64(total)) // p_filesz
	le.PutUint64(ph[40:], uint64(total)) // p_memsz
	le.PutUint64(ph[48:], 0x1000)

	copy(out[textOff:], b.text)
	copy(out[dynstrOff:], dynstr)
	copy(out[dynsymOff:], dynsym)
	copy(out[shstrOff:], shstr)

	section := func(i int, name uint32, typ elf.SectionType, flags elf.SectionFlag, off, size int, link, info uint32, entsize uint64) {
		sh := out[shOff+64*i:]
		le.PutUint32(sh[0:], name)
		le.PutUint32(sh[4:], uint32(typ))
		le.PutUint64(sh[8:], uint64(flags))
		if flags&elf.SHF_ALLOC != 0 {
			le.PutUint64(sh[16:], uint64(off))
		}
		le.PutUint64(sh[24:], uint64(off))
		le.PutUint64(sh[32:], uint64(size))
		le.PutUint32(sh[40:], link)
		le.PutUint32(sh[44:], info)
		le.PutUint64(sh[48:], 1)
		le.PutUint64(sh[56:], entsize)
	}
	section(1, nText, elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, textOff, len(b.text), 0, 0, 0)
	section(2, nDynstr, elf.SHT_STRTAB, elf.SHF_ALLOC, dynstrOff, len(dynstr), 0, 0, 0)
	section(3, nDynsym, elf.SHT_DYNSYM, elf.SHF_ALLOC, dynsymOff, len(dynsym), 2, 1, 24)
	section(4, nShstr, elf.SHT_STRTAB, 0, shstrOff, len(shstr), 0, 0, 0)
	return out
}
