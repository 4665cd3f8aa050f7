// Package bytecode walks Dalvik instruction streams to collect the
// strings, fields and methods a method body references.
package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/zeebo/xxh3"

	"dexlens/internal/dexfmt"
)

var (
	ErrTruncated = errors.New("bytecode: instruction runs past end of code")
	ErrStepLimit = errors.New("bytecode: instruction limit exceeded")
)

// Insn is one decoded instruction or payload. Units aliases the code
// buffer.
type Insn struct {
	Off     int // code unit offset within the method
	Op      Opcode
	Payload uint16 // payload identifier, 0 for real instructions
	Units   []byte
}

// Unit returns code unit i of the instruction.
func (in Insn) Unit(i int) uint16 {
	return binary.LittleEndian.Uint16(in.Units[2*i:])
}

// Len returns the instruction length in code units.
func (in Insn) Len() int { return len(in.Units) / 2 }

// IsPayload reports a pseudo-instruction payload.
func (in Insn) IsPayload() bool { return in.Payload != 0 }

// Walk calls fn for every instruction and payload in insns, a
// little-endian code unit stream. maxSteps bounds the number of
// instructions; 0 selects the default.
func Walk(insns []byte, maxSteps int, fn func(Insn) error) error {
	if len(insns)%2 != 0 {
		return fmt.Errorf("%w: odd code length %d", ErrTruncated, len(insns))
	}
	if maxSteps <= 0 {
		maxSteps = dexfmt.DefaultMaxSteps
	}
	n := len(insns) / 2
	pc := 0
	for steps := 0; pc < n; steps++ {
		if steps >= maxSteps {
			return fmt.Errorf("%w: %d", ErrStepLimit, maxSteps)
		}
		unit := binary.LittleEndian.Uint16(insns[2*pc:])
		in := Insn{Off: pc, Op: Opcode(unit)}
		size := uint64(widths[in.Op])
		if in.Op == OpNop && unit != 0 {
			var err error
			if size, err = payloadSize(insns, pc, n, unit); err != nil {
				return err
			}
			if size > 0 {
				in.Payload = unit
			} else {
				size = 1
			}
		}
		if uint64(pc)+size > uint64(n) {
			return fmt.Errorf("%w: opcode 0x%02x at %d needs %d units, %d left",
				ErrTruncated, uint8(in.Op), pc, size, n-pc)
		}
		end := pc + int(size)
		in.Units = insns[2*pc : 2*end : 2*end]
		if err := fn(in); err != nil {
			return err
		}
		pc = end
	}
	return nil
}

// payloadSize returns the length in code units of the payload starting
// at pc, or 0 if unit is not a payload identifier.
func payloadSize(insns []byte, pc, n int, unit uint16) (uint64, error) {
	le := binary.LittleEndian
	need := func(units int) error {
		if pc+units > n {
			return fmt.Errorf("%w: payload 0x%04x header at %d", ErrTruncated, unit, pc)
		}
		return nil
	}
	switch unit {
	case PackedSwitchPayload:
		if err := need(2); err != nil {
			return 0, err
		}
		size := uint64(le.Uint16(insns[2*pc+2:]))
		return size*2 + 4, nil
	case SparseSwitchPayload:
		if err := need(2); err != nil {
			return 0, err
		}
		size := uint64(le.Uint16(insns[2*pc+2:]))
		return size*4 + 2, nil
	case FillArrayDataPayload:
		if err := need(4); err != nil {
			return 0, err
		}
		width := uint64(le.Uint16(insns[2*pc+2:]))
		size := uint64(le.Uint32(insns[2*pc+4:]))
		return (size*width+1)/2 + 4, nil
	}
	return 0, nil
}

// MethodBody is the reference summary of one method's code. The index
// sets are deduplicated and sorted ascending. Opcodes holds one entry per
// real instruction in encounter order; payloads contribute none.
type MethodBody struct {
	Strings        []uint32 `json:"strings"`
	AccessedFields []uint32 `json:"accessed_fields"`
	AssignedFields []uint32 `json:"assigned_fields"`
	InvokedMethods []uint32 `json:"invoked_methods"`
	Opcodes        []byte   `json:"opcodes"`
}

// Fingerprint hashes the opcode trace.
func (b *MethodBody) Fingerprint() uint64 {
	return xxh3.Hash(b.Opcodes)
}

// Scan walks insns and collects its references.
func Scan(insns []byte, maxSteps int) (*MethodBody, error) {
	b := &MethodBody{}
	err := Walk(insns, maxSteps, func(in Insn) error {
		if in.IsPayload() {
			return nil
		}
		b.Opcodes = append(b.Opcodes, byte(in.Op))
		switch {
		case in.Op == OpConstString:
			b.Strings = append(b.Strings, uint32(in.Unit(1)))
		case in.Op == OpConstStringJumbo:
			b.Strings = append(b.Strings, uint32(in.Unit(1))|uint32(in.Unit(2))<<16)
		case in.Op.IsFieldRead():
			b.AccessedFields = append(b.AccessedFields, uint32(in.Unit(1)))
		case in.Op.IsFieldWrite():
			b.AssignedFields = append(b.AssignedFields, uint32(in.Unit(1)))
		case in.Op.IsInvoke():
			b.InvokedMethods = append(b.InvokedMethods, uint32(in.Unit(1)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.Strings = sortedSet(b.Strings)
	b.AccessedFields = sortedSet(b.AccessedFields)
	b.AssignedFields = sortedSet(b.AssignedFields)
	b.InvokedMethods = sortedSet(b.InvokedMethods)
	return b, nil
}

func sortedSet(s []uint32) []uint32 {
	slices.Sort(s)
	return slices.Compact(s)
}
