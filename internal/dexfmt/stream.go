// DEX data stream reader.
// Implements the little-endian fixed-width and LEB128 encodings used by the DEX format.
package dexfmt

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrStreamEOF     = errors.New("stream: unexpected end of data")
	ErrStreamOverrun = errors.New("stream: value too large")
	ErrOutOfBounds   = errors.New("stream: offset out of bounds")
)

// Stream reads DEX data from a borrowed buffer. It never copies the
// underlying bytes unless asked to with ReadBytes.
type Stream struct {
	data []byte
	pos  int
	end  int
}

// NewStream creates a stream over the given data.
func NewStream(data []byte) *Stream {
	return &Stream{data: data, pos: 0, end: len(data)}
}

// NewStreamAt creates a stream starting at offset within data.
// An offset past the end of data is an error rather than a clamp: DEX
// offsets that point outside the file are structural corruption.
func NewStreamAt(data []byte, offset int) (*Stream, error) {
	if offset < 0 || offset > len(data) {
		return nil, fmt.Errorf("%w: 0x%x (size 0x%x)", ErrOutOfBounds, offset, len(data))
	}
	return &Stream{data: data, pos: offset, end: len(data)}, nil
}

// Position returns the current read position.
func (s *Stream) Position() int { return s.pos }

// SetPosition sets the read position.
func (s *Stream) SetPosition(pos int) {
	if pos > s.end {
		pos = s.end
	}
	s.pos = pos
}

// Remaining returns bytes left to read.
func (s *Stream) Remaining() int { return s.end - s.pos }

// ReadByte reads a single byte.
func (s *Stream) ReadByte() (byte, error) {
	if s.pos >= s.end {
		return 0, ErrStreamEOF
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

// ReadBytes reads n bytes into a new slice.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	if n < 0 || s.pos+n > s.end {
		return nil, ErrStreamEOF
	}
	out := make([]byte, n)
	copy(out, s.data[s.pos:s.pos+n])
	s.pos += n
	return out, nil
}

// Slice returns the next n bytes without copying and advances past them.
func (s *Stream) Slice(n int) ([]byte, error) {
	if n < 0 || s.pos+n > s.end {
		return nil, ErrStreamEOF
	}
	out := s.data[s.pos : s.pos+n : s.pos+n]
	s.pos += n
	return out, nil
}

// ReadUint16 reads a little-endian uint16.
func (s *Stream) ReadUint16() (uint16, error) {
	if s.pos+2 > s.end {
		return 0, ErrStreamEOF
	}
	v := binary.LittleEndian.Uint16(s.data[s.pos:])
	s.pos += 2
	return v, nil
}

// ReadUint32 reads a little-endian uint32.
func (s *Stream) ReadUint32() (uint32, error) {
	if s.pos+4 > s.end {
		return 0, ErrStreamEOF
	}
	v := binary.LittleEndian.Uint32(s.data[s.pos:])
	s.pos += 4
	return v, nil
}

// ReadUint64 reads a little-endian uint64.
func (s *Stream) ReadUint64() (uint64, error) {
	if s.pos+8 > s.end {
		return 0, ErrStreamEOF
	}
	v := binary.LittleEndian.Uint64(s.data[s.pos:])
	s.pos += 8
	return v, nil
}

// LEB128 constants. DEX restricts LEB128 values to 32 bits, so at most
// five bytes are consumed.
const (
	lebDataBits = 7
	lebMore     = 0x80
	lebMask     = 0x7f
	lebMaxBytes = 5
)

// ReadULEB128 reads an unsigned LEB128 value.
//
// Encoding: each byte carries 7 bits of data, least significant group
// first. Bit 7 set means another byte follows.
func (s *Stream) ReadULEB128() (uint32, error) {
	var r uint32
	var shift uint
	for i := 0; i < lebMaxBytes; i++ {
		b, err := s.ReadByte()
		if err != nil {
			return 0, err
		}
		r |= uint32(b&lebMask) << shift
		if b&lebMore == 0 {
			return r, nil
		}
		shift += lebDataBits
	}
	return 0, ErrStreamOverrun
}

// ReadULEB128p1 reads a uleb128p1 value (encoded as value+1, so that
// NoIndex is representable in one byte).
func (s *Stream) ReadULEB128p1() (uint32, error) {
	v, err := s.ReadULEB128()
	return v - 1, err
}

// ReadSLEB128 reads a signed LEB128 value. The final byte's bit 6 is
// the sign bit.
func (s *Stream) ReadSLEB128() (int32, error) {
	var r int32
	var shift uint
	for i := 0; i < lebMaxBytes; i++ {
		b, err := s.ReadByte()
		if err != nil {
			return 0, err
		}
		r |= int32(b&lebMask) << shift
		shift += lebDataBits
		if b&lebMore == 0 {
			if shift < 32 && b&0x40 != 0 {
				r |= int32(-1) << shift
			}
			return r, nil
		}
	}
	return 0, ErrStreamOverrun
}

// ReadCString reads a null-terminated byte sequence and returns it
// without the terminator. The returned slice aliases the stream buffer.
func (s *Stream) ReadCString() ([]byte, error) {
	start := s.pos
	for s.pos < s.end {
		if s.data[s.pos] == 0 {
			str := s.data[start:s.pos]
			s.pos++ // skip null terminator
			return str, nil
		}
		s.pos++
	}
	return nil, fmt.Errorf("stream: unterminated string at offset 0x%x", start)
}

// Align advances position to the next alignment boundary.
func (s *Stream) Align(alignment int) {
	if alignment <= 0 {
		return
	}
	rem := s.pos % alignment
	if rem != 0 {
		s.pos += alignment - rem
	}
	if s.pos > s.end {
		s.pos = s.end
	}
}

// Skip advances the position by n bytes.
func (s *Stream) Skip(n int) error {
	if n < 0 || s.pos+n > s.end {
		return ErrStreamEOF
	}
	s.pos += n
	return nil
}
