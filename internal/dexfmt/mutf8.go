package dexfmt

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// DecodeMUTF8 converts DEX "modified UTF-8" to a Go string.
//
// MUTF-8 differs from UTF-8 in two ways: U+0000 is encoded as the two
// bytes C0 80, and supplementary characters are encoded as a UTF-16
// surrogate pair with each half written as its own three-byte sequence.
// The common all-ASCII case is returned without re-encoding.
func DecodeMUTF8(b []byte) (string, error) {
	ascii := true
	for _, c := range b {
		if c >= 0x80 || c == 0 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), nil
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == 0:
			return "", fmt.Errorf("mutf8: embedded NUL at %d", i)
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xe0 == 0xc0:
			if i+1 >= len(b) || b[i+1]&0xc0 != 0x80 {
				return "", fmt.Errorf("mutf8: bad 2-byte sequence at %d", i)
			}
			units = append(units, uint16(c&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case c&0xf0 == 0xe0:
			if i+2 >= len(b) || b[i+1]&0xc0 != 0x80 || b[i+2]&0xc0 != 0x80 {
				return "", fmt.Errorf("mutf8: bad 3-byte sequence at %d", i)
			}
			units = append(units, uint16(c&0x0f)<<12|uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			return "", fmt.Errorf("mutf8: invalid lead byte 0x%02x at %d", c, i)
		}
	}

	runes := utf16.Decode(units)
	out := make([]byte, 0, len(b))
	for _, r := range runes {
		out = utf8.AppendRune(out, r)
	}
	return string(out), nil
}
