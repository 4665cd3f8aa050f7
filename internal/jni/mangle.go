// Package jni binds native DEX methods to the exported symbols of ARM64
// shared libraries and previews their entry points.
package jni

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

const prefix = "Java_"

// ShortName returns the JNI symbol for a method without its argument
// signature. class is a type descriptor such as "Lcom/example/Main;".
func ShortName(class, method string) string {
	return prefix + escape(internalName(class)) + "_" + escape(method)
}

// LongName returns the overloaded JNI symbol. params is the argument part
// of a method descriptor without parentheses, such as "ILjava/lang/String;".
func LongName(class, method, params string) string {
	return ShortName(class, method) + "__" + escape(params)
}

func internalName(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// escape applies the JNI name escapes. '/' separates components and
// becomes '_'.
func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '/':
			b.WriteByte('_')
		case r == '_':
			b.WriteString("_1")
		case r == ';':
			b.WriteString("_2")
		case r == '[':
			b.WriteString("_3")
		case r < 0x80 && isAlnum(byte(r)):
			b.WriteRune(r)
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, "_0%04x_0%04x", hi, lo)
		default:
			fmt.Fprintf(&b, "_0%04x", r)
		}
	}
	return b.String()
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// Symbol is a demangled JNI export name.
type Symbol struct {
	Class  string // descriptor, "Lcom/example/Main;"
	Method string
	Params string // empty for the short form
	Long   bool
}

// Demangle parses a Java_ export name. It reports false for names that
// are not JNI symbols or carry malformed escapes.
func Demangle(sym string) (Symbol, bool) {
	rest, ok := strings.CutPrefix(sym, prefix)
	if !ok || rest == "" {
		return Symbol{}, false
	}
	var (
		parts []string // class components, then the method
		cur   []uint16
		long  bool
	)
	flush := func() {
		parts = append(parts, string(utf16.Decode(cur)))
		cur = cur[:0]
	}
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if c != '_' {
			if c >= 0x80 {
				return Symbol{}, false
			}
			cur = append(cur, uint16(c))
			continue
		}
		if i+1 >= len(rest) {
			return Symbol{}, false
		}
		switch n := rest[i+1]; n {
		case '1':
			cur = append(cur, '_')
			i++
		case '2':
			cur = append(cur, ';')
			i++
		case '3':
			cur = append(cur, '[')
			i++
		case '0':
			if i+6 > len(rest) {
				return Symbol{}, false
			}
			u, err := strconv.ParseUint(rest[i+2:i+6], 16, 16)
			if err != nil {
				return Symbol{}, false
			}
			cur = append(cur, uint16(u))
			i += 5
		case '_':
			if long {
				return Symbol{}, false
			}
			flush()
			long = true
			i++
		default:
			if long {
				cur = append(cur, '/')
			} else {
				flush()
			}
		}
	}
	var params string
	if long {
		params = string(utf16.Decode(cur))
	} else {
		flush()
	}
	if len(parts) < 2 {
		return Symbol{}, false
	}
	method := parts[len(parts)-1]
	class := strings.Join(parts[:len(parts)-1], "/")
	if class == "" || method == "" {
		return Symbol{}, false
	}
	return Symbol{
		Class:  "L" + class + ";",
		Method: method,
		Params: params,
		Long:   long,
	}, true
}

// splitSignature splits "Lcls;->name(params)ret" into its parts.
func splitSignature(sig string) (class, name, params string, ok bool) {
	class, rest, ok := strings.Cut(sig, "->")
	if !ok {
		return "", "", "", false
	}
	name, rest, ok = strings.Cut(rest, "(")
	if !ok {
		return "", "", "", false
	}
	params, _, ok = strings.Cut(rest, ")")
	return class, name, params, ok
}
