// Package render produces Graphviz DOT from dexlens call graphs, native
// entry CFGs, JNI bindings and signal graphs.
package render

import (
	"fmt"
	"strings"

	"dexlens/internal/dexfile"
)

// dotEscape escapes a string for use in DOT HTML labels.
func dotEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

// dotID creates a safe DOT identifier from a method name.
func dotID(name string) string {
	var b strings.Builder
	b.WriteString("n_")
	for _, c := range name {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		} else {
			fmt.Fprintf(&b, "_%04x", c)
		}
	}
	return b.String()
}

// ownerOf returns the class descriptor of "Lcls;->member", or "" for
// names without one.
func ownerOf(name string) string {
	if i := strings.Index(name, "->"); i > 0 {
		return name[:i]
	}
	return ""
}

// memberOf strips the owner from a method name.
// "Lcom/ex/Main;->log(Ljava/lang/String;)V" → "log(Ljava/lang/String;)V".
func memberOf(name string) string {
	if i := strings.Index(name, "->"); i > 0 {
		return name[i+2:]
	}
	return name
}

// classLabel renders a class descriptor in Java spelling.
func classLabel(desc string) string { return dexfile.JavaName(desc) }

// truncLabel shortens a label to maxLen, appending "..." if truncated.
func truncLabel(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
