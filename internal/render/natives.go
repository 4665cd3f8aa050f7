package render

import (
	"fmt"
	"sort"
	"strings"

	"dexlens/internal/disasm"
	"dexlens/internal/jni"
)

// Provenance categories of a native call edge.
const (
	ProvJNIEnv     = "jnienv"
	ProvJavaVM     = "javavm"
	ProvDirect     = "direct"
	ProvUnresolved = "unresolved"
)

// ClassifyEdgeProv returns the provenance category for a call edge.
func ClassifyEdgeProv(e disasm.CallEdge) string {
	switch {
	case e.Kind == "bl":
		return ProvDirect
	case strings.HasPrefix(e.Via, disasm.RootJNIEnv+"->"):
		return ProvJNIEnv
	case strings.HasPrefix(e.Via, disasm.RootJavaVM+"->"):
		return ProvJavaVM
	default:
		return ProvUnresolved
	}
}

// edgeColor returns the DOT color for an edge provenance category.
func edgeColor(prov string, t Theme) string {
	switch prov {
	case ProvJNIEnv:
		return t.EdgeJNIEnv
	case ProvJavaVM:
		return t.EdgeJavaVM
	case ProvUnresolved:
		return t.EdgeUnresolved
	default:
		return t.EdgeDirect
	}
}

// edgeStyle returns dot style attributes for provenance.
func edgeStyle(prov string) string {
	if prov == ProvUnresolved {
		return "dashed"
	}
	return "solid"
}

// NativesDOT renders native bindings: each bound Java method points to its
// export, and each export and JNI_OnLoad to the calls its entry makes.
// Unbound natives are drawn dashed with no target.
func NativesDOT(rep *jni.Report, title string, t Theme) string {
	var b strings.Builder
	b.WriteString("digraph natives {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  splines=true;\n")
	b.WriteString("  nodesep=0.4;\n")
	b.WriteString("  ranksep=0.6;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=9, fontcolor=%q, height=0.3, margin=\"0.12,0.06\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.5, arrowsize=0.5, arrowhead=vee];\n")
	writeTitle(&b, title, t)

	type edgeKey struct {
		from, to, prov string
	}
	counts := make(map[edgeKey]int)
	external := make(map[string]bool)
	entry := func(e jni.Entry) {
		fmt.Fprintf(&b, "  %s [label=%q, shape=box, style=\"filled,rounded\"];\n",
			dotID(e.Symbol), truncLabel(e.Symbol, 60))
		for _, c := range e.Calls {
			callee := c.Callee()
			if callee == "" {
				callee = "unresolved_" + c.Kind
			}
			external[callee] = true
			counts[edgeKey{e.Symbol, callee, ClassifyEdgeProv(c)}]++
		}
	}

	for _, bd := range rep.Bound {
		fmt.Fprintf(&b, "  %s [label=%q, fillcolor=%q];\n",
			dotID(bd.Signature), truncLabel(bd.Signature, 60), t.NativeFill)
		entry(bd.Entry)
		fmt.Fprintf(&b, "  %s -> %s [color=%q, penwidth=1.0];\n",
			dotID(bd.Signature), dotID(bd.Symbol), t.EdgeDirect)
	}
	for _, n := range rep.Unbound {
		fmt.Fprintf(&b, "  %s [label=%q, fillcolor=%q, style=\"filled,dashed\"];\n",
			dotID(n.Signature), truncLabel(n.Signature, 60), t.StubFill)
	}
	for _, ol := range rep.OnLoads {
		entry(ol)
	}
	b.WriteByte('\n')

	names := make([]string, 0, len(external))
	for name := range external {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "  %s [label=%q, shape=plaintext, style=\"\", fontcolor=%q, fontsize=8];\n",
			dotID(name), truncLabel(name, 50), t.ExternalText)
	}
	b.WriteByte('\n')

	keys := make([]edgeKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})
	for _, k := range keys {
		color := edgeColor(k.prov, t)
		attrs := fmt.Sprintf("color=%q, style=%q", color, edgeStyle(k.prov))
		if n := counts[k]; n > 1 {
			attrs += fmt.Sprintf(", penwidth=%.1f", 0.5+float64(n)*0.1)
			if n > 2 {
				attrs += fmt.Sprintf(", label=<<font point-size=\"7\" color=\"%s\">%dx</font>>", color, n)
			}
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(k.from), dotID(k.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}
