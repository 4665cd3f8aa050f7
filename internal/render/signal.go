package render

import (
	"fmt"
	"sort"
	"strings"

	"dexlens/internal/signal"
)

// SignalDOT renders the signal and context methods of sg and the calls
// between them. Signal methods are filled by severity and list their
// categories; context methods are dashed.
func SignalDOT(sg *signal.Graph, title string, t Theme) string {
	byName := make(map[string]*signal.Method)
	for i := range sg.Methods {
		if m := &sg.Methods[i]; m.Role != "" {
			byName[m.Name] = m
		}
	}

	var b strings.Builder
	b.WriteString("digraph signal {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  nodesep=0.4;\n")
	b.WriteString("  ranksep=0.6;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=9, fontcolor=%q, margin=\"0.12,0.06\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.5, arrowsize=0.5, arrowhead=vee, color=%q];\n", t.EdgeDirect)
	writeTitle(&b, title, t)

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := byName[name]
		label := dotEscape(classLabel(m.Owner)) + "<br/>" + dotEscape(truncLabel(memberOf(name), 60))
		if m.Role == signal.RoleContext {
			fmt.Fprintf(&b, "  %s [label=<%s>, style=\"filled,dashed\", fontcolor=%q];\n",
				dotID(name), label, t.ExternalText)
			continue
		}
		label += fmt.Sprintf("<br/><font point-size=\"7\" color=\"%s\">%s</font>",
			t.ClusterLabel, dotEscape(strings.Join(m.Categories, ", ")))
		attrs := ""
		if m.IsEntryPoint {
			attrs = fmt.Sprintf(", penwidth=1.5, color=%q", t.EdgeJNIEnv)
		}
		fmt.Fprintf(&b, "  %s [label=<%s>, fillcolor=%q%s];\n", dotID(name), label, severityFill(m.Severity, t), attrs)
	}
	b.WriteByte('\n')

	for _, e := range sg.Edges {
		if byName[e.From] != nil && byName[e.To] != nil {
			fmt.Fprintf(&b, "  %s -> %s;\n", dotID(e.From), dotID(e.To))
		}
	}

	b.WriteString("}\n")
	return b.String()
}

func severityFill(sev string, t Theme) string {
	switch sev {
	case signal.SeverityHigh:
		return t.SignalHigh
	case signal.SeverityMedium:
		return t.SignalMedium
	}
	return t.SignalLow
}
