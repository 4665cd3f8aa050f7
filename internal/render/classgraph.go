package render

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/zboralski/lattice"
)

// ClassgraphDOT renders a class-level call graph where each class is one
// node and edges aggregate the calls between classes. Classes that define
// no method in g (framework and library classes) are drawn as external.
// maxNodes limits rendered classes by edge involvement (0 = all).
func ClassgraphDOT(g *lattice.Graph, title string, t Theme, maxNodes int) string {
	methodCount := make(map[string]int)
	for _, n := range g.Nodes {
		if owner := ownerOf(n); owner != "" {
			methodCount[owner]++
		}
	}

	type classEdge struct {
		from, to string
	}
	classCounts := make(map[classEdge]int)
	for _, e := range g.Edges {
		src, dst := ownerOf(e.Caller), ownerOf(e.Callee)
		if src == "" || dst == "" || src == dst {
			continue
		}
		classCounts[classEdge{src, dst}]++
	}

	involvement := make(map[string]int)
	for ce, count := range classCounts {
		involvement[ce.from] += count
		involvement[ce.to] += count
	}

	type rankedClass struct {
		name        string
		involvement int
	}
	ranked := make([]rankedClass, 0, len(involvement))
	for name, inv := range involvement {
		ranked = append(ranked, rankedClass{name, inv})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].involvement != ranked[j].involvement {
			return ranked[i].involvement > ranked[j].involvement
		}
		return ranked[i].name < ranked[j].name
	})
	if maxNodes > 0 && len(ranked) > maxNodes {
		ranked = ranked[:maxNodes]
	}
	renderSet := make(map[string]bool, len(ranked))
	for _, rc := range ranked {
		renderSet[rc.name] = true
	}

	var b strings.Builder
	b.WriteString("digraph classgraph {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  splines=true;\n")
	b.WriteString("  nodesep=0.5;\n")
	b.WriteString("  ranksep=0.8;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=\"filled,rounded\", fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=10, fontcolor=%q, height=0.4, margin=\"0.15,0.08\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.5, arrowsize=0.5, arrowhead=vee, color=%q];\n", t.EdgeDirect)
	writeTitle(&b, title, t)

	maxMethods := 1
	for name := range renderSet {
		if c := methodCount[name]; c > maxMethods {
			maxMethods = c
		}
	}
	for _, rc := range ranked {
		id := dotID(rc.name)
		methods := methodCount[rc.name]
		if methods == 0 {
			fmt.Fprintf(&b, "  %s [label=%q, fillcolor=%q, fontcolor=%q];\n",
				id, classLabel(rc.name), t.StubFill, t.ExternalText)
			continue
		}
		// Scale node height by method count (log scale).
		height := 0.4 + 0.3*math.Log2(float64(methods)+1)/math.Log2(float64(maxMethods)+1)
		htmlLabel := fmt.Sprintf("<<font point-size=\"10\">%s</font><br/><font point-size=\"7\" color=\"%s\">%d methods</font>>",
			dotEscape(classLabel(rc.name)), t.ExternalText, methods)
		fmt.Fprintf(&b, "  %s [label=%s, height=%.2f];\n", id, htmlLabel, height)
	}
	b.WriteByte('\n')

	maxEdgeCount := 1
	for ce, count := range classCounts {
		if renderSet[ce.from] && renderSet[ce.to] && count > maxEdgeCount {
			maxEdgeCount = count
		}
	}
	edges := make([]classEdge, 0, len(classCounts))
	for ce := range classCounts {
		if renderSet[ce.from] && renderSet[ce.to] {
			edges = append(edges, ce)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].from != edges[j].from {
			return edges[i].from < edges[j].from
		}
		return edges[i].to < edges[j].to
	})
	for _, ce := range edges {
		count := classCounts[ce]
		pw := 0.5 + 2.0*math.Log2(float64(count)+1)/math.Log2(float64(maxEdgeCount)+1)
		attrs := fmt.Sprintf("penwidth=%.1f", pw)
		if count > 1 {
			attrs += fmt.Sprintf(", label=<<font point-size=\"7\" color=\"%s\">%d</font>>",
				t.ExternalText, count)
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(ce.from), dotID(ce.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}

func writeTitle(b *strings.Builder, title string, t Theme) {
	if title != "" {
		fmt.Fprintf(b, "  labelloc=t;\n  labeljust=l;\n")
		fmt.Fprintf(b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.TextColor, dotEscape(title))
	}
	b.WriteByte('\n')
}
