package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zboralski/lattice"
)

// FindEntryPoints returns the defined methods no other method calls.
// Self-recursion does not count as a caller.
func FindEntryPoints(g *lattice.Graph) []string {
	called := make(map[string]bool)
	for _, e := range g.Edges {
		if e.Caller != e.Callee {
			called[e.Callee] = true
		}
	}

	var entries []string
	for _, n := range g.Nodes {
		if !called[n] {
			entries = append(entries, n)
		}
	}
	sort.Strings(entries)
	return entries
}

// ReachableSet performs BFS from entry points following call edges
// and returns the set of all reachable method names.
func ReachableSet(entryPoints []string, g *lattice.Graph) map[string]bool {
	adj := make(map[string][]string)
	for _, e := range g.Edges {
		adj[e.Caller] = append(adj[e.Caller], e.Callee)
	}

	reachable := make(map[string]bool)
	queue := make([]string, 0, len(entryPoints))
	for _, ep := range entryPoints {
		if !reachable[ep] {
			reachable[ep] = true
			queue = append(queue, ep)
		}
	}

	for len(queue) > 0 {
		fn := queue[0]
		queue = queue[1:]
		for _, target := range adj[fn] {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}
	return reachable
}

// ReachabilityDOT renders the call graph filtered to the reachable set,
// clustered by class. Entry points are highlighted. Callees that g does
// not define are drawn as external plaintext nodes.
func ReachabilityDOT(g *lattice.Graph, reachable map[string]bool, entryPoints []string, title string, t Theme) string {
	entrySet := make(map[string]bool, len(entryPoints))
	for _, ep := range entryPoints {
		entrySet[ep] = true
	}
	defined := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		defined[n] = true
	}

	type edgeKey struct{ from, to string }
	edgeCount := make(map[edgeKey]int)
	for _, e := range g.Edges {
		if !reachable[e.Caller] || !reachable[e.Callee] {
			continue
		}
		edgeCount[edgeKey{e.Caller, e.Callee}]++
	}

	refNodes := make(map[string]bool)
	for k := range edgeCount {
		refNodes[k.from] = true
		refNodes[k.to] = true
	}
	for _, ep := range entryPoints {
		refNodes[ep] = true
	}

	ownerMethods := make(map[string][]string)
	var loose, external []string
	for name := range refNodes {
		switch owner := ownerOf(name); {
		case !defined[name]:
			external = append(external, name)
		case owner != "":
			ownerMethods[owner] = append(ownerMethods[owner], name)
		default:
			loose = append(loose, name)
		}
	}

	var b strings.Builder
	b.WriteString("digraph reachable {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  compound=true;\n")
	b.WriteString("  splines=true;\n")
	b.WriteString("  nodesep=0.4;\n")
	b.WriteString("  ranksep=0.6;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=9, fontcolor=%q, height=0.3, margin=\"0.12,0.06\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.5, arrowsize=0.5, arrowhead=vee, color=%q];\n", t.EdgeDirect)
	writeTitle(&b, title, t)

	writeNode := func(indent, name, label string) {
		id := dotID(name)
		label = truncLabel(label, 50)
		if entrySet[name] {
			fmt.Fprintf(&b, "%s%s [label=%q, penwidth=1.5, color=%q];\n", indent, id, label, t.EdgeJNIEnv)
		} else {
			fmt.Fprintf(&b, "%s%s [label=%q];\n", indent, id, label)
		}
	}

	owners := make([]string, 0, len(ownerMethods))
	for owner := range ownerMethods {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		names := ownerMethods[owner]
		if len(names) < 2 {
			loose = append(loose, names...)
			continue
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "  subgraph %s {\n", "cluster_"+dotID(owner))
		fmt.Fprintf(&b, "    label=<<font point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.ClusterLabel, dotEscape(classLabel(owner)))
		fmt.Fprintf(&b, "    style=dotted; color=%q; penwidth=0.3;\n", t.ClusterBorder)
		for _, name := range names {
			writeNode("    ", name, memberOf(name))
		}
		b.WriteString("  }\n")
	}
	sort.Strings(loose)
	for _, name := range loose {
		writeNode("  ", name, name)
	}
	sort.Strings(external)
	for _, name := range external {
		fmt.Fprintf(&b, "  %s [label=%q, shape=plaintext, style=\"\", fontcolor=%q, fontsize=8];\n",
			dotID(name), truncLabel(name, 50), t.ExternalText)
	}
	b.WriteByte('\n')

	keys := make([]edgeKey, 0, len(edgeCount))
	for k := range edgeCount {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})
	for _, k := range keys {
		attrs := fmt.Sprintf("color=%q", t.EdgeDirect)
		if count := edgeCount[k]; count > 1 {
			attrs += fmt.Sprintf(", penwidth=%.1f", 0.5+float64(count)*0.1)
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(k.from), dotID(k.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}
