package render

import (
	"sort"

	"github.com/zboralski/lattice"
)

// GraphStats summarizes a call graph.
type GraphStats struct {
	Methods     int         `json:"methods"`
	Edges       int         `json:"edges"`
	External    int         `json:"external"` // callees g does not define
	Classes     int         `json:"classes"`
	EntryPoints int         `json:"entry_points"`
	Reachable   int         `json:"reachable"`
	TopCallers  []NameCount `json:"top_callers"`
	TopCallees  []NameCount `json:"top_callees"`
	TopClasses  []NameCount `json:"top_classes"` // by defined method count
}

// NameCount pairs a name with a count.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ComputeStats computes call graph statistics.
func ComputeStats(g *lattice.Graph) GraphStats {
	st := GraphStats{Methods: len(g.Nodes), Edges: len(g.Edges)}

	defined := make(map[string]bool, len(g.Nodes))
	classCount := make(map[string]int)
	for _, n := range g.Nodes {
		defined[n] = true
		if owner := ownerOf(n); owner != "" {
			classCount[owner]++
		}
	}
	st.Classes = len(classCount)

	callerCount := make(map[string]int)
	calleeCount := make(map[string]int)
	external := make(map[string]bool)
	for _, e := range g.Edges {
		callerCount[e.Caller]++
		calleeCount[e.Callee]++
		if !defined[e.Callee] {
			external[e.Callee] = true
		}
	}
	st.External = len(external)

	entries := FindEntryPoints(g)
	st.EntryPoints = len(entries)
	st.Reachable = len(ReachableSet(entries, g))

	st.TopCallers = topNMap(callerCount, 20)
	st.TopCallees = topNMap(calleeCount, 20)
	st.TopClasses = topNMap(classCount, 30)
	return st
}

// topNMap returns the top N entries from a map, sorted descending by
// count and then by name.
func topNMap(m map[string]int, n int) []NameCount {
	entries := make([]NameCount, 0, len(m))
	for name, count := range m {
		entries = append(entries, NameCount{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
