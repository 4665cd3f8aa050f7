package signal

import (
	"sort"
	"strings"

	"github.com/zboralski/lattice"

	"dexlens/internal/bytecode"
	"dexlens/internal/session"
	"dexlens/internal/visit"
)

// Ref kinds.
const (
	RefString = "string" // const-string operand
	RefInvoke = "invoke" // invoked method
)

// Ref is one string load or invoke inside a method body.
type Ref struct {
	Method     string   `json:"method"`
	Kind       string   `json:"kind"`
	Value      string   `json:"value"`
	Categories []string `json:"categories,omitempty"`
}

// Roles.
const (
	RoleSignal  = "signal"
	RoleContext = "context"
)

// Method is a method in the signal graph.
type Method struct {
	Name         string   `json:"name"`
	Owner        string   `json:"owner,omitempty"`
	Refs         []Ref    `json:"refs,omitempty"`
	Categories   []string `json:"categories"`
	Severity     string   `json:"severity,omitempty"`
	Role         string   `json:"role"`
	IsEntryPoint bool     `json:"is_entry_point,omitempty"`
}

// Edge is a call in the signal graph.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the classified call graph.
type Graph struct {
	Methods []Method `json:"methods"`
	Edges   []Edge   `json:"edges"`
	Stats   Stats    `json:"stats"`
}

// Stats holds summary counts.
type Stats struct {
	TotalMethods   int            `json:"total_methods"`
	SignalMethods  int            `json:"signal_methods"`
	ContextMethods int            `json:"context_methods"`
	TotalEdges     int            `json:"total_edges"`
	RefCount       int            `json:"ref_count"`
	Categories     map[string]int `json:"categories"`
}

// Collect gathers the string loads and invokes of every method body in s.
// Each distinct value is reported once per method. Bodies that fail to
// scan contribute nothing.
func Collect(s *session.Session) ([]Ref, error) {
	c := &collector{s: s}
	if err := s.Visit(c); err != nil {
		return nil, err
	}
	return c.refs, nil
}

type collector struct {
	visit.Members
	s    *session.Session
	refs []Ref
}

func (c *collector) VisitClass(visit.ClassInfo) (visit.MemberVisitor, visit.Capability) {
	return c, visit.CapMethodBodies
}

func (c *collector) VisitMethodBody(m visit.MethodInfo, body *bytecode.MethodBody, err error) {
	if err != nil {
		return
	}
	name := c.s.MethodName(m.Method.Idx)
	type key struct{ kind, value string }
	seen := make(map[key]bool)
	add := func(kind, value string) {
		if k := (key{kind, value}); !seen[k] {
			seen[k] = true
			c.refs = append(c.refs, Ref{Method: name, Kind: kind, Value: value})
		}
	}
	for _, i := range body.Strings {
		add(RefString, c.s.StringAt(i))
	}
	for _, i := range body.InvokedMethods {
		add(RefInvoke, c.s.MethodName(i))
	}
}

// Build classifies refs and annotates every node of g. Methods with a
// classified ref are signal methods; methods within k call hops of one, in
// either direction, are context. entryPoints may be nil.
func Build(g *lattice.Graph, refs []Ref, k int, entryPoints []string) *Graph {
	type methodSignal struct {
		refs       []Ref
		categories map[string]bool
	}
	signals := make(map[string]*methodSignal)
	catCounts := make(map[string]int)

	for _, r := range refs {
		var cats []string
		switch r.Kind {
		case RefString:
			cats = ClassifyString(r.Value)
		case RefInvoke:
			cats = ClassifyAPI(r.Value)
		}
		if len(cats) == 0 {
			continue
		}
		ms, ok := signals[r.Method]
		if !ok {
			ms = &methodSignal{categories: make(map[string]bool)}
			signals[r.Method] = ms
		}
		r.Categories = cats
		ms.refs = append(ms.refs, r)
		for _, c := range cats {
			if !ms.categories[c] {
				ms.categories[c] = true
				catCounts[c]++
			}
		}
	}

	fwd := make(map[string][]string)
	rev := make(map[string][]string)
	for _, e := range g.Edges {
		fwd[e.Caller] = append(fwd[e.Caller], e.Callee)
		rev[e.Callee] = append(rev[e.Callee], e.Caller)
	}

	inGraph := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		inGraph[n] = true
	}

	// BFS over defined methods out to k hops. Seeds go in sorted order so
	// the result is stable.
	type item struct {
		name  string
		depth int
	}
	seeds := make([]string, 0, len(signals))
	for name := range signals {
		seeds = append(seeds, name)
	}
	sort.Strings(seeds)
	visited := make(map[string]bool, len(seeds))
	queue := make([]item, 0, len(seeds))
	for _, name := range seeds {
		visited[name] = true
		queue = append(queue, item{name, 0})
	}
	context := make(map[string]bool)
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if it.depth >= k {
			continue
		}
		for _, adj := range [][]string{fwd[it.name], rev[it.name]} {
			for _, next := range adj {
				if !visited[next] && inGraph[next] {
					visited[next] = true
					context[next] = true
					queue = append(queue, item{next, it.depth + 1})
				}
			}
		}
	}

	entrySet := make(map[string]bool, len(entryPoints))
	for _, ep := range entryPoints {
		entrySet[ep] = true
	}

	// Signal methods outside g (a ref list from another source) still show.
	names := append([]string(nil), g.Nodes...)
	for _, n := range seeds {
		if !inGraph[n] {
			names = append(names, n)
		}
	}

	methods := make([]Method, 0, len(names))
	for _, name := range names {
		m := Method{Name: name, Owner: ownerOf(name), IsEntryPoint: entrySet[name]}
		switch {
		case signals[name] != nil:
			ms := signals[name]
			m.Role = RoleSignal
			m.Refs = ms.refs
			for c := range ms.categories {
				m.Categories = append(m.Categories, c)
			}
			sort.Strings(m.Categories)
			m.Severity = MaxSeverity(m.Categories)
		case context[name]:
			m.Role = RoleContext
		}
		methods = append(methods, m)
	}

	// signal, then context, then the rest. Signal entry points lead.
	roleRank := map[string]int{RoleSignal: 0, RoleContext: 1, "": 2}
	sort.SliceStable(methods, func(i, j int) bool {
		a, b := &methods[i], &methods[j]
		if a.Role != b.Role {
			return roleRank[a.Role] < roleRank[b.Role]
		}
		if a.Role == RoleSignal && a.IsEntryPoint != b.IsEntryPoint {
			return a.IsEntryPoint
		}
		if a.Severity != b.Severity {
			return severityRank[a.Severity] < severityRank[b.Severity]
		}
		if len(a.Categories) != len(b.Categories) {
			return len(a.Categories) > len(b.Categories)
		}
		return a.Name < b.Name
	})

	seen := make(map[Edge]bool, len(g.Edges))
	edges := make([]Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		se := Edge{From: e.Caller, To: e.Callee}
		if !seen[se] {
			seen[se] = true
			edges = append(edges, se)
		}
	}

	return &Graph{
		Methods: methods,
		Edges:   edges,
		Stats: Stats{
			TotalMethods:   len(g.Nodes),
			SignalMethods:  len(signals),
			ContextMethods: len(context),
			TotalEdges:     len(edges),
			RefCount:       len(refs),
			Categories:     catCounts,
		},
	}
}

// Roles returns the role of every method with one.
func (g *Graph) Roles() map[string]string {
	roles := make(map[string]string)
	for _, m := range g.Methods {
		if m.Role != "" {
			roles[m.Name] = m.Role
		}
	}
	return roles
}

func ownerOf(name string) string {
	if i := strings.Index(name, "->"); i > 0 {
		return name[:i]
	}
	return ""
}
