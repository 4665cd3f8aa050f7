// Package callgraph builds method call graphs and per-method control
// flow graphs from DEX code, in lattice form for rendering.
package callgraph

import (
	"github.com/zboralski/lattice"

	"dexlens/internal/bytecode"
	"dexlens/internal/session"
	"dexlens/internal/visit"
)

// BuildCallGraph constructs a lattice.Graph from every method body in s.
// Each defined method becomes a node. Each invoke becomes an edge to the
// callee's full name, which may be a method defined elsewhere. Bodies
// that fail to scan contribute their node only.
func BuildCallGraph(s *session.Session) (*lattice.Graph, error) {
	b := &graphBuilder{s: s, g: &lattice.Graph{}}
	if err := s.Visit(b); err != nil {
		return nil, err
	}
	b.g.Dedup()
	return b.g, nil
}

type graphBuilder struct {
	visit.Members
	s *session.Session
	g *lattice.Graph
}

func (b *graphBuilder) VisitClass(visit.ClassInfo) (visit.MemberVisitor, visit.Capability) {
	return b, visit.CapMethodBodies
}

func (b *graphBuilder) VisitMethodBody(m visit.MethodInfo, body *bytecode.MethodBody, err error) {
	caller := b.s.MethodName(m.Method.Idx)
	b.g.Nodes = append(b.g.Nodes, caller)
	if err != nil {
		return
	}
	for _, callee := range body.InvokedMethods {
		b.g.Edges = append(b.g.Edges, lattice.Edge{
			Caller: caller,
			Callee: b.s.MethodName(callee),
		})
	}
}
