package graph

import "pipegrid.ai/internal/sim/network/netio"

type EdgeMode int

const (
	// FromTo edges only ever carry resources From -> To.
	FromTo EdgeMode = iota
	Bidirectional
)

func (m EdgeMode) String() string {
	if m == Bidirectional {
		return "BIDIRECTIONAL"
	}
	return "FROM_TO"
}

// Edge is a discovered connection between two nodes. Length counts the collapsed
// conduit segments between the two ports.
type Edge struct {
	From     *Part
	To       *Part
	FromCell netio.Cell
	ToCell   netio.Cell
	Mode     EdgeMode
	Length   int

	flow float64
}

// IsValid is the basic sanity check applied before an edge enters a graph.
func (e *Edge) IsValid() bool {
	if e == nil || e.From == nil || e.To == nil || e.From == e.To {
		return false
	}
	if e.Length < 0 {
		return false
	}
	if !e.From.IO.Has(e.FromCell) || !e.To.IO.Has(e.ToCell) {
		return false
	}
	return true
}

// Flow is the signed amount moved on the previous tick (positive = From -> To).
func (e *Edge) Flow() float64 { return e.flow }

func (e *Edge) SetFlow(v float64) { e.flow = v }

// Other returns the endpoint opposite p.
func (e *Edge) Other(p *Part) *Part {
	if e.From == p {
		return e.To
	}
	return e.From
}

type pairKey struct{ from, to string }

// Graph is the adjacency structure over network nodes.
type Graph struct {
	nodes []*Part
	index map[string]*Part

	edges []*Edge
	pairs map[pairKey]*Edge
	adj   map[string][]*Edge
}

func New() *Graph {
	return &Graph{
		index: map[string]*Part{},
		pairs: map[pairKey]*Edge{},
		adj:   map[string][]*Edge{},
	}
}

// AddNode records a node once; repeated calls are no-ops.
func (g *Graph) AddNode(p *Part) bool {
	if p == nil {
		return false
	}
	if _, ok := g.index[p.ID]; ok {
		return false
	}
	g.index[p.ID] = p
	g.nodes = append(g.nodes, p)
	return true
}

// AddEdge inserts e when it is valid and its ordered endpoint pair is new.
// Bidirectional edges also claim the reversed pair.
func (g *Graph) AddEdge(e *Edge) bool {
	if !e.IsValid() {
		return false
	}
	k := pairKey{from: e.From.ID, to: e.To.ID}
	if _, dup := g.pairs[k]; dup {
		return false
	}
	rk := pairKey{from: e.To.ID, to: e.From.ID}
	if e.Mode == Bidirectional {
		if _, dup := g.pairs[rk]; dup {
			return false
		}
	}
	g.AddNode(e.From)
	g.AddNode(e.To)
	g.pairs[k] = e
	if e.Mode == Bidirectional {
		g.pairs[rk] = e
	}
	g.edges = append(g.edges, e)
	g.adj[e.From.ID] = append(g.adj[e.From.ID], e)
	g.adj[e.To.ID] = append(g.adj[e.To.ID], e)
	return true
}

func (g *Graph) Nodes() []*Part { return append([]*Part(nil), g.nodes...) }

// Edges returns edges in insertion order.
func (g *Graph) Edges() []*Edge { return append([]*Edge(nil), g.edges...) }

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

func (g *Graph) Node(id string) *Part { return g.index[id] }

// EdgesOf returns every edge touching p.
func (g *Graph) EdgesOf(p *Part) []*Edge {
	if p == nil {
		return nil
	}
	return append([]*Edge(nil), g.adj[p.ID]...)
}

// AdjacencyOf returns the distinct nodes reachable from p over one edge, in edge order.
func (g *Graph) AdjacencyOf(p *Part) []*Part {
	if p == nil {
		return nil
	}
	var out []*Part
	seen := map[string]bool{}
	for _, e := range g.adj[p.ID] {
		o := e.Other(p)
		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		out = append(out, o)
	}
	return out
}

// Degree is the number of live edges at p.
func (g *Graph) Degree(p *Part) int {
	if p == nil {
		return 0
	}
	return len(g.adj[p.ID])
}

// EdgeBetween returns the edge carrying from -> to, if any.
func (g *Graph) EdgeBetween(from, to *Part) *Edge {
	if from == nil || to == nil {
		return nil
	}
	return g.pairs[pairKey{from: from.ID, to: to.ID}]
}
