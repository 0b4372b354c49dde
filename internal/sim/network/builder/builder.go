package builder

import (
	"io"
	"log"

	"pipegrid.ai/internal/sim/network/complex"
	"pipegrid.ai/internal/sim/network/graph"
	"pipegrid.ai/internal/sim/network/netio"
)

// Map resolves which part of a network occupies a cell.
type Map interface {
	PartAt(network string, pos netio.Pos) *graph.Part
}

// Builder discovers the connected network around a seed part.
// A Builder is not safe for concurrent use; it reuses its visited set, queue and
// per-depth scratch sets across builds.
type Builder struct {
	Map      Map
	Topology netio.Topology
	Logger   *log.Logger

	scratch []map[string]bool
	visited map[string]bool
	queue   []*graph.Part
}

func New(m Map, t netio.Topology, logger *log.Logger) *Builder {
	return &Builder{Map: m, Topology: t, Logger: logger}
}

type link struct {
	part *graph.Part
	res  netio.Result
}

// Build returns the complex reachable from seed over valid port connections of the
// seed's network. A nil, unplaced or off-map seed yields an empty complex.
func (b *Builder) Build(id, network string, seed *graph.Part, opts complex.Options) (*complex.Complex, error) {
	if opts.Logger == nil {
		opts.Logger = b.logger()
	}
	g := graph.New()
	c, err := complex.New(id, network, g, opts)
	if err != nil {
		return nil, err
	}
	if !b.onMap(network, seed) {
		return c, nil
	}
	nodes := b.contiguousParts(c, seed)
	for _, n := range nodes {
		b.edgesFor(g, n)
	}
	return c, nil
}

func (b *Builder) logger() *log.Logger {
	if b.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return b.Logger
}

func (b *Builder) onMap(network string, p *graph.Part) bool {
	if p == nil || !p.Placed || p.Network != network || len(p.Footprint) == 0 || b.Map == nil {
		return false
	}
	return b.Map.PartAt(network, p.Footprint[0]) == p
}

// links lists the distinct parts p connects to, first port wins.
func (b *Builder) links(p *graph.Part) []link {
	var out []link
	seen := map[string]bool{}
	for _, cell := range p.IO.Cells {
		q := b.Map.PartAt(p.Network, cell.Target(b.Topology))
		if q == nil || q == p || !q.Placed || q.Network != p.Network || seen[q.ID] {
			continue
		}
		r := netio.ConnectCell(b.Topology, cell, q.IO)
		if !r.Valid {
			continue
		}
		seen[q.ID] = true
		out = append(out, link{part: q, res: r})
	}
	return out
}

// contiguousParts walks every connected part breadth-first, registering each into
// c as it is reached. It returns the nodes in visit order.
func (b *Builder) contiguousParts(c *complex.Complex, seed *graph.Part) []*graph.Part {
	g := c.Graph()
	if b.visited == nil {
		b.visited = map[string]bool{}
	}
	clear(b.visited)
	defer func() {
		clear(b.visited)
		clear(b.queue)
		b.queue = b.queue[:0]
	}()

	b.visited[seed.ID] = true
	b.queue = append(b.queue[:0], seed)
	var nodes []*graph.Part
	for i := 0; i < len(b.queue); i++ {
		p := b.queue[i]
		c.AddPart(p)
		if p.IsNode() {
			g.AddNode(p)
			nodes = append(nodes, p)
		}
		for _, l := range b.links(p) {
			if b.visited[l.part.ID] {
				continue
			}
			b.visited[l.part.ID] = true
			b.queue = append(b.queue, l.part)
		}
	}
	return nodes
}

// path accumulates one walk from an origin node through conduit.
type path struct {
	origin     *graph.Part
	originCell netio.Cell
	length     int
	forward    bool
	backward   bool
}

func (p path) through(r netio.Result) path {
	p.forward = p.forward && r.AToB()
	p.backward = p.backward && r.BToA()
	return p
}

func (b *Builder) edgesFor(g *graph.Graph, n *graph.Part) {
	for _, l := range b.links(n) {
		start := path{origin: n, originCell: l.res.A, forward: true, backward: true}.through(l.res)
		if l.part.IsNode() {
			b.emit(g, start, l.part, l.res.B)
			continue
		}
		start.length = 1
		b.walk(g, start, l.part, 0)
	}
}

// walk follows conduit from c. Straight runs stay at the same depth; every branch
// of a junction recurses one level deeper with its own scratch set.
func (b *Builder) walk(g *graph.Graph, p path, c *graph.Part, depth int) {
	seen := b.enter(depth)
	defer b.leave(depth)
	for c != nil {
		seen[c.ID] = true
		var next []link
		all := b.links(c)
		for _, l := range all {
			if l.part == p.origin || b.closed(l.part.ID, depth) {
				continue
			}
			next = append(next, l)
		}
		junction := len(all) > 2 || c.Roles.Has(graph.Junction)
		c = nil
		for _, l := range next {
			hop := p.through(l.res)
			if l.part.IsNode() {
				b.emit(g, hop, l.part, l.res.B)
				continue
			}
			hop.length++
			if junction {
				b.walk(g, hop, l.part, depth+1)
				continue
			}
			// A straight run has a single onward conduit.
			p, c = hop, l.part
			break
		}
	}
}

func (b *Builder) enter(depth int) map[string]bool {
	for len(b.scratch) <= depth {
		b.scratch = append(b.scratch, map[string]bool{})
	}
	clear(b.scratch[depth])
	return b.scratch[depth]
}

func (b *Builder) leave(depth int) { clear(b.scratch[depth]) }

// closed reports whether id was walked by this branch or any of its ancestors.
func (b *Builder) closed(id string, depth int) bool {
	for d := 0; d <= depth && d < len(b.scratch); d++ {
		if b.scratch[d][id] {
			return true
		}
	}
	return false
}

func (b *Builder) emit(g *graph.Graph, p path, dest *graph.Part, destCell netio.Cell) {
	e := &graph.Edge{Length: p.length}
	switch {
	case p.forward && p.backward:
		e.From, e.FromCell, e.To, e.ToCell, e.Mode = p.origin, p.originCell, dest, destCell, graph.Bidirectional
	case p.forward:
		e.From, e.FromCell, e.To, e.ToCell, e.Mode = p.origin, p.originCell, dest, destCell, graph.FromTo
	case p.backward:
		e.From, e.FromCell, e.To, e.ToCell, e.Mode = dest, destCell, p.origin, p.originCell, graph.FromTo
	default:
		b.logger().Printf("warn: no flow direction between %s and %s, edge dropped", p.origin.ID, dest.ID)
		return
	}
	// Every edge is found again from its other end.
	if g.EdgeBetween(e.From, e.To) != nil {
		return
	}
	if !g.AddEdge(e) {
		b.logger().Printf("warn: invalid or conflicting edge %s -> %s (%s, len %d) dropped", e.From.ID, e.To.ID, e.Mode, e.Length)
	}
}
