package complex

import (
	"errors"
	"io"
	"log"
	"sort"

	"pipegrid.ai/internal/sim/network/graph"
	"pipegrid.ai/internal/sim/network/value"
)

var ErrNilGraph = errors.New("complex: nil graph")

// Complex owns one discovered network: its graph, its members partitioned by role
// and the aggregate totals of every member container.
// Aggregates are caches; the containers stay the source of truth.
type Complex struct {
	id        string
	network   string
	needsCtrl bool
	graph     *graph.Graph
	log       *log.Logger

	parts  []*graph.Part
	index  map[string]*graph.Part
	byRole map[graph.Role][]*graph.Part

	controller *graph.Part

	totalValue   float64
	byType       map[string]float64
	byMask       map[graph.Role]float64
	byTypeByMask map[graph.Role]map[string]float64
}

type Options struct {
	// RequiresController makes Working() false until a Controller part joins.
	RequiresController bool
	Logger             *log.Logger
}

func New(id, network string, g *graph.Graph, opts Options) (*Complex, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Complex{
		id:           id,
		network:      network,
		needsCtrl:    opts.RequiresController,
		graph:        g,
		log:          logger,
		index:        map[string]*graph.Part{},
		byRole:       map[graph.Role][]*graph.Part{},
		byType:       map[string]float64{},
		byMask:       map[graph.Role]float64{},
		byTypeByMask: map[graph.Role]map[string]float64{},
	}, nil
}

func (c *Complex) ID() string              { return c.id }
func (c *Complex) Network() string         { return c.network }
func (c *Complex) Graph() *graph.Graph     { return c.graph }
func (c *Complex) Controller() *graph.Part { return c.controller }
func (c *Complex) Len() int                { return len(c.parts) }

// Working reports whether the network may move resources this tick.
func (c *Complex) Working() bool {
	if !c.needsCtrl {
		return true
	}
	return c.controller != nil
}

// AddPart registers p. Adding a present part is a no-op.
func (c *Complex) AddPart(p *graph.Part) bool {
	if p == nil {
		return false
	}
	if _, ok := c.index[p.ID]; ok {
		return false
	}
	c.index[p.ID] = p
	c.parts = append(c.parts, p)
	p.Roles.Each(func(r graph.Role) {
		c.byRole[r] = append(c.byRole[r], p)
	})
	if p.Roles.Has(graph.Controller) {
		// Last controller wins.
		c.controller = p
	}
	if p.Container != nil {
		for _, e := range p.Container.Stack().Entries() {
			c.NotifyAddedValue(p.Roles, e.Type, e.Value)
		}
		p.Container.SetListener(partListener{c: c, roles: p.Roles})
	}
	return true
}

// RemovePart unregisters p and subtracts its stored value from the aggregates.
func (c *Complex) RemovePart(p *graph.Part) bool {
	if p == nil {
		return false
	}
	if _, ok := c.index[p.ID]; !ok {
		return false
	}
	delete(c.index, p.ID)
	c.parts = removePart(c.parts, p)
	p.Roles.Each(func(r graph.Role) {
		c.byRole[r] = removePart(c.byRole[r], p)
		if len(c.byRole[r]) == 0 {
			delete(c.byRole, r)
		}
	})
	if c.controller == p {
		c.controller = nil
		// Fall back to the most recently added remaining controller.
		if ctrls := c.byRole[graph.Controller]; len(ctrls) > 0 {
			c.controller = ctrls[len(ctrls)-1]
		}
	}
	if p.Container != nil {
		p.Container.SetListener(nil)
		for _, e := range p.Container.Stack().Entries() {
			c.NotifyRemovedValue(p.Roles, e.Type, e.Value)
		}
	}
	return true
}

func (c *Complex) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

func (c *Complex) Part(id string) *graph.Part { return c.index[id] }

// Parts returns members in registration order.
func (c *Complex) Parts() []*graph.Part { return append([]*graph.Part(nil), c.parts...) }

// PartsWithRole returns members carrying any role in mask, in registration order.
func (c *Complex) PartsWithRole(mask graph.Role) []*graph.Part {
	if mask == 0 {
		return nil
	}
	var out []*graph.Part
	for _, p := range c.parts {
		if p.Roles.Matches(mask) {
			out = append(out, p)
		}
	}
	return out
}

// CountWithRole is the bucket size for a single role.
func (c *Complex) CountWithRole(r graph.Role) int { return len(c.byRole[r]) }

func (c *Complex) NotifyAddedValue(roles graph.Role, typ string, v float64) {
	if v <= 0 {
		return
	}
	c.totalValue += v
	c.byType[typ] += v
	c.byMask[roles] += v
	m := c.byTypeByMask[roles]
	if m == nil {
		m = map[string]float64{}
		c.byTypeByMask[roles] = m
	}
	m[typ] += v
}

func (c *Complex) NotifyRemovedValue(roles graph.Role, typ string, v float64) {
	if v <= 0 {
		return
	}
	m := c.byTypeByMask[roles]
	if _, ok := c.byType[typ]; !ok || m == nil {
		c.log.Printf("warn: network %s: remove %.4f of untracked type %s (roles %v)", c.id, v, typ, roles)
		return
	}
	if _, ok := m[typ]; !ok {
		c.log.Printf("warn: network %s: remove %.4f of type %s not tracked for roles %v", c.id, v, typ, roles)
		return
	}
	c.totalValue = clampZero(c.totalValue - v)
	c.byType[typ] = clampZero(c.byType[typ] - v)
	c.byMask[roles] = clampZero(c.byMask[roles] - v)
	m[typ] = clampZero(m[typ] - v)
}

func (c *Complex) TotalValue() float64 { return c.totalValue }

func (c *Complex) TotalByType(typ string) float64 { return c.byType[typ] }

// TotalByRole sums the value held by parts carrying any role in mask.
func (c *Complex) TotalByRole(mask graph.Role) float64 {
	var sum float64
	for _, k := range c.sortedMasks() {
		if k.Matches(mask) {
			sum += c.byMask[k]
		}
	}
	return sum
}

// TotalValueFor sums typ held by parts carrying any role in mask.
func (c *Complex) TotalValueFor(typ string, mask graph.Role) float64 {
	var sum float64
	for _, k := range c.sortedMasks() {
		if k.Matches(mask) {
			sum += c.byTypeByMask[k][typ]
		}
	}
	return sum
}

// TotalsByType returns the per-type aggregate as a stack.
func (c *Complex) TotalsByType() value.Stack { return value.Of(c.byType) }

// Recompute rebuilds every aggregate from the member containers. It is used to
// verify the incremental caches in tests and after snapshot import.
func (c *Complex) Recompute() {
	c.totalValue = 0
	c.byType = map[string]float64{}
	c.byMask = map[graph.Role]float64{}
	c.byTypeByMask = map[graph.Role]map[string]float64{}
	for _, p := range c.parts {
		if p.Container == nil {
			continue
		}
		for _, e := range p.Container.Stack().Entries() {
			c.NotifyAddedValue(p.Roles, e.Type, e.Value)
		}
	}
}

func (c *Complex) sortedMasks() []graph.Role {
	out := make([]graph.Role, 0, len(c.byMask))
	for k := range c.byMask {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Detach releases every member container listener. Call it when the complex is
// replaced by a rebuild so stale aggregates stop receiving updates.
func (c *Complex) Detach() {
	for _, p := range c.parts {
		if p.Container != nil {
			p.Container.SetListener(nil)
		}
	}
}

// Attach points every member container back at this complex and recomputes the
// aggregates. It undoes a Detach, or another build that claimed a member.
func (c *Complex) Attach() {
	for _, p := range c.parts {
		if p.Container != nil {
			p.Container.SetListener(partListener{c: c, roles: p.Roles})
		}
	}
	c.Recompute()
}

type partListener struct {
	c     *Complex
	roles graph.Role
}

func (l partListener) NotifyAddedValue(typ string, v float64) {
	l.c.NotifyAddedValue(l.roles, typ, v)
}

func (l partListener) NotifyRemovedValue(typ string, v float64) {
	l.c.NotifyRemovedValue(l.roles, typ, v)
}

func removePart(list []*graph.Part, p *graph.Part) []*graph.Part {
	for i, x := range list {
		if x == p {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func clampZero(v float64) float64 {
	if v < 1e-9 {
		return 0
	}
	return v
}
