package flow

import (
	"io"
	"log"
	"math"

	"pipegrid.ai/internal/sim/network/complex"
	"pipegrid.ai/internal/sim/network/graph"
	"pipegrid.ai/internal/sim/network/volume"
)

// TickStats summarises one engine tick over one network.
type TickStats struct {
	Tick    uint64 `json:"tick"`
	Network string `json:"network"`
	Idle    bool   `json:"idle,omitempty"`

	Edges   int `json:"edges"`
	Blocked int `json:"blocked"`

	Moved     float64 `json:"moved"`
	Produced  float64 `json:"produced"`
	Consumed  float64 `json:"consumed"`
	Requested float64 `json:"requested"`
}

// Engine resolves flow for networks that share one definition.
type Engine struct {
	Model FlowModel
	Clamp ClampModel

	// Viscosity per resource type, weighted by the source composition and added to friction.
	Viscosity map[string]float64

	log *log.Logger
}

func NewEngine(model FlowModel, clamp ClampModel, logger *log.Logger) *Engine {
	if model == nil {
		model = DampedWave{Friction: 0.1, CSquared: 0.1}
	}
	if clamp == nil {
		clamp = FractionClamp{MinDivider: 2, MaxDivider: 2}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{Model: model, Clamp: clamp, log: logger}
}

// Tick advances c by one step of length dt. Supply, demand and requester rates are
// per unit of dt; edge flow is per tick. The pass is synchronous and visits each
// edge once, in graph order.
func (e *Engine) Tick(c *complex.Complex, tick uint64, dt float64) TickStats {
	st := TickStats{Tick: tick}
	if c == nil {
		return st
	}
	st.Network = c.ID()
	parts := c.Parts()
	for _, p := range parts {
		if p.Container != nil {
			p.Container.Mark()
		}
	}
	if !c.Working() {
		st.Idle = true
		for _, edge := range c.Graph().Edges() {
			edge.SetFlow(0)
		}
		return st
	}

	e.sourcesAndSinks(parts, dt, &st)
	e.requesters(c, dt, &st)

	g := c.Graph()
	for _, edge := range g.Edges() {
		st.Edges++
		moved, blocked := e.edge(g, edge)
		st.Moved += math.Abs(moved)
		if blocked {
			st.Blocked++
		}
	}
	return st
}

func (e *Engine) sourcesAndSinks(parts []*graph.Part, dt float64, st *TickStats) {
	for _, p := range parts {
		if p.Container == nil {
			continue
		}
		if p.Roles.Has(graph.Producer) {
			for _, s := range p.Supply.Entries() {
				st.Produced += p.Container.TryAdd(s.Type, s.Value*dt).Actual
			}
		}
		if p.Roles.Has(graph.Consumer) {
			for _, d := range p.Demand.Entries() {
				st.Consumed += p.Container.TryRemove(d.Type, d.Value*dt).Actual
			}
		}
	}
}

func (e *Engine) requesters(c *complex.Complex, dt float64, st *TickStats) {
	stores := c.PartsWithRole(graph.Storage)
	for _, p := range c.PartsWithRole(graph.Requester) {
		if p.Requester == nil || p.Container == nil {
			continue
		}
		dst := p.Container
		p.Requester.Update(dst.StoredPercent())
		available := func(typ string) float64 {
			var sum float64
			for _, s := range stores {
				if s == p || s.Container == nil || !s.Container.CanTransfer(typ) {
					continue
				}
				sum += s.Container.StoredOf(typ)
			}
			return sum
		}
		plan := p.Requester.Plan(dst.Free(), receivable(dst), available, dt)
		for _, want := range plan.Entries() {
			remaining := want.Value
			for _, s := range stores {
				if remaining <= 0 {
					break
				}
				if s == p || s.Container == nil {
					continue
				}
				r := s.Container.TryTransferTo(dst, want.Type, remaining)
				remaining -= r.Actual
				st.Requested += r.Actual
			}
		}
	}
}

// receivable lists the allowed types dst will also take in.
func receivable(dst *volume.Container) []string {
	var out []string
	for _, t := range dst.AllowedTypes() {
		if dst.Accepts(t) {
			out = append(out, t)
		}
	}
	return out
}

// edge resolves and commits one edge. It returns the signed amount moved and
// whether a one-way edge blocked the flow.
func (e *Engine) edge(g *graph.Graph, edge *graph.Edge) (float64, bool) {
	from, to := edge.From.Container, edge.To.Container
	if from == nil || to == nil {
		edge.SetFlow(0)
		return 0, false
	}
	in := Input{
		Edge:         edge,
		From:         from,
		To:           to,
		PressureFrom: e.Model.Pressure(from),
		PressureTo:   e.Model.Pressure(to),
		Prev:         edge.Flow(),
	}
	src := from
	if in.Gradient() < 0 {
		src = to
	}
	in.Viscosity = e.viscosity(src)
	f := e.Model.Flow(in)

	if edge.Mode == graph.FromTo && (in.Gradient() <= 0 || f < 0) {
		edge.SetFlow(0)
		return 0, true
	}
	if f == 0 || math.IsNaN(f) {
		edge.SetFlow(0)
		return 0, false
	}

	ctx := ClampContext{Source: from, Dest: to, SourceDegree: g.Degree(edge.From), DestDegree: g.Degree(edge.To)}
	sign := 1.0
	if f < 0 {
		sign = -1
		ctx = ClampContext{Source: to, Dest: from, SourceDegree: g.Degree(edge.To), DestDegree: g.Degree(edge.From)}
	}
	mag := e.Clamp.Clamp(ctx, math.Abs(f), Outflow)
	mag = e.Clamp.Clamp(ctx, mag, Inflow)

	moved := ctx.Source.TransferProportional(ctx.Dest, mag)
	edge.SetFlow(sign * moved)
	return sign * moved, false
}

func (e *Engine) viscosity(c *volume.Container) float64 {
	if len(e.Viscosity) == 0 || c == nil {
		return 0
	}
	total := c.Stored()
	if total <= 0 {
		return 0
	}
	var v float64
	for _, s := range c.Stack().Entries() {
		v += e.Viscosity[s.Type] * s.Value / total
	}
	return v
}
