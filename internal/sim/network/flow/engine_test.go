package flow

import (
	"math"
	"testing"

	"pipegrid.ai/internal/sim/network/complex"
	"pipegrid.ai/internal/sim/network/graph"
	"pipegrid.ai/internal/sim/network/netio"
	"pipegrid.ai/internal/sim/network/requester"
	"pipegrid.ai/internal/sim/network/value"
	"pipegrid.ai/internal/sim/network/volume"
)

func tankPart(id string, x int, roles graph.Role, water float64) *graph.Part {
	pos := netio.Pos{X: x}
	p := &graph.Part{
		ID:        id,
		Network:   "fluid",
		Roles:     graph.Normalize(roles),
		Footprint: []netio.Pos{pos},
		IO: netio.Profile{Cells: []netio.Cell{
			{Pos: pos, Dir: netio.East, Mode: netio.Bidirectional},
			{Pos: pos, Dir: netio.West, Mode: netio.Bidirectional},
		}},
		Container: volume.New(volume.Config{
			Capacity: 100,
			Filters: map[string]volume.Filter{
				"WATER": volume.AllowAll(),
				"OIL":   volume.AllowAll(),
			},
		}),
		Placed: true,
	}
	if water > 0 {
		p.Container.TryAdd("WATER", water)
	}
	return p
}

func link(a, b *graph.Part, mode graph.EdgeMode) *graph.Edge {
	return &graph.Edge{From: a, To: b, FromCell: a.IO.Cells[0], ToCell: b.IO.Cells[1], Mode: mode, Length: 1}
}

func network(t *testing.T, opts complex.Options, parts []*graph.Part, edges ...*graph.Edge) *complex.Complex {
	t.Helper()
	g := graph.New()
	for _, e := range edges {
		if !g.AddEdge(e) {
			t.Fatalf("edge %s->%s rejected", e.From.ID, e.To.ID)
		}
	}
	c, err := complex.New("N1", "fluid", g, opts)
	if err != nil {
		t.Fatalf("complex: %v", err)
	}
	for _, p := range parts {
		c.AddPart(p)
	}
	return c
}

func TestEngine_LinearPipeEquilibrium(t *testing.T) {
	a := tankPart("A", 0, graph.Storage, 100)
	b := tankPart("B", 1, graph.Storage, 0)
	c := network(t, complex.Options{}, []*graph.Part{a, b}, link(a, b, graph.Bidirectional))
	e := NewEngine(DampedWave{Friction: 0.1, CSquared: 0.1}, FractionClamp{MinDivider: 2, MaxDivider: 2}, nil)

	for tick := uint64(1); tick <= 2000; tick++ {
		e.Tick(c, tick, 1)
		if total := a.Container.Stored() + b.Container.Stored(); math.Abs(total-100) > 1e-6 {
			t.Fatalf("tick %d: total=%v", tick, total)
		}
		if math.Abs(c.TotalValue()-100) > 1e-6 {
			t.Fatalf("tick %d: aggregate=%v", tick, c.TotalValue())
		}
	}
	if math.Abs(a.Container.Stored()-50) > 1e-3 || math.Abs(b.Container.Stored()-50) > 1e-3 {
		t.Fatalf("not settled: a=%v b=%v", a.Container.Stored(), b.Container.Stored())
	}
}

func TestEngine_OneWayBlocksReverse(t *testing.T) {
	a := tankPart("A", 0, graph.Storage, 20)
	b := tankPart("B", 1, graph.Storage, 80)
	edge := link(a, b, graph.FromTo)
	edge.SetFlow(5)
	c := network(t, complex.Options{}, []*graph.Part{a, b}, edge)
	e := NewEngine(DampedWave{Friction: 0.1, CSquared: 0.1}, FractionClamp{MinDivider: 1, MaxDivider: 1}, nil)

	st := e.Tick(c, 1, 1)
	if edge.Flow() != 0 {
		t.Fatalf("flow=%v", edge.Flow())
	}
	if st.Blocked != 1 || st.Moved != 0 {
		t.Fatalf("stats=%+v", st)
	}
	if a.Container.Stored() != 20 || b.Container.Stored() != 80 {
		t.Fatalf("a=%v b=%v", a.Container.Stored(), b.Container.Stored())
	}
}

func TestEngine_OneWayForward(t *testing.T) {
	a := tankPart("A", 0, graph.Storage, 80)
	b := tankPart("B", 1, graph.Storage, 20)
	edge := link(a, b, graph.FromTo)
	c := network(t, complex.Options{}, []*graph.Part{a, b}, edge)
	e := NewEngine(DampedWave{Friction: 0.1, CSquared: 0.1}, FractionClamp{MinDivider: 1, MaxDivider: 1}, nil)

	e.Tick(c, 1, 1)
	// (80-20)*0.1
	if math.Abs(edge.Flow()-6) > 1e-9 {
		t.Fatalf("flow=%v", edge.Flow())
	}
	if math.Abs(a.Container.Stored()-74) > 1e-9 || math.Abs(b.Container.Stored()-26) > 1e-9 {
		t.Fatalf("a=%v b=%v", a.Container.Stored(), b.Container.Stored())
	}
}

func TestEngine_ProportionalComposition(t *testing.T) {
	a := tankPart("A", 0, graph.Storage, 60)
	a.Container.TryAdd("OIL", 20)
	b := tankPart("B", 1, graph.Storage, 0)
	c := network(t, complex.Options{}, []*graph.Part{a, b}, link(a, b, graph.Bidirectional))
	e := NewEngine(DampedWave{Friction: 0.1, CSquared: 0.1}, FractionClamp{MinDivider: 1, MaxDivider: 1}, nil)

	e.Tick(c, 1, 1)
	// 8 units split 3:1.
	if math.Abs(b.Container.StoredOf("WATER")-6) > 1e-9 || math.Abs(b.Container.StoredOf("OIL")-2) > 1e-9 {
		t.Fatalf("b=%v", b.Container.Stack())
	}
	if math.Abs(c.TotalByType("OIL")-20) > 1e-9 {
		t.Fatalf("oil aggregate=%v", c.TotalByType("OIL"))
	}
}

func TestEngine_SourcesAndSinks(t *testing.T) {
	src := tankPart("S", 0, graph.Producer, 0)
	src.Supply = value.Single("WATER", 4)
	sink := tankPart("K", 1, graph.Consumer, 10)
	sink.Demand = value.Single("WATER", 3)
	c := network(t, complex.Options{}, []*graph.Part{src, sink})
	e := NewEngine(nil, nil, nil)

	st := e.Tick(c, 1, 0.5)
	if st.Produced != 2 || st.Consumed != 1.5 {
		t.Fatalf("stats=%+v", st)
	}
	if src.Container.Stored() != 2 || sink.Container.Stored() != 8.5 {
		t.Fatalf("src=%v sink=%v", src.Container.Stored(), sink.Container.Stored())
	}
}

func TestEngine_RequesterPullsFromStorage(t *testing.T) {
	store := tankPart("S", 0, graph.Storage, 60)
	req := tankPart("R", 1, graph.Requester, 10)
	req.Requester = requester.New(requester.Config{Min: 0.5, Max: 0.9, Rate: 15})
	c := network(t, complex.Options{}, []*graph.Part{store, req})
	e := NewEngine(nil, nil, nil)

	st := e.Tick(c, 1, 1)
	if req.Requester.State() != requester.Requesting {
		t.Fatalf("state=%v", req.Requester.State())
	}
	if st.Requested != 15 || req.Container.Stored() != 25 || store.Container.Stored() != 45 {
		t.Fatalf("requested=%v req=%v store=%v", st.Requested, req.Container.Stored(), store.Container.Stored())
	}
	if math.Abs(c.TotalValue()-70) > 1e-9 {
		t.Fatalf("total=%v", c.TotalValue())
	}
}

func TestEngine_RequesterSkipsTypesItCannotReceive(t *testing.T) {
	store := tankPart("S", 0, graph.Storage, 30)
	store.Container.TryAdd("OIL", 30)
	req := tankPart("R", 1, graph.Requester, 0)
	req.Container = volume.New(volume.Config{
		Capacity: 100,
		Filters: map[string]volume.Filter{
			"WATER": {Receive: false, Store: true, Transfer: true},
			"OIL":   volume.AllowAll(),
		},
	})
	req.Requester = requester.New(requester.Config{Min: 0.5, Max: 0.9, Rate: 10})
	c := network(t, complex.Options{}, []*graph.Part{store, req})
	e := NewEngine(nil, nil, nil)

	st := e.Tick(c, 1, 1)
	if st.Requested != 10 {
		t.Fatalf("requested=%v", st.Requested)
	}
	if got := req.Container.StoredOf("OIL"); got != 10 {
		t.Fatalf("oil=%v", got)
	}
	if got := req.Container.StoredOf("WATER"); got != 0 {
		t.Fatalf("water=%v", got)
	}
}

func TestEngine_ControllerGate(t *testing.T) {
	a := tankPart("A", 0, graph.Storage, 100)
	b := tankPart("B", 1, graph.Storage, 0)
	c := network(t, complex.Options{RequiresController: true}, []*graph.Part{a, b}, link(a, b, graph.Bidirectional))
	e := NewEngine(nil, nil, nil)

	if st := e.Tick(c, 1, 1); !st.Idle || st.Moved != 0 {
		t.Fatalf("stats=%+v", st)
	}
	c.AddPart(&graph.Part{ID: "C", Network: "fluid", Roles: graph.Normalize(graph.Controller)})
	if st := e.Tick(c, 2, 1); st.Idle || st.Moved <= 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestEngine_MissingContainerIsZeroFlow(t *testing.T) {
	a := tankPart("A", 0, graph.Storage, 100)
	pos := netio.Pos{X: 1}
	valve := &graph.Part{
		ID: "V", Network: "fluid", Roles: graph.Normalize(graph.Controller), Footprint: []netio.Pos{pos},
		IO: netio.Profile{Cells: []netio.Cell{
			{Pos: pos, Dir: netio.East, Mode: netio.Bidirectional},
			{Pos: pos, Dir: netio.West, Mode: netio.Bidirectional},
		}},
		Placed: true,
	}
	edge := link(a, valve, graph.Bidirectional)
	c := network(t, complex.Options{}, []*graph.Part{a, valve}, edge)
	e := NewEngine(nil, nil, nil)

	e.Tick(c, 1, 1)
	if edge.Flow() != 0 || a.Container.Stored() != 100 {
		t.Fatalf("flow=%v a=%v", edge.Flow(), a.Container.Stored())
	}
}

func TestEngine_Deterministic(t *testing.T) {
	run := func() []float64 {
		a := tankPart("A", 0, graph.Storage, 90)
		a.Container.TryAdd("OIL", 10)
		b := tankPart("B", 1, graph.Storage, 5)
		d := tankPart("D", 2, graph.Storage, 40)
		c := network(t, complex.Options{}, []*graph.Part{a, b, d},
			link(a, b, graph.Bidirectional), link(b, d, graph.Bidirectional), link(d, a, graph.FromTo))
		e := NewEngine(DampedWave{Friction: 0.05, CSquared: 0.2, CounterFriction: 0.3, Adhesion: 0.5}, ConnectionClamp{}, nil)
		e.Viscosity = map[string]float64{"OIL": 0.2}
		for tick := uint64(1); tick <= 200; tick++ {
			e.Tick(c, tick, 1)
		}
		return []float64{
			a.Container.StoredOf("WATER"), a.Container.StoredOf("OIL"),
			b.Container.StoredOf("WATER"), b.Container.StoredOf("OIL"),
			d.Container.StoredOf("WATER"), d.Container.StoredOf("OIL"),
		}
	}
	first, second := run(), run()
	var total float64
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("run mismatch at %d: %v vs %v", i, first, second)
		}
		total += first[i]
	}
	if math.Abs(total-145) > 1e-6 {
		t.Fatalf("total=%v", total)
	}
}
