package world

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"testing"

	"pipegrid.ai/internal/observerproto"
	"pipegrid.ai/internal/protocol"
	"pipegrid.ai/internal/sim/catalogs"
	"pipegrid.ai/internal/sim/layout"
	"pipegrid.ai/internal/sim/network/netio"
)

func newTestWorld(t *testing.T) *World {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	w, err := New(WorldConfig{ID: "test", Topology: "cardinal", TickRateHz: 5, DT: 1}, cats, nil)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func withLayout(t *testing.T) *World {
	t.Helper()
	w := newTestWorld(t)
	l, err := layout.Load("../../../configs/layout.yaml")
	if err != nil {
		t.Fatalf("load layout: %v", err)
	}
	for _, p := range l.Structures {
		if _, err := w.RegisterStructure(StructureSpec{ID: p.ID, Def: p.Def, Pos: p.Pos, Rotation: p.Rotation, Contents: p.Contents}); err != nil {
			t.Fatalf("register %s: %v", p.ID, err)
		}
	}
	return w
}

func mustRegister(t *testing.T, w *World, spec StructureSpec) protocol.StructureInfo {
	t.Helper()
	if _, err := w.RegisterStructure(spec); err != nil {
		t.Fatalf("register %s: %v", spec.ID, err)
	}
	info, err := w.StructureInfo(spec.ID)
	if err != nil {
		t.Fatalf("info %s: %v", spec.ID, err)
	}
	return info
}

func netioPos(x, y int) netio.Pos { return netio.Pos{X: x, Y: y} }

func networkID(t *testing.T, w *World, structureID string) string {
	t.Helper()
	c, ok := w.NetworkOf(structureID)
	if !ok {
		t.Fatalf("%s has no network", structureID)
	}
	return c.ID()
}

func stored(t *testing.T, w *World, id, typ string) float64 {
	t.Helper()
	s, ok := w.Structure(id)
	if !ok || s.Part.Container == nil {
		t.Fatalf("%s has no container", id)
	}
	return s.Part.Container.StoredOf(typ)
}

func TestLayout_DiscoversNetworks(t *testing.T) {
	w := withLayout(t)

	if got := len(w.NetworkIDs()); got != 3 {
		t.Fatalf("networks=%d want 3 (%v)", got, w.NetworkIDs())
	}
	idPattern := regexp.MustCompile(`^N[0-9]{6}$`)
	for _, id := range w.NetworkIDs() {
		if !idPattern.MatchString(id) {
			t.Fatalf("bad network id %q", id)
		}
	}

	fluid := networkID(t, w, "pump-1")
	for _, id := range []string{"pipe-1", "pipe-2", "tank-1", "pipe-3", "valve-1", "drain-1"} {
		if got := networkID(t, w, id); got != fluid {
			t.Fatalf("%s in %s, want %s", id, got, fluid)
		}
	}
	if networkID(t, w, "boiler-1") == fluid || networkID(t, w, "battery-1") == fluid {
		t.Fatalf("different definitions must not share a network")
	}

	adj, err := w.AdjacencyList("tank-1")
	if err != nil {
		t.Fatalf("adjacency: %v", err)
	}
	if len(adj) != 2 || adj[0] != "drain-1" || adj[1] != "pump-1" {
		t.Fatalf("tank-1 adjacency=%v", adj)
	}
	if adj, _ := w.AdjacencyList("pipe-1"); len(adj) != 0 {
		t.Fatalf("conduit should have no graph neighbours, got %v", adj)
	}

	c, _ := w.NetworkOf("pump-1")
	if c.Graph().NodeCount() != 3 || c.Graph().EdgeCount() != 2 {
		t.Fatalf("fluid nodes=%d edges=%d", c.Graph().NodeCount(), c.Graph().EdgeCount())
	}
	for _, e := range c.Graph().Edges() {
		if e.Length != 2 {
			t.Fatalf("edge %s->%s length=%d want 2", e.From.ID, e.To.ID, e.Length)
		}
	}

	power, _ := w.NetworkOf("battery-1")
	if !power.Working() {
		t.Fatalf("power network with a controller should work")
	}
	total, err := w.TotalValue(power.ID())
	if err != nil || total != 200 {
		t.Fatalf("power total=%v err=%v", total, err)
	}
	water, _ := w.TotalByType(fluid, "WATER")
	if water != 40 {
		t.Fatalf("fluid water=%v want 40", water)
	}
}

func TestRegister_Rejections(t *testing.T) {
	w := withLayout(t)

	if _, err := w.RegisterStructure(StructureSpec{ID: "pipe-x", Def: "PIPE", Pos: [2]int{4, 0}}); !errors.Is(err, ErrCellOccupied) {
		t.Fatalf("expected ErrCellOccupied, got %v", err)
	}
	if _, err := w.RegisterStructure(StructureSpec{ID: "pump-1", Def: "PIPE", Pos: [2]int{20, 20}}); !errors.Is(err, ErrDuplicateStructure) {
		t.Fatalf("expected ErrDuplicateStructure, got %v", err)
	}
	if _, err := w.RegisterStructure(StructureSpec{ID: "x", Def: "NOPE", Pos: [2]int{20, 20}}); !errors.Is(err, ErrUnknownDef) {
		t.Fatalf("expected ErrUnknownDef, got %v", err)
	}
	if err := w.DeregisterStructure("missing"); !errors.Is(err, ErrUnknownStructure) {
		t.Fatalf("expected ErrUnknownStructure, got %v", err)
	}
	if _, err := w.TickNetwork("N999999", 1); !errors.Is(err, ErrUnknownNetwork) {
		t.Fatalf("expected ErrUnknownNetwork, got %v", err)
	}
	if _, err := w.StoredPercent("missing"); !errors.Is(err, ErrUnknownStructure) {
		t.Fatalf("expected ErrUnknownStructure, got %v", err)
	}
}

func TestRegister_FailedRebuildRollsBack(t *testing.T) {
	w := newTestWorld(t)
	// Its port sits off the footprint, so it reaches k1 but k1 cannot reach back.
	w.catalogs.Structures.ByID["REACH"] = catalogs.StructureDef{
		ID:        "REACH",
		Network:   "fluid",
		Kind:      "node",
		Roles:     []string{"storage"},
		Ports:     []catalogs.PortDef{{Pos: [2]int{1, 0}, Dir: 1, Mode: "both"}},
		Container: &catalogs.ContainerDef{Capacity: 10, Types: []string{"WATER"}},
	}
	mustRegister(t, w, StructureSpec{ID: "p0", Def: "PIPE", Pos: [2]int{99, 0}})
	mustRegister(t, w, StructureSpec{ID: "k1", Def: "TANK", Pos: [2]int{102, 0}, Contents: map[string]float64{"WATER": 10}})

	for i := 0; i < 2; i++ {
		_, err := w.RegisterStructure(StructureSpec{ID: "r1", Def: "REACH", Pos: [2]int{100, 0}})
		if !errors.Is(err, ErrTopology) {
			t.Fatalf("attempt %d: expected ErrTopology, got %v", i, err)
		}
	}
	if _, ok := w.Structure("r1"); ok {
		t.Fatalf("r1 left registered")
	}
	if w.PartAt("fluid", netioPos(100, 0)) != nil {
		t.Fatalf("r1 left on the map")
	}
	if got := len(w.NetworkIDs()); got != 2 {
		t.Fatalf("networks=%v want p0 and k1 restored", w.NetworkIDs())
	}
	kid := networkID(t, w, "k1")
	if networkID(t, w, "p0") == kid {
		t.Fatalf("p0 and k1 must stay separate")
	}

	// k1's network still tracks its container.
	k1, _ := w.Structure("k1")
	k1.Part.Container.TryAdd("WATER", 5)
	if total, _ := w.TotalValue(kid); total != 15 {
		t.Fatalf("k1 network total=%v want 15", total)
	}

	mustRegister(t, w, StructureSpec{ID: "t1", Def: "TANK", Pos: [2]int{100, 0}})
	for _, seed := range []string{"t1", "p0", "k1"} {
		c, err := w.RebuildNetwork(seed)
		if err != nil {
			t.Fatalf("rebuild from %s: %v", seed, err)
		}
		if c.Len() != 3 || !c.Has("p0") || !c.Has("t1") || !c.Has("k1") {
			t.Fatalf("seed %s: members=%d", seed, c.Len())
		}
	}
}

func TestRegister_MergesNetworks(t *testing.T) {
	w := newTestWorld(t)
	mustRegister(t, w, StructureSpec{ID: "a", Def: "TANK", Pos: [2]int{0, 0}, Contents: map[string]float64{"WATER": 10}})
	mustRegister(t, w, StructureSpec{ID: "b", Def: "TANK", Pos: [2]int{3, 0}, Contents: map[string]float64{"WATER": 20}})
	if networkID(t, w, "a") == networkID(t, w, "b") {
		t.Fatalf("separated tanks should not share a network")
	}

	mustRegister(t, w, StructureSpec{ID: "p", Def: "PIPE", Pos: [2]int{2, 0}})
	if len(w.NetworkIDs()) != 1 {
		t.Fatalf("networks=%v want one merged network", w.NetworkIDs())
	}
	id := networkID(t, w, "a")
	if networkID(t, w, "b") != id || networkID(t, w, "p") != id {
		t.Fatalf("merge did not cover every part")
	}
	total, _ := w.TotalValue(id)
	if total != 30 {
		t.Fatalf("merged total=%v want 30", total)
	}
	c, _ := w.Network(id)
	if c.Graph().EdgeCount() != 1 || c.Graph().Edges()[0].Length != 1 {
		t.Fatalf("expected one edge of length 1")
	}
}

func TestDeregister_SplitsNetwork(t *testing.T) {
	w := withLayout(t)
	before := len(w.NetworkIDs())

	if err := w.DeregisterStructure("pipe-3"); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	if got := len(w.NetworkIDs()); got != before+1 {
		t.Fatalf("networks=%d want %d", got, before+1)
	}
	if networkID(t, w, "tank-1") == networkID(t, w, "drain-1") {
		t.Fatalf("tank and drain should be split")
	}
	if networkID(t, w, "valve-1") != networkID(t, w, "drain-1") {
		t.Fatalf("valve should stay with the drain")
	}
	if _, ok := w.Structure("pipe-3"); ok {
		t.Fatalf("pipe-3 still registered")
	}
	if w.PartAt("fluid", netioPos(5, 0)) != nil {
		t.Fatalf("cell still occupied")
	}

	// Re-placing the pipe joins them again.
	mustRegister(t, w, StructureSpec{ID: "pipe-3", Def: "PIPE", Pos: [2]int{5, 0}})
	if networkID(t, w, "tank-1") != networkID(t, w, "drain-1") {
		t.Fatalf("tank and drain should be joined again")
	}
}

func TestRebuildNetwork_KeepsMembership(t *testing.T) {
	w := withLayout(t)
	old, _ := w.NetworkOf("tank-1")
	n := old.Len()

	c, err := w.RebuildNetwork("tank-1")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if c.Len() != n || c.ID() == old.ID() {
		t.Fatalf("rebuild len=%d id=%s, old len=%d id=%s", c.Len(), c.ID(), n, old.ID())
	}
	if _, ok := w.Network(old.ID()); ok {
		t.Fatalf("old network still live")
	}
	if water, _ := w.TotalByType(c.ID(), "WATER"); water != 40 {
		t.Fatalf("water=%v want 40", water)
	}
}

func TestStep_PowerFlowsAndConserves(t *testing.T) {
	w := withLayout(t)
	for i := 0; i < 20; i++ {
		w.StepOnce(nil, nil)
	}
	if got := stored(t, w, "battery-2", "POWER"); got <= 0 {
		t.Fatalf("battery-2 power=%v want > 0", got)
	}
	power, _ := w.NetworkOf("battery-1")
	total, _ := w.TotalValue(power.ID())
	if math.Abs(total-200) > 1e-6 {
		t.Fatalf("power total=%v want 200", total)
	}
	sum := stored(t, w, "battery-1", "POWER") + stored(t, w, "battery-2", "POWER")
	if math.Abs(sum-total) > 1e-6 {
		t.Fatalf("aggregate %v drifted from containers %v", total, sum)
	}
	m := w.Metrics()
	if m.Tick != 20 || m.Networks != 3 || m.Structures != 14 {
		t.Fatalf("metrics=%+v", m)
	}
	if m.Produced <= 0 {
		t.Fatalf("expected producers to run, metrics=%+v", m)
	}
}

func TestStep_ControllerRemovalStopsPower(t *testing.T) {
	w := withLayout(t)
	if err := w.DeregisterStructure("ctrl-1"); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	power, _ := w.NetworkOf("battery-1")
	if power.Working() {
		t.Fatalf("power network without controller should be idle")
	}
	for i := 0; i < 5; i++ {
		w.StepOnce(nil, nil)
	}
	if got := stored(t, w, "battery-2", "POWER"); got != 0 {
		t.Fatalf("battery-2 power=%v want 0", got)
	}
	idle := false
	for _, st := range w.LastStats() {
		if st.Network == power.ID() && st.Idle {
			idle = true
		}
	}
	if !idle {
		t.Fatalf("expected idle stats for %s", power.ID())
	}
}

func TestStep_OneWayValveHoldsDrainSide(t *testing.T) {
	w := withLayout(t)
	for i := 0; i < 30; i++ {
		w.StepOnce(nil, nil)
	}
	c, _ := w.NetworkOf("tank-1")
	for _, e := range c.Graph().Edges() {
		if e.Flow() < 0 {
			t.Fatalf("one-way edge %s->%s carried reverse flow %v", e.From.ID, e.To.ID, e.Flow())
		}
	}
}

func TestStepOnce_Deterministic(t *testing.T) {
	a := withLayout(t)
	b := withLayout(t)
	for i := 0; i < 100; i++ {
		ta, da := a.StepOnce(nil, nil)
		tb, db := b.StepOnce(nil, nil)
		if ta != tb || da != db {
			t.Fatalf("tick %d: digests differ %s vs %s", ta, da, db)
		}
	}
}

func TestStepOnce_AppliesRegistrationsAtBoundary(t *testing.T) {
	w := withLayout(t)
	before := w.StateDigest()
	tick, _ := w.StepOnce([]StructureSpec{{ID: "tank-2", Def: "TANK", Pos: [2]int{0, 12}}}, []string{"pipe-3", "missing"})
	if tick != 0 {
		t.Fatalf("tick=%d want 0", tick)
	}
	if _, ok := w.Structure("tank-2"); !ok {
		t.Fatalf("tank-2 not registered")
	}
	if _, ok := w.Structure("pipe-3"); ok {
		t.Fatalf("pipe-3 not deregistered")
	}
	if w.StateDigest() == before {
		t.Fatalf("digest did not change")
	}
}

func TestSnapshot_ImportReproducesDigests(t *testing.T) {
	a := withLayout(t)
	var last uint64
	for i := 0; i < 25; i++ {
		last, _ = a.StepOnce(nil, nil)
	}
	snap := a.ExportSnapshot(last)

	b := newTestWorld(t)
	if err := b.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if b.CurrentTick() != a.CurrentTick() {
		t.Fatalf("tick a=%d b=%d", a.CurrentTick(), b.CurrentTick())
	}
	if got, want := b.NetworkIDs(), a.NetworkIDs(); len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("network ids a=%v b=%v", want, got)
	}
	if a.StateDigest() != b.StateDigest() {
		t.Fatalf("digest after import differs")
	}
	for i := 0; i < 40; i++ {
		_, da := a.StepOnce(nil, nil)
		_, db := b.StepOnce(nil, nil)
		if da != db {
			t.Fatalf("step %d: digests diverged", i)
		}
	}

	if err := b.ImportSnapshot(snap); err == nil {
		t.Fatalf("import into a populated world should fail")
	}
}

func TestObserver_ReceivesFilteredTicks(t *testing.T) {
	w := withLayout(t)
	fluid := networkID(t, w, "pump-1")

	all := make(chan []byte, 1)
	one := make(chan []byte, 1)
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "all", TickOut: all, EveryTicks: 1})
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "one", TickOut: one, EveryTicks: 1, Networks: []string{fluid}, WithEdges: true})

	w.StepOnce(nil, nil)

	var msg observerproto.TickMsg
	if err := json.Unmarshal(<-all, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Tick != 0 || len(msg.Networks) != 3 || len(msg.Edges) != 0 || msg.Digest == "" {
		t.Fatalf("all observer msg=%+v", msg)
	}
	if err := json.Unmarshal(<-one, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msg.Networks) != 1 || msg.Networks[0].ID != fluid || len(msg.Edges) != 1 || len(msg.Edges[0].Edges) != 2 {
		t.Fatalf("filtered observer msg=%+v", msg)
	}

	w.handleObserverSubscribe(ObserverSubscribeRequest{SessionID: "one", EveryTicks: 2})
	w.handleObserverLeave("all")
	w.StepOnce(nil, nil) // tick 1 skipped by the every-2 cadence
	select {
	case <-one:
		t.Fatalf("unexpected message on tick 1")
	default:
	}
	w.StepOnce(nil, nil)
	if err := json.Unmarshal(<-one, &msg); err != nil || msg.Tick != 2 || len(msg.Networks) != 3 {
		t.Fatalf("tick 2 msg=%+v err=%v", msg, err)
	}
}

func TestStructureInfo(t *testing.T) {
	w := withLayout(t)
	info, err := w.StructureInfo("tank-1")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Def != "TANK" || info.Roles != "TRANSMITTER|STORAGE" || info.StoredPercent != 0.4 {
		t.Fatalf("info=%+v", info)
	}
	if info.Contents["WATER"] != 40 || len(info.Adjacent) != 2 {
		t.Fatalf("info=%+v", info)
	}
	intake := mustRegister(t, w, StructureSpec{ID: "intake-1", Def: "REFINERY_INTAKE", Pos: [2]int{0, 16}})
	if intake.Requester != "IDLE" {
		t.Fatalf("requester=%q", intake.Requester)
	}

	msg := w.NetworksMsg()
	if len(msg.Networks) != 4 {
		t.Fatalf("networks=%d", len(msg.Networks))
	}
	for _, n := range msg.Networks {
		if n.Def == "power" && n.Units != 2000 {
			t.Fatalf("power units=%v want 2000", n.Units)
		}
	}
}
