package worldtest

import (
	"math"
	"testing"

	world "pipegrid.ai/internal/sim/world"
)

func TestClosedNetwork_ConservesValue(t *testing.T) {
	cats := LoadCatalogs(t)
	h := NewHarness(t, world.WorldConfig{ID: "test", TickRateHz: 5, DT: 1, Topology: "cardinal"}, cats)

	h.Register(
		world.StructureSpec{ID: "tank-a", Def: "TANK", Pos: [2]int{0, 0}, Contents: map[string]float64{"WATER": 100}},
		world.StructureSpec{ID: "pipe-1", Def: "PIPE", Pos: [2]int{2, 0}},
		world.StructureSpec{ID: "pipe-2", Def: "PIPE", Pos: [2]int{3, 0}},
		world.StructureSpec{ID: "tank-b", Def: "TANK", Pos: [2]int{4, 0}},
	)
	if len(h.W.NetworkIDs()) != 1 {
		t.Fatalf("networks=%v want one", h.W.NetworkIDs())
	}

	for i := 0; i < 100; i++ {
		h.Step()
		a, b := h.Stored("tank-a", "WATER"), h.Stored("tank-b", "WATER")
		if a < 0 || b < 0 || a > 100 || b > 100 {
			t.Fatalf("tick %d: out of bounds a=%v b=%v", i, a, b)
		}
		if total := h.NetworkTotal("tank-a"); math.Abs(total-100) > 1e-9 || math.Abs(a+b-100) > 1e-9 {
			t.Fatalf("tick %d: total=%v a+b=%v want 100", i, total, a+b)
		}
	}
	if h.Stored("tank-b", "WATER") == 0 {
		t.Fatalf("nothing flowed into tank-b")
	}
}

func TestSplitNetwork_KeepsContents(t *testing.T) {
	cats := LoadCatalogs(t)
	h := NewHarness(t, world.WorldConfig{ID: "test", TickRateHz: 5, DT: 1, Topology: "cardinal"}, cats)

	h.Register(
		world.StructureSpec{ID: "tank-a", Def: "TANK", Pos: [2]int{0, 0}, Contents: map[string]float64{"WATER": 60}},
		world.StructureSpec{ID: "pipe-1", Def: "PIPE", Pos: [2]int{2, 0}},
		world.StructureSpec{ID: "tank-b", Def: "TANK", Pos: [2]int{3, 0}, Contents: map[string]float64{"OIL": 20}},
	)
	h.StepN(5)
	before := h.NetworkTotal("tank-a")

	h.Deregister("pipe-1")
	if len(h.W.NetworkIDs()) != 2 {
		t.Fatalf("networks=%v want two after split", h.W.NetworkIDs())
	}
	if got := h.NetworkTotal("tank-a") + h.NetworkTotal("tank-b"); math.Abs(got-before) > 1e-9 {
		t.Fatalf("split totals=%v want %v", got, before)
	}
}
