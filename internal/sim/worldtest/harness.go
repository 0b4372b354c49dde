package worldtest

import (
	"testing"

	"pipegrid.ai/internal/persistence/snapshot"
	"pipegrid.ai/internal/sim/catalogs"
	"pipegrid.ai/internal/sim/layout"
	world "pipegrid.ai/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Register()/Deregister() go through StepOnce() like server requests do
// - Step()/StepN() advance the world and record digests
// - Snapshot()/Restore() round-trip state into a fresh world
//
// It avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs
	Cfg  world.WorldConfig
	W    *world.World

	// Digests holds the digest of every stepped tick, keyed by tick.
	Digests map[uint64]string
}

func LoadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func NewHarness(t *testing.T, cfg world.WorldConfig, cats *catalogs.Catalogs) *Harness {
	t.Helper()
	w, err := world.New(cfg, cats, nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return &Harness{T: t, Cats: cats, Cfg: cfg, W: w, Digests: map[uint64]string{}}
}

// LoadLayout registers every placement of configs/layout.yaml directly, outside any tick.
func (h *Harness) LoadLayout() {
	h.T.Helper()
	l, err := layout.Load("../../../configs/layout.yaml")
	if err != nil {
		h.T.Fatalf("load layout: %v", err)
	}
	for _, p := range l.Structures {
		spec := world.StructureSpec{ID: p.ID, Def: p.Def, Pos: p.Pos, Rotation: p.Rotation, Contents: p.Contents}
		if _, err := h.W.RegisterStructure(spec); err != nil {
			h.T.Fatalf("register %s: %v", p.ID, err)
		}
	}
}

// Register applies the specs at the next tick boundary and fails if any was rejected.
func (h *Harness) Register(specs ...world.StructureSpec) string {
	h.T.Helper()
	digest := h.step(specs, nil)
	for _, s := range specs {
		if _, ok := h.W.Structure(s.ID); !ok {
			h.T.Fatalf("register %s was rejected", s.ID)
		}
	}
	return digest
}

func (h *Harness) Deregister(ids ...string) string {
	h.T.Helper()
	digest := h.step(nil, ids)
	for _, id := range ids {
		if _, ok := h.W.Structure(id); ok {
			h.T.Fatalf("deregister %s was rejected", id)
		}
	}
	return digest
}

func (h *Harness) Step() string {
	return h.step(nil, nil)
}

func (h *Harness) StepN(n int) string {
	var d string
	for i := 0; i < n; i++ {
		d = h.step(nil, nil)
	}
	return d
}

func (h *Harness) step(regs []world.StructureSpec, deregs []string) string {
	tick, digest := h.W.StepOnce(regs, deregs)
	h.Digests[tick] = digest
	return digest
}

// Snapshot exports the state after the last stepped tick.
func (h *Harness) Snapshot() (tick uint64, snap snapshot.SnapshotV1) {
	h.T.Helper()
	cur := h.W.CurrentTick()
	if cur == 0 {
		return 0, h.W.ExportSnapshot(0)
	}
	tick = cur - 1
	return tick, h.W.ExportSnapshot(tick)
}

// Restore imports snap into a fresh harness with the same config.
func (h *Harness) Restore(snap snapshot.SnapshotV1) *Harness {
	h.T.Helper()
	h2 := NewHarness(h.T, h.Cfg, h.Cats)
	if err := h2.W.ImportSnapshot(snap); err != nil {
		h.T.Fatalf("import: %v", err)
	}
	return h2
}

// Stored returns the amount of typ held by a structure's container.
func (h *Harness) Stored(id, typ string) float64 {
	h.T.Helper()
	s, ok := h.W.Structure(id)
	if !ok {
		h.T.Fatalf("unknown structure %s", id)
	}
	if s.Part.Container == nil {
		h.T.Fatalf("%s has no container", id)
	}
	return s.Part.Container.StoredOf(typ)
}

// NetworkTotal returns the total value of the network containing structure id.
func (h *Harness) NetworkTotal(id string) float64 {
	h.T.Helper()
	c, ok := h.W.NetworkOf(id)
	if !ok {
		h.T.Fatalf("%s has no network", id)
	}
	v, err := h.W.TotalValue(c.ID())
	if err != nil {
		h.T.Fatalf("total value: %v", err)
	}
	return v
}
