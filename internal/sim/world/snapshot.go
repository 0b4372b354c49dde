package world

import (
	"fmt"

	"pipegrid.ai/internal/persistence/snapshot"
	"pipegrid.ai/internal/sim/network/graph"
	"pipegrid.ai/internal/sim/network/requester"
)

// ExportSnapshot captures the state after nowTick has been processed.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRate:           w.cfg.TickRateHz,
		DT:                 w.cfg.DT,
		Topology:           w.topo.Name(),
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		CatalogDigest:      w.catalogs.Digest(),
		Counters:           snapshot.CountersV1{NextNetwork: w.nextNetworkNum.Load()},
	}
	for _, id := range w.StructureIDs() {
		s := w.structures[id]
		sv := snapshot.StructureV1{
			ID:       s.ID,
			Def:      s.Def,
			Pos:      s.Pos.ToArray(),
			Rotation: s.Rotation,
		}
		if ct := s.Part.Container; ct != nil {
			if !ct.Stack().IsEmpty() {
				sv.Contents = ct.Stack().Map()
			}
			sv.Mark = ct.MarkedTotal()
		}
		if r := s.Part.Requester; r != nil {
			sv.Requester = r.State().String()
			sv.Weights = r.Config().Weights
		}
		snap.Structures = append(snap.Structures, sv)
	}
	for _, id := range w.NetworkIDs() {
		c := w.networks[id]
		nv := snapshot.NetworkV1{ID: c.ID(), Def: c.Network()}
		parts := c.Parts()
		sortParts(parts)
		for _, p := range parts {
			nv.Members = append(nv.Members, p.ID)
		}
		for _, e := range c.Graph().Edges() {
			if e.Flow() == 0 {
				continue
			}
			nv.Edges = append(nv.Edges, snapshot.EdgeV1{From: e.From.ID, To: e.To.ID, Flow: e.Flow()})
		}
		snap.Networks = append(snap.Networks, nv)
	}
	return snap
}

// ImportSnapshot restores an exported state into an empty world. Network ids and
// edge flow memory are preserved so a replay from the snapshot reproduces digests.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if len(w.structures) != 0 || len(w.networks) != 0 {
		return fmt.Errorf("import snapshot: world is not empty")
	}
	if snap.CatalogDigest != "" && snap.CatalogDigest != w.catalogs.Digest() {
		return fmt.Errorf("import snapshot: catalog digest mismatch")
	}
	if snap.Topology != "" && snap.Topology != w.topo.Name() {
		return fmt.Errorf("import snapshot: topology %s does not match %s", snap.Topology, w.topo.Name())
	}

	for _, sv := range snap.Structures {
		s, err := w.place(StructureSpec{
			ID:       sv.ID,
			Def:      sv.Def,
			Pos:      sv.Pos,
			Rotation: sv.Rotation,
			Contents: sv.Contents,
		})
		if err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		if ct := s.Part.Container; ct != nil {
			ct.RestoreMark(sv.Mark)
		}
		if r := s.Part.Requester; r != nil {
			if sv.Requester == requester.Requesting.String() {
				r.Restore(requester.Requesting)
			}
			if len(sv.Weights) > 0 {
				r.SetWeights(sv.Weights)
			}
		}
	}

	w.nextNetworkNum.Store(snap.Counters.NextNetwork)
	for _, nv := range snap.Networks {
		if len(nv.Members) == 0 {
			continue
		}
		s, ok := w.structures[nv.Members[0]]
		if !ok {
			return fmt.Errorf("import snapshot: network %s: %w: %s", nv.ID, ErrUnknownStructure, nv.Members[0])
		}
		c, err := w.buildNetwork(nv.ID, s.Part)
		if err != nil {
			return fmt.Errorf("import snapshot: network %s: %w", nv.ID, err)
		}
		if c.Len() != len(nv.Members) {
			w.log.Printf("warn: import snapshot: network %s has %d parts, recorded %d", nv.ID, c.Len(), len(nv.Members))
		}
		g := c.Graph()
		for _, ev := range nv.Edges {
			from, to := g.Node(ev.From), g.Node(ev.To)
			if from == nil || to == nil {
				continue
			}
			if e := g.EdgeBetween(from, to); e != nil {
				e.SetFlow(ev.Flow)
			}
		}
	}

	// Anything the recorded partition missed still needs a network.
	var rest []*graph.Part
	for _, id := range w.StructureIDs() {
		if _, ok := w.partNet[id]; !ok {
			rest = append(rest, w.structures[id].Part)
		}
	}
	if err := w.rebuild(rest); err != nil {
		return err
	}

	w.tick.Store(snap.Header.Tick + 1)
	return nil
}
