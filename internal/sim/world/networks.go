package world

import (
	"fmt"
	"sort"

	"pipegrid.ai/internal/sim/network/complex"
	"pipegrid.ai/internal/sim/network/flow"
	"pipegrid.ai/internal/sim/network/graph"
)

func (w *World) options(network string) complex.Options {
	def := w.catalogs.Networks.ByID[network]
	return complex.Options{RequiresController: def.RequiresController, Logger: w.log}
}

// dissolve drops a network and returns its former members sorted by id.
func (w *World) dissolve(id string) []*graph.Part {
	c, ok := w.networks[id]
	if !ok {
		return nil
	}
	parts := c.Parts()
	c.Detach()
	for _, p := range parts {
		if w.partNet[p.ID] == id {
			delete(w.partNet, p.ID)
		}
	}
	delete(w.networks, id)
	sortParts(parts)
	return parts
}

// rebuild assigns every seed to a network, discovering a new one per seed that is
// not yet covered. Seeds are visited in id order so ids are assigned deterministically.
func (w *World) rebuild(seeds []*graph.Part) error {
	seeds = append([]*graph.Part(nil), seeds...)
	sortParts(seeds)
	for _, p := range seeds {
		if !p.Placed {
			continue
		}
		if _, done := w.partNet[p.ID]; done {
			continue
		}
		if _, err := w.buildNetwork(w.newNetworkID(), p); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) buildNetwork(id string, seed *graph.Part) (*complex.Complex, error) {
	c, err := w.builder.Build(id, seed.Network, seed, w.options(seed.Network))
	if err != nil {
		return nil, err
	}
	parts := c.Parts()
	for _, p := range parts {
		if prev, ok := w.partNet[p.ID]; ok && prev != id {
			// A part can only belong to one network; the stale one must be dissolved first.
			c.Detach()
			if owner, ok := w.networks[prev]; ok {
				owner.Attach()
			}
			return nil, fmt.Errorf("%w: part %s already in network %s", ErrTopology, p.ID, prev)
		}
	}
	for _, p := range parts {
		w.partNet[p.ID] = id
	}
	w.networks[id] = c
	return c, nil
}

// RebuildNetwork rediscovers the network containing seedID from scratch.
func (w *World) RebuildNetwork(seedID string) (*complex.Complex, error) {
	s, ok := w.structures[seedID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStructure, seedID)
	}
	seeds := []*graph.Part{s.Part}
	if nid, ok := w.partNet[seedID]; ok {
		seeds = w.dissolve(nid)
	}
	if err := w.rebuild(seeds); err != nil {
		return nil, err
	}
	return w.networks[w.partNet[seedID]], nil
}

// TickNetwork advances one network by one simulation step of length dt.
func (w *World) TickNetwork(id string, dt float64) (flow.TickStats, error) {
	c, ok := w.networks[id]
	if !ok {
		return flow.TickStats{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, id)
	}
	e := w.engines[c.Network()]
	if e == nil {
		return flow.TickStats{}, fmt.Errorf("%w: no engine for %s", ErrUnknownNetwork, c.Network())
	}
	return e.Tick(c, w.tick.Load(), dt), nil
}

// NetworkIDs returns every live network id in sorted order.
func (w *World) NetworkIDs() []string {
	ids := make([]string, 0, len(w.networks))
	for id := range w.networks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *World) Network(id string) (*complex.Complex, bool) {
	c, ok := w.networks[id]
	return c, ok
}

// NetworkOf returns the network a structure belongs to.
func (w *World) NetworkOf(structureID string) (*complex.Complex, bool) {
	id, ok := w.partNet[structureID]
	if !ok {
		return nil, false
	}
	return w.Network(id)
}

func sortParts(ps []*graph.Part) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}
