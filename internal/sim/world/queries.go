package world

import (
	"fmt"
	"sort"

	"pipegrid.ai/internal/protocol"
	"pipegrid.ai/internal/sim/network/complex"
	"pipegrid.ai/internal/sim/network/graph"
)

func (w *World) TotalValue(networkID string) (float64, error) {
	c, ok := w.networks[networkID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownNetwork, networkID)
	}
	return c.TotalValue(), nil
}

func (w *World) TotalByType(networkID, typ string) (float64, error) {
	c, ok := w.networks[networkID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownNetwork, networkID)
	}
	return c.TotalByType(typ), nil
}

// StoredPercent is the fill fraction in [0,1] of a structure's container; 0 without one.
func (w *World) StoredPercent(structureID string) (float64, error) {
	s, ok := w.structures[structureID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownStructure, structureID)
	}
	if s.Part.Container == nil {
		return 0, nil
	}
	return s.Part.Container.StoredPercent(), nil
}

// AdjacencyList returns the sorted graph neighbours of a structure's node.
// Collapsed conduit and unconnected parts have none.
func (w *World) AdjacencyList(structureID string) ([]string, error) {
	s, ok := w.structures[structureID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStructure, structureID)
	}
	c, ok := w.NetworkOf(structureID)
	if !ok || c.Graph().Node(structureID) == nil {
		return nil, nil
	}
	var out []string
	for _, p := range c.Graph().AdjacencyOf(s.Part) {
		out = append(out, p.ID)
	}
	sort.Strings(out)
	return out, nil
}

func (w *World) StructureInfo(id string) (protocol.StructureInfo, error) {
	s, ok := w.structures[id]
	if !ok {
		return protocol.StructureInfo{}, fmt.Errorf("%w: %s", ErrUnknownStructure, id)
	}
	info := protocol.StructureInfo{
		ID:       s.ID,
		Def:      s.Def,
		Network:  w.partNet[s.ID],
		Pos:      s.Pos.ToArray(),
		Rotation: s.Rotation,
		Roles:    s.Part.Roles.String(),
	}
	if ct := s.Part.Container; ct != nil {
		info.StoredPercent = ct.StoredPercent()
		if !ct.Stack().IsEmpty() {
			info.Contents = ct.Stack().Map()
		}
	}
	if s.Part.Requester != nil {
		info.Requester = s.Part.Requester.State().String()
	}
	info.Adjacent, _ = w.AdjacencyList(id)
	return info, nil
}

func (w *World) networkInfo(c *complex.Complex) protocol.NetworkInfo {
	g := c.Graph()
	info := protocol.NetworkInfo{
		ID:      c.ID(),
		Def:     c.Network(),
		Working: c.Working(),
		Parts:   c.Len(),
		Nodes:   g.NodeCount(),
		Edges:   g.EdgeCount(),
		Total:   c.TotalValue(),
	}
	byType := c.TotalsByType()
	if !byType.IsEmpty() {
		info.ByType = byType.Map()
	}
	for _, e := range byType.Entries() {
		info.Units += e.Value * w.catalogs.Resources.Defs[e.Type].Ratio()
	}
	for _, r := range graph.AllRoles {
		if r == graph.Transmitter {
			continue
		}
		if v := c.TotalByRole(r); v > 0 {
			if info.ByRole == nil {
				info.ByRole = map[string]float64{}
			}
			info.ByRole[r.String()] = v
		}
	}
	return info
}

func edgeInfos(c *complex.Complex) []protocol.EdgeInfo {
	edges := c.Graph().Edges()
	out := make([]protocol.EdgeInfo, 0, len(edges))
	for _, e := range edges {
		out = append(out, protocol.EdgeInfo{
			From:   e.From.ID,
			To:     e.To.ID,
			Mode:   e.Mode.String(),
			Length: e.Length,
			Flow:   e.Flow(),
		})
	}
	return out
}

// NetworkInfos describes every live network, sorted by id.
func (w *World) NetworkInfos() []protocol.NetworkInfo {
	ids := w.NetworkIDs()
	out := make([]protocol.NetworkInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.networkInfo(w.networks[id]))
	}
	return out
}

func (w *World) NetworksMsg() protocol.NetworksMsg {
	return protocol.NetworksMsg{
		Type:            protocol.TypeNetworks,
		ProtocolVersion: protocol.Version,
		Tick:            w.tick.Load(),
		Networks:        w.NetworkInfos(),
	}
}
