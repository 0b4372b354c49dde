package graph

import (
	"pipegrid.ai/internal/sim/network/netio"
	"pipegrid.ai/internal/sim/network/requester"
	"pipegrid.ai/internal/sim/network/value"
	"pipegrid.ai/internal/sim/network/volume"
)

// Part is one structure's participation in a resource network.
type Part struct {
	ID      string
	Network string // network definition id
	Roles   Role

	Footprint []netio.Pos
	IO        netio.Profile

	Container *volume.Container
	Requester *requester.Requester

	// Per-tick amounts for designated sources (Supply) and sinks (Demand).
	Supply value.Stack
	Demand value.Stack

	// Owner is the id of the spatial structure; Placed is false until it sits on the map.
	Owner  string
	Placed bool
}

// IsNode reports whether the part is recorded as a graph node. Plain conduit
// (no container, no role beyond Transmitter/Junction) is collapsed into edges.
func (p *Part) IsNode() bool {
	if p == nil {
		return false
	}
	if p.Container != nil {
		return true
	}
	return p.Roles&^(Transmitter|Junction) != 0
}

// Occupies reports whether pos is one of the part's footprint cells.
func (p *Part) Occupies(pos netio.Pos) bool {
	for _, c := range p.Footprint {
		if c == pos {
			return true
		}
	}
	return false
}
