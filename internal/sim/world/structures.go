package world

import (
	"fmt"
	"sort"
	"strings"

	"pipegrid.ai/internal/sim/catalogs"
	"pipegrid.ai/internal/sim/network/graph"
	"pipegrid.ai/internal/sim/network/netio"
	"pipegrid.ai/internal/sim/network/requester"
	"pipegrid.ai/internal/sim/network/value"
	"pipegrid.ai/internal/sim/network/volume"
)

// StructureSpec is what a client supplies to place a structure.
type StructureSpec struct {
	ID       string             `json:"id"`
	Def      string             `json:"def"`
	Pos      [2]int             `json:"pos"`
	Rotation int                `json:"rotation,omitempty"`
	Contents map[string]float64 `json:"contents,omitempty"`
}

// Structure is a placed spatial object. Each structure contributes exactly one part.
type Structure struct {
	ID       string
	Def      string
	Pos      netio.Pos
	Rotation int
	Part     *graph.Part
}

// PartAt implements builder.Map.
func (w *World) PartAt(network string, pos netio.Pos) *graph.Part {
	s := w.cells[pos]
	if s == nil || s.Part.Network != network {
		return nil
	}
	return s.Part
}

func (w *World) Structure(id string) (*Structure, bool) {
	s, ok := w.structures[id]
	return s, ok
}

// StructureIDs returns every registered id in sorted order.
func (w *World) StructureIDs() []string {
	ids := make([]string, 0, len(w.structures))
	for id := range w.structures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *World) newPart(spec StructureSpec) (*graph.Part, catalogs.StructureDef, error) {
	def, ok := w.catalogs.Structures.ByID[spec.Def]
	if !ok {
		return nil, def, fmt.Errorf("%w: %s", ErrUnknownDef, spec.Def)
	}
	roles, unknown := graph.ParseRoles(def.Roles)
	if len(unknown) > 0 {
		return nil, def, fmt.Errorf("%w: %s has unknown roles %s", ErrUnknownDef, def.ID, strings.Join(unknown, ","))
	}

	origin := netio.Pos{X: spec.Pos[0], Y: spec.Pos[1]}
	footprint := make([]netio.Pos, 0, len(def.Cells()))
	for _, c := range def.Cells() {
		footprint = append(footprint, origin.Add(w.topo.Rotate(netio.Pos{X: c[0], Y: c[1]}, spec.Rotation)))
	}
	rel := make([]netio.Cell, 0, len(def.Ports))
	for _, p := range def.Ports {
		rel = append(rel, netio.Cell{
			Pos:  netio.Pos{X: p.Pos[0], Y: p.Pos[1]},
			Dir:  netio.Dir(p.Dir),
			Mode: netio.ParseMode(p.Mode),
		})
	}

	p := &graph.Part{
		ID:        spec.ID,
		Network:   def.Network,
		Roles:     roles,
		Footprint: footprint,
		IO:        netio.Place(w.topo, origin, rel, spec.Rotation),
		Supply:    value.Of(def.Supply),
		Demand:    value.Of(def.Demand),
		Owner:     spec.ID,
	}
	if def.Container != nil {
		p.Container = w.newContainer(*def.Container)
		if len(spec.Contents) > 0 {
			p.Container.Load(value.Of(spec.Contents))
		}
	}
	if r := def.Requester; r != nil {
		p.Requester = requester.New(requester.Config{
			Min:     r.Min,
			Max:     r.Max,
			Rate:    r.Rate,
			Mode:    requester.ParseMode(r.Mode),
			Weights: r.Weights,
		})
	}
	return p, def, nil
}

func (w *World) newContainer(cd catalogs.ContainerDef) *volume.Container {
	filters := make(map[string]volume.Filter, len(cd.Types))
	factors := map[string]float64{}
	perType := false
	for _, t := range cd.Types {
		f := volume.AllowAll()
		if o, ok := cd.Filters[t]; ok {
			if o.Receive != nil {
				f.Receive = *o.Receive
			}
			if o.Store != nil {
				f.Store = *o.Store
			}
			if o.Transfer != nil {
				f.Transfer = *o.Transfer
			}
		}
		filters[t] = f
		r := w.catalogs.Resources.Defs[t]
		if r.CapacityFactor > 0 {
			factors[t] = r.CapacityFactor
		}
		if !r.Shares() {
			perType = true
		}
	}
	mode := volume.ParseCapacityMode(cd.Mode)
	if cd.Mode == "" && perType {
		mode = volume.CapacityPerType
	}
	return volume.New(volume.Config{
		Capacity:       cd.Capacity,
		Mode:           mode,
		Filters:        filters,
		CapacityFactor: factors,
	})
}

// place puts a structure on the map without touching networks.
func (w *World) place(spec StructureSpec) (*Structure, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidSpec)
	}
	for typ, v := range spec.Contents {
		if v < 0 {
			return nil, fmt.Errorf("%w: negative %s contents", ErrInvalidSpec, typ)
		}
	}
	if _, dup := w.structures[spec.ID]; dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateStructure, spec.ID)
	}
	p, def, err := w.newPart(spec)
	if err != nil {
		return nil, err
	}
	for _, c := range p.Footprint {
		if other := w.cells[c]; other != nil {
			return nil, fmt.Errorf("%w: %s by %s", ErrCellOccupied, c, other.ID)
		}
	}
	s := &Structure{
		ID:       spec.ID,
		Def:      def.ID,
		Pos:      netio.Pos{X: spec.Pos[0], Y: spec.Pos[1]},
		Rotation: spec.Rotation,
		Part:     p,
	}
	for _, c := range p.Footprint {
		w.cells[c] = s
	}
	w.structures[s.ID] = s
	p.Placed = true
	return s, nil
}

func (w *World) unplace(s *Structure) {
	for _, c := range s.Part.Footprint {
		if w.cells[c] == s {
			delete(w.cells, c)
		}
	}
	delete(w.structures, s.ID)
	s.Part.Placed = false
}

// neighbourNetworks lists the networks of same-definition parts touching s, sorted.
func (w *World) neighbourNetworks(s *Structure) []string {
	seen := map[string]bool{}
	for _, c := range s.Part.Footprint {
		for d := 0; d < w.topo.Dirs(); d++ {
			o := w.cells[netio.Neighbor(w.topo, c, netio.Dir(d))]
			if o == nil || o == s || o.Part.Network != s.Part.Network {
				continue
			}
			if id, ok := w.partNet[o.ID]; ok {
				seen[id] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RegisterStructure places a structure and merges it into the networks it touches.
// Touching networks are dissolved and rebuilt from their members, so joins and
// merges both fall out of one rediscovery.
func (w *World) RegisterStructure(spec StructureSpec) (*Structure, error) {
	s, err := w.place(spec)
	if err != nil {
		return nil, err
	}
	seeds := []*graph.Part{s.Part}
	for _, id := range w.neighbourNetworks(s) {
		seeds = append(seeds, w.dissolve(id)...)
	}
	if err := w.rebuild(seeds); err != nil {
		w.undoRegister(s, seeds)
		return nil, err
	}
	return s, nil
}

// undoRegister takes s back off the map and restores the networks its
// registration dissolved.
func (w *World) undoRegister(s *Structure, seeds []*graph.Part) {
	var rest []*graph.Part
	for _, p := range seeds {
		if nid, ok := w.partNet[p.ID]; ok {
			w.dissolve(nid)
		}
		if p != s.Part {
			rest = append(rest, p)
		}
	}
	w.unplace(s)
	if err := w.rebuild(rest); err != nil {
		w.log.Printf("warn: restore networks after failed register of %s: %v", s.ID, err)
	}
}

// DeregisterStructure removes a structure. Its network is rebuilt from the remaining
// members and may split into several networks.
func (w *World) DeregisterStructure(id string) error {
	s, ok := w.structures[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStructure, id)
	}
	var rest []*graph.Part
	if nid, ok := w.partNet[id]; ok {
		for _, p := range w.dissolve(nid) {
			if p != s.Part {
				rest = append(rest, p)
			}
		}
	}
	w.unplace(s)
	return w.rebuild(rest)
}
