package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pipegrid.ai/internal/sim/network/graph"
)

type Catalogs struct {
	Resources  ResourceCatalog
	Networks   NetworkCatalog
	Structures StructureCatalog
}

type ResourceCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ResourceDef
	PaletteDigest string
	DefsDigest    string
}

// ResourceDef is immutable once loaded.
type ResourceDef struct {
	ID        string  `json:"id"`
	Color     string  `json:"color,omitempty"`
	Viscosity float64 `json:"viscosity,omitempty"`

	// SharesCapacity=false gives the type its own bound in any container that stores it.
	SharesCapacity *bool   `json:"shares_capacity,omitempty"`
	CapacityFactor float64 `json:"capacity_factor,omitempty"`
	ValueRatio     float64 `json:"value_ratio,omitempty"`
}

func (d ResourceDef) Shares() bool { return d.SharesCapacity == nil || *d.SharesCapacity }

// Ratio is the display units per stored unit (default 1).
func (d ResourceDef) Ratio() float64 {
	if d.ValueRatio <= 0 {
		return 1
	}
	return d.ValueRatio
}

type NetworkCatalog struct {
	ByID   map[string]NetworkDef
	Digest string
}

type NetworkDef struct {
	ID                 string       `json:"id"`
	RequiresController bool         `json:"requires_controller,omitempty"`
	Model              FlowModelDef `json:"model"`
	Pressure           PressureDef  `json:"pressure"`
	Clamp              ClampDef     `json:"clamp"`
}

type FlowModelDef struct {
	Kind            string  `json:"kind"` // "damped_wave"
	Friction        float64 `json:"friction"`
	CSquared        float64 `json:"c_squared"`
	CounterFriction float64 `json:"counter_friction,omitempty"`
	Adhesion        float64 `json:"adhesion,omitempty"`
}

type PressureDef struct {
	Curve     string  `json:"curve"` // "linear","threshold"
	Threshold float64 `json:"threshold,omitempty"`
	Exponent  float64 `json:"exponent,omitempty"`
}

type ClampDef struct {
	Policy     string  `json:"policy"` // "fraction","connection"
	MinDivider float64 `json:"min_divider,omitempty"`
	MaxDivider float64 `json:"max_divider,omitempty"`
}

type StructureCatalog struct {
	ByID   map[string]StructureDef
	Digest string
}

type StructureDef struct {
	ID      string   `json:"id"`
	Network string   `json:"network"`
	Kind    string   `json:"kind"` // "node","conduit"
	Roles   []string `json:"roles,omitempty"`

	// Footprint cells relative to the origin; empty means the origin only.
	Footprint [][2]int  `json:"footprint,omitempty"`
	Ports     []PortDef `json:"ports,omitempty"`

	Container *ContainerDef      `json:"container,omitempty"`
	Supply    map[string]float64 `json:"supply,omitempty"`
	Demand    map[string]float64 `json:"demand,omitempty"`
	Requester *RequesterDef      `json:"requester,omitempty"`
}

type PortDef struct {
	Pos  [2]int `json:"pos"`
	Dir  int    `json:"dir"`
	Mode string `json:"mode"` // "in","out","both","visual"
}

type ContainerDef struct {
	Capacity float64  `json:"capacity"`
	Mode     string   `json:"mode,omitempty"` // "total","per_type"; empty derives from resource sharing
	Types    []string `json:"types"`

	// Filters override the default allow-all flags per type.
	Filters map[string]FilterDef `json:"filters,omitempty"`
}

type FilterDef struct {
	Receive  *bool `json:"receive,omitempty"`
	Store    *bool `json:"store,omitempty"`
	Transfer *bool `json:"transfer,omitempty"`
}

type RequesterDef struct {
	Min     float64            `json:"min"`
	Max     float64            `json:"max"`
	Rate    float64            `json:"rate"`
	Mode    string             `json:"mode,omitempty"` // "automatic","manual"
	Weights map[string]float64 `json:"weights,omitempty"`
}

func (d StructureDef) IsConduit() bool { return strings.EqualFold(d.Kind, "conduit") }

func (d StructureDef) IsNode() bool { return strings.EqualFold(d.Kind, "node") }

// Cells returns the footprint offsets, defaulting to the origin.
func (d StructureDef) Cells() [][2]int {
	if len(d.Footprint) == 0 {
		return [][2]int{{0, 0}}
	}
	return d.Footprint
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadResources(filepath.Join(configDir, "resources.json"), &c.Resources); err != nil {
		return nil, err
	}
	if err := loadNetworks(filepath.Join(configDir, "networks.json"), &c.Networks); err != nil {
		return nil, err
	}
	if err := loadStructures(filepath.Join(configDir, "structures.json"), &c.Structures); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Digest covers every catalog so snapshots can refuse mismatched configs.
func (c *Catalogs) Digest() string {
	var b bytes.Buffer
	for _, s := range []string{c.Resources.PaletteDigest, c.Resources.DefsDigest, c.Networks.Digest, c.Structures.Digest} {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return sha256Hex(b.Bytes())
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadResources(path string, out *ResourceCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ResourceDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("resources.json: %w", err)
	}
	out.Defs = map[string]ResourceDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("resources.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("resources.json: duplicate id %s", d.ID)
		}
		if d.Viscosity < 0 || d.CapacityFactor < 0 {
			return fmt.Errorf("resources.json: %s: negative coefficient", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadNetworks(path string, out *NetworkCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []NetworkDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("networks.json: %w", err)
	}
	out.ByID = map[string]NetworkDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("networks.json: empty id")
		}
		if d.Model.Friction < 0 || d.Model.Friction > 1 {
			return fmt.Errorf("networks.json: %s: friction must be in [0,1]", d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func loadStructures(path string, out *StructureCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []StructureDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("structures.json: %w", err)
	}
	out.ByID = map[string]StructureDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("structures.json: empty id")
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func (c *Catalogs) validate() error {
	ids := make([]string, 0, len(c.Structures.ByID))
	for id := range c.Structures.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		d := c.Structures.ByID[id]
		if _, ok := c.Networks.ByID[d.Network]; !ok {
			return fmt.Errorf("structure %s: unknown network %q", id, d.Network)
		}
		if d.Container != nil {
			if d.Container.Capacity < 0 {
				return fmt.Errorf("structure %s: negative capacity", id)
			}
			for _, t := range d.Container.Types {
				if _, ok := c.Resources.Defs[t]; !ok {
					return fmt.Errorf("structure %s: unknown resource %q", id, t)
				}
			}
		}
		for _, m := range []map[string]float64{d.Supply, d.Demand} {
			for t := range m {
				if _, ok := c.Resources.Defs[t]; !ok {
					return fmt.Errorf("structure %s: unknown resource %q", id, t)
				}
			}
		}
		if r := d.Requester; r != nil && (r.Min < 0 || r.Max > 1 || r.Min > r.Max) {
			return fmt.Errorf("structure %s: requester thresholds must satisfy 0 <= min <= max <= 1", id)
		}
		if err := validateShape(d); err != nil {
			return fmt.Errorf("structure %s: %w", id, err)
		}
	}
	return nil
}

// validateShape checks that ports sit on the footprint and that the declared
// kind agrees with how the graph builder will classify the part.
func validateShape(d StructureDef) error {
	cells := make(map[[2]int]bool, len(d.Cells()))
	for _, c := range d.Cells() {
		cells[c] = true
	}
	for i, p := range d.Ports {
		if !cells[p.Pos] {
			return fmt.Errorf("port %d at %v is off the footprint", i, p.Pos)
		}
	}

	roles, unknown := graph.ParseRoles(d.Roles)
	if len(unknown) > 0 {
		return fmt.Errorf("unknown roles %s", strings.Join(unknown, ","))
	}
	active := d.Container != nil || roles&^(graph.Transmitter|graph.Junction) != 0
	switch {
	case d.IsConduit():
		if active || d.Requester != nil || len(d.Supply) > 0 || len(d.Demand) > 0 {
			return fmt.Errorf("conduit cannot carry a container, node roles, supply, demand or a requester")
		}
	case d.IsNode():
		if !active {
			return fmt.Errorf("node needs a container or a role beyond transmitter/junction")
		}
	default:
		return fmt.Errorf("unknown kind %q", d.Kind)
	}
	return nil
}
