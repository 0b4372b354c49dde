package layout

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layout is the initial set of placed structures.
type Layout struct {
	Structures []Placement `yaml:"structures"`
}

type Placement struct {
	ID       string             `yaml:"id"`
	Def      string             `yaml:"def"`
	Pos      [2]int             `yaml:"pos"`
	Rotation int                `yaml:"rotation,omitempty"`
	Contents map[string]float64 `yaml:"contents,omitempty"`
}

func Load(path string) (Layout, error) {
	var l Layout
	raw, err := os.ReadFile(path)
	if err != nil {
		return l, err
	}
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return l, fmt.Errorf("layout.yaml: %w", err)
	}
	seen := map[string]bool{}
	for i, p := range l.Structures {
		if p.ID == "" || p.Def == "" {
			return l, fmt.Errorf("layout.yaml: structure %d: id and def are required", i)
		}
		if seen[p.ID] {
			return l, fmt.Errorf("layout.yaml: duplicate id %s", p.ID)
		}
		seen[p.ID] = true
	}
	return l, nil
}
