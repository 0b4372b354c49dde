package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int     `yaml:"tick_rate_hz"`
	DT                 float64 `yaml:"dt"`
	Topology           string  `yaml:"topology"`
	SnapshotEveryTicks int     `yaml:"snapshot_every_ticks"`
	DigestEveryTicks   int     `yaml:"digest_every_ticks"`
	ObserverEveryTicks int     `yaml:"observer_every_ticks"`

	Defaults FlowDefaults `yaml:"defaults"`
}

// FlowDefaults fill network definitions that leave a coefficient at zero.
type FlowDefaults struct {
	Friction   float64 `yaml:"friction"`
	CSquared   float64 `yaml:"c_squared"`
	MinDivider float64 `yaml:"min_divider"`
	MaxDivider float64 `yaml:"max_divider"`
}

func Default() Tuning {
	t := Tuning{}
	t.applyDefaults()
	return t
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	if t.DT < 0 {
		return t, fmt.Errorf("tuning.yaml: dt must be >= 0")
	}
	return t, nil
}

func (t *Tuning) applyDefaults() {
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = "1.0"
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 5
	}
	if t.DT == 0 {
		t.DT = 1
	}
	if t.Topology == "" {
		t.Topology = "cardinal"
	}
	if t.SnapshotEveryTicks <= 0 {
		t.SnapshotEveryTicks = 3000
	}
	if t.DigestEveryTicks <= 0 {
		t.DigestEveryTicks = 1
	}
	if t.ObserverEveryTicks <= 0 {
		t.ObserverEveryTicks = 5
	}
	if t.Defaults.Friction == 0 {
		t.Defaults.Friction = 0.1
	}
	if t.Defaults.CSquared == 0 {
		t.Defaults.CSquared = 0.1
	}
	if t.Defaults.MinDivider == 0 {
		t.Defaults.MinDivider = 2
	}
	if t.Defaults.MaxDivider == 0 {
		t.Defaults.MaxDivider = 2
	}
}
