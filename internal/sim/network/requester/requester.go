package requester

import (
	"sort"

	"pipegrid.ai/internal/sim/network/value"
)

type State int

const (
	Idle State = iota
	Requesting
)

func (s State) String() string {
	if s == Requesting {
		return "REQUESTING"
	}
	return "IDLE"
}

type Mode int

const (
	// Automatic splits the pull quota by each type's availability in the network.
	Automatic Mode = iota
	// Manual splits the quota by fixed operator weights.
	Manual
)

func ParseMode(s string) Mode {
	if s == "manual" || s == "MANUAL" {
		return Manual
	}
	return Automatic
}

func (m Mode) String() string {
	if m == Manual {
		return "MANUAL"
	}
	return "AUTOMATIC"
}

type Config struct {
	Min     float64
	Max     float64
	Rate    float64
	Mode    Mode
	Weights map[string]float64
}

// Requester pulls resources into its owner with min/max hysteresis so it does not
// flap around a single threshold.
type Requester struct {
	cfg   Config
	state State
}

func New(cfg Config) *Requester {
	if cfg.Max < cfg.Min {
		cfg.Max = cfg.Min
	}
	return &Requester{cfg: cfg}
}

func (r *Requester) Config() Config { return r.cfg }

func (r *Requester) State() State { return r.state }

// Restore sets the state directly (snapshot import).
func (r *Requester) Restore(s State) { r.state = s }

// SetWeights replaces the manual weights.
func (r *Requester) SetWeights(w map[string]float64) {
	cp := make(map[string]float64, len(w))
	for k, v := range w {
		cp[k] = v
	}
	r.cfg.Weights = cp
}

// Update applies the hysteresis transition for the current fill fraction.
func (r *Requester) Update(fraction float64) State {
	switch r.state {
	case Idle:
		if fraction < r.cfg.Min {
			r.state = Requesting
		}
	case Requesting:
		if fraction > r.cfg.Max {
			r.state = Idle
		}
	}
	return r.state
}

// Plan computes how much of each allowed type to pull this tick.
// free is the owner's remaining room, availability reports what the network can supply per type.
func (r *Requester) Plan(free float64, allowed []string, availability func(typ string) float64, dt float64) value.Stack {
	if r.state != Requesting || free <= 0 || len(allowed) == 0 {
		return value.Stack{}
	}
	quota := r.cfg.Rate * dt
	if quota <= 0 {
		return value.Stack{}
	}
	if quota > free {
		quota = free
	}

	types := append([]string(nil), allowed...)
	sort.Strings(types)

	weights := make(map[string]float64, len(types))
	var sum float64
	for _, t := range types {
		var w float64
		switch r.cfg.Mode {
		case Manual:
			w = r.cfg.Weights[t]
		default:
			if availability != nil {
				w = availability(t)
			}
		}
		if w <= 0 {
			continue
		}
		weights[t] = w
		sum += w
	}
	if sum <= 0 {
		return value.Stack{}
	}

	out := make(map[string]float64, len(weights))
	for t, w := range weights {
		amt := quota * w / sum
		if r.cfg.Mode == Manual && availability != nil {
			if avail := availability(t); amt > avail {
				amt = avail
			}
		}
		out[t] = amt
	}
	return value.Of(out)
}
