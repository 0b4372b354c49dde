package world

import "pipegrid.ai/internal/sim/network/flow"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`
	// Digest is the state digest of the last processed tick.
	Digest string `json:"digest,omitempty"`

	Structures int `json:"structures"`
	Networks   int `json:"networks"`
	Observers  int `json:"observers"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	// Per-tick flow totals summed over every network.
	Moved     float64 `json:"moved"`
	Produced  float64 `json:"produced"`
	Consumed  float64 `json:"consumed"`
	Requested float64 `json:"requested"`
	Blocked   int     `json:"blocked"`
	Idle      int     `json:"idle"`

	// Stored value per network definition and resource type.
	Stored map[string]map[string]float64 `json:"stored,omitempty"`
}

type QueueDepths struct {
	Register   int `json:"register"`
	Deregister int `json:"deregister"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

// LastStats returns the per-network flow statistics of the most recent tick.
func (w *World) LastStats() []flow.TickStats {
	return append([]flow.TickStats(nil), w.lastStats...)
}

func (w *World) storeMetrics(nextTick uint64, digest string, stepMS float64, stats []flow.TickStats) {
	m := WorldMetrics{
		Tick:       nextTick,
		Digest:     digest,
		Structures: len(w.structures),
		Networks:   len(w.networks),
		Observers:  len(w.observers),
		QueueDepths: QueueDepths{
			Register:   len(w.register),
			Deregister: len(w.deregister),
		},
		StepMS: stepMS,
		Stored: map[string]map[string]float64{},
	}
	for _, st := range stats {
		m.Moved += st.Moved
		m.Produced += st.Produced
		m.Consumed += st.Consumed
		m.Requested += st.Requested
		m.Blocked += st.Blocked
		if st.Idle {
			m.Idle++
		}
	}
	for _, id := range w.NetworkIDs() {
		c := w.networks[id]
		byDef := m.Stored[c.Network()]
		if byDef == nil {
			byDef = map[string]float64{}
			m.Stored[c.Network()] = byDef
		}
		for _, e := range c.TotalsByType().Entries() {
			byDef[e.Type] += e.Value
		}
	}
	w.metrics.Store(m)
}
