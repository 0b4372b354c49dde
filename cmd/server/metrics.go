package main

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"pipegrid.ai/internal/sim/world"
)

var (
	worldTickDesc = prometheus.NewDesc(
		"pipegrid_world_tick",
		"Current world tick.",
		[]string{"world"}, nil,
	)
	worldStructuresDesc = prometheus.NewDesc(
		"pipegrid_world_structures",
		"Registered structures.",
		[]string{"world"}, nil,
	)
	worldNetworksDesc = prometheus.NewDesc(
		"pipegrid_world_networks",
		"Live networks.",
		[]string{"world"}, nil,
	)
	worldObserversDesc = prometheus.NewDesc(
		"pipegrid_world_observers",
		"Connected observer sessions.",
		[]string{"world"}, nil,
	)
	worldQueueDepthDesc = prometheus.NewDesc(
		"pipegrid_world_queue_depth",
		"Channel backlog depth.",
		[]string{"world", "queue"}, nil,
	)
	worldStepMSDesc = prometheus.NewDesc(
		"pipegrid_world_step_ms",
		"Last tick step duration in milliseconds.",
		[]string{"world"}, nil,
	)
	flowTickDesc = prometheus.NewDesc(
		"pipegrid_flow_tick_value",
		"Value handled by the flow engine during the last tick.",
		[]string{"world", "kind"}, nil,
	)
	flowBlockedDesc = prometheus.NewDesc(
		"pipegrid_flow_blocked_edges",
		"One-way edges blocked during the last tick.",
		[]string{"world"}, nil,
	)
	flowIdleDesc = prometheus.NewDesc(
		"pipegrid_flow_idle_networks",
		"Networks that did not run during the last tick.",
		[]string{"world"}, nil,
	)
	storedDesc = prometheus.NewDesc(
		"pipegrid_network_stored",
		"Stored value per network definition and resource type.",
		[]string{"world", "network", "type"}, nil,
	)
	indexQueueDepthDesc = prometheus.NewDesc(
		"pipegrid_index_queue_depth",
		"Index writer queue depth.",
		nil, nil,
	)
	indexQueueCapacityDesc = prometheus.NewDesc(
		"pipegrid_index_queue_capacity",
		"Index writer queue capacity.",
		nil, nil,
	)
	indexDroppedDesc = prometheus.NewDesc(
		"pipegrid_index_dropped_total",
		"Index writes dropped because the queue was full.",
		[]string{"kind"}, nil,
	)
)

// worldCollector reads the world's published metrics at scrape time.
type worldCollector struct {
	world *world.World
	idx   runtimeIndex
}

func newMetricsRegistry(w *world.World, idx runtimeIndex) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(worldCollector{world: w, idx: idx})
	return reg
}

func (c worldCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- worldTickDesc
	ch <- worldStructuresDesc
	ch <- worldNetworksDesc
	ch <- worldObserversDesc
	ch <- worldQueueDepthDesc
	ch <- worldStepMSDesc
	ch <- flowTickDesc
	ch <- flowBlockedDesc
	ch <- flowIdleDesc
	ch <- storedDesc
	if c.idx != nil {
		ch <- indexQueueDepthDesc
		ch <- indexQueueCapacityDesc
		ch <- indexDroppedDesc
	}
}

func (c worldCollector) Collect(ch chan<- prometheus.Metric) {
	id := c.world.ID()
	m := c.world.Metrics()
	tick := c.world.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	gauge(worldTickDesc, float64(tick), id)
	gauge(worldStructuresDesc, float64(m.Structures), id)
	gauge(worldNetworksDesc, float64(m.Networks), id)
	gauge(worldObserversDesc, float64(m.Observers), id)
	gauge(worldQueueDepthDesc, float64(m.QueueDepths.Register), id, "register")
	gauge(worldQueueDepthDesc, float64(m.QueueDepths.Deregister), id, "deregister")
	gauge(worldStepMSDesc, m.StepMS, id)

	gauge(flowTickDesc, m.Moved, id, "moved")
	gauge(flowTickDesc, m.Produced, id, "produced")
	gauge(flowTickDesc, m.Consumed, id, "consumed")
	gauge(flowTickDesc, m.Requested, id, "requested")
	gauge(flowBlockedDesc, float64(m.Blocked), id)
	gauge(flowIdleDesc, float64(m.Idle), id)

	defs := make([]string, 0, len(m.Stored))
	for def := range m.Stored {
		defs = append(defs, def)
	}
	sort.Strings(defs)
	for _, def := range defs {
		types := make([]string, 0, len(m.Stored[def]))
		for typ := range m.Stored[def] {
			types = append(types, typ)
		}
		sort.Strings(types)
		for _, typ := range types {
			gauge(storedDesc, m.Stored[def][typ], id, def, typ)
		}
	}

	if c.idx == nil {
		return
	}
	s := c.idx.Stats()
	gauge(indexQueueDepthDesc, float64(s.QueueDepth))
	gauge(indexQueueCapacityDesc, float64(s.QueueCapacity))
	ch <- prometheus.MustNewConstMetric(indexDroppedDesc, prometheus.CounterValue, float64(s.DropTickTotal), "tick")
	ch <- prometheus.MustNewConstMetric(indexDroppedDesc, prometheus.CounterValue, float64(s.DropSnapshotTotal), "snapshot")
}
