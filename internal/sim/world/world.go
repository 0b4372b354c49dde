package world

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync/atomic"

	"pipegrid.ai/internal/persistence/snapshot"
	"pipegrid.ai/internal/sim/catalogs"
	"pipegrid.ai/internal/sim/network/builder"
	"pipegrid.ai/internal/sim/network/complex"
	"pipegrid.ai/internal/sim/network/flow"
	"pipegrid.ai/internal/sim/network/netio"
	"pipegrid.ai/internal/sim/tuning"
)

var (
	ErrUnknownStructure   = errors.New("unknown structure")
	ErrDuplicateStructure = errors.New("structure id already registered")
	ErrCellOccupied       = errors.New("cell occupied")
	ErrUnknownDef         = errors.New("unknown structure definition")
	ErrUnknownNetwork     = errors.New("unknown network")
	ErrInvalidSpec        = errors.New("invalid structure spec")
	ErrTopology           = errors.New("inconsistent network topology")
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	DT                 float64
	Topology           string
	SnapshotEveryTicks int
	ObserverEveryTicks int

	Defaults tuning.FlowDefaults
}

// ConfigFromTuning maps the yaml tuning onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		DT:                 t.DT,
		Topology:           t.Topology,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		ObserverEveryTicks: t.ObserverEveryTicks,
		Defaults:           t.Defaults,
	}
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "main"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.DT == 0 {
		c.DT = 1
	}
	if c.ObserverEveryTicks <= 0 {
		c.ObserverEveryTicks = 1
	}
	d := tuning.Default().Defaults
	if c.Defaults.Friction == 0 {
		c.Defaults.Friction = d.Friction
	}
	if c.Defaults.CSquared == 0 {
		c.Defaults.CSquared = d.CSquared
	}
	if c.Defaults.MinDivider == 0 {
		c.Defaults.MinDivider = d.MinDivider
	}
	if c.Defaults.MaxDivider == 0 {
		c.Defaults.MaxDivider = d.MaxDivider
	}
}

// World is a single-threaded authoritative simulation of every resource network.
// All state must be accessed only from the world loop goroutine, or before Run starts.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	topo     netio.Topology
	log      *log.Logger

	tick atomic.Uint64

	structures map[string]*Structure
	cells      map[netio.Pos]*Structure

	networks map[string]*complex.Complex
	partNet  map[string]string
	engines  map[string]*flow.Engine
	builder  *builder.Builder

	nextNetworkNum atomic.Uint64

	register   chan RegisterRequest
	deregister chan DeregisterRequest
	networksQ  chan networksReq
	structureQ chan structureReq
	stop       chan struct{}

	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	observers     map[string]*observerClient

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger TickLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	lastStats []flow.TickStats
	metrics   atomic.Value
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// TickLogEntry records everything needed to replay one tick.
type TickLogEntry struct {
	Tick         uint64           `json:"tick"`
	Registered   []StructureSpec  `json:"registered,omitempty"`
	Deregistered []string         `json:"deregistered,omitempty"`
	Stats        []flow.TickStats `json:"stats,omitempty"`
	Digest       string           `json:"digest"`
}

// New validates every network definition up front so a bad catalog fails at startup.
func New(cfg WorldConfig, cats *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	cfg.applyDefaults()
	topo, err := netio.ParseTopology(cfg.Topology)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	w := &World{
		cfg:           cfg,
		catalogs:      cats,
		topo:          topo,
		log:           logger,
		structures:    map[string]*Structure{},
		cells:         map[netio.Pos]*Structure{},
		networks:      map[string]*complex.Complex{},
		partNet:       map[string]string{},
		engines:       map[string]*flow.Engine{},
		register:      make(chan RegisterRequest, 256),
		deregister:    make(chan DeregisterRequest, 256),
		networksQ:     make(chan networksReq, 64),
		structureQ:    make(chan structureReq, 64),
		stop:          make(chan struct{}),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 16),
		observers:     map[string]*observerClient{},
	}
	w.builder = builder.New(w, topo, logger)

	viscosity := map[string]float64{}
	for id, r := range cats.Resources.Defs {
		if r.Viscosity > 0 {
			viscosity[id] = r.Viscosity
		}
	}
	ids := make([]string, 0, len(cats.Networks.ByID))
	for id := range cats.Networks.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e, err := w.newEngine(cats.Networks.ByID[id])
		if err != nil {
			return nil, fmt.Errorf("network %s: %w", id, err)
		}
		e.Viscosity = viscosity
		w.engines[id] = e
	}
	return w, nil
}

func (w *World) newEngine(def catalogs.NetworkDef) (*flow.Engine, error) {
	curve, err := flow.ParseCurve(def.Pressure.Curve, def.Pressure.Threshold, def.Pressure.Exponent)
	if err != nil {
		return nil, err
	}
	switch def.Model.Kind {
	case "", "damped_wave":
	default:
		return nil, fmt.Errorf("unknown flow model %q", def.Model.Kind)
	}
	model := flow.DampedWave{
		Friction:        def.Model.Friction,
		CSquared:        def.Model.CSquared,
		CounterFriction: def.Model.CounterFriction,
		Adhesion:        def.Model.Adhesion,
		Curve:           curve,
	}
	if model.Friction == 0 {
		model.Friction = w.cfg.Defaults.Friction
	}
	if model.CSquared == 0 {
		model.CSquared = w.cfg.Defaults.CSquared
	}
	minDiv, maxDiv := def.Clamp.MinDivider, def.Clamp.MaxDivider
	if minDiv == 0 {
		minDiv = w.cfg.Defaults.MinDivider
	}
	if maxDiv == 0 {
		maxDiv = w.cfg.Defaults.MaxDivider
	}
	clamp, err := flow.ParseClamp(def.Clamp.Policy, minDiv, maxDiv)
	if err != nil {
		return nil, err
	}
	return flow.NewEngine(model, clamp, w.log), nil
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) Catalogs() *catalogs.Catalogs { return w.catalogs }

func (w *World) Topology() netio.Topology { return w.topo }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) newNetworkID() string {
	n := w.nextNetworkNum.Add(1)
	return fmt.Sprintf("N%06d", n)
}
