package world

import (
	"encoding/json"
	"sort"

	"pipegrid.ai/internal/observerproto"
	"pipegrid.ai/internal/protocol"
)

// ObserverJoinRequest registers a read-only observer session that receives
// per-tick network state on TickOut.
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte

	Networks   []string
	EveryTicks int
	WithEdges  bool
}

// ObserverSubscribeRequest updates an existing observer session subscription settings.
type ObserverSubscribeRequest struct {
	SessionID string

	Networks   []string
	EveryTicks int
	WithEdges  bool
}

type observerClient struct {
	id      string
	tickOut chan []byte
	cfg     observerCfg
}

type observerCfg struct {
	networks   map[string]bool
	everyTicks int
	withEdges  bool
}

func (w *World) newObserverCfg(networks []string, every int, withEdges bool) observerCfg {
	if every <= 0 {
		every = w.cfg.ObserverEveryTicks
	}
	cfg := observerCfg{everyTicks: every, withEdges: withEdges}
	if len(networks) > 0 {
		cfg.networks = make(map[string]bool, len(networks))
		for _, id := range networks {
			cfg.networks[id] = true
		}
	}
	return cfg
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	w.observers[req.SessionID] = &observerClient{
		id:      req.SessionID,
		tickOut: req.TickOut,
		cfg:     w.newObserverCfg(req.Networks, req.EveryTicks, req.WithEdges),
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.cfg = w.newObserverCfg(req.Networks, req.EveryTicks, req.WithEdges)
}

func (w *World) handleObserverLeave(id string) {
	delete(w.observers, id)
}

func (w *World) stepObservers(nowTick uint64, digest string, regs []StructureSpec, deregs []string) {
	if len(w.observers) == 0 {
		return
	}
	regIDs := make([]string, 0, len(regs))
	for _, s := range regs {
		regIDs = append(regIDs, s.ID)
	}
	infos := w.NetworkInfos()

	ids := make([]string, 0, len(w.observers))
	for id := range w.observers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := w.observers[id]
		if nowTick%uint64(c.cfg.everyTicks) != 0 {
			continue
		}
		msg := observerproto.TickMsg{
			Type:            "TICK",
			ProtocolVersion: observerproto.Version,
			Tick:            nowTick,
			Digest:          digest,
			Networks:        make([]protocol.NetworkInfo, 0, len(infos)),
			Registered:      regIDs,
			Deregistered:    deregs,
		}
		for _, info := range infos {
			if c.cfg.networks != nil && !c.cfg.networks[info.ID] {
				continue
			}
			msg.Networks = append(msg.Networks, info)
			if c.cfg.withEdges {
				msg.Edges = append(msg.Edges, observerproto.NetworkEdges{
					Network: info.ID,
					Edges:   edgeInfos(w.networks[info.ID]),
				})
			}
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		sendLatest(c.tickOut, b)
	}
}
