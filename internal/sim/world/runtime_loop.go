package world

import (
	"context"
	"time"

	"pipegrid.ai/internal/protocol"
)

type RegisterRequest struct {
	Spec StructureSpec
	Resp chan RegisterResponse
}

type RegisterResponse struct {
	Info protocol.StructureInfo
	Err  error
}

type DeregisterRequest struct {
	ID   string
	Resp chan error
}

type networksReq struct {
	Resp chan protocol.NetworksMsg
}

type structureReq struct {
	ID   string
	Resp chan RegisterResponse
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingRegs []RegisterRequest
	var pendingDeregs []DeregisterRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.register:
			pendingRegs = append(pendingRegs, req)
		case req := <-w.deregister:
			pendingDeregs = append(pendingDeregs, req)
		case req := <-w.networksQ:
			req.Resp <- w.NetworksMsg()
		case req := <-w.structureQ:
			info, err := w.StructureInfo(req.ID)
			req.Resp <- RegisterResponse{Info: info, Err: err}
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case <-ticker.C:
			w.stepInternal(pendingRegs, pendingDeregs)
			pendingRegs = pendingRegs[:0]
			pendingDeregs = pendingDeregs[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(regs []StructureSpec, deregs []string) (tick uint64, digest string) {
	rr := make([]RegisterRequest, 0, len(regs))
	for _, s := range regs {
		rr = append(rr, RegisterRequest{Spec: s})
	}
	dr := make([]DeregisterRequest, 0, len(deregs))
	for _, id := range deregs {
		dr = append(dr, DeregisterRequest{ID: id})
	}
	tick = w.tick.Load()
	w.stepInternal(rr, dr)
	return tick, w.stateDigest(tick)
}

// RequestRegister queues a registration for the next tick boundary and waits for it.
func (w *World) RequestRegister(ctx context.Context, spec StructureSpec) (protocol.StructureInfo, error) {
	resp := make(chan RegisterResponse, 1)
	select {
	case w.register <- RegisterRequest{Spec: spec, Resp: resp}:
	case <-ctx.Done():
		return protocol.StructureInfo{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.Info, r.Err
	case <-ctx.Done():
		return protocol.StructureInfo{}, ctx.Err()
	}
}

func (w *World) RequestDeregister(ctx context.Context, id string) error {
	resp := make(chan error, 1)
	select {
	case w.deregister <- DeregisterRequest{ID: id, Resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *World) RequestNetworks(ctx context.Context) (protocol.NetworksMsg, error) {
	resp := make(chan protocol.NetworksMsg, 1)
	select {
	case w.networksQ <- networksReq{Resp: resp}:
	case <-ctx.Done():
		return protocol.NetworksMsg{}, ctx.Err()
	}
	select {
	case m := <-resp:
		return m, nil
	case <-ctx.Done():
		return protocol.NetworksMsg{}, ctx.Err()
	}
}

func (w *World) RequestStructure(ctx context.Context, id string) (protocol.StructureInfo, error) {
	resp := make(chan RegisterResponse, 1)
	select {
	case w.structureQ <- structureReq{ID: id, Resp: resp}:
	case <-ctx.Done():
		return protocol.StructureInfo{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.Info, r.Err
	case <-ctx.Done():
		return protocol.StructureInfo{}, ctx.Err()
	}
}

// Observer channels are exported for transport packages.
func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
