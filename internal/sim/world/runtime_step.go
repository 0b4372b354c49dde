package world

import (
	"time"

	"pipegrid.ai/internal/sim/network/flow"
)

func (w *World) stepInternal(regs []RegisterRequest, deregs []DeregisterRequest) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Apply deregistrations then registrations deterministically at the tick boundary.
	recordedDeregs := make([]string, 0, len(deregs))
	for _, req := range deregs {
		err := w.DeregisterStructure(req.ID)
		if err != nil {
			w.log.Printf("tick %d: deregister %s: %v", nowTick, req.ID, err)
		} else {
			recordedDeregs = append(recordedDeregs, req.ID)
		}
		if req.Resp != nil {
			req.Resp <- err
		}
	}
	recordedRegs := make([]StructureSpec, 0, len(regs))
	for _, req := range regs {
		var resp RegisterResponse
		if _, err := w.RegisterStructure(req.Spec); err != nil {
			w.log.Printf("tick %d: register %s: %v", nowTick, req.Spec.ID, err)
			resp.Err = err
		} else {
			recordedRegs = append(recordedRegs, req.Spec)
			resp.Info, _ = w.StructureInfo(req.Spec.ID)
		}
		if req.Resp != nil {
			req.Resp <- resp
		}
	}

	// Networks tick in id order; they share no parts so order only affects logging.
	ids := w.NetworkIDs()
	stats := make([]flow.TickStats, 0, len(ids))
	for _, id := range ids {
		st, err := w.TickNetwork(id, w.cfg.DT)
		if err != nil {
			w.log.Printf("tick %d: %v", nowTick, err)
			continue
		}
		stats = append(stats, st)
	}
	w.lastStats = stats

	digest := w.stateDigest(nowTick)
	w.stepObservers(nowTick, digest, recordedRegs, recordedDeregs)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:         nowTick,
			Registered:   recordedRegs,
			Deregistered: recordedDeregs,
			Stats:        stats,
			Digest:       digest,
		})
	}

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	w.storeMetrics(nextTick, digest, stepMS, stats)
}
