package main

import (
	"fmt"
	"log"
	"os"

	"pipegrid.ai/internal/persistence/snapshot"
	"pipegrid.ai/internal/sim/catalogs"
	"pipegrid.ai/internal/sim/layout"
	"pipegrid.ai/internal/sim/tuning"
	"pipegrid.ai/internal/sim/world"
)

type bootOptions struct {
	WorldID      string
	SnapshotPath string
	LayoutPath   string
}

// bootWorld creates the world either resumed from a snapshot or fresh from the layout.
// A missing layout file yields an empty world.
func bootWorld(opts bootOptions, cats *catalogs.Catalogs, tune tuning.Tuning, logger *log.Logger) (*world.World, error) {
	cfg := world.ConfigFromTuning(opts.WorldID, tune)

	if opts.SnapshotPath != "" {
		snap, err := snapshot.ReadSnapshot(opts.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != opts.WorldID {
			return nil, fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", opts.WorldID, snap.Header.WorldID)
		}
		if snap.TickRate > 0 {
			cfg.TickRateHz = snap.TickRate
		}
		if snap.DT > 0 {
			cfg.DT = snap.DT
		}
		if snap.Topology != "" {
			cfg.Topology = snap.Topology
		}
		if snap.SnapshotEveryTicks > 0 {
			cfg.SnapshotEveryTicks = snap.SnapshotEveryTicks
		}
		w, err := world.New(cfg, cats, logger)
		if err != nil {
			return nil, err
		}
		if err := w.ImportSnapshot(snap); err != nil {
			return nil, fmt.Errorf("import snapshot: %w", err)
		}
		return w, nil
	}

	w, err := world.New(cfg, cats, logger)
	if err != nil {
		return nil, err
	}
	if opts.LayoutPath == "" {
		return w, nil
	}
	l, err := layout.Load(opts.LayoutPath)
	if os.IsNotExist(err) {
		return w, nil
	}
	if err != nil {
		return nil, err
	}
	for _, p := range l.Structures {
		spec := world.StructureSpec{ID: p.ID, Def: p.Def, Pos: p.Pos, Rotation: p.Rotation, Contents: p.Contents}
		if _, err := w.RegisterStructure(spec); err != nil {
			return nil, fmt.Errorf("layout %s: %w", p.ID, err)
		}
	}
	return w, nil
}
