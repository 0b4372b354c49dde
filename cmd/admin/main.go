package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pipegrid.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "networks":
			networksCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// snapshotCmd prints a snapshot's header and network partition.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used to find the latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -snapshot")
			os.Exit(2)
		}
		p, _, err := snapshot.Latest(filepath.Join(*dataDir, "worlds", *worldID, "snapshots"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest snapshot:", err)
			os.Exit(1)
		}
		if p == "" {
			fmt.Fprintln(os.Stderr, "no snapshots found")
			os.Exit(2)
		}
		path = p
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	describeSnapshot(os.Stdout, path, snap)
}

func describeSnapshot(out io.Writer, path string, snap snapshot.SnapshotV1) {
	type network struct {
		ID      string   `json:"id"`
		Def     string   `json:"def"`
		Members []string `json:"members"`
		Flowing int      `json:"flowing_edges"`
	}
	summary := struct {
		Path          string    `json:"path"`
		WorldID       string    `json:"world_id"`
		Tick          uint64    `json:"tick"`
		Topology      string    `json:"topology"`
		TickRate      int       `json:"tick_rate_hz"`
		DT            float64   `json:"dt"`
		CatalogDigest string    `json:"catalog_digest"`
		Structures    int       `json:"structures"`
		Networks      []network `json:"networks"`
	}{
		Path:          path,
		WorldID:       snap.Header.WorldID,
		Tick:          snap.Header.Tick,
		Topology:      snap.Topology,
		TickRate:      snap.TickRate,
		DT:            snap.DT,
		CatalogDigest: snap.CatalogDigest,
		Structures:    len(snap.Structures),
	}
	for _, nv := range snap.Networks {
		summary.Networks = append(summary.Networks, network{ID: nv.ID, Def: nv.Def, Members: nv.Members, Flowing: len(nv.Edges)})
	}
	printJSON(out, summary)
}
