package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is the full restartable state of one world: every registered structure
// with its container contents, plus the network partition and edge flow memory.
type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate           int     `json:"tick_rate_hz"`
	DT                 float64 `json:"dt"`
	Topology           string  `json:"topology"`
	SnapshotEveryTicks int     `json:"snapshot_every_ticks,omitempty"`
	CatalogDigest      string  `json:"catalog_digest"`

	Structures []StructureV1 `json:"structures"`
	Networks   []NetworkV1   `json:"networks"`
	Counters   CountersV1    `json:"counters"`
}

type CountersV1 struct {
	NextNetwork uint64 `json:"next_network"`
}

type StructureV1 struct {
	ID       string             `json:"id"`
	Def      string             `json:"def"`
	Pos      [2]int             `json:"pos"`
	Rotation int                `json:"rotation,omitempty"`
	Contents map[string]float64 `json:"contents,omitempty"`
	Mark     float64            `json:"mark,omitempty"`

	// Requester hysteresis state ("IDLE"/"REQUESTING"); empty when the def has none.
	Requester string             `json:"requester,omitempty"`
	Weights   map[string]float64 `json:"weights,omitempty"`
}

// NetworkV1 members are sorted; the first one seeds rediscovery on import.
type NetworkV1 struct {
	ID      string   `json:"id"`
	Def     string   `json:"def"`
	Members []string `json:"members"`
	Edges   []EdgeV1 `json:"edges,omitempty"`
}

type EdgeV1 struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Flow float64 `json:"flow"`
}

// WriteSnapshot writes to a temp file and renames it so readers never see a partial snapshot.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// FileName is the canonical snapshot name for a tick; names sort by tick.
func FileName(tick uint64) string { return fmt.Sprintf("%020d.snap.zst", tick) }

// Latest returns the highest-tick snapshot in dir, or "" when there is none.
func Latest(dir string) (string, uint64, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return "", 0, nil
	}
	sort.Strings(names)
	name := names[len(names)-1]
	tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("snapshot name %s: %w", name, err)
	}
	return filepath.Join(dir, name), tick, nil
}
