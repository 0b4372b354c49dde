package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type queryOpts struct {
	Limit     int
	Structure string
	Network   string
	SinceTick uint64
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	structureID := fs.String("structure", "", "structure_id filter (placements)")
	network := fs.String("network", "", "network id filter (network_stats)")
	sinceTick := fs.Uint64("since_tick", 0, "only rows at or after this tick (ticks, placements, network_stats)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	err = runQuery(db, q, queryOpts{
		Limit:     *limit,
		Structure: strings.TrimSpace(*structureID),
		Network:   strings.TrimSpace(*network),
		SinceTick: *sinceTick,
	}, os.Stdout)
	if errors.Is(err, errUnknownQuery) {
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-limit N] snapshots|ticks|placements|network_stats|catalogs")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

var errUnknownQuery = errors.New("unknown query")

// runQuery prints one JSON object per row, newest first.
func runQuery(db *sql.DB, q string, opts queryOpts, out io.Writer) error {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	since := int64(opts.SinceTick)

	switch q {
	case "snapshots":
		type row struct {
			Tick          int64  `json:"tick"`
			Path          string `json:"path"`
			Structures    int    `json:"structures"`
			Networks      int    `json:"networks"`
			CatalogDigest string `json:"catalog_digest"`
		}
		return scanRows(db, out, `SELECT tick,path,structures,networks,catalog_digest FROM snapshots ORDER BY tick DESC LIMIT ?`,
			[]any{opts.Limit}, func(rs *sql.Rows) (any, error) {
				var r row
				err := rs.Scan(&r.Tick, &r.Path, &r.Structures, &r.Networks, &r.CatalogDigest)
				return r, err
			})

	case "ticks":
		type row struct {
			Tick         int64   `json:"tick"`
			Digest       string  `json:"digest"`
			Registered   int     `json:"registered"`
			Deregistered int     `json:"deregistered"`
			Moved        float64 `json:"moved"`
		}
		return scanRows(db, out, `SELECT tick,digest,registered,deregistered,moved FROM ticks WHERE tick>=? ORDER BY tick DESC LIMIT ?`,
			[]any{since, opts.Limit}, func(rs *sql.Rows) (any, error) {
				var r row
				err := rs.Scan(&r.Tick, &r.Digest, &r.Registered, &r.Deregistered, &r.Moved)
				return r, err
			})

	case "placements":
		type row struct {
			Tick        int64          `json:"tick"`
			StructureID string         `json:"structure_id"`
			Kind        string         `json:"kind"`
			Def         sql.NullString `json:"def"`
			X           sql.NullInt64  `json:"x"`
			Y           sql.NullInt64  `json:"y"`
		}
		query := `SELECT tick,structure_id,kind,def,x,y FROM placements WHERE tick>=? ORDER BY tick DESC, structure_id LIMIT ?`
		args := []any{since, opts.Limit}
		if opts.Structure != "" {
			query = `SELECT tick,structure_id,kind,def,x,y FROM placements WHERE tick>=? AND structure_id=? ORDER BY tick DESC LIMIT ?`
			args = []any{since, opts.Structure, opts.Limit}
		}
		return scanRows(db, out, query, args, func(rs *sql.Rows) (any, error) {
			var r row
			err := rs.Scan(&r.Tick, &r.StructureID, &r.Kind, &r.Def, &r.X, &r.Y)
			return r, err
		})

	case "network_stats":
		type row struct {
			Tick      int64   `json:"tick"`
			Network   string  `json:"network"`
			Idle      bool    `json:"idle"`
			Edges     int     `json:"edges"`
			Blocked   int     `json:"blocked"`
			Moved     float64 `json:"moved"`
			Produced  float64 `json:"produced"`
			Consumed  float64 `json:"consumed"`
			Requested float64 `json:"requested"`
		}
		query := `SELECT tick,network,idle,edges,blocked,moved,produced,consumed,requested FROM network_stats WHERE tick>=? ORDER BY tick DESC, network LIMIT ?`
		args := []any{since, opts.Limit}
		if opts.Network != "" {
			query = `SELECT tick,network,idle,edges,blocked,moved,produced,consumed,requested FROM network_stats WHERE tick>=? AND network=? ORDER BY tick DESC LIMIT ?`
			args = []any{since, opts.Network, opts.Limit}
		}
		return scanRows(db, out, query, args, func(rs *sql.Rows) (any, error) {
			var r row
			err := rs.Scan(&r.Tick, &r.Network, &r.Idle, &r.Edges, &r.Blocked, &r.Moved, &r.Produced, &r.Consumed, &r.Requested)
			return r, err
		})

	case "catalogs":
		type row struct {
			Name      string `json:"name"`
			Digest    string `json:"digest"`
			UpdatedAt string `json:"updated_at"`
		}
		return scanRows(db, out, `SELECT name,digest,updated_at FROM catalogs ORDER BY name LIMIT ?`,
			[]any{opts.Limit}, func(rs *sql.Rows) (any, error) {
				var r row
				err := rs.Scan(&r.Name, &r.Digest, &r.UpdatedAt)
				return r, err
			})

	default:
		return errUnknownQuery
	}
}

func scanRows(db *sql.DB, out io.Writer, query string, args []any, scan func(*sql.Rows) (any, error)) error {
	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		printJSON(out, r)
	}
	return rows.Err()
}

func printJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
