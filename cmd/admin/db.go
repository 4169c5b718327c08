package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxelnav.ai/internal/persistence/indexdb"
)

// dbCmd queries the world's sqlite index: routes (default), summary,
// snapshots or meta.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	agentID := fs.String("agent", "", "agent_id filter (routes)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "routes"
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
	// OpenSQLite creates missing files; an admin query should not.
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch q {
	case "routes":
		rows, err := idx.Routes(ctx, *agentID, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}
	case "summary":
		sum, err := idx.Summary(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		printJSON(sum)
	case "snapshots":
		rows, err := idx.Snapshots(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		if *limit > 0 && len(rows) > *limit {
			rows = rows[len(rows)-*limit:]
		}
		for _, r := range rows {
			printJSON(r)
		}
	case "meta":
		out := map[string]string{}
		for _, k := range []string{"schema_version", "world_id", "seed", "tuning_digest", "updated_at", "tuning"} {
			v, err := idx.Meta(ctx, k)
			if err != nil {
				fmt.Fprintln(os.Stderr, "query:", err)
				os.Exit(1)
			}
			out[k] = v
		}
		printJSON(out)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(routes|summary|snapshots|meta)")
		os.Exit(2)
	}
}
