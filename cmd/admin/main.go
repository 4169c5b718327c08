package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"voxelnav.ai/internal/persistence/archive"
	"voxelnav.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db", "routes":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "agents":
			agentsCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "list":
			listCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints world ids, or a world's snapshots and baseline archives.
func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	if *worldID == "" {
		entries, err := os.ReadDir(filepath.Join(*dataDir, "worlds"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, e := range entries {
			if e.IsDir() {
				fmt.Println(e.Name())
			}
		}
		return
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snaps, err := listSnapshots(worldDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshots:", err)
		os.Exit(1)
	}
	for _, s := range snaps {
		fmt.Printf("snapshot tick=%d path=%s\n", s.tick, s.path)
	}

	ents, err := os.ReadDir(filepath.Join(worldDir, "archives"))
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "read archives:", err)
		os.Exit(1)
	}
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(worldDir, "archives", e.Name())
		meta, err := archive.ReadBaselineMeta(dir)
		if err != nil {
			fmt.Printf("archive %s (no meta: %v)\n", e.Name(), err)
			continue
		}
		fmt.Printf("archive tick=%d seed=%d digest=%s dir=%s\n", meta.Tick, meta.Seed, meta.Digest, dir)
	}
}

// snapshotCmd summarizes a snapshot file without a running server.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used when -path is empty)")
	path := fs.String("path", "", "snapshot path (optional; defaults to the world's latest)")
	headerOnly := fs.Bool("header", false, "read only the header line")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -path or -world")
			os.Exit(2)
		}
		p = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
		if p == "" {
			fmt.Fprintln(os.Stderr, "no snapshot found")
			os.Exit(2)
		}
	}

	if *headerOnly {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}

	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(p, snap))
}

type snapshotSummary struct {
	Path       string          `json:"path"`
	Header     snapshot.Header `json:"header"`
	Seed       int64           `json:"seed"`
	TickRate   int             `json:"tick_rate_hz"`
	Height     int             `json:"height"`
	BoundaryR  int             `json:"boundary_r"`
	Flat       bool            `json:"flat"`
	Chunks     int             `json:"chunks"`
	SolidCells int             `json:"solid_cells"`
	Digest     string          `json:"digest"`
}

func summarize(path string, snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Path:      path,
		Header:    snap.Header,
		Seed:      snap.Seed,
		TickRate:  snap.TickRate,
		Height:    snap.Height,
		BoundaryR: snap.BoundaryR,
		Flat:      snap.Flat,
		Chunks:    len(snap.Chunks),
		Digest:    snap.Digest,
	}
	for _, ch := range snap.Chunks {
		for _, b := range ch.Blocks {
			if b != 0 {
				s.SolidCells++
			}
		}
	}
	return s
}

type snapshotFile struct {
	tick uint64
	path string
}

// listSnapshots returns the world's tick snapshots, oldest first.
func listSnapshots(worldDir string) ([]snapshotFile, error) {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []snapshotFile
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, snapshotFile{tick: tick, path: filepath.Join(dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tick < out[j].tick })
	return out, nil
}

func latestSnapshot(worldDir string) string {
	snaps, err := listSnapshots(worldDir)
	if err != nil || len(snaps) == 0 {
		return ""
	}
	return snaps[len(snaps)-1].path
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
