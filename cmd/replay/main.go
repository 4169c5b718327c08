package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"voxelnav.ai/internal/nav/search"
	persistlog "voxelnav.ai/internal/persistence/log"
	"voxelnav.ai/internal/persistence/snapshot"
	"voxelnav.ai/internal/sim/terrain/store"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst")
		worldDir   = flag.String("world_dir", "", "world data dir containing routes/ (default: two levels above -snapshot)")
		maxVisited = flag.Int("max_visited", search.DefaultMaxVisited, "search budget the server ran with")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		verbose    = flag.Bool("v", false, "print every mismatch")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d world=%s tick=%d seed=%d height=%d chunks=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Seed, snap.Height, len(snap.Chunks))

	chunks, err := store.FromSnapshot(snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}

	dir := *worldDir
	if dir == "" {
		// <world>/snapshots/<tick>.snap.zst
		dir = filepath.Dir(filepath.Dir(*snapPath))
	}

	r := newReplayer(chunks, snap.Header.Tick, *toTick, *maxVisited)
	if err := persistlog.ReadRouteEntries(dir, r.apply); err != nil && !errors.Is(err, errStop) {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	if *verbose {
		for _, m := range r.Mismatches {
			fmt.Println("mismatch:", m)
		}
	}
	if len(r.Mismatches) > 0 {
		fmt.Printf("replay FAILED: routes=%d edits=%d skipped=%d mismatches=%d first={%s}\n",
			r.Routes, r.Edits, r.Skipped, len(r.Mismatches), r.Mismatches[0])
		os.Exit(1)
	}
	fmt.Printf("replay ok: routes=%d edits=%d skipped=%d (from snapshot tick=%d)\n", r.Routes, r.Edits, r.Skipped, snap.Header.Tick)
}
