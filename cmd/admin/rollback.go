package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "voxelnav.ai/internal/persistence/log"
	"voxelnav.ai/internal/persistence/snapshot"
	"voxelnav.ai/internal/sim/terrain/store"
	"voxelnav.ai/internal/sim/world"
)

// rollbackCmd reverts logged SET_VOXEL edits inside an AABB and writes the
// result as a new snapshot next to the source one.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path to rollback from (optional; defaults to latest)")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (required)")
	sinceTick := fs.Uint64("since_tick", 0, "rollback edits since tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "rollback edits up to tick (inclusive, optional; defaults to snapshot tick)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	if strings.TrimSpace(*aabb) == "" {
		fmt.Fprintln(os.Stderr, "missing -aabb")
		os.Exit(2)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	min, max, err := parseAABB(*aabb)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -aabb:", err)
		os.Exit(2)
	}

	endTick := *toTick
	if endTick == 0 || endTick > snap.Header.Tick {
		endTick = snap.Header.Tick
	}

	recs, err := readVoxelEdits(worldDir, *sinceTick, endTick, min, max)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read route log:", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("no matching voxel edits; nothing to rollback")
		return
	}

	chunks, err := store.FromSnapshot(snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}
	applied, skipped := applyRollback(chunks, recs)
	out := chunks.Snapshot(snap.Header.WorldID, snap.Header.Tick, snap.TickRate)

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.rollback.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, out); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("rollback ok: snapshot=%s tick=%d aabb=%s since=%d to=%d entries=%d applied=%d skipped=%d out=%s\n",
		filepath.Base(snapshotToLoad), snap.Header.Tick, *aabb, *sinceTick, endTick, len(recs), applied, skipped, *outPath)
}

type editRec struct {
	Seq  uint64
	Tick uint64
	Edit world.VoxelEdit
}

func readVoxelEdits(worldDir string, sinceTick, toTick uint64, min, max [3]int) ([]editRec, error) {
	var out []editRec
	var seq uint64
	err := persistlog.ReadRouteEntries(worldDir, func(e world.LogEntry) error {
		seq++
		if e.Kind != world.LogKindVoxel || e.Voxel == nil {
			return nil
		}
		if e.Tick < sinceTick || e.Tick > toTick {
			return nil
		}
		if !withinAABB(e.Voxel.Pos, min, max) {
			return nil
		}
		out = append(out, editRec{Seq: seq, Tick: e.Tick, Edit: *e.Voxel})
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return out, nil
}

// sortNewestFirst orders edits for undo: highest tick first, and within a
// tick the reverse of log order.
func sortNewestFirst(recs []editRec) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Tick != recs[j].Tick {
			return recs[i].Tick > recs[j].Tick
		}
		return recs[i].Seq > recs[j].Seq
	})
}

func applyRollback(chunks *store.ChunkStore, recs []editRec) (applied, skipped int) {
	for _, r := range recs {
		p := r.Edit.Pos
		if !chunks.InBounds(p[0], p[1], p[2]) {
			skipped++
			continue
		}
		chunks.SetBlock(p[0], p[1], p[2], r.Edit.From)
		applied++
	}
	return applied, skipped
}

func withinAABB(pos [3]int, min, max [3]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1] &&
		pos[2] >= min[2] && pos[2] <= max[2]
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
