package main

import (
	"context"
	"errors"
	"fmt"

	"voxelnav.ai/internal/nav/grid"
	"voxelnav.ai/internal/nav/pathfinder"
	"voxelnav.ai/internal/nav/route"
	"voxelnav.ai/internal/sim/terrain/store"
	"voxelnav.ai/internal/sim/world"
)

// replayer re-runs logged route searches against terrain rebuilt from a
// snapshot. Voxel edits are applied in log order so every search sees the
// terrain it saw on the server.
type replayer struct {
	chunks     *store.ChunkStore
	maxVisited int
	startTick  uint64
	toTick     uint64

	pfs map[string]*pathfinder.Pathfinder

	Routes     int
	Edits      int
	Skipped    int
	Mismatches []mismatch
}

type mismatch struct {
	Tick    uint64
	AgentID string
	From    [3]float64
	To      [3]float64
	Want    int
	Got     int
	Reason  string
}

func (m mismatch) String() string {
	return fmt.Sprintf("tick=%d agent=%q from=%v to=%v want=%d got=%d: %s", m.Tick, m.AgentID, m.From, m.To, m.Want, m.Got, m.Reason)
}

func newReplayer(chunks *store.ChunkStore, startTick, toTick uint64, maxVisited int) *replayer {
	return &replayer{
		chunks:     chunks,
		maxVisited: maxVisited,
		startTick:  startTick,
		toTick:     toTick,
		pfs:        map[string]*pathfinder.Pathfinder{},
	}
}

// errStop ends a replay early once toTick is passed.
var errStop = errors.New("replay: past to_tick")

func (r *replayer) apply(e world.LogEntry) error {
	if e.Tick < r.startTick {
		r.Skipped++
		return nil
	}
	if r.toTick != 0 && e.Tick > r.toTick {
		return errStop
	}
	switch e.Kind {
	case world.LogKindVoxel:
		if e.Voxel == nil {
			return fmt.Errorf("tick %d: voxel entry without payload", e.Tick)
		}
		p := e.Voxel.Pos
		if !r.chunks.SetBlock(p[0], p[1], p[2], e.Voxel.To) && r.chunks.GetBlock(p[0], p[1], p[2]) != e.Voxel.To {
			return fmt.Errorf("tick %d: cannot apply voxel edit at %v", e.Tick, p)
		}
		r.Edits++
	case world.LogKindRoute:
		if e.Route == nil {
			return fmt.Errorf("tick %d: route entry without payload", e.Tick)
		}
		return r.checkRoute(e.Tick, e.Route)
	}
	return nil
}

func (r *replayer) checkRoute(tick uint64, rec *world.RouteRecord) error {
	pf, err := r.pathfinder(rec.Engine)
	if err != nil {
		return err
	}
	mode, err := route.ParseTransition(rec.Transitions)
	if err != nil {
		return fmt.Errorf("tick %d: %w", tick, err)
	}
	pf.SetTransitions(mode)

	cells := make([]grid.Vec3i, 0, len(rec.Obstacles))
	for _, c := range rec.Obstacles {
		cells = append(cells, grid.FromArrayInt(c))
	}
	pf.ResetObstacles(cells)

	got := pf.GetPath(grid.FromArray(rec.From), grid.FromArray(rec.To), rec.Clearance)
	r.Routes++

	m := mismatch{Tick: tick, AgentID: rec.AgentID, From: rec.From, To: rec.To, Want: len(rec.Waypoints), Got: len(got)}
	if st := pf.LastStats(); st.Found != rec.Found {
		m.Reason = fmt.Sprintf("found=%v want %v", st.Found, rec.Found)
		r.Mismatches = append(r.Mismatches, m)
		return nil
	}
	if len(got) != len(rec.Waypoints) {
		m.Reason = "waypoint count differs"
		r.Mismatches = append(r.Mismatches, m)
		return nil
	}
	for i, p := range got {
		if p.Array() != rec.Waypoints[i] {
			m.Reason = fmt.Sprintf("waypoint %d: got %v want %v", i, p.Array(), rec.Waypoints[i])
			r.Mismatches = append(r.Mismatches, m)
			return nil
		}
	}
	return nil
}

func (r *replayer) pathfinder(engine string) (*pathfinder.Pathfinder, error) {
	if pf, ok := r.pfs[engine]; ok {
		return pf, nil
	}
	pf, err := pathfinder.Open(context.Background(), r.chunks, pathfinder.Options{Engine: engine, MaxVisited: r.maxVisited})
	if err != nil {
		return nil, err
	}
	r.pfs[engine] = pf
	return pf, nil
}
