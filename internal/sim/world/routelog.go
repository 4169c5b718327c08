package world

import (
	"voxelnav.ai/internal/nav/grid"
	"voxelnav.ai/internal/nav/pathfinder"
)

const (
	LogKindRoute = "route"
	LogKindVoxel = "voxel"
)

// RouteLogger receives one entry per route request and per voxel edit, in
// the order the world applied them.
type RouteLogger interface {
	WriteEntry(entry LogEntry) error
}

type LogEntry struct {
	Tick  uint64       `json:"tick"`
	Kind  string       `json:"kind"`
	Route *RouteRecord `json:"route,omitempty"`
	Voxel *VoxelEdit   `json:"voxel,omitempty"`
}

type RouteRecord struct {
	AgentID     string       `json:"agent_id,omitempty"`
	Engine      string       `json:"engine"`
	Transitions string       `json:"transitions"`
	From        [3]float64   `json:"from"`
	To          [3]float64   `json:"to"`
	Clearance   int          `json:"clearance"`
	Obstacles   [][3]int     `json:"obstacles,omitempty"`
	Found       bool         `json:"found"`
	Visited     int          `json:"visited"`
	Waypoints   [][3]float64 `json:"waypoints,omitempty"`
}

type VoxelEdit struct {
	AgentID string `json:"agent_id,omitempty"`
	Pos     [3]int `json:"pos"`
	From    uint16 `json:"from"`
	To      uint16 `json:"to"`
}

// routeTap is the Navigator handed to actors. It forwards to the pathfinder
// and records every route request with the registry as the search saw it.
type routeTap struct {
	w  *World
	pf *pathfinder.Pathfinder

	agentID string
	calls   int
}

func (t *routeTap) GetPath(from, to grid.Vec3, clearance int) []grid.Vec3 {
	t.calls++
	var obstacles []grid.Vec3i
	if t.w.routeLogger != nil {
		obstacles = t.pf.Obstacles()
	}
	wps := t.pf.GetPath(from, to, clearance)
	t.w.recordRoute(t.agentID, from, to, clearance, obstacles, wps)
	return wps
}

func (t *routeTap) Ground(pos *grid.Vec3, clearance, minY int) bool {
	return t.pf.Ground(pos, clearance, minY)
}

func (t *routeTap) AddObstacle(pos grid.Vec3)    { t.pf.AddObstacle(pos) }
func (t *routeTap) RemoveObstacle(pos grid.Vec3) { t.pf.RemoveObstacle(pos) }

func (w *World) recordRoute(agentID string, from, to grid.Vec3, clearance int, obstacles []grid.Vec3i, wps []grid.Vec3) {
	st := w.pf.LastStats()
	w.counts.routes++
	if st.Found {
		w.counts.routesFound++
	}
	if w.routeLogger == nil {
		return
	}
	rec := &RouteRecord{
		AgentID:     agentID,
		Engine:      w.pf.Engine(),
		Transitions: w.pf.Transitions().String(),
		From:        from.Array(),
		To:          to.Array(),
		Clearance:   clearance,
		Found:       st.Found,
		Visited:     st.Visited,
	}
	for _, c := range obstacles {
		rec.Obstacles = append(rec.Obstacles, c.Array())
	}
	for _, p := range wps {
		rec.Waypoints = append(rec.Waypoints, p.Array())
	}
	if err := w.routeLogger.WriteEntry(LogEntry{Tick: w.tick.Load(), Kind: LogKindRoute, Route: rec}); err != nil {
		w.log.Printf("route log: %v", err)
	}
}

func (w *World) recordVoxelEdit(agentID string, pos [3]int, from, to uint16) {
	if w.routeLogger == nil {
		return
	}
	e := LogEntry{Tick: w.tick.Load(), Kind: LogKindVoxel, Voxel: &VoxelEdit{AgentID: agentID, Pos: pos, From: from, To: to}}
	if err := w.routeLogger.WriteEntry(e); err != nil {
		w.log.Printf("route log: %v", err)
	}
}
