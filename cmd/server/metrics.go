package main

import (
	"fmt"
	"io"
	"net/http"

	"voxelnav.ai/internal/sim/world"
)

// metricsHandler renders the world metrics in the Prometheus text format.
func metricsHandler(worldID string, w *world.World, idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := w.Metrics()
		if m.Tick == 0 {
			m.Tick = w.CurrentTick()
		}

		gauge(rw, "voxelnav_world_tick", "Current world tick.", worldID, float64(m.Tick))
		gauge(rw, "voxelnav_world_agents", "Agents in the world, NPCs included.", worldID, float64(m.Agents))
		gauge(rw, "voxelnav_world_players", "Agents owned by a client session.", worldID, float64(m.Players))
		gauge(rw, "voxelnav_world_walking", "Agents currently following a route.", worldID, float64(m.Walking))
		gauge(rw, "voxelnav_world_clients", "Connected agent sessions.", worldID, float64(m.Clients))
		gauge(rw, "voxelnav_world_observers", "Connected observers.", worldID, float64(m.Observers))
		gauge(rw, "voxelnav_world_obstacles", "Cells held by agents.", worldID, float64(m.Obstacles))
		gauge(rw, "voxelnav_world_loaded_chunks", "Loaded chunk count.", worldID, float64(m.LoadedChunks))
		gauge(rw, "voxelnav_route_last_visited", "Nodes expanded by the last search.", worldID, float64(m.LastVisited))
		gauge(rw, "voxelnav_world_step_ms", "Last tick step duration in milliseconds.", worldID, m.StepMS)

		counter(rw, "voxelnav_routes_total", "Route searches run.", worldID, m.Routes)
		counter(rw, "voxelnav_routes_found_total", "Route searches that produced a path.", worldID, m.RoutesFound)
		counter(rw, "voxelnav_walks_accepted_total", "Accepted WALK requests.", worldID, m.WalksAccepted)
		counter(rw, "voxelnav_walks_rejected_total", "Rejected WALK requests.", worldID, m.WalksRejected)
		counter(rw, "voxelnav_voxel_edits_total", "Applied SET_VOXEL requests.", worldID, m.VoxelEdits)
		counter(rw, "voxelnav_joins_total", "Agent sessions joined.", worldID, m.Joins)
		counter(rw, "voxelnav_snapshots_dropped_total", "Snapshots dropped because the writer was behind.", worldID, m.SnapshotsDropped)

		fmt.Fprintf(rw, "# HELP voxelnav_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE voxelnav_world_queue_depth gauge\n")
		fmt.Fprintf(rw, "voxelnav_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
		fmt.Fprintf(rw, "voxelnav_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
		fmt.Fprintf(rw, "voxelnav_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)
		fmt.Fprintf(rw, "voxelnav_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "path", m.QueueDepths.Path)

		if idx != nil {
			s := idx.Stats()
			gauge(rw, "voxelnav_index_queue_depth", "Index writer queue depth.", worldID, float64(s.QueueDepth))
			counter(rw, "voxelnav_index_drop_route_total", "Route rows dropped by the index writer.", worldID, s.DropRouteTotal)
			counter(rw, "voxelnav_index_drop_voxel_total", "Voxel edit rows dropped by the index writer.", worldID, s.DropVoxelTotal)
			counter(rw, "voxelnav_index_write_error_total", "Index write errors.", worldID, s.WriteErrorTotal)
		}
	}
}

func gauge(w io.Writer, name, help, worldID string, v float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s{world=%q} %g\n", name, help, name, name, worldID, v)
}

func counter(w io.Writer, name, help, worldID string, v uint64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s{world=%q} %d\n", name, help, name, name, worldID, v)
}
