package world

import "time"

// WorldMetrics is published by the loop after every tick and read without
// locking by the HTTP handlers.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Agents       int `json:"agents"`
	Players      int `json:"players"`
	Walking      int `json:"walking"`
	Clients      int `json:"clients"`
	Observers    int `json:"observers"`
	Obstacles    int `json:"obstacles"`
	LoadedChunks int `json:"loaded_chunks"`

	Routes           uint64 `json:"routes_total"`
	RoutesFound      uint64 `json:"routes_found_total"`
	LastVisited      int    `json:"last_visited"`
	WalksAccepted    uint64 `json:"walks_accepted_total"`
	WalksRejected    uint64 `json:"walks_rejected_total"`
	VoxelEdits       uint64 `json:"voxel_edits_total"`
	Joins            uint64 `json:"joins_total"`
	SnapshotsDropped uint64 `json:"snapshots_dropped_total"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
	Path  int `json:"path"`
}

// counters are owned by the world loop and copied into WorldMetrics.
type counters struct {
	routes           uint64
	routesFound      uint64
	walksAccepted    uint64
	walksRejected    uint64
	voxelEdits       uint64
	joins            uint64
	snapshotsDropped uint64
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(stepDur time.Duration) {
	m := WorldMetrics{
		Tick:         w.tick.Load(),
		Agents:       len(w.agents),
		Clients:      len(w.clients),
		Observers:    len(w.observers),
		Obstacles:    len(w.pf.Obstacles()),
		LoadedChunks: len(w.chunks.Chunks),

		Routes:           w.counts.routes,
		RoutesFound:      w.counts.routesFound,
		LastVisited:      w.pf.LastStats().Visited,
		WalksAccepted:    w.counts.walksAccepted,
		WalksRejected:    w.counts.walksRejected,
		VoxelEdits:       w.counts.voxelEdits,
		Joins:            w.counts.joins,
		SnapshotsDropped: w.counts.snapshotsDropped,

		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
			Path:  len(w.pathReq),
		},
		StepMS: float64(stepDur.Microseconds()) / 1000,
	}
	for _, a := range w.agents {
		if a.Kind == KindPlayer {
			m.Players++
		}
		if a.act.IsWalking() {
			m.Walking++
		}
	}
	w.metrics.Store(m)
}
