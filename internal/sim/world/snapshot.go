package world

import (
	"voxelnav.ai/internal/persistence/snapshot"
	"voxelnav.ai/internal/sim/tuning"
)

// ExportSnapshot captures the terrain at the current tick. Agents and their
// routes are not part of a snapshot.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	return w.chunks.Snapshot(w.cfg.ID, w.tick.Load(), w.cfg.TickRateHz)
}

// applyTuning swaps in the parameters that can change between ticks. World
// generation, tick rate and the search engine need a restart.
func (w *World) applyTuning(t tuning.Tuning) {
	if err := t.Validate(); err != nil {
		w.log.Printf("tuning reload rejected: %v", err)
		return
	}
	w.cfg.PlayerSpeed = t.Actor.PlayerSpeed
	w.cfg.MaxDelta = t.Actor.MaxDelta
	w.cfg.MinY = t.Actor.MinY
	w.cfg.NPC = t.NPC
	w.cfg.SnapshotEveryTicks = t.SnapshotEveryTicks
	w.cfg.Transitions = t.Transitions()
	w.pf.SetTransitions(w.cfg.Transitions)
	for _, a := range w.agents {
		a.act.SetMaxDelta(w.cfg.MaxDelta)
		a.act.SetMinY(w.cfg.MinY)
		if a.Kind == KindPlayer && a.defaultSpeed {
			a.act.SetSpeed(w.cfg.PlayerSpeed)
		}
	}
	w.log.Printf("tuning reloaded: transitions=%s max_delta=%g npc_sleep_max=%g", w.cfg.Transitions, w.cfg.MaxDelta, w.cfg.NPC.SleepMaxSec)
}

// ResumeAt sets the tick counter when terrain was restored from a snapshot.
// It must be called before Run.
func (w *World) ResumeAt(tick uint64) {
	w.tick.Store(tick)
	w.publishMetrics(0)
}
