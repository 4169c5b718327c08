package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingActions = append(pendingActions, env)
		case req := <-w.observerJoin:
			w.observers[req.SessionID] = &observerState{Waypoints: req.Waypoints, Out: req.Out}
		case id := <-w.observerLeft:
			delete(w.observers, id)
		case req := <-w.pathReq:
			w.handlePathReq(req)
		case req := <-w.groundReq:
			w.handleGroundReq(req)
		case req := <-w.stateReq:
			w.handleStateReq(req)
		case req := <-w.chunkReq:
			w.handleChunkReq(req)
		case req := <-w.snapshotReq:
			req.Resp <- w.ExportSnapshot()
		case t := <-w.reload:
			w.applyTuning(t)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingActions)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActions = pendingActions[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick with the same ordering as the
// server loop and a fixed delta of one tick period. Tests and replay use it.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, actions []ActionEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step(joins, leaves, actions)
	return tick, w.StateDigest()
}

func (w *World) handlePathReq(req PathRequest) {
	clearance := req.Clearance
	if clearance < 0 {
		clearance = 0
	}
	t := w.nav
	t.agentID = ""
	wps := t.GetPath(req.From, req.To, clearance)
	if req.Resp != nil {
		req.Resp <- PathResponse{Waypoints: wps, Stats: w.pf.LastStats()}
	}
}

func (w *World) handleGroundReq(req GroundRequest) {
	pos := req.Pos
	ok := w.pf.Ground(&pos, req.Clearance, req.MinY)
	if req.Resp != nil {
		req.Resp <- GroundResponse{OK: ok, Pos: pos}
	}
}

func (w *World) handleStateReq(req StateRequest) {
	if req.Resp == nil {
		return
	}
	req.Resp <- StateResponse{
		Tick:      w.tick.Load(),
		Agents:    w.agentStates(true),
		Obstacles: w.pf.Obstacles(),
	}
}

func (w *World) handleChunkReq(req ChunkRequest) {
	if req.Resp == nil {
		return
	}
	blocks, loaded := w.chunks.ChunkBlocks(req.CX, req.CZ)
	req.Resp <- ChunkResponse{Height: w.chunks.Gen.Height, Loaded: loaded, Blocks: blocks}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
