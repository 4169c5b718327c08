package world

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"voxelnav.ai/internal/nav/grid"
	"voxelnav.ai/internal/protocol"
	"voxelnav.ai/internal/sim/mathx"
)

const maxSpawnRing = 8

// tickDelta is the simulated time of one tick. Motion never depends on wall
// clock jitter, so runs are reproducible per seed.
func (w *World) tickDelta() float64 { return 1 / float64(w.cfg.TickRateHz) }

func (w *World) step(joins []JoinRequest, leaves []string, actions []ActionEnvelope) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Leaves and joins apply at the tick boundary.
	for _, id := range leaves {
		w.handleLeave(id)
	}
	for _, req := range joins {
		resp := w.joinAgent(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
	}

	// Actions in inbox order.
	for _, env := range actions {
		w.applyAction(env, nowTick)
	}

	w.planNPCs(w.tickDelta())
	w.Step(w.tickDelta())

	w.tick.Add(1)
	w.broadcastFrame(w.tick.Load())

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && w.tick.Load()%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot():
		default:
			w.counts.snapshotsDropped++
			w.log.Printf("snapshot sink full; dropping tick %d", w.tick.Load())
		}
	}
	w.publishMetrics(time.Since(stepStart))
}

// Step advances every actor by delta seconds in agent id order.
func (w *World) Step(delta float64) {
	for _, id := range w.order {
		w.agents[id].act.Update(delta)
	}
}

// planNPCs sends idle NPCs toward a random nearby cell once their sleep runs
// out.
func (w *World) planNPCs(delta float64) {
	p := w.cfg.NPC
	for _, id := range w.order {
		a := w.agents[id]
		if a.Kind != KindNPC || a.act.IsWalking() {
			continue
		}
		a.sleep -= delta
		if a.sleep > 0 {
			continue
		}
		a.sleep = w.rng.Float64() * p.SleepMaxSec

		pos := a.act.Position()
		dest := grid.Vec3{
			X: clampAbs(pos.X+(w.rng.Float64()*2-1)*p.WanderRange, p.WanderClamp),
			Y: p.WanderY,
			Z: clampAbs(pos.Z+(w.rng.Float64()*2-1)*p.WanderRange, p.WanderClamp),
		}
		w.nav.agentID = id
		a.act.Walk(w.liftToSurface(dest))
	}
	w.nav.agentID = ""
}

func clampAbs(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	return math.Max(-limit, math.Min(limit, v))
}

func (w *World) joinAgent(req JoinRequest) JoinResponse {
	w.nextPlayerNum++
	id := fmt.Sprintf("A%d", w.nextPlayerNum)
	name := req.Name
	if name == "" {
		name = id
	}
	speed := req.Speed
	if speed <= 0 {
		speed = w.cfg.PlayerSpeed
	}
	a := w.newAgent(id, name, KindPlayer, w.playerSpawn(), speed)
	a.defaultSpeed = req.Speed <= 0
	a.Hue = w.rng.Float64()
	if !a.act.Grounded() {
		w.log.Printf("player %s spawned over no ground", id)
	}
	if req.Out != nil {
		w.clients[id] = &clientState{Out: req.Out}
	}
	w.counts.joins++
	return JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       req.SessionID,
		AgentID:         id,
		WorldParams:     w.Params(),
	}}
}

// playerSpawn returns the configured spawn, or the nearest column around it
// whose ground is free, scanning rings outward in a fixed order.
func (w *World) playerSpawn() grid.Vec3 {
	base := w.cfg.PlayerSpawn
	for r := 0; r <= maxSpawnRing; r++ {
		for dx := -r; dx <= r; dx++ {
			for dz := -r; dz <= r; dz++ {
				if max(mathx.AbsInt(dx), mathx.AbsInt(dz)) != r {
					continue
				}
				p := w.liftToSurface(grid.Vec3{X: base.X + float64(dx), Y: base.Y, Z: base.Z + float64(dz)})
				probe := p
				if w.pf.Ground(&probe, w.cfg.Clearance, w.cfg.MinY) {
					return p
				}
			}
		}
	}
	return w.liftToSurface(base)
}

func (w *World) handleLeave(id string) {
	a := w.agents[id]
	if a == nil || a.Kind != KindPlayer {
		return
	}
	a.act.Close()
	delete(w.agents, id)
	delete(w.clients, id)
	w.order = removeSorted(w.order, id)
}

func (w *World) applyAction(env ActionEnvelope, nowTick uint64) {
	a := w.agents[env.AgentID]
	var ack protocol.AckMsg
	switch {
	case env.Walk != nil:
		ack = protocol.NewAck(env.Walk.ID, nowTick)
		if a == nil {
			ack.Code, ack.Message = protocol.ErrUnknownAgent, "unknown agent"
			break
		}
		w.nav.agentID = a.ID
		w.nav.calls = 0
		ok := a.act.Walk(grid.FromArray(env.Walk.Target))
		w.nav.agentID = ""
		switch {
		case ok:
			ack.Accepted = true
			w.counts.walksAccepted++
		case w.nav.calls == 0:
			ack.Code, ack.Message = protocol.ErrInvalidTarget, "no walkable ground under target"
		default:
			ack.Code, ack.Message = protocol.ErrNoRoute, "no route to target"
		}
		if !ok {
			w.counts.walksRejected++
		}
	case env.Look != nil:
		ack = protocol.NewAck(env.Look.ID, nowTick)
		if a == nil {
			ack.Code, ack.Message = protocol.ErrUnknownAgent, "unknown agent"
			break
		}
		if a.act.IsWalking() {
			ack.Code, ack.Message = protocol.ErrBlocked, "agent is walking"
			break
		}
		a.act.SetTargetRotation(grid.FromArray(env.Look.Target))
		ack.Accepted = true
	case env.SetVoxel != nil:
		ack = protocol.NewAck(env.SetVoxel.ID, nowTick)
		code, msg := w.setVoxel(env.AgentID, env.SetVoxel.Pos, env.SetVoxel.Value)
		ack.Code, ack.Message, ack.Accepted = code, msg, code == ""
	default:
		return
	}
	if a != nil {
		ack.Walking = a.act.IsWalking()
	}
	w.sendTo(env.AgentID, ack)
}

// setVoxel places (value > 0) or removes (value 0) one voxel. Cells held by
// an agent cannot be filled.
func (w *World) setVoxel(agentID string, pos [3]int, value int) (code, msg string) {
	x, y, z := pos[0], pos[1], pos[2]
	if value < 0 || value > math.MaxUint16 {
		return protocol.ErrBadRequest, "value out of range"
	}
	if y <= 0 || !w.chunks.InBounds(x, y, z) {
		return protocol.ErrBadRequest, "position out of bounds"
	}
	if value != 0 && w.pf.HasObstacle(grid.Vec3i{X: x, Y: y - 1, Z: z}) {
		return protocol.ErrBlocked, "cell occupied by an agent"
	}
	from := w.chunks.GetBlock(x, y, z)
	if !w.chunks.SetBlock(x, y, z, uint16(value)) {
		return "", ""
	}
	w.counts.voxelEdits++
	w.recordVoxelEdit(agentID, pos, from, uint16(value))
	return "", ""
}

func (w *World) sendTo(agentID string, msg any) {
	c := w.clients[agentID]
	if c == nil || c.Out == nil {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		w.log.Printf("marshal %T: %v", msg, err)
		return
	}
	sendLatest(c.Out, b)
}

func (w *World) agentStates(withWaypoints bool) []protocol.AgentState {
	out := make([]protocol.AgentState, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.agents[id].state(withWaypoints))
	}
	return out
}

func (w *World) broadcastFrame(tick uint64) {
	if len(w.clients) == 0 && len(w.observers) == 0 {
		return
	}
	frame := protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		WorldID:         w.cfg.ID,
		Tick:            tick,
		Agents:          w.agentStates(false),
	}
	plain, err := json.Marshal(frame)
	if err != nil {
		w.log.Printf("marshal frame: %v", err)
		return
	}
	for _, c := range w.clients {
		sendLatest(c.Out, plain)
	}
	var detailed []byte
	for _, o := range w.observers {
		if !o.Waypoints {
			sendLatest(o.Out, plain)
			continue
		}
		if detailed == nil {
			frame.Agents = w.agentStates(true)
			if detailed, err = json.Marshal(frame); err != nil {
				w.log.Printf("marshal frame: %v", err)
				return
			}
		}
		sendLatest(o.Out, detailed)
	}
}
