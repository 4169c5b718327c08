package world

import (
	"encoding/json"
	"math"
	"testing"

	"voxelnav.ai/internal/nav/grid"
	"voxelnav.ai/internal/nav/route"
	"voxelnav.ai/internal/protocol"
	"voxelnav.ai/internal/sim/terrain/store"
	"voxelnav.ai/internal/sim/tuning"
)

func newTestWorld(t *testing.T, npcs int) *World {
	t.Helper()
	tu := tuning.Defaults()
	tu.NPC.Count = npcs
	g := store.DefaultWorldGen(7)
	g.Flat = true
	w, err := New(ConfigFromTuning("test", 7, tu), store.NewChunkStore(g), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func join(t *testing.T, w *World, name string) (string, chan []byte) {
	t.Helper()
	out := make(chan []byte, 512)
	resp := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{Name: name, SessionID: "s-" + name, Out: out, Resp: resp}}, nil, nil)
	r := <-resp
	if r.Welcome.AgentID == "" {
		t.Fatalf("empty agent id")
	}
	return r.Welcome.AgentID, out
}

// lastAck drains out and returns the last ACK for ackFor.
func lastAck(t *testing.T, out chan []byte, ackFor string) protocol.AckMsg {
	t.Helper()
	var found *protocol.AckMsg
	for {
		select {
		case b := <-out:
			base, err := protocol.DecodeBase(b)
			if err != nil {
				t.Fatalf("DecodeBase: %v", err)
			}
			if base.Type != protocol.TypeAck {
				continue
			}
			var ack protocol.AckMsg
			if err := json.Unmarshal(b, &ack); err != nil {
				t.Fatalf("unmarshal ack: %v", err)
			}
			if ack.AckFor == ackFor {
				found = &ack
			}
			continue
		default:
		}
		break
	}
	if found == nil {
		t.Fatalf("no ACK for %s", ackFor)
	}
	return *found
}

func walk(id string, target [3]float64, agentID string) ActionEnvelope {
	return ActionEnvelope{AgentID: agentID, Walk: &protocol.WalkMsg{Type: protocol.TypeWalk, ProtocolVersion: protocol.Version, ID: id, Target: target}}
}

func TestNPCsSpawnSortedAndGrounded(t *testing.T) {
	w := newTestWorld(t, 12)
	if len(w.order) != 12 {
		t.Fatalf("agents=%d", len(w.order))
	}
	if w.order[0] != "N01" || w.order[11] != "N12" {
		t.Fatalf("order=%v", w.order)
	}
	for _, id := range w.order {
		a := w.agents[id]
		if a.Kind != KindNPC || !a.act.Grounded() {
			t.Fatalf("%s kind=%s grounded=%v", id, a.Kind, a.act.Grounded())
		}
		if sp := a.act.Speed(); sp < 5 || sp >= 10 {
			t.Fatalf("%s speed=%v", id, sp)
		}
	}
	if got := len(w.pf.Obstacles()); got != 12 {
		t.Fatalf("obstacles=%d", got)
	}
}

func TestJoinWelcomesAndSpawnsPlayer(t *testing.T) {
	w := newTestWorld(t, 0)
	out := make(chan []byte, 8)
	resp := make(chan JoinResponse, 1)
	tick, _ := w.StepOnce([]JoinRequest{{Name: "alice", SessionID: "sess", Out: out, Resp: resp}}, nil, nil)
	if tick != 0 || w.CurrentTick() != 1 {
		t.Fatalf("tick=%d current=%d", tick, w.CurrentTick())
	}
	welcome := (<-resp).Welcome
	if welcome.AgentID != "A1" || welcome.SessionID != "sess" || welcome.Type != protocol.TypeWelcome {
		t.Fatalf("welcome=%+v", welcome)
	}
	if welcome.WorldParams.Engine != "astar" || welcome.WorldParams.Clearance != 3 {
		t.Fatalf("params=%+v", welcome.WorldParams)
	}
	a := w.agents["A1"]
	if a == nil || a.Kind != KindPlayer {
		t.Fatalf("player missing")
	}
	if got := a.act.Position(); got != (grid.Vec3{X: 0.5, Y: 16, Z: 0.5}) {
		t.Fatalf("Position=%v", got)
	}
	if len(out) == 0 {
		t.Fatalf("no FRAME after join")
	}
}

func TestWalkReachesDestination(t *testing.T) {
	w := newTestWorld(t, 0)
	id, out := join(t, w, "alice")

	w.StepOnce(nil, nil, []ActionEnvelope{walk("K1", [3]float64{5, 16, 5}, id)})
	ack := lastAck(t, out, "K1")
	if !ack.Accepted || !ack.Walking {
		t.Fatalf("ack=%+v", ack)
	}
	a := w.agents[id]
	wps := a.act.Waypoints()
	if len(wps) < 2 || wps[len(wps)-1] != (grid.Vec3{X: 5.5, Y: 16, Z: 5.5}) {
		t.Fatalf("waypoints=%v", wps)
	}
	if !w.pf.HasObstacle(grid.Vec3i{X: 5, Y: 16, Z: 5}) || w.pf.HasObstacle(grid.Vec3i{X: 0, Y: 16, Z: 0}) {
		t.Fatalf("obstacles=%v", w.pf.Obstacles())
	}
	for i := 0; i < 100 && a.act.IsWalking(); i++ {
		w.StepOnce(nil, nil, nil)
	}
	if a.act.IsWalking() {
		t.Fatalf("still walking")
	}
	if got := a.act.Position(); got != (grid.Vec3{X: 5.5, Y: 16, Z: 5.5}) {
		t.Fatalf("Position=%v", got)
	}
	if m := w.Metrics(); m.WalksAccepted != 1 || m.Routes == 0 {
		t.Fatalf("metrics=%+v", m)
	}
}

func TestWalkRejections(t *testing.T) {
	w := newTestWorld(t, 0)
	id, out := join(t, w, "alice")

	// Outside the world boundary there is no ground at all.
	w.StepOnce(nil, nil, []ActionEnvelope{walk("K1", [3]float64{500, 16, 500}, id)})
	if ack := lastAck(t, out, "K1"); ack.Accepted || ack.Code != protocol.ErrInvalidTarget {
		t.Fatalf("ack=%+v", ack)
	}

	// A floating voxel has ground but no route up to it.
	set := &protocol.SetVoxelMsg{Type: protocol.TypeSetVoxel, ProtocolVersion: protocol.Version, ID: "V1", Pos: [3]int{20, 30, 20}, Value: 1}
	w.StepOnce(nil, nil, []ActionEnvelope{{AgentID: id, SetVoxel: set}})
	if ack := lastAck(t, out, "V1"); !ack.Accepted {
		t.Fatalf("set voxel ack=%+v", ack)
	}
	w.StepOnce(nil, nil, []ActionEnvelope{walk("K2", [3]float64{20, 40, 20}, id)})
	if ack := lastAck(t, out, "K2"); ack.Accepted || ack.Code != protocol.ErrNoRoute {
		t.Fatalf("ack=%+v", ack)
	}
	if w.agents[id].act.IsWalking() {
		t.Fatalf("walking after rejected walks")
	}
	if !w.pf.HasObstacle(grid.Vec3i{X: 0, Y: 16, Z: 0}) {
		t.Fatalf("own cell not re-registered")
	}

	w.StepOnce(nil, nil, []ActionEnvelope{walk("K3", [3]float64{1, 16, 1}, "A99")})
	if len(w.agents) != 1 {
		t.Fatalf("unknown agent created")
	}
}

func TestLookOnlyTurnsIdleAgents(t *testing.T) {
	w := newTestWorld(t, 0)
	id, out := join(t, w, "alice")
	look := func(ref string) ActionEnvelope {
		return ActionEnvelope{AgentID: id, Look: &protocol.LookMsg{Type: protocol.TypeLook, ProtocolVersion: protocol.Version, ID: ref, Target: [3]float64{10.5, 16, 0.5}}}
	}
	w.StepOnce(nil, nil, []ActionEnvelope{look("L1")})
	if ack := lastAck(t, out, "L1"); !ack.Accepted {
		t.Fatalf("ack=%+v", ack)
	}
	if got := w.agents[id].act.TargetRotation(); math.Abs(got-math.Pi/2) > 1e-9 {
		t.Fatalf("TargetRotation=%v", got)
	}

	w.StepOnce(nil, nil, []ActionEnvelope{walk("K1", [3]float64{10, 16, 0}, id), look("L2")})
	if ack := lastAck(t, out, "L2"); ack.Accepted || ack.Code != protocol.ErrBlocked {
		t.Fatalf("ack=%+v", ack)
	}
}

func TestSetVoxelValidation(t *testing.T) {
	w := newTestWorld(t, 0)
	id, out := join(t, w, "alice")
	cases := []struct {
		ref   string
		pos   [3]int
		value int
		code  string
	}{
		{"V1", [3]int{3, 0, 3}, 0, protocol.ErrBadRequest},
		{"V2", [3]int{3, 64, 3}, 1, protocol.ErrBadRequest},
		{"V3", [3]int{3, 17, 3}, -1, protocol.ErrBadRequest},
		{"V4", [3]int{0, 17, 0}, 1, protocol.ErrBlocked},
		{"V5", [3]int{3, 17, 3}, 1, ""},
		{"V6", [3]int{3, 17, 3}, 0, ""},
	}
	for _, tc := range cases {
		set := &protocol.SetVoxelMsg{Type: protocol.TypeSetVoxel, ProtocolVersion: protocol.Version, ID: tc.ref, Pos: tc.pos, Value: tc.value}
		w.StepOnce(nil, nil, []ActionEnvelope{{AgentID: id, SetVoxel: set}})
		ack := lastAck(t, out, tc.ref)
		if ack.Code != tc.code || ack.Accepted != (tc.code == "") {
			t.Fatalf("%s: ack=%+v", tc.ref, ack)
		}
	}
	if got := w.chunks.GetBlock(3, 17, 3); got != 0 {
		t.Fatalf("block=%d", got)
	}
	if m := w.Metrics(); m.VoxelEdits != 2 {
		t.Fatalf("VoxelEdits=%d", m.VoxelEdits)
	}
}

func TestLeaveFreesCell(t *testing.T) {
	w := newTestWorld(t, 0)
	id, _ := join(t, w, "alice")
	w.StepOnce(nil, []string{id, "N01"}, nil)
	if len(w.agents) != 0 || len(w.clients) != 0 || len(w.order) != 0 {
		t.Fatalf("agents=%v clients=%v", w.agents, w.clients)
	}
	if obs := w.pf.Obstacles(); len(obs) != 0 {
		t.Fatalf("obstacles=%v", obs)
	}
}

func TestNPCsWander(t *testing.T) {
	w := newTestWorld(t, 4)
	w.cfg.NPC.SleepMaxSec = 0.5
	start := map[string]grid.Vec3{}
	for _, id := range w.order {
		start[id] = w.agents[id].act.Position()
	}
	for i := 0; i < 200; i++ {
		w.StepOnce(nil, nil, nil)
	}
	moved := 0
	for _, id := range w.order {
		p := w.agents[id].act.Position()
		if p != start[id] {
			moved++
		}
		if p.X < -64.5 || p.X > 64.5 || p.Z < -64.5 || p.Z > 64.5 {
			t.Fatalf("%s wandered out of range: %v", id, p)
		}
	}
	if moved == 0 {
		t.Fatalf("no NPC moved")
	}
}

func TestDeterministicDigest(t *testing.T) {
	w1 := newTestWorld(t, 6)
	w2 := newTestWorld(t, 6)
	w1.cfg.NPC.SleepMaxSec = 1
	w2.cfg.NPC.SleepMaxSec = 1
	a1, _ := join(t, w1, "bot")
	a2, _ := join(t, w2, "bot")
	if a1 != a2 {
		t.Fatalf("agent ids %s vs %s", a1, a2)
	}
	for i := 0; i < 120; i++ {
		var acts1, acts2 []ActionEnvelope
		if i == 3 {
			acts1 = append(acts1, walk("K1", [3]float64{-8, 16, 12}, a1))
			acts2 = append(acts2, walk("K1", [3]float64{-8, 16, 12}, a2))
		}
		t1, d1 := w1.StepOnce(nil, nil, acts1)
		t2, d2 := w2.StepOnce(nil, nil, acts2)
		if t1 != t2 || d1 != d2 {
			t.Fatalf("diverged at tick %d/%d", t1, t2)
		}
	}
}

func TestQueriesAndReload(t *testing.T) {
	w := newTestWorld(t, 0)
	join(t, w, "alice")

	resp := make(chan PathResponse, 1)
	w.handlePathReq(PathRequest{From: grid.Vec3{X: 2, Y: 16, Z: 2}, To: grid.Vec3{X: 6, Y: 16, Z: 2}, Resp: resp})
	pr := <-resp
	if len(pr.Waypoints) != 4 || !pr.Stats.Found {
		t.Fatalf("path=%v stats=%+v", pr.Waypoints, pr.Stats)
	}

	gresp := make(chan GroundResponse, 1)
	w.handleGroundReq(GroundRequest{Pos: grid.Vec3{X: 0, Y: 40, Z: 0}, Clearance: 3, Resp: gresp})
	// The player holds (0,16,0).
	if gr := <-gresp; gr.OK {
		t.Fatalf("ground on occupied cell: %+v", gr)
	}

	sresp := make(chan StateResponse, 1)
	w.handleStateReq(StateRequest{Resp: sresp})
	st := <-sresp
	if len(st.Agents) != 1 || len(st.Obstacles) != 1 || st.Tick != 1 {
		t.Fatalf("state=%+v", st)
	}

	tu := tuning.Defaults()
	tu.Search.RouteTransitions = "ledge_aware"
	tu.Actor.MaxDelta = 0.1
	w.applyTuning(tu)
	if w.pf.Transitions() != route.TransitionLedgeAware || w.cfg.MaxDelta != 0.1 {
		t.Fatalf("reload not applied")
	}
	bad := tuning.Defaults()
	bad.TickRateHz = 0
	w.applyTuning(bad)
	if w.pf.Transitions() != route.TransitionLedgeAware {
		t.Fatalf("invalid tuning applied")
	}
}

func TestExportSnapshotRoundTrip(t *testing.T) {
	w := newTestWorld(t, 0)
	id, _ := join(t, w, "alice")
	set := &protocol.SetVoxelMsg{Type: protocol.TypeSetVoxel, ProtocolVersion: protocol.Version, ID: "V1", Pos: [3]int{4, 17, 4}, Value: 2}
	w.StepOnce(nil, nil, []ActionEnvelope{{AgentID: id, SetVoxel: set}})

	snap := w.ExportSnapshot()
	if snap.Header.Tick != w.CurrentTick() || snap.Header.WorldID != "test" {
		t.Fatalf("header=%+v", snap.Header)
	}
	cs, err := store.FromSnapshot(snap)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if got := cs.GetBlock(4, 17, 4); got != 2 {
		t.Fatalf("block=%d", got)
	}
}

func TestResumeAtContinuesTickCount(t *testing.T) {
	w := newTestWorld(t, 0)
	w.ResumeAt(6000)
	if w.CurrentTick() != 6000 || w.Metrics().Tick != 6000 {
		t.Fatalf("tick=%d metrics=%d", w.CurrentTick(), w.Metrics().Tick)
	}
	tick, _ := w.StepOnce(nil, nil, nil)
	if tick != 6000 || w.CurrentTick() != 6001 {
		t.Fatalf("stepped=%d now=%d", tick, w.CurrentTick())
	}
	if snap := w.ExportSnapshot(); snap.Header.Tick != 6001 {
		t.Fatalf("snapshot tick=%d", snap.Header.Tick)
	}
}

func TestReloadReachesExistingAgents(t *testing.T) {
	w := newTestWorld(t, 0)
	oldID, oldOut := join(t, w, "old")

	out := make(chan []byte, 64)
	resp := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{Name: "fixed", Speed: 4, SessionID: "s-fixed", Out: out, Resp: resp}}, nil, nil)
	fixedID := (<-resp).Welcome.AgentID

	tu := tuning.Defaults()
	tu.Actor.MinY = 17
	tu.Actor.PlayerSpeed = 6
	w.applyTuning(tu)

	if got := w.agents[oldID].act.Speed(); got != 6 {
		t.Fatalf("default-speed player speed=%v want 6", got)
	}
	if got := w.agents[fixedID].act.Speed(); got != 4 {
		t.Fatalf("explicit-speed player speed=%v want 4", got)
	}

	w.StepOnce(nil, nil, []ActionEnvelope{walk("W1", [3]float64{3, 16, 3}, oldID)})
	if ack := lastAck(t, oldOut, "W1"); ack.Accepted || ack.Code != protocol.ErrInvalidTarget {
		t.Fatalf("walk below reloaded min y: %+v", ack)
	}

	tu.Actor.MinY = 0
	w.applyTuning(tu)
	w.StepOnce(nil, nil, []ActionEnvelope{walk("W2", [3]float64{3, 16, 3}, oldID)})
	if ack := lastAck(t, oldOut, "W2"); !ack.Accepted {
		t.Fatalf("walk after lowering min y: %+v", ack)
	}
}
