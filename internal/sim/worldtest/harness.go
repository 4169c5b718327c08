package worldtest

import (
	"encoding/json"
	"strconv"
	"testing"

	"voxelnav.ai/internal/protocol"
	"voxelnav.ai/internal/sim/terrain/store"
	world "voxelnav.ai/internal/sim/world"
)

// Harness drives a world through its exported request channels and Step, one
// tick per request, and collects what each joined session receives. Only the
// public World API is used.
type Harness struct {
	T *testing.T
	W *world.World

	DefaultAgentID string

	sessions map[string]*session
	nextRef  int
}

func NewHarness(t *testing.T, cfg world.WorldConfig, chunks *store.ChunkStore, agentName string) *Harness {
	t.Helper()

	w, err := world.New(cfg, chunks, nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return NewHarnessWithWorld(t, w, agentName)
}

// NewHarnessWithWorld wraps an existing world, e.g. one restored from a snapshot.
func NewHarnessWithWorld(t *testing.T, w *world.World, agentName string) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}

	h := &Harness{
		T:        t,
		W:        w,
		sessions: map[string]*session{},
	}
	h.DefaultAgentID = h.Join(agentName)
	return h
}

type session struct {
	AgentID   string
	Out       chan []byte
	lastFrame protocol.FrameMsg
	acks      map[string]protocol.AckMsg
}

func (h *Harness) Join(agentName string) string {
	h.T.Helper()

	out := make(chan []byte, 64)
	resp := make(chan world.JoinResponse, 1)
	_, _ = h.W.StepOnce([]world.JoinRequest{{
		Name:      agentName,
		SessionID: "test-" + agentName,
		Out:       out,
		Resp:      resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Welcome.AgentID == "" {
		h.T.Fatalf("join returned empty agent id")
	}
	s := &session{AgentID: jr.Welcome.AgentID, Out: out, acks: map[string]protocol.AckMsg{}}
	h.sessions[s.AgentID] = s
	h.drainAll()
	return s.AgentID
}

func (h *Harness) ref() string {
	h.nextRef++
	return "R" + strconv.Itoa(h.nextRef)
}

func (h *Harness) Walk(target [3]float64) protocol.AckMsg {
	return h.WalkFor(h.DefaultAgentID, target)
}

func (h *Harness) WalkFor(agentID string, target [3]float64) protocol.AckMsg {
	h.T.Helper()
	ref := h.ref()
	return h.act(agentID, ref, world.ActionEnvelope{AgentID: agentID, Walk: &protocol.WalkMsg{
		Type: protocol.TypeWalk, ProtocolVersion: protocol.Version, ID: ref, Target: target,
	}})
}

func (h *Harness) Look(target [3]float64) protocol.AckMsg {
	h.T.Helper()
	ref := h.ref()
	return h.act(h.DefaultAgentID, ref, world.ActionEnvelope{AgentID: h.DefaultAgentID, Look: &protocol.LookMsg{
		Type: protocol.TypeLook, ProtocolVersion: protocol.Version, ID: ref, Target: target,
	}})
}

func (h *Harness) SetVoxel(pos [3]int, value int) protocol.AckMsg {
	h.T.Helper()
	ref := h.ref()
	return h.act(h.DefaultAgentID, ref, world.ActionEnvelope{AgentID: h.DefaultAgentID, SetVoxel: &protocol.SetVoxelMsg{
		Type: protocol.TypeSetVoxel, ProtocolVersion: protocol.Version, ID: ref, Pos: pos, Value: value,
	}})
}

func (h *Harness) act(agentID, ref string, env world.ActionEnvelope) protocol.AckMsg {
	h.T.Helper()
	_, _ = h.W.StepOnce(nil, nil, []world.ActionEnvelope{env})
	h.drainAll()
	s := h.sessions[agentID]
	if s == nil {
		h.T.Fatalf("unknown agent id: %q", agentID)
	}
	ack, ok := s.acks[ref]
	if !ok {
		h.T.Fatalf("no ACK for %s", ref)
	}
	return ack
}

func (h *Harness) StepNoop() protocol.FrameMsg {
	h.T.Helper()
	_, _ = h.W.StepOnce(nil, nil, nil)
	h.drainAll()
	return h.LastFrame()
}

// StepUntilIdle steps until agentID stops walking and returns its final state.
func (h *Harness) StepUntilIdle(agentID string, maxTicks int) protocol.AgentState {
	h.T.Helper()
	for i := 0; i < maxTicks; i++ {
		st, ok := h.AgentState(agentID)
		if !ok {
			h.T.Fatalf("agent %s missing from frame", agentID)
		}
		if !st.Walking {
			return st
		}
		h.StepNoop()
	}
	h.T.Fatalf("agent %s still walking after %d ticks", agentID, maxTicks)
	return protocol.AgentState{}
}

func (h *Harness) LastFrame() protocol.FrameMsg {
	h.T.Helper()
	s := h.sessions[h.DefaultAgentID]
	if s == nil {
		h.T.Fatalf("no default session")
	}
	return s.lastFrame
}

func (h *Harness) AgentState(agentID string) (protocol.AgentState, bool) {
	for _, a := range h.LastFrame().Agents {
		if a.ID == agentID {
			return a, true
		}
	}
	return protocol.AgentState{}, false
}

func (h *Harness) drainAll() {
	h.T.Helper()
	for _, s := range h.sessions {
		h.drainOne(s)
	}
}

func (h *Harness) drainOne(s *session) {
	h.T.Helper()
	for {
		var b []byte
		select {
		case b = <-s.Out:
		default:
			return
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			h.T.Fatalf("decode: %v", err)
		}
		switch base.Type {
		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(b, &ack); err != nil {
				h.T.Fatalf("unmarshal ACK: %v", err)
			}
			s.acks[ack.AckFor] = ack
		case protocol.TypeFrame:
			var f protocol.FrameMsg
			if err := json.Unmarshal(b, &f); err != nil {
				h.T.Fatalf("unmarshal FRAME: %v", err)
			}
			s.lastFrame = f
		}
	}
}
