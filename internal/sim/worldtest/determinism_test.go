package worldtest

import (
	"testing"

	"voxelnav.ai/internal/protocol"
	world "voxelnav.ai/internal/sim/world"
)

func TestDeterminism_FixedActionsSameDigest(t *testing.T) {
	cfg, chunks1 := flatConfig(t, 8)
	_, chunks2 := flatConfig(t, 8)
	cfg.NPC.SleepMaxSec = 2

	w1, err := world.New(cfg, chunks1, nil)
	if err != nil {
		t.Fatalf("world1: %v", err)
	}
	w2, err := world.New(cfg, chunks2, nil)
	if err != nil {
		t.Fatalf("world2: %v", err)
	}

	join := func(w *world.World, name string) string {
		resp := make(chan world.JoinResponse, 1)
		_, _ = w.StepOnce([]world.JoinRequest{{Name: name, Resp: resp}}, nil, nil)
		r := <-resp
		return r.Welcome.AgentID
	}

	a1w1 := join(w1, "bot")
	a1w2 := join(w2, "bot")
	if a1w1 != a1w2 {
		t.Fatalf("agent id mismatch: %s vs %s", a1w1, a1w2)
	}

	startTick := w1.CurrentTick()
	for i := uint64(0); i < 200; i++ {
		wantTick := startTick + i
		var acts1, acts2 []world.ActionEnvelope
		if i%50 == 0 {
			walk := &protocol.WalkMsg{
				Type:            protocol.TypeWalk,
				ProtocolVersion: protocol.Version,
				ID:              "K1",
				Target:          [3]float64{float64(i%7) - 3, 16, float64(i%11) - 5},
			}
			acts1 = append(acts1, world.ActionEnvelope{AgentID: a1w1, Walk: walk})
			acts2 = append(acts2, world.ActionEnvelope{AgentID: a1w2, Walk: walk})
		}

		t1, d1 := w1.StepOnce(nil, nil, acts1)
		t2, d2 := w2.StepOnce(nil, nil, acts2)
		if t1 != wantTick || t2 != wantTick {
			t.Fatalf("tick mismatch: got w1=%d w2=%d want %d", t1, t2, wantTick)
		}
		if d1 != d2 {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", wantTick, d1, d2)
		}
	}
}
