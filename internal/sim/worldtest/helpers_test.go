package worldtest

import (
	"testing"

	"voxelnav.ai/internal/sim/terrain/store"
	"voxelnav.ai/internal/sim/tuning"
	world "voxelnav.ai/internal/sim/world"
)

func flatConfig(t *testing.T, npcs int) (world.WorldConfig, *store.ChunkStore) {
	t.Helper()
	tu, err := tuning.Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	tu.NPC.Count = npcs
	g := store.DefaultWorldGen(42)
	g.Flat = true
	return world.ConfigFromTuning("test", 42, tu), store.NewChunkStore(g)
}
