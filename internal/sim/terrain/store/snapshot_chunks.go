package store

import (
	"fmt"

	snapv1 "voxelnav.ai/internal/persistence/snapshot"
)

// ExportLoadedChunks deep-copies the chunks named by keys, in keys order.
func ExportLoadedChunks(chunks map[ChunkKey]*Chunk, keys []ChunkKey) []snapv1.ChunkV1 {
	out := make([]snapv1.ChunkV1, 0, len(keys))
	for _, k := range keys {
		ch := chunks[k]
		if ch == nil {
			continue
		}
		blocks := make([]uint16, len(ch.Blocks))
		copy(blocks, ch.Blocks)
		out = append(out, snapv1.ChunkV1{CX: k.CX, CZ: k.CZ, Height: ch.Height, Blocks: blocks})
	}
	return out
}

// ImportChunks builds a store whose loaded chunks are exactly the given ones.
func ImportChunks(g WorldGen, chunks []snapv1.ChunkV1) (*ChunkStore, error) {
	s := NewChunkStore(g)
	want := ChunkSize * g.Height * ChunkSize
	for _, ch := range chunks {
		if ch.Height != g.Height {
			return nil, fmt.Errorf("snapshot chunk height mismatch: got %d want %d", ch.Height, g.Height)
		}
		if len(ch.Blocks) != want {
			return nil, fmt.Errorf("snapshot chunk blocks length mismatch: got %d want %d", len(ch.Blocks), want)
		}
		blocks := make([]uint16, len(ch.Blocks))
		copy(blocks, ch.Blocks)
		c := &Chunk{CX: ch.CX, CZ: ch.CZ, Height: ch.Height, Blocks: blocks}
		_ = c.Digest()
		s.Chunks[ChunkKey{CX: ch.CX, CZ: ch.CZ}] = c
	}
	return s, nil
}

// Snapshot captures the generator parameters and every loaded chunk.
func (s *ChunkStore) Snapshot(worldID string, tick uint64, tickRate int) snapv1.SnapshotV1 {
	d := s.Digest()
	return snapv1.SnapshotV1{
		Header:     snapv1.Header{Version: snapv1.Version, WorldID: worldID, Tick: tick},
		Seed:       s.Gen.Seed,
		TickRate:   tickRate,
		Height:     s.Gen.Height,
		BoundaryR:  s.Gen.BoundaryR,
		BaseHeight: s.Gen.BaseHeight,
		Amplitude:  s.Gen.Amplitude,
		NoiseCell:  s.Gen.NoiseCell,
		Flat:       s.Gen.Flat,
		Digest:     fmt.Sprintf("%x", d[:]),
		Chunks:     ExportLoadedChunks(s.Chunks, s.LoadedChunkKeys()),
	}
}

// FromSnapshot rebuilds a store, keeping the default block ids.
func FromSnapshot(snap snapv1.SnapshotV1) (*ChunkStore, error) {
	g := DefaultWorldGen(snap.Seed)
	g.Height = snap.Height
	g.BoundaryR = snap.BoundaryR
	g.BaseHeight = snap.BaseHeight
	g.Amplitude = snap.Amplitude
	g.NoiseCell = snap.NoiseCell
	g.Flat = snap.Flat
	s, err := ImportChunks(g, snap.Chunks)
	if err != nil {
		return nil, err
	}
	if snap.Digest != "" {
		d := s.Digest()
		if got := fmt.Sprintf("%x", d[:]); got != snap.Digest {
			return nil, fmt.Errorf("snapshot digest mismatch: got %s want %s", got, snap.Digest)
		}
	}
	return s, nil
}
