package store

import "voxelnav.ai/internal/sim/terrain/gen"

func (s *ChunkStore) GenerateChunk(ch *Chunk) {
	p := s.Gen.params()
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			wx := ch.CX*ChunkSize + x
			wz := ch.CZ*ChunkSize + z
			if !s.InBounds(wx, 0, wz) {
				continue
			}
			top := gen.SurfaceY(p, wx, wz)
			if top >= ch.Height {
				top = ch.Height - 1
			}
			for y := 0; y <= top; y++ {
				ch.Blocks[ch.index(x, y, z)] = gen.Column(y, top, s.Gen.Stone, s.Gen.Surface)
			}
		}
	}
}
