package store

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"voxelnav.ai/internal/sim/mathx"
)

func (s *ChunkStore) InBounds(x, y, z int) bool {
	if y < 0 || y >= s.Gen.Height {
		return false
	}
	if s.Gen.BoundaryR > 0 {
		if x < -s.Gen.BoundaryR || x > s.Gen.BoundaryR || z < -s.Gen.BoundaryR || z > s.Gen.BoundaryR {
			return false
		}
	}
	return true
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.Chunks))
	for k := range s.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

func (s *ChunkStore) GetBlock(x, y, z int) uint16 {
	if !s.InBounds(x, y, z) {
		return s.Gen.Air
	}
	ch := s.GetOrGenChunk(mathx.FloorDiv(x, ChunkSize), mathx.FloorDiv(z, ChunkSize))
	return ch.Get(mathx.Mod(x, ChunkSize), y, mathx.Mod(z, ChunkSize))
}

// SetBlock writes one voxel and reports whether anything changed.
// Out-of-bounds writes are dropped.
func (s *ChunkStore) SetBlock(x, y, z int, b uint16) bool {
	if !s.InBounds(x, y, z) {
		return false
	}
	ch := s.GetOrGenChunk(mathx.FloorDiv(x, ChunkSize), mathx.FloorDiv(z, ChunkSize))
	return ch.Set(mathx.Mod(x, ChunkSize), y, mathx.Mod(z, ChunkSize), b)
}

// Voxel implements walkable.Terrain.
func (s *ChunkStore) Voxel(x, y, z int) int {
	return int(s.GetBlock(x, y, z))
}

// SurfaceY returns the highest non-air y in column (x,z), or -1.
func (s *ChunkStore) SurfaceY(x, z int) int {
	for y := s.Gen.Height - 1; y >= 0; y-- {
		if s.GetBlock(x, y, z) != s.Gen.Air {
			return y
		}
	}
	return -1
}

func (s *ChunkStore) GetOrGenChunk(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.Chunks[k]; ok {
		return ch
	}
	ch := &Chunk{
		CX:     cx,
		CZ:     cz,
		Height: s.Gen.Height,
		Blocks: make([]uint16, ChunkSize*s.Gen.Height*ChunkSize),
	}
	s.GenerateChunk(ch)
	ch.dirty = true
	_ = ch.Digest()
	s.Chunks[k] = ch
	return ch
}

// Digest hashes every loaded chunk in key order.
func (s *ChunkStore) Digest() [32]byte {
	h := sha256.New()
	var tmp [8]byte
	for _, k := range s.LoadedChunkKeys() {
		binary.LittleEndian.PutUint64(tmp[:], uint64(int64(k.CX)))
		h.Write(tmp[:])
		binary.LittleEndian.PutUint64(tmp[:], uint64(int64(k.CZ)))
		h.Write(tmp[:])
		d := s.Chunks[k].Digest()
		h.Write(d[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ChunkBlocks copies one chunk's voxels. A chunk that is not loaded is
// generated into a scratch buffer and left unloaded, so reads do not change
// Digest.
func (s *ChunkStore) ChunkBlocks(cx, cz int) (blocks []uint16, loaded bool) {
	if ch, ok := s.Chunks[ChunkKey{CX: cx, CZ: cz}]; ok {
		out := make([]uint16, len(ch.Blocks))
		copy(out, ch.Blocks)
		return out, true
	}
	ch := &Chunk{
		CX:     cx,
		CZ:     cz,
		Height: s.Gen.Height,
		Blocks: make([]uint16, ChunkSize*s.Gen.Height*ChunkSize),
	}
	s.GenerateChunk(ch)
	return ch.Blocks, false
}
