// Package store holds chunked voxel terrain. Chunks are generated lazily on
// first access and can be exported to and imported from snapshots.
package store

import (
	"crypto/sha256"
	"encoding/binary"

	"voxelnav.ai/internal/sim/terrain/gen"
)

const ChunkSize = 16

type ChunkKey struct {
	CX int
	CZ int
}

type Chunk struct {
	CX, CZ int
	Height int
	Blocks []uint16 // len = 16*Height*16, x fastest then z then y

	dirty bool
	hash  [32]byte
}

func (c *Chunk) index(x, y, z int) int {
	return x + z*ChunkSize + y*ChunkSize*ChunkSize
}

func (c *Chunk) Get(x, y, z int) uint16 {
	return c.Blocks[c.index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, b uint16) bool {
	i := c.index(x, y, z)
	if c.Blocks[i] == b {
		return false
	}
	c.Blocks[i] = b
	c.dirty = true
	return true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

type WorldGen struct {
	Seed       int64
	BoundaryR  int // blocks; 0 = unbounded
	Height     int
	BaseHeight int
	Amplitude  int
	NoiseCell  int
	Flat       bool

	Air     uint16
	Stone   uint16
	Surface uint16
}

func (g WorldGen) params() gen.Params {
	return gen.Params{
		Seed:       g.Seed,
		BaseHeight: g.BaseHeight,
		Amplitude:  g.Amplitude,
		NoiseCell:  g.NoiseCell,
		Flat:       g.Flat,
	}
}

// DefaultWorldGen returns a 64-high world with its surface around y=16.
func DefaultWorldGen(seed int64) WorldGen {
	return WorldGen{
		Seed:       seed,
		BoundaryR:  128,
		Height:     64,
		BaseHeight: gen.DefaultBaseHeight,
		Amplitude:  gen.DefaultAmplitude,
		NoiseCell:  gen.DefaultNoiseCell,
		Air:        0,
		Stone:      1,
		Surface:    2,
	}
}

type ChunkStore struct {
	Gen    WorldGen
	Chunks map[ChunkKey]*Chunk
}

func NewChunkStore(g WorldGen) *ChunkStore {
	return &ChunkStore{
		Gen:    g,
		Chunks: map[ChunkKey]*Chunk{},
	}
}
