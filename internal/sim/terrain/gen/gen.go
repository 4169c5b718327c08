// Package gen computes the deterministic column heights of generated terrain.
package gen

import (
	"math"

	"voxelnav.ai/internal/sim/mathx"
)

const (
	DefaultBaseHeight = 16
	DefaultAmplitude  = 4
	DefaultNoiseCell  = 24
)

// Params describes the heightmap. Every column is solid from y=0 up to its
// surface.
type Params struct {
	Seed       int64
	BaseHeight int
	Amplitude  int
	NoiseCell  int
	Flat       bool
}

// SurfaceY returns the top solid y of column (x,z).
func SurfaceY(p Params, x, z int) int {
	if p.Flat || p.Amplitude <= 0 {
		return p.BaseHeight
	}
	n := mathx.ValueNoise2(p.Seed, x, z, p.NoiseCell)
	// detail octave, half the cell and a quarter of the weight
	n = 0.8*n + 0.2*mathx.ValueNoise2(p.Seed+7919, x, z, p.NoiseCell/2)
	off := int(math.Round((2*n - 1) * float64(p.Amplitude)))
	return p.BaseHeight + off
}

// Column returns the voxel at height y in a column whose surface is top.
func Column(y, top int, fill, surface uint16) uint16 {
	switch {
	case y < 0 || y > top:
		return 0
	case y == top:
		return surface
	default:
		return fill
	}
}
