// Package walkable decides which voxel cells an agent can stand in.
package walkable

import "voxelnav.ai/internal/nav/grid"

// Terrain is the voxel accessor the oracle consumes. A zero value means empty.
type Terrain interface {
	Voxel(x, y, z int) int
}

// Occupancy reports cells held by agents.
type Occupancy interface {
	Has(x, y, z int) bool
}

// TerrainFunc adapts a plain function to Terrain.
type TerrainFunc func(x, y, z int) int

func (f TerrainFunc) Voxel(x, y, z int) int { return f(x, y, z) }

// CanWalk reports whether (x,y,z) has ground, is free of agents, and has
// clearance empty cells above it.
func CanWalk(t Terrain, obs Occupancy, x, y, z, clearance int) bool {
	if t.Voxel(x, y, z) == 0 {
		return false
	}
	if obs != nil && obs.Has(x, y, z) {
		return false
	}
	for i := 1; i <= clearance; i++ {
		if t.Voxel(x, y+i, z) != 0 {
			return false
		}
	}
	return true
}

// Ground floors pos and scans down to the first walkable cell at or above
// minY. On failure pos is left at minY-1.
func Ground(t Terrain, obs Occupancy, pos *grid.Vec3, clearance, minY int) bool {
	c := grid.Floor(*pos)
	for ; c.Y >= minY; c.Y-- {
		if CanWalk(t, obs, c.X, c.Y, c.Z, clearance) {
			*pos = c.Vec3()
			return true
		}
	}
	*pos = c.Vec3()
	return false
}
