// Package obstacles tracks the grid cells currently committed to by agents.
package obstacles

import (
	"sort"

	"voxelnav.ai/internal/nav/grid"
)

// Registry is a set of occupied cells keyed by the canonical "x:y:z" encoding.
// It is not synchronized: the owner mutates it from a single goroutine.
type Registry struct {
	cells map[string]grid.Vec3i
}

func NewRegistry() *Registry {
	return &Registry{cells: map[string]grid.Vec3i{}}
}

// Add floors pos and marks the cell occupied.
func (r *Registry) Add(pos grid.Vec3) {
	c := grid.Floor(pos)
	r.cells[c.Key()] = c
}

// Remove floors pos and clears the cell.
func (r *Registry) Remove(pos grid.Vec3) {
	delete(r.cells, grid.Floor(pos).Key())
}

func (r *Registry) Has(x, y, z int) bool {
	if r == nil {
		return false
	}
	_, ok := r.cells[grid.Vec3i{X: x, Y: y, Z: z}.Key()]
	return ok
}

func (r *Registry) HasCell(c grid.Vec3i) bool { return r.Has(c.X, c.Y, c.Z) }

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.cells)
}

func (r *Registry) Clear() {
	r.cells = map[string]grid.Vec3i{}
}

// Cells returns the occupied cells in x, y, z order.
func (r *Registry) Cells() []grid.Vec3i {
	if r == nil {
		return nil
	}
	out := make([]grid.Vec3i, 0, len(r.cells))
	for _, c := range r.cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].Z < out[j].Z
	})
	return out
}
