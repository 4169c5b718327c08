// Package pathfinder is the route-request surface: it owns the obstacle
// registry, binds itself as the host of a search unit and post-processes the
// raw cell stream into waypoints.
package pathfinder

import (
	"context"
	"errors"
	"fmt"

	"voxelnav.ai/internal/nav/grid"
	"voxelnav.ai/internal/nav/obstacles"
	"voxelnav.ai/internal/nav/route"
	"voxelnav.ai/internal/nav/search"
	"voxelnav.ai/internal/nav/walkable"
)

var ErrNilTerrain = errors.New("pathfinder: nil terrain")

type Options struct {
	Engine      string
	MaxVisited  int
	Transitions route.Transition
}

// Pathfinder is only obtainable from Open, once the search unit is loaded.
// It is not safe for concurrent use.
type Pathfinder struct {
	terrain   walkable.Terrain
	obstacles *obstacles.Registry
	unit      *search.Unit

	// in-flight query
	clearance int
	builder   route.Builder
	last      search.Stats
}

// Open loads the search unit and binds it to a new pathfinder over terrain.
func Open(ctx context.Context, terrain walkable.Terrain, opts Options) (*Pathfinder, error) {
	if terrain == nil {
		return nil, ErrNilTerrain
	}
	unit, err := search.Load(ctx, search.Options{Engine: opts.Engine, MaxVisited: opts.MaxVisited})
	if err != nil {
		return nil, fmt.Errorf("pathfinder: load search unit: %w", err)
	}
	p := &Pathfinder{
		terrain:   terrain,
		obstacles: obstacles.NewRegistry(),
		unit:      unit,
		builder:   route.Builder{Mode: opts.Transitions},
	}
	unit.Bind(p)
	return p, nil
}

// CanWalkAt implements search.Host for the query in flight.
func (p *Pathfinder) CanWalkAt(x, y, z int) bool {
	return walkable.CanWalk(p.terrain, p.obstacles, x, y, z, p.clearance)
}

// AddResult implements search.Host for the query in flight.
func (p *Pathfinder) AddResult(x, y, z int) {
	p.builder.Add(x, y, z)
}

// GetPath returns the waypoints from the cell containing from to the cell
// containing to, without the start cell. An empty result means no route.
func (p *Pathfinder) GetPath(from, to grid.Vec3, clearance int) []grid.Vec3 {
	p.clearance = clearance
	p.builder.Reset()
	p.last = p.unit.Pathfind(grid.Floor(from), grid.Floor(to))
	return p.builder.Route()
}

// Ground snaps pos down to the nearest walkable cell; see walkable.Ground.
func (p *Pathfinder) Ground(pos *grid.Vec3, clearance, minY int) bool {
	return walkable.Ground(p.terrain, p.obstacles, pos, clearance, minY)
}

func (p *Pathfinder) AddObstacle(pos grid.Vec3)    { p.obstacles.Add(pos) }
func (p *Pathfinder) RemoveObstacle(pos grid.Vec3) { p.obstacles.Remove(pos) }

// Obstacles returns the registered cells in sorted order.
func (p *Pathfinder) Obstacles() []grid.Vec3i { return p.obstacles.Cells() }

func (p *Pathfinder) HasObstacle(c grid.Vec3i) bool { return p.obstacles.HasCell(c) }

// ResetObstacles replaces the registry contents, used when replaying a
// recorded request.
func (p *Pathfinder) ResetObstacles(cells []grid.Vec3i) {
	p.obstacles.Clear()
	for _, c := range cells {
		p.obstacles.Add(c.Vec3())
	}
}

// LastStats describes the most recent GetPath call.
func (p *Pathfinder) LastStats() search.Stats { return p.last }

func (p *Pathfinder) Engine() string { return p.unit.EngineName() }

func (p *Pathfinder) Transitions() route.Transition { return p.builder.Mode }

// SetTransitions changes the post-processing mode for subsequent queries.
func (p *Pathfinder) SetTransitions(t route.Transition) { p.builder.Mode = t }
