// Package route turns the raw cell stream of a search into waypoints that can
// be followed by straight-line interpolation.
package route

import (
	"fmt"

	"voxelnav.ai/internal/nav/grid"
)

// Transition selects where the synthetic waypoint goes when a step changes
// both elevation and horizontal position.
type Transition int

const (
	// TransitionClimbFirst changes elevation over the previous cell, then moves.
	TransitionClimbFirst Transition = iota
	// TransitionLedgeAware climbs first on ascents but walks off the ledge
	// before dropping on descents.
	TransitionLedgeAware
)

func (t Transition) String() string {
	switch t {
	case TransitionClimbFirst:
		return "climb_first"
	case TransitionLedgeAware:
		return "ledge_aware"
	default:
		return fmt.Sprintf("Transition(%d)", int(t))
	}
}

func ParseTransition(s string) (Transition, error) {
	switch s {
	case "", "climb_first":
		return TransitionClimbFirst, nil
	case "ledge_aware":
		return TransitionLedgeAware, nil
	default:
		return 0, fmt.Errorf("unknown route transition %q", s)
	}
}

// Builder accumulates waypoints incrementally as cells arrive.
type Builder struct {
	Mode Transition

	points []grid.Vec3
}

func (b *Builder) Reset() { b.points = b.points[:0] }

// Add consumes the next route cell.
func (b *Builder) Add(x, y, z int) {
	next := grid.Vec3i{X: x, Y: y, Z: z}.Center()
	if n := len(b.points); n > 0 {
		last := b.points[n-1]
		if next.Y != last.Y && (next.X != last.X || next.Z != last.Z) {
			b.points = append(b.points, b.transition(last, next))
		}
	}
	b.points = append(b.points, next)
}

func (b *Builder) transition(last, next grid.Vec3) grid.Vec3 {
	if b.Mode == TransitionLedgeAware && next.Y < last.Y {
		return grid.Vec3{X: next.X, Y: last.Y, Z: next.Z}
	}
	return grid.Vec3{X: last.X, Y: next.Y, Z: last.Z}
}

func (b *Builder) Len() int { return len(b.points) }

// Waypoints returns a copy of everything emitted so far, start cell included.
func (b *Builder) Waypoints() []grid.Vec3 {
	out := make([]grid.Vec3, len(b.points))
	copy(out, b.points)
	return out
}

// Route returns the waypoints without the leading start cell.
func (b *Builder) Route() []grid.Vec3 {
	if len(b.points) <= 1 {
		return nil
	}
	out := make([]grid.Vec3, len(b.points)-1)
	copy(out, b.points[1:])
	return out
}
