// Package actor moves one agent along pathfinder routes at a constant speed,
// turning smoothly toward the segment it is on.
package actor

import (
	"math"

	"voxelnav.ai/internal/nav/grid"
)

const (
	DefaultSpeed    = 10.0
	DefaultMaxDelta = 0.2

	rotationEpsilon = 0.01
)

// Navigator is the route-request surface an actor needs.
// *pathfinder.Pathfinder satisfies it.
type Navigator interface {
	GetPath(from, to grid.Vec3, clearance int) []grid.Vec3
	Ground(pos *grid.Vec3, clearance, minY int) bool
	AddObstacle(pos grid.Vec3)
	RemoveObstacle(pos grid.Vec3)
}

// Config describes a new actor. Zero Speed and MaxDelta take the package
// defaults; Clearance is used as given, 0 meaning no headroom.
type Config struct {
	Spawn     grid.Vec3
	Speed     float64
	Clearance int
	MinY      int
	MaxDelta  float64
}

// Actor is either Idle or Walking. It is driven from a single goroutine.
type Actor struct {
	nav       Navigator
	speed     float64
	clearance int
	minY      int
	maxDelta  float64
	grounded  bool

	position       grid.Vec3
	rotation       float64
	targetRotation float64

	walking   bool
	seg       int
	progress  float64
	waypoints []grid.Vec3

	committed  grid.Vec3
	registered bool
}

// New grounds and centers the spawn point and registers the spawn cell.
func New(nav Navigator, cfg Config) *Actor {
	if nav == nil {
		panic("actor: nil navigator")
	}
	if cfg.Speed == 0 {
		cfg.Speed = DefaultSpeed
	}
	if cfg.MaxDelta == 0 {
		cfg.MaxDelta = DefaultMaxDelta
	}
	a := &Actor{
		nav:       nav,
		speed:     cfg.Speed,
		clearance: cfg.Clearance,
		minY:      cfg.MinY,
		maxDelta:  cfg.MaxDelta,
	}
	pos := cfg.Spawn
	a.grounded = nav.Ground(&pos, a.clearance, a.minY)
	pos.X += 0.5
	pos.Z += 0.5
	a.position = pos
	a.commit(pos)
	return a
}

func (a *Actor) commit(pos grid.Vec3) {
	a.committed = pos
	a.registered = true
	a.nav.AddObstacle(pos)
}

// Walk plans a route to the ground cell under dest. It reports whether a new
// walk started; when no route exists the actor keeps what it was doing.
// A closed actor never walks.
func (a *Actor) Walk(dest grid.Vec3) bool {
	if !a.registered || !a.nav.Ground(&dest, a.clearance, a.minY) {
		return false
	}
	a.nav.RemoveObstacle(a.committed)
	wps := a.nav.GetPath(a.position, dest, a.clearance)
	if len(wps) == 0 {
		a.commit(a.committed)
		return false
	}
	a.waypoints = append(append(make([]grid.Vec3, 0, len(wps)+1), a.position), wps...)
	a.seg = 1
	a.progress = 0
	a.walking = true
	a.SetTargetRotation(wps[0])
	a.commit(wps[len(wps)-1])
	return true
}

// Update advances the actor by delta seconds, clamped to MaxDelta.
func (a *Actor) Update(delta float64) {
	if delta > a.maxDelta {
		delta = a.maxDelta
	}
	if a.walking {
		a.progress += delta * a.speed
		for a.progress >= 1 {
			a.progress--
			a.seg++
			if a.seg >= len(a.waypoints) {
				a.position = a.waypoints[len(a.waypoints)-1]
				a.walking = false
				a.progress = 0
				return
			}
			a.SetTargetRotation(a.waypoints[a.seg])
		}
		a.position = grid.Lerp(a.waypoints[a.seg-1], a.waypoints[a.seg], a.progress)
	}
	if math.Abs(a.targetRotation-a.rotation) > rotationEpsilon {
		a.rotation = damp(a.rotation, a.targetRotation, a.speed, delta)
	}
}

// SetTargetRotation faces the actor toward point, measured from the center of
// the cell it is in. The branch of the heading closest to the current
// rotation is chosen, so rotation is continuous and may wind past 2π.
func (a *Actor) SetTargetRotation(point grid.Vec3) {
	c := grid.Floor(a.position).Center()
	dx, dz := point.X-c.X, point.Z-c.Z
	if dx == 0 && dz == 0 {
		return
	}
	heading := math.Atan2(dx, dz)
	k := math.Round((a.rotation - heading) / (2 * math.Pi))
	a.targetRotation = heading + 2*math.Pi*k
}

// Close releases the committed cell. It is safe to call more than once.
func (a *Actor) Close() {
	if !a.registered {
		return
	}
	a.nav.RemoveObstacle(a.committed)
	a.registered = false
	a.walking = false
}

func (a *Actor) IsWalking() bool { return a.walking }
func (a *Actor) Position() grid.Vec3 { return a.position }
func (a *Actor) Rotation() float64 { return a.rotation }
func (a *Actor) TargetRotation() float64 { return a.targetRotation }
func (a *Actor) Grounded() bool { return a.grounded }
func (a *Actor) Speed() float64 { return a.speed }
func (a *Actor) SetSpeed(s float64) { a.speed = s }
func (a *Actor) SetMaxDelta(d float64) { a.maxDelta = d }

// SetMinY changes the lowest y later Walk calls will ground to.
func (a *Actor) SetMinY(y int) { a.minY = y }

// Waypoints returns a copy of the current walk, starting point included.
func (a *Actor) Waypoints() []grid.Vec3 {
	if !a.walking {
		return nil
	}
	out := make([]grid.Vec3, len(a.waypoints))
	copy(out, a.waypoints)
	return out
}

// damp is frame-rate independent exponential smoothing.
func damp(x, y, lambda, dt float64) float64 {
	t := 1 - math.Exp(-lambda*dt)
	return x + (y-x)*t
}
