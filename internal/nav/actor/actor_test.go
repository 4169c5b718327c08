package actor

import (
	"context"
	"math"
	"testing"

	"voxelnav.ai/internal/nav/grid"
	"voxelnav.ai/internal/nav/pathfinder"
	"voxelnav.ai/internal/nav/walkable"
)

// plane is solid up to y=16 inside a 65x65 square, plus one unreachable
// pillar top at (50,16,50).
var plane = walkable.TerrainFunc(func(x, y, z int) int {
	if x == 50 && z == 50 && y >= 0 && y <= 16 {
		return 1
	}
	if x < -32 || x > 32 || z < -32 || z > 32 || y < 0 || y > 16 {
		return 0
	}
	return 1
})

func newPathfinder(t *testing.T) *pathfinder.Pathfinder {
	t.Helper()
	p, err := pathfinder.Open(context.Background(), plane, pathfinder.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return p
}

func TestSpawnGroundsAndRegisters(t *testing.T) {
	p := newPathfinder(t)
	a := New(p, Config{Spawn: grid.Vec3{X: 2, Y: 30, Z: -3}})
	if !a.Grounded() {
		t.Fatalf("spawn not grounded")
	}
	if got := a.Position(); got != (grid.Vec3{X: 2.5, Y: 16, Z: -2.5}) {
		t.Fatalf("Position=%v", got)
	}
	if a.Rotation() != 0 || a.TargetRotation() != 0 || a.IsWalking() {
		t.Fatalf("unexpected initial state")
	}
	if obs := p.Obstacles(); len(obs) != 1 || obs[0] != (grid.Vec3i{X: 2, Y: 16, Z: -3}) {
		t.Fatalf("Obstacles=%v", obs)
	}

	void := New(p, Config{Spawn: grid.Vec3{X: 100, Y: 16, Z: 100}})
	if void.Grounded() {
		t.Fatalf("spawn over the void reported grounded")
	}
	if void.Position().Y != -1 {
		t.Fatalf("void Position=%v", void.Position())
	}
}

func TestTwoWaypointMotion(t *testing.T) {
	p := newPathfinder(t)
	a := New(p, Config{Spawn: grid.Vec3{Y: 16}, Speed: 8})
	if !a.Walk(grid.Vec3{X: 1, Y: 16}) {
		t.Fatalf("Walk refused")
	}
	w := a.Waypoints()
	if len(w) != 2 || w[0] != (grid.Vec3{X: 0.5, Y: 16, Z: 0.5}) || w[1] != (grid.Vec3{X: 1.5, Y: 16, Z: 0.5}) {
		t.Fatalf("Waypoints=%v", w)
	}

	a.Update(0.0625)
	if got, want := a.Position(), grid.Lerp(w[0], w[1], 0.5); got != want || !a.IsWalking() {
		t.Fatalf("half way: Position=%v want %v walking=%v", got, want, a.IsWalking())
	}
	a.Update(0.0625)
	if a.IsWalking() {
		t.Fatalf("still walking after 1/speed seconds")
	}
	if got := a.Position(); got != w[1] {
		t.Fatalf("Position=%v want %v", got, w[1])
	}
	if a.Waypoints() != nil {
		t.Fatalf("idle actor reports waypoints")
	}
}

func TestDeltaIsClamped(t *testing.T) {
	p := newPathfinder(t)
	a := New(p, Config{Spawn: grid.Vec3{Y: 16}, Speed: 1})
	a.Walk(grid.Vec3{X: 1, Y: 16})
	a.Update(10)
	if !a.IsWalking() {
		t.Fatalf("large delta completed the walk")
	}
	if got := a.Position().X; math.Abs(got-0.7) > 1e-9 {
		t.Fatalf("X=%v want 0.7", got)
	}
}

func TestRotationTakesShortWayAcrossSeam(t *testing.T) {
	p := newPathfinder(t)
	a := New(p, Config{Spawn: grid.Vec3{Y: 16}})
	a.rotation = math.Pi // facing -z

	// facing -x is -π/2, but 3π/2 is a quarter turn away
	a.SetTargetRotation(grid.Vec3{X: -4.5, Y: 16, Z: 0.5})
	if got := a.TargetRotation(); math.Abs(got-1.5*math.Pi) > 1e-9 {
		t.Fatalf("TargetRotation=%v want %v", got, 1.5*math.Pi)
	}

	maxStep := (a.TargetRotation() - a.Rotation()) * (1 - math.Exp(-a.Speed()*DefaultMaxDelta))
	prev := a.Rotation()
	for i := 0; i < 50; i++ {
		a.Update(0.05)
		r := a.Rotation()
		if r < prev || r-prev > maxStep+1e-9 {
			t.Fatalf("frame %d: rotation jumped %v -> %v", i, prev, r)
		}
		prev = r
	}
	if math.Abs(a.Rotation()-a.TargetRotation()) > rotationEpsilon {
		t.Fatalf("rotation did not settle: %v vs %v", a.Rotation(), a.TargetRotation())
	}

	// same x/z as the current cell: no change
	a.SetTargetRotation(grid.Vec3{X: 0.5, Y: 40, Z: 0.5})
	if math.Abs(a.TargetRotation()-1.5*math.Pi) > 1e-9 {
		t.Fatalf("vertical point changed the target: %v", a.TargetRotation())
	}
}

func TestRotationSwingsAcrossSeam(t *testing.T) {
	p := newPathfinder(t)
	a := New(p, Config{Spawn: grid.Vec3{Y: 16}})

	// headings just either side of ±π, i.e. facing -z
	east := grid.Vec3{X: 0.6, Y: 16, Z: -4.5}
	west := grid.Vec3{X: 0.4, Y: 16, Z: -4.5}
	prevTarget := math.NaN()
	for i := 0; i < 40; i++ {
		point := east
		if i%2 == 1 {
			point = west
		}
		a.SetTargetRotation(point)
		if d := math.Abs(a.TargetRotation() - a.Rotation()); d > math.Pi+1e-9 {
			t.Fatalf("call %d: |target-rotation|=%v", i, d)
		}
		if i > 0 && math.Abs(a.TargetRotation()-prevTarget) > 0.1 {
			t.Fatalf("call %d: target jumped %v -> %v", i, prevTarget, a.TargetRotation())
		}
		prevTarget = a.TargetRotation()
		a.Update(0.05)
	}
}

// overhang is plane with a single block hanging at (3,17,0).
var overhang = walkable.TerrainFunc(func(x, y, z int) int {
	if x == 3 && y == 17 && z == 0 {
		return 1
	}
	return plane(x, y, z)
})

func TestZeroClearanceWalksUnderOverhang(t *testing.T) {
	p, err := pathfinder.Open(context.Background(), overhang, pathfinder.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	flat := New(p, Config{Spawn: grid.Vec3{Y: 16}, Clearance: 0})
	if flat.clearance != 0 {
		t.Fatalf("clearance=%d want 0", flat.clearance)
	}
	if !flat.Walk(grid.Vec3{X: 3, Y: 16}) {
		t.Fatalf("clearance 0 refused the cell under the overhang")
	}
	flat.Close()

	tall := New(p, Config{Spawn: grid.Vec3{Y: 16}, Clearance: 1})
	if tall.Walk(grid.Vec3{X: 3, Y: 16}) {
		t.Fatalf("clearance 1 walked under a block one cell up")
	}
}

func TestSetMinYAppliesToLaterWalks(t *testing.T) {
	p := newPathfinder(t)
	a := New(p, Config{Spawn: grid.Vec3{Y: 16}})
	a.SetMinY(17)
	if a.Walk(grid.Vec3{X: 2, Y: 16}) {
		t.Fatalf("walked to y=16 below min y 17")
	}
	a.SetMinY(0)
	if !a.Walk(grid.Vec3{X: 2, Y: 16}) {
		t.Fatalf("Walk refused after lowering min y")
	}
}

func TestWalkAcrossPlane(t *testing.T) {
	p := newPathfinder(t)
	a := New(p, Config{Spawn: grid.Vec3{Y: 16}})
	if !a.Walk(grid.Vec3{X: 5, Y: 16, Z: 5}) {
		t.Fatalf("Walk refused")
	}
	if !a.IsWalking() {
		t.Fatalf("not walking right after Walk")
	}
	w := a.Waypoints()
	end := grid.Vec3{X: 5.5, Y: 16, Z: 5.5}
	if w[len(w)-1] != end {
		t.Fatalf("route ends at %v", w[len(w)-1])
	}
	if obs := p.Obstacles(); len(obs) != 1 || obs[0] != (grid.Vec3i{X: 5, Y: 16, Z: 5}) {
		t.Fatalf("committed cell not registered: %v", obs)
	}
	for i := 0; i < 100 && a.IsWalking(); i++ {
		a.Update(1.0 / 60)
	}
	if a.IsWalking() || a.Position() != end {
		t.Fatalf("walking=%v Position=%v", a.IsWalking(), a.Position())
	}
}

func TestWalkWithoutRouteKeepsState(t *testing.T) {
	p := newPathfinder(t)
	a := New(p, Config{Spawn: grid.Vec3{Y: 16}})
	a.Walk(grid.Vec3{X: 8, Y: 16})
	a.Update(0.1)
	before := a.Waypoints()

	if a.Walk(grid.Vec3{X: 50, Y: 16, Z: 50}) {
		t.Fatalf("walked to an unreachable pillar")
	}
	if !a.IsWalking() || len(a.Waypoints()) != len(before) {
		t.Fatalf("failed Walk disturbed the current walk")
	}
	if !p.HasObstacle(grid.Vec3i{X: 8, Y: 16}) {
		t.Fatalf("committed cell was not re-registered")
	}

	if a.Walk(grid.Vec3{X: 100, Y: 16, Z: 100}) {
		t.Fatalf("walked into the void")
	}
}

func TestAgentsAvoidCommittedCells(t *testing.T) {
	p := newPathfinder(t)
	a := New(p, Config{Spawn: grid.Vec3{Y: 16}})
	b := New(p, Config{Spawn: grid.Vec3{X: 4, Y: 16}})

	if b.Walk(grid.Vec3{Y: 16}) {
		t.Fatalf("b walked onto a's cell")
	}
	if !a.Walk(grid.Vec3{X: 8, Y: 16}) {
		t.Fatalf("a could not walk")
	}
	for _, w := range a.Waypoints() {
		if grid.Floor(w) == (grid.Vec3i{X: 4, Y: 16}) {
			t.Fatalf("a routed through b: %v", a.Waypoints())
		}
	}
	// a's spawn cell is free again
	if !b.Walk(grid.Vec3{Y: 16}) {
		t.Fatalf("b could not take a's vacated cell")
	}

	a.Close()
	a.Close()
	b.Close()
	if obs := p.Obstacles(); len(obs) != 0 {
		t.Fatalf("Obstacles after Close=%v", obs)
	}
	if a.Walk(grid.Vec3{X: 2, Y: 16}) {
		t.Fatalf("closed actor walked")
	}
}

func TestNilNavigatorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New(nil, Config{})
}

func TestDamp(t *testing.T) {
	if got := damp(0, 10, 5, 0); got != 0 {
		t.Fatalf("damp with dt=0 moved to %v", got)
	}
	got := damp(0, 10, 5, 0.2)
	want := 10 * (1 - math.Exp(-1))
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("damp=%v want %v", got, want)
	}
}
