package walkable

import (
	"testing"

	"voxelnav.ai/internal/nav/grid"
	"voxelnav.ai/internal/nav/obstacles"
)

type voxelMap map[grid.Vec3i]int

func (m voxelMap) Voxel(x, y, z int) int { return m[grid.Vec3i{X: x, Y: y, Z: z}] }

func column(top int, extra ...int) voxelMap {
	m := voxelMap{}
	for y := 0; y <= top; y++ {
		m[grid.Vec3i{Y: y}] = 1
	}
	for _, y := range extra {
		m[grid.Vec3i{Y: y}] = 2
	}
	return m
}

func TestCanWalkEmptyGround(t *testing.T) {
	m := voxelMap{}
	obs := obstacles.NewRegistry()
	for c := 0; c < 4; c++ {
		if CanWalk(m, obs, 0, 3, 0, c) {
			t.Fatalf("empty ground walkable with clearance %d", c)
		}
	}
	if CanWalk(m, nil, 0, 3, 0, 0) {
		t.Fatalf("empty ground walkable without obstacles")
	}
}

func TestCanWalkHeadroom(t *testing.T) {
	for blocker := 1; blocker <= 3; blocker++ {
		m := column(4, 4+blocker)
		for c := 0; c <= 4; c++ {
			got := CanWalk(m, nil, 0, 4, 0, c)
			want := c < blocker
			if got != want {
				t.Fatalf("blocker at +%d clearance %d: got %v want %v", blocker, c, got, want)
			}
		}
	}
}

func TestCanWalkObstacle(t *testing.T) {
	m := column(4)
	obs := obstacles.NewRegistry()
	if !CanWalk(m, obs, 0, 4, 0, 2) {
		t.Fatalf("expected top of column to be walkable")
	}
	obs.Add(grid.Vec3{X: 0.5, Y: 4, Z: 0.5})
	if CanWalk(m, obs, 0, 4, 0, 2) {
		t.Fatalf("occupied cell should not be walkable")
	}
}

func TestGround(t *testing.T) {
	m := column(4)
	cases := []struct {
		name      string
		start     grid.Vec3
		clearance int
		minY      int
		ok        bool
		wantY     float64
	}{
		{name: "above surface", start: grid.Vec3{X: 0.7, Y: 16.2, Z: 0.1}, clearance: 3, minY: 0, ok: true, wantY: 4},
		{name: "buried clearance 0", start: grid.Vec3{Y: 2}, clearance: 0, minY: 0, ok: true, wantY: 2},
		{name: "buried with headroom", start: grid.Vec3{Y: 2}, clearance: 1, minY: 0, ok: false, wantY: -1},
		{name: "minY above surface", start: grid.Vec3{Y: 10}, clearance: 0, minY: 6, ok: false, wantY: 5},
		{name: "no ground", start: grid.Vec3{X: 3, Y: 10}, clearance: 0, minY: 0, ok: false, wantY: -1},
	}
	for _, tc := range cases {
		p := tc.start
		ok := Ground(m, nil, &p, tc.clearance, tc.minY)
		if ok != tc.ok || p.Y != tc.wantY {
			t.Fatalf("%s: got ok=%v y=%v want ok=%v y=%v", tc.name, ok, p.Y, tc.ok, tc.wantY)
		}
		if ok {
			c := grid.Floor(p)
			if !CanWalk(m, nil, c.X, c.Y, c.Z, tc.clearance) || c.Y < tc.minY {
				t.Fatalf("%s: grounded cell %v not walkable", tc.name, c)
			}
			if p.X != float64(c.X) || p.Z != float64(c.Z) {
				t.Fatalf("%s: expected floored position, got %v", tc.name, p)
			}
		}
	}
}

func TestGroundSkipsOccupied(t *testing.T) {
	m := column(4)
	obs := obstacles.NewRegistry()
	obs.Add(grid.Vec3{Y: 4})
	p := grid.Vec3{Y: 8}
	if !Ground(m, obs, &p, 0, 0) || p.Y != 3 {
		t.Fatalf("expected ground below occupied cell, got %v", p)
	}
}
