package obstacles

import (
	"reflect"
	"testing"

	"voxelnav.ai/internal/nav/grid"
)

func TestAddRemoveRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.Add(grid.Vec3{X: 1.5, Y: 16, Z: 2.5})
	before := r.Cells()

	p := grid.Vec3{X: -3.2, Y: 4, Z: 0.9}
	r.Add(p)
	if !r.Has(-4, 4, 0) {
		t.Fatalf("expected floored cell to be registered")
	}
	r.Remove(p)

	if !reflect.DeepEqual(before, r.Cells()) {
		t.Fatalf("membership changed: before=%v after=%v", before, r.Cells())
	}
	if r.Has(-4, 4, 0) {
		t.Fatalf("cell still registered after remove")
	}
}

func TestRemoveFloorsPosition(t *testing.T) {
	r := NewRegistry()
	r.Add(grid.Vec3{X: 5.5, Y: 16, Z: 5.5})
	r.Remove(grid.Vec3{X: 5.01, Y: 16.7, Z: 5.99})
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %v", r.Cells())
	}
}

func TestCellsSorted(t *testing.T) {
	r := NewRegistry()
	r.Add(grid.Vec3{X: 2, Y: 0, Z: 0})
	r.Add(grid.Vec3{X: 1, Y: 3, Z: 0})
	r.Add(grid.Vec3{X: 1, Y: 1, Z: 5})
	want := []grid.Vec3i{{X: 1, Y: 1, Z: 5}, {X: 1, Y: 3, Z: 0}, {X: 2, Y: 0, Z: 0}}
	if got := r.Cells(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Cells()=%v want %v", got, want)
	}
}
