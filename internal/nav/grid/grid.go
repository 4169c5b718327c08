// Package grid holds the coordinate types shared by the navigation packages.
//
// Cells are addressed by integer triples. Visual positions are float triples
// that sit at the horizontal center of a cell (cell + 0.5 on x and z); they are
// floored back to a cell before any walkability query or search.
package grid

import (
	"fmt"
	"math"
	"strconv"
)

type Vec3i struct {
	X int
	Y int
	Z int
}

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

// Key is the canonical "x:y:z" encoding used by the obstacle registry and logs.
func (v Vec3i) Key() string {
	return strconv.Itoa(v.X) + ":" + strconv.Itoa(v.Y) + ":" + strconv.Itoa(v.Z)
}

func (v Vec3i) String() string { return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z) }

// Array is the wire form used by the protocol and the route log.
func (v Vec3i) Array() [3]int { return [3]int{v.X, v.Y, v.Z} }

// Center returns the visual position of the cell: +0.5 on both horizontal axes.
func (v Vec3i) Center() Vec3 {
	return Vec3{X: float64(v.X) + 0.5, Y: float64(v.Y), Z: float64(v.Z) + 0.5}
}

func (v Vec3i) Vec3() Vec3 { return Vec3{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)} }

type Vec3 struct {
	X float64
	Y float64
	Z float64
}

func (v Vec3) Array() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func (v Vec3) String() string { return fmt.Sprintf("(%g,%g,%g)", v.X, v.Y, v.Z) }

// Floor maps a visual position to the cell containing it.
func Floor(v Vec3) Vec3i {
	return Vec3i{
		X: int(math.Floor(v.X)),
		Y: int(math.Floor(v.Y)),
		Z: int(math.Floor(v.Z)),
	}
}

// Lerp interpolates component-wise between a and b.
func Lerp(a, b Vec3, t float64) Vec3 {
	return Vec3{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
	}
}

func FromArray(a [3]float64) Vec3 { return Vec3{X: a[0], Y: a[1], Z: a[2]} }

func FromArrayInt(a [3]int) Vec3i { return Vec3i{X: a[0], Y: a[1], Z: a[2]} }
