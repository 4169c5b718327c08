package mathx

import "math"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash2 is a seeded integer hash of a lattice point.
func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// Unit2 maps Hash2 onto [0,1).
func Unit2(seed int64, x, z int) float64 {
	return float64(Hash2(seed, x, z)>>11) / (1 << 53)
}

func smoothstep(t float64) float64 { return t * t * (3 - 2*t) }

// ValueNoise2 interpolates lattice values spaced cell apart. Output is in
// [0,1).
func ValueNoise2(seed int64, x, z, cell int) float64 {
	if cell <= 1 {
		return Unit2(seed, x, z)
	}
	gx, gz := FloorDiv(x, cell), FloorDiv(z, cell)
	tx := smoothstep(float64(Mod(x, cell)) / float64(cell))
	tz := smoothstep(float64(Mod(z, cell)) / float64(cell))
	v00 := Unit2(seed, gx, gz)
	v10 := Unit2(seed, gx+1, gz)
	v01 := Unit2(seed, gx, gz+1)
	v11 := Unit2(seed, gx+1, gz+1)
	a := v00 + (v10-v00)*tx
	b := v01 + (v11-v01)*tx
	return a + (b-a)*tz
}
