package world

import "math"

// fractal is seeded value noise summed over octaves. Every worker evaluates
// the same lattice, so terrain is identical no matter which goroutine fills
// a brick. Outputs lie in [0,1].
type fractal struct {
	seed        int64
	octaves     int
	persistence float64
	lacunarity  float64
}

// Per-axis multipliers keep the lattice hash from being symmetric in x, y, z.
const (
	axisX = 0x9E3779B97F4A7C15
	axisY = 0x517CC1B727220A95
	axisZ = 0x6C62272E07BB0142
)

// mix64 is the SplitMix64 finalizer.
func mix64(v uint64) uint64 {
	v += 0x9E3779B97F4A7C15
	v = (v ^ (v >> 30)) * 0xBF58476D1CE4E5B9
	v = (v ^ (v >> 27)) * 0x94D049BB133111EB
	return v ^ (v >> 31)
}

func latticeHash(x, y, z, seed int64) uint64 {
	return mix64(uint64(x)*axisX + uint64(y)*axisY + uint64(z)*axisZ + uint64(seed))
}

func unit(h uint64) float64 {
	return float64(h&0xFFFFFFFF) / float64(0xFFFFFFFF)
}

// quintic is 6t^5 - 15t^4 + 10t^3.
func quintic(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

func mix(a, b, t float64) float64 { return a + t*(b-a) }

// cell splits a coordinate into its lattice cell and smoothed fraction.
func cell(v float64) (int64, float64) {
	f := math.Floor(v)
	return int64(f), quintic(v - f)
}

// value2 interpolates the y=0 slice of the lattice.
func value2(x, z float64, seed int64) float64 {
	ix, fx := cell(x)
	iz, fz := cell(z)
	a := mix(unit(latticeHash(ix, 0, iz, seed)), unit(latticeHash(ix+1, 0, iz, seed)), fx)
	b := mix(unit(latticeHash(ix, 0, iz+1, seed)), unit(latticeHash(ix+1, 0, iz+1, seed)), fx)
	return mix(a, b, fz)
}

func value3(x, y, z float64, seed int64) float64 {
	ix, fx := cell(x)
	iy, fy := cell(y)
	iz, fz := cell(z)
	var plane [2]float64
	for dz := int64(0); dz < 2; dz++ {
		row0 := mix(unit(latticeHash(ix, iy, iz+dz, seed)), unit(latticeHash(ix+1, iy, iz+dz, seed)), fx)
		row1 := mix(unit(latticeHash(ix, iy+1, iz+dz, seed)), unit(latticeHash(ix+1, iy+1, iz+dz, seed)), fx)
		plane[dz] = mix(row0, row1, fy)
	}
	return mix(plane[0], plane[1], fz)
}

// sum accumulates octaves of sample and normalizes by the total amplitude.
func (f fractal) sum(sample func(freq float64, seed int64) float64) float64 {
	amp, freq := 1.0, 1.0
	total, norm := 0.0, 0.0
	for i := 0; i < f.octaves; i++ {
		total += sample(freq, f.seed+int64(i*131)) * amp
		norm += amp
		amp *= f.persistence
		freq *= f.lacunarity
	}
	if norm == 0 {
		return 0
	}
	return total / norm
}

func (f fractal) at2(x, z float64) float64 {
	return f.sum(func(freq float64, seed int64) float64 {
		return value2(x*freq, z*freq, seed)
	})
}

func (f fractal) at3(x, y, z float64) float64 {
	return f.sum(func(freq float64, seed int64) float64 {
		return value3(x*freq, y*freq, z*freq, seed)
	})
}
