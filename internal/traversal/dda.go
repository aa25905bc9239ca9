package traversal

import (
	"math"
)

// cursor walks the cells of a uniform grid crossed by a ray (Amanatides-Woo).
// Cells are in units of size and restricted to [lo, lo+n) per axis.
type cursor struct {
	cell   [3]int64
	step   [3]int64
	tMax   [3]float64
	tDelta [3]float64
	lo     [3]int64
	n      int64
	enter  float64
	end    float64
	done   bool
}

// reset positions c at the cell holding r at t0. The walk stops at t1.
func (c *cursor) reset(r *Ray, t0, t1, size float64, lo [3]int64, n int64) {
	c.lo, c.n = lo, n
	c.enter, c.end = t0, t1
	c.done = t1 <= t0

	// sample slightly inside the span so a start on a cell face picks the
	// cell the ray is entering
	nudge := math.Min(size*1e-6, (t1-t0)*0.5)
	p := r.At(t0 + nudge)
	for a := 0; a < 3; a++ {
		ci := int64(math.Floor(p[a] / size))
		if ci < lo[a] {
			ci = lo[a]
		}
		if ci >= lo[a]+n {
			ci = lo[a] + n - 1
		}
		c.cell[a] = ci
		d := r.Dir[a]
		switch {
		case d > 0:
			c.step[a] = 1
			c.tMax[a] = (float64(ci+1)*size - r.Origin[a]) * r.inv[a]
			c.tDelta[a] = size * r.inv[a]
		case d < 0:
			c.step[a] = -1
			c.tMax[a] = (float64(ci)*size - r.Origin[a]) * r.inv[a]
			c.tDelta[a] = -size * r.inv[a]
		default:
			c.step[a] = 0
			c.tMax[a] = math.Inf(1)
			c.tDelta[a] = math.Inf(1)
		}
	}
}

// next returns the current cell and its [enter, exit) span, then advances.
func (c *cursor) next() (cell [3]int64, enter, exit float64, ok bool) {
	for !c.done {
		a := 0
		if c.tMax[1] < c.tMax[a] {
			a = 1
		}
		if c.tMax[2] < c.tMax[a] {
			a = 2
		}
		cell, enter = c.cell, c.enter
		exit = math.Min(c.tMax[a], c.end)

		if c.tMax[a] >= c.end {
			c.done = true
		} else {
			c.enter = c.tMax[a]
			c.cell[a] += c.step[a]
			c.tMax[a] += c.tDelta[a]
			if c.cell[a] < c.lo[a] || c.cell[a] >= c.lo[a]+c.n {
				c.done = true
			}
		}
		if exit > enter {
			return cell, enter, exit, true
		}
	}
	return cell, 0, 0, false
}
