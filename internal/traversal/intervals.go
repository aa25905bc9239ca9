package traversal

// Interval is the part of a ray owned by one shell.
type Interval struct {
	Shell  int
	T0, T1 float64
}

// ShellIntervals splits r over nested boxes, finest first. Shell i owns the
// part of r inside boxes[i] but outside boxes[i-1], clipped to [tMin, tMax];
// that is zero, one or two pieces. The result is ordered by entry distance
// and no two intervals overlap.
func ShellIntervals(r Ray, boxes []Box, tMin, tMax float64) []Interval {
	return appendShellIntervals(nil, &r, boxes, tMin, tMax)
}

func appendShellIntervals(dst []Interval, r *Ray, boxes []Box, tMin, tMax float64) []Interval {
	start := len(dst)
	prevOK := false
	var pc, pd float64
	for i, b := range boxes {
		a, bb, _, ok := r.Intersect(b)
		if ok {
			a = clampF(a, tMin, tMax)
			bb = clampF(bb, tMin, tMax)
			ok = bb > a
		}
		if !ok {
			// a box missing the ray hides nothing for the next shell
			prevOK = false
			continue
		}
		if !prevOK || pd <= a || pc >= bb {
			dst = append(dst, Interval{Shell: i, T0: a, T1: bb})
		} else {
			if pc > a {
				dst = append(dst, Interval{Shell: i, T0: a, T1: pc})
			}
			if pd < bb {
				dst = append(dst, Interval{Shell: i, T0: pd, T1: bb})
			}
		}
		pc, pd, prevOK = a, bb, true
	}
	// at most two pieces per shell, insertion sort is enough
	out := dst[start:]
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].T0 < out[j-1].T0; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return dst
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
