package traversal

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Ray is a half line in finest-voxel world units. Dir is unit length.
type Ray struct {
	Origin mgl64.Vec3
	Dir    mgl64.Vec3
	inv    mgl64.Vec3
}

// NewRay builds a ray, normalizing dir.
func NewRay(origin, dir mgl64.Vec3) Ray {
	if l := dir.Len(); l > 0 {
		dir = dir.Mul(1 / l)
	}
	r := Ray{Origin: origin, Dir: dir}
	for a := 0; a < 3; a++ {
		if dir[a] != 0 {
			r.inv[a] = 1 / dir[a]
		} else {
			r.inv[a] = math.Inf(1)
		}
	}
	return r
}

// At returns the point at distance t along r.
func (r *Ray) At(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// Box is an axis aligned box; Max is exclusive for voxel purposes.
type Box struct {
	Min, Max mgl64.Vec3
}

// Contains reports whether p lies inside b.
func (b Box) Contains(p mgl64.Vec3) bool {
	return p[0] >= b.Min[0] && p[0] < b.Max[0] &&
		p[1] >= b.Min[1] && p[1] < b.Max[1] &&
		p[2] >= b.Min[2] && p[2] < b.Max[2]
}

// Intersect clips r against b with the slab test. axis is the axis whose
// face r enters through, or -1 when the origin is inside b.
func (r *Ray) Intersect(b Box) (t0, t1 float64, axis int, ok bool) {
	t0, t1 = math.Inf(-1), math.Inf(1)
	axis = -1
	for a := 0; a < 3; a++ {
		if r.Dir[a] == 0 {
			if r.Origin[a] < b.Min[a] || r.Origin[a] >= b.Max[a] {
				return 0, 0, -1, false
			}
			continue
		}
		near := (b.Min[a] - r.Origin[a]) * r.inv[a]
		far := (b.Max[a] - r.Origin[a]) * r.inv[a]
		if near > far {
			near, far = far, near
		}
		if near > t0 {
			t0 = near
			axis = a
		}
		if far < t1 {
			t1 = far
		}
	}
	if t0 > t1 || t1 < 0 {
		return 0, 0, -1, false
	}
	if t0 < 0 {
		axis = -1
	}
	return t0, t1, axis, true
}
