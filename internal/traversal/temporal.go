package traversal

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"clipvox/internal/profiling"
)

// Accumulator blends each frame with the reprojected previous result. Hits
// are reprojected through the previous view-projection; sky pixels and
// pixels whose history falls off screen take the current colour.
type Accumulator struct {
	Alpha float32

	width, height int
	history       []mgl32.Vec3
	next          []mgl32.Vec3
	prevViewProj  mgl64.Mat4
	valid         bool
}

// NewAccumulator returns an accumulator weighting the current frame by alpha.
func NewAccumulator(alpha float32) *Accumulator {
	return &Accumulator{Alpha: alpha}
}

// Reset drops the history, e.g. after a teleport or resize.
func (a *Accumulator) Reset() {
	a.valid = false
}

// Resolve blends f with the history, writing the result to f.Image.
func (a *Accumulator) Resolve(f *Frame) {
	defer profiling.Track("traversal.Resolve")()

	n := f.Width * f.Height
	if a.width != f.Width || a.height != f.Height {
		a.width, a.height = f.Width, f.Height
		a.history = make([]mgl32.Vec3, n)
		a.next = make([]mgl32.Vec3, n)
		a.valid = false
	}

	alpha := clamp01(a.Alpha)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := y*f.Width + x
			cur := f.Color[i]
			out := cur
			if a.valid && alpha < 1 {
				if prev, ok := a.sample(f.Hits[i]); ok {
					out = lerp3(prev, cur, alpha)
				}
			}
			a.next[i] = out
			setPixel(f.Image, x, y, out)
		}
	}
	a.history, a.next = a.next, a.history
	a.prevViewProj = f.ViewProj
	a.valid = true
}

// sample returns the history colour at the previous screen position of hit.
func (a *Accumulator) sample(hit mgl32.Vec4) (mgl32.Vec3, bool) {
	if hit[3] == 0 {
		return mgl32.Vec3{}, false
	}
	clip := a.prevViewProj.Mul4x1(mgl64.Vec4{float64(hit[0]), float64(hit[1]), float64(hit[2]), 1})
	if clip[3] <= 0 {
		return mgl32.Vec3{}, false
	}
	nx, ny := clip[0]/clip[3], clip[1]/clip[3]
	px := int((nx*0.5 + 0.5) * float64(a.width))
	py := int((0.5 - ny*0.5) * float64(a.height))
	if px < 0 || py < 0 || px >= a.width || py >= a.height {
		return mgl32.Vec3{}, false
	}
	return a.history[py*a.width+px], true
}
