package traversal

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	skyZenith  = mgl32.Vec3{0.32, 0.52, 0.92}
	skyHorizon = mgl32.Vec3{0.74, 0.85, 1.0}
	skyGround  = mgl32.Vec3{0.36, 0.38, 0.42}
)

// SkyColor is the colour of a ray that hits nothing.
func SkyColor(dir mgl64.Vec3) mgl32.Vec3 {
	y := float32(dir[1])
	if y < 0 {
		return lerp3(skyHorizon, skyGround, clamp01(-y*4))
	}
	return lerp3(skyHorizon, skyZenith, clamp01(y))
}

func lerp3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
