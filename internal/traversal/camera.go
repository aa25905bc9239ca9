package traversal

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Camera is a yaw/pitch fly camera in world units.
type Camera struct {
	Position mgl64.Vec3
	Yaw      float64 // degrees, 0 looks down +X
	Pitch    float64 // degrees, clamped to ±89
	FOV      float64 // vertical, degrees
	Near     float64
	Far      float64
}

// NewCamera returns a camera at pos looking down +X.
func NewCamera(pos mgl64.Vec3) *Camera {
	return &Camera{
		Position: pos,
		FOV:      70,
		Near:     0.1,
		Far:      100000,
	}
}

// Front returns the unit view direction.
func (c *Camera) Front() mgl64.Vec3 {
	y := mgl64.DegToRad(c.Yaw)
	p := mgl64.DegToRad(c.Pitch)
	return mgl64.Vec3{
		math.Cos(y) * math.Cos(p),
		math.Sin(p),
		math.Sin(y) * math.Cos(p),
	}.Normalize()
}

// Rotate adds yaw and pitch offsets in degrees.
func (c *Camera) Rotate(dyaw, dpitch float64) {
	c.Yaw += dyaw
	c.Pitch += dpitch
	if c.Pitch > 89.0 {
		c.Pitch = 89.0
	}
	if c.Pitch < -89.0 {
		c.Pitch = -89.0
	}
}

func (c *Camera) basis() (front, right, up mgl64.Vec3) {
	front = c.Front()
	right = front.Cross(mgl64.Vec3{0, 1, 0}).Normalize()
	up = right.Cross(front)
	return front, right, up
}

// View returns the world to view matrix.
func (c *Camera) View() mgl64.Mat4 {
	return mgl64.LookAtV(c.Position, c.Position.Add(c.Front()), mgl64.Vec3{0, 1, 0})
}

// Projection returns the perspective matrix for aspect (width/height).
func (c *Camera) Projection(aspect float64) mgl64.Mat4 {
	return mgl64.Perspective(mgl64.DegToRad(c.FOV), aspect, c.Near, c.Far)
}

// ViewProjection returns Projection * View.
func (c *Camera) ViewProjection(aspect float64) mgl64.Mat4 {
	return c.Projection(aspect).Mul4(c.View())
}

// Ray returns the primary ray through pixel coordinate (px, py) of a
// width x height image; (0,0) is the top left corner.
func (c *Camera) Ray(px, py float64, width, height int) Ray {
	front, right, up := c.basis()
	aspect := float64(width) / float64(height)
	tanHalf := math.Tan(mgl64.DegToRad(c.FOV) * 0.5)
	nx := (2*px/float64(width) - 1) * tanHalf * aspect
	ny := (1 - 2*py/float64(height)) * tanHalf
	dir := front.Add(right.Mul(nx)).Add(up.Mul(ny))
	return NewRay(c.Position, dir)
}
