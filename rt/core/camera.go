package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type Lens struct {
	FovY float32 // radians
	Near float32
	Far  float32
}

// Camera is set up once and read every frame to rebuild the view matrix.
type Camera struct {
	Eye    mgl32.Vec3
	Target mgl32.Vec3
	Up     mgl32.Vec3
	Lens   Lens
}

func NewCamera() *Camera {
	return &Camera{
		Eye:    mgl32.Vec3{0, -2, 2},
		Target: mgl32.Vec3{0, 0, 0},
		Up:     mgl32.Vec3{0, 1, 0},
		Lens: Lens{
			FovY: mgl32.DegToRad(65),
			Near: 0.1,
			Far:  100,
		},
	}
}

func (c *Camera) Forward() mgl32.Vec3 {
	return c.Target.Sub(c.Eye).Normalize()
}

// Validate rejects camera setups that produce a degenerate basis or a
// projection without a usable depth range.
func (c *Camera) Validate() error {
	dir := c.Target.Sub(c.Eye)
	if dir.Len() == 0 {
		return InvariantViolation("camera eye and target coincide at %v", c.Eye)
	}
	if c.Up.Len() == 0 {
		return InvariantViolation("camera up vector has zero length")
	}
	if dir.Normalize().Cross(c.Up.Normalize()).Len() < 1e-6 {
		return InvariantViolation("camera up %v is parallel to the view direction", c.Up)
	}
	if !(c.Lens.Far > c.Lens.Near && c.Lens.Near > 0) {
		return InvariantViolation("lens requires far > near > 0, got near=%v far=%v", c.Lens.Near, c.Lens.Far)
	}
	if c.Lens.FovY <= 0 || c.Lens.FovY >= math.Pi {
		return InvariantViolation("lens fovY %v outside (0, pi)", c.Lens.FovY)
	}
	return nil
}

// ViewMatrix flips LookAt's right-handed output so the visible half-space is
// +Z, which is what Perspective expects.
func (c *Camera) ViewMatrix() mgl32.Mat4 {
	return Scale(1, 1, -1).Mul4(LookAt(c.Eye, c.Target, c.Up))
}

func (c *Camera) ProjectionMatrix(aspect float32) mgl32.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	return Perspective(c.Lens.FovY, aspect, c.Lens.Near, c.Lens.Far)
}
