package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCameraDefaults(t *testing.T) {
	c := NewCamera()
	require.NoError(t, c.Validate())
	assert.InDelta(t, 1, c.Forward().Len(), 1e-6)
}

func TestCameraTargetProjectsToCenter(t *testing.T) {
	c := NewCamera()
	vp := c.ProjectionMatrix(16.0 / 9.0).Mul4(c.ViewMatrix())
	p := project(vp, c.Target)
	assert.InDelta(t, 0, p.X(), 1e-5)
	assert.InDelta(t, 0, p.Y(), 1e-5)
	assert.Greater(t, p.Z(), float32(0))
	assert.Less(t, p.Z(), float32(1))

	// a point behind the eye ends up outside the depth range
	behind := c.Eye.Sub(c.Forward())
	clip := vp.Mul4x1(behind.Vec4(1))
	assert.Less(t, clip.W(), float32(0))
}

func TestCameraViewLooksDownPositiveZ(t *testing.T) {
	c := NewCamera()
	target := c.ViewMatrix().Mul4x1(c.Target.Vec4(1))
	assert.Greater(t, target.Z(), float32(0))
}

func TestCameraProjectionAspectFallback(t *testing.T) {
	c := NewCamera()
	assert.Equal(t, c.ProjectionMatrix(1), c.ProjectionMatrix(0))
	assert.Equal(t, c.ProjectionMatrix(1), c.ProjectionMatrix(-3))
}

func TestCameraValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Camera)
	}{
		{"coincident", func(c *Camera) { c.Target = c.Eye }},
		{"zero up", func(c *Camera) { c.Up = mgl32.Vec3{} }},
		{"parallel up", func(c *Camera) { c.Up = c.Target.Sub(c.Eye) }},
		{"near zero", func(c *Camera) { c.Lens.Near = 0 }},
		{"far before near", func(c *Camera) { c.Lens.Far = c.Lens.Near / 2 }},
		{"fov zero", func(c *Camera) { c.Lens.FovY = 0 }},
		{"fov too wide", func(c *Camera) { c.Lens.FovY = 4 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCamera()
			tc.modify(c)
			assert.ErrorIs(t, c.Validate(), ErrInvariantViolation)
		})
	}
}
