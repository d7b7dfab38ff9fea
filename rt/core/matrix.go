package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Matrix helpers. All matrices are column-major mgl32.Mat4, so a literal lists
// column 0 first.

// Perspective builds a projection that maps view depth nearZ to 0 and farZ to 1
// after the perspective divide. View space looks down +Z.
func Perspective(fovY, aspect, nearZ, farZ float32) mgl32.Mat4 {
	yScale := 1 / float32(math.Tan(float64(fovY)*0.5))
	xScale := yScale / aspect
	zScale := farZ / (farZ - nearZ)

	return mgl32.Mat4{
		xScale, 0, 0, 0,
		0, yScale, 0, 0,
		0, 0, zScale, 1,
		0, 0, -nearZ * zScale, 0,
	}
}

func Translation(x, y, z float32) mgl32.Mat4 {
	m := mgl32.Ident4()
	m.SetCol(3, mgl32.Vec4{x, y, z, 1})
	return m
}

// Rotation rotates by radians around axis (Rodrigues). The axis must be
// non-zero; Rotation panics otherwise. Use ValidateAxis at setup time.
func Rotation(radians float32, axis mgl32.Vec3) mgl32.Mat4 {
	if err := ValidateAxis(axis); err != nil {
		panic(err.Error())
	}
	v := axis.Normalize()
	c := float32(math.Cos(float64(radians)))
	s := float32(math.Sin(float64(radians)))
	cp := 1 - c

	return mgl32.Mat4{
		c + cp*v[0]*v[0],
		cp*v[0]*v[1] + v[2]*s,
		cp*v[0]*v[2] - v[1]*s,
		0,

		cp*v[0]*v[1] - v[2]*s,
		c + cp*v[1]*v[1],
		cp*v[1]*v[2] + v[0]*s,
		0,

		cp*v[0]*v[2] + v[1]*s,
		cp*v[1]*v[2] - v[0]*s,
		c + cp*v[2]*v[2],
		0,

		0, 0, 0, 1,
	}
}

// ValidateAxis reports a zero-length rotation axis.
func ValidateAxis(axis mgl32.Vec3) error {
	if axis.Len() == 0 {
		return InvariantViolation("rotation axis %v has zero length", axis)
	}
	return nil
}

func Scale(x, y, z float32) mgl32.Mat4 {
	return mgl32.Diag4(mgl32.Vec4{x, y, z, 1})
}

// LookAt builds a right-handed view matrix: eye goes to the origin and the
// direction towards target becomes -Z.
func LookAt(eye, target, up mgl32.Vec3) mgl32.Mat4 {
	f := target.Sub(eye).Normalize()
	s := f.Cross(up.Normalize()).Normalize()
	u := s.Cross(f)

	basis := mgl32.Mat4{
		s[0], u[0], -f[0], 0,
		s[1], u[1], -f[1], 0,
		s[2], u[2], -f[2], 0,
		0, 0, 0, 1,
	}
	return basis.Mul4(Translation(-eye[0], -eye[1], -eye[2]))
}
