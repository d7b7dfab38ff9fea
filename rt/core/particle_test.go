package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestLayoutsRoundTrip(t *testing.T) {
	rec := ParticleRecord{Position: mgl32.Vec4{1, -2, 3, 1}, Acc: mgl32.Vec3{0, 0.0163, 0}}
	buf := make([]byte, ParticleLayout.Stride)
	ParticleLayout.Put(buf, rec)
	assert.Equal(t, rec, ParticleLayout.Get(buf))

	m := Rotation(0.3, mgl32.Vec3{0, 1, 0}).Mul4(Translation(1, 2, 3))
	mb := make([]byte, TransformLayout.Stride)
	TransformLayout.Put(mb, m)
	assert.Equal(t, m, TransformLayout.Get(mb))
}

func TestLayoutStridesMatchShaders(t *testing.T) {
	assert.Equal(t, 32, ParticleLayout.Stride)
	assert.Equal(t, 32, ParticleOutputLayout.Stride)
	assert.Equal(t, 4, LaminateLayout.Stride)
	assert.Equal(t, 16, ParameterLayout.Stride)
	assert.Equal(t, 32, VertexLayout.Stride)
	assert.Equal(t, 64, TransformLayout.Stride)
}

func TestParticleLayoutPadsAcc(t *testing.T) {
	buf := make([]byte, ParticleLayout.Stride)
	for i := range buf {
		buf[i] = 0xff
	}
	ParticleLayout.Put(buf, ParticleRecord{Acc: mgl32.Vec3{1, 2, 3}})
	assert.Equal(t, []byte{0, 0, 0, 0}, buf[28:32], "vec3 padding is zeroed")
}

func TestTransformLayoutIsColumnMajor(t *testing.T) {
	buf := make([]byte, TransformLayout.Stride)
	TransformLayout.Put(buf, Translation(7, 0, 0))
	// element 12 is column 3, row 0
	assert.Equal(t, float32(7), getF32(buf, 12*4))
}
