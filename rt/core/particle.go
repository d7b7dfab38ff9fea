package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Layout describes how one element of type T is stored in GPU memory.
// Stride includes the WGSL alignment padding.
type Layout[T any] struct {
	Stride int
	Put    func(dst []byte, v T)
	Get    func(src []byte) T
}

// ParticleRecord matches the WGSL struct in particle.wgsl:
//
//	struct Particle { position: vec4<f32>, acc: vec3<f32> } // 32 bytes
type ParticleRecord struct {
	Position mgl32.Vec4
	Acc      mgl32.Vec3
}

// ParticleOutput is written by the compute kernel only; the CPU allocates it.
//
//	struct ParticleOut { position: vec4<f32>, color: vec4<f32> } // 32 bytes
type ParticleOutput struct {
	Position mgl32.Vec4
	Color    mgl32.Vec4
}

// SimulationParameter is uploaded once per frame before the compute dispatch.
//
//	struct Params { active: f32, elapsed: f32, dt: f32, frame: f32 } // 16 bytes
type SimulationParameter struct {
	Active  float32
	Elapsed float32
	Dt      float32
	Frame   float32
}

// Vertex is the quad vertex format.
type Vertex struct {
	Position mgl32.Vec4
	Color    mgl32.Vec4
}

func putF32(dst []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(v))
}

func getF32(src []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
}

func putVec4(dst []byte, off int, v mgl32.Vec4) {
	for i, c := range v {
		putF32(dst, off+i*4, c)
	}
}

func getVec4(src []byte, off int) mgl32.Vec4 {
	return mgl32.Vec4{getF32(src, off), getF32(src, off+4), getF32(src, off+8), getF32(src, off+12)}
}

var ParticleLayout = Layout[ParticleRecord]{
	Stride: 32,
	Put: func(dst []byte, p ParticleRecord) {
		putVec4(dst, 0, p.Position)
		putVec4(dst, 16, p.Acc.Vec4(0))
	},
	Get: func(src []byte) ParticleRecord {
		return ParticleRecord{
			Position: getVec4(src, 0),
			Acc:      getVec4(src, 16).Vec3(),
		}
	},
}

var ParticleOutputLayout = Layout[ParticleOutput]{
	Stride: 32,
	Put: func(dst []byte, p ParticleOutput) {
		putVec4(dst, 0, p.Position)
		putVec4(dst, 16, p.Color)
	},
	Get: func(src []byte) ParticleOutput {
		return ParticleOutput{Position: getVec4(src, 0), Color: getVec4(src, 16)}
	},
}

// LaminateLayout stores one height per particle slot.
var LaminateLayout = Layout[float32]{
	Stride: 4,
	Put:    func(dst []byte, h float32) { putF32(dst, 0, h) },
	Get:    func(src []byte) float32 { return getF32(src, 0) },
}

var ParameterLayout = Layout[SimulationParameter]{
	Stride: 16,
	Put: func(dst []byte, p SimulationParameter) {
		putF32(dst, 0, p.Active)
		putF32(dst, 4, p.Elapsed)
		putF32(dst, 8, p.Dt)
		putF32(dst, 12, p.Frame)
	},
	Get: func(src []byte) SimulationParameter {
		return SimulationParameter{
			Active:  getF32(src, 0),
			Elapsed: getF32(src, 4),
			Dt:      getF32(src, 8),
			Frame:   getF32(src, 12),
		}
	},
}

var VertexLayout = Layout[Vertex]{
	Stride: 32,
	Put: func(dst []byte, v Vertex) {
		putVec4(dst, 0, v.Position)
		putVec4(dst, 16, v.Color)
	},
	Get: func(src []byte) Vertex {
		return Vertex{Position: getVec4(src, 0), Color: getVec4(src, 16)}
	},
}

// TransformLayout stores a column-major mat4x4<f32>.
var TransformLayout = Layout[mgl32.Mat4]{
	Stride: 64,
	Put: func(dst []byte, m mgl32.Mat4) {
		for i, v := range m {
			putF32(dst, i*4, v)
		}
	},
	Get: func(src []byte) mgl32.Mat4 {
		var m mgl32.Mat4
		for i := range m {
			m[i] = getF32(src, i*4)
		}
		return m
	},
}
