package units

import (
	"github.com/gekko3d/sand/rt/core"
	"github.com/gekko3d/sand/rt/frame"
	"github.com/gekko3d/sand/rt/gpu"
	"github.com/gekko3d/sand/rt/shaders"

	"github.com/go-gl/mathgl/mgl32"
)

const quadVertexCount = 6

// QuadConfig configures a flat quad in the xz plane.
type QuadConfig struct {
	Name  string
	Color mgl32.Vec4
	// Model is applied before view and projection. The zero matrix selects
	// DefaultQuadModel.
	Model mgl32.Mat4
}

// DefaultQuadModel squashes the unit quad to the particle footprint.
func DefaultQuadModel() mgl32.Mat4 {
	return core.Scale(0.5, 1, 0.5)
}

func DefaultQuadConfig() QuadConfig {
	return QuadConfig{
		Name:  "Quad",
		Color: mgl32.Vec4{0.5, 0.5, 0.5, 1},
		Model: DefaultQuadModel(),
	}
}

// Quad draws two triangles with a flat color. Its vertices are uploaded once.
type Quad struct {
	cfg QuadConfig

	pipeline   gpu.RenderPipeline
	vertices   *gpu.View[core.Vertex]
	transforms gpu.Slots[*gpu.View[mgl32.Mat4]]
}

var _ frame.DrawUnit = (*Quad)(nil)

func NewQuad(cfg QuadConfig) *Quad {
	if cfg.Name == "" {
		cfg.Name = "Quad"
	}
	if cfg.Model == (mgl32.Mat4{}) {
		cfg.Model = DefaultQuadModel()
	}
	return &Quad{cfg: cfg}
}

func (q *Quad) Name() string                   { return q.cfg.Name }
func (q *Quad) Capabilities() frame.Capability { return frame.Draw }
func (q *Quad) Model() mgl32.Mat4              { return q.cfg.Model }
func (q *Quad) SetModel(m mgl32.Mat4)          { q.cfg.Model = m }

func quadVertices(color mgl32.Vec4) [quadVertexCount]core.Vertex {
	corners := [quadVertexCount]mgl32.Vec4{
		{-0.5, 0, -0.5, 1},
		{0.5, 0, -0.5, 1},
		{-0.5, 0, 0.5, 1},
		{0.5, 0, -0.5, 1},
		{-0.5, 0, 0.5, 1},
		{0.5, 0, 0.5, 1},
	}
	var out [quadVertexCount]core.Vertex
	for i, c := range corners {
		out[i] = core.Vertex{Position: c, Color: color}
	}
	return out
}

func (q *Quad) Setup(o *frame.Orchestrator) (err error) {
	lib := o.Library()
	vs, err := lookupProgram(lib, shaders.QuadVertex, gpu.StageVertex)
	if err != nil {
		return err
	}
	fs, err := lookupProgram(lib, shaders.QuadFragment, gpu.StageFragment)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			q.Release()
		}
	}()

	dev := o.Device()
	q.pipeline, err = dev.NewRenderPipeline(gpu.RenderPipelineDesc{
		Label:     "quadPipeLine",
		Vertex:    vs,
		Fragment:  fs,
		Primitive: gpu.PrimitiveTriangle,
	})
	if err != nil {
		return core.SetupFailure("quad pipeline: %v", err)
	}

	if q.vertices, err = gpu.AllocView(dev, "quadVertices", gpu.BufferUsageStorage, core.VertexLayout, quadVertexCount); err != nil {
		return err
	}
	verts := quadVertices(q.cfg.Color)
	q.vertices.Fill(func(i int) core.Vertex { return verts[i] })
	if err = q.vertices.Flush(); err != nil {
		return core.SetupFailure("upload quad vertices: %v", err)
	}

	if q.transforms, err = transformSlots(dev, "quadTransform", o.Depth()); err != nil {
		return err
	}
	return nil
}

func (q *Quad) Transform(slot int) (mgl32.Mat4, error) {
	return q.transforms.At(slot).At(0)
}

func (q *Quad) Update(o *frame.Orchestrator) {
	m := o.Projection().Mul4(o.View()).Mul4(q.cfg.Model)
	if err := writeTransform(q.transforms, o.Slot(), m); err != nil {
		o.Logger().Errorf("%s transform: %v", q.cfg.Name, err)
	}
}

func (q *Quad) RenderPass(o *frame.Orchestrator, pass gpu.RenderPass) {
	slot := o.Slot()
	pass.PushDebugGroup(q.cfg.Name)
	pass.SetPipeline(q.pipeline)
	pass.SetBuffer(0, q.vertices.Buffer())
	pass.SetBuffer(1, q.transforms.At(slot).Buffer())
	pass.Draw(gpu.PrimitiveTriangle, 0, quadVertexCount)
	pass.PopDebugGroup()
}

func (q *Quad) Release() {
	if q.pipeline != nil {
		q.pipeline.Release()
		q.pipeline = nil
	}
	if q.vertices != nil {
		q.vertices.Release()
		q.vertices = nil
	}
	releaseTransforms(q.transforms)
	q.transforms = gpu.Slots[*gpu.View[mgl32.Mat4]]{}
}
