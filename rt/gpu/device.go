// Package gpu is the narrow GPU surface the frame orchestrator and its units
// are written against. The WebGPU backend and the recording backend in
// gputest both implement it.
package gpu

type BufferUsage uint32

const (
	BufferUsageUniform BufferUsage = 1 << iota
	BufferUsageStorage
	BufferUsageVertex
)

type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// Buffer is device memory owned by exactly one unit.
type Buffer interface {
	Label() string
	Size() uint64
	// Write copies data to the device at offset. The copy is ordered before
	// any command buffer committed afterwards.
	Write(offset uint64, data []byte) error
	Release()
}

type Stage int

const (
	StageCompute Stage = iota
	StageVertex
	StageFragment
)

// Program is a compiled-on-demand shader entry point looked up by name.
type Program struct {
	Name       string
	Stage      Stage
	Source     string
	EntryPoint string
	// WorkgroupSize is the compute kernel's declared workgroup size; Dispatch
	// converts thread grids into workgroup counts with it.
	WorkgroupSize Grid
}

type ProgramLibrary interface {
	Program(name string) (Program, bool)
}

type Primitive int

const (
	PrimitivePoint Primitive = iota
	PrimitiveLine
	PrimitiveTriangle
)

func (p Primitive) String() string {
	switch p {
	case PrimitivePoint:
		return "point"
	case PrimitiveLine:
		return "line"
	case PrimitiveTriangle:
		return "triangle"
	}
	return "unknown"
}

type RenderPipelineDesc struct {
	Label     string
	Vertex    Program
	Fragment  Program
	Primitive Primitive
	// AdditiveBlend enables src-alpha/one blending. Fragments with zero alpha
	// leave the target untouched.
	AdditiveBlend bool
}

type ComputePipeline interface {
	Label() string
	Release()
}

type RenderPipeline interface {
	Label() string
	Release()
}

// Grid is a 3-D count of threads or workgroups.
type Grid struct {
	X, Y, Z uint32
}

// Threads returns the total number of work items in the grid.
func (g Grid) Threads() uint64 {
	return uint64(g.X) * uint64(g.Y) * uint64(g.Z)
}

// Workgroups rounds a thread grid up to whole workgroups of size wg.
func (g Grid) Workgroups(wg Grid) Grid {
	div := func(n, d uint32) uint32 {
		if d == 0 {
			d = 1
		}
		return (n + d - 1) / d
	}
	return Grid{X: div(g.X, wg.X), Y: div(g.Y, wg.Y), Z: div(g.Z, wg.Z)}
}

type Color struct {
	R, G, B, A float64
}

// Drawable is the host-provided target of one frame's render pass.
type Drawable interface {
	Width() int
	Height() int
}

// Surface is the host surface provider: the orchestrator only asks for the
// current drawable and presents it.
type Surface interface {
	Size() (width, height int)
	CurrentDrawable() (Drawable, error)
	Present(d Drawable)
}

type ComputePass interface {
	SetPipeline(p ComputePipeline)
	SetBuffer(index uint32, b Buffer)
	// Dispatch runs one kernel invocation per thread in the grid.
	Dispatch(threads Grid)
	End() error
}

type RenderPass interface {
	PushDebugGroup(label string)
	PopDebugGroup()
	SetPipeline(p RenderPipeline)
	SetBuffer(index uint32, b Buffer)
	Draw(p Primitive, vertexStart, vertexCount uint32)
	End() error
}

// CommandBuffer records one frame's work. Commit submits it to the queue; the
// CPU never waits for completion.
type CommandBuffer interface {
	BeginComputePass(label string) ComputePass
	BeginRenderPass(target Drawable, clear Color) RenderPass
	Commit() error
}

type Device interface {
	NewBuffer(desc BufferDesc) (Buffer, error)
	NewComputePipeline(label string, kernel Program) (ComputePipeline, error)
	NewRenderPipeline(desc RenderPipelineDesc) (RenderPipeline, error)
	NewCommandBuffer(label string) (CommandBuffer, error)
}
