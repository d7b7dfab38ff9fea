package frame

import (
	"github.com/gekko3d/sand/rt/gpu"
)

// Capability tags what a unit can take part in.
type Capability uint8

const (
	Compute Capability = 1 << iota
	Draw
)

func (c Capability) Has(flag Capability) bool { return c&flag != 0 }

func (c Capability) String() string {
	switch c {
	case Compute:
		return "compute"
	case Draw:
		return "draw"
	case Compute | Draw:
		return "compute+draw"
	}
	return "none"
}

// Unit is the pluggable part of a frame. Every registered unit gets one
// Update call per frame, after all compute passes were recorded, to write its
// per-slot uniforms.
type Unit interface {
	Name() string
	Capabilities() Capability
	// Setup allocates the unit's pipelines and buffers. A unit whose setup
	// fails is never registered.
	Setup(o *Orchestrator) error
	Update(o *Orchestrator)
	Release()
}

// ComputeUnit records its compute dispatch into the frame's command buffer.
type ComputeUnit interface {
	Unit
	ComputePass(o *Orchestrator, cmd gpu.CommandBuffer)
}

// DrawUnit encodes its draw calls into the frame's single render pass.
type DrawUnit interface {
	Unit
	RenderPass(o *Orchestrator, pass gpu.RenderPass)
}
