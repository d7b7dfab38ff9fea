// Package units holds the simulation and draw units plugged into the frame
// orchestrator.
package units

import (
	"github.com/gekko3d/sand/rt/core"
	"github.com/gekko3d/sand/rt/gpu"

	"github.com/go-gl/mathgl/mgl32"
)

func lookupProgram(lib gpu.ProgramLibrary, name string, stage gpu.Stage) (gpu.Program, error) {
	p, ok := lib.Program(name)
	if !ok {
		return gpu.Program{}, core.SetupFailure("program %q not found", name)
	}
	if p.Stage != stage {
		return gpu.Program{}, core.SetupFailure("program %q has the wrong stage", name)
	}
	return p, nil
}

// transformSlots allocates one mat4 uniform per ring slot.
func transformSlots(dev gpu.Device, label string, depth int) (gpu.Slots[*gpu.View[mgl32.Mat4]], error) {
	return gpu.NewSlots(depth,
		func(int) (*gpu.View[mgl32.Mat4], error) {
			return gpu.AllocView(dev, label, gpu.BufferUsageUniform, core.TransformLayout, 1)
		},
		func(v *gpu.View[mgl32.Mat4]) { v.Release() },
	)
}

func releaseTransforms(s gpu.Slots[*gpu.View[mgl32.Mat4]]) {
	s.Each(func(_ int, v *gpu.View[mgl32.Mat4]) { v.Release() })
}

func writeTransform(s gpu.Slots[*gpu.View[mgl32.Mat4]], slot int, m mgl32.Mat4) error {
	v := s.At(slot)
	if err := v.Set(0, m); err != nil {
		return err
	}
	return v.Flush()
}
