package shaders

import (
	_ "embed"
	"sort"

	"github.com/gekko3d/sand/rt/gpu"
)

//go:embed particle_compute.wgsl
var ParticleComputeWGSL string

//go:embed particle_render.wgsl
var ParticleRenderWGSL string

//go:embed quad.wgsl
var QuadWGSL string

// Program names looked up by the units.
const (
	ParticleCompute  = "particleCompute"
	ParticleVertex   = "particleVertex"
	ParticleFragment = "particleFragment"
	QuadVertex       = "quadVertex"
	QuadFragment     = "quadFragment"
)

// Library is the name-indexed program provider.
type Library struct {
	programs map[string]gpu.Program
}

var _ gpu.ProgramLibrary = (*Library)(nil)

// NewLibrary returns a library holding the embedded programs.
func NewLibrary() *Library {
	l := &Library{programs: make(map[string]gpu.Program)}
	l.Register(gpu.Program{
		Name:          ParticleCompute,
		Stage:         gpu.StageCompute,
		Source:        ParticleComputeWGSL,
		EntryPoint:    "cs_main",
		WorkgroupSize: gpu.Grid{X: 8, Y: 8, Z: 1},
	})
	l.Register(gpu.Program{Name: ParticleVertex, Stage: gpu.StageVertex, Source: ParticleRenderWGSL, EntryPoint: "vs_main"})
	l.Register(gpu.Program{Name: ParticleFragment, Stage: gpu.StageFragment, Source: ParticleRenderWGSL, EntryPoint: "fs_main"})
	l.Register(gpu.Program{Name: QuadVertex, Stage: gpu.StageVertex, Source: QuadWGSL, EntryPoint: "vs_main"})
	l.Register(gpu.Program{Name: QuadFragment, Stage: gpu.StageFragment, Source: QuadWGSL, EntryPoint: "fs_main"})
	return l
}

// Register adds or replaces a program.
func (l *Library) Register(p gpu.Program) {
	l.programs[p.Name] = p
}

func (l *Library) Program(name string) (gpu.Program, bool) {
	p, ok := l.programs[name]
	return p, ok
}

func (l *Library) Names() []string {
	names := make([]string, 0, len(l.programs))
	for n := range l.programs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
