package units

import (
	"math"
	"math/rand"

	"github.com/gekko3d/sand/rt/core"
	"github.com/gekko3d/sand/rt/frame"
	"github.com/gekko3d/sand/rt/gpu"
	"github.com/gekko3d/sand/rt/shaders"

	"github.com/go-gl/mathgl/mgl32"
)

// ParticleConfig describes the falling sand population.
type ParticleConfig struct {
	// Population must be a perfect square; the compute grid is side x side.
	Population int     `yaml:"population"`
	Gravity    float32 `yaml:"gravity"`
	Timestep   float32 `yaml:"timestep"`
	Seed       int64   `yaml:"seed"`
	// EmitPerFrame is how many more particles become active each frame.
	// Zero activates the whole population on the first frame.
	EmitPerFrame   int     `yaml:"emit_per_frame"`
	VerticalStep   float32 `yaml:"vertical_step"`
	VerticalOffset float32 `yaml:"vertical_offset"`
	Jitter         float32 `yaml:"jitter"`
	// Spread is the width of the column/row footprint in world units.
	Spread float32 `yaml:"spread"`
}

func DefaultParticleConfig() ParticleConfig {
	return ParticleConfig{
		Population:     512 * 512,
		Gravity:        9.8,
		Timestep:       1.0 / 60.0,
		Seed:           1,
		EmitPerFrame:   2048,
		VerticalStep:   0.003,
		VerticalOffset: 0.1,
		Jitter:         0.003,
		Spread:         0.5,
	}
}

// Side returns the square root of the population, or an InvariantViolation
// when the population is not a positive perfect square.
func (c ParticleConfig) Side() (int, error) {
	if c.Population <= 0 {
		return 0, core.InvariantViolation("particle population must be positive, got %d", c.Population)
	}
	side := int(math.Sqrt(float64(c.Population)))
	for side*side > c.Population {
		side--
	}
	for (side+1)*(side+1) <= c.Population {
		side++
	}
	if side*side != c.Population {
		return 0, core.InvariantViolation("particle population %d is not a perfect square", c.Population)
	}
	return side, nil
}

// Validate checks the population and that the integration constants are finite.
func (c ParticleConfig) Validate() error {
	if _, err := c.Side(); err != nil {
		return err
	}
	for name, v := range map[string]float32{"gravity": c.Gravity, "timestep": c.Timestep} {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return core.InvariantViolation("particle %s must be finite, got %v", name, v)
		}
	}
	if c.EmitPerFrame < 0 {
		return core.InvariantViolation("particle emit rate must not be negative, got %d", c.EmitPerFrame)
	}
	return nil
}

// Particles is both a compute and a draw unit: it advances the particle
// state on the GPU and draws the result as points.
type Particles struct {
	cfg  ParticleConfig
	side int
	grid gpu.Grid

	compute gpu.ComputePipeline
	render  gpu.RenderPipeline

	particles  *gpu.View[core.ParticleRecord]
	laminate   *gpu.View[float32]
	params     *gpu.View[core.SimulationParameter]
	outputs    gpu.Slots[gpu.Buffer]
	transforms gpu.Slots[*gpu.View[mgl32.Mat4]]

	active int
}

var (
	_ frame.ComputeUnit = (*Particles)(nil)
	_ frame.DrawUnit    = (*Particles)(nil)
)

func NewParticles(cfg ParticleConfig) *Particles {
	return &Particles{cfg: cfg}
}

func (p *Particles) Name() string                   { return "Particle" }
func (p *Particles) Capabilities() frame.Capability { return frame.Compute | frame.Draw }
func (p *Particles) Population() int                { return p.cfg.Population }
func (p *Particles) Grid() gpu.Grid                 { return p.grid }
func (p *Particles) Active() int                    { return p.active }

func (p *Particles) Setup(o *frame.Orchestrator) (err error) {
	if err := p.cfg.Validate(); err != nil {
		return err
	}
	side, _ := p.cfg.Side()
	p.side = side
	p.grid = gpu.Grid{X: uint32(side), Y: uint32(side), Z: 1}

	lib := o.Library()
	kernel, err := lookupProgram(lib, shaders.ParticleCompute, gpu.StageCompute)
	if err != nil {
		return err
	}
	vs, err := lookupProgram(lib, shaders.ParticleVertex, gpu.StageVertex)
	if err != nil {
		return err
	}
	fs, err := lookupProgram(lib, shaders.ParticleFragment, gpu.StageFragment)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			p.Release()
		}
	}()

	dev := o.Device()
	if p.compute, err = dev.NewComputePipeline("ParticleCompute", kernel); err != nil {
		return core.SetupFailure("particle compute pipeline: %v", err)
	}
	p.render, err = dev.NewRenderPipeline(gpu.RenderPipelineDesc{
		Label:         "ParticlePipeLine",
		Vertex:        vs,
		Fragment:      fs,
		Primitive:     gpu.PrimitivePoint,
		AdditiveBlend: true,
	})
	if err != nil {
		return core.SetupFailure("particle render pipeline: %v", err)
	}

	n := p.cfg.Population
	if p.particles, err = gpu.AllocView(dev, "particles", gpu.BufferUsageStorage, core.ParticleLayout, n); err != nil {
		return err
	}
	if p.laminate, err = gpu.AllocView(dev, "laminate", gpu.BufferUsageStorage, core.LaminateLayout, n); err != nil {
		return err
	}
	if p.params, err = gpu.AllocView(dev, "particleParams", gpu.BufferUsageUniform, core.ParameterLayout, 1); err != nil {
		return err
	}
	p.outputs, err = gpu.NewSlots(o.Depth(),
		func(int) (gpu.Buffer, error) {
			b, err := dev.NewBuffer(gpu.BufferDesc{
				Label: "particleOutputs",
				Size:  uint64(n) * uint64(core.ParticleOutputLayout.Stride),
				Usage: gpu.BufferUsageStorage,
			})
			if err != nil {
				return nil, core.SetupFailure("allocate particle outputs: %v", err)
			}
			return b, nil
		},
		func(b gpu.Buffer) { b.Release() },
	)
	if err != nil {
		return err
	}
	if p.transforms, err = transformSlots(dev, "particleTransform", o.Depth()); err != nil {
		return err
	}

	p.seed()
	if err = p.particles.Flush(); err != nil {
		return core.SetupFailure("upload particles: %v", err)
	}
	if err = p.laminate.Flush(); err != nil {
		return core.SetupFailure("upload laminate: %v", err)
	}
	o.Logger().Infof("particles: %d (%dx%d), ring depth %d", n, side, side, o.Depth())
	return nil
}

// seed lays the population out as a column/row footprint with a small
// horizontal jitter, each index a little higher than the last so the
// particles form a falling front.
func (p *Particles) seed() {
	rng := rand.New(rand.NewSource(p.cfg.Seed))
	cfg := p.cfg
	side := float32(p.side)
	acc := mgl32.Vec3{0, cfg.Gravity * cfg.Timestep / 10, 0}
	p.particles.Fill(func(i int) core.ParticleRecord {
		col := float32(i%p.side)/side - 0.5
		row := float32(i/p.side)/side - 0.5
		return core.ParticleRecord{
			Position: mgl32.Vec4{
				col*cfg.Spread + rng.Float32()*cfg.Jitter + cfg.Jitter/2,
				-float32(i)*cfg.VerticalStep - cfg.VerticalOffset,
				row*cfg.Spread + rng.Float32()*cfg.Jitter + cfg.Jitter/2,
				1,
			},
			Acc: acc,
		}
	})
	p.laminate.Fill(func(int) float32 { return 0 })
}

// Particle returns the CPU copy of the initial state of particle i.
func (p *Particles) Particle(i int) (core.ParticleRecord, error) {
	return p.particles.At(i)
}

func (p *Particles) Transform(slot int) (mgl32.Mat4, error) {
	return p.transforms.At(slot).At(0)
}

func (p *Particles) ComputePass(o *frame.Orchestrator, cmd gpu.CommandBuffer) {
	log := o.Logger()
	clock := o.Clock()

	if p.cfg.EmitPerFrame <= 0 {
		p.active = p.cfg.Population
	} else {
		p.active = min(p.cfg.Population, p.active+p.cfg.EmitPerFrame)
	}
	param := core.SimulationParameter{
		Active:  float32(p.active),
		Elapsed: float32(clock.Elapsed.Seconds()),
		Dt:      clock.DtSeconds(),
		Frame:   float32(clock.Frame),
	}
	if err := p.params.Set(0, param); err != nil {
		log.Errorf("particle params: %v", err)
	}
	if err := p.params.Flush(); err != nil {
		log.Errorf("particle params: %v", err)
	}

	pass := cmd.BeginComputePass("ParticleCompute")
	pass.SetPipeline(p.compute)
	pass.SetBuffer(0, p.particles.Buffer())
	pass.SetBuffer(1, p.params.Buffer())
	pass.SetBuffer(2, p.laminate.Buffer())
	pass.SetBuffer(3, p.outputs.At(o.Slot()))
	pass.Dispatch(p.grid)
	if err := pass.End(); err != nil {
		log.Errorf("particle compute pass: %v", err)
	}
}

func (p *Particles) Update(o *frame.Orchestrator) {
	m := o.Projection().Mul4(o.View())
	if err := writeTransform(p.transforms, o.Slot(), m); err != nil {
		o.Logger().Errorf("particle transform: %v", err)
	}
}

func (p *Particles) RenderPass(o *frame.Orchestrator, pass gpu.RenderPass) {
	slot := o.Slot()
	pass.PushDebugGroup("Particle")
	pass.SetPipeline(p.render)
	pass.SetBuffer(0, p.outputs.At(slot))
	pass.SetBuffer(1, p.transforms.At(slot).Buffer())
	pass.Draw(gpu.PrimitivePoint, 0, uint32(p.cfg.Population))
	pass.PopDebugGroup()
}

func (p *Particles) Release() {
	if p.compute != nil {
		p.compute.Release()
		p.compute = nil
	}
	if p.render != nil {
		p.render.Release()
		p.render = nil
	}
	if p.particles != nil {
		p.particles.Release()
		p.particles = nil
	}
	if p.laminate != nil {
		p.laminate.Release()
		p.laminate = nil
	}
	if p.params != nil {
		p.params.Release()
		p.params = nil
	}
	p.outputs.Each(func(_ int, b gpu.Buffer) { b.Release() })
	p.outputs = gpu.Slots[gpu.Buffer]{}
	releaseTransforms(p.transforms)
	p.transforms = gpu.Slots[*gpu.View[mgl32.Mat4]]{}
}
