package gpu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gekko3d/sand/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
)

// WGPUBackend implements Device and Surface on WebGPU. WebGPU has no
// user-visible fence; the swapchain's own frame latency plus the ring depth
// keep slot reuse behind the GPU.
type WGPUBackend struct {
	log core.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface
	config   *wgpu.SurfaceConfiguration

	modules    map[string]*wgpu.ShaderModule // keyed by WGSL source
	bindGroups map[string]*wgpu.BindGroup
	// owners maps a buffer or pipeline serial to the cache keys that bind it.
	owners map[uint64][]string
	serial uint64
}

var (
	_ Device  = (*WGPUBackend)(nil)
	_ Surface = (*WGPUBackend)(nil)
)

// NewWGPUBackend creates the instance, adapter, device and queue for the
// host surface and configures it for width x height with vsync.
func NewWGPUBackend(surfaceDesc *wgpu.SurfaceDescriptor, width, height int, log core.Logger) (*WGPUBackend, error) {
	b := &WGPUBackend{
		log:        core.OrNop(log),
		modules:    make(map[string]*wgpu.ShaderModule),
		bindGroups: make(map[string]*wgpu.BindGroup),
		owners:     make(map[uint64][]string),
	}

	b.instance = wgpu.CreateInstance(nil)
	b.surface = b.instance.CreateSurface(surfaceDesc)

	adapter, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: b.surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		b.Release()
		return nil, core.SetupFailure("request adapter: %v", err)
	}
	b.adapter = adapter

	b.device, err = adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Sand Device",
	})
	if err != nil {
		b.Release()
		return nil, core.SetupFailure("request device: %v", err)
	}
	b.queue = b.device.GetQueue()

	caps := b.surface.GetCapabilities(adapter)
	if len(caps.Formats) == 0 || len(caps.AlphaModes) == 0 {
		b.Release()
		return nil, core.SetupFailure("surface reports no formats")
	}
	b.config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	b.surface.Configure(adapter, b.device, b.config)
	b.log.Infof("WebGPU surface configured %dx%d format=%v", width, height, b.config.Format)

	return b, nil
}

// Resize reconfigures the surface. Zero sizes (minimized windows) are ignored.
func (b *WGPUBackend) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	b.config.Width = uint32(width)
	b.config.Height = uint32(height)
	b.surface.Configure(b.adapter, b.device, b.config)
	b.log.Debugf("surface resized to %dx%d", width, height)
}

func (b *WGPUBackend) Release() {
	for k, bg := range b.bindGroups {
		bg.Release()
		delete(b.bindGroups, k)
	}
	clear(b.owners)
	for k, m := range b.modules {
		m.Release()
		delete(b.modules, k)
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// Buffers

type wgpuBuffer struct {
	b     *WGPUBackend
	id    uint64
	label string
	size  uint64
	buf   *wgpu.Buffer
	queue *wgpu.Queue
}

func (b *wgpuBuffer) Label() string { return b.label }
func (b *wgpuBuffer) Size() uint64  { return b.size }

func (b *wgpuBuffer) Write(offset uint64, data []byte) error {
	if b.buf == nil {
		return fmt.Errorf("write to released buffer %q", b.label)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: write of %d bytes at %d exceeds %q (%d bytes)", ErrOutOfBounds, len(data), offset, b.label, b.size)
	}
	return b.queue.WriteBuffer(b.buf, offset, data)
}

func (b *wgpuBuffer) Release() {
	if b.buf != nil {
		if b.b != nil {
			b.b.evict(b.id)
		}
		b.buf.Release()
		b.buf = nil
	}
}

func toWGPUUsage(u BufferUsage) wgpu.BufferUsage {
	usage := wgpu.BufferUsageCopyDst
	if u&BufferUsageUniform != 0 {
		usage |= wgpu.BufferUsageUniform
	}
	if u&BufferUsageStorage != 0 {
		usage |= wgpu.BufferUsageStorage
	}
	if u&BufferUsageVertex != 0 {
		usage |= wgpu.BufferUsageVertex
	}
	return usage
}

func (b *WGPUBackend) NewBuffer(desc BufferDesc) (Buffer, error) {
	size := desc.Size
	if size%4 != 0 {
		size += 4 - (size % 4)
	}
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             size,
		Usage:            toWGPUUsage(desc.Usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, err
	}
	b.log.Debugf("buffer %q allocated (%d bytes)", desc.Label, size)
	b.serial++
	return &wgpuBuffer{b: b, id: b.serial, label: desc.Label, size: size, buf: buf, queue: b.queue}, nil
}

// Pipelines

type wgpuComputePipeline struct {
	b         *WGPUBackend
	id        uint64
	label     string
	pipeline  *wgpu.ComputePipeline
	workgroup Grid
}

func (p *wgpuComputePipeline) Label() string { return p.label }

func (p *wgpuComputePipeline) Release() {
	p.b.evict(p.id)
	p.pipeline.Release()
}

type wgpuRenderPipeline struct {
	b         *WGPUBackend
	id        uint64
	label     string
	pipeline  *wgpu.RenderPipeline
	primitive Primitive
}

func (p *wgpuRenderPipeline) Label() string { return p.label }

func (p *wgpuRenderPipeline) Release() {
	p.b.evict(p.id)
	p.pipeline.Release()
}

func (b *WGPUBackend) module(prog Program) (*wgpu.ShaderModule, error) {
	if m, ok := b.modules[prog.Source]; ok {
		return m, nil
	}
	m, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          prog.Name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: prog.Source},
	})
	if err != nil {
		return nil, err
	}
	b.modules[prog.Source] = m
	return m, nil
}

func (b *WGPUBackend) NewComputePipeline(label string, kernel Program) (ComputePipeline, error) {
	if kernel.Stage != StageCompute {
		return nil, fmt.Errorf("program %q is not a compute kernel", kernel.Name)
	}
	mod, err := b.module(kernel)
	if err != nil {
		return nil, err
	}
	// Layout auto
	p, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: label,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     mod,
			EntryPoint: kernel.EntryPoint,
		},
	})
	if err != nil {
		return nil, err
	}
	b.serial++
	return &wgpuComputePipeline{b: b, id: b.serial, label: label, pipeline: p, workgroup: kernel.WorkgroupSize}, nil
}

func toWGPUTopology(p Primitive) wgpu.PrimitiveTopology {
	switch p {
	case PrimitivePoint:
		return wgpu.PrimitiveTopologyPointList
	case PrimitiveLine:
		return wgpu.PrimitiveTopologyLineList
	default:
		return wgpu.PrimitiveTopologyTriangleList
	}
}

func (b *WGPUBackend) NewRenderPipeline(desc RenderPipelineDesc) (RenderPipeline, error) {
	vs, err := b.module(desc.Vertex)
	if err != nil {
		return nil, err
	}
	fs, err := b.module(desc.Fragment)
	if err != nil {
		return nil, err
	}

	var blend *wgpu.BlendState
	if desc.AdditiveBlend {
		blend = &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorSrcAlpha,
				DstFactor: wgpu.BlendFactorOne,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOne,
				Operation: wgpu.BlendOperationAdd,
			},
		}
	}

	p, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: desc.Label,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: desc.Vertex.EntryPoint,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: desc.Fragment.EntryPoint,
			Targets: []wgpu.ColorTargetState{{
				Format:    b.config.Format,
				Blend:     blend,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  toWGPUTopology(desc.Primitive),
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: nil,
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, err
	}
	b.serial++
	return &wgpuRenderPipeline{b: b, id: b.serial, label: desc.Label, pipeline: p, primitive: desc.Primitive}, nil
}

// Bind groups are created lazily from the auto layout of group 0 and cached
// by pipeline and bound buffers, so each ring slot gets its own group once.
// Keys use allocation serials, never addresses; releasing a buffer or a
// pipeline evicts every group that references it.
type bindingLayout interface {
	GetBindGroupLayout(groupIndex uint32) *wgpu.BindGroupLayout
}

func bindGroupKey(kind, label string, pipeline uint64, bindings map[uint32]*wgpuBuffer) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%s|p%d", kind, label, pipeline)
	for i := uint32(0); i < uint32(len(bindings)); i++ {
		buf, ok := bindings[i]
		if !ok {
			return "", fmt.Errorf("%s: binding %d not set", label, i)
		}
		if buf.buf == nil {
			return "", fmt.Errorf("%s: binding %d uses released buffer %q", label, i, buf.label)
		}
		fmt.Fprintf(&sb, "|b%d", buf.id)
	}
	return sb.String(), nil
}

func (b *WGPUBackend) evict(id uint64) {
	for _, k := range b.owners[id] {
		if bg, ok := b.bindGroups[k]; ok {
			bg.Release()
			delete(b.bindGroups, k)
		}
	}
	delete(b.owners, id)
}

func (b *WGPUBackend) bindGroup(label string, pipeline bindingLayout, pipelineID uint64, kind string, bindings map[uint32]*wgpuBuffer) (*wgpu.BindGroup, error) {
	cacheKey, err := bindGroupKey(kind, label, pipelineID, bindings)
	if err != nil {
		return nil, err
	}
	if bg, ok := b.bindGroups[cacheKey]; ok {
		return bg, nil
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(bindings))
	for i := uint32(0); i < uint32(len(bindings)); i++ {
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: i,
			Buffer:  bindings[i].buf,
			Size:    wgpu.WholeSize,
		})
	}
	layout := pipeline.GetBindGroupLayout(0)
	defer layout.Release()

	bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	b.bindGroups[cacheKey] = bg
	b.owners[pipelineID] = append(b.owners[pipelineID], cacheKey)
	for _, buf := range bindings {
		b.owners[buf.id] = append(b.owners[buf.id], cacheKey)
	}
	return bg, nil
}

// Command recording

type wgpuCommandBuffer struct {
	b       *WGPUBackend
	label   string
	encoder *wgpu.CommandEncoder
}

func (b *WGPUBackend) NewCommandBuffer(label string) (CommandBuffer, error) {
	enc, err := b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, err
	}
	return &wgpuCommandBuffer{b: b, label: label, encoder: enc}, nil
}

func (c *wgpuCommandBuffer) BeginComputePass(label string) ComputePass {
	return &wgpuComputePass{
		b:        c.b,
		label:    label,
		pass:     c.encoder.BeginComputePass(nil),
		bindings: make(map[uint32]*wgpuBuffer),
	}
}

func (c *wgpuCommandBuffer) BeginRenderPass(target Drawable, clear Color) RenderPass {
	d := target.(*wgpuDrawable)
	pass := c.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       d.view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: clear.R, G: clear.G, B: clear.B, A: clear.A},
		}},
	})
	return &wgpuRenderPass{b: c.b, pass: pass, bindings: make(map[uint32]*wgpuBuffer)}
}

func (c *wgpuCommandBuffer) Commit() error {
	defer c.encoder.Release()
	cmd, err := c.encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish %q: %w", c.label, err)
	}
	defer cmd.Release()
	c.b.queue.Submit(cmd)
	return nil
}

type wgpuComputePass struct {
	b        *WGPUBackend
	label    string
	pass     *wgpu.ComputePassEncoder
	pipeline *wgpuComputePipeline
	bindings map[uint32]*wgpuBuffer
	err      error
}

func (p *wgpuComputePass) SetPipeline(pl ComputePipeline) {
	p.pipeline = pl.(*wgpuComputePipeline)
}

func (p *wgpuComputePass) SetBuffer(index uint32, buf Buffer) {
	p.bindings[index] = buf.(*wgpuBuffer)
}

func (p *wgpuComputePass) Dispatch(threads Grid) {
	if p.pipeline == nil {
		p.err = errors.Join(p.err, fmt.Errorf("%s: dispatch without pipeline", p.label))
		return
	}
	bg, err := p.b.bindGroup(p.label, p.pipeline.pipeline, p.pipeline.id, "compute", p.bindings)
	if err != nil {
		p.err = errors.Join(p.err, err)
		return
	}
	wg := threads.Workgroups(p.pipeline.workgroup)
	p.pass.SetPipeline(p.pipeline.pipeline)
	p.pass.SetBindGroup(0, bg, nil)
	p.pass.DispatchWorkgroups(wg.X, wg.Y, wg.Z)
}

func (p *wgpuComputePass) End() error {
	err := p.pass.End()
	p.pass.Release()
	return errors.Join(p.err, err)
}

type wgpuRenderPass struct {
	b        *WGPUBackend
	pass     *wgpu.RenderPassEncoder
	pipeline *wgpuRenderPipeline
	bindings map[uint32]*wgpuBuffer
	err      error
}

func (p *wgpuRenderPass) PushDebugGroup(label string) { p.pass.PushDebugGroup(label) }
func (p *wgpuRenderPass) PopDebugGroup()              { p.pass.PopDebugGroup() }

func (p *wgpuRenderPass) SetPipeline(pl RenderPipeline) {
	p.pipeline = pl.(*wgpuRenderPipeline)
	// bindings belong to the previous pipeline's layout
	p.bindings = make(map[uint32]*wgpuBuffer)
}

func (p *wgpuRenderPass) SetBuffer(index uint32, buf Buffer) {
	p.bindings[index] = buf.(*wgpuBuffer)
}

func (p *wgpuRenderPass) Draw(prim Primitive, vertexStart, vertexCount uint32) {
	if p.pipeline == nil {
		p.err = errors.Join(p.err, errors.New("draw without pipeline"))
		return
	}
	if prim != p.pipeline.primitive {
		p.err = errors.Join(p.err, fmt.Errorf("%s: draw as %v but pipeline topology is %v", p.pipeline.label, prim, p.pipeline.primitive))
		return
	}
	bg, err := p.b.bindGroup(p.pipeline.label, p.pipeline.pipeline, p.pipeline.id, "render", p.bindings)
	if err != nil {
		p.err = errors.Join(p.err, err)
		return
	}
	p.pass.SetPipeline(p.pipeline.pipeline)
	p.pass.SetBindGroup(0, bg, nil)
	p.pass.Draw(vertexCount, 1, vertexStart, 0)
}

func (p *wgpuRenderPass) End() error {
	err := p.pass.End()
	p.pass.Release()
	return errors.Join(p.err, err)
}

// Surface

type wgpuDrawable struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
	width   int
	height  int
}

func (d *wgpuDrawable) Width() int  { return d.width }
func (d *wgpuDrawable) Height() int { return d.height }

func (b *WGPUBackend) Size() (int, int) {
	return int(b.config.Width), int(b.config.Height)
}

func (b *WGPUBackend) CurrentDrawable() (Drawable, error) {
	tex, err := b.surface.GetCurrentTexture()
	if err != nil {
		return nil, fmt.Errorf("get current texture: %w", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("create view: %w", err)
	}
	return &wgpuDrawable{
		texture: tex,
		view:    view,
		width:   int(b.config.Width),
		height:  int(b.config.Height),
	}, nil
}

func (b *WGPUBackend) Present(d Drawable) {
	b.surface.Present()
	if wd, ok := d.(*wgpuDrawable); ok {
		wd.view.Release()
		wd.texture.Release()
	}
}
