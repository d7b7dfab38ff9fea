// Package gputest provides an in-memory gpu.Device and gpu.Surface that record
// every command instead of executing it.
package gputest

import (
	"errors"
	"fmt"

	"github.com/gekko3d/sand/rt/gpu"
)

type CommandKind int

const (
	CmdBeginCompute CommandKind = iota
	CmdDispatch
	CmdEndCompute
	CmdBeginRender
	CmdPushDebugGroup
	CmdPopDebugGroup
	CmdDraw
	CmdEndRender
	CmdCommit
)

func (k CommandKind) String() string {
	return [...]string{
		"begin-compute", "dispatch", "end-compute", "begin-render",
		"push-debug-group", "pop-debug-group", "draw", "end-render", "commit",
	}[k]
}

// Command is one recorded entry. Bound holds the buffers bound at the time of
// a dispatch or draw.
type Command struct {
	Kind        CommandKind
	CommandBuf  string
	Label       string
	Pipeline    string
	Bound       map[uint32]*Buffer
	Grid        gpu.Grid
	Primitive   gpu.Primitive
	VertexStart uint32
	VertexCount uint32
}

var ErrInjected = errors.New("gputest: injected failure")

type Buffer struct {
	desc     gpu.BufferDesc
	Data     []byte
	Writes   int
	Released bool
}

func (b *Buffer) Label() string { return b.desc.Label }
func (b *Buffer) Size() uint64  { return b.desc.Size }
func (b *Buffer) Usage() gpu.BufferUsage {
	return b.desc.Usage
}

func (b *Buffer) Write(offset uint64, data []byte) error {
	if b.Released {
		return fmt.Errorf("write to released buffer %q", b.desc.Label)
	}
	if offset+uint64(len(data)) > uint64(len(b.Data)) {
		return fmt.Errorf("%w: write of %d bytes at %d exceeds %q", gpu.ErrOutOfBounds, len(data), offset, b.desc.Label)
	}
	copy(b.Data[offset:], data)
	b.Writes++
	return nil
}

func (b *Buffer) Release() { b.Released = true }

type pipeline struct {
	label    string
	Released bool
}

func (p *pipeline) Label() string { return p.label }
func (p *pipeline) Release()      { p.Released = true }

// Device records allocations and command streams. The Fail* fields inject
// setup failures.
type Device struct {
	Buffers          []*Buffer
	Commands         []Command
	ComputePipelines []string
	RenderPipelines  []gpu.RenderPipelineDesc
	CommandBuffers   int

	FailBufferLabel string // NewBuffer fails for this label
	FailPipelines   bool
	FailCommandBuf  bool
	FailCommitOnce  bool
}

var _ gpu.Device = (*Device)(nil)

func NewDevice() *Device {
	return &Device{}
}

func (d *Device) NewBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if d.FailBufferLabel != "" && desc.Label == d.FailBufferLabel {
		return nil, ErrInjected
	}
	b := &Buffer{desc: desc, Data: make([]byte, desc.Size)}
	d.Buffers = append(d.Buffers, b)
	return b, nil
}

func (d *Device) NewComputePipeline(label string, kernel gpu.Program) (gpu.ComputePipeline, error) {
	if d.FailPipelines {
		return nil, ErrInjected
	}
	if kernel.Stage != gpu.StageCompute {
		return nil, fmt.Errorf("program %q is not a compute kernel", kernel.Name)
	}
	d.ComputePipelines = append(d.ComputePipelines, label)
	return &pipeline{label: label}, nil
}

func (d *Device) NewRenderPipeline(desc gpu.RenderPipelineDesc) (gpu.RenderPipeline, error) {
	if d.FailPipelines {
		return nil, ErrInjected
	}
	d.RenderPipelines = append(d.RenderPipelines, desc)
	return &pipeline{label: desc.Label}, nil
}

func (d *Device) NewCommandBuffer(label string) (gpu.CommandBuffer, error) {
	if d.FailCommandBuf {
		return nil, ErrInjected
	}
	d.CommandBuffers++
	return &commandBuffer{d: d, label: fmt.Sprintf("%s#%d", label, d.CommandBuffers)}, nil
}

// BuffersLabeled returns live buffers whose label matches.
func (d *Device) BuffersLabeled(label string) []*Buffer {
	var out []*Buffer
	for _, b := range d.Buffers {
		if b.desc.Label == label && !b.Released {
			out = append(out, b)
		}
	}
	return out
}

// Live counts buffers that were not released.
func (d *Device) Live() int {
	n := 0
	for _, b := range d.Buffers {
		if !b.Released {
			n++
		}
	}
	return n
}

// Filter returns recorded commands of the given kind.
func (d *Device) Filter(kind CommandKind) []Command {
	var out []Command
	for _, c := range d.Commands {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (d *Device) Reset() {
	d.Commands = nil
}

func (d *Device) record(c Command) {
	d.Commands = append(d.Commands, c)
}

func snapshot(bound map[uint32]*Buffer) map[uint32]*Buffer {
	out := make(map[uint32]*Buffer, len(bound))
	for k, v := range bound {
		out[k] = v
	}
	return out
}

type commandBuffer struct {
	d     *Device
	label string
}

func (c *commandBuffer) BeginComputePass(label string) gpu.ComputePass {
	c.d.record(Command{Kind: CmdBeginCompute, CommandBuf: c.label, Label: label})
	return &computePass{c: c, label: label, bound: map[uint32]*Buffer{}}
}

func (c *commandBuffer) BeginRenderPass(target gpu.Drawable, clear gpu.Color) gpu.RenderPass {
	c.d.record(Command{Kind: CmdBeginRender, CommandBuf: c.label, Label: fmt.Sprintf("%dx%d", target.Width(), target.Height())})
	return &renderPass{c: c, bound: map[uint32]*Buffer{}}
}

func (c *commandBuffer) Commit() error {
	if c.d.FailCommitOnce {
		c.d.FailCommitOnce = false
		return ErrInjected
	}
	c.d.record(Command{Kind: CmdCommit, CommandBuf: c.label})
	return nil
}

type computePass struct {
	c        *commandBuffer
	label    string
	pipeline string
	bound    map[uint32]*Buffer
}

func (p *computePass) SetPipeline(pl gpu.ComputePipeline) { p.pipeline = pl.Label() }
func (p *computePass) SetBuffer(i uint32, b gpu.Buffer)   { p.bound[i] = b.(*Buffer) }

func (p *computePass) Dispatch(threads gpu.Grid) {
	p.c.d.record(Command{
		Kind:       CmdDispatch,
		CommandBuf: p.c.label,
		Label:      p.label,
		Pipeline:   p.pipeline,
		Bound:      snapshot(p.bound),
		Grid:       threads,
	})
}

func (p *computePass) End() error {
	p.c.d.record(Command{Kind: CmdEndCompute, CommandBuf: p.c.label, Label: p.label})
	return nil
}

type renderPass struct {
	c        *commandBuffer
	pipeline string
	groups   []string
	bound    map[uint32]*Buffer
}

func (p *renderPass) PushDebugGroup(label string) {
	p.groups = append(p.groups, label)
	p.c.d.record(Command{Kind: CmdPushDebugGroup, CommandBuf: p.c.label, Label: label})
}

func (p *renderPass) PopDebugGroup() {
	label := ""
	if n := len(p.groups); n > 0 {
		label = p.groups[n-1]
		p.groups = p.groups[:n-1]
	}
	p.c.d.record(Command{Kind: CmdPopDebugGroup, CommandBuf: p.c.label, Label: label})
}

func (p *renderPass) SetPipeline(pl gpu.RenderPipeline) {
	p.pipeline = pl.Label()
	p.bound = map[uint32]*Buffer{}
}

func (p *renderPass) SetBuffer(i uint32, b gpu.Buffer) { p.bound[i] = b.(*Buffer) }

func (p *renderPass) Draw(prim gpu.Primitive, start, count uint32) {
	label := ""
	if n := len(p.groups); n > 0 {
		label = p.groups[n-1]
	}
	p.c.d.record(Command{
		Kind:        CmdDraw,
		CommandBuf:  p.c.label,
		Label:       label,
		Pipeline:    p.pipeline,
		Bound:       snapshot(p.bound),
		Primitive:   prim,
		VertexStart: start,
		VertexCount: count,
	})
}

func (p *renderPass) End() error {
	p.c.d.record(Command{Kind: CmdEndRender, CommandBuf: p.c.label})
	if len(p.groups) != 0 {
		return fmt.Errorf("render pass ended with open debug groups %v", p.groups)
	}
	return nil
}

type Drawable struct {
	W, H int
	Seq  int
}

func (d *Drawable) Width() int  { return d.W }
func (d *Drawable) Height() int { return d.H }

// Surface hands out numbered drawables and counts presents.
type Surface struct {
	W, H      int
	Acquired  int
	Presented []*Drawable
	// FailNext makes the next CurrentDrawable call fail.
	FailNext bool
}

var _ gpu.Surface = (*Surface)(nil)

func NewSurface(w, h int) *Surface {
	return &Surface{W: w, H: h}
}

func (s *Surface) Size() (int, int) { return s.W, s.H }

func (s *Surface) CurrentDrawable() (gpu.Drawable, error) {
	if s.FailNext {
		s.FailNext = false
		return nil, ErrInjected
	}
	s.Acquired++
	return &Drawable{W: s.W, H: s.H, Seq: s.Acquired}, nil
}

func (s *Surface) Present(d gpu.Drawable) {
	s.Presented = append(s.Presented, d.(*Drawable))
}

// Library is a map-backed program library.
type Library map[string]gpu.Program

func (l Library) Program(name string) (gpu.Program, bool) {
	p, ok := l[name]
	return p, ok
}
