package frame

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/gekko3d/sand/rt/core"
	"github.com/gekko3d/sand/rt/gpu"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

var (
	ErrRegistrationClosed = errors.New("frame: registration is closed once frames have started")
	ErrFrameInProgress    = errors.New("frame: a frame is already in progress")
	ErrNoDrawable         = errors.New("frame: no drawable")
)

// UnitID identifies a registered unit instance.
type UnitID string

type UnitInfo struct {
	ID           UnitID
	Name         string
	Capabilities Capability
}

// Report summarizes one finished frame for an Observer.
type Report struct {
	Frame        uint64
	Slot         int
	ComputeUnits int
	DrawUnits    int
	Presented    bool
	Err          error
	CPUTime      time.Duration
	Phases       []Scope
}

type Observer interface {
	ObserveFrame(r Report)
}

type Options struct {
	// Depth is the number of frames in flight; 0 selects gpu.DefaultInFlightFrames.
	Depth int
	// Camera, when set, drives View and Projection every frame. Without it the
	// matrices keep whatever SetView/SetProjection stored (identity initially).
	Camera     *core.Camera
	ClearColor gpu.Color
	Logger     core.Logger
	Observer   Observer
	Clock      *core.Clock
}

type registration struct {
	id   UnitID
	unit Unit
}

// Orchestrator owns the device handle, the frame ring and the ordered unit
// lists, and drives the fixed per-frame pipeline:
// compute → update → encode draws → submit and present.
// It is meant to be driven from a single goroutine.
type Orchestrator struct {
	device   gpu.Device
	surface  gpu.Surface
	library  gpu.ProgramLibrary
	ring     *gpu.Ring
	camera   *core.Camera
	clock    *core.Clock
	log      core.Logger
	observer Observer
	profiler *Profiler
	clear    gpu.Color

	projection mgl32.Mat4
	view       mgl32.Mat4

	units   []registration
	compute []ComputeUnit
	draw    []DrawUnit

	state   State
	frames  uint64
	started bool
}

func New(device gpu.Device, surface gpu.Surface, library gpu.ProgramLibrary, opts Options) (*Orchestrator, error) {
	if device == nil || surface == nil || library == nil {
		return nil, core.InvariantViolation("orchestrator needs a device, a surface and a program library")
	}
	depth := opts.Depth
	if depth == 0 {
		depth = gpu.DefaultInFlightFrames
	}
	ring, err := gpu.NewRing(depth)
	if err != nil {
		return nil, err
	}
	if opts.Camera != nil {
		if err := opts.Camera.Validate(); err != nil {
			return nil, err
		}
	}
	clock := opts.Clock
	if clock == nil {
		clock = core.NewClock()
	}
	return &Orchestrator{
		device:     device,
		surface:    surface,
		library:    library,
		ring:       ring,
		camera:     opts.Camera,
		clock:      clock,
		log:        core.OrNop(opts.Logger),
		observer:   opts.Observer,
		profiler:   NewProfiler(),
		clear:      opts.ClearColor,
		projection: mgl32.Ident4(),
		view:       mgl32.Ident4(),
		state:      Idle,
	}, nil
}

func (o *Orchestrator) Device() gpu.Device          { return o.device }
func (o *Orchestrator) Library() gpu.ProgramLibrary { return o.library }
func (o *Orchestrator) Logger() core.Logger         { return o.log }
func (o *Orchestrator) Clock() *core.Clock          { return o.clock }
func (o *Orchestrator) Profiler() *Profiler         { return o.profiler }
func (o *Orchestrator) State() State                { return o.state }
func (o *Orchestrator) Frames() uint64              { return o.frames }
func (o *Orchestrator) Camera() *core.Camera        { return o.camera }

// Depth is the number of slots every per-frame resource must be allocated with.
func (o *Orchestrator) Depth() int { return o.ring.Depth() }

// Slot is the ring slot units write and bind during the current frame.
func (o *Orchestrator) Slot() int { return o.ring.Current() }

func (o *Orchestrator) Projection() mgl32.Mat4 { return o.projection }
func (o *Orchestrator) View() mgl32.Mat4       { return o.view }

func (o *Orchestrator) SetProjection(m mgl32.Mat4) { o.projection = m }
func (o *Orchestrator) SetView(m mgl32.Mat4)       { o.view = m }

// Register validates the unit's capability tag, runs its Setup and appends
// it to the compute and/or draw list. Registration order is both dispatch
// order and draw order. Units cannot be added once frames have started.
func (o *Orchestrator) Register(u Unit) (UnitID, error) {
	if u == nil {
		return "", core.InvariantViolation("nil unit")
	}
	if o.started {
		return "", ErrRegistrationClosed
	}
	for _, r := range o.units {
		if sameUnit(r.unit, u) {
			return "", core.InvariantViolation("unit %q registered twice", u.Name())
		}
	}

	caps := u.Capabilities()
	cu, isCompute := u.(ComputeUnit)
	du, isDraw := u.(DrawUnit)
	switch {
	case !caps.Has(Compute) && !caps.Has(Draw):
		return "", core.InvariantViolation("unit %q declares no capability", u.Name())
	case caps.Has(Compute) && !isCompute:
		return "", core.InvariantViolation("unit %q declares compute but has no ComputePass", u.Name())
	case caps.Has(Draw) && !isDraw:
		return "", core.InvariantViolation("unit %q declares draw but has no RenderPass", u.Name())
	}

	if err := u.Setup(o); err != nil {
		o.log.Errorf("unit %q setup failed: %v", u.Name(), err)
		return "", fmt.Errorf("setup %q: %w", u.Name(), err)
	}

	id := UnitID(uuid.NewString())
	o.units = append(o.units, registration{id: id, unit: u})
	if caps.Has(Compute) {
		o.compute = append(o.compute, cu)
	}
	if caps.Has(Draw) {
		o.draw = append(o.draw, du)
	}
	o.log.Infof("registered unit %q (%s) id=%s", u.Name(), caps, id)
	return id, nil
}

// sameUnit reports identity for comparable units. Units whose dynamic type
// cannot be compared (value types holding slices, maps or funcs) are never
// treated as duplicates.
func sameUnit(a, b Unit) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

// Units lists registered units in registration order.
func (o *Orchestrator) Units() []UnitInfo {
	out := make([]UnitInfo, 0, len(o.units))
	for _, r := range o.units {
		out = append(out, UnitInfo{ID: r.id, Name: r.unit.Name(), Capabilities: r.unit.Capabilities()})
	}
	return out
}

func (o *Orchestrator) refreshMatrices() {
	if o.camera == nil {
		return
	}
	o.view = o.camera.ViewMatrix()
	w, h := o.surface.Size()
	aspect := float32(1)
	if w > 0 && h > 0 {
		aspect = float32(w) / float32(h)
	}
	o.projection = o.camera.ProjectionMatrix(aspect)
}

// Frame runs one full frame. It never waits on the GPU. Once started a frame
// always returns to Idle; a failure to acquire the drawable still commits the
// compute work so the simulation stays consistent, but nothing is presented.
func (o *Orchestrator) Frame() error {
	if o.state != Idle {
		return ErrFrameInProgress
	}
	o.started = true
	start := time.Now()
	o.profiler.Reset()

	// Idle -> Computing
	slot := o.ring.Advance()
	o.clock.Tick()
	o.frames++
	o.refreshMatrices()

	report := Report{
		Frame:        o.frames,
		Slot:         slot,
		ComputeUnits: len(o.compute),
		DrawUnits:    len(o.draw),
	}
	defer func() {
		o.state = Idle
		report.CPUTime = time.Since(start)
		report.Phases = o.profiler.Snapshot()
		if o.observer != nil {
			o.observer.ObserveFrame(report)
		}
	}()

	cmd, err := o.device.NewCommandBuffer("frame")
	if err != nil {
		report.Err = fmt.Errorf("frame %d: command buffer: %w", o.frames, err)
		o.log.Debugf("%v", report.Err)
		return report.Err
	}

	o.state = Computing
	o.profiler.BeginScope("compute")
	for _, u := range o.compute {
		u.ComputePass(o, cmd)
	}
	o.profiler.EndScope("compute")

	// Computing -> Updating
	o.state = Updating
	o.profiler.BeginScope("update")
	for _, r := range o.units {
		r.unit.Update(o)
	}
	o.profiler.EndScope("update")

	// Updating -> Encoding
	o.state = Encoding
	o.profiler.BeginScope("encode")
	var errs []error
	drawable, err := o.surface.CurrentDrawable()
	if err != nil {
		errs = append(errs, fmt.Errorf("frame %d: %w: %w", o.frames, ErrNoDrawable, err))
	} else {
		pass := cmd.BeginRenderPass(drawable, o.clear)
		for _, u := range o.draw {
			u.RenderPass(o, pass)
		}
		if err := pass.End(); err != nil {
			errs = append(errs, fmt.Errorf("frame %d: render pass: %w", o.frames, err))
		}
	}
	o.profiler.EndScope("encode")

	// Encoding -> Submitted
	o.state = Submitted
	o.profiler.BeginScope("submit")
	if err := cmd.Commit(); err != nil {
		errs = append(errs, fmt.Errorf("frame %d: commit: %w", o.frames, err))
	}
	if drawable != nil {
		o.surface.Present(drawable)
		report.Presented = true
	}
	o.profiler.EndScope("submit")

	report.Err = errors.Join(errs...)
	if report.Err != nil {
		o.log.Debugf("%v", report.Err)
	} else if o.log.DebugEnabled() && o.frames%600 == 0 {
		o.log.Debugf("frame %d slot %d: %s", o.frames, slot, o.profiler)
	}
	return report.Err
}

// Release frees every unit's resources in reverse registration order.
func (o *Orchestrator) Release() {
	for i := len(o.units) - 1; i >= 0; i-- {
		o.units[i].unit.Release()
	}
	o.units = nil
	o.compute = nil
	o.draw = nil
}
