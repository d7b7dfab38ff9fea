package frame

import (
	"errors"
	"testing"
	"time"

	"github.com/gekko3d/sand/rt/core"
	"github.com/gekko3d/sand/rt/gpu"
	"github.com/gekko3d/sand/rt/gpu/gputest"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUnit records every call into a shared journal.
type fakeUnit struct {
	name     string
	caps     Capability
	journal  *[]string
	setupErr error
	states   []State
	slots    []int
	released bool
}

func (f *fakeUnit) Name() string             { return f.name }
func (f *fakeUnit) Capabilities() Capability { return f.caps }
func (f *fakeUnit) Release()                 { f.released = true }

func (f *fakeUnit) Setup(o *Orchestrator) error {
	*f.journal = append(*f.journal, "setup:"+f.name)
	return f.setupErr
}

func (f *fakeUnit) Update(o *Orchestrator) {
	f.states = append(f.states, o.State())
	f.slots = append(f.slots, o.Slot())
	*f.journal = append(*f.journal, "update:"+f.name)
}

type fakeCompute struct{ *fakeUnit }

func (f fakeCompute) ComputePass(o *Orchestrator, cmd gpu.CommandBuffer) {
	f.states = append(f.states, o.State())
	*f.journal = append(*f.journal, "compute:"+f.name)
	pass := cmd.BeginComputePass(f.name)
	pass.Dispatch(gpu.Grid{X: 1, Y: 1, Z: 1})
	_ = pass.End()
}

type fakeDraw struct{ *fakeUnit }

func (f fakeDraw) RenderPass(o *Orchestrator, pass gpu.RenderPass) {
	f.states = append(f.states, o.State())
	*f.journal = append(*f.journal, "draw:"+f.name)
	pass.PushDebugGroup(f.name)
	pass.Draw(gpu.PrimitiveTriangle, 0, 3)
	pass.PopDebugGroup()
}

type fakeBoth struct{ *fakeUnit }

func (f fakeBoth) ComputePass(o *Orchestrator, cmd gpu.CommandBuffer) {
	fakeCompute(f).ComputePass(o, cmd)
}

func (f fakeBoth) RenderPass(o *Orchestrator, pass gpu.RenderPass) {
	fakeDraw(f).RenderPass(o, pass)
}

// tintUnit is a value type with a slice field, so its interface values
// cannot be compared with ==.
type tintUnit struct {
	name  string
	tints []float32
}

func (u tintUnit) Name() string                { return u.name }
func (u tintUnit) Capabilities() Capability    { return Draw }
func (u tintUnit) Setup(o *Orchestrator) error { return nil }
func (u tintUnit) Update(o *Orchestrator)      {}
func (u tintUnit) Release()                    {}

func (u tintUnit) RenderPass(o *Orchestrator, pass gpu.RenderPass) {
	pass.Draw(gpu.PrimitiveTriangle, 0, uint32(3*len(u.tints)))
}

type recordingObserver struct{ reports []Report }

func (r *recordingObserver) ObserveFrame(rep Report) { r.reports = append(r.reports, rep) }

type harness struct {
	dev     *gputest.Device
	surface *gputest.Surface
	orch    *Orchestrator
	journal []string
	obs     *recordingObserver
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		dev:     gputest.NewDevice(),
		surface: gputest.NewSurface(640, 480),
		obs:     &recordingObserver{},
	}
	if opts.Observer == nil {
		opts.Observer = h.obs
	}
	o, err := New(h.dev, h.surface, gputest.Library{}, opts)
	require.NoError(t, err)
	h.orch = o
	return h
}

func (h *harness) unit(name string, caps Capability) *fakeUnit {
	return &fakeUnit{name: name, caps: caps, journal: &h.journal}
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, gputest.NewSurface(1, 1), gputest.Library{}, Options{})
	assert.ErrorIs(t, err, core.ErrInvariantViolation)

	_, err = New(gputest.NewDevice(), gputest.NewSurface(1, 1), gputest.Library{}, Options{Depth: -1})
	assert.ErrorIs(t, err, core.ErrInvariantViolation)

	cam := core.NewCamera()
	cam.Target = cam.Eye
	_, err = New(gputest.NewDevice(), gputest.NewSurface(1, 1), gputest.Library{}, Options{Camera: cam})
	assert.ErrorIs(t, err, core.ErrInvariantViolation)

	o, err := New(gputest.NewDevice(), gputest.NewSurface(1, 1), gputest.Library{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, gpu.DefaultInFlightFrames, o.Depth())
	assert.Equal(t, 0, o.Slot())
	assert.Equal(t, Idle, o.State())
	assert.Equal(t, mgl32.Ident4(), o.Projection())
	assert.Equal(t, mgl32.Ident4(), o.View())
}

func TestFrameRunsPhasesInOrder(t *testing.T) {
	h := newHarness(t, Options{Depth: 2})
	sim := h.unit("sim", Compute)
	a := h.unit("A", Draw)
	b := h.unit("B", Draw)

	for _, u := range []Unit{fakeCompute{sim}, fakeDraw{a}, fakeDraw{b}} {
		_, err := h.orch.Register(u)
		require.NoError(t, err)
	}
	h.journal = nil

	require.NoError(t, h.orch.Frame())

	assert.Equal(t, []string{
		"compute:sim",
		"update:sim", "update:A", "update:B",
		"draw:A", "draw:B",
	}, h.journal)
	assert.Equal(t, []State{Computing, Updating}, sim.states)
	assert.Equal(t, []State{Updating, Encoding}, a.states)
	assert.Equal(t, Idle, h.orch.State())

	kinds := make([]gputest.CommandKind, 0, len(h.dev.Commands))
	for _, c := range h.dev.Commands {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []gputest.CommandKind{
		gputest.CmdBeginCompute, gputest.CmdDispatch, gputest.CmdEndCompute,
		gputest.CmdBeginRender,
		gputest.CmdPushDebugGroup, gputest.CmdDraw, gputest.CmdPopDebugGroup,
		gputest.CmdPushDebugGroup, gputest.CmdDraw, gputest.CmdPopDebugGroup,
		gputest.CmdEndRender,
		gputest.CmdCommit,
	}, kinds)

	// one command buffer per frame
	for _, c := range h.dev.Commands {
		assert.Equal(t, "frame#1", c.CommandBuf)
	}
	assert.Len(t, h.surface.Presented, 1)
}

func TestDrawOrderFollowsRegistrationEveryFrame(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.orch.Register(fakeDraw{h.unit("A", Draw)})
	require.NoError(t, err)
	_, err = h.orch.Register(fakeDraw{h.unit("B", Draw)})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		h.dev.Reset()
		require.NoError(t, h.orch.Frame())
		draws := h.dev.Filter(gputest.CmdDraw)
		require.Len(t, draws, 2)
		assert.Equal(t, "A", draws[0].Label)
		assert.Equal(t, "B", draws[1].Label)
	}
}

func TestRingAdvancesOncePerFrame(t *testing.T) {
	h := newHarness(t, Options{Depth: 3})
	u := h.unit("u", Draw)
	_, err := h.orch.Register(fakeDraw{u})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, h.orch.Frame())
	}
	assert.Equal(t, []int{1, 2, 0, 1, 2, 0}, u.slots)
	assert.Equal(t, uint64(6), h.orch.Frames())
	require.Len(t, h.obs.reports, 6)
	assert.Equal(t, 0, h.obs.reports[5].Slot)
}

func TestUnitWithBothCapabilitiesJoinsBothLists(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit("both", Compute|Draw)
	_, err := h.orch.Register(fakeBoth{u})
	require.NoError(t, err)

	require.NoError(t, h.orch.Frame())
	assert.Equal(t, []string{"setup:both", "compute:both", "update:both", "draw:both"}, h.journal)
	rep := h.obs.reports[0]
	assert.Equal(t, 1, rep.ComputeUnits)
	assert.Equal(t, 1, rep.DrawUnits)
}

func TestRegisterRejectsMismatchedCapabilities(t *testing.T) {
	h := newHarness(t, Options{})

	_, err := h.orch.Register(h.unit("plain", Compute))
	assert.ErrorIs(t, err, core.ErrInvariantViolation)

	_, err = h.orch.Register(fakeCompute{h.unit("c", Draw)})
	assert.ErrorIs(t, err, core.ErrInvariantViolation)

	_, err = h.orch.Register(fakeDraw{h.unit("none", 0)})
	assert.ErrorIs(t, err, core.ErrInvariantViolation)

	_, err = h.orch.Register(nil)
	assert.ErrorIs(t, err, core.ErrInvariantViolation)

	assert.Empty(t, h.journal, "setup must not run for rejected units")
	assert.Empty(t, h.orch.Units())
}

func TestRegisterSetupFailureLeavesUnitOut(t *testing.T) {
	h := newHarness(t, Options{})
	bad := h.unit("bad", Draw)
	bad.setupErr = core.SetupFailure("program missing")

	_, err := h.orch.Register(fakeDraw{bad})
	require.ErrorIs(t, err, core.ErrSetupFailure)
	assert.Empty(t, h.orch.Units())

	require.NoError(t, h.orch.Frame())
	assert.Empty(t, bad.states)
}

func TestRegisterTwiceAndAfterStart(t *testing.T) {
	h := newHarness(t, Options{})
	u := fakeDraw{h.unit("u", Draw)}
	id, err := h.orch.Register(u)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = h.orch.Register(u)
	assert.ErrorIs(t, err, core.ErrInvariantViolation)

	require.NoError(t, h.orch.Frame())
	_, err = h.orch.Register(fakeDraw{h.unit("late", Draw)})
	assert.ErrorIs(t, err, ErrRegistrationClosed)

	infos := h.orch.Units()
	require.Len(t, infos, 1)
	assert.Equal(t, id, infos[0].ID)
	assert.Equal(t, "u", infos[0].Name)
}

func TestRegisterValueUnitsWithSliceFields(t *testing.T) {
	h := newHarness(t, Options{})
	a := tintUnit{name: "a", tints: []float32{1}}
	b := tintUnit{name: "b", tints: []float32{0.5, 0.25}}

	var idA, idB UnitID
	require.NotPanics(t, func() {
		var err error
		idA, err = h.orch.Register(a)
		require.NoError(t, err)
		idB, err = h.orch.Register(b)
		require.NoError(t, err)
	})
	assert.NotEqual(t, idA, idB)
	require.Len(t, h.orch.Units(), 2)

	require.NoError(t, h.orch.Frame())
	var counts []uint32
	for _, c := range h.dev.Commands {
		if c.Kind == gputest.CmdDraw {
			counts = append(counts, c.VertexCount)
		}
	}
	assert.Equal(t, []uint32{3, 6}, counts)
}

func TestFrameWithoutDrawableCommitsComputeOnly(t *testing.T) {
	h := newHarness(t, Options{})
	sim := h.unit("sim", Compute)
	_, err := h.orch.Register(fakeCompute{sim})
	require.NoError(t, err)
	_, err = h.orch.Register(fakeDraw{h.unit("A", Draw)})
	require.NoError(t, err)

	h.surface.FailNext = true
	err = h.orch.Frame()
	require.ErrorIs(t, err, gputest.ErrInjected)
	assert.ErrorIs(t, err, ErrNoDrawable)
	assert.Equal(t, Idle, h.orch.State())

	assert.Len(t, h.dev.Filter(gputest.CmdDispatch), 1)
	assert.Empty(t, h.dev.Filter(gputest.CmdBeginRender))
	assert.Len(t, h.dev.Filter(gputest.CmdCommit), 1)
	assert.Empty(t, h.surface.Presented)
	assert.False(t, h.obs.reports[0].Presented)

	// next frame recovers
	require.NoError(t, h.orch.Frame())
	assert.Len(t, h.surface.Presented, 1)
}

func TestFrameCommitFailureIsReported(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.orch.Register(fakeDraw{h.unit("A", Draw)})
	require.NoError(t, err)

	h.dev.FailCommitOnce = true
	err = h.orch.Frame()
	assert.ErrorIs(t, err, gputest.ErrInjected)
	assert.Equal(t, Idle, h.orch.State())
	require.Len(t, h.obs.reports, 1)
	assert.True(t, errors.Is(h.obs.reports[0].Err, gputest.ErrInjected))
}

func TestFrameCommandBufferFailure(t *testing.T) {
	h := newHarness(t, Options{})
	u := h.unit("A", Draw)
	_, err := h.orch.Register(fakeDraw{u})
	require.NoError(t, err)

	h.dev.FailCommandBuf = true
	assert.ErrorIs(t, h.orch.Frame(), gputest.ErrInjected)
	assert.Equal(t, Idle, h.orch.State())
	assert.Empty(t, u.states)
}

func TestCameraDrivesMatrices(t *testing.T) {
	cam := core.NewCamera()
	h := newHarness(t, Options{Camera: cam})
	require.NoError(t, h.orch.Frame())

	assert.Equal(t, cam.ViewMatrix(), h.orch.View())
	assert.Equal(t, cam.ProjectionMatrix(640.0/480.0), h.orch.Projection())
}

func TestExplicitMatricesWithoutCamera(t *testing.T) {
	h := newHarness(t, Options{})
	m := core.Translation(1, 2, 3)
	h.orch.SetView(m)
	require.NoError(t, h.orch.Frame())
	assert.Equal(t, m, h.orch.View())
	assert.Equal(t, mgl32.Ident4(), h.orch.Projection())
}

func TestClockTicksPerFrame(t *testing.T) {
	now := time.Unix(100, 0)
	clock := core.NewClockWithSource(func() time.Time {
		now = now.Add(16 * time.Millisecond)
		return now
	})
	h := newHarness(t, Options{Clock: clock})
	require.NoError(t, h.orch.Frame())
	require.NoError(t, h.orch.Frame())
	assert.Equal(t, uint64(2), h.orch.Clock().Frame)
	assert.Equal(t, 16*time.Millisecond, h.orch.Clock().Dt)
}

func TestReportCarriesPhases(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.orch.Frame())
	require.Len(t, h.obs.reports, 1)
	names := make([]string, 0, 4)
	for _, s := range h.obs.reports[0].Phases {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"compute", "update", "encode", "submit"}, names)
}

func TestReleaseReverseOrder(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.unit("A", Draw)
	b := h.unit("B", Compute)
	_, err := h.orch.Register(fakeDraw{a})
	require.NoError(t, err)
	_, err = h.orch.Register(fakeCompute{b})
	require.NoError(t, err)

	h.orch.Release()
	assert.True(t, a.released)
	assert.True(t, b.released)
	assert.Empty(t, h.orch.Units())
}
