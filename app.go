// Package sand wires the falling-sand simulation to a GLFW window and a
// WebGPU device and drives it frame by frame.
package sand

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gekko3d/sand/rt/core"
	"github.com/gekko3d/sand/rt/frame"
	"github.com/gekko3d/sand/rt/gpu"
	"github.com/gekko3d/sand/rt/metrics"
	"github.com/gekko3d/sand/rt/shaders"
	"github.com/gekko3d/sand/rt/units"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Assemble builds an orchestrator on the given device and surface and
// registers the configured units: the floor first so particles draw over it.
func Assemble(dev gpu.Device, surface gpu.Surface, cfg Config, log core.Logger, obs frame.Observer) (*frame.Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o, err := frame.New(dev, surface, shaders.NewLibrary(), frame.Options{
		Depth:      cfg.InFlightFrames,
		Camera:     cfg.CameraSetup(),
		ClearColor: cfg.Clear(),
		Logger:     log,
		Observer:   obs,
	})
	if err != nil {
		return nil, err
	}

	var unitsToRegister []frame.Unit
	if cfg.Floor.Enabled {
		unitsToRegister = append(unitsToRegister, units.NewQuad(cfg.FloorQuad()))
	}
	unitsToRegister = append(unitsToRegister, units.NewParticles(cfg.Particles))

	for _, u := range unitsToRegister {
		if _, err := o.Register(u); err != nil {
			o.Release()
			return nil, err
		}
	}
	return o, nil
}

type App struct {
	Config Config

	log      core.Logger
	window   *Window
	backend  *gpu.WGPUBackend
	orch     *frame.Orchestrator
	registry *prometheus.Registry
	server   *http.Server

	// reconfigure rebuilds the swapchain after repeated drawable failures.
	reconfigure  func()
	missedFrames int
}

// drawableRetries is how many frames in a row may fail to acquire a drawable
// before the surface is reconfigured.
const drawableRetries = 3

// NewApp opens the window, creates the WebGPU backend and assembles the units.
func NewApp(cfg Config, log core.Logger) (*App, error) {
	log = core.OrNop(log)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, log: log, registry: prometheus.NewRegistry()}

	win, err := OpenWindow(cfg.Window)
	if err != nil {
		return nil, core.SetupFailure("%v", err)
	}
	a.window = win

	w, h := win.FramebufferSize()
	a.backend, err = gpu.NewWGPUBackend(win.SurfaceDescriptor(), w, h, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	win.OnResize(a.backend.Resize)
	a.reconfigure = func() { a.backend.Resize(a.window.FramebufferSize()) }

	stats := metrics.NewFrameStats(a.registry)
	a.orch, err = Assemble(a.backend, a.backend, cfg, log, stats)
	if err != nil {
		a.Close()
		return nil, err
	}
	for _, u := range a.orch.Units() {
		log.Debugf("unit %s: %s (%s)", u.ID, u.Name, u.Capabilities)
	}
	return a, nil
}

func (a *App) Orchestrator() *frame.Orchestrator { return a.orch }

// Run drives frames until the window closes or ctx is cancelled. It must be
// called from the thread that created the window.
func (a *App) Run(ctx context.Context) error {
	if a.Config.MetricsAddr != "" {
		a.serveMetrics(a.Config.MetricsAddr)
	}
	a.log.Infof("running %s, %d frames in flight", a.Config.Window.Title, a.orch.Depth())

	lastTitle := time.Now()
	for !a.window.ShouldClose() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		a.window.Poll()
		a.frameDone(a.orch.Frame())

		if time.Since(lastTitle) > time.Second {
			lastTitle = time.Now()
			dt := a.orch.Clock().DtSeconds()
			a.window.SetTitle(fmt.Sprintf("%s - %.0f fps", a.Config.Window.Title, 1/dt))
		}
	}
	return nil
}

// frameDone logs a dropped frame. A dropped frame is not fatal, but a run of
// frames without a drawable reconfigures the surface.
func (a *App) frameDone(err error) {
	if err == nil {
		a.missedFrames = 0
		return
	}
	a.log.Errorf("%v", err)
	if !errors.Is(err, frame.ErrNoDrawable) {
		return
	}
	a.missedFrames++
	if a.missedFrames >= drawableRetries && a.reconfigure != nil {
		a.log.Warnf("no drawable for %d frames, reconfiguring surface", a.missedFrames)
		a.reconfigure()
		a.missedFrames = 0
	}
}

func (a *App) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.log.Infof("metrics listening on %s", addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Errorf("metrics server: %v", err)
		}
	}()
}

// Close releases units, the device and the window, in that order.
func (a *App) Close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.server.Shutdown(ctx)
		cancel()
		a.server = nil
	}
	if a.orch != nil {
		a.orch.Release()
		a.orch = nil
	}
	if a.backend != nil {
		a.backend.Release()
		a.backend = nil
	}
	if a.window != nil {
		a.window.Close()
		a.window = nil
	}
}
