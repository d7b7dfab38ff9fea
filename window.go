package sand

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// Window is the GLFW host window the WebGPU surface is created on. It must be
// created and polled from the main, OS-locked thread.
type Window struct {
	glfw   *glfw.Window
	Width  int
	Height int
	Title  string
}

func OpenWindow(cfg WindowConfig) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw init: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // WebGPU owns the surface, no GL context
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("create window: %w", err)
	}

	w := &Window{glfw: win, Width: cfg.Width, Height: cfg.Height, Title: cfg.Title}
	win.SetKeyCallback(func(gw *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			gw.SetShouldClose(true)
		}
	})
	return w, nil
}

func (w *Window) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(w.glfw)
}

// FramebufferSize is the drawable size in pixels, which differs from the
// window size on high-DPI displays.
func (w *Window) FramebufferSize() (int, int) {
	return w.glfw.GetFramebufferSize()
}

func (w *Window) OnResize(fn func(width, height int)) {
	w.glfw.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.Width, w.Height = width, height
		fn(width, height)
	})
}

func (w *Window) SetTitle(title string) {
	w.glfw.SetTitle(title)
}

func (w *Window) ShouldClose() bool {
	return w.glfw.ShouldClose()
}

func (w *Window) Poll() {
	glfw.PollEvents()
}

func (w *Window) Close() {
	w.glfw.Destroy()
	glfw.Terminate()
}
