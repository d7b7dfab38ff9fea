package sand

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gekko3d/sand/rt/core"
	"github.com/gekko3d/sand/rt/gpu"
	"github.com/gekko3d/sand/rt/units"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

type WindowConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Title  string `yaml:"title"`
}

type CameraConfig struct {
	Eye    [3]float32 `yaml:"eye"`
	Target [3]float32 `yaml:"target"`
	Up     [3]float32 `yaml:"up"`
	// FovY is in degrees.
	FovY float32 `yaml:"fov_y"`
	Near float32 `yaml:"near"`
	Far  float32 `yaml:"far"`
}

type FloorConfig struct {
	Enabled bool       `yaml:"enabled"`
	Color   [4]float32 `yaml:"color"`
	// Scale is the x/z extent of the floor quad.
	Scale [2]float32 `yaml:"scale"`
}

type LogConfig struct {
	// Format is "text" (stdlib logger) or "json" (zap).
	Format string `yaml:"format"`
	Debug  bool   `yaml:"debug"`
}

type Config struct {
	Window         WindowConfig         `yaml:"window"`
	InFlightFrames int                  `yaml:"in_flight_frames"`
	ClearColor     [4]float64           `yaml:"clear_color"`
	Camera         CameraConfig         `yaml:"camera"`
	Particles      units.ParticleConfig `yaml:"particles"`
	Floor          FloorConfig          `yaml:"floor"`
	Log            LogConfig            `yaml:"log"`
	// MetricsAddr enables the Prometheus /metrics endpoint when non-empty.
	MetricsAddr string `yaml:"metrics_addr"`
}

func DefaultConfig() Config {
	return Config{
		Window:         WindowConfig{Width: 1280, Height: 720, Title: "Sand"},
		InFlightFrames: gpu.DefaultInFlightFrames,
		ClearColor:     [4]float64{0.1, 0.1, 0.1, 1},
		Camera: CameraConfig{
			Eye:    [3]float32{0, -2, 2},
			Target: [3]float32{0, 0, 0},
			Up:     [3]float32{0, 1, 0},
			FovY:   65,
			Near:   0.1,
			Far:    100,
		},
		Particles: units.DefaultParticleConfig(),
		Floor: FloorConfig{
			Enabled: true,
			Color:   [4]float32{0.5, 0.5, 0.5, 1},
			Scale:   [2]float32{0.5, 0.5},
		},
		Log: LogConfig{Format: "text"},
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return ReadConfig(f)
}

func ReadConfig(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: config: %v", core.ErrInvariantViolation, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return core.InvariantViolation("window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.InFlightFrames <= 0 {
		return core.InvariantViolation("in_flight_frames must be positive, got %d", c.InFlightFrames)
	}
	if err := c.Particles.Validate(); err != nil {
		return err
	}
	if err := c.CameraSetup().Validate(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return core.InvariantViolation("log.format %q, want text or json", c.Log.Format)
	}
	return nil
}

// CameraSetup converts the camera section into a core.Camera.
func (c Config) CameraSetup() *core.Camera {
	return &core.Camera{
		Eye:    mgl32.Vec3(c.Camera.Eye),
		Target: mgl32.Vec3(c.Camera.Target),
		Up:     mgl32.Vec3(c.Camera.Up),
		Lens: core.Lens{
			FovY: mgl32.DegToRad(c.Camera.FovY),
			Near: c.Camera.Near,
			Far:  c.Camera.Far,
		},
	}
}

func (c Config) Clear() gpu.Color {
	return gpu.Color{R: c.ClearColor[0], G: c.ClearColor[1], B: c.ClearColor[2], A: c.ClearColor[3]}
}

func (c Config) FloorQuad() units.QuadConfig {
	return units.QuadConfig{
		Name:  "Floor",
		Color: mgl32.Vec4(c.Floor.Color),
		Model: core.Scale(c.Floor.Scale[0], 1, c.Floor.Scale[1]),
	}
}

// NewLogger builds the logger selected by the log section.
func (c Config) NewLogger() (core.Logger, error) {
	if c.Log.Format == "json" {
		return core.NewZapLogger("sand", c.Log.Debug)
	}
	return core.NewDefaultLogger("sand", c.Log.Debug), nil
}
