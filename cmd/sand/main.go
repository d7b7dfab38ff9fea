package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/gekko3d/sand"
	"github.com/gekko3d/sand/rt/core"
)

func init() {
	// GLFW and the surface must stay on the main thread
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	population := flag.Int("population", 0, "particle count, must be a perfect square")
	frames := flag.Int("frames-in-flight", 0, "number of frames in flight")
	logFormat := flag.String("log-format", "", "log format: text or json")
	debug := flag.Bool("debug", false, "enable debug logging")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	noFloor := flag.Bool("no-floor", false, "do not draw the floor quad")
	flag.Parse()

	cfg := sand.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = sand.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(2)
		}
	}
	if *population > 0 {
		cfg.Particles.Population = *population
	}
	if *frames > 0 {
		cfg.InFlightFrames = *frames
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *debug {
		cfg.Log.Debug = true
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *noFloor {
		cfg.Floor.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	if z, ok := log.(*core.ZapLogger); ok {
		defer func() { _ = z.Sync() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := sand.NewApp(cfg, log)
	if err != nil {
		log.Errorf("start: %v", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("run: %v", err)
	}
}
