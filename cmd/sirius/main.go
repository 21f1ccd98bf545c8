// Command sirius renders relativistic spacetimes by dispatching a ray
// tracing kernel specialized to the selected metric.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"runtime"

	"sirius/internal/compute"
	_ "sirius/internal/compute/host"
	"sirius/internal/compute/opencl"
	"sirius/internal/config"
	"sirius/internal/profiling"
	"sirius/internal/registry"
	"sirius/internal/render"
	"sirius/internal/session"
)

func main() {
	cfg, err := config.Parse(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}
	runtime.GOMAXPROCS(runtime.NumCPU())

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if cfg.CPUProfile != "" {
		stop, err := profiling.CPU(cfg.CPUProfile, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	reg, err := loadRegistry(cfg, logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Watch {
		if err := reg.Watch(ctx, cfg.MetricsPath, logger, nil); err != nil {
			return err
		}
	}

	if !opencl.Enabled {
		logger.Info("OpenCL support not compiled in; rebuild with -tags opencl for GPU rendering")
	}
	platforms := compute.FilterPlatforms(compute.Platforms(logger), cfg.Platform)
	cc, err := compute.NewContext(platforms)
	if err != nil {
		return err
	}
	defer cc.Close()
	logger.Info("compute device selected", "device", cc.Info())

	engine, err := render.NewEngine(cc, renderConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	sess := session.New(reg, cfg.Metric)
	if cfg.Headless {
		return renderHeadless(engine, sess, cfg.Frames, cfg.Out, logger)
	}
	return runViewer(newViewer(engine, sess, reg, cc, cfg, logger), cfg)
}

func loadRegistry(cfg config.Config, logger *slog.Logger) (*registry.Registry, error) {
	if cfg.MetricsPath == "" {
		return registry.Default(), nil
	}
	reg, err := registry.LoadFile(cfg.MetricsPath, logger)
	if err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		logger.Warn("no metrics loaded", "path", cfg.MetricsPath)
	}
	return reg, nil
}

func renderConfig(cfg config.Config) render.Config {
	return render.Config{
		Width:      cfg.Width,
		Height:     cfg.Height,
		KernelPath: cfg.KernelPath,
		LocalSize:  cfg.LocalSize,
		FOVDegrees: cfg.FOVDegrees,
		CameraZ:    cfg.CameraZ,
		FrameStep:  cfg.FrameStep,
	}
}
