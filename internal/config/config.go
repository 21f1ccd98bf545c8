// Package config holds the runtime settings of sirius. Values come from the
// defaults below, then an optional TOML file, then command-line flags.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultWidth, defaultHeight = 800, 600
	defaultScale                = 1
	defaultFOVDegrees           = 60.0
	defaultCameraZ              = -5.0
	defaultFrameStep            = 0.016
	defaultHeadlessFrames       = 1
)

// Config is the full set of settings.
type Config struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
	// Scale is the window pixels per rendered pixel.
	Scale int `toml:"scale"`

	KernelPath  string `toml:"kernel"`
	MetricsPath string `toml:"metrics"`
	Watch       bool   `toml:"watch"`
	// Metric is the name of the metric active at startup; empty selects the
	// first registered one.
	Metric string `toml:"metric"`

	// Platform restricts device selection to platforms whose name contains it.
	Platform  string `toml:"platform"`
	LocalSize int    `toml:"local_size"`

	FOVDegrees float64 `toml:"fov_deg"`
	CameraZ    float64 `toml:"camera_z"`
	FrameStep  float64 `toml:"frame_step"`

	Headless bool   `toml:"headless"`
	Frames   int    `toml:"frames"`
	Out      string `toml:"out"`

	LogLevel   string `toml:"log_level"`
	CPUProfile string `toml:"cpuprofile"`
}

func Default() Config {
	return Config{
		Width:       defaultWidth,
		Height:      defaultHeight,
		Scale:       defaultScale,
		KernelPath:  "kernels/raytracer.cl",
		MetricsPath: "",
		FOVDegrees:  defaultFOVDegrees,
		CameraZ:     defaultCameraZ,
		FrameStep:   defaultFrameStep,
		Frames:      defaultHeadlessFrames,
		Out:         "frame.png",
		LogLevel:    "info",
	}
}

// Load decodes the TOML file at path over base. Keys not known to Config are
// an error.
func Load(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("reading config: %w", err)
	}
	cfg := base
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return base, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// bind registers one flag per field, writing into c.
func (c *Config) bind(fs *flag.FlagSet) {
	fs.IntVar(&c.Width, "width", c.Width, "render width in pixels")
	fs.IntVar(&c.Height, "height", c.Height, "render height in pixels")
	fs.IntVar(&c.Scale, "scale", c.Scale, "window pixels per rendered pixel")
	fs.StringVar(&c.KernelPath, "kernel", c.KernelPath, "path to the ray tracing kernel source")
	fs.StringVar(&c.MetricsPath, "metrics", c.MetricsPath, "TOML file of metric descriptors (default: built-in metrics)")
	fs.BoolVar(&c.Watch, "watch", c.Watch, "reload the metrics file when it changes")
	fs.StringVar(&c.Metric, "metric", c.Metric, "name of the metric shown at startup")
	fs.StringVar(&c.Platform, "platform", c.Platform, "only use compute platforms whose name contains this")
	fs.IntVar(&c.LocalSize, "local-size", c.LocalSize, "kernel work-group size (0 lets the device choose)")
	fs.Float64Var(&c.FOVDegrees, "fov-deg", c.FOVDegrees, "vertical field of view (degrees)")
	fs.Float64Var(&c.CameraZ, "camera-z", c.CameraZ, "camera position along z")
	fs.Float64Var(&c.FrameStep, "frame-step", c.FrameStep, "animation time per frame")
	fs.BoolVar(&c.Headless, "headless", c.Headless, "render without a window and write a PNG")
	fs.IntVar(&c.Frames, "frames", c.Frames, "frames to render in headless mode")
	fs.StringVar(&c.Out, "out", c.Out, "PNG written in headless mode")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.CPUProfile, "cpuprofile", c.CPUProfile, "write a CPU profile to this file")
}

// Parse builds a Config from args. A -config file is applied over the
// defaults and any flag given explicitly is applied over the file.
func Parse(name string, args []string) (Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var path string
	fs.StringVar(&path, "config", "", "TOML settings file")
	cfg.bind(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if path != "" {
		fileCfg, err := Load(path, Default())
		if err != nil {
			return cfg, err
		}
		over := flag.NewFlagSet(name, flag.ContinueOnError)
		fileCfg.bind(over)
		var setErr error
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "config" || setErr != nil {
				return
			}
			setErr = over.Set(f.Name, f.Value.String())
		})
		if setErr != nil {
			return cfg, setErr
		}
		cfg = fileCfg
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the renderer cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("render size %dx%d must be positive", c.Width, c.Height))
	}
	if c.Scale <= 0 {
		errs = append(errs, fmt.Errorf("scale %d must be positive", c.Scale))
	}
	if c.LocalSize < 0 {
		errs = append(errs, fmt.Errorf("local size %d must not be negative", c.LocalSize))
	}
	if c.FOVDegrees <= 0 || c.FOVDegrees >= 180 {
		errs = append(errs, fmt.Errorf("field of view %g must be in (0, 180)", c.FOVDegrees))
	}
	if c.KernelPath == "" {
		errs = append(errs, errors.New("kernel path is empty"))
	}
	if c.Headless && c.Frames <= 0 {
		errs = append(errs, fmt.Errorf("headless frame count %d must be positive", c.Frames))
	}
	if c.Watch && c.MetricsPath == "" {
		errs = append(errs, errors.New("watch needs a metrics file"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return l, nil
}
