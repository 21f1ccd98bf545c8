package main

import (
	"fmt"
	"log/slog"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"sirius/internal/compute"
	"sirius/internal/config"
	"sirius/internal/registry"
	"sirius/internal/render"
	"sirius/internal/session"
)

// viewer is the ebiten game driving one Render per tick.
type viewer struct {
	engine  *render.Engine
	sess    *session.Session
	reg     *registry.Registry
	cc      *compute.Context
	cfg     config.Config
	logger  *slog.Logger
	pixels  []byte
	last    render.Result
	message string
}

func newViewer(engine *render.Engine, sess *session.Session, reg *registry.Registry, cc *compute.Context, cfg config.Config, logger *slog.Logger) *viewer {
	return &viewer{engine: engine, sess: sess, reg: reg, cc: cc, cfg: cfg, logger: logger}
}

func runViewer(v *viewer, cfg config.Config) error {
	ebiten.SetWindowSize(cfg.Width*cfg.Scale, cfg.Height*cfg.Scale)
	ebiten.SetWindowTitle("sirius")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(v)
}

// Update handles input and renders the next frame.
func (v *viewer) Update() error {
	shift := ebiten.IsKeyPressed(ebiten.KeyShift)
	if inpututil.IsKeyJustPressed(ebiten.KeyTab) {
		if shift {
			v.sess.Cycle(-1)
		} else {
			v.sess.Cycle(1)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyUp) {
		v.sess.SelectParam(-1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDown) {
		v.sess.SelectParam(1)
	}
	if ebiten.IsKeyPressed(ebiten.KeyLeft) {
		v.sess.Nudge(-1)
	}
	if ebiten.IsKeyPressed(ebiten.KeyRight) {
		v.sess.Nudge(1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		v.reloadMetrics()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyK) {
		v.engine.Invalidate()
		v.message = "kernel invalidated"
	}

	v.last = v.engine.Render(v.sess.Active())
	return nil
}

func (v *viewer) reloadMetrics() {
	if v.cfg.MetricsPath == "" {
		v.message = "built-in metrics (no -metrics file to reload)"
		return
	}
	if err := v.reg.Reload(v.cfg.MetricsPath, v.logger); err != nil {
		v.logger.Error("metric descriptor reload failed", "err", err)
		v.message = "reload failed: " + err.Error()
		return
	}
	v.message = fmt.Sprintf("reloaded %d metrics", v.reg.Len())
}

// Draw blits the surface and the status overlay.
func (v *viewer) Draw(screen *ebiten.Image) {
	s := v.engine.Surface()
	if n := s.Width * s.Height * 4; len(v.pixels) != n {
		v.pixels = make([]byte, n)
	}
	s.FillRGBA8(v.pixels)
	screen.WritePixels(v.pixels)

	status := v.sess.Status()
	status += fmt.Sprintf("Device: %s\nFrame %d: %s", v.cc.Info(), v.last.Frame, v.last.Outcome)
	if v.last.Outcome == render.Fallback {
		status += " (device path failed, showing fallback pattern)"
	}
	if v.last.Err != nil {
		status += "\n" + v.last.Err.Error()
	}
	if v.message != "" {
		status += "\n" + v.message
	}
	status += fmt.Sprintf("\nFPS: %.1f  Up/Down param, Left/Right adjust, R reload, K recompile", ebiten.ActualFPS())
	ebitenutil.DebugPrint(screen, status)
}

// Layout keeps one logical pixel per rendered pixel, following window
// resizes.
func (v *viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	w := outsideWidth / v.cfg.Scale
	h := outsideHeight / v.cfg.Scale
	if w < 1 || h < 1 {
		s := v.engine.Surface()
		return s.Width, s.Height
	}
	if err := v.engine.Resize(w, h); err != nil {
		v.logger.Error("resize failed", "width", w, "height", h, "err", err)
		s := v.engine.Surface()
		return s.Width, s.Height
	}
	return w, h
}
