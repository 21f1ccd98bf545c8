package main

import (
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"

	"sirius/internal/render"
	"sirius/internal/session"
)

// renderHeadless renders frames frames of the active metric and writes the
// last one to out.
func renderHeadless(engine *render.Engine, sess *session.Session, frames int, out string, logger *slog.Logger) error {
	var res render.Result
	for i := 0; i < frames; i++ {
		res = engine.Render(sess.Active())
	}
	if res.Outcome == render.Skipped {
		return errors.New("nothing rendered: no metric selected")
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := png.Encode(f, engine.Surface().RGBA()); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("frame written", "path", out, "metric", sess.Active().Name(), "outcome", res.Outcome, "frames", frames)
	return nil
}
