package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads r whenever the descriptor file at path is written or
// replaced, and reports each attempt to onReload from the watcher goroutine.
// The parent directory is watched so editors that save by rename are seen.
// Watching stops when ctx is cancelled.
func (r *Registry) Watch(ctx context.Context, path string, logger *slog.Logger, onReload func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating descriptor watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				err := r.Reload(path, logger)
				if err != nil {
					logger.Error("metric descriptor reload failed", "path", path, "err", err)
				} else {
					logger.Info("metric descriptors reloaded", "path", path, "metrics", r.Len())
				}
				if onReload != nil {
					onReload(err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("descriptor watcher error", "err", err)
			}
		}
	}()
	return nil
}
