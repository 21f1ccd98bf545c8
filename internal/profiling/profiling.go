// Package profiling wraps runtime/pprof for the sirius command.
package profiling

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/pprof"
	"sync"
)

// CPU samples the process into path until the returned stop is
// called. Calling stop again does nothing.
func CPU(path string, logger *slog.Logger) (stop func(), err error) {
	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating profile %s: %w", path, err)
	}
	if err := pprof.StartCPUProfile(out); err != nil {
		out.Close()
		return nil, fmt.Errorf("starting CPU profile: %w", err)
	}
	logger.Info("cpu profiling enabled", "path", path)

	var done sync.Once
	return func() {
		done.Do(func() {
			pprof.StopCPUProfile()
			if err := out.Close(); err != nil {
				logger.Error("closing cpu profile", "path", path, "err", err)
				return
			}
			logger.Info("cpu profile written", "path", path)
		})
	}, nil
}
