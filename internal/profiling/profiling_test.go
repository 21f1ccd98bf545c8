package profiling

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCPUWritesProfileOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu.pprof")
	stop, err := CPU(path, discard())
	require.NoError(t, err)

	stop()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	require.NotPanics(t, stop)

	// Profiling was stopped, so a second session can start.
	stop, err = CPU(filepath.Join(t.TempDir(), "again.pprof"), discard())
	require.NoError(t, err)
	stop()
}

func TestCPUBadPath(t *testing.T) {
	_, err := CPU(filepath.Join(t.TempDir(), "missing", "cpu.pprof"), discard())
	assert.ErrorContains(t, err, "creating profile")
}
