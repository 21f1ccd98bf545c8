package render

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"sirius/internal/metric"
)

// KernelName is the entry point every kernel program must export.
const KernelName = "trace_rays"

var (
	// ErrKernelSourceNotFound wraps fs.ErrNotExist for a missing kernel file.
	ErrKernelSourceNotFound = fmt.Errorf("kernel source not found: %w", fs.ErrNotExist)
	// ErrNonFiniteTensor means the metric produced NaN or Inf at the origin,
	// which cannot be baked into a compile-time constant.
	ErrNonFiniteTensor = errors.New("metric tensor is not finite at the origin")
)

// LoadKernelSource reads the kernel source at path as an opaque string.
func LoadKernelSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrKernelSourceNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("reading kernel source: %w", err)
	}
	return string(data), nil
}

// CompileOptions builds the compiler flags baking the diagonal of t into the
// METRIC_G00..METRIC_G33 macros.
func CompileOptions(t metric.Tensor) (string, error) {
	var b strings.Builder
	b.WriteString(" -cl-mad-enable -cl-fast-relaxed-math")
	for i, g := range t.Diagonal() {
		if math.IsNaN(g) || math.IsInf(g, 0) {
			return "", fmt.Errorf("%w: g%d%d = %v", ErrNonFiniteTensor, i, i, g)
		}
		fmt.Fprintf(&b, " -DMETRIC_G%d%d=%s", i, i, strconv.FormatFloat(g, 'f', 6, 64))
	}
	return b.String(), nil
}
