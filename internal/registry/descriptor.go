package registry

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"

	"sirius/internal/metric"
)

// Descriptor declares one metric instance to load. Several descriptors may
// share a kind as long as their names differ.
type Descriptor struct {
	Kind        string             `toml:"kind"`
	Name        string             `toml:"name,omitempty"`
	Description string             `toml:"description,omitempty"`
	Params      map[string]float64 `toml:"params,omitempty"`
}

type descriptorFile struct {
	Metrics []Descriptor `toml:"metric"`
}

// ParseDescriptors decodes a TOML document of [[metric]] tables.
func ParseDescriptors(data []byte) ([]Descriptor, error) {
	var f descriptorFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding metric descriptors: %w", err)
	}
	return f.Metrics, nil
}

// Build constructs the metric a descriptor describes.
func (d Descriptor) Build() (metric.Metric, error) {
	opts := []metric.Option{metric.WithName(d.Name), metric.WithDescription(d.Description)}
	for k, v := range d.Params {
		opts = append(opts, metric.WithParam(k, v))
	}
	return metric.New(d.Kind, opts...)
}

// FromDescriptors builds a registry in descriptor order. Descriptors that
// fail to build are logged and skipped, the way a broken plugin is skipped
// without stopping the others from loading.
func FromDescriptors(descs []Descriptor, logger *slog.Logger) *Registry {
	r := New()
	for i, d := range descs {
		m, err := d.Build()
		if err != nil {
			logger.Warn("skipping metric descriptor", "index", i, "kind", d.Kind, "err", err)
			continue
		}
		if err := r.Register(m); err != nil {
			logger.Warn("skipping metric descriptor", "index", i, "kind", d.Kind, "err", err)
			continue
		}
		logger.Info("loaded metric", "name", m.Name(), "kind", d.Kind)
	}
	return r
}

// LoadFile reads descriptors from path and builds a registry.
func LoadFile(path string, logger *slog.Logger) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metric descriptors: %w", err)
	}
	descs, err := ParseDescriptors(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return FromDescriptors(descs, logger), nil
}

// Reload replaces the contents of r with the descriptors at path. On error
// r is left untouched.
func (r *Registry) Reload(path string, logger *slog.Logger) error {
	fresh, err := LoadFile(path, logger)
	if err != nil {
		return err
	}
	r.replace(fresh)
	return nil
}
