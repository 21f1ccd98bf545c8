// Package registry holds the loaded metric providers and resolves them by
// name for the frame loop.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"sirius/internal/metric"
)

// ErrDuplicate is returned when a metric name is registered twice.
var ErrDuplicate = errors.New("metric already registered")

// Registry is an ordered collection of metrics. Handles returned by Get are
// non-owning: a later Clear or reload drops them from the registry, and
// callers are expected to look the active metric up again by name.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	metrics map[string]metric.Metric
}

func New() *Registry {
	return &Registry{metrics: make(map[string]metric.Metric)}
}

// Default returns a registry with one instance of every built-in kind.
func Default() *Registry {
	r := New()
	for _, kind := range metric.Kinds() {
		m, _ := metric.New(kind)
		_ = r.Register(m)
	}
	return r
}

// Register appends m in load order.
func (r *Registry) Register(m metric.Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := m.Name()
	if _, ok := r.metrics[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	r.order = append(r.order, name)
	r.metrics[name] = m
	return nil
}

// Names lists metric names in load order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Get returns the metric registered under name.
func (r *Registry) Get(name string) (metric.Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[name]
	return m, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Clear unloads every metric.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.metrics = make(map[string]metric.Metric)
}

// replace swaps in the contents of other atomically with respect to readers.
func (r *Registry) replace(other *Registry) {
	other.mu.RLock()
	order := append([]string(nil), other.order...)
	metrics := make(map[string]metric.Metric, len(other.metrics))
	for k, v := range other.metrics {
		metrics[k] = v
	}
	other.mu.RUnlock()

	r.mu.Lock()
	r.order = order
	r.metrics = metrics
	r.mu.Unlock()
}

// Next returns the name following current in load order, wrapping around.
// step may be negative. An unknown current yields the first name.
func (r *Registry) Next(current string, step int) string {
	names := r.Names()
	if len(names) == 0 {
		return ""
	}
	for i, n := range names {
		if n == current {
			j := ((i+step)%len(names) + len(names)) % len(names)
			return names[j]
		}
	}
	return names[0]
}
