// Package metric describes spacetime geometries as rank-2 tensor fields whose
// partial derivatives are obtained with dual-number automatic differentiation.
package metric

import (
	"sort"

	"sirius/internal/dual"
)

// Vec4 is a spacetime position (t, x, y, z).
type Vec4 [4]float64

// Origin is the coordinate origin used as the reference point when a metric
// is baked into a kernel.
var Origin = Vec4{}

// Tensor is a 4×4 metric tensor g_ab evaluated at a point. Each component
// carries the derivative with respect to whichever coordinate was seeded.
type Tensor [4][4]dual.Number

// Diagonal returns the values g_00..g_33.
func (t Tensor) Diagonal() [4]float64 {
	return [4]float64{t[0][0].Real, t[1][1].Real, t[2][2].Real, t[3][3].Real}
}

// Param is a tunable metric parameter with an inclusive range.
type Param struct {
	Value float64
	Min   float64
	Max   float64
}

// Clamp limits v to the parameter range.
func (p Param) Clamp(v float64) float64 {
	if v < p.Min {
		return p.Min
	}
	if v > p.Max {
		return p.Max
	}
	return v
}

// Params maps parameter names to their records.
type Params map[string]Param

// Names returns the parameter names in sorted order, for stable display.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Metric is a spacetime geometry. Exactly one metric is active in the
// rendering pipeline at a time.
type Metric interface {
	Name() string
	Description() string
	// Params returns a copy of the parameter set.
	Params() Params
	// SetParam updates a parameter, clamped to its range. Unknown keys are
	// ignored.
	SetParam(key string, value float64)
	// Tensor returns g_ab at pos. Derivative components are zero.
	Tensor(pos Vec4) Tensor
	// Derivatives returns ∂g_ab/∂x^c for c = 0..3.
	Derivatives(pos Vec4) [4]Tensor
}

// Coords is a position whose components are dual numbers.
type Coords [4]dual.Number

// Seed lifts pos into dual coordinates with coordinate c as the variable.
// A negative c seeds nothing.
func Seed(pos Vec4, c int) Coords {
	var x Coords
	for i, v := range pos {
		if i == c {
			x[i] = dual.Var(v)
		} else {
			x[i] = dual.Const(v)
		}
	}
	return x
}

// field evaluates a metric expression at dual coordinates.
type field func(x Coords) Tensor

// tensorAt evaluates f with no seeded coordinate.
func tensorAt(f field, pos Vec4) Tensor {
	return f(Seed(pos, -1))
}

// derivativesOf evaluates f once per coordinate, seeding each in turn, so
// the Dual part of every component of tensor c holds ∂g_ab/∂x^c.
func derivativesOf(f field, pos Vec4) [4]Tensor {
	var out [4]Tensor
	for c := range out {
		out[c] = f(Seed(pos, c))
	}
	return out
}

// Diag builds a diagonal tensor.
func Diag(g00, g11, g22, g33 dual.Number) Tensor {
	var t Tensor
	t[0][0], t[1][1], t[2][2], t[3][3] = g00, g11, g22, g33
	return t
}

// base carries the identity and parameter state shared by all metrics.
type base struct {
	name        string
	description string
	params      Params
}

func (b *base) Name() string        { return b.name }
func (b *base) Description() string { return b.description }
func (b *base) Params() Params      { return b.params.Clone() }

func (b *base) SetParam(key string, value float64) {
	p, ok := b.params[key]
	if !ok {
		return
	}
	p.Value = p.Clamp(value)
	b.params[key] = p
}

func (b *base) param(key string) float64 { return b.params[key].Value }

// Option customises a metric at construction time.
type Option func(*base)

// WithName overrides the display name, allowing several instances of the
// same kind with different parameters.
func WithName(name string) Option {
	return func(b *base) {
		if name != "" {
			b.name = name
		}
	}
}

// WithDescription overrides the description.
func WithDescription(d string) Option {
	return func(b *base) {
		if d != "" {
			b.description = d
		}
	}
}

// WithParam sets the initial value of a parameter. Unknown keys are ignored.
func WithParam(key string, value float64) Option {
	return func(b *base) { b.SetParam(key, value) }
}

func (b *base) apply(opts []Option) {
	for _, o := range opts {
		o(b)
	}
}
