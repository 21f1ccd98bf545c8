package metric

import (
	"fmt"
	"sort"

	"sirius/internal/dual"
)

// Minkowski is flat, empty spacetime with signature (−,+,+,+).
type Minkowski struct{ base }

func NewMinkowski(opts ...Option) *Minkowski {
	m := &Minkowski{base{name: "Minkowski", description: "Flat, empty spacetime.", params: Params{}}}
	m.apply(opts)
	return m
}

func (m *Minkowski) Tensor(Vec4) Tensor {
	return Diag(dual.Const(-1), dual.Const(1), dual.Const(1), dual.Const(1))
}

// Derivatives of a constant metric are all zero.
func (m *Minkowski) Derivatives(Vec4) [4]Tensor { return [4]Tensor{} }

// Rindler is the metric seen by an observer with constant proper
// acceleration along x: ds² = −(1+a·x)² dt² + dx² + dy² + dz².
type Rindler struct{ base }

func NewRindler(opts ...Option) *Rindler {
	m := &Rindler{base{
		name:        "Rindler",
		description: "Uniformly accelerated frame along x.",
		params:      Params{"acceleration": {Value: 0.5, Min: 0, Max: 2}},
	}}
	m.apply(opts)
	return m
}

func (m *Rindler) field(x Coords) Tensor {
	lapse := x[1].MulConst(m.param("acceleration")).AddConst(1)
	one := dual.Const(1)
	return Diag(lapse.Mul(lapse).Neg(), one, one, one)
}

func (m *Rindler) Tensor(pos Vec4) Tensor         { return tensorAt(m.field, pos) }
func (m *Rindler) Derivatives(pos Vec4) [4]Tensor { return derivativesOf(m.field, pos) }

// DeSitter is the flat slicing of de Sitter space:
// ds² = −dt² + e^{2Ht}(dx² + dy² + dz²).
type DeSitter struct{ base }

func NewDeSitter(opts ...Option) *DeSitter {
	m := &DeSitter{base{
		name:        "de Sitter",
		description: "Exponentially expanding vacuum universe (flat slicing).",
		params:      Params{"hubble": {Value: 0.1, Min: 0, Max: 1}},
	}}
	m.apply(opts)
	return m
}

func (m *DeSitter) field(x Coords) Tensor {
	a2 := dual.Exp(x[0].MulConst(2 * m.param("hubble")))
	return Diag(dual.Const(-1), a2, a2, a2)
}

func (m *DeSitter) Tensor(pos Vec4) Tensor         { return tensorAt(m.field, pos) }
func (m *DeSitter) Derivatives(pos Vec4) [4]Tensor { return derivativesOf(m.field, pos) }

// WeakField is the linearised field of a point mass,
// g_00 = −(1+2Φ), g_ii = 1−2Φ with Φ = −M / sqrt(r² + ε²).
// The softening length ε keeps the square root away from zero at the origin.
type WeakField struct{ base }

func NewWeakField(opts ...Option) *WeakField {
	m := &WeakField{base{
		name:        "Weak field",
		description: "Linearised gravity around a softened point mass.",
		params: Params{
			"mass":      {Value: 0.1, Min: 0, Max: 1},
			"softening": {Value: 0.25, Min: 0.05, Max: 2},
		},
	}}
	m.apply(opts)
	return m
}

func (m *WeakField) potential(x Coords) dual.Number {
	eps := m.param("softening")
	r2 := x[1].Mul(x[1]).Add(x[2].Mul(x[2])).Add(x[3].Mul(x[3])).AddConst(eps * eps)
	return dual.Const(-m.param("mass")).Div(dual.Sqrt(r2))
}

func (m *WeakField) field(x Coords) Tensor {
	phi2 := m.potential(x).Scale(2)
	space := dual.Const(1).Sub(phi2)
	return Diag(phi2.AddConst(1).Neg(), space, space, space)
}

func (m *WeakField) Tensor(pos Vec4) Tensor         { return tensorAt(m.field, pos) }
func (m *WeakField) Derivatives(pos Vec4) [4]Tensor { return derivativesOf(m.field, pos) }

var (
	_ Metric = (*Minkowski)(nil)
	_ Metric = (*Rindler)(nil)
	_ Metric = (*DeSitter)(nil)
	_ Metric = (*WeakField)(nil)
)

// Factory constructs a metric of one kind.
type Factory func(opts ...Option) Metric

var factories = map[string]Factory{
	"minkowski": func(o ...Option) Metric { return NewMinkowski(o...) },
	"rindler":   func(o ...Option) Metric { return NewRindler(o...) },
	"desitter":  func(o ...Option) Metric { return NewDeSitter(o...) },
	"weakfield": func(o ...Option) Metric { return NewWeakField(o...) },
}

// Kinds lists the built-in metric kinds in the order they are offered by
// default.
func Kinds() []string {
	return []string{"minkowski", "rindler", "desitter", "weakfield"}
}

// New constructs a built-in metric by kind.
func New(kind string, opts ...Option) (Metric, error) {
	f, ok := factories[kind]
	if !ok {
		known := make([]string, 0, len(factories))
		for k := range factories {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("unknown metric kind %q (known: %v)", kind, known)
	}
	return f(opts...), nil
}
