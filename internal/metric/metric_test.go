package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"

	"sirius/internal/dual"
)

func TestMinkowskiIsFlat(t *testing.T) {
	m := NewMinkowski()
	for _, pos := range []Vec4{{}, {1, 2, 3, 4}, {-7, 0.5, -3, 100}} {
		g := m.Tensor(pos)
		for a := 0; a < 4; a++ {
			for b := 0; b < 4; b++ {
				want := 0.0
				if a == b {
					want = 1
					if a == 0 {
						want = -1
					}
				}
				assert.Equal(t, dual.Number{Real: want}, g[a][b], "g[%d][%d] at %v", a, b, pos)
			}
		}
		assert.Equal(t, [4]Tensor{}, m.Derivatives(pos))
	}
}

func TestSetParamUnknownKeyIsNoop(t *testing.T) {
	for _, kind := range Kinds() {
		m, err := New(kind)
		require.NoError(t, err)
		before := m.Params()
		m.SetParam("no-such-parameter", 42)
		assert.Equal(t, before, m.Params(), kind)
	}
}

func TestSetParamClampsToRange(t *testing.T) {
	m := NewWeakField()
	m.SetParam("mass", 10)
	assert.Equal(t, 1.0, m.Params()["mass"].Value)
	m.SetParam("mass", -1)
	assert.Equal(t, 0.0, m.Params()["mass"].Value)
	m.SetParam("mass", 0.75)
	assert.Equal(t, 0.75, m.Params()["mass"].Value)
}

func TestParamsIsACopy(t *testing.T) {
	m := NewRindler()
	p := m.Params()
	p["acceleration"] = Param{Value: 99}
	assert.Equal(t, 0.5, m.Params()["acceleration"].Value)
}

func TestOptions(t *testing.T) {
	m, err := New("rindler", WithName("Rindler a=1"), WithDescription("stronger"), WithParam("acceleration", 1))
	require.NoError(t, err)
	assert.Equal(t, "Rindler a=1", m.Name())
	assert.Equal(t, "stronger", m.Description())
	assert.Equal(t, 1.0, m.Params()["acceleration"].Value)
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New("kerr")
	assert.ErrorContains(t, err, `unknown metric kind "kerr"`)
}

func TestTensorValuesAtOrigin(t *testing.T) {
	cases := map[string][4]float64{
		"minkowski": {-1, 1, 1, 1},
		"rindler":   {-1, 1, 1, 1},
		"desitter":  {-1, 1, 1, 1},
		// Φ(0) = −0.1/0.25 = −0.4
		"weakfield": {-0.2, 1.8, 1.8, 1.8},
	}
	for kind, want := range cases {
		m, err := New(kind)
		require.NoError(t, err)
		got := m.Tensor(Origin).Diagonal()
		for i := range want {
			assert.InDelta(t, want[i], got[i], 1e-12, "%s g[%d][%d]", kind, i, i)
		}
	}
}

// The derivative tensors must match finite differences of the tensor
// values along each coordinate.
func TestDerivativesMatchFiniteDifferences(t *testing.T) {
	pos := Vec4{0.4, 0.8, -0.3, 1.1}
	for _, kind := range Kinds() {
		m, err := New(kind)
		require.NoError(t, err)
		d := m.Derivatives(pos)
		for c := 0; c < 4; c++ {
			for a := 0; a < 4; a++ {
				for b := 0; b < 4; b++ {
					g := func(v float64) float64 {
						p := pos
						p[c] = v
						return m.Tensor(p)[a][b].Real
					}
					want := fd.Derivative(g, pos[c], &fd.Settings{Formula: fd.Central})
					assert.InDelta(t, want, d[c][a][b].Dual, 1e-6, "%s ∂g[%d][%d]/∂x%d", kind, a, b, c)
				}
			}
		}
	}
}

func TestTensorHasNoDerivativeComponent(t *testing.T) {
	m := NewWeakField()
	g := m.Tensor(Vec4{0, 1, 2, 3})
	for a := 0; a < 4; a++ {
		for b := 0; b < 4; b++ {
			assert.Zero(t, g[a][b].Dual)
		}
	}
}

func TestParamNamesSorted(t *testing.T) {
	assert.Equal(t, []string{"mass", "softening"}, NewWeakField().Params().Names())
	assert.Empty(t, NewMinkowski().Params().Names())
}
